// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func newEmailCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "email",
		Short: "Confirm and change email addresses",
	}

	confirm := &cobra.Command{
		Use:   "confirm USERNAME TOKEN",
		Short: "Redeem an email confirmation token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd)
			if err != nil {
				return err
			}
			identity, err := requireIdentity(cmd.Context(), svc.registry, args[0])
			if err != nil {
				return err
			}
			ok, err := svc.tokens.ConfirmEmailAddress(cmd.Context(), identity, args[1])
			if err != nil {
				return err
			}
			if !ok {
				return oops.Code("TOKEN_REJECTED").With("username", args[0]).Errorf("confirmation token rejected")
			}
			cmd.Printf("confirmed %s for %s\n", orNone(identity.EmailAddress), identity.Username)
			return nil
		},
	}

	change := &cobra.Command{
		Use:   "change USERNAME EMAIL",
		Short: "Request a change of email address",
		Long: `Store EMAIL as the pending address and print a new confirmation
token. The confirmed address stays in place until the token is redeemed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd)
			if err != nil {
				return err
			}
			identity, err := requireIdentity(cmd.Context(), svc.registry, args[0])
			if err != nil {
				return err
			}
			if err := svc.registry.ChangeEmailAddress(cmd.Context(), identity, args[1]); err != nil {
				return err
			}
			cmd.Printf("pending email: %s\n", orNone(identity.UnconfirmedEmailAddress))
			if identity.EmailConfirmationToken != nil {
				cmd.Printf("confirmation token: %s\n", *identity.EmailConfirmationToken)
			}
			return nil
		},
	}

	cmd.AddCommand(confirm, change)
	return cmd
}
