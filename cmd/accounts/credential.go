// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/auth"
)

func newCredentialCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credential",
		Short: "Manage non-password credentials",
	}

	set := &cobra.Command{
		Use:   "set USERNAME TYPE VALUE",
		Short: "Replace the credential of TYPE held by USERNAME",
		Long: `Replace every credential of TYPE held by USERNAME with VALUE.
External provider tokens use the type external.<provider>.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd)
			if err != nil {
				return err
			}
			cred, err := auth.NewCredential(auth.CredentialType(args[1]), args[2])
			if err != nil {
				return err
			}
			identity, err := svc.authn.ReplaceCredentialByUsername(cmd.Context(), args[0], cred)
			if err != nil {
				return err
			}
			cmd.Printf("%s now holds %d %s credential(s)\n",
				identity.Username, len(identity.CredentialsOfType(cred.Type)), cred.Type)
			return nil
		},
	}

	check := &cobra.Command{
		Use:   "check TYPE VALUE",
		Short: "Find the identity holding a credential",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd)
			if err != nil {
				return err
			}
			cred, err := svc.authn.AuthenticateCredential(cmd.Context(), auth.CredentialType(args[0]), args[1])
			if err != nil {
				return err
			}
			if cred == nil {
				return oops.Code("AUTHENTICATION_FAILED").With("type", args[0]).Errorf("credential not recognised")
			}
			identity, err := svc.registry.GetByID(cmd.Context(), cred.IdentityID)
			if err != nil {
				return err
			}
			if identity == nil {
				return auth.NotFound("identity", cred.IdentityID.String())
			}
			cmd.Printf("%s %s\n", identity.ID, identity.Username)
			return nil
		},
	}

	cmd.AddCommand(set, check)
	return cmd
}
