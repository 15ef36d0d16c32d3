// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login IDENTIFIER",
		Short: "Check a password for a username or confirmed email address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd)
			if err != nil {
				return err
			}
			pw, err := a.secret(cmd, "password", password)
			if err != nil {
				return err
			}
			identity, err := svc.authn.FindByUsernameOrEmailAddressAndPassword(cmd.Context(), args[0], pw)
			if err != nil {
				return err
			}
			if identity == nil {
				return oops.Code("AUTHENTICATION_FAILED").Errorf("invalid username or password")
			}
			cmd.Printf("authenticated %s (%s)\n", identity.Username, identity.ID)
			if !identity.Confirmed() {
				cmd.Println("warning: email address not confirmed")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", `password, or "-" to read it from stdin`)
	return cmd
}
