// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

func newPasswordCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change and reset passwords",
	}
	cmd.AddCommand(newPasswordChangeCmd(a), newPasswordRequestResetCmd(a), newPasswordResetCmd(a))
	return cmd
}

func newPasswordChangeCmd(a *app) *cobra.Command {
	var oldPassword, newPassword string
	cmd := &cobra.Command{
		Use:   "change USERNAME",
		Short: "Change a password after verifying the current one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd)
			if err != nil {
				return err
			}
			current, err := a.secret(cmd, "old", oldPassword)
			if err != nil {
				return err
			}
			next, err := a.secret(cmd, "new", newPassword)
			if err != nil {
				return err
			}
			ok, err := svc.authn.ChangePassword(cmd.Context(), args[0], current, next)
			if err != nil {
				return err
			}
			if !ok {
				return oops.Code("AUTHENTICATION_FAILED").With("username", args[0]).Errorf("invalid username or password")
			}
			cmd.Println("password changed")
			return nil
		},
	}
	cmd.Flags().StringVar(&oldPassword, "old", "", `current password, or "-" to read it from stdin`)
	cmd.Flags().StringVar(&newPassword, "new", "", `new password, or "-" to read it from stdin`)
	return cmd
}

func newPasswordRequestResetCmd(a *app) *cobra.Command {
	var expiry int
	cmd := &cobra.Command{
		Use:   "request-reset EMAIL",
		Short: "Issue a password reset token for a confirmed email address",
		Long: `Issue a password reset token to the identity that confirmed EMAIL and
print it. An unexpired token already on record is printed again instead of
being replaced.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd)
			if err != nil {
				return err
			}
			minutes := a.cfg.Auth.ResetTokenExpiryMinutes
			if cmd.Flags().Changed("expiry") {
				minutes = expiry
			}
			identity, err := svc.tokens.GeneratePasswordResetToken(cmd.Context(), args[0], minutes)
			if err != nil {
				return err
			}
			if identity == nil {
				return oops.Code("NOT_FOUND").With("email_address", args[0]).Errorf("no identity has confirmed %s", args[0])
			}
			cmd.Printf("username:    %s\n", identity.Username)
			cmd.Printf("reset token: %s\n", *identity.PasswordResetToken)
			cmd.Printf("expires:     %s\n", identity.PasswordResetExpiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().IntVar(&expiry, "expiry", 0, "token lifetime in minutes (default from auth.reset_token_expiry_minutes)")
	return cmd
}

func newPasswordResetCmd(a *app) *cobra.Command {
	var newPassword string
	cmd := &cobra.Command{
		Use:   "reset USERNAME TOKEN",
		Short: "Set a new password with a reset token",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd)
			if err != nil {
				return err
			}
			next, err := a.secret(cmd, "new", newPassword)
			if err != nil {
				return err
			}
			ok, err := svc.tokens.ResetPasswordWithToken(cmd.Context(), args[0], args[1], next)
			if err != nil {
				return err
			}
			if !ok {
				return oops.Code("TOKEN_REJECTED").With("username", args[0]).Errorf("reset token rejected")
			}
			cmd.Println("password reset")
			return nil
		},
	}
	cmd.Flags().StringVar(&newPassword, "new", "", `new password, or "-" to read it from stdin`)
	return cmd
}
