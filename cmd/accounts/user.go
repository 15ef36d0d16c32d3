// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/auth"
)

func newUserCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Create and inspect identities",
	}
	cmd.AddCommand(newUserCreateCmd(a), newUserShowCmd(a), newUserProfileCmd(a), newUserPendingCmd(a))
	return cmd
}

func newUserCreateCmd(a *app) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "create USERNAME EMAIL",
		Short: "Register a new identity",
		Long: `Register a new identity. Unless email confirmation is disabled the
identity starts unconfirmed and the confirmation token is printed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd)
			if err != nil {
				return err
			}
			pw, err := a.secret(cmd, "password", password)
			if err != nil {
				return err
			}
			identity, err := svc.registry.Create(cmd.Context(), args[0], pw, args[1])
			if err != nil {
				return err
			}
			printIdentity(cmd, identity)
			if identity.EmailConfirmationToken != nil {
				cmd.Printf("confirmation token: %s\n", *identity.EmailConfirmationToken)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", `initial password, or "-" to read it from stdin`)
	return cmd
}

func newUserShowCmd(a *app) *cobra.Command {
	var byEmail, byID bool
	cmd := &cobra.Command{
		Use:   "show USERNAME",
		Short: "Show an identity",
		Long: `Show an identity looked up by username, by confirmed email address
(--email) or by ID (--id).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd)
			if err != nil {
				return err
			}
			identity, err := lookupIdentity(cmd.Context(), svc.registry, args[0], byEmail, byID)
			if err != nil {
				return err
			}
			printIdentity(cmd, identity)
			return nil
		},
	}
	cmd.Flags().BoolVar(&byEmail, "email", false, "look up by confirmed email address")
	cmd.Flags().BoolVar(&byID, "id", false, "look up by identity ID")
	cmd.MarkFlagsMutuallyExclusive("email", "id")
	return cmd
}

func newUserProfileCmd(a *app) *cobra.Command {
	var emailAllowed bool
	cmd := &cobra.Command{
		Use:   "profile USERNAME",
		Short: "Update profile settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd)
			if err != nil {
				return err
			}
			identity, err := requireIdentity(cmd.Context(), svc.registry, args[0])
			if err != nil {
				return err
			}
			if err := svc.registry.UpdateProfile(cmd.Context(), identity, emailAllowed); err != nil {
				return err
			}
			printIdentity(cmd, identity)
			return nil
		},
	}
	cmd.Flags().BoolVar(&emailAllowed, "email-allowed", true, "whether the identity accepts email")
	_ = cmd.MarkFlagRequired("email-allowed") //nolint:errcheck // flag is defined above
	return cmd
}

func newUserPendingCmd(a *app) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "pending EMAIL",
		Short: "List identities with EMAIL awaiting confirmation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.services(cmd)
			if err != nil {
				return err
			}
			identities, err := svc.registry.FindByUnconfirmedEmailAddress(cmd.Context(), args[0], username)
			if err != nil {
				return err
			}
			if len(identities) == 0 {
				cmd.Println("no pending identities")
				return nil
			}
			for _, identity := range identities {
				cmd.Printf("%s %s\n", identity.ID, identity.Username)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&username, "username", "", "only list this username")
	return cmd
}

func lookupIdentity(ctx context.Context, registry *auth.Registry, key string, byEmail, byID bool) (*auth.Identity, error) {
	var (
		identity *auth.Identity
		err      error
	)
	switch {
	case byID:
		id, parseErr := ulid.ParseStrict(key)
		if parseErr != nil {
			return nil, oops.Code(auth.CodeInvalidArgument).With("id", key).Wrapf(auth.ErrInvalidArgument, "invalid identity ID: %v", parseErr)
		}
		identity, err = registry.GetByID(ctx, id)
	case byEmail:
		identity, err = registry.FindByEmailAddress(ctx, key)
	default:
		identity, err = registry.FindByUsername(ctx, key)
	}
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, auth.NotFound("identity", key)
	}
	return identity, nil
}

func requireIdentity(ctx context.Context, registry *auth.Registry, username string) (*auth.Identity, error) {
	return lookupIdentity(ctx, registry, username, false, false)
}

func printIdentity(cmd *cobra.Command, identity *auth.Identity) {
	cmd.Printf("id:            %s\n", identity.ID)
	cmd.Printf("username:      %s\n", identity.Username)
	cmd.Printf("email:         %s\n", orNone(identity.EmailAddress))
	cmd.Printf("pending email: %s\n", orNone(identity.UnconfirmedEmailAddress))
	cmd.Printf("confirmed:     %t\n", identity.Confirmed())
	cmd.Printf("email allowed: %t\n", identity.EmailAllowed)
	for _, c := range identity.Credentials {
		cmd.Printf("credential:    %s (added %s)\n", c.Type, c.CreatedAt.UTC().Format(time.RFC3339))
	}
	cmd.Printf("created:       %s\n", identity.CreatedAt.UTC().Format(time.RFC3339))
}

func orNone(s *string) string {
	if s == nil || *s == "" {
		return "(none)"
	}
	return *s
}
