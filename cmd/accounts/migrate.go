// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"fmt"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/accounts/internal/store"
)

// migrator is the part of store.Migrator the migrate commands drive.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Force(version int) error
	PendingMigrations() ([]uint, error)
	AppliedMigrations() ([]uint, error)
	Close() error
}

var newMigrator = func(databaseURL string) (migrator, error) {
	return store.NewMigrator(databaseURL)
}

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending identity schema migrations to the PostgreSQL database.`,
		RunE: a.withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
			return migrateUp(cmd, m)
		}),
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: a.withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
				return migrateUp(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration, dropping all identity data",
			Args:  cobra.NoArgs,
			RunE: a.withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
				if err := m.Down(); err != nil {
					return err
				}
				cmd.Println("All migrations rolled back")
				return nil
			}),
		},
		&cobra.Command{
			Use:   "steps N",
			Short: "Apply N migrations, or roll back when N is negative",
			Args:  cobra.ExactArgs(1),
			RunE: a.withMigrator(func(cmd *cobra.Command, m migrator, args []string) error {
				n, err := parseVersionArg(args[0])
				if err != nil {
					return err
				}
				if err := m.Steps(n); err != nil {
					return err
				}
				return printVersion(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Show the applied schema version",
			Args:  cobra.NoArgs,
			RunE: a.withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
				return printVersion(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "force VERSION",
			Short: "Record VERSION as applied without running it",
			Long: `Force sets the recorded schema version and clears the dirty flag.
Use it to recover after a migration failed partway.`,
			Args: cobra.ExactArgs(1),
			RunE: a.withMigrator(func(cmd *cobra.Command, m migrator, args []string) error {
				v, err := parseVersionArg(args[0])
				if err != nil {
					return err
				}
				if err := m.Force(v); err != nil {
					return err
				}
				return printVersion(cmd, m)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "List applied and pending migrations",
			Args:  cobra.NoArgs,
			RunE: a.withMigrator(func(cmd *cobra.Command, m migrator, _ []string) error {
				return printStatus(cmd, m)
			}),
		},
	)
	return cmd
}

// withMigrator opens a migrator for the configured database around fn.
func (a *app) withMigrator(fn func(cmd *cobra.Command, m migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		if a.cfg.Database.URL == "" {
			return oops.Code("CONFIG_INVALID").
				With("key", "database.url").
				Errorf("database URL is required: set --database-url, database.url or DATABASE_URL")
		}
		m, err := newMigrator(a.cfg.Database.URL)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := m.Close(); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
		return fn(cmd, m, args)
	}
}

func migrateUp(cmd *cobra.Command, m migrator) error {
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		cmd.Println("Schema is up to date")
		return nil
	}
	if err := m.Up(); err != nil {
		return err
	}
	cmd.Printf("Applied %d migration(s)\n", len(pending))
	return printVersion(cmd, m)
}

func printVersion(cmd *cobra.Command, m migrator) error {
	version, dirty, err := m.Version()
	if err != nil {
		return err
	}
	if dirty {
		cmd.Printf("Schema version: %d (dirty)\n", version)
		return nil
	}
	cmd.Printf("Schema version: %d\n", version)
	return nil
}

func printStatus(cmd *cobra.Command, m migrator) error {
	applied, err := m.AppliedMigrations()
	if err != nil {
		return err
	}
	pending, err := m.PendingMigrations()
	if err != nil {
		return err
	}
	for _, group := range []struct {
		label    string
		versions []uint
	}{{"applied", applied}, {"pending", pending}} {
		for _, v := range group.versions {
			name, err := store.MigrationName(v)
			if err != nil {
				return err
			}
			cmd.Printf("%-8s %s\n", group.label, name)
		}
	}
	return printVersion(cmd, m)
}

// parseVersionArg parses a migration version or step count. Leading
// whitespace is skipped and parsing stops at the first non-digit.
func parseVersionArg(s string) (int, error) {
	var v int
	if strings.TrimSpace(s) == "" {
		return 0, oops.Code("INVALID_VERSION").Errorf("version is required")
	}
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, oops.Code("INVALID_VERSION").With("input", s).Wrap(err)
	}
	return v, nil
}
