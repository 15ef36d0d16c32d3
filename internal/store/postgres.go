// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store manages the PostgreSQL connection pool and schema
// migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection defaults.
const (
	DefaultPingAttempts = 5
	DefaultPingBackoff  = 200 * time.Millisecond
)

// pinger is the part of *pgxpool.Pool checked on startup.
type pinger interface {
	Ping(ctx context.Context) error
}

// ConnectOptions tunes Connect.
type ConnectOptions struct {
	// PingAttempts bounds how many times the first ping is retried.
	PingAttempts uint64
	// PingBackoff is the base of the exponential backoff between pings.
	PingBackoff time.Duration
	Logger      *slog.Logger
}

func (o ConnectOptions) withDefaults() ConnectOptions {
	if o.PingAttempts == 0 {
		o.PingAttempts = DefaultPingAttempts
	}
	if o.PingBackoff <= 0 {
		o.PingBackoff = DefaultPingBackoff
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Connect opens a pgx pool for dsn and waits until the database answers a
// ping, retrying with exponential backoff.
func Connect(ctx context.Context, dsn string, opts ConnectOptions) (*pgxpool.Pool, error) {
	if dsn == "" {
		return nil, oops.Code("DB_CONFIG_INVALID").Errorf("database URL is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").With("operation", "parse database URL").Wrap(err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}

	if err := waitForDatabase(ctx, pool, opts.withDefaults()); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func waitForDatabase(ctx context.Context, db pinger, opts ConnectOptions) error {
	backoff := retry.WithMaxRetries(opts.PingAttempts-1, retry.NewExponential(opts.PingBackoff))

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := db.Ping(ctx); err != nil {
			opts.Logger.DebugContext(ctx, "database not ready",
				"attempt", attempt,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
