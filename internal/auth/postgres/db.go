// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres implements the auth repositories on PostgreSQL.
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/holomush/accounts/internal/auth"
)

// Constraint names from the schema migrations.
const (
	constraintUsername     = "identities_username_key"
	constraintEmailAddress = "identities_email_address_key"
	constraintCredentialFK = "credentials_identity_id_fkey"
)

// DB is the subset of *pgxpool.Pool used by this package.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// querier abstracts query execution for both the pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txKey struct{}

func txFromContext(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok
}

// conn returns the transaction stored in ctx, or db.
func conn(ctx context.Context, db DB) querier {
	if tx, ok := txFromContext(ctx); ok {
		return tx
	}
	return db
}

// withTx runs fn in the transaction stored in ctx, or in a new one.
func withTx(ctx context.Context, db DB, fn func(ctx context.Context, q querier) error) error {
	if tx, ok := txFromContext(ctx); ok {
		return fn(ctx, tx)
	}
	return NewTransactor(db).InTransaction(ctx, func(ctx context.Context) error {
		tx, _ := txFromContext(ctx)
		return fn(ctx, tx)
	})
}

// uniqueViolation translates a unique constraint violation on identities
// into a domain error. It returns nil for any other error.
func uniqueViolation(err error, username string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case constraintUsername:
		return auth.DuplicateUsername(username)
	case constraintEmailAddress:
		return auth.DuplicateEmail()
	}
	return nil
}

// missingIdentity reports whether err is the credential owner foreign key
// rejecting an unknown identity.
func missingIdentity(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) &&
		pgErr.Code == pgerrcode.ForeignKeyViolation &&
		pgErr.ConstraintName == constraintCredentialFK
}
