// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"

	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

// Transactor implements auth.Transactor. It stores the active pgx.Tx in
// the context so repository calls made with that context join it.
type Transactor struct {
	db DB
}

// NewTransactor creates a Transactor backed by db.
func NewTransactor(db DB) *Transactor {
	return &Transactor{db: db}
}

// InTransaction begins a transaction, stores it in context, and calls fn.
// If fn returns nil, the transaction is committed. Otherwise it is rolled
// back and fn's error returned. Nested calls join the outer transaction.
func (t *Transactor) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := t.db.Begin(ctx)
	if err != nil {
		return oops.With("operation", "begin transaction").Wrap(err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback(ctx) //nolint:errcheck // fn's error takes precedence
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return oops.With("operation", "commit transaction").Wrap(err)
	}
	return nil
}

var _ auth.Transactor = (*Transactor)(nil)
