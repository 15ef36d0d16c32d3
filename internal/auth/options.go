// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// Deps are the collaborators shared by the services.
type Deps struct {
	Identities  IdentityRepository
	Credentials CredentialRepository
	Transactor  Transactor
	Crypto      Crypto
}

func (d Deps) validate() error {
	if d.Identities == nil {
		return oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("identity repository is required")
	}
	if d.Credentials == nil {
		return oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("credential repository is required")
	}
	if d.Transactor == nil {
		return oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("transactor is required")
	}
	if d.Crypto == nil {
		return oops.Code("AUTH_INVALID_DEPENDENCY").Errorf("crypto is required")
	}
	return nil
}

// Option configures a service.
type Option func(*options)

type options struct {
	logger              *slog.Logger
	now                 func() time.Time
	metrics             *Metrics
	requireConfirmation bool
}

func defaultOptions() options {
	return options{
		logger:              slog.Default(),
		now:                 time.Now,
		requireConfirmation: true,
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces time.Now, e.g. to evaluate token expiry in tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithMetrics enables Prometheus counters.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// WithEmailConfirmation sets whether new identities must confirm their
// email address. When false, identities are created already confirmed.
func WithEmailConfirmation(required bool) Option {
	return func(o *options) {
		o.requireConfirmation = required
	}
}

// core is embedded by every service.
type core struct {
	deps Deps
	options
}

func newCore(deps Deps, opts []Option) (core, error) {
	if err := deps.validate(); err != nil {
		return core{}, err
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return core{deps: deps, options: o}, nil
}

func (c *core) findByUsername(ctx context.Context, username string) (*Identity, error) {
	identity, err := c.deps.Identities.GetByUsername(ctx, username)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeFailure("get identity by username", err)
	}
	return identity, nil
}

func (c *core) findByEmailAddress(ctx context.Context, email string) (*Identity, error) {
	identity, err := c.deps.Identities.GetByEmailAddress(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeFailure("get identity by email address", err)
	}
	return identity, nil
}

// emailOwnedByOther reports whether an identity other than self has
// confirmed email.
func (c *core) emailOwnedByOther(ctx context.Context, email string, self *Identity) (bool, error) {
	owner, err := c.findByEmailAddress(ctx, email)
	if err != nil {
		return false, err
	}
	if owner == nil {
		return false, nil
	}
	return self == nil || owner.ID != self.ID, nil
}

// mutate reloads identity with a row lock inside one transaction and hands
// the stored copy to change. The copy is persisted when change reports a
// write. On success the stored state is copied into identity, so callers
// holding an older copy never write it back.
func (c *core) mutate(ctx context.Context, operation string, identity *Identity, change func(ctx context.Context, stored *Identity) (bool, error)) error {
	var stored *Identity
	err := c.inTransaction(ctx, operation, func(ctx context.Context) error {
		var err error
		stored, err = c.deps.Identities.GetByIDForUpdate(ctx, identity.ID)
		if err != nil {
			return err
		}
		write, err := change(ctx, stored)
		if err != nil || !write {
			return err
		}
		return c.deps.Identities.Update(ctx, stored)
	})
	if err != nil {
		return err
	}
	*identity = *stored
	return nil
}

// inTransaction runs fn through the transactor and classifies failures.
func (c *core) inTransaction(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if err := c.deps.Transactor.InTransaction(ctx, fn); err != nil {
		return storeFailure(operation, err)
	}
	return nil
}
