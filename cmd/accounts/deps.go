// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/memory"
	"github.com/holomush/accounts/internal/auth/postgres"
	"github.com/holomush/accounts/internal/config"
	"github.com/holomush/accounts/internal/store"
)

// Deps contains injectable dependencies for the CLI.
// All fields with nil values will use their default implementations.
type Deps struct {
	// BackendOpener opens the identity store selected by the configuration.
	// Default: openBackend
	BackendOpener func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

	// Registry receives the auth counters.
	// Default: a fresh prometheus.Registry
	Registry *prometheus.Registry

	// Now is the clock used for token expiry.
	// Default: time.Now
	Now func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.BackendOpener == nil {
		d.BackendOpener = openBackend
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

// Backend bundles the repositories of one store.
type Backend struct {
	Identities  auth.IdentityRepository
	Credentials auth.CredentialRepository
	Transactor  auth.Transactor
	Close       func()
}

// MemoryBackend wraps an in-memory store. Close is a no-op so the store can
// outlive a single command.
func MemoryBackend(s *memory.Store) *Backend {
	return &Backend{Identities: s, Credentials: s, Transactor: s, Close: func() {}}
}

func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	switch cfg.Store {
	case config.StoreMemory:
		logger.Warn("using in-memory store; changes are discarded on exit")
		return MemoryBackend(memory.NewStore()), nil
	case config.StorePostgres:
		pool, err := store.Connect(ctx, cfg.Database.URL, store.ConnectOptions{Logger: logger})
		if err != nil {
			return nil, oops.With("operation", "connect to database").Wrap(err)
		}
		return &Backend{
			Identities:  postgres.NewIdentityRepository(pool),
			Credentials: postgres.NewCredentialRepository(pool),
			Transactor:  postgres.NewTransactor(pool),
			Close:       pool.Close,
		}, nil
	default:
		return nil, oops.Code("CONFIG_INVALID").With("key", "store").Errorf("unknown store %q", cfg.Store)
	}
}

// services holds the identity services built over one backend.
type services struct {
	registry *auth.Registry
	authn    *auth.Authenticator
	tokens   *auth.TokenManager
}

func buildServices(cfg *config.Config, backend *Backend, logger *slog.Logger, deps Deps) (*services, error) {
	hasher, err := auth.NewArgon2idHasherWithParams(cfg.Hasher.Params())
	if err != nil {
		return nil, err
	}
	authDeps := auth.Deps{
		Identities:  backend.Identities,
		Credentials: backend.Credentials,
		Transactor:  backend.Transactor,
		Crypto:      auth.NewCrypto(hasher, auth.NewRandomTokenGenerator(cfg.Auth.TokenBytes)),
	}
	opts := []auth.Option{
		auth.WithLogger(logger),
		auth.WithClock(deps.Now),
		auth.WithMetrics(auth.NewMetrics(deps.Registry)),
		auth.WithEmailConfirmation(cfg.Auth.RequireEmailConfirmation),
	}

	registry, err := auth.NewRegistry(authDeps, opts...)
	if err != nil {
		return nil, err
	}
	authn, err := auth.NewAuthenticator(authDeps, opts...)
	if err != nil {
		return nil, err
	}
	tokens, err := auth.NewTokenManager(authDeps, opts...)
	if err != nil {
		return nil, err
	}
	return &services{registry: registry, authn: authn, tokens: tokens}, nil
}
