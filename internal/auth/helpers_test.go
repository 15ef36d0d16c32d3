// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/internal/auth/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingTransactor rejects every unit of work as a broken connection would.
type failingTransactor struct{}

var errConnectionReset = errors.New("connection reset by peer")

func (failingTransactor) InTransaction(context.Context, func(context.Context) error) error {
	return errConnectionReset
}

type harness struct {
	store    *memory.Store
	clock    *fakeClock
	metrics  *auth.Metrics
	logs     *bytes.Buffer
	registry *auth.Registry
	authn    *auth.Authenticator
	tokens   *auth.TokenManager
}

func testDeps(t *testing.T, store *memory.Store) auth.Deps {
	t.Helper()
	return auth.Deps{
		Identities:  store,
		Credentials: store,
		Transactor:  store,
		Crypto:      auth.NewCrypto(fastHasher(t), auth.NewRandomTokenGenerator(auth.DefaultTokenBytes)),
	}
}

func newHarness(t *testing.T, opts ...auth.Option) *harness {
	t.Helper()
	h := &harness{
		store:   memory.NewStore(),
		clock:   newFakeClock(),
		metrics: auth.NewMetrics(prometheus.NewRegistry()),
		logs:    &bytes.Buffer{},
	}
	deps := testDeps(t, h.store)
	all := append([]auth.Option{
		auth.WithClock(h.clock.Now),
		auth.WithMetrics(h.metrics),
		auth.WithLogger(slog.New(slog.NewJSONHandler(h.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))),
	}, opts...)

	var err error
	h.registry, err = auth.NewRegistry(deps, all...)
	require.NoError(t, err)
	h.authn, err = auth.NewAuthenticator(deps, all...)
	require.NoError(t, err)
	h.tokens, err = auth.NewTokenManager(deps, all...)
	require.NoError(t, err)
	return h
}

func (h *harness) create(t *testing.T, username, password, email string) *auth.Identity {
	t.Helper()
	identity, err := h.registry.Create(context.Background(), username, password, email)
	require.NoError(t, err)
	return identity
}

// createConfirmed registers an identity and redeems its confirmation token.
func (h *harness) createConfirmed(t *testing.T, username, password, email string) *auth.Identity {
	t.Helper()
	identity := h.create(t, username, password, email)
	require.NotNil(t, identity.EmailConfirmationToken)
	ok, err := h.tokens.ConfirmEmailAddress(context.Background(), identity, *identity.EmailConfirmationToken)
	require.NoError(t, err)
	require.True(t, ok)
	return identity
}

func (h *harness) reload(t *testing.T, identity *auth.Identity) *auth.Identity {
	t.Helper()
	fresh, err := h.registry.GetByID(context.Background(), identity.ID)
	require.NoError(t, err)
	require.NotNil(t, fresh)
	return fresh
}

func passwordCredentials(identity *auth.Identity) []auth.Credential {
	var out []auth.Credential
	for _, c := range identity.Credentials {
		if c.Type.IsPassword() {
			out = append(out, c)
		}
	}
	return out
}

func ptr[T any](v T) *T {
	return &v
}
