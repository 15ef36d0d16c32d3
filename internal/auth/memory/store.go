// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-memory implementation of the auth
// repositories, used by tests and by the CLI when no database is configured.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

// Compile-time interface checks.
var (
	_ auth.IdentityRepository   = (*Store)(nil)
	_ auth.CredentialRepository = (*Store)(nil)
	_ auth.Transactor           = (*Store)(nil)
)

type txKey struct{}

// state is one consistent snapshot of the store. Identities are kept
// without credentials; credentials live in their own map.
type state struct {
	identities  map[ulid.ULID]*auth.Identity
	credentials map[ulid.ULID][]auth.Credential
}

func newState() *state {
	return &state{
		identities:  make(map[ulid.ULID]*auth.Identity),
		credentials: make(map[ulid.ULID][]auth.Credential),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, identity := range s.identities {
		c.identities[id] = identity.Clone()
	}
	for id, creds := range s.credentials {
		c.credentials[id] = append([]auth.Credential(nil), creds...)
	}
	return c
}

// Store is an in-memory identity and credential store.
//
// Transactions are serialized: InTransaction works on a private copy of the
// committed state and swaps it in when fn succeeds. Readers outside a
// transaction never observe partial writes.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	data *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: newState()}
}

// InTransaction runs fn against a staged copy of the store. Nested calls
// join the outer transaction.
func (s *Store) InTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	staged := s.data.clone()
	s.mu.RUnlock()

	if err := fn(context.WithValue(ctx, txKey{}, staged)); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = staged
	s.mu.Unlock()
	return nil
}

// read runs fn against the transaction's staged state or the committed state.
func (s *Store) read(ctx context.Context, fn func(*state) error) error {
	if staged, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(staged)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.data)
}

// write runs fn inside the caller's transaction, or in its own.
func (s *Store) write(ctx context.Context, fn func(*state) error) error {
	return s.InTransaction(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(txKey{}).(*state))
	})
}

// Create stores a new identity and its credentials.
func (s *Store) Create(ctx context.Context, identity *auth.Identity) error {
	if identity == nil {
		return oops.Code(auth.CodeInvalidArgument).Wrapf(auth.ErrInvalidArgument, "identity is required")
	}
	return s.write(ctx, func(st *state) error {
		if _, exists := st.identities[identity.ID]; exists {
			return oops.Code("IDENTITY_EXISTS").
				With("identity_id", identity.ID.String()).
				Errorf("identity already stored")
		}
		if err := st.checkUnique(identity); err != nil {
			return err
		}
		stored := identity.Clone()
		stored.Credentials = nil
		st.identities[identity.ID] = stored

		creds := make([]auth.Credential, 0, len(identity.Credentials))
		for _, c := range identity.Credentials {
			c.IdentityID = identity.ID
			if c.ID == (ulid.ULID{}) {
				c.ID = ulid.Make()
			}
			creds = append(creds, c)
		}
		st.credentials[identity.ID] = creds
		return nil
	})
}

// Update persists the identity's own fields.
func (s *Store) Update(ctx context.Context, identity *auth.Identity) error {
	if identity == nil {
		return oops.Code(auth.CodeInvalidArgument).Wrapf(auth.ErrInvalidArgument, "identity is required")
	}
	return s.write(ctx, func(st *state) error {
		if _, exists := st.identities[identity.ID]; !exists {
			return auth.NotFound("identity", identity.ID.String())
		}
		if err := st.checkUnique(identity); err != nil {
			return err
		}
		stored := identity.Clone()
		stored.Credentials = nil
		st.identities[identity.ID] = stored
		return nil
	})
}

// checkUnique enforces the username and confirmed email constraints against
// every other identity.
func (st *state) checkUnique(identity *auth.Identity) error {
	for id, other := range st.identities {
		if id == identity.ID {
			continue
		}
		if other.Username == identity.Username {
			return auth.DuplicateUsername(identity.Username)
		}
		if identity.EmailAddress != nil && other.EmailAddress != nil &&
			*other.EmailAddress == *identity.EmailAddress {
			return auth.DuplicateEmail()
		}
	}
	return nil
}

// GetByID retrieves an identity by ID.
func (s *Store) GetByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	var out *auth.Identity
	err := s.read(ctx, func(st *state) error {
		identity, ok := st.identities[id]
		if !ok {
			return auth.NotFound("identity", id.String())
		}
		out = st.load(identity)
		return nil
	})
	return out, err
}

// GetByIDForUpdate retrieves an identity by ID. Transactions are already
// serialized, so no extra locking is needed.
func (s *Store) GetByIDForUpdate(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	return s.GetByID(ctx, id)
}

// GetByUsername retrieves an identity by exact username.
func (s *Store) GetByUsername(ctx context.Context, username string) (*auth.Identity, error) {
	return s.findOne(ctx, "username", username, func(i *auth.Identity) bool {
		return i.Username == username
	})
}

// GetByEmailAddress retrieves an identity by confirmed email address.
func (s *Store) GetByEmailAddress(ctx context.Context, email string) (*auth.Identity, error) {
	return s.findOne(ctx, "email_address", email, func(i *auth.Identity) bool {
		return i.EmailAddress != nil && *i.EmailAddress == email
	})
}

func (s *Store) findOne(ctx context.Context, field, key string, match func(*auth.Identity) bool) (*auth.Identity, error) {
	var out *auth.Identity
	err := s.read(ctx, func(st *state) error {
		for _, identity := range st.identities {
			if match(identity) {
				out = st.load(identity)
				return nil
			}
		}
		return oops.Code(auth.CodeNotFound).
			With("field", field).
			With("key", key).
			Wrap(auth.ErrNotFound)
	})
	return out, err
}

// ListByUnconfirmedEmailAddress lists identities with email pending,
// oldest first.
func (s *Store) ListByUnconfirmedEmailAddress(ctx context.Context, email, username string) ([]*auth.Identity, error) {
	var out []*auth.Identity
	err := s.read(ctx, func(st *state) error {
		for _, identity := range st.identities {
			if identity.UnconfirmedEmailAddress == nil || *identity.UnconfirmedEmailAddress != email {
				continue
			}
			if username != "" && identity.Username != username {
				continue
			}
			out = append(out, st.load(identity))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.Compare(out[j].ID) < 0
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

// load returns a copy of identity with its credentials attached.
func (st *state) load(identity *auth.Identity) *auth.Identity {
	out := identity.Clone()
	out.Credentials = append([]auth.Credential(nil), st.credentials[identity.ID]...)
	return out
}
