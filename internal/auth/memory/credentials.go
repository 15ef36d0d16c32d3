// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package memory

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

// FindByTypeAndValue returns the oldest credential with the given type and
// exact value.
func (s *Store) FindByTypeAndValue(ctx context.Context, typ auth.CredentialType, value string) (*auth.Credential, error) {
	var found *auth.Credential
	err := s.read(ctx, func(st *state) error {
		for _, creds := range st.credentials {
			for _, c := range creds {
				if !c.Type.Equal(typ) || c.Value != value {
					continue
				}
				if found == nil || c.CreatedAt.Before(found.CreatedAt) {
					match := c
					found = &match
				}
			}
		}
		if found == nil {
			return oops.Code(auth.CodeNotFound).
				With("type", string(typ)).
				Wrap(auth.ErrNotFound)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ListByIdentity returns the credentials owned by an identity.
func (s *Store) ListByIdentity(ctx context.Context, identityID ulid.ULID) ([]auth.Credential, error) {
	var out []auth.Credential
	err := s.read(ctx, func(st *state) error {
		out = append(out, st.credentials[identityID]...)
		return nil
	})
	return out, err
}

// Replace swaps cred in for every credential of the same type owned by
// cred.IdentityID.
func (s *Store) Replace(ctx context.Context, cred auth.Credential) error {
	if cred.Type == "" || cred.Value == "" {
		return oops.Code(auth.CodeInvalidArgument).
			Wrapf(auth.ErrInvalidArgument, "credential type and value are required")
	}
	return s.write(ctx, func(st *state) error {
		if _, ok := st.identities[cred.IdentityID]; !ok {
			return auth.NotFound("identity", cred.IdentityID.String())
		}
		if cred.ID == (ulid.ULID{}) {
			cred.ID = ulid.Make()
		}
		st.credentials[cred.IdentityID] = append(without(st.credentials[cred.IdentityID], cred.Type), cred)
		return nil
	})
}

// Remove deletes every credential of typ owned by the identity.
func (s *Store) Remove(ctx context.Context, identityID ulid.ULID, typ auth.CredentialType) error {
	return s.write(ctx, func(st *state) error {
		st.credentials[identityID] = without(st.credentials[identityID], typ)
		return nil
	})
}

func without(creds []auth.Credential, typ auth.CredentialType) []auth.Credential {
	out := make([]auth.Credential, 0, len(creds))
	for _, c := range creds {
		if !c.Type.Equal(typ) {
			out = append(out, c)
		}
	}
	return out
}
