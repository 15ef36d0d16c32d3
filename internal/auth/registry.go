// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Registry owns identity records: registration, lookups, profile and email
// address changes.
type Registry struct {
	core
}

// NewRegistry creates a new Registry.
func NewRegistry(deps Deps, opts ...Option) (*Registry, error) {
	c, err := newCore(deps, opts)
	if err != nil {
		return nil, err
	}
	return &Registry{core: c}, nil
}

// Create registers a new identity with a hashed password credential and a
// pending email address awaiting confirmation. When email confirmation is
// not required the identity is created already confirmed.
//
// Email uniqueness is checked against confirmed addresses only; two
// identities may hold the same pending address until one confirms it.
func (r *Registry) Create(ctx context.Context, username, password, emailAddress string) (*Identity, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, invalidArgument("password", "password cannot be empty")
	}
	if err := ValidateEmailAddress(emailAddress); err != nil {
		return nil, err
	}

	existing, err := r.findByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, DuplicateUsername(username)
	}

	taken, err := r.emailOwnedByOther(ctx, emailAddress, nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, DuplicateEmail()
	}

	hash, algorithm, err := r.hashPassword(password)
	if err != nil {
		return nil, err
	}
	token, err := r.deps.Crypto.GenerateToken()
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_FAILED").With("operation", "generate confirmation token").Wrap(err)
	}

	now := r.now()
	identity := &Identity{
		ID:                      ulid.Make(),
		Username:                username,
		UnconfirmedEmailAddress: &emailAddress,
		PasswordHash:            &hash,
		PasswordAlgorithm:       &algorithm,
		EmailConfirmationToken:  &token,
		EmailAllowed:            true,
		CreatedAt:               now,
		UpdatedAt:               now,
	}
	cred, err := NewCredential(PasswordCredentialType(algorithm), hash)
	if err != nil {
		return nil, err
	}
	cred.IdentityID = identity.ID
	cred.CreatedAt = now
	identity.Credentials = []Credential{cred}

	if !r.requireConfirmation {
		identity.confirmEmailAddress()
	}

	err = r.inTransaction(ctx, "create identity", func(ctx context.Context) error {
		return r.deps.Identities.Create(ctx, identity)
	})
	if err != nil {
		return nil, err
	}

	if identity.EmailConfirmationToken != nil {
		r.metrics.tokenIssued(tokenKindConfirmation)
	}
	r.metrics.identityCreated()
	r.logger.InfoContext(ctx, "identity created",
		"identity_id", identity.ID.String(),
		"username", identity.Username,
		"confirmed", identity.Confirmed(),
	)
	return identity, nil
}

// GetByID returns the identity with the given ID, or nil if none exists.
func (r *Registry) GetByID(ctx context.Context, id ulid.ULID) (*Identity, error) {
	identity, err := r.deps.Identities.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeFailure("get identity by id", err)
	}
	return identity, nil
}

// FindByUsername returns the identity with the given username, or nil.
func (r *Registry) FindByUsername(ctx context.Context, username string) (*Identity, error) {
	return r.findByUsername(ctx, username)
}

// FindByEmailAddress returns the identity that confirmed email, or nil.
func (r *Registry) FindByEmailAddress(ctx context.Context, email string) (*Identity, error) {
	return r.findByEmailAddress(ctx, email)
}

// FindByUnconfirmedEmailAddress lists identities with email pending
// confirmation. A non-empty username narrows the result.
func (r *Registry) FindByUnconfirmedEmailAddress(ctx context.Context, email, username string) ([]*Identity, error) {
	identities, err := r.deps.Identities.ListByUnconfirmedEmailAddress(ctx, email, username)
	if err != nil {
		return nil, storeFailure("list identities by unconfirmed email address", err)
	}
	return identities, nil
}

// UpdateProfile sets whether the identity accepts email notifications.
// Only the flag is written; identity is refreshed from the store.
func (r *Registry) UpdateProfile(ctx context.Context, identity *Identity, emailAllowed bool) error {
	if identity == nil {
		return invalidArgument("identity", "identity is required")
	}

	return r.mutate(ctx, "update profile", identity, func(_ context.Context, stored *Identity) (bool, error) {
		stored.EmailAllowed = emailAllowed
		stored.UpdatedAt = r.now()
		return true, nil
	})
}

// ChangeEmailAddress stores newEmail as the pending address and issues a
// fresh confirmation token, replacing any earlier one. The confirmed
// address, if any, is kept until the new one is confirmed. Setting the
// address that is already current is a no-op.
func (r *Registry) ChangeEmailAddress(ctx context.Context, identity *Identity, newEmail string) error {
	if identity == nil {
		return invalidArgument("identity", "identity is required")
	}
	if err := ValidateEmailAddress(newEmail); err != nil {
		return err
	}

	token, err := r.deps.Crypto.GenerateToken()
	if err != nil {
		return oops.Code("AUTH_TOKEN_FAILED").With("operation", "generate confirmation token").Wrap(err)
	}

	changed := false
	err = r.mutate(ctx, "change email address", identity, func(ctx context.Context, stored *Identity) (bool, error) {
		taken, err := r.emailOwnedByOther(ctx, newEmail, stored)
		if err != nil {
			return false, err
		}
		if taken {
			return false, DuplicateEmail()
		}

		current := stored.EmailAddress
		if stored.UnconfirmedEmailAddress != nil && *stored.UnconfirmedEmailAddress != "" {
			current = stored.UnconfirmedEmailAddress
		}
		if current != nil && *current == newEmail {
			return false, nil
		}

		stored.UnconfirmedEmailAddress = &newEmail
		stored.EmailConfirmationToken = &token
		stored.UpdatedAt = r.now()
		changed = true
		return true, nil
	})
	if err != nil || !changed {
		return err
	}

	r.metrics.tokenIssued(tokenKindConfirmation)
	r.logger.InfoContext(ctx, "email address change requested", "identity_id", identity.ID.String())
	return nil
}
