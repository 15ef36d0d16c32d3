// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
)

// Authenticator answers whether a credential is valid for an identity and
// manages credential replacement and password changes.
type Authenticator struct {
	core
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(deps Deps, opts ...Option) (*Authenticator, error) {
	c, err := newCore(deps, opts)
	if err != nil {
		return nil, err
	}
	return &Authenticator{core: c}, nil
}

// AuthenticateCredential returns the credential with exactly the given type
// and value, or nil when none matches.
func (a *Authenticator) AuthenticateCredential(ctx context.Context, typ CredentialType, value string) (*Credential, error) {
	if typ == "" || value == "" {
		return nil, nil
	}
	cred, err := a.deps.Credentials.FindByTypeAndValue(ctx, typ, value)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storeFailure("find credential", err)
	}
	return cred, nil
}

// AuthenticatePassword returns identity when password matches its password
// credential or, for identities without one, its legacy embedded hash.
// Returns nil for a nil identity, a mismatch or a stored hash that cannot
// be verified.
func (a *Authenticator) AuthenticatePassword(ctx context.Context, identity *Identity, password string) (*Identity, error) {
	if identity == nil {
		return nil, nil
	}
	if !a.verifyPassword(identity, password) {
		a.logger.DebugContext(ctx, "password mismatch", "identity_id", identity.ID.String())
		return nil, nil
	}
	return identity, nil
}

// FindByUsernameAndPassword looks up username and authenticates password.
func (a *Authenticator) FindByUsernameAndPassword(ctx context.Context, username, password string) (*Identity, error) {
	identity, err := a.findByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return a.AuthenticatePassword(ctx, identity, password)
}

// FindByUsernameOrEmailAddressAndPassword resolves identifier as a username
// first and then as a confirmed email address.
func (a *Authenticator) FindByUsernameOrEmailAddressAndPassword(ctx context.Context, identifier, password string) (*Identity, error) {
	identity, err := a.findByUsername(ctx, identifier)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		identity, err = a.findByEmailAddress(ctx, identifier)
		if err != nil {
			return nil, err
		}
	}
	return a.AuthenticatePassword(ctx, identity, password)
}

// ReplaceCredential removes every credential of cred's type from identity
// and adds cred, committed as one unit. Existing credentials are read from
// the store, not from identity, which is refreshed on success.
func (a *Authenticator) ReplaceCredential(ctx context.Context, identity *Identity, cred Credential) error {
	if identity == nil {
		return invalidArgument("identity", "identity is required")
	}
	if cred.Type == "" || cred.Value == "" {
		return invalidArgument("credential", "credential type and value are required")
	}

	err := a.mutate(ctx, "replace credential", identity, func(ctx context.Context, stored *Identity) (bool, error) {
		stored.UpdatedAt = a.now()
		if cred.CreatedAt.IsZero() {
			cred.CreatedAt = stored.UpdatedAt
		}
		return true, a.replaceCredential(ctx, stored, cred)
	})
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "credential replaced",
		"identity_id", identity.ID.String(),
		"type", string(cred.Type),
	)
	return nil
}

// ReplaceCredentialByUsername resolves username and replaces the credential.
// Fails with NOT_FOUND when no identity has the username.
func (a *Authenticator) ReplaceCredentialByUsername(ctx context.Context, username string, cred Credential) (*Identity, error) {
	identity, err := a.findByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, NotFound("identity", username)
	}
	if err := a.ReplaceCredential(ctx, identity, cred); err != nil {
		return nil, err
	}
	return identity, nil
}

// ChangePassword authenticates oldPassword and stores newPassword as the
// identity's embedded password hash. Returns false when authentication
// fails.
func (a *Authenticator) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) (bool, error) {
	if newPassword == "" {
		return false, invalidArgument("new_password", "new password cannot be empty")
	}

	identity, err := a.FindByUsernameAndPassword(ctx, username, oldPassword)
	if err != nil {
		return false, err
	}
	if identity == nil {
		return false, nil
	}

	hash, algorithm, err := a.hashPassword(newPassword)
	if err != nil {
		return false, err
	}

	err = a.mutate(ctx, "change password", identity, func(ctx context.Context, stored *Identity) (bool, error) {
		return true, a.setPassword(ctx, stored, hash, algorithm, a.now())
	})
	if err != nil {
		return false, err
	}

	a.logger.InfoContext(ctx, "password changed", "identity_id", identity.ID.String())
	return true, nil
}
