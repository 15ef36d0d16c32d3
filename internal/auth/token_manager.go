// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// TokenManager issues, validates and consumes email confirmation and
// password reset tokens. Expiry is evaluated lazily against the clock on
// every check; expired tokens stay stored until overwritten or consumed.
type TokenManager struct {
	core
}

// NewTokenManager creates a new TokenManager.
func NewTokenManager(deps Deps, opts ...Option) (*TokenManager, error) {
	c, err := newCore(deps, opts)
	if err != nil {
		return nil, err
	}
	return &TokenManager{core: c}, nil
}

// ConfirmEmailAddress redeems an email confirmation token. A matching token
// moves the pending address into the confirmed slot and clears the token.
// The token is checked against the stored identity, so a token replaced
// by a later email change, or cleared by an earlier confirmation, returns
// false. identity is refreshed from the store.
func (m *TokenManager) ConfirmEmailAddress(ctx context.Context, identity *Identity, token string) (bool, error) {
	if identity == nil {
		return false, invalidArgument("identity", "identity is required")
	}
	if token == "" {
		return false, invalidArgument("token", "confirmation token cannot be empty")
	}

	matched := false
	err := m.mutate(ctx, "confirm email address", identity, func(ctx context.Context, stored *Identity) (bool, error) {
		if !tokensEqual(stored.EmailConfirmationToken, token) {
			return false, nil
		}
		if stored.UnconfirmedEmailAddress == nil || *stored.UnconfirmedEmailAddress == "" {
			return false, invalidArgument("identity", "identity has no email address pending confirmation")
		}

		taken, err := m.emailOwnedByOther(ctx, *stored.UnconfirmedEmailAddress, stored)
		if err != nil {
			return false, err
		}
		if taken {
			return false, DuplicateEmail()
		}

		stored.confirmEmailAddress()
		stored.UpdatedAt = m.now()
		matched = true
		return true, nil
	})
	if err != nil {
		return false, err
	}

	m.metrics.tokenChecked(tokenKindConfirmation, matched)
	if !matched {
		return false, nil
	}
	m.logger.InfoContext(ctx, "email address confirmed", "identity_id", identity.ID.String())
	return true, nil
}

// GeneratePasswordResetToken issues a reset token valid for
// expirationMinutes to the identity that confirmed emailAddress. Returns nil
// when no identity matches. An unexpired token already on record is kept
// and the identity returned unchanged, so repeated requests do not
// invalidate a token already delivered.
func (m *TokenManager) GeneratePasswordResetToken(ctx context.Context, emailAddress string, expirationMinutes int) (*Identity, error) {
	if emailAddress == "" {
		return nil, invalidArgument("email_address", "email address cannot be empty")
	}
	if expirationMinutes < 1 {
		return nil, invalidArgument("expiration_minutes", "expiration must be at least 1 minute")
	}

	identity, err := m.findByEmailAddress(ctx, emailAddress)
	if err != nil {
		return nil, err
	}
	if identity == nil {
		return nil, nil
	}
	if !identity.Confirmed() {
		return nil, notConfirmed(identity)
	}

	if identity.ResetTokenActive(m.now()) {
		return identity, nil
	}

	token, err := m.deps.Crypto.GenerateToken()
	if err != nil {
		return nil, oops.Code("AUTH_TOKEN_FAILED").With("operation", "generate reset token").Wrap(err)
	}

	issued := false
	err = m.mutate(ctx, "issue password reset token", identity, func(_ context.Context, stored *Identity) (bool, error) {
		now := m.now()
		if stored.ResetTokenActive(now) {
			return false, nil
		}
		stored.setResetToken(token, now.Add(time.Duration(expirationMinutes)*time.Minute))
		stored.UpdatedAt = now
		issued = true
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	if !issued {
		return identity, nil
	}

	m.metrics.tokenIssued(tokenKindReset)
	m.logger.InfoContext(ctx, "password reset token issued",
		"identity_id", identity.ID.String(),
		"expires_at", *identity.PasswordResetExpiresAt,
	)
	return identity, nil
}

// ResetPasswordWithToken sets newPassword when token matches the identity's
// unexpired reset token, then clears the token. Wrong, missing and expired
// tokens all return false.
func (m *TokenManager) ResetPasswordWithToken(ctx context.Context, username, token, newPassword string) (bool, error) {
	if newPassword == "" {
		return false, invalidArgument("new_password", "new password cannot be empty")
	}

	identity, err := m.findByUsername(ctx, username)
	if err != nil {
		return false, err
	}
	if !resetTokenMatches(identity, token, m.now()) {
		m.metrics.tokenChecked(tokenKindReset, false)
		return false, nil
	}
	if !identity.Confirmed() {
		return false, notConfirmed(identity)
	}

	hash, algorithm, err := m.hashPassword(newPassword)
	if err != nil {
		return false, err
	}

	// The token is checked again against the locked row; a concurrent
	// reset may have consumed it while the password was hashed.
	reset := false
	err = m.mutate(ctx, "reset password", identity, func(ctx context.Context, stored *Identity) (bool, error) {
		now := m.now()
		if !resetTokenMatches(stored, token, now) {
			return false, nil
		}
		if err := m.setPassword(ctx, stored, hash, algorithm, now); err != nil {
			return false, err
		}
		stored.clearResetToken()
		reset = true
		return true, nil
	})
	if err != nil {
		return false, err
	}

	m.metrics.tokenChecked(tokenKindReset, reset)
	if !reset {
		return false, nil
	}
	m.logger.InfoContext(ctx, "password reset", "identity_id", identity.ID.String())
	return true, nil
}

func resetTokenMatches(identity *Identity, token string, now time.Time) bool {
	return identity != nil && identity.ResetTokenActive(now) && tokensEqual(identity.PasswordResetToken, token)
}
