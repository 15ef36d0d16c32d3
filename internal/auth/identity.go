// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"net/mail"
	"regexp"
	"time"

	"github.com/oklog/ulid/v2"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Identity represents one account.
//
// EmailAddress holds the confirmed address and is nil until a confirmation
// token has been redeemed. PasswordHash and PasswordAlgorithm are the legacy
// embedded password that predates credentials; they remain authoritative
// only for identities without a password credential.
type Identity struct {
	ID                      ulid.ULID
	Username                string
	EmailAddress            *string
	UnconfirmedEmailAddress *string
	PasswordHash            *string
	PasswordAlgorithm       *string
	EmailConfirmationToken  *string
	PasswordResetToken      *string
	PasswordResetExpiresAt  *time.Time
	EmailAllowed            bool
	Credentials             []Credential
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// Confirmed reports whether the identity has proven ownership of an email
// address.
func (i *Identity) Confirmed() bool {
	return i.EmailAddress != nil
}

// PasswordCredential returns the identity's password credential, if any.
func (i *Identity) PasswordCredential() (Credential, bool) {
	for _, c := range i.Credentials {
		if c.Type.IsPassword() {
			return c, true
		}
	}
	return Credential{}, false
}

// CredentialsOfType returns the credentials whose type matches typ.
func (i *Identity) CredentialsOfType(typ CredentialType) []Credential {
	var out []Credential
	for _, c := range i.Credentials {
		if c.Type.Equal(typ) {
			out = append(out, c)
		}
	}
	return out
}

// confirmEmailAddress promotes the pending address to the confirmed slot.
func (i *Identity) confirmEmailAddress() {
	i.EmailAddress = i.UnconfirmedEmailAddress
	i.UnconfirmedEmailAddress = nil
	i.EmailConfirmationToken = nil
}

// ResetTokenActive reports whether a reset token is stored and has not
// expired at now.
func (i *Identity) ResetTokenActive(now time.Time) bool {
	return i.PasswordResetToken != nil && *i.PasswordResetToken != "" &&
		i.PasswordResetExpiresAt != nil && !now.After(*i.PasswordResetExpiresAt)
}

func (i *Identity) setResetToken(token string, expiresAt time.Time) {
	i.PasswordResetToken = &token
	i.PasswordResetExpiresAt = &expiresAt
}

func (i *Identity) clearResetToken() {
	i.PasswordResetToken = nil
	i.PasswordResetExpiresAt = nil
}

// Clone returns a deep copy of the identity.
func (i *Identity) Clone() *Identity {
	c := *i
	c.EmailAddress = cloneString(i.EmailAddress)
	c.UnconfirmedEmailAddress = cloneString(i.UnconfirmedEmailAddress)
	c.PasswordHash = cloneString(i.PasswordHash)
	c.PasswordAlgorithm = cloneString(i.PasswordAlgorithm)
	c.EmailConfirmationToken = cloneString(i.EmailConfirmationToken)
	c.PasswordResetToken = cloneString(i.PasswordResetToken)
	if i.PasswordResetExpiresAt != nil {
		t := *i.PasswordResetExpiresAt
		c.PasswordResetExpiresAt = &t
	}
	c.Credentials = append([]Credential(nil), i.Credentials...)
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	if username == "" {
		return invalidArgument("username", "username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return invalidArgument("username", "username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return invalidArgument("username", "username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return invalidArgument("username",
			"username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}

// ValidateEmailAddress checks that address is a bare RFC 5322 address.
func ValidateEmailAddress(address string) error {
	if address == "" {
		return invalidArgument("email_address", "email address cannot be empty")
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return invalidArgument("email_address", "email address %q is not valid", address)
	}
	return nil
}

// IdentityRepository manages identity persistence. Loaded identities carry
// their credentials.
type IdentityRepository interface {
	// Create stores a new identity together with its credentials.
	// Returns a DUPLICATE_USERNAME or DUPLICATE_EMAIL error when a
	// uniqueness constraint rejects the record.
	Create(ctx context.Context, identity *Identity) error

	// GetByID retrieves an identity by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Identity, error)

	// GetByIDForUpdate retrieves an identity by ID and locks it against
	// concurrent writers until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id ulid.ULID) (*Identity, error)

	// GetByUsername retrieves an identity by exact username.
	// Returns ErrNotFound if no identity has the given username.
	GetByUsername(ctx context.Context, username string) (*Identity, error)

	// GetByEmailAddress retrieves an identity by confirmed email address.
	// Returns ErrNotFound if no identity has confirmed the address.
	GetByEmailAddress(ctx context.Context, email string) (*Identity, error)

	// ListByUnconfirmedEmailAddress lists identities whose pending address
	// equals email. A non-empty username narrows the result to that username.
	ListByUnconfirmedEmailAddress(ctx context.Context, email, username string) ([]*Identity, error)

	// Update persists the identity's own fields. Credentials are managed
	// through CredentialRepository.
	Update(ctx context.Context, identity *Identity) error
}
