// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// CredentialType names an authentication method. Types are compared
// case-insensitively.
type CredentialType string

// Credential type families.
const (
	PasswordCredentialPrefix = "password."
	ExternalCredentialPrefix = "external."
)

// Known password credential types.
const (
	CredentialTypePasswordArgon2id CredentialType = PasswordCredentialPrefix + AlgorithmArgon2id
	CredentialTypePasswordBcrypt   CredentialType = PasswordCredentialPrefix + AlgorithmBcrypt
)

// PasswordCredentialType returns the password credential type for algorithm.
func PasswordCredentialType(algorithm string) CredentialType {
	return CredentialType(PasswordCredentialPrefix + algorithm)
}

// ExternalCredentialType returns the credential type for an external
// provider token, e.g. "external.github".
func ExternalCredentialType(provider string) CredentialType {
	return CredentialType(ExternalCredentialPrefix + strings.ToLower(provider))
}

// IsPassword reports whether t belongs to the password family.
func (t CredentialType) IsPassword() bool {
	return len(t) >= len(PasswordCredentialPrefix) &&
		strings.EqualFold(string(t[:len(PasswordCredentialPrefix)]), PasswordCredentialPrefix)
}

// PasswordAlgorithm returns the hashing algorithm encoded in a password
// credential type, or "" for other families.
func (t CredentialType) PasswordAlgorithm() string {
	if !t.IsPassword() {
		return ""
	}
	return strings.ToLower(string(t[len(PasswordCredentialPrefix):]))
}

// Equal compares two types case-insensitively.
func (t CredentialType) Equal(other CredentialType) bool {
	return strings.EqualFold(string(t), string(other))
}

// Class returns the family of the type for metrics labels.
func (t CredentialType) Class() string {
	switch {
	case t.IsPassword():
		return "password"
	case strings.HasPrefix(strings.ToLower(string(t)), ExternalCredentialPrefix):
		return "external"
	default:
		return "other"
	}
}

// Credential is one authentication method bound to exactly one identity.
type Credential struct {
	ID         ulid.ULID
	IdentityID ulid.ULID
	Type       CredentialType
	Value      string
	CreatedAt  time.Time
}

// NewCredential creates a credential of the given type. The owning identity
// is assigned when the credential is attached.
func NewCredential(typ CredentialType, value string) (Credential, error) {
	if strings.TrimSpace(string(typ)) == "" {
		return Credential{}, invalidArgument("type", "credential type cannot be empty")
	}
	if value == "" {
		return Credential{}, invalidArgument("value", "credential value cannot be empty")
	}
	return Credential{
		ID:        ulid.Make(),
		Type:      typ,
		Value:     value,
		CreatedAt: time.Now(),
	}, nil
}

// CredentialRepository manages credential persistence.
type CredentialRepository interface {
	// FindByTypeAndValue returns the credential with exactly the given type
	// and value. Returns ErrNotFound when none matches.
	FindByTypeAndValue(ctx context.Context, typ CredentialType, value string) (*Credential, error)

	// ListByIdentity returns the credentials owned by an identity.
	ListByIdentity(ctx context.Context, identityID ulid.ULID) ([]Credential, error)

	// Replace removes every credential of cred.Type owned by cred.IdentityID
	// and stores cred. Readers observe either the old or the new set.
	Replace(ctx context.Context, cred Credential) error

	// Remove deletes every credential of typ owned by the identity.
	Remove(ctx context.Context, identityID ulid.ULID, typ CredentialType) error
}

// Transactor runs fn in a unit of work. Writes made through repositories
// using the context passed to fn are committed together when fn returns nil
// and discarded otherwise.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
