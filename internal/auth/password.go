// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"time"

	"github.com/samber/oops"
)

// Password sources, in priority order.
const (
	passwordSourceCredential = "credential"
	passwordSourceLegacy     = "legacy"
	passwordSourceNone       = "none"
)

type passwordSource struct {
	name      string
	hash      string
	algorithm string
}

// passwordSources lists where an identity's password may be stored. The
// password credential outranks the legacy embedded hash.
func passwordSources(identity *Identity) []passwordSource {
	var sources []passwordSource
	if cred, ok := identity.PasswordCredential(); ok {
		sources = append(sources, passwordSource{
			name:      passwordSourceCredential,
			hash:      cred.Value,
			algorithm: cred.Type.PasswordAlgorithm(),
		})
	}
	if identity.PasswordHash != nil && *identity.PasswordHash != "" {
		sources = append(sources, passwordSource{
			name:      passwordSourceLegacy,
			hash:      *identity.PasswordHash,
			algorithm: stringValue(identity.PasswordAlgorithm),
		})
	}
	return sources
}

// verifyPassword checks password against the highest-priority source only.
// A stored hash that cannot be verified counts as a mismatch and is logged.
func (c *core) verifyPassword(identity *Identity, password string) bool {
	sources := passwordSources(identity)
	if len(sources) == 0 {
		c.metrics.passwordChecked(passwordSourceNone, false)
		return false
	}
	src := sources[0]

	ok, err := c.deps.Crypto.Verify(password, src.hash, src.algorithm)
	if err != nil {
		c.logger.Warn("stored password hash cannot be verified",
			"identity_id", identity.ID.String(),
			"source", src.name,
			"algorithm", src.algorithm,
			"error", err,
		)
		ok = false
	}
	c.metrics.passwordChecked(src.name, ok)
	return ok
}

// hashPassword produces the legacy hash fields and a matching password
// credential for password.
func (c *core) hashPassword(password string) (hash, algorithm string, err error) {
	if password == "" {
		return "", "", invalidArgument("password", "password cannot be empty")
	}
	hash, err = c.deps.Crypto.Hash(password)
	if err != nil {
		return "", "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	return hash, c.deps.Crypto.Algorithm(), nil
}

// setPassword stores a hash produced by hashPassword in the legacy embedded
// fields. If the identity already carries a password credential, that
// credential is rotated too so the credential-first check cannot keep
// accepting the old secret. Must run inside a transaction on a freshly
// loaded identity; the caller persists the identity.
func (c *core) setPassword(ctx context.Context, identity *Identity, hash, algorithm string, now time.Time) error {
	identity.PasswordHash = &hash
	identity.PasswordAlgorithm = &algorithm
	identity.UpdatedAt = now

	if _, ok := identity.PasswordCredential(); !ok {
		return nil
	}

	cred, err := NewCredential(PasswordCredentialType(algorithm), hash)
	if err != nil {
		return err
	}
	cred.CreatedAt = now
	return c.replaceCredential(ctx, identity, cred)
}

// replaceCredential binds cred to identity and swaps it in for every
// credential of the same type. An identity holds one password credential,
// so a password credential also displaces those of other algorithms.
// Must run inside a transaction on an identity loaded within it.
func (c *core) replaceCredential(ctx context.Context, identity *Identity, cred Credential) error {
	cred.IdentityID = identity.ID
	if cred.Type.IsPassword() {
		var stale []CredentialType
		for _, existing := range identity.Credentials {
			if existing.Type.IsPassword() && !existing.Type.Equal(cred.Type) {
				stale = append(stale, existing.Type)
			}
		}
		for _, typ := range stale {
			if err := c.deps.Credentials.Remove(ctx, identity.ID, typ); err != nil {
				return err
			}
			identity.Credentials = withoutType(identity.Credentials, typ)
		}
	}
	if err := c.deps.Credentials.Replace(ctx, cred); err != nil {
		return err
	}
	identity.Credentials = append(withoutType(identity.Credentials, cred.Type), cred)
	c.metrics.credentialReplaced(cred.Type)
	return nil
}

func withoutType(creds []Credential, typ CredentialType) []Credential {
	out := make([]Credential, 0, len(creds))
	for _, c := range creds {
		if !c.Type.Equal(typ) {
			out = append(out, c)
		}
	}
	return out
}
