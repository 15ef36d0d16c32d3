// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"

	"github.com/samber/oops"
)

// DefaultTokenBytes is the entropy of generated tokens: 32 bytes = 64 hex chars.
const DefaultTokenBytes = 32

// TokenGenerator produces unpredictable opaque tokens for confirmation and
// reset flows. Tokens are treated as unique without a storage re-check.
type TokenGenerator interface {
	GenerateToken() (string, error)
}

// RandomTokenGenerator reads tokens from crypto/rand and hex-encodes them.
type RandomTokenGenerator struct {
	Bytes int
}

// NewRandomTokenGenerator creates a generator producing tokens of n random
// bytes. Non-positive n selects DefaultTokenBytes.
func NewRandomTokenGenerator(n int) RandomTokenGenerator {
	if n <= 0 {
		n = DefaultTokenBytes
	}
	return RandomTokenGenerator{Bytes: n}
}

// GenerateToken returns a new hex-encoded random token.
func (g RandomTokenGenerator) GenerateToken() (string, error) {
	n := g.Bytes
	if n <= 0 {
		n = DefaultTokenBytes
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", oops.Code("TOKEN_GENERATE_FAILED").
			With("operation", "crypto/rand.Read").
			With("requested_bytes", n).
			Wrap(err)
	}
	return hex.EncodeToString(b), nil
}

// Crypto is the capability object handed to the services: password hashing
// plus token generation.
type Crypto interface {
	PasswordHasher
	TokenGenerator
}

type crypto struct {
	PasswordHasher
	TokenGenerator
}

// NewCrypto combines a hasher and a token generator into a Crypto.
func NewCrypto(hasher PasswordHasher, tokens TokenGenerator) Crypto {
	return crypto{PasswordHasher: hasher, TokenGenerator: tokens}
}

// DefaultCrypto returns argon2id hashing with 32-byte random tokens.
func DefaultCrypto() Crypto {
	return NewCrypto(NewArgon2idHasher(), NewRandomTokenGenerator(DefaultTokenBytes))
}

// tokensEqual compares a presented token with a stored one in constant time.
// A missing or empty stored token never matches.
func tokensEqual(stored *string, presented string) bool {
	if stored == nil || *stored == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(presented)) == 1
}
