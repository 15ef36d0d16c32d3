// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Algorithm identifiers stored next to password hashes.
const (
	AlgorithmArgon2id = "argon2id"
	AlgorithmBcrypt   = "bcrypt"
)

// Argon2Params configures argon2id hashing.
type Argon2Params struct {
	Memory    uint32 // KiB
	Time      uint32 // iterations
	Threads   uint8  // parallelism
	SaltLen   uint32 // bytes
	KeyLength uint32 // bytes
}

// Lower bounds accepted by NewArgon2idHasherWithParams.
const (
	minArgon2Memory  = 8 * 1024
	minArgon2SaltLen = 16
	minArgon2KeyLen  = 16
)

// DefaultArgon2Params returns the OWASP-recommended argon2id parameters.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:    64 * 1024,
		Time:      1,
		Threads:   4,
		SaltLen:   16,
		KeyLength: 32,
	}
}

// Validate rejects parameters weaker than the accepted lower bounds.
func (p Argon2Params) Validate() error {
	if p.Memory < minArgon2Memory {
		return invalidArgument("memory", "argon2 memory must be at least %d KiB", minArgon2Memory)
	}
	if p.Time < 1 {
		return invalidArgument("time", "argon2 time must be at least 1")
	}
	if p.Threads < 1 {
		return invalidArgument("threads", "argon2 threads must be at least 1")
	}
	if p.SaltLen < minArgon2SaltLen {
		return invalidArgument("salt_len", "argon2 salt must be at least %d bytes", minArgon2SaltLen)
	}
	if p.KeyLength < minArgon2KeyLen {
		return invalidArgument("key_length", "argon2 key must be at least %d bytes", minArgon2KeyLen)
	}
	return nil
}

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher produces and verifies salted, algorithm-tagged password
// hashes.
type PasswordHasher interface {
	// Hash produces a hash of the password with a fresh random salt using
	// the algorithm reported by Algorithm.
	Hash(password string) (string, error)

	// Verify checks the password against a hash produced by algorithm.
	// An empty algorithm is inferred from the hash encoding.
	// Returns (true, nil) on match, (false, nil) on mismatch, or error on invalid hash.
	Verify(password, encodedHash, algorithm string) (bool, error)

	// Algorithm returns the identifier of the algorithm used by Hash.
	Algorithm() string
}

// Argon2idHasher hashes with argon2id and verifies argon2id and legacy
// bcrypt hashes.
type Argon2idHasher struct {
	params Argon2Params
}

// NewArgon2idHasher creates a hasher with DefaultArgon2Params.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{params: DefaultArgon2Params()}
}

// NewArgon2idHasherWithParams creates a hasher with custom parameters.
func NewArgon2idHasherWithParams(params Argon2Params) (*Argon2idHasher, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &Argon2idHasher{params: params}, nil
}

// Algorithm returns AlgorithmArgon2id.
func (h *Argon2idHasher) Algorithm() string {
	return AlgorithmArgon2id
}

// Hash produces an argon2id hash of the password.
func (h *Argon2idHasher) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	salt := make([]byte, h.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLength)

	// $argon2id$v=19$m=65536,t=1,p=4$<salt>$<hash>
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify checks if the password matches the hash.
func (h *Argon2idHasher) Verify(password, encodedHash, algorithm string) (bool, error) {
	if algorithm == "" {
		algorithm = DetectAlgorithm(encodedHash)
	}
	switch strings.ToLower(algorithm) {
	case AlgorithmArgon2id:
		return verifyArgon2id(password, encodedHash)
	case AlgorithmBcrypt:
		return verifyBcrypt(password, encodedHash)
	default:
		return false, oops.Code("AUTH_INVALID_HASH").
			With("algorithm", algorithm).
			Errorf("unsupported hash algorithm: %s", algorithm)
	}
}

// NeedsUpgrade returns true if the hash was not produced by argon2id.
func (h *Argon2idHasher) NeedsUpgrade(encodedHash string) bool {
	return DetectAlgorithm(encodedHash) != AlgorithmArgon2id
}

// DetectAlgorithm infers the algorithm identifier from a hash encoding.
// Returns "" when the encoding is not recognised.
func DetectAlgorithm(encodedHash string) string {
	switch {
	case strings.HasPrefix(encodedHash, "$argon2id$"):
		return AlgorithmArgon2id
	case strings.HasPrefix(encodedHash, "$2a$"),
		strings.HasPrefix(encodedHash, "$2b$"),
		strings.HasPrefix(encodedHash, "$2y$"):
		return AlgorithmBcrypt
	default:
		return ""
	}
}

func verifyArgon2id(password, encodedHash string) (bool, error) {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 6 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash format")
	}

	if parts[1] != AlgorithmArgon2id {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported hash algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}
	if version != argon2.Version {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("unsupported argon2 version: %d", version)
	}

	var memory, iterations, threads uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &threads); err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false, oops.Code("AUTH_INVALID_HASH").Wrap(err)
	}

	// Validate threads fits in uint8 to prevent silent truncation
	if threads == 0 || threads > 255 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid threads value %d", threads)
	}

	keyLen := len(expected)
	if keyLen == 0 || keyLen > 1<<30 {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("invalid hash key length: %d", keyLen)
	}

	computed := argon2.IDKey([]byte(password), salt, iterations, memory, uint8(threads), uint32(keyLen))

	return subtle.ConstantTimeCompare(computed, expected) == 1, nil
}

// verifyBcrypt relies on bcrypt's own constant-time comparison.
func verifyBcrypt(password, encodedHash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, oops.Code("AUTH_INVALID_HASH").With("algorithm", AlgorithmBcrypt).Wrap(err)
}
