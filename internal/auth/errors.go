// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Error codes attached to every oops error returned by this package.
const (
	CodeInvalidArgument   = "INVALID_ARGUMENT"
	CodeDuplicateUsername = "DUPLICATE_USERNAME"
	CodeDuplicateEmail    = "DUPLICATE_EMAIL"
	CodeNotConfirmed      = "NOT_CONFIRMED"
	CodeNotFound          = "NOT_FOUND"
	CodeStoreFailure      = "STORE_FAILURE"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidArgument marks caller misuse: nil, empty or out-of-range input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDuplicateUsername is returned when the username is already taken.
	ErrDuplicateUsername = errors.New("username already taken")

	// ErrDuplicateEmail is returned when another identity already owns the
	// email address as its confirmed address.
	ErrDuplicateEmail = errors.New("email address already in use")

	// ErrNotConfirmed is returned when an operation requires a confirmed identity.
	ErrNotConfirmed = errors.New("email address not confirmed")
)

func invalidArgument(argument, format string, args ...any) error {
	return oops.Code(CodeInvalidArgument).
		With("argument", argument).
		Wrapf(ErrInvalidArgument, format, args...)
}

// DuplicateUsername builds the error reported when username is taken.
// Repository implementations use it when a storage constraint fires.
func DuplicateUsername(username string) error {
	return oops.Code(CodeDuplicateUsername).
		With("username", username).
		Wrapf(ErrDuplicateUsername, "username %q is already taken", username)
}

// DuplicateEmail builds the error reported when an email address is owned
// by another identity.
func DuplicateEmail() error {
	return oops.Code(CodeDuplicateEmail).Wrap(ErrDuplicateEmail)
}

func notConfirmed(identity *Identity) error {
	return oops.Code(CodeNotConfirmed).
		With("identity_id", identity.ID.String()).
		Wrap(ErrNotConfirmed)
}

// NotFound builds the error reported when resource identified by key does
// not exist.
func NotFound(resource, key string) error {
	return oops.Code(CodeNotFound).
		With("resource", resource).
		With("key", key).
		Wrap(ErrNotFound)
}

// storeFailure wraps an error raised by a repository or transactor. Domain
// errors raised inside a transaction pass through untouched.
func storeFailure(operation string, err error) error {
	if isDomainError(err) {
		return err
	}
	return oops.Code(CodeStoreFailure).
		With("operation", operation).
		Wrap(err)
}

func isDomainError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrDuplicateUsername) ||
		errors.Is(err, ErrDuplicateEmail) ||
		errors.Is(err, ErrNotConfirmed) ||
		errors.Is(err, ErrNotFound)
}
