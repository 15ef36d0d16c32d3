// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth manages account identities, their credentials and the
// confirmation and reset tokens issued to them.
//
// # Domain Types
//
// An Identity is one account. It carries a unique username, a confirmed
// email address (nil until confirmed), a pending email address, a legacy
// embedded password hash and any number of typed Credentials. Credential
// types form families: "password.<algorithm>" for password hashes and
// "external.<provider>" for tokens issued elsewhere.
//
// # Services
//
// Services share a Deps bundle and are configured with Options:
//   - Registry - registration, lookups, profile and email address changes
//   - Authenticator - password and credential checks, credential
//     replacement, password changes
//   - TokenManager - email confirmation and password reset tokens
//
// Services are created with New* constructors that validate dependencies.
// Mismatched passwords and tokens are reported as a false or nil result,
// never as an error. Errors carry oops codes (see the Code* constants).
package auth
