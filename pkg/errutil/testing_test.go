// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package errutil_test

import (
	"errors"
	"testing"

	"github.com/samber/oops"

	"github.com/holomush/accounts/pkg/errutil"
)

func TestAssertErrorCode_MatchingCode(t *testing.T) {
	err := oops.Code("NOT_FOUND").Errorf("identity missing")
	errutil.AssertErrorCode(t, err, "NOT_FOUND")
}

func TestAssertErrorContext_MatchingKeyValue(t *testing.T) {
	err := oops.With("identity_id", "01J").Errorf("test error")
	errutil.AssertErrorContext(t, err, "identity_id", "01J")
}

func TestAssertDomainError(t *testing.T) {
	sentinel := errors.New("email address already in use")
	err := oops.Code("DUPLICATE_EMAIL").Wrap(sentinel)
	errutil.AssertDomainError(t, err, "DUPLICATE_EMAIL", sentinel)
}
