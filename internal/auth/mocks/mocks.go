// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify mocks for the auth crypto collaborators.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/holomush/accounts/internal/auth"
)

// TestingT is the part of *testing.T the constructors need.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

// PasswordHasher is a mock for auth.PasswordHasher.
type PasswordHasher struct {
	mock.Mock
}

// NewPasswordHasher creates a PasswordHasher whose expectations are
// asserted when the test ends.
func NewPasswordHasher(t TestingT) *PasswordHasher {
	m := &PasswordHasher{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *PasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *PasswordHasher) Verify(password, encodedHash, algorithm string) (bool, error) {
	args := m.Called(password, encodedHash, algorithm)
	return args.Bool(0), args.Error(1)
}

func (m *PasswordHasher) Algorithm() string {
	return m.Called().String(0)
}

// TokenGenerator is a mock for auth.TokenGenerator.
type TokenGenerator struct {
	mock.Mock
}

// NewTokenGenerator creates a TokenGenerator whose expectations are
// asserted when the test ends.
func NewTokenGenerator(t TestingT) *TokenGenerator {
	m := &TokenGenerator{}
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *TokenGenerator) GenerateToken() (string, error) {
	args := m.Called()
	return args.String(0), args.Error(1)
}

var (
	_ auth.PasswordHasher = (*PasswordHasher)(nil)
	_ auth.TokenGenerator = (*TokenGenerator)(nil)
)
