// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/accounts/internal/auth"
	"github.com/holomush/accounts/pkg/errutil"
)

var identityColumnNames = []string{
	"id", "username", "email_address", "unconfirmed_email_address",
	"password_hash", "password_algorithm", "email_confirmation_token",
	"password_reset_token", "password_reset_expires_at", "email_allowed",
	"created_at", "updated_at",
}

var credentialColumnNames = []string{"id", "identity_id", "type", "value", "created_at"}

func strPtr(s string) *string { return &s }

func newMockDB(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func testIdentity() *auth.Identity {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	id := ulid.Make()
	return &auth.Identity{
		ID:                      id,
		Username:                "alice",
		UnconfirmedEmailAddress: strPtr("a@x.com"),
		PasswordHash:            strPtr("$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"),
		PasswordAlgorithm:       strPtr(auth.AlgorithmArgon2id),
		EmailConfirmationToken:  strPtr("confirm-token"),
		EmailAllowed:            true,
		Credentials: []auth.Credential{{
			ID:         ulid.Make(),
			IdentityID: id,
			Type:       auth.CredentialTypePasswordArgon2id,
			Value:      "$argon2id$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
			CreatedAt:  now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func identityRows(identities ...*auth.Identity) *pgxmock.Rows {
	rows := pgxmock.NewRows(identityColumnNames)
	for _, i := range identities {
		rows.AddRow(
			i.ID.String(), i.Username, i.EmailAddress, i.UnconfirmedEmailAddress,
			i.PasswordHash, i.PasswordAlgorithm, i.EmailConfirmationToken,
			i.PasswordResetToken, i.PasswordResetExpiresAt, i.EmailAllowed,
			i.CreatedAt, i.UpdatedAt,
		)
	}
	return rows
}

func credentialRows(creds ...auth.Credential) *pgxmock.Rows {
	rows := pgxmock.NewRows(credentialColumnNames)
	for _, c := range creds {
		rows.AddRow(c.ID.String(), c.IdentityID.String(), string(c.Type), c.Value, c.CreatedAt)
	}
	return rows
}

func TestIdentityRepository_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts identity and credentials in one transaction", func(t *testing.T) {
		mock := newMockDB(t)
		identity := testIdentity()

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO identities`).
			WithArgs(
				identity.ID.String(), "alice", (*string)(nil), identity.UnconfirmedEmailAddress,
				identity.PasswordHash, identity.PasswordAlgorithm, identity.EmailConfirmationToken,
				(*string)(nil), (*time.Time)(nil), true, identity.CreatedAt, identity.UpdatedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO credentials`).
			WithArgs(
				identity.Credentials[0].ID.String(), identity.ID.String(),
				"password.argon2id", identity.Credentials[0].Value, identity.Credentials[0].CreatedAt,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		err := NewIdentityRepository(mock).Create(ctx, identity)
		require.NoError(t, err)
	})

	t.Run("maps username constraint to duplicate username", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO identities`).
			WillReturnError(&pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "identities_username_key",
			})
		mock.ExpectRollback()

		err := NewIdentityRepository(mock).Create(ctx, testIdentity())
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrDuplicateUsername)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateUsername)
	})

	t.Run("maps email constraint to duplicate email", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO identities`).
			WillReturnError(&pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "identities_email_address_key",
			})
		mock.ExpectRollback()

		err := NewIdentityRepository(mock).Create(ctx, testIdentity())
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
	})

	t.Run("rolls back when credential insert fails", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO identities`).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO credentials`).
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := NewIdentityRepository(mock).Create(ctx, testIdentity())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "disk full")
	})

	t.Run("joins the transaction in context", func(t *testing.T) {
		mock := newMockDB(t)
		repo := NewIdentityRepository(mock)

		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO identities`).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(`INSERT INTO credentials`).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		err := NewTransactor(mock).InTransaction(ctx, func(ctx context.Context) error {
			return repo.Create(ctx, testIdentity())
		})
		require.NoError(t, err)
	})
}

func TestIdentityRepository_GetByUsername(t *testing.T) {
	ctx := context.Background()

	t.Run("returns identity with credentials", func(t *testing.T) {
		mock := newMockDB(t)
		identity := testIdentity()

		mock.ExpectQuery(`FROM identities WHERE username = \$1`).
			WithArgs("alice").
			WillReturnRows(identityRows(identity))
		mock.ExpectQuery(`FROM credentials\s+WHERE identity_id = \$1`).
			WithArgs(identity.ID.String()).
			WillReturnRows(credentialRows(identity.Credentials...))

		got, err := NewIdentityRepository(mock).GetByUsername(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, identity.ID, got.ID)
		assert.Equal(t, "alice", got.Username)
		assert.Nil(t, got.EmailAddress)
		require.NotNil(t, got.UnconfirmedEmailAddress)
		assert.Equal(t, "a@x.com", *got.UnconfirmedEmailAddress)
		require.Len(t, got.Credentials, 1)
		assert.Equal(t, auth.CredentialTypePasswordArgon2id, got.Credentials[0].Type)
		assert.Equal(t, identity.ID, got.Credentials[0].IdentityID)
	})

	t.Run("returns not found for unknown username", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectQuery(`FROM identities WHERE username = \$1`).
			WithArgs("nobody").
			WillReturnRows(pgxmock.NewRows(identityColumnNames))

		got, err := NewIdentityRepository(mock).GetByUsername(ctx, "nobody")
		require.Error(t, err)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, auth.ErrNotFound)
		errutil.AssertErrorCode(t, err, auth.CodeNotFound)
	})

	t.Run("wraps query failure", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectQuery(`FROM identities WHERE username = \$1`).
			WillReturnError(errors.New("connection refused"))

		_, err := NewIdentityRepository(mock).GetByUsername(ctx, "alice")
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
		assert.Contains(t, err.Error(), "connection refused")
	})
}

func TestIdentityRepository_GetByIDForUpdate(t *testing.T) {
	ctx := context.Background()

	t.Run("locks the row inside the transaction", func(t *testing.T) {
		mock := newMockDB(t)
		identity := testIdentity()

		mock.ExpectBegin()
		mock.ExpectQuery(`FROM identities WHERE id = \$1 FOR UPDATE`).
			WithArgs(identity.ID.String()).
			WillReturnRows(identityRows(identity))
		mock.ExpectQuery(`FROM credentials\s+WHERE identity_id = \$1`).
			WithArgs(identity.ID.String()).
			WillReturnRows(credentialRows(identity.Credentials...))
		mock.ExpectCommit()

		repo := NewIdentityRepository(mock)
		var got *auth.Identity
		err := NewTransactor(mock).InTransaction(ctx, func(ctx context.Context) error {
			var err error
			got, err = repo.GetByIDForUpdate(ctx, identity.ID)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, identity.ID, got.ID)
		require.Len(t, got.Credentials, 1)
	})

	t.Run("returns not found for unknown id", func(t *testing.T) {
		mock := newMockDB(t)
		id := ulid.Make()

		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(identityColumnNames))

		_, err := NewIdentityRepository(mock).GetByIDForUpdate(ctx, id)
		errutil.AssertDomainError(t, err, auth.CodeNotFound, auth.ErrNotFound)
	})
}

func TestIdentityRepository_GetByEmailAddress(t *testing.T) {
	mock := newMockDB(t)
	identity := testIdentity()
	identity.EmailAddress = strPtr("a@x.com")
	identity.UnconfirmedEmailAddress = nil
	expires := identity.CreatedAt.Add(time.Hour)
	identity.PasswordResetToken = strPtr("reset-token")
	identity.PasswordResetExpiresAt = &expires

	mock.ExpectQuery(`FROM identities WHERE email_address = \$1`).
		WithArgs("a@x.com").
		WillReturnRows(identityRows(identity))
	mock.ExpectQuery(`FROM credentials`).
		WillReturnRows(credentialRows())

	got, err := NewIdentityRepository(mock).GetByEmailAddress(context.Background(), "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, got.EmailAddress)
	assert.Equal(t, "a@x.com", *got.EmailAddress)
	require.NotNil(t, got.PasswordResetExpiresAt)
	assert.True(t, expires.Equal(*got.PasswordResetExpiresAt))
	assert.Empty(t, got.Credentials)
}

func TestIdentityRepository_ListByUnconfirmedEmailAddress(t *testing.T) {
	mock := newMockDB(t)
	first := testIdentity()
	second := testIdentity()
	second.Username = "bob"
	second.Credentials = nil

	mock.ExpectQuery(`WHERE unconfirmed_email_address = \$1`).
		WithArgs("a@x.com", "").
		WillReturnRows(identityRows(first, second))
	mock.ExpectQuery(`FROM credentials`).
		WithArgs(first.ID.String()).
		WillReturnRows(credentialRows(first.Credentials...))
	mock.ExpectQuery(`FROM credentials`).
		WithArgs(second.ID.String()).
		WillReturnRows(credentialRows())

	got, err := NewIdentityRepository(mock).ListByUnconfirmedEmailAddress(context.Background(), "a@x.com", "")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "alice", got[0].Username)
	assert.Len(t, got[0].Credentials, 1)
	assert.Equal(t, "bob", got[1].Username)
	assert.Empty(t, got[1].Credentials)
}

func TestIdentityRepository_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("updates identity fields", func(t *testing.T) {
		mock := newMockDB(t)
		identity := testIdentity()

		mock.ExpectExec(`UPDATE identities SET`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, NewIdentityRepository(mock).Update(ctx, identity))
	})

	t.Run("returns not found when no row matches", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectExec(`UPDATE identities SET`).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := NewIdentityRepository(mock).Update(ctx, testIdentity())
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)
	})

	t.Run("maps confirmed email conflict", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectExec(`UPDATE identities SET`).
			WillReturnError(&pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "identities_email_address_key",
			})

		err := NewIdentityRepository(mock).Update(ctx, testIdentity())
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrDuplicateEmail)
		errutil.AssertErrorCode(t, err, auth.CodeDuplicateEmail)
	})

	t.Run("wraps other failures without a domain code", func(t *testing.T) {
		mock := newMockDB(t)

		mock.ExpectExec(`UPDATE identities SET`).
			WillReturnError(&pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: "identities_reset_token_pair"})

		err := NewIdentityRepository(mock).Update(ctx, testIdentity())
		require.Error(t, err)
		assert.NotErrorIs(t, err, auth.ErrDuplicateEmail)
		assert.NotErrorIs(t, err, auth.ErrNotFound)
	})
}
