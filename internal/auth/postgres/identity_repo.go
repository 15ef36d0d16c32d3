// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

const identityColumns = `id, username, email_address, unconfirmed_email_address,
		       password_hash, password_algorithm, email_confirmation_token,
		       password_reset_token, password_reset_expires_at, email_allowed,
		       created_at, updated_at`

// IdentityRepository implements auth.IdentityRepository using PostgreSQL.
type IdentityRepository struct {
	db          DB
	credentials *CredentialRepository
}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository(db DB) *IdentityRepository {
	return &IdentityRepository{db: db, credentials: NewCredentialRepository(db)}
}

// Create stores a new identity and its credentials in one transaction.
func (r *IdentityRepository) Create(ctx context.Context, identity *auth.Identity) error {
	return withTx(ctx, r.db, func(ctx context.Context, q querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO identities (
				id, username, email_address, unconfirmed_email_address,
				password_hash, password_algorithm, email_confirmation_token,
				password_reset_token, password_reset_expires_at, email_allowed,
				created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			identity.ID.String(),
			identity.Username,
			identity.EmailAddress,
			identity.UnconfirmedEmailAddress,
			identity.PasswordHash,
			identity.PasswordAlgorithm,
			identity.EmailConfirmationToken,
			identity.PasswordResetToken,
			identity.PasswordResetExpiresAt,
			identity.EmailAllowed,
			identity.CreatedAt,
			identity.UpdatedAt,
		)
		if err != nil {
			if domainErr := uniqueViolation(err, identity.Username); domainErr != nil {
				return domainErr
			}
			return oops.With("operation", "insert identity").
				With("username", identity.Username).
				Wrap(err)
		}

		for i := range identity.Credentials {
			cred := identity.Credentials[i]
			cred.IdentityID = identity.ID
			if err := r.credentials.insert(ctx, q, cred); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetByID retrieves an identity by ID.
func (r *IdentityRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	q := conn(ctx, r.db)
	row := q.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id.String())
	return r.getOne(ctx, q, row, "id", id.String())
}

// GetByIDForUpdate retrieves an identity by ID with a row lock held until
// the transaction in ctx ends.
func (r *IdentityRepository) GetByIDForUpdate(ctx context.Context, id ulid.ULID) (*auth.Identity, error) {
	q := conn(ctx, r.db)
	row := q.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1 FOR UPDATE`, id.String())
	return r.getOne(ctx, q, row, "id", id.String())
}

// GetByUsername retrieves an identity by exact username.
func (r *IdentityRepository) GetByUsername(ctx context.Context, username string) (*auth.Identity, error) {
	q := conn(ctx, r.db)
	row := q.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE username = $1`, username)
	return r.getOne(ctx, q, row, "username", username)
}

// GetByEmailAddress retrieves an identity by confirmed email address.
func (r *IdentityRepository) GetByEmailAddress(ctx context.Context, email string) (*auth.Identity, error) {
	q := conn(ctx, r.db)
	row := q.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE email_address = $1`, email)
	return r.getOne(ctx, q, row, "email_address", email)
}

func (r *IdentityRepository) getOne(ctx context.Context, q querier, row pgx.Row, field, key string) (*auth.Identity, error) {
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeNotFound).
			With("field", field).
			With("key", key).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "get identity by "+field).Wrap(err)
	}
	if identity.Credentials, err = r.credentials.list(ctx, q, identity.ID); err != nil {
		return nil, err
	}
	return identity, nil
}

// ListByUnconfirmedEmailAddress lists identities with email pending,
// oldest first. A non-empty username narrows the result.
func (r *IdentityRepository) ListByUnconfirmedEmailAddress(ctx context.Context, email, username string) ([]*auth.Identity, error) {
	q := conn(ctx, r.db)
	rows, err := q.Query(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE unconfirmed_email_address = $1 AND ($2 = '' OR username = $2)
		ORDER BY created_at, id
	`, email, username)
	if err != nil {
		return nil, oops.With("operation", "list identities by unconfirmed email address").Wrap(err)
	}

	var identities []*auth.Identity
	for rows.Next() {
		identity, err := scanIdentity(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		identities = append(identities, identity)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate identities").Wrap(err)
	}

	// Credentials are loaded after the result set is closed; a
	// transaction's connection serves one query at a time.
	for _, identity := range identities {
		if identity.Credentials, err = r.credentials.list(ctx, q, identity.ID); err != nil {
			return nil, err
		}
	}
	return identities, nil
}

// Update persists the identity's own fields.
func (r *IdentityRepository) Update(ctx context.Context, identity *auth.Identity) error {
	result, err := conn(ctx, r.db).Exec(ctx, `
		UPDATE identities SET
			username = $2,
			email_address = $3,
			unconfirmed_email_address = $4,
			password_hash = $5,
			password_algorithm = $6,
			email_confirmation_token = $7,
			password_reset_token = $8,
			password_reset_expires_at = $9,
			email_allowed = $10,
			updated_at = $11
		WHERE id = $1
	`,
		identity.ID.String(),
		identity.Username,
		identity.EmailAddress,
		identity.UnconfirmedEmailAddress,
		identity.PasswordHash,
		identity.PasswordAlgorithm,
		identity.EmailConfirmationToken,
		identity.PasswordResetToken,
		identity.PasswordResetExpiresAt,
		identity.EmailAllowed,
		identity.UpdatedAt,
	)
	if err != nil {
		if domainErr := uniqueViolation(err, identity.Username); domainErr != nil {
			return domainErr
		}
		return oops.With("operation", "update identity").
			With("identity_id", identity.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return auth.NotFound("identity", identity.ID.String())
	}
	return nil
}

// scanIdentity scans one row without credentials.
// Callers are responsible for handling pgx.ErrNoRows.
func scanIdentity(row pgx.Row) (*auth.Identity, error) {
	var (
		idStr     string
		identity  auth.Identity
		expiresAt *time.Time
	)
	err := row.Scan(
		&idStr,
		&identity.Username,
		&identity.EmailAddress,
		&identity.UnconfirmedEmailAddress,
		&identity.PasswordHash,
		&identity.PasswordAlgorithm,
		&identity.EmailConfirmationToken,
		&identity.PasswordResetToken,
		&expiresAt,
		&identity.EmailAllowed,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.With("operation", "scan identity").Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse identity id").With("id", idStr).Wrap(err)
	}
	identity.ID = id
	identity.PasswordResetExpiresAt = expiresAt
	return &identity, nil
}

var _ auth.IdentityRepository = (*IdentityRepository)(nil)
