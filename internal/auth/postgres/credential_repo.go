// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/accounts/internal/auth"
)

// CredentialRepository implements auth.CredentialRepository using PostgreSQL.
type CredentialRepository struct {
	db DB
}

// NewCredentialRepository creates a new CredentialRepository.
func NewCredentialRepository(db DB) *CredentialRepository {
	return &CredentialRepository{db: db}
}

// FindByTypeAndValue returns the oldest credential with the given type and
// exact value. Types compare case-insensitively.
func (r *CredentialRepository) FindByTypeAndValue(ctx context.Context, typ auth.CredentialType, value string) (*auth.Credential, error) {
	row := conn(ctx, r.db).QueryRow(ctx, `
		SELECT id, identity_id, type, value, created_at
		FROM credentials
		WHERE LOWER(type) = LOWER($1) AND value = $2
		ORDER BY created_at, id
		LIMIT 1
	`, string(typ), value)

	cred, err := scanCredential(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code(auth.CodeNotFound).
			With("type", string(typ)).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.With("operation", "find credential").With("type", string(typ)).Wrap(err)
	}
	return cred, nil
}

// ListByIdentity returns the credentials owned by an identity.
func (r *CredentialRepository) ListByIdentity(ctx context.Context, identityID ulid.ULID) ([]auth.Credential, error) {
	return r.list(ctx, conn(ctx, r.db), identityID)
}

// Replace deletes every credential of cred.Type owned by cred.IdentityID
// and inserts cred in the same transaction.
func (r *CredentialRepository) Replace(ctx context.Context, cred auth.Credential) error {
	return withTx(ctx, r.db, func(ctx context.Context, q querier) error {
		if err := r.remove(ctx, q, cred.IdentityID, cred.Type); err != nil {
			return err
		}
		return r.insert(ctx, q, cred)
	})
}

// Remove deletes every credential of typ owned by the identity.
func (r *CredentialRepository) Remove(ctx context.Context, identityID ulid.ULID, typ auth.CredentialType) error {
	return r.remove(ctx, conn(ctx, r.db), identityID, typ)
}

func (r *CredentialRepository) remove(ctx context.Context, q querier, identityID ulid.ULID, typ auth.CredentialType) error {
	_, err := q.Exec(ctx, `
		DELETE FROM credentials WHERE identity_id = $1 AND LOWER(type) = LOWER($2)
	`, identityID.String(), string(typ))
	if err != nil {
		return oops.With("operation", "delete credentials").
			With("identity_id", identityID.String()).
			With("type", string(typ)).
			Wrap(err)
	}
	return nil
}

func (r *CredentialRepository) insert(ctx context.Context, q querier, cred auth.Credential) error {
	if cred.ID == (ulid.ULID{}) {
		cred.ID = ulid.Make()
	}
	_, err := q.Exec(ctx, `
		INSERT INTO credentials (id, identity_id, type, value, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, cred.ID.String(), cred.IdentityID.String(), string(cred.Type), cred.Value, cred.CreatedAt)
	if err != nil {
		if missingIdentity(err) {
			return auth.NotFound("identity", cred.IdentityID.String())
		}
		return oops.With("operation", "insert credential").
			With("identity_id", cred.IdentityID.String()).
			With("type", string(cred.Type)).
			Wrap(err)
	}
	return nil
}

func (r *CredentialRepository) list(ctx context.Context, q querier, identityID ulid.ULID) ([]auth.Credential, error) {
	rows, err := q.Query(ctx, `
		SELECT id, identity_id, type, value, created_at
		FROM credentials
		WHERE identity_id = $1
		ORDER BY created_at, id
	`, identityID.String())
	if err != nil {
		return nil, oops.With("operation", "list credentials").
			With("identity_id", identityID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var creds []auth.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, *cred)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.With("operation", "iterate credentials").Wrap(err)
	}
	return creds, nil
}

// scanCredential scans one row. Callers are responsible for handling
// pgx.ErrNoRows.
func scanCredential(row pgx.Row) (*auth.Credential, error) {
	var (
		idStr, identityIDStr, typ string
		cred                      auth.Credential
	)
	if err := row.Scan(&idStr, &identityIDStr, &typ, &cred.Value, &cred.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // callers wrap with lookup context
		}
		return nil, oops.With("operation", "scan credential").Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.With("operation", "parse credential id").With("id", idStr).Wrap(err)
	}
	identityID, err := ulid.Parse(identityIDStr)
	if err != nil {
		return nil, oops.With("operation", "parse credential identity id").With("identity_id", identityIDStr).Wrap(err)
	}
	cred.ID = id
	cred.IdentityID = identityID
	cred.Type = auth.CredentialType(typ)
	return &cred, nil
}

var _ auth.CredentialRepository = (*CredentialRepository)(nil)
