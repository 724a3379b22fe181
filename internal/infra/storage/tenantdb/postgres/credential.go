package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/docflow/internal/domain/credential"
)

var _ credential.Repository = (*credentialStore)(nil)

type credentialStore struct {
	tracer trace.Tracer
}

// NewCredentialStore creates a credential.Repository backed by the tenant
// database.
func NewCredentialStore(tracer trace.Tracer) credential.Repository {
	return &credentialStore{tracer: tracer}
}

// Create persists a new credential.
func (s *credentialStore) Create(ctx context.Context, c *credential.Credential) error {
	ctx, span := s.tracer.Start(ctx, "credentialStore.Create")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, `
		INSERT INTO credentials
			(id, scope_type, scope_id, key, encrypted_value, provider, expires_at, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, string(c.ScopeType), nullableText(c.ScopeID), c.Key, c.EncryptedValue,
		c.Provider, nullableTime(c.ExpiresAt), c.IsActive, c.CreatedAt,
	)
	return err
}

// Update modifies an existing credential.
func (s *credentialStore) Update(ctx context.Context, c *credential.Credential) error {
	ctx, span := s.tracer.Start(ctx, "credentialStore.Update")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `
		UPDATE credentials
		SET encrypted_value = $2, provider = $3, expires_at = $4, is_active = $5, updated_at = $6
		WHERE id = $1`,
		c.ID, c.EncryptedValue, c.Provider, nullableTime(c.ExpiresAt), c.IsActive, nullableTime(c.UpdatedAt),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return credential.ErrCredentialNotFound
	}
	return nil
}

// FindForScope retrieves the credential for (scopeType, scopeID, key).
// scopeID is ignored for the system scope.
func (s *credentialStore) FindForScope(ctx context.Context, scopeType credential.ScopeType, scopeID *string, key string) (*credential.Credential, error) {
	ctx, span := s.tracer.Start(ctx, "credentialStore.FindForScope")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return nil, err
	}

	var row pgx.Row
	if scopeType == credential.ScopeSystem {
		row = db.QueryRow(ctx, selectCredential+`
			WHERE scope_type = $1 AND key = $2
			ORDER BY created_at DESC
			LIMIT 1`, string(scopeType), key)
	} else {
		row = db.QueryRow(ctx, selectCredential+`
			WHERE scope_type = $1 AND scope_id = $2 AND key = $3
			ORDER BY created_at DESC
			LIMIT 1`, string(scopeType), nullableText(scopeID), key)
	}
	return scanCredential(row)
}

// TouchLastUsed records a resolution hit.
func (s *credentialStore) TouchLastUsed(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "credentialStore.TouchLastUsed")
	defer span.End()

	db, err := pool(ctx)
	if err != nil {
		return err
	}

	tag, err := db.Exec(ctx, `UPDATE credentials SET last_used_at = $2 WHERE id = $1`,
		id, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return credential.ErrCredentialNotFound
	}
	return nil
}

const selectCredential = `
	SELECT id, scope_type, scope_id, key, encrypted_value, provider,
	       expires_at, last_used_at, is_active, created_at, updated_at
	FROM credentials`

func scanCredential(row pgx.Row) (*credential.Credential, error) {
	var (
		c          credential.Credential
		scopeType  string
		scopeID    pgtype.Text
		expiresAt  pgtype.Timestamptz
		lastUsedAt pgtype.Timestamptz
		updatedAt  pgtype.Timestamptz
	)
	err := row.Scan(&c.ID, &scopeType, &scopeID, &c.Key, &c.EncryptedValue, &c.Provider,
		&expiresAt, &lastUsedAt, &c.IsActive, &c.CreatedAt, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, credential.ErrCredentialNotFound
		}
		return nil, err
	}

	c.ScopeType = credential.ScopeType(scopeType)
	c.ScopeID = textPtr(scopeID)
	c.ExpiresAt = timePtr(expiresAt)
	c.LastUsedAt = timePtr(lastUsedAt)
	c.UpdatedAt = timePtr(updatedAt)
	return &c, nil
}
