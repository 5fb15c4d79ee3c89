package auth

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mfolkes/portwarden/internal/errors"
	"github.com/mfolkes/portwarden/internal/logging"
)

// keySchema creates the api_keys table on first use.
const keySchema = `
CREATE TABLE IF NOT EXISTS api_keys (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	key_prefix TEXT NOT NULL,
	key_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_used_at TIMESTAMPTZ,
	expires_at TIMESTAMPTZ,
	is_active BOOLEAN NOT NULL DEFAULT true,
	usage_count INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_api_keys_prefix ON api_keys (key_prefix);
`

// KeyStore persists API keys in the portwarden database.
type KeyStore struct {
	db *sqlx.DB
}

// NewKeyStore wraps a database connection and ensures the api_keys table
// exists.
func NewKeyStore(ctx context.Context, db *sqlx.DB) (*KeyStore, error) {
	if _, err := db.ExecContext(ctx, keySchema); err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseMigration,
			"Failed to ensure api_keys schema", err)
	}
	return &KeyStore{db: db}, nil
}

// keyRow is the api_keys table row, including the hash that KeyInfo
// never exposes.
type keyRow struct {
	KeyInfo
	KeyHash string `db:"key_hash"`
}

// Create generates, hashes, and stores a new API key. The plaintext key
// is returned once and never persisted.
func (s *KeyStore) Create(ctx context.Context, name string, expiresAt *time.Time) (*GeneratedKey, error) {
	generated, err := GenerateKey(name)
	if err != nil {
		return nil, err
	}

	hash, err := HashKey(generated.Key)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	const query = `
		INSERT INTO api_keys (id, name, key_prefix, key_hash, expires_at)
		VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, query,
		id, name, generated.KeyPrefix, hash, expiresAt); err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseQuery,
			"Failed to store API key", err)
	}

	generated.KeyInfo.ID = id
	generated.KeyInfo.ExpiresAt = expiresAt
	logging.Info("API key created", "name", name, "prefix", generated.KeyPrefix)
	return generated, nil
}

// Validate checks a presented API key against the stored hashes. Keys
// are looked up by display prefix, then verified with bcrypt. A match
// bumps usage tracking.
func (s *KeyStore) Validate(ctx context.Context, apiKey string) (*KeyInfo, error) {
	if !IsValidKeyFormat(apiKey) {
		return nil, errors.NewAPIError(errors.CodeUnauthorized, "Invalid API key")
	}

	prefix := CreateDisplayPrefix(apiKey)

	var rows []keyRow
	const query = `
		SELECT id, name, key_prefix, key_hash, created_at,
		       last_used_at, expires_at, is_active, usage_count
		FROM api_keys
		WHERE key_prefix = $1 AND is_active = true`
	if err := s.db.SelectContext(ctx, &rows, query, prefix); err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseQuery,
			"Failed to look up API key", err)
	}

	for i := range rows {
		row := &rows[i]
		if !VerifyKey(apiKey, row.KeyHash) {
			continue
		}
		if row.IsExpired() {
			return nil, errors.NewAPIError(errors.CodeUnauthorized, "API key has expired")
		}
		s.touch(ctx, row.ID)
		info := row.KeyInfo
		return &info, nil
	}
	return nil, errors.NewAPIError(errors.CodeUnauthorized, "Invalid API key")
}

// touch records a successful use. Failures only log; validation already
// succeeded.
func (s *KeyStore) touch(ctx context.Context, id string) {
	const query = `
		UPDATE api_keys
		SET last_used_at = now(), usage_count = usage_count + 1
		WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		logging.ErrorDatabase("Failed to record API key use", err, "key_id", id)
	}
}

// List returns metadata for all keys, never hashes.
func (s *KeyStore) List(ctx context.Context) ([]KeyInfo, error) {
	var keys []KeyInfo
	const query = `
		SELECT id, name, key_prefix, created_at,
		       last_used_at, expires_at, is_active, usage_count
		FROM api_keys ORDER BY created_at DESC`
	if err := s.db.SelectContext(ctx, &keys, query); err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseQuery,
			"Failed to list API keys", err)
	}
	return keys, nil
}

// Revoke deactivates a key by ID.
func (s *KeyStore) Revoke(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE api_keys SET is_active = false WHERE id = $1`, id)
	if err != nil {
		return errors.WrapDatabaseError(errors.CodeDatabaseQuery,
			"Failed to revoke API key", err)
	}
	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return errors.NewAPIError(errors.CodeNotFound, "API key not found")
	}
	if err == sql.ErrNoRows {
		return errors.NewAPIError(errors.CodeNotFound, "API key not found")
	}
	logging.Info("API key revoked", "key_id", id)
	return nil
}
