package auth

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfolkes/portwarden/internal/errors"
)

func newMockKeyStore(t *testing.T) (*KeyStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS api_keys`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewKeyStore(context.Background(), sqlx.NewDb(db, "postgres"))
	require.NoError(t, err)
	return store, mock
}

func TestKeyStoreCreate(t *testing.T) {
	store, mock := newMockKeyStore(t)

	mock.ExpectExec(`INSERT INTO api_keys`).
		WithArgs(sqlmock.AnyArg(), "deploy-bot", sqlmock.AnyArg(),
			sqlmock.AnyArg(), nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	generated, err := store.Create(context.Background(), "deploy-bot", nil)
	require.NoError(t, err)

	assert.NotEmpty(t, generated.Key)
	assert.NotEmpty(t, generated.KeyInfo.ID)
	assert.Equal(t, "deploy-bot", generated.KeyInfo.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestKeyStoreValidate(t *testing.T) {
	store, mock := newMockKeyStore(t)

	generated, err := GenerateKey("ops")
	require.NoError(t, err)
	hash, err := HashKey(generated.Key)
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"id", "name", "key_prefix", "key_hash", "created_at",
		"last_used_at", "expires_at", "is_active", "usage_count",
	}).AddRow("key-1", "ops", generated.KeyPrefix, hash, time.Now(),
		nil, nil, true, 3)

	mock.ExpectQuery(`SELECT id, name, key_prefix, key_hash`).
		WithArgs(generated.KeyPrefix).
		WillReturnRows(rows)
	mock.ExpectExec(`UPDATE api_keys`).
		WithArgs("key-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	info, err := store.Validate(context.Background(), generated.Key)
	require.NoError(t, err)
	assert.Equal(t, "key-1", info.ID)
	assert.Equal(t, "ops", info.Name)
}

func TestKeyStoreValidateWrongKey(t *testing.T) {
	store, mock := newMockKeyStore(t)

	other, err := GenerateKey("other")
	require.NoError(t, err)
	otherHash, err := HashKey(other.Key)
	require.NoError(t, err)

	presented, err := GenerateKey("presented")
	require.NoError(t, err)

	rows := sqlmock.NewRows([]string{
		"id", "name", "key_prefix", "key_hash", "created_at",
		"last_used_at", "expires_at", "is_active", "usage_count",
	}).AddRow("key-2", "other", presented.KeyPrefix, otherHash, time.Now(),
		nil, nil, true, 0)

	mock.ExpectQuery(`SELECT id, name, key_prefix, key_hash`).
		WillReturnRows(rows)

	_, err = store.Validate(context.Background(), presented.Key)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnauthorized))
}

func TestKeyStoreValidateExpired(t *testing.T) {
	store, mock := newMockKeyStore(t)

	generated, err := GenerateKey("expired")
	require.NoError(t, err)
	hash, err := HashKey(generated.Key)
	require.NoError(t, err)

	past := time.Now().UTC().Add(-time.Hour)
	rows := sqlmock.NewRows([]string{
		"id", "name", "key_prefix", "key_hash", "created_at",
		"last_used_at", "expires_at", "is_active", "usage_count",
	}).AddRow("key-3", "expired", generated.KeyPrefix, hash, time.Now(),
		nil, past, true, 0)

	mock.ExpectQuery(`SELECT id, name, key_prefix, key_hash`).
		WillReturnRows(rows)

	_, err = store.Validate(context.Background(), generated.Key)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnauthorized))
}

func TestKeyStoreValidateBadFormat(t *testing.T) {
	store, _ := newMockKeyStore(t)

	// No SQL expected when the format check fails.
	_, err := store.Validate(context.Background(), "garbage")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeUnauthorized))
}

func TestKeyStoreList(t *testing.T) {
	store, mock := newMockKeyStore(t)

	rows := sqlmock.NewRows([]string{
		"id", "name", "key_prefix", "created_at",
		"last_used_at", "expires_at", "is_active", "usage_count",
	}).
		AddRow("key-1", "a", "pw_aaaa...", time.Now(), nil, nil, true, 0).
		AddRow("key-2", "b", "pw_bbbb...", time.Now(), nil, nil, false, 9)

	mock.ExpectQuery(`SELECT id, name, key_prefix, created_at`).
		WillReturnRows(rows)

	keys, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, "a", keys[0].Name)
	assert.False(t, keys[1].IsActive)
}

func TestKeyStoreRevoke(t *testing.T) {
	t.Run("existing key", func(t *testing.T) {
		store, mock := newMockKeyStore(t)

		mock.ExpectExec(`UPDATE api_keys SET is_active = false`).
			WithArgs("key-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, store.Revoke(context.Background(), "key-1"))
	})

	t.Run("unknown key", func(t *testing.T) {
		store, mock := newMockKeyStore(t)

		mock.ExpectExec(`UPDATE api_keys SET is_active = false`).
			WithArgs("missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.Revoke(context.Background(), "missing")
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.CodeNotFound))
	})
}
