package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	t.Run("valid name", func(t *testing.T) {
		generated, err := GenerateKey("ci-pipeline")
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(generated.Key, "pw_"))
		assert.True(t, IsValidKeyFormat(generated.Key))
		assert.Equal(t, "ci-pipeline", generated.KeyInfo.Name)
		assert.True(t, generated.KeyInfo.IsActive)
		assert.True(t, strings.HasSuffix(generated.KeyPrefix, "..."))
	})

	t.Run("keys are unique", func(t *testing.T) {
		a, err := GenerateKey("a")
		require.NoError(t, err)
		b, err := GenerateKey("b")
		require.NoError(t, err)
		assert.NotEqual(t, a.Key, b.Key)
	})

	t.Run("empty name rejected", func(t *testing.T) {
		_, err := GenerateKey("")
		assert.Error(t, err)
	})

	t.Run("overlong name rejected", func(t *testing.T) {
		_, err := GenerateKey(strings.Repeat("x", MaxKeyNameLength+1))
		assert.Error(t, err)
	})

	t.Run("control characters rejected", func(t *testing.T) {
		_, err := GenerateKey("bad\x00name")
		assert.Error(t, err)
	})
}

func TestHashAndVerifyKey(t *testing.T) {
	generated, err := GenerateKey("test")
	require.NoError(t, err)

	hash, err := HashKey(generated.Key)
	require.NoError(t, err)
	assert.NotEqual(t, generated.Key, hash)

	assert.True(t, VerifyKey(generated.Key, hash))
	assert.False(t, VerifyKey("pw_wrongkey12345678901234567890ab", hash))
	assert.False(t, VerifyKey("", hash))
	assert.False(t, VerifyKey(generated.Key, ""))
}

func TestHashKeyEmpty(t *testing.T) {
	_, err := HashKey("")
	assert.Error(t, err)
}

func TestHashKeyLongInput(t *testing.T) {
	// Past bcrypt's 72 byte limit the key is pre-hashed; verification
	// must still round-trip.
	long := "pw_" + strings.Repeat("a", 100)
	hash, err := HashKey(long)
	require.NoError(t, err)
	assert.True(t, VerifyKey(long, hash))
}

func TestIsValidKeyFormat(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		valid bool
	}{
		{"generated key", "pw_abcdefghijklmnopqrstuvwxyz234567", true},
		{"empty", "", false},
		{"wrong prefix", "sk_abcdefghijklmnopqrstuvwxyz234567", false},
		{"too short", "pw_abc", false},
		{"too long", "pw_" + strings.Repeat("a", 60), false},
		{"illegal characters", "pw_abcdef!jklmnopqrstuvwxyz234567", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidKeyFormat(tt.key))
		})
	}
}

func TestCreateDisplayPrefix(t *testing.T) {
	prefix := CreateDisplayPrefix("pw_abcdefghijklmnopqrstuvwxyz234567")
	assert.Equal(t, "pw_abcdefgh...", prefix)

	assert.Equal(t, "invalid_key", CreateDisplayPrefix("not-a-key"))
}

func TestKeyInfoExpiry(t *testing.T) {
	t.Run("no expiry", func(t *testing.T) {
		info := KeyInfo{IsActive: true}
		assert.False(t, info.IsExpired())
		assert.True(t, info.IsValid())
	})

	t.Run("expired", func(t *testing.T) {
		past := time.Now().UTC().Add(-time.Hour)
		info := KeyInfo{IsActive: true, ExpiresAt: &past}
		assert.True(t, info.IsExpired())
		assert.False(t, info.IsValid())
	})

	t.Run("inactive", func(t *testing.T) {
		info := KeyInfo{IsActive: false}
		assert.False(t, info.IsValid())
	})
}
