// Package auth provides API key handling for the portwarden API server.
// Keys are generated from a CSPRNG, shown to the caller once, and stored
// only as bcrypt hashes.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const (
	// APIKeyLength is the length of the random part of an API key.
	APIKeyLength = 32
	// APIKeyPrefix is the standard prefix for all API keys.
	APIKeyPrefix = "pw"
	// DisplayPrefixLength is how much of a key the UI may show.
	DisplayPrefixLength = 12

	// BcryptCost balances security and verification latency.
	BcryptCost = 12
	// BcryptMaxInputLength is bcrypt's 72 byte input limit.
	BcryptMaxInputLength = 72

	// MaxKeyNameLength caps API key names.
	MaxKeyNameLength = 255
)

// KeyInfo contains metadata about a stored API key.
type KeyInfo struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name" validate:"required,min=1,max=255"`
	KeyPrefix  string     `json:"key_prefix" db:"key_prefix"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	UsageCount int        `json:"usage_count" db:"usage_count"`
}

// GeneratedKey contains a newly generated API key and its metadata. The
// Key field is the only place the plaintext ever appears.
type GeneratedKey struct {
	Key       string  `json:"key"`
	KeyInfo   KeyInfo `json:"key_info"`
	KeyPrefix string  `json:"key_prefix"`
}

// GenerateKey creates a new API key with the given name.
func GenerateKey(name string) (*GeneratedKey, error) {
	if err := validateKeyName(name); err != nil {
		return nil, fmt.Errorf("invalid key name: %w", err)
	}

	randomBytes := make([]byte, APIKeyLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("failed to generate random key: %w", err)
	}

	// base32 avoids ambiguous characters in keys users paste around.
	randomPart := strings.ToLower(base32.StdEncoding.EncodeToString(randomBytes))
	if len(randomPart) > APIKeyLength {
		randomPart = randomPart[:APIKeyLength]
	}

	fullKey := fmt.Sprintf("%s_%s", APIKeyPrefix, randomPart)
	displayPrefix := CreateDisplayPrefix(fullKey)

	return &GeneratedKey{
		Key: fullKey,
		KeyInfo: KeyInfo{
			Name:      name,
			KeyPrefix: displayPrefix,
			CreatedAt: time.Now().UTC(),
			IsActive:  true,
		},
		KeyPrefix: displayPrefix,
	}, nil
}

// HashKey creates a bcrypt hash of an API key for storage.
func HashKey(apiKey string) (string, error) {
	if apiKey == "" {
		return "", fmt.Errorf("API key cannot be empty")
	}

	// bcrypt truncates past 72 bytes; pre-hash longer input.
	keyBytes := []byte(apiKey)
	if len(keyBytes) > BcryptMaxInputLength {
		sum := sha256.Sum256(keyBytes)
		keyBytes = sum[:]
	}

	hash, err := bcrypt.GenerateFromPassword(keyBytes, BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash API key: %w", err)
	}
	return string(hash), nil
}

// VerifyKey checks a provided API key against a stored hash.
func VerifyKey(apiKey, storedHash string) bool {
	if apiKey == "" || storedHash == "" {
		return false
	}

	keyBytes := []byte(apiKey)
	if len(keyBytes) > BcryptMaxInputLength {
		sum := sha256.Sum256(keyBytes)
		keyBytes = sum[:]
	}

	return bcrypt.CompareHashAndPassword([]byte(storedHash), keyBytes) == nil
}

// IsValidKeyFormat checks whether a string looks like a portwarden key.
func IsValidKeyFormat(apiKey string) bool {
	if !strings.HasPrefix(apiKey, APIKeyPrefix+"_") {
		return false
	}
	if len(apiKey) < 15 || len(apiKey) > 50 {
		return false
	}
	for _, char := range apiKey {
		if (char < 'a' || char > 'z') &&
			(char < 'A' || char > 'Z') &&
			(char < '0' || char > '9') &&
			char != '_' {
			return false
		}
	}
	return true
}

// CreateDisplayPrefix returns a safe-to-display prefix of a full key.
func CreateDisplayPrefix(apiKey string) string {
	if !IsValidKeyFormat(apiKey) {
		return "invalid_key"
	}

	parts := strings.SplitN(apiKey, "_", 2)
	if len(parts) < 2 {
		return "invalid_key"
	}
	random := parts[1]
	if len(random) > 8 {
		random = random[:8]
	}
	return fmt.Sprintf("%s_%s...", parts[0], random)
}

// IsExpired reports whether the key's expiry has passed.
func (k *KeyInfo) IsExpired() bool {
	if k.ExpiresAt == nil {
		return false
	}
	return k.ExpiresAt.Before(time.Now().UTC())
}

// IsValid reports whether the key is active and unexpired.
func (k *KeyInfo) IsValid() bool {
	return k.IsActive && !k.IsExpired()
}

func validateKeyName(name string) error {
	if name == "" {
		return fmt.Errorf("key name cannot be empty")
	}
	if len(name) > MaxKeyNameLength {
		return fmt.Errorf("key name must be at most %d characters", MaxKeyNameLength)
	}
	for _, char := range name {
		if char < 32 || char == 127 {
			return fmt.Errorf("key name contains invalid characters")
		}
	}
	return nil
}
