package apikey

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"time"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// KeyPrefix is the fixed prefix of every issued secret.
const KeyPrefix = "gw_"

// secretBytes is the entropy of a generated secret before encoding.
const secretBytes = 32

// Environment distinguishes sandbox keys from production keys. The two carry
// different default usage limits.
type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

func (e Environment) IsValid() bool {
	switch e {
	case EnvironmentSandbox, EnvironmentProduction:
		return true
	default:
		return false
	}
}

// Usage is a key's consumption against its rolling quota window.
type Usage struct {
	Count         int64     `json:"count" db:"usage_count"`
	Limit         int64     `json:"limit" db:"usage_limit"`
	WindowResetAt time.Time `json:"window_reset_at" db:"window_reset_at"`
}

// Remaining reports how many requests are left in the current window.
func (u Usage) Remaining() int64 {
	if u.Count >= u.Limit {
		return 0
	}
	return u.Limit - u.Count
}

// APIKey is an issued credential. The secret itself is never stored; only
// its SHA-256 hash and a short display prefix survive creation.
type APIKey struct {
	ID            kernel.KeyID  `json:"id" db:"id"`
	OrgID         kernel.OrgID  `json:"org_id" db:"org_id"`
	Name          string        `json:"name" db:"name"`
	SecretHash    string        `json:"-" db:"secret_hash"`
	DisplayPrefix string        `json:"display_prefix" db:"display_prefix"`
	Services      []string      `json:"services" db:"services"`
	Environment   Environment   `json:"environment" db:"environment"`
	Active        bool          `json:"active" db:"active"`
	UsageLimit    int64         `json:"usage_limit" db:"usage_limit"`
	WindowResetAt time.Time     `json:"window_reset_at" db:"window_reset_at"`
	LastUsedAt    *time.Time    `json:"last_used_at,omitempty" db:"last_used_at"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// Revoke deactivates the key. Revocation is terminal; there is no
// reactivation path.
func (k *APIKey) Revoke() {
	k.Active = false
	k.UpdatedAt = time.Now().UTC()
}

// CanAccess reports whether the key grants access to a service.
func (k *APIKey) CanAccess(serviceID string) bool {
	for _, id := range k.Services {
		if id == serviceID {
			return true
		}
	}
	return false
}

// GeneratedSecret holds a freshly minted secret alongside its stored forms.
// The Secret field is shown to the caller exactly once.
type GeneratedSecret struct {
	Secret        string
	Hash          string
	DisplayPrefix string
}

// GenerateSecret mints a new key secret: the "gw_" prefix followed by 32
// random bytes in unpadded base64url.
func GenerateSecret() (*GeneratedSecret, error) {
	buf := make([]byte, secretBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, errx.Wrap(err, "failed to generate key secret", errx.TypeInternal)
	}

	secret := KeyPrefix + base64.RawURLEncoding.EncodeToString(buf)

	return &GeneratedSecret{
		Secret:        secret,
		Hash:          HashSecret(secret),
		DisplayPrefix: secret[:len(KeyPrefix)+8] + "...",
	}, nil
}

// HashSecret returns the hex-encoded SHA-256 digest of a secret. Lookups at
// validation time go through this hash, never the plaintext.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("APIKEY")

var (
	ErrCodeKeyNotFound        = ErrRegistry.Register("NOT_FOUND", errx.TypeNotFound, 404, "API key not found")
	ErrCodeKeyRevoked         = ErrRegistry.Register("REVOKED", errx.TypeAuthorization, 401, "API key has been revoked")
	ErrCodeInvalidSecret      = ErrRegistry.Register("INVALID_SECRET", errx.TypeAuthorization, 401, "API key secret is not valid")
	ErrCodeQuotaExceeded      = ErrRegistry.Register("QUOTA_EXCEEDED", errx.TypeRateLimited, 429, "API key usage quota exhausted for the current window")
	ErrCodeInvalidEnvironment = ErrRegistry.Register("INVALID_ENVIRONMENT", errx.TypeValidation, 400, "Environment must be sandbox or production")
)

func ErrKeyNotFound() *errx.Error   { return ErrRegistry.New(ErrCodeKeyNotFound) }
func ErrKeyRevoked() *errx.Error    { return ErrRegistry.New(ErrCodeKeyRevoked) }
func ErrInvalidSecret() *errx.Error { return ErrRegistry.New(ErrCodeInvalidSecret) }

func ErrQuotaExceeded(keyID kernel.KeyID) *errx.Error {
	return ErrRegistry.New(ErrCodeQuotaExceeded).WithDetail("key_id", keyID.String())
}

func ErrInvalidEnvironment(env string) *errx.Error {
	return ErrRegistry.New(ErrCodeInvalidEnvironment).WithDetail("environment", env)
}
