package session

import (
	"time"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/kernel"
	"github.com/gridworks/gridcore/pkg/iam/user"
)

// Claims is the decoded content of a session token.
type Claims struct {
	TokenID   string        `json:"token_id"`
	UserID    kernel.UserID `json:"user_id"`
	OrgID     kernel.OrgID  `json:"org_id"`
	Email     string        `json:"email"`
	Role      user.Role     `json:"role"`
	Services  []string      `json:"services"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("SESSION")

var (
	ErrCodeTokenExpired     = ErrRegistry.Register("TOKEN_EXPIRED", errx.TypeAuthorization, 401, "Session token has expired")
	ErrCodeTokenInvalid     = ErrRegistry.Register("TOKEN_INVALID", errx.TypeAuthorization, 401, "Session token is invalid")
	ErrCodeTokenRevoked     = ErrRegistry.Register("TOKEN_REVOKED", errx.TypeAuthorization, 401, "Session token has been revoked")
	ErrCodeGenerationFailed = ErrRegistry.Register("GENERATION_FAILED", errx.TypeInternal, 500, "Failed to generate session token")
)

func ErrTokenExpired() *errx.Error { return ErrRegistry.New(ErrCodeTokenExpired) }
func ErrTokenInvalid() *errx.Error { return ErrRegistry.New(ErrCodeTokenInvalid) }
func ErrTokenRevoked() *errx.Error { return ErrRegistry.New(ErrCodeTokenRevoked) }

func ErrGenerationFailed(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(ErrCodeGenerationFailed, cause)
}
