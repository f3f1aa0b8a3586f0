package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/gridworks/gridcore/pkg/iam/org"
	"github.com/gridworks/gridcore/pkg/iam/user"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// JWTService issues and validates signed session tokens.
type JWTService struct {
	secretKey  []byte
	sessionTTL time.Duration
	issuer     string
	revoked    RevocationList
}

// NewJWTService creates a session token service. Zero values fall back to a
// 24 hour TTL and the "gridcore" issuer.
func NewJWTService(secretKey string, sessionTTL time.Duration, issuer string, revoked RevocationList) *JWTService {
	if sessionTTL == 0 {
		sessionTTL = 24 * time.Hour
	}
	if issuer == "" {
		issuer = "gridcore"
	}

	return &JWTService{
		secretKey:  []byte(secretKey),
		sessionTTL: sessionTTL,
		issuer:     issuer,
		revoked:    revoked,
	}
}

type jwtClaims struct {
	UserID   kernel.UserID `json:"user_id"`
	OrgID    kernel.OrgID  `json:"org_id"`
	Email    string        `json:"email"`
	Role     user.Role     `json:"role"`
	Services []string      `json:"services"`
	jwt.RegisteredClaims
}

// Issue signs a session token for the given user. The services slice lists
// the service IDs the user's organization is subscribed to, so downstream
// handlers can check entitlements without a lookup.
func (j *JWTService) Issue(u *user.User, o *org.Organization, services []string) (string, *Claims, error) {
	now := time.Now()
	tokenID := uuid.NewString()

	if services == nil {
		services = []string{}
	}

	claims := jwtClaims{
		UserID:   u.ID,
		OrgID:    o.ID,
		Email:    u.Email,
		Role:     u.Role,
		Services: services,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    j.issuer,
			Subject:   u.ID.String(),
			Audience:  []string{"gridcore-api"},
			ExpiresAt: jwt.NewNumericDate(now.Add(j.sessionTTL)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", nil, ErrGenerationFailed(err)
	}

	return signed, toClaims(&claims), nil
}

// Validate decodes and verifies a session token, including the revocation
// list. Expired tokens report a distinct error from otherwise malformed or
// tampered ones.
func (j *JWTService) Validate(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired()
		}
		return nil, ErrTokenInvalid().WithDetail("error", err.Error())
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid()
	}

	if j.revoked != nil {
		revoked, err := j.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrTokenRevoked()
		}
	}

	return toClaims(claims), nil
}

// Revoke invalidates a session token before its natural expiry. The token
// must still verify; revoking an already-expired token is a no-op success.
func (j *JWTService) Revoke(ctx context.Context, tokenString string) error {
	token, err := jwt.ParseWithClaims(tokenString, &jwtClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return j.secretKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil
		}
		return ErrTokenInvalid().WithDetail("error", err.Error())
	}

	claims, ok := token.Claims.(*jwtClaims)
	if !ok || !token.Valid {
		return ErrTokenInvalid()
	}

	if j.revoked == nil {
		return nil
	}

	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining <= 0 {
		return nil
	}

	return j.revoked.Revoke(ctx, claims.ID, remaining)
}

func toClaims(c *jwtClaims) *Claims {
	return &Claims{
		TokenID:   c.ID,
		UserID:    c.UserID,
		OrgID:     c.OrgID,
		Email:     c.Email,
		Role:      c.Role,
		Services:  c.Services,
		IssuedAt:  c.IssuedAt.Time,
		ExpiresAt: c.ExpiresAt.Time,
	}
}
