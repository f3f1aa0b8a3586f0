package session

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gridworks/gridcore/pkg/iam"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// Middleware authenticates requests with a bearer session token.
type Middleware struct {
	sessions *JWTService
}

func NewMiddleware(sessions *JWTService) *Middleware {
	return &Middleware{sessions: sessions}
}

// Authenticate validates the bearer token and stores an AuthContext in the
// request locals.
func (m *Middleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := bearerToken(c)
		if token == "" {
			return iam.ErrUnauthorized()
		}

		claims, err := m.sessions.Validate(c.Context(), token)
		if err != nil {
			return err
		}

		userID := claims.UserID
		c.Locals("auth", &kernel.AuthContext{
			UserID:   &userID,
			OrgID:    claims.OrgID,
			Email:    claims.Email,
			Role:     string(claims.Role),
			Services: claims.Services,
			IsAPIKey: false,
		})
		c.Locals("session_token", token)

		return c.Next()
	}
}

// RequireAdmin allows only organization admins through.
func (m *Middleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := AuthFromCtx(c)
		if auth == nil {
			return iam.ErrUnauthorized()
		}
		if !auth.IsAdmin() {
			return iam.ErrAccessDenied()
		}
		return c.Next()
	}
}

// RequireService allows only callers entitled to the given service, whether
// they authenticated with a session token or an API key.
func (m *Middleware) RequireService(serviceID string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		auth := AuthFromCtx(c)
		if auth == nil {
			return iam.ErrUnauthorized()
		}
		if !auth.HasService(serviceID) {
			return iam.ErrAccessDenied().WithDetail("service_id", serviceID)
		}
		return c.Next()
	}
}

// AuthFromCtx returns the authenticated context, or nil.
func AuthFromCtx(c *fiber.Ctx) *kernel.AuthContext {
	auth, ok := c.Locals("auth").(*kernel.AuthContext)
	if !ok {
		return nil
	}
	return auth
}

// TokenFromCtx returns the raw bearer token the request authenticated with.
func TokenFromCtx(c *fiber.Ctx) string {
	token, _ := c.Locals("session_token").(string)
	return token
}

func bearerToken(c *fiber.Ctx) string {
	header := c.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && parts[0] == "Bearer" && parts[1] != "" {
			return parts[1]
		}
	}
	return c.Cookies("access_token")
}
