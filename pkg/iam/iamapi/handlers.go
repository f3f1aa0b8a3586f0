package iamapi

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam"
	"github.com/gridworks/gridcore/pkg/iam/iamsrv"
	"github.com/gridworks/gridcore/pkg/iam/policy"
	"github.com/gridworks/gridcore/pkg/iam/session"
)

// Handlers exposes the authentication surface over HTTP.
type Handlers struct {
	service  *iamsrv.SignInService
	validate *validator.Validate
}

func NewHandlers(service *iamsrv.SignInService) *Handlers {
	return &Handlers{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts /auth/* on the app. The me endpoint sits behind the
// session middleware; signin and signout do not.
func (h *Handlers) RegisterRoutes(app *fiber.App, mw *session.Middleware) {
	auth := app.Group("/auth")
	auth.Post("/signin", h.SignIn)
	auth.Post("/signout", mw.Authenticate(), h.SignOut)
	auth.Get("/me", mw.Authenticate(), h.Me)
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Provider string `json:"provider" validate:"required"`
	// The mfa object is what the trusted IdP callback reported; verified is
	// its challenge outcome, not an attestation by the end client.
	MFA *struct {
		Method     string    `json:"method" validate:"required"`
		Verified   bool      `json:"verified"`
		VerifiedAt time.Time `json:"verified_at"`
	} `json:"mfa,omitempty"`
}

func (h *Handlers) SignIn(c *fiber.Ctx) error {
	var req signInRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return errx.Validation(err.Error())
	}

	provider, ok := iam.ParseProvider(req.Provider)
	if !ok {
		return errx.Validation("unknown identity provider").WithDetail("provider", req.Provider)
	}

	var mfa *policy.MFAAssertion
	if req.MFA != nil {
		mfa = &policy.MFAAssertion{
			Method:     req.MFA.Method,
			Verified:   req.MFA.Verified,
			VerifiedAt: req.MFA.VerifiedAt,
		}
	}

	result, err := h.service.SignIn(c.Context(), req.Email, provider, c.IP(), mfa)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *Handlers) SignOut(c *fiber.Ctx) error {
	token := session.TokenFromCtx(c)
	if token == "" {
		return iam.ErrUnauthorized()
	}

	if err := h.service.SignOut(c.Context(), token); err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"message": "signed out"})
}

func (h *Handlers) Me(c *fiber.Ctx) error {
	token := session.TokenFromCtx(c)
	claims, err := h.service.Verify(c.Context(), token)
	if err != nil {
		return err
	}

	u, o, err := h.service.Whoami(c.Context(), claims)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"user":         u,
		"organization": o,
		"session": fiber.Map{
			"issued_at":  claims.IssuedAt,
			"expires_at": claims.ExpiresAt,
			"services":   claims.Services,
		},
	})
}
