package apikeyapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam"
	"github.com/gridworks/gridcore/pkg/iam/apikey/apikeysrv"
	"github.com/gridworks/gridcore/pkg/iam/session"
	"github.com/gridworks/gridcore/pkg/kernel"
)

// Handlers exposes API key management over HTTP.
type Handlers struct {
	service  *apikeysrv.APIKeyService
	validate *validator.Validate
}

func NewHandlers(service *apikeysrv.APIKeyService) *Handlers {
	return &Handlers{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts /api/v1/api-keys. Key issuance, rotation, and
// revocation are admin operations; reads are open to any org member.
func (h *Handlers) RegisterRoutes(app *fiber.App, mw *session.Middleware) {
	keys := app.Group("/api/v1/api-keys", mw.Authenticate())
	keys.Get("/", h.List)
	keys.Post("/", mw.RequireAdmin(), h.Issue)
	keys.Get("/:id", h.Get)
	keys.Delete("/:id", mw.RequireAdmin(), h.Revoke)
	keys.Post("/:id/rotate", mw.RequireAdmin(), h.Rotate)
	keys.Get("/:id/usage", h.Usage)
	keys.Post("/:id/usage", h.RecordUsage)
}

func (h *Handlers) List(c *fiber.Ctx) error {
	auth := session.AuthFromCtx(c)
	if auth == nil {
		return iam.ErrUnauthorized()
	}

	keys, err := h.service.ListKeys(c.Context(), auth.OrgID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"api_keys": keys, "total": len(keys)})
}

func (h *Handlers) Issue(c *fiber.Ctx) error {
	auth := session.AuthFromCtx(c)
	if auth == nil {
		return iam.ErrUnauthorized()
	}

	var req apikeysrv.IssueRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return errx.Validation(err.Error())
	}

	resp, err := h.service.IssueKey(c.Context(), auth.OrgID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *Handlers) Get(c *fiber.Ctx) error {
	auth := session.AuthFromCtx(c)
	if auth == nil {
		return iam.ErrUnauthorized()
	}

	key, err := h.service.GetKey(c.Context(), kernel.NewKeyID(c.Params("id")), auth.OrgID)
	if err != nil {
		return err
	}
	return c.JSON(key)
}

func (h *Handlers) Revoke(c *fiber.Ctx) error {
	auth := session.AuthFromCtx(c)
	if auth == nil {
		return iam.ErrUnauthorized()
	}

	if err := h.service.RevokeKey(c.Context(), kernel.NewKeyID(c.Params("id")), auth.OrgID); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "API key revoked"})
}

func (h *Handlers) Rotate(c *fiber.Ctx) error {
	auth := session.AuthFromCtx(c)
	if auth == nil {
		return iam.ErrUnauthorized()
	}

	resp, err := h.service.Rotate(c.Context(), kernel.NewKeyID(c.Params("id")), auth.OrgID)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(resp)
}

func (h *Handlers) Usage(c *fiber.Ctx) error {
	auth := session.AuthFromCtx(c)
	if auth == nil {
		return iam.ErrUnauthorized()
	}

	usage, err := h.service.GetUsage(c.Context(), kernel.NewKeyID(c.Params("id")), auth.OrgID)
	if err != nil {
		return err
	}
	return c.JSON(usage)
}

type recordUsageRequest struct {
	Count int64 `json:"count" validate:"omitempty,min=1"`
}

func (h *Handlers) RecordUsage(c *fiber.Ctx) error {
	auth := session.AuthFromCtx(c)
	if auth == nil {
		return iam.ErrUnauthorized()
	}

	req := recordUsageRequest{Count: 1}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errx.Validation("invalid request body")
		}
		if err := h.validate.Struct(req); err != nil {
			return errx.Validation(err.Error())
		}
		if req.Count == 0 {
			req.Count = 1
		}
	}

	usage, err := h.service.RecordUsage(c.Context(), kernel.NewKeyID(c.Params("id")), auth.OrgID, req.Count)
	if err != nil {
		return err
	}
	return c.JSON(usage)
}

// KeyAuth authenticates machine requests by their API key secret, accepted
// in X-API-Key or as a bearer token with the key prefix.
func KeyAuth(service *apikeysrv.APIKeyService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := c.Get("X-API-Key")
		if secret == "" {
			header := c.Get("Authorization")
			if len(header) > 7 && header[:7] == "Bearer " {
				secret = header[7:]
			}
		}
		if secret == "" {
			return iam.ErrUnauthorized()
		}

		key, err := service.ValidateKey(c.Context(), secret)
		if err != nil {
			return err
		}

		c.Locals("auth", &kernel.AuthContext{
			OrgID:    key.OrgID,
			Services: key.Services,
			IsAPIKey: true,
		})
		c.Locals("api_key", key)

		return c.Next()
	}
}
