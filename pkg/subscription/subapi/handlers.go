package subapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/gridworks/gridcore/pkg/catalog"
	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam"
	"github.com/gridworks/gridcore/pkg/iam/session"
	"github.com/gridworks/gridcore/pkg/kernel"
	"github.com/gridworks/gridcore/pkg/subscription"
	"github.com/gridworks/gridcore/pkg/subscription/subsrv"
)

// Handlers exposes subscription management and the billing webhook over
// HTTP.
type Handlers struct {
	service  *subsrv.Synchronizer
	validate *validator.Validate
}

func NewHandlers(service *subsrv.Synchronizer) *Handlers {
	return &Handlers{
		service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes mounts /api/v1/subscriptions and the webhook endpoint. The
// webhook is unauthenticated at this layer; signature verification happens
// at the edge.
func (h *Handlers) RegisterRoutes(app *fiber.App, mw *session.Middleware) {
	subs := app.Group("/api/v1/subscriptions", mw.Authenticate())
	subs.Get("/", h.GetOwn)
	subs.Post("/", mw.RequireAdmin(), h.Create)
	subs.Get("/:id", h.Get)
	subs.Patch("/:id", mw.RequireAdmin(), h.Update)
	subs.Post("/:id/cancel", mw.RequireAdmin(), h.Cancel)

	app.Post("/webhooks/billing", h.Webhook)
}

type createRequest struct {
	Plan     string   `json:"plan" validate:"required"`
	Services []string `json:"services" validate:"required,min=1"`
}

func (h *Handlers) Create(c *fiber.Ctx) error {
	auth := session.AuthFromCtx(c)
	if auth == nil {
		return iam.ErrUnauthorized()
	}

	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return errx.Validation(err.Error())
	}

	sub, err := h.service.Create(c.Context(), auth.OrgID, catalog.PlanTier(req.Plan), req.Services)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

func (h *Handlers) GetOwn(c *fiber.Ctx) error {
	auth := session.AuthFromCtx(c)
	if auth == nil {
		return iam.ErrUnauthorized()
	}

	sub, err := h.service.GetByOrg(c.Context(), auth.OrgID)
	if err != nil {
		return err
	}
	return c.JSON(sub)
}

func (h *Handlers) Get(c *fiber.Ctx) error {
	auth := session.AuthFromCtx(c)
	if auth == nil {
		return iam.ErrUnauthorized()
	}

	sub, err := h.service.Get(c.Context(), kernel.NewSubscriptionID(c.Params("id")))
	if err != nil {
		return err
	}
	if sub.OrgID != auth.OrgID {
		return subscription.ErrSubscriptionNotFound()
	}
	return c.JSON(sub)
}

type updateRequest struct {
	Plan     string   `json:"plan" validate:"required"`
	Services []string `json:"services" validate:"required,min=1"`
}

func (h *Handlers) Update(c *fiber.Ctx) error {
	auth := session.AuthFromCtx(c)
	if auth == nil {
		return iam.ErrUnauthorized()
	}

	var req updateRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return errx.Validation(err.Error())
	}

	subID := kernel.NewSubscriptionID(c.Params("id"))
	if err := h.requireOwnership(c, subID, auth.OrgID); err != nil {
		return err
	}

	sub, err := h.service.Update(c.Context(), subID, catalog.PlanTier(req.Plan), req.Services)
	if err != nil {
		return err
	}
	return c.JSON(sub)
}

type cancelRequest struct {
	AtPeriodEnd bool `json:"at_period_end"`
}

func (h *Handlers) Cancel(c *fiber.Ctx) error {
	auth := session.AuthFromCtx(c)
	if auth == nil {
		return iam.ErrUnauthorized()
	}

	var req cancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return errx.Validation("invalid request body")
		}
	}

	subID := kernel.NewSubscriptionID(c.Params("id"))
	if err := h.requireOwnership(c, subID, auth.OrgID); err != nil {
		return err
	}

	sub, err := h.service.Cancel(c.Context(), subID, req.AtPeriodEnd)
	if err != nil {
		return err
	}
	return c.JSON(sub)
}

func (h *Handlers) Webhook(c *fiber.Ctx) error {
	var event subscription.Event
	if err := c.BodyParser(&event); err != nil {
		return errx.Validation("invalid webhook payload")
	}
	if err := h.validate.Struct(event); err != nil {
		return errx.Validation(err.Error())
	}

	if err := h.service.HandleEvent(c.Context(), event); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"received": true})
}

func (h *Handlers) requireOwnership(c *fiber.Ctx, subID kernel.SubscriptionID, orgID kernel.OrgID) error {
	sub, err := h.service.Get(c.Context(), subID)
	if err != nil {
		return err
	}
	if sub.OrgID != orgID {
		return subscription.ErrSubscriptionNotFound()
	}
	return nil
}
