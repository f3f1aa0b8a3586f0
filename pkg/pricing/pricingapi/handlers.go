package pricingapi

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/gridworks/gridcore/pkg/catalog"
	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/iam/session"
	"github.com/gridworks/gridcore/pkg/pricing"
)

// Handlers exposes quote computation over HTTP.
type Handlers struct {
	catalogRepo catalog.Repository
	validate    *validator.Validate
}

func NewHandlers(catalogRepo catalog.Repository) *Handlers {
	return &Handlers{
		catalogRepo: catalogRepo,
		validate:    validator.New(),
	}
}

func (h *Handlers) RegisterRoutes(app *fiber.App, mw *session.Middleware) {
	api := app.Group("/api/v1", mw.Authenticate())
	api.Post("/quotes", h.Quote)
	api.Get("/catalog", h.Catalog)
}

type quoteRequest struct {
	Plan     string   `json:"plan" validate:"required"`
	Services []string `json:"services"`
}

// Quote prices a plan plus service selection. The same request always
// produces the same quote.
func (h *Handlers) Quote(c *fiber.Ctx) error {
	var req quoteRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return errx.Validation(err.Error())
	}

	plan := catalog.PlanTier(req.Plan)
	if !plan.IsValid() {
		return catalog.ErrUnknownPlan(req.Plan)
	}

	snap, err := h.catalogRepo.Snapshot(c.Context())
	if err != nil {
		return err
	}

	quote, err := pricing.ComputeQuote(plan, req.Services, snap)
	if err != nil {
		return err
	}

	return c.JSON(quote)
}

// Catalog lists the active service catalog.
func (h *Handlers) Catalog(c *fiber.Ctx) error {
	entries, err := h.catalogRepo.FindActive(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"services": entries, "total": len(entries)})
}
