package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"

	"github.com/gridworks/gridcore/pkg/config"
	"github.com/gridworks/gridcore/pkg/errx"
	"github.com/gridworks/gridcore/pkg/logx"
)

func main() {
	logx.SetDefaultLogger(logx.NewLogger(logx.LoadFromEnv()))

	logx.Info("🚀 Starting GridCore API Server...")

	cfg := config.Load()

	container := NewContainer(cfg)
	defer container.Cleanup()

	app := fiber.New(fiber.Config{
		AppName:               "GridCore API",
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler,
		BodyLimit:             1 * 1024 * 1024,
		IdleTimeout:           120 * time.Second,
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(requestid.New(requestid.Config{
		Header: "X-Request-ID",
		Generator: func() string {
			return uuid.NewString()
		},
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins:  getEnv("CORS_ORIGINS", "*"),
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-API-Key, X-Request-ID",
		AllowMethods:  "GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS",
		ExposeHeaders: "X-Request-ID",
	}))

	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${ip} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
		TimeZone:   "Local",
	}))

	app.Get("/health", healthCheckHandler(container))

	// ========================================================================
	// Routes
	// ========================================================================
	// Auth: /auth/signin, /auth/signout, /auth/me
	container.AuthHandlers.RegisterRoutes(app, container.SessionMW)
	logx.Info("✓ Auth routes registered")

	// Pricing: /api/v1/quotes, /api/v1/catalog
	container.PricingHandlers.RegisterRoutes(app, container.SessionMW)
	logx.Info("✓ Pricing routes registered")

	// API keys: /api/v1/api-keys/*
	container.APIKeyHandlers.RegisterRoutes(app, container.SessionMW)
	logx.Info("✓ API key routes registered")

	// Subscriptions: /api/v1/subscriptions/*, /webhooks/billing
	container.SubHandlers.RegisterRoutes(app, container.SessionMW)
	logx.Info("✓ Subscription routes registered")

	app.Use(notFoundHandler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container.StartBackgroundServices(ctx)

	startServer(ctx, app)
}

// ============================================================================
// Handlers
// ============================================================================

func healthCheckHandler(container *Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		health := fiber.Map{
			"status":  "healthy",
			"service": "gridcore-api",
			"version": getEnv("APP_VERSION", "1.0.0"),
		}

		if container.DB != nil {
			if err := container.DB.Ping(); err != nil {
				health["db"] = "unhealthy"
				health["db_error"] = err.Error()
				health["status"] = "degraded"
			} else {
				health["db"] = "healthy"
			}
		}

		if container.Redis != nil {
			if err := container.Redis.Ping(c.Context()).Err(); err != nil {
				health["redis"] = "unhealthy"
				health["status"] = "degraded"
			} else {
				health["redis"] = "healthy"
			}
		}

		status := fiber.StatusOK
		if health["status"] == "degraded" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(health)
	}
}

func notFoundHandler(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error":      "Route not found",
		"code":       "NOT_FOUND",
		"path":       c.Path(),
		"method":     c.Method(),
		"request_id": c.Get("X-Request-ID"),
	})
}

// ============================================================================
// Error Handler
// ============================================================================

// globalErrorHandler converts internal errors to standard HTTP responses.
func globalErrorHandler(c *fiber.Ctx, err error) error {
	logx.WithFields(logx.Fields{
		"path":       c.Path(),
		"method":     c.Method(),
		"ip":         c.IP(),
		"request_id": c.Get("X-Request-ID"),
	}).Errorf("Request error: %v", err)

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"error":      fiberErr.Message,
			"code":       "FIBER_ERROR",
			"status":     fiberErr.Code,
			"request_id": c.Get("X-Request-ID"),
		})
	}

	var appErr *errx.Error
	if errors.As(err, &appErr) {
		response := fiber.Map{
			"error":      appErr.Message,
			"code":       appErr.Code,
			"type":       string(appErr.Type),
			"status":     appErr.HTTPStatus,
			"request_id": c.Get("X-Request-ID"),
		}
		if len(appErr.Details) > 0 {
			response["details"] = appErr.Details
		}
		if getEnv("DEBUG", "false") == "true" && appErr.Err != nil {
			response["underlying_error"] = appErr.Err.Error()
		}
		return c.Status(appErr.HTTPStatus).JSON(response)
	}

	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":      "Internal Server Error",
		"type":       "INTERNAL",
		"code":       "INTERNAL_ERROR",
		"request_id": c.Get("X-Request-ID"),
	})
}

// ============================================================================
// Server lifecycle
// ============================================================================

func startServer(ctx context.Context, app *fiber.App) {
	port := getEnv("PORT", "8080")

	go func() {
		logx.Infof("🚀 Server listening on port %s", port)
		logx.Infof("💚 Health check: http://localhost:%s/health", port)

		if err := app.Listen(":" + port); err != nil {
			logx.Fatalf("Server error: %v", err)
		}
	}()

	<-ctx.Done()
	logx.Info("🛑 Shutting down gracefully...")

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logx.Errorf("Server forced to shutdown: %v", err)
	}

	logx.Info("✅ Server exited successfully")
}
