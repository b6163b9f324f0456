package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/codegrade-labs/codegrade-api/internal/config"
	"github.com/codegrade-labs/codegrade-api/internal/handler"
	"github.com/codegrade-labs/codegrade-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	SubmissionHandler *handler.SubmissionHandler
	JWTMiddleware     fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.SubmissionHandler != nil {
		submissionGroup := app.Group("/api/v1/submissions", jwtMiddleware)
		deps.SubmissionHandler.Register(submissionGroup)
	}
}
