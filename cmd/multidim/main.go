package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/stratoslab/multidim/cmd/multidim/routes"
	"github.com/stratoslab/multidim/common/bootstrap"
	mw "github.com/stratoslab/multidim/common/middleware"
	"github.com/stratoslab/multidim/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, cache)
	components, err := bootstrap.Setup(ctx, "multidim")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap multidim: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize Echo server
	e := setupEcho()

	// Setup middleware
	setupMiddleware(e, components)

	// Setup health check
	setupHealthCheck(e)

	// Register all routes
	routes.RegisterDatasetRoutes(e, components)

	// Start with graceful shutdown
	srv := server.New("multidim", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, components *bootstrap.Components) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())

	if components.RateLimiter != nil {
		cfg := components.Config.RateLimit
		e.Use(mw.GlobalRateLimit(components.RateLimiter, cfg.GlobalPerMinute))
		e.Use(mw.ClientRateLimit(components.RateLimiter, cfg.ClientPerMinute))
	}
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]string{
			"status":  "ok",
			"service": "multidim",
		})
	})
}
