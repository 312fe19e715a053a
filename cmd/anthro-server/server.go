package main

import (
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/clinic/anthropometry/internal/config"
	"github.com/clinic/anthropometry/internal/domain/anthropometry"
	"github.com/clinic/anthropometry/internal/platform/middleware"
	"github.com/clinic/anthropometry/internal/platform/openapi"
	"github.com/clinic/anthropometry/internal/platform/outcome"
	"github.com/clinic/anthropometry/internal/platform/telemetry"
)

const batchPath = "/api/v1/evaluations/batch"

// newServer wires middleware, telemetry and routes onto a fresh echo
// instance.
func newServer(cfg *config.Config, logger zerolog.Logger, svc *anthropometry.Service) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = outcome.ErrorHandler(logger)

	metrics := telemetry.NewProvider(telemetry.Config{
		ServiceVersion: version,
		Enabled:        cfg.MetricsEnabled,
	})
	svc.SetRecorder(metrics)

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(metrics.MetricsMiddleware())
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.BatchBodyLimit, batchPath))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":  "ok",
			"version": version,
			"fields":  svc.Catalog().Len(),
		})
	})
	if cfg.MetricsEnabled {
		e.GET("/metrics", metrics.Handler())
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}

	apiV1 := e.Group("/api/v1",
		middleware.RateLimit(rateLimitCfg),
		middleware.RequestTimeout(cfg.RequestTimeout),
	)
	h := anthropometry.NewHandler(svc)
	h.RegisterRoutes(apiV1)

	docs := openapi.NewGenerator("Anthropometry API", version)
	docs.Add(h.Operations("/api/v1"), anthropometry.Schemas())
	docs.RegisterRoutes(apiV1)

	return e
}
