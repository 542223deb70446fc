package main

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/clinic/clinic/internal/config"
	"github.com/clinic/clinic/internal/platform/middleware"
	"github.com/clinic/clinic/internal/platform/telemetry"
)

// routeRegistrar is implemented by every domain handler.
type routeRegistrar interface {
	RegisterRoutes(api *echo.Group)
}

// newServer builds the echo instance with the global middleware chain and the
// liveness endpoints.
func newServer(cfg *config.Config, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger)

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(telemetry.Middleware(otel.GetTracerProvider()))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		MaxAge:       86400,
	}))
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"ok": true, "ts": time.Now().UTC().Format(time.RFC3339)})
	})
	e.GET("/api/ping", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"ok": true, "service": cfg.ServiceName})
	})
	return e
}

func registerAPI(api *echo.Group, handlers ...routeRegistrar) {
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}
}
