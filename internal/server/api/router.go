package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"appdepot/internal/server/auth"
	"appdepot/internal/server/config"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, sessions auth.SessionStore, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = errorHandler

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))
	e.Use(RequestLogger())

	// Inline file payloads are buffered in memory, so bound the body size.
	e.Use(middleware.BodyLimit(cfg.MaxBodySize))

	requireSession := RequireSession(sessions)
	requireAdmin := RequireAdmin()

	// Rate limiter on the login endpoint only
	loginLimiter := NewRateLimiter(cfg.LoginRateRPS, cfg.LoginRateBurst)

	e.GET("/health", handler.HandleHealth)

	// Auth
	e.POST("/api/auth/login", handler.HandleLogin, loginLimiter.Middleware())
	e.POST("/api/auth/logout", handler.HandleLogout, requireSession)
	e.GET("/api/auth/me", handler.HandleMe)

	// Catalog
	e.GET("/api/categories", handler.HandleCategories, requireSession)
	e.GET("/api/apps", handler.HandleListApps, requireSession)
	e.POST("/api/apps", handler.HandleCreateApp, requireSession, requireAdmin)
	e.GET("/api/apps/:id", handler.HandleGetApp, requireSession)
	e.PUT("/api/apps/:id", handler.HandleUpdateApp, requireSession, requireAdmin)
	e.DELETE("/api/apps/:id", handler.HandleDeleteApp, requireSession, requireAdmin)
	e.GET("/api/apps/:id/download", handler.HandleDownload, requireSession)

	// Storage directory is never served directly
	e.GET("/uploads/*", handler.HandleBlockedUpload)

	return e
}

// errorHandler converts uncaught errors to the uniform {message} body.
// Oversized request bodies are reported as a validation failure.
func errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "Internal server error"

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if msg, ok := he.Message.(string); ok {
			message = msg
		}
	}

	if code == http.StatusRequestEntityTooLarge {
		code = http.StatusBadRequest
		message = "Payload too large"
	}

	c.JSON(code, echo.Map{"message": message})
}
