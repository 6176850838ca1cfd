package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"appdepot/internal/server/auth"
	"appdepot/internal/server/database"
	"appdepot/internal/server/service"
)

// Handler contains the HTTP handlers for the catalog API.
type Handler struct {
	catalog  *service.Catalog
	sessions auth.SessionStore
	db       *database.Store
}

// NewHandler creates a new handler with its service dependencies.
func NewHandler(catalog *service.Catalog, sessions auth.SessionStore, db *database.Store) *Handler {
	return &Handler{catalog: catalog, sessions: sessions, db: db}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// HandleLogin handles POST /api/auth/login.
// Verifies credentials, issues a session, and sets the sid cookie.
func (h *Handler) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid JSON body"})
	}

	db, err := h.db.Load()
	if err != nil {
		return mapServiceError(c, err)
	}

	user := db.FindUserByName(req.Username)
	if user == nil || !auth.VerifyPassword(req.Password, user.PasswordHash) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "Invalid credentials"})
	}

	identity := auth.SessionUser{ID: user.ID, Username: user.Username, Role: user.Role}
	sid, err := h.sessions.Create(identity)
	if err != nil {
		return mapServiceError(c, err)
	}

	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	slog.Info("user logged in", "username", user.Username, "role", user.Role)
	return c.JSON(http.StatusOK, echo.Map{"user": identity})
}

// HandleLogout handles POST /api/auth/logout.
// Destroys the session and clears the cookie.
func (h *Handler) HandleLogout(c echo.Context) error {
	if cookie, err := c.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
		h.sessions.Destroy(cookie.Value)
	}

	c.SetCookie(&http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// HandleMe handles GET /api/auth/me.
// Reports the current session user, or 401 with a null user.
func (h *Handler) HandleMe(c echo.Context) error {
	user, ok := resolveSession(c, h.sessions)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"user": nil})
	}
	return c.JSON(http.StatusOK, echo.Map{"user": user})
}

// HandleCategories handles GET /api/categories.
func (h *Handler) HandleCategories(c echo.Context) error {
	categories, err := h.catalog.Categories(sessionUser(c))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"categories": categories})
}

// HandleListApps handles GET /api/apps with optional search, category, and
// sort parameters.
func (h *Handler) HandleListApps(c echo.Context) error {
	apps, err := h.catalog.List(sessionUser(c), service.ListQuery{
		Search:   c.QueryParam("search"),
		Category: c.QueryParam("category"),
		Sort:     c.QueryParam("sort"),
	})
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"apps": apps})
}

// HandleCreateApp handles POST /api/apps (admin only).
func (h *Handler) HandleCreateApp(c echo.Context) error {
	var in service.AppInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid JSON body"})
	}

	app, err := h.catalog.Create(in)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"app": app})
}

// HandleGetApp handles GET /api/apps/:id.
// A successful fetch counts as a view and returns up to three related apps.
func (h *Handler) HandleGetApp(c echo.Context) error {
	app, related, err := h.catalog.Get(sessionUser(c), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"app": app, "related": related})
}

// HandleUpdateApp handles PUT /api/apps/:id (admin only).
func (h *Handler) HandleUpdateApp(c echo.Context) error {
	var in service.AppInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "Invalid JSON body"})
	}

	app, err := h.catalog.Update(c.Param("id"), in)
	if err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"app": app})
}

// HandleDeleteApp handles DELETE /api/apps/:id (admin only).
func (h *Handler) HandleDeleteApp(c echo.Context) error {
	if err := h.catalog.Delete(c.Param("id")); err != nil {
		return mapServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"ok": true})
}

// HandleDownload handles GET /api/apps/:id/download.
// Redirects for url-type records, streams an attachment for file-type.
func (h *Handler) HandleDownload(c echo.Context) error {
	res, err := h.catalog.ResolveDownload(sessionUser(c), c.Param("id"))
	if err != nil {
		return mapServiceError(c, err)
	}

	if res.RedirectURL != "" {
		return c.Redirect(http.StatusFound, res.RedirectURL)
	}
	return c.Attachment(res.FilePath, res.FileName)
}

// HandleBlockedUpload handles GET /uploads/*.
// Stored files are reachable only through the authenticated download
// endpoint, never by direct path.
func (h *Handler) HandleBlockedUpload(c echo.Context) error {
	return c.JSON(http.StatusForbidden, echo.Map{"message": "Direct file access blocked"})
}

// HandleHealth handles GET /health.
// Reports whether the record store is readable.
func (h *Handler) HandleHealth(c echo.Context) error {
	if _, err := h.db.Load(); err != nil {
		slog.Error("health check failed", "error", err)
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "healthy"})
}

// mapServiceError translates service-layer errors into appropriate HTTP responses.
func mapServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"message": "Not found"})
	case errors.Is(err, service.ErrFileMissing):
		return c.JSON(http.StatusNotFound, echo.Map{"message": "File not found"})
	default:
		slog.Error("request failed", "error", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "Internal server error"})
	}
}
