package handler

import (
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"

	"subtrans/backend/internal/apperr"
	"subtrans/backend/internal/session"
)

var tokenPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// SessionHandler exposes the Session Store's create/read/update/delete
// operations over HTTP, per spec.md §6.
type SessionHandler struct {
	store *session.Store
}

func NewSessionHandler(store *session.Store) *SessionHandler {
	return &SessionHandler{store: store}
}

func (h *SessionHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/sessions", h.Create)
	g.GET("/sessions/:token", h.Get)
	g.PUT("/sessions/:token", h.Update)
	g.DELETE("/sessions/:token", h.Delete)
}

type sessionConfigRequest struct {
	Config map[string]any `json:"config"`
}

type sessionTokenResponse struct {
	Token string `json:"token"`
}

type sessionConfigResponse struct {
	Config map[string]any `json:"config"`
}

func (h *SessionHandler) Create(c echo.Context) error {
	var req sessionConfigRequest
	if err := c.Bind(&req); err != nil {
		return writeServiceError(c, apperr.ErrInvalid)
	}

	token, err := h.store.Create(req.Config)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, sessionTokenResponse{Token: token})
}

func (h *SessionHandler) Get(c echo.Context) error {
	token := c.Param("token")
	if !tokenPattern.MatchString(token) {
		return writeServiceError(c, apperr.ErrInvalid)
	}

	cfg, ok := h.store.Get(token)
	if !ok {
		return writeServiceError(c, apperr.ErrNotFound)
	}
	return c.JSON(http.StatusOK, sessionConfigResponse{Config: cfg})
}

func (h *SessionHandler) Update(c echo.Context) error {
	token := c.Param("token")
	if !tokenPattern.MatchString(token) {
		return writeServiceError(c, apperr.ErrInvalid)
	}

	var req sessionConfigRequest
	if err := c.Bind(&req); err != nil {
		return writeServiceError(c, apperr.ErrInvalid)
	}

	if err := h.store.Update(token, req.Config); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *SessionHandler) Delete(c echo.Context) error {
	token := c.Param("token")
	if !tokenPattern.MatchString(token) {
		return writeServiceError(c, apperr.ErrInvalid)
	}

	if !h.store.Delete(token) {
		return writeServiceError(c, apperr.ErrNotFound)
	}
	return c.NoContent(http.StatusNoContent)
}
