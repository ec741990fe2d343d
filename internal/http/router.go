package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"subtrans/backend/internal/handler"
)

// NewRouter wires the HTTP surface described by spec.md §6: session
// CRUD, the stream-activity record/SSE endpoints, and the translate
// endpoint.
func NewRouter(
	sessionHandler *handler.SessionHandler,
	activityHandler *handler.ActivityHandler,
	translateHandler *handler.TranslateHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(RequestLoggerMiddleware())

	api := e.Group("/api")
	sessionHandler.RegisterRoutes(api)
	activityHandler.RegisterRoutes(api)
	translateHandler.RegisterRoutes(api)

	return e
}
