package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"subtrans/backend/internal/activity"
	"subtrans/backend/internal/apperr"
	"subtrans/backend/internal/engine"
	"subtrans/backend/internal/session"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, apperr.ErrInvalid), errors.Is(err, activity.ErrMissingConfigHash):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, session.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorResponse{Error: "resource not found"})
	case errors.Is(err, apperr.ErrConflict):
		return c.JSON(http.StatusConflict, errorResponse{Error: "conflict"})
	case errors.Is(err, activity.ErrTooManySubscribers):
		c.Response().Header().Set("Retry-After", "5")
		return c.JSON(http.StatusTooManyRequests, errorResponse{Error: err.Error()})
	default:
		var batchErr *engine.BatchError
		if errors.As(err, &batchErr) {
			return c.JSON(http.StatusBadGateway, errorResponse{Error: batchErr.Error()})
		}
		c.Logger().Error(err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// Error returns a JSON error response with the given status and message.
func Error(c echo.Context, status int, message string) error {
	return c.JSON(status, errorResponse{Error: message})
}
