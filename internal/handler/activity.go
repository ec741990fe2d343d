package handler

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"subtrans/backend/internal/activity"
	"subtrans/backend/internal/apperr"
)

// ActivityHandler exposes the Stream Activity Bus's record/subscribe
// operations over HTTP, per spec.md §6 and §4.6.
type ActivityHandler struct {
	bus *activity.Bus
}

func NewActivityHandler(bus *activity.Bus) *ActivityHandler {
	return &ActivityHandler{bus: bus}
}

func (h *ActivityHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/activity/record", h.Record)
	g.GET("/activity/stream", h.Subscribe)
}

type recordRequest struct {
	ConfigHash   string `json:"configHash"`
	VideoID      string `json:"videoId"`
	Filename     string `json:"filename"`
	VideoHash    string `json:"videoHash"`
	ExternalHash string `json:"externalHash"`
}

func (h *ActivityHandler) Record(c echo.Context) error {
	var req recordRequest
	if err := c.Bind(&req); err != nil {
		return writeServiceError(c, apperr.ErrInvalid)
	}

	in := activity.RecordInput{
		VideoID:      req.VideoID,
		Filename:     req.Filename,
		VideoHash:    req.VideoHash,
		ExternalHash: req.ExternalHash,
	}
	if err := h.bus.Record(req.ConfigHash, in); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *ActivityHandler) Subscribe(c echo.Context) error {
	configHash := c.QueryParam("configHash")
	if configHash == "" {
		return writeServiceError(c, activity.ErrMissingConfigHash)
	}

	w := c.Response()
	flusher, ok := http.ResponseWriter(w).(http.Flusher)
	if !ok {
		return Error(c, http.StatusInternalServerError, "streaming unsupported")
	}

	// Set (but don't commit) the SSE headers so a successful Subscribe's
	// first sink.Send carries them; nothing is written to the wire until
	// Subscribe has accepted the connection, so a rejection still produces
	// a clean JSON error response instead of being swallowed into an
	// already-flushed 200 body.
	writeSSEHeaders(w)

	sink := newSSEWriterSink(w, flusher)
	cancel, err := h.bus.Subscribe(configHash, sink)
	if err != nil {
		return writeServiceError(c, err)
	}
	defer cancel()

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "retry: 5000\n\n")
	flusher.Flush()

	<-c.Request().Context().Done()
	return nil
}
