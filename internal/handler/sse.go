package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"subtrans/backend/internal/activity"
)

// sseWriterSink adapts an http.ResponseWriter/http.Flusher pair to the
// activity.Sink interface, rendering the exact wire format from spec.md §6:
// "event: NAME\ndata: JSON\n\n".
type sseWriterSink struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func newSSEWriterSink(w http.ResponseWriter, flusher http.Flusher) *sseWriterSink {
	return &sseWriterSink{w: w, flusher: flusher}
}

func (s *sseWriterSink) Send(ev activity.Event) error {
	data := []byte("{}")
	if ev.Data != nil {
		b, err := json.Marshal(ev.Data)
		if err != nil {
			return err
		}
		data = b
	}

	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func writeSSEHeaders(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}
