package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/braind/internal/indexer"
)

// sseWriter writes server-sent events, flushing after each one so proxies and
// clients see transitions as they happen.
type sseWriter struct {
	resp *echo.Response
}

func newSSEWriter(resp *echo.Response) *sseWriter {
	return &sseWriter{resp: resp}
}

// prepare sets the SSE headers and commits the response.
func (w *sseWriter) prepare() {
	h := w.resp.Header()
	h.Set(echo.HeaderContentType, "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set(echo.HeaderConnection, "keep-alive")
	// Disables nginx response buffering.
	h.Set("X-Accel-Buffering", "no")
	w.resp.WriteHeader(http.StatusOK)
	w.resp.Flush()
}

// writeEvent emits one event frame: the kind as the SSE event name, the
// payload as JSON data.
func (w *sseWriter) writeEvent(ev indexer.Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshaling %s event: %w", ev.Kind, err)
	}
	if _, err := fmt.Fprintf(w.resp, "event: %s\ndata: %s\n\n", ev.Kind, data); err != nil {
		return err
	}
	w.resp.Flush()
	return nil
}
