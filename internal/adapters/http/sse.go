package httpadapter

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// sseWriter pushes answer fragments as server-sent events. Each fragment is
// one "data:" frame; the stream is closed with a [DONE] sentinel.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming is not supported by response writer")
	}
	return &sseWriter{w: w, flusher: flusher}, nil
}

func (s *sseWriter) start() {
	if s.started {
		return
	}
	s.w.Header().Set("Content-Type", "text/event-stream")
	s.w.Header().Set("Cache-Control", "no-cache")
	s.w.Header().Set("Connection", "keep-alive")
	s.w.WriteHeader(http.StatusOK)
	s.started = true
}

func (s *sseWriter) emit(fragment string) error {
	s.start()
	payload, err := json.Marshal(map[string]string{"delta": fragment})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", payload); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseWriter) emitError(message string) {
	s.start()
	payload, _ := json.Marshal(map[string]string{"error": message})
	_, _ = fmt.Fprintf(s.w, "data: %s\n\n", payload)
	s.flusher.Flush()
}

func (s *sseWriter) done() {
	s.start()
	_, _ = io.WriteString(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}
