package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-go-golems/forkchat/pkg/events"
	"github.com/rs/zerolog/log"
)

// streamEvents relays a chat's events as server-sent events until the client
// goes away.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	id := chatID(r)
	if _, err := s.chats.Get(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	if s.subscriber == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "Event streaming is disabled"})
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Streaming unsupported"})
		return
	}

	ctx := r.Context()
	evs, err := s.subscriber.Subscribe(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	logger := log.With().Str("chat", id.String()).Logger()
	logger.Debug().Msg("event stream opened")
	defer logger.Debug().Msg("event stream closed")

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-evs:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				logger.Warn().Err(err).Msg("could not write event")
				continue
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, ev *events.ChatEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %d\ndata: %s\n\n", ev.Type, ev.Sequence, payload)
	return err
}
