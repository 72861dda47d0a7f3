package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/antonio12761/roxy-bar-sub000/internal/events"
	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
	"github.com/antonio12761/roxy-bar-sub000/internal/orders"
)

// StreamEvents handles GET /events: it registers the caller as a dispatcher
// client and streams its deliveries as server-sent events until the
// connection drops.
func (h *Handler) StreamEvents(dispatcher *events.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := logger.GenerateRequestID()

		actor := h.actor(r)
		if actor.ID == uuid.Nil {
			h.writeError(w, requestID, &orders.AuthenticationRequiredError{})
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			h.writeError(w, requestID, &orders.ValidationError{Field: "connection", Msg: "streaming unsupported"})
			return
		}

		var channels []string
		if raw := r.URL.Query().Get("channels"); raw != "" {
			channels = strings.Split(raw, ",")
		}

		client := events.NewClient(requestID, actor.ID, actor.TenantID, actor.Role, channels)
		dispatcher.Register(client)
		defer dispatcher.Unregister(client.ID)

		h.logger.Info("sse_connected", "Event stream opened", requestID, map[string]interface{}{
			"user_id": actor.ID.String(),
			"role":    string(actor.Role),
		})

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case e, open := <-client.Events():
				if !open {
					return
				}
				data, err := json.Marshal(e)
				if err != nil {
					h.logger.Error("sse_encode_failed", "Failed to encode event", requestID, err, map[string]interface{}{
						"event": e.Name,
					})
					continue
				}
				fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", e.Name, e.CorrelationID, data)
				flusher.Flush()
			}
		}
	}
}
