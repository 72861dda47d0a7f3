package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/antonio12761/roxy-bar-sub000/internal/events"
	"github.com/antonio12761/roxy-bar-sub000/internal/logger"
	"github.com/antonio12761/roxy-bar-sub000/internal/metrics"
)

// Server owns the HTTP listener and its routes.
type Server struct {
	httpServer *http.Server
	logger     *logger.Logger
}

// New builds the route table and the listener.
func New(port int, h *Handler, dispatcher *events.Dispatcher, m *metrics.Metrics, log *logger.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /orders", h.CreateOrder)
	mux.HandleFunc("GET /orders", h.ListOrders)
	mux.HandleFunc("POST /orders/{id}/items", h.AddOrderItems)
	mux.HandleFunc("POST /orders/{id}/status", h.AdvanceOrder)
	mux.HandleFunc("POST /orders/{id}/complete", h.CompleteOrder)
	mux.HandleFunc("POST /orders/{id}/pickup", h.PickupOrder)
	mux.HandleFunc("DELETE /orders/{id}", h.CancelOrder)

	mux.HandleFunc("DELETE /order-lines/{id}", h.CancelLine)
	mux.HandleFunc("PATCH /order-lines/{id}", h.ChangeLineQuantity)
	mux.HandleFunc("POST /order-lines/{id}/status", h.AdvanceLine)

	mux.HandleFunc("GET /merge-requests", h.ListMergeRequests)
	mux.HandleFunc("POST /merge-requests/{id}/accept", h.AcceptMergeRequest)
	mux.HandleFunc("POST /merge-requests/{id}/reject", h.RejectMergeRequest)

	mux.HandleFunc("POST /system/reset", h.SystemReset)
	mux.HandleFunc("GET /events", h.StreamEvents(dispatcher))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "ok",
			"clients": dispatcher.ClientCount(),
		})
	})
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: log,
	}
}

// Start blocks serving requests until Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("server_started", "HTTP server listening", "startup", map[string]interface{}{
		"addr": s.httpServer.Addr,
	})
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
