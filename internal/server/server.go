// Package server exposes the tracker's HTTP surface: the live event
// stream, the graduate collection, feed controls, and operational
// endpoints.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"pump-graduates/internal/domain"
	"pump-graduates/internal/feed"
	"pump-graduates/internal/notify"
	"pump-graduates/internal/observability"
	"pump-graduates/internal/store"
	"pump-graduates/internal/stream"
)

// maxBodyBytes bounds collection import payloads.
const maxBodyBytes = 16 << 20

// Server wires the HTTP handlers to the tracker components.
type Server struct {
	store    *store.GraduateStore
	hub      *stream.Hub
	feed     *feed.Client
	notifier notify.Notifier
	logger   *log.Logger
	started  time.Time
}

// Options configures a Server.
type Options struct {
	Store    *store.GraduateStore
	Hub      *stream.Hub
	Feed     *feed.Client
	Notifier notify.Notifier
	Logger   *log.Logger
}

// New creates a Server.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.NewLogNotifier(logger)
	}
	return &Server{
		store:    opts.Store,
		hub:      opts.Hub,
		feed:     opts.Feed,
		notifier: notifier,
		logger:   logger,
		started:  time.Now(),
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/stream", s.hub)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/reconnect", s.handleReconnect)
	mux.HandleFunc("/graduates", s.handleGraduates)
	mux.HandleFunc("/notify/test", s.handleNotifyTest)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", observability.Handler())

	return mux
}

// HealthResponse is the JSON response for /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Feed      string `json:"feed"`
	Exhausted bool   `json:"exhausted,omitempty"`
	Graduates int    `json:"graduates"`
}

// handleHealth reports liveness plus feed state. A health probe against
// a disconnected feed also attempts a reconnect before responding, so
// external monitors double as the recovery mechanism when autonomous
// retries are off, and the response reflects the attempt's outcome.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.feed.State() == feed.StateDisconnected {
		ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
		defer cancel()
		if err := s.feed.Reconnect(ctx); err != nil {
			s.logger.Printf("Health-probe reconnect failed: %v", err)
		}
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Feed:      s.feed.State().String(),
		Exhausted: s.feed.Exhausted(),
		Graduates: s.store.Count(),
	})
}

// handleReconnect forces a feed reconnect. Idempotent: connecting while
// already connected reports success without touching the connection.
func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	observability.RecordFeedReconnect()
	if err := s.feed.Reconnect(r.Context()); err != nil {
		s.logger.Printf("Forced reconnect failed: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"feed":   s.feed.State().String(),
	})
}

// handleGraduates serves the collection: GET lists newest first, PUT
// replaces the whole collection (import), DELETE clears it.
func (s *Server) handleGraduates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.store.List(r.Context(), 0))

	case http.MethodPut:
		var graduates []*domain.Graduate
		body := io.LimitReader(r.Body, maxBodyBytes)
		if err := json.NewDecoder(body).Decode(&graduates); err != nil {
			http.Error(w, "invalid JSON body", http.StatusBadRequest)
			return
		}
		s.store.Replace(r.Context(), graduates)
		observability.UpdateGraduateCount(s.store.Count())
		s.logger.Printf("Collection replaced: %d record(s) imported", s.store.Count())
		writeJSON(w, http.StatusOK, map[string]int{"imported": s.store.Count()})

	case http.MethodDelete:
		s.store.Clear(r.Context())
		observability.UpdateGraduateCount(0)
		s.hub.BroadcastClear()
		s.logger.Println("Collection cleared")
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleNotifyTest sends a synthetic graduation through the notifier
// without touching the store or the stream.
func (s *Server) handleNotifyTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	g := testGraduate()
	err := s.notifier.Notify(r.Context(), g)
	observability.RecordNotification(err)
	if err != nil {
		s.logger.Printf("Test notification failed: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"status": "error",
			"error":  err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status      string `json:"status"`
	Uptime      string `json:"uptime"`
	Feed        string `json:"feed"`
	Exhausted   bool   `json:"exhausted"`
	LastError   string `json:"last_error,omitempty"`
	Graduates   int    `json:"graduates"`
	Subscribers int    `json:"subscribers"`
}

// handleStatus returns a detailed operational snapshot.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:      "running",
		Uptime:      time.Since(s.started).String(),
		Feed:        s.feed.State().String(),
		Exhausted:   s.feed.Exhausted(),
		Graduates:   s.store.Count(),
		Subscribers: s.hub.SubscriberCount(),
	}
	if err := s.feed.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// Run serves HTTP until the context is cancelled, then drains with a
// bounded shutdown.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Printf("HTTP server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// testGraduate builds the synthetic record used by /notify/test.
func testGraduate() *domain.Graduate {
	name := "Test Token"
	symbol := "TEST"
	price := 0.0001
	marketCap := 100_000.0
	liquidity := 25_000.0
	return &domain.Graduate{
		Mint:         "TestMint1111111111111111111111111111111111",
		Name:         &name,
		Symbol:       &symbol,
		GraduatedAt:  time.Now().UnixMilli(),
		PriceUsd:     &price,
		MarketCap:    &marketCap,
		LiquidityUsd: &liquidity,
		Dex:          domain.FallbackDex,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
