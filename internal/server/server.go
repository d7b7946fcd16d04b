// Package server exposes a running session over HTTP for the watch command:
// health, Prometheus metrics, the derived views as JSON and a change event
// stream.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	apperrors "econsim-terminal/internal/errors"
	"econsim-terminal/internal/logging"
	"econsim-terminal/internal/metrics"
	"econsim-terminal/internal/models"
	"econsim-terminal/internal/session"
	"econsim-terminal/internal/store"
	"econsim-terminal/internal/stream"
	"econsim-terminal/internal/views"
)

// Server serves one session.
type Server struct {
	sess   *session.Session
	hub    *stream.Hub
	logger zerolog.Logger
	start  time.Time
	router chi.Router
}

// New builds the router. hub may be nil, in which case /api/events is not
// served.
func New(sess *session.Session, hub *stream.Hub, logger zerolog.Logger) *Server {
	s := &Server{
		sess:   sess,
		hub:    hub,
		logger: logger.With().Str("component", "server").Logger(),
		start:  time.Now(),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(10 * time.Second))
			r.Get("/market", s.handleMarket)
			r.Get("/inventory", s.handleInventory)
			r.Get("/map", s.handleMap)
			r.Get("/tape", s.handleTape)
			r.Get("/errors", s.handleErrors)
		})
		if s.hub != nil {
			r.Get("/events", s.handleEvents)
		}
	})
	return r
}

// ListenAndServe serves on addr until ctx is done, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 10 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Status server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	s.logger.Info().Msg("Status server stopped")
	return nil
}

// observe logs and measures each request by route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := s.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
		r = r.WithContext(logging.WithLogger(r.Context(), logger))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			path = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		metrics.ObserveHTTP(r.Method, path, status, elapsed)
		logger.Debug().
			Str("method", r.Method).
			Str("path", path).
			Int("status", status).
			Dur("duration", elapsed).
			Msg("HTTP request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := systemHealth(s.sess.Statuses(), s.start, s.sess.ReadOnly())
	status := http.StatusOK
	if health.Status == HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

// MarketView is the body of /api/market.
type MarketView struct {
	Orders []models.MarketOrder `json:"orders"`
	GoodID *int64               `json:"good_id"`
	Buy    []models.MarketOrder `json:"buy"`
	Sell   []models.MarketOrder `json:"sell"`
	Quote  views.Quote          `json:"quote"`
	Book   *models.OrderBook    `json:"book"`
	Stats  *models.MarketStats  `json:"stats"`
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	buy, sell := s.sess.Ladders()
	out := MarketView{
		Orders: s.sess.MarketTable(),
		GoodID: s.sess.MarketGood.Ptr(),
		Buy:    buy,
		Sell:   sell,
		Quote:  s.sess.Quote(),
	}
	if book, ok := s.sess.Depth.Snapshot(); ok {
		out.Book = &book
	}
	if stats, ok := s.sess.Stats.Snapshot(); ok {
		out.Stats = &stats
	}
	writeJSON(w, http.StatusOK, out)
}

// InventoryView is the body of /api/inventory.
type InventoryView struct {
	Company *models.Company      `json:"company"`
	Rows    []views.InventoryRow `json:"rows"`
	Warning string               `json:"warning,omitempty"`
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request) {
	out := InventoryView{}
	if c, ok := s.sess.SelectedCompany(); ok {
		out.Company = &c
	}
	rows, err := s.sess.InventoryRows()
	out.Rows = rows
	var ce *apperrors.ConsistencyError
	if apperrors.As(err, &ce) {
		out.Warning = ce.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// LocationView is one map entry with the viewer's controls.
type LocationView struct {
	models.Location
	Ownership views.Ownership `json:"ownership"`
	CanClaim  bool            `json:"can_claim"`
	Buildable []int64         `json:"buildable_good_ids"`
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	company := s.sess.Company.Ptr()
	locations := views.LocationsByName(s.sess.Map.Value())
	out := make([]LocationView, 0, len(locations))
	for _, loc := range locations {
		lv := LocationView{
			Location:  loc,
			Ownership: views.OwnershipOf(loc, company),
			CanClaim:  views.CanClaim(loc, company),
			Buildable: []int64{},
		}
		for _, d := range views.BuildableDeposits(loc, company) {
			lv.Buildable = append(lv.Buildable, d.GoodID)
		}
		out = append(out, lv)
	}
	writeJSON(w, http.StatusOK, out)
}

// TapeView is the body of /api/tape.
type TapeView struct {
	Trades  []models.Trade     `json:"trades"`
	Summary *store.TapeSummary `json:"summary,omitempty"`
}

func (s *Server) handleTape(w http.ResponseWriter, r *http.Request) {
	filter := store.TradeFilter{Limit: 100}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		filter.Limit = n
	}
	if raw := r.URL.Query().Get("good"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, "good must be an integer id", http.StatusBadRequest)
			return
		}
		filter.GoodID = &id
	}

	tape := s.sess.Tape()
	trades, err := tape.Trades(r.Context(), filter)
	if err != nil {
		logger := logging.FromContext(r.Context())
		logger.Error().Err(err).Msg("Reading trade tape")
		writeError(w, "trade tape unavailable", http.StatusInternalServerError)
		return
	}
	out := TapeView{Trades: trades}
	if filter.GoodID != nil {
		sum, err := tape.Summary(r.Context(), *filter.GoodID)
		if err != nil {
			logger := logging.FromContext(r.Context())
			logger.Error().Err(err).Msg("Summarising trade tape")
			writeError(w, "trade tape unavailable", http.StatusInternalServerError)
			return
		}
		out.Summary = &sum
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	entry, ok := s.sess.Errors.Get()
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleEvents streams change events as server-sent events until the
// client goes away or the hub stops.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := s.hub.SubscribeWithID(stream.AllTopics, middleware.GetReqID(r.Context()))
	defer s.hub.Unsubscribe(stream.AllTopics, ch)
	metrics.EventClients.Inc()
	defer metrics.EventClients.Dec()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: change\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
