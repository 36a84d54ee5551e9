package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/liamcoop/rulesets/internal/broadcast"
	"github.com/liamcoop/rulesets/internal/logger"
	"github.com/liamcoop/rulesets/internal/metrics"
	"github.com/liamcoop/rulesets/ruleservice"
	"github.com/liamcoop/rulesets/rules"
)

// ServerOptions tune request handling
type ServerOptions struct {
	StoreName      string
	RequestTimeout time.Duration
	MaxBodyBytes   int64

	// Ping reports store health; nil means always healthy
	Ping func(ctx context.Context) error
}

type Server struct {
	manager *ruleservice.Manager
	hub     *broadcast.Hub
	metrics *metrics.Metrics
	opts    ServerOptions
	router  *chi.Mux
}

func NewServer(manager *ruleservice.Manager, hub *broadcast.Hub, m *metrics.Metrics, opts ServerOptions) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = 1 << 20
	}

	s := &Server{
		manager: manager,
		hub:     hub,
		metrics: m,
		opts:    opts,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	// Long-lived subscriptions sit outside the request timeout
	r.Get("/ws/{rulesetId}", s.handleSubscribe)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(s.opts.RequestTimeout))

		// Health check
		r.Get("/api/v1/health", s.handleHealth)
		r.Handle("/metrics", s.metrics.Handler())

		// Ruleset management
		r.Route("/rulesets", func(r chi.Router) {
			r.Get("/", s.handleListRulesets)
			r.Post("/", s.handleCreateRuleset)
			r.Get("/{rulesetId}", s.handleGetRuleset)
			r.Delete("/{rulesetId}", s.handleDeleteRuleset)
		})

		// Evaluation
		r.Post("/evaluate/{rulesetId}", s.handleEvaluate)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// instrument counts requests by route pattern and status code
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.metrics.RecordHTTPRequest(r.Method, route, status)
	})
}

// Health check handler
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.opts.Ping != nil {
		if err := s.opts.Ping(r.Context()); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
				Status: "unhealthy",
				Store:  s.opts.StoreName,
				Error:  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:   "healthy",
		Store:    s.opts.StoreName,
		Counters: logger.Stats(),
	})
}

// Create ruleset handler
func (s *Server) handleCreateRuleset(w http.ResponseWriter, r *http.Request) {
	var rs rules.Ruleset
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(&rs); err != nil {
		respondError(w, decodeStatus(err, http.StatusBadRequest), "invalid ruleset document", err)
		return
	}

	created, err := s.manager.Create(r.Context(), &rs)
	if err != nil {
		var verr *ruleservice.ValidationError
		if errors.As(err, &verr) {
			respondError(w, http.StatusBadRequest, verr.Error(), nil)
			return
		}
		if errors.Is(err, rules.ErrReadOnlyStore) {
			respondError(w, http.StatusMethodNotAllowed, "ruleset store is read-only", nil)
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to save ruleset", err)
		return
	}

	respondJSON(w, http.StatusCreated, CreateRulesetResponse{
		RulesetID:        created.ID,
		EvaluateEndpoint: fmt.Sprintf("%s/evaluate/%s", origin(r), created.ID),
	})
}

// List rulesets handler
func (s *Server) handleListRulesets(w http.ResponseWriter, r *http.Request) {
	list, err := s.manager.List(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rulesets", err)
		return
	}
	if list == nil {
		list = []*rules.Ruleset{}
	}

	respondJSON(w, http.StatusOK, RulesetsListResponse{Rulesets: list})
}

// Get ruleset handler
func (s *Server) handleGetRuleset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "rulesetId")

	rs, err := s.manager.Get(r.Context(), id)
	if err != nil {
		respondStoreError(w, err, "failed to get ruleset")
		return
	}

	respondJSON(w, http.StatusOK, rs)
}

// Delete ruleset handler
func (s *Server) handleDeleteRuleset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "rulesetId")

	if err := s.manager.Delete(r.Context(), id); err != nil {
		respondStoreError(w, err, "failed to delete ruleset")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Evaluation handler
func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "rulesetId")

	// Existence is checked before the payload so an unknown id is always 404
	rs, err := s.manager.Get(r.Context(), id)
	if err != nil {
		respondStoreError(w, err, "failed to load ruleset")
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes))
	if err != nil {
		respondError(w, decodeStatus(err, http.StatusUnprocessableEntity), "Invalid JSON payload", err)
		return
	}
	var payload any
	if err := json.Unmarshal(data, &payload); err != nil {
		respondError(w, http.StatusUnprocessableEntity, "Invalid JSON payload", nil)
		return
	}

	result, err := s.manager.EvaluateRuleset(r.Context(), rs, payload)
	if err != nil {
		if rules.IsContractViolation(err) {
			respondError(w, http.StatusInternalServerError, "ruleset cannot be evaluated", err)
			return
		}
		respondStoreError(w, err, "evaluation failed")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Subscription handler
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "rulesetId")

	if _, err := s.manager.Get(r.Context(), id); err != nil {
		respondStoreError(w, err, "failed to load ruleset")
		return
	}

	s.hub.ServeWS(w, r, id)
}

// Helper functions
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	switch {
	case status >= 500:
		logger.ErrorHttp5xx()
		logger.Error("Request failed", "status", status, "error", err)
	case status >= 400:
		logger.WarnHttp4xx(status)
	}

	response := ErrorResponse{Error: message}
	if err != nil {
		response.Details = err.Error()
	}
	respondJSON(w, status, response)
}

// respondStoreError maps store sentinels onto HTTP statuses
func respondStoreError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, rules.ErrRulesetNotFound):
		respondError(w, http.StatusNotFound, "ruleset not found", nil)
	case errors.Is(err, rules.ErrReadOnlyStore):
		respondError(w, http.StatusMethodNotAllowed, "ruleset store is read-only", nil)
	default:
		respondError(w, http.StatusInternalServerError, message, err)
	}
}

// decodeStatus returns 413 for oversized bodies and fallback otherwise
func decodeStatus(err error, fallback int) int {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return http.StatusRequestEntityTooLarge
	}
	return fallback
}

// origin returns scheme://host of the request as seen by the client
func origin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return scheme + "://" + r.Host
}
