package action

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/hairizuanbinnoorazman/cua-agent/logger"
	"github.com/hairizuanbinnoorazman/cua-agent/taskrun"
)

const (
	// InvocationIDHeader carries the calling platform's invocation id.
	InvocationIDHeader = "X-Invocation-Id"

	// RequestIDHeader carries a per-request id used only to correlate logs.
	RequestIDHeader = "X-Request-Id"
)

const maxPayloadBytes = 1 << 20

// Server serves registered apps over HTTP.
type Server struct {
	apps     map[string]*App
	slots    chan struct{}
	inflight sync.WaitGroup
	runs     taskrun.Store
	logger   logger.Logger
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRunHistory exposes task runs under /runs.
func WithRunHistory(store taskrun.Store) ServerOption {
	return func(s *Server) {
		s.runs = store
	}
}

// NewServer creates a server running at most maxConcurrent actions at once.
func NewServer(log logger.Logger, maxConcurrent int, opts ...ServerOption) *Server {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	s := &Server{
		apps:   make(map[string]*App),
		slots:  make(chan struct{}, maxConcurrent),
		logger: log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds app to the server. It must be called before Handler.
func (s *Server) Register(app *App) {
	s.apps[app.Name()] = app
}

// Handler returns the server's router.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.Use(s.logRequests)

	router.HandleFunc("/health", s.health).Methods("GET")
	router.HandleFunc("/apps", s.listApps).Methods("GET")
	router.HandleFunc("/apps/{app}/actions/{action}", s.invoke).Methods("POST")

	if s.runs != nil {
		router.HandleFunc("/runs", s.listRuns).Methods("GET")
		router.HandleFunc("/runs/{id}", s.getRun).Methods("GET")
	}

	return router
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

// AppResponse describes a registered app.
type AppResponse struct {
	Name    string   `json:"name"`
	Actions []string `json:"actions"`
}

func (s *Server) listApps(w http.ResponseWriter, r *http.Request) {
	apps := make([]AppResponse, 0, len(s.apps))
	for _, app := range s.apps {
		apps = append(apps, AppResponse{Name: app.Name(), Actions: app.Actions()})
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].Name < apps[j].Name })
	respondJSON(w, http.StatusOK, apps)
}

func (s *Server) invoke(w http.ResponseWriter, r *http.Request) {
	s.inflight.Add(1)
	defer s.inflight.Done()

	vars := mux.Vars(r)
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)

	app, ok := s.apps[vars["app"]]
	if !ok {
		respondError(w, http.StatusNotFound, ErrAppNotFound.Error())
		return
	}
	if !app.Has(vars["action"]) {
		respondError(w, http.StatusNotFound, ErrActionNotFound.Error())
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	invocationID := invocationIDFrom(r, body)
	if invocationID != "" {
		w.Header().Set(InvocationIDHeader, invocationID)
	}
	ctx := r.Context()
	fields := map[string]interface{}{
		"app":           app.Name(),
		"action":        vars["action"],
		"request_id":    requestID,
		"invocation_id": invocationID,
	}

	if !s.acquire(ctx) {
		respondError(w, http.StatusServiceUnavailable, "request cancelled while waiting for a free slot")
		return
	}
	defer s.release()

	s.logger.Info(ctx, "action invoked", fields)

	out, err := app.Invoke(ctx, vars["action"], InvocationContext{InvocationID: invocationID}, body)
	switch {
	case errors.Is(err, ErrActionNotFound):
		respondError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, ErrInvalidPayload):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.WithFields(fields).Error(ctx, "action failed", map[string]interface{}{
			"error": err.Error(),
		})
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, out)
}

// invocationIDFrom reads the invocation id from the header, then the payload.
// It is empty when the caller supplied none.
func invocationIDFrom(r *http.Request, body []byte) string {
	if id := r.Header.Get(InvocationIDHeader); id != "" {
		return id
	}
	if len(body) > 0 {
		var envelope struct {
			InvocationID string `json:"invocation_id"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil {
			return envelope.InvocationID
		}
	}
	return ""
}

// Wait blocks until every action request being served has returned.
func (s *Server) Wait() {
	s.inflight.Wait()
}

// acquire waits for a free action slot. It returns false if ctx ends first.
func (s *Server) acquire(ctx context.Context) bool {
	select {
	case s.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (s *Server) release() {
	<-s.slots
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	total, err := s.runs.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to count task runs")
		return
	}

	runs, err := s.runs.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list task runs")
		return
	}

	respondJSON(w, http.StatusOK, PaginatedResponse{
		Items:  runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid run ID: must be a valid UUID")
		return
	}

	run, err := s.runs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, taskrun.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, "task run not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get task run")
		return
	}

	respondJSON(w, http.StatusOK, run)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// logRequests logs method, path, status and latency of every request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Debug(r.Context(), "http request", map[string]interface{}{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}
