// Package server exposes the chart lookups, their history and fixture send
// jobs over HTTP and WebSocket.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/raysh454/paipan/internal/app"
	"github.com/raysh454/paipan/internal/history"
	"github.com/raysh454/paipan/internal/logging"
	"github.com/raysh454/paipan/internal/paipan"
)

// Server is the HTTP + WebSocket API surface.
type Server struct {
	cfg      Config
	app      *app.Application
	router   chi.Router
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewServer wires routes onto the services held by a.
func NewServer(cfg Config, a *app.Application) (*Server, error) {
	if a == nil {
		return nil, errors.New("application is nil")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = a.Logger
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if cfg.ListenAddr == "" && a.Config != nil {
		cfg.ListenAddr = a.Config.ListenAddr
	}

	r := chi.NewRouter()
	s := &Server{
		cfg:    cfg,
		app:    a,
		router: r,
		logger: logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// The API is meant for local tools; any origin may connect.
				return true
			},
		},
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/api/bazi", s.optionsHandler("GET"))
	r.Options("/api/liuyao", s.optionsHandler("GET"))
	r.Options("/api/history", s.optionsHandler("GET"))
	r.Options("/api/history/{id}", s.optionsHandler("GET"))
	r.Options("/jobs", s.optionsHandler("GET"))
	r.Options("/jobs/send", s.optionsHandler("POST"))
	r.Options("/jobs/{jobID}", s.optionsHandler("GET, DELETE"))
	r.Options("/ws/send", s.optionsHandler("GET"))

	// Charts
	r.Get("/api/bazi", s.handleBaZi)
	r.Get("/api/liuyao", s.handleLiuYao)

	// History
	r.Get("/api/history", s.handleListHistory)
	r.Get("/api/history/{id}", s.handleGetHistory)

	// Jobs over REST
	r.Post("/jobs/send", s.handleStartSendJob)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)

	// WebSocket for send job progress
	r.Get("/ws/send", s.handleSendWS)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, msgNotFound)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}
	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}
	if r.Body != nil && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
		if bodyBytes, err := io.ReadAll(r.Body); err == nil {
			fields = append(fields, logging.Field{Key: "body", Value: string(bodyBytes)})
			r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		}
	}
	s.logger.Info("http_request", fields...)
	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// --- HTTP handlers ---

// Charts

func (s *Server) handleBaZi(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		query paipan.BaZiQuery
		ok    = true
	)
	query.Year, ok = requiredInt(q, "year", ok)
	query.Month, ok = requiredInt(q, "month", ok)
	query.Day, ok = requiredInt(q, "day", ok)
	query.Hour, ok = requiredInt(q, "hour", ok)
	query.Province = strings.TrimSpace(q.Get("province"))
	query.City = strings.TrimSpace(q.Get("city"))
	if !ok || query.Province == "" || query.City == "" {
		s.logger.Warn("bazi: missing parameters", logging.Field{Key: "query", Value: q.Encode()})
		writeError(w, http.StatusBadRequest, msgBaZiMissingParams)
		return
	}

	var err error
	if query.Minute, err = optionalInt(q, "minute", 0); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if query.Gender, err = optionalInt(q, "gender", paipan.Male); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	chart, err := s.app.Charts.BaZi(r.Context(), query)
	if err != nil {
		s.writeChartError(w, err, msgBaZiNoContent)
		return
	}
	s.recordLookup(r.Context(), w, history.KindBaZi, query, chart)
	s.logger.Info("served bazi chart", logging.Field{Key: "year", Value: query.Year})
	writeJSON(w, http.StatusOK, chart)
}

func (s *Server) handleLiuYao(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var (
		query paipan.LiuYaoQuery
		ok    = true
	)
	query.Event = strings.TrimSpace(q.Get("event"))
	query.Year, ok = requiredInt(q, "year", ok)
	query.Month, ok = requiredInt(q, "month", ok)
	query.Day, ok = requiredInt(q, "day", ok)
	query.Hour, ok = requiredInt(q, "hour", ok)
	if !ok || query.Event == "" {
		s.logger.Warn("liuyao: missing parameters", logging.Field{Key: "query", Value: q.Encode()})
		writeError(w, http.StatusBadRequest, msgLiuYaoMissing)
		return
	}

	var err error
	if query.Minute, err = optionalInt(q, "minute", 0); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	chart, err := s.app.Charts.LiuYao(r.Context(), query)
	if err != nil {
		s.writeChartError(w, err, msgLiuYaoNoContent)
		return
	}
	s.recordLookup(r.Context(), w, history.KindLiuYao, query, chart)
	s.logger.Info("served liuyao chart", logging.Field{Key: "event", Value: query.Event})
	writeJSON(w, http.StatusOK, chart)
}

// writeChartError maps lookup failures: bad input is the client's fault,
// everything else is a failed upstream exchange.
func (s *Server) writeChartError(w http.ResponseWriter, err error, noContentMsg string) {
	s.logger.Warn("chart lookup failed", logging.Err(err))
	switch {
	case errors.Is(err, paipan.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, paipan.ErrNoContent):
		writeError(w, http.StatusBadGateway, noContentMsg)
	case errors.Is(err, paipan.ErrUpstreamStatus):
		writeError(w, http.StatusBadGateway, msgUpstreamFailed+err.Error())
	default:
		writeError(w, http.StatusBadGateway, msgUnknownError+err.Error())
	}
}

// recordLookup stores a served chart. Storage failures never fail the
// request.
func (s *Server) recordLookup(ctx context.Context, w http.ResponseWriter, kind string, query, chart any) {
	if s.app.History == nil {
		return
	}
	l, err := s.app.History.Add(ctx, kind, query, chart)
	if err != nil {
		s.logger.Warn("storing lookup", logging.Field{Key: "kind", Value: kind}, logging.Err(err))
		return
	}
	w.Header().Set(LookupIDHeader, l.ID)
}

// History

func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.app.History == nil {
		writeJSON(w, http.StatusOK, []history.Lookup{})
		return
	}
	limit := 0
	if ls := r.URL.Query().Get("limit"); ls != "" {
		if v, err := strconv.Atoi(ls); err == nil && v > 0 {
			limit = v
		}
	}
	lookups, err := s.app.History.List(r.Context(), limit)
	if err != nil {
		s.logger.Warn("listing history", logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("listed history", logging.Field{Key: "count", Value: len(lookups)})
	writeJSON(w, http.StatusOK, lookups)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.app.History == nil {
		writeError(w, http.StatusNotFound, history.ErrNotFound.Error())
		return
	}
	l, err := s.app.History.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, history.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.logger.Warn("getting history", logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// Jobs (REST)

func (s *Server) handleStartSendJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.app.Orch.StartSendJob(r.Context())
	if err != nil {
		s.logger.Warn("starting send job", logging.Err(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("started send job", logging.Field{Key: "job_id", Value: job.ID})
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job := s.app.Orch.GetJob(jobID)
	if job == nil {
		s.logger.Warn("getting job: not found", logging.Field{Key: "job_id", Value: jobID})
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if s.app.Orch.GetJob(jobID) == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	s.app.Orch.CancelJob(jobID)
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	writeJSON(w, http.StatusNoContent, nil)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.app.Orch.ListJobs()
	s.logger.Info("listed jobs", logging.Field{Key: "count", Value: len(jobs)})
	writeJSON(w, http.StatusOK, jobs)
}

// WebSockets

func (s *Server) handleSendWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Err(err))
		return
	}
	defer conn.Close()

	job, err := s.app.Orch.StartSendJob(r.Context())
	if err != nil {
		s.logger.Warn("starting send job", logging.Err(err))
		_ = conn.WriteJSON(ErrorResponse{Error: err.Error()})
		return
	}
	s.logger.Info("started send job", logging.Field{Key: "job_id", Value: job.ID})
	_ = conn.WriteJSON(job)

	for ev := range job.Events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; cancel job
			s.app.Orch.CancelJob(job.ID)
			return
		}
	}
}

// requiredInt parses a required integer parameter. ok carries failure
// forward so callers can check once.
func requiredInt(q url.Values, name string, ok bool) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(q.Get(name)))
	if err != nil {
		return 0, false
	}
	return v, ok
}

func optionalInt(q url.Values, name string, def int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("参数无效: " + name)
	}
	return v, nil
}
