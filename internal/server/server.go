package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/joseph-ayodele/expense-auditor/internal/common"
	"github.com/joseph-ayodele/expense-auditor/internal/export"
	"github.com/joseph-ayodele/expense-auditor/internal/services/audit"
)

// Server exposes sessions and execution records over HTTP.
type Server struct {
	audit   *audit.Service
	reports *export.Service
	cfg     common.ServerConfig
	logger  *zap.Logger
	tempDir string
}

type Option func(*Server)

// WithTempDir sets the directory uploads are staged under. Defaults to os.TempDir.
func WithTempDir(dir string) Option {
	return func(s *Server) { s.tempDir = dir }
}

func New(auditSvc *audit.Service, reports *export.Service, cfg common.ServerConfig, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{audit: auditSvc, reports: reports, cfg: cfg, logger: logger}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", s.createSession)

		r.Get("/executions", s.listExecutions)
		r.Get("/executions/{id}", s.getExecution)
		r.Delete("/executions/{id}", s.deleteExecution)
		r.Get("/executions/{id}/report", s.executionReport)

		r.Get("/agents/{agentID}/executions", s.listAgentExecutions)
	})
	return r
}

// requestLogger logs one line per request and stores a request scoped logger in the context.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		ctx := common.WithLogger(common.WithRequestID(r.Context(), reqID), s.logger)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		common.LoggerFromContext(ctx, s.logger).Info("http.request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Int64("elapsed_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.audit.Ping(r.Context()); err != nil {
		writeError(w, r, s.logger, "", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
