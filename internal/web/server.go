package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/vbonduro/segnalazioni/internal/auth"
	"github.com/vbonduro/segnalazioni/internal/metrics"
	"github.com/vbonduro/segnalazioni/internal/photostore"
	"github.com/vbonduro/segnalazioni/internal/service"
)

const shutdownTimeout = 10 * time.Second

type Options struct {
	Verifier auth.Verifier
	// Metrics may be nil, which disables instrumentation and /metrics.
	Metrics        *metrics.Metrics
	AllowedOrigins []string
	MaxUploadBytes int64
	// PublicBaseURL prefixes photo URLs. When empty it is derived from
	// each request.
	PublicBaseURL string
	// ClientDist is a directory holding a pre-built client bundle.
	ClientDist string
}

type Server struct {
	service        *service.ReportService
	photoStore     photostore.PhotoStore
	verifier       auth.Verifier
	metrics        *metrics.Metrics
	maxUploadBytes int64
	publicBaseURL  string
	mux            *http.ServeMux
	handler        http.Handler
	logger         *slog.Logger
}

func NewServer(svc *service.ReportService, ps photostore.PhotoStore, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		service:        svc,
		photoStore:     ps,
		verifier:       opts.Verifier,
		metrics:        opts.Metrics,
		maxUploadBytes: opts.MaxUploadBytes,
		publicBaseURL:  opts.PublicBaseURL,
		mux:            http.NewServeMux(),
		logger:         logger,
	}
	s.registerRoutes(opts.ClientDist)

	s.handler = chain(logger, s.metrics, newCORS(opts.AllowedOrigins), s.mux)
	return s
}

// newCORS allows exactly the listed origins. An empty list refuses every
// cross-origin request; rs/cors would otherwise read it as "*".
func newCORS(origins []string) *cors.Cors {
	o := cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	}
	if len(origins) == 0 {
		o.AllowOriginFunc = func(string) bool { return false }
	}
	return cors.New(o)
}

// chain wraps next with the middleware stack, outermost first. recoverer
// sits inside the logger and metrics so a panic is still logged and counted
// as a 500.
func chain(logger *slog.Logger, m *metrics.Metrics, c *cors.Cors, next http.Handler) http.Handler {
	return requestLogger(logger,
		instrument(m,
			recoverer(logger,
				c.Handler(securityHeaders(next)))))
}

func (s *Server) registerRoutes(clientDist string) {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/rules", s.handleRules)
	s.mux.HandleFunc("POST /api/reports", s.handleCreateReport)
	s.mux.HandleFunc("GET /api/reports", s.requireOperator(s.handleListReports))
	s.mux.HandleFunc("GET /api/reports/stats", s.requireOperator(s.handleStats))
	s.mux.HandleFunc("GET /api/reports/{id}", s.requireOperator(s.handleGetReport))
	s.mux.HandleFunc("GET /api/reports/{id}/message", s.requireOperator(s.handleReportMessage))
	s.mux.HandleFunc("PATCH /api/reports/{id}/status", s.requireOperator(s.handleUpdateStatus))
	s.mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	s.mux.HandleFunc("GET /uploads/{key}", s.handleGetPhoto)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}

	client, ok := clientHandler(clientDist)
	if ok {
		s.logger.Info("serving client bundle", "dir", clientDist)
	}
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if !ok || (r.Method != http.MethodGet && r.Method != http.MethodHead) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		client.ServeHTTP(w, r)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
