package web

import (
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/lbastidas/inboundscan/internal/service"
)

type Server struct {
	coordinator *service.Coordinator
	ledger      *service.Ledger
	db          *sql.DB
	router      *mux.Router
	batchSize   int
	logger      *slog.Logger
}

// NewServer wires the HTTP surface. batchSize is the server-configured scan
// batch length; it is advertised in every claim response so all stations
// rebuild their scan cycle with the same constant.
func NewServer(coordinator *service.Coordinator, ledger *service.Ledger, db *sql.DB, batchSize int, logger *slog.Logger) *Server {
	s := &Server{
		coordinator: coordinator,
		ledger:      ledger,
		db:          db,
		router:      mux.NewRouter(),
		batchSize:   batchSize,
		logger:      logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/claims", s.handleClaim).Methods("POST")
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	api.HandleFunc("/sessions/{id}/heartbeat", s.handleHeartbeat).Methods("POST")
	api.HandleFunc("/sessions/{id}/sku/validate", s.handleValidateSKU).Methods("POST")
	api.HandleFunc("/sessions/{id}/items", s.handleInsertItem).Methods("POST")
	api.HandleFunc("/sessions/{id}/complete", s.handleComplete).Methods("POST")
	api.HandleFunc("/sessions/{id}/abandon", s.handleAbandon).Methods("POST")
	api.HandleFunc("/sessions/{id}/reset", s.handleReset).Methods("POST")
	api.HandleFunc("/sessions/{id}/batch/reset", s.handleResetBatch).Methods("POST")
}

// securityHeaders adds defensive HTTP response headers to every response.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Content-Security-Policy", "default-src 'none'")
		next.ServeHTTP(w, r)
	})
}

// statusRecorder wraps http.ResponseWriter to capture the written status code.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger tags every request with a request id, echoes it back in
// X-Request-Id, and logs method/path/status/duration.
func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	requestLogger(s.logger, securityHeaders(s.router)).ServeHTTP(w, r)
}

func (s *Server) ListenAndServe(addr string) error {
	s.logger.Info("starting server", "addr", addr)
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		s.logger.Error("health check failed", "error", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ok": true})
}
