package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"envelopes/internal/services"
	"envelopes/internal/storage"
	"envelopes/internal/text"
)

type Server struct {
	http.Server
	repo        *storage.SQLiteRepository
	ledger      *services.LedgerService
	interpreter *text.Interpreter
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(addr string, repo *storage.SQLiteRepository, ledger *services.LedgerService, interpreter *text.Interpreter) *Server {
	s := &Server{
		repo:        repo,
		ledger:      ledger,
		interpreter: interpreter,
	}

	r := mux.NewRouter()
	r.Use(requestLog)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/user/{userID}", s.handleGetUser).Methods(http.MethodGet)
	api.HandleFunc("/envelopes/{userID}", s.handleListEnvelopes).Methods(http.MethodGet)
	api.HandleFunc("/envelopes/{userID}", s.handleCreateEnvelope).Methods(http.MethodPost)
	api.HandleFunc("/envelopes/{id}", s.handleDeactivateEnvelope).Methods(http.MethodDelete)
	api.HandleFunc("/transactions/{userID}", s.handleListTransactions).Methods(http.MethodGet)
	api.HandleFunc("/transactions/{userID}", s.handleCreateTransaction).Methods(http.MethodPost)
	api.HandleFunc("/transactions/{id}", s.handleUpdateTransaction).Methods(http.MethodPut)
	api.HandleFunc("/transactions/{id}", s.handleDeleteTransaction).Methods(http.MethodDelete)
	api.HandleFunc("/stats/{userID}", s.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/webhook", s.handleWebhook).Methods(http.MethodPost)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router exposes the configured handler, mainly for tests.
func (s *Server) Router() http.Handler {
	return s.Server.Handler
}

// requestLog logs start and completion of every request with a request id.
func requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()
		ctx := r.Context()

		slog.InfoContext(ctx, "Request started",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		slog.InfoContext(ctx, "Request completed",
			"request_id", requestID,
			"method", r.Method,
			"url", r.URL.Path,
			"status", rw.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"}, r.Method, "/healthz")
}
