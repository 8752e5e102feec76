// Package server exposes the candidate registry and interview sessions over a
// JSON HTTP API. Interview replies are streamed as server-sent events.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/aura-hire/internal/candidate"
	"github.com/spigell/aura-hire/internal/interview"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Candidates is the registry surface used by the API.
type Candidates interface {
	Add(ctx context.Context, name, position string) (candidate.Candidate, error)
	Remove(ctx context.Context, id string) (bool, error)
	UpdateStatus(ctx context.Context, id string, status candidate.Status) (bool, error)
	List(ctx context.Context) ([]candidate.Candidate, error)
	Get(ctx context.Context, id string) (candidate.Candidate, bool, error)
	Clear(ctx context.Context) (int, error)
}

type Server struct {
	candidates Candidates
	interviews *interview.Manager
	logger     *zap.Logger
	handler    http.Handler
}

func New(candidates Candidates, interviews *interview.Manager, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		candidates: candidates,
		interviews: interviews,
		logger:     log,
	}
	s.handler = s.withAccessLog(s.routes())
	return s
}

func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})

	mux.HandleFunc("GET /api/candidates", s.listCandidates)
	mux.HandleFunc("POST /api/candidates", s.createCandidate)
	mux.HandleFunc("DELETE /api/candidates", s.clearCandidates)
	mux.HandleFunc("GET /api/candidates/{id}", s.getCandidate)
	mux.HandleFunc("DELETE /api/candidates/{id}", s.removeCandidate)
	mux.HandleFunc("PUT /api/candidates/{id}/status", s.updateStatus)

	mux.HandleFunc("POST /api/interviews", s.startInterview)
	mux.HandleFunc("GET /api/interviews/{sessionId}/messages", s.interviewMessages)
	mux.HandleFunc("POST /api/interviews/{sessionId}/messages", s.sendMessage)
	mux.HandleFunc("POST /api/interviews/{sessionId}/restart", s.restartInterview)
	mux.HandleFunc("DELETE /api/interviews/{sessionId}", s.endInterview)

	return mux
}

// Run serves the API on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the flusher of the real writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}

		next.ServeHTTP(rec, r)

		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
