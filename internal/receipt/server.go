package receipt

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultMaxUpload is the per-file upload cap
const DefaultMaxUpload = 10 << 20

// Options configures the Server
type Options struct {
	// MaxUploadBytes caps each uploaded file. The whole request may carry
	// maxFilesPerRequest such files.
	MaxUploadBytes int64

	// MaxConcurrent bounds simultaneous extractions. Zero means unbounded.
	MaxConcurrent int64

	// RatePerMinute limits extraction requests across all clients. Zero disables limiting.
	RatePerMinute int
}

// Server handles HTTP requests for extractions
type Server struct {
	service   *Service
	mux       *http.ServeMux
	maxUpload int64
	slots     *semaphore.Weighted
	limiter   *rate.Limiter
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, opts Options) *Server {
	return NewServerWithMux(service, opts, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, opts Options, mux *http.ServeMux) *Server {
	s := &Server{
		service:   service,
		mux:       mux,
		maxUpload: opts.MaxUploadBytes,
	}
	if s.maxUpload <= 0 {
		s.maxUpload = DefaultMaxUpload
	}
	if opts.MaxConcurrent > 0 {
		s.slots = semaphore.NewWeighted(opts.MaxConcurrent)
	}
	if opts.RatePerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.RatePerMinute)), opts.RatePerMinute)
	}
	s.registerRoutes()
	return s
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)

		// Handle preflight OPTIONS requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// limit applies the rate limiter and the concurrency bound
func (s *Server) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			writeError(w, "Too many requests. Please try again later.", http.StatusTooManyRequests)
			return
		}
		if s.slots != nil {
			if err := s.slots.Acquire(r.Context(), 1); err != nil {
				writeError(w, "Server is busy. Please try again.", http.StatusServiceUnavailable)
				return
			}
			defer s.slots.Release(1)
		}
		next(w, r)
	}
}

// registerRoutes registers all API routes on the server's mux
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/receipts/extract", s.limit(s.handleExtract))
	s.mux.HandleFunc("GET /api/extractions/{id}", s.handleGetExtraction)
	s.mux.HandleFunc("GET /api/extractions", s.handleListExtractions)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.corsMiddleware(s.mux).ServeHTTP(w, r)
}
