package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/secmon-lab/trendscope/pkg/usecase"
	"github.com/secmon-lab/trendscope/pkg/utils/logging"
)

const (
	DefaultAnalyzeTimeout = 2 * time.Minute
	DefaultMaxBodyBytes   = 64 * 1024
)

type Server struct {
	router         *chi.Mux
	uc             *usecase.UseCases
	analyzeTimeout time.Duration
	maxBodyBytes   int64
}

type Options func(*Server)

// WithAnalyzeTimeout bounds one analyze request, fetch and synthesis included
func WithAnalyzeTimeout(d time.Duration) Options {
	return func(s *Server) {
		s.analyzeTimeout = d
	}
}

func WithMaxBodyBytes(n int64) Options {
	return func(s *Server) {
		s.maxBodyBytes = n
	}
}

func New(uc *usecase.UseCases, opts ...Options) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:         r,
		uc:             uc,
		analyzeTimeout: DefaultAnalyzeTimeout,
		maxBodyBytes:   DefaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(accessLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.statusHandler)
		r.Post("/analyze", s.analyzeHandler)

		r.Get("/sessions", s.listSessionsHandler)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Delete("/", s.closeSessionHandler)
			r.Get("/report", s.reportHandler)
			r.Get("/documents", s.documentsHandler)
			r.Post("/ask", s.askHandler)
			r.Get("/suggestions", s.suggestionsHandler)
			r.Get("/conversation", s.conversationHandler)
			r.Delete("/conversation", s.clearConversationHandler)
		})
	})

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// accessLogger is a middleware that logs HTTP requests
func accessLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			logging.From(r.Context()).Info("access",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"remote", r.RemoteAddr,
				"user_agent", r.UserAgent(),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}
