// Package web serves the chat page and the websocket front end of the agent.
package web

import (
	"context"
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/hal9000y/workspace-agent/internal/agent"
)

//go:embed index.html
var indexHTML []byte

// Runner answers one user query within a thread.
type Runner interface {
	Run(ctx context.Context, threadID, query string) (*agent.Result, error)
}

type Option func(*Server)

func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithBaseContext sets the parent context of websocket sessions. Cancelling
// it closes every open session, which http.Server.Shutdown does not do for
// hijacked connections.
func WithBaseContext(ctx context.Context) Option {
	return func(s *Server) { s.baseCtx = ctx }
}

// WithMount serves h under pattern, e.g. the OAuth callback or /metrics.
func WithMount(pattern string, h http.Handler) Option {
	return func(s *Server) { s.mounts = append(s.mounts, mount{pattern: pattern, handler: h}) }
}

type mount struct {
	pattern string
	handler http.Handler
}

// Server routes the page, the websocket and any mounted handlers.
type Server struct {
	runner   Runner
	logger   *zap.Logger
	mounts   []mount
	upgrader websocket.Upgrader
	baseCtx  context.Context
}

// NewHandler builds the HTTP handler of the front end.
func NewHandler(runner Runner, opts ...Option) http.Handler {
	s := &Server{
		runner:  runner,
		logger:  zap.NewNop(),
		baseCtx: context.Background(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleIndex)
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, m := range s.mounts {
		r.Handle(m.pattern, m.handler)
	}

	return r
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write(indexHTML); err != nil {
		s.logger.Warn("write index failed", zap.Error(err))
	}
}
