package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fundsavy/fundsavy/pkg/auth"
	"github.com/fundsavy/fundsavy/pkg/auth/sessionauth"
	"github.com/fundsavy/fundsavy/pkg/chat"
	"github.com/fundsavy/fundsavy/pkg/fetch"
	"github.com/fundsavy/fundsavy/pkg/groups"
	"github.com/fundsavy/fundsavy/pkg/session"
)

// Config configures a Server.
type Config struct {
	// Addr is the listen address used by Run.
	Addr string

	// ShutdownTimeout bounds graceful shutdown. Default: 10s.
	ShutdownTimeout time.Duration

	// Provider signs users in. Required.
	Provider auth.Provider

	// Sessions holds signed-in sessions. Required.
	Sessions *session.Manager

	// CookieName overrides the session cookie name.
	CookieName string

	// Groups, when set, is served under /groups and read by live screens
	// unless Retriever is also set.
	Groups *groups.Store

	// Retriever reads groups for live screens.
	Retriever fetch.Retriever

	// ScreenOptions are applied to every live screen.
	ScreenOptions []chat.Option

	// Metrics serves /metrics. Default: promhttp.Handler().
	Metrics http.Handler

	// CheckOrigin validates WebSocket origins. Default: same host only.
	CheckOrigin func(r *http.Request) bool

	// Logger is the server logger. Default: slog.Default().
	Logger *slog.Logger
}

// Server serves the REST API, the auth endpoints and live group screens.
type Server struct {
	config    Config
	provider  auth.Provider
	sessions  *session.Manager
	cookies   *sessionauth.Provider
	retriever fetch.Retriever
	router    chi.Router
	upgrader  websocket.Upgrader
	logger    *slog.Logger

	httpServer *http.Server

	mu      sync.Mutex
	closing chan struct{}
	closed  bool
	screens sync.WaitGroup
}

// New creates a server from config.
func New(config Config) (*Server, error) {
	if config.Provider == nil {
		return nil, errors.New("server: no auth provider")
	}
	if config.Sessions == nil {
		return nil, errors.New("server: no session manager")
	}
	retriever := config.Retriever
	if retriever == nil && config.Groups != nil {
		retriever = config.Groups
	}
	if retriever == nil {
		return nil, errors.New("server: no group source")
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if config.Metrics == nil {
		config.Metrics = promhttp.Handler()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var cookieOpts []sessionauth.Option
	if config.CookieName != "" {
		cookieOpts = append(cookieOpts, sessionauth.WithCookieName(config.CookieName))
	}

	s := &Server{
		config:    config,
		provider:  config.Provider,
		sessions:  config.Sessions,
		cookies:   sessionauth.New(config.Sessions, cookieOpts...),
		retriever: retriever,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     config.CheckOrigin,
		},
		logger:  logger.With("component", "server"),
		closing: make(chan struct{}),
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RequestLogger(&chimw.DefaultLogFormatter{
		Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelDebug),
		NoColor: true,
	}))
	r.Use(chimw.Recoverer)
	r.Use(s.cookies.Middleware())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", s.config.Metrics)

	if s.config.Groups != nil {
		r.Mount("/groups", s.config.Groups.Routes())
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", s.handleSignup)
		r.Post("/login", s.handleLogin)
		r.Get("/google", s.handleGoogle)
		r.Get("/google/callback", s.handleGoogleCallback)
		r.Post("/phone", s.handlePhone)
		r.Post("/phone/verify", s.handlePhoneVerify)
		r.Post("/phone/resend", s.handlePhoneResend)
		r.Post("/logout", s.handleLogout)
		r.With(auth.RequireAuth).Get("/me", s.handleMe)
	})

	r.With(auth.RequireAuth).Get("/ws/groups/{id}", s.handleGroupSocket)
	return r
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on the configured address and serves until ctx is done, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "address", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down...")
		return s.Shutdown(context.Background())
	}
}

// Shutdown closes live screens and gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.closing)
	}
	srv := s.httpServer
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.screens.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("live screens still open at shutdown")
	}

	if srv != nil {
		if err := srv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			return err
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Cookies returns the session cookie provider.
func (s *Server) Cookies() *sessionauth.Provider {
	return s.cookies
}
