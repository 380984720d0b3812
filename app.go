package fundsavy

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/fundsavy/fundsavy/internal/errors"
	"github.com/fundsavy/fundsavy/pkg/auth/googleauth"
	"github.com/fundsavy/fundsavy/pkg/auth/localauth"
	"github.com/fundsavy/fundsavy/pkg/chat"
	"github.com/fundsavy/fundsavy/pkg/fetch"
	"github.com/fundsavy/fundsavy/pkg/groups"
	"github.com/fundsavy/fundsavy/pkg/middleware"
	"github.com/fundsavy/fundsavy/pkg/server"
	"github.com/fundsavy/fundsavy/pkg/session"
)

// retryDelay is the pause between retries of a failed group retrieval.
const retryDelay = 500 * time.Millisecond

// App is a configured fundsavy server.
type App struct {
	config *Config
	logger *slog.Logger

	groups    *groups.Store
	retriever fetch.Retriever

	provider     *localauth.Provider
	sessionStore *session.MemoryStore
	sessions     *session.Manager
	server       *server.Server
}

// Option configures an App.
type Option func(*appOptions)

type appOptions struct {
	logger         *slog.Logger
	codeSender     localauth.CodeSender
	s3Client       fetch.S3API
	tracerProvider trace.TracerProvider
}

// WithLogger sets the application logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *appOptions) { o.logger = logger }
}

// WithCodeSender delivers phone verification codes. By default codes are
// logged.
func WithCodeSender(s localauth.CodeSender) Option {
	return func(o *appOptions) { o.codeSender = s }
}

// WithS3Client overrides the client used for s3:// group sources.
func WithS3Client(c fetch.S3API) Option {
	return func(o *appOptions) { o.s3Client = c }
}

// WithTracerProvider sets the tracer provider for retrieval spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *appOptions) { o.tracerProvider = tp }
}

// New validates cfg and builds the application.
func New(cfg *Config, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := appOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger

	a := &App{config: cfg, logger: logger}

	base, err := a.openGroups(o.s3Client)
	if err != nil {
		return nil, err
	}
	otelOpts := []middleware.OTelOption{middleware.WithTracerName(cfg.Telemetry.TracerName)}
	if o.tracerProvider != nil {
		otelOpts = append(otelOpts, middleware.WithTracerProvider(o.tracerProvider))
	}
	a.retriever = fetch.Chain(base,
		middleware.Prometheus(middleware.WithNamespace(cfg.Telemetry.MetricsNamespace)),
		middleware.OpenTelemetry(otelOpts...),
	)

	authOpts := []localauth.Option{
		localauth.WithCodeTTL(cfg.Auth.CodeTTL.D()),
		localauth.WithResendInterval(cfg.Auth.ResendInterval.D()),
		localauth.WithLogger(logger),
	}
	if g := cfg.Auth.Google; g != nil {
		ex, err := googleauth.New(googleauth.Config{
			ClientID:     g.ClientID,
			ClientSecret: g.ClientSecret,
			RedirectURL:  g.RedirectURL,
		})
		if err != nil {
			return nil, errors.New("E106").Wrap(err)
		}
		authOpts = append(authOpts, localauth.WithExchanger(ex))
	}
	if o.codeSender != nil {
		authOpts = append(authOpts, localauth.WithCodeSender(o.codeSender))
	}
	a.provider = localauth.New(authOpts...)

	a.sessionStore = session.NewMemoryStore()
	a.sessions = session.NewManager(a.sessionStore,
		session.WithTTL(cfg.Auth.SessionTTL.D()),
		session.WithLogger(logger),
	)

	a.server, err = server.New(server.Config{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout.D(),
		Provider:        a.provider,
		Sessions:        a.sessions,
		CookieName:      cfg.Auth.CookieName,
		Groups:          a.groups,
		Retriever:       a.retriever,
		ScreenOptions:   a.screenOptions(),
		Logger:          logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openGroups opens the local database, or a retriever for the configured
// remote source.
func (a *App) openGroups(s3Client fetch.S3API) (fetch.Retriever, error) {
	cfg := a.config
	if cfg.Groups.Source == "" {
		store, err := groups.Open(cfg.DBPath())
		if err != nil {
			return nil, errors.New("E202").Wrap(err)
		}
		a.groups = store
		return store, nil
	}

	r, err := fetch.Open(cfg.Groups.Source, fetch.OpenOptions{
		Timeout: cfg.Groups.Timeout.D(),
		S3: fetch.S3Options{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		},
		S3Client: s3Client,
	})
	if err != nil {
		return nil, errors.New("E203").Wrap(err)
	}
	return r, nil
}

func (a *App) screenOptions() []chat.Option {
	return []chat.Option{
		chat.WithTimeout(a.config.Groups.Timeout.D()),
		chat.WithRetry(a.config.Groups.Retries, retryDelay),
		chat.WithLogger(a.logger),
	}
}

// NewScreen returns a chat screen reading from the app's group source.
func (a *App) NewScreen(opts ...chat.Option) *chat.Screen {
	return chat.NewScreen(a.retriever, append(a.screenOptions(), opts...)...)
}

// Handler returns the HTTP handler.
func (a *App) Handler() http.Handler {
	return a.server.Handler()
}

// ServeHTTP implements http.Handler.
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.server.ServeHTTP(w, r)
}

// Run serves until ctx is done. When groups.watch is set, the local
// database is reloaded as it changes.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.config.Groups.Watch && a.groups != nil {
		if err := a.groups.Watch(ctx, a.logger, nil); err != nil {
			a.logger.Warn("groups hot reload disabled", "error", err)
		}
	}

	return a.server.Run(ctx)
}

// Close signs out live sessions and releases the session store.
func (a *App) Close() error {
	a.sessions.Close()
	return a.sessionStore.Close()
}

// Config returns the app configuration.
func (a *App) Config() *Config {
	return a.config
}

// Server returns the underlying server.
func (a *App) Server() *server.Server {
	return a.server
}

// Groups returns the local group store, or nil when groups come from a
// remote source.
func (a *App) Groups() *groups.Store {
	return a.groups
}

// Retriever returns the instrumented group retriever.
func (a *App) Retriever() fetch.Retriever {
	return a.retriever
}

// Provider returns the identity provider.
func (a *App) Provider() *localauth.Provider {
	return a.provider
}

// Sessions returns the session manager.
func (a *App) Sessions() *session.Manager {
	return a.sessions
}
