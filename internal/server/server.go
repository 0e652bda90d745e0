package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/minisuite/minisuite/internal/core"
	"github.com/minisuite/minisuite/internal/core/auth"
	"github.com/minisuite/minisuite/internal/core/ratelimit"
	"github.com/minisuite/minisuite/internal/core/store"
	apperrors "github.com/minisuite/minisuite/internal/errors"
	"github.com/minisuite/minisuite/internal/observability"
	"github.com/minisuite/minisuite/internal/server/handlers"
	servermw "github.com/minisuite/minisuite/internal/server/middleware"
)

// Default HTTP timeouts applied when Options leaves them zero.
const (
	defaultReadTimeout  = 30 * time.Second
	defaultWriteTimeout = 30 * time.Second
	defaultIdleTimeout  = 120 * time.Second
)

// UserRepository is the user persistence the HTTP surface reads from.
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*core.User, error)
	ListUsers(ctx context.Context, q store.UserQuery) ([]core.User, error)
}

// Options wires the server's collaborators.
type Options struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Auth and Users enable the /api routes.
	Auth  *auth.Service
	Users UserRepository

	// Limiter enables rate limiting; Inspector and Backend feed the admin listing.
	Limiter     *ratelimit.Limiter
	Inspector   ratelimit.Inspector
	Backend     string
	ExemptPaths []string

	CORSOrigins []string
	HSTS        bool

	Health     *handlers.HealthManager
	AdminToken string
	Tracing    bool
}

// Server represents the HTTP server
type Server struct {
	router  *chi.Mux
	handler http.Handler
	server  *http.Server
	opts    Options
}

// New builds the router and middleware pipeline.
func New(opts Options) *Server {
	if opts.Health == nil {
		opts.Health = handlers.NewHealthManager(handlers.CurrentBuild().Version)
	}
	if opts.ExemptPaths == nil {
		opts.ExemptPaths = servermw.DefaultExemptPaths
	}

	// Every layer reports failures through the same responder.
	servermw.SetErrorResponder(HandleError)
	handlers.SetHTTPErrorResponder(HandleError)

	r := chi.NewRouter()
	r.Use(servermw.Recovery)
	r.Use(servermw.RequestID)
	r.Use(servermw.RequestMetrics)
	r.Use(servermw.SecureHeaders(servermw.SecureHeadersOptions{HSTS: opts.HSTS, NoStorePrefix: "/api/"}))
	r.Use(servermw.CORS(opts.CORSOrigins))
	r.Use(servermw.RateLimit(servermw.RateLimitOptions{
		Limiter:     opts.Limiter,
		ExemptPaths: opts.ExemptPaths,
	}))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewNotFoundError("Not Found"))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		HandleError(w, req, apperrors.NewMethodNotAllowedError("Method Not Allowed"))
	})

	s := &Server{router: r, opts: opts}
	s.registerRoutes()

	s.handler = r
	if opts.Tracing {
		s.handler = otelhttp.NewHandler(r, "minisuite.http",
			otelhttp.WithSpanNameFormatter(func(_ string, req *http.Request) string {
				return req.Method + " " + servermw.EndpointPattern(req)
			}),
		)
	}

	return s
}

// Start listens on the configured address until Shutdown is called.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  orDefault(s.opts.ReadTimeout, defaultReadTimeout),
		WriteTimeout: orDefault(s.opts.WriteTimeout, defaultWriteTimeout),
		IdleTimeout:  orDefault(s.opts.IdleTimeout, defaultIdleTimeout),
	}

	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Starting HTTP server",
			zap.String("host", s.opts.Host),
			zap.Int("port", s.opts.Port),
			zap.String("addr", addr))
	}
	s.opts.Health.MarkStarted()

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	if observability.ServerLogger != nil {
		observability.ServerLogger.Info("Shutting down HTTP server")
	}
	return s.server.Shutdown(ctx)
}

// Handler exposes the full pipeline for testing and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Port returns the server port for testing
func (s *Server) Port() int {
	return s.opts.Port
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
