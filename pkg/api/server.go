package api

import (
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fableworks/collab/pkg/audit"
	"github.com/fableworks/collab/pkg/guest"
	"github.com/fableworks/collab/pkg/middleware"
	"github.com/fableworks/collab/pkg/observability"
	"github.com/fableworks/collab/pkg/projects"
	"github.com/fableworks/collab/pkg/sessions"
	"github.com/fableworks/collab/pkg/shares"
)

// Options carries everything the API server composes. Redis, metrics,
// recorder, and cache are optional; the server degrades to in-process
// equivalents when they are absent.
type Options struct {
	SessionAuthority *sessions.Authority
	ShareAuthority   *shares.Authority
	ProjectStore     projects.Store

	// Verifier authenticates owners on the management routes.
	Verifier middleware.TokenVerifier

	Participants guest.ParticipantRegistry
	Cache        *guest.SummaryCache
	Recorder     audit.Recorder
	Metrics      *observability.Metrics
	Logger       *observability.Logger

	// RedisClient switches the guest rate limiter to its distributed
	// implementation. Nil keeps the per-process token bucket.
	RedisClient *redis.Client

	// GuestRateLimit overrides the default guest limit; nil uses
	// middleware.GuestRateLimitConfig.
	GuestRateLimit *middleware.RateLimitConfig

	// ValidationRateLimit overrides the tighter limit on the
	// token-presenting routes; nil uses middleware.ValidationRateLimitConfig.
	ValidationRateLimit *middleware.RateLimitConfig

	// Tracing wraps the whole router in OpenTelemetry HTTP instrumentation.
	Tracing bool
}

// Server composes the owner and guest route trees. Owner routes sit
// behind bearer authentication; guest routes are unauthenticated but
// rate limited.
type Server struct {
	router  *mux.Router
	handler http.Handler
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewServer creates the API server and mounts all routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	if opts.Recorder == nil {
		opts.Recorder = audit.Nop{}
	}
	if opts.Participants == nil {
		opts.Participants = guest.NewMemoryRegistry()
	}

	s := &Server{
		router:  mux.NewRouter(),
		logger:  logger,
		metrics: opts.Metrics,
	}
	s.setupRoutes(opts)

	s.handler = s.router
	if opts.Tracing {
		s.handler = otelhttp.NewHandler(s.router, "collab-api")
	}
	return s
}

// setupRoutes configures the owner and guest route trees.
func (s *Server) setupRoutes(opts Options) {
	s.router.Use(mux.MiddlewareFunc(middleware.RequestID(s.logger)))

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	// Owner routes: session and share management.
	owner := s.router.PathPrefix("/api/v1").Subrouter()
	owner.Use(s.measure("owner"))
	owner.Use(mux.MiddlewareFunc(middleware.NewOwnerAuth(opts.Verifier).Handler))

	sessions.NewHandler(opts.SessionAuthority, opts.Recorder, opts.Metrics).RegisterRoutes(owner)
	shares.NewHandler(opts.ShareAuthority, opts.Recorder, opts.Metrics).RegisterRoutes(owner)

	// Guest routes: token-presenting routes get the tighter validation
	// limit, the data tree the general guest limit.
	gateway := guest.NewGateway(opts.SessionAuthority, opts.ShareAuthority)
	guestHandler := guest.NewHandler(
		gateway,
		opts.ShareAuthority,
		opts.Participants,
		opts.ProjectStore,
		opts.Cache,
		opts.Recorder,
		opts.Metrics,
	)

	validation := s.router.PathPrefix("/api/v1/access").Subrouter()
	validation.Use(s.measure("guest"))
	validation.Use(s.rateLimit(opts, validationConfig(opts), "collab:ratelimit:validate"))
	guestHandler.RegisterValidationRoutes(validation)

	data := s.router.PathPrefix("/api/v1/access").Subrouter()
	data.Use(s.measure("guest"))
	data.Use(s.rateLimit(opts, guestConfig(opts), "collab:ratelimit:guest"))
	guestHandler.RegisterDataRoutes(data)
}

func guestConfig(opts Options) *middleware.RateLimitConfig {
	if opts.GuestRateLimit != nil {
		return opts.GuestRateLimit
	}
	return middleware.GuestRateLimitConfig()
}

func validationConfig(opts Options) *middleware.RateLimitConfig {
	if opts.ValidationRateLimit != nil {
		return opts.ValidationRateLimit
	}
	return middleware.ValidationRateLimitConfig()
}

// rateLimit builds the rate limiting middleware for a guest subtree.
func (s *Server) rateLimit(opts Options, config *middleware.RateLimitConfig, prefix string) mux.MiddlewareFunc {
	onRejected := func() {
		if s.metrics != nil {
			s.metrics.RateLimitRejections.Inc()
		}
	}

	if opts.RedisClient != nil {
		limiter := middleware.NewDistributedGuestRateLimit(opts.RedisClient, config, prefix, onRejected)
		return mux.MiddlewareFunc(limiter.Handler)
	}
	limiter := middleware.NewGuestRateLimit(config, onRejected)
	return mux.MiddlewareFunc(limiter.Handler)
}

// measure wraps a subtree in the HTTP metrics middleware.
func (s *Server) measure(route string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		if s.metrics == nil {
			return next
		}
		return s.metrics.Middleware(route, next)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Router exposes the underlying router for additional mounts.
func (s *Server) Router() *mux.Router {
	return s.router
}
