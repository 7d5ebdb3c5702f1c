package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"spendwise/internal/cache"
	"spendwise/internal/core"
	"spendwise/internal/middleware/identity"
	"spendwise/internal/middleware/ratelimit"
	"spendwise/internal/middleware/security"
	"spendwise/internal/middleware/trace"
	applog "spendwise/internal/log"
)

// ExpenseAPI is the expense service as the handlers use it.
type ExpenseAPI interface {
	Create(ctx context.Context, userID string, e core.Expense) (core.Expense, error)
	Get(ctx context.Context, userID string, id int64) (core.Expense, error)
	List(ctx context.Context, userID string, f core.ExpenseFilter) ([]core.Expense, error)
	Update(ctx context.Context, userID string, id int64, p core.ExpensePatch) (core.Expense, error)
	Delete(ctx context.Context, userID string, id int64) error
}

// StatsAPI serves the dashboard summary.
type StatsAPI interface {
	Dashboard(ctx context.Context, userID string) (core.DashboardStats, error)
}

// MessageParser turns notification text into a suggested expense.
type MessageParser interface {
	Parse(message string) core.ParsedMessage
}

// Pinger reports backend readiness for /readyz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CacheStats reports stats-cache effectiveness for /metrics.
type CacheStats interface {
	Metrics() cache.Metrics
}

// Deps are the collaborators behind the routes. Ready and Cache may be nil.
type Deps struct {
	Expenses ExpenseAPI
	Stats    StatsAPI
	Parser   MessageParser
	Ready    Pinger
	Cache    CacheStats
}

// Options tune the middleware stack.
type Options struct {
	Logger             *applog.Logger
	RateLimitPerMinute int
	AllowedOrigins     []string
}

type Server struct {
	http.Server
	deps     Deps
	logger   *applog.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	started  time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.FromContext(context.Background())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	s := &Server{
		deps:     deps,
		logger:   logger,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		detector: security.NewDetector(),
		started:  time.Now(),
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(s.tracer.Middleware)
	r.Use(s.detector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", identity.Header, trace.RequestIDHeader},
		ExposedHeaders: []string{trace.RequestIDHeader},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		NotFoundError("route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			s.logger.WarnContext(r.Context(), "Rate limit exceeded",
				applog.FieldClientIP, s.detector.ExtractClientIP(r),
				"path", r.URL.Path)
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, try again later").Write(w)
		}))

		r.Post("/expenses/parse-upi", s.handleParseMessage)

		r.Group(func(r chi.Router) {
			r.Use(identity.Middleware(func(w http.ResponseWriter, _ *http.Request) {
				UnauthorizedError("missing " + identity.Header + " header").Write(w)
			}))

			r.Get("/stats", s.handleStats)

			r.Get("/expenses", s.handleListExpenses)
			r.Post("/expenses", s.handleCreateExpense)
			r.Get("/expenses/{id}", s.handleGetExpense)
			r.Put("/expenses/{id}", s.handleUpdateExpense)
			r.Delete("/expenses/{id}", s.handleDeleteExpense)
		})
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Metrics returns request and rate-limit counters.
func (s *Server) Metrics() (trace.Metrics, ratelimit.Metrics, security.DetectionMetrics) {
	return s.tracer.GetMetrics(), s.limiter.GetMetrics(), s.detector.GetMetrics()
}

// Shutdown stops the background goroutines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
