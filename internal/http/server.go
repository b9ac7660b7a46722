package http

import (
	"context"
	"net/http"
	"time"

	"spendlog/internal/auth"
	"spendlog/internal/log"
	"spendlog/internal/middleware/ratelimit"
	"spendlog/internal/middleware/security"
	"spendlog/internal/middleware/trace"
	"spendlog/internal/services"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a Server.
type Options struct {
	Addr        string
	CORSOrigins []string
	// RequestsPerMinute limits POST requests per client IP.
	RequestsPerMinute int
	Logger            *log.Logger
}

type Server struct {
	http.Server
	expenses *services.ExpenseService
	auth     *auth.Service
	ready    Pinger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	logger   *log.Logger
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, expenses *services.ExpenseService, authSvc *auth.Service, ready Pinger) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}

	s := &Server{
		expenses: expenses,
		auth:     authSvc,
		ready:    ready,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RequestsPerMinute}),
		detector: security.NewDetector(),
		logger:   logger.WithComponent(log.ComponentHTTP),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("POST /register", s.handleRegister)
	mux.HandleFunc("POST /login", s.handleLogin)

	protected := auth.Middleware(authSvc)
	route := func(pattern string, h http.HandlerFunc) {
		mux.Handle(pattern, protected(h))
	}
	route("POST /parse_expense", s.handleParseExpense)
	route("POST /add_expense", s.handleAddExpense)
	route("GET /summary", s.handleSummary)
	route("GET /today_expenses", s.handleToday)
	route("GET /category_summary", s.handleCategorySummary)
	route("GET /monthly_trends", s.handleMonthlyTrends)
	route("GET /weekly_trends", s.handleWeeklyTrends)
	route("GET /top_categories", s.handleTopCategories)
	route("GET /all_expenses", s.handleAllExpenses)
	route("DELETE /clear_expenses", s.handleClearExpenses)

	var h http.Handler = mux
	h = s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.detector.ExtractClientIP(r), log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	}, http.MethodPost)(h)
	h = s.flagSuspicious(h)
	h = security.CORS(opts.CORSOrigins)(h)
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = trace.NewMiddleware(logger, s.detector.ExtractClientIP).Middleware(h)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// RateLimiter exposes the limiter so its cleanup loop can be run.
func (s *Server) RateLimiter() *ratelimit.Limiter {
	return s.limiter
}

func (s *Server) flagSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.detector.DetectSuspiciousRequest(r) {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Suspicious request",
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "storage unavailable").Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}
