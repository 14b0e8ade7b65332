package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/middleware/ratelimit"
	"fintrack/internal/middleware/security"
	"fintrack/internal/middleware/trace"
	"fintrack/internal/services"
	appweb "fintrack/web"
)

// Finance is the service surface the HTTP layer needs.
type Finance interface {
	StoreName() string
	Ping(ctx context.Context) error
	CurrentMonth() string

	ListTransactions(ctx context.Context) ([]core.Transaction, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error

	ListBudgets(ctx context.Context, month string) ([]core.Budget, error)
	GetBudget(ctx context.Context, id string) (core.Budget, error)
	UpsertBudget(ctx context.Context, category, month string, amount decimal.Decimal) (core.Budget, bool, error)
	UpdateBudget(ctx context.Context, id string, patch core.BudgetPatch) (core.Budget, error)
	DeleteBudget(ctx context.Context, id string) error

	Dashboard(ctx context.Context) (analytics.Dashboard, error)
	ExpensesByCategory(ctx context.Context, month string) (analytics.CategoryTotals, error)
	BudgetUsage(ctx context.Context, month string) ([]analytics.BudgetUsage, error)
	Insights(ctx context.Context, month string) ([]analytics.Insight, error)
	MonthReport(ctx context.Context, month string) (services.MonthReport, error)
	MonthlyOverview(ctx context.Context, n int) ([]analytics.MonthTotals, error)
	DashboardSnapshot(ctx context.Context, month string) (services.DashboardSnapshot, error)
	AvailableMonths(ctx context.Context) ([]string, error)
	SeedSampleData(ctx context.Context) (services.SeedResult, error)
}

// Options tunes the server. Zero values select the defaults.
type Options struct {
	RateLimitPerMinute int
	Logger             *applog.Logger
}

type Server struct {
	http.Server
	finance   Finance
	templates *template.Template
	logger    *applog.Logger
	limiter   *ratelimit.Limiter
	detector  *security.Detector
	tracer    *trace.Middleware
	startTime time.Time
	now       func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run http.Server.
func NewServer(addr string, finance Finance, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		finance:   finance,
		logger:    logger,
		detector:  security.NewDetector(logger),
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		startTime: time.Now(),
		now:       time.Now,
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	t, err := template.New("").Funcs(templateFuncs).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		logger.Warn("Failed parsing templates", applog.FieldError, err.Error())
	}
	s.templates = t

	s.Handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(applog.Middleware(s.logger))
	r.Use(s.tracer.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.detector.Middleware)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		r.With(security.StaticAssetMiddleware(3600)).Handle("/static/*", static)
	} else {
		s.logger.Warn("Failed to mount embedded static FS", applog.FieldError, err.Error())
	}

	r.Get("/", s.handleDashboard)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Get("/transactions", s.handleListTransactions)
		r.Get("/transactions/{id}", s.handleGetTransaction)
		r.Get("/budgets", s.handleListBudgets)
		r.Get("/budgets/{id}", s.handleGetBudget)

		r.Get("/analytics/summary", s.handleSummary)
		r.Get("/analytics/categories", s.handleCategories)
		r.Get("/analytics/budget-usage", s.handleBudgetUsage)
		r.Get("/analytics/insights", s.handleInsights)
		r.Get("/analytics/report", s.handleMonthReport)
		r.Get("/analytics/monthly", s.handleMonthlyOverview)
		r.Get("/months", s.handleMonths)

		r.Group(func(r chi.Router) {
			r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, s.rateLimited))

			r.Post("/transactions", s.handleCreateTransaction)
			r.Put("/transactions/{id}", s.handleUpdateTransaction)
			r.Delete("/transactions/{id}", s.handleDeleteTransaction)
			r.Post("/budgets", s.handleUpsertBudget)
			r.Put("/budgets/{id}", s.handleUpdateBudget)
			r.Delete("/budgets/{id}", s.handleDeleteBudget)
			r.Post("/sample-data", s.handleSeedSampleData)
		})

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			NewJSONResponse().Status(http.StatusNotFound).Error("route not found").Write(w)
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			NewJSONResponse().Status(http.StatusMethodNotAllowed).Error("method not allowed").Write(w)
		})
	})

	// dashboard forms post here and redirect back
	r.Group(func(r chi.Router) {
		r.Use(s.limiter.Middleware(s.detector.ExtractClientIP, nil))
		r.Post("/transactions", s.handleTransactionForm)
		r.Post("/transactions/{id}/edit", s.handleTransactionEditForm)
		r.Post("/transactions/{id}/delete", s.handleTransactionDeleteForm)
		r.Post("/budgets", s.handleBudgetForm)
		r.Post("/budgets/{id}/delete", s.handleBudgetDeleteForm)
		r.Post("/sample-data", s.handleSampleDataForm)
	})

	return r
}

func (s *Server) rateLimited(w http.ResponseWriter, r *http.Request) {
	applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		applog.FieldClientIP, s.detector.ExtractClientIP(r),
		applog.FieldPath, r.URL.Path)
	NewJSONResponse().
		Status(http.StatusTooManyRequests).
		Error("rate limit exceeded, please try again later").
		Write(w)
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
