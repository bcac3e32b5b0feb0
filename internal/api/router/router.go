package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/cashoffer-funnel/internal/conversion"
	httpmiddleware "github.com/wolfman30/cashoffer-funnel/internal/http/middleware"
	"github.com/wolfman30/cashoffer-funnel/internal/intake"
	"github.com/wolfman30/cashoffer-funnel/internal/observability/metrics"
	"github.com/wolfman30/cashoffer-funnel/internal/ratelimit"
	"github.com/wolfman30/cashoffer-funnel/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	LeadsHandler       *intake.Handler
	ConversionHandler  *conversion.Handler
	LeadLimiter        *ratelimit.Limiter
	ConversionLimiter  *ratelimit.Limiter
	LeadMetrics        *metrics.LeadMetrics
	MetricsHandler     http.Handler
	AdminAuthSecret    string
	CORSAllowedOrigins []string
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	if cfg.LeadsHandler != nil {
		r.Group(func(leads chi.Router) {
			leads.Use(httpmiddleware.RateLimit(cfg.LeadLimiter, cfg.Logger, cfg.LeadMetrics))
			cfg.LeadsHandler.Mount(leads)
		})
	}

	if cfg.ConversionHandler != nil {
		r.Group(func(conv chi.Router) {
			conv.Use(httpmiddleware.RateLimit(cfg.ConversionLimiter, cfg.Logger, cfg.LeadMetrics))
			conv.Post("/api/conversions", cfg.ConversionHandler.Mark)
		})
	}

	// Operator endpoints
	if cfg.AdminAuthSecret != "" && cfg.LeadsHandler != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Get("/leads/{leadId}", cfg.LeadsHandler.Lookup)
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
