package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sunelia/solar-funnel/internal/countdown"
	"github.com/sunelia/solar-funnel/internal/funnel"
	httpmiddleware "github.com/sunelia/solar-funnel/internal/http/middleware"
	"github.com/sunelia/solar-funnel/internal/results"
	"github.com/sunelia/solar-funnel/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger         *logging.Logger
	FunnelHandler  *funnel.Handler
	CountdownWS    *countdown.StreamHandler
	ResultsHandler *results.Handler
	MetricsHandler http.Handler

	CORSAllowedOrigins []string

	// Session creation rate limit; zero disables it.
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", healthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Backend configuration proxies.
	r.Get("/regions/{region}", cfg.FunnelHandler.GetRegionConfig)
	r.Get("/calculation-modes", cfg.FunnelHandler.GetCalculationModes)

	createSession := http.HandlerFunc(cfg.FunnelHandler.CreateSession)
	if cfg.RateLimitPerSecond > 0 {
		limited := httpmiddleware.RateLimit(cfg.RateLimitPerSecond, cfg.RateLimitBurst)(createSession)
		r.Method(http.MethodPost, "/funnel/sessions", limited)
	} else {
		r.Post("/funnel/sessions", createSession)
	}

	r.Route("/funnel/sessions/{sessionID}", func(session chi.Router) {
		session.Get("/", cfg.FunnelHandler.GetSession)
		session.Post("/next", cfg.FunnelHandler.Next)
		session.Post("/previous", cfg.FunnelHandler.Previous)
		session.Post("/goto", cfg.FunnelHandler.GoTo)
		session.Post("/reset", cfg.FunnelHandler.Reset)
		session.Put("/region", cfg.FunnelHandler.SetRegion)
		session.Put("/mode", cfg.FunnelHandler.SetMode)

		session.Get("/kits", cfg.FunnelHandler.ListKits)
		session.Put("/kit", cfg.FunnelHandler.SelectKit)
		session.Delete("/kit", cfg.FunnelHandler.ClearKit)

		session.Get("/countdown", cfg.CountdownWS.Handle)

		session.Get("/results/{tab}", cfg.ResultsHandler.GetTab)
		session.Get("/report", cfg.ResultsHandler.DownloadReport)
		session.Get("/devis", cfg.ResultsHandler.DownloadDevis)
		session.Get("/contact-expert", cfg.ResultsHandler.ContactExpert)
	})

	return r
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
