package api

import (
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/neonchat/neonchat/internal/api/middleware"
	"github.com/neonchat/neonchat/internal/config"
	"github.com/neonchat/neonchat/internal/handlers"
	"github.com/neonchat/neonchat/internal/hub"
	"github.com/neonchat/neonchat/internal/store"
)

const paymentCallbackPath = "/api/payments/callback"

// NewRouter creates and configures the HTTP router. accounts and redisStore
// may be nil.
func NewRouter(logger zerolog.Logger, cfg *config.Config, relay *hub.Hub, accounts store.DataStore, redisStore *store.RedisStore) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest(paymentCallbackPath))

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	limiter := middleware.NewRateLimiter(redisStore.Client(), logger, middleware.RateLimiterConfig{
		Whitelist:        cfg.RateLimitWhitelist,
		AutoBlockEnabled: cfg.AutoBlockEnabled,
	})
	r.Use(limiter.Middleware)

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.AliasHeader, middleware.RecoveryKeyHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(accounts, redisStore, relay, cfg, logger)
	auth := middleware.NewAuthMiddleware(accounts)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Chat page and assets
	r.Get("/", serveChatPage)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir()))))

	// Relay
	r.Get("/ws", relay.ServeWS)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	r.Route("/api", func(r chi.Router) {
		r.Get("/", h.Root)

		// Accounts
		r.Post("/users/register", h.Register)
		r.Get("/users/check/{alias}", h.CheckAlias)
		r.Get("/subscription/{alias}", h.Subscription)
		r.Post("/payments/callback", h.PaymentCallback)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAccount)
			r.Post("/payments/session", h.CreatePaymentSession)
		})
	})

	return r
}

// staticDir returns the path to static files directory.
func staticDir() string {
	// Check if running from app directory (production container)
	if _, err := os.Stat("/app/web/static"); err == nil {
		return "/app/web/static"
	}
	return "web/static"
}

// serveChatPage serves the browser client.
func serveChatPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, staticDir()+"/index.html")
}
