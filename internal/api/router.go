package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/slidecast/internal/api/handlers"
	"github.com/nikhilbhutani/slidecast/internal/api/middleware"
	"github.com/nikhilbhutani/slidecast/internal/config"
)

type Router struct {
	mux     *chi.Mux
	svc     handlers.PresentationService
	redis   *redis.Client
	cfg     *config.Config
	limiter *middleware.RateLimiter
	logger  *slog.Logger
}

// NewRouter wires the HTTP surface. rdb may be nil when no answer cache is
// configured.
func NewRouter(svc handlers.PresentationService, rdb *redis.Client, cfg *config.Config, logger *slog.Logger) *Router {
	return &Router{
		mux:     chi.NewRouter(),
		svc:     svc,
		redis:   rdb,
		cfg:     cfg,
		limiter: middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst),
		logger:  logger,
	}
}

func (rt *Router) Setup() http.Handler {
	r := rt.mux

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(rt.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(rt.cfg.Server.CORSOrigins))

	// Health endpoints (not rate limited)
	health := handlers.NewHealthHandler(rt.redis)
	r.Get("/", handlers.Welcome)
	r.Get("/healthz", health.Healthz)
	r.Get("/readyz", health.Readyz)

	presH := handlers.NewPresentationHandler(rt.svc, int64(rt.cfg.Server.MaxUploadMB)<<20, rt.logger)
	r.Group(func(r chi.Router) {
		r.Use(rt.limiter.Limit)

		r.Post("/create-presentation/", presH.Create)
		r.Route("/presentation", func(r chi.Router) {
			r.Post("/ask", presH.Ask)
			r.Get("/{id}/video", presH.Video)
			r.Get("/{id}/audio/{filename}", presH.Audio)
		})
	})

	return r
}

// Close releases background resources held by the middleware.
func (rt *Router) Close() {
	rt.limiter.Close()
}
