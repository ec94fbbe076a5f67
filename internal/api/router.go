package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/magicdevops/cloudleakage/internal/accounts"
	"github.com/magicdevops/cloudleakage/internal/api/handlers"
	"github.com/magicdevops/cloudleakage/internal/api/middleware"
	"github.com/magicdevops/cloudleakage/internal/awsx"
	"github.com/magicdevops/cloudleakage/internal/inventory"
	"github.com/magicdevops/cloudleakage/pkg/config"
	"github.com/magicdevops/cloudleakage/pkg/crypto"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	Encryptor      *crypto.Encryptor
	AsynqClient    *asynq.Client
	Collector      config.CollectorConfig
	AllowedOrigins []string
	RateLimitReqs  int
	RateLimitSecs  int
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Services
	accountService := accounts.NewService(cfg.DB, cfg.Encryptor, cfg.Logger)
	validator := accounts.NewValidator(cfg.Logger)
	sessionFactory := awsx.NewSessionFactory(cfg.DB, cfg.Encryptor, cfg.Logger)
	inventoryService := inventory.NewService(cfg.DB, sessionFactory, cfg.Collector, cfg.Logger)

	// Handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	accountHandler := handlers.NewAccountHandler(accountService, validator, inventoryService)
	inventoryHandler := handlers.NewInventoryHandler(inventoryService, cfg.AsynqClient)

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", accountHandler.Create)
			r.Get("/", accountHandler.List)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", accountHandler.Get)
				r.Delete("/", accountHandler.Delete)

				r.Get("/resources", inventoryHandler.ListResources)
				r.Post("/sync", inventoryHandler.Sync)
				r.Get("/recommendations", inventoryHandler.Recommendations)
				r.Get("/alarm-analysis", inventoryHandler.AlarmAnalysis)
				r.Get("/snapshot-analysis", inventoryHandler.SnapshotAnalysis)
				r.Get("/image-analysis", inventoryHandler.ImageAnalysis)
				r.Get("/instances/{instanceID}/utilization", inventoryHandler.Utilization)
			})
		})
	})

	return &Router{r}
}
