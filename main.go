// api/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	"lookbook/api/analytics"
	"lookbook/api/cache"
	"lookbook/api/config"
	"lookbook/api/database"
	"lookbook/api/gate"
	"lookbook/api/handlers"
	"lookbook/api/ingest"
	"lookbook/api/logging"
	"lookbook/api/store"
	"lookbook/api/tracker"
	"lookbook/api/utils"
)

func main() {
	// Load .env file at the very start
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("no .env file loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	logging.Init(cfg.LogLevel, cfg.LogPretty)

	if cfg.IsRelease() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- PostgreSQL (catalog, retailers, admins) ---
	dbClient, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize PostgreSQL database")
	}
	defer dbClient.Close()

	if err := database.Migrate(dbClient.DB); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// --- ClickHouse (analytics events) ---
	chClient, err := database.NewClickHouseDB(ctx, database.ClickHouseConfig{
		Addr:     cfg.ClickHouseAddr(),
		Database: cfg.ClickHouseDB,
		Username: cfg.ClickHouseUser,
		Password: cfg.ClickHousePassword,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize ClickHouse database")
	}
	defer chClient.Close()

	if err := chClient.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to create ClickHouse schema")
	}

	aggCache := newCache(ctx, cfg)
	defer aggCache.Close()

	// --- Stores ---
	userStore := store.NewUserStore(dbClient.DB)
	productStore := store.NewProductStore(dbClient.DB)
	moodboardStore := store.NewMoodboardStore(dbClient.DB)
	retailerStore := store.NewRetailerStore(dbClient.DB)
	analyticsStore := store.NewAnalyticsStore(chClient)

	jwtManager := utils.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)
	if cfg.AdminEmail != "" {
		bootstrapAdmin(ctx, userStore, cfg.AdminEmail, cfg.AdminPassword)
	}

	// --- Services ---
	ingestSvc := ingest.NewService(analyticsStore)
	analyticsSvc := analytics.NewService(analyticsStore, productStore, aggCache, cfg.CacheTTL)

	// Server-side events (affiliate clicks) go through the same buffer a
	// client would use, delivered in-process.
	clickBuffer := tracker.New(ingest.LocalSender(ingestSvc))
	clickBuffer.Start(ctx)

	redirectGate := gate.New(productStore, retailerStore, clickBuffer, gate.TrackingParams{
		Source:   cfg.UTMSource,
		Medium:   cfg.UTMMedium,
		Campaign: cfg.UTMCampaign,
		Ref:      cfg.TrackingRef,
	}, cfg.RedirectCountdown)

	r := handlers.NewRouter(handlers.RouterConfig{
		FEOrigin:        cfg.FEOrigin,
		TrackRateLimit:  cfg.TrackRateLimit,
		TrackRateWindow: cfg.TrackRateWindow,
		JWT:             jwtManager,
		Cache:           aggCache,
		Auth:            handlers.NewAuthHandlers(userStore, jwtManager, cfg.IsRelease()),
		Analytics:       handlers.NewAnalyticsHandlers(ingestSvc, analyticsSvc),
		Catalog:         handlers.NewCatalogHandlers(productStore, moodboardStore, retailerStore),
		Retailers:       handlers.NewRetailerHandlers(retailerStore),
		Redirects:       handlers.NewRedirectHandlers(redirectGate),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Msg("Go API server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Go API server failed to start")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := clickBuffer.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("final click flush failed")
	}

	log.Info().Msg("Server exiting.")
}

func newCache(ctx context.Context, cfg *config.Config) cache.Cacher {
	if cfg.UseRedisCache() {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, "lookbook:")
		if err == nil {
			log.Info().Msg("aggregation cache: redis")
			return rc
		}
		log.Warn().Err(err).Msg("redis unavailable, falling back to in-memory cache")
	}
	mc := cache.NewMemory()
	mc.StartCleanup(time.Minute)
	log.Info().Msg("aggregation cache: in-memory")
	return mc
}

func bootstrapAdmin(ctx context.Context, users *store.UserStore, email, password string) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to hash bootstrap admin password")
	}
	if err := users.EnsureAdmin(ctx, email, hash); err != nil {
		log.Fatal().Err(err).Msg("failed to create bootstrap admin")
	}
}
