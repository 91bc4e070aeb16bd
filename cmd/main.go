package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"github.com/Amatex1/pryde-backend-sub002/internal/client"
	"github.com/Amatex1/pryde-backend-sub002/internal/config"
	"github.com/Amatex1/pryde-backend-sub002/internal/dedup"
	"github.com/Amatex1/pryde-backend-sub002/internal/handler"
	"github.com/Amatex1/pryde-backend-sub002/internal/hub"
	"github.com/Amatex1/pryde-backend-sub002/internal/notify"
	"github.com/Amatex1/pryde-backend-sub002/internal/ratelimit"
	"github.com/Amatex1/pryde-backend-sub002/internal/service"
	"github.com/Amatex1/pryde-backend-sub002/internal/usercache"
	"github.com/Amatex1/pryde-backend-sub002/pkg/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log.Init(log.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty,
		ServiceName: "realtime-service",
	})
	l := log.L()

	l.Info().Str("host", cfg.Server.Host).Int("port", cfg.Server.Port).Msg("starting realtime service")

	// Platform core API client (document store, directory, auth, push).
	platform := client.NewPlatformClient(cfg.Platform.BaseURL, cfg.Platform.Timeout)

	policies := ratelimit.DefaultPolicies()
	rateStore, dedupStore := buildStores(cfg, policies)

	limiter := ratelimit.NewLimiter(rateStore, policies)
	defer limiter.Close()

	deduper := dedup.NewDeduper(dedupStore, platform, cfg.Dedup.BucketWidth, cfg.Dedup.TTL)
	defer deduper.Close()

	users := usercache.New(platform, cfg.UserCache.TTL, cfg.UserCache.SweepInterval)
	defer users.Close()

	wsHub := hub.NewHub()
	notifier := notify.NewNotifier(wsHub, platform.Notifications(), platform)
	svc := service.NewRealtimeService(wsHub, limiter, deduper, platform, notifier, users, platform)

	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware(*l))

	handler.NewWSHandler(wsHub, svc, cfg.WebSocket).RegisterRoutes(router)
	handler.NewHTTPHandler(wsHub).RegisterRoutes(router)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		l.Info().Str("addr", server.Addr).Msg("realtime service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info().Msg("shutting down realtime service")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		l.Warn().Err(err).Msg("server forced to shutdown")
	}

	l.Info().Msg("realtime service stopped")
}

// buildStores selects the backend pair. A missing Redis address is a
// degraded-but-running configuration, not a crash: the service falls back to
// in-process stores with a warning.
func buildStores(cfg *config.Config, policies map[string]ratelimit.Policy) (ratelimit.Store, dedup.Store) {
	l := log.L()

	if cfg.Redis.Address == "" {
		l.Warn().Msg("no redis address configured, using in-process rate limit and dedup stores")
		return ratelimit.NewLocalStore(ratelimit.MaxWindow(policies), cfg.RateLimit.SweepInterval),
			dedup.NewLocalStore(cfg.Dedup.SweepInterval)
	}

	rateStore, err := ratelimit.NewRedisStore(redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}))
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize redis rate limit store")
	}

	dedupStore, err := dedup.NewRedisStore(redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}))
	if err != nil {
		l.Fatal().Err(err).Msg("failed to initialize redis dedup store")
	}

	l.Info().Str(log.FieldBackend, "redis").Str("addr", cfg.Redis.Address).Msg("shared backend connected")
	return rateStore, dedupStore
}
