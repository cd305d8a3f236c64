package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/vnfma0218/habit-management/api"
	"github.com/vnfma0218/habit-management/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("load .env: %v", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	logger := log.StandardLogger()

	base, err := storage.New(cfg.StorageConnStr, cfg.HabitsTable, cfg.CompletionsTable, cfg.EventsQueue)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	rc := redis.NewClient(redisOptions(cfg.RedisConn))
	store := storage.NewCache(base, rc, cfg.CacheTTL)

	authCfg := api.AuthConfig{
		Audience:     cfg.Auth0Audience,
		SharedSecret: []byte(cfg.SharedSecret),
		KeyCacheTTL:  cfg.JWKSCacheTTL,
	}
	if cfg.SharedSecret == "" {
		jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
		jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{})
		if err != nil {
			log.Fatalf("jwks: %v", err)
		}
		authCfg.JWKS = jwks
		authCfg.Issuer = "https://" + cfg.Auth0Domain + "/"
	} else {
		log.Warn("bearer tokens are verified with a shared secret")
	}
	auth := api.NewAuth(authCfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewUpdateHub(rc, cfg.UpdatesChannel, logger)
	go hub.Run(ctx)

	publisher := api.NewPublisher(store, hub, logger, api.PublisherConfig{
		Workers:        cfg.PublishWorkers,
		Buffer:         cfg.PublishBuffer,
		Timeout:        30 * time.Second,
		HandoffTimeout: 50 * time.Millisecond,
	})

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "Idempotency-Key"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
	}))
	e.Use(api.GzipRequestMiddleware())
	e.Use(api.MetricsMiddleware(prometheus.DefaultRegisterer))
	e.GET("/metrics", api.MetricsHandler(prometheus.DefaultGatherer))

	api.Register(e, api.Deps{
		Store:   store,
		Auth:    auth,
		Deduper: api.NewRedisDeduper(rc, cfg.DeduperTTL),
		Locker:  api.NewRedisGroupLocker(rc, cfg.GroupLockTTL, cfg.GroupLockWait),
		Events:  publisher,
		Hub:     hub,
		Logger:  logger,
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
	publisher.Close()
	if err := rc.Close(); err != nil {
		log.Errorf("redis close: %v", err)
	}
}
