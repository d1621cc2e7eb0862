package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"github.com/patrickmn/go-cache"

	"lablog-console/config"
	"lablog-console/internal/admin"
	"lablog-console/internal/api"
	"lablog-console/internal/collection"
	"lablog-console/internal/dashboard"
	"lablog-console/internal/db"
	"lablog-console/internal/fixture"
	"lablog-console/internal/inventory"
	"lablog-console/internal/mw"
	"lablog-console/internal/notification"
	"lablog-console/internal/session"
	"lablog-console/internal/store"
	"lablog-console/internal/upstream"
)

const sessionPurgePeriod = time.Hour

func main() {
	logger := log.New(os.Stdout, "lablog-console ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Printf("failed to read .env: %v", err)
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml"
	}
	cfg, err := config.Load(configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Printf("no configuration at %s, using defaults and environment", configPath)
		cfg = config.Default()
	case err != nil:
		logger.Fatalf("failed to load configuration from %s: %v", configPath, err)
	default:
		logger.Printf("configuration loaded successfully from %s", configPath)
	}

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		logger.Fatalf("failed to initialize database: %v", err)
	}
	appStore := store.NewGormStore(gormDB)
	logger.Println("data store initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ephemeralTTL := time.Duration(cfg.Session.EphemeralTTLMinutes) * time.Minute
	sessions := session.NewStore(
		session.NewDurableBackend(appStore, time.Duration(cfg.Session.RememberDays)*24*time.Hour),
		session.NewMemoryBackend(cache.New(ephemeralTTL, 10*time.Minute), ephemeralTTL),
		cache.New(ephemeralTTL, 10*time.Minute),
		ephemeralTTL,
	)
	go purgeSessions(ctx, logger, appStore)

	var backend upstream.Backend
	if cfg.Demo.Enabled {
		logger.Printf("demo mode enabled, serving generated data (seed %d)", cfg.Demo.Seed)
		backend = fixture.NewSource(cfg.Demo.Seed)
	} else {
		backend = upstream.NewClient(cfg.Upstream)
		logger.Printf("upstream API at %q", cfg.Upstream.BaseURL)
	}

	var webpushOptions *webpush.Options
	var onReady dashboard.ReadyFunc
	switch {
	case !cfg.Push.Enabled:
		logger.Println("push notifications disabled")
	case cfg.Push.PublicKey == "" || cfg.Push.PrivateKey == "":
		logger.Println("push notifications enabled but VAPID keys are missing; notifications stay off")
	default:
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, appStore, webpushOptions)
		pool.Start(ctx)
		onReady = pool.DispatchReady
		logger.Printf("notification worker pool started with %d workers", cfg.WorkerPool.Size)
	}

	registry := dashboard.NewRegistry(backend, cfg.Dashboard, onReady)
	handler := api.NewHandler(api.Deps{
		Backend:    backend,
		Sessions:   sessions,
		Store:      appStore,
		Inventory:  inventory.NewService(backend, cfg.Server.CacheTTL),
		Collection: collection.NewService(backend),
		Dashboards: registry,
		Admin:      admin.NewService(backend, cfg.Admin.ResetSecret),
		Webpush:    webpushOptions,
		DemoMode:   cfg.Demo.Enabled,
	})

	router := api.NewRouter(handler, cfg, mw.NewCookieStore(cfg.Session))
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Printf("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Println("Shutdown signal received, stopping services...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("HTTP server Shutdown: %v", err)
	}
	registry.Close()
	cancel()

	logger.Println("Server gracefully stopped")
}

// purgeSessions drops expired remembered sessions until ctx ends.
func purgeSessions(ctx context.Context, logger *log.Logger, s store.Store) {
	ticker := time.NewTicker(sessionPurgePeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.PurgeExpiredSessions(ctx, time.Now().UTC())
			if err != nil {
				logger.Printf("failed to purge expired sessions: %v", err)
				continue
			}
			if n > 0 {
				logger.Printf("purged %d expired sessions", n)
			}
		}
	}
}
