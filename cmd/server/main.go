package main // Entry point package

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/storefront/internal/config"
	"github.com/iliyamo/storefront/internal/database"
	"github.com/iliyamo/storefront/internal/gateway"
	"github.com/iliyamo/storefront/internal/logging"
	"github.com/iliyamo/storefront/internal/metrics"
	"github.com/iliyamo/storefront/internal/queue"
	"github.com/iliyamo/storefront/internal/repository"
	"github.com/iliyamo/storefront/internal/router"
	queue_publisher "github.com/iliyamo/storefront/internal/service"
	"github.com/iliyamo/storefront/internal/workspace"
)

func main() {
	cfg := config.Load() // Load environment config
	sessCfg := config.LoadSessionConfig()
	eventsCfg := config.LoadEventsConfig()
	logger := logging.New(cfg.Env)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := database.EnsureSchema(ctx, db); err != nil {
			cancel()
			log.Fatalf("schema: %v", err)
		}
		cancel()
	}

	rdb := config.NewRedisClient()
	var sessions gateway.SessionStore
	if rdb != nil {
		defer rdb.Close()
		sessions = gateway.NewRedisSessionStore(rdb, sessCfg.StorePrefix)
	} else {
		log.Printf("redis unavailable: cache and rate limiting off, sessions kept in memory")
		sessions = gateway.NewMemorySessionStore()
	}

	catalog := repository.NewProductRepo(db)
	backend := gateway.NewBackend(gateway.Deps{
		Users:    repository.NewUserRepo(db),
		Tokens:   repository.NewTokenRepo(db),
		Profiles: repository.NewProfileRepo(db),
		Carts:    repository.NewCartRepo(db),
		Products: catalog,
		Taxonomy: repository.NewCatalogRepo(db),
		Orders:   repository.NewOrderRepo(db),
		Reviews:  repository.NewReviewRepo(db),
		Sessions: sessions,
		Events:   queue_publisher.New(eventsCfg),
		Logger:   logger.With("component", "gateway"),
	}, gateway.Options{
		Secret:         cfg.JWTSecret,
		AccessTTLMin:   cfg.AccessTTLMin,
		RefreshTTLDays: cfg.RefreshTTLDays,
		BcryptCost:     cfg.BcryptCost,
	})

	reg := workspace.NewRegistry(backend, workspace.Options{
		IdleTTL:       sessCfg.IdleTTL,
		MaxWorkspaces: sessCfg.MaxWorkspaces,
		ReloadTimeout: sessCfg.ReloadTimeout,
		ToastTTL:      sessCfg.ToastTTL,
		Compensate:    sessCfg.CompensateWrites,
		Logger:        logger.With("component", "workspace"),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go reg.Run(ctx, sessCfg.SweepInterval)

	if eventsCfg.ConsumerEnabled {
		go func() {
			if err := queue.StartEventConsumer(ctx, eventsCfg); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("event consumer stopped: %v", err)
			}
		}()
	}

	e := echo.New() // Create Echo instance
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			if v.Error != nil {
				logger.Error("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "err", v.Error)
				return nil
			}
			logger.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	e.Use(metrics.Middleware())

	router.RegisterAll(e, router.Deps{
		Backend:   backend,
		Registry:  reg,
		Session:   sessCfg,
		Cache:     config.LoadCacheConfig(),
		RateLimit: config.LoadRateLimitConfig(),
		Workspace: config.LoadWorkspaceRateLimitConfig(),
		JWTSecret: cfg.JWTSecret,
		Redis:     rdb,
	})

	addr := ":" + cfg.Port                                // Address string with port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env) // Print startup info
	go func() {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err) // Log and exit if server fails
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), router.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	reg.Close()
}
