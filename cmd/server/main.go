package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/valeevte/valora/internal/analytics"
	"github.com/valeevte/valora/internal/api"
	"github.com/valeevte/valora/internal/config"
	"github.com/valeevte/valora/internal/database"
	"github.com/valeevte/valora/internal/live"
	"github.com/valeevte/valora/internal/logging"
	"github.com/valeevte/valora/internal/metrics"
	"github.com/valeevte/valora/internal/pricing"
	"github.com/valeevte/valora/internal/products"
	"github.com/valeevte/valora/internal/scheduler"
	"github.com/valeevte/valora/internal/simulation"
)

func main() {
	configFile := flag.String("config", "", "optional config file (toml, yaml or json)")
	initDB := flag.Bool("init-db", false, "drop and recreate the database schema, then exit")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logCloser, err := logging.Init(cfg.Log)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer logCloser.Close()

	if err := run(cfg, *initDB); err != nil {
		logging.Error(context.Background(), "server exited with error", "error", err)
		logCloser.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config, initDB bool) error {
	// graceful shutdown coordination
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := openStore(ctx, cfg, initDB)
	if err != nil {
		return err
	}
	defer closeStore()
	if initDB {
		logging.Info(ctx, "database initialised")
		return nil
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	m := metrics.New()
	hub := live.NewHub()
	svc := simulation.NewService(store, pricing.NewLockedSource(seed),
		simulation.WithPublisher(hub),
		simulation.WithMetrics(m),
	)
	engine := analytics.NewEngine(store,
		analytics.WithLocation(cfg.Location),
		analytics.WithMetrics(m),
	)

	gin.SetMode(cfg.GinMode)
	router := api.NewRouter(api.NewHandler(store, svc, engine), m, api.RouterConfig{
		Live:   http.HandlerFunc(hub.ServeWS),
		WebDir: cfg.WebDir,
	})
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		scheduler.Run(gctx, svc, cfg.Scheduler)
		return nil
	})
	g.Go(func() error {
		logging.Info(gctx, "server started", "addr", srv.Addr, "store", cfg.Store)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Info(context.Background(), "shutdown signal received")

		// stop accepting new requests, let in-flight ones finish
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server Shutdown: %w", err)
		}
		return nil
	})

	err = g.Wait()
	logging.Info(context.Background(), "graceful shutdown complete")
	return err
}

// openStore returns the configured store and its teardown.
func openStore(ctx context.Context, cfg *config.Config, initDB bool) (products.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		if initDB {
			return nil, nil, errors.New("-init-db needs STORE=postgres")
		}
		return products.NewMemoryStore(), func() {}, nil
	}

	pool, err := database.Connect(ctx, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	if initDB {
		err = database.Reset(ctx, pool)
	} else {
		err = database.Migrate(ctx, pool)
	}
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	// Close blocks until connections are returned
	return products.NewRepository(pool), pool.Close, nil
}
