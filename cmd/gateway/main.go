// Package main is the entry point for the asset gateway. It wires the
// collaborator adapters, runs the init/upgrade lifecycle, and serves the
// HTTP and metrics listeners until shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/552020/futura-alpha-icp-sub009/database/connect"
	"github.com/552020/futura-alpha-icp-sub009/internal/config"
	"github.com/552020/futura-alpha-icp-sub009/internal/gateway"
	"github.com/552020/futura-alpha-icp-sub009/internal/metrics"
	"github.com/552020/futura-alpha-icp-sub009/internal/platform"
	"github.com/552020/futura-alpha-icp-sub009/internal/repository/asset"
	"github.com/552020/futura-alpha-icp-sub009/internal/secrets"
	"github.com/552020/futura-alpha-icp-sub009/internal/server"
	"github.com/552020/futura-alpha-icp-sub009/internal/store"
	"github.com/552020/futura-alpha-icp-sub009/pkg/di"
	"github.com/552020/futura-alpha-icp-sub009/pkg/logger"
	gwredis "github.com/552020/futura-alpha-icp-sub009/pkg/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New(logger.Config{
		Environment: cfg.AppEnv,
		LogLevel:    cfg.LogLevel,
		ServiceName: cfg.AppName,
	})
	if err != nil {
		panic(err)
	}
	defer func() {
		if err := log.Sync(); err != nil {
			log.Warn("Failed to sync logger", zap.Error(err))
		}
	}()

	// Create context that listens for the interrupt signal
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	container := di.New()
	registerCollaborators(ctx, container, cfg, log)

	random := platform.CryptoRandom{}
	clock := platform.SystemClock{}

	certifier, err := platform.NewLocalCertifier(random)
	if err != nil {
		log.Fatal("Failed to create certifier", zap.Error(err))
	}

	// Init/upgrade glue: a failure here aborts the start.
	slot := secrets.NewFileSlot(filepath.Join(cfg.DataDir, "secrets.bin"))
	cell, err := gateway.Bootstrap(log, slot, random, clock, certifier)
	if err != nil {
		log.Fatal("Secret lifecycle failed", zap.Error(err))
	}
	gateway.StartReseed(ctx, log, cell, random)

	var (
		assets store.AssetStore
		blobs  store.BlobStore
		acl    store.Acl
	)
	if err := container.Resolve(&assets); err != nil {
		log.Fatal("Failed to resolve asset store", zap.Error(err))
	}
	if err := container.Resolve(&blobs); err != nil {
		log.Fatal("Failed to resolve blob store", zap.Error(err))
	}
	if err := container.Resolve(&acl); err != nil {
		log.Fatal("Failed to resolve acl", zap.Error(err))
	}

	core, err := gateway.New(log, gateway.Config{
		Clock:     clock,
		Secrets:   cell,
		Assets:    assets,
		Blobs:     blobs,
		Acl:       acl,
		Certifier: certifier,
		Random:    random,
	})
	if err != nil {
		log.Fatal("Failed to build gateway", zap.Error(err))
	}

	httpServer := server.New(log, core, cfg.AppPort)
	metricsServer := metrics.NewServer(cfg.MetricsPort)

	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info("Starting metrics server", zap.String("address", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-runCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP server shutdown failed", zap.Error(err))
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("Metrics server shutdown failed", zap.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatal("Server failed", zap.Error(err))
	}
	log.Info("Shutdown complete")
}

// registerCollaborators binds the storage backend selected by config.
// The memory backend serves development and smoke testing; postgres plus
// redis is the production pairing.
func registerCollaborators(ctx context.Context, container *di.Container, cfg *config.Config, log *zap.Logger) {
	if cfg.StoreBackend == "memory" {
		ms := store.NewMemStore()
		registerAll(container, ms, ms, ms, log)
		return
	}

	if err := container.Register((*store.AssetStore)(nil), func(c *di.Container) (interface{}, error) {
		db, err := connect.ConnectPostgres(ctx, log, cfg)
		if err != nil {
			return nil, err
		}
		return asset.InitRepository(db, log), nil
	}); err != nil {
		log.Fatal("Failed to register asset store", zap.Error(err))
	}
	if err := container.Register((*store.Acl)(nil), func(c *di.Container) (interface{}, error) {
		var assets store.AssetStore
		if err := c.Resolve(&assets); err != nil {
			return nil, err
		}
		// The repository carries both contracts.
		return assets.(*asset.Repository), nil
	}); err != nil {
		log.Fatal("Failed to register acl", zap.Error(err))
	}
	if err := container.Register((*store.BlobStore)(nil), func(c *di.Container) (interface{}, error) {
		client, err := gwredis.NewClient(gwredis.Config{
			Host:         cfg.RedisHost,
			Port:         cfg.RedisPort,
			Password:     cfg.RedisPassword,
			DB:           cfg.RedisDB,
			PoolSize:     cfg.RedisPoolSize,
			MinIdleConns: cfg.RedisMinIdleConns,
			MaxRetries:   cfg.RedisMaxRetries,
		}, log)
		if err != nil {
			return nil, err
		}
		return gwredis.NewBlobStore(client, log), nil
	}); err != nil {
		log.Fatal("Failed to register blob store", zap.Error(err))
	}
}

func registerAll(container *di.Container, assets store.AssetStore, blobs store.BlobStore, acl store.Acl, log *zap.Logger) {
	must := func(err error) {
		if err != nil {
			log.Fatal("DI registration failed", zap.Error(err))
		}
	}
	must(container.Register((*store.AssetStore)(nil), func(*di.Container) (interface{}, error) { return assets, nil }))
	must(container.Register((*store.BlobStore)(nil), func(*di.Container) (interface{}, error) { return blobs, nil }))
	must(container.Register((*store.Acl)(nil), func(*di.Container) (interface{}, error) { return acl, nil }))
}
