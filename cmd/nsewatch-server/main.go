package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nsewatch/internal/cache"
	"nsewatch/internal/config"
	"nsewatch/internal/httpapi"
	"nsewatch/internal/market"
	"nsewatch/internal/marketdata"
	"nsewatch/internal/store"
	"nsewatch/internal/upstream"
	"nsewatch/internal/util"
)

func main() {
	// Load config.
	cfgPath := "config/nsewatch.yaml"
	if p := os.Getenv("NSEWATCH_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if os.IsNotExist(err) {
		cfg = config.Default()
	} else if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// Setup logging.
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	// Market calendar.
	cal, err := market.NewCalendar(cfg.Market.Timezone, cfg.Market.Open, cfg.Market.Close, cfg.Market.Holidays)
	if err != nil {
		log.Fatalf("building market calendar: %v", err)
	}

	// Cache tiers and manager.
	tiers := cache.NewTiers(cache.TiersConfig{
		HotTTL:        cfg.Cache.HotTTL.Std(),
		MainTTL:       cfg.Cache.MainTTL.Std(),
		StaticTTL:     cfg.Cache.StaticTTL.Std(),
		SweepInterval: cfg.Cache.SweepInterval.Std(),
	})
	mgr := cache.NewManager(tiers, cal, logger)
	defer mgr.Close()

	// Durable stores. Redis when configured, SQLite otherwise.
	var snapshots store.SnapshotStore
	if cfg.Redis.Addr != "" {
		rs := store.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, 24*time.Hour)
		if err := rs.Ping(context.Background()); err != nil {
			log.Fatalf("connecting to redis at %s: %v", cfg.Redis.Addr, err)
		}
		snapshots = rs
		logger.Info("snapshot store", "backend", "redis", "addr", cfg.Redis.Addr)
	} else {
		ss, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening snapshot store: %v", err)
		}
		snapshots = ss
		logger.Info("snapshot store", "backend", "sqlite", "path", cfg.Storage.SQLitePath)
	}
	defer snapshots.Close()

	series := store.NewParquetStore(cfg.Storage.DataDir)

	// Upstream provider, with the US ADR feed as a fallback when Alpaca
	// credentials are configured.
	var provider upstream.Provider = upstream.NewNSEClient(cfg.Upstream.BaseURL, cfg.Upstream.Timeout.Std(), cfg.Upstream.RateLimitPerMin, logger)
	if cfg.Alpaca.APIKey != "" {
		adr := upstream.NewADRProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, nil, logger)
		provider = upstream.NewFallbackProvider(provider, adr, logger)
		logger.Info("adr fallback enabled")
	}

	svc := marketdata.NewService(mgr, provider, snapshots, series, logger)
	api := httpapi.NewServer(svc, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: api.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("nsewatch server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	mgr.StopAllPolling()
}
