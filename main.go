package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"trading-engine/internal/api"
	"trading-engine/internal/ctxstore"
	"trading-engine/internal/engine"
	"trading-engine/internal/events"
	"trading-engine/internal/rules"
	"trading-engine/internal/sizing"
	"trading-engine/internal/tracker"
	"trading-engine/pkg/config"
	"trading-engine/pkg/db"
	exspot "trading-engine/pkg/exchanges/binance/spot"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config load failed", zap.Error(err))
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		logger.Fatal("database open failed", zap.Error(err))
	}
	defer database.Close()

	sizer, err := sizing.LoadPolicy(cfg.SizingPolicyPath)
	if err != nil {
		logger.Fatal("sizing policy load failed",
			zap.String("path", cfg.SizingPolicyPath), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := exspot.New(exspot.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
		Logger:    logger.Named("binance"),
	})
	client.StartTimeSync(ctx)

	contexts := ctxstore.New(database)
	states := tracker.NewStateStore(database)
	positions := engine.NewPositionStore(database)
	rulesCache := rules.New(client, cfg.RulesTTL, logger.Named("rules"))
	bus := events.NewBus()

	eng := engine.New(client, rulesCache, contexts, sizer, positions, engine.Config{
		UseOCO:        cfg.UseOCO,
		StopPct:       cfg.StopPct,
		TargetPct:     cfg.TargetPct,
		RetryAttempts: 3,
		RetryDelay:    11 * time.Second,
	}, logger.Named("engine"))

	trk := tracker.New(contexts, states, bus, logger.Named("tracker"))
	stream := tracker.NewStream(client, trk, logger.Named("stream"))
	go stream.Run(ctx)

	// Order contexts are write-once; prune ones old enough that their
	// orders must long since have reached a terminal state.
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := contexts.PruneBefore(ctx, time.Now().Add(-cfg.ContextRetention))
				if err != nil {
					logger.Warn("context prune failed", zap.Error(err))
				} else if n > 0 {
					logger.Info("pruned order contexts", zap.Int64("count", n))
				}
			}
		}
	}()

	server := api.NewServer(eng, cfg.APIToken, logger.Named("api"))
	go func() {
		if err := server.Router.Run(":" + cfg.Port); err != nil {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	logger.Info("trading engine started",
		zap.String("port", cfg.Port), zap.Bool("testnet", cfg.BinanceTestnet))

	<-ctx.Done()
	logger.Info("shutting down")
}
