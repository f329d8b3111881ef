package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"trading-engine/internal/rules"
	"trading-engine/pkg/config"
	exspot "trading-engine/pkg/exchanges/binance/spot"
)

// Manual connectivity check against the exchange REST API:
// - server time (clock skew)
// - exchange info via the rules cache
// - a couple of ticker prices
//
// Usage (from the repo root):
//   go run ./scripts/trading_api_check
//
// Read-only; never places orders. Safe against a live account.

func main() {
	log.Println("=== trading API check starting ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client := exspot.New(exspot.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
		Logger:    logger.Named("binance"),
	})

	serverMillis, err := client.GetServerTime()
	if err != nil {
		log.Fatalf("server time: %v", err)
	}
	serverTime := time.UnixMilli(serverMillis)
	log.Printf("server time %s (local skew %s)", serverTime.Format(time.RFC3339), time.Since(serverTime))

	cache := rules.New(client, cfg.RulesTTL, logger.Named("rules"))
	symbolRules, ok, err := cache.SymbolRules(ctx, "BTCUSDT")
	if err != nil {
		log.Fatalf("exchange info: %v", err)
	}
	if !ok {
		log.Fatalf("BTCUSDT not tradeable")
	}
	log.Printf("BTCUSDT rules: tick=%s step=%s minNotional=%s",
		symbolRules.TickSize, symbolRules.StepSize, symbolRules.MinNotional)

	prices, err := client.Prices(ctx)
	if err != nil {
		log.Fatalf("prices: %v", err)
	}
	for _, sym := range []string{"BTCUSDT", "ETHUSDT"} {
		log.Printf("price %s = %s", sym, prices[sym])
	}

	log.Println("=== trading API check done ===")
}
