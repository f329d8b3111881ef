package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"trading-engine/internal/ctxstore"
	"trading-engine/internal/events"
	"trading-engine/internal/tracker"
	"trading-engine/pkg/config"
	"trading-engine/pkg/db"
	exspot "trading-engine/pkg/exchanges/binance/spot"
)

// Manual end-to-end check for the execution report stream:
// - opens the DB and event bus
// - connects the user data stream
// - prints every order event the tracker publishes
//
// Usage (from the repo root):
//   go run ./scripts/user_stream_check
//
// Requires API keys in .env. Place a small test order on the account
// (testnet recommended) and watch the events arrive.

func main() {
	log.Println("=== user stream check starting ===")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer database.Close()

	bus := events.NewBus()
	contexts := ctxstore.New(database)
	states := tracker.NewStateStore(database)

	client := exspot.New(exspot.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
		Logger:    logger.Named("binance"),
	})

	trk := tracker.New(contexts, states, bus, logger.Named("tracker"))
	stream := tracker.NewStream(client, trk, logger.Named("stream"))
	go stream.Run(ctx)

	for _, evt := range []events.Event{
		events.EventOrderCreated,
		events.EventOrderPartiallyFilled,
		events.EventOrderFilled,
		events.EventOrderCancelled,
		events.EventOrderExpired,
	} {
		ch, unsub := bus.Subscribe(evt, 16)
		defer unsub()
		go func(evt events.Event, ch <-chan events.OrderEvent) {
			for e := range ch {
				log.Printf("[%s] order=%s symbol=%s status=%s cumBase=%s cumQuote=%s edge=%q trade=%q",
					evt, e.Report.ClientOrderID, e.Report.Symbol, e.Report.Status,
					e.ExecutedBase, e.ExecutedQuote, e.Edge, e.TradeID)
			}
		}(evt, ch)
	}

	log.Println("listening; Ctrl-C to stop")
	<-ctx.Done()
	log.Println("=== user stream check done ===")
}
