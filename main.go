package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"roma-trading/internal/agent"
	"roma-trading/internal/api"
	"roma-trading/internal/events"
	"roma-trading/internal/journal"
	"roma-trading/internal/monitor"
	"roma-trading/pkg/config"
	"roma-trading/pkg/db"
	"roma-trading/pkg/exchange/aster"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	configPath := flag.String("config", "config.yaml", "path to the agent configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	store := config.NewStore(cfg, *configPath)

	dbPath := cfg.Server.DBPath
	if dbPath == "" {
		dbPath = "roma.db"
	}
	database, err := db.New(dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	j := journal.New(database)

	manager, err := agent.NewManager(store, j, bus)
	if err != nil {
		log.Fatalf("build agents: %v", err)
	}
	manager.StartAll(ctx)
	defer manager.StopAll()

	alerts := &monitor.Monitor{Bus: bus}
	alerts.Start(ctx)

	startPriceStreams(ctx, store, bus)

	server := api.NewServer(store, j, manager, bus)
	port := cfg.Server.Port
	if port == "" {
		port = "8080"
	}
	go func() {
		if err := server.Start(":" + port); err != nil {
			log.Fatalf("api server: %v", err)
		}
	}()
	log.Printf("portal listening on :%s, db=%s", port, dbPath)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
}

// startPriceStreams feeds mark prices for every watched symbol onto the
// bus so the dashboard sees live quotes between cycles. Stream failures
// are logged and dropped; trading reads prices over REST anyway.
func startPriceStreams(ctx context.Context, store *config.Store, bus *events.Bus) {
	streamURL := ""
	seen := make(map[string]bool)
	var symbols []string
	for _, ac := range store.Enabled() {
		if streamURL == "" {
			streamURL = ac.Exchange.StreamURL
		}
		for _, s := range ac.Strategy.DefaultCoins {
			if !seen[s] {
				seen[s] = true
				symbols = append(symbols, s)
			}
		}
	}
	if len(symbols) == 0 {
		return
	}

	stream := aster.NewStreamClient(streamURL)
	for _, symbol := range symbols {
		ticks, stop, err := stream.SubscribeMarkPrice(ctx, symbol)
		if err != nil {
			log.Printf("mark price stream %s: %v", symbol, err)
			continue
		}
		go func() {
			defer stop()
			for tick := range ticks {
				bus.Publish(events.EventPriceTick, events.PriceTick{
					Symbol: tick.Symbol,
					Price:  tick.Price,
					Time:   tick.Time,
				})
			}
		}()
	}
}
