// cmd/simwatch tails simulation events that simserver publishes to Redis.
//
// Usage:
//
//	go run ./cmd/simwatch                        # every session, live
//	go run ./cmd/simwatch --session=<id> --history=50
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"strategy-sim/config"
	"strategy-sim/internal/model"
	redisstore "strategy-sim/internal/store/redis"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	cfgPath := flag.String("config", "config.yaml", "Path to YAML config")
	session := flag.String("session", "", "Session ID (empty = all sessions, live only)")
	history := flag.Int64("history", 0, "Print the last N stored events of --session first")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("[simwatch] config: %v", err)
	}

	client, err := redisstore.Connect(redisstore.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatalf("[simwatch] %v", err)
	}
	defer client.Close()
	sub := redisstore.NewSubscriber(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if *session != "" {
		if snap, err := sub.Latest(ctx, *session); err != nil {
			log.Printf("[simwatch] %v", err)
		} else {
			fmt.Printf("latest: %s %s idx=%d value=%.2f state=%s\n",
				snap.Dataset, snap.Strategy, snap.CurrentIndex, snap.PortfolioValue, snap.State)
		}
		if *history > 0 {
			evs, err := sub.History(ctx, *session, *history)
			if err != nil {
				log.Fatalf("[simwatch] %v", err)
			}
			for _, ev := range evs {
				printEvent(ev)
			}
		}
	}

	out := make(chan model.Event, 256)
	errCh := make(chan error, 1)
	go func() { errCh <- sub.Subscribe(ctx, *session, out) }()

	for {
		select {
		case ev := <-out:
			printEvent(ev)
		case err := <-errCh:
			if err != nil {
				log.Fatalf("[simwatch] %v", err)
			}
			return
		}
	}
}

func printEvent(ev model.Event) {
	line := fmt.Sprintf("%s %-6s %s idx=%-5d value=%10.2f",
		ev.At.Format("15:04:05.000"), ev.Kind, shortID(ev.Session), ev.Index, ev.Snapshot.PortfolioValue)
	if ev.Trade != nil {
		line += fmt.Sprintf("  %s %d @ %.2f (%s)", ev.Trade.Type, ev.Trade.Quantity, ev.Trade.Price, ev.Trade.Reason)
	}
	if ev.Run != nil {
		line += fmt.Sprintf("  run %s return=%.2f%%", shortID(ev.Run.RunID), ev.Run.ReturnPct)
	}
	fmt.Println(line)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
