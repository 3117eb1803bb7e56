// cmd/simserver serves an interactive strategy simulation over REST and
// WebSocket, journals runs to SQLite and optionally mirrors events to Redis.
//
// Usage:
//
//	go run ./cmd/simserver --config=sim.yaml
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"strategy-sim/config"
	"strategy-sim/internal/bus"
	"strategy-sim/internal/dataset"
	"strategy-sim/internal/gateway"
	"strategy-sim/internal/logger"
	"strategy-sim/internal/metrics"
	"strategy-sim/internal/model"
	"strategy-sim/internal/notification"
	"strategy-sim/internal/scheduler"
	"strategy-sim/internal/sim"
	redisstore "strategy-sim/internal/store/redis"
	sqlitestore "strategy-sim/internal/store/sqlite"
	"strategy-sim/internal/strategy"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	configPath := flag.String("config", "", "Optional YAML config file")
	flag.Parse()

	log.Println("[simserver] starting...")

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("[simserver] config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[simserver] %v", err)
	}
	cfg.Log()
	logger.Init("simserver", logger.ParseLevel(cfg.LogLevel))

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, nil)
	metricsSrv.Start()

	// ---- Context for graceful shutdown ----
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// ---- SQLite: dataset store + run journal ----
	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		os.MkdirAll(dir, 0o755)
	}
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath})
	if err != nil {
		log.Fatalf("[simserver] sqlite init failed: %v", err)
	}
	defer store.Close()
	store.OnCommit = func(d time.Duration) { prom.SQLiteCommitDur.Observe(d.Seconds()) }
	health.SetSQLiteOK(true)

	// ---- Redis event mirror (optional) ----
	var publisher *redisstore.Publisher
	health.SetRedisEnabled(cfg.RedisEnabled)
	if cfg.RedisEnabled {
		client, err := redisstore.Connect(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Printf("[simserver] WARNING: redis init failed: %v (continuing without redis)", err)
			health.SetRedisConnected(false)
		} else {
			cb := redisstore.NewCircuitBreaker(5, 10*time.Second)
			cb.OnStateChange = func(from, to redisstore.State) {
				prom.RedisCircuitBreakerState.Set(float64(to))
				if to == redisstore.StateOpen {
					prom.RedisCircuitBreakerTrips.Inc()
				}
				log.Printf("[simserver] redis circuit breaker %s -> %s", from, to)
			}
			publisher = redisstore.NewPublisher(client, cb, 0)
			publisher.OnPublish = func(d time.Duration) { prom.RedisPublishDur.Observe(d.Seconds()) }
			publisher.OnFlush = func(n int) { log.Printf("[simserver] redis replayed %d buffered events", n) }
			defer publisher.Close()
			health.SetRedisConnected(true)
		}
	}

	probes := []metrics.Probe{metrics.SQLiteProbe(store.DB())}
	if publisher != nil {
		probes = append(probes, metrics.RedisProbe(publisher.Client()))
	}
	health.StartLivenessChecker(ctx, 10*time.Second, probes...)

	// ---- Event bus ----
	events := bus.New(1024)
	events.OnDrop = func(idx int) {
		prom.BusDropsTotal.WithLabelValues(strconv.Itoa(idx)).Inc()
	}
	hubCh := events.Subscribe()
	journalCh := events.Subscribe()
	var publishCh <-chan model.Event
	if publisher != nil {
		publishCh = events.Subscribe()
	}
	go watchSaturation(ctx, events, prom)

	// ---- Session ----
	session, err := sim.NewSession(sim.Options{
		InitialCapital: cfg.InitialCapital,
		Strategy:       strategy.ID(cfg.DefaultStrategy),
		Speed:          cfg.Speed(),
		Bus:            events,
		Metrics:        prom,
		Health:         health,
	})
	if err != nil {
		log.Fatalf("[simserver] session: %v", err)
	}
	log.Printf("[simserver] session %s ready (strategy=%s)", session.ID(), cfg.DefaultStrategy)

	hub := gateway.NewHub(session.Snapshot, gateway.DefaultReplaySize)
	go hub.Run(ctx, hubCh)
	go hub.StartMetricsBroadcast(ctx, 2*time.Second)
	journalDone := make(chan struct{})
	go func() {
		sim.RunJournal(ctx, journalCh, store)
		close(journalDone)
	}()
	if publishCh != nil {
		go sim.RunPublisher(ctx, publishCh, publisher)
	}

	if cfg.DatasetPath != "" {
		if err := session.LoadFrom(ctx, dataset.FileSource{Path: cfg.DatasetPath}); err != nil {
			log.Printf("[simserver] WARNING: preload %s failed: %v", cfg.DatasetPath, err)
		}
	}

	// ---- Scheduled batch comparison ----
	if cfg.BatchCron != "" {
		batch := &sim.Batch{
			Store:          store,
			Recorder:       store,
			InitialCapital: cfg.InitialCapital,
			Metrics:        prom,
		}
		sched := scheduler.New(ctx, batch)
		notifiers := notification.Multi{notification.NewLogNotifier()}
		if cfg.NotifyWebhook != "" {
			notifiers = append(notifiers, notification.NewWebhookNotifier(cfg.NotifyWebhook, cfg.NotifySecret))
		}
		if cfg.TelegramToken != "" {
			notifiers = append(notifiers, notification.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID))
		}
		sched.Notifier = notifiers
		if err := sched.Register(cfg.BatchCron); err != nil {
			log.Fatalf("[simserver] %v", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	// ---- HTTP ----
	mux := http.NewServeMux()
	gateway.RegisterRoutes(mux, &gateway.API{
		Session: session,
		Hub:     hub,
		Store:   store,
		Health:  health,
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("[simserver] serving at http://localhost%s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("[simserver] server error: %v", err)
		}
	}()

	<-sigCh
	log.Println("[simserver] shutting down...")

	session.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)

	// Closing the bus lets the journal drain what the session already emitted.
	events.Close()
	select {
	case <-journalDone:
	case <-shutdownCtx.Done():
		log.Println("[simserver] WARNING: journal did not drain before timeout")
	}
	cancel()
	log.Println("[simserver] stopped")
}

// watchSaturation exports bus subscriber fill levels.
func watchSaturation(ctx context.Context, b *bus.Bus, prom *metrics.Metrics) {
	names := []string{"hub", "journal", "redis"}
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for i, s := range b.ChannelStats() {
				if s.Cap == 0 {
					continue
				}
				name := "bus_" + strconv.Itoa(i)
				if i < len(names) {
					name = "bus_" + names[i]
				}
				prom.ChannelSaturationPct.WithLabelValues(name).Set(float64(s.Len) / float64(s.Cap) * 100)
			}
		}
	}
}
