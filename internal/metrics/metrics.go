package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the simulation server.
type Metrics struct {
	StepsTotal     prometheus.Counter
	DroppedSteps   prometheus.Counter
	TradesTotal    *prometheus.CounterVec // labels: side
	StepDur        prometheus.Histogram
	PortfolioValue prometheus.Gauge
	CurrentIndex   prometheus.Gauge
	Playing        prometheus.Gauge // 0=paused, 1=playing

	// Dataset boundary
	DatasetLoads      prometheus.Counter
	DatasetLoadErrors prometheus.Counter
	DatasetCandles    prometheus.Gauge

	// Backpressure
	BusDropsTotal        *prometheus.CounterVec // labels: subscriber
	ChannelSaturationPct *prometheus.GaugeVec   // labels: channel_name

	// Storage
	SQLiteCommitDur prometheus.Histogram
	RedisPublishDur prometheus.Histogram

	// Circuit breaker
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// Batch comparisons (scheduler / backtest CLI)
	BatchRunsTotal *prometheus.CounterVec // labels: strategy
	BatchDur       prometheus.Histogram
}

// NewMetrics creates all metrics and registers them with reg. A nil reg uses
// the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		StepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_steps_total",
			Help: "Total ledger steps executed",
		}),
		DroppedSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_dropped_steps_total",
			Help: "Step requests dropped because another step was in flight",
		}),
		TradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sim_trades_total",
			Help: "Executed simulated trades (by side)",
		}, []string{"side"}),
		StepDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sim_step_duration_seconds",
			Help:    "Latency of one ledger step including decision",
			Buckets: []float64{0.000001, 0.000005, 0.00001, 0.00005, 0.0001, 0.0005, 0.001},
		}),
		PortfolioValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sim_portfolio_value",
			Help: "Mark-to-market portfolio value at the current index",
		}),
		CurrentIndex: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sim_current_index",
			Help: "Current candle index of the ledger",
		}),
		Playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sim_playing",
			Help: "Playback state (0=paused, 1=playing)",
		}),

		DatasetLoads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_dataset_loads_total",
			Help: "Datasets successfully loaded into the session",
		}),
		DatasetLoadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_dataset_load_errors_total",
			Help: "Dataset loads rejected at the loading boundary",
		}),
		DatasetCandles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sim_dataset_candles",
			Help: "Number of candles in the loaded dataset",
		}),

		BusDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sim_bus_drops_total",
			Help: "Events dropped by the event bus per subscriber",
		}, []string{"subscriber"}),
		ChannelSaturationPct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sim_channel_saturation_pct",
			Help: "Channel fill percentage (len/cap * 100)",
		}, []string{"channel_name"}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sim_sqlite_commit_duration_seconds",
			Help:    "SQLite transaction commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sim_redis_publish_duration_seconds",
			Help:    "Redis event publish latency",
			Buckets: prometheus.DefBuckets,
		}),

		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sim_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sim_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		BatchRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sim_batch_runs_total",
			Help: "Batch replays completed (by strategy)",
		}, []string{"strategy"}),
		BatchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sim_batch_duration_seconds",
			Help:    "Wall time of one batch comparison over a dataset",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		m.StepsTotal,
		m.DroppedSteps,
		m.TradesTotal,
		m.StepDur,
		m.PortfolioValue,
		m.CurrentIndex,
		m.Playing,
		m.DatasetLoads,
		m.DatasetLoadErrors,
		m.DatasetCandles,
		m.BusDropsTotal,
		m.ChannelSaturationPct,
		m.SQLiteCommitDur,
		m.RedisPublishDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.BatchRunsTotal,
		m.BatchDur,
	)

	return m
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server. gatherer may be nil to use
// the default Prometheus gatherer.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	handler := promhttp.Handler()
	if gatherer != nil {
		handler = promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Handler returns the server's mux.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
