package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Dependency names used in health reports.
const (
	DepSQLite = "sqlite"
	DepRedis  = "redis"
)

const probeTimeout = 3 * time.Second

// Probe is one liveness check against an external dependency.
type Probe struct {
	Name  string
	Check func(ctx context.Context) error
}

func RedisProbe(rdb *goredis.Client) Probe {
	return Probe{Name: DepRedis, Check: func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}}
}

func SQLiteProbe(db *sql.DB) Probe {
	return Probe{Name: DepSQLite, Check: db.PingContext}
}

type depState struct {
	ok        bool
	latency   time.Duration
	err       string
	checkedAt time.Time
}

// DependencyReport is the per-dependency part of a health report.
type DependencyReport struct {
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
	CheckedAt string  `json:"checked_at,omitempty"`
}

// HealthStatus aggregates session state and dependency probes for /healthz
// and GET /api/health.
type HealthStatus struct {
	mu           sync.RWMutex
	started      time.Time
	dataset      string
	lastStep     time.Time
	redisEnabled bool
	deps         map[string]depState
	lastCheck    time.Time
}

func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		started: time.Now(),
		deps:    make(map[string]depState),
	}
}

func (h *HealthStatus) SetDataset(name string) {
	h.mu.Lock()
	h.dataset = name
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastStepTime(t time.Time) {
	h.mu.Lock()
	h.lastStep = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisEnabled(v bool) {
	h.mu.Lock()
	h.redisEnabled = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetRedisConnected(v bool) { h.mark(DepRedis, v, 0, nil) }
func (h *HealthStatus) SetSQLiteOK(v bool)       { h.mark(DepSQLite, v, 0, nil) }

func (h *HealthStatus) mark(name string, ok bool, latency time.Duration, err error) {
	st := depState{ok: ok, latency: latency, checkedAt: time.Now()}
	if err != nil {
		st.err = err.Error()
	}
	h.mu.Lock()
	h.deps[name] = st
	h.lastCheck = st.checkedAt
	h.mu.Unlock()
}

// RunProbes checks every probe once, each under its own timeout.
func (h *HealthStatus) RunProbes(ctx context.Context, probes ...Probe) {
	for _, p := range probes {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		start := time.Now()
		err := p.Check(probeCtx)
		cancel()
		h.mark(p.Name, err == nil, time.Since(start), err)
	}
}

// StartLivenessChecker re-runs the probes every interval until ctx ends.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, interval time.Duration, probes ...Probe) {
	if len(probes) == 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.RunProbes(ctx, probes...)
			}
		}
	}()
}

// Report is the JSON body served on /healthz.
type Report struct {
	Status         string                      `json:"status"`
	Uptime         string                      `json:"uptime"`
	DatasetLoaded  bool                        `json:"dataset_loaded"`
	Dataset        string                      `json:"dataset"`
	LastStepTime   string                      `json:"last_step_time"`
	RedisEnabled   bool                        `json:"redis_enabled"`
	RedisConnected bool                        `json:"redis_connected"`
	SQLiteOK       bool                        `json:"sqlite_ok"`
	Dependencies   map[string]DependencyReport `json:"dependencies"`
	LastCheckAt    string                      `json:"last_check_at"`
}

// Report builds the current health report and its HTTP status code.
// Redis only mirrors events, so losing it degrades; losing SQLite is fatal.
func (h *HealthStatus) Report() (Report, int) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	r := Report{
		Status:        "healthy",
		Uptime:        time.Since(h.started).Round(time.Second).String(),
		DatasetLoaded: h.dataset != "",
		Dataset:       h.dataset,
		RedisEnabled:  h.redisEnabled,
		Dependencies:  make(map[string]DependencyReport, len(h.deps)),
	}
	if !h.lastStep.IsZero() {
		r.LastStepTime = h.lastStep.Format(time.RFC3339)
	}
	if !h.lastCheck.IsZero() {
		r.LastCheckAt = h.lastCheck.Format(time.RFC3339)
	}
	for name, st := range h.deps {
		r.Dependencies[name] = DependencyReport{
			OK:        st.ok,
			LatencyMs: float64(st.latency.Microseconds()) / 1000,
			Error:     st.err,
			CheckedAt: st.checkedAt.Format(time.RFC3339),
		}
	}
	r.RedisConnected = h.deps[DepRedis].ok
	r.SQLiteOK = h.deps[DepSQLite].ok

	code := http.StatusOK
	switch {
	case !r.SQLiteOK:
		r.Status = "unhealthy"
		code = http.StatusServiceUnavailable
	case !r.DatasetLoaded, r.RedisEnabled && !r.RedisConnected:
		r.Status = "degraded"
	}
	return r, code
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report, code := h.Report()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(report)
}
