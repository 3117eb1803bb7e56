package gateway

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const loadAvgPath = "/proc/loadavg"

// SystemMetrics is the payload of "metrics" envelopes and GET /api/metrics.
type SystemMetrics struct {
	Load1       float64      `json:"cpu_load_1"`
	Load5       float64      `json:"cpu_load_5"`
	Load15      float64      `json:"cpu_load_15"`
	CPUCores    int          `json:"cpu_cores"`
	GoMaxProcs  int          `json:"gomaxprocs"`
	HeapAllocMB float64      `json:"heap_alloc_mb"`
	SysMB       float64      `json:"sys_mb"`
	GCRuns      uint32       `json:"gc_runs"`
	GCPauseMs   float64      `json:"gc_pause_total_ms"`
	Goroutines  int          `json:"goroutines"`
	UptimeSec   int64        `json:"uptime_sec"`
	Clients     int          `json:"ws_clients"`
	Dropped     int64        `json:"ws_dropped"`
	Seq         int64        `json:"seq"`
	Latency     LatencyStats `json:"event_latency"`
	TS          string       `json:"ts"`
}

// CollectMetrics samples the Go runtime and, where available, the host load
// averages. Hub counters are filled in by the caller.
func CollectMetrics(start time.Time) SystemMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	m := SystemMetrics{
		CPUCores:    runtime.NumCPU(),
		GoMaxProcs:  runtime.GOMAXPROCS(0),
		HeapAllocMB: float64(ms.HeapAlloc) / (1 << 20),
		SysMB:       float64(ms.Sys) / (1 << 20),
		GCRuns:      ms.NumGC,
		GCPauseMs:   float64(ms.PauseTotalNs) / 1e6,
		Goroutines:  runtime.NumGoroutine(),
		UptimeSec:   int64(time.Since(start).Seconds()),
		TS:          time.Now().UTC().Format(time.RFC3339Nano),
	}
	if load, ok := readLoadAvg(loadAvgPath); ok {
		m.Load1, m.Load5, m.Load15 = load[0], load[1], load[2]
	}
	return m
}

// readLoadAvg parses the first three fields of a /proc/loadavg style file.
func readLoadAvg(path string) ([3]float64, bool) {
	var load [3]float64
	raw, err := os.ReadFile(path)
	if err != nil {
		return load, false
	}
	fields := strings.Fields(string(raw))
	if len(fields) < 3 {
		return load, false
	}
	for i := range load {
		if load[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
			return [3]float64{}, false
		}
	}
	return load, true
}
