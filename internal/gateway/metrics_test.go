package gateway

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestReadLoadAvg(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "loadavg")
	os.WriteFile(good, []byte("0.52 0.58 0.59 1/467 12345\n"), 0o644)

	load, ok := readLoadAvg(good)
	if !ok || load != [3]float64{0.52, 0.58, 0.59} {
		t.Errorf("readLoadAvg = %v, %v", load, ok)
	}

	bad := filepath.Join(dir, "short")
	os.WriteFile(bad, []byte("0.52 x"), 0o644)
	if _, ok := readLoadAvg(bad); ok {
		t.Error("short file parsed")
	}
	if _, ok := readLoadAvg(filepath.Join(dir, "absent")); ok {
		t.Error("missing file parsed")
	}
}

func TestCollectMetrics(t *testing.T) {
	m := CollectMetrics(time.Now().Add(-3 * time.Second))
	if m.CPUCores < 1 || m.GoMaxProcs < 1 || m.Goroutines < 1 {
		t.Errorf("runtime fields not populated: %+v", m)
	}
	if m.UptimeSec < 3 || m.TS == "" {
		t.Errorf("uptime/ts = %d/%q", m.UptimeSec, m.TS)
	}
}
