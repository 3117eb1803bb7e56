package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"strategy-sim/internal/bus"
	"strategy-sim/internal/indicator"
	"strategy-sim/internal/model"
	"strategy-sim/internal/sim"
	"strategy-sim/internal/store/sqlite"
	"strategy-sim/internal/strategy"
)

type fixture struct {
	api     *API
	mux     *http.ServeMux
	session *sim.Session
	bus     *bus.Bus
}

func newFixture(t *testing.T, withStore bool) *fixture {
	t.Helper()
	b := bus.New(1024)
	s, err := sim.NewSession(sim.Options{Bus: b, Speed: 10 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	api := &API{Session: s, Hub: NewHub(s.Snapshot, 0)}
	if withStore {
		st, err := sqlite.New(sqlite.Config{DBPath: ":memory:"})
		if err != nil {
			t.Fatal(err)
		}
		api.Store = st
		t.Cleanup(func() { st.Close() })
	}
	mux := http.NewServeMux()
	RegisterRoutes(mux, api)
	t.Cleanup(func() {
		s.Close()
		b.Close()
	})
	return &fixture{api: api, mux: mux, session: s, bus: b}
}

func waveCSV(n int) string {
	var b strings.Builder
	b.WriteString("timestamp,open,high,low,close,volume\n")
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		c := 100 + 12*math.Sin(float64(i)/5) + 3*math.Sin(float64(i)/1.3)
		fmt.Fprintf(&b, "%s,%g,%g,%g,%g,100\n", base.Add(time.Duration(i)*time.Minute).Format(time.RFC3339), c, c+1, c-1, c)
	}
	return b.String()
}

func (f *fixture) do(t *testing.T, method, path, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

func (f *fixture) load(t *testing.T, n int) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/dataset?name=wave", "text/csv", waveCSV(n))
	if rec.Code != http.StatusOK {
		t.Fatalf("load dataset: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAPI_StrategiesAndEmptyState(t *testing.T) {
	f := newFixture(t, false)

	rec := f.do(t, http.MethodGet, "/api/strategies", "", "")
	var cat []strategy.Config
	decode(t, rec, &cat)
	if len(cat) != len(strategy.IDs) {
		t.Errorf("catalog has %d entries, want %d", len(cat), len(strategy.IDs))
	}

	rec = f.do(t, http.MethodGet, "/api/state", "", "")
	var st StateResponse
	decode(t, rec, &st)
	if st.State.LastIndex != -1 || st.State.PortfolioValue != sim.DefaultInitialCapital {
		t.Errorf("empty state = %+v", st.State)
	}
	if st.Strategy == nil || st.Strategy.ID != strategy.SMACrossover {
		t.Errorf("state strategy = %+v", st.Strategy)
	}

	if rec := f.do(t, http.MethodPost, "/api/step", "", ""); rec.Code != http.StatusConflict {
		t.Errorf("step without dataset: %d, want 409", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/series", "", ""); rec.Code != http.StatusConflict {
		t.Errorf("series without dataset: %d, want 409", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/step", "", ""); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/step: %d, want 405", rec.Code)
	}
	if rec := f.do(t, http.MethodOptions, "/api/step", "", ""); rec.Code != http.StatusOK {
		t.Errorf("preflight: %d, want 200", rec.Code)
	}
}

func TestAPI_LoadStepAndInspect(t *testing.T) {
	f := newFixture(t, false)
	f.load(t, 80)

	rec := f.do(t, http.MethodPost, "/api/step", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("step: %d %s", rec.Code, rec.Body.String())
	}
	var step StepResponse
	decode(t, rec, &step)
	start := indicator.LongWindow - 1
	if !step.Stepped || step.Result == nil || step.Result.Index != start+1 {
		t.Fatalf("step response = %+v", step)
	}
	if step.State.CurrentIndex != start+1 || step.State.Dataset != "wave" {
		t.Errorf("state after step = %+v", step.State)
	}

	var eq []model.EquityPoint
	decode(t, f.do(t, http.MethodGet, "/api/equity", "", ""), &eq)
	if len(eq) != 2 {
		t.Errorf("equity points = %d, want 2", len(eq))
	}

	var page CandlesResponse
	decode(t, f.do(t, http.MethodGet, "/api/candles?offset=5&limit=10", "", ""), &page)
	if page.Total != 80 || page.Offset != 5 || len(page.Candles) != 10 {
		t.Errorf("candles page = total %d offset %d len %d", page.Total, page.Offset, len(page.Candles))
	}
	if rec := f.do(t, http.MethodGet, "/api/candles?limit=-1", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("negative limit: %d, want 400", rec.Code)
	}
	page = CandlesResponse{}
	decode(t, f.do(t, http.MethodGet, "/api/candles?offset=75&limit=9223372036854775807", "", ""), &page)
	if page.Offset != 75 || len(page.Candles) != 5 {
		t.Errorf("oversized limit page = offset %d len %d, want 75/5", page.Offset, len(page.Candles))
	}
	page = CandlesResponse{}
	decode(t, f.do(t, http.MethodGet, "/api/candles?offset=500", "", ""), &page)
	if page.Offset != 80 || len(page.Candles) != 0 {
		t.Errorf("past-end page = offset %d len %d, want 80/0", page.Offset, len(page.Candles))
	}

	var readout indicator.Readout
	decode(t, f.do(t, http.MethodGet, "/api/indicators", "", ""), &readout)
	if readout.Index != start+1 {
		t.Errorf("readout index = %d, want current %d", readout.Index, start+1)
	}
	if rec := f.do(t, http.MethodGet, "/api/indicators?index=500", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("out of range readout: %d, want 404", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/indicators?index=x", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad index: %d, want 400", rec.Code)
	}

	var series indicator.Series
	decode(t, f.do(t, http.MethodGet, "/api/series", "", ""), &series)
	if len(series.RSI) != 80 {
		t.Errorf("rsi series length = %d, want 80", len(series.RSI))
	}
}

func TestAPI_RejectsInvalidDataset(t *testing.T) {
	f := newFixture(t, false)
	f.load(t, 40)

	body := "timestamp,open,high,low,close,volume\n2024-01-01T00:00:00Z,1,2,0.5,1.5,10\n2024-01-01T00:01:00Z,1,2,0.5,abc,10\n"
	rec := f.do(t, http.MethodPost, "/api/dataset?name=bad", "text/csv", body)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad dataset: %d %s", rec.Code, rec.Body.String())
	}
	var e errorResponse
	decode(t, rec, &e)
	if e.Row != 2 {
		t.Errorf("error row = %d, want 2 (%s)", e.Row, e.Error)
	}
	if f.session.Dataset() != "wave" {
		t.Errorf("failed load replaced dataset with %q", f.session.Dataset())
	}
}

func TestAPI_StrategySpeedAndPlayback(t *testing.T) {
	f := newFixture(t, false)
	f.load(t, 60)

	if rec := f.do(t, http.MethodPost, "/api/strategy", "application/json", `{"strategy":"nope"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown strategy: %d, want 400", rec.Code)
	}
	rec := f.do(t, http.MethodPost, "/api/strategy", "application/json", `{"strategy":"rsi"}`)
	var st StateResponse
	decode(t, rec, &st)
	if st.State.Strategy != string(strategy.RSI) || st.Strategy.ID != strategy.RSI {
		t.Errorf("strategy after switch = %q", st.State.Strategy)
	}

	if rec := f.do(t, http.MethodPost, "/api/speed", "application/json", `{"ms":0}`); rec.Code != http.StatusBadRequest {
		t.Errorf("zero speed: %d, want 400", rec.Code)
	}
	decode(t, f.do(t, http.MethodPost, "/api/speed", "application/json", `{"ms":20}`), &st)
	if st.State.SpeedMs != 20 {
		t.Errorf("speed = %d, want 20", st.State.SpeedMs)
	}

	f.do(t, http.MethodPost, "/api/play", "", "")
	deadline := time.Now().Add(5 * time.Second)
	for f.session.Snapshot().State != "at_end" {
		if time.Now().After(deadline) {
			t.Fatalf("playback did not reach the end: %+v", f.session.Snapshot())
		}
		time.Sleep(10 * time.Millisecond)
	}

	decode(t, f.do(t, http.MethodPost, "/api/reset", "", ""), &st)
	if st.State.IsPlaying || st.State.CurrentIndex != st.State.StartIndex {
		t.Errorf("state after reset = %+v", st.State)
	}
}

func TestAPI_DatasetStoreAndRuns(t *testing.T) {
	f := newFixture(t, true)

	rec := f.do(t, http.MethodPost, "/api/dataset?name=saved&save=true", "text/csv", waveCSV(50))
	if rec.Code != http.StatusOK {
		t.Fatalf("load+save: %d %s", rec.Code, rec.Body.String())
	}

	var infos []sqlite.DatasetInfo
	decode(t, f.do(t, http.MethodGet, "/api/datasets", "", ""), &infos)
	if len(infos) != 1 || infos[0].Name != "saved" || infos[0].Candles != 50 {
		t.Fatalf("datasets = %+v", infos)
	}

	rec = f.do(t, http.MethodPost, "/api/dataset", "application/json", `{"name":"saved"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("load stored: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodPost, "/api/dataset", "application/json", `{"name":"missing"}`); rec.Code != http.StatusNotFound {
		t.Errorf("missing stored dataset: %d, want 404", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/api/dataset", "application/json", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("empty dataset request: %d, want 400", rec.Code)
	}

	var runs []model.RunRecord
	decode(t, f.do(t, http.MethodGet, "/api/runs", "", ""), &runs)
	if len(runs) != 0 {
		t.Errorf("runs = %d, want 0", len(runs))
	}

	if rec := f.do(t, http.MethodDelete, "/api/datasets?name=saved", "", ""); rec.Code != http.StatusOK {
		t.Errorf("delete: %d %s", rec.Code, rec.Body.String())
	}
	if rec := f.do(t, http.MethodDelete, "/api/datasets?name=saved", "", ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete: %d, want 404", rec.Code)
	}
}

func TestAPI_MultipartUpload(t *testing.T) {
	f := newFixture(t, false)

	var body bytes.Buffer
	boundary := "simboundary"
	fmt.Fprintf(&body, "--%s\r\nContent-Disposition: form-data; name=\"file\"; filename=\"spy.csv\"\r\nContent-Type: text/csv\r\n\r\n%s\r\n--%s--\r\n",
		boundary, waveCSV(30), boundary)

	rec := f.do(t, http.MethodPost, "/api/dataset", "multipart/form-data; boundary="+boundary, body.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("multipart upload: %d %s", rec.Code, rec.Body.String())
	}
	if f.session.Dataset() != "spy" {
		t.Errorf("dataset name = %q, want spy", f.session.Dataset())
	}
}

func TestAPI_HealthAndMissed(t *testing.T) {
	f := newFixture(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.api.Hub.Run(ctx, f.bus.Subscribe())

	f.load(t, 40)
	f.do(t, http.MethodPost, "/api/step", "", "")

	deadline := time.Now().Add(2 * time.Second)
	for f.api.Hub.Seq() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("hub seq = %d, want >= 2", f.api.Hub.Seq())
		}
		time.Sleep(5 * time.Millisecond)
	}

	var h HealthResponse
	decode(t, f.do(t, http.MethodGet, "/api/health", "", ""), &h)
	if h.Status != "healthy" || h.Seq < 2 {
		t.Errorf("health = %+v", h)
	}

	var envs []envelope
	decode(t, f.do(t, http.MethodGet, "/api/missed?from=1&to=2", "", ""), &envs)
	if len(envs) != 2 || envs[0].Type != "load" || envs[1].Type != "step" {
		t.Errorf("missed envelopes = %+v", envs)
	}
	if rec := f.do(t, http.MethodGet, "/api/missed?from=3&to=1", "", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("inverted range: %d, want 400", rec.Code)
	}
}
