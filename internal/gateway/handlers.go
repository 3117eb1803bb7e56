package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"strategy-sim/internal/dataset"
	"strategy-sim/internal/metrics"
	"strategy-sim/internal/model"
	"strategy-sim/internal/sim"
	"strategy-sim/internal/store/sqlite"
	"strategy-sim/internal/strategy"

	"github.com/gorilla/websocket"
)

// maxUpload bounds POST /api/dataset bodies.
const maxUpload = 32 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// API bundles what the HTTP handlers operate on. Store and Health are
// optional.
type API struct {
	Session *sim.Session
	Hub     *Hub
	Store   *sqlite.Store
	Health  *metrics.HealthStatus
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorResponse{Error: err.Error()}

	var loadErr *dataset.LoadError
	switch {
	case sqlite.IsNotFound(err):
		status = http.StatusNotFound
	case errors.As(err, &loadErr):
		status = http.StatusUnprocessableEntity
		body.Row = loadErr.Row
	case errors.Is(err, sim.ErrUnknownStrategy):
		status = http.StatusBadRequest
	case errors.Is(err, sim.ErrNoDataset), errors.Is(err, sim.ErrStepInFlight):
		status = http.StatusConflict
	}
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, format string, args ...interface{}) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf(format, args...)})
}

// route wraps a handler with CORS, preflight handling and a method check.
func route(mux *http.ServeMux, path string, methods []string, h http.HandlerFunc) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		for _, m := range methods {
			if r.Method == m {
				h(w, r)
				return
			}
		}
		w.Header().Set("Allow", strings.Join(methods, ", "))
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
	})
}

var (
	get  = []string{http.MethodGet}
	post = []string{http.MethodPost}
)

// RegisterRoutes registers all HTTP routes on the provided mux.
func RegisterRoutes(mux *http.ServeMux, api *API) {
	s := api.Session

	// WebSocket endpoint. ?last_seq=N resumes from the replay buffer.
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		var lastSeq int64
		raw := r.URL.Query().Get("last_seq")
		resume := raw != ""
		if resume {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || v < 0 {
				SetCORS(w)
				badRequest(w, "invalid last_seq %q", raw)
				return
			}
			lastSeq = v
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		api.Hub.HandleWSRequest(conn, lastSeq, resume)
	})

	route(mux, "/api/health", get, func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			WSClients: api.Hub.ClientCount(),
			Seq:       api.Hub.Seq(),
			Playing:   s.IsPlaying(),
		}
		code := http.StatusOK
		if api.Health != nil {
			resp.Report, code = api.Health.Report()
		} else {
			resp.Status = "healthy"
		}
		writeJSON(w, code, resp)
	})

	route(mux, "/api/metrics", get, func(w http.ResponseWriter, r *http.Request) {
		m := CollectMetrics(api.Hub.started)
		m.Clients = api.Hub.ClientCount()
		m.Latency = api.Hub.Latency.Stats()
		m.Dropped = api.Hub.Dropped()
		m.Seq = api.Hub.Seq()
		writeJSON(w, http.StatusOK, m)
	})

	route(mux, "/api/strategies", get, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, strategy.Catalog())
	})

	route(mux, "/api/state", get, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, api.state())
	})

	route(mux, "/api/candles", get, func(w http.ResponseWriter, r *http.Request) {
		candles := s.Candles()
		offset, limit, err := pageParams(r, len(candles))
		if err != nil {
			badRequest(w, "%v", err)
			return
		}
		out := candles[offset : offset+limit]
		if out == nil {
			out = []model.Candle{}
		}
		writeJSON(w, http.StatusOK, CandlesResponse{Total: len(candles), Offset: offset, Candles: out})
	})

	route(mux, "/api/series", get, func(w http.ResponseWriter, r *http.Request) {
		series, err := s.Series()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, series)
	})

	route(mux, "/api/indicators", get, func(w http.ResponseWriter, r *http.Request) {
		index := -1
		if raw := r.URL.Query().Get("index"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 {
				badRequest(w, "invalid index %q", raw)
				return
			}
			index = v
		}
		readout, err := s.Readout(index)
		if err != nil {
			if errors.Is(err, sim.ErrNoDataset) {
				writeError(w, err)
			} else {
				writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			}
			return
		}
		writeJSON(w, http.StatusOK, readout)
	})

	route(mux, "/api/trades", get, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Trades())
	})

	route(mux, "/api/equity", get, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.Equity())
	})

	route(mux, "/api/summary", get, func(w http.ResponseWriter, r *http.Request) {
		sum, err := s.Summary()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sum)
	})

	// REST: replay buffer range for client-side gap backfill
	route(mux, "/api/missed", get, func(w http.ResponseWriter, r *http.Request) {
		from, err1 := strconv.ParseInt(r.URL.Query().Get("from"), 10, 64)
		to, err2 := strconv.ParseInt(r.URL.Query().Get("to"), 10, 64)
		if err1 != nil || err2 != nil || from > to {
			badRequest(w, "from and to must be integers with from <= to")
			return
		}
		envs := api.Hub.GetReplayRange(from, to)
		out := make([]json.RawMessage, len(envs))
		for i, e := range envs {
			out[i] = e
		}
		writeJSON(w, http.StatusOK, out)
	})

	// ── Commands ──

	route(mux, "/api/step", post, func(w http.ResponseWriter, r *http.Request) {
		res, ok, err := s.Step()
		if err != nil {
			writeError(w, err)
			return
		}
		resp := StepResponse{Stepped: ok, State: s.Snapshot()}
		if ok {
			resp.Result = &res
		}
		writeJSON(w, http.StatusOK, resp)
	})

	route(mux, "/api/play", post, func(w http.ResponseWriter, r *http.Request) {
		if err := s.Play(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, api.state())
	})

	route(mux, "/api/pause", post, func(w http.ResponseWriter, r *http.Request) {
		s.Pause()
		writeJSON(w, http.StatusOK, api.state())
	})

	route(mux, "/api/reset", post, func(w http.ResponseWriter, r *http.Request) {
		if err := s.Reset(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, api.state())
	})

	route(mux, "/api/speed", post, func(w http.ResponseWriter, r *http.Request) {
		var req SpeedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Ms <= 0 {
			badRequest(w, `body must be {"ms": <positive interval>}`)
			return
		}
		s.SetSpeed(time.Duration(req.Ms) * time.Millisecond)
		writeJSON(w, http.StatusOK, api.state())
	})

	route(mux, "/api/strategy", post, func(w http.ResponseWriter, r *http.Request) {
		var req StrategyRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid JSON")
			return
		}
		if err := s.SetStrategy(req.Strategy); err != nil {
			writeError(w, err)
			return
		}
		log.Printf("[gateway] strategy set to %s", req.Strategy)
		writeJSON(w, http.StatusOK, api.state())
	})

	route(mux, "/api/dataset", post, api.handleLoadDataset)

	// ── Dataset store and run journal ──

	route(mux, "/api/datasets", []string{http.MethodGet, http.MethodDelete}, func(w http.ResponseWriter, r *http.Request) {
		if api.Store == nil {
			if r.Method == http.MethodGet {
				writeJSON(w, http.StatusOK, []sqlite.DatasetInfo{})
				return
			}
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no dataset store configured"})
			return
		}
		if r.Method == http.MethodDelete {
			name := r.URL.Query().Get("name")
			if name == "" {
				badRequest(w, "name is required")
				return
			}
			if err := api.Store.DeleteDataset(r.Context(), name); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "name": name})
			return
		}
		infos, err := api.Store.Datasets(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, infos)
	})

	route(mux, "/api/runs", get, func(w http.ResponseWriter, r *http.Request) {
		if api.Store == nil {
			writeJSON(w, http.StatusOK, []model.RunRecord{})
			return
		}
		q := r.URL.Query()
		f := sqlite.RunFilter{Dataset: q.Get("dataset"), Strategy: q.Get("strategy")}
		if raw := q.Get("limit"); raw != "" {
			if l, err := strconv.Atoi(raw); err == nil && l > 0 && l <= 1000 {
				f.Limit = l
			}
		}
		runs, err := api.Store.Runs(r.Context(), f)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	route(mux, "/api/runs/detail", get, func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("run")
		if id == "" {
			badRequest(w, "run is required")
			return
		}
		if api.Store == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no run journal configured"})
			return
		}
		trades, err := api.Store.RunTrades(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		equity, err := api.Store.RunEquity(r.Context(), id)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, RunDetail{RunID: id, Trades: trades, Equity: equity})
	})
}

func (api *API) state() StateResponse {
	snap := api.Session.Snapshot()
	resp := StateResponse{State: snap, Seq: api.Hub.Seq()}
	if cfg, ok := strategy.Lookup(strategy.ID(snap.Strategy)); ok {
		resp.Strategy = &cfg
	}
	return resp
}

// handleLoadDataset accepts three request shapes:
//   - application/json: {"name": stored} or {"url": ..., "label": ...}
//   - multipart/form-data with a "file" part
//   - a raw CSV or JSON body, labelled by ?name=
//
// ?save=true (or "save" in JSON) persists the loaded series to the store.
func (api *API) handleLoadDataset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	ctx := r.Context()

	var (
		src  dataset.Source
		save = r.URL.Query().Get("save") == "true"
	)
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/json":
		var req DatasetRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid JSON")
			return
		}
		save = save || req.Save
		switch {
		case req.Name != "" && req.URL == "":
			if api.Store == nil {
				writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "no dataset store configured"})
				return
			}
			src = sqlite.Source{Store: api.Store, Dataset: req.Name}
			save = false
		case req.URL != "" && req.Name == "":
			src = dataset.NewHTTPSource(req.URL, req.Label)
		default:
			badRequest(w, "exactly one of name or url is required")
			return
		}
	case "multipart/form-data":
		file, header, err := r.FormFile("file")
		if err != nil {
			badRequest(w, "missing file part: %v", err)
			return
		}
		defer file.Close()
		name := r.FormValue("name")
		if name == "" {
			name = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
		}
		save = save || r.FormValue("save") == "true"
		src = dataset.ReaderSource{Label: name, Reader: file}
	default:
		name := r.URL.Query().Get("name")
		if name == "" {
			name = "upload"
		}
		src = dataset.ReaderSource{Label: name, Reader: r.Body}
	}

	if err := api.loadAndSave(ctx, src, save); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.state())
}

func (api *API) loadAndSave(ctx context.Context, src dataset.Source, save bool) error {
	if err := api.Session.LoadFrom(ctx, src); err != nil {
		return err
	}
	if !save || api.Store == nil {
		return nil
	}
	name := src.Name()
	if err := api.Store.SaveDataset(ctx, name, api.Session.Candles()); err != nil {
		// The session already holds the series; only persistence failed.
		log.Printf("[gateway] save dataset %q failed: %v", name, err)
		return err
	}
	return nil
}

// pageParams reads ?offset= and ?limit= against a series of n candles. The
// returned window always fits: offset+limit <= n.
func pageParams(r *http.Request, n int) (offset, limit int, err error) {
	q := r.URL.Query()
	limit = n
	if raw := q.Get("offset"); raw != "" {
		if offset, err = strconv.Atoi(raw); err != nil || offset < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", raw)
		}
	}
	if raw := q.Get("limit"); raw != "" {
		if limit, err = strconv.Atoi(raw); err != nil || limit <= 0 {
			return 0, 0, fmt.Errorf("invalid limit %q", raw)
		}
	}
	if offset > n {
		offset = n
	}
	return offset, min(limit, n-offset), nil
}
