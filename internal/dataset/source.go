package dataset

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"strategy-sim/internal/model"
)

// maxBody caps how much a remote source may send.
const maxBody = 64 << 20

// Source yields a raw candle series. Load results still go through Prepare.
type Source interface {
	Name() string
	Load(ctx context.Context) ([]model.Candle, error)
}

// Load fetches from src and prepares the result. Every failure is a *LoadError.
func Load(ctx context.Context, src Source) ([]model.Candle, error) {
	raw, err := src.Load(ctx)
	if err != nil {
		return nil, AsLoadError(src.Name(), err)
	}
	candles, err := Prepare(src.Name(), raw)
	if err != nil {
		return nil, AsLoadError(src.Name(), err)
	}
	return candles, nil
}

// FileSource reads a CSV or JSON file from disk.
type FileSource struct {
	Path string
}

func (f FileSource) Name() string {
	return strings.TrimSuffix(filepath.Base(f.Path), filepath.Ext(f.Path))
}

func (f FileSource) Load(ctx context.Context) ([]model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, &LoadError{Source: f.Name(), Msg: "open file", Err: err}
	}
	defer fh.Close()
	return Parse(f.Name(), fh)
}

// ReaderSource parses an in-memory upload.
type ReaderSource struct {
	Label  string
	Reader io.Reader
}

func (r ReaderSource) Name() string { return r.Label }

func (r ReaderSource) Load(ctx context.Context) ([]model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Parse(r.Label, r.Reader)
}

// HTTPSource fetches a CSV or JSON dataset over HTTP(S).
type HTTPSource struct {
	URL    string
	Label  string
	client *http.Client
}

// NewHTTPSource creates a source with a bounded client timeout.
func NewHTTPSource(url, label string) *HTTPSource {
	return &HTTPSource{
		URL:   url,
		Label: label,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (h *HTTPSource) Name() string {
	if h.Label != "" {
		return h.Label
	}
	return h.URL
}

func (h *HTTPSource) Load(ctx context.Context) ([]model.Candle, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", h.URL, nil)
	if err != nil {
		return nil, &LoadError{Source: h.Name(), Msg: "create request", Err: err}
	}
	req.Header.Set("Accept", "text/csv, application/json")

	client := h.client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &LoadError{Source: h.Name(), Msg: "fetch", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &LoadError{Source: h.Name(), Msg: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	candles, err := Parse(h.Name(), io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	log.Printf("[dataset] fetched %d candles from %s", len(candles), h.URL)
	return candles, nil
}
