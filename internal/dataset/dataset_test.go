package dataset

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"strategy-sim/internal/model"
)

const sampleCSV = `Date,Open,High,Low,Close,Volume
2024-01-02,100,105,99,104,1200
2024-01-03,104,106,101,102,900
2024-01-04,102,103,98,99,1500
`

func TestParseCSV_Basic(t *testing.T) {
	candles, err := ParseCSV("sample", strings.NewReader(sampleCSV))
	if err != nil {
		t.Fatalf("ParseCSV: %v", err)
	}
	if len(candles) != 3 {
		t.Fatalf("expected 3 candles, got %d", len(candles))
	}
	c := candles[1]
	if c.Timestamp != "2024-01-03" || c.Open != 104 || c.High != 106 || c.Low != 101 || c.Close != 102 || c.Volume != 900 {
		t.Errorf("unexpected candle %+v", c)
	}
}

func TestParseCSV_ColumnOrderAndAliases(t *testing.T) {
	in := "vol,c,h,l,o,timestamp\n10,5,6,4,5,2024-01-01T00:00:00Z\n"
	candles, err := ParseCSV("x", strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if candles[0].Close != 5 || candles[0].High != 6 || candles[0].Volume != 10 {
		t.Errorf("columns mapped wrongly: %+v", candles[0])
	}
}

func TestParseCSV_MissingColumn(t *testing.T) {
	_, err := ParseCSV("x", strings.NewReader("date,open,high,low,close\n2024-01-01,1,1,1,1\n"))
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LoadError, got %v", err)
	}
	if !strings.Contains(le.Error(), "volume") {
		t.Errorf("message should name the missing column: %s", le.Error())
	}
}

func TestParseCSV_BadNumberReportsRow(t *testing.T) {
	in := "date,open,high,low,close,volume\n2024-01-01,1,1,1,1,1\n2024-01-02,1,abc,1,1,1\n"
	_, err := ParseCSV("prices", strings.NewReader(in))
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LoadError, got %v", err)
	}
	if le.Row != 2 || le.Source != "prices" {
		t.Errorf("expected row 2 of prices, got %+v", le)
	}
}

func TestParse_SniffsJSON(t *testing.T) {
	in := ` [{"timestamp":"2024-01-01","open":1,"high":2,"low":0.5,"close":"1.5","volume":3}]`
	candles, err := Parse("j", strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 1 || candles[0].Close != 1.5 {
		t.Errorf("unexpected %+v", candles)
	}
}

func TestParseJSON_MissingField(t *testing.T) {
	_, err := ParseJSON("j", strings.NewReader(`[{"timestamp":"2024-01-01","open":1,"high":2,"low":0.5,"close":1}]`))
	var le *LoadError
	if !errors.As(err, &le) || le.Row != 1 {
		t.Fatalf("expected row 1 LoadError, got %v", err)
	}
}

func TestParse_Empty(t *testing.T) {
	_, err := Parse("e", strings.NewReader("  \n"))
	if !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	good := func() []model.Candle {
		return []model.Candle{
			{Timestamp: "2024-01-01", Open: 10, High: 12, Low: 9, Close: 11, Volume: 1},
			{Timestamp: "2024-01-02", Open: 11, High: 13, Low: 10, Close: 12, Volume: 0},
		}
	}
	if err := Validate("v", good()); err != nil {
		t.Fatalf("valid series rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(c []model.Candle)
	}{
		{"duplicate timestamp", func(c []model.Candle) { c[1].Timestamp = c[0].Timestamp }},
		{"bad timestamp", func(c []model.Candle) { c[1].Timestamp = "yesterday" }},
		{"negative volume", func(c []model.Candle) { c[1].Volume = -1 }},
		{"low above high", func(c []model.Candle) { c[1].Low = 14 }},
		{"close above high", func(c []model.Candle) { c[1].Close = 20 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := good()
			tc.mutate(c)
			err := Validate("v", c)
			var le *LoadError
			if !errors.As(err, &le) || le.Row != 2 {
				t.Fatalf("expected row 2 LoadError, got %v", err)
			}
		})
	}
}

func TestPrepare_SortsNewestFirst(t *testing.T) {
	in := []model.Candle{
		{Timestamp: "2024-01-03", Open: 3, High: 3, Low: 3, Close: 3},
		{Timestamp: "2024-01-02", Open: 2, High: 2, Low: 2, Close: 2},
		{Timestamp: "2024-01-01", Open: 1, High: 1, Low: 1, Close: 1},
	}
	out, err := Prepare("p", in)
	if err != nil {
		t.Fatal(err)
	}
	for i, want := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		if out[i].Timestamp != want {
			t.Errorf("out[%d] = %s, want %s", i, out[i].Timestamp, want)
		}
	}
	if in[0].Timestamp != "2024-01-03" {
		t.Error("Prepare modified its input")
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spy_daily.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o644); err != nil {
		t.Fatal(err)
	}
	src := FileSource{Path: path}
	if src.Name() != "spy_daily" {
		t.Errorf("name: got %q", src.Name())
	}
	candles, err := Load(context.Background(), src)
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 3 {
		t.Errorf("expected 3 candles, got %d", len(candles))
	}

	_, err = Load(context.Background(), FileSource{Path: filepath.Join(t.TempDir(), "missing.csv")})
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("expected *LoadError for missing file, got %v", err)
	}
}

func TestHTTPSource(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/csv")
		_, _ = w.Write([]byte(sampleCSV))
	}))
	defer srv.Close()

	candles, err := Load(context.Background(), NewHTTPSource(srv.URL+"/spy.csv", "spy"))
	if err != nil {
		t.Fatal(err)
	}
	if len(candles) != 3 || candles[2].Close != 99 {
		t.Errorf("unexpected candles %+v", candles)
	}

	_, err = Load(context.Background(), NewHTTPSource(srv.URL+"/missing", ""))
	var le *LoadError
	if !errors.As(err, &le) || !strings.Contains(le.Msg, "404") {
		t.Fatalf("expected status LoadError, got %v", err)
	}
}
