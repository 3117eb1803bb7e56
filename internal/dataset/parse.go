// Package dataset is the loading boundary: it turns CSV or JSON input into a
// validated, chronologically ordered candle series. Nothing malformed gets
// past Prepare.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"strategy-sim/internal/model"
)

// column aliases accepted in CSV headers (lower-cased).
var columnAliases = map[string]string{
	"timestamp": "timestamp",
	"time":      "timestamp",
	"date":      "timestamp",
	"datetime":  "timestamp",
	"open":      "open",
	"o":         "open",
	"high":      "high",
	"h":         "high",
	"low":       "low",
	"l":         "low",
	"close":     "close",
	"c":         "close",
	"adj close": "close",
	"volume":    "volume",
	"vol":       "volume",
	"v":         "volume",
}

var requiredColumns = []string{"timestamp", "open", "high", "low", "close", "volume"}

// Parse sniffs the input and dispatches to ParseJSON or ParseCSV.
func Parse(source string, r io.Reader) ([]model.Candle, error) {
	br := bufio.NewReader(r)
	for {
		b, err := br.Peek(1)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, &LoadError{Source: source, Msg: "empty input", Err: ErrEmpty}
			}
			return nil, &LoadError{Source: source, Msg: "read", Err: err}
		}
		switch b[0] {
		case ' ', '\t', '\r', '\n', 0xEF, 0xBB, 0xBF:
			_, _ = br.ReadByte()
			continue
		case '[':
			return ParseJSON(source, br)
		}
		return ParseCSV(source, br)
	}
}

// ParseCSV reads a headered OHLCV CSV. Column order is free; the header must
// name timestamp, open, high, low, close and volume (common aliases allowed).
func ParseCSV(source string, r io.Reader) ([]model.Candle, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &LoadError{Source: source, Msg: "empty input", Err: ErrEmpty}
		}
		return nil, &LoadError{Source: source, Msg: "read header", Err: err}
	}
	cols, err := mapHeader(header)
	if err != nil {
		return nil, &LoadError{Source: source, Msg: "header", Err: err}
	}

	var out []model.Candle
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, rowError(source, row, err, "malformed csv")
		}
		if isBlank(rec) {
			continue
		}
		c, err := candleFromRecord(rec, cols)
		if err != nil {
			return nil, rowError(source, row, err, "invalid row")
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, &LoadError{Source: source, Msg: "no data rows", Err: ErrEmpty}
	}
	return out, nil
}

func mapHeader(header []string) (map[string]int, error) {
	cols := make(map[string]int, len(requiredColumns))
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(strings.Trim(h, "\ufeff\"")))
		if name, ok := columnAliases[key]; ok {
			if _, dup := cols[name]; !dup {
				cols[name] = i
			}
		}
	}
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := cols[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}
	return cols, nil
}

func candleFromRecord(rec []string, cols map[string]int) (model.Candle, error) {
	field := func(name string) (string, error) {
		i := cols[name]
		if i >= len(rec) {
			return "", fmt.Errorf("missing %s", name)
		}
		return strings.TrimSpace(strings.Trim(rec[i], `"`)), nil
	}
	num := func(name string) (float64, error) {
		s, err := field(name)
		if err != nil {
			return 0, err
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", name, s)
		}
		return v, nil
	}

	var c model.Candle
	var err error
	if c.Timestamp, err = field("timestamp"); err != nil {
		return c, err
	}
	if c.Open, err = num("open"); err != nil {
		return c, err
	}
	if c.High, err = num("high"); err != nil {
		return c, err
	}
	if c.Low, err = num("low"); err != nil {
		return c, err
	}
	if c.Close, err = num("close"); err != nil {
		return c, err
	}
	if c.Volume, err = num("volume"); err != nil {
		return c, err
	}
	return c, nil
}

func isBlank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// jsonRow is the accepted JSON shape; numbers may also arrive as strings.
type jsonRow struct {
	Timestamp string          `json:"timestamp"`
	Date      string          `json:"date"`
	Open      json.RawMessage `json:"open"`
	High      json.RawMessage `json:"high"`
	Low       json.RawMessage `json:"low"`
	Close     json.RawMessage `json:"close"`
	Volume    json.RawMessage `json:"volume"`
}

// ParseJSON reads an array of {timestamp, open, high, low, close, volume}.
func ParseJSON(source string, r io.Reader) ([]model.Candle, error) {
	var rows []jsonRow
	dec := json.NewDecoder(r)
	if err := dec.Decode(&rows); err != nil {
		return nil, &LoadError{Source: source, Msg: "malformed json", Err: err}
	}
	if len(rows) == 0 {
		return nil, &LoadError{Source: source, Msg: "no data rows", Err: ErrEmpty}
	}
	out := make([]model.Candle, len(rows))
	for i, jr := range rows {
		c := model.Candle{Timestamp: jr.Timestamp}
		if c.Timestamp == "" {
			c.Timestamp = jr.Date
		}
		for _, f := range []struct {
			name string
			raw  json.RawMessage
			dst  *float64
		}{
			{"open", jr.Open, &c.Open},
			{"high", jr.High, &c.High},
			{"low", jr.Low, &c.Low},
			{"close", jr.Close, &c.Close},
			{"volume", jr.Volume, &c.Volume},
		} {
			v, err := jsonNumber(f.raw)
			if err != nil {
				return nil, rowError(source, i+1, err, "invalid %s", f.name)
			}
			*f.dst = v
		}
		out[i] = c
	}
	return out, nil
}

func jsonNumber(raw json.RawMessage) (float64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, errors.New("missing value")
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, err
		}
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}
	var v float64
	err := json.Unmarshal(raw, &v)
	return v, err
}
