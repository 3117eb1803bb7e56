package dataset

import (
	"errors"
	"fmt"
)

// ErrEmpty is returned when a source yields no candles.
var ErrEmpty = errors.New("dataset: no candles")

// LoadError is the structured failure returned by the loading boundary.
// Row is the 1-based data row that failed, or 0 when the failure is not tied
// to a row (network errors, empty input).
type LoadError struct {
	Source string
	Row    int
	Msg    string
	Err    error
}

func (e *LoadError) Error() string {
	s := "dataset"
	if e.Source != "" {
		s += " " + e.Source
	}
	if e.Row > 0 {
		s += fmt.Sprintf(": row %d", e.Row)
	}
	s += ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *LoadError) Unwrap() error { return e.Err }

func rowError(source string, row int, err error, format string, args ...any) *LoadError {
	return &LoadError{Source: source, Row: row, Msg: fmt.Sprintf(format, args...), Err: err}
}

// AsLoadError wraps any error into a *LoadError for source, leaving existing
// LoadErrors untouched.
func AsLoadError(source string, err error) *LoadError {
	if err == nil {
		return nil
	}
	var le *LoadError
	if errors.As(err, &le) {
		return le
	}
	return &LoadError{Source: source, Msg: "load failed", Err: err}
}
