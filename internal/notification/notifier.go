// Package notification delivers batch comparison reports and run alerts to
// external channels.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo    AlertLevel = "INFO"
	AlertWarning AlertLevel = "WARNING"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the standard logger.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Multi fans an alert out to every backend and joins their errors.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Ranking is the per-dataset outcome a batch report summarizes.
type Ranking struct {
	Dataset     string
	Best        string
	ReturnPct   float64
	DrawdownPct float64
	Strategies  int
}

// BatchAlert builds the report for one batch comparison. A failed batch is
// reported as a warning even when some datasets completed.
func BatchAlert(rankings []Ranking, batchErr error) Alert {
	sort.Slice(rankings, func(i, j int) bool { return rankings[i].Dataset < rankings[j].Dataset })

	var b strings.Builder
	for _, r := range rankings {
		fmt.Fprintf(&b, "%s: %s %+.2f%% (max dd %.2f%%, %d strategies)\n",
			r.Dataset, r.Best, r.ReturnPct, r.DrawdownPct, r.Strategies)
	}
	alert := Alert{
		Level: AlertInfo,
		Title: fmt.Sprintf("Batch comparison: %d datasets", len(rankings)),
	}
	if batchErr != nil {
		alert.Level = AlertWarning
		fmt.Fprintf(&b, "error: %v\n", batchErr)
	}
	if len(rankings) == 0 && batchErr == nil {
		b.WriteString("no stored datasets")
	}
	alert.Message = strings.TrimRight(b.String(), "\n")
	return alert
}
