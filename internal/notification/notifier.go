// Package notification delivers engine alerts (placement failures, fills,
// stale resets, ambiguous signals) to external channels.
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert represents a notification to be sent.
type Alert struct {
	Level   AlertLevel `json:"level"`
	Title   string     `json:"title"`
	Message string     `json:"message"`
	Symbol  string     `json:"symbol,omitempty"`
}

// Infof, Warnf and Criticalf build alerts with a formatted message.
func Infof(title, format string, args ...any) Alert {
	return Alert{Level: AlertInfo, Title: title, Message: fmt.Sprintf(format, args...)}
}

func Warnf(title, format string, args ...any) Alert {
	return Alert{Level: AlertWarning, Title: title, Message: fmt.Sprintf(format, args...)}
}

func Criticalf(title, format string, args ...any) Alert {
	return Alert{Level: AlertCritical, Title: title, Message: fmt.Sprintf(format, args...)}
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the process log.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(_ context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, strings.TrimSpace(alert.Symbol+" "+alert.Title), alert.Message)
	return nil
}

// Multi sends every alert to all backends and joins their errors. A failing
// backend does not stop the others.
type Multi []Notifier

func (m Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Send(ctx, alert); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MinLevel drops alerts below level before handing them to next.
func MinLevel(level AlertLevel, next Notifier) Notifier {
	return &filtered{min: rank(level), next: next}
}

type filtered struct {
	min  int
	next Notifier
}

func (f *filtered) Send(ctx context.Context, alert Alert) error {
	if rank(alert.Level) < f.min {
		return nil
	}
	return f.next.Send(ctx, alert)
}

func rank(l AlertLevel) int {
	switch l {
	case AlertWarning:
		return 1
	case AlertCritical:
		return 2
	}
	return 0
}

// postJSON POSTs v and treats any non-2xx status as an error carrying the
// start of the response body.
func postJSON(ctx context.Context, client *http.Client, url string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	return nil
}
