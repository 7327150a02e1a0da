package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	webhookTimeout = 10 * time.Second
	webhookRetries = 2
)

// WebhookNotifier posts alerts to an HTTP hook (a chat integration or an
// incident router). A 5xx or a transport error is retried; a 4xx is final.
type WebhookNotifier struct {
	url     string
	client  *http.Client
	initial time.Duration
	now     func() time.Time
}

// NewWebhookNotifier posts to url.
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:     url,
		client:  &http.Client{Timeout: webhookTimeout},
		initial: 500 * time.Millisecond,
		now:     time.Now,
	}
}

// webhookEvent is the posted body. Exactly one of the detail blocks is set,
// chosen by the alert kind.
type webhookEvent struct {
	Event    string    `json:"event"`
	Severity string    `json:"severity"`
	Topic    string    `json:"topic,omitempty"`
	Text     string    `json:"text"`
	At       time.Time `json:"at"`

	Connection *connectionDetail `json:"connection,omitempty"`
	Settings   *settingsDetail   `json:"settings,omitempty"`
	Snapshot   *snapshotDetail   `json:"snapshot,omitempty"`
}

type connectionDetail struct {
	State  string `json:"state"`
	Reason string `json:"reason,omitempty"`
}

type settingsDetail struct {
	Symbol string          `json:"symbol"`
	Error  string          `json:"error"`
	Patch  json.RawMessage `json:"patch,omitempty"`
}

type snapshotDetail struct {
	Reason string `json:"reason"`
}

func newWebhookEvent(a Alert, at time.Time) webhookEvent {
	if !a.TS.IsZero() {
		at = a.TS
	}
	ev := webhookEvent{
		Event:    string(a.Kind),
		Severity: strings.ToLower(string(a.Level)),
		Topic:    topicOf(a.Symbol, a.Interval),
		At:       at.UTC(),
	}
	switch a.Kind {
	case KindConnection:
		state := "reconnecting"
		if a.Connected {
			state = "connected"
		}
		ev.Connection = &connectionDetail{State: state, Reason: a.Message}
	case KindConfigPersist:
		d := &settingsDetail{Symbol: a.Symbol, Error: a.Message}
		if json.Valid(a.Patch) {
			d.Patch = json.RawMessage(a.Patch)
		}
		ev.Settings = d
	case KindSnapshotReject:
		ev.Snapshot = &snapshotDetail{Reason: a.Message}
	}
	ev.Text = summaryLine(a, ev.Topic)
	return ev
}

// summaryLine renders "[WARNING] BTCUSDT|1h: disconnected, retrying (eof)".
func summaryLine(a Alert, topic string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] ", a.Level)
	if topic != "" {
		b.WriteString(topic)
		b.WriteString(": ")
	}
	b.WriteString(a.Title)
	if a.Message != "" {
		fmt.Fprintf(&b, " (%s)", a.Message)
	}
	return b.String()
}

func topicOf(symbol, interval string) string {
	if symbol == "" || interval == "" {
		return symbol
	}
	return symbol + "|" + interval
}

func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	ev := newWebhookEvent(alert, w.now())
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("webhook: encode %s: %w", ev.Event, err)
	}

	post := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := w.client.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		switch {
		case resp.StatusCode >= 500:
			return fmt.Errorf("status %d", resp.StatusCode)
		case resp.StatusCode >= 300:
			return backoff.Permanent(fmt.Errorf("status %d", resp.StatusCode))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initial
	policy := backoff.WithContext(backoff.WithMaxRetries(b, webhookRetries), ctx)
	if err := backoff.Retry(post, policy); err != nil {
		return fmt.Errorf("webhook: %s: %w", ev.Event, err)
	}
	slog.Debug("webhook alert sent", "component", "notify", "event", ev.Event, "topic", ev.Topic)
	return nil
}
