// Package notification surfaces dashboard conditions the user must see:
// connection-state changes of the streaming transport and failed settings
// updates.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// AlertKind classifies what the alert is about.
type AlertKind string

const (
	KindConnection     AlertKind = "connection_state"
	KindConfigPersist  AlertKind = "config_persist_failure"
	KindSnapshotReject AlertKind = "snapshot_rejected"
)

// Alert is one user-visible condition. Symbol and Interval name the topic
// the dashboard was showing; the remaining fields are set per kind.
type Alert struct {
	Level    AlertLevel
	Kind     AlertKind
	Title    string
	Message  string
	Symbol   string
	Interval string
	TS       time.Time

	// KindConnection: the transport state after the change.
	Connected bool

	// KindConfigPersist: the patch that was not saved.
	Patch []byte
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct {
	log *slog.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log.With("component", "notify")}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	level := slog.LevelInfo
	switch alert.Level {
	case AlertWarning:
		level = slog.LevelWarn
	case AlertCritical:
		level = slog.LevelError
	}
	n.log.Log(ctx, level, alert.Title,
		"kind", string(alert.Kind),
		"message", alert.Message,
		"symbol", alert.Symbol,
		"interval", alert.Interval,
	)
	return nil
}

// Multi fans an alert out to every backend and joins their errors.
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
