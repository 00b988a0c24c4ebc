// Package notification provides alert delivery to external channels
// (webhooks, Telegram, Redis) for trade signals.
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"
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
	Kind    string     `json:"kind,omitempty"`   // signal source, e.g. "volume_spike", "golden_cross"
	Code    string     `json:"code,omitempty"`   // instrument code
	Signal  string     `json:"signal,omitempty"` // "Y" / "N"
	Data    any        `json:"data,omitempty"`   // full indicator result
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier is a simple notifier that logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s: %s", alert.Level, alert.Title, alert.Message)
	return nil
}

// Named pairs a backend with the label used in failure metrics.
type Named struct {
	Name     string
	Notifier Notifier
}

// Multi fans an alert out to every backend. A failing backend does not stop
// delivery to the rest.
type Multi struct {
	backends []Named

	// OnFailure is called with the backend name of each failed delivery.
	OnFailure func(backend string)
}

// NewMulti creates a fan-out notifier. Nil notifiers are skipped.
func NewMulti(backends ...Named) *Multi {
	m := &Multi{}
	for _, b := range backends {
		if b.Notifier != nil {
			m.backends = append(m.backends, b)
		}
	}
	return m
}

// Len returns the number of active backends.
func (m *Multi) Len() int { return len(m.backends) }

func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, b := range m.backends {
		if err := b.Notifier.Send(ctx, alert); err != nil {
			log.Printf("[notify] %s delivery failed: %v", b.Name, err)
			if m.OnFailure != nil {
				m.OnFailure(b.Name)
			}
			errs = append(errs, fmt.Errorf("%s: %w", b.Name, err))
		}
	}
	return errors.Join(errs...)
}
