// Package notification provides alert delivery to external channels
// (Telegram, webhooks, etc.) for regime changes and system events.
package notification

import (
	"context"
	"fmt"
	"log"

	"marketpulse/internal/model"
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
	Regime  string     `json:"regime,omitempty"`
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

// MultiNotifier fans an alert out to several backends. Delivery failures
// are logged but do not stop delivery to the remaining backends.
type MultiNotifier struct {
	backends []Notifier
}

// NewMultiNotifier creates a notifier that delivers to all given backends.
func NewMultiNotifier(backends ...Notifier) *MultiNotifier {
	return &MultiNotifier{backends: backends}
}

func (m *MultiNotifier) Send(ctx context.Context, alert Alert) error {
	var lastErr error
	for _, b := range m.backends {
		if err := b.Send(ctx, alert); err != nil {
			log.Printf("[notify] backend error: %v", err)
			lastErr = err
		}
	}
	return lastErr
}

// RegimeChangeAlert builds an alert for a market regime transition.
// The first classification for a symbol (empty prev) is INFO; a flip
// into high volatility is WARNING.
func RegimeChangeAlert(prev, next model.RegimeState) Alert {
	level := AlertInfo
	if next.Regime == model.RegimeHighVol {
		level = AlertWarning
	}

	title := fmt.Sprintf("%s regime: %s", next.Symbol, next.Regime)
	msg := fmt.Sprintf("confidence=%.2f trend_strength=%.2f volatility=%.3f",
		next.Confidence, next.TrendStrength, next.Volatility)
	if prev.Regime != "" {
		msg = fmt.Sprintf("%s -> %s, %s", prev.Regime, next.Regime, msg)
	}

	return Alert{
		Level:   level,
		Title:   title,
		Message: msg,
		Symbol:  next.Symbol,
		Regime:  string(next.Regime),
	}
}
