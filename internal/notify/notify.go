// Package notify fans trading events out to configured channels. Delivery is
// best effort: a failed notification is logged and never blocks the engine.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// EventType labels a notification.
type EventType string

const (
	EventBuy     EventType = "buy"
	EventSell    EventType = "sell"
	EventPause   EventType = "pause"
	EventBalance EventType = "balance"
	EventError   EventType = "error"
)

// Event is one notification to deliver.
type Event struct {
	Type    EventType `json:"type"`
	Pair    string    `json:"pair,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Notifier delivers a single event to one channel.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Name() string
}

// Manager fans events out to all registered notifiers.
type Manager struct {
	notifiers []Notifier
	log       zerolog.Logger
	now       func() time.Time
}

func NewManager(log zerolog.Logger, notifiers ...Notifier) *Manager {
	return &Manager{notifiers: notifiers, log: log, now: time.Now}
}

func (m *Manager) send(ctx context.Context, ev Event) {
	ev.At = m.now()
	for _, n := range m.notifiers {
		if err := n.Notify(ctx, ev); err != nil {
			m.log.Warn().Err(err).Str("notifier", n.Name()).
				Str("type", string(ev.Type)).Msg("notification failed")
		}
	}
}

// Buy reports a completed buy order.
func (m *Manager) Buy(ctx context.Context, pair string, quantity, price float64) {
	m.send(ctx, Event{
		Type:    EventBuy,
		Pair:    pair,
		Message: fmt.Sprintf("bought %.8f %s at %.8f", quantity, pair, price),
	})
}

// Sell reports a completed sell order with its realised margin.
func (m *Manager) Sell(ctx context.Context, pair string, quantity, price, margin float64) {
	m.send(ctx, Event{
		Type:    EventSell,
		Pair:    pair,
		Message: fmt.Sprintf("sold %.8f %s at %.8f (%.2f%% margin)", quantity, pair, price, margin),
	})
}

// Pause reports that a pair left a scan pass.
func (m *Manager) Pause(ctx context.Context, pair, reason string) {
	m.send(ctx, Event{
		Type:    EventPause,
		Pair:    pair,
		Message: fmt.Sprintf("%s paused: %s", pair, reason),
	})
}

// Balance reports the periodic account valuation.
func (m *Manager) Balance(ctx context.Context, current float64, previous *float64) {
	msg := fmt.Sprintf("account value %.8f BTC", current)
	if previous != nil && *previous > 0 {
		change := 100 * (current - *previous) / *previous
		msg = fmt.Sprintf("account value %.8f BTC (%+.2f%% since last report)", current, change)
	}
	m.send(ctx, Event{Type: EventBalance, Message: msg})
}

// Error reports a fault worth a human's attention.
func (m *Manager) Error(ctx context.Context, pair string, err error) {
	m.send(ctx, Event{
		Type:    EventError,
		Pair:    pair,
		Message: err.Error(),
	})
}
