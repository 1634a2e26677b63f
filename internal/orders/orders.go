// Package orders drives a single order from submission to a terminal
// snapshot: place it, poll the venue until it closes or the wait window
// expires, cancel timed-out buys, and hand the last-seen snapshot back to
// the caller.
package orders

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"cryptobot/internal/exchange"
)

// DefaultPollInterval is how often an open order is re-fetched while waiting
// for it to fill.
const DefaultPollInterval = 10 * time.Second

// Side selects the order direction.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Result is the terminal outcome of awaiting an order. TimedOut is set when
// the order was still open once the wait window expired; the snapshot then
// reflects whatever the venue last reported, including a partial fill.
type Result struct {
	Order    exchange.Order
	TimedOut bool
}

// Manager submits and awaits orders. The clock and sleeper are injectable so
// the timeout arithmetic is testable without real waiting; the default
// sleeper honors context cancellation instead of blocking a thread.
type Manager struct {
	gw           exchange.Gateway
	log          zerolog.Logger
	pollInterval time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

// NewManager returns a Manager polling at DefaultPollInterval.
func NewManager(gw exchange.Gateway, log zerolog.Logger) *Manager {
	return &Manager{
		gw:           gw,
		log:          log.With().Str("component", "orders").Logger(),
		pollInterval: DefaultPollInterval,
		now:          time.Now,
		sleep:        waitForContext,
	}
}

// Place submits a limit order and returns the venue's order id. A rejection
// reaches the caller before any ledger entry exists.
func (m *Manager) Place(ctx context.Context, pair string, side Side, quantity, rate float64) (string, error) {
	var (
		orderID string
		err     error
	)
	switch side {
	case Buy:
		orderID, err = m.gw.BuyLimit(ctx, pair, quantity, rate)
	default:
		orderID, err = m.gw.SellLimit(ctx, pair, quantity, rate)
	}
	if err != nil {
		m.log.Error().Err(err).Str("pair", pair).Str("side", string(side)).
			Float64("quantity", quantity).Float64("rate", rate).Msg("order placement failed")
		return "", err
	}
	return orderID, nil
}

// Await polls the order until it closes or timeLimit elapses. On expiry the
// order is cancelled only when it is a buy; a resting sell is left on the
// book. The returned snapshot is always the last one the venue reported.
func (m *Manager) Await(ctx context.Context, orderID string, timeLimit time.Duration) (Result, error) {
	start := m.now()

	order, err := m.gw.Order(ctx, orderID)
	if err != nil {
		return Result{}, err
	}

	for order.IsOpen && m.now().Sub(start) < timeLimit {
		if err := m.sleep(ctx, m.pollInterval); err != nil {
			return Result{Order: order}, err
		}
		order, err = m.gw.Order(ctx, orderID)
		if err != nil {
			return Result{}, err
		}
	}

	if !order.IsOpen {
		return Result{Order: order}, nil
	}

	m.log.Error().Str("order_id", orderID).Str("pair", order.Pair).
		Dur("time_limit", timeLimit).Float64("filled", order.FilledQuantity()).
		Msg("order still open after wait window")

	if order.Type == exchange.LimitBuy {
		if err := m.gw.CancelOrder(ctx, orderID); err != nil {
			m.log.Error().Err(err).Str("order_id", orderID).Msg("cancel of timed-out buy failed")
		}
	}
	return Result{Order: order, TimedOut: true}, nil
}

// waitForContext sleeps for delay unless the context is cancelled first.
func waitForContext(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
