// Package exchange defines the gateway the trading engine speaks to and the
// Bittrex REST implementation of it. Every call returns either a structured
// result or a classified error so callers can tell a transport outage apart
// from an order the venue rejected.
package exchange

import (
	"context"
	"time"
)

// OrderType is the venue-side order classification.
type OrderType string

const (
	LimitBuy  OrderType = "LIMIT_BUY"
	LimitSell OrderType = "LIMIT_SELL"
)

// Interval names a candle granularity accepted by the venue.
type Interval string

const (
	OneMin    Interval = "oneMin"
	FiveMin   Interval = "fiveMin"
	ThirtyMin Interval = "thirtyMin"
	Hour      Interval = "hour"
	Day       Interval = "day"
)

// ValidInterval reports whether the given ticker interval is one the venue
// serves candles for.
func ValidInterval(v Interval) bool {
	switch v {
	case OneMin, FiveMin, ThirtyMin, Hour, Day:
		return true
	}
	return false
}

// MarketSummary is the live snapshot of one coin pair.
type MarketSummary struct {
	Pair       string
	Ask        float64
	Bid        float64
	Last       float64
	BaseVolume float64
}

// Candle is one OHLCV bar.
type Candle struct {
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	Time   time.Time
}

// Order is the venue's snapshot of a single order. Quantity is the amount
// originally requested; QuantityRemaining is what has not filled yet.
type Order struct {
	ID                string
	Pair              string
	Type              OrderType
	IsOpen            bool
	Quantity          float64
	QuantityRemaining float64
	Price             float64
	PricePerUnit      float64
	CommissionPaid    float64
	Opened            *time.Time
	Closed            *time.Time
}

// FilledQuantity is the base-asset amount the venue reports as executed.
func (o Order) FilledQuantity() float64 {
	return o.Quantity - o.QuantityRemaining
}

// Balance is one currency's wallet balance.
type Balance struct {
	Currency  string
	Balance   float64
	Available float64
}

// Gateway is the surface the engine consumes. The production implementation
// is Client; tests substitute fakes.
type Gateway interface {
	// Markets lists tradable coin pairs, optionally filtered to one main
	// market (e.g. "BTC" keeps only BTC-* pairs).
	Markets(ctx context.Context, mainMarket string) ([]string, error)
	// Summary returns the live ticker and 24h base volume for a pair.
	Summary(ctx context.Context, pair string) (MarketSummary, error)
	// Candles returns up to count most recent candles, oldest first.
	Candles(ctx context.Context, pair string, interval Interval, count int) ([]Candle, error)
	// BuyLimit places a limit buy and returns the order id.
	BuyLimit(ctx context.Context, pair string, quantity, rate float64) (string, error)
	// SellLimit places a limit sell and returns the order id.
	SellLimit(ctx context.Context, pair string, quantity, rate float64) (string, error)
	// Order fetches the current snapshot of an order.
	Order(ctx context.Context, orderID string) (Order, error)
	// CancelOrder cancels an open order.
	CancelOrder(ctx context.Context, orderID string) error
	// Balances returns all wallet balances.
	Balances(ctx context.Context) ([]Balance, error)
}
