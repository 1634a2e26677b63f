// Package store holds the two durable documents the agent owns: the trade
// ledger (what we hold and have held) and the scan state (which markets are
// scanned and which are paused). Both are JSON files rewritten as a whole
// after every mutation, loaded with default-if-absent semantics at startup.
// The agent is the only writer; the mutex exists so a future concurrent
// scanner cannot corrupt the documents.
package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cryptobot/internal/exchange"
	"cryptobot/internal/id"
)

// Commission is the venue's fee per filled order side, charged once entering
// and once exiting a position.
const Commission = 0.0025

var (
	// ErrAlreadyTracked means a buy was attempted on a pair that already has
	// an open trade.
	ErrAlreadyTracked = errors.New("coin pair is already tracked")
	// ErrNotTracked means a fill was recorded for a pair with no prior
	// initial buy entry.
	ErrNotTracked = errors.New("coin pair is not tracked")
	// ErrNoOpenTrade means the ledger index says a pair is tracked but no
	// open trade exists. Callers treat this as an invariant violation.
	ErrNoOpenTrade = errors.New("no open trade for coin pair")
	// ErrIncompleteTrade means an open trade has no recorded buy fill yet, so
	// derived values like profit margin are undefined.
	ErrIncompleteTrade = errors.New("open trade has no completed buy")
)

// IsInvariant reports whether err signals ledger state the engine must not
// act on. The runner terminates rather than trade against it.
func IsInvariant(err error) bool {
	return errors.Is(err, ErrNoOpenTrade) || errors.Is(err, ErrIncompleteTrade)
}

// TradeStats captures the signal values that triggered an order.
type TradeStats struct {
	RSI          float64 `json:"rsi"`
	Volume       float64 `json:"24HrVolume,omitempty"`
	ProfitMargin float64 `json:"profitMargin,omitempty"`
}

// OrderRecord is the ledger's view of one completed (or timed-out) order.
type OrderRecord struct {
	OrderID        string      `json:"orderUuid"`
	Opened         *time.Time  `json:"dateOpened"`
	Closed         *time.Time  `json:"dateClosed"`
	Price          float64     `json:"price"`
	UnitPrice      float64     `json:"unitPrice"`
	CommissionPaid float64     `json:"commissionPaid"`
	Stats          *TradeStats `json:"stats,omitempty"`
}

// Trade is one lifecycle of holding a position. A trade with a nil Sell is
// open; at most one open trade exists per coin pair.
type Trade struct {
	ID       string       `json:"id"`
	CoinPair string       `json:"coinPair"`
	Quantity float64      `json:"quantity"`
	Buy      *OrderRecord `json:"buy,omitempty"`
	Sell     *OrderRecord `json:"sell,omitempty"`
}

// Open reports whether the trade still holds a position.
func (t Trade) Open() bool { return t.Sell == nil }

type ledgerDoc struct {
	Trades []*Trade `json:"trades"`
}

// Ledger is the durable record of open and closed trades. Tracked-pair
// membership is a derived in-memory index over the open trades, rebuilt on
// load, so the document cannot drift out of step with itself.
type Ledger struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
	doc  ledgerDoc
	open map[string]*Trade
}

// OpenLedger loads the ledger document at path, creating an empty one when
// absent. Loading fails if the document holds two open trades for one pair.
func OpenLedger(path string, log zerolog.Logger) (*Ledger, error) {
	l := &Ledger{
		path: path,
		log:  log.With().Str("component", "ledger").Logger(),
		open: map[string]*Trade{},
	}
	found, err := readJSON(path, &l.doc)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := writeJSON(path, &l.doc); err != nil {
			return nil, err
		}
		return l, nil
	}
	for _, t := range l.doc.Trades {
		if !t.Open() {
			continue
		}
		if _, dup := l.open[t.CoinPair]; dup {
			return nil, fmt.Errorf("ledger %s: two open trades for %s", path, t.CoinPair)
		}
		l.open[t.CoinPair] = t
	}
	return l, nil
}

// StoreInitialBuy appends a skeletal open trade before the buy order is known
// to have filled, so a crash mid-fill leaves an auditable entry.
func (l *Ledger) StoreInitialBuy(pair, orderID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, tracked := l.open[pair]; tracked {
		l.log.Warn().Str("pair", pair).Msg("buy attempted on an already tracked market")
		return fmt.Errorf("%s: %w", pair, ErrAlreadyTracked)
	}
	t := &Trade{
		ID:       id.New(),
		CoinPair: pair,
		Buy:      &OrderRecord{OrderID: orderID},
	}
	l.doc.Trades = append(l.doc.Trades, t)
	l.open[pair] = t
	return writeJSON(l.path, &l.doc)
}

// StoreBuy records the buy fill reported by the order snapshot. It must
// follow StoreInitialBuy for the same pair.
func (l *Ledger) StoreBuy(order exchange.Order, stats TradeStats) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, tracked := l.open[order.Pair]
	if !tracked {
		l.log.Warn().Str("pair", order.Pair).Msg("buy fill recorded without an initial buy entry")
		return fmt.Errorf("%s: %w", order.Pair, ErrNotTracked)
	}
	t.Quantity = order.FilledQuantity()
	t.Buy = recordFromOrder(order, stats)
	return writeJSON(l.path, &l.doc)
}

// StoreSell closes the pair's open trade. The trade stays in the document for
// history; only the open index entry is dropped.
func (l *Ledger) StoreSell(order exchange.Order, stats TradeStats) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, tracked := l.open[order.Pair]
	if !tracked {
		l.log.Warn().Str("pair", order.Pair).Msg("sell recorded on an untracked market")
		return fmt.Errorf("%s: %w", order.Pair, ErrNotTracked)
	}
	t.Sell = recordFromOrder(order, stats)
	delete(l.open, order.Pair)
	return writeJSON(l.path, &l.doc)
}

// OpenTrade returns the pair's open trade. Absence is an invariant violation:
// callers only ask for pairs the ledger reports as tracked.
func (l *Ledger) OpenTrade(pair string) (Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t, ok := l.open[pair]
	if !ok {
		l.log.Error().Str("pair", pair).Msg("open trade missing for tracked pair")
		return Trade{}, fmt.Errorf("%s: %w", pair, ErrNoOpenTrade)
	}
	return *t, nil
}

// Tracked reports whether the pair has an open trade.
func (l *Ledger) Tracked(pair string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.open[pair]
	return ok
}

// TrackedPairs returns the open pairs in the order their trades were opened.
func (l *Ledger) TrackedPairs() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	pairs := make([]string, 0, len(l.open))
	for _, t := range l.doc.Trades {
		if t.Open() {
			pairs = append(pairs, t.CoinPair)
		}
	}
	return pairs
}

// OpenCount returns the number of open trades.
func (l *Ledger) OpenCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.open)
}

// ProfitMargin computes the pair's current margin against its open trade.
func (l *Ledger) ProfitMargin(pair string, currentPrice float64) (float64, error) {
	t, err := l.OpenTrade(pair)
	if err != nil {
		return 0, err
	}
	return TradeProfitMargin(t, currentPrice)
}

// ClosedTrades returns copies of all closed trades still in the document.
func (l *Ledger) ClosedTrades() []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()

	var closed []Trade
	for _, t := range l.doc.Trades {
		if !t.Open() {
			closed = append(closed, *t)
		}
	}
	return closed
}

// RemoveClosed drops closed trades from the document and returns them, for
// archival into the journal.
func (l *Ledger) RemoveClosed() ([]Trade, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var kept []*Trade
	var removed []Trade
	for _, t := range l.doc.Trades {
		if t.Open() {
			kept = append(kept, t)
		} else {
			removed = append(removed, *t)
		}
	}
	if len(removed) == 0 {
		return nil, nil
	}
	l.doc.Trades = kept
	if err := writeJSON(l.path, &l.doc); err != nil {
		return nil, err
	}
	return removed, nil
}

// TradeProfitMargin computes the percentage margin of selling the trade's
// quantity at currentPrice, with commission charged on both sides. BTC
// quantities are rounded to 8 decimal places before comparison, matching the
// venue's precision.
func TradeProfitMargin(t Trade, currentPrice float64) (float64, error) {
	if t.Buy == nil || t.Buy.Price <= 0 {
		return 0, fmt.Errorf("%s: %w", t.CoinPair, ErrIncompleteTrade)
	}
	afterFee := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(Commission))
	buyBTC := decimal.NewFromFloat(t.Buy.Price).Div(afterFee).Round(8)
	sellBTC := decimal.NewFromFloat(t.Quantity).
		Mul(decimal.NewFromFloat(currentPrice)).
		Mul(afterFee).
		Round(8)
	margin := sellBTC.Sub(buyBTC).Div(buyBTC).Mul(decimal.NewFromInt(100))
	f, _ := margin.Float64()
	return f, nil
}

// BuyQuantity converts a BTC-equivalent notional into a base-asset quantity
// at the given unit price, rounded to the venue's 8 decimal places.
func BuyQuantity(notional, price float64) float64 {
	q := decimal.NewFromFloat(notional).Div(decimal.NewFromFloat(price)).Round(8)
	f, _ := q.Float64()
	return f
}

func recordFromOrder(o exchange.Order, stats TradeStats) *OrderRecord {
	return &OrderRecord{
		OrderID:        o.ID,
		Opened:         o.Opened,
		Closed:         o.Closed,
		Price:          o.Price,
		UnitPrice:      o.PricePerUnit,
		CommissionPaid: o.CommissionPaid,
		Stats:          &stats,
	}
}
