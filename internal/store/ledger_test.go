package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptobot/internal/exchange"
)

func newTestLedger(t *testing.T) (*Ledger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trades.json")
	l, err := OpenLedger(path, zerolog.Nop())
	require.NoError(t, err)
	return l, path
}

// assertConsistent checks that a pair is tracked exactly when it has an open
// trade, after every mutation.
func assertConsistent(t *testing.T, l *Ledger) {
	t.Helper()
	for _, pair := range l.TrackedPairs() {
		trade, err := l.OpenTrade(pair)
		require.NoError(t, err)
		assert.Nil(t, trade.Sell)
	}
	for _, trade := range l.ClosedTrades() {
		assert.False(t, l.Tracked(trade.CoinPair) && trade.Open())
	}
}

func filledBuy(pair string, qty, remaining, price, unitPrice float64) exchange.Order {
	opened := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	closed := opened.Add(90 * time.Second)
	return exchange.Order{
		ID:                "buy-" + pair,
		Pair:              pair,
		Type:              exchange.LimitBuy,
		Quantity:          qty,
		QuantityRemaining: remaining,
		Price:             price,
		PricePerUnit:      unitPrice,
		CommissionPaid:    price * Commission,
		Opened:            &opened,
		Closed:            &closed,
	}
}

func filledSell(pair string, qty, price, unitPrice float64) exchange.Order {
	o := filledBuy(pair, qty, 0, price, unitPrice)
	o.ID = "sell-" + pair
	o.Type = exchange.LimitSell
	return o
}

func TestStoreInitialBuyTracksPair(t *testing.T) {
	l, _ := newTestLedger(t)

	require.NoError(t, l.StoreInitialBuy("BTC-ETH", "order-1"))
	assert.True(t, l.Tracked("BTC-ETH"))
	assert.Equal(t, 1, l.OpenCount())
	assertConsistent(t, l)

	err := l.StoreInitialBuy("BTC-ETH", "order-2")
	assert.ErrorIs(t, err, ErrAlreadyTracked)
}

func TestStoreBuyRequiresInitialBuy(t *testing.T) {
	l, _ := newTestLedger(t)

	err := l.StoreBuy(filledBuy("BTC-ETH", 2, 0, 0.1, 0.05), TradeStats{RSI: 20})
	assert.ErrorIs(t, err, ErrNotTracked)
}

func TestStoreBuyRecordsFilledQuantity(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.StoreInitialBuy("BTC-ETH", "buy-BTC-ETH"))

	order := filledBuy("BTC-ETH", 2.0, 0.5, 0.1, 0.05)
	require.NoError(t, l.StoreBuy(order, TradeStats{RSI: 22, Volume: 150}))
	assertConsistent(t, l)

	trade, err := l.OpenTrade("BTC-ETH")
	require.NoError(t, err)
	assert.Nil(t, trade.Sell)
	assert.Equal(t, 1.5, trade.Quantity, "quantity is what the snapshot reports as filled")
	require.NotNil(t, trade.Buy)
	assert.Equal(t, 22.0, trade.Buy.Stats.RSI)
}

func TestStoreSellClosesTrade(t *testing.T) {
	l, _ := newTestLedger(t)
	require.NoError(t, l.StoreInitialBuy("BTC-ETH", "buy-BTC-ETH"))
	require.NoError(t, l.StoreBuy(filledBuy("BTC-ETH", 2, 0, 0.1, 0.05), TradeStats{RSI: 20}))

	require.NoError(t, l.StoreSell(filledSell("BTC-ETH", 2, 0.12, 0.06), TradeStats{RSI: 60, ProfitMargin: 19.4}))
	assertConsistent(t, l)

	assert.False(t, l.Tracked("BTC-ETH"))
	assert.Equal(t, 0, l.OpenCount())
	closed := l.ClosedTrades()
	require.Len(t, closed, 1)
	require.NotNil(t, closed[0].Sell)

	_, err := l.OpenTrade("BTC-ETH")
	assert.ErrorIs(t, err, ErrNoOpenTrade)
	assert.True(t, IsInvariant(err))
}

func TestStoreSellRequiresTrackedPair(t *testing.T) {
	l, _ := newTestLedger(t)
	err := l.StoreSell(filledSell("BTC-ETH", 2, 0.12, 0.06), TradeStats{})
	assert.ErrorIs(t, err, ErrNotTracked)
}

func TestLedgerSurvivesReload(t *testing.T) {
	l, path := newTestLedger(t)
	require.NoError(t, l.StoreInitialBuy("BTC-ETH", "buy-BTC-ETH"))
	require.NoError(t, l.StoreBuy(filledBuy("BTC-ETH", 2, 0, 0.1, 0.05), TradeStats{RSI: 20}))
	require.NoError(t, l.StoreInitialBuy("BTC-LTC", "buy-BTC-LTC"))

	reloaded, err := OpenLedger(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC-ETH", "BTC-LTC"}, reloaded.TrackedPairs())
	trade, err := reloaded.OpenTrade("BTC-ETH")
	require.NoError(t, err)
	assert.Equal(t, 2.0, trade.Quantity)
	assertConsistent(t, reloaded)
}

func TestTrackedPairsPreserveOpenOrder(t *testing.T) {
	l, _ := newTestLedger(t)
	for _, pair := range []string{"BTC-ETH", "BTC-LTC", "BTC-XRP"} {
		require.NoError(t, l.StoreInitialBuy(pair, "buy-"+pair))
	}
	require.NoError(t, l.StoreBuy(filledBuy("BTC-LTC", 1, 0, 0.01, 0.01), TradeStats{}))
	require.NoError(t, l.StoreSell(filledSell("BTC-LTC", 1, 0.01, 0.01), TradeStats{}))

	assert.Equal(t, []string{"BTC-ETH", "BTC-XRP"}, l.TrackedPairs())
}

func TestProfitMarginFlatPriceLosesCommission(t *testing.T) {
	trade := Trade{
		CoinPair: "BTC-ETH",
		Quantity: 1,
		Buy:      &OrderRecord{Price: 0.01, UnitPrice: 0.01},
	}
	// Selling at the entry price pays commission twice, so the margin is
	// strictly negative, about -0.5%.
	margin, err := TradeProfitMargin(trade, 0.01)
	require.NoError(t, err)
	assert.Negative(t, margin)
	assert.InDelta(t, -0.499, margin, 0.005)
}

func TestProfitMarginGain(t *testing.T) {
	trade := Trade{
		CoinPair: "BTC-ETH",
		Quantity: 1,
		Buy:      &OrderRecord{Price: 0.01, UnitPrice: 0.01},
	}
	margin, err := TradeProfitMargin(trade, 0.02)
	require.NoError(t, err)
	assert.Greater(t, margin, 98.0)
	assert.Less(t, margin, 100.0)
}

func TestProfitMarginUndefinedBeforeFill(t *testing.T) {
	trade := Trade{CoinPair: "BTC-ETH", Buy: &OrderRecord{OrderID: "buy-1"}}
	_, err := TradeProfitMargin(trade, 0.01)
	assert.ErrorIs(t, err, ErrIncompleteTrade)
	assert.True(t, IsInvariant(err))
}

func TestRemoveClosedKeepsOpenTrades(t *testing.T) {
	l, path := newTestLedger(t)
	require.NoError(t, l.StoreInitialBuy("BTC-ETH", "buy-BTC-ETH"))
	require.NoError(t, l.StoreBuy(filledBuy("BTC-ETH", 1, 0, 0.01, 0.01), TradeStats{}))
	require.NoError(t, l.StoreSell(filledSell("BTC-ETH", 1, 0.012, 0.012), TradeStats{}))
	require.NoError(t, l.StoreInitialBuy("BTC-LTC", "buy-BTC-LTC"))

	removed, err := l.RemoveClosed()
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "BTC-ETH", removed[0].CoinPair)
	assert.Empty(t, l.ClosedTrades())
	assert.True(t, l.Tracked("BTC-LTC"))

	again, err := l.RemoveClosed()
	require.NoError(t, err)
	assert.Empty(t, again)

	reloaded, err := OpenLedger(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, reloaded.ClosedTrades())
}

func TestBuyQuantityRoundsToVenuePrecision(t *testing.T) {
	assert.Equal(t, 20.0, BuyQuantity(0.001, 0.00005))
	assert.Equal(t, 33.33333333, BuyQuantity(0.001, 0.00003))
}
