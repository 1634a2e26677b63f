package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cryptobot/internal/exchange"
	"cryptobot/internal/store"
)

func writeTestConfig(t *testing.T) (configPath, tradesPath string) {
	t.Helper()
	dir := t.TempDir()
	tradesPath = filepath.Join(dir, "trades.json")
	body := fmt.Sprintf(`
dryRun: true
trade:
  orderTimeLimitMinutes: 1
  buy:
    btcAmount: 0.001
storage:
  tradesPath: %s
  scanPath: %s
  archivePath: %s
  decisionsPath: %s
`, tradesPath, filepath.Join(dir, "scan.json"), filepath.Join(dir, "archive.db"), filepath.Join(dir, "decisions.ndjson"))
	configPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(body), 0o600))
	return configPath, tradesPath
}

func seedClosedTrade(t *testing.T, tradesPath string) {
	t.Helper()
	ledger, err := store.OpenLedger(tradesPath, zerolog.Nop())
	require.NoError(t, err)

	opened := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	closed := opened.Add(2 * time.Hour)
	require.NoError(t, ledger.StoreInitialBuy("BTC-LTC", "buy-1"))
	require.NoError(t, ledger.StoreBuy(exchange.Order{
		ID: "buy-1", Pair: "BTC-LTC", Type: exchange.LimitBuy,
		Quantity: 10, Price: 0.01, PricePerUnit: 0.001,
		CommissionPaid: 0.000025, Opened: &opened,
	}, store.TradeStats{RSI: 20}))
	require.NoError(t, ledger.StoreSell(exchange.Order{
		ID: "sell-1", Pair: "BTC-LTC", Type: exchange.LimitSell,
		Quantity: 10, Price: 0.011, PricePerUnit: 0.0011,
		CommissionPaid: 0.0000275, Closed: &closed,
	}, store.TradeStats{RSI: 55, ProfitMargin: 9.2}))
}

func runCommand(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := NewRoot()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestVersionCommand(t *testing.T) {
	out := runCommand(t, "version")
	assert.Equal(t, Version+"\n", out)
}

func TestArchiveCommandMovesClosedTrades(t *testing.T) {
	configPath, tradesPath := writeTestConfig(t)
	seedClosedTrade(t, tradesPath)

	out := runCommand(t, "archive", "-c", configPath)
	assert.Contains(t, out, "archived 1 closed trades")

	ledger, err := store.OpenLedger(tradesPath, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, ledger.ClosedTrades())
}

func TestArchiveCommandIsIdempotent(t *testing.T) {
	configPath, tradesPath := writeTestConfig(t)
	seedClosedTrade(t, tradesPath)

	runCommand(t, "archive", "-c", configPath)
	out := runCommand(t, "archive", "-c", configPath)
	assert.Contains(t, out, "archived 0 closed trades")
}

func TestProfitCommandReportsArchive(t *testing.T) {
	configPath, tradesPath := writeTestConfig(t)
	seedClosedTrade(t, tradesPath)
	runCommand(t, "archive", "-c", configPath)

	out := runCommand(t, "profit", "-c", configPath)
	assert.Contains(t, out, "BTC-LTC")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "0.00094750")
}

func TestArchivedTradeComputesRealisedMargin(t *testing.T) {
	opened := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	closed := opened.Add(time.Hour)
	a := archivedTrade(store.Trade{
		ID:       "t1",
		CoinPair: "BTC-LTC",
		Quantity: 10,
		Buy: &store.OrderRecord{
			OrderID: "b", Price: 0.01, UnitPrice: 0.001,
			CommissionPaid: 0.000025, Opened: &opened,
		},
		Sell: &store.OrderRecord{
			OrderID: "s", Price: 0.011, UnitPrice: 0.0011,
			CommissionPaid: 0.0000275, Closed: &closed,
		},
	})
	assert.InDelta(t, 0.010025, a.BuyTotal, 1e-12)
	assert.InDelta(t, 0.0109725, a.SellTotal, 1e-12)
	assert.InDelta(t, 100*(0.0109725-0.010025)/0.010025, a.ProfitMargin, 1e-9)
	assert.Equal(t, opened, a.Opened)
	assert.Equal(t, closed, a.Closed)
}
