package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
exchange:
  baseCurrency: BTC
  tickerInterval: fiveMin
trade:
  rsiPeriod: 14
  orderTimeLimitMinutes: 1
  buy:
    btcAmount: 0.001
    rsiThreshold: 25
    volumeThreshold: 100
    minimumUnitPrice: 0.00001
    maxOpenTrades: 3
  sell:
    rsiThreshold: 50
    minProfitMargin: 0.5
    profitMargin: 2.5
    lossMargin: -2.5
pause:
  buy:
    rsiThreshold: 70
    minutes: 60
  sell:
    profitMargin: -5
    minutes: 120
  balance:
    minutes: 1440
storage:
  tradesPath: /tmp/trades.json
  scanPath: /tmp/scan.json
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("BITTREX_API_KEY", "key")
	t.Setenv("BITTREX_API_SECRET", "secret")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "key", cfg.APIKey)
	assert.Equal(t, "secret", cfg.APISecret)
	assert.Equal(t, "BTC", cfg.Exchange.BaseCurrency)
	assert.Equal(t, 0.001, cfg.Trade.Buy.BTCAmount)
	assert.Equal(t, 3, cfg.Trade.Buy.MaxOpenTrades)
	assert.Equal(t, -2.5, cfg.Trade.Sell.LossMargin)
	require.NotNil(t, cfg.Pause.Buy)
	assert.Equal(t, 60.0, cfg.Pause.Buy.Minutes)
	require.NotNil(t, cfg.Pause.Sell)
	assert.Equal(t, -5.0, cfg.Pause.Sell.ProfitMargin)
	require.NotNil(t, cfg.Pause.Balance)
	assert.Equal(t, "/tmp/trades.json", cfg.Storage.TradesPath)
	// Defaults fill unset fields.
	assert.Equal(t, "https://bittrex.com/api", cfg.Exchange.BaseURL)
	assert.Equal(t, "data/archive.db", cfg.Storage.ArchivePath)
}

func TestLoadMissingCredentials(t *testing.T) {
	t.Setenv("BITTREX_API_KEY", "")
	t.Setenv("BITTREX_API_SECRET", "")
	os.Unsetenv("BITTREX_API_KEY")
	os.Unsetenv("BITTREX_API_SECRET")

	_, err := Load(writeConfig(t, sampleYAML))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BITTREX_API_KEY")
}

func TestLoadDryRunSkipsCredentials(t *testing.T) {
	t.Setenv("BITTREX_API_KEY", "")
	t.Setenv("BITTREX_API_SECRET", "")
	os.Unsetenv("BITTREX_API_KEY")
	os.Unsetenv("BITTREX_API_SECRET")

	cfg, err := Load(writeConfig(t, sampleYAML+"\ndryRun: true\n"))
	require.NoError(t, err)
	assert.True(t, cfg.DryRun)
}

func TestLoadRejectsPositiveLossMargin(t *testing.T) {
	t.Setenv("BITTREX_API_KEY", "key")
	t.Setenv("BITTREX_API_SECRET", "secret")

	body := sampleYAML + "\n"
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	_ = cfg

	bad := `
trade:
  orderTimeLimitMinutes: 1
  buy:
    btcAmount: 0.001
  sell:
    lossMargin: 1.0
storage:
  tradesPath: /tmp/trades.json
  scanPath: /tmp/scan.json
`
	_, err = Load(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lossMargin")
}

func TestLoadRejectsZeroBuyAmount(t *testing.T) {
	t.Setenv("BITTREX_API_KEY", "key")
	t.Setenv("BITTREX_API_SECRET", "secret")

	bad := `
trade:
  orderTimeLimitMinutes: 1
storage:
  tradesPath: /tmp/trades.json
  scanPath: /tmp/scan.json
`
	_, err := Load(writeConfig(t, bad))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "btcAmount")
}

func TestLoadEmailRequiresFields(t *testing.T) {
	t.Setenv("BITTREX_API_KEY", "key")
	t.Setenv("BITTREX_API_SECRET", "secret")
	t.Setenv("SMTP_PASSWORD", "mailpass")

	body := sampleYAML + `
notifications:
  email:
    host: mail.example.com
    port: "587"
    username: bot
    from: bot@example.com
    recipient: owner@example.com
`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)
	require.NotNil(t, cfg.Notifications.Email)
	assert.Equal(t, "mailpass", cfg.Notifications.Email.Password)

	missing := sampleYAML + `
notifications:
  email:
    host: mail.example.com
`
	_, err = Load(writeConfig(t, missing))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifications.email")
}
