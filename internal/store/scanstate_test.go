package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScanState(t *testing.T) (*ScanState, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "app-data.json")
	s, err := OpenScanState(path, zerolog.Nop())
	require.NoError(t, err)
	return s, path
}

func TestStoreCoinPairsArmsBuyTimer(t *testing.T) {
	s, _ := newTestScanState(t)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.StoreCoinPairs([]string{"BTC-ETH", "BTC-LTC"}))
	assert.Equal(t, []string{"BTC-ETH", "BTC-LTC"}, s.CoinPairs())

	now = t0.Add(299 * time.Second)
	assert.False(t, s.CheckResume(PauseBuy, 5), "one second short of the threshold")

	now = t0.Add(300 * time.Second)
	assert.True(t, s.CheckResume(PauseBuy, 5), "boundary is inclusive")
}

func TestCheckResumeFalseWhenTimerNotArmed(t *testing.T) {
	s, _ := newTestScanState(t)
	assert.False(t, s.CheckResume(PauseBuy, 5))
	assert.False(t, s.CheckResume(PauseSell, 5))
	assert.False(t, s.CheckResume(PauseBalance, 5))
}

func TestRemoveFromUniverse(t *testing.T) {
	s, _ := newTestScanState(t)
	require.NoError(t, s.StoreCoinPairs([]string{"BTC-ETH", "BTC-LTC", "BTC-XRP"}))

	require.NoError(t, s.RemoveFromUniverse("BTC-LTC"))
	assert.Equal(t, []string{"BTC-ETH", "BTC-XRP"}, s.CoinPairs())
}

func TestPauseSellScanAndBatchResume(t *testing.T) {
	s, _ := newTestScanState(t)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	s.SetClock(func() time.Time { return now })

	require.NoError(t, s.PauseSellScan("BTC-ETH"))
	require.NoError(t, s.PauseSellScan("BTC-ETH")) // idempotent
	now = t0.Add(time.Minute)
	require.NoError(t, s.PauseSellScan("BTC-LTC"))

	assert.Equal(t, []string{"BTC-ETH", "BTC-LTC"}, s.PausedPairs())
	assert.True(t, s.IsPaused("BTC-ETH"))

	// The timer started with the first pause, not the second.
	now = t0.Add(5 * time.Minute)
	assert.True(t, s.CheckResume(PauseSell, 5))

	require.NoError(t, s.ResumeSells())
	assert.Empty(t, s.PausedPairs())
	assert.False(t, s.CheckResume(PauseSell, 5), "resume stops the timer")
}

func TestRetainPausedDropsUntrackedPairs(t *testing.T) {
	s, _ := newTestScanState(t)
	require.NoError(t, s.PauseSellScan("BTC-ETH"))
	require.NoError(t, s.PauseSellScan("BTC-LTC"))

	require.NoError(t, s.RetainPaused([]string{"BTC-LTC"}))
	assert.Equal(t, []string{"BTC-LTC"}, s.PausedPairs())

	require.NoError(t, s.RetainPaused(nil))
	assert.Empty(t, s.PausedPairs())
	assert.False(t, s.CheckResume(PauseSell, 0), "empty paused set stops the timer")
}

func TestBalanceNotifierRoundTrip(t *testing.T) {
	s, _ := newTestScanState(t)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	s.SetClock(func() time.Time { return now })

	_, ok := s.PreviousBalance()
	assert.False(t, ok)

	require.NoError(t, s.ArmBalanceTimer())
	now = t0.Add(time.Hour)
	assert.True(t, s.CheckResume(PauseBalance, 60))

	require.NoError(t, s.ResetBalanceNotifier(1.25))
	balance, ok := s.PreviousBalance()
	require.True(t, ok)
	assert.Equal(t, 1.25, balance)
	assert.False(t, s.CheckResume(PauseBalance, 60), "reset restarts the timer")
}

func TestScanStateSurvivesReload(t *testing.T) {
	s, path := newTestScanState(t)
	require.NoError(t, s.StoreCoinPairs([]string{"BTC-ETH"}))
	require.NoError(t, s.PauseSellScan("BTC-ETH"))
	require.NoError(t, s.ResetBalanceNotifier(2.5))

	reloaded, err := OpenScanState(path, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"BTC-ETH"}, reloaded.CoinPairs())
	assert.Equal(t, []string{"BTC-ETH"}, reloaded.PausedPairs())
	balance, ok := reloaded.PreviousBalance()
	require.True(t, ok)
	assert.Equal(t, 2.5, balance)
	assert.True(t, reloaded.CheckResume(PauseSell, 0))
}
