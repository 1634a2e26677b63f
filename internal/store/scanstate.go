package store

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// PauseKind names one of the pause timers the scheduler tracks.
type PauseKind string

const (
	PauseBuy     PauseKind = "buy"
	PauseSell    PauseKind = "sell"
	PauseBalance PauseKind = "balance"
)

type pauseTimes struct {
	Buy     *time.Time `json:"buy"`
	Sell    *time.Time `json:"sell"`
	Balance *time.Time `json:"balance,omitempty"`
}

type scanDoc struct {
	CoinPairs              []string   `json:"coinPairs"`
	PausedTrackedCoinPairs []string   `json:"pausedTrackedCoinPairs"`
	PauseTime              pauseTimes `json:"pauseTime"`
	PreviousBalance        *float64   `json:"previousBalance"`
}

// ScanState is the durable record of the buy-scan universe and the pause
// timers. Invariants: paused pairs are a subset of the ledger's tracked
// pairs (enforced via RetainPaused), and the sell timer runs exactly while
// the paused set is non-empty.
type ScanState struct {
	mu   sync.Mutex
	path string
	log  zerolog.Logger
	doc  scanDoc
	now  func() time.Time
}

// OpenScanState loads the scan-state document at path, creating an empty one
// when absent.
func OpenScanState(path string, log zerolog.Logger) (*ScanState, error) {
	s := &ScanState{
		path: path,
		log:  log.With().Str("component", "scanstate").Logger(),
		now:  time.Now,
	}
	found, err := readJSON(path, &s.doc)
	if err != nil {
		return nil, err
	}
	if !found {
		if err := writeJSON(path, &s.doc); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// SetClock overrides the time source. Tests use it to hit timer boundaries
// exactly.
func (s *ScanState) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// CoinPairs returns the current buy-scan universe.
func (s *ScanState) CoinPairs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.doc.CoinPairs...)
}

// StoreCoinPairs replaces the buy-scan universe and re-arms the buy pause
// timer: the refresh itself is the periodic resume.
func (s *ScanState) StoreCoinPairs(pairs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	s.doc.CoinPairs = append([]string(nil), pairs...)
	s.doc.PauseTime.Buy = &now
	return writeJSON(s.path, &s.doc)
}

// RemoveFromUniverse drops a pair from the buy-scan universe until the next
// universe refresh, arming the buy timer if it is not already running.
func (s *ScanState) RemoveFromUniverse(pair string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.doc.CoinPairs[:0]
	for _, p := range s.doc.CoinPairs {
		if p != pair {
			kept = append(kept, p)
		}
	}
	s.doc.CoinPairs = kept
	if s.doc.PauseTime.Buy == nil {
		now := s.now().UTC()
		s.doc.PauseTime.Buy = &now
	}
	return writeJSON(s.path, &s.doc)
}

// PauseSellScan excludes a tracked pair from sell scanning and starts the
// sell timer if it is not already running.
func (s *ScanState) PauseSellScan(pair string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.doc.PausedTrackedCoinPairs {
		if p == pair {
			return nil
		}
	}
	s.doc.PausedTrackedCoinPairs = append(s.doc.PausedTrackedCoinPairs, pair)
	if s.doc.PauseTime.Sell == nil {
		now := s.now().UTC()
		s.doc.PauseTime.Sell = &now
	}
	return writeJSON(s.path, &s.doc)
}

// ResumeSells clears the whole paused set in one batch and stops the sell
// timer.
func (s *ScanState) ResumeSells() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc.PausedTrackedCoinPairs = nil
	s.doc.PauseTime.Sell = nil
	return writeJSON(s.path, &s.doc)
}

// PausedPairs returns the pairs currently excluded from sell scanning.
func (s *ScanState) PausedPairs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.doc.PausedTrackedCoinPairs...)
}

// IsPaused reports whether the pair is excluded from sell scanning.
func (s *ScanState) IsPaused(pair string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.doc.PausedTrackedCoinPairs {
		if p == pair {
			return true
		}
	}
	return false
}

// RetainPaused drops paused pairs that are no longer tracked, restoring the
// subset invariant after a restart, and stops the sell timer when the set
// empties.
func (s *ScanState) RetainPaused(tracked []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	trackedSet := make(map[string]struct{}, len(tracked))
	for _, p := range tracked {
		trackedSet[p] = struct{}{}
	}
	kept := s.doc.PausedTrackedCoinPairs[:0]
	for _, p := range s.doc.PausedTrackedCoinPairs {
		if _, ok := trackedSet[p]; ok {
			kept = append(kept, p)
		} else {
			s.log.Warn().Str("pair", p).Msg("dropping paused pair that is no longer tracked")
		}
	}
	if len(kept) == len(s.doc.PausedTrackedCoinPairs) {
		return nil
	}
	s.doc.PausedTrackedCoinPairs = kept
	if len(kept) == 0 {
		s.doc.PausedTrackedCoinPairs = nil
		s.doc.PauseTime.Sell = nil
	}
	return writeJSON(s.path, &s.doc)
}

// CheckResume reports whether the given pause timer has been running for at
// least minutes. The boundary is inclusive: a timer started exactly
// minutes*60 seconds ago resumes now. A timer that was never armed does not
// resume.
func (s *ScanState) CheckResume(kind PauseKind, minutes float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts := s.pauseTime(kind)
	if ts == nil {
		return false
	}
	elapsed := s.now().Sub(*ts)
	return elapsed >= time.Duration(minutes*float64(time.Minute))
}

// ArmBalanceTimer starts the balance notification timer if it is not running.
func (s *ScanState) ArmBalanceTimer() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doc.PauseTime.Balance != nil {
		return nil
	}
	now := s.now().UTC()
	s.doc.PauseTime.Balance = &now
	return writeJSON(s.path, &s.doc)
}

// ResetBalanceNotifier records the latest total balance and restarts the
// balance timer.
func (s *ScanState) ResetBalanceNotifier(total float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	s.doc.PreviousBalance = &total
	s.doc.PauseTime.Balance = &now
	return writeJSON(s.path, &s.doc)
}

// PreviousBalance returns the balance recorded at the last notification.
func (s *ScanState) PreviousBalance() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doc.PreviousBalance == nil {
		return 0, false
	}
	return *s.doc.PreviousBalance, true
}

func (s *ScanState) pauseTime(kind PauseKind) *time.Time {
	switch kind {
	case PauseBuy:
		return s.doc.PauseTime.Buy
	case PauseSell:
		return s.doc.PauseTime.Sell
	case PauseBalance:
		return s.doc.PauseTime.Balance
	}
	return nil
}
