// Package strategy holds the pure buy/sell decision rules. A rule set takes
// one market snapshot and returns an intent with a reason string; everything
// stateful (ledger, pauses, order flow) lives in the engine.
package strategy

// Action is the decision for one pair on one tick.
type Action string

const (
	Hold Action = "HOLD"
	Buy  Action = "BUY"
	Sell Action = "SELL"
	// PauseBuy removes a pair from the buy-scan universe until the next
	// universe refresh: its momentum is too hot to become a buy soon.
	PauseBuy Action = "PAUSE_BUY"
	// PauseSell excludes a position from sell scanning for a while: its
	// margin is too deep underwater to recover soon.
	PauseSell Action = "PAUSE_SELL"
)

// Snapshot is the per-pair market state a rule set decides on. RSIValid is
// false when the indicator is undefined (not enough candles, or no losses in
// the smoothing window); no rule fires on an undefined signal.
type Snapshot struct {
	Pair         string
	RSI          float64
	RSIValid     bool
	Ask          float64
	Bid          float64
	DayVolume    float64
	ProfitMargin float64
}

// Intent is a rule set's decision with the predicate that produced it.
type Intent struct {
	Action Action
	Reason string
}

func hold(reason string) Intent { return Intent{Action: Hold, Reason: reason} }

// BuyRules is the oversold-entry predicate set for untracked pairs.
type BuyRules struct {
	// RSIThreshold is the oversold ceiling: buy at or below it.
	RSIThreshold float64
	// VolumeThreshold is the minimum 24h base volume.
	VolumeThreshold float64
	// MinimumUnitPrice filters out dust markets.
	MinimumUnitPrice float64
	// PauseRSIThreshold marks a pair too overbought to scan again soon.
	// Zero or negative disables pausing.
	PauseRSIThreshold float64
}

// Evaluate decides whether to buy, pause, or hold the pair.
func (r BuyRules) Evaluate(s Snapshot) Intent {
	if !s.RSIValid {
		return hold("rsi_undefined")
	}
	if s.RSI <= r.RSIThreshold && s.DayVolume >= r.VolumeThreshold && s.Ask >= r.MinimumUnitPrice {
		return Intent{Action: Buy, Reason: "oversold"}
	}
	if r.PauseRSIThreshold > 0 && s.RSI >= r.PauseRSIThreshold {
		return Intent{Action: PauseBuy, Reason: "overbought"}
	}
	return hold("no_signal")
}

// SellRules is the exit predicate set for open positions.
type SellRules struct {
	// RSIThreshold is the overbought floor: a momentum reversal fires at or
	// above it.
	RSIThreshold float64
	// MinProfitMargin is the margin a reversal exit must at least clear.
	MinProfitMargin float64
	// ProfitMargin is the unconditional take-profit level.
	ProfitMargin float64
	// LossMargin is the stop-loss level for reversal exits; it must be
	// negative to arm.
	LossMargin float64
	// PauseMargin marks a position too deep underwater to keep scanning; it
	// must be negative to arm.
	PauseMargin float64
}

// Evaluate decides whether to sell, pause, or hold the position.
func (r SellRules) Evaluate(s Snapshot) Intent {
	if !s.RSIValid {
		return hold("rsi_undefined")
	}
	if s.RSI >= r.RSIThreshold && s.ProfitMargin >= r.MinProfitMargin {
		return Intent{Action: Sell, Reason: "momentum_reversal"}
	}
	if s.ProfitMargin >= r.ProfitMargin {
		return Intent{Action: Sell, Reason: "take_profit"}
	}
	if s.RSI >= r.RSIThreshold && r.LossMargin < 0 && s.ProfitMargin <= r.LossMargin {
		return Intent{Action: Sell, Reason: "stop_loss"}
	}
	if r.PauseMargin < 0 && s.ProfitMargin <= r.PauseMargin {
		return Intent{Action: PauseSell, Reason: "deep_loss"}
	}
	return hold("no_signal")
}
