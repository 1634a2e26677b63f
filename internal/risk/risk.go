// Package risk gates order placement after strategy rules have fired.
package risk

import (
	"fmt"

	"github.com/rs/zerolog"
)

// BuyContext carries the account state a buy approval needs.
type BuyContext struct {
	Pair       string
	Notional   float64
	OpenTrades int
	Tracked    bool
}

// SellContext carries the position state a sell approval needs.
type SellContext struct {
	Pair     string
	Quantity float64
	Notional float64
}

// Gate applies hard limits on top of strategy decisions. A rejection is an
// error whose message names the failed check.
type Gate struct {
	KillSwitch    bool
	MaxOpenTrades int
	MaxNotional   float64

	Log zerolog.Logger
}

// ApproveBuy rejects a buy when the kill switch is on, the pair is already
// tracked, the open-trade cap is reached, or the order notional exceeds the
// limit.
func (g Gate) ApproveBuy(ctx BuyContext) error {
	if g.KillSwitch {
		return g.reject(ctx.Pair, "kill_switch_enabled")
	}
	if ctx.Tracked {
		return g.reject(ctx.Pair, "pair_already_tracked")
	}
	if g.MaxOpenTrades > 0 && ctx.OpenTrades >= g.MaxOpenTrades {
		return g.reject(ctx.Pair, "max_open_trades_reached")
	}
	if ctx.Notional <= 0 {
		return g.reject(ctx.Pair, "invalid_notional")
	}
	if g.MaxNotional > 0 && ctx.Notional > g.MaxNotional {
		return g.reject(ctx.Pair, "max_notional_exceeded")
	}
	g.Log.Debug().Str("pair", ctx.Pair).Float64("notional", ctx.Notional).Msg("buy approved")
	return nil
}

// ApproveSell rejects a sell when the kill switch is on or there is nothing
// to sell.
func (g Gate) ApproveSell(ctx SellContext) error {
	if g.KillSwitch {
		return g.reject(ctx.Pair, "kill_switch_enabled")
	}
	if ctx.Quantity <= 0 {
		return g.reject(ctx.Pair, "no_position_to_sell")
	}
	g.Log.Debug().Str("pair", ctx.Pair).Float64("quantity", ctx.Quantity).Msg("sell approved")
	return nil
}

func (g Gate) reject(pair, reason string) error {
	g.Log.Info().Str("pair", pair).Str("reason", reason).Msg("risk rejected")
	return fmt.Errorf("%s", reason)
}
