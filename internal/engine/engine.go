// Package engine runs the scan loop: refresh pauses, look for entries across
// the buy universe, look for exits across tracked pairs, and keep the ledger
// and scan state durable after every order.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"cryptobot/internal/config"
	"cryptobot/internal/exchange"
	"cryptobot/internal/indicator"
	"cryptobot/internal/orders"
	"cryptobot/internal/risk"
	"cryptobot/internal/store"
	"cryptobot/internal/strategy"
)

const (
	// defaultScanInterval is the pause between full scan passes.
	defaultScanInterval = 10 * time.Second
	// transientBackoff is how long the loop rests after a venue outage
	// aborts a tick.
	transientBackoff = 30 * time.Second
)

// Notifier is the slice of the notification manager the engine uses.
type Notifier interface {
	Buy(ctx context.Context, pair string, quantity, price float64)
	Sell(ctx context.Context, pair string, quantity, price, margin float64)
	Pause(ctx context.Context, pair, reason string)
	Balance(ctx context.Context, current float64, previous *float64)
	Error(ctx context.Context, pair string, err error)
}

type Engine struct {
	cfg       config.Config
	gw        exchange.Gateway
	ledger    *store.Ledger
	scan      *store.ScanState
	orders    *orders.Manager
	gate      risk.Gate
	notify    Notifier
	decisions *DecisionLogger
	log       zerolog.Logger
	runID     string

	buyRules  strategy.BuyRules
	sellRules strategy.SellRules
	interval  exchange.Interval
	timeLimit time.Duration

	scanInterval time.Duration
	now          func() time.Time
	sleep        func(ctx context.Context, d time.Duration) error
}

func New(cfg config.Config, gw exchange.Gateway, ledger *store.Ledger, scan *store.ScanState,
	om *orders.Manager, gate risk.Gate, notifier Notifier, decisions *DecisionLogger, log zerolog.Logger) *Engine {

	buyRules := strategy.BuyRules{
		RSIThreshold:     cfg.Trade.Buy.RSIThreshold,
		VolumeThreshold:  cfg.Trade.Buy.VolumeThreshold,
		MinimumUnitPrice: cfg.Trade.Buy.MinimumUnitPrice,
	}
	if cfg.Pause.Buy != nil {
		buyRules.PauseRSIThreshold = cfg.Pause.Buy.RSIThreshold
	}
	sellRules := strategy.SellRules{
		RSIThreshold:    cfg.Trade.Sell.RSIThreshold,
		MinProfitMargin: cfg.Trade.Sell.MinProfitMargin,
		ProfitMargin:    cfg.Trade.Sell.ProfitMargin,
		LossMargin:      cfg.Trade.Sell.LossMargin,
	}
	if cfg.Pause.Sell != nil {
		sellRules.PauseMargin = cfg.Pause.Sell.ProfitMargin
	}

	return &Engine{
		cfg:          cfg,
		gw:           gw,
		ledger:       ledger,
		scan:         scan,
		orders:       om,
		gate:         gate,
		notify:       notifier,
		decisions:    decisions,
		log:          log.With().Str("component", "engine").Logger(),
		runID:        decisions.RunID(),
		buyRules:     buyRules,
		sellRules:    sellRules,
		interval:     exchange.Interval(cfg.Exchange.TickerInterval),
		timeLimit:    time.Duration(cfg.Trade.OrderTimeLimitMinutes) * time.Minute,
		scanInterval: defaultScanInterval,
		now:          time.Now,
		sleep:        waitForContext,
	}
}

// Initialise prepares durable state for a run: fetch the market universe when
// the scan state is empty, drop paused pairs that are no longer tracked, and
// arm the balance timer when balance reports are configured.
func (e *Engine) Initialise(ctx context.Context) error {
	if len(e.scan.CoinPairs()) == 0 {
		if err := e.refreshUniverse(ctx); err != nil {
			return err
		}
	}
	if err := e.scan.RetainPaused(e.ledger.TrackedPairs()); err != nil {
		return err
	}
	if e.cfg.Pause.Balance != nil {
		if err := e.scan.ArmBalanceTimer(); err != nil {
			return err
		}
	}
	e.log.Info().Str("run_id", e.runID).
		Int("universe", len(e.scan.CoinPairs())).
		Int("open_trades", e.ledger.OpenCount()).
		Bool("dry_run", e.cfg.DryRun).
		Msg("engine initialised")
	return nil
}

// Run executes scan passes until the context is cancelled or the ledger
// reports state the engine must not trade against. Venue outages abort the
// tick and back off; everything else is pair-local and already handled.
func (e *Engine) Run(ctx context.Context) error {
	for {
		if err := e.tick(ctx); err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return nil
			case store.IsInvariant(err):
				e.log.Error().Err(err).Msg("ledger invariant violated, stopping")
				e.notify.Error(context.WithoutCancel(ctx), "", err)
				return err
			case exchange.IsTransient(err):
				e.log.Warn().Err(err).Dur("backoff", transientBackoff).Msg("venue unavailable, backing off")
				if serr := e.sleep(ctx, transientBackoff); serr != nil {
					return nil
				}
				continue
			default:
				e.log.Error().Err(err).Msg("scan pass failed")
			}
		}
		if err := e.sleep(ctx, e.scanInterval); err != nil {
			return nil
		}
	}
}

func (e *Engine) tick(ctx context.Context) error {
	if err := e.analysePauses(ctx); err != nil {
		return err
	}
	for _, pair := range e.scan.CoinPairs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.evaluateBuy(ctx, pair); err != nil {
			return err
		}
	}
	for _, pair := range e.ledger.TrackedPairs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if e.scan.IsPaused(pair) {
			continue
		}
		if err := e.evaluateSell(ctx, pair); err != nil {
			return err
		}
	}
	return nil
}

// analysePauses fires whichever pause timers have run their course: the buy
// resume refreshes the whole universe, the sell resume clears the paused set
// in one batch, and the balance timer sends the periodic account report.
func (e *Engine) analysePauses(ctx context.Context) error {
	if p := e.cfg.Pause.Buy; p != nil && e.scan.CheckResume(store.PauseBuy, p.Minutes) {
		e.log.Info().Msg("buy pause elapsed, refreshing market universe")
		if err := e.refreshUniverse(ctx); err != nil {
			return err
		}
	}
	if p := e.cfg.Pause.Sell; p != nil && e.scan.CheckResume(store.PauseSell, p.Minutes) {
		e.log.Info().Strs("pairs", e.scan.PausedPairs()).Msg("sell pause elapsed, resuming paused pairs")
		if err := e.scan.ResumeSells(); err != nil {
			return err
		}
	}
	if p := e.cfg.Pause.Balance; p != nil && e.scan.CheckResume(store.PauseBalance, p.Minutes) {
		if err := e.reportBalance(ctx); err != nil {
			return err
		}
	}
	return nil
}

// refreshUniverse replaces the buy-scan universe with the venue's current
// markets for the base currency, which also re-arms the buy pause timer.
func (e *Engine) refreshUniverse(ctx context.Context) error {
	pairs, err := e.gw.Markets(ctx, e.cfg.Exchange.BaseCurrency)
	if err != nil {
		return err
	}
	return e.scan.StoreCoinPairs(pairs)
}

func (e *Engine) evaluateBuy(ctx context.Context, pair string) error {
	if e.ledger.Tracked(pair) {
		return nil
	}
	// At the open-trade cap the pair is not evaluated at all: no market
	// fetch, no pause mutations. The gate re-checks the cap at submission.
	if limit := e.cfg.Trade.Buy.MaxOpenTrades; limit > 0 && e.ledger.OpenCount() >= limit {
		return nil
	}

	snapshot, err := e.marketSnapshot(ctx, pair)
	if err != nil {
		if exchange.IsRejected(err) {
			e.log.Warn().Err(err).Str("pair", pair).Msg("skipping pair the venue rejected")
			return nil
		}
		return err
	}

	intent := e.buyRules.Evaluate(snapshot)
	switch intent.Action {
	case strategy.Buy:
		return e.executeBuy(ctx, snapshot, intent)
	case strategy.PauseBuy:
		e.appendDecision("buy", snapshot, intent, "paused", "", "")
		e.log.Info().Str("pair", pair).Float64("rsi", snapshot.RSI).Msg("pair overbought, removing from buy scan")
		if err := e.scan.RemoveFromUniverse(pair); err != nil {
			return err
		}
		e.notify.Pause(ctx, pair, intent.Reason)
	}
	return nil
}

func (e *Engine) executeBuy(ctx context.Context, snapshot strategy.Snapshot, intent strategy.Intent) error {
	pair := snapshot.Pair
	notional := e.cfg.Trade.Buy.BTCAmount
	quantity := store.BuyQuantity(notional, snapshot.Ask)

	if err := e.gate.ApproveBuy(risk.BuyContext{
		Pair:       pair,
		Notional:   notional,
		OpenTrades: e.ledger.OpenCount(),
		Tracked:    e.ledger.Tracked(pair),
	}); err != nil {
		e.appendDecision("buy", snapshot, intent, "rejected", err.Error(), "")
		return nil
	}

	if e.cfg.DryRun {
		e.appendDecision("buy", snapshot, intent, "dry_run", "", "")
		e.log.Info().Str("pair", pair).Float64("quantity", quantity).
			Float64("rate", snapshot.Ask).Msg("dry run, buy not placed")
		return nil
	}

	orderID, err := e.orders.Place(ctx, pair, orders.Buy, quantity, snapshot.Ask)
	if err != nil {
		if exchange.IsRejected(err) {
			e.appendDecision("buy", snapshot, intent, "order_rejected", err.Error(), "")
			return nil
		}
		return err
	}
	if err := e.ledger.StoreInitialBuy(pair, orderID); err != nil {
		return err
	}

	res, err := e.orders.Await(ctx, orderID, e.timeLimit)
	if err != nil {
		return err
	}
	stats := store.TradeStats{RSI: snapshot.RSI, Volume: snapshot.DayVolume}
	if err := e.ledger.StoreBuy(res.Order, stats); err != nil {
		return err
	}

	result := "filled"
	if res.TimedOut {
		result = "timed_out"
		e.notify.Error(ctx, pair, fmt.Errorf("buy order %s timed out with %.8f filled", orderID, res.Order.FilledQuantity()))
	}
	e.appendDecision("buy", snapshot, intent, result, "", orderID)
	e.log.Info().Str("pair", pair).Str("order_id", orderID).
		Float64("filled", res.Order.FilledQuantity()).Bool("timed_out", res.TimedOut).
		Msg("buy complete")
	e.notify.Buy(ctx, pair, res.Order.FilledQuantity(), res.Order.PricePerUnit)
	return nil
}

func (e *Engine) evaluateSell(ctx context.Context, pair string) error {
	trade, err := e.ledger.OpenTrade(pair)
	if err != nil {
		return err
	}

	snapshot, err := e.marketSnapshot(ctx, pair)
	if err != nil {
		if exchange.IsRejected(err) {
			e.log.Warn().Err(err).Str("pair", pair).Msg("skipping pair the venue rejected")
			return nil
		}
		return err
	}

	margin, err := store.TradeProfitMargin(trade, snapshot.Bid)
	if err != nil {
		// A buy that timed out with no fill has no cost basis; the position
		// is dust and cannot be priced.
		e.log.Warn().Err(err).Str("pair", pair).Msg("open trade has no priced buy, skipping sell scan")
		return nil
	}
	snapshot.ProfitMargin = margin

	intent := e.sellRules.Evaluate(snapshot)
	switch intent.Action {
	case strategy.Sell:
		return e.executeSell(ctx, trade, snapshot, intent)
	case strategy.PauseSell:
		e.appendDecision("sell", snapshot, intent, "paused", "", "")
		e.log.Info().Str("pair", pair).Float64("margin", margin).Msg("position deep in loss, pausing sell scan")
		if err := e.scan.PauseSellScan(pair); err != nil {
			return err
		}
		e.notify.Pause(ctx, pair, intent.Reason)
	}
	return nil
}

func (e *Engine) executeSell(ctx context.Context, trade store.Trade, snapshot strategy.Snapshot, intent strategy.Intent) error {
	pair := snapshot.Pair

	if err := e.gate.ApproveSell(risk.SellContext{
		Pair:     pair,
		Quantity: trade.Quantity,
		Notional: trade.Quantity * snapshot.Bid,
	}); err != nil {
		e.appendDecision("sell", snapshot, intent, "rejected", err.Error(), "")
		return nil
	}

	if e.cfg.DryRun {
		e.appendDecision("sell", snapshot, intent, "dry_run", "", "")
		e.log.Info().Str("pair", pair).Float64("quantity", trade.Quantity).
			Float64("rate", snapshot.Bid).Msg("dry run, sell not placed")
		return nil
	}

	orderID, err := e.orders.Place(ctx, pair, orders.Sell, trade.Quantity, snapshot.Bid)
	if err != nil {
		if exchange.IsRejected(err) {
			e.appendDecision("sell", snapshot, intent, "order_rejected", err.Error(), "")
			return nil
		}
		return err
	}

	// A sell that has not closed by the deadline stays on the book; the
	// trade is recorded against the venue's last snapshot either way.
	res, err := e.orders.Await(ctx, orderID, e.timeLimit)
	if err != nil {
		return err
	}
	stats := store.TradeStats{RSI: snapshot.RSI, ProfitMargin: snapshot.ProfitMargin}
	if err := e.ledger.StoreSell(res.Order, stats); err != nil {
		return err
	}

	result := "filled"
	if res.TimedOut {
		result = "timed_out"
		e.notify.Error(ctx, pair, fmt.Errorf("sell order %s still resting after the wait window", orderID))
	}
	e.appendDecision("sell", snapshot, intent, result, "", orderID)
	e.log.Info().Str("pair", pair).Str("order_id", orderID).
		Float64("margin", snapshot.ProfitMargin).Bool("timed_out", res.TimedOut).
		Msg("sell complete")
	e.notify.Sell(ctx, pair, res.Order.FilledQuantity(), res.Order.PricePerUnit, snapshot.ProfitMargin)
	return nil
}

// marketSnapshot assembles the rule inputs for one pair: RSI over a fresh
// candle window plus the live ticker.
func (e *Engine) marketSnapshot(ctx context.Context, pair string) (strategy.Snapshot, error) {
	period := e.cfg.Trade.RSIPeriod
	candles, err := e.gw.Candles(ctx, pair, e.interval, 3*period)
	if err != nil {
		return strategy.Snapshot{}, err
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	rsi, ok := indicator.RSI(closes, period)

	summary, err := e.gw.Summary(ctx, pair)
	if err != nil {
		return strategy.Snapshot{}, err
	}
	return strategy.Snapshot{
		Pair:      pair,
		RSI:       rsi,
		RSIValid:  ok,
		Ask:       summary.Ask,
		Bid:       summary.Bid,
		DayVolume: summary.BaseVolume,
	}, nil
}

// reportBalance values every wallet in the base currency, sends the report,
// and restarts the balance timer with the new total as the comparison point.
func (e *Engine) reportBalance(ctx context.Context) error {
	balances, err := e.gw.Balances(ctx)
	if err != nil {
		return err
	}

	base := e.cfg.Exchange.BaseCurrency
	total := decimal.Zero
	for _, b := range balances {
		if b.Balance == 0 {
			continue
		}
		if b.Currency == base {
			total = total.Add(decimal.NewFromFloat(b.Balance))
			continue
		}
		summary, err := e.gw.Summary(ctx, fmt.Sprintf("%s-%s", base, b.Currency))
		if err != nil {
			if exchange.IsRejected(err) {
				e.log.Warn().Str("currency", b.Currency).Msg("no market to value balance, skipping")
				continue
			}
			return err
		}
		total = total.Add(decimal.NewFromFloat(b.Balance).Mul(decimal.NewFromFloat(summary.Bid)))
	}
	value, _ := total.Round(8).Float64()

	var previous *float64
	if prev, ok := e.scan.PreviousBalance(); ok {
		previous = &prev
	}
	e.log.Info().Float64("total", value).Msg("account balance report")
	e.notify.Balance(ctx, value, previous)
	return e.scan.ResetBalanceNotifier(value)
}

func (e *Engine) appendDecision(scan string, snapshot strategy.Snapshot, intent strategy.Intent, result, rejectReason, orderID string) {
	price := snapshot.Ask
	if scan == "sell" {
		price = snapshot.Bid
	}
	e.decisions.Append(Decision{
		RunID:        e.runID,
		Timestamp:    e.now().UTC(),
		Scan:         scan,
		Pair:         snapshot.Pair,
		RSI:          snapshot.RSI,
		RSIValid:     snapshot.RSIValid,
		Price:        price,
		Volume:       snapshot.DayVolume,
		ProfitMargin: snapshot.ProfitMargin,
		Intent:       intent.Action,
		Reason:       intent.Reason,
		Result:       result,
		RejectReason: rejectReason,
		OrderID:      orderID,
	})
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
