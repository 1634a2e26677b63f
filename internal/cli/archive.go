package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"cryptobot/internal/config"
	"cryptobot/internal/journal"
	"cryptobot/internal/store"
)

func newArchiveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Move closed trades from the ledger into the SQLite archive",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			log := opts.logger()

			ledger, err := store.OpenLedger(cfg.Storage.TradesPath, log)
			if err != nil {
				return err
			}
			archive, err := journal.Open(cfg.Storage.ArchivePath)
			if err != nil {
				return err
			}
			defer archive.Close()

			// Record first, trim after: the archive insert is idempotent, so
			// a crash between the two steps only repeats work.
			closed := ledger.ClosedTrades()
			for _, t := range closed {
				if err := archive.RecordTrade(archivedTrade(t)); err != nil {
					return err
				}
			}
			if _, err := ledger.RemoveClosed(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "archived %d closed trades\n", len(closed))
			return nil
		},
	}
}

// archivedTrade flattens a ledger trade into archive columns. Totals include
// commission on both sides so the archive's profit numbers are realised ones.
func archivedTrade(t store.Trade) journal.ArchivedTrade {
	a := journal.ArchivedTrade{
		TradeID:  t.ID,
		Pair:     t.CoinPair,
		Quantity: t.Quantity,
	}
	if t.Buy != nil {
		a.BuyPrice = t.Buy.UnitPrice
		a.BuyTotal = t.Buy.Price + t.Buy.CommissionPaid
		a.Opened = timeOrZero(t.Buy.Opened)
	}
	if t.Sell != nil {
		a.SellPrice = t.Sell.UnitPrice
		a.SellTotal = t.Sell.Price - t.Sell.CommissionPaid
		a.Closed = timeOrZero(t.Sell.Closed)
	}
	if a.BuyTotal > 0 {
		a.ProfitMargin = 100 * (a.SellTotal - a.BuyTotal) / a.BuyTotal
	}
	return a
}

func timeOrZero(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
