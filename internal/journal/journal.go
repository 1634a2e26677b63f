// Package journal archives completed trades to SQLite so the working ledger
// stays small and closed-trade history survives for reporting.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ArchivedTrade is one closed round trip as stored in the archive.
type ArchivedTrade struct {
	TradeID      string
	Pair         string
	Quantity     float64
	BuyPrice     float64
	SellPrice    float64
	BuyTotal     float64
	SellTotal    float64
	ProfitMargin float64
	Opened       time.Time
	Closed       time.Time
}

// PairSummary aggregates the archive for one pair.
type PairSummary struct {
	Pair       string
	Trades     int
	NetProfit  float64
	MeanMargin float64
}

// Summary aggregates the whole archive.
type Summary struct {
	Trades     int
	NetProfit  float64
	MeanMargin float64
	Pairs      []PairSummary
}

// Archive is the SQLite-backed closed-trade store.
type Archive struct {
	db *sql.DB
}

func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open archive %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// RecordTrade inserts a closed trade. Re-recording the same trade ID is a
// no-op so an interrupted archive pass can be rerun.
func (a *Archive) RecordTrade(t ArchivedTrade) error {
	_, err := a.db.Exec(`
		INSERT OR IGNORE INTO trades
		(trade_id, pair, quantity, buy_price, sell_price, buy_total, sell_total, profit_margin, opened, closed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.TradeID, t.Pair, t.Quantity, t.BuyPrice, t.SellPrice,
		t.BuyTotal, t.SellTotal, t.ProfitMargin, t.Opened, t.Closed,
	)
	if err != nil {
		return fmt.Errorf("record trade %s: %w", t.TradeID, err)
	}
	return nil
}

// Summarise reports trade counts, net BTC profit, and mean margin, overall
// and per pair.
func (a *Archive) Summarise() (Summary, error) {
	var s Summary
	row := a.db.QueryRow(`
		SELECT COUNT(*),
		       COALESCE(SUM(sell_total - buy_total), 0),
		       COALESCE(AVG(profit_margin), 0)
		FROM trades`)
	if err := row.Scan(&s.Trades, &s.NetProfit, &s.MeanMargin); err != nil {
		return Summary{}, fmt.Errorf("summarise archive: %w", err)
	}

	rows, err := a.db.Query(`
		SELECT pair, COUNT(*),
		       COALESCE(SUM(sell_total - buy_total), 0),
		       COALESCE(AVG(profit_margin), 0)
		FROM trades
		GROUP BY pair
		ORDER BY pair`)
	if err != nil {
		return Summary{}, fmt.Errorf("summarise archive pairs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p PairSummary
		if err := rows.Scan(&p.Pair, &p.Trades, &p.NetProfit, &p.MeanMargin); err != nil {
			return Summary{}, fmt.Errorf("scan pair summary: %w", err)
		}
		s.Pairs = append(s.Pairs, p)
	}
	if err := rows.Err(); err != nil {
		return Summary{}, fmt.Errorf("summarise archive pairs: %w", err)
	}
	return s, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}
