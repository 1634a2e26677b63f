package journal

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	trade_id TEXT PRIMARY KEY,
	pair TEXT NOT NULL,
	quantity REAL NOT NULL,
	buy_price REAL NOT NULL,
	sell_price REAL NOT NULL,
	buy_total REAL NOT NULL,
	sell_total REAL NOT NULL,
	profit_margin REAL NOT NULL,
	opened DATETIME NOT NULL,
	closed DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_pair ON trades(pair);
CREATE INDEX IF NOT EXISTS idx_trades_closed ON trades(closed);
`
