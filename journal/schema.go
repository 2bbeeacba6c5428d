package journal

// Schema creates the journal tables. Money columns hold decimal strings.
const Schema = `
CREATE TABLE IF NOT EXISTS trades (
	run_id TEXT NOT NULL,
	trade_id TEXT NOT NULL,
	instrument TEXT NOT NULL,
	direction TEXT NOT NULL,
	size TEXT NOT NULL,
	entry_price REAL NOT NULL,
	exit_price REAL NOT NULL,
	open_time DATETIME NOT NULL,
	close_time DATETIME NOT NULL,
	pnl TEXT NOT NULL,
	pnl_pct REAL NOT NULL,
	reason TEXT NOT NULL,
	PRIMARY KEY (run_id, trade_id)
);

CREATE TABLE IF NOT EXISTS equity (
	run_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	time DATETIME NOT NULL,
	capital TEXT NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE TABLE IF NOT EXISTS breaker_events (
	run_id TEXT NOT NULL,
	level REAL NOT NULL,
	description TEXT NOT NULL,
	time DATETIME NOT NULL,
	equity TEXT NOT NULL,
	peak TEXT NOT NULL,
	drawdown_pct REAL NOT NULL,
	suppressed INTEGER NOT NULL,
	results TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	strategy TEXT NOT NULL,
	instrument TEXT NOT NULL,
	dataset TEXT NOT NULL,
	created DATETIME NOT NULL,
	start_time DATETIME NOT NULL,
	end_time DATETIME NOT NULL,
	bars INTEGER NOT NULL,
	skipped INTEGER NOT NULL,
	halted INTEGER NOT NULL,
	report TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_trades_close ON trades(close_time);
CREATE INDEX IF NOT EXISTS idx_equity_time ON equity(run_id, time);
CREATE INDEX IF NOT EXISTS idx_breaker_run ON breaker_events(run_id);
`
