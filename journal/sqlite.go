package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rustyeddy/tradeguard/circuit"
	"github.com/rustyeddy/tradeguard/trade"
)

// SQLite is a Store backed by a single database file.
type SQLite struct {
	db *sql.DB

	mu  sync.Mutex
	seq map[string]int
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens path and creates the schema when missing.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// one writer; the sink is called from the engine goroutine and batch workers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &SQLite{db: db, seq: make(map[string]int)}, nil
}

func (j *SQLite) InsertTrade(runID string, t trade.ClosedTrade) error {
	_, err := j.db.Exec(`
		INSERT INTO trades
		(run_id, trade_id, instrument, direction, size, entry_price, exit_price, open_time, close_time, pnl, pnl_pct, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, t.ID, t.Instrument, t.Direction.String(), money(t.Size),
		t.EntryPrice, t.ExitPrice, t.OpenedAt.UTC(), t.ClosedAt.UTC(),
		money(t.PnL), t.PnLPercent, string(t.ExitReason),
	)
	if err != nil {
		return fmt.Errorf("insert trade %s: %w", t.ID, err)
	}
	return nil
}

func (j *SQLite) InsertEquity(runID string, p trade.EquityPoint) error {
	j.mu.Lock()
	seq := j.seq[runID]
	j.seq[runID] = seq + 1
	j.mu.Unlock()

	_, err := j.db.Exec(`
		INSERT INTO equity (run_id, seq, time, capital)
		VALUES (?, ?, ?, ?)`,
		runID, seq, p.Time.UTC(), money(p.Capital),
	)
	if err != nil {
		return fmt.Errorf("insert equity: %w", err)
	}
	return nil
}

func (j *SQLite) InsertFiring(runID string, f circuit.Firing) error {
	results, err := json.Marshal(f.Results)
	if err != nil {
		return err
	}
	_, err = j.db.Exec(`
		INSERT INTO breaker_events
		(run_id, level, description, time, equity, peak, drawdown_pct, suppressed, results)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, f.Level, f.Description, f.At.UTC(), money(f.Equity), money(f.Peak),
		f.DrawdownPct, f.Suppressed, string(results),
	)
	if err != nil {
		return fmt.Errorf("insert breaker event: %w", err)
	}
	return nil
}

func (j *SQLite) InsertRun(r Run) error {
	report, err := json.Marshal(r.Report)
	if err != nil {
		return err
	}
	_, err = j.db.Exec(`
		INSERT OR REPLACE INTO runs
		(run_id, name, strategy, instrument, dataset, created, start_time, end_time, bars, skipped, halted, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Name, r.Strategy, r.Instrument, r.Dataset, r.Created.UTC(),
		r.Start.UTC(), r.End.UTC(), r.Bars, r.Skipped, r.Halted, string(report),
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", r.RunID, err)
	}
	return nil
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
