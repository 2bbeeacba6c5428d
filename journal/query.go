package journal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rustyeddy/tradeguard/circuit"
	"github.com/rustyeddy/tradeguard/trade"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = errors.New("not found")

const tradeColumns = `trade_id, instrument, direction, size, entry_price, exit_price, open_time, close_time, pnl, pnl_pct, reason`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTrade(row rowScanner) (trade.ClosedTrade, error) {
	var (
		t         trade.ClosedTrade
		dir       string
		reason    string
		size, pnl decimal.Decimal
	)
	err := row.Scan(
		&t.ID,
		&t.Instrument,
		&dir,
		&size,
		&t.EntryPrice,
		&t.ExitPrice,
		&t.OpenedAt,
		&t.ClosedAt,
		&pnl,
		&t.PnLPercent,
		&reason,
	)
	if err != nil {
		return trade.ClosedTrade{}, err
	}
	if err := t.Direction.UnmarshalText([]byte(dir)); err != nil {
		return trade.ClosedTrade{}, err
	}
	if t.ExitReason, err = trade.ParseExitReason(reason); err != nil {
		return trade.ClosedTrade{}, err
	}
	t.Size = size.InexactFloat64()
	t.PnL = pnl.InexactFloat64()
	return t, nil
}

func collectTrades(rows *sql.Rows) ([]trade.ClosedTrade, error) {
	defer rows.Close()

	var out []trade.ClosedTrade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetTrade returns a single trade of a run.
func (j *SQLite) GetTrade(runID, tradeID string) (trade.ClosedTrade, error) {
	row := j.db.QueryRow(`SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = ? AND trade_id = ?`, runID, tradeID)

	t, err := scanTrade(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return trade.ClosedTrade{}, fmt.Errorf("trade %q: %w", tradeID, ErrNotFound)
		}
		return trade.ClosedTrade{}, err
	}
	return t, nil
}

// ListTradesByRun returns a run's trades in close order.
func (j *SQLite) ListTradesByRun(runID string) ([]trade.ClosedTrade, error) {
	rows, err := j.db.Query(`SELECT `+tradeColumns+`
		FROM trades
		WHERE run_id = ?
		ORDER BY close_time ASC, rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

// ListTradesClosedBetween returns trades of every run whose close_time is
// within [start, end).
func (j *SQLite) ListTradesClosedBetween(start, end time.Time) ([]trade.ClosedTrade, error) {
	rows, err := j.db.Query(`SELECT `+tradeColumns+`
		FROM trades
		WHERE close_time >= ? AND close_time < ?
		ORDER BY close_time ASC, rowid ASC`, start.UTC(), end.UTC())
	if err != nil {
		return nil, err
	}
	return collectTrades(rows)
}

// ListEquityByRun returns the equity curve of a run in recording order.
func (j *SQLite) ListEquityByRun(runID string) ([]trade.EquityPoint, error) {
	rows, err := j.db.Query(`
		SELECT time, capital
		FROM equity
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []trade.EquityPoint
	for rows.Next() {
		var (
			p       trade.EquityPoint
			capital decimal.Decimal
		)
		if err := rows.Scan(&p.Time, &capital); err != nil {
			return nil, err
		}
		p.Capital = capital.InexactFloat64()
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListFiringsByRun returns the breaker events of a run, oldest first.
func (j *SQLite) ListFiringsByRun(runID string) ([]circuit.Firing, error) {
	rows, err := j.db.Query(`
		SELECT level, description, time, equity, peak, drawdown_pct, suppressed, results
		FROM breaker_events
		WHERE run_id = ?
		ORDER BY rowid ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []circuit.Firing
	for rows.Next() {
		var (
			f            circuit.Firing
			equity, peak decimal.Decimal
			results      string
		)
		if err := rows.Scan(&f.Level, &f.Description, &f.At, &equity, &peak,
			&f.DrawdownPct, &f.Suppressed, &results); err != nil {
			return nil, err
		}
		f.Equity = equity.InexactFloat64()
		f.Peak = peak.InexactFloat64()
		if err := json.Unmarshal([]byte(results), &f.Results); err != nil {
			return nil, fmt.Errorf("breaker event results: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

const runColumns = `run_id, name, strategy, instrument, dataset, created, start_time, end_time, bars, skipped, halted, report`

func scanRun(row rowScanner) (Run, error) {
	var (
		r      Run
		report string
	)
	if err := row.Scan(&r.RunID, &r.Name, &r.Strategy, &r.Instrument, &r.Dataset,
		&r.Created, &r.Start, &r.End, &r.Bars, &r.Skipped, &r.Halted, &report); err != nil {
		return Run{}, err
	}
	if err := json.Unmarshal([]byte(report), &r.Report); err != nil {
		return Run{}, fmt.Errorf("run %s report: %w", r.RunID, err)
	}
	return r, nil
}

// GetRun returns the summary row of a run.
func (j *SQLite) GetRun(runID string) (Run, error) {
	r, err := scanRun(j.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run %q: %w", runID, ErrNotFound)
		}
		return Run{}, err
	}
	return r, nil
}

// ListRuns returns every run, newest first.
func (j *SQLite) ListRuns() ([]Run, error) {
	rows, err := j.db.Query(`SELECT ` + runColumns + ` FROM runs ORDER BY created DESC, run_id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
