package journal

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rustyeddy/tradeguard/circuit"
	"github.com/rustyeddy/tradeguard/trade"
)

// CSV file names inside the journal directory.
const (
	TradesFile  = "trades.csv"
	EquityFile  = "equity.csv"
	BreakerFile = "breaker_events.csv"
	RunsFile    = "runs.csv"
)

var (
	tradesHeader  = []string{"run_id", "trade_id", "instrument", "direction", "size", "entry_price", "exit_price", "open_time", "close_time", "pnl", "pnl_pct", "reason"}
	equityHeader  = []string{"run_id", "time", "capital"}
	breakerHeader = []string{"run_id", "level", "description", "time", "equity", "peak", "drawdown_pct", "suppressed", "actions"}
	runsHeader    = []string{"run_id", "name", "strategy", "instrument", "dataset", "created", "start", "end", "bars", "skipped", "halted", "trades", "net_pnl", "return_pct", "max_dd_pct", "win_rate", "profit_factor", "sharpe"}
)

type csvFile struct {
	f *os.File
	w *csv.Writer
}

// CSV is a Store writing one file per record kind. Files are appended to
// when they already exist; the header is written only to new files.
type CSV struct {
	mu     sync.Mutex
	closed bool

	trades, equity, breaker, runs csvFile
}

var _ Store = (*CSV)(nil)

// NewCSV opens or creates the journal files in dir.
func NewCSV(dir string) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	j := &CSV{}
	files := []struct {
		name   string
		header []string
		dst    *csvFile
	}{
		{TradesFile, tradesHeader, &j.trades},
		{EquityFile, equityHeader, &j.equity},
		{BreakerFile, breakerHeader, &j.breaker},
		{RunsFile, runsHeader, &j.runs},
	}
	for _, spec := range files {
		cf, err := openCSV(filepath.Join(dir, spec.name), spec.header)
		if err != nil {
			j.closeFiles()
			return nil, err
		}
		*spec.dst = cf
	}
	return j, nil
}

func openCSV(path string, header []string) (csvFile, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return csvFile{}, err
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return csvFile{}, err
	}

	w := csv.NewWriter(f)
	if st.Size() == 0 {
		if err := w.Write(header); err != nil {
			_ = f.Close()
			return csvFile{}, err
		}
		w.Flush()
		if err := w.Error(); err != nil {
			_ = f.Close()
			return csvFile{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	return csvFile{f: f, w: w}, nil
}

func (j *CSV) write(cf *csvFile, rec []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}
	if err := cf.w.Write(rec); err != nil {
		return err
	}
	cf.w.Flush()
	return cf.w.Error()
}

func (j *CSV) InsertTrade(runID string, t trade.ClosedTrade) error {
	return j.write(&j.trades, []string{
		runID,
		t.ID,
		t.Instrument,
		t.Direction.String(),
		money(t.Size).StringFixed(2),
		price(t.EntryPrice),
		price(t.ExitPrice),
		t.OpenedAt.UTC().Format(time.RFC3339),
		t.ClosedAt.UTC().Format(time.RFC3339),
		money(t.PnL).StringFixed(2),
		ff(t.PnLPercent),
		string(t.ExitReason),
	})
}

func (j *CSV) InsertEquity(runID string, p trade.EquityPoint) error {
	return j.write(&j.equity, []string{
		runID,
		p.Time.UTC().Format(time.RFC3339),
		money(p.Capital).StringFixed(2),
	})
}

func (j *CSV) InsertFiring(runID string, f circuit.Firing) error {
	actions := make([]string, 0, len(f.Results))
	for _, r := range f.Results {
		s := r.Action + ":ok"
		if !r.OK {
			s = r.Action + ":failed"
		}
		actions = append(actions, s)
	}
	return j.write(&j.breaker, []string{
		runID,
		ff(f.Level),
		f.Description,
		f.At.UTC().Format(time.RFC3339),
		money(f.Equity).StringFixed(2),
		money(f.Peak).StringFixed(2),
		ff(f.DrawdownPct),
		strconv.FormatBool(f.Suppressed),
		strings.Join(actions, ";"),
	})
}

func (j *CSV) InsertRun(r Run) error {
	rep := r.Report
	return j.write(&j.runs, []string{
		r.RunID,
		r.Name,
		r.Strategy,
		r.Instrument,
		r.Dataset,
		r.Created.UTC().Format(time.RFC3339),
		r.Start.UTC().Format(time.RFC3339),
		r.End.UTC().Format(time.RFC3339),
		strconv.Itoa(r.Bars),
		strconv.Itoa(r.Skipped),
		strconv.FormatBool(r.Halted),
		strconv.Itoa(rep.Trades),
		money(rep.NetPnL).StringFixed(2),
		ff(rep.ReturnPct),
		ff(rep.MaxDrawdownPct),
		ff(rep.WinRate),
		ff(rep.ProfitFactor),
		ff(rep.Sharpe),
	})
}

// Close flushes and closes every file. It is safe to call twice.
func (j *CSV) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return nil
	}
	j.closed = true
	return j.closeFiles()
}

func (j *CSV) closeFiles() error {
	var first error
	for _, cf := range []*csvFile{&j.trades, &j.equity, &j.breaker, &j.runs} {
		if cf.f == nil {
			continue
		}
		cf.w.Flush()
		if err := cf.w.Error(); err != nil && first == nil {
			first = err
		}
		if err := cf.f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ff formats with 6 places; infinities print as +Inf.
func ff(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
