package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rustyeddy/tradeguard/market"
)

// Row is one feed record: a bar and, when the source carries one, a signal.
type Row struct {
	Bar       market.Bar
	Signal    market.Signal
	HasSignal bool
}

// BarFeed yields rows in time order and returns (ok=false, err=nil) at EOF.
type BarFeed interface {
	Next() (Row, bool, error)
	Close() error
}

// CSVBarFeed reads bar CSV rows:
//
//	time,open,high,low,close,volume[,signal]
//
// time is RFC3339, RFC3339Nano, a date (2006-01-02) or unix seconds. An
// optional header row ("time,...") and blank rows are skipped. Rows are
// filtered to [From, To) when those are set. Prices are parsed but not
// validated; the engine owns the integrity checks.
type CSVBarFeed struct {
	c    io.Closer
	r    *csv.Reader
	from time.Time
	to   time.Time
	line int

	sawFirst bool
}

func NewCSVBarFeed(path string, from, to time.Time) (*CSVBarFeed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	feed := NewCSVBarReader(f, from, to)
	feed.c = f
	return feed, nil
}

// NewCSVBarReader reads from any reader; Close is a no-op unless the reader
// came from NewCSVBarFeed.
func NewCSVBarReader(r io.Reader, from, to time.Time) *CSVBarFeed {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'
	return &CSVBarFeed{r: cr, from: from, to: to}
}

func (f *CSVBarFeed) Close() error {
	if f.c != nil {
		return f.c.Close()
	}
	return nil
}

func (f *CSVBarFeed) Next() (Row, bool, error) {
	for {
		rec, err := f.r.Read()
		if err == io.EOF {
			return Row{}, false, nil
		}
		if err != nil {
			return Row{}, false, err
		}
		f.line++
		if len(rec) == 0 || (len(rec) == 1 && strings.TrimSpace(rec[0]) == "") {
			continue
		}

		if !f.sawFirst {
			f.sawFirst = true
			if strings.EqualFold(strings.TrimSpace(rec[0]), "time") {
				continue
			}
		}

		row, err := parseBarRow(rec)
		if err != nil {
			return Row{}, false, fmt.Errorf("csv record %d: %w", f.line, err)
		}
		if !inRange(row.Bar.Time, f.from, f.to) {
			continue
		}
		return row, true, nil
	}
}

func parseBarRow(rec []string) (Row, error) {
	if len(rec) < 6 {
		return Row{}, fmt.Errorf("want at least 6 columns, got %d", len(rec))
	}

	t, err := parseTime(strings.TrimSpace(rec[0]))
	if err != nil {
		return Row{}, err
	}

	var vals [5]float64
	names := [5]string{"open", "high", "low", "close", "volume"}
	for i := range vals {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return Row{}, fmt.Errorf("bad %s %q: %w", names[i], rec[i+1], err)
		}
		vals[i] = v
	}

	row := Row{Bar: market.Bar{
		Time:   t,
		Open:   vals[0],
		High:   vals[1],
		Low:    vals[2],
		Close:  vals[3],
		Volume: vals[4],
	}}

	if len(rec) > 6 {
		sig, err := market.ParseSignal(rec[6])
		if err != nil {
			return Row{}, err
		}
		row.Signal = sig
		row.HasSignal = true
	}
	return row, nil
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("bad time %q", s)
}

func inRange(t, from, to time.Time) bool {
	if !from.IsZero() && t.Before(from) {
		return false
	}
	if !to.IsZero() && !t.Before(to) {
		return false
	}
	return true
}

// SliceFeed replays rows held in memory.
type SliceFeed struct {
	Rows []Row
	i    int
}

// BarsFeed wraps bars without signals.
func BarsFeed(bars []market.Bar) *SliceFeed {
	rows := make([]Row, len(bars))
	for i, b := range bars {
		rows[i] = Row{Bar: b}
	}
	return &SliceFeed{Rows: rows}
}

func (f *SliceFeed) Next() (Row, bool, error) {
	if f.i >= len(f.Rows) {
		return Row{}, false, nil
	}
	r := f.Rows[f.i]
	f.i++
	return r, true, nil
}

func (f *SliceFeed) Close() error { return nil }
