package strategies

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rustyeddy/tradeguard/market"
)

// Scripted replays signals keyed by bar time. Bars without an entry get
// SignalNone.
type Scripted struct {
	signals map[time.Time]market.Signal
}

func NewScripted(signals map[time.Time]market.Signal) *Scripted {
	m := make(map[time.Time]market.Signal, len(signals))
	for t, s := range signals {
		m[t.UTC()] = s
	}
	return &Scripted{signals: m}
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Signal(b market.Bar) market.Signal {
	return s.signals[b.Time.UTC()]
}

// LoadScript reads a "time,signal" CSV (RFC3339 or 2006-01-02 times, optional
// header).
func LoadScript(path string) (*Scripted, error) {
	if path == "" {
		return nil, fmt.Errorf("scripted: no script path")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadScript(f)
}

func ReadScript(r io.Reader) (*Scripted, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.Comment = '#'

	signals := map[time.Time]market.Signal{}
	first := true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 {
			continue
		}
		ts := strings.TrimSpace(rec[0])
		if first {
			first = false
			if strings.EqualFold(ts, "time") {
				continue
			}
		}
		t, err := parseScriptTime(ts)
		if err != nil {
			return nil, err
		}
		sig, err := market.ParseSignal(rec[1])
		if err != nil {
			return nil, fmt.Errorf("scripted %s: %w", ts, err)
		}
		signals[t] = sig
	}
	return NewScripted(signals), nil
}

func parseScriptTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("scripted: bad time %q", s)
}
