// Package strategies holds the built-in signal producers. The engine never
// computes signals itself; it only consumes a market.Signaler.
package strategies

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rustyeddy/tradeguard/market"
)

// Params is the union of knobs the built-in strategies understand.
type Params struct {
	Fast   int    `yaml:"fast" json:"fast"`
	Slow   int    `yaml:"slow" json:"slow"`
	Script string `yaml:"script" json:"script"` // time,signal CSV for "scripted"
}

// Factory builds a fresh signaler. Each run gets its own instance.
type Factory func(p Params) (market.Signaler, error)

var (
	mu       sync.RWMutex
	registry = map[string]Factory{}
)

func init() {
	Register("noop", func(Params) (market.Signaler, error) { return Noop{}, nil })
	Register("ema-cross", func(p Params) (market.Signaler, error) {
		s, err := NewEMACross(p.Fast, p.Slow)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	Register("scripted", func(p Params) (market.Signaler, error) {
		s, err := LoadScript(p.Script)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

// Register adds or replaces a strategy factory.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[normalize(name)] = f
}

// ByName builds the named strategy. Names are case insensitive and "_" is
// treated as "-".
func ByName(name string, p Params) (market.Signaler, error) {
	mu.RLock()
	f, ok := registry[normalize(name)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return f(p)
}

// Names lists registered strategies, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func normalize(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, "_", "-")
	if n == "emacross" {
		n = "ema-cross"
	}
	return n
}
