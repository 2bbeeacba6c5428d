package risk

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func history(wins int, win float64, losses int, loss float64) []float64 {
	out := make([]float64, 0, wins+losses)
	for i := 0; i < wins; i++ {
		out = append(out, win)
	}
	for i := 0; i < losses; i++ {
		out = append(out, -loss)
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name string
		mut  func(c *Config)
	}{
		{"unknown mode", func(c *Config) { c.Mode = "martingale" }},
		{"kelly fraction zero", func(c *Config) { c.KellyFraction = 0 }},
		{"kelly fraction above one", func(c *Config) { c.KellyFraction = 1.5 }},
		{"max fraction zero", func(c *Config) { c.MaxPositionFraction = 0 }},
		{"max fraction above one", func(c *Config) { c.MaxPositionFraction = 1.01 }},
		{"negative stop multiple", func(c *Config) { c.StopATRMultiple = -1 }},
		{"zero lookback", func(c *Config) { c.KellyLookback = 0 }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := DefaultConfig()
			tt.mut(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalidConfig)
		})
	}
}

func TestKellyScenario(t *testing.T) {
	t.Parallel()

	// p=0.6, W=150, L=100 => f* = (0.6*1.5-0.4)/1.5 = 1/3
	st := Stats(history(12, 150, 8, 100))
	assert.InDelta(t, 0.6, st.WinRate, 1e-12)
	assert.InDelta(t, 1.5, st.Payoff(), 1e-12)
	assert.InDelta(t, 1.0/3.0, KellyFraction(st.WinRate, st.Payoff()), 1e-9)

	cfg := DefaultConfig()
	cfg.Mode = ModeKelly
	cfg.KellyFraction = 0.5
	cfg.MaxPositionFraction = 0.5
	s := NewSizer(cfg, nil)

	d := s.Size(SizeInput{Capital: 10000, Price: 100, ATR: 2, History: history(12, 150, 8, 100)})
	assert.Equal(t, BasisKelly, d.Basis)
	assert.InDelta(t, 1.0/6.0, d.Fraction, 1e-9)
	assert.InDelta(t, 1666.67, d.Amount, 0.02)
}

func TestKellyNoEdgeIsZero(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		p := r.Float64()
		b := r.Float64()*5 + 1e-6
		f := KellyFraction(p, b)
		if b*p <= 1-p {
			assert.Equal(t, 0.0, f, "p=%v b=%v", p, b)
		} else {
			assert.Greater(t, f, 0.0, "p=%v b=%v", p, b)
			assert.LessOrEqual(t, f, 1.0)
		}
	}

	assert.Equal(t, 0.0, KellyFraction(0.5, 1), "coin flip at even odds")
	assert.Equal(t, 0.0, KellyFraction(0, 3))
	assert.Equal(t, 0.0, KellyFraction(0.7, 0))
	assert.InDelta(t, 0.8, KellyFraction(0.8, math.Inf(1)), 1e-12)
}

func TestKellyUnfavorableReturnsZeroSize(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Mode = ModeKelly
	s := NewSizer(cfg, nil)

	d := s.Size(SizeInput{Capital: 10000, Price: 100, ATR: 2, History: history(5, 100, 15, 100)})
	assert.Equal(t, BasisKelly, d.Basis)
	assert.Equal(t, 0.0, d.Amount)
	assert.Equal(t, "no statistical edge", d.Reason)
}

func TestKellyFallsBackToVolatility(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Mode = ModeKelly
	cfg.KellyLookback = 20
	s := NewSizer(cfg, nil)

	d := s.Size(SizeInput{Capital: 10000, Price: 100, ATR: 2, History: history(3, 100, 1, 50)})
	assert.Equal(t, BasisKellyFallback, d.Basis)
	// 0.01 / (2*2/100) = 0.25 => capped at 0.25 anyway
	assert.InDelta(t, 2500.0, d.Amount, 1e-9)
}

func TestVolatilitySizing(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.RiskFraction = 0.01
	cfg.StopATRMultiple = 2
	cfg.MaxPositionFraction = 0.5
	s := NewSizer(cfg, nil)

	// stop distance = 10 on a 100 price => 10% => 0.01/0.1 = 10% of capital
	d := s.Size(SizeInput{Capital: 50000, Price: 100, ATR: 5})
	assert.Equal(t, BasisVolatility, d.Basis)
	assert.InDelta(t, 0.1, d.Fraction, 1e-12)
	assert.InDelta(t, 5000.0, d.Amount, 1e-9)
	// risking exactly 1% of capital at the stop
	assert.InDelta(t, 500.0, PlannedRisk(d.Amount, 100, 90), 1e-9)

	// tiny ATR would ask for a huge position: capped
	d = s.Size(SizeInput{Capital: 50000, Price: 100, ATR: 0.001})
	assert.InDelta(t, 25000.0, d.Amount, 1e-9)
	assert.Equal(t, "capped at max position fraction", d.Reason)

	d = s.Size(SizeInput{Capital: 50000, Price: 100, ATR: 0})
	assert.Equal(t, BasisNone, d.Basis)
	assert.Equal(t, 0.0, d.Amount)
}

func TestSizeInvariants(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(7))
	for _, mode := range []Mode{ModeVolatility, ModeKelly} {
		cfg := DefaultConfig()
		cfg.Mode = mode
		cfg.KellyLookback = 5
		s := NewSizer(cfg, nil)

		for i := 0; i < 1000; i++ {
			capital := math.Pow(10, r.Float64()*9) - 1
			price := math.Pow(10, r.Float64()*8-4)
			atr := math.Pow(10, r.Float64()*12-8)
			hist := make([]float64, r.Intn(10))
			for j := range hist {
				hist[j] = r.NormFloat64() * 100
			}

			in := SizeInput{Capital: capital, Price: price, ATR: atr, History: hist}
			d := s.Size(in)
			assert.GreaterOrEqual(t, d.Amount, 0.0)
			assert.LessOrEqual(t, d.Amount, cfg.MaxPositionFraction*capital+1e-9)

			// monotonic in capital
			in.Capital = capital * 2
			assert.GreaterOrEqual(t, s.Size(in).Amount, d.Amount)
		}
	}

	s := NewSizer(DefaultConfig(), nil)
	assert.Equal(t, 0.0, s.Size(SizeInput{Capital: -100, Price: 100, ATR: 1}).Amount)
	assert.Equal(t, 0.0, s.Size(SizeInput{Capital: math.Inf(1), Price: 100, ATR: 1}).Amount)
	assert.Equal(t, 0.0, s.Size(SizeInput{Capital: 1000, Price: math.NaN(), ATR: 1}).Amount)
}

func TestRR(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 2.0, RR(100, 98, 104), 1e-12)
	assert.Equal(t, 0.0, RR(100, 100, 104))
}
