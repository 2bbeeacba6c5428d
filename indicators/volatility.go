package indicators

import (
	"fmt"
	"math"

	"github.com/rustyeddy/tradeguard/market"
)

const (
	DefaultWindow        = 20
	DefaultAnnualization = 252.0
)

// Volatility is the estimator output. ATR is in price units, ReturnVol is an
// annualized fraction (0.2 == 20%).
type Volatility struct {
	ATR       float64 `json:"atr"`
	ReturnVol float64 `json:"return_vol"`
}

// VolatilityEstimator keeps the last N true ranges and close-to-close returns.
// ATR here is the plain mean of the window (not Wilder smoothed).
type VolatilityEstimator struct {
	window        int
	annualization float64

	trs     *ring
	returns *ring

	prevClose float64
	bars      int
}

// NewVolatilityEstimator returns an estimator over the last window bars.
// annualization is the number of bars per year used to scale ReturnVol.
func NewVolatilityEstimator(window int, annualization float64) *VolatilityEstimator {
	if window <= 0 {
		window = DefaultWindow
	}
	if annualization <= 0 {
		annualization = DefaultAnnualization
	}
	return &VolatilityEstimator{
		window:        window,
		annualization: annualization,
		trs:           newRing(window),
		returns:       newRing(window),
	}
}

func (v *VolatilityEstimator) Name() string {
	return fmt.Sprintf("VOL(%d)", v.window)
}

// Warmup is two bars: a true range needs a previous close.
func (v *VolatilityEstimator) Warmup() int { return 2 }

func (v *VolatilityEstimator) Reset() {
	v.trs.reset()
	v.returns.reset()
	v.prevClose = 0
	v.bars = 0
}

func (v *VolatilityEstimator) Update(b market.Bar) {
	if v.bars > 0 {
		v.trs.push(b.TrueRange(v.prevClose))
		if v.prevClose != 0 {
			v.returns.push((b.Close - v.prevClose) / v.prevClose)
		}
	}
	v.prevClose = b.Close
	v.bars++
}

func (v *VolatilityEstimator) Ready() bool {
	return v.trs.len() > 0
}

// Value returns the current estimate. ok is false until two bars were seen.
func (v *VolatilityEstimator) Value() (Volatility, bool) {
	if !v.Ready() {
		return Volatility{}, false
	}
	return Volatility{
		ATR:       v.trs.mean(),
		ReturnVol: StdDev(v.returns.values()) * math.Sqrt(v.annualization),
	}, true
}

// ATR returns the mean true range or ErrInsufficientData.
func (v *VolatilityEstimator) ATR() (float64, error) {
	vol, ok := v.Value()
	if !ok {
		return 0, ErrInsufficientData
	}
	return vol.ATR, nil
}

// StdDev is the sample standard deviation; 0 for fewer than two values.
func StdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	m := Mean(xs)
	ss := 0.0
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

// Mean of xs; 0 for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// ring is a fixed capacity FIFO of float64.
type ring struct {
	buf   []float64
	start int
	n     int
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]float64, capacity)}
}

func (r *ring) push(x float64) {
	if r.n < len(r.buf) {
		r.buf[(r.start+r.n)%len(r.buf)] = x
		r.n++
		return
	}
	r.buf[r.start] = x
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) len() int { return r.n }

func (r *ring) reset() {
	r.start = 0
	r.n = 0
}

func (r *ring) values() []float64 {
	out := make([]float64, r.n)
	for i := 0; i < r.n; i++ {
		out[i] = r.buf[(r.start+i)%len(r.buf)]
	}
	return out
}

func (r *ring) mean() float64 {
	return Mean(r.values())
}
