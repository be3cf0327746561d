package indicator

import (
	"math"

	"github.com/newthinker/meanrev/internal/core"
)

// RollingStats tracks the mean and sample standard deviation of the most
// recent lookback prices. The window is a fixed circular buffer; mean and
// deviation are recomputed from its contents on every update (two-pass),
// which keeps results identical to a batch computation over the same window.
type RollingStats struct {
	buf   []float64
	next  int
	count int
	mean  float64
	std   float64
}

// NewRollingStats creates a tracker over a window of lookback prices
func NewRollingStats(lookback int) (*RollingStats, error) {
	if lookback < 2 {
		return nil, core.Wrapf(core.ErrConfigInvalid, "lookback must be >= 2, got %d", lookback)
	}
	return &RollingStats{buf: make([]float64, lookback)}, nil
}

// Update pushes a price, evicting the oldest one once the window is full.
// Mean and std are only meaningful when ready is true.
func (r *RollingStats) Update(price float64) (mean, std float64, ready bool) {
	r.buf[r.next] = price
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}

	if !r.Ready() {
		return 0, 0, false
	}

	r.mean, r.std = MeanStdDev(r.buf)
	return r.mean, r.std, true
}

// Ready reports whether the window holds lookback prices
func (r *RollingStats) Ready() bool {
	return r.count == len(r.buf)
}

// Len returns the number of prices currently in the window
func (r *RollingStats) Len() int {
	return r.count
}

// Lookback returns the window capacity
func (r *RollingStats) Lookback() int {
	return len(r.buf)
}

// Mean returns the last computed mean (zero until ready)
func (r *RollingStats) Mean() float64 {
	return r.mean
}

// StdDev returns the last computed sample standard deviation (zero until ready)
func (r *RollingStats) StdDev() float64 {
	return r.std
}

// Values returns the window contents, oldest first
func (r *RollingStats) Values() []float64 {
	result := make([]float64, 0, r.count)
	if r.count == len(r.buf) {
		result = append(result, r.buf[r.next:]...)
		return append(result, r.buf[:r.next]...)
	}
	return append(result, r.buf[:r.count]...)
}

// MeanStdDev returns the arithmetic mean and the sample (n-1) standard
// deviation of values. The deviation is zero for fewer than two values and
// exactly zero when all values are equal.
func MeanStdDev(values []float64) (mean, std float64) {
	n := len(values)
	if n == 0 {
		return 0, 0
	}

	lo, hi := values[0], values[0]
	var sum float64
	for _, v := range values {
		sum += v
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if lo == hi {
		return lo, 0
	}
	// Rounding in the sum can push the mean outside the observed range
	mean = math.Min(math.Max(sum/float64(n), lo), hi)
	if n < 2 {
		return mean, 0
	}

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(n-1))
}
