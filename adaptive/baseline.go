package adaptive

import "math"

// DefaultBaselineWindow is the number of trailing samples Baseline uses to
// compute its rolling mean and standard deviation.
const DefaultBaselineWindow = 1000

// Baseline tracks a rolling mean/standard deviation over its most recent
// samples and scores new observations against them. Built on top of Ring so
// the two share the same bounded-memory circular-buffer shape.
type Baseline struct {
	ring *Ring
}

// NewBaseline creates a Baseline over the last window samples. window <= 0
// defaults to DefaultBaselineWindow.
func NewBaseline(window int) *Baseline {
	if window <= 0 {
		window = DefaultBaselineWindow
	}
	return &Baseline{ring: NewRing(window)}
}

// Observe records a new sample into the rolling window.
func (b *Baseline) Observe(v float64) {
	b.ring.Add(v)
}

// Stats returns the current mean and population standard deviation of the
// window. Both are zero until at least one sample has been observed.
func (b *Baseline) Stats() (mean, stddev float64) {
	values := b.ring.Values()
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var sqDiff float64
	for _, v := range values {
		d := v - mean
		sqDiff += d * d
	}
	stddev = math.Sqrt(sqDiff / float64(len(values)))
	return mean, stddev
}

// ZScore reports how many standard deviations v is from the rolling mean.
// Returns 0 when the baseline has no variance yet (too few samples, or a
// perfectly flat signal), since a z-score is meaningless without spread.
func (b *Baseline) ZScore(v float64) float64 {
	mean, stddev := b.Stats()
	if stddev == 0 {
		return 0
	}
	return (v - mean) / stddev
}

// Confidence maps a sample count to a [0,1] reliability score for decisions
// derived from this baseline: fewer samples than the window means the mean
// and stddev are still warming up.
func (b *Baseline) Confidence() float64 {
	n := b.ring.Len()
	window := len(b.ring.buf)
	c := float64(n) / float64(window)
	if c > 1 {
		c = 1
	}
	return c
}
