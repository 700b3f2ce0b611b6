package governor

import "sync"

// EMATracker maintains an exponential moving average of observed
// per-worker memory cost. It is safe for concurrent use.
type EMATracker struct {
	mu       sync.Mutex
	alpha    float64
	estimate float64
	seeded   bool
}

// NewEMATracker creates a tracker. The seed is used as the estimate
// until the first observation arrives; alpha outside (0,1] falls back
// to 0.2.
func NewEMATracker(alpha, seed float64) *EMATracker {
	if alpha <= 0 || alpha > 1 {
		alpha = 0.2
	}
	return &EMATracker{alpha: alpha, estimate: seed}
}

// Observe folds a new measurement into the average.
func (t *EMATracker) Observe(value float64) {
	if value <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.seeded {
		t.estimate = value
		t.seeded = true
		return
	}
	t.estimate = t.alpha*value + (1-t.alpha)*t.estimate
}

// Estimate returns the current average.
func (t *EMATracker) Estimate() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.estimate
}
