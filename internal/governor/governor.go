package governor

import (
	"sync"

	"ckr/internal/logging"
)

// Profile controls how aggressively the cold-start worker count uses
// the machine.
type Profile string

const (
	ProfileConservative Profile = "conservative"
	ProfileModerate     Profile = "moderate"
	ProfileAggressive   Profile = "aggressive"
)

var profileFraction = map[Profile]float64{
	ProfileConservative: 0.25,
	ProfileModerate:     0.50,
	ProfileAggressive:   0.75,
}

// Options configures a Governor.
type Options struct {
	Profile           Profile
	TargetUtilization float64 // fraction of usable resources to plan for
	AbsoluteMin       int
	AbsoluteMax       int
	HistorySize       int
	EMAAlpha          float64
}

// DefaultOptions returns moderate defaults.
func DefaultOptions() Options {
	return Options{
		Profile:           ProfileModerate,
		TargetUtilization: 0.8,
		AbsoluteMin:       1,
		AbsoluteMax:       32,
		HistorySize:       60,
		EMAAlpha:          0.2,
	}
}

// defaultWorkerMemoryFraction seeds the per-worker memory estimate at 5%
// of total memory until real observations arrive.
const defaultWorkerMemoryFraction = 0.05

// Governor samples resource snapshots into a ring buffer and recommends
// worker budgets. Reads are lock-shared; sampling is the single writer.
type Governor struct {
	opts    Options
	sampler Sampler
	tracker *EMATracker
	logger  *logging.Logger

	mu      sync.RWMutex
	history []Snapshot
	next    int
	count   int
	latest  Snapshot
}

// New creates a governor. The tracker seed is resolved on the first
// sample once total memory is known.
func New(opts Options, sampler Sampler, logger *logging.Logger) *Governor {
	if opts.HistorySize <= 0 {
		opts.HistorySize = 60
	}
	if opts.TargetUtilization <= 0 || opts.TargetUtilization > 1 {
		opts.TargetUtilization = 0.8
	}
	if opts.AbsoluteMin < 1 {
		opts.AbsoluteMin = 1
	}
	if opts.AbsoluteMax < opts.AbsoluteMin {
		opts.AbsoluteMax = opts.AbsoluteMin
	}
	return &Governor{
		opts:    opts,
		sampler: sampler,
		tracker: NewEMATracker(opts.EMAAlpha, 0),
		logger:  logger,
		history: make([]Snapshot, opts.HistorySize),
	}
}

// Sample takes one snapshot and appends it to the ring buffer.
func (g *Governor) Sample() (Snapshot, error) {
	snap, err := g.sampler.Sample()
	if err != nil {
		return Snapshot{}, err
	}

	g.mu.Lock()
	g.history[g.next] = snap
	g.next = (g.next + 1) % len(g.history)
	if g.count < len(g.history) {
		g.count++
	}
	g.latest = snap
	g.mu.Unlock()

	if g.logger != nil {
		g.logger.Debug("resource sample", map[string]interface{}{
			"memUsedPct": snap.MemoryUsedPct,
			"cpuPct":     snap.CPUUsagePct,
			"load1":      snap.Load1,
			"pressure":   string(LevelFor(snap)),
		})
	}
	return snap, nil
}

// Latest returns the most recent snapshot.
func (g *Governor) Latest() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.latest
}

// History returns the buffered snapshots, oldest first.
func (g *Governor) History() []Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Snapshot, 0, g.count)
	start := g.next - g.count
	if start < 0 {
		start += len(g.history)
	}
	for i := 0; i < g.count; i++ {
		out = append(out, g.history[(start+i)%len(g.history)])
	}
	return out
}

// Pressure returns the pressure level of the latest snapshot.
func (g *Governor) Pressure() PressureLevel {
	return LevelFor(g.Latest())
}

// ObserveWorkerMemory feeds a measured per-worker memory cost (bytes)
// into the moving-average tracker.
func (g *Governor) ObserveWorkerMemory(bytes float64) {
	g.tracker.Observe(bytes)
}

// RecommendedWorkers computes the advisory worker budget:
// min(memory budget, cpu budget) x load multiplier, clamped to the
// configured absolute bounds.
func (g *Governor) RecommendedWorkers() int {
	snap := g.Latest()

	perWorker := g.tracker.Estimate()
	if perWorker <= 0 {
		perWorker = float64(snap.TotalMemory) * defaultWorkerMemoryFraction
	}

	memBudget := g.opts.AbsoluteMax
	if perWorker > 0 {
		usable := float64(snap.AvailableMemory) * g.opts.TargetUtilization
		memBudget = int(usable / perWorker)
	}

	cpuBudget := int(float64(snap.CPUCores) * g.opts.TargetUtilization)

	budget := memBudget
	if cpuBudget < budget {
		budget = cpuBudget
	}

	budget = int(float64(budget) * loadMultiplier(snap))

	return clamp(budget, g.opts.AbsoluteMin, g.opts.AbsoluteMax)
}

// InitialWorkers returns the cold-start worker count: a profile-specific
// fraction of usable cores, before any samples exist.
func (g *Governor) InitialWorkers(cores int) int {
	frac, ok := profileFraction[g.opts.Profile]
	if !ok {
		frac = profileFraction[ProfileModerate]
	}
	return clamp(int(float64(cores)*frac), g.opts.AbsoluteMin, g.opts.AbsoluteMax)
}

// loadMultiplier damps the budget as load average approaches and passes
// the core count.
func loadMultiplier(s Snapshot) float64 {
	if s.CPUCores <= 0 {
		return 1.0
	}
	ratio := s.Load1 / float64(s.CPUCores)
	switch {
	case ratio < 0.7:
		return 1.0
	case ratio < 1.0:
		return 0.75
	default:
		return 0.5
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
