package governor

// PressureLevel classifies resource headroom.
type PressureLevel string

const (
	PressureNominal     PressureLevel = "nominal"
	PressureElevated    PressureLevel = "elevated"
	PressureCritical    PressureLevel = "critical"
	PressureOOMImminent PressureLevel = "oom_imminent"
)

var pressureRank = map[PressureLevel]int{
	PressureNominal:     0,
	PressureElevated:    1,
	PressureCritical:    2,
	PressureOOMImminent: 3,
}

// minAvailableBytes triggers oom_imminent regardless of percentages.
const minAvailableBytes = 512 << 20

// MemoryLevel classifies memory pressure from used percentage and
// absolute available bytes.
func MemoryLevel(usedPct float64, availableBytes uint64) PressureLevel {
	if availableBytes > 0 && availableBytes < minAvailableBytes {
		return PressureOOMImminent
	}
	switch {
	case usedPct < 70:
		return PressureNominal
	case usedPct < 85:
		return PressureElevated
	case usedPct < 95:
		return PressureCritical
	default:
		return PressureOOMImminent
	}
}

// CPULevel classifies CPU pressure. CPU alone never reaches oom_imminent.
func CPULevel(usagePct float64) PressureLevel {
	switch {
	case usagePct < 70:
		return PressureNominal
	case usagePct < 85:
		return PressureElevated
	default:
		return PressureCritical
	}
}

// Worse returns the higher-pressure of two levels.
func Worse(a, b PressureLevel) PressureLevel {
	if pressureRank[a] >= pressureRank[b] {
		return a
	}
	return b
}

// LevelFor derives the overall pressure level for a snapshot.
func LevelFor(s Snapshot) PressureLevel {
	return Worse(MemoryLevel(s.MemoryUsedPct, s.AvailableMemory), CPULevel(s.CPUUsagePct))
}
