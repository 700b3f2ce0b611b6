// Package governor samples system pressure and bounds how many
// concurrent retrieval and embedding operations may run. The governor's
// recommendation is advisory: callers size bounded worker pools with it.
package governor

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// Snapshot is a point-in-time view of system resources.
type Snapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	TotalMemory     uint64    `json:"totalMemory"`
	AvailableMemory uint64    `json:"availableMemory"`
	MemoryUsedPct   float64   `json:"memoryUsedPct"`
	CPUCores        int       `json:"cpuCores"`
	CPUUsagePct     float64   `json:"cpuUsagePct"`
	Load1           float64   `json:"load1"`
	Load5           float64   `json:"load5"`
	Load15          float64   `json:"load15"`
}

// Sampler produces resource snapshots. The proc-backed implementation is
// the production sampler; tests inject fixed snapshots.
type Sampler interface {
	Sample() (Snapshot, error)
}

// procSampler reads /proc. CPU usage is computed from the delta between
// consecutive /proc/stat reads, so the first sample reports zero usage.
type procSampler struct {
	prevTotal uint64
	prevIdle  uint64
}

// NewProcSampler returns the /proc-backed sampler.
func NewProcSampler() Sampler {
	return &procSampler{}
}

func (s *procSampler) Sample() (Snapshot, error) {
	snap := Snapshot{
		Timestamp: time.Now().UTC(),
		CPUCores:  runtime.NumCPU(),
	}

	total, available := readMeminfo()
	snap.TotalMemory = total
	snap.AvailableMemory = available
	if total > 0 {
		snap.MemoryUsedPct = 100 * float64(total-available) / float64(total)
	}

	snap.Load1, snap.Load5, snap.Load15 = readLoadavg()
	snap.CPUUsagePct = s.readCPUUsage()

	return snap, nil
}

// readMeminfo returns total and available memory in bytes. MemAvailable
// is preferred over MemFree: free memory undercounts reclaimable page
// cache. Missing fields read as zero.
func readMeminfo() (total, available uint64) {
	f, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, 0
	}
	defer f.Close()

	var memFree uint64
	haveAvailable := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total = kb * 1024
		case "MemAvailable:":
			available = kb * 1024
			haveAvailable = true
		case "MemFree:":
			memFree = kb * 1024
		}
	}

	if !haveAvailable {
		available = memFree
	}
	return total, available
}

func readLoadavg() (load1, load5, load15 float64) {
	data, err := os.ReadFile("/proc/loadavg")
	if err != nil {
		return 0, 0, 0
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return 0, 0, 0
	}
	load1, _ = strconv.ParseFloat(fields[0], 64)
	load5, _ = strconv.ParseFloat(fields[1], 64)
	load15, _ = strconv.ParseFloat(fields[2], 64)
	return load1, load5, load15
}

func (s *procSampler) readCPUUsage() float64 {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "cpu ") {
			continue
		}
		fields := strings.Fields(line)
		var total, idle uint64
		for i, f := range fields[1:] {
			v, err := strconv.ParseUint(f, 10, 64)
			if err != nil {
				continue
			}
			total += v
			// idle + iowait
			if i == 3 || i == 4 {
				idle += v
			}
		}

		dTotal := total - s.prevTotal
		dIdle := idle - s.prevIdle
		s.prevTotal = total
		s.prevIdle = idle

		if dTotal == 0 {
			return 0
		}
		return 100 * float64(dTotal-dIdle) / float64(dTotal)
	}
	return 0
}
