package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ckr/internal/governor"
)

var governorSamples int

var governorCmd = &cobra.Command{
	Use:   "governor",
	Short: "Show resource pressure and the recommended worker budget",
	Long: `Governor samples system resources and prints the pressure level and
the advisory worker budget the retrieval pipeline would use.

CPU usage is delta-based, so at least two samples are taken.`,
	Run: runGovernor,
}

func init() {
	governorCmd.Flags().IntVar(&governorSamples, "samples", 2, "Number of samples to take")
	rootCmd.AddCommand(governorCmd)
}

func runGovernor(cmd *cobra.Command, args []string) {
	logger := newLogger()
	cfg := loadConfig()

	gov := governor.New(governor.Options{
		Profile:           governor.Profile(cfg.Governor.Profile),
		TargetUtilization: cfg.Governor.TargetUtilization,
		AbsoluteMin:       cfg.Governor.AbsoluteMin,
		AbsoluteMax:       cfg.Governor.AbsoluteMax,
		HistorySize:       cfg.Governor.HistorySize,
	}, governor.NewProcSampler(), logger)

	samples := governorSamples
	if samples < 2 {
		samples = 2
	}
	var snap governor.Snapshot
	for i := 0; i < samples; i++ {
		var err error
		snap, err = gov.Sample()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error sampling resources: %v\n", err)
			os.Exit(1)
		}
		if i < samples-1 {
			interval := time.Duration(cfg.Governor.SampleIntervalMs) * time.Millisecond
			if interval <= 0 {
				interval = 200 * time.Millisecond
			}
			time.Sleep(interval)
		}
	}

	report := struct {
		Snapshot           governor.Snapshot      `json:"snapshot"`
		Pressure           governor.PressureLevel `json:"pressure"`
		RecommendedWorkers int                    `json:"recommendedWorkers"`
		InitialWorkers     int                    `json:"initialWorkers"`
	}{
		Snapshot:           snap,
		Pressure:           gov.Pressure(),
		RecommendedWorkers: gov.RecommendedWorkers(),
		InitialWorkers:     gov.InitialWorkers(snap.CPUCores),
	}

	if formatFlag == "human" {
		fmt.Printf("memory: %.1f%% used, %.1f GB available\n",
			snap.MemoryUsedPct, float64(snap.AvailableMemory)/float64(1<<30))
		fmt.Printf("cpu: %.1f%% across %d cores, load %.2f/%.2f/%.2f\n",
			snap.CPUUsagePct, snap.CPUCores, snap.Load1, snap.Load5, snap.Load15)
		fmt.Printf("pressure: %s\n", report.Pressure)
		fmt.Printf("workers: %d recommended, %d initial (%s profile)\n",
			report.RecommendedWorkers, report.InitialWorkers, cfg.Governor.Profile)
		return
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding report: %v\n", err)
		os.Exit(1)
	}
}
