package bench

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oisee/gshare-model/pkg/result"
	"github.com/oisee/gshare-model/pkg/stimulus"
)

// Config holds random-campaign configuration.
type Config struct {
	Seeds    int    // Number of independent runs (default 16)
	Cycles   int    // Cycles per run (default 10000)
	Workers  int    // Parallel runs (defaults to NumCPU)
	BaseSeed uint64 // Seed of run 0; run i uses BaseSeed + i*golden
	HotPCs   int    // Working-set size passed to the generator
	ResetPct int    // Percent of random reset cycles
	Strict   bool   // Check outputs on every cycle, see Options.Strict
	Verbose  bool   // Print per-run progress
	Log      io.Writer
}

// DeviceFactory creates a fresh device for each run.
type DeviceFactory func() (Device, error)

const golden = 0x9E3779B97F4A7C15

// SeedFor returns the generator seed of run i.
func SeedFor(base uint64, i int) uint64 {
	return base + uint64(i)*golden
}

// Run executes cfg.Seeds random runs, each on its own device and model.
// Mismatches are recorded in the table; device errors stop the campaign.
// The returned Coverage merges the bins hit by every run.
func Run(ctx context.Context, cfg Config, newDevice DeviceFactory) (*result.Table, *Coverage, error) {
	if cfg.Seeds <= 0 {
		cfg.Seeds = 16
	}
	if cfg.Cycles <= 0 {
		cfg.Cycles = 10000
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Log == nil {
		cfg.Log = io.Discard
	}

	table := result.NewTable()
	cov := &Coverage{}
	startTime := time.Now()
	var mu sync.Mutex // guards cov and cfg.Log

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < cfg.Seeds; i++ {
		seed := SeedFor(cfg.BaseSeed, i)
		g.Go(func() error {
			run, runCov, err := runSeed(ctx, cfg, seed, newDevice)
			if err != nil {
				return err
			}
			table.Add(run)
			mu.Lock()
			defer mu.Unlock()
			cov.Merge(runCov)
			if cfg.Verbose {
				status := "ok"
				if !run.Passed() {
					status = "FAIL " + run.Failure
				}
				fmt.Fprintf(cfg.Log, "  seed %016x: %d cycles, coverage %.1f%% [%s] %s\n",
					seed, run.Cycles, run.Coverage, time.Since(startTime).Round(time.Millisecond), status)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return table, cov, err
	}
	return table, cov, nil
}

func runSeed(ctx context.Context, cfg Config, seed uint64, newDevice DeviceFactory) (result.Run, *Coverage, error) {
	dev, err := newDevice()
	if err != nil {
		return result.Run{}, nil, fmt.Errorf("bench: seed %016x: new device: %w", seed, err)
	}
	if c, ok := dev.(io.Closer); ok {
		defer c.Close()
	}

	h := NewHarness(dev, Options{Strict: cfg.Strict})
	if err := h.Reset(); err != nil {
		return result.Run{}, nil, fmt.Errorf("bench: seed %016x: %w", seed, err)
	}
	gen := stimulus.NewGenerator(stimulus.GenConfig{Seed: seed, HotPCs: cfg.HotPCs, ResetPct: cfg.ResetPct})
	runErr := h.Run(ctx, gen.Sequence(cfg.Cycles))

	st := h.Stats()
	run := result.Run{
		Seed:        seed,
		Cycles:      st.Cycles,
		Predictions: st.Predictions,
		Trainings:   st.Trainings,
		Corrections: st.Corrections,
		Resets:      st.Resets,
		Coverage:    h.Coverage().Summary().Percent,
	}
	var mm *MismatchError
	switch {
	case runErr == nil:
	case errors.As(runErr, &mm):
		run.Failure = mm.Error()
	default:
		return run, nil, fmt.Errorf("bench: seed %016x: %w", seed, runErr)
	}
	return run, h.Coverage(), nil
}
