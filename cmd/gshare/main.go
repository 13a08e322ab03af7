package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/oisee/gshare-model/pkg/bench"
	"github.com/oisee/gshare-model/pkg/extdut"
	"github.com/oisee/gshare-model/pkg/predictor"
	"github.com/oisee/gshare-model/pkg/result"
	"github.com/oisee/gshare-model/pkg/stimulus"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "gshare",
		Short:         "gshare branch predictor reference model and differential checker",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// dut flags are shared by every command that drives a device
	var dutPath string
	var dutState bool

	newDevice := func() (bench.Device, error) {
		if dutPath == "" {
			return bench.NewLocal(), nil
		}
		return extdut.Start(extdut.Options{Path: dutPath, State: dutState})
	}
	addDUTFlags := func(cmd *cobra.Command) {
		cmd.Flags().StringVar(&dutPath, "dut", "", "External simulator speaking the line protocol (default: in-process model)")
		cmd.Flags().BoolVar(&dutState, "dut-state", false, "External simulator answers state requests")
	}

	// run command
	var cfg bench.Config
	var output string

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run random-stimulus campaigns against the reference model",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfg.Log = out

			fmt.Fprintf(out, "gshare differential run\n")
			fmt.Fprintf(out, "  Seeds: %d x %d cycles\n", cfg.Seeds, cfg.Cycles)
			fmt.Fprintf(out, "  Base seed: %#x\n", cfg.BaseSeed)
			if dutPath != "" {
				fmt.Fprintf(out, "  DUT: %s\n", dutPath)
			}
			fmt.Fprintln(out)

			table, cov, err := bench.Run(cmd.Context(), cfg, newDevice)
			if err != nil {
				return err
			}
			runs := table.Runs()
			printSummary(out, result.Summarize(runs))
			printCoverage(out, cov.Summary())

			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				if err := result.WriteJSON(f, runs); err != nil {
					return err
				}
				fmt.Fprintf(out, "Written to %s\n", output)
			}
			if failed := table.Failed(); len(failed) > 0 {
				for _, r := range failed {
					fmt.Fprintf(out, "  seed %#x: %s\n", r.Seed, r.Failure)
				}
				return fmt.Errorf("%d of %d runs failed", len(failed), len(runs))
			}
			return nil
		},
	}
	runCmd.Flags().IntVar(&cfg.Seeds, "seeds", 16, "Number of random runs")
	runCmd.Flags().IntVar(&cfg.Cycles, "cycles", 10000, "Cycles per run")
	runCmd.Flags().IntVar(&cfg.Workers, "workers", 0, "Number of workers (0 = NumCPU)")
	runCmd.Flags().Uint64Var(&cfg.BaseSeed, "seed", 1, "Base seed")
	runCmd.Flags().IntVar(&cfg.HotPCs, "hot-pcs", 8, "Program counter working set size")
	runCmd.Flags().IntVar(&cfg.ResetPct, "reset-pct", 0, "Percent of cycles asserting reset")
	runCmd.Flags().StringVar(&output, "output", "", "Output JSON report path")
	runCmd.Flags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "Verbose output")
	runCmd.Flags().BoolVar(&cfg.Strict, "strict", false, "Require zero outputs when predict_valid is low")
	addDUTFlags(runCmd)

	// scenario command
	var scenVerbose, scenStrict bool

	scenarioCmd := &cobra.Command{
		Use:   "scenario [names...]",
		Short: "Run directed scenarios (all when no name is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if len(args) == 0 {
				args = bench.ScenarioNames()
			}
			var scenarios []bench.Scenario
			for _, name := range args {
				s, ok := bench.Lookup(name)
				if !ok {
					return fmt.Errorf("unknown scenario %q (have %v)", name, bench.ScenarioNames())
				}
				scenarios = append(scenarios, s)
			}

			dev, err := newDevice()
			if err != nil {
				return err
			}
			if c, ok := dev.(io.Closer); ok {
				defer c.Close()
			}
			h := bench.NewHarness(dev, bench.Options{Log: out, Verbose: scenVerbose, Strict: scenStrict})
			for _, s := range scenarios {
				fmt.Fprintf(out, "%-20s %s ... ", s.Name, s.Doc)
				if scenVerbose {
					fmt.Fprintln(out)
				}
				if err := h.RunScenario(s); err != nil {
					fmt.Fprintln(out, "FAIL")
					return err
				}
				fmt.Fprintln(out, "ok")
			}
			fmt.Fprintln(out)
			printCoverage(out, h.Coverage().Summary())
			return nil
		},
	}
	scenarioCmd.Flags().BoolVarP(&scenVerbose, "verbose", "v", false, "Print every cycle")
	scenarioCmd.Flags().BoolVar(&scenStrict, "strict", false, "Require zero outputs when predict_valid is low")
	addDUTFlags(scenarioCmd)

	// gen command
	var genCycles, genHot, genReset int
	var genSeed uint64
	var genOutput string

	genCmd := &cobra.Command{
		Use:   "gen",
		Short: "Write a random stimulus trace",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := stimulus.NewGenerator(stimulus.GenConfig{Seed: genSeed, HotPCs: genHot, ResetPct: genReset})
			cycles := gen.Sequence(genCycles)
			if genOutput == "" {
				return stimulus.WriteTrace(cmd.OutOrStdout(), cycles)
			}
			f, err := os.Create(genOutput)
			if err != nil {
				return err
			}
			defer f.Close()
			if err := stimulus.WriteTrace(f, cycles); err != nil {
				return err
			}
			return f.Close()
		},
	}
	genCmd.Flags().IntVar(&genCycles, "cycles", 1000, "Number of cycles")
	genCmd.Flags().Uint64Var(&genSeed, "seed", 1, "Generator seed")
	genCmd.Flags().IntVar(&genHot, "hot-pcs", 8, "Program counter working set size")
	genCmd.Flags().IntVar(&genReset, "reset-pct", 0, "Percent of cycles asserting reset")
	genCmd.Flags().StringVarP(&genOutput, "output", "o", "", "Output trace file (default stdout)")

	// replay command
	var loadState, saveState string
	var replayVerbose, replayStrict bool

	replayCmd := &cobra.Command{
		Use:   "replay [trace]",
		Short: "Replay a trace file through the model and check it cycle by cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			cycles, err := stimulus.ReadTrace(f)
			if err != nil {
				return err
			}

			dev, err := newDevice()
			if err != nil {
				return err
			}
			if c, ok := dev.(io.Closer); ok {
				defer c.Close()
			}
			h := bench.NewHarness(dev, bench.Options{Log: out, Verbose: replayVerbose, Strict: replayStrict})
			if loadState != "" {
				st, err := result.LoadState(loadState)
				if err != nil {
					return err
				}
				if err := h.Restore(*st); err != nil {
					return err
				}
			} else if err := h.Reset(); err != nil {
				return err
			}
			if err := h.Run(cmd.Context(), cycles); err != nil {
				return err
			}
			st := h.Stats()
			fmt.Fprintf(out, "Replayed %d cycles: %d predictions, %d trainings, %d corrections, %d resets\n",
				st.Cycles, st.Predictions, st.Trainings, st.Corrections, st.Resets)

			if saveState != "" {
				sr, ok := dev.(bench.StateReader)
				if !ok {
					return fmt.Errorf("--save-state: %T does not report state", dev)
				}
				snap, err := sr.Snapshot()
				if err != nil {
					return err
				}
				if err := result.SaveState(saveState, &snap); err != nil {
					return err
				}
				fmt.Fprintf(out, "State written to %s\n", saveState)
			}
			return nil
		},
	}
	replayCmd.Flags().StringVar(&loadState, "load-state", "", "Start from a saved state instead of reset")
	replayCmd.Flags().StringVar(&saveState, "save-state", "", "Save the final state")
	replayCmd.Flags().BoolVarP(&replayVerbose, "verbose", "v", false, "Print every cycle")
	replayCmd.Flags().BoolVar(&replayStrict, "strict", false, "Require zero outputs when predict_valid is low")
	addDUTFlags(replayCmd)

	// state command
	stateCmd := &cobra.Command{
		Use:   "state [file]",
		Short: "Print a saved predictor state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := result.LoadState(args[0])
			if err != nil {
				return err
			}
			printState(cmd.OutOrStdout(), st)
			return nil
		},
	}

	// report command
	reportCmd := &cobra.Command{
		Use:   "report [report.json]",
		Short: "Summarize a JSON run report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			runs, err := result.ReadJSON(f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			printSummary(out, result.Summarize(runs))
			for _, r := range runs {
				if !r.Passed() {
					fmt.Fprintf(out, "  seed %#x: %s\n", r.Seed, r.Failure)
				}
			}
			return nil
		},
	}

	// serve command
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the model over the line protocol on stdin/stdout",
		RunE: func(cmd *cobra.Command, args []string) error {
			return extdut.Serve(cmd.InOrStdin(), cmd.OutOrStdout(), predictor.New())
		},
	}

	rootCmd.AddCommand(runCmd, scenarioCmd, genCmd, replayCmd, stateCmd, reportCmd, serveCmd)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		var mm *bench.MismatchError
		if errors.As(err, &mm) {
			fmt.Fprintf(os.Stderr, "MISMATCH at cycle %d: %v\n", mm.Cycle, err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func printSummary(out io.Writer, s result.Summary) {
	fmt.Fprintf(out, "\n%d runs, %d failed\n", s.Runs, s.Failed)
	fmt.Fprintf(out, "  Cycles: %d (predictions %d, trainings %d, corrections %d, resets %d)\n",
		s.Cycles, s.Predictions, s.Trainings, s.Corrections, s.Resets)
	fmt.Fprintf(out, "  Min coverage: %.1f%%\n", s.MinCoverage)
}

func printCoverage(out io.Writer, sum bench.CoverageSummary) {
	fmt.Fprintf(out, "Coverage: %.1f%% (transitions %d/8, paths %d/3, slots %d/128)\n",
		sum.Percent, sum.Transitions, sum.Paths, sum.Slots)
}

func printState(out io.Writer, st *predictor.State) {
	fmt.Fprintf(out, "GHR: %#04x (%07b)\n", st.GHR, st.GHR)
	levels := st.Levels()
	fmt.Fprintf(out, "PHT: SNT %d, WNT %d, WT %d, ST %d\n", levels[0], levels[1], levels[2], levels[3])
	for row := 0; row < len(st.PHT); row += 16 {
		fmt.Fprintf(out, "  %02x:", row)
		for _, c := range st.PHT[row : row+16] {
			fmt.Fprintf(out, " %-3s", c)
		}
		fmt.Fprintln(out)
	}
}
