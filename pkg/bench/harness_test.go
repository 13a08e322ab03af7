package bench_test

import (
	"bytes"
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/oisee/gshare-model/pkg/bench"
	"github.com/oisee/gshare-model/pkg/counter"
	"github.com/oisee/gshare-model/pkg/predictor"
	"github.com/oisee/gshare-model/pkg/stimulus"
)

// speculativeFirst gets the GHR priority backwards: a same-cycle
// prediction beats the misprediction correction.
type speculativeFirst struct {
	p *predictor.Predictor
}

func (d *speculativeFirst) Reset() error { d.p.Reset(); return nil }

func (d *speculativeFirst) Step(c stimulus.Cycle) (predictor.Response, error) {
	if c.Reset {
		d.p.Reset()
		return predictor.Response{}, nil
	}
	tr := c.Train()
	if c.PredictValid {
		tr.Mispredicted = false
	}
	return d.p.Step(c.Predict(), tr), nil
}

func (d *speculativeFirst) Snapshot() (predictor.State, error) { return d.p.Snapshot(), nil }

// writeThrough commits training before answering the prediction.
type writeThrough struct {
	p *predictor.Predictor
}

func (d *writeThrough) Reset() error { d.p.Reset(); return nil }

func (d *writeThrough) Step(c stimulus.Cycle) (predictor.Response, error) {
	if c.Reset {
		d.p.Reset()
		return predictor.Response{}, nil
	}
	ghr := d.p.GHR()
	d.p.Step(predictor.PredictRequest{}, c.Train())
	st := d.p.Snapshot()
	st.GHR = ghr
	d.p.Restore(st)
	return d.p.Step(c.Predict(), predictor.TrainRequest{}), nil
}

// corruptState answers correctly but flips one PHT slot afterwards.
type corruptState struct {
	*bench.Local
	after int
	n     int
}

func (d *corruptState) Step(c stimulus.Cycle) (predictor.Response, error) {
	r, err := d.Local.Step(c)
	d.n++
	if d.n == d.after {
		st := d.P.Snapshot()
		st.PHT[7] = st.PHT[7].Next(st.PHT[7] < counter.WeaklyTaken)
		d.P.Restore(st)
	}
	return r, err
}

// staleOutputs keeps driving the last prediction while predict_valid is low.
type staleOutputs struct {
	*bench.Local
	last predictor.Response
}

func (d *staleOutputs) Step(c stimulus.Cycle) (predictor.Response, error) {
	r, err := d.Local.Step(c)
	if c.PredictValid {
		d.last = r
	}
	return d.last, err
}

type failing struct{}

var errLink = errors.New("link down")

func (d *failing) Reset() error { return nil }

func (d *failing) Step(stimulus.Cycle) (predictor.Response, error) {
	return predictor.Response{}, errLink
}

var _ = Describe("Harness", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("directed scenarios", func() {
		for _, s := range bench.Scenarios() {
			s := s
			It("passes "+s.Name, func() {
				h := bench.NewHarness(bench.NewLocal(), bench.Options{})
				Expect(h.RunScenario(s)).To(Succeed())
			})
		}

		It("covers every slot toggle in the sweep", func() {
			h := bench.NewHarness(bench.NewLocal(), bench.Options{})
			Expect(h.RunScenario(bench.Sweep())).To(Succeed())
			sum := h.Coverage().Summary()
			Expect(sum.Slots).To(Equal(128))
			Expect(sum.Resets).To(Equal(1))
		})

		It("hits every counter transition and history path across the suite", func() {
			h := bench.NewHarness(bench.NewLocal(), bench.Options{})
			for _, s := range bench.Scenarios() {
				Expect(h.RunScenario(s)).To(Succeed())
			}
			sum := h.Coverage().Summary()
			Expect(sum.Transitions).To(Equal(8))
			Expect(sum.Paths).To(Equal(3))
			Expect(sum.Percent).To(BeNumerically("==", 100))
		})

		It("looks scenarios up by name", func() {
			Expect(bench.ScenarioNames()).To(ContainElements("toggle", "sweep", "functional", "corrective-rollback"))
			s, ok := bench.Lookup("functional")
			Expect(ok).To(BeTrue())
			Expect(s.Steps).NotTo(BeEmpty())
			_, ok = bench.Lookup("nope")
			Expect(ok).To(BeFalse())
		})

		It("fails a self-check that contradicts the model", func() {
			s := bench.ColdSlot()
			wrong := false
			s.Steps[len(s.Steps)-1].Want = &wrong
			h := bench.NewHarness(bench.NewLocal(), bench.Options{})
			err := h.RunScenario(s)
			var mm *bench.MismatchError
			Expect(errors.As(err, &mm)).To(BeTrue())
			Expect(mm.Field).To(Equal("check"))
		})
	})

	Describe("fault detection", func() {
		It("catches a history update with the wrong priority", func() {
			h := bench.NewHarness(&speculativeFirst{p: predictor.New()}, bench.Options{})
			err := h.RunScenario(bench.Toggle())
			var mm *bench.MismatchError
			Expect(errors.As(err, &mm)).To(BeTrue())
			Expect(mm.Label).To(Equal("mispredict with predict_valid high"))
			Expect(mm.Field).To(Equal("state"))
		})

		It("catches a prediction that observes the same-step write", func() {
			h := bench.NewHarness(&writeThrough{p: predictor.New()}, bench.Options{})
			Expect(h.Reset()).To(Succeed())
			err := h.Run(ctx, []stimulus.Cycle{
				{PredictValid: true, PredictPC: 0x21, TrainValid: true, TrainTaken: true, TrainPC: 0x21, Label: "same slot"},
			})
			var mm *bench.MismatchError
			Expect(errors.As(err, &mm)).To(BeTrue())
			Expect(mm.Field).To(Equal("taken"))
			Expect(mm.Error()).To(ContainSubstring("same slot"))
		})

		It("catches silent state corruption", func() {
			h := bench.NewHarness(&corruptState{Local: bench.NewLocal(), after: 3}, bench.Options{})
			cycles := stimulus.NewGenerator(stimulus.GenConfig{Seed: 5}).Sequence(10)
			err := h.Run(ctx, cycles)
			var mm *bench.MismatchError
			Expect(errors.As(err, &mm)).To(BeTrue())
			Expect(mm.Cycle).To(Equal(2))
			Expect(mm.Error()).To(ContainSubstring("state mismatch"))
		})

		It("wraps device errors", func() {
			h := bench.NewHarness(&failing{}, bench.Options{})
			err := h.Cycle(stimulus.Cycle{PredictValid: true})
			Expect(err).To(MatchError(errLink))
			var mm *bench.MismatchError
			Expect(errors.As(err, &mm)).To(BeFalse())
		})
	})

	Describe("strict output checks", func() {
		cycles := []stimulus.Cycle{
			{TrainValid: true, TrainTaken: true, Label: "train slot 0"},
			{PredictValid: true, Label: "predict slot 0"},
			{Label: "idle"},
		}

		It("ignores outputs without a valid prediction by default", func() {
			h := bench.NewHarness(&staleOutputs{Local: bench.NewLocal()}, bench.Options{})
			Expect(h.Run(ctx, cycles)).To(Succeed())
		})

		It("requires zero outputs without a valid prediction", func() {
			h := bench.NewHarness(&staleOutputs{Local: bench.NewLocal()}, bench.Options{Strict: true})
			err := h.Run(ctx, cycles)
			var mm *bench.MismatchError
			Expect(errors.As(err, &mm)).To(BeTrue())
			Expect(mm.Cycle).To(Equal(2))
			Expect(mm.Label).To(Equal("idle"))
			Expect(mm.Field).To(Equal("taken"))
		})

		It("passes the scenarios against the local predictor", func() {
			h := bench.NewHarness(bench.NewLocal(), bench.Options{Strict: true})
			for _, s := range bench.Scenarios() {
				Expect(h.RunScenario(s)).To(Succeed())
			}
		})
	})

	Describe("reset accounting", func() {
		It("counts reset cycles but not the setup reset", func() {
			h := bench.NewHarness(bench.NewLocal(), bench.Options{})
			Expect(h.Reset()).To(Succeed())
			Expect(h.Stats().Resets).To(Equal(0))
			Expect(h.Coverage().Summary().Resets).To(Equal(0))

			Expect(h.Run(ctx, []stimulus.Cycle{{Reset: true}, {PredictValid: true}})).To(Succeed())
			Expect(h.Stats().Resets).To(Equal(1))
			Expect(h.Coverage().Summary().Resets).To(Equal(1))
		})
	})

	Describe("coverage merge", func() {
		It("unions the bins of separate harnesses", func() {
			sweep := bench.NewHarness(bench.NewLocal(), bench.Options{})
			Expect(sweep.RunScenario(bench.Sweep())).To(Succeed())
			functional := bench.NewHarness(bench.NewLocal(), bench.Options{})
			Expect(functional.RunScenario(bench.Functional())).To(Succeed())

			var merged bench.Coverage
			merged.Merge(sweep.Coverage())
			merged.Merge(functional.Coverage())
			sum := merged.Summary()
			Expect(sum.Slots).To(Equal(128))
			Expect(sum.Resets).To(Equal(2))
			Expect(sum.Transitions).To(Equal(functional.Coverage().Summary().Transitions))
			Expect(sum.Percent).To(BeNumerically(">=", sweep.Coverage().Summary().Percent))
			Expect(merged.Transitions[counter.WeaklyNotTaken][1]).To(Equal(
				sweep.Coverage().Transitions[counter.WeaklyNotTaken][1] +
					functional.Coverage().Transitions[counter.WeaklyNotTaken][1]))
		})
	})

	Describe("restored state", func() {
		It("starts device and model from the same checkpoint", func() {
			var st predictor.State
			for i := range st.PHT {
				st.PHT[i] = counter.WeaklyNotTaken
			}
			st.PHT[0x10] = counter.StronglyTaken
			st.GHR = 0x05

			local := bench.NewLocal()
			h := bench.NewHarness(local, bench.Options{})
			Expect(h.Restore(st)).To(Succeed())
			Expect(h.Model().GHR()).To(Equal(uint8(0x05)))
			Expect(h.Run(ctx, []stimulus.Cycle{
				{PredictValid: true, PredictPC: 0x15},
				{TrainValid: true, TrainHistory: 0x05, TrainPC: 0x15},
			})).To(Succeed())
			Expect(local.P.Counter(0x10)).To(Equal(counter.WeaklyTaken))
			Expect(local.P.GHR()).To(Equal(uint8(0x0B)))
		})

		It("rejects devices that cannot load state", func() {
			h := bench.NewHarness(&failing{}, bench.Options{})
			Expect(h.Restore(predictor.State{})).To(MatchError(ContainSubstring("cannot load state")))
		})
	})

	Describe("verbose output", func() {
		It("prints one line per cycle", func() {
			var buf bytes.Buffer
			h := bench.NewHarness(bench.NewLocal(), bench.Options{Log: &buf, Verbose: true})
			Expect(h.RunScenario(bench.ColdSlot())).To(Succeed())
			Expect(bytes.Count(buf.Bytes(), []byte("\n"))).To(Equal(3))
			Expect(buf.String()).To(ContainSubstring("reset # reset"))
		})
	})
})

var _ = Describe("Campaign", func() {
	It("passes random runs against the local predictor", func() {
		var buf bytes.Buffer
		table, _, err := bench.Run(context.Background(), bench.Config{
			Seeds: 6, Cycles: 3000, Workers: 3, BaseSeed: 1, ResetPct: 1, Verbose: true, Log: &buf,
		}, func() (bench.Device, error) { return bench.NewLocal(), nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(table.Len()).To(Equal(6))
		Expect(table.Failed()).To(BeEmpty())
		for _, r := range table.Runs() {
			Expect(r.Cycles).To(Equal(3000))
			Expect(r.Predictions).To(BeNumerically(">", 0))
			Expect(r.Corrections).To(BeNumerically(">", 0))
		}
		Expect(bytes.Count(buf.Bytes(), []byte("seed "))).To(Equal(6))
	})

	It("merges coverage across runs", func() {
		table, cov, err := bench.Run(context.Background(), bench.Config{Seeds: 4, Cycles: 2000, Workers: 2, BaseSeed: 7},
			func() (bench.Device, error) { return bench.NewLocal(), nil })
		Expect(err).NotTo(HaveOccurred())
		sum := cov.Summary()
		Expect(sum.Paths).To(Equal(3))
		Expect(sum.Resets).To(Equal(0))
		for _, r := range table.Runs() {
			Expect(r.Resets).To(Equal(0))
			Expect(sum.Percent).To(BeNumerically(">=", r.Coverage))
		}
	})

	It("records mismatches per run without aborting", func() {
		table, _, err := bench.Run(context.Background(), bench.Config{Seeds: 3, Cycles: 500, Workers: 2},
			func() (bench.Device, error) { return &speculativeFirst{p: predictor.New()}, nil })
		Expect(err).NotTo(HaveOccurred())
		Expect(table.Failed()).To(HaveLen(3))
	})

	It("stops on device errors", func() {
		_, _, err := bench.Run(context.Background(), bench.Config{Seeds: 4, Cycles: 10, Workers: 2},
			func() (bench.Device, error) { return &failing{}, nil })
		Expect(err).To(MatchError(errLink))
	})

	It("is deterministic per base seed", func() {
		run := func() []float64 {
			table, _, err := bench.Run(context.Background(), bench.Config{Seeds: 3, Cycles: 800, BaseSeed: 99},
				func() (bench.Device, error) { return bench.NewLocal(), nil })
			Expect(err).NotTo(HaveOccurred())
			var cov []float64
			for _, r := range table.Runs() {
				cov = append(cov, r.Coverage)
			}
			return cov
		}
		Expect(run()).To(Equal(run()))
		Expect(bench.SeedFor(99, 0)).To(Equal(uint64(99)))
	})
})
