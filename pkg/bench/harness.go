package bench

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/go-cmp/cmp"

	"github.com/oisee/gshare-model/pkg/counter"
	"github.com/oisee/gshare-model/pkg/predictor"
	"github.com/oisee/gshare-model/pkg/refmodel"
	"github.com/oisee/gshare-model/pkg/stimulus"
)

// Options configures a Harness.
type Options struct {
	Log     io.Writer // progress output; nil discards
	Verbose bool      // print every cycle
	Strict  bool      // also compare outputs when predict_valid is low; they must be zero
}

// Stats counts the cycle kinds a harness has driven.
type Stats struct {
	Cycles      int
	Predictions int
	Trainings   int
	Corrections int
	Resets      int
}

// Harness checks a Device against the reference model.
type Harness struct {
	dut   Device
	model *refmodel.Model
	cov   Coverage
	stats Stats
	opts  Options
}

// NewHarness creates a harness with a fresh reference model. Call Reset
// before the first cycle unless the device is known to be in reset.
func NewHarness(dut Device, opts Options) *Harness {
	if opts.Log == nil {
		opts.Log = io.Discard
	}
	return &Harness{dut: dut, model: refmodel.New(), opts: opts}
}

// Reset resets both the device and the model. Unlike a reset cycle it
// is not counted in Stats or Coverage.
func (h *Harness) Reset() error {
	if err := h.dut.Reset(); err != nil {
		return fmt.Errorf("bench: reset: %w", err)
	}
	h.model.Reset()
	return nil
}

// Restore starts both the device and the model from st instead of reset.
// The device must implement Restorer.
func (h *Harness) Restore(st predictor.State) error {
	r, ok := h.dut.(Restorer)
	if !ok {
		return fmt.Errorf("bench: restore: %T cannot load state", h.dut)
	}
	if err := r.Restore(st); err != nil {
		return fmt.Errorf("bench: restore: %w", err)
	}
	var table [128]uint8
	for i, c := range st.PHT {
		table[i] = uint8(c)
	}
	h.model.Restore(table, st.GHR)
	return nil
}

// Model exposes the reference model, e.g. to aim a prediction at a slot.
func (h *Harness) Model() *refmodel.Model { return h.model }

// Coverage returns the accumulated coverage.
func (h *Harness) Coverage() *Coverage { return &h.cov }

// Stats returns the cycle counters.
func (h *Harness) Stats() Stats { return h.stats }

// Cycle drives one cycle and compares outputs, then full state when the
// device can report it. Outputs of a cycle without a valid prediction are
// only checked in Strict mode.
func (h *Harness) Cycle(c stimulus.Cycle) error {
	idx := h.stats.Cycles
	exp := h.model.Expect(c)

	got, err := h.dut.Step(c)
	if err != nil {
		return fmt.Errorf("bench: cycle %d: %w", idx, err)
	}
	out := h.model.Commit(c, exp)
	h.record(c, out)

	if h.opts.Verbose {
		fmt.Fprintf(h.opts.Log, "  %6d  %-40s taken=%v hist=%02x ghr=%02x\n",
			idx, stimulus.FormatCycle(c), got.Taken, got.History, out.GHR)
	}

	if !c.Reset && (c.PredictValid || h.opts.Strict) {
		if got.Taken != exp.Taken {
			return &MismatchError{Cycle: idx, Label: c.Label, Field: "taken",
				Want: fmt.Sprint(exp.Taken), Got: fmt.Sprint(got.Taken)}
		}
		if got.History != exp.History {
			return &MismatchError{Cycle: idx, Label: c.Label, Field: "history",
				Want: fmt.Sprintf("%#04x", exp.History), Got: fmt.Sprintf("%#04x", got.History)}
		}
	}
	return h.compareState(idx, c.Label)
}

func (h *Harness) record(c stimulus.Cycle, out refmodel.Outcome) {
	h.stats.Cycles++
	h.cov.Record(out)
	switch {
	case c.Reset:
		h.stats.Resets++
		return
	case c.PredictValid:
		h.stats.Predictions++
	}
	if c.TrainValid {
		h.stats.Trainings++
		if c.TrainMispredicted {
			h.stats.Corrections++
		}
	}
}

func (h *Harness) compareState(idx int, label string) error {
	sr, ok := h.dut.(StateReader)
	if !ok {
		return nil
	}
	got, err := sr.Snapshot()
	if errors.Is(err, ErrNoState) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("bench: cycle %d: snapshot: %w", idx, err)
	}
	want := h.modelState()
	if want == got {
		return nil
	}
	return &MismatchError{Cycle: idx, Label: label, Field: "state", Got: cmp.Diff(want, got)}
}

func (h *Harness) modelState() predictor.State {
	table, ghr := h.model.State()
	var s predictor.State
	for i, v := range table {
		s.PHT[i] = counter.Counter(v)
	}
	s.GHR = ghr
	return s
}

// Run drives cycles until the first mismatch, device error or
// cancellation.
func (h *Harness) Run(ctx context.Context, cycles []stimulus.Cycle) error {
	for i, c := range cycles {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := h.Cycle(c); err != nil {
			return err
		}
	}
	return nil
}
