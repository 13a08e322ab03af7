package bench

import (
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/oisee/gshare-model/pkg/stimulus"
)

// Step is one directed cycle. When Aim is set the predict PC is chosen so
// the lookup lands on Slot under the current history. Want and WantGHR
// are extra self-checks on top of the model comparison.
type Step struct {
	stimulus.Cycle
	Aim     bool
	Slot    uint8
	Want    *bool  // expected predict_taken
	WantGHR *uint8 // expected history after the edge
}

// Scenario is a named directed test.
type Scenario struct {
	Name  string
	Doc   string
	Steps []Step
}

// RunScenario drives every step of s.
func (h *Harness) RunScenario(s Scenario) error {
	for _, st := range s.Steps {
		c := st.Cycle
		if st.Aim {
			c.PredictPC = (h.model.GHR() ^ st.Slot) & 0x7F
		}
		if c.Label == "" {
			c.Label = s.Name
		}
		exp := h.model.Expect(c)
		if err := h.Cycle(c); err != nil {
			return fmt.Errorf("%s: %w", s.Name, err)
		}
		idx := h.stats.Cycles - 1
		if st.Want != nil && exp.Taken != *st.Want {
			return fmt.Errorf("%s: %w", s.Name, &MismatchError{Cycle: idx, Label: c.Label, Field: "check",
				Want: fmt.Sprintf("taken=%v", *st.Want), Got: fmt.Sprintf("taken=%v", exp.Taken)})
		}
		if st.WantGHR != nil && h.model.GHR() != *st.WantGHR {
			return fmt.Errorf("%s: %w", s.Name, &MismatchError{Cycle: idx, Label: c.Label, Field: "check",
				Want: fmt.Sprintf("ghr=%#04x", *st.WantGHR), Got: fmt.Sprintf("ghr=%#04x", h.model.GHR())})
		}
	}
	return nil
}

func cyc(label string, pv int, ppc uint8, tv, tt, tm int, th, tpc uint8) Step {
	return Step{Cycle: stimulus.Cycle{
		Label:             label,
		PredictValid:      pv == 1,
		PredictPC:         ppc,
		TrainValid:        tv == 1,
		TrainTaken:        tt == 1,
		TrainMispredicted: tm == 1,
		TrainHistory:      th,
		TrainPC:           tpc,
	}}
}

func reset(label string) Step {
	return Step{Cycle: stimulus.Cycle{Reset: true, Label: label}}
}

// Toggle drives wide buses to all-ones and back and exercises both
// misprediction outcomes with and without a same-cycle prediction.
func Toggle() Scenario {
	return Scenario{Name: "toggle", Doc: "bus toggling and misprediction priority", Steps: []Step{
		reset("reset"),
		cyc("predict_pc all ones", 1, 0x7F, 0, 0, 0, 0x00, 0x00),
		cyc("predict_pc return to zeros", 1, 0x00, 0, 0, 0, 0x7F, 0x7F),
		cyc("train_index all ones with mispredict", 0, 0x00, 1, 1, 1, 0x3F, 0x40),
		cyc("train_index back to zero with mispredict", 0, 0x00, 1, 0, 1, 0x00, 0x00),
		cyc("mispredict with predict_valid high", 1, 0x10, 1, 1, 1, 0x2A, 0x55),
		cyc("mispredict with predict_valid low", 0, 0x08, 1, 0, 1, 0x15, 0x12),
		cyc("PHT[0] SNT->WNT", 0, 0x00, 1, 1, 0, 0x00, 0x00),
		cyc("PHT[0] WNT->WT", 0, 0x00, 1, 1, 0, 0x00, 0x00),
		cyc("PHT[0] WT->WNT", 0, 0x00, 1, 0, 0, 0x00, 0x00),
		cyc("mispredict flag without training", 0, 0x2A, 0, 0, 1, 0x15, 0x3B),
		cyc("mispredict flag with predict_valid", 1, 0x35, 0, 0, 1, 0x1E, 0x21),
	}}
}

// Sweep moves every PHT slot WNT->WT->WNT.
func Sweep() Scenario {
	steps := []Step{reset("reset")}
	for idx := 0; idx < 128; idx++ {
		steps = append(steps,
			cyc(fmt.Sprintf("PHT sweep WNT->WT idx=%d", idx), 0, 0, 1, 1, 0, 0, uint8(idx)),
			cyc(fmt.Sprintf("PHT sweep WT->WNT idx=%d", idx), 0, 0, 1, 0, 0, 0, uint8(idx)),
		)
	}
	return Scenario{Name: "sweep", Doc: "toggle both counter bits of every slot", Steps: steps}
}

// Functional walks one slot through every counter transition and checks
// predictions before and after misprediction recovery.
func Functional() Scenario {
	aimed := Step{Cycle: stimulus.Cycle{Label: "predict taken when counter >= WT", PredictValid: true},
		Aim: true, Slot: 0x33, Want: lo.ToPtr(true)}
	return Scenario{Name: "functional", Doc: "saturating walk on slot 0x33", Steps: []Step{
		reset("reset"),
		cyc("idle no predict", 0, 0x00, 0, 0, 0, 0x00, 0x00),
		cyc("initial predict without training", 1, 0x0F, 0, 0, 0, 0x00, 0x00),
		cyc("mispredicted training updates PHT and GHR", 1, 0x20, 1, 1, 1, 0x55, 0x12),
		cyc("predict using updated GHR", 1, 0x7F, 0, 0, 0, 0x00, 0x00),
		cyc("WNT->WT with predict_valid high", 1, 0x01, 1, 1, 0, 0x0F, 0x3C),
		cyc("WT->ST training", 0, 0x10, 1, 1, 0, 0x1C, 0x2F),
		cyc("ST hold on taken", 0, 0x10, 1, 1, 0, 0x00, 0x33),
		aimed,
		cyc("ST->WT on not taken", 1, 0x40, 1, 0, 0, 0x7F, 0x4C),
		cyc("WT->WNT on not taken", 0, 0x02, 1, 0, 0, 0x55, 0x66),
		cyc("WNT->SNT on not taken", 1, 0x00, 1, 0, 0, 0x01, 0x32),
		cyc("SNT hold on not taken", 0, 0x00, 1, 0, 0, 0x7E, 0x4D),
		cyc("SNT->WNT on taken", 1, 0x15, 1, 1, 0, 0x08, 0x3B),
	}}
}

// ColdSlot trains slot 0 once and expects the next lookup to predict taken.
func ColdSlot() Scenario {
	s := cyc("predict slot 0", 1, 0, 0, 0, 0, 0, 0)
	s.Want = lo.ToPtr(true)
	return Scenario{Name: "cold-slot", Doc: "one taken training flips WNT to WT", Steps: []Step{
		reset("reset"),
		cyc("train slot 0 taken", 0, 0, 1, 1, 0, 0, 0),
		s,
	}}
}

// FourNotTaken saturates a slot at ST and trains it down four times.
func FourNotTaken() Scenario {
	steps := []Step{
		reset("reset"),
		cyc("WNT->WT", 0, 0, 1, 1, 0, 0x11, 0x22),
		cyc("WT->ST", 0, 0, 1, 1, 0, 0x22, 0x11),
	}
	for i := 0; i < 4; i++ {
		steps = append(steps, cyc(fmt.Sprintf("not taken %d", i+1), 0, 0, 1, 0, 0, uint8(i), 0x33^uint8(i)))
	}
	last := Step{Cycle: stimulus.Cycle{Label: "slot 0x33 predicts not taken", PredictValid: true},
		Aim: true, Slot: 0x33, Want: lo.ToPtr(false)}
	return Scenario{Name: "four-not-taken", Doc: "ST decays to SNT and saturates", Steps: append(steps, last)}
}

// SpeculativeGrowth issues predictions only; every reported history must
// equal the shift of earlier predictions.
func SpeculativeGrowth() Scenario {
	steps := []Step{
		reset("reset"),
		cyc("bias slot 0x05", 0, 0, 1, 1, 0, 0, 0x05),
		cyc("bias slot 0x04", 0, 0, 1, 1, 0, 0, 0x04),
	}
	for i := 0; i < 8; i++ {
		steps = append(steps, cyc(fmt.Sprintf("predict %d", i), 1, 0x05, 0, 0, 0, 0, 0))
	}
	return Scenario{Name: "speculative-growth", Doc: "predict-only steps extend history", Steps: steps}
}

// CorrectiveRollback builds speculative history, then a misprediction
// replaces it from the supplied snapshot.
func CorrectiveRollback() Scenario {
	steps := []Step{reset("reset")}
	for i := 0; i < 4; i++ {
		steps = append(steps, cyc(fmt.Sprintf("speculate %d", i), 1, uint8(0x10+i), 0, 0, 0, 0, 0))
	}
	fix := cyc("mispredict rollback", 1, 0x01, 1, 1, 1, 0x4A, 0x20)
	fix.WantGHR = lo.ToPtr(uint8((0x4A&0x3F)<<1 | 1))
	return Scenario{Name: "corrective-rollback", Doc: "misprediction replaces speculative history", Steps: append(steps, fix)}
}

var registry = map[string]func() Scenario{
	"toggle":              Toggle,
	"sweep":               Sweep,
	"functional":          Functional,
	"cold-slot":           ColdSlot,
	"four-not-taken":      FourNotTaken,
	"speculative-growth":  SpeculativeGrowth,
	"corrective-rollback": CorrectiveRollback,
}

// ScenarioNames lists the registered scenarios in sorted order.
func ScenarioNames() []string {
	names := lo.Keys(registry)
	sort.Strings(names)
	return names
}

// Lookup returns a registered scenario by name.
func Lookup(name string) (Scenario, bool) {
	fn, ok := registry[name]
	if !ok {
		return Scenario{}, false
	}
	return fn(), true
}

// Scenarios returns every registered scenario.
func Scenarios() []Scenario {
	return lo.Map(ScenarioNames(), func(n string, _ int) Scenario { return registry[n]() })
}
