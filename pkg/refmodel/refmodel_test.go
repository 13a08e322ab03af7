package refmodel

import (
	"testing"

	"github.com/oisee/gshare-model/pkg/stimulus"
)

func TestResetState(t *testing.T) {
	m := New()
	m.Step(stimulus.Cycle{TrainValid: true, TrainTaken: true, TrainMispredicted: true, TrainHistory: 0x12, TrainPC: 3})
	m.Step(stimulus.Cycle{Reset: true})
	pht, ghr := m.State()
	if ghr != 0 {
		t.Fatalf("ghr = %#x", ghr)
	}
	for i, c := range pht {
		if c != wnt {
			t.Fatalf("slot %d = %d", i, c)
		}
	}
}

func TestSaturatingWalk(t *testing.T) {
	m := New()
	walk := []struct {
		taken bool
		want  uint8
	}{
		{true, wt}, {true, st}, {true, st}, {false, wt}, {false, wnt}, {false, snt}, {false, snt}, {true, wnt},
	}
	for i, w := range walk {
		out := m.Step(stimulus.Cycle{TrainValid: true, TrainTaken: w.taken, TrainPC: 0x33})
		if !out.Trained || out.Slot != 0x33 || out.After != w.want {
			t.Fatalf("step %d: %+v, want after=%d", i, out, w.want)
		}
	}
}

func TestHistoryPaths(t *testing.T) {
	m := New()
	out := m.Step(stimulus.Cycle{PredictValid: true, PredictPC: 1})
	if out.Path != PathSpeculative || out.GHR != 0 {
		t.Fatalf("speculative: %+v", out)
	}
	out = m.Step(stimulus.Cycle{PredictValid: true, TrainValid: true, TrainMispredicted: true, TrainTaken: true, TrainHistory: 0x2A})
	if out.Path != PathCorrective || out.GHR != 0x55 {
		t.Fatalf("corrective: %+v", out)
	}
	out = m.Step(stimulus.Cycle{TrainMispredicted: true, TrainHistory: 0x7F})
	if out.Path != PathHold || out.GHR != 0x55 {
		t.Fatalf("hold: %+v", out)
	}
}

func TestExpectUsesPreEdgeState(t *testing.T) {
	m := New()
	c := stimulus.Cycle{PredictValid: true, PredictPC: 0x21, TrainValid: true, TrainTaken: true, TrainPC: 0x21}
	exp := m.Expect(c)
	if exp.Taken {
		t.Fatal("cold slot predicted taken")
	}
	m.Commit(c, exp)
	if got := m.Expect(stimulus.Cycle{PredictValid: true, PredictPC: 0x21 ^ m.GHR()}); !got.Taken {
		t.Fatal("trained slot should now predict taken")
	}
}

func TestRestore(t *testing.T) {
	var table [128]uint8
	table[0x10] = st
	m := New()
	m.Restore(table, 0x85)
	if m.GHR() != 0x05 {
		t.Fatalf("ghr = %#x, want 0x05", m.GHR())
	}
	exp := m.Expect(stimulus.Cycle{PredictValid: true, PredictPC: 0x15})
	if !exp.Taken || exp.History != 0x05 {
		t.Fatalf("expect = %+v", exp)
	}
	exp = m.Expect(stimulus.Cycle{PredictValid: true, PredictPC: 0x16})
	if exp.Taken {
		t.Fatalf("slot 0x13 should read SNT as not taken")
	}
}
