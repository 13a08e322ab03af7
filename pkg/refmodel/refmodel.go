// Package refmodel is an independent software model of the gshare
// predictor used to check other implementations cycle by cycle. It
// deliberately shares no code with package predictor.
package refmodel

import "github.com/oisee/gshare-model/pkg/stimulus"

const (
	snt uint8 = 0
	wnt uint8 = 1
	wt  uint8 = 2
	st  uint8 = 3
)

// Path of the history update, numbered like history.Path.
const (
	PathHold        = 0
	PathSpeculative = 1
	PathCorrective  = 2
)

// Expected is what the device must output before the clock edge.
type Expected struct {
	Taken   bool
	History uint8
}

// Outcome describes one committed cycle.
type Outcome struct {
	Expected
	Reset      bool
	Trained    bool
	TrainTaken bool
	Slot       uint8
	Before     uint8
	After      uint8
	Path       int
	GHR        uint8 // history after the edge
}

// Model holds the PHT and GHR.
type Model struct {
	pht [128]uint8
	ghr uint8
}

// New returns a model in the reset state.
func New() *Model {
	m := &Model{}
	m.Reset()
	return m
}

// Reset clears history and sets every counter to weakly not-taken.
func (m *Model) Reset() {
	m.ghr = 0
	for i := range m.pht {
		m.pht[i] = wnt
	}
}

// GHR returns the model history.
func (m *Model) GHR() uint8 { return m.ghr }

// State returns a copy of the PHT and the GHR.
func (m *Model) State() ([128]uint8, uint8) { return m.pht, m.ghr }

// Restore loads a previously captured state. The history is masked to
// 7 bits.
func (m *Model) Restore(table [128]uint8, ghr uint8) {
	m.pht = table
	m.ghr = ghr & 0x7F
}

func updateCounter(current uint8, taken bool) uint8 {
	switch current {
	case snt:
		if taken {
			return wnt
		}
		return snt
	case wnt:
		if taken {
			return wt
		}
		return snt
	case wt:
		if taken {
			return st
		}
		return wnt
	default:
		if taken {
			return st
		}
		return wt
	}
}

// Expect computes the outputs for c from the current state.
func (m *Model) Expect(c stimulus.Cycle) Expected {
	if c.Reset || !c.PredictValid {
		return Expected{}
	}
	idx := (c.PredictPC ^ m.ghr) & 0x7F
	return Expected{Taken: m.pht[idx] >= wt, History: m.ghr}
}

// Commit applies the clock edge for c. exp must come from Expect on the
// same state.
func (m *Model) Commit(c stimulus.Cycle, exp Expected) Outcome {
	out := Outcome{Expected: exp}
	if c.Reset {
		m.Reset()
		out.Reset = true
		return out
	}

	if c.TrainValid {
		idx := (c.TrainPC ^ c.TrainHistory) & 0x7F
		out.Trained = true
		out.TrainTaken = c.TrainTaken
		out.Slot = idx
		out.Before = m.pht[idx]
		m.pht[idx] = updateCounter(m.pht[idx], c.TrainTaken)
		out.After = m.pht[idx]
	}

	switch {
	case c.TrainValid && c.TrainMispredicted:
		m.ghr = (c.TrainHistory&0x3F)<<1 | bit(c.TrainTaken)
		out.Path = PathCorrective
	case c.PredictValid:
		m.ghr = (m.ghr&0x3F)<<1 | bit(exp.Taken)
		out.Path = PathSpeculative
	default:
		out.Path = PathHold
	}
	out.GHR = m.ghr
	return out
}

// Step is Expect followed by Commit.
func (m *Model) Step(c stimulus.Cycle) Outcome {
	return m.Commit(c, m.Expect(c))
}

func bit(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}
