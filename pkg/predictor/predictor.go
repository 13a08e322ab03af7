// Package predictor is the gshare branch predictor reference model.
//
// A Predictor owns a 128-entry pattern history table and a 7-bit global
// history register. Each evaluation step reads both against the state
// as it was before the step, then commits the training write and the
// history update together:
//
//	Evaluate  read-only; computes the response and all next values
//	Commit    applies the pending PHT write and GHR update
//
// Step does both. Reset takes effect immediately.
package predictor

import (
	"github.com/oisee/gshare-model/pkg/counter"
	"github.com/oisee/gshare-model/pkg/history"
	"github.com/oisee/gshare-model/pkg/pht"
)

// FieldMask truncates program counter and history fields to 7 bits.
const FieldMask uint8 = 0x7F

// PredictRequest asks for a direction prediction at PC.
type PredictRequest struct {
	Valid bool
	PC    uint8
}

// TrainRequest reports a resolved branch. History is the GHR value that
// was returned with the original prediction.
type TrainRequest struct {
	Valid        bool
	Taken        bool
	Mispredicted bool
	History      uint8
	PC           uint8
}

// Response is the prediction output. Both fields are zero when the
// request was not valid.
type Response struct {
	Taken   bool
	History uint8
}

// Evaluation holds everything one step will do, computed from the
// pre-step state.
type Evaluation struct {
	Response Response

	TrainWrite  bool
	TrainSlot   uint8
	PrevCounter counter.Counter
	NextCounter counter.Counter

	Path    history.Path
	NextGHR uint8
}

// State is the observable state: PHT contents and GHR.
type State struct {
	PHT [pht.Size]counter.Counter
	GHR uint8
}

// Levels counts how many PHT slots sit at each counter level.
func (s State) Levels() [counter.Levels]int {
	t := pht.New()
	t.Restore(s.PHT)
	return t.Levels()
}

// Predictor is not safe for concurrent use; there is one caller per clock.
type Predictor struct {
	table *pht.Table
	ghr   *history.Register
}

// New returns a predictor in the reset state.
func New() *Predictor {
	ghr, err := history.New(history.DefaultWidth)
	if err != nil {
		panic(err)
	}
	return &Predictor{table: pht.New(), ghr: ghr}
}

// Reset clears the GHR and sets every PHT slot to WeaklyNotTaken.
func (p *Predictor) Reset() {
	p.table.Reset()
	p.ghr.Reset()
}

// GHR returns the current global history.
func (p *Predictor) GHR() uint8 {
	return uint8(p.ghr.Value())
}

// Counter returns the PHT entry at slot.
func (p *Predictor) Counter(slot uint8) counter.Counter {
	return p.table.Read(slot)
}

// Predict looks up the counter for req.PC under the current history.
// It never changes state.
func (p *Predictor) Predict(req PredictRequest) Response {
	if !req.Valid {
		return Response{}
	}
	ghr := p.GHR()
	slot := pht.Index(req.PC&FieldMask, ghr)
	return Response{
		Taken:   p.table.Read(slot).Taken(),
		History: ghr,
	}
}

// Evaluate computes the response and the pending updates for one step.
func (p *Predictor) Evaluate(pr PredictRequest, tr TrainRequest) Evaluation {
	ev := Evaluation{Response: p.Predict(pr)}

	if tr.Valid {
		ev.TrainWrite = true
		ev.TrainSlot = pht.Index(tr.PC&FieldMask, tr.History&FieldMask)
		ev.PrevCounter = p.table.Read(ev.TrainSlot)
		ev.NextCounter = ev.PrevCounter.Next(tr.Taken)
	}

	next, path := p.ghr.Next(history.Inputs{
		Correct:        tr.Valid && tr.Mispredicted,
		CorrectHistory: uint32(tr.History & FieldMask),
		CorrectBit:     tr.Taken,
		Speculate:      pr.Valid,
		SpeculateBit:   ev.Response.Taken,
	})
	ev.NextGHR = uint8(next)
	ev.Path = path
	return ev
}

// Commit applies an evaluation produced against the current state.
func (p *Predictor) Commit(ev Evaluation) {
	if ev.TrainWrite {
		p.table.Write(ev.TrainSlot, ev.NextCounter)
	}
	p.ghr.Set(uint32(ev.NextGHR))
}

// Step evaluates and commits one clock. The response reflects the state
// before this step's training.
func (p *Predictor) Step(pr PredictRequest, tr TrainRequest) Response {
	ev := p.Evaluate(pr, tr)
	p.Commit(ev)
	return ev.Response
}

// Snapshot copies the observable state.
func (p *Predictor) Snapshot() State {
	return State{PHT: p.table.Snapshot(), GHR: p.GHR()}
}

// Restore loads a previously captured state.
func (p *Predictor) Restore(s State) {
	p.table.Restore(s.PHT)
	p.ghr.Set(uint32(s.GHR))
}

// Levels returns the PHT level histogram.
func (p *Predictor) Levels() [counter.Levels]int {
	return p.table.Levels()
}
