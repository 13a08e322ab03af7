// Package bench drives a predictor implementation and the independent
// reference model in lockstep and reports the first divergence.
package bench

import (
	"errors"

	"github.com/oisee/gshare-model/pkg/predictor"
	"github.com/oisee/gshare-model/pkg/stimulus"
)

// Device is an implementation under test. Step applies one cycle: the
// returned response must reflect the state before the cycle's edge.
type Device interface {
	Reset() error
	Step(c stimulus.Cycle) (predictor.Response, error)
}

// ErrNoState is returned by a StateReader that cannot report state after
// all; the harness then checks outputs only.
var ErrNoState = errors.New("bench: device does not report state")

// StateReader is implemented by devices that expose PHT and GHR.
type StateReader interface {
	Snapshot() (predictor.State, error)
}

// Restorer is implemented by devices that can start from a saved state.
type Restorer interface {
	Restore(st predictor.State) error
}

// Local runs the in-process predictor as a Device.
type Local struct {
	P *predictor.Predictor
}

// NewLocal wraps a fresh predictor.
func NewLocal() *Local {
	return &Local{P: predictor.New()}
}

func (l *Local) Reset() error {
	l.P.Reset()
	return nil
}

func (l *Local) Step(c stimulus.Cycle) (predictor.Response, error) {
	if c.Reset {
		l.P.Reset()
		return predictor.Response{}, nil
	}
	return l.P.Step(c.Predict(), c.Train()), nil
}

func (l *Local) Snapshot() (predictor.State, error) {
	return l.P.Snapshot(), nil
}

func (l *Local) Restore(st predictor.State) error {
	l.P.Restore(st)
	return nil
}
