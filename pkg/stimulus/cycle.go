// Package stimulus defines the per-cycle input record shared by the
// predictor, the independent model and the harness, plus a text trace
// format and a seeded random generator.
package stimulus

import "github.com/oisee/gshare-model/pkg/predictor"

// Cycle is one evaluation step worth of inputs. When Reset is set the
// other fields are ignored.
type Cycle struct {
	Reset bool

	PredictValid bool
	PredictPC    uint8

	TrainValid        bool
	TrainTaken        bool
	TrainMispredicted bool
	TrainHistory      uint8
	TrainPC           uint8

	Label string
}

// Predict returns the prediction half of the cycle.
func (c Cycle) Predict() predictor.PredictRequest {
	return predictor.PredictRequest{Valid: c.PredictValid, PC: c.PredictPC & predictor.FieldMask}
}

// Train returns the training half of the cycle.
func (c Cycle) Train() predictor.TrainRequest {
	return predictor.TrainRequest{
		Valid:        c.TrainValid,
		Taken:        c.TrainTaken,
		Mispredicted: c.TrainMispredicted,
		History:      c.TrainHistory & predictor.FieldMask,
		PC:           c.TrainPC & predictor.FieldMask,
	}
}

// Normalize truncates the 7-bit fields.
func (c Cycle) Normalize() Cycle {
	c.PredictPC &= predictor.FieldMask
	c.TrainHistory &= predictor.FieldMask
	c.TrainPC &= predictor.FieldMask
	return c
}

// Idle reports whether the cycle neither predicts, trains nor resets.
func (c Cycle) Idle() bool {
	return !c.Reset && !c.PredictValid && !c.TrainValid
}
