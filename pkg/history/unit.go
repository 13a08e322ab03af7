package history

// Unit is a standalone 32-bit global history register. Unlike the
// predictor's register, the misprediction flag alone selects the
// corrective path.
type Unit struct {
	reg Register
}

// NewUnit returns a cleared 32-bit history unit.
func NewUnit() *Unit {
	return &Unit{reg: Register{width: MaxWidth, mask: maskFor(MaxWidth)}}
}

// Reset clears the history.
func (u *Unit) Reset() { u.reg.Reset() }

// History returns the current value.
func (u *Unit) History() uint32 { return u.reg.Value() }

// Clock applies one rising edge.
func (u *Unit) Clock(mispredicted, predictValid, predictTaken bool, trainHistory uint32, trainTaken bool) uint32 {
	v, _ := u.reg.Clock(Inputs{
		Correct:        mispredicted,
		CorrectHistory: trainHistory,
		CorrectBit:     trainTaken,
		Speculate:      predictValid,
		SpeculateBit:   predictTaken,
	})
	return v
}
