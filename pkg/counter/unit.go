package counter

// Unit is a single clocked 2-bit predictor: one counter with a train
// enable. Clock with valid=false holds the current state.
type Unit struct {
	state Counter
}

// NewUnit returns a unit in the reset state.
func NewUnit() *Unit {
	return &Unit{state: Initial}
}

// Reset returns the unit to WeaklyNotTaken.
func (u *Unit) Reset() {
	u.state = Initial
}

// State returns the current counter value.
func (u *Unit) State() Counter {
	return u.state
}

// Clock applies one rising edge and returns the new state.
func (u *Unit) Clock(valid, taken bool) Counter {
	if valid {
		u.state = u.state.Next(taken)
	}
	return u.state
}
