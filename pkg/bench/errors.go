package bench

import "fmt"

// MismatchError reports a divergence between device and reference model.
type MismatchError struct {
	Cycle int    // zero-based cycle index since the harness was created
	Label string // stimulus label, may be empty
	Field string // "taken", "history", "state" or "check"
	Want  string
	Got   string
}

func (e *MismatchError) Error() string {
	where := fmt.Sprintf("cycle %d", e.Cycle)
	if e.Label != "" {
		where += " (" + e.Label + ")"
	}
	if e.Field == "state" {
		return fmt.Sprintf("%s: state mismatch (-model +device):\n%s", where, e.Got)
	}
	return fmt.Sprintf("%s: %s mismatch: want %s, got %s", where, e.Field, e.Want, e.Got)
}
