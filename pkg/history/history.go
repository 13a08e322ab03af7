// Package history implements the global history register: a shift
// register of recent branch outcomes with a speculative update path and a
// corrective path that rebuilds history from a caller-supplied snapshot.
package history

import "fmt"

// DefaultWidth matches the pattern history table index width.
const DefaultWidth = 7

// MaxWidth is the widest register supported.
const MaxWidth = 32

// Path identifies which update rule applied on a clock edge.
type Path uint8

const (
	Hold Path = iota
	Speculative
	Corrective
)

// NumPaths is the number of distinct update paths.
const NumPaths = 3

func (p Path) String() string {
	switch p {
	case Hold:
		return "hold"
	case Speculative:
		return "speculative"
	case Corrective:
		return "corrective"
	}
	return fmt.Sprintf("Path(%d)", uint8(p))
}

// Inputs selects the update for one edge. Correct wins over Speculate.
type Inputs struct {
	Correct        bool   // misprediction reported
	CorrectHistory uint32 // history snapshot at the mispredicted branch
	CorrectBit     bool   // resolved outcome of that branch
	Speculate      bool   // a prediction was issued this cycle
	SpeculateBit   bool   // the predicted outcome
}

// Register is a width-bit global history register.
type Register struct {
	value uint32
	width uint
	mask  uint32
}

// New returns a cleared register of the given width.
func New(width uint) (*Register, error) {
	if width == 0 || width > MaxWidth {
		return nil, fmt.Errorf("history: width %d out of range 1..%d", width, MaxWidth)
	}
	return &Register{width: width, mask: maskFor(width)}, nil
}

func maskFor(width uint) uint32 {
	if width >= 32 {
		return ^uint32(0)
	}
	return 1<<width - 1
}

// Width returns the register width in bits.
func (r *Register) Width() uint { return r.width }

// Mask returns the bit mask covering the register width.
func (r *Register) Mask() uint32 { return r.mask }

// Value returns the current history.
func (r *Register) Value() uint32 { return r.value }

// Reset clears the register.
func (r *Register) Reset() { r.value = 0 }

// Set loads a value, truncated to the register width.
func (r *Register) Set(v uint32) { r.value = v & r.mask }

// Next computes the value after one edge without changing the register.
func (r *Register) Next(in Inputs) (uint32, Path) {
	return Next(r.value, in, r.mask)
}

// Clock applies one edge and returns the new value and the path taken.
func (r *Register) Clock(in Inputs) (uint32, Path) {
	v, p := r.Next(in)
	r.value = v
	return v, p
}

// Next is the pure update rule for a register with the given mask:
// the source value loses its top bit, shifts left by one and takes the
// new outcome in bit 0.
func Next(current uint32, in Inputs, mask uint32) (uint32, Path) {
	switch {
	case in.Correct:
		return shiftIn(in.CorrectHistory, in.CorrectBit, mask), Corrective
	case in.Speculate:
		return shiftIn(current, in.SpeculateBit, mask), Speculative
	default:
		return current & mask, Hold
	}
}

func shiftIn(src uint32, bit bool, mask uint32) uint32 {
	v := (src & (mask >> 1)) << 1
	if bit {
		v |= 1
	}
	return v
}
