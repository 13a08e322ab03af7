package counter

// Counter is a 2-bit saturating confidence counter.
//
//	0 SNT  strongly not taken
//	1 WNT  weakly not taken
//	2 WT   weakly taken
//	3 ST   strongly taken
type Counter uint8

const (
	StronglyNotTaken Counter = iota
	WeaklyNotTaken
	WeaklyTaken
	StronglyTaken
)

// Initial is the value every counter holds after reset.
const Initial = WeaklyNotTaken

// Levels is the number of distinct counter values.
const Levels = 4

// Transition returns the counter value after observing one outcome.
// Moves one level toward the outcome and clamps at both ends.
func Transition(c Counter, taken bool) Counter {
	switch c {
	case StronglyNotTaken:
		if taken {
			return WeaklyNotTaken
		}
		return StronglyNotTaken
	case WeaklyNotTaken:
		if taken {
			return WeaklyTaken
		}
		return StronglyNotTaken
	case WeaklyTaken:
		if taken {
			return StronglyTaken
		}
		return WeaklyNotTaken
	default:
		if taken {
			return StronglyTaken
		}
		return WeaklyTaken
	}
}

// Next is Transition as a method.
func (c Counter) Next(taken bool) Counter {
	return Transition(c, taken)
}

// Taken reports whether the counter predicts taken (WT or ST).
func (c Counter) Taken() bool {
	return c >= WeaklyTaken
}

// Valid reports whether c is one of the four defined levels.
func (c Counter) Valid() bool {
	return c <= StronglyTaken
}

var names = [Levels]string{"SNT", "WNT", "WT", "ST"}

func (c Counter) String() string {
	if !c.Valid() {
		return "INVALID"
	}
	return names[c]
}
