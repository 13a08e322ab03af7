package stimulus

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Trace line format, one cycle per line, fields in hex:
//
//	pv ppc tv tt tm th tpc [# label]
//	reset [# label]
//
// Blank lines and lines starting with '#' are skipped.

const fieldCount = 7

// FormatCycle renders a cycle as a trace line.
func FormatCycle(c Cycle) string {
	c = c.Normalize()
	var line string
	if c.Reset {
		line = "reset"
	} else {
		line = fmt.Sprintf("%d %02x %d %d %d %02x %02x",
			b2i(c.PredictValid), c.PredictPC,
			b2i(c.TrainValid), b2i(c.TrainTaken), b2i(c.TrainMispredicted),
			c.TrainHistory, c.TrainPC)
	}
	if c.Label != "" {
		line += " # " + c.Label
	}
	return line
}

// ParseCycle parses one trace line. ok is false for blank and comment lines.
func ParseCycle(line string) (c Cycle, ok bool, err error) {
	body, label, _ := strings.Cut(line, "#")
	body = strings.TrimSpace(body)
	if body == "" {
		return Cycle{}, false, nil
	}
	c.Label = strings.TrimSpace(label)

	if strings.EqualFold(body, "reset") {
		c.Reset = true
		return c, true, nil
	}

	fields := strings.Fields(body)
	if len(fields) != fieldCount {
		return Cycle{}, false, fmt.Errorf("want %d fields, got %d", fieldCount, len(fields))
	}
	var v [fieldCount]uint8
	for i, f := range fields {
		n, err := strconv.ParseUint(f, 16, 8)
		if err != nil {
			return Cycle{}, false, fmt.Errorf("field %d %q: %w", i+1, f, err)
		}
		v[i] = uint8(n)
	}
	for _, i := range []int{0, 2, 3, 4} {
		if v[i] > 1 {
			return Cycle{}, false, fmt.Errorf("field %d must be 0 or 1, got %x", i+1, v[i])
		}
	}
	for _, i := range []int{1, 5, 6} {
		if v[i] > 0x7F {
			return Cycle{}, false, fmt.Errorf("field %d exceeds 7 bits: %x", i+1, v[i])
		}
	}

	c.PredictValid = v[0] == 1
	c.PredictPC = v[1]
	c.TrainValid = v[2] == 1
	c.TrainTaken = v[3] == 1
	c.TrainMispredicted = v[4] == 1
	c.TrainHistory = v[5]
	c.TrainPC = v[6]
	return c, true, nil
}

// ReadTrace reads every cycle from r.
func ReadTrace(r io.Reader) ([]Cycle, error) {
	var cycles []Cycle
	sc := bufio.NewScanner(r)
	lineNum := 0
	for sc.Scan() {
		lineNum++
		c, ok, err := ParseCycle(sc.Text())
		if err != nil {
			return nil, fmt.Errorf("stimulus: line %d: %w", lineNum, err)
		}
		if ok {
			cycles = append(cycles, c)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("stimulus: read trace: %w", err)
	}
	return cycles, nil
}

// WriteTrace writes cycles one per line.
func WriteTrace(w io.Writer, cycles []Cycle) error {
	bw := bufio.NewWriter(w)
	for _, c := range cycles {
		if _, err := fmt.Fprintln(bw, FormatCycle(c)); err != nil {
			return fmt.Errorf("stimulus: write trace: %w", err)
		}
	}
	return bw.Flush()
}

func b2i(b bool) int {
	if b {
		return 1
	}
	return 0
}
