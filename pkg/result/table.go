package result

import (
	"encoding/json"
	"io"
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Run records one verification run over a stimulus sequence.
type Run struct {
	Seed        uint64  `json:"seed"`
	Cycles      int     `json:"cycles"`
	Predictions int     `json:"predictions"`
	Trainings   int     `json:"trainings"`
	Corrections int     `json:"corrections"`
	Resets      int     `json:"resets"`
	Coverage    float64 `json:"coverage"` // percent of coverage bins hit
	Failure     string  `json:"failure,omitempty"`
}

// Passed reports whether the run finished without a mismatch.
func (r Run) Passed() bool { return r.Failure == "" }

// Table collects runs from concurrent workers.
type Table struct {
	mu   sync.Mutex
	runs []Run
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{}
}

// Add inserts a run into the table.
func (t *Table) Add(r Run) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs = append(t.runs, r)
}

// Runs returns a copy of all runs, failures first, then by seed.
func (t *Table) Runs() []Run {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Run, len(t.runs))
	copy(out, t.runs)
	sortRuns(out)
	return out
}

// Len returns the number of runs.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.runs)
}

// Failed returns only the failing runs.
func (t *Table) Failed() []Run {
	return lo.Reject(t.Runs(), func(r Run, _ int) bool { return r.Passed() })
}

func sortRuns(runs []Run) {
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Passed() != runs[j].Passed() {
			return !runs[i].Passed()
		}
		return runs[i].Seed < runs[j].Seed
	})
}

// Summary aggregates a set of runs.
type Summary struct {
	Runs        int
	Failed      int
	Cycles      int
	Predictions int
	Trainings   int
	Corrections int
	Resets      int
	MinCoverage float64
}

// Summarize totals the given runs.
func Summarize(runs []Run) Summary {
	s := Summary{
		Runs:        len(runs),
		Failed:      lo.CountBy(runs, func(r Run) bool { return !r.Passed() }),
		Cycles:      lo.SumBy(runs, func(r Run) int { return r.Cycles }),
		Predictions: lo.SumBy(runs, func(r Run) int { return r.Predictions }),
		Trainings:   lo.SumBy(runs, func(r Run) int { return r.Trainings }),
		Corrections: lo.SumBy(runs, func(r Run) int { return r.Corrections }),
		Resets:      lo.SumBy(runs, func(r Run) int { return r.Resets }),
	}
	if len(runs) > 0 {
		s.MinCoverage = lo.MinBy(runs, func(a, b Run) bool { return a.Coverage < b.Coverage }).Coverage
	}
	return s
}

type report struct {
	Runs []Run `json:"runs"`
}

// WriteJSON writes runs as an indented JSON report.
func WriteJSON(w io.Writer, runs []Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report{Runs: runs})
}

// ReadJSON reads a report written by WriteJSON.
func ReadJSON(r io.Reader) ([]Run, error) {
	var rep report
	if err := json.NewDecoder(r).Decode(&rep); err != nil {
		return nil, err
	}
	return rep.Runs, nil
}
