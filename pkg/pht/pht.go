// Package pht implements the pattern history table: 128 saturating
// counters addressed by a gshare hash of program counter and history.
package pht

import "github.com/oisee/gshare-model/pkg/counter"

const (
	IndexBits       = 7
	Size            = 1 << IndexBits
	IndexMask uint8 = Size - 1
)

// Index maps a program counter and a history value to a table slot.
// Both operands are truncated to IndexBits before combining.
func Index(pc, history uint8) uint8 {
	return (pc ^ history) & IndexMask
}

// Table is a fixed array of counters. The zero value is not reset;
// use New.
type Table struct {
	slots [Size]counter.Counter
}

// New returns a table with every slot at WeaklyNotTaken.
func New() *Table {
	t := &Table{}
	t.Reset()
	return t
}

// Reset sets every slot to WeaklyNotTaken.
func (t *Table) Reset() {
	for i := range t.slots {
		t.slots[i] = counter.Initial
	}
}

// Read returns the counter at slot.
func (t *Table) Read(slot uint8) counter.Counter {
	return t.slots[slot&IndexMask]
}

// Write replaces the counter at slot. No other slot is touched.
func (t *Table) Write(slot uint8, c counter.Counter) {
	t.slots[slot&IndexMask] = c
}

// Snapshot returns a copy of all slots.
func (t *Table) Snapshot() [Size]counter.Counter {
	return t.slots
}

// Restore overwrites every slot from a snapshot.
func (t *Table) Restore(s [Size]counter.Counter) {
	t.slots = s
}

// Levels counts how many slots sit at each counter level.
func (t *Table) Levels() [counter.Levels]int {
	var n [counter.Levels]int
	for _, c := range t.slots {
		if c.Valid() {
			n[c]++
		}
	}
	return n
}
