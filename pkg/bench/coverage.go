package bench

import (
	"github.com/samber/lo"

	"github.com/oisee/gshare-model/pkg/counter"
	"github.com/oisee/gshare-model/pkg/history"
	"github.com/oisee/gshare-model/pkg/pht"
	"github.com/oisee/gshare-model/pkg/refmodel"
)

// Coverage counts which parts of the design a stimulus exercised.
type Coverage struct {
	Transitions [counter.Levels][2]int // [from][taken]
	Paths       [history.NumPaths]int
	Resets      int
	slotLevels  [pht.Size]uint8 // bitmask of counter levels seen per slot
}

// Record adds one committed cycle.
func (c *Coverage) Record(o refmodel.Outcome) {
	if o.Reset {
		c.Resets++
		return
	}
	if o.Trained && o.Before < counter.Levels {
		taken := 0
		if o.TrainTaken {
			taken = 1
		}
		c.Transitions[o.Before][taken]++
		c.slotLevels[o.Slot] |= 1<<o.Before | 1<<o.After
	}
	if o.Path >= 0 && o.Path < history.NumPaths {
		c.Paths[o.Path]++
	}
}

// SlotToggled reports whether both counter bits of slot were seen at 0 and 1.
func (c *Coverage) SlotToggled(slot uint8) bool {
	seen := c.slotLevels[slot&pht.IndexMask]
	var b0, b1 [2]bool
	for lv := 0; lv < counter.Levels; lv++ {
		if seen&(1<<lv) != 0 {
			b0[lv&1] = true
			b1[lv>>1] = true
		}
	}
	return b0[0] && b0[1] && b1[0] && b1[1]
}

// CoverageSummary is a compact view of Coverage.
type CoverageSummary struct {
	Transitions int // of 8
	Paths       int // of 3
	Slots       int // of 128
	Resets      int
	Percent     float64
}

// Summary counts hit bins.
func (c *Coverage) Summary() CoverageSummary {
	var trans int
	for _, row := range c.Transitions {
		trans += lo.CountBy(row[:], func(n int) bool { return n > 0 })
	}
	paths := lo.CountBy(c.Paths[:], func(n int) bool { return n > 0 })
	slots := lo.CountBy(lo.Range(pht.Size), func(s int) bool { return c.SlotToggled(uint8(s)) })

	total := counter.Levels*2 + history.NumPaths + pht.Size
	return CoverageSummary{
		Transitions: trans,
		Paths:       paths,
		Slots:       slots,
		Resets:      c.Resets,
		Percent:     100 * float64(trans+paths+slots) / float64(total),
	}
}

// Merge adds o into c.
func (c *Coverage) Merge(o *Coverage) {
	for i := range c.Transitions {
		for j := range c.Transitions[i] {
			c.Transitions[i][j] += o.Transitions[i][j]
		}
	}
	for i := range c.Paths {
		c.Paths[i] += o.Paths[i]
	}
	c.Resets += o.Resets
	for i := range c.slotLevels {
		c.slotLevels[i] |= o.slotLevels[i]
	}
}
