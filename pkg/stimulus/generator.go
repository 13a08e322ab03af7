package stimulus

import "math/rand/v2"

// GenConfig shapes random stimulus. Zero fields take defaults.
type GenConfig struct {
	Seed     uint64
	HotPCs   int // size of the program-counter working set (default 8)
	ResetPct int // percent of cycles that assert reset (default 0)
}

// Generator produces weighted random cycles from a seeded PCG source.
// The same config always yields the same sequence.
type Generator struct {
	rng      *rand.Rand
	hot      []uint8
	resetPct int
	ghr      uint8 // last history this generator handed out, for plausible snapshots
}

// NewGenerator creates a generator.
func NewGenerator(cfg GenConfig) *Generator {
	if cfg.HotPCs <= 0 {
		cfg.HotPCs = 8
	}
	if cfg.HotPCs > 128 {
		cfg.HotPCs = 128
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0xDEADBEEF))
	hot := make([]uint8, cfg.HotPCs)
	for i, pc := range rng.Perm(128)[:cfg.HotPCs] {
		hot[i] = uint8(pc)
	}
	return &Generator{rng: rng, hot: hot, resetPct: cfg.ResetPct}
}

// Next returns one random cycle.
func (g *Generator) Next() Cycle {
	if g.resetPct > 0 && g.rng.IntN(100) < g.resetPct {
		return Cycle{Reset: true, Label: "random reset"}
	}

	// 10% idle, 30% predict, 20% train, 25% predict+train, 15% mispredict
	r := g.rng.IntN(100)
	switch {
	case r < 10:
		return Cycle{Label: "idle", PredictPC: g.pc(), TrainHistory: g.field(), TrainPC: g.field()}
	case r < 40:
		return Cycle{Label: "predict", PredictValid: true, PredictPC: g.pc()}
	case r < 60:
		c := g.train()
		c.Label = "train"
		return c
	case r < 85:
		c := g.train()
		c.PredictValid = true
		c.PredictPC = g.pc()
		c.Label = "predict+train"
		return c
	default:
		c := g.train()
		c.TrainMispredicted = true
		c.PredictValid = g.rng.IntN(2) == 0
		c.PredictPC = g.pc()
		c.Label = "mispredict"
		return c
	}
}

// Sequence returns n random cycles.
func (g *Generator) Sequence(n int) []Cycle {
	out := make([]Cycle, n)
	for i := range out {
		out[i] = g.Next()
	}
	return out
}

func (g *Generator) train() Cycle {
	h := g.field()
	if g.rng.IntN(2) == 0 {
		h = g.ghr
	}
	g.ghr = h<<1&0x7F | uint8(g.rng.IntN(2))
	return Cycle{
		TrainValid:   true,
		TrainTaken:   g.rng.IntN(2) == 0,
		TrainHistory: h,
		TrainPC:      g.pc(),
	}
}

func (g *Generator) pc() uint8 {
	return g.hot[g.rng.IntN(len(g.hot))]
}

func (g *Generator) field() uint8 {
	return uint8(g.rng.IntN(128))
}
