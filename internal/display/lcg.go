package display

const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

// LCG is the linear congruential generator behind stable marker sampling:
// seed = (seed*9301 + 49297) mod 233280, yielding seed/233280.
//
// The remainder truncates toward zero, so a negative seed (common for
// western-hemisphere viewports) produces values in (-1, 0]. Ordering only
// depends on the values being reproducible.
type LCG struct {
	seed int64
}

// NewLCG reduces seed modulo 233280 to keep the multiplication inside int64.
// Seeds derived from real viewports are far below the modulus.
func NewLCG(seed int64) *LCG {
	return &LCG{seed: seed % lcgModulus}
}

func (g *LCG) Next() float64 {
	g.seed = (g.seed*lcgMultiplier + lcgIncrement) % lcgModulus
	return float64(g.seed) / lcgModulus
}
