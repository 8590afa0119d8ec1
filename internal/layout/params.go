package layout

// Params are the force and cooling parameters of a Simulation.
type Params struct {
	AlphaStart       float64
	AlphaMin         float64 // ticking stops below this
	AlphaDecayFactor float64 // alpha multiplier per tick
	AlphaRestart     float64 // alpha after Reheat
	VelocityDecay    float64 // fraction of velocity lost per tick

	ChargeStrength    float64 // negative repels
	ChargeDistanceMin float64
	ChargeDistanceMax float64 // pairs further apart are ignored

	LinkDistance float64
	LinkStrength float64 // 0 uses 1/min(degree(source), degree(target))

	CenterStrength float64

	CollidePadding    float64
	CollideStrength   float64
	CollideIterations int

	SeedRadius float64 // phyllotaxis spacing
	SeedJitter float64
}

// DefaultParams returns the parameters used by the dashboard.
func DefaultParams() Params {
	return Params{
		AlphaStart:        1,
		AlphaMin:          0.001,
		AlphaDecayFactor:  0.97,
		AlphaRestart:      0.3,
		VelocityDecay:     0.4,
		ChargeStrength:    -300,
		ChargeDistanceMin: 1,
		ChargeDistanceMax: 800,
		LinkDistance:      100,
		CenterStrength:    1,
		CollidePadding:    2,
		CollideStrength:   0.7,
		CollideIterations: 1,
		SeedRadius:        10,
		SeedJitter:        1,
	}
}
