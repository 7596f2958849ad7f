package builtins

import "callisto/internal/strategy"

// Default parameters for the built-in strategies.
const (
	DefaultSMAShort     = 10
	DefaultSMALong      = 30
	DefaultRSIPeriod    = 14
	DefaultIFTThreshold = 0.0
)

// Register adds one instance of every built-in strategy to the registry,
// configured with the default parameters above.
func Register(r *strategy.Registry) {
	r.Register(NewSMACross(DefaultSMAShort, DefaultSMALong))
	r.Register(NewThreeRedBodies(DefaultRSIPeriod, DefaultIFTThreshold))
}
