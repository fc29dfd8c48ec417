// Package dmg implements the discrete multigrid gradient-domain blender
// (spec.md §4.4, component C7): the mathematical core of the seam-hiding
// pipeline. It solves, independently per band, for an output image that
// matches each input pixel's own value where fidelity applies, and
// matches neighboring *gradients* (not absolute values) across a
// per-pixel region index — which is what lets two differently-exposed
// source images meet without a visible seam while preserving the
// within-image detail of each.
package dmg

// Flags are bit-ORed per-pixel modifiers to the DMG objective.
type Flags uint8

const (
	FlagNone         Flags = 0
	FlagHoldConstant Flags = 1 << 0
	FlagGradientOnly Flags = 1 << 1
	FlagNoData       Flags = 1 << 2
)

// EdgeBehavior controls how out-of-range neighbor indices are resolved.
type EdgeBehavior int

const (
	Clamp EdgeBehavior = iota
	WrapCylinder
	WrapSphere
	WrapTorus
)

// ColorConversion selects a perceptual remapping applied to the first
// three bands (assumed RGB) before solving and undone after.
type ColorConversion int

const (
	ColorNone ColorConversion = iota
	RGBToLAB
	RGBToLogLAB
)

// Params configures one DMG solve.
type Params struct {
	ResidualEpsilon float64
	RelaxSteps      int // K in spec.md §4.4, per V-cycle
	MaxVCycles      int
	Lambda          float64
	Edge            EdgeBehavior
	ColorConv       ColorConversion
	SRGB            bool
}

// DefaultParams returns the "typical parameters" named in spec.md §4.4.
func DefaultParams() Params {
	return Params{
		ResidualEpsilon: 1e-4,
		RelaxSteps:      3,
		MaxVCycles:      50,
		Lambda:          0.5,
		Edge:            Clamp,
		ColorConv:       ColorNone,
		SRGB:            true,
	}
}

// Stats reports solve progress for the caller (spec.md §7 item 5:
// "the caller is told convergence was not reached").
type Stats struct {
	Converged     bool
	VCycles       int
	FinalResidual float64
}
