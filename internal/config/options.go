// Package config loads the immutable Options record passed by value to
// every component constructor, replacing the deep global configuration
// coupling of the source system (spec.md §9 redesign flag).
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/roverterrain/texcomposite/internal/dmg"
	"github.com/roverterrain/texcomposite/internal/propagate"
	"github.com/roverterrain/texcomposite/internal/shrinkwrap"
)

// Options is the full externally tunable surface named in spec.md §6. It
// is built once by Load and passed by value from there on; no component
// consults a global.
type Options struct {
	// Blend strategy selection.
	BlendStrategy propagate.Strategy

	// Shrinkwrap.
	ShrinkwrapResolution int
	ShrinkwrapAxis       shrinkwrap.Axis
	ShrinkwrapMode       shrinkwrap.Mode
	ShrinkwrapMiss       shrinkwrap.MissMode

	// Conditioner.
	LuminanceStrength float64
	Colorize          bool

	// Backproject acceptance.
	MaxGlancingAngleDegrees float64

	// DMG multigrid blender.
	DMGColorConversion dmg.ColorConversion
	DMGResidualEpsilon float64
	DMGRelaxSteps      int
	DMGMaxVCycles      int
	DMGLambda          float64
	DMGEdge            dmg.EdgeBehavior
	LegacyInvalidIndex bool
	UseBackprojectIndexOnly bool

	// sRGB decode/encode around color conversion.
	SRGBConversion bool

	// CompositeResolution is the scene texture resolution (power of two).
	CompositeResolution int

	// MaxCompositeLongAxis bounds panorama composite size (spec.md §4.6).
	MaxCompositeLongAxis int

	// CorrectionBlurRadius is the Gaussian blur radius applied to each
	// scattered correction field (spec.md §4.5, default 7).
	CorrectionBlurRadius float64

	// ObservationBlurSigma pre-blurs each observation before building the
	// composite handed to DMG, so the solve is not distracted by
	// high-frequency noise along seams (spec.md §3 "blurred variant").
	// 0 disables and the raw observations are composited directly.
	ObservationBlurSigma float64

	// ApplyCorrectionsToBlurred applies each correction field to the
	// blurred observation variant instead of the original. The right
	// choice depends on where in the pipeline blending is run, so it is
	// an explicit option rather than auto-selected (spec.md §9 open
	// question).
	ApplyCorrectionsToBlurred bool

	// InpaintAroundLeafBoundaries is loaded from the
	// "inpaint-leaf-boundaries" setting (spec.md §9 open question).
	// index.BuildPathA does not read it: Path A always inpaints gaps of
	// radius 2 (8-connected) whatever this field is set to.
	InpaintAroundLeafBoundaries bool

	// CacheArtifacts enables the SQLite-backed blob cache for intermediate
	// pipeline artifacts (spec.md §5's purgeable per-process image cache).
	// Off by default so a Driver never touches disk beyond OutputDir
	// unless a caller explicitly asks for artifact caching.
	CacheArtifacts bool

	OutputDir string
	Verbose   bool
	LogLevel  string
}

// Default returns the documented defaults from spec.md §6.
func Default() Options {
	return Options{
		BlendStrategy:           propagate.Auto,
		ShrinkwrapResolution:    256,
		ShrinkwrapAxis:          shrinkwrap.AxisZ,
		ShrinkwrapMode:          shrinkwrap.ModeProject,
		ShrinkwrapMiss:          shrinkwrap.MissNone,
		LuminanceStrength:       0,
		Colorize:                false,
		MaxGlancingAngleDegrees: 85,
		DMGColorConversion:      dmg.ColorNone,
		DMGResidualEpsilon:      1e-4,
		DMGRelaxSteps:           3,
		DMGMaxVCycles:           50,
		DMGLambda:               0.5,
		DMGEdge:                 dmg.Clamp,
		LegacyInvalidIndex:      false,
		UseBackprojectIndexOnly: false,
		SRGBConversion:          true,
		CompositeResolution:     4096,
		MaxCompositeLongAxis:    8192,
		CorrectionBlurRadius:    7,
		ObservationBlurSigma:    2,
		CacheArtifacts:          false,
		OutputDir:               "./out",
		LogLevel:                "info",
	}
}

// Load reads flags, environment (TEXCOMPOSITE_ prefix), and an optional
// config file through viper, overlaying them onto Default().
func Load(v *viper.Viper) (Options, error) {
	opts := Default()

	if s := v.GetString("blend-strategy"); s != "" {
		strategy, err := propagate.ParseStrategy(s)
		if err != nil {
			return Options{}, fmt.Errorf("config: %w", err)
		}
		opts.BlendStrategy = strategy
	}
	if v.IsSet("shrinkwrap-resolution") {
		opts.ShrinkwrapResolution = v.GetInt("shrinkwrap-resolution")
	}
	if s := v.GetString("shrinkwrap-axis"); s != "" {
		axis, err := parseAxis(s)
		if err != nil {
			return Options{}, err
		}
		opts.ShrinkwrapAxis = axis
	}
	if s := v.GetString("shrinkwrap-mode"); s != "" {
		mode, err := parseShrinkwrapMode(s)
		if err != nil {
			return Options{}, err
		}
		opts.ShrinkwrapMode = mode
	}
	if s := v.GetString("shrinkwrap-miss"); s != "" {
		miss, err := parseMissMode(s)
		if err != nil {
			return Options{}, err
		}
		opts.ShrinkwrapMiss = miss
	}
	if v.IsSet("luminance-strength") {
		opts.LuminanceStrength = v.GetFloat64("luminance-strength")
	}
	if v.IsSet("colorize") {
		opts.Colorize = v.GetBool("colorize")
	}
	if v.IsSet("max-glancing-angle") {
		opts.MaxGlancingAngleDegrees = v.GetFloat64("max-glancing-angle")
	}
	if s := v.GetString("dmg-color-conversion"); s != "" {
		cc, err := parseColorConversion(s)
		if err != nil {
			return Options{}, err
		}
		opts.DMGColorConversion = cc
	}
	if v.IsSet("dmg-residual-epsilon") {
		opts.DMGResidualEpsilon = v.GetFloat64("dmg-residual-epsilon")
	}
	if v.IsSet("dmg-relax-steps") {
		opts.DMGRelaxSteps = v.GetInt("dmg-relax-steps")
	}
	if v.IsSet("dmg-max-vcycles") {
		opts.DMGMaxVCycles = v.GetInt("dmg-max-vcycles")
	}
	if v.IsSet("dmg-lambda") {
		opts.DMGLambda = v.GetFloat64("dmg-lambda")
	}
	if s := v.GetString("dmg-edge"); s != "" {
		edge, err := parseEdge(s)
		if err != nil {
			return Options{}, err
		}
		opts.DMGEdge = edge
	}
	if v.IsSet("legacy-invalid-index") {
		opts.LegacyInvalidIndex = v.GetBool("legacy-invalid-index")
	}
	if v.IsSet("use-backproject-index-only") {
		opts.UseBackprojectIndexOnly = v.GetBool("use-backproject-index-only")
	}
	if v.IsSet("srgb-conversion") {
		opts.SRGBConversion = v.GetBool("srgb-conversion")
	}
	if v.IsSet("composite-resolution") {
		opts.CompositeResolution = v.GetInt("composite-resolution")
	}
	if v.IsSet("max-composite-long-axis") {
		opts.MaxCompositeLongAxis = v.GetInt("max-composite-long-axis")
	}
	if v.IsSet("correction-blur-radius") {
		opts.CorrectionBlurRadius = v.GetFloat64("correction-blur-radius")
	}
	if v.IsSet("observation-blur-sigma") {
		opts.ObservationBlurSigma = v.GetFloat64("observation-blur-sigma")
	}
	if v.IsSet("apply-corrections-to-blurred") {
		opts.ApplyCorrectionsToBlurred = v.GetBool("apply-corrections-to-blurred")
	}
	if v.IsSet("inpaint-leaf-boundaries") {
		opts.InpaintAroundLeafBoundaries = v.GetBool("inpaint-leaf-boundaries")
	}
	if v.IsSet("cache-artifacts") {
		opts.CacheArtifacts = v.GetBool("cache-artifacts")
	}
	if v.IsSet("output-dir") {
		opts.OutputDir = v.GetString("output-dir")
	}
	if v.IsSet("verbose") {
		opts.Verbose = v.GetBool("verbose")
	}
	if s := v.GetString("log-level"); s != "" {
		opts.LogLevel = s
	}

	return opts, nil
}

func parseAxis(s string) (shrinkwrap.Axis, error) {
	switch strings.ToLower(s) {
	case "x":
		return shrinkwrap.AxisX, nil
	case "y":
		return shrinkwrap.AxisY, nil
	case "z":
		return shrinkwrap.AxisZ, nil
	}
	return 0, fmt.Errorf("config: unknown shrinkwrap axis %q", s)
}

func parseShrinkwrapMode(s string) (shrinkwrap.Mode, error) {
	switch strings.ToLower(s) {
	case "project":
		return shrinkwrap.ModeProject, nil
	case "nearestpoint", "nearest-point":
		return shrinkwrap.ModeNearestPoint, nil
	}
	return 0, fmt.Errorf("config: unknown shrinkwrap mode %q", s)
}

func parseMissMode(s string) (shrinkwrap.MissMode, error) {
	switch strings.ToLower(s) {
	case "none":
		return shrinkwrap.MissNone, nil
	case "delaunay":
		return shrinkwrap.MissDelaunay, nil
	case "inpaint":
		return shrinkwrap.MissInpaint, nil
	}
	return 0, fmt.Errorf("config: unknown shrinkwrap miss mode %q", s)
}

func parseColorConversion(s string) (dmg.ColorConversion, error) {
	switch strings.ToLower(s) {
	case "none":
		return dmg.ColorNone, nil
	case "rgbtolab", "lab":
		return dmg.RGBToLAB, nil
	case "rgbtologlab", "loglab":
		return dmg.RGBToLogLAB, nil
	}
	return 0, fmt.Errorf("config: unknown color conversion %q", s)
}

func parseEdge(s string) (dmg.EdgeBehavior, error) {
	switch strings.ToLower(s) {
	case "clamp":
		return dmg.Clamp, nil
	case "wrapcylinder", "cylinder":
		return dmg.WrapCylinder, nil
	case "wrapsphere", "sphere":
		return dmg.WrapSphere, nil
	case "wraptorus", "torus":
		return dmg.WrapTorus, nil
	}
	return 0, fmt.Errorf("config: unknown edge behavior %q", s)
}
