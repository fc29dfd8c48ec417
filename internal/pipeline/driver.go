// Package pipeline wires the coherent-index build, luminance/chroma
// conditioning, gradient-domain blend, and adjustment propagation stages
// into the single driver spec.md §5 describes, plus the panorama variant
// of §4.6.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/roverterrain/texcomposite/internal/conditioner"
	"github.com/roverterrain/texcomposite/internal/config"
	"github.com/roverterrain/texcomposite/internal/dmg"
	"github.com/roverterrain/texcomposite/internal/index"
	"github.com/roverterrain/texcomposite/internal/propagate"
	"github.com/roverterrain/texcomposite/internal/rimage"
	"github.com/roverterrain/texcomposite/internal/store"
)

// StageCapture represents a single captured intermediate stage, kept for
// debugging a run without re-deriving it from the final output.
type StageCapture struct {
	Name        string
	Description string
	Image       image.Image
	ZOrder      int
}

// DebugContext optionally collects intermediate pipeline stages.
type DebugContext struct {
	Stages []StageCapture
	mu     sync.Mutex
}

// Capture adds a stage to the debug context if it exists.
func (dc *DebugContext) Capture(name, description string, img image.Image, zorder int) {
	if dc == nil {
		return
	}
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.Stages = append(dc.Stages, StageCapture{Name: name, Description: description, Image: img, ZOrder: zorder})
}

// SortedStages returns stages sorted by ZOrder.
func (dc *DebugContext) SortedStages() []StageCapture {
	if dc == nil {
		return nil
	}
	dc.mu.Lock()
	defer dc.mu.Unlock()
	sorted := make([]StageCapture, len(dc.Stages))
	copy(sorted, dc.Stages)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ZOrder < sorted[j].ZOrder })
	return sorted
}

// artifactCacheCapacity bounds the in-memory LRU layer in front of a
// Driver's on-disk artifact cache.
const artifactCacheCapacity = 16

// Driver runs the full composite build for one scene: index, condition,
// blend, propagate, per spec.md §5.
type Driver struct {
	opts   config.Options
	logger *slog.Logger

	// cache holds the assembled composite, blended composite, and
	// per-observation correction fields from the most recent Run, so a
	// caller can recover one without recomputing it. Nil unless
	// opts.CacheArtifacts is set.
	cache *store.Cache
}

// New builds a Driver from already-loaded Options. When opts.CacheArtifacts
// is set, it opens a SQLite-backed artifact cache under opts.OutputDir
// (spec.md §5's purgeable per-process image cache); a failure to open it
// is logged and non-fatal, since caching is strictly an optimization.
func New(opts config.Options, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Driver{opts: opts, logger: logger}
	if opts.CacheArtifacts {
		if err := os.MkdirAll(opts.OutputDir, 0o755); err != nil {
			logger.Warn("pipeline: could not create output dir for artifact cache", "err", err)
			return d
		}
		backing, err := store.Open(filepath.Join(opts.OutputDir, "artifacts.sqlite"))
		if err != nil {
			logger.Warn("pipeline: could not open artifact cache", "err", err)
			return d
		}
		d.cache = store.NewCache(backing, artifactCacheCapacity)
	}
	return d
}

// Close releases the Driver's artifact cache, if one was opened. Safe to
// call on a Driver built without caching.
func (d *Driver) Close() error {
	if d.cache == nil {
		return nil
	}
	return d.cache.Close()
}

// CachedArtifact retrieves an artifact written by the most recent Run
// (keys: "blurred", "blended", "correction/<observation id>"). It
// returns an error if caching is disabled or the key was never written.
func (d *Driver) CachedArtifact(key string) (*rimage.Image, error) {
	if d.cache == nil {
		return nil, fmt.Errorf("pipeline: artifact cache is disabled")
	}
	data, err := d.cache.Get(key)
	if err != nil {
		return nil, fmt.Errorf("pipeline: artifact %q: %w", key, err)
	}
	return rimage.Unmarshal(data)
}

// cachePut stores a rendered artifact in the Driver's cache, if enabled.
// Failures are logged and otherwise ignored: the cache is an
// optimization, never a dependency of the blend itself.
func (d *Driver) cachePut(key string, img *rimage.Image) {
	if d.cache == nil {
		return
	}
	data, err := img.Marshal()
	if err != nil {
		d.logger.Warn("pipeline: could not marshal artifact for cache", "key", key, "err", err)
		return
	}
	if err := d.cache.Put(key, data); err != nil {
		d.logger.Warn("pipeline: could not cache artifact", "key", key, "err", err)
	}
}

// Inputs bundles the raw per-observation data this driver composites. The
// caller is responsible for loading observation rasters and the scene
// index artifact ahead of time; this driver only sequences the blend.
type Inputs struct {
	// SceneIndex is the composite coherent scene index (spec.md §4.3).
	SceneIndex *rimage.Image

	// Observations maps each observation id to its raw color texture.
	Observations map[uint16]*rimage.Image

	// UsedPathC reports, per observation id, whether its contribution to
	// SceneIndex came from the shrinkwrap backproject path, which steers
	// propagate.Auto's strategy choice (spec.md §4.5).
	UsedPathC map[uint16]bool

	// Region classifies every composite pixel into a blend region, so
	// DMG's gradient coupling can be gated at region seams (spec.md
	// §4.4). Nil means the region labels are derived from SceneIndex:
	// each winning observation is its own region, and the reserved
	// sentinel values decode to hold-constant / no-data flags.
	Region func(r, c int) int32

	// RegionImage optionally supplies the region index as a raster in
	// place of SceneIndex-derived labels. Under
	// Options.UseBackprojectIndexOnly it is treated as a backproject
	// index and only band 0 is kept; otherwise a one-band image is a
	// shared plane and a B-band image labels each band independently
	// (spec.md §4.4: J has one or B bands). Ignored when Region is set.
	RegionImage *rimage.Image

	// FlagsImage optionally carries per-pixel DMG flag bits, one or B
	// bands (spec.md §6), ORed onto the index-derived flags.
	FlagsImage *rimage.Image
}

// Result is the final product of one driver run.
type Result struct {
	Composite   *rimage.Image // blended composite
	Blurred     *rimage.Image // pre-blend blurred composite
	Stats       dmg.Stats
	Corrections map[uint16]*rimage.Image
}

// Run drives C6 (conditioning), C7 (DMG blend), and C8 (propagation) over
// a pre-built scene index, per spec.md §5 steps (c)-(f).
func (d *Driver) Run(ctx context.Context, in Inputs, dbg *DebugContext) (*Result, error) {
	if in.SceneIndex == nil {
		return nil, fmt.Errorf("pipeline: no scene index supplied")
	}
	if len(in.Observations) == 0 {
		// Benign per spec.md §6 exit semantics: warn and finish cleanly.
		d.logger.Warn("pipeline: no surface observations, nothing to blend")
		return &Result{Corrections: map[uint16]*rimage.Image{}}, nil
	}
	if d.cache != nil {
		// Purge the prior run's artifacts: each Run is its own phase, per
		// spec.md §5's "purgeable at phase boundaries" cache contract.
		if err := d.cache.Purge(); err != nil {
			d.logger.Warn("pipeline: could not purge artifact cache", "err", err)
		}
	}
	layout := index.BitLayout{Legacy: d.opts.LegacyInvalidIndex}

	d.condition(in.Observations)
	dbg.Capture("00_conditioned", "per-observation luminance/chroma conditioning", nil, 0)

	blurredObs := d.blurObservations(in.Observations)
	assembled := assembleFromIndex(in.SceneIndex, blurredObs, layout)
	dbg.Capture("01_blurred", "blurred composite read through the coherent index", nil, 1)
	d.cachePut("blurred", assembled)

	solveIn := d.solveInput(assembled, in, layout)

	dmgParams := dmg.Params{
		Edge:            d.opts.DMGEdge,
		MaxVCycles:      d.opts.DMGMaxVCycles,
		RelaxSteps:      d.opts.DMGRelaxSteps,
		ResidualEpsilon: d.opts.DMGResidualEpsilon,
		Lambda:          d.opts.DMGLambda,
		ColorConv:       d.opts.DMGColorConversion,
		SRGB:            d.opts.SRGBConversion,
	}
	blended, stats, err := dmg.Solve(solveIn, dmgParams)
	if err != nil {
		return nil, fmt.Errorf("pipeline: dmg solve: %w", err)
	}
	if !stats.Converged {
		d.logger.Warn("dmg solve did not converge", "vcycles", stats.VCycles, "residual", stats.FinalResidual)
	}
	dbg.Capture("02_blended", "seam-hidden composite", nil, 2)
	d.cachePut("blended", blended)

	// Corrections are sampled against the blurred composite (spec.md
	// §4.5: delta = blended - blurred) and applied to either the blurred
	// or original observation, per the explicit option.
	applyTo := in.Observations
	if d.opts.ApplyCorrectionsToBlurred {
		applyTo = blurredObs
	}
	corrections := d.propagateCorrections(assembled, blended, applyTo, in.SceneIndex, in.UsedPathC, layout)
	dbg.Capture("03_corrections", "per-observation correction fields", nil, 3)
	for obsID, field := range corrections {
		d.cachePut(fmt.Sprintf("correction/%d", obsID), field)
	}

	return &Result{Composite: blended, Blurred: assembled, Stats: stats, Corrections: corrections}, nil
}

// blurObservations builds the pre-blurred observation variants the
// blurred composite is sampled from (spec.md §3). A sigma of 0 keeps
// the raw observations.
func (d *Driver) blurObservations(observations map[uint16]*rimage.Image) map[uint16]*rimage.Image {
	if d.opts.ObservationBlurSigma <= 0 {
		return observations
	}
	out := make(map[uint16]*rimage.Image, len(observations))
	for id, obs := range observations {
		out[id] = obs.GaussianBlur(float32(d.opts.ObservationBlurSigma))
	}
	return out
}

// solveInput assembles the DMG region and flag planes for one solve.
// Precedence: an explicit Region func, then a caller-supplied region
// raster, then labels derived from the scene index itself (each winning
// observation its own region, sentinels decoded to flags).
func (d *Driver) solveInput(assembled *rimage.Image, in Inputs, layout index.BitLayout) dmg.Input {
	h, w := assembled.Height, assembled.Width
	solve := dmg.Input{Image: assembled}

	switch {
	case in.Region != nil:
		region := make([]int32, h*w)
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				region[r*w+c] = in.Region(r, c)
			}
		}
		solve.Region = region
	case in.RegionImage != nil && !d.opts.UseBackprojectIndexOnly && in.RegionImage.Bands == assembled.Bands:
		planes := make([][]int32, in.RegionImage.Bands)
		for b := range planes {
			planes[b] = regionPlane(in.RegionImage, b)
		}
		solve.RegionBands = planes
	case in.RegionImage != nil:
		// Backproject-index form, or a one-band region raster: keep
		// only band 0.
		solve.Region = regionPlane(in.RegionImage, 0)
	default:
		solve.Region, solve.Flags = regionsFromIndex(in.SceneIndex, layout)
	}

	if in.FlagsImage != nil {
		shared, perBand := dmg.FlagsFromImage(in.FlagsImage)
		switch {
		case perBand != nil:
			for b := range perBand {
				orFlags(perBand[b], solve.Flags)
			}
			solve.FlagsBands = perBand
			solve.Flags = nil
		case solve.Flags == nil:
			solve.Flags = shared
		default:
			orFlags(solve.Flags, shared)
		}
	}
	return solve
}

// orFlags ORs src into dst in place; a nil src is a no-op.
func orFlags(dst, src []dmg.Flags) {
	for i := range src {
		dst[i] |= src[i]
	}
}

func regionPlane(img *rimage.Image, band int) []int32 {
	out := make([]int32, img.Height*img.Width)
	for r := 0; r < img.Height; r++ {
		for c := 0; c < img.Width; c++ {
			if !img.Valid(r, c) {
				continue
			}
			out[r*img.Width+c] = int32(img.At(band, r, c))
		}
	}
	return out
}

// regionsFromIndex derives DMG inputs from the coherent index: the
// winning observation id is the region label, and the reserved sentinel
// values become hold-constant / no-data flags (spec.md §6).
func regionsFromIndex(idx *rimage.Image, layout index.BitLayout) ([]int32, []dmg.Flags) {
	h, w := idx.Height, idx.Width
	region := make([]int32, h*w)
	flags := make([]dmg.Flags, h*w)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			i := r*w + c
			if !idx.Valid(r, c) {
				flags[i] = dmg.FlagNoData
				continue
			}
			class, obsID := layout.Decode(uint16(idx.At(0, r, c)))
			switch class {
			case index.ClassValid:
				region[i] = int32(obsID)
			case index.ClassHoldConstant:
				flags[i] = dmg.FlagHoldConstant
			default:
				flags[i] = dmg.FlagNoData
			}
		}
	}
	return region, flags
}

// condition nudges every observation's luminance toward the scene-wide
// median and colorizes monochrome ones, per spec.md §4.2.
func (d *Driver) condition(observations map[uint16]*rimage.Image) {
	if len(observations) == 0 {
		return
	}
	imgs := make([]*rimage.Image, 0, len(observations))
	for _, img := range observations {
		imgs = append(imgs, img)
	}
	target := conditioner.GlobalMedianLuminance(imgs)
	if d.opts.LuminanceStrength > 0 {
		for _, img := range imgs {
			conditioner.AdjustLuminance(img, target, d.opts.LuminanceStrength)
		}
	}
	if !d.opts.Colorize {
		return
	}
	hue := conditioner.MedianHue(imgs, 0, 1, 2)
	for id, img := range observations {
		if img.Bands > 1 {
			continue
		}
		observations[id] = conditioner.Colorize(img, hue)
	}
}

// assembleFromIndex builds the raw mosaic a blend starts from: for every
// composite pixel, look up its winning observation through layout and
// copy the corresponding source texel (spec.md §4.3/§4.4).
func assembleFromIndex(idx *rimage.Image, observations map[uint16]*rimage.Image, layout index.BitLayout) *rimage.Image {
	bands := 3
	for _, obs := range observations {
		bands = obs.Bands
		break
	}
	out := rimage.New(bands, idx.Height, idx.Width)
	for r := 0; r < idx.Height; r++ {
		for c := 0; c < idx.Width; c++ {
			if !idx.Valid(r, c) {
				continue
			}
			class, obsID := layout.Decode(uint16(idx.At(0, r, c)))
			if class != index.ClassValid {
				continue
			}
			obs, ok := observations[obsID]
			if !ok {
				continue
			}
			srcR := int(idx.At(1, r, c))
			srcC := int(idx.At(2, r, c))
			if !obs.Valid(srcR, srcC) {
				continue
			}
			out.SetBands(r, c, obs.At3(srcR, srcC))
		}
	}
	return out
}

// propagateCorrections derives, per observation, the delta the blend
// applied at every pixel that observation contributed, then rebuilds a
// dense correction field to apply to that observation's own raster
// (spec.md §4.5, component C8).
func (d *Driver) propagateCorrections(before, after *rimage.Image, observations map[uint16]*rimage.Image, idx *rimage.Image, usedPathC map[uint16]bool, layout index.BitLayout) map[uint16]*rimage.Image {
	type accum struct {
		samples []propagate.Sample
	}
	byObs := make(map[uint16]*accum)
	for r := 0; r < idx.Height; r++ {
		for c := 0; c < idx.Width; c++ {
			if !idx.Valid(r, c) || !before.Valid(r, c) || !after.Valid(r, c) {
				continue
			}
			class, obsID := layout.Decode(uint16(idx.At(0, r, c)))
			if class != index.ClassValid {
				continue
			}
			bv, av := before.At3(r, c), after.At3(r, c)
			delta := make([]float32, len(bv))
			for b := range bv {
				delta[b] = av[b] - bv[b]
			}
			a, ok := byObs[obsID]
			if !ok {
				a = &accum{}
				byObs[obsID] = a
			}
			a.samples = append(a.samples, propagate.Sample{
				Row: int(idx.At(1, r, c)), Col: int(idx.At(2, r, c)), Delta: delta, Winner: true,
			})
		}
	}

	params := propagate.DefaultParams()
	params.BlurRadius = d.opts.CorrectionBlurRadius

	out := make(map[uint16]*rimage.Image, len(byObs))
	for obsID, a := range byObs {
		obs, ok := observations[obsID]
		if !ok {
			continue
		}
		strategy := d.opts.BlendStrategy.Resolve(usedPathC[obsID])
		field, err := propagate.BuildField(obs.Height, obs.Width, obs.Bands, a.samples, propagate.Params{
			Strategy:     strategy,
			BlurRadius:   params.BlurRadius,
			IDWNeighbors: params.IDWNeighbors,
			IDWPower:     params.IDWPower,
		}, 3)
		if err != nil {
			d.logger.Warn("propagate: building correction field failed", "observation", obsID, "err", err)
			continue
		}
		out[obsID] = propagate.Apply(obs, field)
	}
	return out
}
