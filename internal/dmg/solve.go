package dmg

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/roverterrain/texcomposite/internal/perr"
	"github.com/roverterrain/texcomposite/internal/rimage"
)

// Input bundles everything Solve needs per band: the observed values, a
// per-pixel region label (pixels only exchange gradients with same-region
// neighbors), and optional per-pixel flags.
//
// Region and Flags are single planes shared by every band. When the
// caller's region index or flags image carries one plane per band
// instead (spec.md §4.4: "one or B bands"), RegionBands / FlagsBands
// supply them and the shared planes are ignored for those inputs.
type Input struct {
	Image  *rimage.Image
	Region []int32 // len must be Image.Height*Image.Width
	Flags  []Flags // optional, same length; nil means FlagNone everywhere

	RegionBands [][]int32 // optional, len Image.Bands, each plane h*w
	FlagsBands  [][]Flags // optional, len Image.Bands, each plane h*w
}

func (in Input) regionFor(band int) []int32 {
	if len(in.RegionBands) == in.Image.Bands {
		return in.RegionBands[band]
	}
	return in.Region
}

func (in Input) flagsFor(band int) []Flags {
	if len(in.FlagsBands) == in.Image.Bands {
		return in.FlagsBands[band]
	}
	return in.Flags
}

// Solve runs the V-cycle gradient-domain solve independently per band of
// in.Image and returns a new image of the same shape holding the blended
// result, per spec.md §4.4.
func Solve(in Input, params Params) (*rimage.Image, Stats, error) {
	h, w := in.Image.Height, in.Image.Width
	if h == 0 || w == 0 {
		return nil, Stats{}, perr.New(perr.KindDimensionMismatch, "dmg.Solve", nil)
	}
	if len(in.RegionBands) == in.Image.Bands {
		for _, plane := range in.RegionBands {
			if len(plane) != h*w {
				return nil, Stats{}, perr.New(perr.KindDimensionMismatch, "dmg.Solve", nil)
			}
		}
	} else if len(in.Region) != h*w {
		return nil, Stats{}, perr.New(perr.KindDimensionMismatch, "dmg.Solve", nil)
	}
	if in.Flags != nil && len(in.Flags) != h*w {
		return nil, Stats{}, perr.New(perr.KindDimensionMismatch, "dmg.Solve", nil)
	}
	for _, plane := range in.FlagsBands {
		if len(plane) != h*w {
			return nil, Stats{}, perr.New(perr.KindDimensionMismatch, "dmg.Solve", nil)
		}
	}

	ph, pw := nextPow2(h), nextPow2(w)

	valid := func(r, c int) bool {
		if r >= h || c >= w {
			return false
		}
		return in.Image.Valid(r, c)
	}

	out := rimage.New(in.Image.Bands, h, w)
	var worst Stats
	worst.Converged = true

	noValidPixels := in.Image.ValidCount() == 0

	for band := 0; band < in.Image.Bands; band++ {
		if noValidPixels {
			// spec.md §4.4 Failure: a band with no valid pixels copies the
			// input unchanged rather than solving to a spurious zero.
			copyBandIdentity(out, in.Image, band, h, w)
			continue
		}

		converted := convertBand(in.Image, band, params)
		padded := padBand(converted, h, w, ph, pw)
		region := padRegion(in.regionFor(band), h, w, ph, pw)
		flags := padFlags(in.flagsFor(band), h, w, ph, pw)

		levels := buildPyramid(ph, pw, region, flags, func(r, c int) bool {
			return r < h && c < w && valid(r, c)
		})
		seedLevel0B(levels[0], padded, params)

		stats := vCycleLoop(levels, params)
		if !stats.Converged && worst.Converged {
			worst = stats
		} else if stats.VCycles > worst.VCycles {
			worst = stats
		}

		if bandHasNaN(levels[0], h, w) {
			slog.Warn("dmg: band solve produced NaN, downgrading to identity", "band", band)
			copyBandIdentity(out, in.Image, band, h, w)
			continue
		}

		writeBandBack(out, band, levels[0], h, w, params)
	}

	return out, worst, nil
}

// copyBandIdentity writes band of src into out unchanged, preserving
// src's validity mask instead of marking every pixel valid.
func copyBandIdentity(out *rimage.Image, src *rimage.Image, band, h, w int) {
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			if !src.Valid(r, c) {
				out.SetValid(r, c, false)
				continue
			}
			out.Set(band, r, c, src.At(band, r, c))
		}
	}
}

// bandHasNaN reports whether the solved level-0 output contains a NaN at
// any in-bounds, valid, non-held pixel.
func bandHasNaN(lv0 *level, h, w int) bool {
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			i := lv0.idx(r, c)
			if !lv0.valid[i] {
				continue
			}
			if math.IsNaN(lv0.o[i]) {
				return true
			}
		}
	}
	return false
}

// convertBand extracts band data as float64, applying color conversion
// jointly across the first three bands when configured. Bands beyond the
// third, or any band when ColorConv is ColorNone, pass through untouched.
func convertBand(img *rimage.Image, band int, params Params) []float64 {
	h, w := img.Height, img.Width
	out := make([]float64, h*w)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			i := r*w + c
			if !img.Valid(r, c) {
				continue
			}
			if params.ColorConv != ColorNone && band < 3 && img.Bands >= 3 {
				rgb := [3]float32{img.At(0, r, c), img.At(1, r, c), img.At(2, r, c)}
				cr, cg, cb := params.convertForward(rgb[0], rgb[1], rgb[2])
				conv := [3]float32{cr, cg, cb}
				out[i] = float64(conv[band])
				continue
			}
			out[i] = float64(img.At(band, r, c))
		}
	}
	return out
}

func writeBandBack(out *rimage.Image, band int, lv0 *level, h, w int, params Params) {
	if params.ColorConv != ColorNone && band < 3 && out.Bands >= 3 {
		// Reconstructed once the third band of the triple has been solved;
		// until then stash the solved-but-unconverted component.
		stashBand(out, band, lv0, h, w)
		if band == 2 {
			reconstructLab(out, h, w, params)
		}
		return
	}
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			i := lv0.idx(r, c)
			if !lv0.valid[i] {
				out.SetValid(r, c, false)
				continue
			}
			out.Set(band, r, c, float32(lv0.o[i]))
		}
	}
}

func stashBand(out *rimage.Image, band int, lv0 *level, h, w int) {
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			i := lv0.idx(r, c)
			if !lv0.valid[i] {
				out.SetValid(r, c, false)
				continue
			}
			out.Set(band, r, c, float32(lv0.o[i]))
		}
	}
}

func reconstructLab(out *rimage.Image, h, w int, params Params) {
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			if !out.Valid(r, c) {
				continue
			}
			l, a, b := out.At(0, r, c), out.At(1, r, c), out.At(2, r, c)
			rr, gg, bb := params.convertBackward(l, a, b)
			out.Set(0, r, c, rr)
			out.Set(1, r, c, gg)
			out.Set(2, r, c, bb)
		}
	}
}

// seedLevel0B computes the level-0 RHS b(p) = wf(p)*I(p) +
// lambda*sum_q(I(p)-I(q)) over same-region valid neighbors, per the
// objective's stationary point (spec.md §4.4).
func seedLevel0B(lv0 *level, padded []float64, params Params) {
	for r := 0; r < lv0.h; r++ {
		for c := 0; c < lv0.w; c++ {
			i := lv0.idx(r, c)
			if !lv0.valid[i] {
				continue
			}
			ip := padded[i]
			if lv0.hold[i] {
				lv0.o[i] = ip
				lv0.b[i] = ip
				continue
			}
			b := float64(lv0.wf[i]) * ip
			for _, d := range deltas {
				nr, nc, ok := neighbor(r, c, d[0], d[1], lv0.h, lv0.w, params.Edge)
				if !ok {
					continue
				}
				ni := lv0.idx(nr, nc)
				if !lv0.valid[ni] || lv0.region[ni] != lv0.region[i] {
					continue
				}
				b += params.Lambda * (ip - padded[ni])
			}
			lv0.b[i] = b
			lv0.o[i] = ip
		}
	}
}

// diagAndNeighborSum returns diag = wf(p) and the sum of O over p's
// same-region valid neighbors under the configured edge behavior. Callers
// add lambda*deg(p) to diag to form A(p,p).
func diagAndNeighborSum(lv *level, r, c int, edge EdgeBehavior) (diag float64, neighborSum float64) {
	i := lv.idx(r, c)
	deg := 0
	for _, d := range deltas {
		nr, nc, ok := neighbor(r, c, d[0], d[1], lv.h, lv.w, edge)
		if !ok {
			continue
		}
		ni := lv.idx(nr, nc)
		if !lv.valid[ni] || lv.region[ni] != lv.region[i] {
			continue
		}
		deg++
		neighborSum += lv.o[ni]
	}
	diag = float64(lv.wf[i])
	return diag, neighborSum
}

func relaxSweep(lv *level, params Params) {
	for parity := 0; parity < 2; parity++ {
		for r := 0; r < lv.h; r++ {
			for c := 0; c < lv.w; c++ {
				if (r+c)%2 != parity {
					continue
				}
				i := lv.idx(r, c)
				if !lv.valid[i] || lv.hold[i] {
					continue
				}
				diag, neighborSum := diagAndNeighborSum(lv, r, c, params.Edge)
				deg := 0.0
				for _, d := range deltas {
					nr, nc, ok := neighbor(r, c, d[0], d[1], lv.h, lv.w, params.Edge)
					if !ok {
						continue
					}
					ni := lv.idx(nr, nc)
					if !lv.valid[ni] || lv.region[ni] != lv.region[i] {
						continue
					}
					deg++
				}
				denom := diag + params.Lambda*deg
				if denom < 1e-12 {
					continue
				}
				lv.o[i] = (lv.b[i] + params.Lambda*neighborSum) / denom
			}
		}
	}
}

// residual computes res(p) = b(p) - A(p,p)*O(p) + lambda*sum_q O(q) for
// every valid, non-held pixel of lv.
func residual(lv *level, params Params) []float64 {
	out := make([]float64, lv.h*lv.w)
	for r := 0; r < lv.h; r++ {
		for c := 0; c < lv.w; c++ {
			i := lv.idx(r, c)
			if !lv.valid[i] || lv.hold[i] {
				continue
			}
			diag, neighborSum := diagAndNeighborSum(lv, r, c, params.Edge)
			deg := 0.0
			for _, d := range deltas {
				nr, nc, ok := neighbor(r, c, d[0], d[1], lv.h, lv.w, params.Edge)
				if !ok {
					continue
				}
				ni := lv.idx(nr, nc)
				if !lv.valid[ni] || lv.region[ni] != lv.region[i] {
					continue
				}
				deg++
			}
			a := diag + params.Lambda*deg
			out[i] = lv.b[i] - a*lv.o[i] + params.Lambda*neighborSum
		}
	}
	return out
}

func residualNorm(res []float64) float64 {
	sq := make([]float64, len(res))
	for i, v := range res {
		sq[i] = v * v
	}
	return math.Sqrt(floats.Sum(sq))
}

// vCycle runs one V-cycle over levels starting at index lvl, leaving the
// correction in levels[lvl].o (added in-place at finer levels via
// prolongAdd). It returns nothing; callers compute the residual norm.
func vCycle(levels []*level, lvl int, params Params) {
	lv := levels[lvl]
	if lvl == len(levels)-1 {
		relaxSweep(lv, params)
		relaxSweep(lv, params)
		return
	}
	for k := 0; k < params.RelaxSteps; k++ {
		relaxSweep(lv, params)
	}
	res := residual(lv, params)
	coarse := levels[lvl+1]
	coarse.b = restrict(lv, res)
	for i := range coarse.o {
		coarse.o[i] = 0
	}
	vCycle(levels, lvl+1, params)
	prolongAdd(lv, coarse)
	for k := 0; k < params.RelaxSteps; k++ {
		relaxSweep(lv, params)
	}
}

func vCycleLoop(levels []*level, params Params) Stats {
	lv0 := levels[0]
	var stats Stats
	for i := 0; i < params.MaxVCycles; i++ {
		vCycle(levels, 0, params)
		stats.VCycles = i + 1
		res := residual(lv0, params)
		norm := residualNorm(res)
		stats.FinalResidual = norm
		if norm < params.ResidualEpsilon {
			stats.Converged = true
			return stats
		}
	}
	stats.Converged = false
	return stats
}

func nextPow2(n int) int {
	p := 1
	for p < n {
		p *= 2
	}
	if p < 1 {
		p = 1
	}
	return p
}

func padRegion(region []int32, h, w, ph, pw int) []int32 {
	if ph == h && pw == w {
		return region
	}
	out := make([]int32, ph*pw)
	for r := 0; r < h; r++ {
		copy(out[r*pw:r*pw+w], region[r*w:r*w+w])
	}
	return out
}

func padFlags(flags []Flags, h, w, ph, pw int) []Flags {
	out := make([]Flags, ph*pw)
	for i := range out {
		out[i] = FlagNoData
	}
	if flags == nil {
		for r := 0; r < h; r++ {
			for c := 0; c < w; c++ {
				out[r*pw+c] = FlagNone
			}
		}
		return out
	}
	for r := 0; r < h; r++ {
		copy(out[r*pw:r*pw+w], flags[r*w:r*w+w])
	}
	return out
}

func padBand(band []float64, h, w, ph, pw int) []float64 {
	if ph == h && pw == w {
		return band
	}
	out := make([]float64, ph*pw)
	for r := 0; r < h; r++ {
		copy(out[r*pw:r*pw+w], band[r*w:r*w+w])
	}
	return out
}
