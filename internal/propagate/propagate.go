// Package propagate turns sparse per-observation (blended − blurred)
// samples into dense per-observation correction fields (spec.md §4.5,
// component C8).
package propagate

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"

	"github.com/roverterrain/texcomposite/internal/rimage"
)

// Strategy selects how sparse Δ samples are turned into a dense field.
type Strategy int

const (
	None Strategy = iota
	Auto
	Barycentric
	Inpaint
	BarycentricWinners
)

// ParseStrategy parses the config-surface name of a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch strings.ToLower(s) {
	case "none":
		return None, nil
	case "auto":
		return Auto, nil
	case "barycentric":
		return Barycentric, nil
	case "inpaint":
		return Inpaint, nil
	case "barycentricwinners", "barycentric-winners":
		return BarycentricWinners, nil
	}
	return 0, fmt.Errorf("propagate: unknown strategy %q", s)
}

// Resolve turns Auto into a concrete strategy. usedPathC reports whether
// the coherent index for this observation came from the shrinkwrap +
// backproject path (Path C), per spec.md §4.5's Auto policy.
func (s Strategy) Resolve(usedPathC bool) Strategy {
	if s != Auto {
		return s
	}
	if usedPathC {
		return Barycentric
	}
	return Inpaint
}

// Sample is one sparse correction observation: a pixel at (Row, Col) in
// an observation image's native resolution, with the per-band delta
// between the blended and blurred composite at that pixel, and whether
// the pixel was a "winner" (already textured) at the time of sampling.
type Sample struct {
	Row, Col int
	Delta    []float32
	Winner   bool
}

// Params configures field construction.
type Params struct {
	Strategy   Strategy
	BlurRadius float64 // default 7, per spec.md §4.5
	// IDWNeighbors bounds the neighbor count used by the Barycentric
	// strategies' inverse-distance-weighted interpolation (the pack
	// carries no Delaunay triangulation library; see DESIGN.md).
	IDWNeighbors int
	IDWPower     float64
}

// DefaultParams returns spec.md §4.5's stated default blur radius.
func DefaultParams() Params {
	return Params{Strategy: Auto, BlurRadius: 7, IDWNeighbors: 8, IDWPower: 2}
}

// BuildField scatters samples into a dense, single-pass-blurred
// correction field sized height x width with the given band count. If
// fewer than minSamples land, the field is filled with the mean Δ
// across all samples instead ("fill blend with average diff").
func BuildField(height, width, bands int, samples []Sample, params Params, minSamples int) (*rimage.Image, error) {
	if params.Strategy == None || len(samples) == 0 {
		return rimage.New(bands, height, width), nil
	}

	active := samples
	if params.Strategy == BarycentricWinners {
		active = filterWinners(samples)
	}

	if len(active) < minSamples {
		return meanField(height, width, bands, samples), nil
	}

	var field *rimage.Image
	var err error
	switch params.Strategy {
	case Barycentric, BarycentricWinners:
		field, err = idwField(height, width, bands, active, params)
	case Inpaint:
		field, err = inpaintField(height, width, bands, active)
	default:
		field, err = idwField(height, width, bands, active, params)
	}
	if err != nil {
		return nil, err
	}

	if params.BlurRadius > 0 {
		field = field.GaussianBlur(float32(params.BlurRadius))
	}
	return field, nil
}

func filterWinners(samples []Sample) []Sample {
	out := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if s.Winner {
			out = append(out, s)
		}
	}
	return out
}

func meanField(height, width, bands int, samples []Sample) *rimage.Image {
	mean := make([]float32, bands)
	if len(samples) > 0 {
		for _, s := range samples {
			for b := 0; b < bands && b < len(s.Delta); b++ {
				mean[b] += s.Delta[b]
			}
		}
		for b := range mean {
			mean[b] /= float32(len(samples))
		}
	}
	out := rimage.New(bands, height, width)
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			out.SetBands(r, c, mean)
		}
	}
	return out
}

// idwField approximates the spec's Delaunay-triangulation barycentric
// interpolation with inverse-distance weighting over the k nearest
// samples, located via a quadtree (the retrieval pack carries no 2-D
// triangulation library; see DESIGN.md).
func idwField(height, width, bands int, samples []Sample, params Params) (*rimage.Image, error) {
	bound := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{float64(width), float64(height)}}
	qt := quadtree.New(bound)

	type keyed struct {
		delta []float32
	}
	lookup := make(map[orb.Point]keyed, len(samples))
	for _, s := range samples {
		p := orb.Point{float64(s.Col), float64(s.Row)}
		if err := qt.Add(p); err != nil {
			return nil, fmt.Errorf("propagate: add sample: %w", err)
		}
		lookup[p] = keyed{delta: s.Delta}
	}

	k := params.IDWNeighbors
	if k <= 0 {
		k = 8
	}
	power := params.IDWPower
	if power <= 0 {
		power = 2
	}

	out := rimage.New(bands, height, width)
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			p := orb.Point{float64(c), float64(r)}
			neighbors := qt.KNearest(nil, p, k)
			vals := make([]float32, bands)
			weightSum := 0.0
			for _, n := range neighbors {
				np, ok := n.(orb.Point)
				if !ok {
					continue
				}
				d := planar.Distance(np, p)
				w := 1.0
				if d > 1e-9 {
					w = 1.0 / powf(d, power)
				} else {
					// Exact sample hit: take it directly.
					weightSum = 0
					for b := range vals {
						vals[b] = 0
					}
					if s, ok := lookup[np]; ok {
						for b := 0; b < bands && b < len(s.delta); b++ {
							vals[b] = s.delta[b]
						}
					}
					weightSum = 1
					break
				}
				s, ok := lookup[np]
				if !ok {
					continue
				}
				for b := 0; b < bands && b < len(s.delta); b++ {
					vals[b] += float32(w) * s.delta[b]
				}
				weightSum += w
			}
			if weightSum > 0 {
				for b := range vals {
					vals[b] /= float32(weightSum)
				}
			}
			out.SetBands(r, c, vals)
		}
	}
	return out, nil
}

func inpaintField(height, width, bands int, samples []Sample) (*rimage.Image, error) {
	out := rimage.New(bands, height, width)
	for _, s := range samples {
		if s.Row < 0 || s.Row >= height || s.Col < 0 || s.Col >= width {
			continue
		}
		out.SetBands(s.Row, s.Col, s.Delta)
	}
	radius := maxInt(height, width)
	return out.Inpaint(radius, rimage.Conn8), nil
}

// Apply adds field to obs band-for-band, producing the "Blended"
// variant of an observation.
func Apply(obs, field *rimage.Image) *rimage.Image {
	out := obs.Clone()
	for r := 0; r < out.Height; r++ {
		for c := 0; c < out.Width; c++ {
			if !out.Valid(r, c) {
				continue
			}
			vals := out.At3(r, c)
			if field.Valid(r, c) {
				fv := field.At3(r, c)
				for b := 0; b < out.Bands && b < len(fv); b++ {
					vals[b] += fv[b]
				}
			}
			out.SetBands(r, c, vals)
		}
	}
	return out
}

func powf(base, exp float64) float64 { return math.Pow(base, exp) }

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
