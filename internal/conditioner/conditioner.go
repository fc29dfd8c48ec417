// Package conditioner implements the pre-blend luminance and chroma
// adjustments of spec.md §4.2's component C6: nudging each observation's
// luminance toward a scene-wide median before DMG runs, and computing a
// median hue so monochrome observations can be colorized.
package conditioner

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/roverterrain/texcomposite/internal/rimage"
)

// LuminanceBand is the band index treated as luminance for the purposes
// of this package (band 0 of a single-band image, or the pre-computed
// luma band of an RGB image).
const LuminanceBand = 0

// GlobalMedianLuminance computes the median of band LuminanceBand's
// valid samples across every image, weighting each image equally
// regardless of its pixel count so one large tile can't dominate.
func GlobalMedianLuminance(images []*rimage.Image) float64 {
	var perImageMedians []float64
	for _, img := range images {
		vals := validValues(img, LuminanceBand)
		if len(vals) == 0 {
			continue
		}
		sort.Float64s(vals)
		perImageMedians = append(perImageMedians, stat.Quantile(0.5, stat.Empirical, vals, nil))
	}
	if len(perImageMedians) == 0 {
		return 0
	}
	sort.Float64s(perImageMedians)
	n := len(perImageMedians)
	if n%2 == 0 {
		return (perImageMedians[n/2-1] + perImageMedians[n/2]) / 2
	}
	return perImageMedians[n/2]
}

// AdjustLuminance shifts img's luminance band toward target by strength
// in [0,1], where 0 is a no-op and 1 fully replaces the image's own
// median with target. Strength outside [0,1] is clamped.
func AdjustLuminance(img *rimage.Image, target float64, strength float64) {
	if strength <= 0 {
		return
	}
	if strength > 1 {
		strength = 1
	}
	vals := validValues(img, LuminanceBand)
	if len(vals) == 0 {
		return
	}
	sort.Float64s(vals)
	own := stat.Quantile(0.5, stat.Empirical, vals, nil)
	shift := (target - own) * strength
	img.ApplyInPlace(LuminanceBand, func(v float32) float32 {
		return float32(float64(v) + shift)
	})
}

// MedianHue computes the circular mean hue (degrees, [0,360)) over every
// valid, non-gray RGB pixel across all images: the direction of the mean
// unit hue vector. It is a mean, not a median, so off-hue outliers pull
// the result. Used for colorizing monochrome observations; returns 0 when
// no pixel has a defined hue. rBand/gBand/bBand name the RGB band indices.
func MedianHue(images []*rimage.Image, rBand, gBand, bBand int) float64 {
	var sins, coss []float64
	for _, img := range images {
		for r := 0; r < img.Height; r++ {
			for c := 0; c < img.Width; c++ {
				if !img.Valid(r, c) {
					continue
				}
				h, s := hueSaturation(img.At(rBand, r, c), img.At(gBand, r, c), img.At(bBand, r, c))
				if s < 1e-3 {
					continue // hue undefined for near-gray pixels
				}
				rad := h * math.Pi / 180
				sins = append(sins, math.Sin(rad))
				coss = append(coss, math.Cos(rad))
			}
		}
	}
	if len(sins) == 0 {
		return 0
	}
	meanSin := stat.Mean(sins, nil)
	meanCos := stat.Mean(coss, nil)
	deg := math.Atan2(meanSin, meanCos) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}

// Colorize applies hueDeg at a fixed saturation of 0.35 to a single-band grayscale
// image, producing a 3-band RGB image with the gray value as lightness.
func Colorize(mono *rimage.Image, hueDeg float64) *rimage.Image {
	out := rimage.New(3, mono.Height, mono.Width)
	for r := 0; r < mono.Height; r++ {
		for c := 0; c < mono.Width; c++ {
			if !mono.Valid(r, c) {
				continue
			}
			v := mono.At(0, r, c)
			rr, gg, bb := hsvToRGB(hueDeg, 0.35, float64(v))
			out.SetBands(r, c, []float32{rr, gg, bb})
		}
	}
	return out
}

func validValues(img *rimage.Image, band int) []float64 {
	var out []float64
	for r := 0; r < img.Height; r++ {
		for c := 0; c < img.Width; c++ {
			if !img.Valid(r, c) {
				continue
			}
			out = append(out, float64(img.At(band, r, c)))
		}
	}
	return out
}

// hueSaturation converts linear RGB to HSV hue (degrees) and saturation.
func hueSaturation(r, g, b float32) (hue, sat float64) {
	maxV := math.Max(float64(r), math.Max(float64(g), float64(b)))
	minV := math.Min(float64(r), math.Min(float64(g), float64(b)))
	delta := maxV - minV
	if delta < 1e-9 {
		return 0, 0
	}
	if maxV > 0 {
		sat = delta / maxV
	}
	switch maxV {
	case float64(r):
		hue = 60 * math.Mod((float64(g)-float64(b))/delta, 6)
	case float64(g):
		hue = 60 * ((float64(b)-float64(r))/delta + 2)
	default:
		hue = 60 * ((float64(r)-float64(g))/delta + 4)
	}
	if hue < 0 {
		hue += 360
	}
	return hue, sat
}

func hsvToRGB(h, s, v float64) (r, g, b float32) {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60, 2)-1))
	m := v - c
	var rr, gg, bb float64
	switch {
	case h < 60:
		rr, gg, bb = c, x, 0
	case h < 120:
		rr, gg, bb = x, c, 0
	case h < 180:
		rr, gg, bb = 0, c, x
	case h < 240:
		rr, gg, bb = 0, x, c
	case h < 300:
		rr, gg, bb = x, 0, c
	default:
		rr, gg, bb = c, 0, x
	}
	return float32(rr + m), float32(gg + m), float32(bb + m)
}
