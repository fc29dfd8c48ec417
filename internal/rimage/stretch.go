package rimage

import (
	"sort"

	"gonum.org/v1/gonum/stat"
)

// HistogramStretch linearly rescales band b so that the loPct and hiPct
// percentiles of its valid samples map to 0 and 1, clamping outliers.
func (img *Image) HistogramStretch(band int, loPct, hiPct float64) {
	vals := img.validBandValues(band)
	if len(vals) == 0 {
		return
	}
	sort.Float64s(vals)
	lo := percentile(vals, loPct)
	hi := percentile(vals, hiPct)
	if hi <= lo {
		return
	}
	img.ApplyInPlace(band, func(v float32) float32 {
		f := (float64(v) - lo) / (hi - lo)
		return float32(clampf(f, 0, 1))
	})
}

// StddevStretch rescales band b about its mean by k standard deviations,
// mapping [mean-k*sigma, mean+k*sigma] to [0,1].
func (img *Image) StddevStretch(band int, k float64) {
	vals := img.validBandValues(band)
	if len(vals) == 0 {
		return
	}
	mean, sigma := stat.MeanStdDev(vals, nil)
	if sigma <= 0 {
		return
	}
	lo := mean - k*sigma
	hi := mean + k*sigma
	img.ApplyInPlace(band, func(v float32) float32 {
		f := (float64(v) - lo) / (hi - lo)
		return float32(clampf(f, 0, 1))
	})
}

func (img *Image) validBandValues(band int) []float64 {
	var out []float64
	off := img.bandOffset(band)
	for r := 0; r < img.Height; r++ {
		for c := 0; c < img.Width; c++ {
			if !img.Valid(r, c) {
				continue
			}
			out = append(out, float64(img.Data[off+img.pixelIndex(r, c)]))
		}
	}
	return out
}

func percentile(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	pct = clampf(pct, 0, 1)
	idx := pct * float64(len(sorted)-1)
	lo := int(idx)
	hi := minInt(lo+1, len(sorted)-1)
	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
