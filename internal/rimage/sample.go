package rimage

import "math"

// BilinearSample samples band b at floating-point coordinate (y, x),
// clamping out-of-range coordinates to the image border. Masked
// contributing corners are dropped and the remaining weights renormalized;
// if all four corners are masked the sample is reported invalid.
func (img *Image) BilinearSample(b int, y, x float64) (float32, bool) {
	if img.Height == 0 || img.Width == 0 {
		return 0, false
	}
	x = clampf(x, 0, float64(img.Width-1))
	y = clampf(y, 0, float64(img.Height-1))

	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	x1 := minInt(x0+1, img.Width-1)
	y1 := minInt(y0+1, img.Height-1)
	fx := x - float64(x0)
	fy := y - float64(y0)

	type corner struct {
		r, c int
		w    float64
	}
	corners := [4]corner{
		{y0, x0, (1 - fx) * (1 - fy)},
		{y0, x1, fx * (1 - fy)},
		{y1, x0, (1 - fx) * fy},
		{y1, x1, fx * fy},
	}

	var sum, wsum float64
	for _, cn := range corners {
		if !img.Valid(cn.r, cn.c) {
			continue
		}
		sum += float64(img.Data[img.bandOffset(b)+img.pixelIndex(cn.r, cn.c)]) * cn.w
		wsum += cn.w
	}
	if wsum <= 0 {
		return 0, false
	}
	return float32(sum / wsum), true
}

func clampf(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// DecimateMode selects the reduction used by Decimate.
type DecimateMode int

const (
	DecimateMean DecimateMode = iota
	DecimatePick
)

// Decimate reduces the image by an integer block factor. DecimateMean
// averages valid samples within each block; DecimatePick keeps the
// top-left valid sample of the block. A block with no valid samples is
// masked in the output.
func (img *Image) Decimate(factor int, mode DecimateMode) *Image {
	if factor <= 1 {
		return img.Clone()
	}
	outH := (img.Height + factor - 1) / factor
	outW := (img.Width + factor - 1) / factor
	out := New(img.Bands, outH, outW)

	vals := make([]float32, img.Bands)
	for or := 0; or < outH; or++ {
		for oc := 0; oc < outW; oc++ {
			switch mode {
			case DecimatePick:
				found := false
				for dr := 0; dr < factor && !found; dr++ {
					for dc := 0; dc < factor && !found; dc++ {
						r, c := or*factor+dr, oc*factor+dc
						if r >= img.Height || c >= img.Width || !img.Valid(r, c) {
							continue
						}
						copy(vals, img.At3(r, c))
						found = true
					}
				}
				if found {
					out.SetBands(or, oc, vals)
				}
			default: // DecimateMean
				sums := make([]float64, img.Bands)
				count := 0
				for dr := 0; dr < factor; dr++ {
					for dc := 0; dc < factor; dc++ {
						r, c := or*factor+dr, oc*factor+dc
						if r >= img.Height || c >= img.Width || !img.Valid(r, c) {
							continue
						}
						v := img.At3(r, c)
						for b := range sums {
							sums[b] += float64(v[b])
						}
						count++
					}
				}
				if count > 0 {
					for b := range vals {
						vals[b] = float32(sums[b] / float64(count))
					}
					out.SetBands(or, oc, vals)
				}
			}
		}
	}
	return out
}

// Resize bilinearly resamples the image to the given dimensions. Used by
// panorama.SplitTiles to bring each cut tile to the tile size.
func (img *Image) Resize(height, width int) *Image {
	out := New(img.Bands, height, width)
	if img.Height == 0 || img.Width == 0 || height == 0 || width == 0 {
		return out
	}
	scaleY := float64(img.Height-1) / float64(maxInt(height-1, 1))
	scaleX := float64(img.Width-1) / float64(maxInt(width-1, 1))
	if height == 1 {
		scaleY = 0
	}
	if width == 1 {
		scaleX = 0
	}
	vals := make([]float32, img.Bands)
	for r := 0; r < height; r++ {
		sy := float64(r) * scaleY
		for c := 0; c < width; c++ {
			sx := float64(c) * scaleX
			any := false
			for b := 0; b < img.Bands; b++ {
				v, ok := img.BilinearSample(b, sy, sx)
				if ok {
					any = true
				}
				vals[b] = v
			}
			if any {
				out.SetBands(r, c, vals)
			}
		}
	}
	return out
}
