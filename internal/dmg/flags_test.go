package dmg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roverterrain/texcomposite/internal/rimage"
)

func TestFlagsFromImageOneBandIsShared(t *testing.T) {
	img := rimage.New(1, 2, 2)
	img.Set(0, 0, 0, float32(FlagHoldConstant))
	img.Set(0, 0, 1, float32(FlagGradientOnly))
	img.Set(0, 1, 0, 0)
	// (1,1) left masked.

	shared, perBand := FlagsFromImage(img)
	require.Nil(t, perBand)
	require.Len(t, shared, 4)
	assert.Equal(t, FlagHoldConstant, shared[0])
	assert.Equal(t, FlagGradientOnly, shared[1])
	assert.Equal(t, FlagNone, shared[2])
	assert.Equal(t, FlagNoData, shared[3])
}

func TestFlagsFromImageMultiBandIsPerBand(t *testing.T) {
	img := rimage.New(3, 1, 2)
	img.SetBands(0, 0, []float32{float32(FlagHoldConstant), 0, float32(FlagNoData)})
	img.SetBands(0, 1, []float32{0, float32(FlagGradientOnly), 0})

	shared, perBand := FlagsFromImage(img)
	require.Nil(t, shared)
	require.Len(t, perBand, 3)
	assert.Equal(t, FlagHoldConstant, perBand[0][0])
	assert.Equal(t, FlagGradientOnly, perBand[1][1])
	assert.Equal(t, FlagNoData, perBand[2][0])
	assert.Equal(t, FlagNone, perBand[2][1])
}

// Per-band flag planes must steer each band's solve independently: a
// hold-constant set only on band 0 pins that band's pixel while band 1
// is free to blend.
func TestSolvePerBandFlagsActIndependently(t *testing.T) {
	h, w := 8, 8
	img := rimage.New(2, h, w)
	region := make([]int32, h*w)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			v := float32(0.2)
			reg := int32(2)
			if c >= w/2 {
				v = 0.8
				reg = 3
			}
			img.SetBands(r, c, []float32{v, v})
			region[r*w+c] = reg
		}
	}

	seam := [2]int{h / 2, w/2 - 1}
	band0 := make([]Flags, h*w)
	band0[seam[0]*w+seam[1]] = FlagHoldConstant
	band1 := make([]Flags, h*w)

	params := DefaultParams()
	params.Lambda = 1

	out, _, err := Solve(Input{
		Image:      img,
		Region:     region,
		FlagsBands: [][]Flags{band0, band1},
	}, params)
	require.NoError(t, err)

	assert.Equal(t, img.At(0, seam[0], seam[1]), out.At(0, seam[0], seam[1]))
	assert.NotEqual(t, img.At(1, seam[0], seam[1]), out.At(1, seam[0], seam[1]))
}

func TestSolvePerBandRegionsGateSeamsIndependently(t *testing.T) {
	h, w := 8, 8
	img := rimage.New(2, h, w)
	split := make([]int32, h*w)
	uniform := make([]int32, h*w)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			v := float32(0.2)
			if c >= w/2 {
				v = 0.8
				split[r*w+c] = 1
			}
			img.SetBands(r, c, []float32{v, v})
		}
	}

	params := DefaultParams()
	params.Lambda = 1

	out, _, err := Solve(Input{
		Image:       img,
		RegionBands: [][]int32{split, uniform},
	}, params)
	require.NoError(t, err)

	// Band 0's seam is a region boundary, so its step relaxes; band 1
	// sees one region whose gradients all match the input, so the step
	// survives intact.
	step0 := out.At(0, h/2, w/2) - out.At(0, h/2, w/2-1)
	step1 := out.At(1, h/2, w/2) - out.At(1, h/2, w/2-1)
	assert.Less(t, float64(step0), 0.3)
	assert.InDelta(t, 0.6, float64(step1), 0.1)
}
