package rimage

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	img := New(2, 4, 4)
	img.Set(0, 1, 1, 0.5)
	img.Set(1, 1, 1, 0.25)

	assert.True(t, img.Valid(1, 1))
	assert.Equal(t, float32(0.5), img.At(0, 1, 1))
	assert.Equal(t, float32(0.25), img.At(1, 1, 1))
	assert.False(t, img.Valid(0, 0))
	assert.True(t, math.IsNaN(float64(img.At(0, 0, 0))))
}

func TestBlitWinnerSemantics(t *testing.T) {
	dst := New(1, 4, 4)
	dst.Set(0, 0, 0, 1)

	src := New(1, 2, 2)
	src.Set(0, 0, 0, 9)
	// (1,1) of src left masked; must not overwrite dst.

	dst.Blit(0, 0, src)

	assert.Equal(t, float32(9), dst.At(0, 0, 0))
	assert.False(t, dst.Valid(1, 1))
}

func TestBilinearSampleClampAndMaskedCorners(t *testing.T) {
	img := New(1, 2, 2)
	img.Set(0, 0, 0, 0)
	img.Set(0, 0, 1, 10)
	img.Set(0, 1, 0, 20)
	// (1,1) left masked.

	v, ok := img.BilinearSample(0, 0, 0.5)
	require.True(t, ok)
	assert.InDelta(t, 5, v, 1e-4)

	// out of range clamps to border
	v, ok = img.BilinearSample(0, -5, -5)
	require.True(t, ok)
	assert.Equal(t, float32(0), v)
}

func TestDecimateMean(t *testing.T) {
	img := New(1, 4, 4)
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			img.Set(0, r, c, float32(r*4+c))
		}
	}
	out := img.Decimate(2, DecimateMean)
	require.Equal(t, 2, out.Height)
	require.Equal(t, 2, out.Width)
	// top-left block average of {0,1,4,5} = 2.5
	assert.InDelta(t, 2.5, out.At(0, 0, 0), 1e-6)
}

func TestInpaintFillsWithinRadius(t *testing.T) {
	img := New(1, 3, 3)
	img.Set(0, 0, 0, 10)
	img.Set(0, 2, 2, 20)
	// center (1,1) masked; within radius 2 of both.

	out := img.Inpaint(2, Conn8)
	assert.True(t, out.Valid(1, 1))
	assert.InDelta(t, 15, out.At(0, 1, 1), 1e-6)
}

func TestInpaintLeavesUnreachablePixelsMasked(t *testing.T) {
	img := New(1, 5, 5)
	img.Set(0, 0, 0, 1)
	out := img.Inpaint(1, Conn4)
	assert.False(t, out.Valid(4, 4))
}

func TestGaussianBlurPreservesMaskShape(t *testing.T) {
	img := New(1, 8, 8)
	for r := 2; r < 6; r++ {
		for c := 2; c < 6; c++ {
			img.Set(0, r, c, 1)
		}
	}
	out := img.GaussianBlur(1.5)
	assert.True(t, out.Valid(3, 3))
	assert.False(t, out.Valid(0, 0))
}

func TestHistogramStretch(t *testing.T) {
	img := New(1, 1, 5)
	for c := 0; c < 5; c++ {
		img.Set(0, 0, c, float32(c))
	}
	img.HistogramStretch(0, 0, 1)
	assert.InDelta(t, 0, img.At(0, 0, 0), 1e-6)
	assert.InDelta(t, 1, img.At(0, 0, 4), 1e-6)
}
