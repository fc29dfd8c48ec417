package rimage

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromImageToImageRoundTrip(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.Set(0, 0, color.NRGBA{R: 255, G: 0, B: 0, A: 255})
	src.Set(1, 0, color.NRGBA{R: 0, G: 255, B: 0, A: 255})
	src.Set(0, 1, color.NRGBA{R: 0, G: 0, B: 255, A: 255})
	src.Set(1, 1, color.NRGBA{R: 0, G: 0, B: 0, A: 0})

	img := FromImage(src)
	assert.True(t, img.Valid(0, 0))
	assert.InDelta(t, 1.0, img.At(0, 0, 0), 1e-3)
	assert.False(t, img.Valid(1, 1))

	out := img.ToImage()
	r, g, b, a := out.At(0, 0).RGBA()
	assert.Greater(t, r, uint32(60000))
	assert.Less(t, g, uint32(1000))
	assert.Less(t, b, uint32(1000))
	assert.Equal(t, uint32(65535), a)

	_, _, _, a11 := out.At(1, 1).RGBA()
	assert.Equal(t, uint32(0), a11)
}

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	img := New(2, 3, 4)
	img.Set(0, 0, 0, 0.25)
	img.Set(1, 0, 0, 0.75)
	img.Set(0, 1, 2, 0.5)
	// (2,3) left unset: stays masked.

	data, err := img.Marshal()
	assert.NoError(t, err)

	out, err := Unmarshal(data)
	assert.NoError(t, err)

	assert.Equal(t, img.Bands, out.Bands)
	assert.Equal(t, img.Height, out.Height)
	assert.Equal(t, img.Width, out.Width)
	assert.True(t, out.Valid(0, 0))
	assert.Equal(t, float32(0.25), out.At(0, 0, 0))
	assert.Equal(t, float32(0.75), out.At(1, 0, 0))
	assert.True(t, out.Valid(1, 2))
	assert.Equal(t, float32(0.5), out.At(0, 1, 2))
	assert.False(t, out.Valid(2, 3))
}
