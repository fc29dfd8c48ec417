package rimage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
)

// FromImage converts a standard library image into a 3-band [0,1]-range
// Image, masking fully transparent pixels as invalid.
func FromImage(src image.Image) *Image {
	b := src.Bounds()
	h, w := b.Dy(), b.Dx()
	out := New(3, h, w)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl, a := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			if a == 0 {
				continue
			}
			out.SetBands(y, x, []float32{
				float32(r) / 65535.0,
				float32(g) / 65535.0,
				float32(bl) / 65535.0,
			})
		}
	}
	return out
}

// ToImage converts the first three bands of img into an 8-bit NRGBA
// image, clamping to [0,1] and marking masked pixels fully transparent.
func (img *Image) ToImage() *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	for r := 0; r < img.Height; r++ {
		for c := 0; c < img.Width; c++ {
			i := out.PixOffset(c, r)
			if !img.Valid(r, c) {
				out.Pix[i+3] = 0
				continue
			}
			v := img.At3(r, c)
			out.Pix[i+0] = to8(bandOr(v, 0))
			out.Pix[i+1] = to8(bandOr(v, 1))
			out.Pix[i+2] = to8(bandOr(v, 2))
			out.Pix[i+3] = 255
		}
	}
	return out
}

// Marshal encodes img as a flat header (bands, height, width) followed
// by the sample data and validity mask, for storage as an opaque blob
// (internal/store's artifact cache).
func (img *Image) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	header := [3]int32{int32(img.Bands), int32(img.Height), int32(img.Width)}
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("rimage: marshal header: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, img.Data); err != nil {
		return nil, fmt.Errorf("rimage: marshal data: %w", err)
	}
	if err := binary.Write(&buf, binary.LittleEndian, img.mask); err != nil {
		return nil, fmt.Errorf("rimage: marshal mask: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a blob produced by Marshal back into an Image.
func Unmarshal(data []byte) (*Image, error) {
	r := bytes.NewReader(data)
	var header [3]int32
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("rimage: unmarshal header: %w", err)
	}
	bands, height, width := int(header[0]), int(header[1]), int(header[2])
	out := New(bands, height, width)
	if err := binary.Read(r, binary.LittleEndian, out.Data); err != nil {
		return nil, fmt.Errorf("rimage: unmarshal data: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, out.mask); err != nil {
		return nil, fmt.Errorf("rimage: unmarshal mask: %w", err)
	}
	return out, nil
}

func bandOr(v []float32, b int) float32 {
	if b < len(v) {
		return v[b]
	}
	return v[0]
}

func to8(v float32) uint8 {
	f := clampf(float64(v), 0, 1) * 255.0
	return uint8(f + 0.5)
}
