package dmg

import "github.com/roverterrain/texcomposite/internal/rimage"

// FlagsFromImage decodes an optional flags raster into solver input
// planes: a single shared plane when img has one band, or one plane per
// band otherwise. Pixel values are bit-ors of the Flag constants; masked
// pixels decode to FlagNoData.
func FlagsFromImage(img *rimage.Image) (shared []Flags, perBand [][]Flags) {
	if img == nil {
		return nil, nil
	}
	decode := func(band int) []Flags {
		out := make([]Flags, img.Height*img.Width)
		for r := 0; r < img.Height; r++ {
			for c := 0; c < img.Width; c++ {
				i := r*img.Width + c
				if !img.Valid(r, c) {
					out[i] = FlagNoData
					continue
				}
				out[i] = Flags(uint8(img.At(band, r, c)))
			}
		}
		return out
	}
	if img.Bands == 1 {
		return decode(0), nil
	}
	perBand = make([][]Flags, img.Bands)
	for b := 0; b < img.Bands; b++ {
		perBand[b] = decode(b)
	}
	return nil, perBand
}
