// Package testutil generates synthetic test fixtures shared across this
// module's test suites, so blend/propagation tests exercise something
// closer to a real textured observation than a single flat fill.
package testutil

import (
	"github.com/aquilax/go-perlin"

	"github.com/roverterrain/texcomposite/internal/rimage"
)

// PerlinTexture fills an RGB image with Perlin-noise-derived shading
// around baseValue, so per-pixel values vary smoothly instead of being
// perfectly flat. scale controls noise frequency; larger scale means
// coarser features.
//
// Adapted from the noise generator this package's mask processing used
// for synthetic alpha textures.
func PerlinTexture(height, width int, baseValue float32, amplitude float64, scale float64, seed int64) *rimage.Image {
	p := perlin.NewPerlin(2.0, 2.0, 3, seed)
	out := rimage.New(3, height, width)
	for r := 0; r < height; r++ {
		for c := 0; c < width; c++ {
			nx := float64(c) / scale
			ny := float64(r) / scale
			n := p.Noise2D(nx, ny) // approximately [-1, 1]
			v := float32(float64(baseValue) + n*amplitude)
			out.SetBands(r, c, []float32{v, v, v})
		}
	}
	return out
}
