package index

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roverterrain/texcomposite/internal/perr"
	"github.com/roverterrain/texcomposite/internal/raster"
	"github.com/roverterrain/texcomposite/internal/rimage"
	"github.com/roverterrain/texcomposite/internal/rmesh"
)

// Reatlas renders the blended composite back into the scene mesh's
// original atlased UV layout, producing a texture that drops in for the
// atlased one the scene shipped with (spec.md §6 Output: "optionally a
// re-atlased scene texture that matches the original atlased UVs").
//
// Each triangle is rasterized in atlas space (UV scaled to the output
// dimensions); per covered texel the interpolated world position is
// projected through cam (and warp, when the composite was built with
// one) and the blended composite is bilinearly sampled there. Texels
// whose composite sample lands on masked pixels stay masked.
func Reatlas(sceneMesh *rmesh.Mesh, blended *rimage.Image, cam raster.Camera, warp raster.PixelWarp, height, width int) (*rimage.Image, error) {
	if sceneMesh == nil || len(sceneMesh.Positions) == 0 {
		return nil, perr.New(perr.KindDegenerateGeometry, "index.Reatlas: sceneMesh", nil)
	}
	if !sceneMesh.HasUVs() {
		return nil, perr.New(perr.KindDegenerateGeometry, "index.Reatlas: sceneMesh UVs", nil)
	}
	if err := sceneMesh.Validate(); err != nil {
		return nil, err
	}

	out := rimage.New(blended.Bands, height, width)

	for _, face := range sceneMesh.Faces {
		i0, i1, i2 := face[0], face[1], face[2]
		uv0, uv1, uv2 := sceneMesh.UVs[i0], sceneMesh.UVs[i1], sceneMesh.UVs[i2]
		x0, y0 := float64(uv0[0])*float64(width), float64(uv0[1])*float64(height)
		x1, y1 := float64(uv1[0])*float64(width), float64(uv1[1])*float64(height)
		x2, y2 := float64(uv2[0])*float64(width), float64(uv2[1])*float64(height)

		area := edge2(x0, y0, x1, y1, x2, y2)
		if math.Abs(area) < 1e-12 {
			continue
		}

		p0 := sceneMesh.Positions[i0]
		p1 := sceneMesh.Positions[i1]
		p2 := sceneMesh.Positions[i2]

		minX := clampInt(int(math.Floor(min3(x0, x1, x2))), 0, width-1)
		maxX := clampInt(int(math.Ceil(max3(x0, x1, x2))), 0, width-1)
		minY := clampInt(int(math.Floor(min3(y0, y1, y2))), 0, height-1)
		maxY := clampInt(int(math.Ceil(max3(y0, y1, y2))), 0, height-1)

		top01 := topLeft2(x0, y0, x1, y1)
		top12 := topLeft2(x1, y1, x2, y2)
		top20 := topLeft2(x2, y2, x0, y0)

		for py := minY; py <= maxY; py++ {
			for px := minX; px <= maxX; px++ {
				tx, ty := float64(px)+0.5, float64(py)+0.5

				w0 := edge2(x1, y1, x2, y2, tx, ty)
				w1 := edge2(x2, y2, x0, y0, tx, ty)
				w2 := edge2(x0, y0, x1, y1, tx, ty)

				var inside bool
				if area > 0 {
					inside = (w0 > 0 || (w0 == 0 && top12)) &&
						(w1 > 0 || (w1 == 0 && top20)) &&
						(w2 > 0 || (w2 == 0 && top01))
				} else {
					inside = (w0 < 0 || (w0 == 0 && top12)) &&
						(w1 < 0 || (w1 == 0 && top20)) &&
						(w2 < 0 || (w2 == 0 && top01))
				}
				if !inside {
					continue
				}

				b0, b1, b2 := w0/area, w1/area, w2/area
				var world [3]float64
				for k := 0; k < 3; k++ {
					world[k] = float64(p0[k])*b0 + float64(p1[k])*b1 + float64(p2[k])*b2
				}
				cx, cy := cam.Project(vec3From(world))
				if warp != nil {
					cx, cy = warp(cx, cy)
				}

				vals := make([]float32, blended.Bands)
				any := false
				for b := 0; b < blended.Bands; b++ {
					v, ok := blended.BilinearSample(b, cy, cx)
					if ok {
						any = true
					}
					vals[b] = v
				}
				if !any {
					continue
				}
				out.SetBands(py, px, vals)
			}
		}
	}
	return out, nil
}

func vec3From(v [3]float64) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}
