package index

import (
	"math"

	"github.com/roverterrain/texcomposite/internal/raster"
	"github.com/roverterrain/texcomposite/internal/rimage"
	"github.com/roverterrain/texcomposite/internal/rmesh"
)

// cam2D holds pre-projected per-vertex pixel coordinates, so this file's
// texture-space rasterize loop doesn't need to import raster's
// vertex-attribute interpolation path, which blends values rather than
// looking them up.
type cam2D struct {
	x, y []float64
}

// rasterizeTexture projects mesh into out under the given per-vertex
// pixel projection, but instead of interpolating a per-vertex value (as
// raster.Rasterize does), it interpolates each triangle's UV coordinate
// per output pixel and performs a single nearest-texel lookup into src
// via sample, copying src's bands through unchanged. This is the right
// operation for index provenance bands, which are categorical
// identifiers rather than values safe to blend (spec.md §4.3 paths A
// and B: "rasterize ... reading the index at each pixel through the
// mesh's UVs").
//
// Adapted from raster.Rasterize's edge-function/top-left-rule loop.
func rasterizeTexture(mesh *rmesh.Mesh, out *rimage.Image, cam cam2D, src *rimage.Image) error {
	if err := mesh.Validate(); err != nil {
		return err
	}
	if !mesh.HasUVs() {
		return errNoUVs
	}

	projX := cam.x
	projY := cam.y

	for _, face := range mesh.Faces {
		i0, i1, i2 := face[0], face[1], face[2]
		x0, y0 := projX[i0], projY[i0]
		x1, y1 := projX[i1], projY[i1]
		x2, y2 := projX[i2], projY[i2]

		area := edge2(x0, y0, x1, y1, x2, y2)
		if math.Abs(area) < 1e-12 {
			continue
		}

		uv0, uv1, uv2 := mesh.UVs[i0], mesh.UVs[i1], mesh.UVs[i2]

		minX := clampInt(int(math.Floor(min3(x0, x1, x2))), 0, out.Width-1)
		maxX := clampInt(int(math.Ceil(max3(x0, x1, x2))), 0, out.Width-1)
		minY := clampInt(int(math.Floor(min3(y0, y1, y2))), 0, out.Height-1)
		maxY := clampInt(int(math.Ceil(max3(y0, y1, y2))), 0, out.Height-1)

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
				u := float32(float64(uv0[0])*b0 + float64(uv1[0])*b1 + float64(uv2[0])*b2)
				v := float32(float64(uv0[1])*b0 + float64(uv1[1])*b1 + float64(uv2[1])*b2)

				sr := clampInt(int(v*float32(src.Height)), 0, src.Height-1)
				sc := clampInt(int(u*float32(src.Width)), 0, src.Width-1)
				if !src.Valid(sr, sc) {
					continue
				}
				out.SetBands(py, px, src.At3(sr, sc))
			}
		}
	}
	return nil
}

// rasterizeNearestVertex projects mesh into out under cam, writing, for
// each covered pixel, the source-image value sampled at whichever
// triangle vertex has the greatest barycentric weight at that pixel —
// never a blend of two or more vertices' values. This is the sampler
// Path C needs: its per-vertex values are backprojected (obsID, row,
// col) triples, and averaging two different triples produces a triple
// that names no actual source pixel (index provenance bands are
// categorical, per rasterizeTexture's doc comment above).
//
// Adapted from raster.Rasterize's edge-function loop, replacing its
// barycentric blend with a nearest-vertex pick.
func rasterizeNearestVertex(mesh *rmesh.Mesh, out *rimage.Image, cam cam2D, source raster.VertexSource) error {
	if err := mesh.Validate(); err != nil {
		return err
	}

	projX := cam.x
	projY := cam.y

	for _, face := range mesh.Faces {
		i0, i1, i2 := face[0], face[1], face[2]
		x0, y0 := projX[i0], projY[i0]
		x1, y1 := projX[i1], projY[i1]
		x2, y2 := projX[i2], projY[i2]

		area := edge2(x0, y0, x1, y1, x2, y2)
		if math.Abs(area) < 1e-12 {
			continue
		}

		v0, ok0 := source.Sample(int(i0))
		v1, ok1 := source.Sample(int(i1))
		v2, ok2 := source.Sample(int(i2))
		if !ok0 && !ok1 && !ok2 {
			continue
		}

		minX := clampInt(int(math.Floor(min3(x0, x1, x2))), 0, out.Width-1)
		maxX := clampInt(int(math.Ceil(max3(x0, x1, x2))), 0, out.Width-1)
		minY := clampInt(int(math.Floor(min3(y0, y1, y2))), 0, out.Height-1)
		maxY := clampInt(int(math.Ceil(max3(y0, y1, y2))), 0, out.Height-1)

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
				vals, ok := nearestVertexValue(b0, b1, b2, v0, ok0, v1, ok1, v2, ok2)
				if !ok {
					continue
				}
				out.SetBands(py, px, vals)
			}
		}
	}
	return nil
}

// nearestVertexValue picks the value belonging to whichever of the three
// vertices has the largest barycentric weight, among those with a value
// available, breaking ties toward the lowest vertex index.
func nearestVertexValue(b0, b1, b2 float64, v0 []float32, ok0 bool, v1 []float32, ok1 bool, v2 []float32, ok2 bool) ([]float32, bool) {
	type cand struct {
		w  float64
		v  []float32
		ok bool
	}
	cands := [3]cand{{b0, v0, ok0}, {b1, v1, ok1}, {b2, v2, ok2}}
	best := -1
	for i, c := range cands {
		if !c.ok {
			continue
		}
		if best == -1 || c.w > cands[best].w {
			best = i
		}
	}
	if best == -1 {
		return nil, false
	}
	return cands[best].v, true
}

func edge2(ax, ay, bx, by, px, py float64) float64 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

func topLeft2(ax, ay, bx, by float64) bool {
	isLeft := by > ay
	isTop := ay == by && bx < ax
	return isLeft || isTop
}

func min3(a, b, c float64) float64 { return math.Min(a, math.Min(b, c)) }
func max3(a, b, c float64) float64 { return math.Max(a, math.Max(b, c)) }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
