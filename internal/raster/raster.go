// Package raster implements the top-down orthographic rasterizer (spec.md
// §4.1, component C3): it projects a textured triangle mesh into a
// caller-supplied multi-band output image, writing only the winning
// source pixel per output texel and leaving uncovered texels masked.
//
// Adapted from the teacher's per-feature polygon scanline renderer
// (originally rendering GeoJSON polygons into map tile layers): the same
// "project to pixel space, bound by a rectangle, test containment per
// pixel" shape, generalized from 2-D polygons to 3-D triangles with an
// edge-function half-plane test.
package raster

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roverterrain/texcomposite/internal/rimage"
	"github.com/roverterrain/texcomposite/internal/rmesh"
)

// Camera describes the orthographic top-down projection from world space
// to output pixel space, per spec.md §4.1.
type Camera struct {
	Center         mgl32.Vec3
	Right          mgl32.Vec3 // image +x axis, world units
	Down           mgl32.Vec3 // image +y axis, world units
	MetersPerPixel float32
}

// Project maps a world point to floating-point output pixel coordinates.
func (cam Camera) Project(p mgl32.Vec3) (x, y float64) {
	rel := p.Sub(cam.Center)
	x = float64(rel.Dot(cam.Right) / cam.MetersPerPixel)
	y = float64(rel.Dot(cam.Down) / cam.MetersPerPixel)
	return x, y
}

// PixelWarp remaps an output pixel coordinate into the camera's unwarped
// projection space before containment testing and attribute
// interpolation, enabling the center-dense UV warp of spec.md §4.3.
type PixelWarp func(px, py float64) (float64, float64)

// VertexSource supplies up to three float attribute values for a mesh
// vertex, each via that vertex's own source image lookup (spec.md §4.1:
// "each vertex supplies up to three floats via its own source image
// lookup").
type VertexSource interface {
	Sample(vertexIndex int) (values []float32, ok bool)
}

// Rasterize projects mesh into out under cam, writing interpolated vertex
// attribute values from sampler. Degenerate triangles are skipped
// silently; pixels with no covering triangle remain masked.
func Rasterize(mesh *rmesh.Mesh, out *rimage.Image, cam Camera, warp PixelWarp, sampler VertexSource) error {
	if err := mesh.Validate(); err != nil {
		return err
	}

	projX := make([]float64, len(mesh.Positions))
	projY := make([]float64, len(mesh.Positions))
	for i, p := range mesh.Positions {
		projX[i], projY[i] = cam.Project(p)
	}

	for _, face := range mesh.Faces {
		i0, i1, i2 := face[0], face[1], face[2]
		x0, y0 := projX[i0], projY[i0]
		x1, y1 := projX[i1], projY[i1]
		x2, y2 := projX[i2], projY[i2]

		area := edge(x0, y0, x1, y1, x2, y2)
		if math.Abs(area) < 1e-12 {
			continue // degenerate triangle
		}

		v0, ok0 := sampler.Sample(int(i0))
		v1, ok1 := sampler.Sample(int(i1))
		v2, ok2 := sampler.Sample(int(i2))
		if !ok0 || !ok1 || !ok2 {
			continue
		}

		minX := int(math.Floor(minOf3(x0, x1, x2)))
		maxX := int(math.Ceil(maxOf3(x0, x1, x2)))
		minY := int(math.Floor(minOf3(y0, y1, y2)))
		maxY := int(math.Ceil(maxOf3(y0, y1, y2)))
		minX = maxIntR(minX, 0)
		minY = maxIntR(minY, 0)
		maxX = minIntR(maxX, out.Width-1)
		maxY = minIntR(maxY, out.Height-1)

		top01 := isTopLeft(x0, y0, x1, y1)
		top12 := isTopLeft(x1, y1, x2, y2)
		top20 := isTopLeft(x2, y2, x0, y0)

		for py := minY; py <= maxY; py++ {
			for px := minX; px <= maxX; px++ {
				tx, ty := float64(px)+0.5, float64(py)+0.5
				if warp != nil {
					tx, ty = warp(tx, ty)
				}

				w0 := edge(x1, y1, x2, y2, tx, ty)
				w1 := edge(x2, y2, x0, y0, tx, ty)
				w2 := edge(x0, y0, x1, y1, tx, ty)

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
				vals := make([]float32, out.Bands)
				for b := 0; b < out.Bands && b < len(v0); b++ {
					vals[b] = float32(float64(v0[b])*b0 + float64(v1[b])*b1 + float64(v2[b])*b2)
				}
				out.SetBands(py, px, vals)
			}
		}
	}
	return nil
}

func edge(ax, ay, bx, by, px, py float64) float64 {
	return (bx-ax)*(py-ay) - (by-ay)*(px-ax)
}

// isTopLeft classifies edge a->b as a "top" (horizontal, going left) or
// "left" (going down) edge per the standard fill-convention tie-break,
// so that pixel centers exactly on a shared edge are claimed by exactly
// one of the two triangles that share it.
func isTopLeft(ax, ay, bx, by float64) bool {
	isLeft := by > ay
	isTop := ay == by && bx < ax
	return isLeft || isTop
}

func minOf3(a, b, c float64) float64 { return math.Min(a, math.Min(b, c)) }
func maxOf3(a, b, c float64) float64 { return math.Max(a, math.Max(b, c)) }

func minIntR(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxIntR(a, b int) int {
	if a > b {
		return a
	}
	return b
}
