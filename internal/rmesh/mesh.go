// Package rmesh implements the indexed triangle mesh primitive (spec.md
// §3 "Mesh"): vertex positions with optional normals, RGBA, and UVs, plus
// bounds, rigid transform, and UV warp operations used by the rasterizer,
// shrinkwrap, and panorama tile builders.
package rmesh

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Mesh is a vertex/face soup. UVs and Normals are parallel to Positions
// when non-empty; per spec.md §3, if any vertex has UVs, all vertices
// must (len(UVs) == len(Positions) or len(UVs) == 0).
type Mesh struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3   // optional, len 0 or len(Positions)
	UVs       [][2]float32   // optional, len 0 or len(Positions)
	Colors    [][4]float32   // optional, len 0 or len(Positions)
	Faces     [][3]int32     // vertex indices, CCW winding
}

// HasUVs reports whether every vertex carries a UV coordinate.
func (m *Mesh) HasUVs() bool { return len(m.UVs) == len(m.Positions) && len(m.UVs) > 0 }

// HasNormals reports whether every vertex carries a normal.
func (m *Mesh) HasNormals() bool { return len(m.Normals) == len(m.Positions) && len(m.Normals) > 0 }

// Validate checks the invariants spec.md §3 requires of a Mesh.
func (m *Mesh) Validate() error {
	n := len(m.Positions)
	for _, f := range m.Faces {
		for _, idx := range f {
			if idx < 0 || int(idx) >= n {
				return fmt.Errorf("face references out-of-range vertex %d (have %d vertices)", idx, n)
			}
		}
	}
	if len(m.UVs) != 0 && len(m.UVs) != n {
		return fmt.Errorf("partial UV coverage: %d UVs for %d vertices", len(m.UVs), n)
	}
	if len(m.Normals) != 0 && len(m.Normals) != n {
		return fmt.Errorf("partial normal coverage: %d normals for %d vertices", len(m.Normals), n)
	}
	return nil
}

// Bounds returns the axis-aligned bounding box of the mesh's positions.
func (m *Mesh) Bounds() (min, max mgl32.Vec3) {
	if len(m.Positions) == 0 {
		return mgl32.Vec3{}, mgl32.Vec3{}
	}
	min, max = m.Positions[0], m.Positions[0]
	for _, p := range m.Positions[1:] {
		for i := 0; i < 3; i++ {
			if p[i] < min[i] {
				min[i] = p[i]
			}
			if p[i] > max[i] {
				max[i] = p[i]
			}
		}
	}
	return min, max
}

// Transform returns a new mesh with positions and normals transformed by
// m. Normals are transformed by the upper-left 3x3 (rotation/scale) block
// and renormalized; this is exact for rigid and uniform-scale transforms,
// which is all the camera/scene placements in this pipeline use.
func (mesh *Mesh) Transform(t mgl32.Mat4) *Mesh {
	out := &Mesh{
		Positions: make([]mgl32.Vec3, len(mesh.Positions)),
		Normals:   make([]mgl32.Vec3, len(mesh.Normals)),
		UVs:       mesh.UVs,
		Colors:    mesh.Colors,
		Faces:     mesh.Faces,
	}
	for i, p := range mesh.Positions {
		v4 := t.Mul4x1(mgl32.Vec4{p[0], p[1], p[2], 1})
		out.Positions[i] = mgl32.Vec3{v4[0], v4[1], v4[2]}
	}
	if len(mesh.Normals) > 0 {
		normalMat := t.Mat3()
		for i, nrm := range mesh.Normals {
			tn := normalMat.Mul3x1(nrm)
			if l := tn.Len(); l > 1e-12 {
				tn = tn.Mul(1 / l)
			}
			out.Normals[i] = tn
		}
	}
	return out
}

// WarpFunc remaps a UV coordinate, used to warp a central high-detail
// region outward in composite space (spec.md §4.3 "Warp").
type WarpFunc func(u, v float32) (float32, float32)

// WarpUV returns a new mesh with every vertex UV passed through fn.
// Positions, normals, faces are shared with the source mesh.
func (mesh *Mesh) WarpUV(fn WarpFunc) *Mesh {
	if fn == nil || len(mesh.UVs) == 0 {
		return mesh
	}
	out := &Mesh{
		Positions: mesh.Positions,
		Normals:   mesh.Normals,
		Colors:    mesh.Colors,
		Faces:     mesh.Faces,
		UVs:       make([][2]float32, len(mesh.UVs)),
	}
	for i, uv := range mesh.UVs {
		u, v := fn(uv[0], uv[1])
		out.UVs[i] = [2]float32{u, v}
	}
	return out
}

// EaseWarp returns a WarpFunc that expands the central sub-rectangle
// [lo,hi]^2 of UV space outward with the given ease exponent (>1 biases
// more of the output range toward the center), per spec.md §4.3's
// central-region warp.
func EaseWarp(lo, hi, ease float32) WarpFunc {
	if hi <= lo {
		hi = lo + 1e-6
	}
	return func(u, v float32) (float32, float32) {
		return easeAxis(u, lo, hi, ease), easeAxis(v, lo, hi, ease)
	}
}

func easeAxis(x, lo, hi, ease float32) float32 {
	if x < lo || x > hi {
		return x
	}
	t := (x - lo) / (hi - lo) // in [0,1]
	// Symmetric ease around 0.5: push values toward the extremes of
	// [lo,hi] so the center of the band consumes more of the full range.
	centered := t*2 - 1 // [-1,1]
	sign := float32(1)
	if centered < 0 {
		sign = -1
		centered = -centered
	}
	warped := powf(centered, ease) * sign
	return lo + (warped+1)/2*(hi-lo)
}

func powf(x float32, p float32) float32 {
	if x <= 0 {
		return 0
	}
	return float32(math.Pow(float64(x), float64(p)))
}
