package index

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roverterrain/texcomposite/internal/perr"
	"github.com/roverterrain/texcomposite/internal/raster"
	"github.com/roverterrain/texcomposite/internal/rimage"
	"github.com/roverterrain/texcomposite/internal/rmesh"
	"github.com/roverterrain/texcomposite/internal/shrinkwrap"
)

var errNoUVs = errors.New("index: mesh has no UVs")

// LeafTile is one Path A input: a small mesh with its own backproject
// index image, in the leaf's own local UV space.
type LeafTile struct {
	Mesh  *rmesh.Mesh
	Index *rimage.Image // 3-band, same bit layout as the composite
}

// Backprojector assigns a world-space point to a winning observation and
// source pixel; the algorithm (ray-mesh intersection against a pose and
// camera model set) lives outside this module, per spec.md §6.
type Backprojector interface {
	Backproject(world mgl32.Vec3, normal mgl32.Vec3) (obsID, row, col uint16, ok bool)
}

// maskLosers clears any pixel of idx whose observation-id band
// classifies as NoData under layout, per Path A's "mask losing pixels".
func maskLosers(idx *rimage.Image, layout BitLayout) *rimage.Image {
	out := idx.Clone()
	for r := 0; r < idx.Height; r++ {
		for c := 0; c < idx.Width; c++ {
			if !idx.Valid(r, c) {
				continue
			}
			class, _ := layout.Decode(uint16(idx.At(0, r, c)))
			if class == ClassNoData {
				out.SetValid(r, c, false)
			}
		}
	}
	return out
}

// BuildPathA composites the scene index from a set of already-indexed
// leaf tiles, per spec.md §4.3 Path A.
func BuildPathA(leaves []LeafTile, cam raster.Camera, layout BitLayout, height, width int) (*rimage.Image, error) {
	if len(leaves) == 0 {
		return nil, perr.New(perr.KindMissingPrerequisite, "index.BuildPathA: leaves", nil)
	}
	composite := rimage.New(3, height, width)
	for _, leaf := range leaves {
		masked := maskLosers(leaf.Index, layout)
		if err := rasterizeTexture(leaf.Mesh, composite, project(leaf.Mesh, cam), masked); err != nil {
			return nil, err
		}
	}
	inpaintIndex(composite, 2, rimage.Conn8)
	return composite, nil
}

// BuildPathB rasterizes the scene mesh top-down, reading an existing
// atlased scene index through the mesh's UVs, per spec.md §4.3 Path B.
func BuildPathB(sceneMesh *rmesh.Mesh, atlasIndex *rimage.Image, cam raster.Camera, height, width int) (*rimage.Image, error) {
	if sceneMesh == nil || len(sceneMesh.Positions) == 0 {
		return nil, perr.New(perr.KindDegenerateGeometry, "index.BuildPathB: sceneMesh", nil)
	}
	if !sceneMesh.HasUVs() {
		return nil, perr.New(perr.KindDegenerateGeometry, "index.BuildPathB: sceneMesh UVs", nil)
	}
	composite := rimage.New(3, height, width)
	if err := rasterizeTexture(sceneMesh, composite, project(sceneMesh, cam), atlasIndex); err != nil {
		return nil, err
	}
	inpaintIndex(composite, 2, rimage.Conn8)
	return composite, nil
}

// BuildPathC runs shrinkwrap against the reference mesh and backprojects
// every resulting grid vertex, producing a composite index without any
// pre-existing index artifact, per spec.md §4.3 Path C.
func BuildPathC(ref *rmesh.Mesh, swParams shrinkwrap.Params, bp Backprojector, cam raster.Camera, height, width int) (*rimage.Image, error) {
	proxy, err := shrinkwrap.Wrap(ref, swParams)
	if err != nil {
		return nil, err
	}
	source := &backprojectSource{mesh: proxy, bp: bp}
	composite := rimage.New(3, height, width)
	if err := rasterizeNearestVertex(proxy, composite, project(proxy, cam), source); err != nil {
		return nil, err
	}
	inpaintIndex(composite, 2, rimage.Conn8)
	return composite, nil
}

// backprojectSource is a raster.VertexSource that backprojects each
// proxy-mesh vertex once and supplies its encoded index triple.
type backprojectSource struct {
	mesh *rmesh.Mesh
	bp   Backprojector
	memo []([3]float32)
	done []bool
}

func (s *backprojectSource) Sample(vertexIndex int) ([]float32, bool) {
	if s.memo == nil {
		s.memo = make([][3]float32, len(s.mesh.Positions))
		s.done = make([]bool, len(s.mesh.Positions))
	}
	if s.done[vertexIndex] {
		v := s.memo[vertexIndex]
		return []float32{v[0], v[1], v[2]}, v != [3]float32{}
	}
	s.done[vertexIndex] = true

	var normal mgl32.Vec3
	if s.mesh.HasNormals() {
		normal = s.mesh.Normals[vertexIndex]
	}
	obsID, row, col, ok := s.bp.Backproject(s.mesh.Positions[vertexIndex], normal)
	if !ok {
		return nil, false
	}
	enc := Encode(obsID, row, col)
	s.memo[vertexIndex] = enc
	return []float32{enc[0], enc[1], enc[2]}, true
}

func project(mesh *rmesh.Mesh, cam raster.Camera) cam2D {
	xs := make([]float64, len(mesh.Positions))
	ys := make([]float64, len(mesh.Positions))
	for i, p := range mesh.Positions {
		xs[i], ys[i] = cam.Project(p)
	}
	return cam2D{x: xs, y: ys}
}
