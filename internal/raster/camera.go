package raster

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/roverterrain/texcomposite/internal/rmesh"
)

// FitTopDown builds the scene-wide orthographic camera for a square
// composite of the given resolution, looking down the world Z axis with
// image x along +X and image y along +Y. Meters-per-pixel is set by the
// larger of the mesh's X/Y extents, so the smaller extent ends up
// centered with masked margins on either side — the letterboxing
// spec.md §4.3 describes for non-square scenes.
func FitTopDown(mesh *rmesh.Mesh, resolution int) Camera {
	minB, maxB := mesh.Bounds()
	extX := maxB[0] - minB[0]
	extY := maxB[1] - minB[1]
	ext := extX
	if extY > ext {
		ext = extY
	}
	if ext <= 0 {
		ext = 1
	}
	mpp := ext / float32(resolution)

	right := mgl32.Vec3{1, 0, 0}
	down := mgl32.Vec3{0, 1, 0}
	center := minB.Add(maxB).Mul(0.5)
	half := float32(resolution) / 2 * mpp
	origin := center.Sub(right.Mul(half)).Sub(down.Mul(half))

	return Camera{Center: origin, Right: right, Down: down, MetersPerPixel: mpp}
}
