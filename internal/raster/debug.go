package raster

import (
	"image"

	"golang.org/x/image/vector"

	"github.com/roverterrain/texcomposite/internal/rmesh"
)

// DebugCoverageMask rasterizes mesh's projected silhouette into an
// antialiased alpha mask using golang.org/x/image/vector, for offline
// visual debugging of a camera's footprint. It plays no part in the
// winner-selection rasterization above, which must stay exact and
// deterministic per spec.md §8; this is a supplemental preview only.
func DebugCoverageMask(mesh *rmesh.Mesh, cam Camera, width, height int) *image.Alpha {
	r := vector.NewRasterizer(width, height)

	projX := make([]float32, len(mesh.Positions))
	projY := make([]float32, len(mesh.Positions))
	for i, p := range mesh.Positions {
		x, y := cam.Project(p)
		projX[i] = float32(x)
		projY[i] = float32(y)
	}

	for _, face := range mesh.Faces {
		i0, i1, i2 := face[0], face[1], face[2]
		r.MoveTo(projX[i0], projY[i0])
		r.LineTo(projX[i1], projY[i1])
		r.LineTo(projX[i2], projY[i2])
		r.ClosePath()
	}

	mask := image.NewAlpha(image.Rect(0, 0, width, height))
	r.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}
