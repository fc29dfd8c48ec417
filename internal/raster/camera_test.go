package raster

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"

	"github.com/roverterrain/texcomposite/internal/rmesh"
)

func TestFitTopDownLetterboxesNonSquareScene(t *testing.T) {
	// Scene twice as wide (X) as deep (Y): the X extent sets the scale,
	// so Y occupies the centered half of the image rows.
	m := &rmesh.Mesh{
		Positions: []mgl32.Vec3{{0, 0, 0}, {4, 0, 0}, {4, 2, 0}, {0, 2, 0}},
		Faces:     [][3]int32{{0, 1, 2}, {0, 2, 3}},
	}
	cam := FitTopDown(m, 8)
	assert.InDelta(t, 0.5, float64(cam.MetersPerPixel), 1e-6)

	x, y := cam.Project(mgl32.Vec3{0, 0, 0})
	assert.InDelta(t, 0, x, 1e-4)
	assert.InDelta(t, 2, y, 1e-4)

	x, y = cam.Project(mgl32.Vec3{4, 2, 0})
	assert.InDelta(t, 8, x, 1e-4)
	assert.InDelta(t, 6, y, 1e-4)
}

func TestFitTopDownDegenerateExtentStillProjects(t *testing.T) {
	m := &rmesh.Mesh{Positions: []mgl32.Vec3{{1, 1, 0}}}
	cam := FitTopDown(m, 4)
	assert.Greater(t, float64(cam.MetersPerPixel), 0.0)
}
