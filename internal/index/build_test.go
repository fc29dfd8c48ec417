package index

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roverterrain/texcomposite/internal/raster"
	"github.com/roverterrain/texcomposite/internal/rmesh"
	"github.com/roverterrain/texcomposite/internal/shrinkwrap"
)

// splitBackprojector assigns one (obsID, row, col) triple to everything
// left of the midline and another to everything right of it, so a
// triangle straddling the line exercises the nearest-vertex, no-blend
// path of BuildPathC.
type splitBackprojector struct {
	mid               float32
	leftObs, rightObs uint16
	leftRow, rightRow uint16
	leftCol, rightCol uint16
}

func (s splitBackprojector) Backproject(world, _ mgl32.Vec3) (obsID, row, col uint16, ok bool) {
	if world[0] < s.mid {
		return s.leftObs, s.leftRow, s.leftCol, true
	}
	return s.rightObs, s.rightRow, s.rightCol, true
}

func flatQuadRef() *rmesh.Mesh {
	return &rmesh.Mesh{
		Positions: []mgl32.Vec3{{0, 0, 0}, {4, 0, 0}, {4, 4, 0}, {0, 4, 0}},
		Faces:     [][3]int32{{0, 1, 2}, {0, 2, 3}},
	}
}

func TestBuildPathCNeverBlendsAcrossObservations(t *testing.T) {
	ref := flatQuadRef()
	swParams := shrinkwrap.Params{
		Resolution: 2,
		Axis:       shrinkwrap.AxisZ,
		Mode:       shrinkwrap.ModeNearestPoint,
		Miss:       shrinkwrap.MissNone,
	}
	bp := splitBackprojector{mid: 2, leftObs: 2, leftRow: 1, leftCol: 1, rightObs: 3, rightRow: 2, rightCol: 2}
	cam := raster.Camera{Right: mgl32.Vec3{1, 0, 0}, Down: mgl32.Vec3{0, 1, 0}, MetersPerPixel: 1}

	composite, err := BuildPathC(ref, swParams, bp, cam, 8, 8)
	require.NoError(t, err)

	left := Encode(bp.leftObs, bp.leftRow, bp.leftCol)
	right := Encode(bp.rightObs, bp.rightRow, bp.rightCol)

	sawLeft, sawRight := false, false
	for r := 0; r < composite.Height; r++ {
		for c := 0; c < composite.Width; c++ {
			if !composite.Valid(r, c) {
				continue
			}
			got := composite.At3(r, c)
			isLeft := got[0] == left[0] && got[1] == left[1] && got[2] == left[2]
			isRight := got[0] == right[0] && got[1] == right[1] && got[2] == right[2]
			assert.Truef(t, isLeft || isRight,
				"pixel (%d,%d) = %v is neither vertex value exactly; a blended/interpolated index value leaked through", r, c, got)
			sawLeft = sawLeft || isLeft
			sawRight = sawRight || isRight
		}
	}
	assert.True(t, sawLeft, "expected at least one pixel to take the left observation's exact value")
	assert.True(t, sawRight, "expected at least one pixel to take the right observation's exact value")
}
