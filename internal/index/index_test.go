package index

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roverterrain/texcomposite/internal/raster"
	"github.com/roverterrain/texcomposite/internal/rmesh"
)

func TestBitLayoutStrictDecode(t *testing.T) {
	strict := BitLayout{}
	class, _ := strict.Decode(0)
	assert.Equal(t, ClassNoData, class)
	class, _ = strict.Decode(1)
	assert.Equal(t, ClassHoldConstant, class)
	class, id := strict.Decode(100)
	assert.Equal(t, ClassValid, class)
	assert.EqualValues(t, 100, id)
	class, _ = strict.Decode(65535)
	assert.Equal(t, ClassHoldConstant, class)
}

func TestBitLayoutLegacyDecode(t *testing.T) {
	legacy := BitLayout{Legacy: true}
	class, id := legacy.Decode(1)
	assert.Equal(t, ClassValid, class)
	assert.EqualValues(t, 1, id)
	class, _ = legacy.Decode(65535)
	assert.Equal(t, ClassNoData, class)
}

func quadMeshWithUVs() *rmesh.Mesh {
	return &rmesh.Mesh{
		Positions: []mgl32.Vec3{{0, 0, 0}, {4, 0, 0}, {4, 4, 0}, {0, 4, 0}},
		UVs:       [][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		Faces:     [][3]int32{{0, 1, 2}, {0, 2, 3}},
	}
}

type constBackprojector struct {
	obsID, row, col uint16
}

func (c constBackprojector) Backproject(world, normal mgl32.Vec3) (uint16, uint16, uint16, bool) {
	return c.obsID, c.row, c.col, true
}

func TestBuildPathARejectsNoLeaves(t *testing.T) {
	cam := raster.Camera{Right: mgl32.Vec3{1, 0, 0}, Down: mgl32.Vec3{0, 1, 0}, MetersPerPixel: 1}
	_, err := BuildPathA(nil, cam, BitLayout{}, 8, 8)
	assert.Error(t, err)
}

func TestBuildPathBRejectsMeshWithoutUVs(t *testing.T) {
	cam := raster.Camera{Right: mgl32.Vec3{1, 0, 0}, Down: mgl32.Vec3{0, 1, 0}, MetersPerPixel: 1}
	mesh := &rmesh.Mesh{
		Positions: []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}},
		Faces:     [][3]int32{{0, 1, 2}},
	}
	_, err := BuildPathB(mesh, nil, cam, 8, 8)
	require.Error(t, err)
}
