package rmesh

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func triangle() *Mesh {
	return &Mesh{
		Positions: []mgl32.Vec3{
			{0, 0, 0}, {1, 0, 0}, {0, 1, 0},
		},
		UVs:   [][2]float32{{0, 0}, {1, 0}, {0, 1}},
		Faces: [][3]int32{{0, 1, 2}},
	}
}

func TestValidateRejectsOutOfRangeFace(t *testing.T) {
	m := triangle()
	m.Faces = [][3]int32{{0, 1, 5}}
	assert.Error(t, m.Validate())
}

func TestValidateRejectsPartialUVs(t *testing.T) {
	m := triangle()
	m.UVs = m.UVs[:2]
	assert.Error(t, m.Validate())
}

func TestBounds(t *testing.T) {
	m := triangle()
	min, max := m.Bounds()
	assert.Equal(t, mgl32.Vec3{0, 0, 0}, min)
	assert.Equal(t, mgl32.Vec3{1, 1, 0}, max)
}

func TestTransformTranslatesPositions(t *testing.T) {
	m := triangle()
	out := m.Transform(mgl32.Translate3D(1, 2, 3))
	require.Len(t, out.Positions, 3)
	assert.InDeltaSlice(t, []float32{1, 2, 3}, out.Positions[0][:], 1e-6)
}

func TestWarpUVIdentityOutsideBand(t *testing.T) {
	m := triangle()
	warp := EaseWarp(0.25, 0.75, 2)
	out := m.WarpUV(warp)
	// UV (0,0) and (1,0) lie outside [0.25,0.75], unaffected.
	assert.Equal(t, m.UVs[0], out.UVs[0])
	assert.Equal(t, m.UVs[1], out.UVs[1])
}
