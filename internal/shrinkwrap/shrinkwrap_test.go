package shrinkwrap

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roverterrain/texcomposite/internal/rmesh"
)

// hemisphere builds a coarse triangulated hemisphere of the given radius,
// used by several tests and mirroring spec.md §8 scenario 4.
func hemisphere(radius float32, lat, lon int) *rmesh.Mesh {
	m := &rmesh.Mesh{}
	for i := 0; i <= lat; i++ {
		theta := float64(i) / float64(lat) * math.Pi / 2 // 0..pi/2 (top to equator)
		for j := 0; j <= lon; j++ {
			phi := float64(j) / float64(lon) * 2 * math.Pi
			x := radius * float32(math.Sin(theta)*math.Cos(phi))
			y := radius * float32(math.Sin(theta)*math.Sin(phi))
			z := radius * float32(math.Cos(theta))
			m.Positions = append(m.Positions, mgl32.Vec3{x, y, z})
		}
	}
	stride := lon + 1
	for i := 0; i < lat; i++ {
		for j := 0; j < lon; j++ {
			i00 := int32(i*stride + j)
			i01 := int32(i*stride + j + 1)
			i10 := int32((i+1)*stride + j)
			i11 := int32((i+1)*stride + j + 1)
			m.Faces = append(m.Faces, [3]int32{i00, i10, i01}, [3]int32{i01, i10, i11})
		}
	}
	return m
}

func TestWrapProjectCoversGridAndUVs(t *testing.T) {
	ref := hemisphere(1.0, 16, 16)
	out, err := Wrap(ref, Params{Resolution: 8, Axis: AxisZ, Mode: ModeProject, Miss: MissNone})
	require.NoError(t, err)

	require.Len(t, out.UVs, len(out.Positions))
	assert.Equal(t, [2]float32{0, 0}, out.UVs[0])
}

func TestWrapProjectMissInpaintCoversFullGrid(t *testing.T) {
	ref := hemisphere(1.0, 32, 32)
	out, err := Wrap(ref, Params{Resolution: 32, Axis: AxisZ, Mode: ModeProject, Miss: MissInpaint})
	require.NoError(t, err)
	assert.Len(t, out.Positions, 32*32)
	assert.Len(t, out.Faces, (32-1)*(32-1)*2)
}

func TestWrapNearestPointStaysOnSurface(t *testing.T) {
	ref := hemisphere(1.0, 16, 16)
	out, err := Wrap(ref, Params{Resolution: 6, Axis: AxisZ, Mode: ModeNearestPoint, Miss: MissNone})
	require.NoError(t, err)
	for _, p := range out.Positions {
		r := p.Len()
		assert.InDelta(t, 1.0, r, 0.1)
	}
}

func TestWrapRejectsEmptyReference(t *testing.T) {
	_, err := Wrap(&rmesh.Mesh{}, Params{Resolution: 4})
	assert.Error(t, err)
}
