package pipeline

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roverterrain/texcomposite/internal/config"
	"github.com/roverterrain/texcomposite/internal/index"
	"github.com/roverterrain/texcomposite/internal/rimage"
)

func flatObservation(bands, h, w int, val float32) *rimage.Image {
	img := rimage.New(bands, h, w)
	vals := make([]float32, bands)
	for b := range vals {
		vals[b] = val
	}
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			img.SetBands(r, c, vals)
		}
	}
	return img
}

func twoObservationIndex(h, w int) *rimage.Image {
	idx := rimage.New(3, h, w)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			obsID := uint16(2)
			if c >= w/2 {
				obsID = 3
			}
			enc := index.Encode(obsID, uint16(r), uint16(c))
			idx.SetBands(r, c, enc[:])
		}
	}
	return idx
}

func TestDriverRunProducesBlendedCompositeAndCorrections(t *testing.T) {
	h, w := 8, 16
	opts := config.Default()
	d := New(opts, nil)

	in := Inputs{
		SceneIndex: twoObservationIndex(h, w),
		Observations: map[uint16]*rimage.Image{
			2: flatObservation(3, h, w, 0.2),
			3: flatObservation(3, h, w, 0.8),
		},
		Region: func(r, c int) int32 {
			if c >= w/2 {
				return 1
			}
			return 0
		},
	}

	dbg := &DebugContext{}
	result, err := d.Run(context.Background(), in, dbg)
	require.NoError(t, err)
	assert.NotNil(t, result.Composite)
	assert.Equal(t, h, result.Composite.Height)
	assert.Equal(t, w, result.Composite.Width)
	assert.Contains(t, result.Corrections, uint16(2))
	assert.Contains(t, result.Corrections, uint16(3))
	assert.Len(t, dbg.SortedStages(), 4)
}

func TestDriverRunReturnsBlurredComposite(t *testing.T) {
	h, w := 8, 16
	d := New(config.Default(), nil)

	result, err := d.Run(context.Background(), Inputs{
		SceneIndex: twoObservationIndex(h, w),
		Observations: map[uint16]*rimage.Image{
			2: flatObservation(3, h, w, 0.2),
			3: flatObservation(3, h, w, 0.8),
		},
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, result.Blurred)
	assert.Equal(t, h, result.Blurred.Height)
	assert.Equal(t, w, result.Blurred.Width)
}

func TestDriverRunNoObservationsIsBenign(t *testing.T) {
	d := New(config.Default(), nil)
	result, err := d.Run(context.Background(), Inputs{
		SceneIndex:   twoObservationIndex(4, 8),
		Observations: map[uint16]*rimage.Image{},
	}, nil)
	require.NoError(t, err)
	assert.Nil(t, result.Composite)
	assert.Empty(t, result.Corrections)
}

// Without an explicit Region input the driver derives regions from the
// scene index itself, so the two observations still blend at their seam.
func TestDriverDerivesRegionsFromIndex(t *testing.T) {
	h, w := 8, 16
	d := New(config.Default(), nil)

	result, err := d.Run(context.Background(), Inputs{
		SceneIndex: twoObservationIndex(h, w),
		Observations: map[uint16]*rimage.Image{
			2: flatObservation(3, h, w, 0.2),
			3: flatObservation(3, h, w, 0.8),
		},
	}, nil)
	require.NoError(t, err)

	seam := w / 2
	jump := result.Composite.At(0, h/2, seam) - result.Composite.At(0, h/2, seam-1)
	assert.Less(t, float64(jump), 0.3)
}

// A hold-constant sentinel in the index contributes no observation
// pixel, so the composite stays masked there rather than inventing a
// color.
func TestDriverHoldConstantSentinelStaysMasked(t *testing.T) {
	h, w := 8, 8
	idx := rimage.New(3, h, w)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			enc := index.Encode(2, uint16(r), uint16(c))
			idx.SetBands(r, c, enc[:])
		}
	}
	holdEnc := index.Encode(index.HoldConstant, 0, 0)
	idx.SetBands(h/2, w/2, holdEnc[:])

	d := New(config.Default(), nil)
	result, err := d.Run(context.Background(), Inputs{
		SceneIndex:   idx,
		Observations: map[uint16]*rimage.Image{2: flatObservation(3, h, w, 0.5)},
	}, nil)
	require.NoError(t, err)
	assert.False(t, result.Composite.Valid(h/2, w/2))
	assert.True(t, result.Composite.Valid(0, 0))
}

func stepObservation(bands, h, w int) *rimage.Image {
	img := rimage.New(bands, h, w)
	vals := make([]float32, bands)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			v := float32(0.1)
			if c >= w/2 {
				v = 0.9
			}
			for b := range vals {
				vals[b] = v
			}
			img.SetBands(r, c, vals)
		}
	}
	return img
}

// The corrected variant differs depending on whether corrections are
// applied to the blurred or the original observation: near a sharp
// luminance step the two bases disagree.
func TestDriverApplyCorrectionsToBlurredUsesBlurredBase(t *testing.T) {
	h, w := 16, 16
	idx := rimage.New(3, h, w)
	for r := 0; r < h; r++ {
		for c := 0; c < w; c++ {
			enc := index.Encode(2, uint16(r), uint16(c))
			idx.SetBands(r, c, enc[:])
		}
	}
	observations := func() map[uint16]*rimage.Image {
		return map[uint16]*rimage.Image{2: stepObservation(3, h, w)}
	}

	optsOriginal := config.Default()
	optsOriginal.ObservationBlurSigma = 2

	optsBlurred := optsOriginal
	optsBlurred.ApplyCorrectionsToBlurred = true

	resOriginal, err := New(optsOriginal, nil).Run(context.Background(), Inputs{
		SceneIndex: idx, Observations: observations(),
	}, nil)
	require.NoError(t, err)
	resBlurred, err := New(optsBlurred, nil).Run(context.Background(), Inputs{
		SceneIndex: idx, Observations: observations(),
	}, nil)
	require.NoError(t, err)

	corrOriginal := resOriginal.Corrections[2]
	corrBlurred := resBlurred.Corrections[2]
	require.NotNil(t, corrOriginal)
	require.NotNil(t, corrBlurred)

	differs := false
	for c := 0; c < w && !differs; c++ {
		if corrOriginal.At(0, h/2, c) != corrBlurred.At(0, h/2, c) {
			differs = true
		}
	}
	assert.True(t, differs, "blurred-base and original-base corrected variants should diverge near the step")
}

func TestDriverRunRejectsNilIndex(t *testing.T) {
	d := New(config.Default(), nil)
	_, err := d.Run(context.Background(), Inputs{}, nil)
	assert.Error(t, err)
}

func TestDriverCachesArtifactsWhenEnabled(t *testing.T) {
	h, w := 8, 16
	opts := config.Default()
	opts.CacheArtifacts = true
	opts.OutputDir = t.TempDir()
	d := New(opts, nil)
	defer d.Close()

	in := Inputs{
		SceneIndex: twoObservationIndex(h, w),
		Observations: map[uint16]*rimage.Image{
			2: flatObservation(3, h, w, 0.2),
			3: flatObservation(3, h, w, 0.8),
		},
	}

	_, err := d.Run(context.Background(), in, nil)
	require.NoError(t, err)

	blended, err := d.CachedArtifact("blended")
	require.NoError(t, err)
	assert.Equal(t, h, blended.Height)
	assert.Equal(t, w, blended.Width)

	correction, err := d.CachedArtifact("correction/2")
	require.NoError(t, err)
	assert.Equal(t, h, correction.Height)

	_, err = d.CachedArtifact("not-a-real-key")
	assert.Error(t, err)

	assert.FileExists(t, filepath.Join(opts.OutputDir, "artifacts.sqlite"))
}

func TestDriverCachedArtifactErrorsWhenCachingDisabled(t *testing.T) {
	d := New(config.Default(), nil)
	_, err := d.CachedArtifact("blended")
	assert.Error(t, err)
}
