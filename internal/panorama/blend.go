package panorama

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roverterrain/texcomposite/internal/config"
	"github.com/roverterrain/texcomposite/internal/dmg"
	"github.com/roverterrain/texcomposite/internal/pipeline"
	"github.com/roverterrain/texcomposite/internal/rimage"
)

// BlendResult is the outcome of one full panorama blend: the blended
// and blurred composites (guard columns already discarded), the
// re-emitted per-tile textures in row-major order, and the corrected
// observation variants.
type BlendResult struct {
	Composite   *rimage.Image
	Blurred     *rimage.Image
	Stats       dmg.Stats
	Tiles       []*rimage.Image
	Corrections map[uint16]*rimage.Image
}

// Blend drives spec.md §4.6 step 4: build the composite index across
// all tiles, run the blurred-composite build, DMG blend, and correction
// propagation the same way as for terrain, then trim the guard columns
// and split the blended composite back into per-tile textures.
//
// The DMG edge behavior is forced to whatever CompositeSize selected
// (WrapCylinder for a power-of-two width, Clamp plus guard columns
// otherwise), overriding opts.DMGEdge.
func Blend(ctx context.Context, p Params, opts config.Options, observations map[uint16]*rimage.Image, buildTileIndex func(row, col int) (*rimage.Image, error), logger *slog.Logger) (*BlendResult, error) {
	composite, err := BuildCompositeIndex(ctx, p, buildTileIndex)
	if err != nil {
		return nil, fmt.Errorf("panorama: composite index: %w", err)
	}

	_, _, edge, guardCols := CompositeSize(p)
	opts.DMGEdge = edge
	drv := pipeline.New(opts, logger)
	defer drv.Close()

	res, err := drv.Run(ctx, pipeline.Inputs{
		SceneIndex:   composite,
		Observations: observations,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("panorama: blend: %w", err)
	}
	if res.Composite == nil {
		// No sky observations: benign, nothing to re-emit.
		return &BlendResult{Corrections: res.Corrections}, nil
	}

	blended, blurred := res.Composite, res.Blurred
	if guardCols > 0 {
		blended = trimGuardColumns(blended, guardCols)
		blurred = trimGuardColumns(blurred, guardCols)
	}

	return &BlendResult{
		Composite:   blended,
		Blurred:     blurred,
		Stats:       res.Stats,
		Tiles:       SplitTiles(blended, p),
		Corrections: res.Corrections,
	}, nil
}

// trimGuardColumns discards the replicated guard columns on either side
// of the composite once the solve is done (spec.md §4.6 step 3).
func trimGuardColumns(img *rimage.Image, guardCols int) *rimage.Image {
	return img.Crop(0, guardCols, img.Height, img.Width-2*guardCols)
}

// SplitTiles cuts a guard-trimmed composite back into Rows*Cols tile
// textures in row-major order, upsampling back to TileSize when the
// composite was decimated to honor MaxLongAxis.
func SplitTiles(composite *rimage.Image, p Params) []*rimage.Image {
	scaled := p.scaledTileSize()
	tiles := make([]*rimage.Image, 0, p.Rows*p.Cols)
	for row := 0; row < p.Rows; row++ {
		for col := 0; col < p.Cols; col++ {
			tile := composite.Crop(row*scaled, col*scaled, scaled, scaled)
			if scaled != p.TileSize {
				tile = tile.Resize(p.TileSize, p.TileSize)
			}
			tiles = append(tiles, tile)
		}
	}
	return tiles
}
