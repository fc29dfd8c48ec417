// Package panorama drives tile-wise application of the backproject,
// blend, and propagation machinery across a sky panorama surround,
// per spec.md §4.6 (component C9).
package panorama

import (
	"context"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/roverterrain/texcomposite/internal/dmg"
	"github.com/roverterrain/texcomposite/internal/rimage"
	"github.com/roverterrain/texcomposite/internal/rmesh"
	"github.com/roverterrain/texcomposite/internal/worker"
)

const (
	tau = 2 * math.Pi
	pi  = math.Pi
)

// Shape selects the panorama tile mesh topology.
type Shape int

const (
	Box Shape = iota
	Sphere
	TopoSphere
)

// Params configures a panorama build.
type Params struct {
	Rows, Cols   int
	TileSize     int // T in spec.md §4.6
	Shape        Shape
	Radius       float32
	MaxLongAxis  int // spec.md: "enforces a maximum composite size (≈8K)"
	WorkerCount  int
}

// TileMesh builds the mesh for panorama tile (row,col) out of Rows x
// Cols, per spec.md §4.6 step 1.
//
// Box mode requires Cols divisible by 4 (four walls); Sphere and
// TopoSphere place a UV-sphere band segment above/below the horizon.
// TopoSphere's further resampling "through a remote orbital DEM" (so a
// horizon silhouette matches the advertised panoramic distance) needs an
// external DEM source this module does not have access to offline; it
// falls back to the plain Sphere mesh. See DESIGN.md.
func TileMesh(p Params, row, col int) (*rmesh.Mesh, error) {
	switch p.Shape {
	case Box:
		return boxTile(p, row, col)
	case Sphere, TopoSphere:
		return sphereTile(p, row, col)
	default:
		return nil, fmt.Errorf("panorama: unknown shape %v", p.Shape)
	}
}

func boxTile(p Params, row, col int) (*rmesh.Mesh, error) {
	if p.Cols%4 != 0 {
		return nil, fmt.Errorf("panorama: box mode requires Cols divisible by 4, got %d", p.Cols)
	}
	wallCols := p.Cols / 4
	wall := col / wallCols
	colInWall := col % wallCols

	angle0 := float32(wall) * (tau / 4)
	angle1 := angle0 + colAngleStep(p)*float32(colInWall+1)
	angle0 += colAngleStep(p) * float32(colInWall)

	rowHeight := 2 * p.Radius / float32(p.Rows)
	y0 := p.Radius - float32(row)*rowHeight
	y1 := y0 - rowHeight

	p0 := wallPoint(p.Radius, angle0, y0)
	p1 := wallPoint(p.Radius, angle1, y0)
	p2 := wallPoint(p.Radius, angle1, y1)
	p3 := wallPoint(p.Radius, angle0, y1)

	return quadMesh(p0, p1, p2, p3), nil
}

func colAngleStep(p Params) float32 {
	wallCols := p.Cols / 4
	return (tau / 4) / float32(wallCols)
}

func wallPoint(radius, angle, y float32) mgl32.Vec3 {
	return mgl32.Vec3{radius * cos32(angle), y, radius * sin32(angle)}
}

func sphereTile(p Params, row, col int) (*rmesh.Mesh, error) {
	theta0 := float32(pi) * float32(row) / float32(p.Rows)
	theta1 := float32(pi) * float32(row+1) / float32(p.Rows)
	phi0 := float32(tau) * float32(col) / float32(p.Cols)
	phi1 := float32(tau) * float32(col+1) / float32(p.Cols)

	v00 := sphericalPoint(p.Radius, theta0, phi0)
	v01 := sphericalPoint(p.Radius, theta0, phi1)
	v11 := sphericalPoint(p.Radius, theta1, phi1)
	v10 := sphericalPoint(p.Radius, theta1, phi0)

	return quadMesh(v00, v01, v11, v10), nil
}

func sphericalPoint(radius, theta, phi float32) mgl32.Vec3 {
	return mgl32.Vec3{
		radius * sin32(theta) * cos32(phi),
		radius * cos32(theta),
		radius * sin32(theta) * sin32(phi),
	}
}

func quadMesh(p0, p1, p2, p3 mgl32.Vec3) *rmesh.Mesh {
	return &rmesh.Mesh{
		Positions: []mgl32.Vec3{p0, p1, p2, p3},
		UVs:       [][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 1}},
		Faces:     [][3]int32{{0, 1, 2}, {0, 2, 3}},
	}
}

// decimationFactor returns the power-of-two factor each tile index is
// decimated by before blit so the composite long axis stays within
// MaxLongAxis (spec.md §4.6: "decimating tile indices before blit").
// A power of two preserves the power-of-two-ness of the full width, so
// decimation never flips the wrap-vs-guard-column decision.
func (p Params) decimationFactor() int {
	long := maxInt(p.Cols*p.TileSize, p.Rows*p.TileSize)
	if p.MaxLongAxis <= 0 || long <= p.MaxLongAxis {
		return 1
	}
	f := 1
	for long/f > p.MaxLongAxis {
		f *= 2
	}
	return f
}

// scaledTileSize is the per-tile composite resolution after decimation.
func (p Params) scaledTileSize() int {
	f := p.decimationFactor()
	return (p.TileSize + f - 1) / f
}

// CompositeSize computes the composite image dimensions for Params,
// including the guard-column pair spec.md §4.6 step 3 calls for when
// the full width is not already a power of two, and the edge behavior
// DMG should use as a result.
func CompositeSize(p Params) (width, height int, edge dmg.EdgeBehavior, guardCols int) {
	t := p.scaledTileSize()
	width = p.Cols * t
	height = p.Rows * t
	if isPow2(width) {
		return width, height, dmg.WrapCylinder, 0
	}
	return width + 2, height, dmg.Clamp, 1
}

func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

// BuildCompositeIndex backprojects every tile in parallel and blits the
// results into one composite index image in deterministic row-major
// tile order (spec.md §5(b)), decimating each tile index before blit
// when the full composite would exceed MaxLongAxis.
func BuildCompositeIndex(ctx context.Context, p Params, buildTileIndex func(row, col int) (*rimage.Image, error)) (*rimage.Image, error) {
	width, height, _, guardCols := CompositeSize(p)
	factor := p.decimationFactor()
	scaled := p.scaledTileSize()
	composite := rimage.New(3, height, width)

	type tileResult struct {
		row, col int
		idx      *rimage.Image
	}

	pool := worker.New[tileResult](worker.Config{Workers: p.WorkerCount})
	tasks := make([]worker.Task[tileResult], 0, p.Rows*p.Cols)
	for row := 0; row < p.Rows; row++ {
		for col := 0; col < p.Cols; col++ {
			row, col := row, col
			tasks = append(tasks, worker.Task[tileResult]{
				ID: fmt.Sprintf("%04d_%04d", row, col),
				Work: func(ctx context.Context) (tileResult, error) {
					idx, err := buildTileIndex(row, col)
					return tileResult{row: row, col: col, idx: idx}, err
				},
			})
		}
	}

	results := pool.Run(ctx, tasks)
	ordered := make([]tileResult, len(results))
	for i, r := range results {
		if r.Err != nil {
			continue // per-unit failure: contributes masked pixels only (spec.md §7 item 4)
		}
		ordered[i] = r.Value
	}
	for row := 0; row < p.Rows; row++ {
		for col := 0; col < p.Cols; col++ {
			for _, tr := range ordered {
				if tr.row == row && tr.col == col && tr.idx != nil {
					idx := tr.idx
					if factor > 1 {
						// DecimatePick: index triples are categorical and
						// must never be averaged.
						idx = idx.Decimate(factor, rimage.DecimatePick)
					}
					composite.Blit(row*scaled, guardCols+col*scaled, idx)
				}
			}
		}
	}

	if guardCols > 0 {
		replicateGuardColumns(composite, guardCols)
	}

	return composite, nil
}

// replicateGuardColumns copies the rightmost real column into the left
// guard column and the leftmost real column into the right guard
// column, so the pre-solve image is locally continuous across the seam
// that WrapCylinder would otherwise have handled (spec.md §4.6 step 3).
func replicateGuardColumns(img *rimage.Image, guardCols int) {
	w := img.Width
	for r := 0; r < img.Height; r++ {
		for g := 0; g < guardCols; g++ {
			if img.Valid(r, w-1-guardCols-g) {
				img.SetBands(r, g, img.At3(r, w-1-guardCols-g))
			}
			if img.Valid(r, guardCols+g) {
				img.SetBands(r, w-1-g, img.At3(r, guardCols+g))
			}
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func sin32(v float32) float32 { return float32(math.Sin(float64(v))) }
func cos32(v float32) float32 { return float32(math.Cos(float64(v))) }
