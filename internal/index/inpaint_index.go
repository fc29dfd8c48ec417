package index

import "github.com/roverterrain/texcomposite/internal/rimage"

// inpaintIndex fills small gaps in a categorical composite index in
// place, using a single nearest valid neighbor's (obsID, row, col)
// triple rather than averaging several, per spec.md §4.3 Path A: "inpaint
// small gaps ... using any (8-connected) neighbor." A mean of two
// different triples names no actual source pixel, so this deliberately
// does not reuse rimage.Image.Inpaint, which averages.
//
// Adapted from rimage.Image.Inpaint's expanding-ring breadth-first
// search, replacing its per-band mean with a single neighbor pick.
func inpaintIndex(img *rimage.Image, radius int, conn rimage.Connectivity) {
	if radius <= 0 {
		return
	}

	var neighbors [][2]int
	if conn == rimage.Conn4 {
		neighbors = [][2]int{{-1, 0}, {1, 0}, {0, -1}, {0, 1}}
	} else {
		neighbors = [][2]int{
			{-1, 0}, {1, 0}, {0, -1}, {0, 1},
			{-1, -1}, {-1, 1}, {1, -1}, {1, 1},
		}
	}

	type cell struct{ r, c int }
	var toFill []cell
	for r := 0; r < img.Height; r++ {
		for c := 0; c < img.Width; c++ {
			if !img.Valid(r, c) {
				toFill = append(toFill, cell{r, c})
			}
		}
	}

	for _, cl := range toFill {
		visited := map[[2]int]bool{{cl.r, cl.c}: true}
		frontier := [][2]int{{cl.r, cl.c}}
		var fill []float32

	ringSearch:
		for step := 1; step <= radius; step++ {
			var next [][2]int
			for _, f := range frontier {
				for _, d := range neighbors {
					nr, nc := f[0]+d[0], f[1]+d[1]
					key := [2]int{nr, nc}
					if visited[key] {
						continue
					}
					visited[key] = true
					if nr < 0 || nc < 0 || nr >= img.Height || nc >= img.Width {
						continue
					}
					next = append(next, key)
					if fill == nil && img.Valid(nr, nc) {
						fill = img.At3(nr, nc)
						break ringSearch
					}
				}
			}
			frontier = next
		}

		if fill != nil {
			img.SetBands(cl.r, cl.c, fill)
		}
	}
}
