package rimage

// Inpaint returns a copy of img in which masked pixels within radius R of
// a valid neighbor (by the given connectivity) are filled via an
// expanding-ring breadth-first search with the mean of the valid pixels on
// the nearest ring that holds any; farther rings are not averaged in.
// Filled pixels are cleared of their mask (become
// valid); pixels with no valid neighbor within R remain masked.
func (img *Image) Inpaint(radius int, conn Connectivity) *Image {
	out := img.Clone()
	if radius <= 0 {
		return out
	}

	var neighbors [][2]int
	if conn == Conn4 {
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

	sums := make([]float64, img.Bands)
	for _, cl := range toFill {
		for b := range sums {
			sums[b] = 0
		}
		count := 0

		visited := map[[2]int]bool{{cl.r, cl.c}: true}
		frontier := [][2]int{{cl.r, cl.c}}
		for step := 1; step <= radius && count == 0; step++ {
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
					if img.Valid(nr, nc) {
						v := img.At3(nr, nc)
						for b := range sums {
							sums[b] += float64(v[b])
						}
						count++
					}
				}
			}
			frontier = next
		}

		if count > 0 {
			vals := make([]float32, img.Bands)
			for b := range vals {
				vals[b] = float32(sums[b] / float64(count))
			}
			out.SetBands(cl.r, cl.c, vals)
		}
	}
	return out
}
