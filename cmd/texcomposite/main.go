// Command texcomposite blends per-observation terrain textures into a
// single seam-hidden scene composite.
package main

import "github.com/roverterrain/texcomposite/internal/cmd"

func main() {
	cmd.Execute()
}
