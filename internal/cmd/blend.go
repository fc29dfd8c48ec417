package cmd

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roverterrain/texcomposite/internal/config"
	"github.com/roverterrain/texcomposite/internal/index"
	"github.com/roverterrain/texcomposite/internal/pipeline"
	"github.com/roverterrain/texcomposite/internal/propagate"
	"github.com/roverterrain/texcomposite/internal/rimage"
)

var blendCmd = &cobra.Command{
	Use:   "blend",
	Short: "Blend a directory of equal-sized observation textures into one seam-hidden composite",
	Long: `blend reads every PNG in --observations, tiles them left to right into a
single scene (this is the flat-mosaic case of the coherent index, spec.md
§4.3; arbitrary mesh/camera-driven index construction is invoked through
the internal/index package directly, not this convenience subcommand),
then runs the luminance conditioning, gradient-domain blend, and
correction-propagation stages and writes the blended composite plus each
corrected observation to --output-dir.`,
	RunE: runBlend,
}

func init() {
	rootCmd.AddCommand(blendCmd)

	blendCmd.Flags().String("observations", "", "Directory of equal-sized PNG observation textures")
	blendCmd.Flags().String("strategy", "auto", "Correction propagation strategy: none, auto, barycentric, inpaint, barycentricwinners")
	blendCmd.Flags().Bool("cache-artifacts", false, "Cache intermediate artifacts (blurred and blended composites, corrections) in a SQLite blob store under --output-dir")
	blendCmd.Flags().Float64("observation-blur-sigma", config.Default().ObservationBlurSigma, "Gaussian sigma for the pre-blurred observation variants the composite is built from; 0 composites raw observations")
	blendCmd.Flags().Bool("apply-corrections-to-blurred", false, "Apply correction fields to the blurred observation variants instead of the originals")

	for _, name := range []string{"observations", "strategy", "cache-artifacts", "observation-blur-sigma", "apply-corrections-to-blurred"} {
		if err := viper.BindPFlag(name, blendCmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("failed to bind flag: %v", err))
		}
	}
}

func runBlend(cmd *cobra.Command, args []string) error {
	obsDir := viper.GetString("observations")
	if obsDir == "" {
		return fmt.Errorf("blend: --observations is required")
	}
	outputDir := viper.GetString("output-dir")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("blend: creating output dir: %w", err)
	}

	opts, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("blend: loading config: %w", err)
	}

	entries, err := os.ReadDir(obsDir)
	if err != nil {
		return fmt.Errorf("blend: reading %s: %w", obsDir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".png" {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	if len(files) == 0 {
		// Benign per spec.md §6 exit semantics: warn, exit zero.
		logger.Warn("blend: no observation textures found, nothing to do", "dir", obsDir)
		return nil
	}

	observations := make(map[uint16]*rimage.Image, len(files))
	var height, width int
	for i, name := range files {
		f, err := os.Open(filepath.Join(obsDir, name))
		if err != nil {
			return fmt.Errorf("blend: opening %s: %w", name, err)
		}
		img, err := png.Decode(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("blend: decoding %s: %w", name, err)
		}
		ri := rimage.FromImage(img)
		if i == 0 {
			height, width = ri.Height, ri.Width
		} else if ri.Height != height || ri.Width != width {
			return fmt.Errorf("blend: %s is %dx%d, expected %dx%d matching the first observation", name, ri.Width, ri.Height, width, height)
		}
		observations[uint16(index.MinValidObs+i)] = ri
	}

	sceneIndex := rimage.New(3, height, len(files)*width)
	for i := range files {
		obsID := uint16(index.MinValidObs + i)
		for r := 0; r < height; r++ {
			for c := 0; c < width; c++ {
				enc := index.Encode(obsID, uint16(r), uint16(c))
				sceneIndex.SetBands(r, i*width+c, enc[:])
			}
		}
	}

	strategy, err := propagate.ParseStrategy(viper.GetString("strategy"))
	if err != nil {
		return err
	}
	opts.BlendStrategy = strategy

	d := pipeline.New(opts, logger)
	defer func() {
		if err := d.Close(); err != nil {
			logger.Warn("blend: closing artifact cache", "err", err)
		}
	}()
	result, err := d.Run(context.Background(), pipeline.Inputs{
		SceneIndex:   sceneIndex,
		Observations: observations,
	}, nil)
	if err != nil {
		return fmt.Errorf("blend: %w", err)
	}

	if err := writePNG(filepath.Join(outputDir, "composite.png"), result.Composite); err != nil {
		return err
	}
	if err := writePNG(filepath.Join(outputDir, "composite_blurred.png"), result.Blurred); err != nil {
		return err
	}
	for i, name := range files {
		obsID := uint16(index.MinValidObs + i)
		corrected, ok := result.Corrections[obsID]
		if !ok {
			continue
		}
		base := name[:len(name)-len(filepath.Ext(name))]
		if err := writePNG(filepath.Join(outputDir, base+"_corrected.png"), corrected); err != nil {
			return err
		}
	}

	logger.Info("blend complete", "observations", len(files), "converged", result.Stats.Converged, "vcycles", result.Stats.VCycles)
	return nil
}

func writePNG(path string, img *rimage.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	defer f.Close()
	return png.Encode(f, img.ToImage())
}
