package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"diffusiond/internal/latent"
	"diffusiond/internal/manager"
	"diffusiond/internal/sampler"
	"diffusiond/internal/schedule"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Run the reference denoiser on an empty latent",
	Long: `Builds an offset-filled empty latent, samples it with the reference Euler
denoiser and prints a summary. With --out the result is written as a JSON
encoded latent.`,
	RunE: runSample,
}

func init() {
	rootCmd.AddCommand(sampleCmd)
	f := sampleCmd.Flags()
	f.Int("width", 512, "Image width in pixels")
	f.Int("height", 512, "Image height in pixels")
	f.Int("batch", 1, "Batch size")
	f.Uint64("seed", 0, "Noise seed")
	f.Int("steps", sampler.DefaultSteps, "Number of steps")
	f.String("sampler", string(sampler.Euler), "Sampler name")
	f.String("scheduler", string(schedule.Karras), "Scheduler name")
	f.String("family", string(schedule.FamilySD1), "Model family: sd1|sdxl|svd")
	f.Bool("tile", false, "Sample in overlapping tiles")
	f.Int("tile-size", sampler.DefaultTile, "Tile edge in pixels")
	f.Int("channels", latent.DefaultChannels, "Latent channels")
	f.Int("scale-factor", latent.DefaultScaleFactor, "Pixels per latent cell")
	f.Float32Slice("offsets", nil, "Per-channel fill values of the empty latent")
	f.String("out", "", "Write the result latent as JSON to this file")
	f.String("dtype", string(latent.Float32), "Element type of the written latent: f32|f16")
}

func runSample(cmd *cobra.Command, _ []string) error {
	log, err := loggerFor(cmd)
	if err != nil {
		return err
	}
	f := cmd.Flags()
	cfg := sampler.DefaultConfig()
	cfg.Model = "reference"
	width, _ := f.GetInt("width")
	height, _ := f.GetInt("height")
	batch, _ := f.GetInt("batch")
	cfg.Seed, _ = f.GetUint64("seed")
	cfg.Steps, _ = f.GetInt("steps")
	name, _ := f.GetString("sampler")
	cfg.Sampler = sampler.Name(name)
	sched, _ := f.GetString("scheduler")
	cfg.Scheduler = schedule.Algorithm(sched)
	fam, _ := f.GetString("family")
	cfg.Family = schedule.Family(fam)
	cfg.TileSample, _ = f.GetBool("tile")
	cfg.TileSizePixels, _ = f.GetInt("tile-size")
	cfg.LatentChannels, _ = f.GetInt("channels")
	cfg.ScaleFactor, _ = f.GetInt("scale-factor")
	offsets, _ := f.GetFloat32Slice("offsets")
	if err := cfg.Validate(); err != nil {
		return err
	}
	if batch < 1 || width < cfg.ScaleFactor || height < cfg.ScaleFactor {
		return fmt.Errorf("batch must be positive and the image at least one latent cell")
	}
	if len(offsets) > cfg.LatentChannels {
		return fmt.Errorf("%d offsets for %d channels", len(offsets), cfg.LatentChannels)
	}

	in := latent.NewOffset(batch, cfg.LatentChannels, height/cfg.ScaleFactor, width/cfg.ScaleFactor, offsets)
	steps, tiles := 0, 0
	rep := sampler.ReporterFuncs{
		OnStep: func(p sampler.Progress) {
			steps++
			tiles = p.Tiles
			log.Debug().Int("step", p.Step).Int("total", p.Total).Int("tile", p.Tile).Msg("progress")
		},
		OnPhase: func(p sampler.Phase) { log.Trace().Str("phase", string(p)).Msg("phase") },
	}
	orch := sampler.New(sampler.WithLogger(log))
	out, err := orch.Run(cmd.Context(), cfg, sampler.Request{Latent: in}, sampler.NewEuler(nil, cfg.Family), rep)
	if err != nil {
		return err
	}

	data := make([]float64, len(out.Data))
	for i, v := range out.Data {
		data[i] = float64(v)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "shape=%s tiles=%d steps=%d\n", out.Shape, max(1, tiles), steps)
	fmt.Fprintf(w, "min=%.6g max=%.6g mean=%.6g\n", floats.Min(data), floats.Max(data), floats.Sum(data)/float64(len(data)))

	path, _ := f.GetString("out")
	if path == "" {
		return nil
	}
	dts, _ := f.GetString("dtype")
	dt, err := latent.ParseDType(dts)
	if err != nil {
		return err
	}
	enc, err := manager.EncodeLatent(out, dt)
	if err != nil {
		return err
	}
	b, err := json.Marshal(enc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}
