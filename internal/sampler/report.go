package sampler

import "diffusiond/internal/latent"

// Progress is one step notification. Tile is -1 for untiled runs.
type Progress struct {
	Step  int `json:"step"`
	Total int `json:"total"`
	Tile  int `json:"tile"`
	Tiles int `json:"tiles"`
}

// Preview carries intermediate latents. ID groups previews belonging to the
// same batch slot; an animated preview holds every batch element as frames.
type Preview struct {
	ID       int
	Step     int
	Tile     int
	Animated bool
	Frames   []*latent.Tensor
}

// Reporter receives progress and previews. Calls happen on the sampling
// goroutine.
type Reporter interface {
	Step(Progress)
	Preview(Preview)
}

// PhaseReporter is optionally implemented by a Reporter that wants phase
// transitions.
type PhaseReporter interface {
	Phase(Phase)
}

// NopReporter discards everything.
type NopReporter struct{}

func (NopReporter) Step(Progress)   {}
func (NopReporter) Preview(Preview) {}

// ReporterFuncs adapts plain functions; nil fields are skipped.
type ReporterFuncs struct {
	OnStep    func(Progress)
	OnPreview func(Preview)
	OnPhase   func(Phase)
}

func (r ReporterFuncs) Step(p Progress) {
	if r.OnStep != nil {
		r.OnStep(p)
	}
}

func (r ReporterFuncs) Preview(p Preview) {
	if r.OnPreview != nil {
		r.OnPreview(p)
	}
}

func (r ReporterFuncs) Phase(p Phase) {
	if r.OnPhase != nil {
		r.OnPhase(p)
	}
}

// previews expands x0 according to mode.
func previews(mode PreviewMode, step, tile int, x0 *latent.Tensor) []Preview {
	if x0 == nil || mode == PreviewNone {
		return nil
	}
	batch := x0.Shape[latent.AxisBatch]
	switch mode {
	case PreviewOne:
		return []Preview{{ID: 0, Step: step, Tile: tile, Frames: []*latent.Tensor{x0.Batch(0)}}}
	case PreviewIterate:
		return []Preview{{ID: 0, Step: step, Tile: tile, Frames: []*latent.Tensor{x0.Batch(step % batch)}}}
	case PreviewAnimate:
		frames := make([]*latent.Tensor, batch)
		for b := range frames {
			frames[b] = x0.Batch(b)
		}
		return []Preview{{ID: 0, Step: step, Tile: tile, Animated: true, Frames: frames}}
	default:
		out := make([]Preview, batch)
		for b := range out {
			out[b] = Preview{ID: b, Step: step, Tile: tile, Frames: []*latent.Tensor{x0.Batch(b)}}
		}
		return out
	}
}
