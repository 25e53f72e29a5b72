package manager

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"diffusiond/internal/latent"
	"diffusiond/internal/sampler"
	"diffusiond/pkg/types"
)

// Sample runs one sampling job on the requested model and streams NDJSON
// events (progress, preview, done) to w. Errors found before the first line
// is written are returned untouched so callers can map them to a status;
// later errors are also written as an error event.
func (m *Manager) Sample(ctx context.Context, req types.SampleRequest, w io.Writer, flush func()) error {
	modelID, err := m.resolveModelID(req.Model)
	if err != nil {
		return err
	}
	mdl, ok := m.getModelByID(modelID)
	if !ok {
		return ErrModelNotFound(modelID)
	}
	cfg, err := m.buildConfig(req, mdl)
	if err != nil {
		return err
	}
	dt, err := latent.ParseDType(req.OutputDType)
	if err != nil {
		return invalidRequestError{err}
	}
	in, err := buildInput(req, cfg)
	if err != nil {
		return err
	}

	if err := m.EnsureInstance(ctx, modelID); err != nil {
		return err
	}
	// Admission: per-instance FIFO queue, single in-flight
	release, err := m.beginGeneration(ctx, modelID)
	if err != nil {
		return err
	}
	defer release()

	m.mu.RLock()
	var d sampler.Denoiser
	if inst := m.instances[modelID]; inst != nil {
		d = inst.Denoiser
	}
	m.mu.RUnlock()
	if d == nil {
		return ErrDependencyUnavailable("model " + modelID + " has no denoiser")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s := &eventStream{
		w:      w,
		flush:  flush,
		id:     uuid.NewString(),
		dtype:  dt,
		cancel: cancel,
		steps:  m.metrics.steps,
	}
	log := m.log.With().Str("job", s.id).Str("model", modelID).Logger()
	log.Debug().Str("sampler", string(cfg.Sampler)).Str("scheduler", string(cfg.Scheduler)).
		Int("steps", cfg.Steps).Bool("tiled", cfg.TileSample).Str("latent", in.Latent.Shape.String()).Msg("sample start")

	start := time.Now()
	out, err := m.orch.Run(runCtx, cfg, in, d, s)
	elapsed := time.Since(start)
	m.metrics.duration.WithLabelValues(modelID, strconv.FormatBool(cfg.TileSample)).Observe(elapsed.Seconds())
	if s.err != nil {
		err = s.err
	}
	if err != nil {
		m.recordFailure(modelID, err)
		if s.written && s.err == nil {
			ev := types.SampleEvent{Event: types.EventError, ID: s.id, Tile: -1, Error: err.Error()}
			var se *sampler.StageError
			if errors.As(err, &se) {
				ev.Stage = string(se.Stage)
				ev.Tile = se.Tile
			}
			s.write(ev)
		}
		log.Debug().Err(err).Dur("elapsed", elapsed).Msg("sample failed")
		return err
	}

	m.metrics.runs.WithLabelValues(modelID, "ok").Inc()
	m.metrics.tiles.Add(float64(max(1, s.tiles)))
	atomic.AddUint64(&m.samplesTotal, 1)
	enc, err := EncodeLatent(out, dt)
	if err != nil {
		return err
	}
	s.write(types.SampleEvent{Event: types.EventDone, ID: s.id, Tile: -1, Tiles: s.tiles, Latent: &enc, ElapsedMS: elapsed.Milliseconds()})
	log.Debug().Dur("elapsed", elapsed).Msg("sample done")
	return s.err
}

func (m *Manager) recordFailure(modelID string, err error) {
	result := "error"
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		result = "canceled"
	}
	m.metrics.runs.WithLabelValues(modelID, result).Inc()
	stage := "unknown"
	var se *sampler.StageError
	if errors.As(err, &se) {
		stage = string(se.Stage)
	}
	m.metrics.failures.WithLabelValues(stage).Inc()
}

// eventStream is the sampler.Reporter of one job. A failed write cancels the
// run; the write error is reported once sampling returns.
type eventStream struct {
	w       io.Writer
	flush   func()
	id      string
	dtype   latent.DType
	cancel  context.CancelFunc
	steps   prometheus.Counter
	tiles   int
	written bool
	err     error
}

func (s *eventStream) write(ev types.SampleEvent) {
	if s.err != nil {
		return
	}
	b, err := json.Marshal(ev)
	if err == nil {
		_, err = s.w.Write(append(b, '\n'))
	}
	if err != nil {
		s.err = err
		s.cancel()
		return
	}
	s.written = true
	if s.flush != nil {
		s.flush()
	}
}

func (s *eventStream) Step(p sampler.Progress) {
	s.steps.Inc()
	s.tiles = p.Tiles
	s.write(types.SampleEvent{Event: types.EventProgress, ID: s.id, Step: p.Step, Total: p.Total, Tile: p.Tile, Tiles: p.Tiles})
}

func (s *eventStream) Preview(p sampler.Preview) {
	frames := make([]types.Latent, 0, len(p.Frames))
	for _, f := range p.Frames {
		enc, err := EncodeLatent(f, s.dtype)
		if err != nil {
			continue
		}
		frames = append(frames, enc)
	}
	s.write(types.SampleEvent{Event: types.EventPreview, ID: s.id, Step: p.Step, Tile: p.Tile, PreviewID: p.ID, Animated: p.Animated, Frames: frames})
}
