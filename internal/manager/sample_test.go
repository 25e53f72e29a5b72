package manager

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"diffusiond/internal/latent"
	"diffusiond/internal/sampler"
	"diffusiond/pkg/types"
)

func decodeEvents(t *testing.T, b []byte) []types.SampleEvent {
	t.Helper()
	var out []types.SampleEvent
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 1<<20), 1<<26)
	for sc.Scan() {
		var ev types.SampleEvent
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("bad line %q: %v", sc.Text(), err)
		}
		out = append(out, ev)
	}
	return out
}

func wireLatent(t *testing.T, shape latent.Shape, seed uint64) (*latent.Tensor, *types.Latent) {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, 2))
	x := latent.New(shape)
	for i := range x.Data {
		x.Data[i] = float32(rng.NormFloat64())
	}
	enc, err := EncodeLatent(x, latent.Float32)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return x, &enc
}

func TestSampleStreamsProgressAndDone(t *testing.T) {
	m := newTestManager(t, ManagerConfig{}, "m")
	in, wire := wireLatent(t, latent.Shape{1, 4, 12, 12}, 1)
	var buf bytes.Buffer
	flushed := 0
	err := m.Sample(testCtx(t), types.SampleRequest{Seed: 42, Steps: 3, Latent: wire, Previews: "one"}, &buf, func() { flushed++ })
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	evs := decodeEvents(t, buf.Bytes())
	// 3 progress + 3 preview + done
	if len(evs) != 7 || flushed != 7 {
		t.Fatalf("expected 7 events/flushes, got %d/%d: %+v", len(evs), flushed, evs)
	}
	id := evs[0].ID
	for _, ev := range evs {
		if ev.ID != id || id == "" {
			t.Fatalf("job id should be shared: %+v", ev)
		}
	}
	last := evs[len(evs)-1]
	if last.Event != types.EventDone || last.Latent == nil {
		t.Fatalf("expected done event, got %+v", last)
	}
	out, err := DecodeLatent(*last.Latent)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Shape != in.Shape {
		t.Fatalf("shape %v want %v", out.Shape, in.Shape)
	}
	for i := range in.Data {
		if in.Data[i] != out.Data[i] {
			t.Fatalf("identity backend changed element %d: %v vs %v", i, in.Data[i], out.Data[i])
		}
	}
	if st := m.Status(); st.SamplesTotal != 1 {
		t.Fatalf("samples_total = %d", st.SamplesTotal)
	}
}

func TestSampleTiledEmptyLatent(t *testing.T) {
	m := newTestManager(t, ManagerConfig{}, "m")
	var buf bytes.Buffer
	req := types.SampleRequest{
		Steps: 2, Width: 768, Height: 1024, TileSample: true, TileSize: 512,
		Offsets: []float32{0.5, 0, 0, -0.25}, Previews: "none", OutputDType: "f16",
	}
	if err := m.Sample(testCtx(t), req, &buf, nil); err != nil {
		t.Fatalf("sample: %v", err)
	}
	evs := decodeEvents(t, buf.Bytes())
	last := evs[len(evs)-1]
	if last.Tiles < 2 || last.Latent == nil || last.Latent.DType != "f16" {
		t.Fatalf("unexpected done event %+v", last)
	}
	out, err := DecodeLatent(*last.Latent)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Shape != (latent.Shape{1, 4, 128, 96}) {
		t.Fatalf("shape %v", out.Shape)
	}
	if v := out.At(0, 0, 70, 50); v != 0.5 {
		t.Fatalf("channel 0 offset lost: %v", v)
	}
	if v := out.At(0, 3, 5, 90); v != -0.25 {
		t.Fatalf("channel 3 offset lost: %v", v)
	}
}

func TestSampleConfigErrorsBeforeStreaming(t *testing.T) {
	m := newTestManager(t, ManagerConfig{}, "m")
	_, wire := wireLatent(t, latent.Shape{1, 4, 8, 8}, 2)
	cases := []types.SampleRequest{
		{Latent: wire, Sampler: "euler_magic"},
		{Latent: wire, Scheduler: "cosine"},
		{Latent: wire, VariationStrength: 2},
		{Latent: wire, OutputDType: "bf16"},
		{Width: 0, Height: 64},
		{Latent: &types.Latent{Shape: [4]int{1, 4, 8, 8}, DType: "f32", Data: "AAAA"}},
		{Width: 512, Height: 512, TileSample: true, TileSize: 128},
	}
	for i, req := range cases {
		var buf bytes.Buffer
		err := m.Sample(testCtx(t), req, &buf, nil)
		if !IsInvalidRequest(err) {
			t.Fatalf("case %d: expected invalid request, got %v", i, err)
		}
		if buf.Len() != 0 {
			t.Fatalf("case %d: nothing should be streamed, got %q", i, buf.String())
		}
	}
}

func TestSampleUnknownModel(t *testing.T) {
	m := newTestManager(t, ManagerConfig{}, "m")
	err := m.Sample(testCtx(t), types.SampleRequest{Model: "ghost", Width: 64, Height: 64}, &bytes.Buffer{}, nil)
	if !IsModelNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	m2 := NewWithConfig(ManagerConfig{Metrics: NewMetrics(nil)})
	if err := m2.Sample(testCtx(t), types.SampleRequest{Width: 64, Height: 64}, &bytes.Buffer{}, nil); !IsModelNotFound(err) {
		t.Fatalf("expected not found without default, got %v", err)
	}
}

func TestSampleWriteErrorStopsRun(t *testing.T) {
	m := newTestManager(t, ManagerConfig{}, "m")
	err := m.Sample(testCtx(t), types.SampleRequest{Steps: 5, Width: 64, Height: 64}, &errWriter{}, nil)
	if err == nil || err.Error() != "write fail" {
		t.Fatalf("expected write error, got %v", err)
	}
}

type failingDenoiser struct{}

func (failingDenoiser) Denoise(context.Context, sampler.DenoiseRequest) (*latent.Tensor, error) {
	return nil, errors.New("out of memory")
}

func TestSampleDenoiseFailure(t *testing.T) {
	m := newTestManager(t, ManagerConfig{Backend: BackendFunc(func(context.Context, types.Model, *AuxCache) (sampler.Denoiser, error) {
		return failingDenoiser{}, nil
	})}, "m")
	var buf bytes.Buffer
	err := m.Sample(testCtx(t), types.SampleRequest{Width: 64, Height: 64}, &buf, nil)
	var se *sampler.StageError
	if !errors.As(err, &se) || se.Stage != sampler.StageDenoise {
		t.Fatalf("expected denoise stage error, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("no events expected before the failure, got %q", buf.String())
	}
}

// slowDenoiser blocks until released so admission can be observed.
type slowDenoiser struct{ release chan struct{} }

func (s slowDenoiser) Denoise(ctx context.Context, req sampler.DenoiseRequest) (*latent.Tensor, error) {
	select {
	case <-s.release:
		return req.Latent.Clone(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestSampleSingleInflightPerModel(t *testing.T) {
	sd := slowDenoiser{release: make(chan struct{})}
	m := newTestManager(t, ManagerConfig{MaxQueueDepth: 1, MaxWait: 50 * time.Millisecond, Backend: BackendFunc(func(context.Context, types.Model, *AuxCache) (sampler.Denoiser, error) {
		return sd, nil
	})}, "m")
	done := make(chan error, 1)
	go func() {
		done <- m.Sample(context.Background(), types.SampleRequest{Width: 64, Height: 64}, &bytes.Buffer{}, nil)
	}()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st := m.Status()
		if len(st.Instances) == 1 && st.Instances[0].Inflight == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("first job never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	err := m.Sample(context.Background(), types.SampleRequest{Width: 64, Height: 64}, &bytes.Buffer{}, nil)
	if !IsTooBusy(err) {
		t.Fatalf("expected too busy, got %v", err)
	}
	close(sd.release)
	if err := <-done; err != nil {
		t.Fatalf("first job: %v", err)
	}
}
