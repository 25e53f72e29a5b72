package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"diffusiond/internal/sampler"
	"diffusiond/internal/schedule"
	"diffusiond/pkg/types"
)

// closingDenoiser counts Close calls.
type closingDenoiser struct {
	*sampler.EulerDenoiser
	closed *atomic.Int32
}

func (c closingDenoiser) Close() error {
	c.closed.Add(1)
	return nil
}

func TestConcurrentEnsureLoadsOnce(t *testing.T) {
	var loads, closed atomic.Int32
	backend := BackendFunc(func(ctx context.Context, _ types.Model, _ *AuxCache) (sampler.Denoiser, error) {
		loads.Add(1)
		time.Sleep(50 * time.Millisecond)
		return closingDenoiser{EulerDenoiser: sampler.NewEuler(nil, schedule.FamilySD1), closed: &closed}, nil
	})
	m := newTestManager(t, ManagerConfig{Backend: backend}, "a")

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = m.EnsureInstance(testCtx(t), "a")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("ensure %d: %v", i, err)
		}
	}
	if n := loads.Load(); n != 1 {
		t.Fatalf("backend loads = %d, want 1", n)
	}
	if n := closed.Load(); n != 0 {
		t.Fatalf("denoisers closed = %d, want 0", n)
	}
	if st := m.Status(); st.LoadsTotal != 1 || len(st.Instances) != 1 {
		t.Fatalf("unexpected status %+v", st)
	}

	if err := m.Unload("a"); err != nil {
		t.Fatalf("unload: %v", err)
	}
	if n := closed.Load(); n != 1 {
		t.Fatalf("denoisers closed after unload = %d, want 1", n)
	}
}

func TestConcurrentEnsureSharesLoadFailure(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	backend := BackendFunc(func(ctx context.Context, _ types.Model, _ *AuxCache) (sampler.Denoiser, error) {
		loads.Add(1)
		<-release
		return nil, errors.New("device lost")
	})
	m := newTestManager(t, ManagerConfig{Backend: backend}, "a")

	first := make(chan error, 1)
	go func() { first <- m.EnsureInstance(testCtx(t), "a") }()
	// wait until the first caller owns the load
	for loads.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	second := make(chan error, 1)
	go func() { second <- m.EnsureInstance(testCtx(t), "a") }()
	time.Sleep(20 * time.Millisecond)
	close(release)

	for _, ch := range []chan error{first, second} {
		if err := <-ch; !IsDependencyUnavailable(err) {
			t.Fatalf("expected dependency unavailable, got %v", err)
		}
	}
	if n := loads.Load(); n != 1 {
		t.Fatalf("backend loads = %d, want 1", n)
	}
}

func TestEnsureWaiterHonoursContext(t *testing.T) {
	release := make(chan struct{})
	var loads atomic.Int32
	backend := BackendFunc(func(ctx context.Context, _ types.Model, _ *AuxCache) (sampler.Denoiser, error) {
		loads.Add(1)
		<-release
		return sampler.NewEuler(nil, schedule.FamilySD1), nil
	})
	m := newTestManager(t, ManagerConfig{Backend: backend}, "a")
	defer close(release)

	go func() { _ = m.EnsureInstance(context.Background(), "a") }()
	for loads.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.EnsureInstance(ctx, "a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
