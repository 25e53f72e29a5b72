package manager

import (
	"context"
	"testing"
	"time"
)

// Covers the ctx.Done branch when attempting to reserve a queue slot.
func TestBeginGeneration_CancelBeforeQueue(t *testing.T) {
	m := newTestManager(t, ManagerConfig{MaxWait: 200 * time.Millisecond}, "m")
	if err := m.EnsureInstance(context.Background(), "m"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.beginGeneration(ctx, "m"); err == nil {
		t.Fatalf("expected error on canceled context")
	}
}

// Covers the ctx.Done branch while waiting for genCh after queue slot reserved.
func TestBeginGeneration_CancelWhileWaitingForGen(t *testing.T) {
	m := newTestManager(t, ManagerConfig{MaxQueueDepth: 1, MaxWait: 500 * time.Millisecond}, "m")
	if err := m.EnsureInstance(context.Background(), "m"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	m.mu.RLock()
	inst := m.instances["m"]
	m.mu.RUnlock()
	inst.genCh <- struct{}{}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	if _, err := m.beginGeneration(ctx, "m"); err == nil {
		t.Fatalf("expected error due to canceled context while waiting for gen slot")
	}
	<-inst.genCh
	if len(inst.queueCh) != 0 {
		t.Fatalf("queue slot leaked")
	}
}

func TestBeginGeneration_TooBusy(t *testing.T) {
	m := newTestManager(t, ManagerConfig{MaxQueueDepth: 1, MaxWait: 30 * time.Millisecond}, "m")
	if err := m.EnsureInstance(context.Background(), "m"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	release, err := m.beginGeneration(context.Background(), "m")
	if err != nil {
		t.Fatalf("first admission: %v", err)
	}
	defer release()
	if _, err := m.beginGeneration(context.Background(), "m"); !IsTooBusy(err) {
		t.Fatalf("expected too busy, got %v", err)
	}
}

func TestBeginGeneration_DrainingRejects(t *testing.T) {
	m := newTestManager(t, ManagerConfig{}, "m")
	if err := m.EnsureInstance(context.Background(), "m"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	m.mu.Lock()
	m.instances["m"].State = StateDraining
	m.mu.Unlock()
	if _, err := m.beginGeneration(context.Background(), "m"); !IsTooBusy(err) {
		t.Fatalf("expected too busy while draining, got %v", err)
	}
	if _, err := m.beginGeneration(context.Background(), "other"); !IsModelNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}
