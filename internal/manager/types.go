package manager

import (
	"time"

	"diffusiond/internal/sampler"
)

// State represents lifecycle state of the manager/instances.
type State string

const (
	StateReady    State = "ready"
	StateLoading  State = "loading"
	StateDraining State = "draining"
	StateError    State = "error"
)

// ModelInfo is a minimal view of the current model.
type ModelInfo struct {
	ID     string
	Name   string
	Path   string
	Family string
}

// Snapshot is a read-only projection of the manager state.
type Snapshot struct {
	State        State
	CurrentModel *ModelInfo
	Err          string
}

// Instance represents a loaded model (one per model id).
type Instance struct {
	ID        string
	Family    string
	State     State
	LastUsed  time.Time
	EstVRAMMB int
	// Queueing primitives
	genCh   chan struct{} // size 1: single in-flight sampling run
	queueCh chan struct{} // buffered: queue slots
	// Denoiser loaded by the backend; nil until ready.
	Denoiser sampler.Denoiser
	// loaded is non-nil while a backend load is in flight and is closed
	// when it settles; loadErr then holds a failed load's error.
	loaded  chan struct{}
	loadErr error
}
