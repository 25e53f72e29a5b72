// Package manager provides lifecycle, admission and sampling coordination for
// diffusion model instances. It is structured into small files by concern:
//
//   - manager.go: core Manager type, constructor, simple getters.
//   - config.go: ManagerConfig and package defaults; NewWithConfig applies defaults.
//   - types.go: internal state types (State, ModelInfo, Instance, Snapshot).
//   - backend.go: Backend interface and the reference Euler backend.
//   - aux.go: AuxCache, the explicit cache for auxiliary models shared by backends.
//   - errors.go: error types and helpers (IsTooBusy, IsModelNotFound, IsInvalidRequest).
//   - helpers.go: small utilities (model lookup, VRAM estimation).
//   - admission.go: per-instance queueing and single in-flight admission.
//   - ensure.go: EnsureInstance lifecycle and backend loading.
//   - evict.go: eviction logic to fit within the VRAM budget.
//   - sample.go: Sample entry point; streams NDJSON events.
//   - request.go: mapping of wire requests onto sampler configuration.
//   - metrics.go: Prometheus sampling metrics.
//   - status_report.go: Status/Snapshot reporting helpers.
//   - unload.go: graceful drain and removal of an instance.
//
// External packages should treat this package as the orchestration layer and use
// public methods only (e.g., New/NewWithConfig, Ready, ListModels, Status, Sample).
package manager
