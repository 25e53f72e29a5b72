package sampler

import (
	"errors"
	"fmt"

	"diffusiond/internal/schedule"
	"diffusiond/internal/tiling"
)

// ConfigError reports an invalid configuration value. It is always returned
// before any tensor work starts.
type ConfigError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config: %s: %v", e.Field, e.Err)
	}
	return "config: " + e.Field + ": " + e.Reason
}

func (e *ConfigError) Unwrap() error { return e.Err }

func wrapConfig(field string, err error) error {
	var ce *ConfigError
	if errors.As(err, &ce) {
		return err
	}
	return &ConfigError{Field: field, Reason: err.Error(), Err: err}
}

// IsConfigError reports whether err was caused by bad configuration in any
// of the sampling packages.
func IsConfigError(err error) bool {
	var ce *ConfigError
	var se *schedule.ConfigError
	var te *tiling.ConfigError
	return errors.As(err, &ce) || errors.As(err, &se) || errors.As(err, &te)
}

// Stage names the part of a run that failed.
type Stage string

const (
	StageValidate Stage = "validate"
	StageNoise    Stage = "noise"
	StageSchedule Stage = "schedule"
	StagePlan     Stage = "plan"
	StageDenoise  Stage = "denoise"
	StageStitch   Stage = "stitch"
)

// StageError wraps a failure with the stage and, for tiled runs, the tile
// index. Tile is -1 when the failure is not tied to a tile.
type StageError struct {
	Stage Stage
	Tile  int
	Err   error
}

func (e *StageError) Error() string {
	if e.Tile >= 0 {
		return fmt.Sprintf("%s tile %d: %v", e.Stage, e.Tile, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, tile int, err error) error {
	return &StageError{Stage: stage, Tile: tile, Err: err}
}
