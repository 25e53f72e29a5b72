package manager

import (
	"os"

	"diffusiond/pkg/types"
)

// Helper: find model in registry by id.
func (m *Manager) getModelByID(id string) (types.Model, bool) {
	for _, mdl := range m.registry {
		if mdl.ID == id {
			return mdl, true
		}
	}
	return types.Model{}, false
}

// resolveModelID falls back to the default model when id is empty.
func (m *Manager) resolveModelID(id string) (string, error) {
	if id != "" {
		return id, nil
	}
	if m.defaultModel == "" {
		return "", modelNotFoundError{id: "(unspecified)"}
	}
	return m.defaultModel, nil
}

// Helper: estimate VRAM based on checkpoint size (MB). Weights are loaded
// as-is, so the file size is a fair lower bound.
func (m *Manager) estimateVRAMMB(mdl types.Model) int {
	fi, err := os.Stat(mdl.Path)
	if err != nil {
		// If we cannot stat the file, return a conservative minimum of 1MB
		// to avoid bypassing budget checks due to an unknown size.
		return 1
	}
	mb := int(fi.Size() / (1024 * 1024))
	if mb <= 0 {
		mb = 1
	}
	return mb
}
