// Package registry discovers diffusion checkpoints on disk.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"diffusiond/pkg/types"
)

// Extensions recognised as checkpoints.
var Extensions = []string{".safetensors", ".ckpt", ".sft"}

// Scanner finds checkpoints in a directory.
type Scanner struct {
	// Recursive descends into subdirectories; IDs then carry the relative
	// directory, e.g. "xl/juggernaut".
	Recursive bool
}

func NewScanner() *Scanner { return &Scanner{} }

// LoadDir scans dir non-recursively.
func LoadDir(dir string) ([]types.Model, error) {
	return NewScanner().Scan(dir)
}

// Scan builds registry entries for every checkpoint under dir. The ID is the
// path relative to dir without extension; the family is inferred from the
// file name.
func (s *Scanner) Scan(dir string) ([]types.Model, error) {
	base, err := expandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	fi, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("read dir: %s is not a directory", abs)
	}
	var models []types.Model
	seen := map[string]string{}
	err = filepath.WalkDir(abs, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != abs && !s.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		ext, ok := checkpointExt(d.Name())
		if !ok {
			return nil
		}
		rel, err := filepath.Rel(abs, p)
		if err != nil {
			return err
		}
		id := filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))
		if prev, dup := seen[id]; dup {
			return fmt.Errorf("duplicate model id %q: %s and %s", id, prev, p)
		}
		seen[id] = p
		models = append(models, types.Model{
			ID:     id,
			Name:   strings.TrimSuffix(d.Name(), filepath.Ext(d.Name())),
			Path:   p,
			Format: strings.TrimPrefix(ext, "."),
			Family: InferFamily(d.Name()),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(models, func(i, j int) bool { return models[i].ID < models[j].ID })
	return models, nil
}

func checkpointExt(name string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range Extensions {
		if ext == e {
			return e, true
		}
	}
	return "", false
}

// InferFamily guesses the model family from a checkpoint file name.
func InferFamily(name string) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "svd") || strings.Contains(n, "stable_video") || strings.Contains(n, "stable-video"):
		return "svd"
	case strings.Contains(n, "sdxl") || strings.Contains(n, "sd_xl") || strings.Contains(n, "sd-xl") ||
		strings.Contains(n, "_xl") || strings.Contains(n, "-xl") || strings.Contains(n, "pony"):
		return "sdxl"
	default:
		return "sd1"
	}
}

// expandHome expands a leading '~' to the user's home directory.
func expandHome(path string) (string, error) {
	if path == "" || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	if path == "~" {
		return home, nil
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/")), nil
}
