package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func touch(t *testing.T, p string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
}

func TestScanFiltersCheckpoints(t *testing.T) {
	dir := t.TempDir()
	for _, f := range []string{
		"v1-5-pruned.safetensors",
		"sd_xl_base_1.0.SAFETENSORS", // case-insensitive
		"svd_xt.sft",
		"old.ckpt",
		"notes.txt",
		"llama.gguf",
		"nested/inner.safetensors",
	} {
		touch(t, filepath.Join(dir, f))
	}
	models, err := NewScanner().Scan(dir)
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	want := map[string][2]string{
		"old":            {"ckpt", "sd1"},
		"sd_xl_base_1.0": {"safetensors", "sdxl"},
		"svd_xt":         {"sft", "svd"},
		"v1-5-pruned":    {"safetensors", "sd1"},
	}
	if len(models) != len(want) {
		t.Fatalf("expected %d models, got %+v", len(want), models)
	}
	for _, m := range models {
		w, ok := want[m.ID]
		if !ok {
			t.Fatalf("unexpected model %+v", m)
		}
		if m.Format != w[0] || m.Family != w[1] {
			t.Fatalf("%s: format/family = %s/%s, want %s/%s", m.ID, m.Format, m.Family, w[0], w[1])
		}
		if !filepath.IsAbs(m.Path) {
			t.Fatalf("path not absolute: %s", m.Path)
		}
	}
	if models[0].ID != "old" {
		t.Fatalf("models should be sorted by id: %+v", models)
	}
}

func TestScanRecursive(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.safetensors"))
	touch(t, filepath.Join(dir, "xl", "juggernaut_xl.safetensors"))
	models, err := (&Scanner{Recursive: true}).Scan(dir)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(models) != 2 || models[1].ID != "xl/juggernaut_xl" || models[1].Family != "sdxl" {
		t.Fatalf("unexpected: %+v", models)
	}
}

func TestScanDuplicateID(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "m.safetensors"))
	touch(t, filepath.Join(dir, "m.ckpt"))
	if _, err := LoadDir(dir); err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestScanExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	touch(t, filepath.Join(home, "models", "x.safetensors"))
	models, err := LoadDir("~/models")
	if err != nil {
		t.Fatalf("scan error: %v", err)
	}
	if len(models) != 1 || models[0].ID != "x" {
		t.Fatalf("unexpected models: %+v", models)
	}
}

func TestScanMissingDir(t *testing.T) {
	if _, err := LoadDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Fatalf("expected error for missing dir")
	}
}
