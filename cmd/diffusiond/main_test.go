package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"diffusiond/internal/latent"
)

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a,,c", []string{"a", "c"}},
		{"", nil},
	}
	for _, c := range cases {
		got := splitCSV(c.in)
		if len(got) != len(c.want) {
			t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%q -> %v, want %v", c.in, got, c.want)
			}
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger("warn", "json", &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	l.Info().Msg("hidden")
	l.Warn().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"message":"shown"`) {
		t.Fatalf("unexpected output: %q", buf.String())
	}
	if _, err := newLogger("loud", "json", &buf); err == nil {
		t.Fatalf("expected error for bad level")
	}
	if _, err := newLogger("info", "xml", &buf); err == nil {
		t.Fatalf("expected error for bad format")
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("DIFFUSIOND_TEST_INT", "12")
	t.Setenv("DIFFUSIOND_TEST_BOOL", "yes")
	if envInt("DIFFUSIOND_TEST_INT", 3) != 12 || envInt("DIFFUSIOND_TEST_MISSING", 3) != 3 {
		t.Fatalf("envInt")
	}
	if !envBool("DIFFUSIOND_TEST_BOOL", false) || envBool("DIFFUSIOND_TEST_MISSING", false) {
		t.Fatalf("envBool")
	}
	if envStr("DIFFUSIOND_TEST_MISSING", "x") != "x" {
		t.Fatalf("envStr")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestScheduleCommand(t *testing.T) {
	out, err := execute(t, "schedule", "--scheduler", "karras", "--steps", "4", "--family", "sd1")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	fields := strings.Fields(out)
	if len(fields) != 5 || fields[4] != "0" {
		t.Fatalf("unexpected output: %q", out)
	}
	if _, err := execute(t, "schedule", "--scheduler", "cosine", "--steps", "4"); err == nil {
		t.Fatalf("expected error for unknown scheduler")
	}
}

func TestTilesCommand(t *testing.T) {
	out, err := execute(t, "tiles", "--width", "1200", "--height", "800", "--tile-size", "512", "--scale-factor", "8")
	if err != nil {
		t.Fatalf("tiles: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 12 {
		t.Fatalf("expected 12 tiles, got %d: %q", len(lines), out)
	}
	if lines[len(lines)-1] != "86,36,150,100" {
		t.Fatalf("last tile=%q", lines[len(lines)-1])
	}
}

func TestSampleCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	out, err := execute(t, "sample", "--width", "256", "--height", "128", "--steps", "3",
		"--offsets", "0.5,-0.5", "--out", path, "--dtype", "f16", "--log-level", "error")
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if !strings.Contains(out, "shape=(1,4,16,32) tiles=1 steps=3") {
		t.Fatalf("unexpected summary: %q", out)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var enc latent.Encoded
	if err := json.Unmarshal(b, &enc); err != nil {
		t.Fatalf("json: %v", err)
	}
	got, err := latent.Decode(enc)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.At(0, 0, 3, 3) != 0.5 || got.At(0, 1, 3, 3) != -0.5 || got.At(0, 2, 3, 3) != 0 {
		t.Fatalf("identity sampling should keep the offsets")
	}
}
