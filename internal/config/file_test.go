package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graphctl.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, `
[pipeline]
months_back = 3
max_nodes = 50
hidden_ids = ["0.0.1", "0.0.2"]

[backend]
url = "http://localhost:3000"
timeout = "45s"
poll_interval = "1s"

[output]
dir = "out"
`)

	f, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if f.Backend.URL != "http://localhost:3000" {
		t.Errorf("Unexpected backend url: %q", f.Backend.URL)
	}
	if f.Backend.Timeout.Duration != 45*time.Second || f.Backend.PollInterval.Duration != time.Second {
		t.Errorf("Unexpected durations: %+v", f.Backend)
	}
	if f.Output.Dir != "out" {
		t.Errorf("Unexpected output dir: %q", f.Output.Dir)
	}

	cfg := f.Apply(Default())
	if cfg.MonthsBack != 3 || cfg.MaxNodes != 50 {
		t.Errorf("Overrides not applied: %+v", cfg)
	}
	if cfg.MinBalanceFraction != Default().MinBalanceFraction {
		t.Errorf("Unset key changed: %v", cfg.MinBalanceFraction)
	}
	if len(cfg.HiddenIDs) != 2 {
		t.Errorf("Expected 2 hidden ids, got %v", cfg.HiddenIDs)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	f, err := LoadFile(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if cfg := f.Apply(Default()); cfg.MaxNodes != Default().MaxNodes {
		t.Errorf("Empty file changed config: %+v", cfg)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(writeFile(t, "[pipeline]\nmax_nodes = \"many\"\n")); err == nil {
		t.Error("Expected type error")
	}
	if _, err := LoadFile(writeFile(t, "[backend]\ntimeout = \"soon\"\n")); err == nil {
		t.Error("Expected duration error")
	}
	_, err := LoadFile(writeFile(t, "[pipeline]\nmax_node = 5\n"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Expected ErrInvalidConfig for unknown key, got %v", err)
	}
}
