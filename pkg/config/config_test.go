package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

func (s *sample) Validate() error {
	if s.Port <= 0 {
		return errors.New("port must be positive")
	}
	return nil
}

func TestLoadOrDefault_MissingFileKeepsDefaults(t *testing.T) {
	cfg := sample{Name: "default", Port: 8080}
	if err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"), &cfg); err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Name != "default" || cfg.Port != 8080 {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestLoadOrDefault_ValidatesDefaults(t *testing.T) {
	cfg := sample{}
	if err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"), &cfg); err == nil {
		t.Fatal("invalid defaults should fail")
	}
}

func TestLoadOrDefault_OverridesAndExpandsEnv(t *testing.T) {
	t.Setenv("SAMPLE_NAME", "from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("name: ${SAMPLE_NAME}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := sample{Name: "default", Port: 8080}
	if err := LoadOrDefault(path, &cfg); err != nil {
		t.Fatalf("LoadOrDefault: %v", err)
	}
	if cfg.Name != "from-env" {
		t.Errorf("name = %q, want from-env", cfg.Name)
	}
	if cfg.Port != 8080 {
		t.Errorf("port = %d, want default kept", cfg.Port)
	}
}
