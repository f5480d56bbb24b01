package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
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

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "c.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("CFG_NAME", "scribe")
	s := sample{Port: 1}
	if err := Load(write(t, "name: ${CFG_NAME}\n"), &s); err != nil {
		t.Fatal(err)
	}
	if s.Name != "scribe" || s.Port != 1 {
		t.Errorf("got %+v", s)
	}
}

func TestLoadValidates(t *testing.T) {
	var s sample
	err := Load(write(t, "name: x\n"), &s)
	if err == nil || !strings.Contains(err.Error(), "port must be positive") {
		t.Errorf("err = %v", err)
	}
}

func TestLoadOptionalMissingFile(t *testing.T) {
	s := sample{Port: 8}
	if err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &s); err != nil {
		t.Fatalf("missing file: %v", err)
	}
	var bad sample
	if err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"), &bad); err == nil {
		t.Error("defaults should still be validated")
	}
}
