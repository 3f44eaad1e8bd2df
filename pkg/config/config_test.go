package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type sample struct {
	Name  string `yaml:"name"`
	Port  int    `yaml:"port"`
	fails bool
}

func (s *sample) Validate() error {
	if s.fails || s.Port < 0 {
		return errors.New("invalid port")
	}
	return nil
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("MAPFORGE_TEST_NAME", "alps")
	p := writeFile(t, "name: ${MAPFORGE_TEST_NAME}\nport: 8080\n")
	var s sample
	if err := Load(p, &s); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Name != "alps" || s.Port != 8080 {
		t.Errorf("got %+v", s)
	}
}

func TestExpandEnvBracedOnly(t *testing.T) {
	t.Setenv("MAPFORGE_TEST_NAME", "alps")
	t.Setenv("HOME", "/home/cartographer")
	in := `${MAPFORGE_TEST_NAME} $HOME $1 ${MAPFORGE_TEST_UNSET}x $ {HOME}`
	want := `alps $HOME $1 x $ {HOME}`
	if got := ExpandEnv(in); got != want {
		t.Errorf("ExpandEnv(%q) = %q, want %q", in, got, want)
	}
}

func TestLoadRunsValidator(t *testing.T) {
	p := writeFile(t, "port: -1\n")
	var s sample
	if err := Load(p, &s); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadOptionalMissing(t *testing.T) {
	s := sample{Name: "default"}
	if err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), true, &s); err != nil {
		t.Fatalf("LoadOptional: %v", err)
	}
	if s.Name != "default" {
		t.Errorf("defaults overwritten: %+v", s)
	}
	if err := LoadOptional(filepath.Join(t.TempDir(), "nope.yaml"), false, &s); err == nil {
		t.Error("expected error when file is required")
	}
}
