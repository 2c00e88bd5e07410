package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sampleConfig struct {
	Addr    string        `split_words:"true" default:":8080"`
	Timeout time.Duration `split_words:"true" default:"3s"`
	Name    string        `split_words:"true" required:"true"`
}

func TestExportEnvironmentKeepsExistingVariables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	content := "CFGTEST_NAME=from-file\nCFGTEST_ADDR=:9090\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	t.Setenv("CFGTEST_ADDR", ":7070")
	if err := exportEnvironment(path); err != nil {
		t.Fatalf("exportEnvironment() error = %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("CFGTEST_NAME") })

	if got := os.Getenv("CFGTEST_NAME"); got != "from-file" {
		t.Fatalf("CFGTEST_NAME = %q, want from-file", got)
	}
	if got := os.Getenv("CFGTEST_ADDR"); got != ":7070" {
		t.Fatalf("CFGTEST_ADDR = %q, want :7070", got)
	}
}

func TestNewAppliesDefaultsAndRequired(t *testing.T) {
	t.Setenv("CFGNEW_NAME", "svc")

	conf, err := New[sampleConfig]("CFGNEW")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if conf.Addr != ":8080" {
		t.Fatalf("Addr = %q, want :8080", conf.Addr)
	}
	if conf.Timeout != 3*time.Second {
		t.Fatalf("Timeout = %v, want 3s", conf.Timeout)
	}
	if conf.Name != "svc" {
		t.Fatalf("Name = %q, want svc", conf.Name)
	}
}

func TestNewFailsWhenRequiredMissing(t *testing.T) {
	if _, err := New[sampleConfig]("CFGMISSING"); err == nil {
		t.Fatal("expected error for missing required field")
	}
}
