package xdg

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfigFile(t *testing.T) {
	base := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", base)

	got, err := FindConfigFile()
	if err != nil || got != "" {
		t.Fatalf("FindConfigFile() with no file = %q, %v", got, err)
	}

	dir := filepath.Join(base, "testd")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"config.yml", "config.toml"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(""), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	got, err = FindConfigFile()
	if err != nil {
		t.Fatalf("FindConfigFile() error = %v", err)
	}
	if want := filepath.Join(dir, "config.toml"); got != want {
		t.Errorf("FindConfigFile() = %q, want %q", got, want)
	}
}

func TestConfigDir_Fallback(t *testing.T) {
	home := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("HOME", home)

	got, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir() error = %v", err)
	}
	if want := filepath.Join(home, ".config", "testd"); got != want {
		t.Errorf("ConfigDir() = %q, want %q", got, want)
	}
}
