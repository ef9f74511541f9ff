// Package testutil provides fixtures for exercising the provisioning
// pipeline without touching the network or the user's real storage root.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// Env is a per-test settings environment.
type Env struct {
	// StorageRoot does not exist yet; the code under test creates it.
	StorageRoot string
	// ConfigPath is where WriteConfig puts provision.lua.
	ConfigPath string
}

// IsolateEnv blanks every PROVISION_* variable and GITHUB_TOKEN for the rest
// of the test and returns fresh paths under t.TempDir.
func IsolateEnv(t *testing.T) Env {
	t.Helper()

	for _, kv := range os.Environ() {
		name, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(name, "PROVISION_") {
			t.Setenv(name, "")
		}
	}
	t.Setenv("GITHUB_TOKEN", "")

	dir := t.TempDir()
	return Env{
		StorageRoot: filepath.Join(dir, "storage"),
		ConfigPath:  filepath.Join(dir, "config", "provision.lua"),
	}
}

// WriteConfig writes content to e.ConfigPath.
func (e Env) WriteConfig(t *testing.T, content string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(e.ConfigPath), 0o755); err != nil {
		t.Fatalf("failed to create config directory: %v", err)
	}
	if err := os.WriteFile(e.ConfigPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", e.ConfigPath, err)
	}
}
