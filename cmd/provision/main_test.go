package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/provision/internal/platform"
	"github.com/ZebulonRouseFrantzich/provision/internal/provision"
	"github.com/ZebulonRouseFrantzich/provision/internal/testutil"
)

const linuxAsset = "clice-linux-x86_64.tar.gz"

// runCLI executes the command tree on a linux/x64 host with the settings file
// at cfg.
func runCLI(t *testing.T, cfg string, args ...string) (string, string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	a.detector = platform.StaticDetector{Info: platform.Info{OS: platform.OSLinux, Arch: "x64", ArchRaw: "amd64"}}

	root := newRootCmd(a)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func catalogWithServer(t *testing.T) *testutil.CatalogServer {
	t.Helper()

	srv := testutil.NewCatalogServer(t)
	srv.Stable = &testutil.Release{Tag: "v0.2.0", Assets: []string{linuxAsset, "clice-macos-arm64.tar.gz"}}
	srv.Files[linuxAsset] = testutil.TarGz(t,
		testutil.Entry{Name: "bin/clice", Body: "#!/bin/sh\n", Mode: 0644},
		testutil.Entry{Name: "lib/clang/include/stddef.h", Body: "/* */"},
	)
	return srv
}

func TestEnsureCommand(t *testing.T) {
	env := testutil.IsolateEnv(t)
	srv := catalogWithServer(t)
	root, cfg := env.StorageRoot, env.ConfigPath

	stdout, stderr, err := runCLI(t, cfg, "ensure", "--api-url", srv.URL, "--storage-root", root)
	if err != nil {
		t.Fatalf("ensure failed: %v\nstderr: %s", err, stderr)
	}

	want := filepath.Join(root, "bin", "clice")
	if strings.TrimSpace(stdout) != want {
		t.Errorf("stdout = %q, want %q", stdout, want)
	}
	if !strings.Contains(stderr, "==> Download:") {
		t.Errorf("progress not reported on stderr: %s", stderr)
	}
	if _, err := os.Stat(want); err != nil {
		t.Errorf("executable not installed: %v", err)
	}

	// Second run is served from the install without catalog traffic.
	before := srv.TotalRequests()
	stdout, _, err = runCLI(t, cfg, "ensure", "-q", "--json", "--api-url", srv.URL, "--storage-root", root)
	if err != nil {
		t.Fatalf("second ensure failed: %v", err)
	}
	if srv.TotalRequests() != before {
		t.Errorf("cache hit made %d requests", srv.TotalRequests()-before)
	}

	var res struct {
		Path   string `json:"path"`
		Cached bool   `json:"cached"`
	}
	if err := json.Unmarshal([]byte(stdout), &res); err != nil {
		t.Fatalf("--json output is not JSON: %v\n%s", err, stdout)
	}
	if !res.Cached || res.Path != want {
		t.Errorf("result = %+v, want cached %s", res, want)
	}
}

func TestEnsureCommandFailure(t *testing.T) {
	env := testutil.IsolateEnv(t)
	srv := testutil.NewCatalogServer(t)
	srv.Stable = &testutil.Release{Tag: "v0.2.0", Assets: []string{"clice-windows-x64.zip"}}
	t.Setenv("PROVISION_STORAGE_ROOT", env.StorageRoot)
	t.Setenv("PROVISION_API_URL", srv.URL)

	_, _, err := runCLI(t, env.ConfigPath, "ensure", "-q")

	var f *provision.Failure
	if !errors.As(err, &f) {
		t.Fatalf("expected *provision.Failure, got %v", err)
	}
	if f.Kind != provision.KindAssetNotFound {
		t.Errorf("Kind = %v, want AssetNotFound", f.Kind)
	}
	if msg := errorMessage(err); !strings.Contains(msg, "AssetNotFound") || !strings.Contains(msg, f.RunID) {
		t.Errorf("errorMessage() = %q", msg)
	}
}

func TestSettingsLayering(t *testing.T) {
	env := testutil.IsolateEnv(t)
	srv := catalogWithServer(t)
	cfg := env.ConfigPath
	dir := t.TempDir()

	luaRoot := filepath.Join(dir, "from-lua")
	envRoot := filepath.Join(dir, "from-env")
	flagRoot := filepath.Join(dir, "from-flag")

	env.WriteConfig(t, `provision = { storage_root = "`+filepath.ToSlash(luaRoot)+`", api_url = "`+srv.URL+`" }`)

	stdout, _, err := runCLI(t, cfg, "path")
	if err != nil {
		t.Fatalf("path failed: %v", err)
	}
	if got := strings.TrimSpace(stdout); got != filepath.Join(luaRoot, "bin", "clice") {
		t.Errorf("settings file root not used: %s", got)
	}

	t.Setenv("PROVISION_STORAGE_ROOT", envRoot)
	stdout, _, err = runCLI(t, cfg, "path")
	if err != nil {
		t.Fatalf("path failed: %v", err)
	}
	if got := strings.TrimSpace(stdout); got != filepath.Join(envRoot, "bin", "clice") {
		t.Errorf("environment should override the settings file: %s", got)
	}

	stdout, _, err = runCLI(t, cfg, "path", "--storage-root", flagRoot)
	if err != nil {
		t.Fatalf("path failed: %v", err)
	}
	if got := strings.TrimSpace(stdout); got != filepath.Join(flagRoot, "bin", "clice") {
		t.Errorf("flag should override the environment: %s", got)
	}
}

func TestPathCommand(t *testing.T) {
	env := testutil.IsolateEnv(t)
	root, cfg := env.StorageRoot, env.ConfigPath

	stdout, _, err := runCLI(t, cfg, "path", "--storage-root", root, "--os", "windows")
	if err != nil {
		t.Fatalf("path failed: %v", err)
	}
	if got := strings.TrimSpace(stdout); got != filepath.Join(root, "bin", "clice.exe") {
		t.Errorf("path = %q, want the windows executable", got)
	}

	_, _, err = runCLI(t, cfg, "path", "--storage-root", root, "--installed")
	if err == nil || !strings.Contains(err.Error(), "not installed") {
		t.Errorf("--installed on empty root: err = %v", err)
	}

	_, _, err = runCLI(t, cfg, "path", "--storage-root", root, "--os", "plan9")
	if err == nil {
		t.Error("expected error for unsupported os override")
	}
}

func TestExecutableOverride(t *testing.T) {
	env := testutil.IsolateEnv(t)
	env.WriteConfig(t, `provision = { executable = "/usr/bin/clice" }`)

	stdout, _, err := runCLI(t, env.ConfigPath, "ensure", "-q")
	if err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if strings.TrimSpace(stdout) != "/usr/bin/clice" {
		t.Errorf("stdout = %q", stdout)
	}
}

func TestCheckCommand(t *testing.T) {
	env := testutil.IsolateEnv(t)
	srv := catalogWithServer(t)
	root, cfg := env.StorageRoot, env.ConfigPath

	stdout, _, err := runCLI(t, cfg, "check", "--api-url", srv.URL, "--storage-root", root)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !strings.Contains(stdout, "installed: none") || !strings.Contains(stdout, "latest:    v0.2.0") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
	if !strings.Contains(stdout, "update available") {
		t.Errorf("expected update available:\n%s", stdout)
	}

	if _, _, err := runCLI(t, cfg, "ensure", "-q", "--api-url", srv.URL, "--storage-root", root); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}

	stdout, _, err = runCLI(t, cfg, "check", "--api-url", srv.URL, "--storage-root", root)
	if err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if !strings.Contains(stdout, "installed: v0.2.0") || !strings.Contains(stdout, "up to date") {
		t.Errorf("unexpected output:\n%s", stdout)
	}
}

func TestConfigInitAndShow(t *testing.T) {
	env := testutil.IsolateEnv(t)
	cfg := env.ConfigPath

	stdout, _, err := runCLI(t, cfg, "config", "init", "--repo", "acme/lsp", "--verify-checksums")
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(stdout, cfg) {
		t.Errorf("stdout = %q", stdout)
	}

	data, err := os.ReadFile(cfg)
	if err != nil {
		t.Fatalf("settings file not written: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, `repo = "acme/lsp"`) || !strings.Contains(content, "checksums = true") {
		t.Errorf("generated file missing values:\n%s", content)
	}
	if !strings.Contains(content, `-- tool = "clice"`) {
		t.Errorf("defaults should be commented:\n%s", content)
	}

	if _, _, err := runCLI(t, cfg, "config", "init"); err == nil {
		t.Error("expected refusal to overwrite")
	}

	t.Setenv("GITHUB_TOKEN", "ghp_secret")
	stdout, _, err = runCLI(t, cfg, "config", "show")
	if err != nil {
		t.Fatalf("config show failed: %v", err)
	}
	var shown map[string]interface{}
	if err := json.Unmarshal([]byte(stdout), &shown); err != nil {
		t.Fatalf("config show is not JSON: %v\n%s", err, stdout)
	}
	if shown["repo"] != "acme/lsp" {
		t.Errorf("repo = %v, want value from generated file", shown["repo"])
	}
	if shown["token"] != "[REDACTED]" {
		t.Errorf("token = %v, want redacted", shown["token"])
	}
	if shown["timeout"] != "5m0s" {
		t.Errorf("timeout = %v, want 5m0s", shown["timeout"])
	}
}

func TestSensitiveSettingsWarning(t *testing.T) {
	env := testutil.IsolateEnv(t)
	env.WriteConfig(t, `provision = { token = "ghp_`+strings.Repeat("x", 36)+`" }`)

	_, stderr, err := runCLI(t, env.ConfigPath, "path", "--storage-root", env.StorageRoot)
	if err != nil {
		t.Fatalf("path failed: %v", err)
	}
	if !strings.Contains(stderr, "hardcoded credentials") {
		t.Errorf("expected credential warning, got: %s", stderr)
	}
}

func TestInvalidSettingsFile(t *testing.T) {
	env := testutil.IsolateEnv(t)
	env.WriteConfig(t, `provision = { redirect_budget = 99 }`)

	_, _, err := runCLI(t, env.ConfigPath, "path")
	if err == nil || !strings.Contains(err.Error(), "redirect_budget") {
		t.Errorf("err = %v, want redirect_budget validation error", err)
	}
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := runCLI(t, filepath.Join(t.TempDir(), "provision.lua"), "version", "--short")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if strings.TrimSpace(stdout) != buildVersion {
		t.Errorf("stdout = %q, want %q", stdout, buildVersion)
	}
}
