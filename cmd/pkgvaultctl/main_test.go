package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/cordum/pkgvault/core/entries"
	"github.com/cordum/pkgvault/core/repoerr"
)

func writeStorages(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	base := filepath.Join(dir, "storage0")
	cfg := `
storages:
  storage0:
    basedir: ` + base + `
    repositories:
      releases:
        layout: Maven 2
        artifact_max_size: 1024
      npm-releases:
        layout: npm
`
	path := filepath.Join(dir, "storages.yaml")
	if err := os.WriteFile(path, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write storages: %v", err)
	}
	return path, base
}

func writeArtifact(t *testing.T, base, rel string) {
	t.Helper()
	p := filepath.Join(base, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o600); err != nil {
		t.Fatalf("write artifact: %v", err)
	}
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestLayouts(t *testing.T) {
	out, err := run(t, "layouts")
	if err != nil {
		t.Fatalf("layouts: %v", err)
	}
	if out != "Maven 2\nnpm\nRaw\n" {
		t.Fatalf("unexpected layouts output %q", out)
	}
}

func TestParse(t *testing.T) {
	out, err := run(t, "parse", "npm", "@types/node/18.0.0/node-18.0.0.tgz")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var view coordinatesView
	if err := json.Unmarshal([]byte(out), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.ID != "node" || view.Version != "18.0.0" {
		t.Fatalf("unexpected coordinates %+v", view)
	}

	if _, err := run(t, "parse", "Maven 3", "x"); !errors.Is(err, repoerr.ErrUnknownLayout) {
		t.Fatalf("expected unknown layout, got %v", err)
	}
	if _, err := run(t, "parse", "Maven 2", "not/a/jar"); !errors.Is(err, repoerr.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestResolveUsesConfigFromEnv(t *testing.T) {
	cfgPath, base := writeStorages(t)
	t.Setenv("PKGVAULT_STORAGE_CONFIG", cfgPath)
	writeArtifact(t, filepath.Join(base, "releases"), "org/foo/bar/1.0/bar-1.0.jar")

	out, err := run(t, "resolve", "storage0", "releases", "org/foo/bar/1.0/bar-1.0.jar")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["exists"] != true {
		t.Fatalf("expected artifact to exist: %v", got)
	}
	want := filepath.Join(base, "releases", "org", "foo", "bar", "1.0", "bar-1.0.jar")
	if got["abs"] != want {
		t.Fatalf("expected abs %s, got %v", want, got["abs"])
	}

	if _, err := run(t, "resolve", "storage0", "releases", "../outside"); !errors.Is(err, repoerr.ErrPathResolution) {
		t.Fatalf("expected path resolution error, got %v", err)
	}
}

func TestDeleteForceGate(t *testing.T) {
	cfgPath, base := writeStorages(t)
	repoDir := filepath.Join(base, "releases")
	writeArtifact(t, repoDir, "org/foo/bar/1.0/bar-1.0.jar")
	writeArtifact(t, repoDir, "org/foo/bar/2.0/bar-2.0.jar")

	_, err := run(t, "--config", cfgPath, "delete", "storage0", "releases", "org/foo/bar")
	if !errors.Is(err, repoerr.ErrForceRequired) {
		t.Fatalf("expected force required, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(repoDir, "org/foo/bar/1.0")); err != nil {
		t.Fatalf("expected versions untouched: %v", err)
	}

	out, err := run(t, "--config", cfgPath, "delete", "--force", "storage0", "releases", "org/foo/bar")
	if err != nil {
		t.Fatalf("forced delete: %v", err)
	}
	if !strings.Contains(out, "deleted storage0/releases/org/foo/bar") {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := os.Stat(filepath.Join(repoDir, "org/foo/bar")); !os.IsNotExist(err) {
		t.Fatalf("expected directory removed, got %v", err)
	}
}

func TestCheckSize(t *testing.T) {
	cfgPath, _ := writeStorages(t)

	out, err := run(t, "--config", cfgPath, "check-size", "storage0", "releases", "1024")
	if err != nil || strings.TrimSpace(out) != "ok" {
		t.Fatalf("expected ok at limit, got %q %v", out, err)
	}
	if _, err := run(t, "--config", cfgPath, "check-size", "storage0", "releases", "1025"); !errors.Is(err, repoerr.ErrArtifactSizeExceeded) {
		t.Fatalf("expected size exceeded, got %v", err)
	}
	if _, err := run(t, "--config", cfgPath, "check-size", "storage0", "releases", "0"); !errors.Is(err, repoerr.ErrEmptyArtifact) {
		t.Fatalf("expected empty artifact, got %v", err)
	}
	if _, err := run(t, "--config", cfgPath, "check-size", "storage0", "missing", "1"); !errors.Is(err, repoerr.ErrRepositoryNotFound) {
		t.Fatalf("expected repository not found, got %v", err)
	}
	if _, err := run(t, "--config", cfgPath, "check-size", "storage0", "releases", "abc"); err == nil {
		t.Fatalf("expected invalid size error")
	}
}

func TestRegisterSQLite(t *testing.T) {
	cfgPath, _ := writeStorages(t)
	dbPath := filepath.Join(t.TempDir(), "entries.db")

	out, err := run(t, "--config", cfgPath, "--entry-store", "sqlite", "--sqlite-path", dbPath,
		"register", "storage0", "npm-releases", "left-pad/left-pad/1.3.0/left-pad-1.3.0.tgz", "512")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	var rec entries.Record
	if err := json.Unmarshal([]byte(out), &rec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rec.UUID == "" || rec.ArtifactPath != "left-pad/left-pad/1.3.0/left-pad-1.3.0.tgz" {
		t.Fatalf("unexpected record %+v", rec)
	}

	// the same path cannot be registered twice in one repository
	_, err = run(t, "--config", cfgPath, "--entry-store", "sqlite", "--sqlite-path", dbPath,
		"register", "storage0", "npm-releases", "left-pad/left-pad/1.3.0/left-pad-1.3.0.tgz", "512")
	if !errors.Is(err, entries.ErrExists) {
		t.Fatalf("expected duplicate path rejection, got %v", err)
	}
}

func TestRegisterRejectsOversize(t *testing.T) {
	cfgPath, _ := writeStorages(t)
	_, err := run(t, "--config", cfgPath, "register", "storage0", "releases", "org/foo/bar/1.0/bar-1.0.jar", "4096")
	if !errors.Is(err, repoerr.ErrArtifactSizeExceeded) {
		t.Fatalf("expected size exceeded, got %v", err)
	}
	_, err = run(t, "--config", cfgPath, "register", "storage0", "releases", "@types/node/18.0.0/node-18.0.0.tgz", "1")
	if !errors.Is(err, repoerr.ErrParse) {
		t.Fatalf("expected parse error for foreign layout path, got %v", err)
	}
}

func TestPolicyOverridesApplyOnLoad(t *testing.T) {
	srv := miniredis.RunT(t)
	url := "redis://" + srv.Addr()
	cfgPath, _ := writeStorages(t)

	if _, err := run(t, "--redis", url, "policy", "set", "repository", "storage0/releases", "--max-size", "4096"); err != nil {
		t.Fatalf("policy set: %v", err)
	}
	if _, err := run(t, "--config", cfgPath, "--redis", url, "check-size", "storage0", "releases", "2048"); err != nil {
		t.Fatalf("expected override to raise limit: %v", err)
	}

	out, err := run(t, "--redis", url, "policy", "list")
	if err != nil {
		t.Fatalf("policy list: %v", err)
	}
	if !strings.Contains(out, `"artifact_max_size": 4096`) {
		t.Fatalf("unexpected policy list %s", out)
	}

	if _, err := run(t, "--redis", url, "policy", "delete", "repository", "storage0/releases"); err != nil {
		t.Fatalf("policy delete: %v", err)
	}
	if _, err := run(t, "--config", cfgPath, "--redis", url, "check-size", "storage0", "releases", "2048"); !errors.Is(err, repoerr.ErrArtifactSizeExceeded) {
		t.Fatalf("expected file limit after delete, got %v", err)
	}
}

func TestPolicyRequiresRedis(t *testing.T) {
	t.Setenv("PKGVAULT_REDIS_URL", "")
	if _, err := run(t, "policy", "list"); err == nil {
		t.Fatalf("expected error without redis url")
	}
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "version=") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestMetricsFlagDumpsText(t *testing.T) {
	cfgPath, _ := writeStorages(t)
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"--config", cfgPath, "--metrics", "check-size", "storage0", "releases", "9999"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected size rejection")
	}
	// post-run hooks are skipped on error, so run a passing command too
	root = newRootCmd()
	errOut.Reset()
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs([]string{"--config", cfgPath, "--metrics", "check-size", "storage0", "releases", "1"})
	if err := root.Execute(); err != nil {
		t.Fatalf("check-size: %v", err)
	}
	if !strings.Contains(errOut.String(), `pkgvault_validation_rejected_total{kind="ArtifactSizeExceededError",layout="Maven 2"}`) {
		t.Fatalf("expected validation metric in dump, got %s", errOut.String())
	}
}
