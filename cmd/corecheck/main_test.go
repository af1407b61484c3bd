package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const memoryBackends = `
logging:
  level: error
snapshot:
  driver: memory
catalog:
  driver: memory
`

func TestCLIValidConfigPasses(t *testing.T) {
	path := writeConfig(t, memoryBackends)
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-config", path}, &stdout, &stderr); code != 0 {
		t.Fatalf("cli = %d, stderr: %s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.Contains(out, "types:      6") {
		t.Fatalf("report missing type count: %s", out)
	}
	if !strings.Contains(out, "validation: ok") {
		t.Fatalf("report missing validation line: %s", out)
	}
}

func TestCLIVerboseListsPlugins(t *testing.T) {
	path := writeConfig(t, memoryBackends)
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-config", path, "-v"}, &stdout, &stderr); code != 0 {
		t.Fatalf("cli = %d, stderr: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), "plugin:     stone 1.0.0") {
		t.Fatalf("verbose report missing plugin line: %s", stdout.String())
	}
}

func TestCLIBadConfigRejected(t *testing.T) {
	path := writeConfig(t, "logging:\n  level: shouting\n")
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-config", path}, &stdout, &stderr); code != 2 {
		t.Fatalf("cli = %d, want 2", code)
	}
	if !strings.Contains(stderr.String(), "config") {
		t.Fatalf("stderr should mention config: %s", stderr.String())
	}
}

func TestCLIBadFlagRejected(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := cli([]string{"-no-such-flag"}, &stdout, &stderr); code != 2 {
		t.Fatalf("cli = %d, want 2", code)
	}
}
