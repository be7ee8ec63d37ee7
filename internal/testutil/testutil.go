package testutil

import (
	"archive/zip"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aezizhu/tinyweb/internal/config"
)

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

// AssertError fails the test if err is nil
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// AssertEqual fails the test if got != want
func AssertEqual(t *testing.T, got, want interface{}) {
	t.Helper()
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

// AssertContains fails the test if haystack doesn't contain needle
func AssertContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q to contain %q", haystack, needle)
	}
}

// AssertNotContains fails the test if haystack contains needle
func AssertNotContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if strings.Contains(haystack, needle) {
		t.Fatalf("expected %q to not contain %q", haystack, needle)
	}
}

// AssertTrue fails the test if condition is false
func AssertTrue(t *testing.T, condition bool) {
	t.Helper()
	if !condition {
		t.Fatal("expected true, got false")
	}
}

// AssertFalse fails the test if condition is true
func AssertFalse(t *testing.T, condition bool) {
	t.Helper()
	if condition {
		t.Fatal("expected false, got true")
	}
}

// TempConfig creates a temporary config file with the given config and returns its path
func TempConfig(t *testing.T, cfg config.Config) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.json")
	data, err := json.Marshal(cfg)
	AssertNoError(t, err)
	AssertNoError(t, os.WriteFile(configPath, data, 0644))
	return configPath
}

// DefaultTestConfig returns a config serving the given roots on an ephemeral port
func DefaultTestConfig(roots ...string) config.Config {
	cfg := config.Default()
	cfg.Port = 0
	cfg.Roots = roots
	cfg.AppName = "Test Dashboard"
	return cfg
}

// WriteTree creates files under dir; keys are slash-separated relative paths
func WriteTree(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		AssertNoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		AssertNoError(t, os.WriteFile(p, []byte(content), 0644))
	}
	return dir
}

// TempRoot creates a fresh directory root holding files
func TempRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	return WriteTree(t, t.TempDir(), files)
}

// WriteZip creates a zip archive at path holding files
func WriteZip(t *testing.T, path string, files map[string]string) string {
	t.Helper()
	f, err := os.Create(path)
	AssertNoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range files {
		w, err := zw.Create(name)
		AssertNoError(t, err)
		_, err = io.WriteString(w, content)
		AssertNoError(t, err)
	}
	AssertNoError(t, zw.Close())
	return path
}

// TempFile creates a temporary file with the given content
func TempFile(t *testing.T, content string) string {
	t.Helper()

	tmpFile, err := os.CreateTemp(t.TempDir(), "test-*")
	AssertNoError(t, err)
	defer tmpFile.Close()

	_, err = tmpFile.WriteString(content)
	AssertNoError(t, err)

	return tmpFile.Name()
}

// FileExists checks if a file exists
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// ReadAllString reads r to the end
func ReadAllString(t *testing.T, r io.Reader) string {
	t.Helper()
	data, err := io.ReadAll(r)
	AssertNoError(t, err)
	return string(data)
}

// StripAnsi removes ANSI color codes from a string
func StripAnsi(s string) string {
	return strings.NewReplacer("\033[0m", "", "\033[31m", "", "\033[32m", "", "\033[33m", "", "\033[34m", "", "\033[1m", "").Replace(s)
}
