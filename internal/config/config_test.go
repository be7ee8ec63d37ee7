package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Listen != "127.0.0.1" {
		t.Errorf("expected listen '127.0.0.1', got %q", cfg.Listen)
	}
	if cfg.Port != 2468 {
		t.Errorf("expected port 2468, got %d", cfg.Port)
	}
	if cfg.AllowRemote {
		t.Error("expected AllowRemote to be false by default")
	}
	if cfg.HandlerSuffix != ".class" {
		t.Errorf("expected handler suffix '.class', got %q", cfg.HandlerSuffix)
	}
	if cfg.MaxLoopbackDepth != 8 {
		t.Errorf("expected loopback depth 8, got %d", cfg.MaxLoopbackDepth)
	}
	if len(cfg.IndexFiles) == 0 {
		t.Error("expected non-empty index files")
	}
}

func TestLoadWithEnvVars(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TINYWEB_PORT", "9090")
	t.Setenv("TINYWEB_LISTEN", "0.0.0.0")
	t.Setenv("TINYWEB_ROOTS", strings.Join([]string{dir, "/tmp/other"}, string(os.PathListSeparator)))
	t.Setenv("TINYWEB_ALLOW_REMOTE", "true")
	t.Setenv("TINYWEB_DATA_FILE", "/tmp/data.json")
	t.Setenv("TINYWEB_WATCH_ROOTS", "1")

	cfg, err := Load(writeConfig(t, map[string]interface{}{"port": 1234}))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("expected env port 9090 to win, got %d", cfg.Port)
	}
	if cfg.Listen != "0.0.0.0" {
		t.Errorf("expected listen '0.0.0.0', got %q", cfg.Listen)
	}
	if len(cfg.Roots) != 2 || cfg.Roots[0] != dir {
		t.Errorf("unexpected roots %v", cfg.Roots)
	}
	if !cfg.AllowRemote {
		t.Error("expected AllowRemote from env")
	}
	if cfg.DataFile != "/tmp/data.json" {
		t.Errorf("expected data file '/tmp/data.json', got %q", cfg.DataFile)
	}
	if !cfg.WatchRoots {
		t.Error("expected WatchRoots from env")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"port":       3000,
		"roots":      []string{"/srv/help"},
		"app_name":   "Test App",
		"mime_types": map[string]string{"foo": "application/x-foo"},
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 3000 {
		t.Errorf("expected port 3000, got %d", cfg.Port)
	}
	if cfg.AppName != "Test App" {
		t.Errorf("expected app name 'Test App', got %q", cfg.AppName)
	}
	if cfg.MimeTypes["foo"] != "application/x-foo" {
		t.Errorf("expected mime override, got %v", cfg.MimeTypes)
	}
	// untouched fields keep their defaults
	if cfg.HandlerSuffix != ".class" {
		t.Errorf("expected default handler suffix, got %q", cfg.HandlerSuffix)
	}
}

func TestLoadInvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{invalid"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"no roots", func(c *Config) { c.Roots = nil }, true},
		{"bad port", func(c *Config) { c.Port = 70000 }, true},
		{"bad suffix", func(c *Config) { c.HandlerSuffix = "class" }, true},
		{"zero depth", func(c *Config) { c.MaxLoopbackDepth = 0 }, true},
		{"zero body", func(c *Config) { c.MaxBodyBytes = 0 }, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.Roots = []string{"/srv"}
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr && err == nil {
				t.Error("expected an error, but got none")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("expected no error, but got: %v", err)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	cfg := defaultConfig()
	if got := cfg.Addr(); got != "127.0.0.1:2468" {
		t.Errorf("got %q want %q", got, "127.0.0.1:2468")
	}
}

func writeConfig(t *testing.T, v map[string]interface{}) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, b, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}
