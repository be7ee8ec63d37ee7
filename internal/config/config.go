package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

type Config struct {
	Listen      string   `json:"listen"`
	Port        int      `json:"port"`
	AllowRemote bool     `json:"allow_remote"`
	Roots       []string `json:"roots"`
	// AppName is used as the Basic auth realm.
	AppName        string `json:"app_name"`
	AppVersion     string `json:"app_version"`
	PrimaryArchive string `json:"primary_archive"`
	// MimeTypes overrides or extends the built-in extension table.
	MimeTypes        map[string]string `json:"mime_types"`
	HandlerSuffix    string            `json:"handler_suffix"`
	AssetDirs        []string          `json:"asset_dirs"`
	IndexFiles       []string          `json:"index_files"`
	PreprocessMarker string            `json:"preprocess_marker"`
	MaxLoopbackDepth int               `json:"max_loopback_depth"`
	MaxBodyBytes     int64             `json:"max_body_bytes"`
	// TimeoutSeconds bounds subprocess handlers.
	TimeoutSeconds int    `json:"timeout_seconds"`
	DataFile       string `json:"data_file"`
	AccessLog      string `json:"access_log"`
	LogLevel       string `json:"log_level"`
	WatchRoots     bool   `json:"watch_roots"`
}

func defaultConfig() Config {
	return Config{
		Listen:           "127.0.0.1",
		Port:             2468,
		AllowRemote:      false,
		AppName:          "Dashboard",
		AppVersion:       "1.0",
		PrimaryArchive:   "dashboard.zip",
		HandlerSuffix:    ".class",
		AssetDirs:        []string{"Templates/", "applets/"},
		IndexFiles:       []string{"index.htm", "index.html"},
		PreprocessMarker: "<!--#server-parsed-->",
		MaxLoopbackDepth: 8,
		MaxBodyBytes:     8 << 20,
		TimeoutSeconds:   30,
		LogLevel:         "info",
	}
}

// Default returns the built-in configuration without consulting files or env.
func Default() Config {
	return defaultConfig()
}

// Load loads configuration from env and an optional JSON file.
// Precedence: env > file > defaults
func Load(path string) (Config, error) {
	cfg := defaultConfig()

	if path == "" {
		if fileExists("/etc/tinyweb/config.json") {
			path = "/etc/tinyweb/config.json"
		} else {
			home, _ := os.UserHomeDir()
			p := filepath.Join(home, ".config", "tinyweb", "config.json")
			if home != "" && fileExists(p) {
				path = p
			}
		}
	}
	if path != "" {
		if !fileExists(path) {
			return cfg, fmt.Errorf("config file %s not found", path)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	// Environment variables override everything
	if v := strings.TrimSpace(os.Getenv("TINYWEB_LISTEN")); v != "" {
		cfg.Listen = v
	}
	if v := strings.TrimSpace(os.Getenv("TINYWEB_PORT")); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p >= 0 {
			cfg.Port = p
		}
	}
	if v := strings.TrimSpace(os.Getenv("TINYWEB_ROOTS")); v != "" {
		cfg.Roots = filepath.SplitList(v)
	}
	if v := strings.TrimSpace(os.Getenv("TINYWEB_ALLOW_REMOTE")); v != "" {
		cfg.AllowRemote = parseBool(v)
	}
	if v := strings.TrimSpace(os.Getenv("TINYWEB_DATA_FILE")); v != "" {
		cfg.DataFile = v
	}
	if v := strings.TrimSpace(os.Getenv("TINYWEB_ACCESS_LOG")); v != "" {
		cfg.AccessLog = v
	}
	if v := strings.TrimSpace(os.Getenv("TINYWEB_LOG_LEVEL")); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv("TINYWEB_WATCH_ROOTS")); v != "" {
		cfg.WatchRoots = parseBool(v)
	}

	return cfg, nil
}

// Validate reports the first setting that would prevent the server from starting.
func (cfg Config) Validate() error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port %d out of range", cfg.Port)
	}
	if len(cfg.Roots) == 0 {
		return errors.New("at least one root is required")
	}
	if !strings.HasPrefix(cfg.HandlerSuffix, ".") {
		return fmt.Errorf("handler suffix %q must start with a dot", cfg.HandlerSuffix)
	}
	if cfg.MaxLoopbackDepth < 1 {
		return errors.New("max_loopback_depth must be at least 1")
	}
	if cfg.MaxBodyBytes <= 0 {
		return errors.New("max_body_bytes must be positive")
	}
	return nil
}

// Addr is the host:port the listener binds.
func (cfg Config) Addr() string {
	return net.JoinHostPort(cfg.Listen, strconv.Itoa(cfg.Port))
}

func parseBool(v string) bool {
	return v == "1" || strings.ToLower(v) == "true"
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
