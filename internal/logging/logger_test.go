package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestLogger_WriteJSON(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "test.log")

	logger := New(logFile)

	logger.Startup("127.0.0.1:2468", []string{"/srv/help"}, 1700000000000)
	logger.Request(Entry{
		RequestID: "abc",
		Remote:    "127.0.0.1:5555",
		Method:    "GET",
		URI:       "/help/about.htm",
		Status:    200,
		Bytes:     42,
		Elapsed:   3 * time.Millisecond,
	})

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, but got %d", len(lines))
	}

	var startupEntry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &startupEntry); err != nil {
		t.Fatalf("failed to unmarshal startup log entry: %v", err)
	}
	if startupEntry["event"] != "startup" {
		t.Errorf("expected event 'startup', got '%s'", startupEntry["event"])
	}

	var requestEntry struct {
		Event string `json:"event"`
		Data  Entry  `json:"data"`
	}
	if err := json.Unmarshal([]byte(lines[1]), &requestEntry); err != nil {
		t.Fatalf("failed to unmarshal request log entry: %v", err)
	}
	if requestEntry.Event != "request" {
		t.Errorf("expected event 'request', got '%s'", requestEntry.Event)
	}
	if requestEntry.Data.Status != 200 || requestEntry.Data.URI != "/help/about.htm" {
		t.Errorf("unexpected request entry %+v", requestEntry.Data)
	}
}

func TestLogger_NoPath(t *testing.T) {
	logger := New("")
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("The code panicked when logging with an empty path: %v", r)
		}
	}()

	logger.Request(Entry{})
	logger.Startup("", nil, 0)

	var nilLogger *Logger
	nilLogger.Request(Entry{})
}

func TestLogger_Concurrency(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "concurrent.log")
	logger := New(logFile)

	var wg sync.WaitGroup
	numRoutines := 50

	for i := 0; i < numRoutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Request(Entry{Method: "GET", URI: "/concurrent", Status: 200})
		}()
	}

	wg.Wait()

	content, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	if len(lines) != numRoutines {
		t.Errorf("expected %d log lines, but got %d", numRoutines, len(lines))
	}
}

func TestLogger_WriteJSON_Error(t *testing.T) {
	tempDir := t.TempDir()
	logFile := filepath.Join(tempDir, "error.log")
	logger := New(logFile)

	// Pass a channel, which cannot be marshaled to JSON
	logger.writeJSON("error_event", make(chan int))

	content, err := os.ReadFile(logFile)
	if err != nil {
		if !os.IsNotExist(err) {
			t.Fatalf("unexpected error reading log file: %v", err)
		}
	} else if len(content) > 0 {
		t.Error("expected nothing to be written on marshal error")
	}
}

func TestLogger_FileError(t *testing.T) {
	// A directory cannot be opened for appending
	logger := New(t.TempDir())
	logger.Request(Entry{})
}

func TestParseLevel(t *testing.T) {
	testCases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range testCases {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewLogger_FiltersByLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "key", "value")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info record should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "key=value") {
		t.Errorf("warn record missing: %q", out)
	}
}
