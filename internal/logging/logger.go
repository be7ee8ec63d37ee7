package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Logger appends one JSON object per line to an access log file.
// A Logger with an empty path discards everything.
type Logger struct {
	path string
	mu   sync.Mutex
}

func New(path string) *Logger {
	return &Logger{path: path}
}

// Entry describes one served request.
type Entry struct {
	RequestID string        `json:"request_id"`
	Remote    string        `json:"remote"`
	Method    string        `json:"method"`
	URI       string        `json:"uri"`
	Status    int           `json:"status"`
	Bytes     int64         `json:"bytes"`
	User      string        `json:"user,omitempty"`
	Internal  bool          `json:"internal,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
	Error     string        `json:"error,omitempty"`
}

func (l *Logger) Request(e Entry) {
	l.writeJSON("request", e)
}

func (l *Logger) Startup(addr string, roots []string, startup int64) {
	l.writeJSON("startup", map[string]interface{}{
		"addr":    addr,
		"roots":   roots,
		"startup": startup,
	})
}

func (l *Logger) writeJSON(event string, v interface{}) {
	if l == nil || l.path == "" {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	line, err := json.Marshal(struct {
		TS    string          `json:"ts"`
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}{time.Now().UTC().Format(time.RFC3339Nano), event, payload})
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	f.Write(append(line, '\n'))
}

// NewLogger builds the operational logger. Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard is a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
