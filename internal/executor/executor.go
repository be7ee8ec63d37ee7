// Package executor runs handler files from directory roots as CGI-style
// subprocesses. The request environment is passed as process environment,
// the request body on stdin, and stdout is the handler response.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/aezizhu/tinyweb/internal/config"
	"github.com/aezizhu/tinyweb/internal/handler"
)

// maxStderr bounds how much diagnostic output is kept for error messages.
const maxStderr = 4096

// Process describes one subprocess invocation.
type Process struct {
	Argv   []string
	Dir    string
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// For testing, allow overriding process execution
type execFn func(ctx context.Context, p Process) error

var runCommand execFn = defaultRunCommand

func defaultRunCommand(ctx context.Context, p Process) error {
	var cmd *exec.Cmd
	if len(p.Argv) == 1 {
		cmd = exec.CommandContext(ctx, p.Argv[0])
	} else {
		cmd = exec.CommandContext(ctx, p.Argv[0], p.Argv[1:]...)
	}
	cmd.Dir = p.Dir
	cmd.Env = p.Env
	cmd.Stdin = p.Stdin
	cmd.Stdout = p.Stdout
	cmd.Stderr = p.Stderr
	return cmd.Run()
}

// GetRunCommand returns the current run command function.
func GetRunCommand() execFn {
	return runCommand
}

// SetRunCommand sets the run command function for testing.
func SetRunCommand(fn execFn) {
	runCommand = fn
}

type Engine struct {
	cfg config.Config
}

func New(cfg config.Config) *Engine { return &Engine{cfg: cfg} }

// Factory returns a handler factory for the file at localPath. Files that are
// not regular executables yield handler.ErrNoHandler.
func (e *Engine) Factory(localPath string) (handler.Factory, error) {
	fi, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", handler.ErrNoHandler, localPath, err)
	}
	if !fi.Mode().IsRegular() || fi.Mode().Perm()&0o111 == 0 {
		return nil, fmt.Errorf("%w %s: not executable", handler.ErrNoHandler, localPath)
	}
	return func() handler.Handler {
		return &Script{engine: e, path: localPath}
	}, nil
}

// Script is a handler backed by an executable file.
type Script struct {
	engine *Engine
	path   string
}

func (s *Script) Service(ctx context.Context, in io.Reader, out io.Writer, env handler.Env) error {
	timeout := time.Duration(s.engine.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stderr := &limitedBuffer{max: maxStderr}
	err := runCommand(cctx, Process{
		Argv:   []string{s.path},
		Dir:    filepath.Dir(s.path),
		Env:    Environ(env),
		Stdin:  in,
		Stdout: out,
		Stderr: stderr,
	})
	if err == nil {
		return nil
	}
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: timed out after %s", s.path, timeout)
	}
	if msg := strings.TrimSpace(stderr.String()); msg != "" {
		return fmt.Errorf("%s: %w: %s", s.path, err, msg)
	}
	return fmt.Errorf("%s: %w", s.path, err)
}

// Environ converts env into KEY=VALUE pairs on top of a minimal base.
func Environ(env handler.Env) []string {
	out := minimalEnv()
	for _, k := range env.Keys() {
		if k == "" || strings.ContainsAny(k, "=\x00") {
			continue
		}
		out = append(out, k+"="+strings.ReplaceAll(env[k], "\x00", ""))
	}
	return out
}

func minimalEnv() []string {
	path := os.Getenv("PATH")
	if path == "" {
		path = "/usr/sbin:/usr/bin:/sbin:/bin"
	}
	return []string{"PATH=" + path, "GATEWAY_INTERFACE=CGI/1.1"}
}

type limitedBuffer struct {
	bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}
