package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/aezizhu/tinyweb/internal/config"
	"github.com/aezizhu/tinyweb/internal/handler"
	"github.com/aezizhu/tinyweb/internal/logging"
	"github.com/aezizhu/tinyweb/internal/mimetype"
	"github.com/aezizhu/tinyweb/internal/policy"
	"github.com/aezizhu/tinyweb/internal/preprocess"
	"github.com/aezizhu/tinyweb/internal/request"
	"github.com/aezizhu/tinyweb/internal/roots"
)

// Software is sent as the Server header and SERVER_SOFTWARE.
const Software = "tinyweb/0.1"

// StartupHeader carries the server start time in epoch milliseconds.
const StartupHeader = "Dash-Startup-Timestamp"

var ErrServerClosed = errors.New("server closed")

// Resolver finds resources across the configured roots.
type Resolver interface {
	Resolve(p string) (*roots.Resource, error)
	Recompute() error
}

// Authorizer decides whether a request may proceed.
type Authorizer interface {
	Authorize(remoteAddr, translatedPath, logicalPath, authorization string) policy.Decision
}

// Hierarchy maps a numeric hierarchy id to its path.
type Hierarchy interface {
	PathOf(id string) (string, bool)
}

// Preprocessor expands server-parsed HTML.
type Preprocessor interface {
	Preprocess(ctx context.Context, text string, env handler.Env) (string, error)
}

// Deps are the collaborators of a Server. Resolver is required; the rest
// default to what the configuration describes.
type Deps struct {
	Resolver     Resolver
	Mime         *mimetype.Registry
	Pool         *handler.Pool
	Policy       Authorizer
	Hierarchy    Hierarchy
	Preprocessor Preprocessor
	AccessLog    *logging.Logger
	Logger       *slog.Logger
}

type Server struct {
	cfg     config.Config
	startup int64

	resolver  Resolver
	mime      *mimetype.Registry
	pool      *handler.Pool
	policy    Authorizer
	hierarchy Hierarchy
	pre       Preprocessor
	access    *logging.Logger
	log       *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	closed    bool
	listeners map[net.Listener]struct{}
	conns     map[net.Conn]struct{}
	wg        sync.WaitGroup
}

func New(cfg config.Config, deps Deps) (*Server, error) {
	if deps.Resolver == nil {
		return nil, errors.New("server: no resolver")
	}
	s := &Server{
		cfg:       cfg,
		startup:   time.Now().UnixMilli(),
		resolver:  deps.Resolver,
		mime:      deps.Mime,
		pool:      deps.Pool,
		policy:    deps.Policy,
		hierarchy: deps.Hierarchy,
		pre:       deps.Preprocessor,
		access:    deps.AccessLog,
		log:       deps.Logger,
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[net.Conn]struct{}),
	}
	if s.mime == nil {
		s.mime = mimetype.New(cfg.MimeTypes, cfg.HandlerSuffix, cfg.AssetDirs)
	}
	if s.pool == nil {
		s.pool = handler.NewPool(nil, nil, nil)
	}
	if s.policy == nil {
		s.policy = policy.New(nil, cfg.AllowRemote)
	}
	if s.pre == nil {
		s.pre = preprocess.New(cfg.PreprocessMarker)
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	if s.cfg.MaxLoopbackDepth < 1 {
		s.cfg.MaxLoopbackDepth = 1
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	return s, nil
}

// StartupTimestamp is the value of the Dash-Startup-Timestamp header.
func (s *Server) StartupTimestamp() int64 { return s.startup }

func (s *Server) Pool() *handler.Pool { return s.pool }

// ListenAndServe binds the configured address and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln and handles each on its own goroutine.
// It always returns a non-nil error; after Shutdown it is ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.listeners[ln] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.listeners, ln)
		s.mu.Unlock()
		ln.Close()
	}()

	s.log.Info("listening", "addr", ln.Addr().String(), StartupHeader, s.startup)
	s.access.Startup(ln.Addr().String(), s.cfg.Roots, s.startup)

	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if temporary(err) {
				if delay == 0 {
					delay = 5 * time.Millisecond
				} else if delay *= 2; delay > time.Second {
					delay = time.Second
				}
				s.log.Warn("accept failed; retrying", "error", err, "delay", delay)
				time.Sleep(delay)
				continue
			}
			return err
		}
		delay = 0
		if !s.track(conn) {
			conn.Close()
			return ErrServerClosed
		}
		go s.handleConn(conn)
	}
}

// temporary reports accept errors worth retrying, such as running out of
// file descriptors.
func temporary(err error) bool {
	var ne interface{ Temporary() bool }
	if errors.As(err, &ne) && ne.Temporary() {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// Addr returns the address of one active listener, or nil.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ln := range s.listeners {
		return ln.Addr()
	}
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[c] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.wg.Done()
}

// Shutdown stops accepting connections and waits for in-flight ones. When ctx
// expires first the remaining connections are closed.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for ln := range s.listeners {
		ln.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.cancel()
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		for c := range s.conns {
			c.Close()
		}
		s.mu.Unlock()
		s.cancel()
		<-done
		return ctx.Err()
	}
}

// ClearCaches recomputes the root list and drops every handler loader and
// pooled instance, so changed files and handlers are picked up.
func (s *Server) ClearCaches() error {
	err := s.resolver.Recompute()
	s.pool.Clear()
	if err != nil {
		s.log.Warn("recompute roots failed", "error", err)
		return err
	}
	s.log.Info("caches cleared")
	return nil
}

// translate maps a hierarchy id to the path used for access control and
// PATH_TRANSLATED. Unknown numeric ids translate to the top of the hierarchy.
func (s *Server) translate(id string) string {
	if id == "" {
		return ""
	}
	if request.IsNumericID(id) {
		if s.hierarchy == nil {
			return ""
		}
		p, _ := s.hierarchy.PathOf(id)
		return p
	}
	return "/" + strings.Trim(id, "/")
}
