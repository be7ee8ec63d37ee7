package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"path"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aezizhu/tinyweb/internal/handler"
	"github.com/aezizhu/tinyweb/internal/logging"
	"github.com/aezizhu/tinyweb/internal/mimetype"
	"github.com/aezizhu/tinyweb/internal/policy"
	"github.com/aezizhu/tinyweb/internal/request"
	"github.com/aezizhu/tinyweb/internal/roots"
)

// HandlerFault is a handler that failed, returned an error or panicked.
type HandlerFault struct {
	Path  string
	Err   error
	Stack []byte
}

func (f *HandlerFault) Error() string {
	return fmt.Sprintf("handler %s: %v", f.Path, f.Err)
}

func (f *HandlerFault) Unwrap() error { return f.Err }

// exchange is one request/response on a connection or loopback buffer.
type exchange struct {
	s        *Server
	ctx      context.Context
	id       string
	remote   string
	local    string
	internal bool

	w   *bufio.Writer
	out *countingWriter

	req        *request.Request
	translated string
	user       string
	res        *roots.Resource
	env        handler.Env

	status int
	err    error
	fault  *HandlerFault
}

func (s *Server) handleConn(conn net.Conn) {
	defer s.untrack(conn)
	defer conn.Close()

	ctx := handler.WithInvoker(s.ctx, s)
	s.serveExchange(ctx, conn, conn, conn.RemoteAddr().String(), conn.LocalAddr().String(), false)
}

// serveExchange drives one request through
// read → authorize → resolve → serve → flush.
func (s *Server) serveExchange(ctx context.Context, r io.Reader, w io.Writer, remote, local string, internal bool) *exchange {
	start := time.Now()
	bw := bufio.NewWriter(w)
	x := &exchange{
		s:        s,
		ctx:      ctx,
		id:       uuid.NewString(),
		remote:   remote,
		local:    local,
		internal: internal,
		w:        bw,
		out:      &countingWriter{w: bw},
	}
	x.run(bufio.NewReader(r))
	if err := bw.Flush(); err != nil && x.err == nil {
		x.err = err
	}
	s.logExchange(x, time.Since(start))
	return x
}

func (x *exchange) run(r *bufio.Reader) {
	req, err := request.Read(r, x.s.cfg.MaxBodyBytes)
	if err != nil {
		var perr *request.Error
		if errors.As(err, &perr) {
			x.fail(perr.Status, perr.Msg)
			return
		}
		x.err = err
		return
	}
	x.req = req
	x.translated = x.s.translate(req.HierarchyID)

	remote := x.remote
	if x.internal {
		remote = internalRemote
	}
	d := x.s.policy.Authorize(remote, x.translated, req.LogicalPath, req.Header.Get("Authorization"))
	switch d.Verdict {
	case policy.Challenge:
		x.challenge()
		return
	case policy.Deny:
		x.fail(403, "")
		return
	}
	x.user = d.User

	res, err := x.s.resolve(req.LogicalPath)
	if err != nil {
		if errors.Is(err, roots.ErrNotFound) {
			x.fail(404, "/"+req.LogicalPath)
		} else {
			x.fail(500, err.Error())
		}
		return
	}
	x.res = res
	defer res.Body.Close()

	body := bufio.NewReaderSize(res.Body, mimetype.SniffLen)
	prefix, err := body.Peek(mimetype.SniffLen)
	if err != nil && err != io.EOF {
		x.fail(500, fmt.Sprintf("read %s: %v", res.Path, err))
		return
	}

	class := x.s.mime.Classify(res.Path, prefix)
	marker := x.s.cfg.PreprocessMarker
	switch {
	case class.Executable:
		x.serveHandler()
	case class.ContentType == mimetype.ServerParsed,
		class.ContentType == mimetype.HTML && marker != "" && bytes.Contains(prefix, []byte(marker)):
		x.servePreprocessed(body)
	default:
		x.serveStatic(body, class.ContentType)
	}
}

// resolve finds the resource for a logical path. Directory paths try the
// configured index files in order.
func (s *Server) resolve(p string) (*roots.Resource, error) {
	if p != "" && !strings.HasSuffix(p, "/") {
		return s.resolver.Resolve(p)
	}
	for _, idx := range s.cfg.IndexFiles {
		res, err := s.resolver.Resolve(p + idx)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, roots.ErrNotFound) {
			return nil, err
		}
	}
	return nil, roots.ErrNotFound
}

func (x *exchange) serveStatic(body io.Reader, contentType string) {
	var h headers
	h.set("Content-Type", contentType)
	h.set("Content-Length", strconv.FormatInt(x.res.Size, 10))
	if !x.res.ModTime.IsZero() {
		h.set("Last-Modified", x.res.ModTime.UTC().Format(http.TimeFormat))
	}
	x.status = 200
	if err := x.s.writeHead(x.w, 200, "", h); err != nil {
		x.err = err
		return
	}
	if _, err := io.Copy(x.out, body); err != nil {
		x.err = err
	}
}

func (x *exchange) servePreprocessed(body io.Reader) {
	data, err := io.ReadAll(body)
	if err != nil {
		x.fail(500, fmt.Sprintf("read %s: %v", x.res.Path, err))
		return
	}
	text, err := x.s.pre.Preprocess(x.ctx, string(data), x.environment())
	if err != nil {
		x.fail(500, fmt.Sprintf("preprocess %s: %v", x.res.Path, err))
		return
	}
	var h headers
	h.set("Content-Type", mimetype.HTML)
	x.respond(200, "", h, []byte(text))
}

func (x *exchange) serveHandler() {
	ref := handler.Ref{
		Path:      x.res.Path,
		Dir:       path.Join(filepath.ToSlash(x.res.Root.Location), x.res.Dir()),
		Class:     x.s.mime.StripHandlerSuffix(x.res.Path),
		LocalPath: x.res.LocalPath(),
		Location:  x.res.Root.Location,
	}
	if m := x.res.Root.Manifest; m != nil {
		ref.Package = m.ID
	}
	lease, err := x.s.pool.Acquire(ref)
	if err != nil {
		x.fail(500, fmt.Sprintf("load %s: %v", ref.Class, err))
		return
	}

	out, err := x.invoke(lease)
	if err != nil {
		x.handlerFault(err)
		return
	}
	resp, err := parseHandlerOutput(out)
	if err != nil {
		x.handlerFault(err)
		return
	}
	x.respond(resp.status, resp.title, resp.header, resp.body)
}

// invoke runs the leased handler against the request body and returns its raw
// output. The instance goes back to the pool whatever happens.
func (x *exchange) invoke(lease *handler.Lease) (out []byte, err error) {
	defer x.s.pool.Release(lease)
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerFault{Path: x.res.Path, Err: fmt.Errorf("panic: %v", r), Stack: debug.Stack()}
		}
	}()

	var buf bytes.Buffer
	err = lease.Service(x.ctx, bytes.NewReader(x.req.Body), &buf, x.environment())
	return buf.Bytes(), err
}

// handlerFault answers 500 with the fault detail on a socket. Loopback
// callers get the fault as an error and no response.
func (x *exchange) handlerFault(err error) {
	var fault *HandlerFault
	if !errors.As(err, &fault) {
		fault = &HandlerFault{Path: x.res.Path, Err: err, Stack: debug.Stack()}
	}
	x.err = fault
	if x.internal {
		x.fault = fault
		x.status = 500
		return
	}
	detail := fault.Error()
	for e := errors.Unwrap(fault.Err); e != nil; e = errors.Unwrap(e) {
		detail += "\n  caused by: " + e.Error()
	}
	if len(fault.Stack) > 0 {
		detail += "\n\n" + string(fault.Stack)
	}
	x.fail(500, detail)
}

func (x *exchange) challenge() {
	var h headers
	h.set("WWW-Authenticate", fmt.Sprintf("Basic realm=%q", x.s.cfg.AppName))
	h.set("Content-Type", mimetype.HTML)
	x.respond(401, "", h, errorPage(401, ""))
}

func (x *exchange) fail(status int, detail string) {
	if x.err == nil && status >= 500 {
		x.err = errors.New(detail)
	}
	var h headers
	h.set("Content-Type", mimetype.HTML)
	x.respond(status, "", h, errorPage(status, detail))
}

func (x *exchange) respond(status int, title string, h headers, body []byte) {
	x.status = status
	h.set("Content-Length", strconv.Itoa(len(body)))
	if err := x.s.writeHead(x.w, status, title, h); err != nil {
		x.err = err
		return
	}
	if _, err := x.out.Write(body); err != nil {
		x.err = err
	}
}

func (s *Server) logExchange(x *exchange, elapsed time.Duration) {
	if x.req == nil && x.status == 0 {
		s.log.Debug("connection closed before request", "remote", x.remote, "error", x.err)
		return
	}
	e := logging.Entry{
		RequestID: x.id,
		Remote:    x.remote,
		Status:    x.status,
		Bytes:     x.out.n,
		User:      x.user,
		Internal:  x.internal,
		Elapsed:   elapsed,
	}
	if x.req != nil {
		e.Method, e.URI = x.req.Method, x.req.URI
	}
	if x.err != nil {
		e.Error = x.err.Error()
	}
	s.access.Request(e)

	level := slog.LevelInfo
	switch {
	case x.status >= 500:
		level = slog.LevelError
	case x.internal:
		level = slog.LevelDebug
	}
	attrs := []any{
		"request_id", e.RequestID,
		"remote", e.Remote,
		"method", e.Method,
		"uri", e.URI,
		"status", e.Status,
		"bytes", e.Bytes,
		"elapsed", elapsed,
	}
	if e.Error != "" {
		attrs = append(attrs, "error", e.Error)
	}
	s.log.Log(x.ctx, level, "request", attrs...)
}
