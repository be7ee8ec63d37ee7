package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"strconv"
	"strings"

	"github.com/aezizhu/tinyweb/internal/handler"
)

// internalRemote is the remote address of loopback requests.
const internalRemote = "internal"

var ErrLoopbackDepth = errors.New("loopback request depth exceeded")

type depthKey struct{}

func loopbackDepth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// Invoke runs "GET uri HTTP/1.0" through the same pipeline as socket
// requests and returns the complete response. Handler faults are returned as
// errors. Nested invocations deeper than max_loopback_depth fail with
// ErrLoopbackDepth.
func (s *Server) Invoke(ctx context.Context, uri string) ([]byte, error) {
	depth := loopbackDepth(ctx)
	if depth >= s.cfg.MaxLoopbackDepth {
		return nil, fmt.Errorf("%w: %d levels at %s", ErrLoopbackDepth, depth, uri)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx = context.WithValue(ctx, depthKey{}, depth+1)
	ctx = handler.WithInvoker(ctx, s)

	local := internalRemote
	if a := s.Addr(); a != nil {
		local = a.String()
	}
	var out bytes.Buffer
	x := s.serveExchange(ctx, strings.NewReader("GET "+uri+" HTTP/1.0\r\n\r\n"), &out, internalRemote, local, true)
	if x.fault != nil {
		return nil, x.fault
	}
	if x.err != nil && x.status == 0 {
		return nil, x.err
	}
	return out.Bytes(), nil
}

// StatusError is an error status returned to Fetch.
type StatusError struct {
	URI    string
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URI, e.Status, StatusTitle(e.Status))
}

// Fetch is Invoke returning only the body. Statuses of 400 and above become a
// *StatusError.
func (s *Server) Fetch(ctx context.Context, uri string) ([]byte, error) {
	raw, err := s.Invoke(ctx, uri)
	if err != nil {
		return nil, err
	}
	resp, err := ParseResponse(raw)
	if err != nil {
		return nil, err
	}
	if resp.Status >= 400 {
		return nil, &StatusError{URI: uri, Status: resp.Status, Body: resp.Body}
	}
	return resp.Body, nil
}

// Response is a parsed HTTP/1.0 response.
type Response struct {
	Status int
	Title  string
	Header textproto.MIMEHeader
	Body   []byte
}

// ParseResponse splits raw response bytes into status, headers and body.
func ParseResponse(raw []byte) (*Response, error) {
	r := bufio.NewReader(bytes.NewReader(raw))
	tp := textproto.NewReader(r)
	line, err := tp.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("read status line: %w", err)
	}
	proto, rest, _ := strings.Cut(line, " ")
	code, title, _ := strings.Cut(rest, " ")
	status, err := strconv.Atoi(code)
	if !strings.HasPrefix(proto, "HTTP/") || err != nil {
		return nil, fmt.Errorf("malformed status line %q", line)
	}
	header, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read headers: %w", err)
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return &Response{Status: status, Title: title, Header: header, Body: body}, nil
}
