// Package request reads HTTP/1.0 requests and splits their URI into the
// hierarchy id, the resource path and the query string.
package request

import (
	"bufio"
	"fmt"
	"io"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
)

// Error carries the HTTP status a parse failure maps to.
type Error struct {
	Status int
	Msg    string
}

func (e *Error) Error() string { return fmt.Sprintf("%d %s", e.Status, e.Msg) }

func badRequest(format string, args ...interface{}) error {
	return &Error{Status: 400, Msg: fmt.Sprintf(format, args...)}
}

type Request struct {
	Method string
	URI    string
	Proto  string

	HierarchyID string
	LogicalPath string
	Query       string

	Header textproto.MIMEHeader
	Body   []byte
}

// ParseRequestLine splits "METHOD SP URI SP PROTO".
func ParseRequestLine(line string) (method, uri, proto string, err error) {
	fields := strings.Fields(line)
	if len(fields) != 3 {
		return "", "", "", badRequest("malformed request line %q", line)
	}
	method, uri, proto = fields[0], fields[1], fields[2]
	if method != "GET" && method != "POST" {
		return "", "", "", &Error{Status: 501, Msg: "method " + method + " not supported"}
	}
	return method, uri, proto, nil
}

// Decompose splits a request URI into hierarchy id, logical path and query.
//
//	/123//help/a.htm?x  -> "123", "help/a.htm", "x"
//	/123/help/a.htm     -> "123", "help/a.htm", ""
//	/Proj/Task//a.htm   -> "Proj/Task", "a.htm", ""
//	//help/a.htm        -> "", "help/a.htm", ""
//	/help/a.htm         -> "", "help/a.htm", ""
func Decompose(uri string) (hierarchyID, logicalPath, query string) {
	rest := uri
	if i := strings.IndexByte(rest, '?'); i >= 0 {
		rest, query = rest[:i], rest[i+1:]
	}

	if i := strings.Index(rest, "//"); i >= 0 {
		hierarchyID = strings.TrimPrefix(rest[:i], "/")
		logicalPath = rest[i+2:]
	} else if seg, remainder, ok := strings.Cut(strings.TrimPrefix(rest, "/"), "/"); ok && isNumber(seg) {
		hierarchyID = seg
		logicalPath = remainder
	} else {
		logicalPath = strings.TrimPrefix(rest, "/")
	}
	return unescape(hierarchyID), unescape(logicalPath), query
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}

// IsNumericID reports whether a hierarchy id must be translated through the
// hierarchy store rather than used as a path.
func IsNumericID(id string) bool {
	return isNumber(id)
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

// Read parses one request from r. maxBody bounds POST bodies.
func Read(r *bufio.Reader, maxBody int64) (*Request, error) {
	tp := textproto.NewReader(r)
	line, err := tp.ReadLine()
	if err != nil {
		return nil, err
	}
	method, uri, proto, err := ParseRequestLine(line)
	if err != nil {
		return nil, err
	}
	header, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return nil, badRequest("malformed headers: %v", err)
	}
	if header == nil {
		header = textproto.MIMEHeader{}
	}

	req := &Request{Method: method, URI: uri, Proto: proto, Header: header}
	req.HierarchyID, req.LogicalPath, req.Query = Decompose(uri)

	if method == "POST" {
		if cl := header.Get("Content-Length"); cl != "" {
			n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
			if err != nil || n < 0 {
				return nil, badRequest("invalid Content-Length %q", cl)
			}
			if n > maxBody {
				return nil, &Error{Status: 413, Msg: "request body too large"}
			}
			req.Body = make([]byte, n)
			if _, err := io.ReadFull(r, req.Body); err != nil {
				return nil, err
			}
		}
	}
	return req, nil
}
