package server

import (
	"bufio"
	"bytes"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var statusTitles = map[int]string{
	200: "OK",
	302: "Found",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	413: "Request Entity Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
}

// StatusTitle returns the reason phrase sent after status.
func StatusTitle(status int) string {
	if t, ok := statusTitles[status]; ok {
		return t
	}
	if t := http.StatusText(status); t != "" {
		return t
	}
	return "Unknown"
}

type field struct {
	name, value string
}

// headers keeps response header fields in the order they were set.
type headers []field

func (h *headers) set(name, value string) {
	for i := range *h {
		if strings.EqualFold((*h)[i].name, name) {
			(*h)[i].value = value
			return
		}
	}
	*h = append(*h, field{name, value})
}

func (h *headers) add(name, value string) {
	*h = append(*h, field{name, value})
}

func (h headers) get(name string) string {
	for _, f := range h {
		if strings.EqualFold(f.name, name) {
			return f.value
		}
	}
	return ""
}

// writeHead writes the status line, the fixed headers every response carries,
// the given fields and the blank line.
func (s *Server) writeHead(w *bufio.Writer, status int, title string, h headers) error {
	if title == "" {
		title = StatusTitle(status)
	}
	fmt.Fprintf(w, "HTTP/1.0 %d %s\r\n", status, title)
	fmt.Fprintf(w, "Server: %s\r\n", Software)
	fmt.Fprintf(w, "Date: %s\r\n", time.Now().UTC().Format(http.TimeFormat))
	fmt.Fprintf(w, "%s: %d\r\n", StartupHeader, s.startup)
	for _, f := range h {
		switch {
		case strings.EqualFold(f.name, "Connection"), strings.EqualFold(f.name, "Server"),
			strings.EqualFold(f.name, "Date"), strings.EqualFold(f.name, StartupHeader):
			continue
		}
		fmt.Fprintf(w, "%s: %s\r\n", f.name, sanitizeHeaderValue(f.value))
	}
	_, err := w.WriteString("Connection: close\r\n\r\n")
	return err
}

func sanitizeHeaderValue(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// errorPage renders a small HTML body for status. detail is escaped.
func errorPage(status int, detail string) []byte {
	title := StatusTitle(status)
	var b bytes.Buffer
	fmt.Fprintf(&b, "<html><head><title>%d %s</title></head>\n<body><h1>%s</h1>\n", status, html.EscapeString(title), html.EscapeString(title))
	if detail != "" {
		fmt.Fprintf(&b, "<pre>%s</pre>\n", html.EscapeString(detail))
	}
	b.WriteString("</body></html>\n")
	return b.Bytes()
}

// handlerResponse is a handler's output split into status, headers and body.
type handlerResponse struct {
	status int
	title  string
	header headers
	body   []byte
}

// parseHandlerOutput reads "Name: value" lines up to the first empty line.
// Status sets the response status, Location without Status means 302, and the
// remaining output is the body. A line that is not a header starts the body.
func parseHandlerOutput(out []byte) (*handlerResponse, error) {
	resp := &handlerResponse{status: 200}
	rest := out
	for len(rest) > 0 {
		line := rest
		next := []byte(nil)
		if i := bytes.IndexByte(rest, '\n'); i >= 0 {
			line, next = rest[:i], rest[i+1:]
		}
		line = bytes.TrimSuffix(line, []byte("\r"))
		if len(line) == 0 {
			rest = next
			break
		}
		name, value, ok := bytes.Cut(line, []byte(":"))
		if !ok || len(bytes.TrimSpace(name)) == 0 || bytes.ContainsAny(name, " \t") {
			break
		}
		resp.header.add(string(name), strings.TrimSpace(string(value)))
		rest = next
	}
	resp.body = rest

	var explicit bool
	kept := resp.header[:0]
	for _, f := range resp.header {
		switch strings.ToLower(f.name) {
		case "status":
			code, title, _ := strings.Cut(f.value, " ")
			n, err := strconv.Atoi(code)
			if err != nil || n < 100 || n > 999 {
				return nil, fmt.Errorf("invalid Status header %q", f.value)
			}
			resp.status, resp.title, explicit = n, strings.TrimSpace(title), true
		case "content-length", "connection":
			// recomputed by the server
		default:
			kept = append(kept, f)
		}
	}
	resp.header = kept
	if !explicit && resp.header.get("Location") != "" {
		resp.status = 302
	}
	if resp.header.get("Content-Type") == "" {
		resp.header.set("Content-Type", "text/html")
	}
	return resp, nil
}

// countingWriter counts body bytes for the access log.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
