package server

import (
	"net"
	"strconv"
	"strings"

	"github.com/aezizhu/tinyweb/internal/handler"
)

// environment builds the handler environment once per exchange.
func (x *exchange) environment() handler.Env {
	if x.env != nil {
		return x.env
	}
	req := x.req
	env := handler.Env{
		"SERVER_SOFTWARE": Software,
		"SERVER_PROTOCOL": "HTTP/1.0",
		"REQUEST_METHOD":  req.Method,
		"REQUEST_URI":     req.URI,
		"QUERY_STRING":    req.Query,
		"PATH_INFO":       "/" + req.LogicalPath,
		"PATH_TRANSLATED": x.translated,
	}

	host, port := splitAddr(x.local)
	env["SERVER_NAME"] = host
	env["SERVER_ADDR"] = host
	env["SERVER_PORT"] = port
	if name := req.Header.Get("Host"); name != "" {
		if h, _, err := net.SplitHostPort(name); err == nil {
			name = h
		}
		env["SERVER_NAME"] = name
	}

	if x.internal {
		env["REMOTE_HOST"] = internalRemote
		env["REMOTE_ADDR"] = "127.0.0.1"
		env["REMOTE_PORT"] = "0"
	} else {
		rhost, rport := splitAddr(x.remote)
		env["REMOTE_HOST"] = rhost
		env["REMOTE_ADDR"] = rhost
		env["REMOTE_PORT"] = rport
	}

	if x.res != nil {
		env["SCRIPT_NAME"] = "/" + x.res.Path
		env["SCRIPT_PATH"] = x.res.Name()
	}
	if ct := req.Header.Get("Content-Type"); ct != "" {
		env["CONTENT_TYPE"] = ct
	}
	if req.Method == "POST" {
		env["CONTENT_LENGTH"] = strconv.Itoa(len(req.Body))
	}
	for name, values := range req.Header {
		switch name {
		case "Authorization", "Content-Type", "Content-Length":
			continue
		}
		env["HTTP_"+strings.ToUpper(strings.ReplaceAll(name, "-", "_"))] = strings.Join(values, ", ")
	}
	if x.user != "" {
		env["AUTH_USER"] = x.user
	}
	x.env = env
	return env
}

func splitAddr(addr string) (host, port string) {
	h, p, err := net.SplitHostPort(addr)
	if err != nil {
		return addr, ""
	}
	return h, p
}
