// Package preprocess expands server-parsed HTML.
//
// Supported directives:
//
//	<!--#echo var="NAME" [encoding="none"] -->
//	<!--#set var="NAME" value="VALUE" -->
//	<!--#include virtual="/uri" -->
//
// echo reads the handler environment (and earlier set directives). include
// fetches another page through the in-process invoker of the serving request.
package preprocess

import (
	"context"
	"html"
	"path"
	"regexp"
	"strings"

	"github.com/aezizhu/tinyweb/internal/handler"
)

// ErrorText replaces a directive that could not be processed.
const ErrorText = "[an error occurred while processing this directive]"

var (
	directiveRe = regexp.MustCompile(`<!--#([a-z]+)((?:\s+[a-z]+="[^"]*")*)\s*-->`)
	attrRe      = regexp.MustCompile(`([a-z]+)="([^"]*)"`)
)

type Preprocessor struct {
	marker string
}

// New returns a preprocessor that strips marker from its output.
func New(marker string) *Preprocessor {
	return &Preprocessor{marker: marker}
}

func (p *Preprocessor) Preprocess(ctx context.Context, text string, env handler.Env) (string, error) {
	if p.marker != "" {
		text = strings.Replace(text, p.marker, "", 1)
	}
	vars := make(map[string]string)

	var b strings.Builder
	last := 0
	for _, m := range directiveRe.FindAllStringSubmatchIndex(text, -1) {
		b.WriteString(text[last:m[0]])
		last = m[1]

		if err := ctx.Err(); err != nil {
			return "", err
		}
		name := text[m[2]:m[3]]
		attrs := parseAttrs(text[m[4]:m[5]])
		b.WriteString(p.directive(ctx, name, attrs, env, vars))
	}
	b.WriteString(text[last:])
	return b.String(), nil
}

func (p *Preprocessor) directive(ctx context.Context, name string, attrs map[string]string, env handler.Env, vars map[string]string) string {
	switch name {
	case "echo":
		key, ok := attrs["var"]
		if !ok {
			return ErrorText
		}
		v, ok := vars[key]
		if !ok {
			v = env.Get(key)
		}
		if attrs["encoding"] == "none" {
			return v
		}
		return html.EscapeString(v)
	case "set":
		key, ok := attrs["var"]
		if !ok {
			return ErrorText
		}
		vars[key] = attrs["value"]
		return ""
	case "include":
		uri, ok := attrs["virtual"]
		if !ok {
			return ErrorText
		}
		inv, ok := handler.InvokerFrom(ctx)
		if !ok {
			return ErrorText
		}
		body, err := inv.Fetch(ctx, resolveURI(uri, env))
		if err != nil {
			return ErrorText
		}
		return string(body)
	default:
		return ErrorText
	}
}

func parseAttrs(s string) map[string]string {
	attrs := make(map[string]string)
	for _, m := range attrRe.FindAllStringSubmatch(s, -1) {
		attrs[m[1]] = html.UnescapeString(m[2])
	}
	return attrs
}

// resolveURI makes a relative include URI absolute against the including page.
func resolveURI(uri string, env handler.Env) string {
	if strings.HasPrefix(uri, "/") {
		return uri
	}
	dir := path.Dir("/" + env.Get("PATH_INFO"))
	rel, query, hasQuery := strings.Cut(uri, "?")
	out := path.Join(dir, rel)
	if hasQuery {
		out += "?" + query
	}
	return out
}
