// Package mimetype maps resource names to content types and decides which
// resources are handler scripts rather than data.
package mimetype

import (
	"path"
	"strings"
)

const (
	// ServerParsed marks HTML that must run through the preprocessor.
	ServerParsed = "text/x-server-parsed-html"
	// HandlerType marks a resource that is executed instead of served.
	HandlerType = "application/x-tinyweb-handler"

	Binary = "application/octet-stream"
	Text   = "text/plain"
	HTML   = "text/html"

	// SniffLen is how many leading bytes Sniff and the preprocess marker check look at.
	SniffLen = 1024
)

var defaultTypes = map[string]string{
	"7z":    "application/x-7z-compressed",
	"bmp":   "image/x-ms-bmp",
	"css":   "text/css",
	"csv":   "text/csv",
	"gif":   "image/gif",
	"htm":   HTML,
	"html":  HTML,
	"ico":   "image/x-icon",
	"jar":   "application/java-archive",
	"jpg":   "image/jpeg",
	"jpeg":  "image/jpeg",
	"js":    "application/javascript",
	"json":  "application/json",
	"pdf":   "application/pdf",
	"png":   "image/png",
	"rtf":   "application/rtf",
	"shtm":  ServerParsed,
	"shtml": ServerParsed,
	"svg":   "image/svg+xml",
	"txt":   Text,
	"webp":  "image/webp",
	"xls":   "application/vnd.ms-excel",
	"xml":   "text/xml",
	"zip":   "application/zip",
}

// Class is the outcome of classifying one resource.
type Class struct {
	ContentType string
	Executable  bool
}

// Registry is read-only after New and safe for concurrent use.
type Registry struct {
	types         map[string]string
	handlerSuffix string
	assetDirs     []string
}

// New builds a registry from the built-in table plus overrides.
// Override keys may be given with or without the leading dot.
func New(overrides map[string]string, handlerSuffix string, assetDirs []string) *Registry {
	r := &Registry{
		types:         make(map[string]string, len(defaultTypes)+len(overrides)),
		handlerSuffix: strings.ToLower(handlerSuffix),
	}
	for ext, t := range defaultTypes {
		r.types[ext] = t
	}
	for ext, t := range overrides { // overwrite default
		r.types[strings.ToLower(strings.TrimPrefix(ext, "."))] = t
	}
	for _, d := range assetDirs {
		d = strings.Trim(d, "/")
		if d != "" {
			r.assetDirs = append(r.assetDirs, d+"/")
		}
	}
	return r
}

// TypeFor reports the content type registered for name's extension.
func (r *Registry) TypeFor(name string) (string, bool) {
	ext := path.Ext(name)
	if ext == "" {
		return "", false
	}
	t, ok := r.types[strings.ToLower(ext[1:])]
	return t, ok
}

// IsHandler reports whether p names a handler script. Handler-suffixed files
// inside an asset directory are plain downloads.
func (r *Registry) IsHandler(p string) bool {
	if r.handlerSuffix == "" || !strings.HasSuffix(strings.ToLower(p), r.handlerSuffix) {
		return false
	}
	p = strings.TrimPrefix(p, "/")
	for _, d := range r.assetDirs {
		if strings.HasPrefix(p, d) || strings.Contains(p, "/"+d) {
			return false
		}
	}
	return true
}

// Classify combines handler detection, the extension table and sniffing.
// prefix may be nil when the content has not been read yet.
func (r *Registry) Classify(p string, prefix []byte) Class {
	if r.IsHandler(p) {
		return Class{ContentType: HandlerType, Executable: true}
	}
	if t, ok := r.TypeFor(p); ok {
		return Class{ContentType: t}
	}
	if strings.HasSuffix(strings.ToLower(p), r.handlerSuffix) && r.handlerSuffix != "" {
		return Class{ContentType: Binary}
	}
	return Class{ContentType: Sniff(prefix)}
}

// Sniff treats any control byte other than common whitespace as binary.
func Sniff(prefix []byte) string {
	if len(prefix) > SniffLen {
		prefix = prefix[:SniffLen]
	}
	for _, b := range prefix {
		if b < 0x20 || b == 0x7f {
			switch b {
			case '\t', '\n', '\r', '\f', 0x1b:
				continue
			}
			return Binary
		}
	}
	return Text
}

// StripHandlerSuffix returns the class name a handler file stands for.
func (r *Registry) StripHandlerSuffix(p string) string {
	if len(p) >= len(r.handlerSuffix) && strings.EqualFold(p[len(p)-len(r.handlerSuffix):], r.handlerSuffix) {
		return p[:len(p)-len(r.handlerSuffix)]
	}
	return p
}
