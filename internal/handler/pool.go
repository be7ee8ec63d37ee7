package handler

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"sync"

	"github.com/aezizhu/tinyweb/internal/plugins"
)

var (
	ErrNoHandler    = errors.New("no handler for class")
	ErrIncompatible = errors.New("class is not a handler")
)

// Catalog maps class names to handler factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register binds name (root-relative, without the handler suffix) to f.
func (c *Catalog) Register(name string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = f
}

func (c *Catalog) lookup(name string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[name]
	return f, ok
}

// Names lists registered classes.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.factories))
	for n := range c.factories {
		names = append(names, n)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Ref identifies the handler file behind a request.
type Ref struct {
	// Path is the logical request path; instances are pooled per Path.
	Path string
	// Dir identifies the containing directory (root and subdirectory).
	Dir string
	// Class is the root-relative file name without the handler suffix.
	Class string
	// LocalPath is the file on disk, empty when served from an archive.
	LocalPath string
	// Package is the add-on id of the root holding the file, empty for roots
	// without a manifest. Location is that root.
	Package  string
	Location string
}

// ExternalFunc builds a factory for a handler file that is not in the
// catalog. It returns ErrNoHandler when the file cannot be run.
type ExternalFunc func(localPath string) (Factory, error)

// loader resolves class names for one directory, so sibling handlers resolve
// through the same factories.
type loader struct {
	dir     string
	mu      sync.Mutex
	classes map[string]Factory
}

func (l *loader) load(p *Pool, ref Ref) (Factory, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if f, ok := l.classes[ref.Class]; ok {
		return f, nil
	}

	f, ok := p.catalog.lookup(ref.Class)
	if !ok {
		f, ok = p.catalog.lookup(path.Base(ref.Class))
	}
	if !ok {
		if ref.LocalPath == "" || p.external == nil {
			return nil, fmt.Errorf("%w %s", ErrNoHandler, ref.Class)
		}
		var err error
		if f, err = p.external(ref.LocalPath); err != nil {
			return nil, err
		}
	}
	if f == nil {
		return nil, fmt.Errorf("%w: %s", ErrIncompatible, ref.Class)
	}
	l.classes[ref.Class] = f
	return f, nil
}

type entry struct {
	factory Factory
	mu      sync.Mutex
	free    []Handler
	created int
}

// Packages lists the add-ons whose handlers may run.
type Packages interface {
	Installed(id string) (plugins.Candidate, bool)
}

// Lease is a checked-out handler instance. Give it back with Release.
type Lease struct {
	Handler
	path  string
	entry *entry
}

// Pool hands out handler instances. Instances are reused across requests but
// never shared by two requests at the same time.
type Pool struct {
	catalog  *Catalog
	external ExternalFunc
	packages Packages

	mu      sync.Mutex
	loaders map[string]*loader
	entries map[string]*entry
}

// NewPool builds a pool over catalog. external may be nil. With a nil
// packages every add-on is trusted.
func NewPool(catalog *Catalog, external ExternalFunc, packages Packages) *Pool {
	if catalog == nil {
		catalog = NewCatalog()
	}
	return &Pool{
		catalog:  catalog,
		external: external,
		packages: packages,
		loaders:  make(map[string]*loader),
		entries:  make(map[string]*entry),
	}
}

// Acquire checks out an idle instance for ref.Path or constructs a new one.
// Handler files of an add-on that is not the installed copy fail with
// ErrNoHandler.
func (p *Pool) Acquire(ref Ref) (*Lease, error) {
	if err := p.trusted(ref); err != nil {
		return nil, err
	}
	p.mu.Lock()
	e := p.entries[ref.Path]
	l := p.loaders[ref.Dir]
	if l == nil {
		l = &loader{dir: ref.Dir, classes: make(map[string]Factory)}
		p.loaders[ref.Dir] = l
	}
	p.mu.Unlock()

	if e == nil {
		f, err := l.load(p, ref)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		if e = p.entries[ref.Path]; e == nil {
			e = &entry{factory: f}
			p.entries[ref.Path] = e
		}
		p.mu.Unlock()
	}
	h, err := e.checkout(ref.Class)
	if err != nil {
		return nil, err
	}
	return &Lease{Handler: h, path: ref.Path, entry: e}, nil
}

func (p *Pool) trusted(ref Ref) error {
	if p.packages == nil || ref.Package == "" {
		return nil
	}
	c, ok := p.packages.Installed(ref.Package)
	if !ok || (ref.Location != "" && c.Location != ref.Location) {
		return fmt.Errorf("%w %s: add-on %s not installed", ErrNoHandler, ref.Class, ref.Package)
	}
	return nil
}

func (e *entry) checkout(class string) (Handler, error) {
	e.mu.Lock()
	if n := len(e.free); n > 0 {
		h := e.free[n-1]
		e.free = e.free[:n-1]
		e.mu.Unlock()
		return h, nil
	}
	e.mu.Unlock()

	h := e.factory()
	if h == nil {
		return nil, fmt.Errorf("%w: %s", ErrIncompatible, class)
	}
	e.mu.Lock()
	e.created++
	e.mu.Unlock()
	return h, nil
}

// Release returns the leased instance to its freelist. Instances checked out
// before a Clear are dropped.
func (p *Pool) Release(l *Lease) {
	if l == nil || l.entry == nil {
		return
	}
	p.mu.Lock()
	current := p.entries[l.path] == l.entry
	p.mu.Unlock()
	e := l.entry
	l.entry = nil
	if !current {
		return
	}
	e.mu.Lock()
	e.free = append(e.free, l.Handler)
	e.mu.Unlock()
}

// Clear drops every loader and pooled instance so handlers are looked up again.
func (p *Pool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loaders = make(map[string]*loader)
	p.entries = make(map[string]*entry)
}

type EntryStats struct {
	Path    string
	Idle    int
	Created int
}

func (p *Pool) Stats() []EntryStats {
	p.mu.Lock()
	out := make([]EntryStats, 0, len(p.entries))
	for path, e := range p.entries {
		e.mu.Lock()
		out = append(out, EntryStats{Path: path, Idle: len(e.free), Created: e.created})
		e.mu.Unlock()
	}
	p.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}
