// Package roots layers an ordered list of directories and zip archives into
// one read-only namespace. The first root holding a path wins.
package roots

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	securejoin "github.com/cyphar/filepath-securejoin"

	"github.com/aezizhu/tinyweb/internal/plugins"
)

var ErrNotFound = errors.New("resource not found")

type Kind int

const (
	KindDir Kind = iota
	KindArchive
)

func (k Kind) String() string {
	if k == KindArchive {
		return "archive"
	}
	return "dir"
}

type Root struct {
	Location string
	Kind     Kind
	Manifest *plugins.Manifest

	arc *archive
}

// archive is an open zip shared by a root and the resources read from it. A
// retired archive is closed once its last resource is closed.
type archive struct {
	zr *zip.ReadCloser

	mu      sync.Mutex
	refs    int
	retired bool
	closed  bool
}

func (a *archive) acquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return false
	}
	a.refs++
	return true
}

func (a *archive) release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refs--
	a.closeIfIdle()
}

func (a *archive) retire() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retired = true
	a.closeIfIdle()
}

func (a *archive) closeIfIdle() {
	if a.retired && a.refs <= 0 && !a.closed {
		a.closed = true
		a.zr.Close()
	}
}

func (a *archive) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// archiveFile releases its archive on Close.
type archiveFile struct {
	fs.File
	once sync.Once
	arc  *archive
}

func (f *archiveFile) Close() error {
	err := f.File.Close()
	f.once.Do(f.arc.release)
	return err
}

// Resource is an opened regular file. The caller closes Body.
type Resource struct {
	Root    *Root
	Path    string
	Body    io.ReadCloser
	ModTime time.Time
	Size    int64
}

// Dir is the root-relative directory holding the resource, "" at the top.
func (r *Resource) Dir() string {
	d := path.Dir(r.Path)
	if d == "." {
		return ""
	}
	return d
}

// LocalPath is the file system path of a resource from a directory root.
func (r *Resource) LocalPath() string {
	if r.Root.Kind != KindDir {
		return ""
	}
	return filepath.Join(r.Root.Location, filepath.FromSlash(r.Path))
}

// Name identifies the resource for logs and SCRIPT_PATH.
func (r *Resource) Name() string {
	if r.Root.Kind == KindArchive {
		return r.Root.Location + "!/" + r.Path
	}
	return r.LocalPath()
}

type Options struct {
	AppVersion     string
	PrimaryArchive string
	Logger         *slog.Logger
}

// Resolver is safe for concurrent use. The root list only changes through
// Recompute.
type Resolver struct {
	locations []string
	opts      Options
	registry  *plugins.Registry

	mu    sync.RWMutex
	roots []*Root
}

func New(locations []string, opts Options) (*Resolver, error) {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	r := &Resolver{
		locations: append([]string(nil), locations...),
		opts:      opts,
		registry:  plugins.NewRegistry(nil),
	}
	if err := r.Recompute(); err != nil {
		return nil, err
	}
	return r, nil
}

// Recompute re-reads every configured location and its add-on manifest.
func (r *Resolver) Recompute() error {
	seen := make(map[string]bool)
	var cands []plugins.Candidate
	byLoc := make(map[string]*Root)

	for _, loc := range r.locations {
		abs, err := filepath.Abs(loc)
		if err != nil {
			return fmt.Errorf("root %s: %w", loc, err)
		}
		if real, err := filepath.EvalSymlinks(abs); err == nil {
			abs = real
		}
		if seen[abs] {
			continue
		}
		seen[abs] = true

		if r.opts.PrimaryArchive != "" && strings.EqualFold(filepath.Base(abs), r.opts.PrimaryArchive) {
			r.opts.Logger.Debug("skipping primary archive", "root", abs)
			continue
		}

		root, err := openRoot(abs)
		if err != nil {
			r.opts.Logger.Warn("ignoring root", "root", abs, "error", err)
			continue
		}
		byLoc[abs] = root
		cands = append(cands, plugins.Candidate{Location: abs, Manifest: root.Manifest})
	}

	selected := plugins.Select(r.opts.AppVersion, cands)
	roots := make([]*Root, 0, len(selected))
	kept := make(map[string]bool, len(selected))
	for _, c := range selected {
		roots = append(roots, byLoc[c.Location])
		kept[c.Location] = true
	}
	for loc, root := range byLoc {
		if !kept[loc] {
			r.opts.Logger.Info("root superseded or incompatible", "root", loc)
			root.close()
		}
	}

	r.mu.Lock()
	old := r.roots
	r.roots = roots
	r.mu.Unlock()
	for _, root := range old {
		root.close()
	}
	r.registry.Reset(selected)
	return nil
}

func openRoot(abs string) (*Root, error) {
	st, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	root := &Root{Location: abs}
	var fsys fs.FS
	switch {
	case st.IsDir():
		root.Kind = KindDir
		fsys = os.DirFS(abs)
	case isArchive(abs):
		zr, err := zip.OpenReader(abs)
		if err != nil {
			return nil, err
		}
		root.Kind = KindArchive
		root.arc = &archive{zr: zr}
		fsys = zr
	default:
		return nil, fmt.Errorf("not a directory or archive")
	}
	m, err := plugins.ReadManifest(fsys)
	if err != nil {
		root.close()
		return nil, err
	}
	root.Manifest = m
	return root, nil
}

func isArchive(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".zip", ".jar":
		return true
	}
	return false
}

// close retires the root. Archives stay open while resources read from them
// are open.
func (root *Root) close() {
	if root.arc != nil {
		root.arc.retire()
	}
}

// Roots returns a snapshot of the active roots in search order.
func (r *Resolver) Roots() []Root {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Root, len(r.roots))
	for i, root := range r.roots {
		out[i] = *root
	}
	return out
}

// Registry lists the add-on packages backing the active roots.
func (r *Resolver) Registry() *plugins.Registry {
	return r.registry
}

// Resolve opens p from the first root that has it as a regular file.
func (r *Resolver) Resolve(p string) (*Resource, error) {
	p = cleanPath(p)
	if p == "" {
		return nil, ErrNotFound
	}
	// held while opening so a concurrent Recompute cannot retire a root
	// between lookup and open
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, root := range r.roots {
		res, err := root.open(p)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, fs.ErrNotExist) && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("open %s in %s: %w", p, root.Location, err)
		}
	}
	return nil, ErrNotFound
}

func (root *Root) open(p string) (*Resource, error) {
	var f fs.File
	switch root.Kind {
	case KindArchive:
		if !root.arc.acquire() {
			return nil, fs.ErrNotExist
		}
		zf, err := root.arc.zr.Open(p)
		if err != nil {
			root.arc.release()
			return nil, err
		}
		f = &archiveFile{File: zf, arc: root.arc}
	default:
		full, err := securejoin.SecureJoin(root.Location, filepath.FromSlash(p))
		if err != nil {
			return nil, err
		}
		of, err := os.Open(full)
		if err != nil {
			return nil, err
		}
		f = of
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if !st.Mode().IsRegular() {
		f.Close()
		return nil, ErrNotFound
	}
	return &Resource{
		Root:    root,
		Path:    p,
		Body:    f,
		ModTime: st.ModTime(),
		Size:    st.Size(),
	}, nil
}

// Close retires every root. Archives close as soon as no resource read from
// them is open.
func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, root := range r.roots {
		root.close()
	}
	r.roots = nil
	return nil
}

func cleanPath(p string) string {
	return strings.TrimPrefix(path.Clean("/"+p), "/")
}
