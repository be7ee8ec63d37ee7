package roots

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settle coalesces bursts of file events (editors, unzip) into one callback.
const settle = 250 * time.Millisecond

// Watch calls onChange after files under a directory root, or an archive
// root itself, change. Watches follow the active roots: they are re-armed
// after every onChange, which usually recomputes the roots. Archives are
// watched through their directory so that replacing one by rename is seen.
// Watch returns once the watcher is set up; watching stops when ctx is done.
func (r *Resolver) Watch(ctx context.Context, onChange func()) error {
	wt, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w := &watcher{r: r, wt: wt, watched: make(map[string]bool)}
	if err := w.arm(); err != nil {
		wt.Close()
		return err
	}
	go w.run(ctx, onChange)
	return nil
}

type watcher struct {
	r  *Resolver
	wt *fsnotify.Watcher

	mu       sync.Mutex
	watched  map[string]bool
	dirs     []string
	archives map[string]bool
}

// arm watches every directory of the current roots and drops watches that no
// root needs any more.
func (w *watcher) arm() error {
	want := make(map[string]bool)
	var dirs []string
	archives := make(map[string]bool)
	for _, root := range w.r.Roots() {
		if root.Kind == KindArchive {
			archives[root.Location] = true
			want[filepath.Dir(root.Location)] = true
			continue
		}
		dirs = append(dirs, root.Location)
		filepath.WalkDir(root.Location, func(p string, d fs.DirEntry, err error) error {
			if err == nil && d.IsDir() {
				want[p] = true
			}
			return nil
		})
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	for p := range w.watched {
		if !want[p] {
			w.wt.Remove(p)
			delete(w.watched, p)
		}
	}
	for p := range want {
		if w.watched[p] {
			continue
		}
		if err := w.wt.Add(p); err != nil {
			return err
		}
		w.watched[p] = true
	}
	w.dirs, w.archives = dirs, archives
	return nil
}

// relevant reports whether name lies in a directory root or is an archive
// root. Other files next to an archive are ignored.
func (w *watcher) relevant(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.archives[name] {
		return true
	}
	for _, d := range w.dirs {
		if name == d || strings.HasPrefix(name, d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func (w *watcher) run(ctx context.Context, onChange func()) {
	defer w.wt.Close()
	log := w.r.opts.Logger

	var mu sync.Mutex
	var timer *time.Timer
	fire := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(settle, func() {
			onChange()
			if ctx.Err() != nil {
				return
			}
			if err := w.arm(); err != nil {
				log.Warn("re-arming root watches failed", "error", err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			mu.Lock()
			if timer != nil {
				timer.Stop()
			}
			mu.Unlock()
			return
		case event, ok := <-w.wt.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}
			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				// the kernel drops watches on removed directories
				w.mu.Lock()
				delete(w.watched, event.Name)
				w.mu.Unlock()
			}
			if !w.relevant(event.Name) {
				continue
			}
			log.Debug("root changed", "name", event.Name, "op", event.Op.String())
			if event.Has(fsnotify.Create) {
				if st, err := os.Stat(event.Name); err == nil && st.IsDir() {
					w.mu.Lock()
					if w.wt.Add(event.Name) == nil {
						w.watched[event.Name] = true
					}
					w.mu.Unlock()
				}
			}
			fire()
		case err, ok := <-w.wt.Errors:
			if !ok {
				return
			}
			log.Warn("watcher error", "error", err)
		}
	}
}
