// Package plugins reads add-on package manifests and decides which of several
// installed copies of the same add-on is active.
package plugins

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"github.com/hashicorp/go-version"
)

// ManifestName is the file at the top of a root that describes its add-on.
const ManifestName = "addon.json"

type Manifest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
	// Requires is a version constraint on the host application, e.g. ">= 1.2".
	Requires string `json:"requires"`
}

// ReadManifest returns nil, nil when fsys carries no manifest.
func ReadManifest(fsys fs.FS) (*Manifest, error) {
	b, err := fs.ReadFile(fsys, ManifestName)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ManifestName, err)
	}
	m.ID = strings.TrimSpace(m.ID)
	if m.ID == "" {
		return nil, fmt.Errorf("%s: missing id", ManifestName)
	}
	return &m, nil
}

// Compatible reports whether the add-on accepts the given host version.
// An empty requirement accepts everything; an unparsable one accepts nothing.
func (m *Manifest) Compatible(appVersion string) bool {
	if strings.TrimSpace(m.Requires) == "" {
		return true
	}
	c, err := version.NewConstraint(m.Requires)
	if err != nil {
		return false
	}
	v, err := version.NewVersion(appVersion)
	if err != nil {
		return false
	}
	return c.Check(v)
}

func (m *Manifest) parsedVersion() *version.Version {
	if v, err := version.NewVersion(m.Version); err == nil {
		return v
	}
	return version.Must(version.NewVersion("0"))
}

// Candidate is one location that may hold an add-on.
type Candidate struct {
	Location string
	Manifest *Manifest
}

// Select keeps locations without a manifest untouched and, for each add-on id,
// only the highest version compatible with appVersion. Order is preserved.
func Select(appVersion string, cands []Candidate) []Candidate {
	best := make(map[string]int)
	for i, c := range cands {
		if c.Manifest == nil || !c.Manifest.Compatible(appVersion) {
			continue
		}
		j, ok := best[c.Manifest.ID]
		if !ok || c.Manifest.parsedVersion().GreaterThan(cands[j].Manifest.parsedVersion()) {
			best[c.Manifest.ID] = i
		}
	}

	out := make([]Candidate, 0, len(cands))
	for i, c := range cands {
		if c.Manifest == nil {
			out = append(out, c)
			continue
		}
		if j, ok := best[c.Manifest.ID]; ok && j == i {
			out = append(out, c)
		}
	}
	return out
}

// Registry records the add-ons that survived selection.
type Registry struct {
	mu       sync.RWMutex
	packages map[string]Candidate
}

func NewRegistry(selected []Candidate) *Registry {
	r := &Registry{packages: make(map[string]Candidate)}
	r.Reset(selected)
	return r
}

func (r *Registry) Reset(selected []Candidate) {
	packages := make(map[string]Candidate)
	for _, c := range selected {
		if c.Manifest != nil {
			packages[c.Manifest.ID] = c
		}
	}
	r.mu.Lock()
	r.packages = packages
	r.mu.Unlock()
}

// Installed returns the active copy of the add-on with the given id.
func (r *Registry) Installed(id string) (Candidate, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.packages[id]
	return c, ok
}

// List returns active add-ons sorted by id.
func (r *Registry) List() []Candidate {
	r.mu.RLock()
	out := make([]Candidate, 0, len(r.packages))
	for _, c := range r.packages {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Manifest.ID < out[j].Manifest.ID })
	return out
}
