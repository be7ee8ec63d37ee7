// Package datastore is a small JSON-file-backed stand-in for the host
// application's data repository: named values (numbers or strings) plus the
// mapping from numeric hierarchy ids to hierarchy paths.
package datastore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// Value is either a number or a string.
type Value struct {
	Number float64
	Text   string
	IsText bool
}

func Num(f float64) Value { return Value{Number: f} }
func Str(s string) Value  { return Value{Text: s, IsText: true} }

func (v Value) String() string {
	if v.IsText {
		return v.Text
	}
	return strconv.FormatFloat(v.Number, 'g', -1, 64)
}

func (v Value) MarshalJSON() ([]byte, error) {
	if v.IsText {
		return json.Marshal(v.Text)
	}
	return json.Marshal(v.Number)
}

func (v *Value) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*v = Str(s)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("value must be a number or a string: %s", b)
	}
	*v = Num(f)
	return nil
}

type Store struct {
	path      string
	mu        sync.RWMutex
	values    map[string]Value
	hierarchy map[string]string
}

type fileFormat struct {
	Values    map[string]Value  `json:"values"`
	Hierarchy map[string]string `json:"hierarchy"`
}

func NewStore(path string) *Store {
	return &Store{
		path:      path,
		values:    make(map[string]Value),
		hierarchy: make(map[string]string),
	}
}

func (s *Store) PathOrDefault() string {
	if s.path != "" {
		return s.path
	}
	home, _ := os.UserHomeDir()
	if home == "" {
		return "/etc/tinyweb/data.json"
	}
	return filepath.Join(home, ".config", "tinyweb", "data.json")
}

func (s *Store) Put(name string, v Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.values == nil {
		s.values = make(map[string]Value)
	}
	s.values[name] = v
}

func (s *Store) Delete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, name)
}

// Lookup answers a named value query.
func (s *Store) Lookup(name string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[name]
	return v, ok
}

// SetPath records the hierarchy path for a numeric id.
func (s *Store) SetPath(id, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hierarchy == nil {
		s.hierarchy = make(map[string]string)
	}
	s.hierarchy[id] = path
}

// PathOf translates a hierarchy id into its hierarchy path.
func (s *Store) PathOf(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.hierarchy[id]
	return p, ok
}

// Load reads the backing file; a missing file leaves the store empty.
func (s *Store) Load() error {
	b, err := os.ReadFile(s.PathOrDefault())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	var ff fileFormat
	if err := json.Unmarshal(b, &ff); err != nil {
		return fmt.Errorf("parse %s: %w", s.PathOrDefault(), err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values = ff.Values
	if s.values == nil {
		s.values = make(map[string]Value)
	}
	s.hierarchy = ff.Hierarchy
	if s.hierarchy == nil {
		s.hierarchy = make(map[string]string)
	}
	return nil
}

func (s *Store) Save() error {
	p := s.PathOrDefault()
	if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
		return err
	}
	s.mu.RLock()
	b, err := json.MarshalIndent(fileFormat{Values: s.values, Hierarchy: s.hierarchy}, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return err
	}
	return os.WriteFile(p, b, 0600)
}
