package datastore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func TestStore_PutLookupDelete(t *testing.T) {
	store := NewStore("")

	store.Put("/Project/_Password_", Str("*:abc"))
	v, ok := store.Lookup("/Project/_Password_")
	if !ok {
		t.Fatal("expected to find value, but didn't")
	}
	if !v.IsText || v.Text != "*:abc" {
		t.Errorf("unexpected value %+v", v)
	}

	store.Delete("/Project/_Password_")
	if _, ok := store.Lookup("/Project/_Password_"); ok {
		t.Fatal("expected value to be deleted, but it was found")
	}
}

func TestStore_Hierarchy(t *testing.T) {
	store := NewStore("")
	store.SetPath("123", "/Project/Task")

	if p, ok := store.PathOf("123"); !ok || p != "/Project/Task" {
		t.Errorf("got %q, %v", p, ok)
	}
	if _, ok := store.PathOf("999"); ok {
		t.Error("expected unknown id to be absent")
	}
}

func TestStore_SaveLoad(t *testing.T) {
	dataFile := filepath.Join(t.TempDir(), "nested", "data.json")

	store1 := NewStore(dataFile)
	store1.Put("/A/_Password_", Num(0))
	store1.Put("/B/_Password_", Str("u:hash"))
	store1.SetPath("7", "/A")
	if err := store1.Save(); err != nil {
		t.Fatalf("failed to save store: %v", err)
	}

	store2 := NewStore(dataFile)
	if err := store2.Load(); err != nil {
		t.Fatalf("failed to load store: %v", err)
	}

	if v, ok := store2.Lookup("/A/_Password_"); !ok || v.IsText || v.Number != 0 {
		t.Errorf("unexpected numeric value %+v %v", v, ok)
	}
	if v, ok := store2.Lookup("/B/_Password_"); !ok || v.Text != "u:hash" {
		t.Errorf("unexpected text value %+v %v", v, ok)
	}
	if p, ok := store2.PathOf("7"); !ok || p != "/A" {
		t.Errorf("unexpected hierarchy path %q %v", p, ok)
	}
}

func TestStore_Load_NotExist(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "missing.json"))
	if err := store.Load(); err != nil {
		t.Fatalf("loading a non-existent file should not produce an error, but got: %v", err)
	}
	if len(store.values) != 0 {
		t.Errorf("expected empty store, got %d values", len(store.values))
	}
}

func TestStore_Load_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	os.WriteFile(path, []byte(`{"values":{"x":[1,2]}}`), 0600)
	if err := NewStore(path).Load(); err == nil {
		t.Error("expected error for non-scalar value")
	}
}

func TestStore_PathOrDefault(t *testing.T) {
	if got := NewStore("/custom/data.json").PathOrDefault(); got != "/custom/data.json" {
		t.Errorf("expected custom path, but got %s", got)
	}

	defaultPath := NewStore("").PathOrDefault()
	home, _ := os.UserHomeDir()
	expectedPath := filepath.Join(home, ".config", "tinyweb", "data.json")
	if home == "" {
		expectedPath = "/etc/tinyweb/data.json"
	}
	if defaultPath != expectedPath {
		t.Errorf("expected default path '%s', but got '%s'", expectedPath, defaultPath)
	}
}

func TestStore_Save_DirIsFile(t *testing.T) {
	tempDir := t.TempDir()
	fileAsDir := filepath.Join(tempDir, "file")
	os.WriteFile(fileAsDir, []byte("test"), 0600)

	s := NewStore(filepath.Join(fileAsDir, "data.json"))
	if err := s.Save(); err == nil {
		t.Error("expected error when directory is a file")
	}
}

func TestStore_Concurrency(t *testing.T) {
	store := NewStore("")
	var wg sync.WaitGroup
	numRoutines := 100

	for i := 0; i < numRoutines; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			store.Put(fmt.Sprintf("v-%d", i), Num(float64(i)))
		}(i)
		go func(i int) {
			defer wg.Done()
			store.Lookup(fmt.Sprintf("v-%d", i))
		}(i)
	}
	wg.Wait()

	if len(store.values) != numRoutines {
		t.Errorf("expected %d values in the store, but got %d", numRoutines, len(store.values))
	}
}

func TestStore_Put_NilMap(t *testing.T) {
	s := &Store{}
	s.Put("x", Num(1))
	s.SetPath("1", "/x")
	if len(s.values) != 1 || len(s.hierarchy) != 1 {
		t.Error("expected entries to be added even if maps were nil")
	}
}

func TestValue_JSON(t *testing.T) {
	var got map[string]Value
	if err := json.Unmarshal([]byte(`{"a":1.5,"b":"text"}`), &got); err != nil {
		t.Fatal(err)
	}
	if got["a"].IsText || got["a"].Number != 1.5 {
		t.Errorf("unexpected a %+v", got["a"])
	}
	if !got["b"].IsText || got["b"].String() != "text" {
		t.Errorf("unexpected b %+v", got["b"])
	}
	if Num(2).String() != "2" {
		t.Errorf("unexpected number formatting %q", Num(2).String())
	}
}
