package testutil

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aezizhu/tinyweb/internal/config"
)

func TestAssertNoError(t *testing.T) {
	AssertNoError(t, nil)
}

func TestAssertError(t *testing.T) {
	AssertError(t, errors.New("test error"))
}

func TestAssertEqual(t *testing.T) {
	AssertEqual(t, 1, 1)
	AssertEqual(t, "test", "test")
}

func TestAssertContains(t *testing.T) {
	AssertContains(t, "hello world", "world")
	AssertNotContains(t, "hello world", "foo")
}

func TestAssertBools(t *testing.T) {
	AssertTrue(t, true)
	AssertFalse(t, false)
}

func TestTempConfig(t *testing.T) {
	cfg := DefaultTestConfig("/srv/help")
	path := TempConfig(t, cfg)

	AssertTrue(t, FileExists(path))
	loaded, err := config.Load(path)
	AssertNoError(t, err)
	AssertEqual(t, loaded.AppName, "Test Dashboard")
	AssertEqual(t, loaded.Port, 0)
}

func TestTempRoot(t *testing.T) {
	dir := TempRoot(t, map[string]string{
		"help/about.htm": "<p>about</p>",
		"top.txt":        "top",
	})

	data, err := os.ReadFile(filepath.Join(dir, "help", "about.htm"))
	AssertNoError(t, err)
	AssertEqual(t, string(data), "<p>about</p>")
	AssertTrue(t, FileExists(filepath.Join(dir, "top.txt")))
}

func TestWriteZip(t *testing.T) {
	path := WriteZip(t, filepath.Join(t.TempDir(), "pkg.zip"), map[string]string{
		"help/index.htm": "zipped",
	})

	zr, err := zip.OpenReader(path)
	AssertNoError(t, err)
	defer zr.Close()
	f, err := zr.Open("help/index.htm")
	AssertNoError(t, err)
	defer f.Close()
	AssertEqual(t, ReadAllString(t, f), "zipped")
}

func TestTempFile(t *testing.T) {
	path := TempFile(t, "content")
	data, err := os.ReadFile(path)
	AssertNoError(t, err)
	AssertEqual(t, string(data), "content")
}

func TestStripAnsi(t *testing.T) {
	AssertEqual(t, StripAnsi("\033[31mred\033[0m"), "red")
	AssertEqual(t, StripAnsi(strings.Repeat("\033[1m", 2)+"bold"), "bold")
}
