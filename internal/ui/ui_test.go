package ui

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/aezizhu/tinyweb/internal/plugins"
	"github.com/aezizhu/tinyweb/internal/roots"
	"github.com/aezizhu/tinyweb/internal/testutil"
)

func TestPrintRoots(t *testing.T) {
	dir := t.TempDir()
	archive := testutil.WriteZip(t, filepath.Join(t.TempDir(), "reports.zip"), map[string]string{
		"reports/week.htm": "<html>week</html>",
	})

	var buf bytes.Buffer
	PrintRoots(&buf, []roots.Root{
		{Location: dir, Kind: roots.KindDir},
		{Location: archive, Kind: roots.KindArchive, Manifest: &plugins.Manifest{ID: "reports", Version: "1.2.0", Requires: ">= 1.0"}},
	})
	output := testutil.StripAnsi(buf.String())

	testutil.AssertContains(t, output, "Roots (search order):")
	testutil.AssertContains(t, output, "[1] dir     "+dir)
	testutil.AssertContains(t, output, "[2] archive "+archive)
	testutil.AssertContains(t, output, "B, ")
	testutil.AssertContains(t, output, "reports 1.2.0 (requires >= 1.0)")
}

func TestPrintRoots_Empty(t *testing.T) {
	var buf bytes.Buffer
	PrintRoots(&buf, nil)
	testutil.AssertContains(t, testutil.StripAnsi(buf.String()), "No roots configured.")
}

func TestPrintHandlers(t *testing.T) {
	var buf bytes.Buffer
	PrintHandlers(&buf, nil)
	testutil.AssertEqual(t, buf.Len(), 0)

	PrintHandlers(&buf, []string{"help/Search", "Status"})
	output := testutil.StripAnsi(buf.String())
	testutil.AssertContains(t, output, "Handlers:")
	testutil.AssertContains(t, output, "• help/Search")
	testutil.AssertContains(t, output, "• Status")
}

func TestPrintListening(t *testing.T) {
	var buf bytes.Buffer
	startup := time.Now().Add(-2 * time.Minute).UnixMilli()
	PrintListening(&buf, "127.0.0.1:2468", startup)
	output := testutil.StripAnsi(buf.String())

	testutil.AssertContains(t, output, "Listening on http://127.0.0.1:2468/")
	testutil.AssertContains(t, output, "2 minutes ago")
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	PrintError(&buf, "bad root %q", "/x")
	testutil.AssertEqual(t, testutil.StripAnsi(buf.String()), "Error: bad root \"/x\"\n")
}

func TestColorize(t *testing.T) {
	testutil.AssertEqual(t, colorize(Green, "y"), Green+"y"+Reset)
}
