package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/aezizhu/tinyweb/internal/roots"
)

const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Bold   = "\033[1m"
)

func colorize(color, msg string) string {
	return color + msg + Reset
}

// PrintRoots lists the active roots in search order with their size, age and
// add-on package.
func PrintRoots(w io.Writer, list []roots.Root) {
	if len(list) == 0 {
		fmt.Fprintln(w, colorize(Yellow, "No roots configured."))
		return
	}
	fmt.Fprintln(w, colorize(Bold, "Roots (search order):"))
	for i, r := range list {
		kind := colorize(Blue, fmt.Sprintf("%-7s", r.Kind))
		fmt.Fprintf(w, "%s %s %s", colorize(Green, fmt.Sprintf("[%d]", i+1)), kind, r.Location)
		if fi, err := os.Stat(r.Location); err == nil {
			if r.Kind == roots.KindArchive {
				fmt.Fprintf(w, " (%s, %s)", humanize.Bytes(uint64(fi.Size())), humanize.Time(fi.ModTime()))
			} else {
				fmt.Fprintf(w, " (%s)", humanize.Time(fi.ModTime()))
			}
		}
		fmt.Fprintln(w)
		if m := r.Manifest; m != nil {
			fmt.Fprintf(w, "    %s %s %s", colorize(Blue, "→"), m.ID, m.Version)
			if m.Requires != "" {
				fmt.Fprintf(w, " (requires %s)", m.Requires)
			}
			fmt.Fprintln(w)
		}
	}
}

// PrintHandlers lists the compiled-in handler classes.
func PrintHandlers(w io.Writer, names []string) {
	if len(names) == 0 {
		return
	}
	fmt.Fprintln(w, "\n"+colorize(Bold, "Handlers:"))
	for _, n := range names {
		fmt.Fprintf(w, "  %s %s\n", colorize(Blue, "•"), n)
	}
}

// PrintListening announces the bound address and the startup timestamp.
func PrintListening(w io.Writer, addr string, startup int64) {
	started := time.UnixMilli(startup)
	fmt.Fprintf(w, "%s http://%s/ (started %s, %s)\n",
		colorize(Green+Bold, "Listening on"), addr, started.Format(time.RFC3339), humanize.Time(started))
}

// PrintError reports a failure on w.
func PrintError(w io.Writer, format string, args ...interface{}) {
	fmt.Fprintf(w, "%s %s\n", colorize(Red+Bold, "Error:"), fmt.Sprintf(format, args...))
}
