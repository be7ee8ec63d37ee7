package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/aezizhu/tinyweb/internal/handler"
	"github.com/aezizhu/tinyweb/internal/roots"
	"github.com/aezizhu/tinyweb/internal/server"
)

// registerBuiltins adds the handlers compiled into the binary. A root makes
// one reachable by carrying a file of the same name, e.g. Status.class.
func registerBuiltins(c *handler.Catalog, srv *server.Server, resolver *roots.Resolver) {
	c.Register("Status", func() handler.Handler {
		return handler.Func(func(ctx context.Context, in io.Reader, out io.Writer, env handler.Env) error {
			return writeStatus(out, srv, resolver)
		})
	})
}

func writeStatus(w io.Writer, srv *server.Server, resolver *roots.Resolver) error {
	started := time.UnixMilli(srv.StartupTimestamp())
	fmt.Fprintf(w, "Content-Type: text/plain\r\n\r\n")
	fmt.Fprintf(w, "software: %s\n", server.Software)
	fmt.Fprintf(w, "started: %s (%s)\n", started.UTC().Format(time.RFC3339), humanize.Time(started))
	for i, r := range resolver.Roots() {
		fmt.Fprintf(w, "root %d: %s %s\n", i+1, r.Kind, r.Location)
	}
	for _, c := range resolver.Registry().List() {
		fmt.Fprintf(w, "add-on %s: %s %s\n", c.Manifest.ID, c.Manifest.Version, c.Location)
	}
	for _, st := range srv.Pool().Stats() {
		fmt.Fprintf(w, "pool %s: %d idle of %d\n", st.Path, st.Idle, st.Created)
	}
	return nil
}
