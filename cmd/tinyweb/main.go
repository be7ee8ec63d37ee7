package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aezizhu/tinyweb/internal/config"
	"github.com/aezizhu/tinyweb/internal/datastore"
	"github.com/aezizhu/tinyweb/internal/executor"
	"github.com/aezizhu/tinyweb/internal/handler"
	"github.com/aezizhu/tinyweb/internal/logging"
	"github.com/aezizhu/tinyweb/internal/mimetype"
	"github.com/aezizhu/tinyweb/internal/policy"
	"github.com/aezizhu/tinyweb/internal/preprocess"
	"github.com/aezizhu/tinyweb/internal/roots"
	"github.com/aezizhu/tinyweb/internal/server"
	"github.com/aezizhu/tinyweb/internal/ui"
)

const version = "0.1.0"

// For testing, allow overriding signal delivery
var notifySignals = func(c chan<- os.Signal) {
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}

var stopSignals = func(c chan<- os.Signal) {
	signal.Stop(c)
}

// stringList collects a repeatable flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tinyweb", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var rootFlags stringList
	var (
		configPath  = fs.String("config", "", "path to JSON config file")
		port        = fs.Int("port", 0, "TCP port to listen on")
		listen      = fs.String("listen", "", "address to bind")
		allowRemote = fs.Bool("allow-remote", false, "accept connections from other hosts")
		dataFile    = fs.String("data", "", "data store file with passwords and hierarchy paths")
		accessLog   = fs.String("access-log", "", "JSON-lines access log file")
		watch       = fs.Bool("watch", false, "clear caches when files under the roots change")
		listRoots   = fs.Bool("list-roots", false, "print the active roots and handlers and exit")
		fetch       = fs.String("fetch", "", "serve an in-process request for `uri` and print the body (- reads URIs from stdin)")
		showVersion = fs.Bool("version", false, "print version and exit")
	)
	fs.Var(&rootFlags, "root", "directory or zip archive to serve (repeatable, searched in order)")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *showVersion {
		fmt.Fprintf(stdout, "tinyweb version %s\n", version)
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Track which flags were explicitly set
	setFlags := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	if setFlags["port"] {
		cfg.Port = *port
	}
	if setFlags["listen"] {
		cfg.Listen = *listen
	}
	if setFlags["root"] {
		cfg.Roots = rootFlags
	}
	if setFlags["allow-remote"] {
		cfg.AllowRemote = *allowRemote
	}
	if setFlags["data"] {
		cfg.DataFile = *dataFile
	}
	if setFlags["access-log"] {
		cfg.AccessLog = *accessLog
	}
	if setFlags["watch"] {
		cfg.WatchRoots = *watch
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Configuration error: %v\n", err)
		return 1
	}

	log := logging.NewLogger(stderr, cfg.LogLevel)

	store := datastore.NewStore(cfg.DataFile)
	if err := store.Load(); err != nil {
		ui.PrintError(stderr, "load data store %s: %v", store.PathOrDefault(), err)
		return 1
	}

	resolver, err := roots.New(cfg.Roots, roots.Options{
		AppVersion:     cfg.AppVersion,
		PrimaryArchive: cfg.PrimaryArchive,
		Logger:         log,
	})
	if err != nil {
		ui.PrintError(stderr, "%v", err)
		return 1
	}
	defer resolver.Close()

	catalog := handler.NewCatalog()
	srv, err := server.New(cfg, server.Deps{
		Resolver:     resolver,
		Mime:         mimetype.New(cfg.MimeTypes, cfg.HandlerSuffix, cfg.AssetDirs),
		Pool:         handler.NewPool(catalog, executor.New(cfg).Factory, resolver.Registry()),
		Policy:       policy.New(store, cfg.AllowRemote),
		Hierarchy:    store,
		Preprocessor: preprocess.New(cfg.PreprocessMarker),
		AccessLog:    logging.New(cfg.AccessLog),
		Logger:       log,
	})
	if err != nil {
		ui.PrintError(stderr, "%v", err)
		return 1
	}
	registerBuiltins(catalog, srv, resolver)

	if *listRoots {
		ui.PrintRoots(stdout, resolver.Roots())
		ui.PrintHandlers(stdout, catalog.Names())
		return 0
	}

	if *fetch != "" {
		timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
		if *fetch != "-" {
			return runFetch(srv, *fetch, timeout, stdout, stderr)
		}
		code := 0
		sc := bufio.NewScanner(stdin)
		for sc.Scan() {
			uri := strings.TrimSpace(sc.Text())
			if uri == "" {
				continue
			}
			if runFetch(srv, uri, timeout, stdout, stderr) != 0 {
				code = 1
			}
		}
		return code
	}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		ui.PrintError(stderr, "listen %s: %v", cfg.Addr(), err)
		return 1
	}
	ui.PrintListening(stdout, ln.Addr().String(), srv.StartupTimestamp())
	return serve(srv, resolver, ln, cfg.WatchRoots, log, stderr)
}

func runFetch(srv *server.Server, uri string, timeout time.Duration, stdout, stderr io.Writer) int {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	body, err := srv.Fetch(ctx, uri)
	if err != nil {
		var serr *server.StatusError
		if errors.As(err, &serr) {
			stdout.Write(serr.Body)
		}
		ui.PrintError(stderr, "%v", err)
		return 1
	}
	stdout.Write(body)
	return 0
}

// serve runs until SIGINT or SIGTERM. SIGHUP clears the caches.
func serve(srv *server.Server, resolver *roots.Resolver, ln net.Listener, watch bool, log *slog.Logger, stderr io.Writer) int {
	sigc := make(chan os.Signal, 1)
	notifySignals(sigc)
	defer stopSignals(sigc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if watch {
		if err := resolver.Watch(ctx, func() { srv.ClearCaches() }); err != nil {
			log.Warn("watching roots failed", "error", err)
		}
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	for {
		select {
		case sig := <-sigc:
			if sig == syscall.SIGHUP {
				srv.ClearCaches()
				continue
			}
			log.Info("shutting down", "signal", sig.String())
			sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := srv.Shutdown(sctx)
			scancel()
			<-errc
			if err != nil {
				ui.PrintError(stderr, "shutdown: %v", err)
				return 1
			}
			return 0
		case err := <-errc:
			if errors.Is(err, server.ErrServerClosed) {
				return 0
			}
			ui.PrintError(stderr, "%v", err)
			return 1
		}
	}
}
