package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	fyneapp "fyne.io/fyne/v2/app"
	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/belegscanner/internal/backend"
	"github.com/zombor/belegscanner/internal/capture"
	"github.com/zombor/belegscanner/internal/desktop"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env", "error", err)
	}

	fs := ff.NewFlagSet("belegscanner-desktop")
	var (
		serverURL   = fs.StringLong("server", "http://localhost:5000", "Belegscanner server URL")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		timeout     = fs.DurationLong("timeout", 0, "HTTP timeout for server requests (0 waits indefinitely)")
		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		_           = fs.StringLong("config", "", "Config file (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BELEGSCANNER_DESKTOP"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	opts := []backend.Option{backend.WithHTTPClient(&http.Client{Timeout: *timeout})}
	if *authUser != "" || *authPass != "" {
		opts = append(opts, backend.WithBasicAuth(*authUser, *authPass))
	}
	client := backend.New(*serverURL, opts...)

	a := fyneapp.NewWithID("de.belegscanner.desktop")
	window := desktop.New(a, desktop.Options{})

	ctrl := capture.New(client, client, window, capture.Options{StatsSource: client})
	window.Bind(ctrl.Dispatch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		if err := ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Controller stopped", "error", err)
		}
	}()

	slog.Info("Starting desktop client", "server", *serverURL, "version", version)
	window.ShowAndRun()
}
