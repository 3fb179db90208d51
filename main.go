// ABOUTME: Entry point for the netclock CLI
// ABOUTME: Builds the watch, sync and serve commands and runs them
package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/Resonate-Protocol/netclock-go/internal/config"
	"github.com/Resonate-Protocol/netclock-go/internal/version"
	"github.com/Resonate-Protocol/netclock-go/pkg/logger"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "netclock: %s\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "netclock"
	app.HelpName = "netclock"
	app.Usage = "keep a corrected clock in sync with network time sources"
	app.UsageText = "netclock <command> [arguments...]"
	app.Version = version.Version
	app.Commands = []cli.Command{
		{
			Name:        "watch",
			Aliases:     []string{"w"},
			Usage:       "run a synchronized clock and show it live",
			Description: "Starts a client that syncs periodically and ticks the corrected time.",
			Action:      runWatch,
			Flags:       append(append([]cli.Flag{}, commonFlags...), watchFlags...),
		},
		{
			Name:        "sync",
			Aliases:     []string{"s"},
			Usage:       "run one synchronization round and print the result",
			Description: "Fails when every source fails (offline mode error).",
			Action:      runSync,
			Flags:       append(append([]cli.Flag{}, commonFlags...), syncFlags...),
		},
		{
			Name:        "serve",
			Usage:       "run a reference time server",
			Description: "Serves /time, /cdn-cgi/trace, /executor, /health and optionally /metrics.",
			Action:      runServe,
			Flags:       serveFlags,
		},
	}
	return app
}

// loadConfig reads --config (or defaults) and applies command-line overrides
func loadConfig(c *cli.Context, fs afero.Fs) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(fs, path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("url") {
		cfg.Sources.URL = ""
		cfg.Sources.URLs = c.StringSlice("url")
	}
	if c.IsSet("strategy") {
		cfg.Sync.Strategy = c.String("strategy")
	}
	if c.IsSet("time-field") {
		cfg.Sources.TimeField = c.String("time-field")
	}
	if c.IsSet("time-format") {
		cfg.Sources.TimeFormat = c.String("time-format")
	}
	if c.IsSet("timezone") {
		cfg.Display.Timezone = c.String("timezone")
	}
	if c.IsSet("retry-times") {
		cfg.Retry.Times = c.Int("retry-times")
	}
	if c.IsSet("retry-interval") {
		cfg.Retry.Interval = &config.Duration{Duration: c.Duration("retry-interval")}
	}
	if c.IsSet("sync-interval") {
		cfg.Sync.Interval.Duration = c.Duration("sync-interval")
	}
	if c.IsSet("tick-interval") {
		cfg.Sync.TickInterval.Duration = c.Duration("tick-interval")
	}
	if c.IsSet("offline-mode") {
		cfg.Sync.OfflineMode = c.String("offline-mode")
	}
	if c.Bool("worker") {
		cfg.Worker.Enabled = true
	}
	if c.IsSet("executor") {
		cfg.Worker.ExecutorURL = c.String("executor")
	}
	if c.Bool("discover") {
		cfg.Sources.Discover = true
	}
	if c.IsSet("metrics-addr") {
		cfg.Metrics.Addr = c.String("metrics-addr")
	}
	if c.IsSet("log-format") {
		cfg.Log.Format = c.String("log-format")
	}
	if c.Bool("debug") {
		cfg.Log.Debug = true
	}
	if c.IsSet("port") {
		cfg.Server.Port = c.Int("port")
	}
	if c.IsSet("name") {
		cfg.Server.Name = c.String("name")
	}
	if c.IsSet("skew") {
		cfg.Server.Skew.Duration = c.Duration("skew")
	}
	if c.Bool("mdns") {
		cfg.Server.MDNS = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openLogOutput picks where logs go. With a TUI on screen they only go to
// the log file; otherwise they also stream to stderr.
func openLogOutput(path string, tui bool) (io.Writer, func(), error) {
	if path == "" {
		if tui {
			return io.Discard, func() {}, nil
		}
		return os.Stderr, func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening log file: %w", err)
	}
	closeFn := func() { _ = f.Close() }

	if tui {
		return f, closeFn, nil
	}
	return io.MultiWriter(os.Stderr, f), closeFn, nil
}

func newLogger(format string, w io.Writer, component string, debug bool) logger.Logger {
	switch format {
	case config.LogFormatJSON:
		return logger.NewJSONLogger(w, component, debug)
	case config.LogFormatConsole:
		return logger.NewConsoleLogger(w, component, debug)
	}
	return logger.NewStandardLogger(log.New(w, "", log.LstdFlags), component, debug)
}
