// ABOUTME: Command-line flags for the netclock CLI
// ABOUTME: Flags override values loaded from --config
package main

import (
	"time"

	"github.com/urfave/cli"
)

var commonFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "config, c",
		Usage: "TOML or YAML config file",
	},
	cli.StringSliceFlag{
		Name:  "url, u",
		Usage: "time source URL (http(s):// or ntp://), repeatable; defaults to the built-in trace endpoints",
	},
	cli.StringFlag{
		Name:  "strategy",
		Usage: "first-success or average",
	},
	cli.StringFlag{
		Name:  "time-field",
		Usage: "dot path of the time value in the response",
	},
	cli.StringFlag{
		Name:  "time-format",
		Usage: "ms, s or iso",
	},
	cli.StringFlag{
		Name:  "timezone, z",
		Usage: "IANA zone for formatted output, e.g. Europe/Berlin",
	},
	cli.IntFlag{
		Name:  "retry-times",
		Usage: "attempts per source",
	},
	cli.DurationFlag{
		Name:  "retry-interval",
		Usage: "wait before the first retry, doubled per attempt with backoff; 0 retries immediately",
	},
	cli.StringFlag{
		Name:  "log-format",
		Usage: "text, json or console",
	},
	cli.StringFlag{
		Name:  "log-file",
		Usage: "also write logs to this file",
	},
	cli.BoolFlag{
		Name:  "debug",
		Usage: "enable debug logging",
	},
}

var watchFlags = []cli.Flag{
	cli.DurationFlag{
		Name:  "sync-interval",
		Usage: "time between rounds (negative disables periodic sync)",
	},
	cli.DurationFlag{
		Name:  "tick-interval",
		Usage: "time between corrected time updates (negative disables ticks)",
	},
	cli.StringFlag{
		Name:  "offline-mode",
		Usage: "local, freeze or error",
	},
	cli.BoolFlag{
		Name:  "worker",
		Usage: "run the pipeline in an isolated executor",
	},
	cli.StringFlag{
		Name:  "executor",
		Usage: "remote executor URL (ws://host:port/executor); implies --worker",
	},
	cli.BoolFlag{
		Name:  "discover",
		Usage: "add time servers found via mDNS",
	},
	cli.DurationFlag{
		Name:  "discover-timeout",
		Usage: "how long to browse for time servers",
		Value: 3 * time.Second,
	},
	cli.StringFlag{
		Name:  "metrics-addr",
		Usage: "serve Prometheus metrics on this address, e.g. :9100",
	},
	cli.BoolFlag{
		Name:  "no-tui",
		Usage: "disable the TUI and stream logs instead",
	},
}

var syncFlags = []cli.Flag{
	cli.DurationFlag{
		Name:  "timeout",
		Usage: "overall deadline for the round",
		Value: 30 * time.Second,
	},
}

var serveFlags = []cli.Flag{
	cli.StringFlag{
		Name:  "config, c",
		Usage: "TOML or YAML config file",
	},
	cli.IntFlag{
		Name:  "port, p",
		Usage: "listen port",
	},
	cli.StringFlag{
		Name:  "name",
		Usage: "server name for mDNS",
	},
	cli.DurationFlag{
		Name:  "skew",
		Usage: "add this much to every reported time",
	},
	cli.BoolFlag{
		Name:  "mdns",
		Usage: "advertise via mDNS",
	},
	cli.BoolFlag{
		Name:  "metrics",
		Usage: "expose /metrics",
	},
	cli.BoolFlag{
		Name:  "tui",
		Usage: "show the server TUI",
	},
	cli.StringFlag{
		Name:  "log-format",
		Usage: "text, json or console",
	},
	cli.StringFlag{
		Name:  "log-file",
		Usage: "also write logs to this file",
	},
	cli.BoolFlag{
		Name:  "debug",
		Usage: "enable debug logging",
	},
}
