// ABOUTME: Client configuration and default resolution
// ABOUTME: Merges caller fields over defaults and tailors built-in source parsing
package netclock

import (
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/Resonate-Protocol/netclock-go/pkg/engine"
	"github.com/Resonate-Protocol/netclock-go/pkg/logger"
	"github.com/Resonate-Protocol/netclock-go/pkg/protocol"
	"github.com/Resonate-Protocol/netclock-go/pkg/retry"
	"github.com/Resonate-Protocol/netclock-go/pkg/source"
	clocksync "github.com/Resonate-Protocol/netclock-go/pkg/sync"
	"github.com/Resonate-Protocol/netclock-go/pkg/timeparse"
)

const (
	// DefaultSyncInterval is used when Config.SyncInterval is zero
	DefaultSyncInterval = 60 * time.Second

	// DefaultTickInterval is used when Config.TickInterval is zero
	DefaultTickInterval = time.Second

	// builtinTimeField and builtinTimeFormat match the trace endpoints
	builtinTimeField  = "ts"
	builtinTimeFormat = timeparse.FormatSeconds

	// userTimeField and userTimeFormat apply to caller-supplied sources
	userTimeField  = "time"
	userTimeFormat = timeparse.FormatMilliseconds
)

// Formatter renders a corrected timestamp for display
type Formatter interface {
	Format(ms int64) string
}

// Config holds client configuration
type Config struct {
	// URL is a single time source. Ignored when URLs is set.
	URL string

	// URLs are the time sources. Without URL or URLs the built-in trace
	// endpoints are used.
	URLs []string

	// Strategy combines sources (default: first-success)
	Strategy Strategy

	// SyncInterval between rounds (0: 60s, negative: no periodic sync)
	SyncInterval time.Duration

	// TickInterval between corrected time publications (0: 1s, negative: no ticks)
	TickInterval time.Duration

	// Timezone enables formatted output, e.g. "Asia/Shanghai"
	Timezone string

	// TimeField locates the time value (default: Path("time"), or
	// Path("ts") for the built-in sources)
	TimeField timeparse.Extractor

	// TimeFormat is the unit of the time value (default: ms, or s for the
	// built-in sources)
	TimeFormat timeparse.Format

	// ParseTime replaces field extraction entirely
	ParseTime timeparse.CustomFunc

	// Retry per source (nil: 3 attempts, 1s, backoff)
	Retry *retry.Config

	// OfflineMode applies when every source fails (default: local)
	OfflineMode OfflineMode

	// UseWorker runs the pipeline in an isolated executor
	UseWorker bool

	// ExecutorURL dials a remote executor (ws://host/executor) instead of
	// spawning one in-process. Only used with UseWorker.
	ExecutorURL string

	// CacheKey overrides the derived Registry key
	CacheKey string

	// Debug enables verbose logging on the default logger
	Debug bool

	// Logger receives diagnostics (default: standard log with a prefix)
	Logger logger.Logger

	// Observer receives fetch, retry and round measurements
	Observer engine.Observer

	// Formatter overrides the timezone formatter
	Formatter Formatter

	// Fetcher overrides HTTP/NTP fetching
	Fetcher source.Fetcher

	// Clock is the host clock being corrected
	Clock clocksync.Clock

	// HTTPClient is used by the default fetcher
	HTTPClient *http.Client

	// OnError is called when a round fails completely
	OnError func(error)

	// OnSync is called with the server time after each successful round
	OnSync func(serverTime int64)

	// OnTick is called with the corrected time on each tick
	OnTick func(corrected int64)
}

// resolve returns a copy with every default applied
func (c Config) resolve() (Config, error) {
	urls := c.sourceURLs()
	builtin := len(urls) == 0
	if builtin {
		urls = append([]string(nil), source.DefaultURLs...)
	}
	c.URLs = urls

	strategy, err := engine.ParseStrategy(string(c.Strategy))
	if err != nil {
		return c, err
	}
	c.Strategy = strategy

	mode, err := engine.ParseOfflineMode(string(c.OfflineMode))
	if err != nil {
		return c, err
	}
	c.OfflineMode = mode

	if c.SyncInterval == 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}

	if c.TimeField == nil {
		if builtin {
			c.TimeField = timeparse.Path(builtinTimeField)
		} else {
			c.TimeField = timeparse.Path(userTimeField)
		}
	}
	if c.TimeFormat == "" {
		if builtin {
			c.TimeFormat = builtinTimeFormat
		} else {
			c.TimeFormat = userTimeFormat
		}
	}
	format, err := timeparse.ParseFormat(string(c.TimeFormat))
	if err != nil {
		return c, err
	}
	c.TimeFormat = format

	retryConfig := retry.DefaultConfig()
	if c.Retry != nil {
		retryConfig = c.Retry.Normalize()
	}
	c.Retry = &retryConfig

	if c.Logger == nil {
		c.Logger = logger.NewStandardLogger(log.Default(), "netclock", c.Debug)
	}
	if c.Clock == nil {
		c.Clock = clocksync.SystemClock{}
	}

	return c, nil
}

// sourceURLs returns URLs, or URL alone, without blanks
func (c Config) sourceURLs() []string {
	candidates := c.URLs
	if len(candidates) == 0 && c.URL != "" {
		candidates = []string{c.URL}
	}

	var urls []string
	for _, u := range candidates {
		if u = strings.TrimSpace(u); u != "" {
			urls = append(urls, u)
		}
	}
	return urls
}

// parseSettings builds the fetcher parse rules
func (c Config) parseSettings() source.ParseSettings {
	return source.ParseSettings{
		Extractor: c.TimeField,
		Format:    c.TimeFormat,
		Custom:    c.ParseTime,
	}
}

// initPayload is the part of a resolved config an executor can use
func (c Config) initPayload(log logger.Logger) protocol.InitPayload {
	p := protocol.InitPayload{
		URLs:           c.URLs,
		Strategy:       string(c.Strategy),
		SyncIntervalMs: intervalMillis(c.SyncInterval),
		TickIntervalMs: intervalMillis(c.TickInterval),
		TimeFormat:     string(c.TimeFormat),
		Retry: protocol.RetryPayload{
			Times:      c.Retry.Times,
			IntervalMs: c.Retry.Interval.Milliseconds(),
			Backoff:    c.Retry.Backoff,
		},
		OfflineMode: string(c.OfflineMode),
	}

	switch field := c.TimeField.(type) {
	case timeparse.Path:
		p.TimeField = string(field)
	case timeparse.DefaultProbe, *timeparse.DefaultProbe:
	default:
		log.Warning("TimeField %T cannot be sent to an executor, using the default probe", field)
	}
	if c.ParseTime != nil {
		log.Warning("ParseTime cannot be sent to an executor and is ignored")
	}
	if c.Fetcher != nil {
		log.Warning("Custom Fetcher cannot be sent to an executor and is ignored")
	}

	return p
}

// intervalMillis keeps "disabled" negative after conversion
func intervalMillis(d time.Duration) int64 {
	if d < 0 {
		return -1
	}
	return d.Milliseconds()
}
