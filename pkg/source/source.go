// ABOUTME: Time source fetchers that produce RTT-measured samples
// ABOUTME: Defines the Fetcher interface, errors and scheme routing
package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strings"

	clocksync "github.com/Resonate-Protocol/netclock-go/pkg/sync"
	"github.com/Resonate-Protocol/netclock-go/pkg/timeparse"
)

var (
	// ErrSourceUnavailable covers transport failures and non-success status.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrInvalidServerTime is returned when a parsed time fails plausibility.
	ErrInvalidServerTime = errors.New("invalid server time")

	// ErrUnsupportedScheme is returned by Router for unknown URL schemes.
	ErrUnsupportedScheme = errors.New("unsupported source scheme")
)

// DefaultURLs are public trace endpoints used when no source is configured.
// They answer with key=value lines whose "ts" field is in seconds.
var DefaultURLs = []string{
	"https://one.one.one.one/cdn-cgi/trace",
	"https://1.0.0.1/cdn-cgi/trace",
	"https://cloudflare-dns.com/cdn-cgi/trace",
	"https://cloudflare-eth.com/cdn-cgi/trace",
	"https://workers.dev/cdn-cgi/trace",
	"https://pages.dev/cdn-cgi/trace",
	"https://cloudflare.tv/cdn-cgi/trace",
	"https://icanhazip.com/cdn-cgi/trace",
}

// Fetcher performs one measured request against one source.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (clocksync.Sample, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, rawURL string) (clocksync.Sample, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, rawURL string) (clocksync.Sample, error) {
	return f(ctx, rawURL)
}

// ParseSettings controls how a response payload becomes a timestamp.
type ParseSettings struct {
	Extractor timeparse.Extractor
	Format    timeparse.Format
	Custom    timeparse.CustomFunc
}

// Resolve parses payload and rejects implausible results.
func (p ParseSettings) Resolve(payload any) (int64, error) {
	ms, err := timeparse.Parse(payload, p.Extractor, p.Format, p.Custom)
	if err != nil {
		return 0, err
	}
	if !timeparse.IsValidTimestamp(ms) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidServerTime, ms)
	}
	return int64(math.Round(ms)), nil
}

// Router picks a fetcher by URL scheme.
type Router struct {
	HTTP Fetcher // http and https
	NTP  Fetcher // ntp
}

// Fetch dispatches rawURL to the matching fetcher.
func (r Router) Fetch(ctx context.Context, rawURL string) (clocksync.Sample, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return clocksync.Sample{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		if r.HTTP != nil {
			return r.HTTP.Fetch(ctx, rawURL)
		}
	case "ntp":
		if r.NTP != nil {
			return r.NTP.Fetch(ctx, rawURL)
		}
	}

	return clocksync.Sample{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, rawURL)
}

var (
	_ Fetcher = Router{}
	_ Fetcher = FetcherFunc(nil)
)
