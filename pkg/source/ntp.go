// ABOUTME: NTP time source fetcher for ntp:// URLs
// ABOUTME: Queries an NTP server and reports its transmit time as a sample
package source

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	clocksync "github.com/Resonate-Protocol/netclock-go/pkg/sync"
	"github.com/beevik/ntp"
)

const defaultNTPPort = "123"

// NTPQueryFunc matches ntp.QueryWithOptions.
type NTPQueryFunc func(address string, opts ntp.QueryOptions) (*ntp.Response, error)

// NTPFetcher queries ntp://host[:port] sources.
type NTPFetcher struct {
	timeout time.Duration
	clock   clocksync.Clock
	query   NTPQueryFunc
}

// NewNTPFetcher creates a fetcher with the given per-query timeout.
func NewNTPFetcher(timeout time.Duration, clock clocksync.Clock) *NTPFetcher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if clock == nil {
		clock = clocksync.SystemClock{}
	}
	return &NTPFetcher{timeout: timeout, clock: clock, query: ntp.QueryWithOptions}
}

// Fetch queries the server. The sample's server time is the NTP transmit
// timestamp and its RTT is the wall time spent in the query.
func (f *NTPFetcher) Fetch(ctx context.Context, rawURL string) (clocksync.Sample, error) {
	address, err := NTPAddress(rawURL)
	if err != nil {
		return clocksync.Sample{}, err
	}

	timeout := f.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if err := ctx.Err(); err != nil {
		return clocksync.Sample{}, err
	}

	requestStart := f.clock.Now()
	resp, err := f.query(address, ntp.QueryOptions{Timeout: timeout})
	requestEnd := f.clock.Now()
	if err != nil {
		return clocksync.Sample{}, fmt.Errorf("%w: ntp query %s: %v", ErrSourceUnavailable, address, err)
	}
	if err := resp.Validate(); err != nil {
		return clocksync.Sample{}, fmt.Errorf("%w: ntp response from %s: %v", ErrInvalidServerTime, address, err)
	}

	rtt := requestEnd.Sub(requestStart).Milliseconds()
	if rtt < 0 {
		rtt = 0
	}

	return clocksync.Sample{
		ServerTime:   resp.Time.UnixMilli(),
		RTT:          rtt,
		RequestStart: requestStart.UnixMilli(),
	}, nil
}

// NTPAddress converts ntp://host[:port] into host:port.
func NTPAddress(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	if u.Scheme != "ntp" || u.Hostname() == "" {
		return "", fmt.Errorf("%w: %q is not an ntp://host URL", ErrUnsupportedScheme, rawURL)
	}

	port := u.Port()
	if port == "" {
		port = defaultNTPPort
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}
