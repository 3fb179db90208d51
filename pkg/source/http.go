// ABOUTME: HTTP time source fetcher with RTT measurement
// ABOUTME: Decodes JSON or key=value trace bodies and parses the server time
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	clocksync "github.com/Resonate-Protocol/netclock-go/pkg/sync"
)

// maxBodySize bounds how much of a response is read.
const maxBodySize = 1 << 20

// HTTPFetcher measures one GET round trip per call.
type HTTPFetcher struct {
	client *http.Client
	parse  ParseSettings
	clock  clocksync.Clock
}

// NewHTTPFetcher creates a fetcher. A nil client means a client with a 10s
// timeout; a nil clock means the system clock.
func NewHTTPFetcher(client *http.Client, parse ParseSettings, clock clocksync.Clock) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if clock == nil {
		clock = clocksync.SystemClock{}
	}
	return &HTTPFetcher{client: client, parse: parse, clock: clock}
}

// Fetch performs the request and returns the measured sample.
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (clocksync.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return clocksync.Sample{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")

	requestStart := f.clock.Now()
	resp, err := f.client.Do(req)
	requestEnd := f.clock.Now()
	if err != nil {
		return clocksync.Sample{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	rtt := requestEnd.Sub(requestStart).Milliseconds()
	if rtt < 0 {
		rtt = 0
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return clocksync.Sample{}, fmt.Errorf("%w: HTTP %d: %s", ErrSourceUnavailable, resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return clocksync.Sample{}, fmt.Errorf("%w: reading body: %v", ErrSourceUnavailable, err)
	}

	payload, err := DecodeBody(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return clocksync.Sample{}, err
	}

	serverTime, err := f.parse.Resolve(payload)
	if err != nil {
		return clocksync.Sample{}, err
	}

	return clocksync.Sample{
		ServerTime:   serverTime,
		RTT:          rtt,
		RequestStart: requestStart.UnixMilli(),
	}, nil
}

// DecodeBody turns a response body into a payload for timeparse. Declared
// JSON must decode; anything else is tried as JSON and then folded from
// key=value lines.
func DecodeBody(contentType string, body []byte) (any, error) {
	if isJSON(contentType) {
		v, err := decodeJSON(body)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding JSON body: %v", ErrSourceUnavailable, err)
		}
		return v, nil
	}

	if v, err := decodeJSON(body); err == nil {
		return v, nil
	}

	return parseKeyValues(string(body)), nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(contentType, "application/json")
	}
	return mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")
}

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, fmt.Errorf("trailing data after JSON value")
	}
	return v, nil
}

// parseKeyValues folds "key=value" lines. Lines without "=" or with an empty
// key or value are skipped; later keys win.
func parseKeyValues(text string) map[string]any {
	out := make(map[string]any)
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		out[key] = value
	}
	return out
}
