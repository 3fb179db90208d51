// ABOUTME: Server time parsing and normalization to epoch milliseconds
// ABOUTME: Handles numeric seconds/milliseconds, numeric strings and date strings
package timeparse

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Format declares the unit of the server time value.
type Format string

const (
	FormatMilliseconds Format = "ms"
	FormatSeconds      Format = "s"
	FormatISO          Format = "iso"
)

// ErrUnparseableTime is returned when the value is neither a number nor a
// parseable string.
var ErrUnparseableTime = errors.New("unparseable time")

// CustomFunc replaces field extraction. Its result is still normalized for
// the declared format.
type CustomFunc func(resp any) (float64, error)

var (
	minValid = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	maxValid = time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
)

// dateLayouts are tried in order for non-numeric strings.
var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	time.RFC850,
	time.RFC822Z,
	time.RFC822,
	time.ANSIC,
	time.UnixDate,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseFormat validates a format name. An empty name yields ms.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatMilliseconds:
		return FormatMilliseconds, nil
	case FormatSeconds:
		return FormatSeconds, nil
	case FormatISO:
		return FormatISO, nil
	default:
		return "", fmt.Errorf("unknown time format %q (want ms, s or iso)", s)
	}
}

// Parse extracts and normalizes the server time in resp. A nil extractor
// means DefaultProbe.
func Parse(resp any, ext Extractor, format Format, custom CustomFunc) (float64, error) {
	if custom != nil {
		v, err := custom(resp)
		if err != nil {
			return 0, fmt.Errorf("%w: custom parser: %v", ErrUnparseableTime, err)
		}
		return Normalize(v, format)
	}

	if ext == nil {
		ext = DefaultProbe{}
	}

	value, ok := ext.Extract(resp)
	if !ok {
		return 0, fmt.Errorf("%w: time field not found", ErrUnparseableTime)
	}

	return Normalize(value, format)
}

// Normalize converts a raw value into epoch milliseconds.
func Normalize(value any, format Format) (float64, error) {
	if n, ok := toNumber(value); ok {
		if format == FormatSeconds {
			return n * 1000, nil
		}
		return n, nil
	}

	s, ok := value.(string)
	if !ok {
		return 0, fmt.Errorf("%w: unsupported value type %T", ErrUnparseableTime, value)
	}

	s = strings.TrimSpace(s)
	if format == FormatSeconds || format == FormatMilliseconds {
		if n, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
			if format == FormatSeconds {
				return n * 1000, nil
			}
			return n, nil
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return float64(t.UnixMilli()), nil
		}
	}

	return 0, fmt.Errorf("%w: cannot parse time string %q", ErrUnparseableTime, s)
}

// IsValidTimestamp rejects non-finite values and anything outside
// [2000-01-01, 2100-01-01] UTC inclusive.
func IsValidTimestamp(ms float64) bool {
	if math.IsNaN(ms) || math.IsInf(ms, 0) {
		return false
	}
	return ms >= float64(minValid) && ms <= float64(maxValid)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
