// ABOUTME: Field extraction strategies for server time payloads
// ABOUTME: Path, Selector and DefaultProbe locate the raw time value
package timeparse

import "strings"

// Extractor locates the raw time value inside a decoded response. The second
// result is false when nothing was found.
type Extractor interface {
	Extract(resp any) (any, bool)
}

// Path walks a dot-separated key path, e.g. "data.time".
type Path string

// Extract follows each segment through nested maps. Any missing segment or
// non-map intermediate short-circuits to "absent".
func (p Path) Extract(resp any) (any, bool) {
	current := resp
	for _, key := range strings.Split(string(p), ".") {
		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		current, ok = m[key]
		if !ok || current == nil {
			return nil, false
		}
	}
	return current, true
}

// Selector runs a caller-supplied accessor.
type Selector func(resp any) any

// Extract calls the accessor. A nil result is reported as absent.
func (s Selector) Extract(resp any) (any, bool) {
	v := s(resp)
	return v, v != nil
}

// DefaultProbe tries the common field names in order and falls back to the
// response value itself.
type DefaultProbe struct{}

// ProbeFields are the keys DefaultProbe looks at, in order.
var ProbeFields = []string{"time", "timestamp", "serverTime"}

// Extract returns the first non-nil probe field or resp.
func (DefaultProbe) Extract(resp any) (any, bool) {
	if m, ok := asMap(resp); ok {
		for _, key := range ProbeFields {
			if v, ok := m[key]; ok && v != nil {
				return v, true
			}
		}
	}
	return resp, resp != nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[string]string:
		out := make(map[string]any, len(m))
		for k, s := range m {
			out[k] = s
		}
		return out, true
	default:
		return nil, false
	}
}

var (
	_ Extractor = Path("")
	_ Extractor = Selector(nil)
	_ Extractor = DefaultProbe{}
)
