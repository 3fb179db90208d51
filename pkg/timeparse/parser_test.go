// ABOUTME: Tests for server time parsing
// ABOUTME: Covers extraction strategies, unit normalization and validation
package timeparse

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestParseNumericStrings(t *testing.T) {
	got, err := Parse(map[string]any{"time": "1706500000123"}, Path("time"), FormatMilliseconds, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1706500000123 {
		t.Errorf("expected 1706500000123, got %v", got)
	}

	got, err = Parse(map[string]any{"ts": "1706500000"}, Path("ts"), FormatSeconds, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1706500000000 {
		t.Errorf("expected 1706500000000, got %v", got)
	}
}

func TestParseNumbers(t *testing.T) {
	tests := []struct {
		name   string
		value  any
		format Format
		want   float64
	}{
		{"float ms", float64(1706500000123), FormatMilliseconds, 1706500000123},
		{"float seconds", float64(1706500000), FormatSeconds, 1706500000000},
		{"int64 ms", int64(1706500000123), FormatMilliseconds, 1706500000123},
		{"json number seconds", json.Number("1706500000"), FormatSeconds, 1706500000000},
		{"iso passes numbers through", float64(1706500000123), FormatISO, 1706500000123},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(map[string]any{"time": tt.value}, nil, tt.format, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseDateStrings(t *testing.T) {
	tests := []struct {
		value  string
		format Format
		want   float64
	}{
		{"2024-01-29T03:46:40.123Z", FormatISO, 1706500000123},
		{"2024-01-29T03:46:40Z", FormatMilliseconds, 1706500000000},
		{"Mon, 29 Jan 2024 03:46:40 GMT", FormatISO, 1706500000000},
		{"2024-01-29", FormatSeconds, 1706486400000},
	}

	for _, tt := range tests {
		got, err := Normalize(tt.value, tt.format)
		if err != nil {
			t.Errorf("Normalize(%q) unexpected error: %v", tt.value, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Normalize(%q) = %v, expected %v", tt.value, got, tt.want)
		}
	}
}

func TestISOFormatSkipsNumericStrings(t *testing.T) {
	// Under iso a numeric string is not a number, and not a date either
	_, err := Normalize("1706500000123", FormatISO)
	if !errors.Is(err, ErrUnparseableTime) {
		t.Errorf("expected ErrUnparseableTime, got %v", err)
	}
}

func TestParseUnparseable(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{"garbage string", "not a time"},
		{"bool", true},
		{"nested object", map[string]any{"a": 1}},
		{"slice", []any{1, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(map[string]any{"time": tt.value}, Path("time"), FormatMilliseconds, nil)
			if !errors.Is(err, ErrUnparseableTime) {
				t.Errorf("expected ErrUnparseableTime, got %v", err)
			}
		})
	}
}

func TestPathExtraction(t *testing.T) {
	resp := map[string]any{
		"data": map[string]any{
			"time": float64(1706500000123),
		},
	}

	got, err := Parse(resp, Path("data.time"), FormatMilliseconds, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1706500000123 {
		t.Errorf("expected 1706500000123, got %v", got)
	}

	// Missing intermediate segment short-circuits
	_, err = Parse(resp, Path("payload.time"), FormatMilliseconds, nil)
	if !errors.Is(err, ErrUnparseableTime) {
		t.Errorf("expected ErrUnparseableTime for missing path, got %v", err)
	}

	// Walking into a scalar short-circuits too
	_, err = Parse(resp, Path("data.time.value"), FormatMilliseconds, nil)
	if !errors.Is(err, ErrUnparseableTime) {
		t.Errorf("expected ErrUnparseableTime when walking into a scalar, got %v", err)
	}
}

func TestPathOnStringMap(t *testing.T) {
	got, err := Parse(map[string]string{"ts": "1706500000.5"}, Path("ts"), FormatSeconds, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-1706500000500) > 0.01 {
		t.Errorf("expected 1706500000500, got %v", got)
	}
}

func TestDefaultProbeOrder(t *testing.T) {
	tests := []struct {
		name string
		resp any
		want float64
	}{
		{"time wins", map[string]any{"time": float64(1), "timestamp": float64(2), "serverTime": float64(3)}, 1},
		{"timestamp next", map[string]any{"timestamp": float64(2), "serverTime": float64(3)}, 2},
		{"serverTime last", map[string]any{"serverTime": float64(3)}, 3},
		{"nil time skipped", map[string]any{"time": nil, "timestamp": float64(2)}, 2},
		{"raw value", float64(4), 4},
		{"raw string", "5", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.resp, DefaultProbe{}, FormatMilliseconds, nil)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDefaultProbeFallsBackToObject(t *testing.T) {
	_, err := Parse(map[string]any{"other": 1}, nil, FormatMilliseconds, nil)
	if !errors.Is(err, ErrUnparseableTime) {
		t.Errorf("expected ErrUnparseableTime for an object without time fields, got %v", err)
	}
}

func TestSelectorExtraction(t *testing.T) {
	sel := Selector(func(resp any) any {
		return resp.(map[string]any)["result"].([]any)[0]
	})

	got, err := Parse(map[string]any{"result": []any{"1706500000"}}, sel, FormatSeconds, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1706500000000 {
		t.Errorf("expected 1706500000000, got %v", got)
	}

	_, err = Parse(map[string]any{}, Selector(func(any) any { return nil }), FormatSeconds, nil)
	if !errors.Is(err, ErrUnparseableTime) {
		t.Errorf("expected ErrUnparseableTime for nil selector result, got %v", err)
	}
}

func TestCustomParserTakesPrecedence(t *testing.T) {
	custom := func(resp any) (float64, error) {
		return 1706500000, nil
	}

	got, err := Parse(map[string]any{"time": float64(1)}, Path("time"), FormatSeconds, custom)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1706500000000 {
		t.Errorf("expected custom result normalized to ms, got %v", got)
	}

	failing := func(resp any) (float64, error) {
		return 0, errors.New("bad payload")
	}
	if _, err := Parse(nil, nil, FormatMilliseconds, failing); !errors.Is(err, ErrUnparseableTime) {
		t.Errorf("expected ErrUnparseableTime from failing custom parser, got %v", err)
	}
}

func TestIsValidTimestamp(t *testing.T) {
	tests := []struct {
		name string
		ms   float64
		want bool
	}{
		{"NaN", math.NaN(), false},
		{"negative", -1, false},
		{"positive infinity", math.Inf(1), false},
		{"2024", 1706500000000, true},
		{"lower bound inclusive", 946684800000, true},
		{"just before lower bound", 946684799999, false},
		{"upper bound inclusive", 4102444800000, true},
		{"just after upper bound", 4102444800001, false},
		{"seconds mistaken for ms", 1706500000, false},
	}

	for _, tt := range tests {
		if got := IsValidTimestamp(tt.ms); got != tt.want {
			t.Errorf("IsValidTimestamp(%s) = %v, expected %v", tt.name, got, tt.want)
		}
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatMilliseconds, false},
		{"ms", FormatMilliseconds, false},
		{"S", FormatSeconds, false},
		{"iso", FormatISO, false},
		{"minutes", "", true},
	}

	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, expected %q", tt.in, got, tt.want)
		}
	}
}
