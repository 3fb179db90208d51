// ABOUTME: Tests for RTT-based drift correction
// ABOUTME: Covers offset formula, averaging, RTT history bounds and reset
package sync

import (
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Resonate-Protocol/netclock-go/pkg/logger"
)

type fixedClock struct {
	t time.Time
}

func (f fixedClock) Now() time.Time { return f.t }

func TestComputeOffsetFormula(t *testing.T) {
	tests := []struct {
		name   string
		sample Sample
		want   float64
	}{
		{"zero rtt", Sample{ServerTime: 1000, RTT: 0, RequestStart: 0}, 1000},
		{"even rtt", Sample{ServerTime: 1706500000123, RTT: 40, RequestStart: 1706500000000}, 103},
		{"odd rtt", Sample{ServerTime: 5000, RTT: 3, RequestStart: 4000}, 998.5},
		{"server behind", Sample{ServerTime: 1000, RTT: 100, RequestStart: 2000}, -1050},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dc := NewDriftCorrector(nil)
			got, err := dc.ComputeOffset(tt.sample)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			want := float64(tt.sample.ServerTime) - float64(tt.sample.RequestStart) - float64(tt.sample.RTT)/2
			if got != want || got != tt.want {
				t.Errorf("expected offset %v, got %v", tt.want, got)
			}
			if dc.Offset() != got {
				t.Errorf("expected stored offset %v, got %v", got, dc.Offset())
			}
			if dc.LastSync().IsZero() {
				t.Error("expected last sync time to be set")
			}
		})
	}
}

func TestComputeOffsetNegativeRTT(t *testing.T) {
	dc := NewDriftCorrector(nil)
	dc.ComputeOffset(Sample{ServerTime: 500, RTT: 0, RequestStart: 0})

	_, err := dc.ComputeOffset(Sample{ServerTime: 1000, RTT: -1, RequestStart: 0})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	// The rejected sample must not touch stored state
	if dc.Offset() != 500 {
		t.Errorf("expected offset to stay 500, got %v", dc.Offset())
	}
	if len(dc.RTTHistory()) != 1 {
		t.Errorf("expected 1 RTT in history, got %d", len(dc.RTTHistory()))
	}
}

func TestComputeOffsetHighRTTWarning(t *testing.T) {
	mock := logger.NewMockLogger()
	dc := NewDriftCorrector(mock)

	got, err := dc.ComputeOffset(Sample{ServerTime: 20000, RTT: 12000, RequestStart: 0})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Warning is diagnostic only
	if got != 14000 {
		t.Errorf("expected offset 14000, got %v", got)
	}

	warnings := mock.Warnings()
	if len(warnings) != 1 || !strings.Contains(warnings[0], "12000ms") {
		t.Errorf("expected a high RTT warning, got %v", warnings)
	}
}

func TestComputeAverageOffset(t *testing.T) {
	dc := NewDriftCorrector(nil)

	got, err := dc.ComputeAverageOffset([]Sample{
		{ServerTime: 1000, RTT: 0, RequestStart: 0},
		{ServerTime: 1002, RTT: 0, RequestStart: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 1001 {
		t.Errorf("expected 1001, got %v", got)
	}
	if dc.Offset() != 1001 {
		t.Errorf("expected stored offset 1001, got %v", dc.Offset())
	}
}

func TestComputeAverageOffsetEmpty(t *testing.T) {
	dc := NewDriftCorrector(nil)

	_, err := dc.ComputeAverageOffset(nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	_, err = dc.ComputeAverageOffset([]Sample{})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty slice, got %v", err)
	}
}

func TestComputeAverageOffsetDisagreementWarning(t *testing.T) {
	mock := logger.NewMockLogger()
	dc := NewDriftCorrector(mock)

	got, err := dc.ComputeAverageOffset([]Sample{
		{ServerTime: 0, RTT: 0, RequestStart: 0},
		{ServerTime: 4000, RTT: 0, RequestStart: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 2000 {
		t.Errorf("expected 2000, got %v", got)
	}
	if len(mock.Warnings()) != 1 {
		t.Errorf("expected one disagreement warning, got %v", mock.Warnings())
	}

	// Agreeing sources stay quiet
	mock2 := logger.NewMockLogger()
	NewDriftCorrector(mock2).ComputeAverageOffset([]Sample{
		{ServerTime: 1000, RTT: 0, RequestStart: 0},
		{ServerTime: 1100, RTT: 0, RequestStart: 0},
	})
	if len(mock2.Warnings()) != 0 {
		t.Errorf("expected no warnings, got %v", mock2.Warnings())
	}
}

func TestRTTHistoryBounded(t *testing.T) {
	dc := NewDriftCorrector(nil)

	for i := 1; i <= 15; i++ {
		if _, err := dc.ComputeOffset(Sample{ServerTime: 1000, RTT: int64(i * 10), RequestStart: 0}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	history := dc.RTTHistory()
	if len(history) != HistorySize {
		t.Fatalf("expected %d entries, got %d", HistorySize, len(history))
	}
	if history[0] != 60 || history[len(history)-1] != 150 {
		t.Errorf("expected history 60..150, got %v", history)
	}

	// mean of 60..150 step 10
	if avg := dc.AverageRTT(); avg != 105 {
		t.Errorf("expected average RTT 105, got %v", avg)
	}
}

func TestAverageRTTEmpty(t *testing.T) {
	if avg := NewDriftCorrector(nil).AverageRTT(); avg != 0 {
		t.Errorf("expected 0 for empty history, got %v", avg)
	}
}

func TestCorrectedNow(t *testing.T) {
	host := time.UnixMilli(1706500000000)
	dc := NewDriftCorrector(nil).WithClock(fixedClock{host})

	if got := dc.CorrectedNow(); got != host.UnixMilli() {
		t.Errorf("expected host time before sync, got %d", got)
	}

	dc.ComputeOffset(Sample{ServerTime: 1706500002500, RTT: 0, RequestStart: 1706500000000})

	if got := dc.CorrectedNow(); got != host.UnixMilli()+2500 {
		t.Errorf("expected host+2500, got %d", got)
	}
	if got := dc.Now(); !got.Equal(time.UnixMilli(host.UnixMilli() + 2500)) {
		t.Errorf("unexpected Now(): %v", got)
	}
}

func TestReset(t *testing.T) {
	dc := NewDriftCorrector(nil)
	dc.ComputeOffset(Sample{ServerTime: 5000, RTT: 20, RequestStart: 0})

	dc.Reset()

	if dc.Offset() != 0 {
		t.Errorf("expected offset 0, got %v", dc.Offset())
	}
	if !dc.LastSync().IsZero() {
		t.Error("expected last sync to be cleared")
	}
	if len(dc.RTTHistory()) != 0 {
		t.Error("expected RTT history to be cleared")
	}

	now := time.Now().UnixMilli()
	if diff := math.Abs(float64(dc.CorrectedNow() - now)); diff > 50 {
		t.Errorf("expected corrected time to equal host time after reset, off by %vms", diff)
	}
}

func TestConcurrentAccess(t *testing.T) {
	dc := NewDriftCorrector(nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				dc.CorrectedNow()
				dc.AverageRTT()
				dc.ComputeOffset(Sample{ServerTime: int64(1000 + j), RTT: int64(j % 7), RequestStart: 0})
				if j%10 == 0 {
					dc.ComputeAverageOffset([]Sample{{ServerTime: 1000, RTT: 0, RequestStart: 0}})
				}
			}
		}(i)
	}
	wg.Wait()

	if len(dc.RTTHistory()) > HistorySize {
		t.Errorf("history exceeded capacity: %d", len(dc.RTTHistory()))
	}
}
