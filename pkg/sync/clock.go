// ABOUTME: Drift correction from RTT-based clock samples
// ABOUTME: Stores the current offset, RTT history and serves corrected time
package sync

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Resonate-Protocol/netclock-go/pkg/logger"
)

const (
	// HistorySize is the number of RTT measurements kept for AverageRTT.
	HistorySize = 10

	// HighRTTMillis triggers a latency warning. The sample is still used.
	HighRTTMillis = 10000

	// MaxOffsetStdDevMillis triggers a source disagreement warning.
	MaxOffsetStdDevMillis = 1000.0
)

// ErrInvalidInput is returned for malformed samples: negative RTT or an
// empty sample list.
var ErrInvalidInput = errors.New("invalid input")

// Sample is one successful fetch against one source. All values are
// milliseconds; ServerTime and RequestStart are Unix epoch.
type Sample struct {
	ServerTime   int64
	RTT          int64
	RequestStart int64
}

// Offset returns serverTime - (requestStart + rtt/2).
func (s Sample) Offset() float64 {
	return float64(s.ServerTime) - (float64(s.RequestStart) + float64(s.RTT)/2)
}

// Clock is the host clock being corrected.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// DriftCorrector owns the current offset for one client.
type DriftCorrector struct {
	mu         sync.RWMutex
	offset     float64 // milliseconds, server - local
	lastSync   time.Time
	rttHistory []int64

	clock Clock
	log   logger.Logger
}

// NewDriftCorrector creates a corrector with a zero offset. A nil logger
// discards diagnostics.
func NewDriftCorrector(log logger.Logger) *DriftCorrector {
	return &DriftCorrector{
		clock:      SystemClock{},
		log:        logger.OrNop(log),
		rttHistory: make([]int64, 0, HistorySize),
	}
}

// WithClock replaces the host clock. Used by tests and by callers with a
// monotonic source of their own.
func (dc *DriftCorrector) WithClock(c Clock) *DriftCorrector {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	if c == nil {
		c = SystemClock{}
	}
	dc.clock = c
	return dc
}

// ComputeOffset derives the offset from a single sample and stores it.
func (dc *DriftCorrector) ComputeOffset(s Sample) (float64, error) {
	if s.RTT < 0 {
		return 0, fmt.Errorf("%w: negative RTT %dms", ErrInvalidInput, s.RTT)
	}

	if s.RTT > HighRTTMillis {
		dc.log.Warning("RTT too high (%dms), network latency may reduce accuracy", s.RTT)
	}

	offset := s.Offset()

	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.rttHistory = append(dc.rttHistory, s.RTT)
	if len(dc.rttHistory) > HistorySize {
		dc.rttHistory = dc.rttHistory[len(dc.rttHistory)-HistorySize:]
	}

	dc.offset = offset
	dc.lastSync = dc.clock.Now()

	return offset, nil
}

// ComputeAverageOffset averages the per-sample offsets and stores the mean in
// a single write.
func (dc *DriftCorrector) ComputeAverageOffset(samples []Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, fmt.Errorf("%w: at least one sample is required", ErrInvalidInput)
	}

	offsets := make([]float64, len(samples))
	var sum float64
	for i, s := range samples {
		if s.RTT < 0 {
			return 0, fmt.Errorf("%w: negative RTT %dms", ErrInvalidInput, s.RTT)
		}
		offsets[i] = s.Offset()
		sum += offsets[i]
	}
	mean := sum / float64(len(offsets))

	var variance float64
	for _, o := range offsets {
		variance += (o - mean) * (o - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(offsets)))

	if stdDev > MaxOffsetStdDevMillis {
		dc.log.Warning("time sources disagree (std dev %.2fms), some sources may be unreliable", stdDev)
	}

	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.offset = mean
	dc.lastSync = dc.clock.Now()

	return mean, nil
}

// CorrectedNow returns host time plus the stored offset, in Unix milliseconds.
func (dc *DriftCorrector) CorrectedNow() int64 {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.clock.Now().UnixMilli() + int64(math.Round(dc.offset))
}

// Now returns CorrectedNow as a time.Time.
func (dc *DriftCorrector) Now() time.Time {
	return time.UnixMilli(dc.CorrectedNow())
}

// Offset returns the stored offset in milliseconds.
func (dc *DriftCorrector) Offset() float64 {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.offset
}

// LastSync returns the host time of the last successful computation, or the
// zero time after Reset.
func (dc *DriftCorrector) LastSync() time.Time {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return dc.lastSync
}

// AverageRTT returns the mean of the RTT history, or 0 when empty.
func (dc *DriftCorrector) AverageRTT() float64 {
	dc.mu.RLock()
	defer dc.mu.RUnlock()

	if len(dc.rttHistory) == 0 {
		return 0
	}
	var sum int64
	for _, rtt := range dc.rttHistory {
		sum += rtt
	}
	return float64(sum) / float64(len(dc.rttHistory))
}

// RTTHistory returns a copy of the history, oldest first.
func (dc *DriftCorrector) RTTHistory() []int64 {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	return append([]int64(nil), dc.rttHistory...)
}

// Reset zeroes the offset and forgets all history.
func (dc *DriftCorrector) Reset() {
	dc.mu.Lock()
	defer dc.mu.Unlock()

	dc.offset = 0
	dc.lastSync = time.Time{}
	dc.rttHistory = dc.rttHistory[:0]
}
