// ABOUTME: Synchronization pipeline shared by the client and the isolated executor
// ABOUTME: Fetches sources with retry, aggregates samples and commits one offset per round
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Resonate-Protocol/netclock-go/pkg/logger"
	"github.com/Resonate-Protocol/netclock-go/pkg/retry"
	"github.com/Resonate-Protocol/netclock-go/pkg/source"
	clocksync "github.com/Resonate-Protocol/netclock-go/pkg/sync"
)

// Strategy selects how multiple sources are combined.
type Strategy string

const (
	StrategyFirstSuccess Strategy = "first-success"
	StrategyAverage      Strategy = "average"
)

// OfflineMode selects what happens when every source fails.
type OfflineMode string

const (
	OfflineLocal  OfflineMode = "local"
	OfflineFreeze OfflineMode = "freeze"
	OfflineError  OfflineMode = "error"
)

var (
	// ErrAllSourcesFailed is returned when a round produced no sample.
	ErrAllSourcesFailed = errors.New("all time sources failed")

	// ErrNoSources is returned when the engine has no URLs.
	ErrNoSources = errors.New("no time sources configured")
)

// ParseStrategy validates a strategy name. An empty name yields first-success.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StrategyFirstSuccess:
		return StrategyFirstSuccess, nil
	case StrategyAverage:
		return StrategyAverage, nil
	default:
		return "", fmt.Errorf("unknown sync strategy %q (want first-success or average)", s)
	}
}

// ParseOfflineMode validates an offline mode name. An empty name yields local.
func ParseOfflineMode(s string) (OfflineMode, error) {
	switch OfflineMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", OfflineLocal:
		return OfflineLocal, nil
	case OfflineFreeze:
		return OfflineFreeze, nil
	case OfflineError:
		return OfflineError, nil
	default:
		return "", fmt.Errorf("unknown offline mode %q (want local, freeze or error)", s)
	}
}

// Observer receives per-fetch, per-retry and per-round measurements.
type Observer interface {
	ObserveFetch(url string, rtt time.Duration, err error)
	ObserveRetry(url string, attempt int, err error)
	ObserveRound(strategy Strategy, offset float64, err error)
}

// NopObserver discards all observations.
type NopObserver struct{}

func (NopObserver) ObserveFetch(string, time.Duration, error) {}
func (NopObserver) ObserveRetry(string, int, error)           {}
func (NopObserver) ObserveRound(Strategy, float64, error)     {}

// Options configures an Engine.
type Options struct {
	URLs     []string
	Strategy Strategy
	Retry    retry.Config
	Logger   logger.Logger
	Observer Observer

	// OnRetry is called before each retry wait of any source.
	OnRetry func(url string, attempt int, err error)
}

// Result describes one completed round.
type Result struct {
	Offset     float64            // Offset now held by the corrector
	ServerTime int64              // Server time of the first successful sample
	Samples    []clocksync.Sample // Successful samples in URL order
	Stale      bool               // A newer round committed first; nothing was written
}

// Engine runs synchronization rounds against a fetcher and writes the
// resulting offset into a DriftCorrector.
type Engine struct {
	opts      Options
	fetcher   source.Fetcher
	corrector *clocksync.DriftCorrector
	log       logger.Logger
	observer  Observer

	mu        sync.Mutex
	seq       uint64 // last round started
	committed uint64 // last round that wrote the corrector
}

// New creates an engine. Empty strategy means first-success.
func New(opts Options, fetcher source.Fetcher, corrector *clocksync.DriftCorrector) (*Engine, error) {
	if fetcher == nil {
		return nil, errors.New("engine: fetcher is required")
	}
	if corrector == nil {
		return nil, errors.New("engine: corrector is required")
	}

	strategy, err := ParseStrategy(string(opts.Strategy))
	if err != nil {
		return nil, err
	}
	opts.Strategy = strategy
	opts.Retry = opts.Retry.Normalize()
	opts.URLs = append([]string(nil), opts.URLs...)

	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	return &Engine{
		opts:      opts,
		fetcher:   fetcher,
		corrector: corrector,
		log:       logger.OrNop(opts.Logger),
		observer:  observer,
	}, nil
}

// Corrector returns the corrector this engine writes to.
func (e *Engine) Corrector() *clocksync.DriftCorrector {
	return e.corrector
}

// URLs returns a copy of the configured sources.
func (e *Engine) URLs() []string {
	return append([]string(nil), e.opts.URLs...)
}

// Strategy returns the aggregation strategy.
func (e *Engine) Strategy() Strategy {
	return e.opts.Strategy
}

// Sync runs one round. Per-source failures are logged and only surface as
// ErrAllSourcesFailed when no source produced a sample.
func (e *Engine) Sync(ctx context.Context) (Result, error) {
	if len(e.opts.URLs) == 0 {
		e.observer.ObserveRound(e.opts.Strategy, 0, ErrNoSources)
		return Result{}, ErrNoSources
	}

	seq := e.begin()

	var (
		samples []clocksync.Sample
		errs    []error
	)
	switch e.opts.Strategy {
	case StrategyAverage:
		samples, errs = e.fetchAll(ctx)
	default:
		samples, errs = e.fetchFirst(ctx)
	}

	if len(samples) == 0 {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if e.superseded(seq) {
			e.log.Debug("Discarding failed round %d, a newer round already committed", seq)
			return Result{Stale: true, Offset: e.corrector.Offset()}, nil
		}
		err := fmt.Errorf("%w: %w", ErrAllSourcesFailed, errors.Join(errs...))
		e.observer.ObserveRound(e.opts.Strategy, 0, err)
		return Result{}, err
	}

	result := Result{ServerTime: samples[0].ServerTime, Samples: samples}

	offset, stale, err := e.commit(seq, samples)
	if err != nil {
		e.observer.ObserveRound(e.opts.Strategy, 0, err)
		return Result{}, err
	}
	result.Offset = offset
	result.Stale = stale

	if stale {
		e.log.Debug("Discarding round %d, a newer round already committed", seq)
		return result, nil
	}

	e.log.Debug("Round %d: offset %.2fms from %d sample(s)", seq, offset, len(samples))
	e.observer.ObserveRound(e.opts.Strategy, offset, nil)
	return result, nil
}

// Degrade applies mode to a failed round. Errors other than
// ErrAllSourcesFailed are returned unchanged.
func (e *Engine) Degrade(mode OfflineMode, err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrAllSourcesFailed) {
		return err
	}

	switch mode {
	case OfflineError:
		return err
	case OfflineFreeze:
		e.log.Warning("All time sources failed, keeping offset %.2fms", e.corrector.Offset())
		return nil
	default:
		e.log.Warning("All time sources failed, falling back to local time")
		e.corrector.Reset()
		return nil
	}
}

func (e *Engine) begin() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return e.seq
}

func (e *Engine) superseded(seq uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.committed > seq
}

// commit writes the round's offset unless a newer round got there first.
func (e *Engine) commit(seq uint64, samples []clocksync.Sample) (float64, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.committed > seq {
		return e.corrector.Offset(), true, nil
	}

	var (
		offset float64
		err    error
	)
	if e.opts.Strategy == StrategyAverage {
		offset, err = e.corrector.ComputeAverageOffset(samples)
	} else {
		offset, err = e.corrector.ComputeOffset(samples[0])
	}
	if err != nil {
		return 0, false, err
	}

	e.committed = seq
	return offset, false, nil
}

// fetchFirst tries URLs in order and stops at the first success.
func (e *Engine) fetchFirst(ctx context.Context) ([]clocksync.Sample, []error) {
	var errs []error
	for _, url := range e.opts.URLs {
		if ctx.Err() != nil {
			break
		}
		sample, err := e.fetch(ctx, url)
		if err != nil {
			e.log.Warning("Time source %s failed: %v", url, err)
			errs = append(errs, fmt.Errorf("%s: %w", url, err))
			continue
		}
		return []clocksync.Sample{sample}, nil
	}
	return nil, errs
}

// fetchAll queries every URL concurrently and keeps the successes in URL
// order.
func (e *Engine) fetchAll(ctx context.Context) ([]clocksync.Sample, []error) {
	type outcome struct {
		sample clocksync.Sample
		err    error
	}

	outcomes := make([]outcome, len(e.opts.URLs))
	var wg sync.WaitGroup
	for i, url := range e.opts.URLs {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			sample, err := e.fetch(ctx, url)
			outcomes[i] = outcome{sample: sample, err: err}
		}(i, url)
	}
	wg.Wait()

	var (
		samples []clocksync.Sample
		errs    []error
	)
	for i, o := range outcomes {
		if o.err != nil {
			e.log.Warning("Time source %s failed: %v", e.opts.URLs[i], o.err)
			errs = append(errs, fmt.Errorf("%s: %w", e.opts.URLs[i], o.err))
			continue
		}
		samples = append(samples, o.sample)
	}
	return samples, errs
}

// fetch runs one source under its own retry strategy.
func (e *Engine) fetch(ctx context.Context, url string) (clocksync.Sample, error) {
	strategy := retry.New(e.opts.Retry)

	return retry.Execute(ctx, strategy, func(ctx context.Context) (clocksync.Sample, error) {
		sample, err := e.fetcher.Fetch(ctx, url)
		e.observer.ObserveFetch(url, time.Duration(sample.RTT)*time.Millisecond, err)
		return sample, err
	}, func(attempt int, err error) {
		e.log.Debug("Retrying %s after attempt %d: %v", url, attempt, err)
		e.observer.ObserveRetry(url, attempt, err)
		if e.opts.OnRetry != nil {
			e.opts.OnRetry(url, attempt, err)
		}
	})
}
