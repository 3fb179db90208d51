// ABOUTME: Isolated tick executor driven by protocol messages
// ABOUTME: Owns its own corrector, engine and timers and reports tick/synced/error events
package executor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Resonate-Protocol/netclock-go/pkg/engine"
	"github.com/Resonate-Protocol/netclock-go/pkg/logger"
	"github.com/Resonate-Protocol/netclock-go/pkg/protocol"
	"github.com/Resonate-Protocol/netclock-go/pkg/retry"
	"github.com/Resonate-Protocol/netclock-go/pkg/source"
	clocksync "github.com/Resonate-Protocol/netclock-go/pkg/sync"
	"github.com/Resonate-Protocol/netclock-go/pkg/timeparse"
	"github.com/google/uuid"
)

// ErrNotInitialized is reported for commands that arrive before init
var ErrNotInitialized = errors.New("executor not initialized")

// Options holds executor dependencies. All fields are optional.
type Options struct {
	Logger     logger.Logger
	Observer   engine.Observer
	HTTPClient *http.Client
	NTPTimeout time.Duration
}

// Executor runs synchronization rounds and ticks on behalf of a remote client
type Executor struct {
	id        string
	transport protocol.Transport
	opts      Options
	log       logger.Logger

	// Owned by the Run goroutine
	engine       *engine.Engine
	corrector    *clocksync.DriftCorrector
	offlineMode  engine.OfflineMode
	syncInterval time.Duration
	tickInterval time.Duration
	syncTicker   *time.Ticker
	tickTicker   *time.Ticker

	rounds sync.WaitGroup
}

// New creates an executor bound to transport
func New(transport protocol.Transport, opts Options) *Executor {
	return &Executor{
		id:        uuid.New().String(),
		transport: transport,
		opts:      opts,
		log:       logger.OrNop(opts.Logger),
	}
}

// ID returns the session identifier used in logs
func (e *Executor) ID() string {
	return e.id
}

// Run processes commands until the transport closes or ctx is cancelled.
// In-flight rounds are cancelled and awaited before Run returns.
func (e *Executor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer e.disarm()
	defer e.rounds.Wait()
	defer cancel()

	e.log.Debug("Executor %s started", e.id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-e.transport.Messages():
			if !ok {
				e.log.Debug("Executor %s transport closed", e.id)
				return nil
			}
			e.handle(ctx, msg)

		case <-tickerC(e.syncTicker):
			e.startRound(ctx)

		case <-tickerC(e.tickTicker):
			e.tick()
		}
	}
}

// tickerC returns nil (blocks forever in select) for a disarmed ticker
func tickerC(t *time.Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

// handle dispatches one command. Failures and panics become error events.
func (e *Executor) handle(ctx context.Context, msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			e.sendError(fmt.Errorf("panic handling %s: %v", msg.Type, r))
		}
	}()

	var err error
	switch msg.Type {
	case protocol.TypeInit:
		err = e.handleInit(msg)
	case protocol.TypeStart:
		err = e.handleStart(ctx)
	case protocol.TypeStop:
		e.disarm()
	case protocol.TypeSync:
		if e.engine == nil {
			err = fmt.Errorf("sync: %w", ErrNotInitialized)
		} else {
			e.startRound(ctx)
		}
	default:
		err = fmt.Errorf("unknown message type %q", msg.Type)
	}

	if err != nil {
		e.sendError(err)
	}
}

func (e *Executor) handleInit(msg protocol.Message) error {
	var payload protocol.InitPayload
	if err := protocol.DecodePayload(msg, &payload); err != nil {
		return err
	}

	corrector := clocksync.NewDriftCorrector(e.log)
	eng, mode, err := BuildEngine(payload, corrector, e.opts)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}

	// Re-init replaces the pipeline and stops any running timers
	e.disarm()
	e.engine = eng
	e.corrector = corrector
	e.offlineMode = mode
	e.syncInterval = time.Duration(payload.SyncIntervalMs) * time.Millisecond
	e.tickInterval = time.Duration(payload.TickIntervalMs) * time.Millisecond

	e.log.Info("Executor %s initialized with %d source(s), strategy %s", e.id, len(payload.URLs), eng.Strategy())
	return nil
}

func (e *Executor) handleStart(ctx context.Context) error {
	if e.engine == nil {
		return fmt.Errorf("start: %w", ErrNotInitialized)
	}
	if e.syncTicker != nil || e.tickTicker != nil {
		return nil
	}

	e.startRound(ctx)

	if e.syncInterval > 0 {
		e.syncTicker = time.NewTicker(e.syncInterval)
	}
	if e.tickInterval > 0 {
		e.tickTicker = time.NewTicker(e.tickInterval)
	}
	return nil
}

// disarm stops the periodic timers. Rounds already running complete.
func (e *Executor) disarm() {
	if e.syncTicker != nil {
		e.syncTicker.Stop()
		e.syncTicker = nil
	}
	if e.tickTicker != nil {
		e.tickTicker.Stop()
		e.tickTicker = nil
	}
}

// startRound runs one round off the command loop so ticks keep flowing
func (e *Executor) startRound(ctx context.Context) {
	eng := e.engine
	mode := e.offlineMode

	e.rounds.Add(1)
	go func() {
		defer e.rounds.Done()
		defer func() {
			if r := recover(); r != nil {
				e.sendError(fmt.Errorf("panic during sync: %v", r))
			}
		}()

		result, err := eng.Sync(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// The client still hears about the failure under local and freeze
			eng.Degrade(mode, err)
			e.sendError(fmt.Errorf("sync failed: %w", err))
			return
		}
		if result.Stale {
			return
		}

		e.send(protocol.NewMessage(protocol.TypeSynced, protocol.SyncedPayload{
			Offset:     result.Offset,
			ServerTime: result.ServerTime,
		}))
	}()
}

func (e *Executor) tick() {
	if e.corrector == nil {
		return
	}
	e.send(protocol.NewMessage(protocol.TypeTick, protocol.TickPayload{
		Time:   e.corrector.CorrectedNow(),
		Offset: e.corrector.Offset(),
	}))
}

func (e *Executor) sendError(err error) {
	e.log.Warning("Executor %s: %v", e.id, err)
	e.send(protocol.NewMessage(protocol.TypeError, protocol.ErrorPayload{Message: err.Error()}))
}

func (e *Executor) send(msg protocol.Message) {
	if err := e.transport.Send(msg); err != nil && !errors.Is(err, protocol.ErrClosed) {
		e.log.Debug("Executor %s failed to send %s: %v", e.id, msg.Type, err)
	}
}

// BuildEngine turns an init payload into an engine writing to corrector
func BuildEngine(p protocol.InitPayload, corrector *clocksync.DriftCorrector, opts Options) (*engine.Engine, engine.OfflineMode, error) {
	strategy, err := engine.ParseStrategy(p.Strategy)
	if err != nil {
		return nil, "", err
	}
	mode, err := engine.ParseOfflineMode(p.OfflineMode)
	if err != nil {
		return nil, "", err
	}
	format, err := timeparse.ParseFormat(p.TimeFormat)
	if err != nil {
		return nil, "", err
	}

	parse := source.ParseSettings{Format: format}
	if p.TimeField != "" {
		parse.Extractor = timeparse.Path(p.TimeField)
	}

	retryConfig := retry.DefaultConfig()
	if p.Retry.Times > 0 {
		retryConfig = retry.Config{
			Times:    p.Retry.Times,
			Interval: time.Duration(p.Retry.IntervalMs) * time.Millisecond,
			Backoff:  p.Retry.Backoff,
		}
	}

	fetcher := source.Router{
		HTTP: source.NewHTTPFetcher(opts.HTTPClient, parse, nil),
		NTP:  source.NewNTPFetcher(opts.NTPTimeout, nil),
	}

	eng, err := engine.New(engine.Options{
		URLs:     p.URLs,
		Strategy: strategy,
		Retry:    retryConfig,
		Logger:   opts.Logger,
		Observer: opts.Observer,
	}, fetcher, corrector)
	if err != nil {
		return nil, "", err
	}
	return eng, mode, nil
}
