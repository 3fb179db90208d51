// ABOUTME: Network clock client that drives synchronization rounds and ticks
// ABOUTME: Applies offline degradation and publishes corrected time to subscribers
package netclock

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Resonate-Protocol/netclock-go/pkg/engine"
	"github.com/Resonate-Protocol/netclock-go/pkg/logger"
	"github.com/Resonate-Protocol/netclock-go/pkg/source"
	clocksync "github.com/Resonate-Protocol/netclock-go/pkg/sync"
	"github.com/Resonate-Protocol/netclock-go/pkg/timezone"
)

// ErrClosed is returned by operations on a closed client
var ErrClosed = errors.New("client closed")

// Callbacks receive running state changes. Nil fields are skipped.
type Callbacks struct {
	OnTime      func(ms int64)
	OnFormatted func(formatted string)
	OnOffset    func(offset float64)
	OnRunning   func(running bool)
}

// State is a snapshot of the running state
type State struct {
	Running    bool
	Offset     float64   // Milliseconds
	Now        int64     // Corrected time at the last tick, Unix milliseconds
	Formatted  string    // Empty without a formatter
	LastSync   time.Time // Zero before the first successful round
	AverageRTT float64   // Milliseconds
}

// Client keeps a corrected clock in step with its time sources
type Client struct {
	config    Config
	log       logger.Logger
	corrector *clocksync.DriftCorrector
	engine    *engine.Engine
	formatter Formatter
	relay     *relay // non-nil in worker mode

	ctx    context.Context
	cancel context.CancelFunc
	rounds sync.WaitGroup

	mu        sync.Mutex
	running   bool
	closed    bool
	stopLoop  chan struct{}
	loopDone  chan struct{}
	callbacks Callbacks
	now       int64
	formatted string
	offset    float64 // last published offset; authoritative in worker mode
}

// NewClient creates a client with defaults applied. It does not start
// synchronizing until Start or SyncNow is called.
func NewClient(config Config) (*Client, error) {
	config, err := config.resolve()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	c := &Client{
		config:    config,
		log:       config.Logger,
		corrector: clocksync.NewDriftCorrector(config.Logger).WithClock(config.Clock),
		formatter: config.Formatter,
		ctx:       ctx,
		cancel:    cancel,
	}

	if c.formatter == nil && config.Timezone != "" {
		c.formatter = timezone.New(config.Timezone, config.Logger)
	}

	if config.UseWorker {
		r, err := newRelay(ctx, c)
		if err != nil {
			cancel()
			return nil, err
		}
		c.relay = r
		c.log.Debug("Client created in worker mode with %d source(s)", len(config.URLs))
		return c, nil
	}

	fetcher := config.Fetcher
	if fetcher == nil {
		fetcher = source.Router{
			HTTP: source.NewHTTPFetcher(config.HTTPClient, config.parseSettings(), config.Clock),
			NTP:  source.NewNTPFetcher(0, config.Clock),
		}
	}

	eng, err := engine.New(engine.Options{
		URLs:     config.URLs,
		Strategy: config.Strategy,
		Retry:    *config.Retry,
		Logger:   config.Logger,
		Observer: config.Observer,
	}, fetcher, c.corrector)
	if err != nil {
		cancel()
		return nil, err
	}
	c.engine = eng

	c.log.Debug("Client created with %d source(s), strategy %s", len(config.URLs), config.Strategy)
	return c, nil
}

// Config returns the resolved configuration
func (c *Client) Config() Config {
	return c.config
}

// OnUpdate replaces the subscriber callbacks
func (c *Client) OnUpdate(cb Callbacks) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = cb
}

// Start runs an immediate round and arms the sync and tick timers. It is a
// no-op while running.
func (c *Client) Start() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.running {
		c.mu.Unlock()
		c.log.Debug("Start ignored, already running")
		return nil
	}
	c.running = true
	var stop, done chan struct{}
	if c.relay == nil {
		stop = make(chan struct{})
		done = make(chan struct{})
		c.stopLoop = stop
		c.loopDone = done
	}
	cb := c.callbacks
	c.mu.Unlock()

	c.log.Info("Starting time synchronization")
	if cb.OnRunning != nil {
		cb.OnRunning(true)
	}

	if c.relay != nil {
		return c.relay.start()
	}

	c.startRound()
	go c.loop(stop, done)
	return nil
}

// Stop disarms the timers. Rounds already in flight complete and apply. It is
// a no-op while stopped.
func (c *Client) Stop() error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	stop, done := c.stopLoop, c.loopDone
	c.stopLoop, c.loopDone = nil, nil
	cb := c.callbacks
	c.mu.Unlock()

	c.log.Info("Stopping time synchronization")

	var err error
	if c.relay != nil {
		err = c.relay.stop()
	}
	if stop != nil {
		close(stop)
		<-done
	}

	if cb.OnRunning != nil {
		cb.OnRunning(false)
	}
	return err
}

// SyncNow runs one round and waits for it. Total failure is degraded per
// OfflineMode; under OfflineError it is returned. In worker mode the request
// is forwarded and the outcome arrives through callbacks.
func (c *Client) SyncNow(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if c.relay != nil {
		return c.relay.sync()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	unlink := context.AfterFunc(c.ctx, cancel)
	defer unlink()

	c.rounds.Add(1)
	defer c.rounds.Done()
	return c.runRound(ctx)
}

// Close stops the client, aborts in-flight rounds and releases the executor
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	err := c.Stop()

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	if c.relay != nil {
		if cerr := c.relay.close(); err == nil {
			err = cerr
		}
	}
	c.rounds.Wait()

	c.log.Debug("Client closed")
	return err
}

// State returns a snapshot of the running state
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Running:   c.running,
		Offset:    c.offset,
		Now:       c.now,
		Formatted: c.formatted,
	}
	if c.relay == nil {
		s.Offset = c.corrector.Offset()
		s.LastSync = c.corrector.LastSync()
		s.AverageRTT = c.corrector.AverageRTT()
	}
	return s
}

// Offset returns the current offset in milliseconds
func (c *Client) Offset() float64 {
	if c.relay == nil {
		return c.corrector.Offset()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.offset
}

// Now returns the corrected time
func (c *Client) Now() time.Time {
	if c.relay == nil {
		return c.corrector.Now()
	}
	host := c.config.Clock.Now().UnixMilli()
	return time.UnixMilli(host + int64(math.Round(c.Offset())))
}

// loop drives the periodic timers until stop is closed
func (c *Client) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	var syncC, tickC <-chan time.Time
	if c.config.SyncInterval > 0 {
		t := time.NewTicker(c.config.SyncInterval)
		defer t.Stop()
		syncC = t.C
	}
	if c.config.TickInterval > 0 {
		t := time.NewTicker(c.config.TickInterval)
		defer t.Stop()
		tickC = t.C
	}

	for {
		select {
		case <-stop:
			return
		case <-c.ctx.Done():
			return
		case <-syncC:
			c.startRound()
		case <-tickC:
			c.tick()
		}
	}
}

// startRound runs a round in the background
func (c *Client) startRound() {
	c.rounds.Add(1)
	go func() {
		defer c.rounds.Done()
		if err := c.runRound(c.ctx); err != nil && c.ctx.Err() == nil {
			c.log.Debug("Background round returned: %v", err)
		}
	}()
}

// runRound performs one round and applies the outcome
func (c *Client) runRound(ctx context.Context) error {
	result, err := c.engine.Sync(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}

		c.log.Error("Sync failed: %v", err)
		if c.config.OnError != nil {
			c.config.OnError(err)
		}

		derr := c.engine.Degrade(c.config.OfflineMode, err)
		c.publishOffset(c.corrector.Offset())
		return derr
	}

	if result.Stale {
		return nil
	}

	c.log.Debug("Sync succeeded: offset %.2fms, server time %d", result.Offset, result.ServerTime)
	c.publishOffset(result.Offset)
	if c.config.OnSync != nil {
		c.config.OnSync(result.ServerTime)
	}
	return nil
}

// tick publishes the corrected time
func (c *Client) tick() {
	c.publishTime(c.corrector.CorrectedNow())
}

// publishTime records and emits a corrected time, formatting it client-side
func (c *Client) publishTime(now int64) {
	var formatted string
	if c.formatter != nil {
		formatted = c.formatter.Format(now)
	}

	c.mu.Lock()
	c.now = now
	if c.formatter != nil {
		c.formatted = formatted
	}
	cb := c.callbacks
	c.mu.Unlock()

	if cb.OnTime != nil {
		cb.OnTime(now)
	}
	if c.formatter != nil && cb.OnFormatted != nil {
		cb.OnFormatted(formatted)
	}
	if c.config.OnTick != nil {
		c.config.OnTick(now)
	}
}

func (c *Client) publishOffset(offset float64) {
	c.mu.Lock()
	c.offset = offset
	cb := c.callbacks
	c.mu.Unlock()

	if cb.OnOffset != nil {
		cb.OnOffset(offset)
	}
}

func (c *Client) reportError(err error) {
	c.log.Error("%v", err)
	if c.config.OnError != nil {
		c.config.OnError(err)
	}
}

func (c *Client) String() string {
	mode := "main"
	if c.relay != nil {
		mode = "worker"
	}
	return fmt.Sprintf("netclock.Client{%d sources, %s, %s}", len(c.config.URLs), c.config.Strategy, mode)
}
