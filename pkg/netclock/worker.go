// ABOUTME: Worker-mode relay between a client and an isolated executor
// ABOUTME: Forwards commands and re-emits tick, synced and error events
package netclock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Resonate-Protocol/netclock-go/internal/executor"
	"github.com/Resonate-Protocol/netclock-go/pkg/protocol"
)

// dialTimeout bounds connecting to a remote executor
const dialTimeout = 10 * time.Second

// relay owns the client's side of the executor transport
type relay struct {
	client    *Client
	transport protocol.Transport
	done      chan struct{}
}

// newRelay connects to ExecutorURL or spawns an in-process executor, then
// sends init with the serializable configuration
func newRelay(ctx context.Context, c *Client) (*relay, error) {
	var transport protocol.Transport

	if c.config.ExecutorURL != "" {
		dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
		defer cancel()

		t, err := protocol.Dial(dialCtx, c.config.ExecutorURL, c.log)
		if err != nil {
			return nil, fmt.Errorf("executor unavailable: %w", err)
		}
		transport = t
	} else {
		clientSide, executorSide := protocol.Pipe()
		exec := executor.New(executorSide, executor.Options{
			Logger:     c.log,
			Observer:   c.config.Observer,
			HTTPClient: c.config.HTTPClient,
		})
		go exec.Run(ctx)
		transport = clientSide
	}

	r := &relay{
		client:    c,
		transport: transport,
		done:      make(chan struct{}),
	}

	initMsg := protocol.NewMessage(protocol.TypeInit, c.config.initPayload(c.log))
	if err := transport.Send(initMsg); err != nil {
		transport.Close()
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}

	go r.readEvents()
	return r, nil
}

func (r *relay) start() error {
	return r.transport.Send(protocol.NewMessage(protocol.TypeStart, nil))
}

func (r *relay) stop() error {
	return r.transport.Send(protocol.NewMessage(protocol.TypeStop, nil))
}

func (r *relay) sync() error {
	return r.transport.Send(protocol.NewMessage(protocol.TypeSync, nil))
}

// close tears down the transport and waits for the event reader
func (r *relay) close() error {
	if err := r.transport.Send(protocol.NewMessage(protocol.TypeStop, nil)); err != nil && !errors.Is(err, protocol.ErrClosed) {
		r.client.log.Debug("Failed to stop executor: %v", err)
	}
	err := r.transport.Close()
	<-r.done
	return err
}

// readEvents re-emits executor events until the transport closes
func (r *relay) readEvents() {
	defer close(r.done)
	c := r.client

	for msg := range r.transport.Messages() {
		switch msg.Type {
		case protocol.TypeTick:
			var tick protocol.TickPayload
			if err := protocol.DecodePayload(msg, &tick); err != nil {
				c.log.Warning("Bad tick from executor: %v", err)
				continue
			}
			// Ticks carry offline resets that never arrive as synced
			c.mu.Lock()
			changed := c.offset != tick.Offset
			c.mu.Unlock()
			if changed {
				c.publishOffset(tick.Offset)
			}
			c.publishTime(tick.Time)

		case protocol.TypeSynced:
			var synced protocol.SyncedPayload
			if err := protocol.DecodePayload(msg, &synced); err != nil {
				c.log.Warning("Bad synced from executor: %v", err)
				continue
			}
			c.publishOffset(synced.Offset)
			if c.config.OnSync != nil {
				c.config.OnSync(synced.ServerTime)
			}

		case protocol.TypeError:
			var payload protocol.ErrorPayload
			if err := protocol.DecodePayload(msg, &payload); err != nil {
				c.log.Warning("Bad error event from executor: %v", err)
				continue
			}
			c.reportError(fmt.Errorf("executor: %s", payload.Message))

		default:
			c.log.Warning("Unknown executor message type: %s", msg.Type)
		}
	}
}
