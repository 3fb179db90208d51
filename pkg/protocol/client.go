// ABOUTME: WebSocket transport for executor messages
// ABOUTME: Handles dialing, JSON framing and the read loop
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/netclock-go/pkg/logger"
	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write
	writeWait = 10 * time.Second

	// wsBuffer is the depth of the receive channel
	wsBuffer = 64
)

// WSTransport carries messages as JSON text frames over a WebSocket
type WSTransport struct {
	conn *websocket.Conn
	log  logger.Logger

	writeMu  sync.Mutex
	messages chan Message
	done     chan struct{}
	once     sync.Once
}

// Dial connects to a remote executor endpoint (ws:// or wss://)
func Dial(ctx context.Context, rawURL string, log logger.Logger) (*WSTransport, error) {
	log = logger.OrNop(log)
	log.Debug("Connecting to executor at %s", rawURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}

	return NewWSTransport(conn, log), nil
}

// NewWSTransport wraps an established connection and starts reading
func NewWSTransport(conn *websocket.Conn, log logger.Logger) *WSTransport {
	t := &WSTransport{
		conn:     conn,
		log:      logger.OrNop(log),
		messages: make(chan Message, wsBuffer),
		done:     make(chan struct{}),
	}
	go t.readMessages()
	return t
}

// Send writes msg as one text frame
func (t *WSTransport) Send(msg Message) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	return nil
}

// Messages returns the receive channel. It is closed when the connection ends.
func (t *WSTransport) Messages() <-chan Message {
	return t.messages
}

// Close sends a close frame and tears down the connection
func (t *WSTransport) Close() error {
	var err error
	t.once.Do(func() {
		close(t.done)

		t.writeMu.Lock()
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		t.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		t.writeMu.Unlock()

		err = t.conn.Close()
	})
	return err
}

// readMessages decodes frames until the connection fails or closes
func (t *WSTransport) readMessages() {
	defer close(t.messages)
	defer t.Close()

	for {
		messageType, data, err := t.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				select {
				case <-t.done:
				default:
					t.log.Debug("Read error: %v", err)
				}
			}
			return
		}

		if messageType != websocket.TextMessage {
			t.log.Warning("Ignoring non-text WebSocket frame (type %d)", messageType)
			continue
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.log.Warning("Failed to parse message: %v", err)
			continue
		}

		select {
		case t.messages <- msg:
		case <-t.done:
			return
		}
	}
}

var (
	_ Transport = (*WSTransport)(nil)
	_ Transport = (*pipeEnd)(nil)
)
