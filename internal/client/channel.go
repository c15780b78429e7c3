// Package client holds the pieces that run next to the game UI: the room
// client that speaks the event protocol and the health monitor that watches
// the server independently of game traffic.
package client

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"rollio/internal/model"
)

// ChannelState is the transport-lifecycle signal of the persistent channel.
type ChannelState string

const (
	ChannelConnecting   ChannelState = "connecting"
	ChannelConnected    ChannelState = "connected"
	ChannelDisconnected ChannelState = "disconnected"
)

// ChannelHandler receives inbound messages and lifecycle transitions from a
// channel. Implementations must not block.
type ChannelHandler interface {
	HandleMessage(data []byte)
	HandleStateChange(state ChannelState, err error)
}

// Channel is the bidirectional message transport injected into every
// component that needs it, so tests can substitute a fake.
type Channel interface {
	Send(data []byte) error
	Close() error
}

// WSChannel is the gorilla/websocket-backed Channel.
type WSChannel struct {
	conn    *websocket.Conn
	handler ChannelHandler

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// DialChannel opens the persistent channel and starts its read loop. The
// handler sees connecting before the dial and connected or disconnected
// after it.
func DialChannel(url string, handler ChannelHandler) (*WSChannel, error) {
	handler.HandleStateChange(ChannelConnecting, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		wrapped := fmt.Errorf("dial %s: %w", url, model.ErrTransport)
		handler.HandleStateChange(ChannelDisconnected, wrapped)
		return nil, wrapped
	}
	handler.HandleStateChange(ChannelConnected, nil)

	ch := &WSChannel{conn: conn, handler: handler}
	go ch.readLoop()
	return ch, nil
}

func (ch *WSChannel) readLoop() {
	for {
		_, data, err := ch.conn.ReadMessage()
		if err != nil {
			ch.handler.HandleStateChange(ChannelDisconnected, fmt.Errorf("read: %v: %w", err, model.ErrTransport))
			return
		}
		ch.handler.HandleMessage(data)
	}
}

func (ch *WSChannel) Send(data []byte) error {
	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()
	if err := ch.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write: %v: %w", err, model.ErrTransport)
	}
	return nil
}

func (ch *WSChannel) Close() error {
	var err error
	ch.closeOnce.Do(func() {
		err = ch.conn.Close()
	})
	return err
}

// Handlers fans channel callbacks out to several handlers in order.
type Handlers []ChannelHandler

func (hs Handlers) HandleMessage(data []byte) {
	for _, h := range hs {
		h.HandleMessage(data)
	}
}

func (hs Handlers) HandleStateChange(state ChannelState, err error) {
	for _, h := range hs {
		h.HandleStateChange(state, err)
	}
}
