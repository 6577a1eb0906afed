package relay

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents one member session connected to the relay.
// A single member may have multiple devices/connections, each maintained
// separately; broadcasts and persistence act per connection.
type Client struct {
	ConnID string          // unique connection id (snowflake, lifetime of the connection)
	UID    string          // member id, fixed after handshake authentication
	WS     *websocket.Conn // websocket connection object
	Send   chan []byte     // outbound queue, consumed by a single writer goroutine

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new client connection object.
func NewClient(connID, uid string, ws *websocket.Conn, sendQueueSize int) *Client {
	return &Client{
		ConnID: connID,
		UID:    uid,
		WS:     ws,
		Send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
	}
}

// Close stops the writer and closes the transport. Safe to call twice.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// enqueue hands a payload to the writer without blocking. A full queue means
// a slow client; the frame is dropped and the next update self-heals the view.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Send <- payload:
		return true
	default:
		return false
	}
}

// writePump is the single writer for this connection: outbound frames plus
// transport pings. Exits on Close or the first write error.
func (c *Client) writePump(pingPeriod, writeWait time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.WS.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.WS.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.Send:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.WS.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.WS.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
