package relay

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 32
)

// Conn is the subset of *websocket.Conn the relay needs. Tests substitute
// an in-memory implementation.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one live control-panel connection. The hub loop owns simCancel;
// the read and write pumps run on their own goroutines.
type Client struct {
	hub        *Hub
	conn       Conn
	remoteAddr string

	send chan []byte
	done chan struct{}

	// set and cleared only inside the hub loop
	simCancel context.CancelFunc
}

func newClient(h *Hub, conn Conn, remoteAddr string) *Client {
	return &Client{
		hub:        h,
		conn:       conn,
		remoteAddr: remoteAddr,
		send:       make(chan []byte, sendBufferSize),
		done:       make(chan struct{}),
	}
}

// trySend queues a frame for the write pump. Delivery is best-effort: a
// closed or slow client is skipped, never waited on.
func (c *Client) trySend(frame []byte) bool {
	select {
	case <-c.done:
		return false
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// readPump decodes inbound frames and posts them to the hub until the
// connection dies. A malformed frame closes this connection only.
func (c *Client) readPump() {
	defer func() {
		c.hub.post(event{kind: evDisconnect, client: c})
		c.conn.Close()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		ev, err := decodeFrame(c, data)
		if err != nil {
			c.hub.logger.Warn("malformed message, closing connection",
				"remote", c.remoteAddr,
				"error", err,
			)
			c.closePolicyViolation()
			return
		}
		c.hub.post(ev)
	}
}

// writePump drains the send queue onto the socket. It exits when the hub
// closes done, after announcing a normal close to the peer.
func (c *Client) writePump() {
	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.hub.logger.Warn("write failed", "remote", c.remoteAddr, "error", err)
				return
			}
		}
	}
}

func (c *Client) closePolicyViolation() {
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "malformed message"),
		time.Now().Add(writeWait))
	if err != nil {
		c.hub.logger.Debug("close frame not delivered", "remote", c.remoteAddr, "error", err)
	}
}
