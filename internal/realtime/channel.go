package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrChannelClosed = errors.New("channel closed")
	ErrChannelFull   = errors.New("channel send buffer full")
)

const (
	writeWait      = 10 * time.Second
	maxInboundSize = 4096
)

// wsChannel is a websocket session. Writes go through a single writer
// goroutine so one slow socket only ever backs up its own queue.
type wsChannel struct {
	id     string
	userID int64
	conn   *websocket.Conn

	send         chan []byte
	pingInterval time.Duration

	closed    chan struct{}
	closeOnce sync.Once
}

func newWSChannel(conn *websocket.Conn, userID int64, buffer int, pingInterval time.Duration) *wsChannel {
	return &wsChannel{
		id:           uuid.NewString(),
		userID:       userID,
		conn:         conn,
		send:         make(chan []byte, buffer),
		pingInterval: pingInterval,
		closed:       make(chan struct{}),
	}
}

func (c *wsChannel) ID() string { return c.id }

func (c *wsChannel) Send(payload []byte) error {
	select {
	case <-c.closed:
		return ErrChannelClosed
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.closed:
		return ErrChannelClosed
	default:
		return ErrChannelFull
	}
}

func (c *wsChannel) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

// readPump blocks until the peer goes away or stops answering pings. Client
// frames carry nothing we act on; reading them drives pong and close handling.
func (c *wsChannel) readPump() error {
	pongWait := 2 * c.pingInterval

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return err
		}
	}
}

func (c *wsChannel) writePump() error {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.closed:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return nil
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return err
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		}
	}
}
