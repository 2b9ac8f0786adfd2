package signal

import (
	"sync"
	"time"

	"syncplay/internal/core/domain"

	"github.com/gorilla/websocket"
)

// wsConn is the outbound half of a websocket. Frames are queued and written
// by a single writer goroutine so that senders never block on the network.
type wsConn struct {
	ws           *websocket.Conn
	send         chan []byte
	done         chan struct{}
	closeOnce    sync.Once
	pingInterval time.Duration
	writeTimeout time.Duration
}

func newWSConn(ws *websocket.Conn, bufferSize int, pingInterval, writeTimeout time.Duration) *wsConn {
	return &wsConn{
		ws:           ws,
		send:         make(chan []byte, bufferSize),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
		writeTimeout: writeTimeout,
	}
}

func (c *wsConn) Send(data []byte) error {
	select {
	case <-c.done:
		return domain.ErrSessionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return domain.ErrSessionClosed
	default:
		return domain.ErrSendBufferFull
	}
}

// Close stops the writer, which then closes the socket and unblocks the
// reader. Safe to call more than once.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() { close(c.done) })
	return nil
}

func (c *wsConn) write(messageType int, data []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, data)
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				_ = c.Close()
				return
			}
		case <-c.done:
			c.drain()
			_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain flushes frames queued before Close, such as a final error reply.
func (c *wsConn) drain() {
	for {
		select {
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
