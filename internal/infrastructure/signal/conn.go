package signal

import (
	"sync"
	"time"

	"deskrelay/internal/core/domain"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

// wsConn wraps one websocket connection. It implements
// domain.ConnectionHandle so the peer owning it can be reached by the core
// without knowing about websockets.
type wsConn struct {
	id           string // assigned at upgrade time, for logs before a peer id is known
	conn         *websocket.Conn
	writeTimeout time.Duration
	limiter      *rate.Limiter

	writeMu sync.Mutex

	mu     sync.Mutex
	alive  bool
	peerID domain.PeerID
}

func newWSConn(id string, conn *websocket.Conn, writeTimeout time.Duration, limiter *rate.Limiter) *wsConn {
	return &wsConn{
		id:           id,
		conn:         conn,
		writeTimeout: writeTimeout,
		limiter:      limiter,
		alive:        true,
	}
}

func (c *wsConn) Send(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) SendRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

func (c *wsConn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeTimeout))
}

func (c *wsConn) markAlive() {
	c.mu.Lock()
	c.alive = true
	c.mu.Unlock()
}

// consumeAlive reports whether the connection answered since the previous
// probe and arms it for the next one.
func (c *wsConn) consumeAlive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	was := c.alive
	c.alive = false
	return was
}

func (c *wsConn) bind(id domain.PeerID) {
	c.mu.Lock()
	c.peerID = id
	c.mu.Unlock()
}

func (c *wsConn) boundPeer() domain.PeerID {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.peerID
}

// allowMessage enforces the per-connection inbound message budget.
func (c *wsConn) allowMessage() bool {
	return c.limiter == nil || c.limiter.Allow()
}
