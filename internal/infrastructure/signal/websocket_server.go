package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"deskrelay/internal/core/domain"
	"deskrelay/internal/core/ports"
	"deskrelay/pkg/tracing"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Options tunes the transport behavior; zero values fall back to defaults
// matching the protocol (30s probe period).
type Options struct {
	PingInterval   time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
	// MessageRate limits inbound messages per connection; zero disables it.
	MessageRate  rate.Limit
	MessageBurst int
}

// Server owns every open websocket connection and drives the per-connection
// state machine: Unbound -> Bound(host|guest) -> Closed. Registry and session
// mutations are delegated to the signaling service.
type Server struct {
	svc    ports.Signaling
	opts   Options
	logger *zap.SugaredLogger

	mu    sync.RWMutex
	conns map[*wsConn]struct{}
}

func NewServer(svc ports.Signaling, opts Options, logger *zap.SugaredLogger) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Server{
		svc:    svc,
		opts:   opts,
		logger: logger,
		conns:  make(map[*wsConn]struct{}),
	}
}

func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	var limiter *rate.Limiter
	if s.opts.MessageRate > 0 {
		limiter = rate.NewLimiter(s.opts.MessageRate, s.opts.MessageBurst)
	}
	c := newWSConn(uuid.NewString(), conn, s.opts.WriteTimeout, limiter)

	if s.opts.MaxMessageSize > 0 {
		conn.SetReadLimit(s.opts.MaxMessageSize)
	}
	conn.SetPongHandler(func(string) error {
		c.markAlive()
		return nil
	})

	s.addConn(c)
	s.logger.Infow("connection opened", "conn_id", c.id, "remote_addr", r.RemoteAddr)

	s.readLoop(c)
}

// readLoop processes inbound messages one at a time until the connection
// closes, then runs teardown. Handling each message to completion before
// reading the next preserves per-connection ordering.
func (s *Server) readLoop(c *wsConn) {
	defer func() {
		s.removeConn(c)
		c.Close()

		if peerID := c.boundPeer(); peerID != "" {
			if err := s.svc.Disconnect(context.Background(), peerID); err != nil {
				s.logger.Errorw("teardown failed", "conn_id", c.id, "peer_id", peerID, "error", err)
			}
		}
		s.logger.Infow("connection closed", "conn_id", c.id, "peer_id", c.boundPeer())
	}()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		if !c.allowMessage() {
			s.logger.Warnw("message rate limit exceeded, dropping", "conn_id", c.id, "peer_id", c.boundPeer())
			continue
		}
		s.dispatch(c, raw)
	}
}

func (s *Server) dispatch(c *wsConn, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warnw("malformed message", "conn_id", c.id, "error", err)
		s.sendError(c, "invalid message")
		return
	}

	ctx, span := tracing.TraceSignalMessage(context.Background(), env.Type, string(env.PeerID))
	defer span.End()

	switch env.Type {
	case TypeRegister:
		s.handleRegister(ctx, c, env)
	case TypeOffer, TypeAnswer, TypeICECandidate:
		// The raw frame is forwarded unchanged so the recipient sees exactly
		// what the sender produced.
		s.svc.Relay(ctx, env.Type, env.PeerID, env.RemotePeerID, env.SessionID, raw)
	case TypePing:
		s.send(c, pongMessage{Type: TypePong})
	default:
		s.logger.Warnw("unknown message type", "conn_id", c.id, "type", env.Type)
	}
}

func (s *Server) handleRegister(ctx context.Context, c *wsConn, env Envelope) {
	if c.boundPeer() != "" {
		s.sendError(c, domain.ErrConnectionBound.Error())
		return
	}
	if env.PeerID == "" {
		s.sendError(c, "peerId is required")
		return
	}

	switch domain.Role(env.Role) {
	case domain.RoleHost:
		session, err := s.svc.RegisterHost(ctx, env.PeerID, c)
		if err != nil {
			s.sendError(c, err.Error())
			return
		}
		c.bind(env.PeerID)
		s.send(c, registerAck{
			Type:      TypeRegisterAck,
			SessionID: session.ID,
			Role:      domain.RoleHost,
		})

	case domain.RoleGuest:
		if env.SessionID == "" {
			s.sendError(c, "sessionId is required for guest registration")
			return
		}
		session, err := s.svc.RegisterGuest(ctx, env.PeerID, env.SessionID, c)
		if err != nil {
			s.sendError(c, err.Error())
			return
		}
		c.bind(env.PeerID)
		s.send(c, registerAck{
			Type:       TypeRegisterAck,
			SessionID:  session.ID,
			Role:       domain.RoleGuest,
			HostPeerID: session.HostPeerID,
		})

	default:
		s.sendError(c, "role must be host or guest")
	}
}

// RunLivenessMonitor probes every open connection once per ping interval and
// closes the ones that missed the previous probe. A silently-dead peer is
// detected within one to two probe periods; closing the socket makes its
// read loop fail, which runs the normal teardown path.
func (s *Server) RunLivenessMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.probeConnections()
		}
	}
}

func (s *Server) probeConnections() {
	for _, c := range s.openConns() {
		if !c.consumeAlive() {
			s.logger.Warnw("liveness probe missed, closing connection", "conn_id", c.id, "peer_id", c.boundPeer())
			c.Close()
			continue
		}
		if err := c.ping(); err != nil {
			s.logger.Warnw("liveness probe write failed, closing connection", "conn_id", c.id, "peer_id", c.boundPeer(), "error", err)
			c.Close()
		}
	}
}

// Shutdown closes every open connection, draining their read loops.
func (s *Server) Shutdown() {
	for _, c := range s.openConns() {
		c.Close()
	}
}

// ConnectionCount reports the number of open transport connections,
// registered or not.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.conns)
}

func (s *Server) openConns() []*wsConn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	return conns
}

func (s *Server) addConn(c *wsConn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) removeConn(c *wsConn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) send(c *wsConn, v interface{}) {
	if err := c.Send(v); err != nil {
		s.logger.Warnw("write failed", "conn_id", c.id, "error", err)
	}
}

func (s *Server) sendError(c *wsConn, message string) {
	s.send(c, errorMessage{Type: TypeError, Message: message})
}
