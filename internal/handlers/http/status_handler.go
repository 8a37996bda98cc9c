package http

import (
	"net/http"
	"time"

	"deskrelay/internal/core/domain"
	"deskrelay/internal/core/ports"
	"deskrelay/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
)

// StatusHandler serves the read-only monitoring surface. It only consumes
// snapshots from the signaling service and never mutates core state.
type StatusHandler struct {
	svc       ports.Signaling
	health    *monitoring.HealthChecker
	startedAt time.Time
}

func NewStatusHandler(svc ports.Signaling, health *monitoring.HealthChecker) *StatusHandler {
	return &StatusHandler{
		svc:       svc,
		health:    health,
		startedAt: time.Now(),
	}
}

func (h *StatusHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/", h.Index)
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/stats", h.Stats)
	router.GET("/session/:id", h.GetSession)
}

func (h *StatusHandler) Health(c *gin.Context) {
	stats, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"uptime":   time.Since(h.startedAt).String(),
		"peers":    stats.Peers,
		"sessions": stats.TotalSessions,
	})
}

func (h *StatusHandler) Ready(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *StatusHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.svc.Stats(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	peers, err := h.svc.Peers(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	sessions, err := h.svc.Sessions(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	peerList := make([]gin.H, 0, len(peers))
	for _, peer := range peers {
		peerList = append(peerList, gin.H{
			"peerId":       peer.ID,
			"role":         peer.Role,
			"sessionId":    peer.SessionID,
			"registeredAt": peer.RegisteredAt.UTC().Format(time.RFC3339),
		})
	}

	sessionList := make([]gin.H, 0, len(sessions))
	for _, session := range sessions {
		if !session.Active {
			continue
		}
		sessionList = append(sessionList, gin.H{
			"sessionId":   session.ID,
			"hostPeerId":  session.HostPeerID,
			"guestPeerId": session.GuestPeerID,
			"createdAt":   session.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"peers":          stats.Peers,
		"activeSessions": stats.ActiveSessions,
		"totalSessions":  stats.TotalSessions,
		"peerList":       peerList,
		"sessions":       sessionList,
	})
}

// GetSession exposes the public view of one session: presence flags and
// creation time only, never the peer identifiers of others.
func (h *StatusHandler) GetSession(c *gin.Context) {
	id := domain.SessionID(c.Param("id"))

	session, err := h.svc.SessionByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sessionId":      session.ID,
		"hostAvailable":  session.Active,
		"guestConnected": session.HasGuest(),
		"createdAt":      session.CreatedAt.UTC().Format(time.RFC3339),
	})
}

const indexPage = `<!DOCTYPE html>
<html>
<head>
    <title>deskrelay signaling server</title>
    <style>
        body { font-family: monospace; margin: 20px; }
        h1 { color: #333; }
        .stats { background: #f0f0f0; padding: 15px; border-radius: 5px; }
        .status-ok { color: green; font-weight: bold; }
    </style>
</head>
<body>
    <h1>deskrelay signaling server</h1>
    <div class="stats">
        <div>Status: <span class="status-ok">ONLINE</span></div>
        <div>WebSocket endpoint: /ws</div>
        <div><a href="/stats">Statistics</a></div>
    </div>
    <h2>Usage</h2>
    <pre>
Host:
  {"type": "register", "peerId": "uuid1", "role": "host"}

Guest:
  {"type": "register", "peerId": "uuid2", "role": "guest", "sessionId": "uuid1_xxx"}

SDP exchange:
  {"type": "offer", "peerId": "uuid1", "remotePeerId": "uuid2", "sessionId": "uuid1_xxx", "data": {"sdp": "..."}}
  {"type": "answer", "peerId": "uuid2", "remotePeerId": "uuid1", "sessionId": "uuid1_xxx", "data": {"sdp": "..."}}

ICE candidates:
  {"type": "ice-candidate", "peerId": "uuid1", "remotePeerId": "uuid2", "sessionId": "uuid1_xxx",
   "data": {"candidate": "...", "sdpMLineIndex": "0", "sdpMid": "0"}}
    </pre>
</body>
</html>
`

func (h *StatusHandler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexPage))
}
