package signal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"deskrelay/internal/core/domain"
	"deskrelay/internal/core/ports"
	"deskrelay/internal/core/services"
	"deskrelay/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type nopMetrics struct{}

func (nopMetrics) RecordPeerRegistered(domain.Role)                  {}
func (nopMetrics) RecordRegistrationRejected(string)                 {}
func (nopMetrics) RecordPeerDisconnected(domain.Role, time.Duration) {}
func (nopMetrics) RecordSessionCreated()                             {}
func (nopMetrics) RecordSessionDeactivated()                         {}
func (nopMetrics) RecordSessionsReaped(int)                          {}
func (nopMetrics) RecordMessageRelayed(string)                       {}
func (nopMetrics) RecordRelayDrop()                                  {}

var _ ports.MetricsRecorder = nopMetrics{}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()

	svc := services.NewSignalingService(
		memory.NewPeerRegistry(),
		memory.NewSessionStore(100),
		nopMetrics{},
		zap.NewNop().Sugar(),
	)
	srv := NewServer(svc, opts, zap.NewNop().Sugar())
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleWebSocket))
	t.Cleanup(func() {
		srv.Shutdown()
		ts.Close()
	})
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func readRaw(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	return raw
}

func readJSON(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(readRaw(t, conn), &msg))
	return msg
}

func registerHost(t *testing.T, conn *websocket.Conn, peerID string) string {
	t.Helper()

	send(t, conn, `{"type":"register","peerId":"`+peerID+`","role":"host"}`)
	ack := readJSON(t, conn)
	require.Equal(t, "register-ack", ack["type"])
	require.Equal(t, "host", ack["role"])
	return ack["sessionId"].(string)
}

func TestHandshake_EndToEnd(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	host := dial(t, ts)
	sessionID := registerHost(t, host, "H")
	assert.True(t, strings.HasPrefix(sessionID, "H_"))

	guest := dial(t, ts)
	send(t, guest, `{"type":"register","peerId":"G","role":"guest","sessionId":"`+sessionID+`"}`)
	ack := readJSON(t, guest)
	assert.Equal(t, "register-ack", ack["type"])
	assert.Equal(t, "guest", ack["role"])
	assert.Equal(t, sessionID, ack["sessionId"])
	assert.Equal(t, "H", ack["hostPeerId"])

	// The host learns about the guest right after the join.
	notify := readJSON(t, host)
	assert.Equal(t, "guest-connected", notify["type"])
	assert.Equal(t, "G", notify["guestPeerId"])

	// Handshake frames pass through byte for byte, unknown fields included.
	offer := `{"type":"offer","peerId":"G","remotePeerId":"H","sessionId":"` + sessionID + `","data":{"sdp":"v=0...","x":1}}`
	send(t, guest, offer)
	assert.Equal(t, offer, string(readRaw(t, host)))

	answer := `{"type":"answer","peerId":"H","remotePeerId":"G","sessionId":"` + sessionID + `","data":{"sdp":"v=0..."}}`
	send(t, host, answer)
	assert.Equal(t, answer, string(readRaw(t, guest)))

	send(t, guest, `{"type":"ice-candidate","peerId":"G","remotePeerId":"H","data":{"candidate":"..."}}`)
	relayed := readJSON(t, host)
	assert.Equal(t, "ice-candidate", relayed["type"])

	send(t, host, `{"type":"ping"}`)
	pong := readJSON(t, host)
	assert.Equal(t, "pong", pong["type"])
}

func TestRegister_Validation(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	cases := []struct {
		name    string
		frame   string
		message string
	}{
		{
			name:    "malformed json",
			frame:   `{"type":`,
			message: "invalid message",
		},
		{
			name:    "missing peer id",
			frame:   `{"type":"register","role":"host"}`,
			message: "peerId is required",
		},
		{
			name:    "unknown role",
			frame:   `{"type":"register","peerId":"p","role":"admin"}`,
			message: "role must be host or guest",
		},
		{
			name:    "guest without session id",
			frame:   `{"type":"register","peerId":"p","role":"guest"}`,
			message: "sessionId is required for guest registration",
		},
		{
			name:    "guest with unknown session",
			frame:   `{"type":"register","peerId":"p","role":"guest","sessionId":"nope"}`,
			message: "session not found",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn := dial(t, ts)
			send(t, conn, tc.frame)
			msg := readJSON(t, conn)
			assert.Equal(t, "error", msg["type"])
			assert.Equal(t, tc.message, msg["message"])
		})
	}
}

func TestRegister_DuplicatePeerID(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	first := dial(t, ts)
	registerHost(t, first, "H")

	second := dial(t, ts)
	send(t, second, `{"type":"register","peerId":"H","role":"host"}`)
	msg := readJSON(t, second)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "peer id already registered", msg["message"])
}

func TestRegister_SessionFull(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	host := dial(t, ts)
	sessionID := registerHost(t, host, "H")

	first := dial(t, ts)
	send(t, first, `{"type":"register","peerId":"G1","role":"guest","sessionId":"`+sessionID+`"}`)
	require.Equal(t, "register-ack", readJSON(t, first)["type"])

	second := dial(t, ts)
	send(t, second, `{"type":"register","peerId":"G2","role":"guest","sessionId":"`+sessionID+`"}`)
	msg := readJSON(t, second)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "session already has a guest", msg["message"])
}

func TestRegister_BoundConnectionRejected(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	conn := dial(t, ts)
	registerHost(t, conn, "H")

	send(t, conn, `{"type":"register","peerId":"H2","role":"host"}`)
	msg := readJSON(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Equal(t, "connection already bound to a peer", msg["message"])
}

func TestHostDisconnect_NotifiesGuest(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	host := dial(t, ts)
	sessionID := registerHost(t, host, "H")

	guest := dial(t, ts)
	send(t, guest, `{"type":"register","peerId":"G","role":"guest","sessionId":"`+sessionID+`"}`)
	require.Equal(t, "register-ack", readJSON(t, guest)["type"])

	host.Close()

	msg := readJSON(t, guest)
	assert.Equal(t, "host-disconnected", msg["type"])
}

func TestGuestDisconnect_HostHearsNothing(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	host := dial(t, ts)
	sessionID := registerHost(t, host, "H")

	guest := dial(t, ts)
	send(t, guest, `{"type":"register","peerId":"G","role":"guest","sessionId":"`+sessionID+`"}`)
	require.Equal(t, "register-ack", readJSON(t, guest)["type"])
	require.Equal(t, "guest-connected", readJSON(t, host)["type"])

	guest.Close()

	host.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := host.ReadMessage()
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "timeout") || strings.Contains(err.Error(), "deadline"))
}

func TestMessageRateLimit_DropsExcess(t *testing.T) {
	// Burst of one and a near-zero refill: only the first message survives.
	_, ts := newTestServer(t, Options{MessageRate: rate.Limit(0.001), MessageBurst: 1})

	conn := dial(t, ts)
	for i := 0; i < 5; i++ {
		send(t, conn, `{"type":"ping"}`)
	}

	assert.Equal(t, "pong", readJSON(t, conn)["type"])

	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
}

func TestLivenessMonitor_ClosesSilentConnection(t *testing.T) {
	srv, ts := newTestServer(t, Options{})

	conn := dial(t, ts)
	// Swallow probes so the server never sees a pong from this client.
	conn.SetPingHandler(func(string) error { return nil })
	registerHost(t, conn, "H")

	// First probe finds the connection alive from the initial grace mark and
	// arms it; the second finds no pong arrived in between and kills it.
	srv.probeConnections()
	srv.probeConnections()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for srv.ConnectionCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	assert.Zero(t, srv.ConnectionCount())
}

func TestLivenessMonitor_PongKeepsConnectionOpen(t *testing.T) {
	srv, ts := newTestServer(t, Options{})

	conn := dial(t, ts)
	registerHost(t, conn, "H")

	// The default client ping handler answers with a pong, but only while a
	// read is in flight, so keep one pending in the background.
	readDone := make(chan error, 1)
	go func() {
		conn.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, _, err := conn.ReadMessage()
		readDone <- err
	}()

	srv.probeConnections()
	time.Sleep(200 * time.Millisecond) // let the pong travel back
	srv.probeConnections()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, 1, srv.ConnectionCount())

	conn.Close()
	<-readDone
}
