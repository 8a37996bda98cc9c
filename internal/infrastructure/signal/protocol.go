package signal

import (
	"encoding/json"

	"deskrelay/internal/core/domain"
)

// Message kinds understood by the server. Handshake kinds are relayed
// verbatim; everything else is handled locally.
const (
	TypeRegister     = "register"
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"
	TypePing         = "ping"

	TypeRegisterAck      = "register-ack"
	TypePong             = "pong"
	TypeError            = "error"
	TypeGuestConnected   = "guest-connected"
	TypeHostDisconnected = "host-disconnected"
)

// Envelope is the inbound wire format. Data is kept opaque: the server never
// interprets SDP or ICE payloads.
type Envelope struct {
	Type         string           `json:"type"`
	PeerID       domain.PeerID    `json:"peerId,omitempty"`
	RemotePeerID domain.PeerID    `json:"remotePeerId,omitempty"`
	SessionID    domain.SessionID `json:"sessionId,omitempty"`
	Role         string           `json:"role,omitempty"`
	Data         json.RawMessage  `json:"data,omitempty"`
}

type registerAck struct {
	Type       string           `json:"type"`
	SessionID  domain.SessionID `json:"sessionId"`
	Role       domain.Role      `json:"role"`
	HostPeerID domain.PeerID    `json:"hostPeerId,omitempty"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type pongMessage struct {
	Type string `json:"type"`
}
