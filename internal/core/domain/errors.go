package domain

import "errors"

// Error texts double as the wire-level error messages sent back to the
// offending connection.
var (
	ErrPeerIDTaken     = errors.New("peer id already registered")
	ErrPeerNotFound    = errors.New("peer not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionFull     = errors.New("session already has a guest")
	ErrConnectionBound = errors.New("connection already bound to a peer")
)
