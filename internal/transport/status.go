// Package transport owns the widget's socket connections: a dedicated AI
// assistant socket per widget and one shared multiplexed socket for all shop
// conversations. Both recover from any close or error through the same
// fixed-interval reconnect path: no backoff growth, no attempt cap, so chat
// always eventually reconnects.
package transport

import "errors"

type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

var (
	// ErrNotConnected rejects sends while the transport is down. Nothing is
	// queued: the caller surfaces the failure and restores the composer.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrNotReady rejects AI sends between transport open and the
	// profile_initialized response (two-phase readiness).
	ErrNotReady = errors.New("transport: profile not initialized")
	// ErrClosed rejects any use after teardown.
	ErrClosed = errors.New("transport: closed")
)

// Passive status strings shown next to the session title. Failures never
// surface as blocking errors.
const (
	statusConnecting   = "connecting..."
	statusConnected    = "connected"
	statusLost         = "connection lost"
	statusError        = "connection error"
	statusDisconnected = "disconnected"
)
