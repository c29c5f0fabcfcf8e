package transport

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aliconcon/chatwidget/internal/event"
	"github.com/aliconcon/chatwidget/internal/logger"
)

const dialTimeout = 10 * time.Second

// AIOptions configures one assistant connection.
type AIOptions struct {
	// URL is the assistant endpoint base. An http(s) scheme is rewritten to
	// ws(s) and the path is normalized to end in /chat.
	URL string

	ReconnectInterval time.Duration
	HandshakeDelay    time.Duration
	SendTimeout       time.Duration

	// AccessToken returns the current token, nil for guests. Looked up fresh
	// on every handshake.
	AccessToken func() *string
	// Context produces the snapshot attached to handshakes and sends.
	Context func() event.Context

	// OnEvent receives every decoded inbound event.
	OnEvent func(event.AIEvent)
	// OnStatus receives state transitions with a passive status string.
	OnStatus func(State, string)
}

// AIConn is the dedicated assistant socket. It connects at widget startup
// regardless of window visibility so background notifications keep arriving,
// and reconnects forever at a fixed interval.
//
// Readiness is two-phase: the transport being CONNECTED does not make the
// session usable until the init_profile handshake is answered with
// profile_initialized.
type AIConn struct {
	opts AIOptions
	url  string

	mu             sync.Mutex
	conn           *websocket.Conn
	state          State
	ready          bool
	closed         bool
	reconnectTimer *time.Timer
	handshakeTimer *time.Timer

	writeMu sync.Mutex
}

// AIEndpoint derives the socket URL from a base URL: scheme http(s) becomes
// ws(s) and the path gains a trailing /chat segment if missing.
func AIEndpoint(base string) string {
	u := base
	if strings.HasPrefix(u, "http") {
		u = "ws" + strings.TrimPrefix(u, "http")
	}
	if !strings.Contains(u, "/chat") {
		if strings.HasSuffix(u, "/") {
			u += "chat"
		} else {
			u += "/chat"
		}
	}
	return u
}

func NewAIConn(opts AIOptions) *AIConn {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 3 * time.Second
	}
	if opts.HandshakeDelay <= 0 {
		opts.HandshakeDelay = 500 * time.Millisecond
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	return &AIConn{opts: opts, url: AIEndpoint(opts.URL), state: StateDisconnected}
}

// Connect starts dialing asynchronously. Safe to call repeatedly; a live or
// in-flight connection is left alone.
func (c *AIConn) Connect() {
	c.mu.Lock()
	if c.closed || c.state == StateConnecting || c.state == StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	c.ready = false
	c.mu.Unlock()
	c.emitStatus(StateConnecting, statusConnecting)

	go c.dial()
}

func (c *AIConn) dial() {
	dialer := &websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.Dial(c.url, nil)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		c.state = StateError
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		logger.Errorf("ai dial %s: %v", c.url, err)
		c.emitStatus(StateError, statusError)
		return
	}
	c.conn = conn
	c.state = StateConnected
	// Delay the handshake briefly so the peer's session setup does not race
	// the transport open.
	c.handshakeTimer = time.AfterFunc(c.opts.HandshakeDelay, c.sendInitProfile)
	c.mu.Unlock()

	c.emitStatus(StateConnected, statusConnected)
	go c.readLoop(conn)
}

func (c *AIConn) sendInitProfile() {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}

	var token *string
	if c.opts.AccessToken != nil {
		token = c.opts.AccessToken()
	}
	frame := event.InitProfileFrame{
		Type:        event.TypeInitProfile,
		AccessToken: token,
		Context:     c.snapshot(),
	}
	if err := c.writeJSON(conn, frame); err != nil {
		logger.Errorf("ai handshake: %v", err)
	}
}

func (c *AIConn) snapshot() event.Context {
	if c.opts.Context != nil {
		return c.opts.Context()
	}
	return event.Context{Timestamp: time.Now()}
}

func (c *AIConn) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn)
			return
		}
		ev, err := event.DecodeAI(raw)
		if err != nil {
			logger.Errorf("ai frame: %v", err)
			continue
		}
		if _, ok := ev.(event.ProfileInitialized); ok {
			c.mu.Lock()
			c.ready = true
			c.mu.Unlock()
		}
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(ev)
		}
	}
}

func (c *AIConn) handleDisconnect(conn *websocket.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn.Close()
	c.conn = nil
	c.ready = false
	c.state = StateDisconnected
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
		c.handshakeTimer = nil
	}
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.emitStatus(StateDisconnected, statusLost)
}

// scheduleReconnectLocked arms the fixed-interval retry. Fired on every
// transition into DISCONNECTED or ERROR; never gives up.
func (c *AIConn) scheduleReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.state = stateForRetry(c.state)
	c.reconnectTimer = time.AfterFunc(c.opts.ReconnectInterval, c.Connect)
}

// stateForRetry keeps the externally visible failure state while a retry is
// pending.
func stateForRetry(s State) State {
	if s == StateError {
		return StateError
	}
	return StateDisconnected
}

// SendChat sends one user utterance. Rejected unless the transport is
// CONNECTED and the profile handshake completed; nothing is queued.
func (c *AIConn) SendChat(content string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	if !c.ready {
		c.mu.Unlock()
		return ErrNotReady
	}
	conn := c.conn
	c.mu.Unlock()

	frame := event.ChatFrame{Type: event.TypeChat, Content: content, Context: c.snapshot()}
	return c.writeJSON(conn, frame)
}

func (c *AIConn) writeJSON(conn *websocket.Conn, v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.opts.SendTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(v)
}

// State returns the transport state.
func (c *AIConn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether the profile handshake has completed on the current
// connection.
func (c *AIConn) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Close tears the connection down and cancels all pending timers. The conn
// cannot be reused afterwards.
func (c *AIConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.handshakeTimer != nil {
		c.handshakeTimer.Stop()
		c.handshakeTimer = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.ready = false
	c.mu.Unlock()

	c.emitStatus(StateDisconnected, statusDisconnected)
}

func (c *AIConn) emitStatus(s State, msg string) {
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(s, msg)
	}
}
