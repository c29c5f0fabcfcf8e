package transport

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aliconcon/chatwidget/internal/event"
	"github.com/aliconcon/chatwidget/internal/logger"
)

// ShopOptions configures the shared shop socket.
type ShopOptions struct {
	// URL is the backend base URL; the socket lives at /socket.
	URL string

	ReconnectInterval time.Duration
	SendTimeout       time.Duration

	// OnEvent receives every decoded inbound event for all conversations;
	// instances filter by conversation id.
	OnEvent func(event.ShopEvent)
	// OnStatus receives state transitions with a passive status string.
	OnStatus func(State, string)
}

// ShopConn multiplexes every shop conversation of one user over a single
// socket with join/leave-room semantics. Unlike the AI channel it connects
// lazily, when Ensure is called on the first shop window open with a token.
// Once up it reconnects forever at the fixed interval and rejoins its rooms.
type ShopConn struct {
	opts ShopOptions
	url  string

	mu             sync.Mutex
	conn           *websocket.Conn
	state          State
	token          string
	rooms          map[string]struct{}
	closed         bool
	reconnectTimer *time.Timer
	// dialDone is non-nil while a dial is in flight and closed when it
	// settles, so concurrent Ensure calls wait instead of dialing again.
	dialDone chan struct{}

	writeMu sync.Mutex
}

// ShopEndpoint derives the shared socket URL from the backend base URL.
func ShopEndpoint(base string) string {
	u := base
	if strings.HasPrefix(u, "http") {
		u = "ws" + strings.TrimPrefix(u, "http")
	}
	u = strings.TrimSuffix(u, "/")
	if !strings.HasSuffix(u, "/socket") {
		u += "/socket"
	}
	return u
}

func NewShopConn(opts ShopOptions) *ShopConn {
	if opts.ReconnectInterval <= 0 {
		opts.ReconnectInterval = 3 * time.Second
	}
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = 10 * time.Second
	}
	return &ShopConn{
		opts:  opts,
		url:   ShopEndpoint(opts.URL),
		state: StateDisconnected,
		rooms: make(map[string]struct{}),
	}
}

// Ensure connects with the given token if not already connected. Idempotent:
// an established connection is reused, and a call arriving while another dial
// is in flight waits for that dial's outcome instead of opening a second
// socket.
func (c *ShopConn) Ensure(ctx context.Context, token string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}
	if done := c.dialDone; done != nil {
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return ErrClosed
		}
		if c.state == StateConnected {
			return nil
		}
		return ErrNotConnected
	}
	c.token = token
	c.state = StateConnecting
	done := make(chan struct{})
	c.dialDone = done
	c.mu.Unlock()
	c.emitStatus(StateConnecting, statusConnecting)

	err := c.dial(ctx)
	c.mu.Lock()
	c.dialDone = nil
	if err != nil && !c.closed {
		c.state = StateError
	}
	c.mu.Unlock()
	close(done)
	if err != nil {
		c.emitStatus(StateError, statusError)
		return err
	}
	return nil
}

func (c *ShopConn) dial(ctx context.Context) error {
	target := c.url + "?token=" + url.QueryEscape(c.token)
	dialer := &websocket.Dialer{HandshakeTimeout: dialTimeout}
	conn, _, err := dialer.DialContext(ctx, target, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return ErrClosed
	}
	if c.conn != nil {
		// A superseded socket must not keep feeding the read loop.
		c.conn.Close()
	}
	c.conn = conn
	c.state = StateConnected
	rooms := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()

	c.emitStatus(StateConnected, statusConnected)

	// Re-enter rooms joined before the connection dropped.
	for _, id := range rooms {
		if err := c.emit(event.NameJoinConversation, event.RoomPayload{ConversationID: id}); err != nil {
			logger.Errorf("shop rejoin %s: %v", id, err)
		}
	}

	go c.readLoop(conn)
	return nil
}

func (c *ShopConn) readLoop(conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn)
			return
		}
		ev, err := event.DecodeShop(raw)
		if err != nil {
			logger.Errorf("shop frame: %v", err)
			continue
		}
		if c.opts.OnEvent != nil {
			c.opts.OnEvent(ev)
		}
	}
}

func (c *ShopConn) handleDisconnect(conn *websocket.Conn) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn.Close()
	c.conn = nil
	c.state = StateDisconnected
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	c.reconnectTimer = time.AfterFunc(c.opts.ReconnectInterval, c.reconnect)
	c.mu.Unlock()

	c.emitStatus(StateDisconnected, statusLost)
}

// reconnect redials with the stored token. Failures re-arm the same fixed
// interval; the loop never gives up while the conn is alive.
func (c *ShopConn) reconnect() {
	c.mu.Lock()
	if c.closed || c.state == StateConnected || c.dialDone != nil {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	done := make(chan struct{})
	c.dialDone = done
	c.mu.Unlock()
	c.emitStatus(StateConnecting, statusConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	err := c.dial(ctx)
	cancel()
	c.mu.Lock()
	c.dialDone = nil
	if err != nil && !c.closed {
		c.state = StateError
		if c.reconnectTimer != nil {
			c.reconnectTimer.Stop()
		}
		c.reconnectTimer = time.AfterFunc(c.opts.ReconnectInterval, c.reconnect)
	}
	c.mu.Unlock()
	close(done)
	if err != nil {
		logger.Errorf("shop redial: %v", err)
		c.emitStatus(StateError, statusError)
	}
}

// Connected reports whether the shared socket is up.
func (c *ShopConn) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// State returns the transport state.
func (c *ShopConn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Join enters a conversation room. The room is remembered and re-entered
// after reconnects.
func (c *ShopConn) Join(conversationID string) error {
	c.mu.Lock()
	c.rooms[conversationID] = struct{}{}
	c.mu.Unlock()
	return c.emit(event.NameJoinConversation, event.RoomPayload{ConversationID: conversationID})
}

// Leave exits a conversation room and forgets it.
func (c *ShopConn) Leave(conversationID string) error {
	c.mu.Lock()
	delete(c.rooms, conversationID)
	c.mu.Unlock()
	return c.emit(event.NameLeaveConversation, event.RoomPayload{ConversationID: conversationID})
}

// SendMessage sends one text message to a counterparty user.
func (c *ShopConn) SendMessage(targetUserID, content, contentType string) error {
	return c.emit(event.NameSendMessage, event.SendMessagePayload{
		TargetUserID: targetUserID,
		Content:      content,
		Type:         contentType,
	})
}

// StartTyping signals the counterparty that the user is composing.
func (c *ShopConn) StartTyping(conversationID, targetUserID string) error {
	return c.emit(event.NameStartTyping, event.TypingPayload{ConversationID: conversationID, TargetUserID: targetUserID})
}

// StopTyping clears the typing signal.
func (c *ShopConn) StopTyping(conversationID, targetUserID string) error {
	return c.emit(event.NameStopTyping, event.TypingPayload{ConversationID: conversationID, TargetUserID: targetUserID})
}

// MarkAsRead confirms the whole conversation as read upstream.
func (c *ShopConn) MarkAsRead(conversationID string) error {
	return c.emit(event.NameMarkAsRead, event.MarkAsReadPayload{ConversationID: conversationID})
}

func (c *ShopConn) emit(name string, payload any) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateConnected || c.conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.Unlock()

	env, err := event.NewEnvelope(name, payload)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.opts.SendTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(env)
}

// Close tears down the shared socket and cancels the reconnect timer.
func (c *ShopConn) Close() {
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
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateDisconnected
	c.mu.Unlock()

	c.emitStatus(StateDisconnected, statusDisconnected)
}

func (c *ShopConn) emitStatus(s State, msg string) {
	if c.opts.OnStatus != nil {
		c.opts.OnStatus(s, msg)
	}
}
