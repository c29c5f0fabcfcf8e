// Package widget wires the transports, reconcilers and the notification
// router into per-session chat instances behind a narrow read/dispatch
// surface. It holds no rendering; a host UI consumes snapshots and dispatches
// user input.
package widget

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aliconcon/chatwidget/internal/auth"
	"github.com/aliconcon/chatwidget/internal/event"
	"github.com/aliconcon/chatwidget/internal/model"
	"github.com/aliconcon/chatwidget/internal/notify"
	"github.com/aliconcon/chatwidget/internal/reconcile"
	"github.com/aliconcon/chatwidget/internal/store"
	"github.com/aliconcon/chatwidget/internal/transport"
)

// AIOptions configures the assistant instance.
type AIOptions struct {
	WSURL             string
	ReconnectInterval time.Duration
	HandshakeDelay    time.Duration
	TypingTimeout     time.Duration
	SendTimeout       time.Duration
	Tokens            auth.TokenSource
	Context           func() event.Context
}

// AIInstance is the always-on assistant session: its socket opens at widget
// startup whether or not the window is visible, so popups and unread counts
// keep flowing while the widget is collapsed.
type AIInstance struct {
	st     *store.Store
	conn   *transport.AIConn
	list   *reconcile.List
	router *notify.Router
	typing *notify.TypingTracker

	mu        sync.Mutex
	minimized bool
	profile   *event.Profile
	status    string
}

func NewAIInstance(st *store.Store, opts AIOptions) *AIInstance {
	inst := &AIInstance{
		st:     st,
		list:   reconcile.New(),
		status: "connecting...",
	}
	// The AI channel has no upstream read receipt; a visible message is
	// simply not counted.
	inst.router = notify.NewRouter(st, store.AISessionID, nil)
	inst.typing = notify.NewTypingTracker(orDefault(opts.TypingTimeout, 3*time.Second), nil)

	var tokenFn func() *string
	if opts.Tokens != nil {
		tokenFn = opts.Tokens.Token
	}
	inst.conn = transport.NewAIConn(transport.AIOptions{
		URL:               opts.WSURL,
		ReconnectInterval: opts.ReconnectInterval,
		HandshakeDelay:    opts.HandshakeDelay,
		SendTimeout:       opts.SendTimeout,
		AccessToken:       tokenFn,
		Context:           opts.Context,
		OnEvent:           inst.handleEvent,
		OnStatus:          inst.handleStatus,
	})
	return inst
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

// Connect opens the socket. Called once at startup.
func (a *AIInstance) Connect() { a.conn.Connect() }

func (a *AIInstance) handleStatus(_ transport.State, msg string) {
	a.mu.Lock()
	a.status = msg
	a.mu.Unlock()
}

func (a *AIInstance) handleEvent(ev event.AIEvent) {
	switch e := ev.(type) {
	case event.ProfileInitialized:
		a.mu.Lock()
		a.profile = e.Profile
		a.mu.Unlock()
		if e.WelcomeMessage != "" {
			a.list.Seed([]model.Message{{
				ID:        "welcome_" + uuid.New().String(),
				Content:   e.WelcomeMessage,
				Origin:    model.OriginPeer,
				Markdown:  true,
				Status:    model.StatusRead,
				Timestamp: e.Timestamp,
			}})
		}

	case event.ProfileError:
		a.appendSystem(fmt.Sprintf("profile initialization failed: %s", e.Message))

	case event.AIMessage:
		id := "ai_" + uuid.New().String()
		a.list.Append(model.Message{
			ID:        id,
			Content:   e.Content,
			Origin:    model.OriginPeer,
			Markdown:  e.Markdown,
			Status:    model.StatusRead,
			Timestamp: e.Timestamp,
		})
		a.typing.Clear()
		a.router.PeerMessage(id, e.Content, a.Visible())

	case event.AITyping:
		if e.IsTyping {
			a.typing.Touch()
		} else {
			a.typing.Clear()
		}

	case event.AIError:
		a.appendSystem(fmt.Sprintf("assistant error: %s", e.Message))
		a.typing.Clear()
	}
}

// appendSystem renders a protocol error as an inline system message; the
// session stays usable.
func (a *AIInstance) appendSystem(content string) {
	a.list.Append(model.Message{
		ID:        "err_" + uuid.New().String(),
		Content:   content,
		Origin:    model.OriginSystem,
		Status:    model.StatusError,
		Timestamp: time.Now(),
	})
}

// Send submits one utterance. The send is rejected while the transport is
// down or the profile handshake is pending; the caller keeps the composer
// text on error. On success an optimistic local echo is appended.
func (a *AIInstance) Send(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	if err := a.conn.SendChat(content); err != nil {
		return err
	}
	a.list.Append(model.Message{
		ID:        "usr_" + uuid.New().String(),
		Content:   content,
		Origin:    model.OriginSelf,
		Status:    model.StatusSent,
		Timestamp: time.Now(),
	})
	return nil
}

// SetMinimized tracks the window's minimized flag (store keeps open/closed).
func (a *AIInstance) SetMinimized(min bool) {
	a.mu.Lock()
	a.minimized = min
	a.mu.Unlock()
}

// Visible reports whether inbound messages should be considered seen.
func (a *AIInstance) Visible() bool {
	a.mu.Lock()
	min := a.minimized
	a.mu.Unlock()
	return a.st.IsOpen(store.AISessionID) && !min
}

// Ready reports two-phase readiness: socket connected and profile
// initialized. Input stays disabled until then.
func (a *AIInstance) Ready() bool { return a.conn.Ready() }

// ConnState returns the transport state.
func (a *AIInstance) ConnState() transport.State { return a.conn.State() }

// Status returns the passive status line.
func (a *AIInstance) Status() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Profile returns the handshake profile, nil before initialization.
func (a *AIInstance) Profile() *event.Profile {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.profile
}

// Messages returns the session's message list snapshot.
func (a *AIInstance) Messages() []model.Message { return a.list.Messages() }

// PeerTyping reports the assistant's typing indicator.
func (a *AIInstance) PeerTyping() bool { return a.typing.Active() }

// Close tears down the socket and all timers.
func (a *AIInstance) Close() {
	a.typing.Stop()
	a.conn.Close()
}
