// Package notify decides what an inbound message does to the session's
// notification state and owns every timer in the widget: popup expiry, the
// peer typing indicator and the local typing emitter. Timers are explicit
// cancellable tasks, always cleared on teardown.
package notify

import (
	"github.com/aliconcon/chatwidget/internal/store"
)

// Router routes one session's inbound peer messages: read silently while the
// window is visible, otherwise count unread and surface a popup.
type Router struct {
	store     *store.Store
	sessionID string

	// markRead confirms the read upstream (e.g. markAsRead on the shop
	// socket). Nil for channels without read receipts.
	markRead func()
}

func NewRouter(s *store.Store, sessionID string, markRead func()) *Router {
	return &Router{store: s, sessionID: sessionID, markRead: markRead}
}

// PeerMessage applies the routing rule for one inbound peer message.
// visible is the caller's snapshot of "open and not minimized".
func (r *Router) PeerMessage(messageID, preview string, visible bool) {
	if visible {
		if r.markRead != nil {
			r.markRead()
		}
		return
	}
	r.store.AddUnread(r.sessionID)
	r.store.ShowPopup(r.sessionID, store.Popup{ID: messageID, Content: preview})
}
