package notify

import (
	"sync"
	"time"

	"github.com/aliconcon/chatwidget/internal/store"
)

// PopupWatcher expires the visible popup of one session after a fixed display
// duration. Only the most recent popup is visible; its clock starts when it
// becomes visible, so queued popups get their full duration in turn.
type PopupWatcher struct {
	store     *store.Store
	sessionID string
	ttl       time.Duration

	mu      sync.Mutex
	timer   *time.Timer
	current string
	stopped bool
}

func NewPopupWatcher(s *store.Store, sessionID string, ttl time.Duration) *PopupWatcher {
	return &PopupWatcher{store: s, sessionID: sessionID, ttl: ttl}
}

// Sync re-reads the session's visible popup and (re)schedules its expiry if
// it changed. Safe to call from store subscriptions: it is idempotent for an
// unchanged visible popup.
func (w *PopupWatcher) Sync() {
	sess, ok := w.store.Get(w.sessionID)

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	if !ok {
		w.cancelLocked()
		w.mu.Unlock()
		return
	}
	popup, visible := sess.VisiblePopup()
	if !visible {
		w.cancelLocked()
		w.mu.Unlock()
		return
	}
	if popup.ID == w.current && w.timer != nil {
		w.mu.Unlock()
		return
	}
	w.cancelLocked()
	w.current = popup.ID
	id := popup.ID
	w.timer = time.AfterFunc(w.ttl, func() { w.expire(id) })
	w.mu.Unlock()
}

func (w *PopupWatcher) expire(popupID string) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.timer = nil
	w.current = ""
	w.mu.Unlock()

	w.store.RemovePopup(w.sessionID, popupID)
	// The next queued popup, if any, becomes visible now.
	w.Sync()
}

func (w *PopupWatcher) cancelLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.current = ""
}

// Stop cancels the pending expiry. Called on teardown.
func (w *PopupWatcher) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.cancelLocked()
	w.mu.Unlock()
}
