// Package store holds the process-wide table of chat sessions. It is the
// single owner of open/closed state, unread counters and popup queues; all
// mutation goes through the operations below and every operation is total.
package store

import (
	"sync"
	"time"

	"github.com/aliconcon/chatwidget/internal/model"
)

// AISessionID is the sentinel id of the assistant session. The session is
// created with the store and can never be removed.
const AISessionID = "ai"

type Kind string

const (
	KindAI   Kind = "ai"
	KindShop Kind = "shop"
)

// Popup is a transient preview notification for an unseen message. ID is the
// originating message id so a popup can be dismissed without ambiguity.
type Popup struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one chat thread tied to a counterparty.
type Session struct {
	ID          string      `json:"id"`
	Kind        Kind        `json:"kind"`
	Shop        *model.Shop `json:"shop,omitempty"`
	IsOpen      bool        `json:"is_open"`
	UnreadCount int         `json:"unread_count"`
	Popups      []Popup     `json:"popups"`
}

// VisiblePopup returns the popup currently rendered for the session: the most
// recent one. Older queued popups surface in turn as newer ones are removed.
func (s *Session) VisiblePopup() (Popup, bool) {
	if len(s.Popups) == 0 {
		return Popup{}, false
	}
	return s.Popups[len(s.Popups)-1], true
}

func (s *Session) clone() *Session {
	c := *s
	c.Popups = append([]Popup(nil), s.Popups...)
	if s.Shop != nil {
		shop := *s.Shop
		c.Shop = &shop
	}
	return &c
}

// Store is the session table. Subscribers are invoked after every mutation
// that changed state, outside the lock; no-op calls stay silent.
type Store struct {
	mu       sync.RWMutex
	order    []string
	sessions map[string]*Session
	subs     []func()
}

// New creates a store pre-seeded with the permanent AI session.
func New() *Store {
	s := &Store{sessions: make(map[string]*Session)}
	s.sessions[AISessionID] = &Session{ID: AISessionID, Kind: KindAI}
	s.order = append(s.order, AISessionID)
	return s
}

// Subscribe registers a callback fired after every effective mutation.
// Intended for the presentation layer and popup watchers; callbacks must not
// mutate the store recursively except through RemovePopup.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

func (s *Store) notify() {
	s.mu.RLock()
	subs := append(([]func())(nil), s.subs...)
	s.mu.RUnlock()
	for _, fn := range subs {
		fn()
	}
}

// Open creates the session if absent and reveals it. Opening always clears
// the unread counter.
func (s *Store) Open(id string, kind Kind, shop *model.Shop) {
	s.mu.Lock()
	changed := false
	sess, ok := s.sessions[id]
	if ok {
		changed = !sess.IsOpen || sess.UnreadCount != 0
		sess.IsOpen = true
		sess.UnreadCount = 0
	} else {
		s.sessions[id] = &Session{ID: id, Kind: kind, Shop: shop, IsOpen: true}
		s.order = append(s.order, id)
		changed = true
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Close collapses the session window. The session itself stays in the table.
func (s *Store) Close(id string) {
	s.mu.Lock()
	changed := false
	if sess, ok := s.sessions[id]; ok && sess.IsOpen {
		sess.IsOpen = false
		changed = true
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Toggle flips the window state; opening clears unread.
func (s *Store) Toggle(id string) {
	s.mu.Lock()
	changed := false
	if sess, ok := s.sessions[id]; ok {
		sess.IsOpen = !sess.IsOpen
		if sess.IsOpen {
			sess.UnreadCount = 0
		}
		changed = true
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// AddUnread bumps the unread counter. No-op while the session is open.
func (s *Store) AddUnread(id string) {
	s.mu.Lock()
	changed := false
	if sess, ok := s.sessions[id]; ok && !sess.IsOpen {
		sess.UnreadCount++
		changed = true
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// ShowPopup enqueues a preview popup. No-op while the session is open.
func (s *Store) ShowPopup(id string, popup Popup) {
	if popup.CreatedAt.IsZero() {
		popup.CreatedAt = time.Now()
	}
	s.mu.Lock()
	changed := false
	if sess, ok := s.sessions[id]; ok && !sess.IsOpen {
		sess.Popups = append(sess.Popups, popup)
		changed = true
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// RemovePopup dismisses one popup by id.
func (s *Store) RemovePopup(id, popupID string) {
	s.mu.Lock()
	changed := false
	if sess, ok := s.sessions[id]; ok {
		kept := sess.Popups[:0]
		for _, p := range sess.Popups {
			if p.ID != popupID {
				kept = append(kept, p)
			}
		}
		changed = len(kept) != len(sess.Popups)
		sess.Popups = kept
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Remove drops a session from the table. The AI session is structurally
// permanent and cannot be removed.
func (s *Store) Remove(id string) {
	if id == AISessionID {
		return
	}
	s.mu.Lock()
	_, changed := s.sessions[id]
	if changed {
		delete(s.sessions, id)
		kept := s.order[:0]
		for _, oid := range s.order {
			if oid != id {
				kept = append(kept, oid)
			}
		}
		s.order = kept
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Get returns a snapshot of one session.
func (s *Store) Get(id string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return sess.clone(), true
}

// IsOpen reports whether the session window is currently expanded.
func (s *Store) IsOpen(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	return ok && sess.IsOpen
}

// Sessions returns a snapshot of all sessions in creation order.
func (s *Store) Sessions() []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.sessions[id].clone())
	}
	return out
}
