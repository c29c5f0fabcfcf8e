// Package reconcile merges message events from overlapping arrival paths
// (history fetch, live push, local echo) into one ordered, deduplicated list
// per session.
package reconcile

import (
	"sync"

	"github.com/aliconcon/chatwidget/internal/model"
)

// List is a session's message list. Ordering is by arrival, never re-sorted
// by timestamp: under clock skew the user's real-time perception wins.
// Messages are unique by id; identity and content are first-write-wins,
// delivery status is last-write-wins but monotonic.
type List struct {
	mu    sync.Mutex
	msgs  []model.Message
	index map[string]int
}

func New() *List {
	return &List{index: make(map[string]int)}
}

// Seed replaces the list with fetched history, deduplicating by id in case
// the backend page contains repeats.
func (l *List) Seed(msgs []model.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.msgs = l.msgs[:0]
	l.index = make(map[string]int, len(msgs))
	for _, m := range msgs {
		if _, seen := l.index[m.ID]; seen {
			continue
		}
		l.index[m.ID] = len(l.msgs)
		l.msgs = append(l.msgs, m)
	}
}

// Append adds a live-pushed message. A message whose id is already present is
// dropped entirely; the first arrival owns identity and content. Reports
// whether the message was actually added.
func (l *List) Append(m model.Message) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, seen := l.index[m.ID]; seen {
		return false
	}
	l.index[m.ID] = len(l.msgs)
	l.msgs = append(l.msgs, m)
	return true
}

// Ack applies a send acknowledgement. If the id matches an optimistic local
// placeholder it is replaced in place, preserving position; otherwise the
// message is appended. The delivery status never regresses.
func (l *List) Ack(m model.Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if i, seen := l.index[m.ID]; seen {
		if l.msgs[i].Status.AtLeast(m.Status) {
			m.Status = l.msgs[i].Status
		}
		l.msgs[i] = m
		return
	}
	l.index[m.ID] = len(l.msgs)
	l.msgs = append(l.msgs, m)
}

// UpgradeStatus raises the delivery status of one message. Downgrades are
// ignored (read never regresses to delivered); unknown ids are no-ops.
func (l *List) UpgradeStatus(id string, status model.DeliveryStatus) {
	l.mu.Lock()
	defer l.mu.Unlock()
	i, seen := l.index[id]
	if !seen {
		return
	}
	if l.msgs[i].Status.AtLeast(status) {
		return
	}
	l.msgs[i].Status = status
}

// MarkAllRead upgrades every message to read. Used when the counterparty
// confirms a whole-conversation read.
func (l *List) MarkAllRead() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.msgs {
		if !l.msgs[i].Status.AtLeast(model.StatusRead) {
			l.msgs[i].Status = model.StatusRead
		}
	}
}

// Messages returns a snapshot of the list.
func (l *List) Messages() []model.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.Message(nil), l.msgs...)
}

// Len returns the current number of messages.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.msgs)
}

// Contains reports whether a message id is present.
func (l *List) Contains(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, seen := l.index[id]
	return seen
}
