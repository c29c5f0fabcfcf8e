package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliconcon/chatwidget/internal/model"
)

func TestNewSeedsPermanentAISession(t *testing.T) {
	s := New()
	sess, ok := s.Get(AISessionID)
	require.True(t, ok)
	assert.Equal(t, KindAI, sess.Kind)
	assert.False(t, sess.IsOpen)

	s.Remove(AISessionID)
	_, ok = s.Get(AISessionID)
	assert.True(t, ok, "ai session must survive Remove")
}

func TestOpenCreatesAndClearsUnread(t *testing.T) {
	s := New()
	s.Open("shop-1", KindShop, &model.Shop{ID: "shop-1", Name: "Acme"})
	require.True(t, s.IsOpen("shop-1"))

	s.Close("shop-1")
	s.AddUnread("shop-1")
	s.AddUnread("shop-1")
	sess, _ := s.Get("shop-1")
	assert.Equal(t, 2, sess.UnreadCount)

	s.Open("shop-1", KindShop, nil)
	sess, _ = s.Get("shop-1")
	assert.True(t, sess.IsOpen)
	assert.Equal(t, 0, sess.UnreadCount)
	assert.Equal(t, "Acme", sess.Shop.Name, "reopening keeps the original shop meta")
}

func TestToggleClearsUnreadOnlyWhenOpening(t *testing.T) {
	s := New()
	s.Open("shop-1", KindShop, nil)
	s.Close("shop-1")
	s.AddUnread("shop-1")

	s.Toggle("shop-1") // closed -> open
	sess, _ := s.Get("shop-1")
	assert.True(t, sess.IsOpen)
	assert.Equal(t, 0, sess.UnreadCount)

	s.Toggle("shop-1") // open -> closed
	s.AddUnread("shop-1")
	s.Toggle("shop-1")
	sess, _ = s.Get("shop-1")
	assert.Equal(t, 0, sess.UnreadCount)
}

func TestUnreadAndPopupSuppressedWhileOpen(t *testing.T) {
	s := New()
	s.Open("shop-1", KindShop, nil)

	s.AddUnread("shop-1")
	s.ShowPopup("shop-1", Popup{ID: "m1", Content: "hi"})

	sess, _ := s.Get("shop-1")
	assert.Equal(t, 0, sess.UnreadCount)
	assert.Empty(t, sess.Popups)
}

func TestVisiblePopupIsMostRecent(t *testing.T) {
	s := New()
	s.Open("shop-1", KindShop, nil)
	s.Close("shop-1")

	for _, id := range []string{"m1", "m2", "m3"} {
		s.AddUnread("shop-1")
		s.ShowPopup("shop-1", Popup{ID: id, Content: id})
	}
	sess, _ := s.Get("shop-1")
	assert.Equal(t, 3, sess.UnreadCount)
	p, ok := sess.VisiblePopup()
	require.True(t, ok)
	assert.Equal(t, "m3", p.ID)

	// Opening reveals the window and resets unread; queued popups are owned
	// by the watcher and expire on their own clock.
	s.Open("shop-1", KindShop, nil)
	sess, _ = s.Get("shop-1")
	assert.Equal(t, 0, sess.UnreadCount)
}

func TestRemovePopup(t *testing.T) {
	s := New()
	s.Open("shop-1", KindShop, nil)
	s.Close("shop-1")
	s.ShowPopup("shop-1", Popup{ID: "m1"})
	s.ShowPopup("shop-1", Popup{ID: "m2"})

	s.RemovePopup("shop-1", "m2")
	sess, _ := s.Get("shop-1")
	require.Len(t, sess.Popups, 1)
	p, _ := sess.VisiblePopup()
	assert.Equal(t, "m1", p.ID, "next queued popup surfaces")

	s.RemovePopup("shop-1", "m1")
	sess, _ = s.Get("shop-1")
	_, ok := sess.VisiblePopup()
	assert.False(t, ok)
}

func TestMutationsOnUnknownSessionAreNoOps(t *testing.T) {
	s := New()
	s.Close("ghost")
	s.Toggle("ghost")
	s.AddUnread("ghost")
	s.ShowPopup("ghost", Popup{ID: "m1"})
	s.RemovePopup("ghost", "m1")
	s.Remove("ghost")
	assert.Len(t, s.Sessions(), 1)
}

func TestRemoveDropsSessionAndOrder(t *testing.T) {
	s := New()
	s.Open("shop-1", KindShop, nil)
	s.Open("shop-2", KindShop, nil)
	s.Remove("shop-1")

	ids := make([]string, 0)
	for _, sess := range s.Sessions() {
		ids = append(ids, sess.ID)
	}
	assert.Equal(t, []string{AISessionID, "shop-2"}, ids)
}

func TestSubscribeFiresAfterEveryMutation(t *testing.T) {
	s := New()
	calls := 0
	s.Subscribe(func() { calls++ })

	s.Open("shop-1", KindShop, nil)
	s.Close("shop-1")
	s.AddUnread("shop-1")
	assert.Equal(t, 3, calls)
}

func TestSubscribeSilentOnNoOpMutations(t *testing.T) {
	s := New()
	s.Open("shop-1", KindShop, nil)

	calls := 0
	s.Subscribe(func() { calls++ })

	// Nothing below changes any state, so nothing may fire.
	s.Open("shop-1", KindShop, nil) // already open, unread already 0
	s.AddUnread("shop-1")           // suppressed while open
	s.ShowPopup("shop-1", Popup{ID: "m1"})
	s.RemovePopup("shop-1", "absent")
	s.Close("ghost")
	s.AddUnread("ghost")
	s.Remove("ghost")
	s.Remove(AISessionID)
	assert.Equal(t, 0, calls)

	s.Close("shop-1")
	assert.Equal(t, 1, calls)
	s.Close("shop-1") // already closed
	assert.Equal(t, 1, calls)

	s.ShowPopup("shop-1", Popup{ID: "m1"})
	s.RemovePopup("shop-1", "m1")
	assert.Equal(t, 3, calls)
}

func TestShowPopupDefaultsCreatedAt(t *testing.T) {
	s := New()
	s.Open("shop-1", KindShop, nil)
	s.Close("shop-1")
	before := time.Now()
	s.ShowPopup("shop-1", Popup{ID: "m1"})
	sess, _ := s.Get("shop-1")
	p, ok := sess.VisiblePopup()
	require.True(t, ok)
	assert.False(t, p.CreatedAt.Before(before))
}

func TestSnapshotsAreDetached(t *testing.T) {
	s := New()
	s.Open("shop-1", KindShop, &model.Shop{ID: "shop-1", Name: "Acme"})
	s.Close("shop-1")
	s.ShowPopup("shop-1", Popup{ID: "m1"})

	snap, _ := s.Get("shop-1")
	snap.Shop.Name = "mutated"
	snap.Popups[0].ID = "mutated"

	fresh, _ := s.Get("shop-1")
	assert.Equal(t, "Acme", fresh.Shop.Name)
	assert.Equal(t, "m1", fresh.Popups[0].ID)
}
