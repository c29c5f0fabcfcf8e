package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliconcon/chatwidget/internal/store"
)

func TestPeerMessageVisibleMarksReadOnly(t *testing.T) {
	st := store.New()
	st.Open("shop-1", store.KindShop, nil)

	reads := 0
	r := NewRouter(st, "shop-1", func() { reads++ })
	r.PeerMessage("m1", "hello", true)

	assert.Equal(t, 1, reads)
	sess, _ := st.Get("shop-1")
	assert.Equal(t, 0, sess.UnreadCount)
	assert.Empty(t, sess.Popups)
}

func TestPeerMessageHiddenCountsAndPops(t *testing.T) {
	st := store.New()
	st.Open("shop-1", store.KindShop, nil)
	st.Close("shop-1")

	reads := 0
	r := NewRouter(st, "shop-1", func() { reads++ })
	r.PeerMessage("m1", "hello", false)
	r.PeerMessage("m2", "again", false)

	assert.Equal(t, 0, reads)
	sess, _ := st.Get("shop-1")
	assert.Equal(t, 2, sess.UnreadCount)
	require.Len(t, sess.Popups, 2)
	p, _ := sess.VisiblePopup()
	assert.Equal(t, "m2", p.ID)
	assert.Equal(t, "again", p.Content)
}

func TestPeerMessageWithoutMarkReadCallback(t *testing.T) {
	st := store.New()
	st.Open(store.AISessionID, store.KindAI, nil)

	r := NewRouter(st, store.AISessionID, nil)
	r.PeerMessage("m1", "hello", true) // must not panic

	sess, _ := st.Get(store.AISessionID)
	assert.Equal(t, 0, sess.UnreadCount)
}
