package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliconcon/chatwidget/internal/store"
)

func popupCount(st *store.Store, id string) int {
	sess, ok := st.Get(id)
	if !ok {
		return 0
	}
	return len(sess.Popups)
}

func TestVisiblePopupExpires(t *testing.T) {
	st := store.New()
	st.Open("shop-1", store.KindShop, nil)
	st.Close("shop-1")

	w := NewPopupWatcher(st, "shop-1", 30*time.Millisecond)
	defer w.Stop()
	st.Subscribe(w.Sync)

	st.ShowPopup("shop-1", store.Popup{ID: "m1", Content: "hi"})
	require.Equal(t, 1, popupCount(st, "shop-1"))

	assert.Eventually(t, func() bool { return popupCount(st, "shop-1") == 0 },
		time.Second, 5*time.Millisecond)
}

func TestQueuedPopupsExpireInTurn(t *testing.T) {
	st := store.New()
	st.Open("shop-1", store.KindShop, nil)
	st.Close("shop-1")

	w := NewPopupWatcher(st, "shop-1", 25*time.Millisecond)
	defer w.Stop()
	st.Subscribe(w.Sync)

	st.ShowPopup("shop-1", store.Popup{ID: "m1"})
	st.ShowPopup("shop-1", store.Popup{ID: "m2"})
	st.ShowPopup("shop-1", store.Popup{ID: "m3"})

	// m3 is visible and expires first; m2 and m1 surface and expire in turn,
	// each on its own clock.
	assert.Eventually(t, func() bool { return popupCount(st, "shop-1") == 0 },
		time.Second, 5*time.Millisecond)
}

func TestSyncIsIdempotentForUnchangedPopup(t *testing.T) {
	st := store.New()
	st.Open("shop-1", store.KindShop, nil)
	st.Close("shop-1")

	w := NewPopupWatcher(st, "shop-1", 60*time.Millisecond)
	defer w.Stop()

	st.ShowPopup("shop-1", store.Popup{ID: "m1"})
	w.Sync()
	// Repeated syncs must not restart the clock.
	time.Sleep(35 * time.Millisecond)
	w.Sync()
	assert.Eventually(t, func() bool { return popupCount(st, "shop-1") == 0 },
		100*time.Millisecond, 5*time.Millisecond)
}

func TestStopCancelsPendingExpiry(t *testing.T) {
	st := store.New()
	st.Open("shop-1", store.KindShop, nil)
	st.Close("shop-1")

	w := NewPopupWatcher(st, "shop-1", 20*time.Millisecond)
	st.ShowPopup("shop-1", store.Popup{ID: "m1"})
	w.Sync()
	w.Stop()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, 1, popupCount(st, "shop-1"), "stopped watcher leaves popups alone")
}

func TestWatcherOnRemovedSession(t *testing.T) {
	st := store.New()
	st.Open("shop-1", store.KindShop, nil)
	st.Remove("shop-1")

	w := NewPopupWatcher(st, "shop-1", 20*time.Millisecond)
	defer w.Stop()
	w.Sync() // must not panic
}
