package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliconcon/chatwidget/internal/model"
)

func msg(id, content string, status model.DeliveryStatus) model.Message {
	return model.Message{ID: id, Content: content, Origin: model.OriginPeer, Status: status}
}

func contents(l *List) []string {
	out := make([]string, 0, l.Len())
	for _, m := range l.Messages() {
		out = append(out, m.Content)
	}
	return out
}

func TestSeedReplacesAndDeduplicates(t *testing.T) {
	l := New()
	l.Append(msg("old", "stale", model.StatusRead))

	l.Seed([]model.Message{
		msg("m1", "first", model.StatusRead),
		msg("m2", "second", model.StatusRead),
		msg("m1", "dup of first", model.StatusRead),
	})
	assert.Equal(t, []string{"first", "second"}, contents(l))
	assert.False(t, l.Contains("old"))
}

func TestAppendDeduplicatesById(t *testing.T) {
	l := New()
	require.True(t, l.Append(msg("m1", "original", model.StatusSent)))
	require.False(t, l.Append(msg("m1", "imposter", model.StatusSent)))

	msgs := l.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "original", msgs[0].Content, "first arrival owns identity and content")
}

func TestAckReplacesInPlace(t *testing.T) {
	l := New()
	l.Append(msg("m1", "a", model.StatusSent))
	l.Append(msg("m2", "pending send", model.StatusSent))
	l.Append(msg("m3", "c", model.StatusSent))

	l.Ack(msg("m2", "pending send (server copy)", model.StatusSent))
	assert.Equal(t, []string{"a", "pending send (server copy)", "c"}, contents(l),
		"ack keeps the message's position")
}

func TestAckAppendsUnknownId(t *testing.T) {
	l := New()
	l.Ack(msg("m1", "fresh", model.StatusSent))
	assert.Equal(t, []string{"fresh"}, contents(l))
}

func TestAckNeverRegressesStatus(t *testing.T) {
	l := New()
	l.Append(msg("m1", "a", model.StatusRead))
	l.Ack(msg("m1", "a", model.StatusSent))
	assert.Equal(t, model.StatusRead, l.Messages()[0].Status)
}

func TestUpgradeStatusIsMonotonic(t *testing.T) {
	l := New()
	l.Append(msg("m1", "a", model.StatusSent))

	l.UpgradeStatus("m1", model.StatusDelivered)
	assert.Equal(t, model.StatusDelivered, l.Messages()[0].Status)

	l.UpgradeStatus("m1", model.StatusRead)
	assert.Equal(t, model.StatusRead, l.Messages()[0].Status)

	l.UpgradeStatus("m1", model.StatusDelivered)
	assert.Equal(t, model.StatusRead, l.Messages()[0].Status, "read never regresses to delivered")

	l.UpgradeStatus("ghost", model.StatusRead)
	assert.Equal(t, 1, l.Len())
}

func TestMarkAllReadLeavesErrorTerminal(t *testing.T) {
	l := New()
	l.Append(msg("m1", "a", model.StatusSent))
	l.Append(msg("m2", "b", model.StatusError))

	l.MarkAllRead()
	msgs := l.Messages()
	assert.Equal(t, model.StatusRead, msgs[0].Status)
	assert.Equal(t, model.StatusError, msgs[1].Status)
}

func TestReplayIsIdempotent(t *testing.T) {
	l := New()
	history := []model.Message{
		msg("m1", "a", model.StatusRead),
		msg("m2", "b", model.StatusRead),
	}
	l.Seed(history)
	// Live pushes racing the history fetch replay the same ids.
	l.Append(msg("m2", "b", model.StatusSent))
	l.Append(msg("m3", "c", model.StatusSent))
	l.Append(msg("m3", "c", model.StatusSent))

	assert.Equal(t, []string{"a", "b", "c"}, contents(l))
	assert.Equal(t, model.StatusRead, l.Messages()[1].Status)
}

func TestOrderIsArrivalNotTimestamp(t *testing.T) {
	l := New()
	late := msg("m1", "arrived first, stamped later", model.StatusSent)
	early := msg("m2", "arrived second, stamped earlier", model.StatusSent)
	l.Append(late)
	l.Append(early)
	assert.Equal(t, []string{late.Content, early.Content}, contents(l))
}
