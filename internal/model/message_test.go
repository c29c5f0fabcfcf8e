package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeliveryStatusAtLeast(t *testing.T) {
	assert.True(t, StatusRead.AtLeast(StatusDelivered))
	assert.True(t, StatusDelivered.AtLeast(StatusSent))
	assert.False(t, StatusSent.AtLeast(StatusDelivered))
	assert.True(t, StatusRead.AtLeast(StatusRead))
	assert.True(t, StatusError.AtLeast(StatusRead), "error is terminal")
}

func TestShopTargetUserID(t *testing.T) {
	assert.Equal(t, "owner-1", Shop{ID: "shop-1", UserID: "owner-1"}.TargetUserID())
	assert.Equal(t, "shop-1", Shop{ID: "shop-1"}.TargetUserID(), "falls back to the shop id")
}

func TestConversationHasParticipant(t *testing.T) {
	c := Conversation{Participants: []Participant{{UserID: "a"}, {UserID: "b"}}}
	assert.True(t, c.HasParticipant("b"))
	assert.False(t, c.HasParticipant("c"))
}
