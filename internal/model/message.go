package model

import "time"

type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusError     DeliveryStatus = "error"
)

// rank orders statuses for monotonic upgrades. Error is terminal and sits
// above everything so it can never be overwritten.
func (s DeliveryStatus) rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	case StatusError:
		return 4
	}
	return 0
}

// AtLeast reports whether s is already at or past other.
func (s DeliveryStatus) AtLeast(other DeliveryStatus) bool {
	return s.rank() >= other.rank()
}

type Origin string

const (
	OriginSelf   Origin = "self"
	OriginPeer   Origin = "peer"
	OriginSystem Origin = "system"
)

// Message is the normalized unit exchanged on a session. ID is the
// deduplication key; multiple arrival paths for the same logical message
// collapse to one entry.
type Message struct {
	ID        string         `json:"id"`
	Content   string         `json:"content"`
	Origin    Origin         `json:"origin"`
	SenderID  string         `json:"sender_id,omitempty"`
	Markdown  bool           `json:"markdown,omitempty"`
	Status    DeliveryStatus `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
}
