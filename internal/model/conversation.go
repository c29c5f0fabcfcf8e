package model

import "time"

// Participant is one side of a backend conversation.
type Participant struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// Conversation is a backend conversation record as returned by the REST
// collaborator. MessageCount zero means the thread is brand new and the
// widget seeds a synthesized welcome instead of fetching history.
type Conversation struct {
	ID           string        `json:"id"`
	Participants []Participant `json:"participants"`
	MessageCount int           `json:"message_count"`
	UnreadCount  int           `json:"unread_count"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// HasParticipant reports whether userID takes part in the conversation.
func (c Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}
