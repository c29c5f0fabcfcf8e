// Package event defines the wire events exchanged with the chat backend as a
// closed set of Go types. Inbound frames are decoded once at the transport
// boundary into a tagged variant; downstream code switches exhaustively
// instead of re-inspecting type strings.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/aliconcon/chatwidget/internal/model"
)

type Type string

// AI channel frame types.
const (
	TypeInitProfile        Type = "init_profile"
	TypeChat               Type = "chat"
	TypeProfileInitialized Type = "profile_initialized"
	TypeProfileError       Type = "profile_error"
	TypeMessage            Type = "message"
	TypeTyping             Type = "typing"
	TypeError              Type = "error"
)

// Shop channel event names.
const (
	NameNewMessage        = "new_message"
	NameMessageSent       = "message_sent"
	NameMessageDelivered  = "message_delivered"
	NameUserTyping        = "user_typing"
	NameUserStopTyping    = "user_stop_typing"
	NameSendMessage       = "sendMessage"
	NameStartTyping       = "startTyping"
	NameStopTyping        = "stopTyping"
	NameMarkAsRead        = "markAsRead"
	NameJoinConversation  = "joinConversation"
	NameLeaveConversation = "leaveConversation"
)

// Context is the snapshot attached to AI-channel sends and handshakes.
// It is regenerated per send and per (re)connect, never persisted.
type Context struct {
	CurrentPage string    `json:"currentPage"`
	Language    string    `json:"language"`
	Timestamp   time.Time `json:"timestamp"`
	SearchQuery string    `json:"searchQuery,omitempty"`
}

// Profile describes the authenticated (or guest) user as reported by the AI
// backend after the handshake.
type Profile struct {
	IsGuest  bool   `json:"isGuest"`
	UserID   string `json:"user_id,omitempty"`
	FullName string `json:"user_fullName,omitempty"`
}

// --- AI channel: outbound frames ---

// InitProfileFrame is the post-connect handshake request.
type InitProfileFrame struct {
	Type        Type    `json:"type"`
	AccessToken *string `json:"accessToken"`
	Context     Context `json:"context"`
}

// ChatFrame carries one user utterance to the assistant.
type ChatFrame struct {
	Type    Type    `json:"type"`
	Content string  `json:"content"`
	Context Context `json:"context"`
}

// --- AI channel: inbound variants ---

// AIEvent is the closed set of inbound AI-channel events.
type AIEvent interface{ aiEvent() }

type ProfileInitialized struct {
	Profile        *Profile
	WelcomeMessage string
	Timestamp      time.Time
}

type ProfileError struct{ Message string }

type AIMessage struct {
	Content   string
	Markdown  bool
	Timestamp time.Time
}

type AITyping struct{ IsTyping bool }

type AIError struct{ Message string }

func (ProfileInitialized) aiEvent() {}
func (ProfileError) aiEvent()       {}
func (AIMessage) aiEvent()          {}
func (AITyping) aiEvent()           {}
func (AIError) aiEvent()            {}

// aiFrame is the superset shape used for decoding inbound AI frames.
type aiFrame struct {
	Type           Type       `json:"type"`
	Profile        *Profile   `json:"profile,omitempty"`
	WelcomeMessage string     `json:"welcomeMessage,omitempty"`
	Content        string     `json:"content,omitempty"`
	Markdown       bool       `json:"markdown,omitempty"`
	IsTyping       bool       `json:"isTyping,omitempty"`
	Message        string     `json:"message,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

// DecodeAI parses one inbound AI frame into its variant.
func DecodeAI(raw []byte) (AIEvent, error) {
	var f aiFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode ai frame: %w", err)
	}
	ts := time.Now()
	if f.Timestamp != nil {
		ts = *f.Timestamp
	}
	switch f.Type {
	case TypeProfileInitialized:
		return ProfileInitialized{Profile: f.Profile, WelcomeMessage: f.WelcomeMessage, Timestamp: ts}, nil
	case TypeProfileError:
		return ProfileError{Message: f.Message}, nil
	case TypeMessage:
		return AIMessage{Content: f.Content, Markdown: f.Markdown, Timestamp: ts}, nil
	case TypeTyping:
		return AITyping{IsTyping: f.IsTyping}, nil
	case TypeError:
		return AIError{Message: f.Message}, nil
	default:
		return nil, fmt.Errorf("decode ai frame: unknown type %q", f.Type)
	}
}

// --- Shop channel ---

// Envelope is the multiplexed shop-socket frame: an event name plus payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// WireMessage is a chat message as carried on the shop socket and the REST
// history endpoint.
type WireMessage struct {
	ID             string     `json:"_id"`
	ConversationID string     `json:"conversationId,omitempty"`
	Content        string     `json:"content"`
	ContentType    string     `json:"type,omitempty"`
	Sender         WireUser   `json:"sender"`
	Receiver       *WireUser  `json:"receiver,omitempty"`
	Status         string     `json:"status,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

type WireUser struct {
	ID       string `json:"id"`
	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// ToModel normalizes a wire message relative to the local user.
func (w WireMessage) ToModel(currentUserID string) model.Message {
	origin := model.OriginPeer
	if w.Sender.ID == currentUserID {
		origin = model.OriginSelf
	}
	status := model.DeliveryStatus(w.Status)
	if status == "" {
		status = model.StatusSent
	}
	ts := time.Now()
	if w.Timestamp != nil {
		ts = *w.Timestamp
	}
	return model.Message{
		ID:        w.ID,
		Content:   w.Content,
		Origin:    origin,
		SenderID:  w.Sender.ID,
		Status:    status,
		Timestamp: ts,
	}
}

// ShopEvent is the closed set of inbound shop-channel events.
type ShopEvent interface{ shopEvent() }

type NewMessage struct{ Message WireMessage }

type MessageSent struct{ Message WireMessage }

type MessageDelivered struct {
	MessageID      string `json:"_id"`
	ConversationID string `json:"conversationId,omitempty"`
}

type UserTyping struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

type UserStopTyping struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
}

func (NewMessage) shopEvent()       {}
func (MessageSent) shopEvent()      {}
func (MessageDelivered) shopEvent() {}
func (UserTyping) shopEvent()       {}
func (UserStopTyping) shopEvent()   {}

// DecodeShop parses one inbound shop-socket envelope into its variant.
func DecodeShop(raw []byte) (ShopEvent, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode shop frame: %w", err)
	}
	switch env.Event {
	case NameNewMessage:
		var m WireMessage
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return NewMessage{Message: m}, nil
	case NameMessageSent:
		var m WireMessage
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return MessageSent{Message: m}, nil
	case NameMessageDelivered:
		var d MessageDelivered
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return d, nil
	case NameUserTyping:
		var d UserTyping
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return d, nil
	case NameUserStopTyping:
		var d UserStopTyping
		if err := json.Unmarshal(env.Data, &d); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		return d, nil
	default:
		return nil, fmt.Errorf("decode shop frame: unknown event %q", env.Event)
	}
}

// --- Shop channel: outbound payloads ---

type SendMessagePayload struct {
	TargetUserID string `json:"targetUserId"`
	Content      string `json:"content"`
	Type         string `json:"type"`
}

type TypingPayload struct {
	ConversationID string `json:"conversationId"`
	TargetUserID   string `json:"targetUserId"`
}

type MarkAsReadPayload struct {
	ConversationID string `json:"conversationId"`
}

type RoomPayload struct {
	ConversationID string `json:"conversationId"`
}

// NewEnvelope wraps an outbound payload. Marshal errors cannot occur for the
// payload types above, so the data is built eagerly.
func NewEnvelope(name string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", name, err)
	}
	return Envelope{Event: name, Data: data}, nil
}
