package devserver

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/aliconcon/chatwidget/internal/event"
	"github.com/aliconcon/chatwidget/internal/logger"
)

const writeWait = 10 * time.Second

// --- AI assistant socket ---

type aiFrame struct {
	Type        event.Type `json:"type"`
	AccessToken *string    `json:"accessToken"`
	Content     string     `json:"content"`
}

// serveAISocket speaks the assistant protocol: init_profile is answered with
// profile_initialized plus a welcome, every chat frame with a typing pulse
// and an echoed reply.
func (s *Server) serveAISocket(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ai upgrade: %v", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(v)
	}

	for {
		var f aiFrame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Type {
		case event.TypeInitProfile:
			profile := map[string]any{"isGuest": true}
			if f.AccessToken != nil && *f.AccessToken != "" {
				profile = map[string]any{"isGuest": false, "user_id": *f.AccessToken, "user_fullName": *f.AccessToken}
			}
			err = send(map[string]any{
				"type":           event.TypeProfileInitialized,
				"profile":        profile,
				"welcomeMessage": "Hi! I am the shopping assistant. Ask me about products, shops or anything you need.",
				"timestamp":      time.Now().UTC(),
			})
		case event.TypeChat:
			if err = send(map[string]any{"type": event.TypeTyping, "isTyping": true}); err == nil {
				err = send(map[string]any{
					"type":      event.TypeMessage,
					"content":   "You said: " + f.Content,
					"markdown":  false,
					"timestamp": time.Now().UTC(),
				})
			}
			if err == nil {
				err = send(map[string]any{"type": event.TypeTyping, "isTyping": false})
			}
		default:
			err = send(map[string]any{"type": event.TypeError, "message": "unknown frame type"})
		}
		if err != nil {
			logger.Errorf("ai write: %v", err)
			return
		}
	}
}

// --- Shared shop socket ---

type shopClient struct {
	userID string
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (c *shopClient) send(env event.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(env)
}

func (s *Server) serveShopSocket(w http.ResponseWriter, r *http.Request) {
	userID := bearerUser(r)
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("shop upgrade: %v", err)
		return
	}

	client := &shopClient{userID: userID, conn: conn}
	s.mu.Lock()
	if old, ok := s.clients[userID]; ok {
		old.conn.Close()
	}
	s.clients[userID] = client
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.clients[userID] == client {
			delete(s.clients, userID)
		}
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		var env event.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		s.handleShopFrame(client, env)
	}
}

func (s *Server) handleShopFrame(c *shopClient, env event.Envelope) {
	switch env.Event {
	case event.NameJoinConversation:
		var p event.RoomPayload
		if decode(env.Data, &p) {
			s.mu.Lock()
			if s.rooms[p.ConversationID] == nil {
				s.rooms[p.ConversationID] = make(map[string]struct{})
			}
			s.rooms[p.ConversationID][c.userID] = struct{}{}
			s.mu.Unlock()
		}

	case event.NameLeaveConversation:
		var p event.RoomPayload
		if decode(env.Data, &p) {
			s.mu.Lock()
			delete(s.rooms[p.ConversationID], c.userID)
			s.mu.Unlock()
		}

	case event.NameSendMessage:
		var p event.SendMessagePayload
		if !decode(env.Data, &p) {
			return
		}
		conv := s.findOrCreate(c.userID, p.TargetUserID)
		msg := wireMessage(conv.ID, c.userID, p.Content)

		// Deliver to the target plus everyone in the conversation room,
		// never back to the sender.
		s.mu.Lock()
		conv.Messages = append(conv.Messages, msg)
		recipients := make(map[string]*shopClient)
		if target := s.clients[p.TargetUserID]; target != nil {
			recipients[p.TargetUserID] = target
		}
		for uid := range s.rooms[conv.ID] {
			if uid == c.userID {
				continue
			}
			if cl := s.clients[uid]; cl != nil {
				recipients[uid] = cl
			}
		}
		s.mu.Unlock()

		s.emitTo(c, event.NameMessageSent, msg)
		for _, cl := range recipients {
			s.emitTo(cl, event.NameNewMessage, msg)
		}
		if len(recipients) > 0 {
			s.emitTo(c, event.NameMessageDelivered, event.MessageDelivered{
				MessageID:      msg.ID,
				ConversationID: conv.ID,
			})
		}

	case event.NameStartTyping:
		s.relayTyping(c, env, event.NameUserTyping)

	case event.NameStopTyping:
		s.relayTyping(c, env, event.NameUserStopTyping)

	case event.NameMarkAsRead:
		var p event.MarkAsReadPayload
		if !decode(env.Data, &p) {
			return
		}
		s.mu.Lock()
		if conv, ok := s.conversations[p.ConversationID]; ok {
			for i := range conv.Messages {
				conv.Messages[i].Status = "read"
			}
		}
		s.mu.Unlock()

	default:
		logger.Errorf("shop frame: unknown event %q", env.Event)
	}
}

func (s *Server) relayTyping(c *shopClient, env event.Envelope, name string) {
	var p event.TypingPayload
	if !decode(env.Data, &p) {
		return
	}
	s.mu.Lock()
	target := s.clients[p.TargetUserID]
	s.mu.Unlock()
	if target == nil {
		return
	}
	payload := map[string]string{"userId": c.userID, "conversationId": p.ConversationID}
	out, err := event.NewEnvelope(name, payload)
	if err != nil {
		return
	}
	if err := target.send(out); err != nil {
		logger.Errorf("typing relay to %s: %v", p.TargetUserID, err)
	}
}

func (s *Server) emitTo(c *shopClient, name string, payload any) {
	env, err := event.NewEnvelope(name, payload)
	if err != nil {
		logger.Errorf("emit %s: %v", name, err)
		return
	}
	if err := c.send(env); err != nil {
		logger.Errorf("emit %s to %s: %v", name, c.userID, err)
	}
}
