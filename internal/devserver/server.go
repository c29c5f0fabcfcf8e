// Package devserver is a stub chat backend for local development and
// integration tests: it speaks the AI socket protocol, the multiplexed shop
// socket protocol and the REST collaborator endpoints, all against in-memory
// state.
package devserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/aliconcon/chatwidget/internal/event"
)

type conversation struct {
	ID           string
	Participants []string
	Messages     []event.WireMessage
}

// Server holds all stub state. Tokens double as user ids.
type Server struct {
	allowedOrigins string

	mu            sync.Mutex
	conversations map[string]*conversation
	byUser        map[string][]string          // userID -> conversation ids
	clients       map[string]*shopClient       // userID -> shop socket
	rooms         map[string]map[string]struct{} // conversationID -> userIDs
}

func New(allowedOrigins string) *Server {
	return &Server{
		allowedOrigins: strings.TrimSpace(allowedOrigins),
		conversations:  make(map[string]*conversation),
		byUser:         make(map[string][]string),
		clients:        make(map[string]*shopClient),
		rooms:          make(map[string]map[string]struct{}),
	}
}

// Router builds the full stub API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/chat", s.serveAISocket)
	r.Get("/socket", s.serveShopSocket)
	r.Get("/chat/conversations", s.listConversations)
	r.Post("/chat/conversations", s.startConversation)
	r.Get("/chat/conversations/{id}/messages", s.listMessages)
	r.Get("/media/{id}", s.serveMedia)
	return r
}

func (s *Server) corsOrigins() []string {
	if s.allowedOrigins == "" || s.allowedOrigins == "*" {
		return []string{"*"}
	}
	out := strings.Split(s.allowedOrigins, ",")
	for i := range out {
		out[i] = strings.TrimSpace(out[i])
	}
	return out
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if s.allowedOrigins == "*" || s.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(s.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
}

// bearerUser extracts the user id from the Authorization header or token
// query parameter. The stub treats the token itself as the user id.
func bearerUser(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// --- REST collaborators ---

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
	userID := bearerUser(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}
	s.mu.Lock()
	out := make([]map[string]any, 0, len(s.byUser[userID]))
	for _, id := range s.byUser[userID] {
		out = append(out, s.conversationJSON(s.conversations[id]))
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

func (s *Server) startConversation(w http.ResponseWriter, r *http.Request) {
	userID := bearerUser(r)
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}
	var body struct {
		TargetUserID string `json:"targetUserId"`
	}
	if err := readJSON(r, &body); err != nil || body.TargetUserID == "" {
		writeError(w, http.StatusBadRequest, "targetUserId required")
		return
	}
	conv := s.findOrCreate(userID, body.TargetUserID)
	s.mu.Lock()
	payload := s.conversationJSON(conv)
	s.mu.Unlock()
	writeJSON(w, http.StatusCreated, map[string]any{"conversation": payload})
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	conv, ok := s.conversations[id]
	var msgs []event.WireMessage
	if ok {
		msgs = append(msgs, conv.Messages...)
	}
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "conversation not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

func (s *Server) serveMedia(w http.ResponseWriter, r *http.Request) {
	// Media bytes are out of scope for the stub; acknowledge the id so URL
	// resolution can be exercised end to end.
	writeJSON(w, http.StatusOK, map[string]string{"id": chi.URLParam(r, "id")})
}

// conversationJSON renders the wire shape the widget's REST client expects.
// Callers hold s.mu.
func (s *Server) conversationJSON(c *conversation) map[string]any {
	participants := make([]map[string]any, 0, len(c.Participants))
	for _, uid := range c.Participants {
		participants = append(participants, map[string]any{
			"user": map[string]any{"id": uid, "fullName": uid},
		})
	}
	return map[string]any{
		"_id":          c.ID,
		"participants": participants,
		"messageCount": len(c.Messages),
		"unreadCount":  0,
		"updated_at":   time.Now().UTC(),
	}
}

func (s *Server) findOrCreate(a, b string) *conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.byUser[a] {
		conv := s.conversations[id]
		for _, uid := range conv.Participants {
			if uid == b {
				return conv
			}
		}
	}
	conv := &conversation{ID: uuid.New().String(), Participants: []string{a, b}}
	s.conversations[conv.ID] = conv
	s.byUser[a] = append(s.byUser[a], conv.ID)
	s.byUser[b] = append(s.byUser[b], conv.ID)
	return conv
}

// Seed pre-populates a conversation between two users (test helper).
func (s *Server) Seed(a, b string, messages []event.WireMessage) string {
	conv := s.findOrCreate(a, b)
	s.mu.Lock()
	conv.Messages = append(conv.Messages, messages...)
	id := conv.ID
	s.mu.Unlock()
	return id
}

func nowUTC() *time.Time {
	t := time.Now().UTC()
	return &t
}

func wireMessage(conversationID, senderID, content string) event.WireMessage {
	return event.WireMessage{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Content:        content,
		ContentType:    "text",
		Sender:         event.WireUser{ID: senderID, FullName: senderID},
		Status:         "sent",
		Timestamp:      nowUTC(),
	}
}
