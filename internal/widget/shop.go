package widget

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aliconcon/chatwidget/internal/api"
	"github.com/aliconcon/chatwidget/internal/event"
	"github.com/aliconcon/chatwidget/internal/logger"
	"github.com/aliconcon/chatwidget/internal/model"
	"github.com/aliconcon/chatwidget/internal/notify"
	"github.com/aliconcon/chatwidget/internal/reconcile"
	"github.com/aliconcon/chatwidget/internal/store"
	"github.com/aliconcon/chatwidget/internal/transport"
)

// ShopInstance is one shop conversation riding the shared shop socket.
// Unlike the AI session it initializes lazily: the conversation is looked up
// (or started), its room joined and history seeded only when the window first
// opens with a token available.
type ShopInstance struct {
	shop          model.Shop
	currentUserID string

	st      *store.Store
	conn    *transport.ShopConn
	rest    *api.Client
	list    *reconcile.List
	router  *notify.Router
	typing  *notify.TypingTracker
	emitter *notify.TypingEmitter

	mu           sync.Mutex
	conversation *model.Conversation
	minimized    bool
	loading      bool
	initialized  bool
}

func NewShopInstance(st *store.Store, conn *transport.ShopConn, rest *api.Client, shop model.Shop, currentUserID string, typingTimeout time.Duration) *ShopInstance {
	inst := &ShopInstance{
		shop:          shop,
		currentUserID: currentUserID,
		st:            st,
		conn:          conn,
		rest:          rest,
		list:          reconcile.New(),
	}
	inst.router = notify.NewRouter(st, shop.ID, inst.markRead)
	inst.typing = notify.NewTypingTracker(orDefault(typingTimeout, 3*time.Second), nil)
	inst.emitter = notify.NewTypingEmitter(inst.emitStartTyping, inst.emitStopTyping)
	return inst
}

// Initialize connects the shared socket if needed, finds or starts the
// conversation, joins its room and seeds the message list. Idempotent. A
// history fetch failure degrades to the welcome seed instead of blocking.
func (s *ShopInstance) Initialize(ctx context.Context, token string) error {
	s.mu.Lock()
	if s.initialized || s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()

	if err := s.conn.Ensure(ctx, token); err != nil {
		return fmt.Errorf("shop chat connect: %w", err)
	}

	target := s.shop.TargetUserID()
	conv, err := s.rest.FindConversationWith(ctx, target)
	if err != nil {
		logger.Infof("no existing conversations for shop %s: %v", s.shop.ID, err)
	}
	if conv == nil {
		conv, err = s.rest.StartConversation(ctx, target)
		if err != nil {
			return fmt.Errorf("start conversation with %s: %w", target, err)
		}
	}

	s.mu.Lock()
	s.conversation = conv
	s.initialized = true
	s.mu.Unlock()

	if err := s.conn.Join(conv.ID); err != nil {
		logger.Errorf("join conversation %s: %v", conv.ID, err)
	}

	if conv.MessageCount > 0 {
		msgs, err := s.rest.GetMessages(ctx, conv.ID, s.currentUserID)
		if err != nil {
			logger.Errorf("history %s: %v (falling back to welcome)", conv.ID, err)
			s.seedWelcome()
		} else {
			s.list.Seed(msgs)
			if s.Visible() {
				s.markRead()
			}
		}
	} else {
		s.seedWelcome()
	}
	return nil
}

// seedWelcome synthesizes the greeting shown for a brand-new conversation; no
// network round-trip involved.
func (s *ShopInstance) seedWelcome() {
	s.list.Seed([]model.Message{{
		ID:        "welcome-" + uuid.New().String() + "-" + s.shop.ID,
		Content:   fmt.Sprintf("Hello! Thank you for your interest in %s. How can we help you?", s.shop.Name),
		Origin:    model.OriginPeer,
		SenderID:  s.shop.TargetUserID(),
		Status:    model.StatusRead,
		Timestamp: time.Now(),
	}})
}

// HandleEvent consumes one shared-socket event. The manager fans events out
// to every instance; each instance keeps only what belongs to its
// conversation (an empty conversation id on the frame is treated as a match
// for backends that omit it on direct sends).
func (s *ShopInstance) HandleEvent(ev event.ShopEvent) {
	switch e := ev.(type) {
	case event.NewMessage:
		if e.Message.Sender.ID == s.currentUserID {
			// Late echo of our own send; the ack path owns it.
			return
		}
		if !s.matches(e.Message.ConversationID) {
			return
		}
		if s.list.Append(e.Message.ToModel(s.currentUserID)) {
			s.router.PeerMessage(e.Message.ID, e.Message.Content, s.Visible())
		}

	case event.MessageSent:
		if !s.matches(e.Message.ConversationID) {
			return
		}
		s.list.Ack(e.Message.ToModel(s.currentUserID))

	case event.MessageDelivered:
		if !s.matches(e.ConversationID) {
			return
		}
		s.list.UpgradeStatus(e.MessageID, model.StatusDelivered)

	case event.UserTyping:
		if e.UserID != s.currentUserID && s.matches(e.ConversationID) {
			s.typing.Touch()
		}

	case event.UserStopTyping:
		if e.UserID != s.currentUserID && s.matches(e.ConversationID) {
			s.typing.Clear()
		}
	}
}

func (s *ShopInstance) matches(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conversation == nil {
		return false
	}
	return conversationID == "" || conversationID == s.conversation.ID
}

// Send submits one message. No local echo: the message_sent ack appends the
// authoritative copy. A rejected send is returned to the caller so the
// composer text can be restored.
func (s *ShopInstance) Send(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}
	s.mu.Lock()
	conv := s.conversation
	s.mu.Unlock()
	if conv == nil {
		return transport.ErrNotConnected
	}
	if err := s.conn.SendMessage(s.shop.TargetUserID(), content, "text"); err != nil {
		return err
	}
	s.emitter.Sent()
	return nil
}

// Input mirrors the composer text and drives the start/stop typing protocol
// (start emitted once on the first character, stop once when cleared).
func (s *ShopInstance) Input(text string) {
	s.emitter.Input(strings.TrimSpace(text))
}

func (s *ShopInstance) emitStartTyping() {
	s.mu.Lock()
	conv := s.conversation
	s.mu.Unlock()
	if conv == nil {
		return
	}
	if err := s.conn.StartTyping(conv.ID, s.shop.TargetUserID()); err != nil {
		logger.Debugf("start typing: %v", err)
	}
}

func (s *ShopInstance) emitStopTyping() {
	s.mu.Lock()
	conv := s.conversation
	s.mu.Unlock()
	if conv == nil {
		return
	}
	if err := s.conn.StopTyping(conv.ID, s.shop.TargetUserID()); err != nil {
		logger.Debugf("stop typing: %v", err)
	}
}

// markRead confirms the conversation as read upstream and reflects it
// locally.
func (s *ShopInstance) markRead() {
	s.mu.Lock()
	conv := s.conversation
	s.mu.Unlock()
	if conv == nil {
		return
	}
	if err := s.conn.MarkAsRead(conv.ID); err != nil {
		logger.Debugf("mark read %s: %v", conv.ID, err)
		return
	}
	s.list.MarkAllRead()
}

// SetMinimized tracks the window's minimized flag. Restoring a minimized
// window counts as seeing the conversation.
func (s *ShopInstance) SetMinimized(min bool) {
	s.mu.Lock()
	was := s.minimized
	s.minimized = min
	s.mu.Unlock()
	if was && !min {
		s.markRead()
	}
}

// Visible reports whether inbound messages should be considered seen.
func (s *ShopInstance) Visible() bool {
	s.mu.Lock()
	min := s.minimized
	s.mu.Unlock()
	return s.st.IsOpen(s.shop.ID) && !min
}

// Conversation returns the backing conversation, nil before initialization.
func (s *ShopInstance) Conversation() *model.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversation
}

// Initialized reports whether the conversation setup completed.
func (s *ShopInstance) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Messages returns the session's message list snapshot.
func (s *ShopInstance) Messages() []model.Message { return s.list.Messages() }

// PeerTyping reports the shop side's typing indicator.
func (s *ShopInstance) PeerTyping() bool { return s.typing.Active() }

// Teardown clears the instance's timers and leaves the room, but only when
// the session is not open: switching away from an open window must not tear
// down the shared conversation state behind it.
func (s *ShopInstance) Teardown() {
	s.typing.Stop()
	s.mu.Lock()
	conv := s.conversation
	s.mu.Unlock()
	if conv != nil && !s.st.IsOpen(s.shop.ID) {
		if err := s.conn.Leave(conv.ID); err != nil {
			logger.Debugf("leave conversation %s: %v", conv.ID, err)
		}
	}
}
