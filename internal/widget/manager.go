package widget

import (
	"context"
	"sync"
	"time"

	"github.com/aliconcon/chatwidget/internal/api"
	"github.com/aliconcon/chatwidget/internal/auth"
	"github.com/aliconcon/chatwidget/internal/config"
	"github.com/aliconcon/chatwidget/internal/event"
	"github.com/aliconcon/chatwidget/internal/logger"
	"github.com/aliconcon/chatwidget/internal/model"
	"github.com/aliconcon/chatwidget/internal/notify"
	"github.com/aliconcon/chatwidget/internal/store"
	"github.com/aliconcon/chatwidget/internal/transport"
)

// Manager owns the session table and every chat instance. It is the single
// entry point a host embeds: open/close/toggle sessions, reach instances for
// sending, and tear the whole widget down.
type Manager struct {
	cfg           *config.Config
	st            *store.Store
	rest          *api.Client
	tokens        auth.TokenSource
	currentUserID string

	ai       *AIInstance
	shopConn *transport.ShopConn

	mu       sync.Mutex
	shops    map[string]*ShopInstance
	watchers map[string]*notify.PopupWatcher
	closed   bool
}

// ManagerOptions carries host identity; endpoints and intervals come from cfg.
type ManagerOptions struct {
	CurrentUserID string
	Tokens        auth.TokenSource
	Context       func() event.Context
}

func NewManager(cfg *config.Config, opts ManagerOptions) *Manager {
	st := store.New()
	m := &Manager{
		cfg:           cfg,
		st:            st,
		tokens:        opts.Tokens,
		currentUserID: opts.CurrentUserID,
		shops:         make(map[string]*ShopInstance),
		watchers:      make(map[string]*notify.PopupWatcher),
	}

	var tokenFn func() *string
	if opts.Tokens != nil {
		tokenFn = opts.Tokens.Token
	}
	m.rest = api.NewClient(cfg.APIURL, tokenFn)

	m.ai = NewAIInstance(st, AIOptions{
		WSURL:             cfg.WSURL,
		ReconnectInterval: cfg.ReconnectInterval,
		HandshakeDelay:    cfg.HandshakeDelay,
		TypingTimeout:     cfg.TypingTimeout,
		SendTimeout:       cfg.SendTimeout,
		Tokens:            opts.Tokens,
		Context:           opts.Context,
	})

	m.shopConn = transport.NewShopConn(transport.ShopOptions{
		URL:               cfg.APIURL,
		ReconnectInterval: cfg.ReconnectInterval,
		SendTimeout:       cfg.SendTimeout,
		OnEvent:           m.dispatchShopEvent,
	})

	// Popup expiry is driven off store mutations.
	st.Subscribe(m.syncWatchers)
	m.ensureWatcher(store.AISessionID)
	return m
}

// Start opens the always-on AI channel. The shop socket stays down until the
// first shop window opens with a token available; the lifecycles are
// intentionally asymmetric.
func (m *Manager) Start() {
	m.ai.Connect()
}

// Store exposes the session table for reactive reads.
func (m *Manager) Store() *store.Store { return m.st }

// AI returns the assistant instance.
func (m *Manager) AI() *AIInstance { return m.ai }

// Shop returns the instance for a shop id, nil when never opened.
func (m *Manager) Shop(id string) *ShopInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shops[id]
}

// OpenShop reveals (creating if needed) a shop session and kicks off its lazy
// initialization when a token is available. Guests get the window shell but
// no conversation.
func (m *Manager) OpenShop(ctx context.Context, shop model.Shop) *ShopInstance {
	shopCopy := shop
	m.st.Open(shop.ID, store.KindShop, &shopCopy)
	m.ensureWatcher(shop.ID)

	m.mu.Lock()
	inst, ok := m.shops[shop.ID]
	if !ok {
		inst = NewShopInstance(m.st, m.shopConn, m.rest, shop, m.currentUserID, m.cfg.TypingTimeout)
		m.shops[shop.ID] = inst
	}
	m.mu.Unlock()

	if inst.Initialized() {
		return inst
	}
	var token *string
	if m.tokens != nil {
		token = m.tokens.Token()
	}
	if token == nil || m.currentUserID == "" {
		return inst
	}
	go func() {
		ictx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := inst.Initialize(ictx, *token); err != nil {
			logger.Errorf("initialize shop chat %s: %v", shop.ID, err)
		}
	}()
	return inst
}

// OpenAI reveals the assistant window.
func (m *Manager) OpenAI() {
	m.st.Open(store.AISessionID, store.KindAI, nil)
}

// Close collapses a session window.
func (m *Manager) Close(id string) { m.st.Close(id) }

// Toggle flips a session window.
func (m *Manager) Toggle(id string) { m.st.Toggle(id) }

// Remove drops a shop session and tears down its instance. The AI session is
// permanent; removing it is a no-op.
func (m *Manager) Remove(id string) {
	if id == store.AISessionID {
		return
	}
	m.st.Remove(id)
	m.mu.Lock()
	inst := m.shops[id]
	delete(m.shops, id)
	w := m.watchers[id]
	delete(m.watchers, id)
	m.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	if inst != nil {
		inst.Teardown()
	}
}

// dispatchShopEvent fans one shared-socket event out to every shop instance;
// each keeps only what belongs to its conversation.
func (m *Manager) dispatchShopEvent(ev event.ShopEvent) {
	m.mu.Lock()
	insts := make([]*ShopInstance, 0, len(m.shops))
	for _, inst := range m.shops {
		insts = append(insts, inst)
	}
	m.mu.Unlock()
	for _, inst := range insts {
		inst.HandleEvent(ev)
	}
}

func (m *Manager) ensureWatcher(id string) {
	m.mu.Lock()
	if _, ok := m.watchers[id]; !ok {
		m.watchers[id] = notify.NewPopupWatcher(m.st, id, m.cfg.PopupTTL)
	}
	m.mu.Unlock()
}

func (m *Manager) syncWatchers() {
	m.mu.Lock()
	ws := make([]*notify.PopupWatcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		ws = append(ws, w)
	}
	m.mu.Unlock()
	for _, w := range ws {
		w.Sync()
	}
}

// Shutdown closes both channels and cancels every outstanding timer.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	insts := make([]*ShopInstance, 0, len(m.shops))
	for _, inst := range m.shops {
		insts = append(insts, inst)
	}
	ws := make([]*notify.PopupWatcher, 0, len(m.watchers))
	for _, w := range m.watchers {
		ws = append(ws, w)
	}
	m.mu.Unlock()

	for _, w := range ws {
		w.Stop()
	}
	for _, inst := range insts {
		inst.Teardown()
	}
	m.shopConn.Close()
	m.ai.Close()
}
