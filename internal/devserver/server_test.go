package devserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliconcon/chatwidget/internal/event"
)

func startStub(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := New("*")
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return s, srv
}

func getJSON(t *testing.T, url, token string, out any) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestConversationEndpoints(t *testing.T) {
	stub, srv := startStub(t)
	convID := stub.Seed("alice", "bob", []event.WireMessage{
		wireMessage("", "bob", "welcome to the shop"),
	})

	var list struct {
		Conversations []struct {
			ID           string `json:"_id"`
			MessageCount int    `json:"messageCount"`
		} `json:"conversations"`
	}
	resp := getJSON(t, srv.URL+"/chat/conversations", "alice", &list)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list.Conversations, 1)
	assert.Equal(t, convID, list.Conversations[0].ID)
	assert.Equal(t, 1, list.Conversations[0].MessageCount)

	var history struct {
		Messages []event.WireMessage `json:"messages"`
	}
	resp = getJSON(t, srv.URL+"/chat/conversations/"+convID+"/messages", "alice", &history)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, "welcome to the shop", history.Messages[0].Content)

	resp = getJSON(t, srv.URL+"/chat/conversations/nope/messages", "alice", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListConversationsRequiresToken(t *testing.T) {
	_, srv := startStub(t)
	resp := getJSON(t, srv.URL+"/chat/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStartConversationIsIdempotentPerPair(t *testing.T) {
	_, srv := startStub(t)

	start := func() string {
		body, _ := json.Marshal(map[string]string{"targetUserId": "bob"})
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/chat/conversations", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer alice")
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var out struct {
			Conversation struct {
				ID string `json:"_id"`
			} `json:"conversation"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return out.Conversation.ID
	}
	first := start()
	assert.Equal(t, first, start(), "same pair maps to the same conversation")
}

func dialSocket(t *testing.T, baseURL, path, token string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + baseURL[len("http"):] + path
	if token != "" {
		wsURL += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) event.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env event.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestAISocketProtocol(t *testing.T) {
	_, srv := startStub(t)
	conn := dialSocket(t, srv.URL, "/chat", "")

	tok := "alice"
	require.NoError(t, conn.WriteJSON(event.InitProfileFrame{Type: event.TypeInitProfile, AccessToken: &tok}))
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var init struct {
		Type    event.Type     `json:"type"`
		Profile *event.Profile `json:"profile"`
	}
	require.NoError(t, conn.ReadJSON(&init))
	assert.Equal(t, event.TypeProfileInitialized, init.Type)
	require.NotNil(t, init.Profile)
	assert.False(t, init.Profile.IsGuest)
	assert.Equal(t, "alice", init.Profile.UserID)

	require.NoError(t, conn.WriteJSON(event.ChatFrame{Type: event.TypeChat, Content: "ping"}))
	var sawEcho bool
	for i := 0; i < 3; i++ {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		ev, err := event.DecodeAI(raw)
		require.NoError(t, err)
		if m, ok := ev.(event.AIMessage); ok {
			assert.Equal(t, "You said: ping", m.Content)
			sawEcho = true
		}
	}
	assert.True(t, sawEcho)
}

func TestShopSocketFanOut(t *testing.T) {
	_, srv := startStub(t)
	alice := dialSocket(t, srv.URL, "/socket", "alice")
	bob := dialSocket(t, srv.URL, "/socket", "bob")

	send, err := event.NewEnvelope(event.NameSendMessage,
		event.SendMessagePayload{TargetUserID: "bob", Content: "hi bob", Type: "text"})
	require.NoError(t, err)
	require.NoError(t, alice.WriteJSON(send))

	// Sender gets the ack plus a delivery receipt (in either order).
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		env := readEnvelope(t, alice)
		seen[env.Event] = true
	}
	assert.True(t, seen[event.NameMessageSent])
	assert.True(t, seen[event.NameMessageDelivered])

	env := readEnvelope(t, bob)
	require.Equal(t, event.NameNewMessage, env.Event)
	var msg event.WireMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "hi bob", msg.Content)
	assert.Equal(t, "alice", msg.Sender.ID)
	assert.NotEmpty(t, msg.ConversationID)
}

func TestShopSocketTypingRelay(t *testing.T) {
	_, srv := startStub(t)
	alice := dialSocket(t, srv.URL, "/socket", "alice")
	bob := dialSocket(t, srv.URL, "/socket", "bob")

	start, err := event.NewEnvelope(event.NameStartTyping,
		event.TypingPayload{ConversationID: "c1", TargetUserID: "bob"})
	require.NoError(t, err)
	require.NoError(t, alice.WriteJSON(start))

	env := readEnvelope(t, bob)
	require.Equal(t, event.NameUserTyping, env.Event)
	var p event.UserTyping
	require.NoError(t, json.Unmarshal(env.Data, &p))
	assert.Equal(t, "alice", p.UserID)
	assert.Equal(t, "c1", p.ConversationID)
}

func TestShopSocketRequiresToken(t *testing.T) {
	_, srv := startStub(t)
	wsURL := "ws" + srv.URL[len("http"):] + "/socket"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestShopSocketDeliversToRoomMembers(t *testing.T) {
	stub, srv := startStub(t)
	convID := stub.Seed("alice", "bob", nil)

	alice := dialSocket(t, srv.URL, "/socket", "alice")
	carol := dialSocket(t, srv.URL, "/socket", "carol")

	join, err := event.NewEnvelope(event.NameJoinConversation, event.RoomPayload{ConversationID: convID})
	require.NoError(t, err)
	require.NoError(t, carol.WriteJSON(join))
	require.Eventually(t, func() bool {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		_, ok := stub.rooms[convID]["carol"]
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	// Bob is offline; carol sits in the room and must still get the message,
	// which also counts as delivery for the sender's receipt.
	send, err := event.NewEnvelope(event.NameSendMessage,
		event.SendMessagePayload{TargetUserID: "bob", Content: "anyone here?", Type: "text"})
	require.NoError(t, err)
	require.NoError(t, alice.WriteJSON(send))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		seen[readEnvelope(t, alice).Event] = true
	}
	assert.True(t, seen[event.NameMessageSent])
	assert.True(t, seen[event.NameMessageDelivered])

	env := readEnvelope(t, carol)
	require.Equal(t, event.NameNewMessage, env.Event)
	var msg event.WireMessage
	require.NoError(t, json.Unmarshal(env.Data, &msg))
	assert.Equal(t, "anyone here?", msg.Content)
	assert.Equal(t, convID, msg.ConversationID)
}

func TestShopSocketNoDeliveryReceiptWhenNobodyListens(t *testing.T) {
	_, srv := startStub(t)
	alice := dialSocket(t, srv.URL, "/socket", "alice")

	send, err := event.NewEnvelope(event.NameSendMessage,
		event.SendMessagePayload{TargetUserID: "bob", Content: "hello?", Type: "text"})
	require.NoError(t, err)
	require.NoError(t, alice.WriteJSON(send))

	env := readEnvelope(t, alice)
	assert.Equal(t, event.NameMessageSent, env.Event)

	alice.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var extra event.Envelope
	assert.Error(t, alice.ReadJSON(&extra), "no receipt without a recipient")
}

func TestShopSocketSenderInRoomGetsNoEcho(t *testing.T) {
	stub, srv := startStub(t)
	convID := stub.Seed("alice", "bob", nil)

	alice := dialSocket(t, srv.URL, "/socket", "alice")
	bob := dialSocket(t, srv.URL, "/socket", "bob")

	join, err := event.NewEnvelope(event.NameJoinConversation, event.RoomPayload{ConversationID: convID})
	require.NoError(t, err)
	require.NoError(t, alice.WriteJSON(join))
	require.Eventually(t, func() bool {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		_, ok := stub.rooms[convID]["alice"]
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	send, err := event.NewEnvelope(event.NameSendMessage,
		event.SendMessagePayload{TargetUserID: "bob", Content: "hi", Type: "text"})
	require.NoError(t, err)
	require.NoError(t, alice.WriteJSON(send))

	// Sender sees exactly the ack and the receipt, never its own new_message.
	seen := map[string]int{}
	for i := 0; i < 2; i++ {
		seen[readEnvelope(t, alice).Event]++
	}
	assert.Equal(t, 1, seen[event.NameMessageSent])
	assert.Equal(t, 1, seen[event.NameMessageDelivered])
	assert.Equal(t, event.NameNewMessage, readEnvelope(t, bob).Event)

	alice.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	var extra event.Envelope
	assert.Error(t, alice.ReadJSON(&extra))
}
