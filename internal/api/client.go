// Package api is the client for the backend's REST collaborators: the
// conversation list, per-conversation message history, conversation creation
// and the media URL resolver. History failures degrade to empty seeding;
// nothing here blocks the widget.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aliconcon/chatwidget/internal/event"
	"github.com/aliconcon/chatwidget/internal/model"
)

// PlaceholderMedia is returned for empty media ids.
const PlaceholderMedia = "/placeholder.svg"

type Client struct {
	baseURL    string
	token      func() *string
	httpClient *http.Client
}

// NewClient creates a REST client. token (optional) supplies the bearer
// token per request.
func NewClient(baseURL string, token func() *string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// wireConversation mirrors the backend conversation record.
type wireConversation struct {
	ID           string `json:"_id"`
	Participants []struct {
		User        event.WireUser `json:"user"`
		UnreadCount int            `json:"unread_count"`
	} `json:"participants"`
	MessageCount int       `json:"messageCount"`
	UnreadCount  int       `json:"unreadCount"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (w wireConversation) toModel() model.Conversation {
	c := model.Conversation{
		ID:           w.ID,
		MessageCount: w.MessageCount,
		UnreadCount:  w.UnreadCount,
		UpdatedAt:    w.UpdatedAt,
	}
	for _, p := range w.Participants {
		c.Participants = append(c.Participants, model.Participant{
			UserID:   p.User.ID,
			FullName: p.User.FullName,
			Avatar:   p.User.Avatar,
		})
	}
	return c
}

// GetConversations returns one page of the user's conversations.
func (c *Client) GetConversations(ctx context.Context, limit, page int) ([]model.Conversation, error) {
	var out struct {
		Conversations []wireConversation `json:"conversations"`
	}
	path := fmt.Sprintf("/chat/conversations?limit=%d&page=%d", limit, page)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	convs := make([]model.Conversation, 0, len(out.Conversations))
	for _, w := range out.Conversations {
		convs = append(convs, w.toModel())
	}
	return convs, nil
}

// FindConversationWith scans the first page of conversations for one whose
// participants include targetUserID.
func (c *Client) FindConversationWith(ctx context.Context, targetUserID string) (*model.Conversation, error) {
	convs, err := c.GetConversations(ctx, 50, 1)
	if err != nil {
		return nil, err
	}
	for i := range convs {
		if convs[i].HasParticipant(targetUserID) {
			return &convs[i], nil
		}
	}
	return nil, nil
}

// StartConversation creates a direct conversation with the counterparty.
func (c *Client) StartConversation(ctx context.Context, targetUserID string) (*model.Conversation, error) {
	var out struct {
		Conversation wireConversation `json:"conversation"`
	}
	body := map[string]string{"targetUserId": targetUserID}
	if err := c.post(ctx, "/chat/conversations", body, &out); err != nil {
		return nil, err
	}
	conv := out.Conversation.toModel()
	return &conv, nil
}

// GetMessages fetches the full message history of one conversation,
// normalized relative to currentUserID.
func (c *Client) GetMessages(ctx context.Context, conversationID, currentUserID string) ([]model.Message, error) {
	var out struct {
		Messages []event.WireMessage `json:"messages"`
	}
	path := "/chat/conversations/" + conversationID + "/messages"
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	msgs := make([]model.Message, 0, len(out.Messages))
	for _, w := range out.Messages {
		msgs = append(msgs, w.ToModel(currentUserID))
	}
	return msgs, nil
}

// ResolveMediaURL maps an opaque media id to a fetchable URL. Absolute URLs
// (e.g. external avatars) pass through unchanged; empty ids resolve to the
// placeholder.
func (c *Client) ResolveMediaURL(mediaID string) string {
	if mediaID == "" {
		return PlaceholderMedia
	}
	if strings.HasPrefix(mediaID, "http://") || strings.HasPrefix(mediaID, "https://") {
		return mediaID
	}
	return c.baseURL + "/media/" + mediaID
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != nil {
		if t := c.token(); t != nil {
			req.Header.Set("Authorization", "Bearer "+*t)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("api %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api %s %s: decode: %w", req.Method, req.URL.Path, err)
	}
	return nil
}
