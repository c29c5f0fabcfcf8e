package memory

import (
	"context"
	"sync"
	"time"
)

const tokenTTL = 30 * 24 * time.Hour

type item struct {
	val string
	exp time.Time
}

type Client struct {
	mu     sync.RWMutex
	tokens map[string]item
}

func New() *Client {
	return &Client{tokens: make(map[string]item)}
}

func (c *Client) Close() error { return nil }

func (c *Client) SetToken(ctx context.Context, userID, token string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens[userID] = item{val: token, exp: time.Now().Add(tokenTTL)}
	return nil
}

func (c *Client) GetToken(ctx context.Context, userID string) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.tokens[userID]
	if !ok || time.Now().After(v.exp) {
		return "", nil
	}
	return v.val, nil
}

func (c *Client) DeleteToken(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tokens, userID)
	return nil
}
