package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Tokens live as long as the backend session they belong to.
const TokenTTL = 30 * 24 * time.Hour

type Client struct {
	cli *redis.Client
}

func New(ctx context.Context, url string) (*Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis parse url: %w", err)
	}
	cli := redis.NewClient(opts)
	if err := cli.Ping(ctx).Err(); err != nil {
		if closeErr := cli.Close(); closeErr != nil {
			return nil, fmt.Errorf("redis ping: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{cli: cli}, nil
}

func (c *Client) Close() error {
	return c.cli.Close()
}

// SetToken stores the access token under widget_token:{userID}.
func (c *Client) SetToken(ctx context.Context, userID, token string) error {
	return c.cli.Set(ctx, "widget_token:"+userID, token, TokenTTL).Err()
}

// GetToken returns the stored token, empty when absent or expired.
func (c *Client) GetToken(ctx context.Context, userID string) (string, error) {
	val, err := c.cli.Get(ctx, "widget_token:"+userID).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// DeleteToken removes the token on logout.
func (c *Client) DeleteToken(ctx context.Context, userID string) error {
	return c.cli.Del(ctx, "widget_token:"+userID).Err()
}
