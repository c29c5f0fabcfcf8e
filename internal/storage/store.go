package storage

import "context"

// TokenStore persists the user's access token between widget runs.
// Implementations: redis.Client, memory.Client (for development without Redis).
type TokenStore interface {
	SetToken(ctx context.Context, userID, token string) error
	GetToken(ctx context.Context, userID string) (string, error)
	DeleteToken(ctx context.Context, userID string) error
	Close() error
}
