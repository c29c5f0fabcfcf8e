// Package auth resolves the user's access token through a fallback chain so
// the widget works the same for logged-in users and guests.
package auth

import (
	"context"
	"os"
	"time"

	"github.com/aliconcon/chatwidget/internal/logger"
	"github.com/aliconcon/chatwidget/internal/storage"
)

const lookupTimeout = 2 * time.Second

// TokenSource yields the current access token, nil when the user is a guest.
type TokenSource interface {
	Token() *string
}

// ChainSource tries the ACCESS_TOKEN environment variable first, then the
// persisted token store. A failed store lookup degrades to guest rather than
// failing the caller.
type ChainSource struct {
	UserID string
	Store  storage.TokenStore
}

func NewChainSource(userID string, store storage.TokenStore) *ChainSource {
	return &ChainSource{UserID: userID, Store: store}
}

func (s *ChainSource) Token() *string {
	if v := os.Getenv("ACCESS_TOKEN"); v != "" {
		return &v
	}
	if s.Store == nil || s.UserID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
	defer cancel()
	v, err := s.Store.GetToken(ctx, s.UserID)
	if err != nil {
		logger.Errorf("token lookup user=%s: %v", s.UserID, err)
		return nil
	}
	if v == "" {
		return nil
	}
	return &v
}

// StaticSource always returns the same token. Used in tests and one-shot
// tooling.
type StaticSource string

func (s StaticSource) Token() *string {
	if s == "" {
		return nil
	}
	v := string(s)
	return &v
}
