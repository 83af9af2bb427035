package eventbus

import (
	"context"
	"errors"
	"sync/atomic"
)

// Credentials supplies the access token injected into every outgoing message
// and refreshes it when the server reports it expired.
type Credentials interface {
	Get() string
	Set(token string)
	Refresh(ctx context.Context) (string, error)
}

// ErrNoRefresh is returned by credentials that cannot be refreshed.
var ErrNoRefresh = errors.New("access token refresh not configured")

// StaticCredentials holds a token that can be replaced but never refreshed.
type StaticCredentials struct {
	token atomic.Value
}

// NewStaticCredentials returns credentials holding token.
func NewStaticCredentials(token string) *StaticCredentials {
	s := &StaticCredentials{}
	s.token.Store(token)
	return s
}

func (s *StaticCredentials) Get() string {
	token, _ := s.token.Load().(string)
	return token
}

func (s *StaticCredentials) Set(token string) {
	if token != "" {
		s.token.Store(token)
	}
}

func (s *StaticCredentials) Refresh(ctx context.Context) (string, error) {
	return "", ErrNoRefresh
}

// ReloadFunc is called when the access token cannot be refreshed. The request
// that triggered the refresh is not settled afterwards.
type ReloadFunc func(c *Client)
