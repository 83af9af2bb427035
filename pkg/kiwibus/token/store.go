package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultRefreshPath is requested when no refresh path is configured.
const DefaultRefreshPath = "/refreshAccessToken"

// ErrNoAccessToken is returned when a refresh response carries no token.
var ErrNoAccessToken = errors.New("refresh response carries no accessToken")

// Store holds the current access token. Get and Set are safe for concurrent
// use; the With* methods configure the store and must be called before it is
// shared.
type Store struct {
	token       atomic.Value
	baseURL     string
	refreshPath string
	httpClient  *http.Client
	headers     http.Header
	logger      *zap.Logger
}

// NewStore creates a Store holding token.
func NewStore(token string) *Store {
	s := &Store{
		refreshPath: DefaultRefreshPath,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		headers:     make(http.Header),
		logger:      zap.NewNop(),
	}
	s.token.Store(token)
	return s
}

// WithBaseURL sets the URL the refresh path is resolved against.
func (s *Store) WithBaseURL(baseURL string) *Store {
	s.baseURL = baseURL
	return s
}

// WithRefreshPath overrides DefaultRefreshPath. An empty path keeps the default.
func (s *Store) WithRefreshPath(path string) *Store {
	if path != "" {
		s.refreshPath = path
	}
	return s
}

// WithHTTPClient sets the client used for refresh requests, e.g. one with a
// cookie jar carrying the session.
func (s *Store) WithHTTPClient(client *http.Client) *Store {
	if client != nil {
		s.httpClient = client
	}
	return s
}

// WithHeader adds a header sent with refresh requests.
func (s *Store) WithHeader(key, value string) *Store {
	s.headers.Add(key, value)
	return s
}

// WithLogger sets the logger.
func (s *Store) WithLogger(logger *zap.Logger) *Store {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Get returns the current token.
func (s *Store) Get() string {
	token, _ := s.token.Load().(string)
	return token
}

// Set replaces the current token. Empty tokens are ignored.
func (s *Store) Set(token string) {
	if token == "" {
		return
	}
	s.token.Store(token)
}

// Claims decodes the current token.
func (s *Store) Claims() (map[string]any, error) {
	return Decode(s.Get())
}

// RefreshURL returns the absolute URL refresh requests are sent to.
func (s *Store) RefreshURL() (string, error) {
	ref, err := url.Parse(s.refreshPath)
	if err != nil {
		return "", fmt.Errorf("invalid refresh path: %w", err)
	}
	if s.baseURL == "" {
		return ref.String(), nil
	}

	base, err := url.Parse(s.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

// Refresh asks the backend for a new token and returns it. The stored token
// is left alone; callers Set it once they decide to use it.
func (s *Store) Refresh(ctx context.Context) (string, error) {
	refreshURL, err := s.RefreshURL()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, refreshURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, values := range s.headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to refresh access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to refresh access token: unexpected status %s", resp.Status)
	}

	var body refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if body.AccessToken == "" {
		return "", ErrNoAccessToken
	}

	s.logger.Debug("Access token refreshed", zap.String("url", refreshURL))
	return body.AccessToken, nil
}

// RefreshAndSet refreshes the token and stores the result.
func (s *Store) RefreshAndSet(ctx context.Context) error {
	token, err := s.Refresh(ctx)
	if err != nil {
		return err
	}
	s.Set(token)
	return nil
}
