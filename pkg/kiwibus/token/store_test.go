package token

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
	"go.uber.org/zap/zaptest"
)

var _ eventbus.Credentials = (*Store)(nil)

func TestStoreGetSet(t *testing.T) {
	store := NewStore("initial")
	assert.Equal(t, "initial", store.Get())

	store.Set("next")
	assert.Equal(t, "next", store.Get())

	store.Set("")
	assert.Equal(t, "next", store.Get())
}

func TestStoreConcurrentSet(t *testing.T) {
	store := NewStore("a")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			store.Set("aaaaaaaa")
		}()
		go func() {
			defer wg.Done()
			token := store.Get()
			assert.Contains(t, []string{"a", "aaaaaaaa"}, token)
		}()
	}
	wg.Wait()
}

func TestStoreClaims(t *testing.T) {
	token, err := Encode(map[string]any{"user_id": "john"})
	require.NoError(t, err)

	claims, err := NewStore(token).Claims()
	require.NoError(t, err)
	assert.Equal(t, "john", claims["user_id"])
}

func TestRefreshURL(t *testing.T) {
	tests := []struct {
		name    string
		base    string
		path    string
		want    string
		wantErr bool
	}{
		{"default path", "", "", "/refreshAccessToken", false},
		{"resolved against base", "https://app.example.com/portal/", "", "https://app.example.com/refreshAccessToken", false},
		{"relative path", "https://app.example.com/portal/", "token/refresh", "https://app.example.com/portal/token/refresh", false},
		{"absolute URL", "https://app.example.com", "https://auth.example.com/refresh", "https://auth.example.com/refresh", false},
		{"bad base", "://bad", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewStore("").WithBaseURL(tt.base).WithRefreshPath(tt.path).RefreshURL()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRefresh(t *testing.T) {
	t.Run("returns the new token", func(t *testing.T) {
		var gotHeader string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodGet, r.Method)
			assert.Equal(t, "/refreshAccessToken", r.URL.Path)
			gotHeader = r.Header.Get("X-Session")
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"accessToken":"fresh"}`))
		}))
		defer server.Close()

		store := NewStore("stale").
			WithBaseURL(server.URL).
			WithHeader("X-Session", "abc").
			WithLogger(zaptest.NewLogger(t))

		token, err := store.Refresh(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "fresh", token)
		assert.Equal(t, "abc", gotHeader)
		assert.Equal(t, "stale", store.Get(), "Refresh must not store the token")

		require.NoError(t, store.RefreshAndSet(context.Background()))
		assert.Equal(t, "fresh", store.Get())
	})

	t.Run("missing accessToken", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"token":"wrong-field"}`))
		}))
		defer server.Close()

		_, err := NewStore("stale").WithBaseURL(server.URL).Refresh(context.Background())
		assert.ErrorIs(t, err, ErrNoAccessToken)
	})

	t.Run("error status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "session expired", http.StatusUnauthorized)
		}))
		defer server.Close()

		store := NewStore("stale").WithBaseURL(server.URL)
		_, err := store.Refresh(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")

		assert.Error(t, store.RefreshAndSet(context.Background()))
		assert.Equal(t, "stale", store.Get())
	})

	t.Run("malformed body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}))
		defer server.Close()

		_, err := NewStore("stale").WithBaseURL(server.URL).Refresh(context.Background())
		assert.Error(t, err)
	})

	t.Run("context cancelled", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(time.Second):
			}
		}))
		defer server.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := NewStore("stale").WithBaseURL(server.URL).Refresh(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestStoreWithEventBus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"accessToken":"fresh"}`))
	}))
	defer server.Close()

	store := NewStore("stale").WithBaseURL(server.URL)

	client, err := eventbus.NewClient().
		WithMockMode(true).
		WithCredentials(store).
		WithMockResponse("deviceservice:whoami", func(msg *eventbus.Message) eventbus.Reply {
			return eventbus.Reply{Code: eventbus.CodeOK, Result: msg.AccessToken}
		}).
		Build()
	require.NoError(t, err)
	require.NoError(t, client.Open(context.Background()))

	reply, err := client.Request(context.Background(), "deviceservice", eventbus.Message{Action: "whoami"})
	require.NoError(t, err)
	assert.Equal(t, "stale", reply.Result)

	require.NoError(t, store.RefreshAndSet(context.Background()))

	reply, err = client.Request(context.Background(), "deviceservice", eventbus.Message{Action: "whoami"})
	require.NoError(t, err)
	assert.Equal(t, "fresh", reply.Result)
}
