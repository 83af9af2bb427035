package token

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func newRefreshServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		if n == 2 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"accessToken":"token-` + string(rune('0'+n)) + `"}`))
	}))
	t.Cleanup(server.Close)
	return server
}

func TestNewScheduler(t *testing.T) {
	store := NewStore("t")

	for _, schedule := range []string{"@every 5m", "0 */5 * * * *", "*/5 * * * *", "@hourly"} {
		_, err := NewScheduler(store, schedule, nil)
		assert.NoError(t, err, schedule)
	}

	_, err := NewScheduler(store, "every five minutes", nil)
	assert.Error(t, err)
}

func TestSchedulerRun(t *testing.T) {
	var calls atomic.Int32
	server := newRefreshServer(t, &calls)

	store := NewStore("token-0").WithBaseURL(server.URL)
	core, logs := observer.New(zapcore.DebugLevel)

	var results []error
	scheduler, err := NewScheduler(store, "@every 1h", zap.New(core))
	require.NoError(t, err)
	scheduler.WithTimeout(time.Second).WithResultHandler(func(token string, err error) {
		results = append(results, err)
	})

	scheduler.Run()
	assert.Equal(t, "token-1", store.Get())

	// a failed refresh keeps the old token and is logged
	scheduler.Run()
	assert.Equal(t, "token-1", store.Get())
	assert.Equal(t, 1, logs.FilterMessage("Scheduled access token refresh failed").Len())

	scheduler.Run()
	assert.Equal(t, "token-3", store.Get())

	require.Len(t, results, 3)
	assert.NoError(t, results[0])
	assert.Error(t, results[1])
	assert.NoError(t, results[2])
}

func TestSchedulerStartStop(t *testing.T) {
	var calls atomic.Int32
	server := newRefreshServer(t, &calls)

	store := NewStore("token-0").WithBaseURL(server.URL)
	scheduler, err := NewScheduler(store, "@every 1s", zaptest.NewLogger(t))
	require.NoError(t, err)

	scheduler.Start()
	require.Eventually(t, func() bool {
		return calls.Load() >= 1
	}, 3*time.Second, 20*time.Millisecond)

	<-scheduler.Stop().Done()
	assert.Equal(t, "token-1", store.Get())
}

func TestZapCronLogger(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewZapCronLogger(zap.New(core))

	logger.Info("schedule", "entry", 1, "next", "soon", "dangling")
	logger.Error(assert.AnError, "job failed", "entry", 1)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, map[string]any{"entry": int64(1), "next": "soon"}, entries[0].ContextMap())
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Contains(t, entries[1].ContextMap(), "error")
}
