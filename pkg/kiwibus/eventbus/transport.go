package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

// Transport carries frames for one established connection.
type Transport interface {
	Send(frame Frame) error
	Close() error
}

// TransportHooks are called by a Transport for inbound frames and for closes
// the client did not ask for.
type TransportHooks struct {
	OnFrame func(Frame)
	OnClose func(err error)
}

// Dialer establishes a Transport. The default dialer opens a WebSocket.
type Dialer func(ctx context.Context, hooks TransportHooks) (Transport, error)

// WebSocketOptions configures the WebSocket dialer.
type WebSocketOptions struct {
	URL              string
	Headers          map[string][]string
	WriteChannelSize int
	PingInterval     time.Duration
	Logger           *zap.Logger
}

// NewWebSocketDialer returns a Dialer that connects to opts.URL.
func NewWebSocketDialer(opts WebSocketOptions) Dialer {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.WriteChannelSize <= 0 {
		opts.WriteChannelSize = 100
	}

	return func(ctx context.Context, hooks TransportHooks) (Transport, error) {
		return dialWebSocket(ctx, opts, hooks)
	}
}

// wsTransport runs one read goroutine and one write goroutine per connection.
type wsTransport struct {
	logger       *zap.Logger
	hooks        TransportHooks
	pingInterval time.Duration

	conn     *websocket.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.RWMutex
	stopping int32

	writeChannel chan Frame
	done         chan struct{}
	closing      chan struct{}
	writerDone   chan struct{}
}

// closeFlushTimeout bounds how long Close spends writing queued frames.
const closeFlushTimeout = time.Second

func dialWebSocket(ctx context.Context, opts WebSocketOptions, hooks TransportHooks) (*wsTransport, error) {
	if _, err := url.Parse(opts.URL); err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	dialOptions := &websocket.DialOptions{}
	if len(opts.Headers) > 0 {
		dialOptions.HTTPHeader = make(map[string][]string, len(opts.Headers))
		for key, values := range opts.Headers {
			dialOptions.HTTPHeader[key] = values
		}
	}

	conn, _, err := websocket.Dial(ctx, opts.URL, dialOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket: %w", err)
	}

	t := &wsTransport{
		logger:       opts.Logger,
		hooks:        hooks,
		pingInterval: opts.PingInterval,
		conn:         conn,
		writeChannel: make(chan Frame, opts.WriteChannelSize),
		done:         make(chan struct{}),
		closing:      make(chan struct{}),
		writerDone:   make(chan struct{}),
	}
	t.ctx, t.cancel = context.WithCancel(context.Background())

	t.logger.Info("WebSocket transport connected", zap.String("url", opts.URL))

	go t.readLoop()
	go t.writeLoop()
	if t.pingInterval > 0 {
		go t.pingLoop()
	}

	return t, nil
}

// Send queues a frame for writing without blocking.
func (t *wsTransport) Send(frame Frame) error {
	select {
	case <-t.ctx.Done():
		return fmt.Errorf("transport is closed")
	default:
	}

	select {
	case t.writeChannel <- frame:
		return nil
	case <-t.ctx.Done():
		return fmt.Errorf("transport is closed")
	default:
		return fmt.Errorf("write channel is full")
	}
}

// Close writes the frames still queued, then shuts the connection down with
// a normal closure. The OnClose hook is not called for closes requested
// through this method. Close does not wait for the read goroutine, so it is
// safe to call from a frame handler.
func (t *wsTransport) Close() error {
	if !atomic.CompareAndSwapInt32(&t.stopping, 0, 1) {
		return nil
	}

	t.logger.Debug("Closing WebSocket transport")
	close(t.closing)
	select {
	case <-t.writerDone:
	case <-time.After(closeFlushTimeout):
	}
	t.cleanupWithStatus(websocket.StatusNormalClosure, "client disconnect")
	return nil
}

func (t *wsTransport) cleanupWithStatus(status websocket.StatusCode, reason string) {
	t.cancel()

	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()

	if conn != nil {
		conn.Close(status, reason)
	}
}

// notifyDisconnectError tears down after a read or write failure and reports
// the failure through the OnClose hook.
func (t *wsTransport) notifyDisconnectError(err error) {
	if atomic.CompareAndSwapInt32(&t.stopping, 0, 1) {
		// readLoop/writeLoop must exit before cleanup can finish
		go func() {
			t.cleanupWithStatus(websocket.StatusInternalError, "connection error")
			<-t.done

			if t.hooks.OnClose != nil {
				t.hooks.OnClose(err)
			}
		}()
	}
}

func (t *wsTransport) currentConn() *websocket.Conn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.conn
}

func (t *wsTransport) readLoop() {
	defer close(t.done)

	conn := t.currentConn()
	if conn == nil {
		return
	}

	for {
		_, data, err := conn.Read(t.ctx)
		if err != nil {
			if t.ctx.Err() == nil {
				t.logger.Warn("Failed to read from WebSocket", zap.Error(err))
				t.notifyDisconnectError(err)
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			t.logger.Warn("Failed to unmarshal frame", zap.Error(err))
			continue
		}

		if t.hooks.OnFrame != nil {
			t.hooks.OnFrame(frame)
		}
	}
}

func (t *wsTransport) writeLoop() {
	defer close(t.writerDone)

	conn := t.currentConn()
	if conn == nil {
		return
	}

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-t.closing:
			t.flush(conn)
			return
		case frame := <-t.writeChannel:
			if err := wsjson.Write(t.ctx, conn, frame); err != nil {
				if t.ctx.Err() == nil {
					t.logger.Warn("Failed to write to WebSocket", zap.Error(err))
					t.notifyDisconnectError(err)
				}
				return
			}
		}
	}
}

// flush writes whatever is left in the write channel.
func (t *wsTransport) flush(conn *websocket.Conn) {
	ctx, cancel := context.WithTimeout(t.ctx, closeFlushTimeout)
	defer cancel()

	for {
		select {
		case frame := <-t.writeChannel:
			if err := wsjson.Write(ctx, conn, frame); err != nil {
				t.logger.Debug("Dropping queued frames on close", zap.Error(err))
				return
			}
		default:
			return
		}
	}
}

// pingLoop sends bridge-level pings so idle connections are kept alive.
func (t *wsTransport) pingLoop() {
	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			if err := t.Send(Frame{Type: FramePing}); err != nil {
				t.logger.Debug("Failed to queue ping", zap.Error(err))
			}
		}
	}
}
