package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tsarna/kiwibus/pkg/kiwibus/o11y"
	"go.uber.org/zap"
)

// ErrNotOpen is returned by operations that need an open connection.
var ErrNotOpen = errors.New("EventBus not open")

// Client is one logical connection to the event bus. All registries are owned
// by the client, so independent clients can coexist in one process.
type Client struct {
	config      Config
	logger      *zap.Logger
	credentials Credentials
	dialer      Dialer
	reload      ReloadFunc
	debug       atomic.Bool

	mu             sync.Mutex
	state          State
	transport      Transport
	generation     uint64
	reconnectTimer *time.Timer
	onOpen         map[string]func()
	onClose        map[string]func()
	busHandlers    map[string]*registration
	mockResponses  map[string]MockResponse

	pendingMu sync.Mutex
	pending   map[string]*pendingRequest

	events callbackQueue

	// Observability (nil if not configured)
	tracingProvider  o11y.TracingProvider
	requestCounter   o11y.Counter
	publishCounter   o11y.Counter
	latencyHistogram o11y.Histogram
	pendingGauge     o11y.Gauge
}

func newClient(config Config, logger *zap.Logger, credentials Credentials, dialer Dialer, reload ReloadFunc) *Client {
	c := &Client{
		config:        config,
		logger:        logger,
		credentials:   credentials,
		dialer:        dialer,
		reload:        reload,
		state:         StateClosed,
		onOpen:        make(map[string]func()),
		onClose:       make(map[string]func()),
		busHandlers:   make(map[string]*registration),
		mockResponses: make(map[string]MockResponse),
		pending:       make(map[string]*pendingRequest),
	}
	c.debug.Store(config.DebugMode)
	return c
}

func (c *Client) setupObservability(metrics o11y.MetricsProvider, tracing o11y.TracingProvider) {
	c.tracingProvider = tracing

	if metrics != nil {
		c.requestCounter = metrics.Counter("kiwibus_requests_total")
		c.publishCounter = metrics.Counter("kiwibus_messages_published_total")
		c.latencyHistogram = metrics.Histogram("kiwibus_request_duration_seconds")
		c.pendingGauge = metrics.Gauge("kiwibus_pending_requests")
	}
}

// ID returns the identifier the client was configured with.
func (c *Client) ID() string {
	return c.config.ID
}

// Config returns a copy of the client's configuration.
func (c *Client) Config() Config {
	return c.config
}

// MockMode reports whether the client runs against the in-process mock bus.
func (c *Client) MockMode() bool {
	return c.config.MockMode
}

// SetDebug switches request/reply logging between debug and info level.
func (c *Client) SetDebug(enabled bool) {
	c.debug.Store(enabled)
}

// Debug reports whether debug mode is on.
func (c *Client) Debug() bool {
	return c.debug.Load()
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StateLabel returns the label of the current connection state.
func (c *Client) StateLabel() string {
	return c.State().String()
}

// Open connects the client if it is CLOSED and does nothing otherwise. In mock
// mode the client becomes OPEN immediately. A failed dial leaves the client
// CLOSED, fires the close handlers and arms a reconnect if enabled.
func (c *Client) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateClosed {
		c.mu.Unlock()
		return nil
	}
	c.stopReconnectLocked()

	if c.config.MockMode {
		c.state = StateOpen
		handlers := lifecycleHandlers(c.onOpen)
		c.mu.Unlock()

		c.logger.Info("EventBus opened in mock mode")
		runHandlers(handlers)
		return nil
	}

	c.state = StateConnecting
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	c.logger.Debug("Opening EventBus", zap.String("url", c.config.URL))

	dialCtx, cancel := context.WithTimeout(ctx, c.config.DialTimeout)
	defer cancel()

	transport, err := c.dialer(dialCtx, TransportHooks{
		OnFrame: c.handleFrame,
		OnClose: func(err error) {
			c.handleTransportClose(gen, err)
		},
	})

	c.mu.Lock()
	if err != nil {
		if c.generation == gen && c.state == StateConnecting {
			c.state = StateClosed
		}
		handlers := lifecycleHandlers(c.onClose)
		c.scheduleReconnectLocked()
		c.mu.Unlock()

		c.logger.Warn("Failed to open EventBus", zap.String("url", c.config.URL), zap.Error(err))
		runHandlers(handlers)
		return fmt.Errorf("failed to open event bus: %w", err)
	}

	if c.generation != gen || c.state != StateConnecting {
		// the connection dropped before the dial returned
		c.mu.Unlock()
		transport.Close()
		return fmt.Errorf("event bus connection closed while opening")
	}

	c.transport = transport
	c.state = StateOpen
	ids := make([]string, 0, len(c.busHandlers))
	for id := range c.busHandlers {
		ids = append(ids, id)
	}
	handlers := lifecycleHandlers(c.onOpen)
	c.mu.Unlock()

	c.logger.Info("EventBus opened", zap.String("url", c.config.URL))

	// a new connection knows nothing of the addresses held from the last one
	for _, id := range ids {
		if err := transport.Send(Frame{Type: FrameRegister, Address: id}); err != nil {
			c.logger.Warn("Failed to send register frame", zap.String("id", id), zap.Error(err))
		}
	}
	if len(ids) > 0 {
		c.logger.Debug("Re-registered bus handlers", zap.Int("count", len(ids)))
	}

	runHandlers(handlers)
	return nil
}

// Close disconnects an OPEN client and fires the close handlers. It always
// cancels a pending reconnect, and never arms a new one.
func (c *Client) Close() error {
	c.mu.Lock()
	c.stopReconnectLocked()
	if c.state != StateOpen {
		c.mu.Unlock()
		return nil
	}

	if c.config.MockMode {
		c.state = StateClosed
		handlers := lifecycleHandlers(c.onClose)
		c.mu.Unlock()

		c.logger.Info("EventBus closed in mock mode")
		runHandlers(handlers)
		return nil
	}

	c.state = StateClosing
	c.generation++
	transport := c.transport
	c.transport = nil
	c.mu.Unlock()

	var err error
	if transport != nil {
		err = transport.Close()
	}

	c.mu.Lock()
	c.state = StateClosed
	handlers := lifecycleHandlers(c.onClose)
	c.mu.Unlock()

	c.logger.Info("EventBus closed", zap.String("url", c.config.URL))
	runHandlers(handlers)

	if err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// handleTransportClose reacts to a connection the client did not close
// itself. Callbacks from superseded connections are ignored.
func (c *Client) handleTransportClose(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation || (c.state != StateOpen && c.state != StateConnecting) {
		c.mu.Unlock()
		return
	}

	c.state = StateClosed
	c.transport = nil
	handlers := lifecycleHandlers(c.onClose)
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.logger.Warn("EventBus connection lost", zap.String("url", c.config.URL), zap.Error(err))
	runHandlers(handlers)
}

func (c *Client) scheduleReconnectLocked() {
	if !c.config.Reconnect || c.reconnectTimer != nil {
		return
	}

	c.logger.Info("Scheduling EventBus reconnect", zap.Duration("delay", c.config.ReconnectDelay))

	var timer *time.Timer
	timer = time.AfterFunc(c.config.ReconnectDelay, func() {
		c.mu.Lock()
		if c.reconnectTimer != timer {
			c.mu.Unlock()
			return
		}
		c.reconnectTimer = nil
		c.mu.Unlock()

		if err := c.Open(context.Background()); err != nil {
			c.logger.Debug("Reconnect attempt failed", zap.Error(err))
		}
	})
	c.reconnectTimer = timer
}

func (c *Client) stopReconnectLocked() {
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
}

func (c *Client) currentTransport() Transport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transport
}

// logTraffic logs request and reply traffic, at info level in debug mode.
func (c *Client) logTraffic(msg string, fields ...zap.Field) {
	if c.debug.Load() {
		c.logger.Info(msg, fields...)
	} else {
		c.logger.Debug(msg, fields...)
	}
}

func lifecycleHandlers(handlers map[string]func()) []func() {
	result := make([]func(), 0, len(handlers))
	for _, fn := range handlers {
		result = append(result, fn)
	}
	return result
}

func runHandlers(handlers []func()) {
	for _, fn := range handlers {
		fn()
	}
}
