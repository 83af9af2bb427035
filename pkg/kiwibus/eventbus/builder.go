package eventbus

import (
	"context"
	"fmt"
	"time"

	"github.com/tsarna/kiwibus/pkg/kiwibus/o11y"
	"go.uber.org/zap"
)

// ClientBuilder provides a fluent interface for building event bus clients.
type ClientBuilder struct {
	config          Config
	logger          *zap.Logger
	credentials     Credentials
	reload          ReloadFunc
	dialer          Dialer
	mockResponses   []mockRegistration
	metricsProvider o11y.MetricsProvider
	tracingProvider o11y.TracingProvider
}

type mockRegistration struct {
	key      string
	response MockResponse
}

// NewClient creates a new client builder with default configuration.
func NewClient() *ClientBuilder {
	return &ClientBuilder{
		config: DefaultConfig(),
		logger: zap.NewNop(),
	}
}

// WithConfig replaces the whole configuration. Zero durations and sizes fall
// back to their defaults.
func (b *ClientBuilder) WithConfig(config Config) *ClientBuilder {
	defaults := DefaultConfig()
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = defaults.ReconnectDelay
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}
	if config.DialTimeout <= 0 {
		config.DialTimeout = defaults.DialTimeout
	}
	if config.WriteChannelSize <= 0 {
		config.WriteChannelSize = defaults.WriteChannelSize
	}
	if config.MaxTokenRetries < 0 {
		config.MaxTokenRetries = defaults.MaxTokenRetries
	}
	if config.ID == "" {
		config.ID = defaults.ID
	}
	b.config = config
	return b
}

// WithID sets the identifier used by Manager.
func (b *ClientBuilder) WithID(id string) *ClientBuilder {
	b.config.ID = id
	return b
}

// WithURL sets the URL of the bus endpoint.
func (b *ClientBuilder) WithURL(url string) *ClientBuilder {
	b.config.URL = url
	return b
}

// WithLogger sets the logger for the client.
func (b *ClientBuilder) WithLogger(logger *zap.Logger) *ClientBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithAutoConnect makes Build start opening the connection immediately.
func (b *ClientBuilder) WithAutoConnect(enabled bool) *ClientBuilder {
	b.config.AutoConnect = enabled
	return b
}

// WithAutoUnregister controls whether NavigationStart also clears the
// on-open and on-close handlers.
func (b *ClientBuilder) WithAutoUnregister(enabled bool) *ClientBuilder {
	b.config.AutoUnregister = enabled
	return b
}

// WithReconnect enables or disables reconnecting after the transport closes.
// A non-positive delay keeps the current one.
func (b *ClientBuilder) WithReconnect(enabled bool, delay time.Duration) *ClientBuilder {
	b.config.Reconnect = enabled
	if delay > 0 {
		b.config.ReconnectDelay = delay
	}
	return b
}

// WithMockMode replaces the transport with the in-process mock bus.
func (b *ClientBuilder) WithMockMode(enabled bool) *ClientBuilder {
	b.config.MockMode = enabled
	return b
}

// WithDebugMode logs every request and reply at info level.
func (b *ClientBuilder) WithDebugMode(enabled bool) *ClientBuilder {
	b.config.DebugMode = enabled
	return b
}

// WithSendTimeout sets how long Send waits for a reply before settling with 408.
func (b *ClientBuilder) WithSendTimeout(timeout time.Duration) *ClientBuilder {
	if timeout > 0 {
		b.config.SendTimeout = timeout
	}
	return b
}

// WithMaxTokenRetries bounds how often one request is resent after an
// expired-token reply. Zero delivers the 419 to the caller.
func (b *ClientBuilder) WithMaxTokenRetries(retries int) *ClientBuilder {
	if retries >= 0 {
		b.config.MaxTokenRetries = retries
	}
	return b
}

// WithDialTimeout sets the timeout for establishing the connection.
func (b *ClientBuilder) WithDialTimeout(timeout time.Duration) *ClientBuilder {
	if timeout > 0 {
		b.config.DialTimeout = timeout
	}
	return b
}

// WithWriteChannelSize sets the buffer size of the transport's write queue.
func (b *ClientBuilder) WithWriteChannelSize(size int) *ClientBuilder {
	if size > 0 {
		b.config.WriteChannelSize = size
	}
	return b
}

// WithPingInterval enables bridge pings at the given interval.
func (b *ClientBuilder) WithPingInterval(interval time.Duration) *ClientBuilder {
	if interval >= 0 {
		b.config.PingInterval = interval
	}
	return b
}

// WithHeaders adds HTTP headers sent with the WebSocket handshake.
func (b *ClientBuilder) WithHeaders(headers map[string][]string) *ClientBuilder {
	if b.config.Headers == nil {
		b.config.Headers = make(map[string][]string)
	}
	for key, values := range headers {
		b.config.Headers[key] = values
	}
	return b
}

// WithHeader sets a single handshake header.
func (b *ClientBuilder) WithHeader(key, value string) *ClientBuilder {
	if b.config.Headers == nil {
		b.config.Headers = make(map[string][]string)
	}
	b.config.Headers[key] = []string{value}
	return b
}

// WithCredentials sets the access token source.
func (b *ClientBuilder) WithCredentials(credentials Credentials) *ClientBuilder {
	b.credentials = credentials
	return b
}

// WithReloadFunc sets what happens when the access token cannot be refreshed.
func (b *ClientBuilder) WithReloadFunc(reload ReloadFunc) *ClientBuilder {
	b.reload = reload
	return b
}

// WithDialer replaces the WebSocket transport.
func (b *ClientBuilder) WithDialer(dialer Dialer) *ClientBuilder {
	b.dialer = dialer
	return b
}

// WithMockResponse registers a mock response under "address:action".
func (b *ClientBuilder) WithMockResponse(key string, responder MockResponder) *ClientBuilder {
	b.mockResponses = append(b.mockResponses, mockRegistration{key: key, response: MockResponse{Respond: responder}})
	return b
}

// WithMockEventResponse registers a mock response whose synthesized event type
// is given explicitly instead of inferred from the action name.
func (b *ClientBuilder) WithMockEventResponse(key string, eventType EventType, responder MockResponder) *ClientBuilder {
	b.mockResponses = append(b.mockResponses, mockRegistration{key: key, response: MockResponse{Respond: responder, Event: eventType}})
	return b
}

// WithMetrics sets the metrics provider.
func (b *ClientBuilder) WithMetrics(provider o11y.MetricsProvider) *ClientBuilder {
	b.metricsProvider = provider
	return b
}

// WithTracing sets the tracing provider.
func (b *ClientBuilder) WithTracing(provider o11y.TracingProvider) *ClientBuilder {
	b.tracingProvider = provider
	return b
}

// IsValid checks that all required configuration is present.
func (b *ClientBuilder) IsValid() error {
	if b.config.URL == "" && !b.config.MockMode && b.dialer == nil {
		return fmt.Errorf("URL is required")
	}

	if b.config.SendTimeout <= 0 {
		return fmt.Errorf("send timeout must be positive, got %s", b.config.SendTimeout)
	}

	if b.config.Reconnect && b.config.ReconnectDelay <= 0 {
		return fmt.Errorf("reconnect delay must be positive, got %s", b.config.ReconnectDelay)
	}

	for _, reg := range b.mockResponses {
		if reg.response.Respond == nil {
			return fmt.Errorf("mock response %q has no responder", reg.key)
		}
	}

	return nil
}

// Build creates the client. With auto-connect enabled the connection is
// opened right away: synchronously in mock mode, in the background otherwise.
func (b *ClientBuilder) Build() (*Client, error) {
	if err := b.IsValid(); err != nil {
		return nil, err
	}

	credentials := b.credentials
	if credentials == nil {
		credentials = NewStaticCredentials("")
	}

	dialer := b.dialer
	if dialer == nil {
		dialer = NewWebSocketDialer(WebSocketOptions{
			URL:              b.config.URL,
			Headers:          b.config.Headers,
			WriteChannelSize: b.config.WriteChannelSize,
			PingInterval:     b.config.PingInterval,
			Logger:           b.logger,
		})
	}

	reload := b.reload
	if reload == nil {
		reload = ReconnectOnReload
	}

	c := newClient(b.config, b.logger, credentials, dialer, reload)
	c.setupObservability(b.metricsProvider, b.tracingProvider)

	for _, reg := range b.mockResponses {
		c.addMockResponse(reg.key, reg.response)
	}

	if b.config.AutoConnect {
		if b.config.MockMode {
			c.Open(context.Background())
		} else {
			go func() {
				if err := c.Open(context.Background()); err != nil {
					c.logger.Warn("Auto connect failed", zap.Error(err))
				}
			}()
		}
	}

	return c, nil
}
