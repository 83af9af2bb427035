package config

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
	"go.uber.org/zap"
)

type ClientDefinition struct {
	Name             string            `hcl:"name,label"`
	URL              string            `hcl:"url,optional"`
	AutoConnect      *bool             `hcl:"auto_connect,optional"`
	AutoUnregister   *bool             `hcl:"auto_unregister,optional"`
	Reconnect        *bool             `hcl:"reconnect,optional"`
	ReconnectDelay   hcl.Expression    `hcl:"reconnect_delay,optional"`
	MockMode         *bool             `hcl:"mock_mode,optional"`
	DebugMode        *bool             `hcl:"debug_mode,optional"`
	SendTimeout      hcl.Expression    `hcl:"send_timeout,optional"`
	MaxTokenRetries  *int              `hcl:"max_token_retries,optional"`
	DialTimeout      hcl.Expression    `hcl:"dial_timeout,optional"`
	PingInterval     hcl.Expression    `hcl:"ping_interval,optional"`
	WriteChannelSize *int              `hcl:"write_channel_size,optional"`
	Headers          map[string]string `hcl:"headers,optional"`
	DefRange         hcl.Range         `hcl:",def_range"`
}

type ClientBlockHandler struct {
	BlockHandlerBase
	seen duplicateChecker
}

func NewClientBlockHandler() *ClientBlockHandler {
	return &ClientBlockHandler{seen: newDuplicateChecker(hcl.DiagError)}
}

func (h *ClientBlockHandler) Preprocess(block *hcl.Block) hcl.Diagnostics {
	return h.seen.check(block, block.Labels[0])
}

func (h *ClientBlockHandler) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	clientDef := ClientDefinition{}
	diags := gohcl.DecodeBody(block.Body, config.evalCtx, &clientDef)
	if diags.HasErrors() {
		return diags
	}
	clientDef.Name = block.Labels[0]

	builder, addDiags := config.clientBuilder(&clientDef)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return diags
	}

	if err := builder.IsValid(); err != nil {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid client",
			Detail:   err.Error(),
			Subject:  &clientDef.DefRange,
		})
	}

	client, err := builder.Build()
	if err != nil {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Failed to build client",
			Detail:   err.Error(),
			Subject:  &clientDef.DefRange,
		})
	}

	config.Clients.Add(clientDef.Name, client)
	config.Logger.Debug("Client configured",
		zap.String("client", clientDef.Name),
		zap.Bool("mockMode", client.MockMode()),
	)

	return diags
}

// clientBuilder translates a client block into a ClientBuilder wired to the
// shared credential store and every mock block.
func (c *Config) clientBuilder(clientDef *ClientDefinition) (*eventbus.ClientBuilder, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	defaults := eventbus.DefaultConfig()
	builder := eventbus.NewClient().
		WithID(clientDef.Name).
		WithLogger(c.Logger.With(zap.String("client", clientDef.Name))).
		WithCredentials(c.Token).
		WithMetrics(c.metricsProvider).
		WithTracing(c.tracingProvider)

	if clientDef.URL != "" {
		builder.WithURL(clientDef.URL)
	}
	if clientDef.AutoConnect != nil {
		builder.WithAutoConnect(*clientDef.AutoConnect)
	}
	if clientDef.AutoUnregister != nil {
		builder.WithAutoUnregister(*clientDef.AutoUnregister)
	}
	if clientDef.MockMode != nil {
		builder.WithMockMode(*clientDef.MockMode)
	}
	if clientDef.DebugMode != nil {
		builder.WithDebugMode(*clientDef.DebugMode)
	}
	if clientDef.MaxTokenRetries != nil {
		builder.WithMaxTokenRetries(*clientDef.MaxTokenRetries)
	}
	if clientDef.WriteChannelSize != nil {
		builder.WithWriteChannelSize(*clientDef.WriteChannelSize)
	}
	for key, value := range clientDef.Headers {
		builder.WithHeader(key, value)
	}

	reconnect := defaults.Reconnect
	if clientDef.Reconnect != nil {
		reconnect = *clientDef.Reconnect
	}
	reconnectDelay := defaults.ReconnectDelay
	diags = diags.Extend(c.optionalDuration(clientDef.ReconnectDelay, &reconnectDelay))
	builder.WithReconnect(reconnect, reconnectDelay)

	sendTimeout := defaults.SendTimeout
	diags = diags.Extend(c.optionalDuration(clientDef.SendTimeout, &sendTimeout))
	builder.WithSendTimeout(sendTimeout)

	dialTimeout := defaults.DialTimeout
	diags = diags.Extend(c.optionalDuration(clientDef.DialTimeout, &dialTimeout))
	builder.WithDialTimeout(dialTimeout)

	pingInterval := defaults.PingInterval
	diags = diags.Extend(c.optionalDuration(clientDef.PingInterval, &pingInterval))
	builder.WithPingInterval(pingInterval)

	for _, key := range c.mockKeys {
		response := c.Mocks[key]
		builder.WithMockEventResponse(key, response.Event, response.Respond)
	}

	return builder, diags
}
