package config

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
	"github.com/tsarna/kiwibus/pkg/kiwibus/o11y"
	"github.com/tsarna/kiwibus/pkg/kiwibus/token"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
)

type ConfigBuilder struct {
	logger          *zap.Logger
	sources         []any
	metricsProvider o11y.MetricsProvider
	tracingProvider o11y.TracingProvider
}

type Startable interface {
	Start() error
}

// Config is the result of evaluating a set of config files: one credential
// store shared by every client, the mock responses, and the clients themselves.
type Config struct {
	Logger    *zap.Logger
	Constants map[string]cty.Value
	evalCtx   *hcl.EvalContext

	metricsProvider o11y.MetricsProvider
	tracingProvider o11y.TracingProvider

	Startables []Startable
	Token      *token.Store
	Scheduler  *token.Scheduler
	Mocks      map[string]eventbus.MockResponse
	Clients    *eventbus.Manager

	mockKeys []string
}

func NewConfig() *ConfigBuilder {
	return &ConfigBuilder{
		sources: make([]any, 0),
		logger:  zap.NewNop(),
	}
}

func (c *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	if logger != nil {
		c.logger = logger
	}
	return c
}

func (c *ConfigBuilder) WithSources(sources ...any) *ConfigBuilder {
	c.sources = append(c.sources, sources...)
	return c
}

// WithMetrics sets the metrics provider handed to every configured client.
func (c *ConfigBuilder) WithMetrics(provider o11y.MetricsProvider) *ConfigBuilder {
	c.metricsProvider = provider
	return c
}

// WithTracing sets the tracing provider handed to every configured client.
func (c *ConfigBuilder) WithTracing(provider o11y.TracingProvider) *ConfigBuilder {
	c.tracingProvider = provider
	return c
}

func (cb *ConfigBuilder) Build() (*Config, hcl.Diagnostics) {
	config := &Config{
		Logger:          cb.logger,
		Constants:       make(map[string]cty.Value),
		metricsProvider: cb.metricsProvider,
		tracingProvider: cb.tracingProvider,
		Token:           token.NewStore("").WithLogger(cb.logger),
		Mocks:           make(map[string]eventbus.MockResponse),
		Clients:         eventbus.NewManager(),
	}

	bodies, diags := ParseConfigFiles(cb.sources...)
	if diags.HasErrors() {
		return nil, diags
	}

	config.Constants["env"] = GetEnvObject()
	config.Constants["code"] = getCodeObject()

	config.evalCtx = &hcl.EvalContext{
		Variables: config.Constants,
	}

	userFuncs, bodies, addDiags := config.ExtractUserFunctions(bodies)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	config.evalCtx.Functions, addDiags = config.GetFunctions(userFuncs)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	blocks, addDiags := cb.GetBlocks(bodies)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	blockHandlers := GetBlockHandlers()

	for _, block := range blocks {
		if handler, ok := blockHandlers[block.Type]; ok {
			diags = diags.Extend(handler.Preprocess(block))
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}

	// credentials and mocks have to exist before the clients using them
	for _, blockType := range blockOrder {
		handler := blockHandlers[blockType]
		for _, block := range blocks {
			if block.Type == blockType {
				diags = diags.Extend(handler.Process(config, block))
			}
		}
		diags = diags.Extend(handler.FinishProcessing(config))
		if diags.HasErrors() {
			config.Close()
			return nil, diags
		}
	}

	config.Logger.Info("Config built successfully",
		zap.Int("clients", len(config.Clients.All())),
		zap.Int("mocks", len(config.Mocks)),
	)

	return config, diags
}

// Start starts everything that runs in the background, such as the token
// refresh schedule.
func (c *Config) Start() error {
	for _, startable := range c.Startables {
		if err := startable.Start(); err != nil {
			return fmt.Errorf("failed to start: %w", err)
		}
	}
	return nil
}

// Close stops the refresh schedule and closes every configured client.
func (c *Config) Close() {
	if c.Scheduler != nil {
		<-c.Scheduler.Stop().Done()
	}
	for _, client := range c.Clients.All() {
		if err := client.Close(); err != nil {
			c.Logger.Warn("Failed to close client", zap.String("client", client.ID()), zap.Error(err))
		}
	}
	c.Clients.RemoveAll()
}

// OpenAll opens every configured client that is not open yet.
func (c *Config) OpenAll(ctx context.Context) error {
	for _, client := range c.Clients.All() {
		if client.State() == eventbus.StateOpen {
			continue
		}
		if err := client.Open(ctx); err != nil {
			return fmt.Errorf("client %s: %w", client.ID(), err)
		}
	}
	return nil
}

// Client returns the client configured under name, or nil.
func (c *Config) Client(name string) *eventbus.Client {
	return c.Clients.Get(name)
}

type errorlessStartable interface {
	Start()
}

func NewErrorlessStartable(startable errorlessStartable) Startable {
	return &ErrorlessStartable{startable: startable}
}

type ErrorlessStartable struct {
	startable errorlessStartable
}

func (e ErrorlessStartable) Start() error {
	e.startable.Start()
	return nil
}
