package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tsarna/kiwibus/pkg/kiwibus/config"
	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
	"github.com/tsarna/kiwibus/pkg/kiwibus/otel"
	"github.com/tsarna/kiwibus/pkg/kiwibus/token"
	"go.uber.org/zap"
)

func setupLogger() (*zap.Logger, error) {
	level := logLevel

	if GetDebug() || GetVerbose() {
		level = "debug"
	}

	var zapLevel zap.AtomicLevel
	switch strings.ToLower(level) {
	case "debug":
		zapLevel = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn", "warning":
		zapLevel = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapLevel = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}

	config := zap.NewProductionConfig()
	config.Level = zapLevel
	config.Development = GetDebug()

	return config.Build()
}

// session is an open client plus whatever has to be torn down with it.
type session struct {
	client *eventbus.Client
	logger *zap.Logger
	config *config.Config
}

func (s *session) Close() {
	if s.config != nil {
		s.config.Close()
	} else if err := s.client.Close(); err != nil {
		s.logger.Warn("Error closing event bus", zap.Error(err))
	}
	_ = s.logger.Sync()
}

// connect opens the client selected by the global flags.
func connect(ctx context.Context, dialTimeout time.Duration) (*session, error) {
	logger, err := setupLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to setup logger: %w", err)
	}

	provider := otel.NewProvider("kiwibus", Version)

	var s *session
	if len(configPaths) > 0 {
		s, err = connectFromConfig(logger, provider)
	} else {
		s, err = connectFromFlags(logger, provider, dialTimeout)
	}
	if err != nil {
		return nil, err
	}

	if GetDebug() {
		s.client.SetDebug(true)
	}

	if s.client.State() != eventbus.StateOpen {
		if err := s.client.Open(ctx); err != nil {
			s.Close()
			return nil, err
		}
	}

	logger.Debug("Event bus open",
		zap.String("client", s.client.ID()),
		zap.Bool("mockMode", s.client.MockMode()),
	)

	return s, nil
}

func connectFromConfig(logger *zap.Logger, provider *otel.Provider) (*session, error) {
	sources := make([]any, len(configPaths))
	for i, path := range configPaths {
		sources[i] = path
	}

	cfg, diags := config.NewConfig().
		WithLogger(logger).
		WithSources(sources...).
		WithMetrics(provider).
		WithTracing(provider).
		Build()
	if diags.HasErrors() {
		return nil, diags
	}

	var client *eventbus.Client
	if clientName != "" {
		client = cfg.Client(clientName)
		if client == nil {
			cfg.Close()
			return nil, fmt.Errorf("no client named %q in configuration", clientName)
		}
	} else if all := cfg.Clients.All(); len(all) > 0 {
		client = all[0]
	} else {
		cfg.Close()
		return nil, fmt.Errorf("configuration defines no client")
	}

	if mockMode && !client.MockMode() {
		cfg.Close()
		return nil, fmt.Errorf("client %q is not in mock mode; set mock_mode in its client block", client.ID())
	}

	if err := cfg.Start(); err != nil {
		cfg.Close()
		return nil, err
	}

	return &session{client: client, logger: logger, config: cfg}, nil
}

func connectFromFlags(logger *zap.Logger, provider *otel.Provider, dialTimeout time.Duration) (*session, error) {
	builder := eventbus.NewClient().
		WithID("cli").
		WithLogger(logger).
		WithMockMode(mockMode).
		WithReconnect(false, 0).
		WithDialTimeout(dialTimeout).
		WithCredentials(token.NewStore(accessToken).WithLogger(logger)).
		WithMetrics(provider).
		WithTracing(provider)
	if busURL != "" {
		builder.WithURL(busURL)
	}

	client, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus client: %w", err)
	}

	return &session{client: client, logger: logger}, nil
}

// parseValue reads a command line argument as JSON, falling back to the
// plain string.
func parseValue(arg string) any {
	var value any
	if err := json.Unmarshal([]byte(arg), &value); err != nil {
		return arg
	}
	return value
}

func printJSON(out io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}
