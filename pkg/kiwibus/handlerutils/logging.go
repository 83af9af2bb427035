package handlerutils

import (
	"github.com/tsarna/kiwibus/pkg/kiwibus/eventbus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingHandler logs every event it receives and passes it on to the
// wrapped handler, if any.
type LoggingHandler struct {
	wrapped  eventbus.Handler
	logger   *zap.Logger
	logLevel zapcore.Level
	name     string
}

// NewLoggingHandler creates a LoggingHandler. If wrapped is nil it only logs.
func NewLoggingHandler(wrapped eventbus.Handler, logger *zap.Logger, logLevel zapcore.Level) *LoggingHandler {
	return NewNamedLoggingHandler(wrapped, logger, logLevel, "LoggingHandler")
}

// NewNamedLoggingHandler creates a LoggingHandler identified by name in logs.
func NewNamedLoggingHandler(wrapped eventbus.Handler, logger *zap.Logger, logLevel zapcore.Level, name string) *LoggingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoggingHandler{
		wrapped:  wrapped,
		logger:   logger,
		logLevel: logLevel,
		name:     name,
	}
}

// Handle logs event and calls the wrapped handler.
func (l *LoggingHandler) Handle(event eventbus.Event) {
	l.logger.Log(l.logLevel, "Event received",
		zap.String("handler", l.name),
		zap.String("type", string(event.Type)),
		zap.Any("value", event.Value),
		zap.Bool("hasWrapped", l.wrapped != nil),
	)

	if l.wrapped != nil {
		l.wrapped(event)
	}
}

// Handler returns Handle as an eventbus.Handler.
func (l *LoggingHandler) Handler() eventbus.Handler {
	return l.Handle
}
