package messaging

import (
	"context"

	"go.uber.org/zap"
)

// LogTransport writes messages to the log. Used when no broker is configured.
type LogTransport struct {
	logger *zap.Logger
}

func NewLogTransport(logger *zap.Logger) *LogTransport {
	return &LogTransport{logger: logger.With(zap.String("module", "events"))}
}

func (t *LogTransport) Send(ctx context.Context, msg Message) error {
	t.logger.Info("event",
		zap.String("id", msg.ID),
		zap.String("topic", msg.Topic),
		zap.String("key", msg.Key),
		zap.ByteString("body", msg.Body),
	)
	return nil
}

func (t *LogTransport) Close() error { return nil }
