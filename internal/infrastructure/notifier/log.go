package notifier

import (
	"context"

	"go.uber.org/zap"

	zapLogger "github.com/amarcoder01/market-engine/internal/logger"
)

// LogSender writes notifications to the log. Used when no webhook is
// configured, so local runs still show what would have been delivered.
type LogSender struct{}

func NewLogSender() *LogSender {
	return &LogSender{}
}

func (l *LogSender) Send(ctx context.Context, channel, recipient, message string) error {
	zapLogger.Info(ctx, "notification",
		zap.String("channel", channel),
		zap.String("recipient", recipient),
		zap.String("message", message),
	)

	return nil
}
