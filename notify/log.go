package notify

import (
	"context"

	"github.com/MrEthical07/authx"
	"go.uber.org/zap"
)

// LogNotifier writes notifications to a logger instead of sending them. Codes and links
// are logged in clear text, so use it only in development.
type LogNotifier struct {
	log *zap.Logger
}

var _ authx.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogNotifier{log: log.Named("notify")}
}

func (l *LogNotifier) Notify(_ context.Context, n authx.Notification) error {
	fields := []zap.Field{
		zap.String("kind", string(n.Kind)),
		zap.String("account_id", n.AccountID),
		zap.String("to", n.To),
	}
	if n.Code != "" {
		fields = append(fields, zap.String("code", n.Code))
	}
	if n.ResetURL != "" {
		fields = append(fields, zap.String("reset_url", n.ResetURL))
	}
	l.log.Info("notification", fields...)
	return nil
}
