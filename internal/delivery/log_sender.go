package delivery

import (
	"context"

	"securefiles/server/internal/logging"
)

// LogSender writes messages to the log instead of sending them. Dev only:
// the plain body contains the magic link.
type LogSender struct {
	log logging.Logger
}

func NewLogSender(log logging.Logger) *LogSender {
	return &LogSender{log: log.With("component", "log_sender")}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.log.Info(ctx, "email (not sent)", "to", msg.To, "subject", msg.Subject, "body", msg.PlainBody)
	return nil
}
