package channel

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Sender delivers one outbound payload. Implementations must be safe for
// concurrent use.
type Sender interface {
	Send(ctx context.Context, p Payload) error
}

// LogSender writes payloads to the logger instead of a provider. Used when
// CHANNEL_PROVIDER=log (local development, dry runs).
type LogSender struct {
	Logger *zerolog.Logger
}

// NewLogSender returns a LogSender using the global logger.
func NewLogSender() *LogSender { return &LogSender{} }

// Send implements Sender.
func (s *LogSender) Send(ctx context.Context, p Payload) error {
	l := log.Ctx(ctx)
	if s.Logger != nil {
		l = s.Logger
	} else if l.GetLevel() == zerolog.Disabled {
		l = &log.Logger
	}
	l.Info().
		Str("to", p.To).
		Str("type", p.Type).
		Strs("options", p.Options()).
		Str("body", p.Summary()).
		Msg("outbound message (log channel)")
	return nil
}
