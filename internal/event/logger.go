package event

import (
	"context"
	"log/slog"
)

// Logger is a catch-all subscriber that writes every event to slog at debug level.
type Logger struct {
	l *slog.Logger
}

func NewLogger(l *slog.Logger) *Logger {
	if l == nil {
		l = slog.Default()
	}
	return &Logger{l: l}
}

func (lg *Logger) Subscriptions() []Subscription {
	return []Subscription{{Kind: KindAny, Handle: lg.log}}
}

func (lg *Logger) log(e Event) error {
	if !lg.l.Enabled(context.Background(), slog.LevelDebug) {
		return nil
	}
	attrs := []any{"kind", string(e.Kind()), "time", e.Time().UnixMilli()}
	switch ev := e.(type) {
	case Closure:
		closedAt, d := ev.Closure()
		attrs = append(attrs, "closed_at", closedAt.UnixMilli(), "duration", d)
	case NormalEyeBlinkEvent:
		attrs = append(attrs, "closed_at", ev.ClosedAt.UnixMilli(), "duration", ev.Duration)
	case Drowsiness:
		attrs = append(attrs, "perclos", ev.Value())
	}
	lg.l.Debug("event", attrs...)
	return nil
}
