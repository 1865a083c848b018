package session

import (
	"fmt"
	"log/slog"
)

// Bus carries informational events to whoever is listening (a status
// line, a log pane).
type Bus interface {
	Log(sender any, msg string)
}

// LogBus forwards bus events to a logger.
type LogBus struct {
	Logger *slog.Logger
}

// Log implements Bus.
func (b LogBus) Log(sender any, msg string) {
	l := b.Logger
	if l == nil {
		l = slog.Default()
	}
	l.Info(msg, "sender", senderName(sender))
}

func senderName(sender any) string {
	switch s := sender.(type) {
	case nil:
		return ""
	case interface{ ID() string }:
		return s.ID()
	case fmt.Stringer:
		return s.String()
	}
	return fmt.Sprintf("%T", sender)
}
