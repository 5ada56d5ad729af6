package blockchain

import (
	"fmt"
	"log/slog"
)

// badgerLogger adapts this package's slog logger to Badger's printf-style
// Logger interface, the same shape the teacher's own BadgerLogger wraps
// around its logging singleton.
type badgerLogger struct {
	*slog.Logger
}

func (b badgerLogger) Errorf(msg string, args ...any) {
	b.Logger.Error(fmt.Sprintf(msg, args...))
}

func (b badgerLogger) Warningf(msg string, args ...any) {
	b.Logger.Warn(fmt.Sprintf(msg, args...))
}

func (b badgerLogger) Infof(msg string, args ...any) {
	b.Logger.Info(fmt.Sprintf(msg, args...))
}

func (b badgerLogger) Debugf(msg string, args ...any) {
	b.Logger.Debug(fmt.Sprintf(msg, args...))
}
