package ddbstore

import (
	"fmt"
	"log/slog"
	"strings"
)

// badgerLogger forwards badger's printf-style logs to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(line(format, args))
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(line(format, args))
}

func (l badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(line(format, args))
}

func (l badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(line(format, args))
}

func line(format string, args []any) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
