package interp

import (
	"context"

	"github.com/goliatone/go-logger/glog"
)

// glogLogger adapts a go-logger glog.Logger to Logger.
type glogLogger struct {
	logger glog.Logger
}

// NewGlogLogger wraps a go-logger instance. A nil logger yields the fmt
// fallback.
func NewGlogLogger(logger glog.Logger) Logger {
	if logger == nil {
		return NewFmtLogger(nil)
	}
	return glogLogger{logger: logger}
}

func (l glogLogger) Trace(msg string, args ...any) { l.logger.Trace(msg, args...) }
func (l glogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l glogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l glogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l glogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l glogLogger) Fatal(msg string, args ...any) { l.logger.Fatal(msg, args...) }

func (l glogLogger) WithContext(ctx context.Context) Logger {
	return glogLogger{logger: l.logger.WithContext(ctx)}
}

func (l glogLogger) WithFields(fields map[string]any) Logger {
	if fl, ok := l.logger.(glog.FieldsLogger); ok {
		return glogLogger{logger: fl.WithFields(fields)}
	}
	return l
}
