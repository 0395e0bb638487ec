package genflow

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// Logger receives the poller, submitter and pipeline log lines, formatted as
// "component: key=value ...". Components log nothing until one is set with WithLogger.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// FmtLogger prints level-prefixed lines for small programs such as the batch CLI.
// Warnings and errors go to stderr so per-row failures stay visible when stdout is piped.
type FmtLogger struct{}

func NewFmtLogger() *FmtLogger { return &FmtLogger{} }

func (FmtLogger) Debugf(format string, args ...any) { fmt.Printf("[DEBUG] "+format+"\n", args...) }
func (FmtLogger) Infof(format string, args ...any)  { fmt.Printf("[INFO]  "+format+"\n", args...) }
func (FmtLogger) Warnf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[WARN]  "+format+"\n", args...)
}
func (FmtLogger) Errorf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[ERROR] "+format+"\n", args...)
}

// ZapLogger adapts a zap logger to Logger.
type ZapLogger struct{ s *zap.SugaredLogger }

// NewZapLogger wraps l. A nil l yields a no-op zap logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	if l == nil {
		l = zap.NewNop()
	}
	return &ZapLogger{s: l.Sugar()}
}

func (z *ZapLogger) Debugf(format string, args ...any) { z.s.Debugf(format, args...) }
func (z *ZapLogger) Infof(format string, args ...any)  { z.s.Infof(format, args...) }
func (z *ZapLogger) Warnf(format string, args ...any)  { z.s.Warnf(format, args...) }
func (z *ZapLogger) Errorf(format string, args ...any) { z.s.Errorf(format, args...) }

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

func orNoop(l Logger) Logger {
	if l == nil {
		return noopLogger{}
	}
	return l
}
