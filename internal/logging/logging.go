// Package logging builds the zap logger every task logs through.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Printer is a line-oriented text output such as an on-board display buffer.
type Printer interface {
	Print(s string) error
}

// ConsoleSink adapts a Printer to a zapcore.WriteSyncer.
type ConsoleSink struct {
	P Printer
}

func (s ConsoleSink) Write(b []byte) (int, error) {
	if err := s.P.Print(string(b)); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (ConsoleSink) Sync() error { return nil }

// New returns a console-encoded logger at level writing to every sink, or to stderr when none
// is given. Sinks are locked; every task logs concurrently.
func New(level zapcore.Level, sinks ...zapcore.WriteSyncer) *zap.Logger {
	if len(sinks) == 0 {
		sinks = []zapcore.WriteSyncer{os.Stderr}
	}
	locked := make([]zapcore.WriteSyncer, len(sinks))
	for i, s := range sinks {
		locked[i] = zapcore.Lock(s)
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(enc),
		zapcore.NewMultiWriteSyncer(locked...),
		zap.NewAtomicLevelAt(level),
	)
	return zap.New(core)
}

// Compact renders only the message and fields, for narrow displays.
func Compact(level zapcore.Level, sink zapcore.WriteSyncer) *zap.Logger {
	enc := zapcore.EncoderConfig{
		MessageKey:       "msg",
		LevelKey:         "level",
		EncodeLevel:      compactLevel,
		LineEnding:       zapcore.DefaultLineEnding,
		ConsoleSeparator: " ",
	}
	return zap.New(zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(sink), zap.NewAtomicLevelAt(level)))
}

func compactLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(strings.ToUpper(l.String()[:1]))
}
