// Package logger defines the printf style Logger interface used by every
// package in this repository, together with a zap backed implementation.
//
// Libraries accept a Logger through their Options and default to Go, so that
// programs get useful output without any setup, while tests can pass Nil or a
// logger writing to a buffer.
package logger

import (
	"io"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the minimal logging interface accepted by libraries.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	SetOutput(writer io.Writer)
}

// Go is the default logger, writing human readable lines to stderr at info level.
var Go Logger = New(os.Stderr, zapcore.InfoLevel)

// Nil discards everything.
var Nil Logger = nilLogger{}

// ZapLogger adapts a zap.SugaredLogger to the Logger interface.
type ZapLogger struct {
	level zap.AtomicLevel
	sugar atomic.Pointer[zap.SugaredLogger]
}

// New returns a Logger writing console formatted lines to out.
func New(out io.Writer, level zapcore.Level) *ZapLogger {
	l := &ZapLogger{level: zap.NewAtomicLevelAt(level)}
	l.SetOutput(out)
	return l
}

// FromZap wraps an already configured zap.Logger.
//
// Level filtering stays with the wrapped logger until SetOutput is called,
// at which point the level of the ZapLogger applies (debug by default).
func FromZap(z *zap.Logger) *ZapLogger {
	l := &ZapLogger{level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}
	l.sugar.Store(z.Sugar())
	return l
}

// ParseLevel converts one of debug, info, warn, error into a zap level.
func ParseLevel(text string) (zapcore.Level, error) {
	var level zapcore.Level
	err := level.UnmarshalText([]byte(text))
	return level, err
}

func encoder() zapcore.Encoder {
	config := zap.NewDevelopmentEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewConsoleEncoder(config)
}

// SetLevel changes the minimum level emitted.
func (l *ZapLogger) SetLevel(level zapcore.Level) {
	l.level.SetLevel(level)
}

// Sync flushes any buffered output.
func (l *ZapLogger) Sync() error {
	return l.sugar.Load().Sync()
}

func (l *ZapLogger) SetOutput(writer io.Writer) {
	core := zapcore.NewCore(encoder(), zapcore.AddSync(writer), l.level)
	l.sugar.Store(zap.New(core).Sugar())
}

func (l *ZapLogger) Debugf(format string, args ...interface{}) {
	l.sugar.Load().Debugf(format, args...)
}

func (l *ZapLogger) Infof(format string, args ...interface{}) {
	l.sugar.Load().Infof(format, args...)
}

func (l *ZapLogger) Warnf(format string, args ...interface{}) {
	l.sugar.Load().Warnf(format, args...)
}

func (l *ZapLogger) Errorf(format string, args ...interface{}) {
	l.sugar.Load().Errorf(format, args...)
}

type nilLogger struct{}

func (nilLogger) Debugf(format string, args ...interface{}) {}
func (nilLogger) Infof(format string, args ...interface{})  {}
func (nilLogger) Warnf(format string, args ...interface{})  {}
func (nilLogger) Errorf(format string, args ...interface{}) {}
func (nilLogger) SetOutput(writer io.Writer)                {}
