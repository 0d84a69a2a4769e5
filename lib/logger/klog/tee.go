package klog

import (
	"io"

	"github.com/ccontavalli/nativestore/lib/logger"
)

// Tee forwards log messages to every configured logger.
//
// Nil entries are skipped, and a logger listed twice only receives each
// message once.
type Tee struct {
	Loggers []logger.Logger
}

// NewTee returns a Logger that forwards to all the loggers passed.
func NewTee(loggers ...logger.Logger) logger.Logger {
	return &Tee{Loggers: loggers}
}

func (t *Tee) Debugf(format string, args ...interface{}) {
	t.forward(func(log logger.Logger) { log.Debugf(format, args...) })
}

func (t *Tee) Infof(format string, args ...interface{}) {
	t.forward(func(log logger.Logger) { log.Infof(format, args...) })
}

func (t *Tee) Warnf(format string, args ...interface{}) {
	t.forward(func(log logger.Logger) { log.Warnf(format, args...) })
}

func (t *Tee) Errorf(format string, args ...interface{}) {
	t.forward(func(log logger.Logger) { log.Errorf(format, args...) })
}

// SetOutput redirects every logger to the same writer.
func (t *Tee) SetOutput(writer io.Writer) {
	t.forward(func(log logger.Logger) { log.SetOutput(writer) })
}

func (t *Tee) forward(fn func(logger.Logger)) {
	seen := make(map[logger.Logger]struct{}, len(t.Loggers))
	for _, log := range t.Loggers {
		if log == nil {
			continue
		}
		if _, ok := seen[log]; ok {
			continue
		}
		seen[log] = struct{}{}
		fn(log)
	}
}
