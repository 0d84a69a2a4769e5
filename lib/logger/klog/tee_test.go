package klog

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ccontavalli/nativestore/lib/logger"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"
)

func TestTeeForwardsOnce(t *testing.T) {
	var a, b bytes.Buffer
	first := logger.New(&a, zapcore.DebugLevel)
	second := logger.New(&b, zapcore.WarnLevel)

	tee := NewTee(first, nil, second, first)
	tee.Infof("info %d", 1)
	tee.Warnf("warn %d", 2)

	assert.Equal(t, 1, strings.Count(a.String(), "info 1"))
	assert.Equal(t, 1, strings.Count(a.String(), "warn 2"))
	assert.NotContains(t, b.String(), "info 1")
	assert.Contains(t, b.String(), "warn 2")
}
