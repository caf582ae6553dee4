package zap_engine

import (
	"context"
	"errors"
	"testing"
	"time"

	loggerwrapper "github.com/PavelAgarkov/lease-lock/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWriteErrorLogFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	restore := ReplaceLogger(zap.New(core))
	defer restore()

	start := time.Now()
	WriteErrorLog(context.Background(), &loggerwrapper.LogEntry{
		Msg:       "lease lost",
		Component: "dlock",
		Method:    "Release",
		Key:       "product_001",
		Error:     errors.New("boom"),
		Start:     &start,
	})

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "lease lost", entry.Message)
	assert.Equal(t, zapcore.ErrorLevel, entry.Level)

	ctx := entry.ContextMap()
	assert.Equal(t, "dlock", ctx["component"])
	assert.Equal(t, "Release", ctx["method"])
	assert.Equal(t, "product_001", ctx["key"])
	assert.Equal(t, "boom", ctx["error"])
	assert.Contains(t, ctx, "latency")
	assert.NotContains(t, ctx, "args")
}

func TestSetLevel(t *testing.T) {
	prev := GetLevel()
	defer func() { _ = SetLevel(prev) }()

	require.NoError(t, SetLevel("warn"))
	assert.Equal(t, "warn", GetLevel())
	assert.Error(t, SetLevel("nope"))
}
