package wasm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/woxQAQ/tokenbridge/internal/wasm/wasmtest"
)

func TestConsoleSinkSplitsLines(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewConsoleSink(zap.New(core), 1, zapcore.InfoLevel)

	n, err := sink.Write([]byte("first line\nsecond "))
	require.NoError(t, err)
	assert.Equal(t, 18, n)
	assert.Equal(t, 1, logs.Len())

	_, err = sink.Write([]byte("half\r\n"))
	require.NoError(t, err)

	_, err = sink.Write([]byte("tail"))
	require.NoError(t, err)
	sink.Flush()
	sink.Flush()

	entries := logs.AllUntimed()
	require.Len(t, entries, 3)
	assert.Equal(t, "first line", entries[0].Message)
	assert.Equal(t, "second half", entries[1].Message)
	assert.Equal(t, "tail", entries[2].Message)
	for _, e := range entries {
		assert.Equal(t, zapcore.InfoLevel, e.Level)
		assert.Equal(t, int64(1), e.ContextMap()["fd"])
	}
}

func TestConsoleSinkReplacesIllFormed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewConsoleSink(zap.New(core), 2, zapcore.ErrorLevel)

	_, err := sink.Write([]byte("bad \xff byte\n"))
	require.NoError(t, err)

	entries := logs.AllUntimed()
	require.Len(t, entries, 1)
	assert.Equal(t, "bad � byte", entries[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
}

func TestConsoleSinkMultibyteAcrossWrites(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewConsoleSink(zap.New(core), 1, zapcore.InfoLevel)

	word := []byte("日本\n")
	_, _ = sink.Write(word[:2])
	_, _ = sink.Write(word[2:])

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "日本", logs.AllUntimed()[0].Message)
}

func TestGuestConsoleForwarded(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	caps := BuildCapabilities(logger, CapabilityConfig{Console: true})
	h := newHarnessWithLogger(t, logger, nil, caps)
	inst := h.mustInstantiate(t, wasmtest.GuestOptions{})

	out, err := inst.CallRaw(context.Background(), "log", []byte("loading tokenizer\npartial"))
	require.NoError(t, err)
	assert.Empty(t, out)

	console := logs.FilterField(zap.String("component", "wasm-console"))
	stdout := console.FilterField(zap.Int("fd", 1)).AllUntimed()
	stderr := console.FilterField(zap.Int("fd", 2)).AllUntimed()

	require.Len(t, stdout, 1)
	assert.Equal(t, "loading tokenizer", stdout[0].Message)
	assert.Equal(t, zapcore.InfoLevel, stdout[0].Level)

	require.Len(t, stderr, 1)
	assert.Equal(t, "loading tokenizer", stderr[0].Message)
	assert.Equal(t, zapcore.ErrorLevel, stderr[0].Level)

	// the partial line is emitted when the instance closes
	require.NoError(t, inst.Close(context.Background()))
	flushed := logs.FilterField(zap.String("component", "wasm-console")).FilterMessage("partial").AllUntimed()
	assert.Len(t, flushed, 2)
}

func TestGuestConsoleDiscarded(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	h := newHarnessWithLogger(t, logger, nil, BuildCapabilities(logger, CapabilityConfig{}))
	inst := h.mustInstantiate(t, wasmtest.GuestOptions{})

	_, err := inst.CallRaw(context.Background(), "log", []byte("hidden\n"))
	require.NoError(t, err)

	assert.Equal(t, 0, logs.FilterField(zap.String("component", "wasm-console")).Len())
}

func TestCapabilitiesModuleConfig(t *testing.T) {
	logger := zap.NewNop()

	_, sinks := BuildCapabilities(logger, CapabilityConfig{}).ModuleConfig("a")
	assert.Empty(t, sinks)

	caps := BuildCapabilities(logger, CapabilityConfig{
		Console: true,
		Env:     map[string]string{"B": "2", "A": "1"},
	})
	_, sinks = caps.ModuleConfig("b")
	assert.Len(t, sinks, 2)
	assert.Equal(t, [][2]string{{"A", "1"}, {"B", "2"}}, caps.env)

	_, other := caps.ModuleConfig("c")
	assert.NotSame(t, sinks[0], other[0], "each instance gets its own sinks")
}
