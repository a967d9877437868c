package wasm

import (
	"bytes"
	"io"
	"sort"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CapabilityConfig describes the system surface a guest is instantiated against.
type CapabilityConfig struct {
	// Forward guest stdout/stderr to the logger (info/error). When false
	// both descriptors are bound to an empty sink.
	Console bool

	// Fixed argument and environment lists. Both are empty unless a guest
	// build specifically needs them.
	Args []string
	Env  map[string]string
}

// Capabilities is the built, immutable capability environment. The only
// descriptors the guest sees are 0 (an empty, non-growable file), 1 and 2.
// No directories are preopened, so the guest has no filesystem access.
type Capabilities struct {
	logger  *zap.Logger
	console bool
	args    []string
	env     [][2]string
}

// BuildCapabilities constructs the capability environment. It performs no I/O.
func BuildCapabilities(logger *zap.Logger, cfg CapabilityConfig) *Capabilities {
	c := &Capabilities{
		logger:  logger,
		console: cfg.Console,
		args:    append([]string(nil), cfg.Args...),
	}

	keys := make([]string, 0, len(cfg.Env))
	for k := range cfg.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.env = append(c.env, [2]string{k, cfg.Env[k]})
	}

	return c
}

// ModuleConfig returns a wazero module config carrying this environment
// for the module instance called name, plus the console sinks bound to it.
// Each instance gets its own sinks so partial lines never interleave.
// Start functions are disabled: initialization is driven explicitly by the
// instance manager.
func (c *Capabilities) ModuleConfig(name string) (wazero.ModuleConfig, []*ConsoleSink) {
	var (
		stdout io.Writer = io.Discard
		stderr io.Writer = io.Discard
		sinks  []*ConsoleSink
	)
	if c.console {
		logger := c.logger.With(zap.String("instance_id", name))
		out := NewConsoleSink(logger, 1, zapcore.InfoLevel)
		errSink := NewConsoleSink(logger, 2, zapcore.ErrorLevel)
		stdout, stderr = out, errSink
		sinks = []*ConsoleSink{out, errSink}
	}

	mc := wazero.NewModuleConfig().
		WithName(name).
		WithStartFunctions().
		WithStdin(bytes.NewReader(nil)).
		WithStdout(stdout).
		WithStderr(stderr)

	if len(c.args) > 0 {
		mc = mc.WithArgs(c.args...)
	}
	for _, kv := range c.env {
		mc = mc.WithEnv(kv[0], kv[1])
	}
	return mc, sinks
}
