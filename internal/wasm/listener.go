package wasm

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/zap"
)

// callListenerFactory logs guest function entry and exit at debug level.
// Only exported functions are traced; internal guest calls are too noisy.
type callListenerFactory struct {
	logger *zap.Logger
}

func newCallListenerFactory(logger *zap.Logger) *callListenerFactory {
	return &callListenerFactory{
		logger: logger.With(zap.String("component", "wasm-trace")),
	}
}

// NewFunctionListener implements experimental.FunctionListenerFactory.
func (f *callListenerFactory) NewFunctionListener(def api.FunctionDefinition) experimental.FunctionListener {
	if len(def.ExportNames()) == 0 {
		return nil
	}
	return &callListener{logger: f.logger}
}

type callListener struct {
	logger *zap.Logger
}

func (l *callListener) Before(_ context.Context, mod api.Module, def api.FunctionDefinition, params []uint64, _ experimental.StackIterator) {
	l.logger.Debug("Guest call",
		zap.String("module", mod.Name()),
		zap.String("function", def.DebugName()),
		zap.Uint64s("params", params),
	)
}

func (l *callListener) After(_ context.Context, mod api.Module, def api.FunctionDefinition, results []uint64) {
	l.logger.Debug("Guest return",
		zap.String("module", mod.Name()),
		zap.String("function", def.DebugName()),
		zap.Uint64s("results", results),
	)
}

func (l *callListener) Abort(_ context.Context, mod api.Module, def api.FunctionDefinition, err error) {
	l.logger.Debug("Guest call aborted",
		zap.String("module", mod.Name()),
		zap.String("function", def.DebugName()),
		zap.Error(err),
	)
}
