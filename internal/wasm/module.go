package wasm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ModuleLoader handles the first load phase: turning guest bytes into a
// compiled module. Instantiation is a separate step (InstanceManager).
type ModuleLoader struct {
	runtime *Runtime
	logger  *zap.Logger
}

// NewModuleLoader creates a new module loader.
func NewModuleLoader(runtime *Runtime, logger *zap.Logger) *ModuleLoader {
	return &ModuleLoader{
		runtime: runtime,
		logger:  logger.With(zap.String("component", "wasm-loader")),
	}
}

// ModuleSource represents a source for Wasm bytecode.
type ModuleSource interface {
	// Bytes returns the Wasm bytecode.
	Bytes() ([]byte, error)

	// Name returns a name/identifier for this module.
	Name() string
}

// FileModuleSource loads Wasm from a file.
type FileModuleSource struct {
	Path string
}

// Bytes reads the Wasm file.
func (f *FileModuleSource) Bytes() ([]byte, error) {
	return os.ReadFile(f.Path)
}

// Name returns the file path as the module name.
func (f *FileModuleSource) Name() string {
	return f.Path
}

// MemoryModuleSource loads Wasm from memory.
type MemoryModuleSource struct {
	ModuleName string
	Data       []byte
}

// Bytes returns the Wasm bytecode.
func (m *MemoryModuleSource) Bytes() ([]byte, error) {
	return m.Data, nil
}

// Name returns the module name.
func (m *MemoryModuleSource) Name() string {
	return m.ModuleName
}

// LoadModule compiles the guest behind source. Results are cached under the
// source name, so a second load of the same name skips compilation; the
// content digest is kept to detect a name being reused for different bytes.
func (l *ModuleLoader) LoadModule(ctx context.Context, source ModuleSource) (*CompiledModule, error) {
	wasmBytes, err := source.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read module %s: %w", source.Name(), err)
	}
	digest := digestOf(wasmBytes)

	if cached, ok := l.runtime.GetCompiledModule(source.Name()); ok {
		if cached.Source == digest {
			l.logger.Debug("Module cache hit",
				zap.String("module", source.Name()),
			)
			return cached, nil
		}
		l.logger.Info("Module bytes changed, recompiling",
			zap.String("module", source.Name()),
		)
	}

	l.logger.Info("Compiling Wasm module",
		zap.String("module", source.Name()),
		zap.Int("size_bytes", len(wasmBytes)),
	)

	startTime := time.Now()

	// CompileModule decodes and validates the binary; this is the only
	// step besides instantiation that may take noticeable time.
	compiled, err := l.runtime.runtime.CompileModule(l.runtime.compileContext(ctx), wasmBytes)
	if err != nil {
		if isMemoryLimitError(err) {
			return nil, &InstantiationError{
				ModuleName: source.Name(),
				Err:        err,
			}
		}
		return nil, &CompilationError{
			ModuleName: source.Name(),
			Err:        err,
		}
	}

	compiledModule := &CompiledModule{
		Module:     compiled,
		Name:       source.Name(),
		Source:     digest,
		SizeBytes:  int64(len(wasmBytes)),
		CompiledAt: time.Now().Unix(),
	}

	if stale := l.runtime.swapCompiledModule(compiledModule); stale != nil {
		// Live instances keep running; only new instantiations are affected.
		if err := stale.Module.Close(ctx); err != nil {
			l.logger.Warn("Failed to release replaced module",
				zap.String("module", source.Name()),
				zap.String("sha256", stale.Source),
				zap.Error(err),
			)
		}
	}

	l.logger.Info("Module compiled successfully",
		zap.String("module", source.Name()),
		zap.String("sha256", digest),
		zap.Duration("duration", time.Since(startTime)),
	)

	return compiledModule, nil
}

// LoadModuleFromFile is a convenience function for loading from a file path.
func (l *ModuleLoader) LoadModuleFromFile(ctx context.Context, path string) (*CompiledModule, error) {
	return l.LoadModule(ctx, &FileModuleSource{Path: path})
}

// LoadModuleFromMemory loads from a byte slice.
func (l *ModuleLoader) LoadModuleFromMemory(ctx context.Context, name string, data []byte) (*CompiledModule, error) {
	return l.LoadModule(ctx, &MemoryModuleSource{ModuleName: name, Data: data})
}

// isMemoryLimitError reports whether wazero rejected the module because its
// declared memory exceeds the runtime's page limit. wazero checks the limit
// while compiling; the module itself is well-formed.
func isMemoryLimitError(err error) bool {
	return strings.Contains(err.Error(), "over limit of")
}

func digestOf(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
