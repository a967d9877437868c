package wasm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap/zaptest"

	"github.com/woxQAQ/tokenbridge/internal/wasm/wasmtest"
)

func TestLoadModuleFromMemory(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	// Minimal valid Wasm module with no sections.
	wasmBytes := []byte{
		0x00, 0x61, 0x73, 0x6d, // Magic number: \0asm
		0x01, 0x00, 0x00, 0x00, // Version: 1
	}

	module, err := loader.LoadModuleFromMemory(ctx, "test-module", wasmBytes)
	if err != nil {
		t.Fatalf("Failed to load module: %v", err)
	}

	if module == nil {
		t.Fatal("Module is nil")
	}

	if module.Name != "test-module" {
		t.Errorf("Module name = %s, want 'test-module'", module.Name)
	}

	// Test caching - load again should hit cache.
	module2, err := loader.LoadModuleFromMemory(ctx, "test-module", wasmBytes)
	if err != nil {
		t.Fatalf("Failed to load module from cache: %v", err)
	}

	if module2 != module {
		t.Error("Cache should return the same module instance")
	}
}

func TestLoadModuleRecompilesChangedBytes(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	first, err := loader.LoadModuleFromMemory(ctx, "guest", wasmtest.Guest(wasmtest.GuestOptions{}))
	if err != nil {
		t.Fatalf("Failed to load module: %v", err)
	}

	second, err := loader.LoadModuleFromMemory(ctx, "guest", wasmtest.Guest(wasmtest.GuestOptions{GrowOnAlloc: true}))
	if err != nil {
		t.Fatalf("Failed to load changed module: %v", err)
	}

	if first == second || first.Source == second.Source {
		t.Error("Changed bytes under the same name should be recompiled")
	}

	cached, _ := runtime.GetCompiledModule("guest")
	if cached != second {
		t.Error("Cache should hold the latest compilation")
	}

	// The replaced compilation is released and can no longer be instantiated.
	if _, err := runtime.runtime.InstantiateModule(ctx, first.Module, wazero.NewModuleConfig().WithName("replaced")); err == nil {
		t.Error("Replaced module should have been closed")
	}
	if _, err := runtime.runtime.InstantiateModule(ctx, second.Module, wazero.NewModuleConfig().WithName("current")); err != nil {
		t.Errorf("Current module should still instantiate: %v", err)
	}
}

func TestLoadModuleCompilationError(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	_, err = loader.LoadModuleFromMemory(ctx, "garbage", []byte("definitely not wasm"))
	var compileErr *CompilationError
	if !errors.As(err, &compileErr) {
		t.Fatalf("Expected CompilationError, got %v", err)
	}

	if compileErr.ModuleName != "garbage" {
		t.Errorf("Module name = %s, want 'garbage'", compileErr.ModuleName)
	}

	if _, ok := runtime.GetCompiledModule("garbage"); ok {
		t.Error("Failed compilation should not be cached")
	}
}

func TestModuleLoaderFileSource(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	wasmFile := filepath.Join(t.TempDir(), "guest.wasm")
	if err := os.WriteFile(wasmFile, wasmtest.Guest(wasmtest.GuestOptions{}), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	module, err := loader.LoadModuleFromFile(ctx, wasmFile)
	if err != nil {
		t.Fatalf("Failed to load module from file: %v", err)
	}

	if module.Name != wasmFile {
		t.Errorf("Module name = %s, want %s", module.Name, wasmFile)
	}

	if _, err := loader.LoadModuleFromFile(ctx, filepath.Join(t.TempDir(), "missing.wasm")); err == nil {
		t.Error("Loading a missing file should fail")
	}
}

func TestModuleLoaderPersistentCache(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()
	cacheDir := t.TempDir()

	for i := 0; i < 2; i++ {
		runtime, err := NewRuntime(ctx, logger, &RuntimeConfig{
			MemoryPages:  16,
			CacheDir:     cacheDir,
			MaxInstances: 1,
		})
		if err != nil {
			t.Fatalf("Failed to create runtime: %v", err)
		}

		loader := NewModuleLoader(runtime, logger)
		if _, err := loader.LoadModuleFromMemory(ctx, "guest", wasmtest.Guest(wasmtest.GuestOptions{})); err != nil {
			t.Fatalf("Run %d: failed to load module: %v", i, err)
		}
		runtime.Close(ctx)
	}
}
