// Package service assembles the bridge: it compiles the tokenizer guest,
// instantiates it and loads every discovered tokenizer into it.
package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/woxQAQ/tokenbridge/internal/codec"
	"github.com/woxQAQ/tokenbridge/internal/config"
	"github.com/woxQAQ/tokenbridge/internal/tokenizer"
	"github.com/woxQAQ/tokenbridge/internal/wasm"
)

type Service struct {
	cfg         *config.Config
	logger      *zap.Logger
	wasmRuntime *wasm.Runtime
	instance    *wasm.Instance
	tokenizers  *tokenizer.Manager
}

// New builds a ready service. On error everything created so far is closed.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	c, err := codec.ByName(cfg.Bridge.Encoding)
	if err != nil {
		return nil, err
	}
	layout, err := wasm.ParseResultLayout(cfg.Bridge.ResultLayout)
	if err != nil {
		return nil, err
	}

	// Initialize Wasm runtime.
	wasmConfig := &wasm.RuntimeConfig{
		MemoryPages:  cfg.Wasm.MemoryPages,
		DebugEnabled: cfg.Wasm.Debug,
		CacheDir:     cfg.Wasm.CacheDir,
		MaxInstances: cfg.Wasm.MaxInstances,
	}

	wasmRuntime, err := wasm.NewRuntime(ctx, logger, wasmConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	s := &Service{
		cfg:         cfg,
		logger:      logger,
		wasmRuntime: wasmRuntime,
	}
	if err := s.start(ctx, c, layout); err != nil {
		_ = wasmRuntime.Close(ctx)
		return nil, err
	}

	logger.Info("Tokenizer bridge initialized",
		zap.String("module", cfg.Wasm.ModulePath),
		zap.String("encoding", c.Name()),
		zap.String("result_layout", string(layout)),
		zap.Strings("tokenizers", s.tokenizers.Loaded()),
	)

	return s, nil
}

func (s *Service) start(ctx context.Context, c codec.Codec, layout wasm.ResultLayout) error {
	loader := wasm.NewModuleLoader(s.wasmRuntime, s.logger)
	compiled, err := loader.LoadModuleFromFile(ctx, s.cfg.Wasm.ModulePath)
	if err != nil {
		return err
	}

	caps := wasm.BuildCapabilities(s.logger, wasm.CapabilityConfig{Console: s.cfg.Bridge.Console})
	manager := wasm.NewInstanceManager(s.wasmRuntime, caps, s.logger,
		wasm.WithCodec(c),
		wasm.WithResultLayout(layout),
	)

	s.instance, err = manager.Instantiate(ctx, &wasm.InstanceConfig{ModuleName: compiled.Name})
	if err != nil {
		return err
	}

	s.tokenizers = tokenizer.NewManager(s.instance, c, s.cfg.Exports, s.logger)
	if err := s.tokenizers.CheckExports(); err != nil {
		return err
	}

	return s.tokenizers.LoadAll(ctx, s.cfg.ManifestPaths)
}

// Tokenizers returns the tokenizer manager bound to the guest.
func (s *Service) Tokenizers() *tokenizer.Manager {
	return s.tokenizers
}

// Instance returns the guest instance.
func (s *Service) Instance() *wasm.Instance {
	return s.instance
}

// Close gracefully shuts down the service.
func (s *Service) Close(ctx context.Context) error {
	s.logger.Info("Shutting down tokenizer bridge")

	// Closing the runtime closes the instance with it.
	if err := s.wasmRuntime.Close(ctx); err != nil {
		s.logger.Error("Failed to shutdown Wasm runtime", zap.Error(err))
		return err
	}

	s.logger.Info("Tokenizer bridge shutdown complete")
	return nil
}
