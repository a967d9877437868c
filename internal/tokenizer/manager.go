package tokenizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	apiwasm "github.com/woxQAQ/tokenbridge/api/wasm"
	"github.com/woxQAQ/tokenbridge/internal/codec"
	"github.com/woxQAQ/tokenbridge/internal/config"
	"github.com/woxQAQ/tokenbridge/pkg/protocol"
)

// Manager drives the tokenizer guest through a Caller. It keeps a registry
// of the tokenizers the guest holds so that unknown names fail before any
// guest call.
type Manager struct {
	caller   apiwasm.Caller
	codec    codec.Codec
	exports  config.ExportsConfig
	loader   *Loader
	registry *Registry
	logger   *zap.Logger

	// Load and Unload hold the write lock so the registry and the guest
	// agree on which names exist.
	mu sync.RWMutex
}

// NewManager creates a new tokenizer manager. c must be the encoding the
// guest was built with.
func NewManager(caller apiwasm.Caller, c codec.Codec, exports config.ExportsConfig, logger *zap.Logger) *Manager {
	return &Manager{
		caller:   caller,
		codec:    c,
		exports:  exports,
		loader:   NewLoader(logger),
		registry: NewRegistry(logger),
		logger:   logger.With(zap.String("component", "tokenizer-manager")),
	}
}

// CheckExports verifies the guest exports every configured function.
func (m *Manager) CheckExports() error {
	for _, name := range []string{m.exports.Load, m.exports.Unload, m.exports.Encode, m.exports.Decode} {
		if !m.caller.HasFunction(name) {
			return fmt.Errorf("guest does not export '%s' (has: %v)", name, m.caller.Functions())
		}
	}
	return nil
}

// LoadAll discovers manifests under paths and loads each into the guest.
// Finding no manifests is not an error. A tokenizer that fails to load is
// logged and skipped; the others are still loaded.
func (m *Manager) LoadAll(ctx context.Context, paths []string) error {
	m.logger.Info("Loading tokenizers", zap.Strings("paths", paths))

	manifests, err := m.loader.Discover(paths)
	if err != nil {
		var none *NoManifestsFoundError
		if errors.As(err, &none) {
			m.logger.Warn("No tokenizers found in configured paths", zap.Strings("paths", paths))
			return nil
		}
		return err
	}

	for _, manifest := range manifests {
		if err := m.Load(ctx, manifest); err != nil {
			m.logger.Error("Failed to load tokenizer",
				zap.String("name", manifest.Name),
				zap.Error(err),
			)
			continue
		}
	}

	m.logger.Info("Tokenizers loaded",
		zap.Int("count", m.registry.Count()),
		zap.Int("discovered", len(manifests)),
	)

	return nil
}

// Load hands the manifest's tokenizer to the guest.
func (m *Manager) Load(ctx context.Context, manifest *Manifest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registry.Get(manifest.Name); ok {
		return &AlreadyLoadedError{TokenizerName: manifest.Name}
	}

	input, err := manifest.LoadInput()
	if err != nil {
		return &LoadError{TokenizerName: manifest.Name, Err: err}
	}

	start := time.Now()
	if _, err := m.caller.Call(ctx, m.exports.Load, input); err != nil {
		return &LoadError{TokenizerName: manifest.Name, Err: err}
	}

	m.logger.Info("Tokenizer loaded into guest",
		zap.String("name", manifest.Name),
		zap.Duration("duration", time.Since(start)),
	)

	return m.registry.Register(&Tokenizer{Manifest: manifest, LoadedAt: time.Now()})
}

// Unload removes a tokenizer from the guest.
func (m *Manager) Unload(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.registry.Get(name); !ok {
		return &NotLoadedError{TokenizerName: name}
	}

	if _, err := m.caller.CallText(ctx, m.exports.Unload, name); err != nil {
		return err
	}

	m.registry.Unregister(name)
	return nil
}

// Encode tokenizes text with the named tokenizer. specialTokens is passed
// through to the guest; nil leaves the choice to the tokenizer.
func (m *Manager) Encode(ctx context.Context, name, text string, specialTokens *bool) ([]uint32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.registry.Get(name); !ok {
		return nil, &NotLoadedError{TokenizerName: name}
	}

	out, err := m.callPacked(ctx, m.exports.Encode, &protocol.EncodeInput{
		Name:          name,
		Input:         text,
		SpecialTokens: specialTokens,
	})
	if err != nil {
		return nil, err
	}

	ids, err := protocol.UnpackTokens(out)
	if err != nil {
		return nil, fmt.Errorf("invalid output of '%s': %w", m.exports.Encode, err)
	}
	return ids, nil
}

// Decode turns token IDs back into text with the named tokenizer.
func (m *Manager) Decode(ctx context.Context, name string, ids []uint32, specialTokens *bool) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.registry.Get(name); !ok {
		return "", &NotLoadedError{TokenizerName: name}
	}

	out, err := m.callPacked(ctx, m.exports.Decode, &protocol.DecodeInput{
		Name:          name,
		Input:         protocol.PackTokens(ids),
		SpecialTokens: specialTokens,
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// callPacked encodes in and returns the guest's raw output. Encode and
// decode answer with bytes rather than a structured value.
func (m *Manager) callPacked(ctx context.Context, fn string, in any) ([]byte, error) {
	data, err := m.codec.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("failed to encode input for '%s': %w", fn, err)
	}
	return m.caller.CallRaw(ctx, fn, data)
}

// Registry returns the tokenizer registry (for testing/inspection).
func (m *Manager) Registry() *Registry {
	return m.registry
}

// Loaded returns the names of the loaded tokenizers.
func (m *Manager) Loaded() []string {
	return m.registry.Names()
}
