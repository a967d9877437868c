package tokenizer

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/woxQAQ/tokenbridge/pkg/protocol"
)

// Registry tracks the tokenizers currently loaded in the guest.
type Registry struct {
	sync.RWMutex
	tokenizers map[string]*Tokenizer                  // name -> tokenizer
	byKind     map[protocol.TokenizerKind][]*Tokenizer // kind -> tokenizers
	logger     *zap.Logger
}

// NewRegistry creates a new tokenizer registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		tokenizers: make(map[string]*Tokenizer),
		byKind:     make(map[protocol.TokenizerKind][]*Tokenizer),
		logger:     logger.With(zap.String("component", "tokenizer-registry")),
	}
}

// Register adds a tokenizer to the registry.
func (r *Registry) Register(t *Tokenizer) error {
	r.Lock()
	defer r.Unlock()

	name := t.Name()

	if _, exists := r.tokenizers[name]; exists {
		return &AlreadyLoadedError{TokenizerName: name}
	}

	r.tokenizers[name] = t
	r.byKind[t.Kind()] = append(r.byKind[t.Kind()], t)

	r.logger.Info("Tokenizer registered",
		zap.String("name", name),
		zap.String("kind", string(t.Kind())),
	)

	return nil
}

// Get retrieves a tokenizer by name.
func (r *Registry) Get(name string) (*Tokenizer, bool) {
	r.RLock()
	defer r.RUnlock()

	t, ok := r.tokenizers[name]
	return t, ok
}

// LookupByKind finds the loaded tokenizers of one family.
func (r *Registry) LookupByKind(kind protocol.TokenizerKind) []*Tokenizer {
	r.RLock()
	defer r.RUnlock()

	ts := r.byKind[kind]
	result := make([]*Tokenizer, len(ts))
	copy(result, ts)
	return result
}

// Names returns the names of all registered tokenizers, sorted.
func (r *Registry) Names() []string {
	r.RLock()
	defer r.RUnlock()

	names := make([]string, 0, len(r.tokenizers))
	for name := range r.tokenizers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister removes a tokenizer from the registry.
func (r *Registry) Unregister(name string) {
	r.Lock()
	defer r.Unlock()

	t, ok := r.tokenizers[name]
	if !ok {
		return
	}

	kind := t.Kind()
	ts := r.byKind[kind]
	for i, other := range ts {
		if other.Name() == name {
			r.byKind[kind] = append(ts[:i:i], ts[i+1:]...)
			break
		}
	}

	delete(r.tokenizers, name)

	r.logger.Info("Tokenizer unregistered", zap.String("name", name))
}

// Count returns the number of registered tokenizers.
func (r *Registry) Count() int {
	r.RLock()
	defer r.RUnlock()

	return len(r.tokenizers)
}
