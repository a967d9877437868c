package tokenizer

import (
	"time"

	"github.com/woxQAQ/tokenbridge/pkg/protocol"
)

// Tokenizer is a tokenizer that has been loaded into the guest.
type Tokenizer struct {
	// Manifest the tokenizer was loaded from
	Manifest *Manifest

	// LoadedAt is the timestamp when the guest accepted the tokenizer
	LoadedAt time.Time
}

// Name returns the tokenizer name.
func (t *Tokenizer) Name() string {
	return t.Manifest.Name
}

// Kind returns the tokenizer family.
func (t *Tokenizer) Kind() protocol.TokenizerKind {
	return t.Manifest.Kind
}

// HasSpecialToken reports whether the manifest declares token.
func (t *Tokenizer) HasSpecialToken(token string) bool {
	_, ok := t.Manifest.SpecialTokens[token]
	return ok
}
