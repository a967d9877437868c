package tokenizer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/woxQAQ/tokenbridge/internal/codec"
	"github.com/woxQAQ/tokenbridge/internal/config"
	"github.com/woxQAQ/tokenbridge/pkg/protocol"
)

var testExports = config.ExportsConfig{
	Load:   "load_tokenizer",
	Unload: "unload_tokenizer",
	Encode: "encode",
	Decode: "decode",
}

// byteGuest stands in for the tokenizer guest: every loaded tokenizer
// maps each input byte to one token ID.
type byteGuest struct {
	mu     sync.Mutex
	codec  codec.Codec
	loaded map[string]bool
	calls  []string
	failOn map[string]error
	// load rejections by tokenizer name
	reject map[string]error
}

func newByteGuest() *byteGuest {
	return &byteGuest{
		codec:  codec.MsgPack{},
		loaded: make(map[string]bool),
		failOn: make(map[string]error),
		reject: make(map[string]error),
	}
}

func (g *byteGuest) record(name string) error {
	g.calls = append(g.calls, name)
	return g.failOn[name]
}

func (g *byteGuest) Call(_ context.Context, name string, in any) (any, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.record(name); err != nil {
		return nil, err
	}
	if name != testExports.Load {
		return nil, errors.New("unexpected structured call")
	}

	data, err := g.codec.Marshal(in)
	if err != nil {
		return nil, err
	}
	var input map[string]any
	if err := g.codec.Unmarshal(data, &input); err != nil {
		return nil, err
	}
	tokName := input["name"].(string)
	if err := g.reject[tokName]; err != nil {
		return nil, err
	}
	g.loaded[tokName] = true
	return nil, nil
}

func (g *byteGuest) CallInto(ctx context.Context, name string, in, out any) (bool, error) {
	_, err := g.Call(ctx, name, in)
	return false, err
}

func (g *byteGuest) CallRaw(_ context.Context, name string, input []byte) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.record(name); err != nil {
		return nil, err
	}

	switch name {
	case testExports.Encode:
		var in protocol.EncodeInput
		if err := g.codec.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		if !g.loaded[in.Name] {
			return nil, errors.New("Tokenizer not found")
		}
		ids := make([]uint32, len(in.Input))
		for i := 0; i < len(in.Input); i++ {
			ids[i] = uint32(in.Input[i])
		}
		return protocol.PackTokens(ids), nil

	case testExports.Decode:
		var in protocol.DecodeInput
		if err := g.codec.Unmarshal(input, &in); err != nil {
			return nil, err
		}
		if !g.loaded[in.Name] {
			return nil, errors.New("Tokenizer not found")
		}
		ids, err := protocol.UnpackTokens(in.Input)
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(ids))
		for i, id := range ids {
			out[i] = byte(id)
		}
		return out, nil
	}
	return nil, errors.New("unexpected raw call")
}

func (g *byteGuest) CallText(_ context.Context, name string, text string) ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.record(name); err != nil {
		return nil, err
	}
	delete(g.loaded, text)
	return nil, nil
}

func (g *byteGuest) HasFunction(name string) bool {
	for _, fn := range g.Functions() {
		if fn == name {
			return true
		}
	}
	return false
}

func (g *byteGuest) Functions() []string {
	fns := []string{testExports.Load, testExports.Unload, testExports.Encode, testExports.Decode}
	sort.Strings(fns)
	return fns
}

func (g *byteGuest) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

// writeTokenizer creates dir/name with a manifest and its data files.
func writeTokenizer(t *testing.T, dir, name, manifest string, files map[string]string) string {
	t.Helper()

	tokDir := filepath.Join(dir, name)
	if err := os.MkdirAll(tokDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(tokDir, ManifestFile), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	for file, content := range files {
		if err := os.WriteFile(filepath.Join(tokDir, file), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return tokDir
}

const tiktokenManifest = `
name: cl100k_base
kind: tiktoken
description: GPT-4 encoding
files:
  bpe: cl100k_base.tiktoken
regex: "'s|'t| ?\\p{L}+| ?\\p{N}+"
special_tokens:
  "<|endoftext|>": 100257
  "<|fim_prefix|>": 100258
`

const huggingfaceManifest = `
name: bert
kind: huggingface
files:
  model: tokenizer.json
`

func tiktokenFiles() map[string]string {
	return map[string]string{"cl100k_base.tiktoken": "IQ== 0\nIg== 1\n"}
}

func huggingfaceFiles() map[string]string {
	return map[string]string{"tokenizer.json": `{"version":"1.0"}`}
}
