package protocol

import (
	"encoding/binary"
	"fmt"
)

// Payload types exchanged with the tokenizer guest.
// Struct fields carry msgpack tags and json tags; the CBOR codec reads the json tags.

// TokenizerKind identifies the tokenizer family a guest should build.
type TokenizerKind string

const (
	TokenizerKindTiktoken    TokenizerKind = "tiktoken"
	TokenizerKindHuggingface TokenizerKind = "huggingface"
)

// Valid reports whether k is a known kind.
func (k TokenizerKind) Valid() bool {
	return k == TokenizerKindTiktoken || k == TokenizerKindHuggingface
}

// LoadTokenizerInput is the input of the load function. Data is either
// *TiktokenData or *HuggingfaceData; the guest tells them apart by their fields.
type LoadTokenizerInput struct {
	Name string `msgpack:"name" json:"name"`
	Data any    `msgpack:"data" json:"data"`
}

// TiktokenData carries a BPE rank file, the special tokens and the split regex.
type TiktokenData struct {
	BPE        []byte         `msgpack:"bpe" json:"bpe"`
	SpecialBPE []SpecialToken `msgpack:"special_bpe" json:"special_bpe"`
	Regex      string         `msgpack:"regex" json:"regex"`
}

// HuggingfaceData carries a serialized tokenizer.json model.
type HuggingfaceData struct {
	Model []byte `msgpack:"model" json:"model"`
}

// SpecialToken is a (token, rank) pair. It is encoded as a two-element array.
type SpecialToken struct {
	_msgpack struct{} `msgpack:",as_array"`
	_        struct{} `cbor:",toarray"`

	Token string `msgpack:"token" json:"token"`
	Rank  uint32 `msgpack:"rank" json:"rank"`
}

// EncodeInput is the input of the encode function. The output is the
// packed token IDs.
type EncodeInput struct {
	Name          string `msgpack:"name" json:"name"`
	Input         string `msgpack:"input" json:"input"`
	SpecialTokens *bool  `msgpack:"special_tokens" json:"special_tokens"`
}

// DecodeInput is the input of the decode function. Input holds packed
// token IDs; the output is UTF-8 text.
type DecodeInput struct {
	Name          string `msgpack:"name" json:"name"`
	Input         []byte `msgpack:"input" json:"input"`
	SpecialTokens *bool  `msgpack:"special_tokens" json:"special_tokens"`
}

// PackTokens encodes token IDs as consecutive little-endian uint32 values.
func PackTokens(ids []uint32) []byte {
	out := make([]byte, 4*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint32(out[4*i:], id)
	}
	return out
}

// UnpackTokens is the inverse of PackTokens.
func UnpackTokens(b []byte) ([]uint32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("packed token data has length %d, not a multiple of 4", len(b))
	}
	ids := make([]uint32, len(b)/4)
	for i := range ids {
		ids[i] = binary.LittleEndian.Uint32(b[4*i:])
	}
	return ids, nil
}
