// Package codec provides the structured encodings shared with the guest.
//
// The bridge itself is agnostic to the encoding; host and guest only have
// to agree. MessagePack is the default because the tokenizer guest decodes
// its inputs with it. CBOR is available for guest builds that use it.
//
// Both codecs support maps with string keys, arrays, integers, floats,
// UTF-8 strings and byte strings, and nesting of those. Struct types used
// with both codecs carry `msgpack` and `json` tags; the CBOR codec falls
// back to json tags.
package codec

import (
	"fmt"
	"strings"
)

// Codec encodes host values for the guest and decodes guest output.
type Codec interface {
	// Name identifies the encoding, e.g. in error messages and config.
	Name() string

	Marshal(v any) ([]byte, error)

	// Unmarshal decodes data into v, which must be a pointer. Decoding
	// into an untyped value yields map[string]any for maps.
	Unmarshal(data []byte, v any) error
}

// Encoding names accepted by ByName.
const (
	NameMsgPack = "msgpack"
	NameCBOR    = "cbor"
)

// ByName returns the codec called name. The empty string selects MessagePack.
func ByName(name string) (Codec, error) {
	switch strings.ToLower(name) {
	case "", NameMsgPack, "messagepack":
		return MsgPack{}, nil
	case NameCBOR:
		return CBOR{}, nil
	default:
		return nil, fmt.Errorf("unknown encoding '%s'", name)
	}
}
