package codec

import (
	"bytes"
	"errors"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

var errTrailingData = errors.New("trailing data after msgpack value")

// MsgPack is the MessagePack codec.
//
// Integers are written in their most compact form, so untyped decoding
// cannot recover the original width. Integers decoded into any,
// map[string]any or []any are widened: signed to int64, unsigned to uint64,
// float32 to float64. Binary values stay []byte and strings stay string.
type MsgPack struct{}

// Name implements Codec.
func (MsgPack) Name() string { return NameMsgPack }

// Marshal implements Codec.
func (MsgPack) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal implements Codec. Trailing bytes after the first value are an error.
func (MsgPack) Unmarshal(data []byte, v any) error {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.PeekCode(); !errors.Is(err, io.EOF) {
		return errTrailingData
	}

	switch p := v.(type) {
	case *any:
		*p = widen(*p)
	case *map[string]any:
		widenMap(*p)
	case *[]any:
		widenSlice(*p)
	}
	return nil
}

// widen normalizes the numeric types of an untyped decoded value in place.
func widen(v any) any {
	switch x := v.(type) {
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint8:
		return uint64(x)
	case uint16:
		return uint64(x)
	case uint32:
		return uint64(x)
	case float32:
		return float64(x)
	case map[string]any:
		widenMap(x)
	case []any:
		widenSlice(x)
	}
	return v
}

func widenMap(m map[string]any) {
	for k, v := range m {
		m[k] = widen(v)
	}
}

func widenSlice(s []any) {
	for i, v := range s {
		s[i] = widen(v)
	}
}
