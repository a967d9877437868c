package codec

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

var (
	cborEnc cbor.EncMode
	cborDec cbor.DecMode
)

func init() {
	var err error
	cborEnc, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("codec: invalid CBOR encoding options: " + err.Error())
	}
	cborDec, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		DupMapKey:      cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic("codec: invalid CBOR decoding options: " + err.Error())
	}
}

// CBOR is the CBOR codec, using core deterministic encoding (sorted map
// keys, shortest integer forms, definite lengths).
type CBOR struct{}

// Name implements Codec.
func (CBOR) Name() string { return NameCBOR }

// Marshal implements Codec.
func (CBOR) Marshal(v any) ([]byte, error) {
	return cborEnc.Marshal(v)
}

// Unmarshal implements Codec. Trailing bytes after the first value are an error.
func (CBOR) Unmarshal(data []byte, v any) error {
	return cborDec.Unmarshal(data, v)
}
