package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woxQAQ/tokenbridge/internal/codec"
)

func TestTokenizerKind(t *testing.T) {
	if !TokenizerKindTiktoken.Valid() || !TokenizerKindHuggingface.Valid() {
		t.Error("Known kinds should be valid")
	}
	if TokenizerKind("sentencepiece").Valid() {
		t.Error("Unknown kind should be invalid")
	}
}

func TestPackTokens(t *testing.T) {
	ids := []uint32{0, 1, 100257, 0xffffffff}
	packed := PackTokens(ids)

	assert.Equal(t, []byte{
		0, 0, 0, 0,
		1, 0, 0, 0,
		0xa1, 0x87, 0x01, 0x00,
		0xff, 0xff, 0xff, 0xff,
	}, packed)

	unpacked, err := UnpackTokens(packed)
	require.NoError(t, err)
	assert.Equal(t, ids, unpacked)

	empty, err := UnpackTokens(nil)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = UnpackTokens([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestSpecialTokenEncodesAsPair(t *testing.T) {
	token := SpecialToken{Token: "<|endoftext|>", Rank: 100257}

	for _, c := range []codec.Codec{codec.MsgPack{}, codec.CBOR{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(token)
			require.NoError(t, err)

			var pair []any
			require.NoError(t, c.Unmarshal(data, &pair))
			require.Len(t, pair, 2)
			assert.Equal(t, "<|endoftext|>", pair[0])
			assert.EqualValues(t, 100257, pair[1])

			var back SpecialToken
			require.NoError(t, c.Unmarshal(data, &back))
			assert.Equal(t, token.Token, back.Token)
			assert.Equal(t, token.Rank, back.Rank)
		})
	}
}

func TestLoadInputShape(t *testing.T) {
	in := LoadTokenizerInput{
		Name: "gpt2",
		Data: &HuggingfaceData{Model: []byte(`{"model":{}}`)},
	}

	for _, c := range []codec.Codec{codec.MsgPack{}, codec.CBOR{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := c.Marshal(in)
			require.NoError(t, err)

			var m map[string]any
			require.NoError(t, c.Unmarshal(data, &m))
			assert.Equal(t, "gpt2", m["name"])

			inner, ok := m["data"].(map[string]any)
			require.True(t, ok, "data should be a map, got %T", m["data"])
			assert.Equal(t, []byte(`{"model":{}}`), inner["model"])
			assert.NotContains(t, inner, "bpe")
		})
	}
}
