package wasm

import (
	"fmt"
	"strings"
)

// Result record tags.
const (
	TagSuccess uint32 = 0
	TagFailure uint32 = 1
)

// ResultLayout selects how the record at a call's return pointer is read.
type ResultLayout string

const (
	// LayoutAuto inspects the first word: 0 or 1 means tagged, anything else
	// is the payload pointer of an untagged record.
	LayoutAuto ResultLayout = "auto"

	// LayoutTagged expects [tag][ptr][len].
	LayoutTagged ResultLayout = "tagged"

	// LayoutUntagged expects [ptr][len] with implicit success.
	LayoutUntagged ResultLayout = "untagged"
)

// ParseResultLayout parses a layout name. The empty string means auto.
func ParseResultLayout(s string) (ResultLayout, error) {
	switch ResultLayout(strings.ToLower(s)) {
	case "", LayoutAuto:
		return LayoutAuto, nil
	case LayoutTagged:
		return LayoutTagged, nil
	case LayoutUntagged:
		return LayoutUntagged, nil
	default:
		return "", fmt.Errorf("unknown result layout '%s' (want auto, tagged or untagged)", s)
	}
}

// ResultRecord is the descriptor a guest call's return pointer refers to,
// copied into host memory.
type ResultRecord struct {
	Tag    uint32
	Ptr    uint32
	Len    uint32
	Tagged bool
}

// Success reports whether the guest signalled success.
func (r ResultRecord) Success() bool {
	return r.Tag == TagSuccess
}

// decodeRecord reads the result record at retPtr.
func (m *Memory) decodeRecord(retPtr uint32, layout ResultLayout) (ResultRecord, error) {
	first, err := m.readUint32("result-record", retPtr)
	if err != nil {
		return ResultRecord{}, err
	}

	tagged := false
	switch layout {
	case LayoutTagged:
		tagged = true
	case LayoutUntagged:
	default:
		tagged = first == TagSuccess || first == TagFailure
	}

	if tagged {
		if first != TagSuccess && first != TagFailure {
			return ResultRecord{}, fmt.Errorf("invalid result tag %d at address %d", first, retPtr)
		}
		ptr, err := m.readUint32("result-record", retPtr+4)
		if err != nil {
			return ResultRecord{}, err
		}
		length, err := m.readUint32("result-record", retPtr+8)
		if err != nil {
			return ResultRecord{}, err
		}
		return ResultRecord{Tag: first, Ptr: ptr, Len: length, Tagged: true}, nil
	}

	length, err := m.readUint32("result-record", retPtr+4)
	if err != nil {
		return ResultRecord{}, err
	}
	return ResultRecord{Tag: TagSuccess, Ptr: first, Len: length}, nil
}

// payload copies the record's payload out of guest memory. A zero payload
// pointer is the empty payload regardless of the tag.
func (m *Memory) payload(rec ResultRecord) ([]byte, error) {
	if rec.Ptr == 0 || rec.Len == 0 {
		return []byte{}, nil
	}
	return m.copyOut("result-payload", rec.Ptr, rec.Len)
}
