package wasm

import (
	"errors"

	"github.com/tetratelabs/wazero/api"
)

var errOutOfRange = errors.New("out of range of memory size")

// Handle refers to a region of guest linear memory.
//
// A handle is only valid for the generation of memory it was produced in.
// Every allocator invocation and every guest call may move or grow the
// guest heap, so both advance the generation; reading through an older
// handle fails with a StaleHandleError instead of touching memory.
type Handle struct {
	Ptr uint32
	Len uint32

	gen uint64
}

// IsEmpty reports whether the handle refers to no bytes.
func (h Handle) IsEmpty() bool {
	return h.Len == 0
}

// Generation returns the memory generation the handle was produced in.
func (h Handle) Generation() uint64 {
	return h.gen
}

// Memory provides checked access to one instance's linear memory.
//
// Host code never keeps a slice into guest memory past a call boundary:
// all reads copy, and writes go through the allocator protocol.
// Memory is not safe for concurrent use; the owning Instance serializes.
type Memory struct {
	mem api.Memory
	gen uint64
}

// NewMemory creates a memory helper.
func NewMemory(mem api.Memory) *Memory {
	return &Memory{mem: mem}
}

// Generation returns the current memory generation.
func (m *Memory) Generation() uint64 {
	return m.gen
}

// Size returns the current size of linear memory in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// advance invalidates every handle issued so far. Called immediately
// before anything that can run guest code.
func (m *Memory) advance() {
	m.gen++
}

func (m *Memory) handle(ptr, length uint32) Handle {
	return Handle{Ptr: ptr, Len: length, gen: m.gen}
}

// Read copies the bytes a handle refers to into a host-owned buffer.
func (m *Memory) Read(h Handle) ([]byte, error) {
	if h.gen != m.gen {
		return nil, &StaleHandleError{Handle: h, Generation: m.gen}
	}
	if h.Len == 0 {
		return []byte{}, nil
	}
	return m.copyOut("read", h.Ptr, h.Len)
}

// copyOut reads length bytes at ptr and returns a host-owned copy.
func (m *Memory) copyOut(op string, ptr, length uint32) ([]byte, error) {
	view, ok := m.mem.Read(ptr, length)
	if !ok {
		return nil, &MemoryAccessError{Operation: op, Address: ptr, Length: length, Err: errOutOfRange}
	}
	out := make([]byte, length)
	copy(out, view)
	return out, nil
}

// view returns a slice aliasing guest memory. The caller must drop it
// before the next allocator or guest call.
func (m *Memory) view(op string, ptr, length uint32) ([]byte, error) {
	v, ok := m.mem.Read(ptr, length)
	if !ok {
		return nil, &MemoryAccessError{Operation: op, Address: ptr, Length: length, Err: errOutOfRange}
	}
	return v, nil
}

func (m *Memory) write(ptr uint32, data []byte) error {
	if !m.mem.Write(ptr, data) {
		return &MemoryAccessError{Operation: "write", Address: ptr, Length: uint32(len(data)), Err: errOutOfRange}
	}
	return nil
}

func (m *Memory) readUint32(op string, ptr uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(ptr)
	if !ok {
		return 0, &MemoryAccessError{Operation: op, Address: ptr, Length: 4, Err: errOutOfRange}
	}
	return v, nil
}
