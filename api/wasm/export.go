// Package wasm describes the contract between the host and a guest module.
//
// Guests are compiled to WebAssembly and export the following functions.
// uint32 is used for pointers and lengths because WebAssembly uses a
// 32-bit linear memory model.
//
// Allocator (required):
//
//	cabi_realloc(oldPtr, oldSize, align, newSize uint32) uint32
//
// (0, 0, align, n) allocates n fresh bytes; newSize 0 releases oldPtr.
// The host writes every call input through it and never frees inputs
// itself: the guest owns them once the call starts.
//
// Invocable functions:
//
//	<name>(ptr, length uint32) uint32
//
// The result is the address of a record, either tagged
//
//	[tag uint32][payloadPtr uint32][payloadLen uint32]
//
// with tag 0 for success and 1 for failure (payload is the UTF-8 error
// message), or untagged
//
//	[payloadPtr uint32][payloadLen uint32]
//
// which always means success. All words are little-endian. A payload
// pointer of 0 is the empty payload.
//
// Cleanup (optional, per function):
//
//	cabi_post_<name>(recordPtr uint32)
//
// Called exactly once after the host has copied the payload out.
//
// _initialize, when exported, runs once after instantiation. The guest
// sees only descriptors 0 (empty), 1 and 2; there are no preopened
// directories.
package wasm
