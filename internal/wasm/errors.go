package wasm

import (
	"fmt"
)

// CompilationError occurs when Wasm module compilation fails
type CompilationError struct {
	ModuleName string
	Err        error
}

func (e *CompilationError) Error() string {
	return fmt.Sprintf("failed to compile Wasm module '%s': %v", e.ModuleName, e.Err)
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

// InstantiationError occurs when module instantiation fails
type InstantiationError struct {
	ModuleName string
	InstanceID string
	Err        error
}

func (e *InstantiationError) Error() string {
	if e.InstanceID == "" {
		return fmt.Sprintf("failed to instantiate module '%s': %v", e.ModuleName, e.Err)
	}
	return fmt.Sprintf("failed to instantiate module '%s' (instance: %s): %v",
		e.ModuleName, e.InstanceID, e.Err)
}

func (e *InstantiationError) Unwrap() error {
	return e.Err
}

// ModuleNotFoundError occurs when a module is not in cache
type ModuleNotFoundError struct {
	ModuleName string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("module '%s' not found in cache", e.ModuleName)
}

// MissingCapabilityError occurs when the guest lacks an export the bridge
// cannot work without (the allocator or its linear memory).
type MissingCapabilityError struct {
	ModuleName string
	Capability string
}

func (e *MissingCapabilityError) Error() string {
	return fmt.Sprintf("module '%s' does not provide required capability '%s'",
		e.ModuleName, e.Capability)
}

// UnknownFunctionError occurs when a call names a function that is not in
// the instance's export table.
type UnknownFunctionError struct {
	ModuleName   string
	FunctionName string
}

func (e *UnknownFunctionError) Error() string {
	return fmt.Sprintf("function '%s' not found in module '%s'",
		e.FunctionName, e.ModuleName)
}

// GuestError carries a failure the guest reported through a tagged result
// record. Message is the guest's text, unmodified.
type GuestError struct {
	FunctionName string
	Message      string
}

func (e *GuestError) Error() string {
	return e.Message
}

// EncodeError occurs when a call input cannot be marshalled.
type EncodeError struct {
	FunctionName string
	Codec        string
	Err          error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("failed to encode input for '%s' (codec=%s): %v",
		e.FunctionName, e.Codec, e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// DecodeError occurs when guest output does not parse under the agreed encoding.
type DecodeError struct {
	FunctionName string
	Codec        string
	Err          error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode output of '%s' (codec=%s): %v",
		e.FunctionName, e.Codec, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// CallError occurs when a guest function traps or returns an unexpected
// number of results.
type CallError struct {
	FunctionName string
	Err          error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("call to '%s' failed: %v", e.FunctionName, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// MemoryAccessError occurs when memory operations fail
type MemoryAccessError struct {
	Operation string
	Address   uint32
	Length    uint32
	Err       error
}

func (e *MemoryAccessError) Error() string {
	return fmt.Sprintf("memory access failed (op=%s, addr=%d, len=%d): %v",
		e.Operation, e.Address, e.Length, e.Err)
}

func (e *MemoryAccessError) Unwrap() error {
	return e.Err
}

// StaleHandleError occurs when a handle is read after the allocator or a
// guest call has run since it was produced.
type StaleHandleError struct {
	Handle     Handle
	Generation uint64
}

func (e *StaleHandleError) Error() string {
	return fmt.Sprintf("stale memory handle (addr=%d, len=%d): taken at generation %d, memory is at %d",
		e.Handle.Ptr, e.Handle.Len, e.Handle.gen, e.Generation)
}

// InstanceLimitError occurs when the runtime already tracks MaxInstances instances.
type InstanceLimitError struct {
	Limit int
}

func (e *InstanceLimitError) Error() string {
	return fmt.Sprintf("instance limit reached (%d)", e.Limit)
}

// InstanceClosedError occurs when an operation targets a closed instance.
type InstanceClosedError struct {
	InstanceID string
}

func (e *InstanceClosedError) Error() string {
	return fmt.Sprintf("instance '%s' is closed", e.InstanceID)
}
