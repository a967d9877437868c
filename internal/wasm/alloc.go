package wasm

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Allocate copies data into a fresh guest allocation. Empty input yields
// the empty handle without calling the guest.
//
// The guest owns the allocation from then on; the host never frees it.
func (i *Instance) Allocate(ctx context.Context, data []byte) (Handle, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.checkOpen(); err != nil {
		return Handle{}, err
	}
	return i.allocate(ctx, data)
}

// AllocateText writes s into guest memory as UTF-8. Ill-formed bytes in s
// are replaced with U+FFFD, so the written length may exceed len(s).
func (i *Instance) AllocateText(ctx context.Context, s string) (Handle, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.checkOpen(); err != nil {
		return Handle{}, err
	}
	return i.allocateText(ctx, s)
}

// Read copies the bytes behind h out of guest memory.
func (i *Instance) Read(h Handle) ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.checkOpen(); err != nil {
		return nil, err
	}
	return i.memory.Read(h)
}

func (i *Instance) allocate(ctx context.Context, data []byte) (Handle, error) {
	if len(data) == 0 {
		return i.memory.handle(0, 0), nil
	}
	if uint64(len(data)) > math.MaxUint32 {
		return Handle{}, fmt.Errorf("allocation of %d bytes exceeds 32-bit address space", len(data))
	}

	size := uint32(len(data))
	ptr, err := i.realloc(ctx, 0, 0, 1, size)
	if err != nil {
		return Handle{}, err
	}
	if err := i.memory.write(ptr, data); err != nil {
		return Handle{}, err
	}
	return i.memory.handle(ptr, size), nil
}

func (i *Instance) allocateText(ctx context.Context, s string) (Handle, error) {
	if s == "" {
		return i.memory.handle(0, 0), nil
	}
	if uint64(len(s)) > math.MaxUint32/4 {
		return Handle{}, fmt.Errorf("text of %d bytes exceeds 32-bit address space", len(s))
	}

	enc := unicode.UTF8.NewEncoder()
	src := []byte(s)

	var ptr, capacity, written uint32
	passes := 0
	for len(src) > 0 {
		passes++
		newCap := capacity + uint32(len(src))
		p, err := i.realloc(ctx, ptr, capacity, 1, newCap)
		if err != nil {
			return Handle{}, err
		}
		ptr, capacity = p, newCap

		// Transform straight into the tail of the allocation. The view is
		// dropped before the next realloc.
		tail, err := i.memory.view("write-text", ptr+written, capacity-written)
		if err != nil {
			return Handle{}, err
		}
		nDst, nSrc, err := enc.Transform(tail, src, true)
		if err != nil && !errors.Is(err, transform.ErrShortDst) {
			return Handle{}, fmt.Errorf("failed to encode text: %w", err)
		}
		written += uint32(nDst)
		src = src[nSrc:]
	}

	if capacity > written {
		p, err := i.realloc(ctx, ptr, capacity, 1, written)
		if err != nil {
			return Handle{}, err
		}
		ptr = p
	}

	if passes > 1 {
		i.logger.Debug("Text allocation needed multiple passes",
			zap.Int("passes", passes),
			zap.Int("source_bytes", len(s)),
			zap.Uint32("written", written),
		)
	}

	return i.memory.handle(ptr, written), nil
}

// realloc invokes the guest allocator. It advances the memory generation
// first, since the guest may grow or rearrange its heap.
func (i *Instance) realloc(ctx context.Context, oldPtr, oldSize, align, newSize uint32) (uint32, error) {
	i.memory.advance()

	results, err := i.allocator.Call(ctx, uint64(oldPtr), uint64(oldSize), uint64(align), uint64(newSize))
	if err != nil {
		return 0, &CallError{FunctionName: ReallocExport, Err: err}
	}
	if len(results) != 1 {
		return 0, &CallError{
			FunctionName: ReallocExport,
			Err:          fmt.Errorf("expected 1 result, got %d", len(results)),
		}
	}

	ptr := uint32(results[0])
	if ptr == 0 && newSize > 0 {
		return 0, &CallError{
			FunctionName: ReallocExport,
			Err:          fmt.Errorf("guest allocator returned null for %d bytes", newSize),
		}
	}
	return ptr, nil
}
