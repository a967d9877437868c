package wasm

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Call encodes in, invokes the export name and decodes its output.
// It returns nil when the guest produced no output.
func (i *Instance) Call(ctx context.Context, name string, in any) (any, error) {
	var out any
	ok, err := i.CallInto(ctx, name, in, &out)
	if err != nil || !ok {
		return nil, err
	}
	return out, nil
}

// CallInto is like Call but decodes into out, which must be a pointer.
// It reports false, leaving out untouched, when the guest produced no output.
func (i *Instance) CallInto(ctx context.Context, name string, in, out any) (bool, error) {
	if !i.HasFunction(name) {
		return false, &UnknownFunctionError{ModuleName: i.Name, FunctionName: name}
	}

	data, err := i.codec.Marshal(in)
	if err != nil {
		return false, &EncodeError{FunctionName: name, Codec: i.codec.Name(), Err: err}
	}

	raw, err := i.CallRaw(ctx, name, data)
	if err != nil {
		return false, err
	}
	if len(raw) == 0 {
		return false, nil
	}

	if err := i.codec.Unmarshal(raw, out); err != nil {
		return false, &DecodeError{FunctionName: name, Codec: i.codec.Name(), Err: err}
	}
	return true, nil
}

// CallRaw invokes the export name with input as-is and returns the raw
// output bytes.
func (i *Instance) CallRaw(ctx context.Context, name string, input []byte) ([]byte, error) {
	return i.invoke(ctx, name, len(input), func() (Handle, error) {
		return i.allocate(ctx, input)
	})
}

// CallText invokes the export name with text written as UTF-8.
func (i *Instance) CallText(ctx context.Context, name string, text string) ([]byte, error) {
	return i.invoke(ctx, name, len(text), func() (Handle, error) {
		return i.allocateText(ctx, text)
	})
}

// invoke runs one complete call: allocate the input, run the export, copy
// the result out and run the cleanup export. Everything happens under the
// instance lock so no two calls overlap on the guest heap.
func (i *Instance) invoke(ctx context.Context, name string, inputLen int, alloc func() (Handle, error)) (out []byte, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.checkOpen(); err != nil {
		return nil, err
	}

	export, ok := i.exports.Lookup(name)
	if !ok {
		return nil, &UnknownFunctionError{ModuleName: i.Name, FunctionName: name}
	}

	ctx, span := i.tracer.Start(ctx, "wasm.call",
		trace.WithAttributes(
			attribute.String("wasm.instance", i.ID),
			attribute.String("wasm.function", name),
			attribute.Int("wasm.input_bytes", inputLen),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("wasm.output_bytes", len(out)))
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	in, err := alloc()
	if err != nil {
		return nil, err
	}

	i.memory.advance()
	results, err := export.fn.Call(ctx, uint64(in.Ptr), uint64(in.Len))
	if err != nil {
		return nil, &CallError{FunctionName: name, Err: err}
	}
	if len(results) != 1 {
		return nil, &CallError{FunctionName: name, Err: fmt.Errorf("expected 1 result, got %d", len(results))}
	}
	retPtr := uint32(results[0])

	rec, err := i.memory.decodeRecord(retPtr, i.layout)
	if err != nil {
		return nil, err
	}
	payload, payloadErr := i.memory.payload(rec)

	// The record was readable, so the guest's output region is known and
	// must be released even when the payload copy failed.
	if export.post != nil {
		i.memory.advance()
		if _, cleanupErr := export.post.Call(ctx, uint64(retPtr)); cleanupErr != nil {
			i.logger.Warn("Post-return cleanup failed",
				zap.String("function", name),
				zap.Uint32("ret_ptr", retPtr),
				zap.Error(cleanupErr),
			)
		}
	}

	if payloadErr != nil {
		return nil, payloadErr
	}
	if !rec.Success() {
		return nil, &GuestError{FunctionName: name, Message: string(payload)}
	}
	return payload, nil
}
