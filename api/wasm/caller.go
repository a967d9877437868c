package wasm

import "context"

// Caller invokes named guest functions. It is the surface the rest of the
// host uses; it knows nothing about what any particular function does.
//
// Implementations serialize calls, so a Caller may be shared.
type Caller interface {
	// Call encodes in with the structured encoding, invokes name and
	// decodes the output. The result is nil when the guest returned no
	// output.
	Call(ctx context.Context, name string, in any) (any, error)

	// CallInto decodes the output into out and reports whether there was
	// any output.
	CallInto(ctx context.Context, name string, in, out any) (bool, error)

	// CallRaw passes input through unencoded and returns the raw output.
	CallRaw(ctx context.Context, name string, input []byte) ([]byte, error)

	// CallText passes text as UTF-8 and returns the raw output.
	CallText(ctx context.Context, name string, text string) ([]byte, error)

	// HasFunction reports whether name can be invoked.
	HasFunction(name string) bool

	// Functions lists the invocable names.
	Functions() []string
}
