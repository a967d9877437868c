package wasm

import (
	"sort"
	"strings"

	"github.com/tetratelabs/wazero/api"
)

// Names fixed by the guest calling convention.
const (
	// ReallocExport is the guest allocator:
	// (oldPtr, oldSize, align, newSize) -> newPtr.
	ReallocExport = "cabi_realloc"

	// PostReturnPrefix prefixes the optional cleanup export of a function.
	PostReturnPrefix = "cabi_post_"

	// InitializeExport is run once after instantiation when present.
	InitializeExport = "_initialize"
)

// Export is one invocable guest function.
type Export struct {
	Name string
	fn   api.Function
	post api.Function
}

// HasCleanup reports whether the guest exports a post-return function for it.
func (e *Export) HasCleanup() bool {
	return e.post != nil
}

// ExportTable maps names to invocable exports. It is resolved once at
// instantiation and never changes afterwards.
type ExportTable struct {
	entries map[string]*Export
	names   []string
}

// buildExportTable collects every export with the (i32, i32) -> i32 shape,
// excluding cleanup functions, and pairs each with its cleanup if present.
func buildExportTable(module api.Module) *ExportTable {
	defs := module.ExportedFunctionDefinitions()
	t := &ExportTable{entries: make(map[string]*Export, len(defs))}

	for name, def := range defs {
		if strings.HasPrefix(name, PostReturnPrefix) || name == ReallocExport {
			continue
		}
		if !isCallShape(def) {
			continue
		}
		e := &Export{Name: name, fn: module.ExportedFunction(name)}
		if postDef, ok := defs[PostReturnPrefix+name]; ok && isPostShape(postDef) {
			e.post = module.ExportedFunction(PostReturnPrefix + name)
		}
		t.entries[name] = e
		t.names = append(t.names, name)
	}
	sort.Strings(t.names)

	return t
}

// Lookup returns the export called name.
func (t *ExportTable) Lookup(name string) (*Export, bool) {
	e, ok := t.entries[name]
	return e, ok
}

// Names returns the invocable export names in sorted order.
func (t *ExportTable) Names() []string {
	out := make([]string, len(t.names))
	copy(out, t.names)
	return out
}

// Len returns the number of invocable exports.
func (t *ExportTable) Len() int {
	return len(t.names)
}

func isCallShape(def api.FunctionDefinition) bool {
	params, results := def.ParamTypes(), def.ResultTypes()
	return len(params) == 2 && len(results) == 1 &&
		params[0] == api.ValueTypeI32 && params[1] == api.ValueTypeI32 &&
		results[0] == api.ValueTypeI32
}

func isPostShape(def api.FunctionDefinition) bool {
	params := def.ParamTypes()
	return len(params) == 1 && params[0] == api.ValueTypeI32 && len(def.ResultTypes()) == 0
}

func isReallocShape(def api.FunctionDefinition) bool {
	params, results := def.ParamTypes(), def.ResultTypes()
	if len(params) != 4 || len(results) != 1 || results[0] != api.ValueTypeI32 {
		return false
	}
	for _, p := range params {
		if p != api.ValueTypeI32 {
			return false
		}
	}
	return true
}
