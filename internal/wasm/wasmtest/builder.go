// Package wasmtest assembles small WebAssembly binaries for tests.
//
// Modules are written straight to the binary format, so tests need no
// external toolchain. Only i32 values and the handful of instructions the
// bridge tests need are supported.
package wasmtest

import "bytes"

// ValType is a WebAssembly value type.
type ValType byte

// I32 is the only value type the builder emits.
const I32 ValType = 0x7f

const (
	sectionType     = 1
	sectionImport   = 2
	sectionFunction = 3
	sectionMemory   = 5
	sectionGlobal   = 6
	sectionExport   = 7
	sectionCode     = 10
	sectionData     = 11

	externFunc   = 0x00
	externMemory = 0x02
	externGlobal = 0x03
)

type funcType struct {
	params  []ValType
	results []ValType
}

type funcImport struct {
	module, name string
	typeIdx      uint32
}

type funcBody struct {
	typeIdx uint32
	locals  uint32
	code    []byte
}

type global struct {
	init    int32
	mutable bool
}

type export struct {
	name string
	kind byte
	idx  uint32
}

type segment struct {
	offset uint32
	data   []byte
}

// Module accumulates the sections of one module. Imports must be added
// before any function is defined, since they share the function index space.
type Module struct {
	types     []funcType
	imports   []funcImport
	funcs     []funcBody
	memPages  uint32
	hasMemory bool
	globals   []global
	exports   []export
	data      []segment
}

// NewModule returns an empty module.
func NewModule() *Module {
	return &Module{}
}

func (m *Module) typeIndex(params, results []ValType) uint32 {
	for i, t := range m.types {
		if bytes.Equal(vt(t.params), vt(params)) && bytes.Equal(vt(t.results), vt(results)) {
			return uint32(i)
		}
	}
	m.types = append(m.types, funcType{params: params, results: results})
	return uint32(len(m.types) - 1)
}

// ImportFunc declares an imported function and returns its function index.
func (m *Module) ImportFunc(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic("wasmtest: imports must be declared before functions")
	}
	m.imports = append(m.imports, funcImport{module: module, name: name, typeIdx: m.typeIndex(params, results)})
	return uint32(len(m.imports) - 1)
}

// Func defines a function with the given number of extra i32 locals and
// returns its function index. body must not include the final end opcode.
func (m *Module) Func(params, results []ValType, locals uint32, body ...[]byte) uint32 {
	m.funcs = append(m.funcs, funcBody{
		typeIdx: m.typeIndex(params, results),
		locals:  locals,
		code:    bytes.Join(body, nil),
	})
	return uint32(len(m.imports) + len(m.funcs) - 1)
}

// Memory declares the module's linear memory with min pages and no maximum.
func (m *Module) Memory(pages uint32) {
	m.memPages = pages
	m.hasMemory = true
}

// Global declares an i32 global and returns its index.
func (m *Module) Global(init int32, mutable bool) uint32 {
	m.globals = append(m.globals, global{init: init, mutable: mutable})
	return uint32(len(m.globals) - 1)
}

// ExportFunc exports function idx as name.
func (m *Module) ExportFunc(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: externFunc, idx: idx})
}

// ExportMemory exports the memory as name.
func (m *Module) ExportMemory(name string) {
	m.exports = append(m.exports, export{name: name, kind: externMemory})
}

// ExportGlobal exports global idx as name.
func (m *Module) ExportGlobal(name string, idx uint32) {
	m.exports = append(m.exports, export{name: name, kind: externGlobal, idx: idx})
}

// Data places b at offset in memory at instantiation.
func (m *Module) Data(offset uint32, b []byte) {
	m.data = append(m.data, segment{offset: offset, data: b})
}

// Bytes encodes the module.
func (m *Module) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(m.types) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.types)))
		for _, t := range m.types {
			s = append(s, 0x60)
			s = appendU32(s, uint32(len(t.params)))
			s = append(s, vt(t.params)...)
			s = appendU32(s, uint32(len(t.results)))
			s = append(s, vt(t.results)...)
		}
		out = appendSection(out, sectionType, s)
	}

	if len(m.imports) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.imports)))
		for _, imp := range m.imports {
			s = appendName(s, imp.module)
			s = appendName(s, imp.name)
			s = append(s, externFunc)
			s = appendU32(s, imp.typeIdx)
		}
		out = appendSection(out, sectionImport, s)
	}

	if len(m.funcs) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			s = appendU32(s, f.typeIdx)
		}
		out = appendSection(out, sectionFunction, s)
	}

	if m.hasMemory {
		s := []byte{0x01, 0x00}
		s = appendU32(s, m.memPages)
		out = appendSection(out, sectionMemory, s)
	}

	if len(m.globals) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.globals)))
		for _, g := range m.globals {
			s = append(s, byte(I32))
			if g.mutable {
				s = append(s, 0x01)
			} else {
				s = append(s, 0x00)
			}
			s = append(s, I32Const(g.init)...)
			s = append(s, opEnd)
		}
		out = appendSection(out, sectionGlobal, s)
	}

	if len(m.exports) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.exports)))
		for _, e := range m.exports {
			s = appendName(s, e.name)
			s = append(s, e.kind)
			s = appendU32(s, e.idx)
		}
		out = appendSection(out, sectionExport, s)
	}

	if len(m.funcs) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			var body []byte
			if f.locals > 0 {
				body = appendU32(body, 1)
				body = appendU32(body, f.locals)
				body = append(body, byte(I32))
			} else {
				body = appendU32(body, 0)
			}
			body = append(body, f.code...)
			body = append(body, opEnd)
			s = appendU32(s, uint32(len(body)))
			s = append(s, body...)
		}
		out = appendSection(out, sectionCode, s)
	}

	if len(m.data) > 0 {
		var s []byte
		s = appendU32(s, uint32(len(m.data)))
		for _, d := range m.data {
			s = append(s, 0x00)
			s = append(s, I32Const(int32(d.offset))...)
			s = append(s, opEnd)
			s = appendU32(s, uint32(len(d.data)))
			s = append(s, d.data...)
		}
		out = appendSection(out, sectionData, s)
	}

	return out
}

func vt(ts []ValType) []byte {
	b := make([]byte, len(ts))
	for i, t := range ts {
		b[i] = byte(t)
	}
	return b
}

func appendSection(out []byte, id byte, payload []byte) []byte {
	out = append(out, id)
	out = appendU32(out, uint32(len(payload)))
	return append(out, payload...)
}

func appendName(out []byte, name string) []byte {
	out = appendU32(out, uint32(len(name)))
	return append(out, name...)
}

func appendU32(out []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
			continue
		}
		return append(out, b)
	}
}

func appendS32(out []byte, v int32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0) {
			return append(out, b)
		}
		out = append(out, b|0x80)
	}
}
