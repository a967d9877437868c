package wasmtest

import "encoding/binary"

// Guest memory layout. The heap starts above every fixed record.
const (
	EchoRecordAddr   = 16
	LegacyRecordAddr = 32
	FailRecordAddr   = 48
	BoomAddr         = 64
	EmptyRecordAddr  = 80
	OOBRecordAddr    = 96
	LegacyPayload    = 128
	HeapBase         = 4096
)

// Exported counter globals.
const (
	GlobalAllocCalls   = "alloc_calls"
	GlobalPostCalls    = "post_calls"
	GlobalReleaseCalls = "release_calls"
	GlobalInitialized  = "initialized"
)

// GuestOptions varies the fake guest.
type GuestOptions struct {
	// Do not export cabi_realloc.
	NoAllocator bool

	// Grow memory by one page on every allocation, so every allocator call
	// really changes the size of linear memory.
	GrowOnAlloc bool

	// Import a function the host does not provide.
	UnresolvedImport bool

	// Skip the _initialize export.
	NoInitialize bool

	// Initial linear memory in pages; 0 means one page.
	MemoryPages uint32
}

// Guest builds a module following the guest calling convention:
//
//	cabi_realloc       bump allocator; newSize 0 releases
//	echo               copies its input to a fresh allocation, tagged success
//	cabi_post_echo     releases echo's output
//	fail               tagged failure with payload "boom"
//	cabi_post_fail     counts only
//	empty              tagged success with a null payload
//	legacy             untagged record with payload "legacy!"
//	log                writes its input to fd 1 and fd 2, empty result
//	trap               unreachable
//	oob                tagged success whose payload is out of bounds
//	cabi_post_oob      counts only
//
// Calls to the allocator, cleanup exports and releases are counted in
// exported globals.
func Guest(opts GuestOptions) []byte {
	m := NewModule()

	i32 := []ValType{I32}
	fdWrite := m.ImportFunc("wasi_snapshot_preview1", "fd_write", []ValType{I32, I32, I32, I32}, i32)
	if opts.UnresolvedImport {
		m.ImportFunc("env", "missing", nil, nil)
	}

	pages := opts.MemoryPages
	if pages == 0 {
		pages = 1
	}
	m.Memory(pages)
	m.ExportMemory("memory")

	heap := m.Global(HeapBase, true)
	allocCalls := m.Global(0, true)
	postCalls := m.Global(0, true)
	releaseCalls := m.Global(0, true)
	initialized := m.Global(0, true)
	m.ExportGlobal(GlobalAllocCalls, allocCalls)
	m.ExportGlobal(GlobalPostCalls, postCalls)
	m.ExportGlobal(GlobalReleaseCalls, releaseCalls)
	m.ExportGlobal(GlobalInitialized, initialized)

	// cabi_realloc(old=0, oldSize=1, align=2, newSize=3) -> ptr; locals ptr=4, pages=5
	var grow []byte
	if opts.GrowOnAlloc {
		grow = join(I32Const(1), MemoryGrow, Drop)
	}
	realloc := m.Func([]ValType{I32, I32, I32, I32}, i32, 2,
		Incr(allocCalls),
		LocalGet(3), I32Eqz, If,
		Incr(releaseCalls),
		I32Const(0), Return,
		End,
		LocalGet(3), LocalGet(1), I32LeU, If,
		LocalGet(0), Return,
		End,
		// ptr = (heap + align - 1) & -align
		GlobalGet(heap), LocalGet(2), I32Add, I32Const(1), I32Sub,
		I32Const(0), LocalGet(2), I32Sub, I32And, LocalSet(4),
		LocalGet(4), LocalGet(3), I32Add, GlobalSet(heap),
		// grow to ceil(heap / 64KiB) pages
		GlobalGet(heap), I32Const(0xffff), I32Add, I32Const(16), I32ShrU, LocalSet(5),
		LocalGet(5), MemorySize, I32GtU, If,
		LocalGet(5), MemorySize, I32Sub, MemoryGrow, Drop,
		End,
		grow,
		LocalGet(0), If,
		LocalGet(4), LocalGet(0), LocalGet(1), MemoryCopy,
		End,
		LocalGet(4),
	)
	if !opts.NoAllocator {
		m.ExportFunc("cabi_realloc", realloc)
	}

	if !opts.NoInitialize {
		m.ExportFunc("_initialize", m.Func(nil, nil, 0,
			I32Const(1), GlobalSet(initialized),
		))
	}

	callParams := []ValType{I32, I32}

	// echo(ptr=0, len=1) -> record; local out=2
	m.ExportFunc("echo", m.Func(callParams, i32, 1,
		I32Const(0), I32Const(0), I32Const(1), LocalGet(1), Call(realloc), LocalSet(2),
		LocalGet(2), LocalGet(0), LocalGet(1), MemoryCopy,
		I32Const(EchoRecordAddr), I32Const(0), I32Store(0),
		I32Const(EchoRecordAddr), LocalGet(2), I32Store(4),
		I32Const(EchoRecordAddr), LocalGet(1), I32Store(8),
		I32Const(EchoRecordAddr),
	))
	m.ExportFunc("cabi_post_echo", m.Func([]ValType{I32}, nil, 0,
		Incr(postCalls),
		LocalGet(0), I32Load(4),
		LocalGet(0), I32Load(8),
		I32Const(1), I32Const(0), Call(realloc), Drop,
	))

	m.ExportFunc("fail", m.Func(callParams, i32, 0, I32Const(FailRecordAddr)))
	m.ExportFunc("cabi_post_fail", m.Func([]ValType{I32}, nil, 0, Incr(postCalls)))

	m.ExportFunc("empty", m.Func(callParams, i32, 0, I32Const(EmptyRecordAddr)))
	m.ExportFunc("legacy", m.Func(callParams, i32, 0, I32Const(LegacyRecordAddr)))

	// iovec at 8, nwritten at 0
	m.ExportFunc("log", m.Func(callParams, i32, 0,
		I32Const(8), LocalGet(0), I32Store(0),
		I32Const(12), LocalGet(1), I32Store(0),
		I32Const(1), I32Const(8), I32Const(1), I32Const(0), Call(fdWrite), Drop,
		I32Const(2), I32Const(8), I32Const(1), I32Const(0), Call(fdWrite), Drop,
		I32Const(EmptyRecordAddr),
	))

	m.ExportFunc("trap", m.Func(callParams, i32, 0, Unreachable))

	m.ExportFunc("oob", m.Func(callParams, i32, 0, I32Const(OOBRecordAddr)))
	m.ExportFunc("cabi_post_oob", m.Func([]ValType{I32}, nil, 0, Incr(postCalls)))

	m.Data(LegacyRecordAddr, words(LegacyPayload, 7))
	m.Data(FailRecordAddr, words(1, BoomAddr, 4))
	m.Data(BoomAddr, []byte("boom"))
	m.Data(EmptyRecordAddr, words(0, 0, 0))
	m.Data(OOBRecordAddr, words(0, 0xffffff00, 16))
	m.Data(LegacyPayload, []byte("legacy!"))

	return m.Bytes()
}

func words(vs ...uint32) []byte {
	b := make([]byte, 4*len(vs))
	for i, v := range vs {
		binary.LittleEndian.PutUint32(b[4*i:], v)
	}
	return b
}
