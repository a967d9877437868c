package wasmtest

const opEnd = 0x0b

// Instruction encoders. Each returns the encoded bytes of one instruction.

func I32Const(v int32) []byte { return appendS32([]byte{0x41}, v) }
func LocalGet(i uint32) []byte { return appendU32([]byte{0x20}, i) }
func LocalSet(i uint32) []byte { return appendU32([]byte{0x21}, i) }
func GlobalGet(i uint32) []byte { return appendU32([]byte{0x23}, i) }
func GlobalSet(i uint32) []byte { return appendU32([]byte{0x24}, i) }
func Call(f uint32) []byte { return appendU32([]byte{0x10}, f) }

// I32Load loads with 4-byte alignment at a constant offset.
func I32Load(offset uint32) []byte { return appendU32([]byte{0x28, 0x02}, offset) }

// I32Store stores with 4-byte alignment at a constant offset.
func I32Store(offset uint32) []byte { return appendU32([]byte{0x36, 0x02}, offset) }

var (
	Unreachable = []byte{0x00}
	If          = []byte{0x04, 0x40}
	Else        = []byte{0x05}
	End         = []byte{opEnd}
	Return      = []byte{0x0f}
	Drop        = []byte{0x1a}
	I32Eqz      = []byte{0x45}
	I32GtU      = []byte{0x4b}
	I32LeU      = []byte{0x4d}
	I32Add      = []byte{0x6a}
	I32Sub      = []byte{0x6b}
	I32And      = []byte{0x71}
	I32ShrU     = []byte{0x76}
	MemorySize  = []byte{0x3f, 0x00}
	MemoryGrow  = []byte{0x40, 0x00}
	MemoryCopy  = []byte{0xfc, 0x0a, 0x00, 0x00}
)

// Incr adds one to global g.
func Incr(g uint32) []byte {
	return join(GlobalGet(g), I32Const(1), I32Add, GlobalSet(g))
}

func join(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
