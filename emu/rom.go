package emu

import "encoding/binary"

// cartImage is the simplest possible dsslot.ROMProvider: a flat
// in-memory byte slice padded up to a power-of-two size, the way a
// host loads a .nds image file wholesale.
type cartImage struct {
	data []byte
}

func newCartImage(raw []byte) *cartImage {
	size := uint32(0x200)
	for size < uint32(len(raw)) {
		size <<= 1
	}
	data := make([]byte, size)
	copy(data, raw)
	return &cartImage{data: data}
}

func (c *cartImage) ReadSlice(offset uint32, dst []byte) {
	for i := range dst {
		src := offset + uint32(i)
		if int(src) < len(c.data) {
			dst[i] = c.data[src]
		} else {
			dst[i] = 0
		}
	}
}

func (c *cartImage) ReadHeader(dst []byte) { c.ReadSlice(0, dst) }

func (c *cartImage) SecureAreaMut() []byte {
	const secureOffset = 0x4000
	const secureLen = 0x800
	if secureOffset+secureLen > len(c.data) {
		return nil
	}
	return c.data[secureOffset : secureOffset+secureLen]
}

func (c *cartImage) GameCode() uint32 {
	if len(c.data) < 0x10 {
		return 0
	}
	return binary.LittleEndian.Uint32(c.data[0xC:0x10])
}

func (c *cartImage) Len() uint32 { return uint32(len(c.data)) }
