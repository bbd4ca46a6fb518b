package dsslot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeROM is a minimal ROMProvider backed by a flat byte slice.
type fakeROM struct {
	data []byte
}

func newFakeROM(size int) *fakeROM {
	d := make([]byte, size)
	for i := range d {
		d[i] = byte(i)
	}
	return &fakeROM{data: d}
}

func (f *fakeROM) ReadSlice(offset uint32, dst []byte) {
	for i := range dst {
		dst[i] = f.data[(int(offset)+i)%len(f.data)]
	}
}
func (f *fakeROM) ReadHeader(dst []byte)   { f.ReadSlice(0, dst) }
func (f *fakeROM) SecureAreaMut() []byte   { return f.data[0x4000:0x4800] }
func (f *fakeROM) GameCode() uint32        { return 0x41424344 }
func (f *fakeROM) Len() uint32             { return uint32(len(f.data)) }

// E5: 3C in Initial state fills 0xFF and moves to Key1; a KEY1 command
// whose decrypted upper nibble is 0xA zero-fills and moves to Key2.
func TestE5StageTransitions(t *testing.T) {
	rom := newFakeROM(1 << 20)
	dev, err := New(rom, nil)
	require.NoError(t, err)
	require.Equal(t, StageInitial, dev.Stage())

	out := make([]byte, 0x4000)
	dev.HandleCommand([8]byte{0x3C, 0, 0, 0, 0, 0, 0, 0}, out, 8)
	require.Equal(t, StageKey1, dev.Stage())
	for _, b := range out[:8] {
		require.Equal(t, byte(0xFF), b)
	}

	// Craft a command that decrypts to an 0xA-leading nibble by
	// encrypting the desired plaintext forward through the same keys.
	plain := [8]byte{0xA0, 0, 0, 0, 0, 0, 0, 0}
	enc := dev.keys.encryptPair([2]uint32{be32(plain[4:8]), be32(plain[0:4])})
	var cmd [8]byte
	putBE32(cmd[4:8], enc[0])
	putBE32(cmd[0:4], enc[1])

	dev.HandleCommand(cmd, out, 8)
	require.Equal(t, StageKey2, dev.Stage())
	for _, b := range out[:8] {
		require.Equal(t, byte(0), b)
	}
}

func TestInitialRawCommands(t *testing.T) {
	rom := newFakeROM(1 << 20)
	dev, err := New(rom, nil)
	require.NoError(t, err)

	out := make([]byte, 0x1000)
	dev.HandleCommand([8]byte{0x9F}, out, 0x1000)
	require.Equal(t, byte(0xFF), out[0])

	dev.HandleCommand([8]byte{0x00}, out, 0x1000)
	require.Equal(t, rom.data[0], out[0])

	dev.HandleCommand([8]byte{0x90}, out, 8)
	got := uint32(out[0]) | uint32(out[1])<<8 | uint32(out[2])<<16 | uint32(out[3])<<24
	require.Equal(t, dev.chipID, got)
}

func TestKey2ROMReadWrapsPage(t *testing.T) {
	rom := newFakeROM(1 << 20)
	dev, err := New(rom, nil)
	require.NoError(t, err)
	dev.SetDirectBoot()
	require.Equal(t, StageKey2, dev.Stage())

	out := make([]byte, 0x2000)
	var cmd [8]byte
	cmd[0] = 0xB7
	putBE32(cmd[1:5], 0x0FFF) // below 0x8000: remapped to 0x8000|(0x0FFF&0x1FF) = 0x81FF
	rom.data[0x8000] = 0xA5   // marks the start of the 4KiB page 0x8000..0x8FFF
	dev.HandleCommand(cmd, out, 0x2000)
	require.Equal(t, rom.data[0x81FF], out[0])
	require.Equal(t, rom.data[0x8200], out[1])
	// 0x9000-0x81FF = 0xE01 bytes reach the page end; the next byte wraps to the page start
	require.Equal(t, rom.data[0x8000], out[0xE01])
}

func TestSaveDeviceEEPROMRoundTrip(t *testing.T) {
	dev, err := NewSaveDevice(SaveEEPROM4K, 512, nil)
	require.NoError(t, err)

	dev.WriteData(cmdWREN, true, true)
	dev.WriteData(cmdWrite, true, false)
	dev.WriteData(0x10, false, false)
	dev.WriteData(0xAB, false, true)

	dev.WriteData(cmdRead, true, false)
	dev.WriteData(0x10, false, false)
	got := dev.WriteData(0, false, true)
	require.Equal(t, byte(0xAB), got)
	require.True(t, dev.Dirty())
}

func TestSaveDeviceSizeValidation(t *testing.T) {
	_, err := NewSaveDevice(SaveFlash, 0x12345, nil)
	require.ErrorIs(t, err, ErrSizeNotPowerOfTwo)

	_, err = NewSaveDevice(SaveFlash, 4096, nil)
	require.ErrorIs(t, err, ErrUnsupportedSize)

	kind, ok := InferKind(256 * 1024)
	require.True(t, ok)
	require.Equal(t, SaveFlash, kind)
}
