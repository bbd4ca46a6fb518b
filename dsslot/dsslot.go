// Package dsslot implements the DS-slot cartridge protocol state
// machine: a three-state (Initial/Key1/Key2) 8-byte command decoder
// plus the ROM and SPI-save external device interfaces.
//
// No direct teacher analog exists (the Game Boy has no cartridge
// command protocol beyond MBC bank switching), so the state-machine
// shape is grounded on jeebie/memory/mbc.go's closed-interface style,
// and the exact KEY1/KEY2 command semantics are grounded on
// original_source/core/src/ds_slot/rom/normal.rs, the one file in the
// retrieval pack that implements this protocol.
package dsslot

import (
	"log/slog"
)

// Stage is the cartridge's raw/KEY1/KEY2 command-encoding state.
type Stage uint8

const (
	StageInitial Stage = iota
	StageKey1
	StageKey2
)

// ROMProvider is the external, random-access, read-only ROM backing
// store (implemented outside this package: a memory-mapped or
// host-file-backed image).
type ROMProvider interface {
	ReadSlice(offset uint32, dst []byte)
	ReadHeader(dst []byte)
	SecureAreaMut() []byte
	GameCode() uint32
	Len() uint32
}

// Device is one cartridge's protocol state: the command decoder, the
// derived KEY1 keys, and the chip ID computed from ROM size.
type Device struct {
	rom     ROMProvider
	romMask uint32
	chipID  uint32
	keys    *KeyBuffer
	stage   Stage

	logger *slog.Logger
}

// New builds a Device for rom, deriving its KEY1 keys from the game
// code and the ARM7 BIOS image (bios may be nil for headless boots
// with no real firmware attached — see key1.go's deterministic
// fallback). rom.Len() must be a power of two and at least 0x200
// bytes, per real hardware's addressing constraints.
func New(rom ROMProvider, bios []byte) (*Device, error) {
	length := rom.Len()
	if length == 0 || length&(length-1) != 0 {
		return nil, ErrSizeNotPowerOfTwo
	}
	if length < 0x200 {
		return nil, ErrSizeTooSmall
	}

	chipID := uint32(0x0000_00C2)
	switch {
	case length <= 0xF_FFFF:
		// chipID unchanged
	case length <= 0xFFF_FFFF:
		chipID |= (length >> 20) - 1
	default:
		chipID |= 0x100 - (length >> 28)
	}

	return &Device{
		rom:     rom,
		romMask: length - 1,
		chipID:  chipID,
		keys:    deriveKeys(rom.GameCode(), bios),
		stage:   StageInitial,
		logger:  slog.Default(),
	}, nil
}

// Reset returns the device to its raw command stage, as on a cartridge
// re-insertion or CPU reset.
func (d *Device) Reset() { d.stage = StageInitial }

// SetDirectBoot skips straight to Key2, matching normal.rs's
// `setup(direct_boot=true)` fast-boot path (no firmware-driven KEY1
// handshake when booting a ROM image directly rather than through
// firmware).
func (d *Device) SetDirectBoot() { d.stage = StageKey2 }

// Stage reports the current command-encoding stage.
func (d *Device) Stage() Stage { return d.stage }

// HandleCommand decodes an 8-byte command and fills output (truncated
// or repeated to outputLen, matching real hardware's fixed-size
// transfer buffer) per the three-stage command table.
func (d *Device) HandleCommand(cmd [8]byte, output []byte, outputLen int) {
	if outputLen > len(output) {
		outputLen = len(output)
	}
	switch d.stage {
	case StageInitial:
		d.handleInitial(cmd, output, outputLen)
	case StageKey1:
		d.handleKey1(cmd, output, outputLen)
	case StageKey2:
		d.handleKey2(cmd, output, outputLen)
	}
}

func fill(output []byte, n int, b byte) {
	for i := 0; i < n; i++ {
		output[i] = b
	}
}

func writeChipIDRepeating(output []byte, n int, chipID uint32) {
	for i := 0; i+4 <= n; i += 4 {
		output[i] = byte(chipID)
		output[i+1] = byte(chipID >> 8)
		output[i+2] = byte(chipID >> 16)
		output[i+3] = byte(chipID >> 24)
	}
}

func (d *Device) handleInitial(cmd [8]byte, output []byte, n int) {
	switch cmd[0] {
	case 0x9F:
		fill(output, n, 0xFF)
	case 0x00:
		readInPages(d.rom, 0, output, n, 0x1000)
	case 0x90:
		writeChipIDRepeating(output, n, d.chipID)
	case 0x3C:
		d.stage = StageKey1
		fill(output, n, 0xFF)
	default:
		d.logger.Warn("dsslot: unknown raw-mode command", "cmd0", cmd[0])
		fill(output, n, 0xFF)
	}
}

func (d *Device) handleKey1(cmd [8]byte, output []byte, n int) {
	hi := [2]uint32{be32(cmd[4:8]), be32(cmd[0:4])}
	dec := d.keys.decryptPair(hi)
	var decoded [8]byte
	putBE32(decoded[0:4], dec[1])
	putBE32(decoded[4:8], dec[0])

	switch decoded[0] >> 4 {
	case 0x4:
		fill(output, n, 0xFF)
	case 0x1:
		writeChipIDRepeating(output, n, d.chipID)
	case 0x2:
		start := uint32(0x4000) | uint32(decoded[2]&0x30)<<8
		readInPages(d.rom, start, output, n, 0x1000)
	case 0xA:
		d.stage = StageKey2
		fill(output, n, 0)
	default:
		d.logger.Warn("dsslot: unknown KEY1-mode command", "nibble", decoded[0]>>4)
		fill(output, n, 0)
	}
}

func (d *Device) handleKey2(cmd [8]byte, output []byte, n int) {
	switch cmd[0] {
	case 0xB7:
		addr := be32(cmd[1:5]) & d.romMask
		if addr < 0x8000 {
			addr = 0x8000 | (addr & 0x1FF)
		}
		pageStart := addr &^ 0xFFF
		pageEnd := pageStart + 0x1000
		i := 0
		for i < n {
			l := pageEnd - addr
			if remain := n - i; uint32(remain) < l {
				l = uint32(remain)
			}
			d.rom.ReadSlice(addr, output[i:i+int(l)])
			addr = pageStart
			i += int(l)
		}
	case 0xB8:
		writeChipIDRepeating(output, n, d.chipID)
	default:
		d.logger.Warn("dsslot: unknown KEY2-mode command", "cmd0", cmd[0])
		fill(output, n, 0)
	}
}

func readInPages(rom ROMProvider, start uint32, output []byte, n, pageSize int) {
	for i := 0; i < n; i += pageSize {
		l := pageSize
		if n-i < l {
			l = n - i
		}
		rom.ReadSlice(start, output[i:i+l])
	}
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBE32(dst []byte, v uint32) {
	dst[0] = byte(v >> 24)
	dst[1] = byte(v >> 16)
	dst[2] = byte(v >> 8)
	dst[3] = byte(v)
}

// TransferCycles computes a ROMCTRL transaction's completion delay
// from its word-count field and clock-rate bit; the formula is taken
// from original_source, which times out a data-ready event at the
// transfer's completion. wordCountField is ROMCTRL bits 24..26 (a
// coded word count, 0 meaning
// 0 words, 7 meaning 0x2000 words); slow selects the ~6.7MHz clock
// (bit 27 clear) vs the ~4.2MHz one (bit 27 set, "KEY2" clock).
func TransferCycles(wordCountField uint8, slow bool) uint64 {
	words := wordCountCode(wordCountField)
	cyclesPerWord := uint64(8)
	if slow {
		cyclesPerWord = 5
	}
	const commandCycles = 8 * 8 // 8-byte command clocked in up front
	return commandCycles + uint64(words)*cyclesPerWord
}

func wordCountCode(field uint8) uint32 {
	switch field & 0x7 {
	case 0:
		return 0
	case 7:
		return 0x2000
	default:
		return uint32(0x100) << (field & 0x7)
	}
}
