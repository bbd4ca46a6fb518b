// Package vram implements the VRAM bank mapper — the hardest single
// subsystem here. Nine physical banks (A..I) can
// each be routed onto one of twelve usage windows; multiple banks
// mapped onto the same region are OR'd together (real NDS hardware
// behavior for simultaneous mappings), and unmapping must write back
// any bytes touched while more than one bank covered a region.
//
// No teacher analog exists (Game Boy VRAM is a single fixed 8KiB bank);
// grounded on original_source/core/src/gpu/vram/bank_cnt.rs for the
// map/unmap/writeback algorithm shape (canonical per-region buffer,
// a writeback bitmap, bank-bit OR), and on the teacher's bitmask-register
// conventions (jeebie/memory/mem.go's region tables) for how a flat
// register-controlled mapping is organized into a Go struct. The exact
// MST-to-region tables are a documented simplification — see bankTargets.
package vram

import (
	"log/slog"

	"github.com/nds-core/emu/addr"
)

const regionSize = 16 * 1024

// usageRegionCount gives each usage window's size in 16KiB regions.
// A uniform 16KiB granularity is used for every usage (including the
// smaller extended-palette windows) as a documented simplification.
var usageRegionCount = [addr.UsageCount]int{
	addr.UsageABG:          32,
	addr.UsageAOBJ:         16,
	addr.UsageBBG:          8,
	addr.UsageBOBJ:         8,
	addr.UsageABGExtPal:    2,
	addr.UsageAOBJExtPal:   1,
	addr.UsageBBGExtPal:    2,
	addr.UsageBOBJExtPal:   1,
	addr.UsageTexture:      32,
	addr.UsageTexPal:       6,
	addr.UsageARM7:         16,
	addr.UsageLCDC:         41,
}

// BankControl is the 7-bit control register for one bank: enable, MST
// (3 bits), offset (2 bits).
type BankControl struct {
	Enabled bool
	MST     uint8
	Offset  uint8
}

// region holds one usage window's per-region state.
type region struct {
	mappedBanks uint16 // bitmask of banks currently mapped here (9 banks fit in 16 bits)
	writeback   [regionSize / 8]uint64 // bit per byte: written since >1 bank mapped
	fastPath    bool // true iff exactly one bank covers this region and it's safe for a direct pointer
}

// Mapper owns the nine physical bank buffers, the twelve usage windows'
// canonical content buffers, and their region bookkeeping.
type Mapper struct {
	banks   [addr.BankCount][]byte
	control [addr.BankCount]BankControl

	usageBuf [addr.UsageCount][]byte
	regions  [addr.UsageCount][]region

	// dirty is set per usage+region on any mapping change, for the 2D/3D
	// engines to invalidate palette caches.
	dirty [addr.UsageCount][]bool
}

// New allocates all bank buffers and usage windows at their documented sizes.
func New() *Mapper {
	m := &Mapper{}
	for b := addr.VRAMBank(0); b < addr.BankCount; b++ {
		m.banks[b] = make([]byte, addr.BankSizeKiB[b]*1024)
	}
	for u := addr.Usage(0); u < addr.UsageCount; u++ {
		regions := usageRegionCount[u]
		m.usageBuf[u] = make([]byte, regions*regionSize)
		m.regions[u] = make([]region, regions)
		m.dirty[u] = make([]bool, regions)
	}
	return m
}

// target describes which usage/region-range a bank's current control
// register routes to, per the simplified MST tables in bankTargets.
type target struct {
	usage      addr.Usage
	startRegion int
	count      int
}

// WriteControl applies a VRAMCNT_x write for bank b, running the
// unmap-then-map protocol.
func (m *Mapper) WriteControl(b addr.VRAMBank, value uint8) {
	newCtl := BankControl{
		Enabled: value&0x80 != 0,
		MST:     (value >> 0) & 0x7,
		Offset:  (value >> 3) & 0x3,
	}
	prev := m.control[b]

	if prev.Enabled {
		for _, t := range bankTargets(b, prev.MST, prev.Offset) {
			m.unmap(t, b)
		}
	}

	m.control[b] = newCtl

	if newCtl.Enabled {
		for _, t := range bankTargets(b, newCtl.MST, newCtl.Offset) {
			m.mapTo(t, b)
		}
	}

	slog.Debug("vram: bank control written", "bank", b, "enabled", newCtl.Enabled, "mst", newCtl.MST, "offset", newCtl.Offset)
}

// Control returns the currently speculated readback value for a bank's
// control register. The exact values returned by VRAMCNT reads are
// undocumented on real hardware; this simply echoes back what was last
// written, the same speculative behavior carried over from the
// reference implementation.
func (m *Mapper) Control(b addr.VRAMBank) uint8 {
	c := m.control[b]
	v := c.MST&0x7 | (c.Offset&0x3)<<3
	if c.Enabled {
		v |= 0x80
	}
	return v // speculative: real readback semantics are undocumented
}

func (m *Mapper) mapTo(t target, b addr.VRAMBank) {
	bank := m.banks[b]
	bit := uint16(1) << b
	for i := 0; i < t.count; i++ {
		regionIdx := t.startRegion + i
		r := &m.regions[t.usage][regionIdx]
		bankOffset := i * regionSize
		bankSlice := sliceWrap(bank, bankOffset, regionSize)
		buf := m.usageBuf[t.usage][regionIdx*regionSize : (regionIdx+1)*regionSize]

		if r.mappedBanks == 0 {
			copy(buf, bankSlice)
		} else {
			orInto(buf, bankSlice)
		}
		r.mappedBanks |= bit
		r.writeback = [regionSize / 8]uint64{}
		r.fastPath = onlyOneBitSet(r.mappedBanks)
		m.dirty[t.usage][regionIdx] = true
	}
}

func (m *Mapper) unmap(t target, b addr.VRAMBank) {
	bank := m.banks[b]
	bit := uint16(1) << b
	for i := 0; i < t.count; i++ {
		regionIdx := t.startRegion + i
		r := &m.regions[t.usage][regionIdx]
		if r.mappedBanks&bit == 0 {
			continue
		}
		bankOffset := i * regionSize
		bankSlice := sliceWrap(bank, bankOffset, regionSize)
		buf := m.usageBuf[t.usage][regionIdx*regionSize : (regionIdx+1)*regionSize]

		newMask := r.mappedBanks &^ bit

		if newMask == 0 {
			// A singly-mapped region's buf is always that bank's
			// authoritative content (every CPU write lands there
			// directly, writeback-bitmap-tracked or not), so the whole
			// buffer — not just the bytes the writeback bitmap marked —
			// copies back onto the departing bank.
			copy(bankSlice, buf)
			for i := range buf {
				buf[i] = 0
			}
		} else {
			for byteIdx := 0; byteIdx < regionSize; byteIdx++ {
				if !writebackBitSet(&r.writeback, byteIdx) {
					continue
				}
				value := buf[byteIdx]
				bankSlice[byteIdx] = value
				for other := addr.VRAMBank(0); other < addr.BankCount; other++ {
					if newMask&(uint16(1)<<other) == 0 {
						continue
					}
					// Every bank currently covering this region is assumed
					// to be mapped at the same bank-relative offset i as the
					// departing bank (bankTargets always maps a run of
					// regions starting at a uniform offset*regionCount
					// stride), so the departing bank's own offset within its
					// run applies unchanged to every surviving bank.
					writeBankByteAt(m.banks[other], i, byteIdx, value)
				}
			}
		}

		r.mappedBanks = newMask
		r.fastPath = onlyOneBitSet(newMask)
		m.dirty[t.usage][regionIdx] = true
	}
}

// Read returns the current OR'd content of a usage window at offset.
func (m *Mapper) Read(u addr.Usage, offset uint32) byte {
	buf := m.usageBuf[u]
	if len(buf) == 0 {
		return 0
	}
	return buf[int(offset)%len(buf)]
}

// Write applies a CPU write to a usage window at offset, recording the
// writeback bit if more than one bank currently covers that region.
func (m *Mapper) Write(u addr.Usage, offset uint32, value byte) {
	buf := m.usageBuf[u]
	if len(buf) == 0 {
		return
	}
	idx := int(offset) % len(buf)
	buf[idx] = value

	regionIdx := idx / regionSize
	r := &m.regions[u][regionIdx]
	if popcount16(r.mappedBanks) > 1 {
		setWritebackBit(&r.writeback, idx%regionSize)
	}
}

// IsDirty reports and clears the per-region dirty bit the 2D/3D engines
// poll to invalidate palette caches.
func (m *Mapper) IsDirty(u addr.Usage, regionIdx int) bool {
	d := m.dirty[u][regionIdx]
	m.dirty[u][regionIdx] = false
	return d
}

// FastPath reports whether exactly one bank is currently mapped at the
// given region, which is the condition under which a real
// implementation would route the CPU's bus pointer directly at the
// bank's bytes instead of through this dispatcher.
func (m *Mapper) FastPath(u addr.Usage, regionIdx int) (bank addr.VRAMBank, ok bool) {
	r := m.regions[u][regionIdx]
	if !r.fastPath || r.mappedBanks == 0 {
		return 0, false
	}
	for b := addr.VRAMBank(0); b < addr.BankCount; b++ {
		if r.mappedBanks&(1<<b) != 0 {
			return b, true
		}
	}
	return 0, false
}

// RebuildFromControl re-derives every usage window's canonical buffer
// from the current bank control registers, used on savestate restore.
func (m *Mapper) RebuildFromControl() {
	for u := addr.Usage(0); u < addr.UsageCount; u++ {
		for i := range m.usageBuf[u] {
			m.usageBuf[u][i] = 0
		}
		for i := range m.regions[u] {
			m.regions[u][i] = region{}
		}
	}
	for b := addr.VRAMBank(0); b < addr.BankCount; b++ {
		c := m.control[b]
		if !c.Enabled {
			continue
		}
		for _, t := range bankTargets(b, c.MST, c.Offset) {
			m.mapTo(t, b)
		}
	}
}

func sliceWrap(bank []byte, offset, length int) []byte {
	if offset+length <= len(bank) {
		return bank[offset : offset+length]
	}
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		out[i] = bank[(offset+i)%len(bank)]
	}
	return out
}

func orInto(dst, src []byte) {
	for i := range dst {
		dst[i] |= src[i]
	}
}

// writeBankByteAt writes value back into physBank at the offset
// corresponding to region-run position i (the bank-relative region
// index within whichever usage run it was mapped onto) and byteIdx
// within that region.
func writeBankByteAt(physBank []byte, i, byteIdx int, value byte) {
	if len(physBank) == 0 {
		return
	}
	bankOffset := i*regionSize + byteIdx
	physBank[bankOffset%len(physBank)] = value
}

func writebackBitSet(wb *[regionSize / 8]uint64, idx int) bool {
	return wb[idx/64]&(1<<uint(idx%64)) != 0
}

func setWritebackBit(wb *[regionSize / 8]uint64, idx int) {
	wb[idx/64] |= 1 << uint(idx%64)
}

func onlyOneBitSet(v uint16) bool {
	return v != 0 && v&(v-1) == 0
}

func popcount16(v uint16) int {
	n := 0
	for v != 0 {
		v &= v - 1
		n++
	}
	return n
}
