package cpu

import (
	"testing"

	"github.com/nds-core/emu/scheduler"
	"github.com/stretchr/testify/require"
)

// fakeBus is a sparse memory (a map from word-aligned address to word)
// covering the whole 32-bit space; Read/Write report a fixed wait-state count.
type fakeBus struct {
	mem map[uint32]uint32 // word-aligned address -> little-endian word
}

func newFakeBus() *fakeBus { return &fakeBus{mem: map[uint32]uint32{}} }

func (b *fakeBus) wordAt(addr uint32) uint32 { return b.mem[addr&^3] }

func (b *fakeBus) putWord(addr, v uint32) { b.mem[addr&^3] = v }

func (b *fakeBus) Read8(addr uint32) (uint8, uint32) {
	shift := (addr & 3) * 8
	return uint8(b.wordAt(addr) >> shift), 1
}
func (b *fakeBus) Read16(addr uint32) (uint16, uint32) {
	shift := (addr & 2) * 8
	return uint16(b.wordAt(addr) >> shift), 1
}
func (b *fakeBus) Read32(addr uint32) (uint32, uint32) { return b.wordAt(addr), 1 }

func (b *fakeBus) Write8(addr uint32, v uint8) uint32 {
	shift := (addr & 3) * 8
	word := b.wordAt(addr)
	word = word&^(0xFF<<shift) | uint32(v)<<shift
	b.putWord(addr, word)
	return 1
}
func (b *fakeBus) Write16(addr uint32, v uint16) uint32 {
	shift := (addr & 2) * 8
	word := b.wordAt(addr)
	word = word&^(0xFFFF<<shift) | uint32(v)<<shift
	b.putWord(addr, word)
	return 1
}
func (b *fakeBus) Write32(addr uint32, v uint32) uint32 {
	b.putWord(addr, v)
	return 1
}

func (b *fakeBus) FetchCode32(addr uint32) (uint32, uint32) { return b.wordAt(addr), 1 }
func (b *fakeBus) FetchCode16(addr uint32) (uint16, uint32) {
	shift := (addr & 2) * 8
	return uint16(b.wordAt(addr) >> shift), 1
}

type noIRQ struct{}

func (noIRQ) Pending(bool) bool { return false }

func TestSWIBootWithHighVectors(t *testing.T) {
	bus := newFakeBus()
	bus.putWord(0xFFFF_0000, 0xE3A00001) // MOV r0, #1
	bus.putWord(0xFFFF_0004, 0xEF000000) // SWI #0

	sched := scheduler.New()
	cfg := Config{Name: "ARM9", VectorBase: 0xFFFF_0000}
	c := New(cfg, bus, noIRQ{}, sched)

	c.Step() // MOV r0, #1
	require.Equal(t, uint32(1), c.Registers().Get(0))

	c.Step() // SWI #0

	require.Equal(t, ModeSupervisor, c.Registers().CPSR().Mode())
	require.Equal(t, uint32(0xFFFF_0008), c.Registers().Get(14))
	require.Equal(t, uint32(0xFFFF_0008), c.curInstrAddr())
}

func TestIRQReturnFromThumbRestoresStateAndPC(t *testing.T) {
	bus := newFakeBus()
	const returnPC = 0x0300_1000
	bus.putWord(returnPC&^3, uint32(0x4600)<<16|0x4600) // two NOP-ish MOV r0,r0 halfwords

	sched := scheduler.New()
	cfg := Config{Name: "ARM9", VectorBase: 0}
	c := New(cfg, bus, noIRQ{}, sched)

	c.Branch(returnPC|1, StateR15Bit0) // enter Thumb at P
	require.True(t, c.Registers().CPSR().Thumb())

	c.TakeException(ExceptionIRQ)
	require.Equal(t, ModeIRQ, c.Registers().CPSR().Mode())
	require.False(t, c.Registers().CPSR().Thumb())

	lr := c.Registers().Get(14)
	require.Equal(t, uint32(returnPC+4), lr)

	// SUBS pc, lr, #4
	c.ExceptionReturn(lr - 4)

	require.Equal(t, ModeSupervisor, c.Registers().CPSR().Mode())
	require.True(t, c.Registers().CPSR().Thumb())
	require.Equal(t, uint32(returnPC), c.curInstrAddr())
}

func TestInterlockStallsConsumerAfterLoad(t *testing.T) {
	bus := newFakeBus()
	const base = 0x0200_0000
	bus.putWord(base, 0x1234_5678)
	// LDR r0, [r1]; MOV r1, r0
	bus.putWord(0x0000_1000, 0xE5910000) // LDR r0, [r1]
	bus.putWord(0x0000_1004, 0xE1A01000) // MOV r1, r0

	sched := scheduler.New()
	cfg := Config{Name: "ARM9", Interlocks: true}
	c := New(cfg, bus, noIRQ{}, sched)
	c.Registers().Set(1, base)
	c.flushARM(0x0000_1000)

	c.Step() // LDR r0, [r1]
	require.Equal(t, uint32(0x1234_5678), c.Registers().Get(0))

	beforeMOV := sched.CurTime()
	c.Step() // MOV r1, r0 -- must pay the port A/B stall
	afterMOV := sched.CurTime()

	require.Equal(t, beforeMOV+3, afterMOV, "interlocked MOV costs its base 2 cycles plus a 1-cycle port A/B stall")
}

func TestNonInterlockedCoreDoesNotStall(t *testing.T) {
	bus := newFakeBus()
	const base = 0x0200_0000
	bus.putWord(base, 0x1234_5678)
	bus.putWord(0x0000_1000, 0xE5910000) // LDR r0, [r1]
	bus.putWord(0x0000_1004, 0xE1A01000) // MOV r1, r0

	sched := scheduler.New()
	cfg := Config{Name: "ARM7"} // Interlocks: false
	c := New(cfg, bus, noIRQ{}, sched)
	c.Registers().Set(1, base)
	c.flushARM(0x0000_1000)

	c.Step()
	beforeMOV := sched.CurTime()
	c.Step()
	afterMOV := sched.CurTime()

	require.Equal(t, beforeMOV+2, afterMOV, "ARM7 MOV costs its base 1(fetch)+1(exec) cycles with no stall")
}
