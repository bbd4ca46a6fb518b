package vram

import (
	"testing"

	"github.com/nds-core/emu/addr"
	"github.com/stretchr/testify/require"
)

// Property 3: two banks mapped onto the same usage window OR together.
func TestOrSemanticsAcrossOverlappingBanks(t *testing.T) {
	m := New()

	// Bank A and Bank B both routed to UsageABG via MST=1, offset=0.
	m.banks[addr.BankA][0] = 0x0F
	m.banks[addr.BankB][0] = 0xF0

	m.WriteControl(addr.BankA, 0x80|1)
	m.WriteControl(addr.BankB, 0x80|1)

	require.Equal(t, byte(0xFF), m.Read(addr.UsageABG, 0))
}

// Property 4: bytes written while >1 bank mapped are written back to
// every remaining bank on unmap, not dropped.
func TestWritebackOnPartialUnmap(t *testing.T) {
	m := New()
	m.WriteControl(addr.BankA, 0x80|1)
	m.WriteControl(addr.BankB, 0x80|1)

	m.Write(addr.UsageABG, 0, 0xAB)

	// Unmap bank A; bank B (still mapped) must retain the written byte.
	m.WriteControl(addr.BankA, 0x00)

	require.Equal(t, byte(0xAB), m.Read(addr.UsageABG, 0))
}

// Property 4 continued: unmapping the last bank writes the canonical
// content back into that bank's own backing store.
func TestWritebackOnFinalUnmap(t *testing.T) {
	m := New()
	m.WriteControl(addr.BankA, 0x80|1)

	m.Write(addr.UsageABG, 0, 0x42)
	m.WriteControl(addr.BankA, 0x00)

	require.Equal(t, byte(0x42), m.banks[addr.BankA][0])
}

// E2: remapping bank A from BG-A to OBJ-A moves its content to the new
// window and leaves the old window's region showing whatever else (or
// nothing) still covers it.
func TestE2BankRemap(t *testing.T) {
	m := New()
	m.banks[addr.BankA][0] = 0x7E

	m.WriteControl(addr.BankA, 0x80|1) // MST 1: BG-A
	require.Equal(t, byte(0x7E), m.Read(addr.UsageABG, 0))

	m.WriteControl(addr.BankA, 0x80|2) // MST 2: OBJ-A
	require.Equal(t, byte(0), m.Read(addr.UsageABG, 0))
	require.Equal(t, byte(0x7E), m.Read(addr.UsageAOBJ, 0))
}

func TestFastPathSingleBank(t *testing.T) {
	m := New()
	m.WriteControl(addr.BankA, 0x80|1)

	bank, ok := m.FastPath(addr.UsageABG, 0)
	require.True(t, ok)
	require.Equal(t, addr.BankA, bank)

	m.WriteControl(addr.BankB, 0x80|1)
	_, ok = m.FastPath(addr.UsageABG, 0)
	require.False(t, ok, "fast path must be withdrawn once a second bank overlaps")
}

// Writeback must land at the correct bank-relative offset for a byte
// outside the bank's first 16KiB region, not just region 0.
func TestWritebackOnPartialUnmapNonFirstRegion(t *testing.T) {
	m := New()
	m.WriteControl(addr.BankA, 0x80|1)
	m.WriteControl(addr.BankB, 0x80|1)

	const offsetIntoRegion4 = 4*regionSize + 10
	m.Write(addr.UsageABG, offsetIntoRegion4, 0xCD)

	m.WriteControl(addr.BankA, 0x00)

	require.Equal(t, byte(0xCD), m.Read(addr.UsageABG, offsetIntoRegion4))
	require.Equal(t, byte(0xCD), m.banks[addr.BankB][4*regionSize+10])
}

func TestDirtyFlagClearsOnRead(t *testing.T) {
	m := New()
	m.WriteControl(addr.BankA, 0x80|1)

	require.True(t, m.IsDirty(addr.UsageABG, 0))
	require.False(t, m.IsDirty(addr.UsageABG, 0))
}
