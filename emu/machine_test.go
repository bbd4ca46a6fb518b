package emu

import (
	"testing"

	"github.com/nds-core/emu/addr"
	"github.com/nds-core/emu/bus"
	"github.com/stretchr/testify/require"
)

func testCart() []byte {
	cart := make([]byte, 0x200)
	copy(cart[0xC:0x10], []byte{'A', 'B', 'C', 'D'})
	return cart
}

func TestNewDirectBootBranchesBothCores(t *testing.T) {
	m, err := New(Config{DirectBoot: true}, testCart(), nil)
	require.NoError(t, err)
	require.Equal(t, uint32(0x0200_0008), m.ARM7.PC())
	require.Equal(t, uint32(0x0200_0008), m.ARM9.PC())
}

func TestIOMasterEnableRoundTrips(t *testing.T) {
	m, err := New(Config{}, testCart(), nil)
	require.NoError(t, err)

	m.bus7.Write32(addr.IME, 1)
	v, _ := m.bus7.Read32(addr.IME)
	require.Equal(t, uint32(1), v)

	m.bus7.Write32(addr.IE, 1<<uint(addr.IRQVBlank))
	v, _ = m.bus7.Read32(addr.IE)
	require.Equal(t, uint32(1<<uint(addr.IRQVBlank)), v)
}

func TestMainRAMRoundTripsThroughCPUBus(t *testing.T) {
	m, err := New(Config{}, testCart(), nil)
	require.NoError(t, err)

	const a = 0x0200_1000
	m.bus9.Write32(a, 0xDEAD_BEEF)
	v, _ := m.bus7.Read32(a)
	require.Equal(t, uint32(0xDEAD_BEEF), v, "main RAM is shared between both CPU bus views")
}

func TestDebugReadDoesNotPopIPCFIFO(t *testing.T) {
	m, err := New(Config{}, testCart(), nil)
	require.NoError(t, err)

	m.bus7.Write32(addr.IPCFIFOCNT, 1) // enable ARM7's send side
	m.bus7.Write32(addr.IPCFIFOSEND, 0x1234)

	require.Equal(t, uint32(0x1234), m.DebugRead32(true, addr.IPCFIFORECV), "debug peek sees the pending word")
	require.Equal(t, uint32(0x1234), m.DebugRead32(true, addr.IPCFIFORECV), "debug peek must not pop the FIFO")

	v, _ := m.bus9.Read32(addr.IPCFIFORECV)
	require.Equal(t, uint32(0x1234), v, "a live read pops the same word")
	require.Equal(t, uint32(0), m.DebugRead32(true, addr.IPCFIFORECV), "FIFO is empty after the live pop")
}

func TestDebugWriteRejected(t *testing.T) {
	m, err := New(Config{}, testCart(), nil)
	require.NoError(t, err)

	m.bus9.Write32(addr.IME, 1)
	m.bus9.dispatch.write32(addr.IME, 0, bus.Debug)

	v, _ := m.bus9.Read32(addr.IME)
	require.Equal(t, uint32(1), v, "a debug write must not mutate state")
}

func TestHostRunFrameAdvancesSchedulerClock(t *testing.T) {
	m, err := New(Config{DirectBoot: true}, testCart(), nil)
	require.NoError(t, err)

	h := NewHost(m)
	before := m.sched.CurTime()
	h.RunFrame()
	after := m.sched.CurTime()

	require.GreaterOrEqual(t, after, before+CyclesPerFrame)
}
