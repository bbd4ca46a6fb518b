package irq

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPendingRequiresAllGates(t *testing.T) {
	c := New()
	c.SetEnabledMask(1 << 3)
	c.Request(3)
	require.False(t, c.Pending(false), "master enable still off")

	c.SetMasterEnable(true)
	require.True(t, c.Pending(false))
	require.False(t, c.Pending(true), "cpsr.I gate blocks delivery")
}

func TestWriteOneToClear(t *testing.T) {
	c := New()
	c.Request(0)
	c.Request(1)
	c.AckWriteOneToClear(1 << 0)
	require.Equal(t, uint32(1<<1), c.RequestMask())
}

func TestGXFIFOAckSuppressedWhileStillPending(t *testing.T) {
	c := New()
	stillPending := true
	c.SetGXFIFOPendingFunc(func() bool { return stillPending })
	c.Request(GXFIFOBit)

	c.AckWriteOneToClear(1 << GXFIFOBit)
	require.True(t, c.RequestMask()&(1<<GXFIFOBit) != 0, "bit must survive ack while condition holds")

	stillPending = false
	c.AckWriteOneToClear(1 << GXFIFOBit)
	require.Zero(t, c.RequestMask()&(1<<GXFIFOBit))
}

func TestHaltClearedByEnabledRequest(t *testing.T) {
	c := New()
	c.Halt()
	require.True(t, c.Halted())

	c.SetEnabledMask(1 << 2)
	c.Request(2)
	require.False(t, c.Halted())
}
