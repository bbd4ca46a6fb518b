package timer

import (
	"testing"

	"github.com/nds-core/emu/irq"
	"github.com/nds-core/emu/scheduler"
	"github.com/stretchr/testify/require"
)

func newTestBank() (*Bank, *scheduler.Scheduler, *irq.Controller) {
	sched := scheduler.New()
	ctl := irq.New()
	ctl.SetMasterEnable(true)
	ctl.SetEnabledMask(^uint32(0))
	bank := NewBank(sched, ctl, scheduler.SlotTimer0ARM7, irq.Name(3))
	return bank, sched, ctl
}

// E3: timer 0, reload=0xFFFE, shift 0, IRQ enabled, running; after 4
// cycles expect IRQ pending and counter == reload+2 (mod 2^16).
func TestE3TimerOverflowIRQ(t *testing.T) {
	bank, sched, ctl := newTestBank()
	ch := bank.Channel(0)

	sched.SetCurTime(0)
	ch.WriteReload(0xFFFE)
	ch.WriteControl(0, 0, false, true, true)

	require.True(t, sched.IsScheduled(scheduler.SlotTimer0ARM7))

	sched.SetCurTime(4)
	for {
		slot, fireTime, ok := sched.PopPending()
		if !ok {
			break
		}
		require.Equal(t, scheduler.SlotTimer0ARM7, slot)
		ch.FireOverflow(fireTime)
	}

	require.True(t, ctl.Pending(false))
	require.Equal(t, uint16(0), ch.Read(4))
}

// Property: a read without an intervening control/reload write matches
// (now - lastUpdateTime) >> shift.
func TestTimerIdempotentRead(t *testing.T) {
	bank, sched, _ := newTestBank()
	ch := bank.Channel(1)

	sched.SetCurTime(0)
	ch.WriteReload(0)
	ch.WriteControl(0, 2, false, false, true) // shift 8

	sched.SetCurTime(1000)
	first := ch.Read(1000)
	second := ch.Read(1000)
	require.Equal(t, first, second)
	require.Equal(t, uint16(1000>>8), first)
}

func TestCountUpCascade(t *testing.T) {
	bank, sched, ctl := newTestBank()
	lo := bank.Channel(0)
	hi := bank.Channel(1)

	sched.SetCurTime(0)
	hi.WriteReload(0)
	hi.WriteControl(0, 0, true, true, true) // count-up, irq enabled

	lo.WriteReload(0xFFFF)
	lo.WriteControl(0, 0, false, false, true) // shift 0, no irq on lo itself

	require.True(t, sched.IsScheduled(scheduler.SlotTimer0ARM7), "lo must be scheduled: it feeds an IRQ-enabled cascade")

	sched.SetCurTime(1)
	slot, fireTime, ok := sched.PopPending()
	require.True(t, ok)
	require.Equal(t, scheduler.SlotTimer0ARM7, slot)
	lo.FireOverflow(fireTime)

	require.Equal(t, uint16(1), hi.Read(1))
	require.False(t, ctl.Pending(false), "hi only overflows at 0x10000, not on a single bump")
}
