package scheduler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScheduleAndPop(t *testing.T) {
	s := New()
	s.Schedule(SlotTimer0ARM7, 100)
	s.Schedule(SlotDMA0ARM7, 50)
	s.SetCurTime(60)

	slot, fireTime, ok := s.PopPending()
	require.True(t, ok)
	require.Equal(t, SlotDMA0ARM7, slot)
	require.Equal(t, Timestamp(50), fireTime)

	_, _, ok = s.PopPending()
	require.False(t, ok, "timer0 isn't due yet")
}

func TestPopOrdersBySlotIndexOnTie(t *testing.T) {
	s := New()
	s.Schedule(SlotDMA1ARM7, 10)
	s.Schedule(SlotTimer0ARM7, 10)
	s.SetCurTime(10)

	slot, _, ok := s.PopPending()
	require.True(t, ok)
	require.Equal(t, SlotTimer0ARM7, slot, "lower slot index fires first on a tie")

	slot, _, ok = s.PopPending()
	require.True(t, ok)
	require.Equal(t, SlotDMA1ARM7, slot)
}

func TestCancelRemovesFromQueue(t *testing.T) {
	s := New()
	s.Schedule(SlotTimer0ARM7, 10)
	s.Cancel(SlotTimer0ARM7)
	s.SetCurTime(100)

	_, _, ok := s.PopPending()
	require.False(t, ok)
	require.False(t, s.IsScheduled(SlotTimer0ARM7))
}

func TestRescheduleUpdatesFireTime(t *testing.T) {
	s := New()
	s.Schedule(SlotTimer0ARM7, 10)
	s.Schedule(SlotTimer0ARM7, 200)
	s.SetCurTime(10)

	_, _, ok := s.PopPending()
	require.False(t, ok, "rescheduled slot should not fire at its old time")

	s.SetCurTime(200)
	slot, fireTime, ok := s.PopPending()
	require.True(t, ok)
	require.Equal(t, SlotTimer0ARM7, slot)
	require.Equal(t, Timestamp(200), fireTime)
}

func TestSetCurTimeRejectsBackwardsMove(t *testing.T) {
	s := New()
	s.SetCurTime(10)
	require.Panics(t, func() { s.SetCurTime(5) })
}

func TestNextEventTime(t *testing.T) {
	s := New()
	_, ok := s.NextEventTime()
	require.False(t, ok)

	s.Schedule(SlotVBlank, 70224)
	s.Schedule(SlotHBlank, 456)

	next, ok := s.NextEventTime()
	require.True(t, ok)
	require.Equal(t, Timestamp(456), next)
}

// Property: no event fires at t < cur_time, and pop order is
// (fire_time, slot_index) lexicographic even under interleaved schedules.
func TestMonotonicityProperty(t *testing.T) {
	s := New()
	slots := []Slot{SlotTimer3ARM9, SlotTimer0ARM7, SlotDMA2ARM9, SlotIPCSync}
	times := []Timestamp{500, 100, 100, 300}
	for i, sl := range slots {
		s.Schedule(sl, times[i])
	}
	s.SetCurTime(500)

	var lastTime Timestamp
	var lastSlot Slot
	first := true
	for {
		slot, ft, ok := s.PopPending()
		if !ok {
			break
		}
		require.GreaterOrEqual(t, ft, Timestamp(0))
		if !first {
			require.True(t, ft > lastTime || (ft == lastTime && slot > lastSlot))
		}
		lastTime, lastSlot, first = ft, slot, false
	}
}
