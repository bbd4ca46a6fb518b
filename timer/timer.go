// Package timer implements the four-channel prescaled timer bank.
// Generalizes the teacher's single DIV/TIMA pair (jeebie/memory/timer.go,
// jeebie/events/timer.go) to four independent, optionally cascading
// counters driven by scheduler overflow events instead of a per-cycle
// loop: a timer only needs to sit in the scheduler while its overflow
// would raise an IRQ, which calls for event-driven overflow rather than
// the teacher's tick-every-cycle approach.
package timer

import (
	"log/slog"

	"github.com/nds-core/emu/irq"
	"github.com/nds-core/emu/scheduler"
)

// Prescaler shifts selectable via the control register's low 2 bits.
var prescalerShift = [4]uint8{0, 6, 8, 10}

// Channel is one of the four timers belonging to a CPU.
type Channel struct {
	index   int
	slot    scheduler.Slot
	sched   *scheduler.Scheduler
	irqCtl  *irq.Controller
	irqLine irq.Name

	running       bool
	irqEnabled    bool
	countUp       bool
	prescalerSel  uint8
	reload        uint16
	lastValue     uint16 // counter value as of lastUpdateTime
	lastUpdateTime scheduler.Timestamp

	downstream *Channel // timer N+1, notified on overflow when it has count_up set
}

// Bank holds all four channels for one CPU.
type Bank struct {
	channels [4]Channel
}

// NewBank creates a bank wired to the given scheduler/irq controller,
// with slots baseSlot..baseSlot+3 and IRQ lines base..base+3.
func NewBank(sched *scheduler.Scheduler, ctl *irq.Controller, baseSlot scheduler.Slot, baseIRQ irq.Name) *Bank {
	b := &Bank{}
	for i := range b.channels {
		ch := &b.channels[i]
		ch.index = i
		ch.slot = baseSlot + scheduler.Slot(i)
		ch.sched = sched
		ch.irqCtl = ctl
		ch.irqLine = baseIRQ + irq.Name(i)
		if i > 0 {
			b.channels[i-1].downstream = ch
		}
	}
	return b
}

// Channel returns the i-th channel (0..3).
func (b *Bank) Channel(i int) *Channel { return &b.channels[i] }

// valueAt computes the free-running counter value at time now, without
// mutating state (used by both Read and the overflow scheduler).
func (c *Channel) valueAt(now scheduler.Timestamp) uint16 {
	if c.countUp {
		return c.lastValue
	}
	elapsed := now - c.lastUpdateTime
	delta := elapsed >> prescalerShift[c.prescalerSel]
	return uint16((uint32(c.lastValue) + uint32(delta)) & 0xFFFF)
}

// Read returns the current counter value, advancing it to "now" without
// mutating emulator-visible side effects beyond the snapshot itself —
// safe to call from a debug access.
func (c *Channel) Read(now scheduler.Timestamp) uint16 {
	if !c.running {
		return c.lastValue
	}
	return c.valueAt(now)
}

// WriteReload sets TMxCNT_L (the reload register). Takes effect on the
// next 0->1 running transition, per real hardware.
func (c *Channel) WriteReload(value uint16) {
	c.reload = value
}

// WriteControl applies a TMxCNT_H write: prescaler, count-up, irq-enable,
// and the start/stop bit. Rearms or cancels the scheduler slot so the
// scheduling invariant holds after every control write.
func (c *Channel) WriteControl(now scheduler.Timestamp, prescalerSel uint8, countUp, irqEnabled, running bool) {
	wasRunning := c.running

	if !wasRunning && running {
		c.lastValue = c.reload
		c.lastUpdateTime = now
	} else if wasRunning {
		c.lastValue = c.valueAt(now)
		c.lastUpdateTime = now
	}

	c.prescalerSel = prescalerSel
	c.countUp = countUp
	c.irqEnabled = irqEnabled
	c.running = running

	c.reschedule(now)
}

// causesVisibleIRQ reports whether this channel's own overflow, or a
// downstream count-up cascade from it, would ever request an IRQ —
// the scheduling invariant's predicate.
func (c *Channel) causesVisibleIRQ() bool {
	if c.irqEnabled {
		return true
	}
	if c.downstream != nil && c.downstream.countUp {
		return c.downstream.causesVisibleIRQ()
	}
	return false
}

// reschedule arms or cancels this channel's overflow slot so it fires
// exactly when required by the scheduling invariant.
func (c *Channel) reschedule(now scheduler.Timestamp) {
	if !c.running || c.countUp || !c.causesVisibleIRQ() {
		c.sched.Cancel(c.slot)
		return
	}
	cyclesToOverflow := (uint32(0x10000-int(c.lastValue)) << prescalerShift[c.prescalerSel])
	c.sched.Schedule(c.slot, c.lastUpdateTime+scheduler.Timestamp(cyclesToOverflow))
}

// FireOverflow is invoked by the host loop when this channel's
// scheduler slot comes due. It reloads the counter, cascades into any
// count-up downstream channel, requests an IRQ if enabled, and
// re-arms for the next overflow.
func (c *Channel) FireOverflow(now scheduler.Timestamp) {
	c.lastValue = c.reload
	c.lastUpdateTime = now

	if c.irqEnabled {
		c.irqCtl.Request(c.irqLine)
		slog.Debug("timer: overflow irq", "channel", c.index)
	}
	if c.downstream != nil && c.downstream.countUp && c.downstream.running {
		c.downstream.bumpCountUp(now)
	}
	c.reschedule(now)
}

// bumpCountUp advances a count_up=true channel by one tick, called only
// by the upstream channel's overflow — count-up channels never arm
// their own prescaler-driven overflow.
func (c *Channel) bumpCountUp(now scheduler.Timestamp) {
	c.lastValue++
	if c.lastValue == 0 {
		if c.irqEnabled {
			c.irqCtl.Request(c.irqLine)
		}
		c.lastValue = c.reload
		if c.downstream != nil && c.downstream.countUp && c.downstream.running {
			c.downstream.bumpCountUp(now)
		}
	}
}
