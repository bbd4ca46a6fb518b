package emu

import (
	"log/slog"

	"github.com/nds-core/emu/addr"
	"github.com/nds-core/emu/dma"
	"github.com/nds-core/emu/scheduler"
)

// Video timing constants. The scanline clock is ambient housekeeping
// the loop needs in order to emit V-blank/H-blank DMA triggers and the
// V-blank IRQ at the right moments, not a pixel-accurate PPU. Ticks
// are ARM7 cycles, per scheduler.Timestamp's doc comment.
const (
	cyclesPerScanline = 8206
	visibleScanlines  = 192
	totalScanlines    = 263
	hblankStart       = 5460 // roughly the draw/blank split within one scanline
	// CyclesPerFrame is the ARM7-cycle length of one frame, the unit
	// spec.md §4.10/§5 means by "the host loop exits when it has
	// simulated one full frame."
	CyclesPerFrame = cyclesPerScanline * totalScanlines
)

// Host drives the interleaved ARM7/ARM9 execution loop of spec.md
// §4.10, generalizing the teacher's jeebie/core.go
// Emulator.RunUntilFrame (run to a fixed cycle count, draining
// timer/PPU events inline every iteration) to two CPU cores alternating
// at a 1:2 tick ratio against the shared scheduler, draining events
// between instructions rather than stepping every component by hand.
type Host struct {
	m *Machine

	scanline int
}

// NewHost wires a Host to drive m and arms the first scanline event.
func NewHost(m *Machine) *Host {
	h := &Host{m: m}
	h.m.sched.Schedule(scheduler.SlotHBlank, h.m.sched.CurTime()+hblankStart)
	return h
}

// RunFrame advances the machine by exactly one frame, implementing
// spec.md §4.10's loop body once per turn taken, alternating which
// core gets a turn at a 1:2 ARM7:ARM9 ratio ("for every one ARM7 tick,
// two ARM9 ticks are available").
func (h *Host) RunFrame() {
	endTime := h.m.sched.CurTime() + CyclesPerFrame

	for h.m.sched.CurTime() < endTime {
		h.drainEvents()

		next, ok := h.m.sched.NextEventTime()
		if !ok || next > endTime {
			next = endTime
		}

		h.turn(h.m.ARM9, h.m.irq9, next)
		h.turn(h.m.ARM9, h.m.irq9, next)
		h.turn(h.m.ARM7, h.m.irq7, next)
	}
}

// turn performs exactly one unit of spec.md §4.10's priority-ordered
// work for one core: a pending IRQ preempts halt fast-forwarding, which
// preempts ordinary instruction execution. DMA transfers are not
// handled here; they run from drainEvents when their slot comes due.
func (h *Host) turn(c coreDriver, irqCtl irqPendingSource, bound scheduler.Timestamp) {
	if h.m.sched.CurTime() >= bound {
		return
	}
	if irqCtl.AnyEnabledRequested() && c.TakeIRQIfPending() {
		return
	}
	if c.Halted() {
		h.m.sched.SetCurTime(bound)
		return
	}
	c.Step()
}

// coreDriver and irqPendingSource narrow *cpu.Core and *irq.Controller
// to what the host loop needs, keeping this file agnostic of the exact
// cpu.Core API surface beyond these three calls.
type coreDriver interface {
	Step()
	Halted() bool
	TakeIRQIfPending() bool
}

type irqPendingSource interface {
	AnyEnabledRequested() bool
}

// drainEvents pops every scheduler slot whose fire time has arrived and
// routes it to the owning subsystem, per spec.md §4.10 "drain pending
// events in slot-order".
func (h *Host) drainEvents() {
	for {
		slot, fireTime, ok := h.m.sched.PopPending()
		if !ok {
			return
		}
		h.fire(slot, fireTime)
	}
}

func (h *Host) fire(slot scheduler.Slot, now scheduler.Timestamp) {
	switch {
	case slot >= scheduler.SlotTimer0ARM7 && slot <= scheduler.SlotTimer3ARM7:
		h.m.tim7.Channel(int(slot - scheduler.SlotTimer0ARM7)).FireOverflow(now)
	case slot >= scheduler.SlotTimer0ARM9 && slot <= scheduler.SlotTimer3ARM9:
		h.m.tim9.Channel(int(slot - scheduler.SlotTimer0ARM9)).FireOverflow(now)
	case slot >= scheduler.SlotDMA0ARM7 && slot <= scheduler.SlotDMA3ARM7:
		h.m.dma7.Channel(int(slot - scheduler.SlotDMA0ARM7)).RunTransfer(now)
	case slot >= scheduler.SlotDMA0ARM9 && slot <= scheduler.SlotDMA3ARM9:
		h.m.dma9.Channel(int(slot - scheduler.SlotDMA0ARM9)).RunTransfer(now)
	case slot == scheduler.SlotHBlank:
		h.fireHBlank(now)
	case slot == scheduler.SlotVBlank:
		h.fireVBlank(now)
	default:
		slog.Debug("host: unhandled scheduler slot", "slot", slot)
	}
}

func (h *Host) fireHBlank(now scheduler.Timestamp) {
	h.m.dma7.Notify(now, dma.TriggerHBlank)
	h.m.dma9.Notify(now, dma.TriggerHBlank)
	h.m.irq7.Request(uint8(addr.IRQHBlank))
	h.m.irq9.Request(uint8(addr.IRQHBlank))

	h.scanline++
	if h.scanline == visibleScanlines {
		h.m.sched.Schedule(scheduler.SlotVBlank, now+uint64(cyclesPerScanline-hblankStart))
		return
	}
	if h.scanline >= totalScanlines {
		h.scanline = 0
	}
	h.m.sched.Schedule(scheduler.SlotHBlank, now+uint64(cyclesPerScanline))
}

func (h *Host) fireVBlank(now scheduler.Timestamp) {
	h.m.dma7.Notify(now, dma.TriggerVBlank)
	h.m.dma9.Notify(now, dma.TriggerVBlank)
	h.m.irq7.Request(uint8(addr.IRQVBlank))
	h.m.irq9.Request(uint8(addr.IRQVBlank))

	if h.scanline >= totalScanlines-1 {
		h.scanline = 0
	}
	h.m.sched.Schedule(scheduler.SlotHBlank, now+hblankStart)
}
