// Package emu is the top-level simulator of spec.md §4.10: a single
// struct owning every subsystem with no back-pointers (DESIGN NOTES
// §9 "Cyclic ownership... flatten into a single top-level simulator
// struct"), and the host loop that interleaves the two CPU cores
// against the shared scheduler.
package emu

import (
	"log/slog"

	"github.com/nds-core/emu/addr"
	"github.com/nds-core/emu/bus"
	"github.com/nds-core/emu/cpu"
	"github.com/nds-core/emu/cpu/arm7"
	"github.com/nds-core/emu/cpu/arm9"
	"github.com/nds-core/emu/dma"
	"github.com/nds-core/emu/dsslot"
	"github.com/nds-core/emu/gxfifo"
	"github.com/nds-core/emu/ipc"
	"github.com/nds-core/emu/irq"
	"github.com/nds-core/emu/scheduler"
	"github.com/nds-core/emu/timer"
	"github.com/nds-core/emu/vram"
)

// Config selects the handful of boot-time knobs spec.md leaves open:
// whether to enter via the firmware boot procedure or start both cores
// at the beginning of main RAM (direct boot), and the ARM9's reset
// vector base.
type Config struct {
	DirectBoot bool
	HighVectors bool
}

// Machine is the complete emulated console: both CPU cores, the shared
// scheduler, and every peripheral subsystem, wired together exactly
// once at construction time.
type Machine struct {
	sched *scheduler.Scheduler

	mem  *bus.Memory
	wait *bus.WaitTable
	vram *vram.Mapper

	irq7, irq9 *irq.Controller
	tim7, tim9 *timer.Bank
	dma7, dma9 *dma.Bank
	ipc7, ipc9 *ipc.Link
	gx         *gxfifo.FIFO
	slot       *dsslot.Device
	cart       *cartImage
	bios7      []byte

	bus7, bus9       *cpuBus
	dmaBus7, dmaBus9 *dmaBusAdapter

	// dmaStage holds SAD/DAD writes latched ahead of the CNT write that
	// actually arms a channel, since real hardware lets software write
	// the three registers in any order before enabling.
	dmaStage7, dmaStage9 [4]dmaStaging

	ARM7 *cpu.Core
	ARM9 *cpu.Core

	cfg Config
}

// New builds a fully wired Machine from a cartridge image and an
// optional ARM7 BIOS (used both for code fetches from the BIOS region
// and to derive the DS-slot KEY1 key buffer, per dsslot.New).
func New(cfg Config, cartROM, bios7 []byte) (*Machine, error) {
	m := &Machine{cfg: cfg}

	m.sched = scheduler.New()
	m.mem = bus.NewMemory()
	m.wait = bus.NewWaitTable()
	m.vram = vram.New()

	m.irq7 = irq.New()
	m.irq9 = irq.New()
	m.tim7 = timer.NewBank(m.sched, m.irq7, scheduler.SlotTimer0ARM7, uint8(addr.IRQTimer0))
	m.tim9 = timer.NewBank(m.sched, m.irq9, scheduler.SlotTimer0ARM9, uint8(addr.IRQTimer0))

	m.ipc7, m.ipc9 = ipc.NewPair(m.irq7, m.irq9)

	m.gx = gxfifo.New()
	m.irq9.SetGXFIFOPendingFunc(func() bool { return !m.gx.Full() })
	m.gx.SetIRQLine(func() { m.irq9.Request(uint8(addr.IRQGXFIFO)) })

	m.cart = newCartImage(cartROM)
	m.bios7 = bios7
	dev, err := dsslot.New(m.cart, bios7)
	if err != nil {
		return nil, err
	}
	m.slot = dev
	if cfg.DirectBoot {
		m.slot.SetDirectBoot()
	}

	m.bus7 = newCPUBus(m, cpuARM7)
	m.bus9 = newCPUBus(m, cpuARM9)
	m.dmaBus7 = &dmaBusAdapter{d: &m.bus7.dispatch}
	m.dmaBus9 = &dmaBusAdapter{d: &m.bus9.dispatch}

	m.dma7 = dma.NewBank(m.sched, m.irq7, m.dmaBus7, m.wait, scheduler.SlotDMA0ARM7, uint8(addr.IRQDMA0))
	m.dma9 = dma.NewBank(m.sched, m.irq9, m.dmaBus9, m.wait, scheduler.SlotDMA0ARM9, uint8(addr.IRQDMA0))

	vectorBase := uint32(0)
	if cfg.DirectBoot {
		// Direct boot starts both cores at 0x02000000 rather than the
		// BIOS reset vector. The cartridge header's entry addresses are
		// not read, and no cartridge code is copied into main RAM.
		vectorBase = 0x0200_0000
	}
	m.ARM7 = arm7.New(m.bus7, m.irq7, m.sched)
	m.ARM9 = arm9.New(m.bus9, m.irq9, m.sched, cfg.HighVectors)
	if cfg.DirectBoot {
		m.ARM7.Branch(vectorBase, cpu.StateArm)
		m.ARM9.Branch(vectorBase, cpu.StateArm)
	}

	slog.Debug("emu: machine constructed", "direct_boot", cfg.DirectBoot)
	return m, nil
}
