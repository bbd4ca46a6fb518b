// Package arm7 wires cpu.Core with the 33MHz ARM7TDMI variant's
// Config: no port interlocks (ARM7 has no pipelined register hazards
// to model), low exception vectors, and no prefetch-abort-as-BKPT
// behavior.
package arm7

import (
	"github.com/nds-core/emu/cpu"
	"github.com/nds-core/emu/scheduler"
)

// New constructs an ARM7TDMI core.
func New(bus cpu.Bus, irq cpu.IRQSource, sched *scheduler.Scheduler) *cpu.Core {
	cfg := cpu.Config{
		Name:               "ARM7TDMI",
		Interlocks:         false,
		VectorBase:         0x0000_0000,
		PrefetchAbortsBKPT: false,
	}
	return cpu.New(cfg, bus, irq, sched)
}
