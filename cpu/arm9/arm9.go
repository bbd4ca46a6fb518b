// Package arm9 wires cpu.Core with the 66MHz ARM946E-S variant's
// Config: port A/B/C interlocks, a CP15-controlled
// vector base (normally 0, or 0xFFFF0000 with the high-vector bit
// set), and Config.PrefetchAbortsBKPT set. cpu.Core does not read that
// flag and its code fetches never abort, so no BKPT replacement occurs.
package arm9

import (
	"github.com/nds-core/emu/cpu"
	"github.com/nds-core/emu/scheduler"
)

const highVectorBase = 0xFFFF_0000

// New constructs an ARM946E-S core. highVectors mirrors CP15 register
// c1's V bit at reset time. The vector base stays fixed for the core's
// lifetime: no CP15 write path exists that changes it afterwards.
func New(bus cpu.Bus, irq cpu.IRQSource, sched *scheduler.Scheduler, highVectors bool) *cpu.Core {
	base := uint32(0)
	if highVectors {
		base = highVectorBase
	}
	cfg := cpu.Config{
		Name:               "ARM946E-S",
		Interlocks:         true,
		VectorBase:         base,
		PrefetchAbortsBKPT: true,
	}
	return cpu.New(cfg, bus, irq, sched)
}
