package cpu

import "github.com/nds-core/emu/scheduler"

// Interlocks tracks, per general register, the earliest bus cycle at
// which its value is available on the ALU's A/B ports and on the
// one-cycle-feed-forward C port. ARM7 never
// populates this table (interlocks are an ARM9 pipeline feature); the
// Config.Interlocks flag gates whether producers/consumers touch it at
// all, per DESIGN NOTES §9's "parameterize by a Config record" guidance
// rather than a second code path.
type Interlocks struct {
	portAB [16]scheduler.Timestamp
	portC  [16]scheduler.Timestamp
}

// MarkProducer records that register reg's value becomes available on
// port A/B at abReady and on port C at cReady (both are absolute
// scheduler timestamps), called by load/multiply/register-shift
// handlers that introduce a hazard.
func (il *Interlocks) MarkProducer(reg int, abReady, cReady scheduler.Timestamp) {
	il.portAB[reg] = abReady
	il.portC[reg] = cReady
}

// Clear drops any pending hazard for reg, e.g. once it's been
// consumed or overwritten by a non-hazardous write.
func (il *Interlocks) Clear(reg int) {
	il.portAB[reg] = 0
	il.portC[reg] = 0
}

// ApplyPortAB stalls the scheduler, if needed, so that a read of reg
// through the two-cycle A/B port observes a value at least as new as
// its last producer requires. Returns the number of stall cycles
// applied, consuming the hazard once paid.
func ApplyPortAB(sched *scheduler.Scheduler, il *Interlocks, reg int) uint64 {
	return applyPort(sched, &il.portAB, reg)
}

// ApplyPortC is the one-cycle-feed-forward variant for consumers that
// read through port C (e.g. the shifter's register-specified shift
// amount, Rs).
func ApplyPortC(sched *scheduler.Scheduler, il *Interlocks, reg int) uint64 {
	return applyPort(sched, &il.portC, reg)
}

func applyPort(sched *scheduler.Scheduler, port *[16]scheduler.Timestamp, reg int) uint64 {
	deadline := port[reg]
	if deadline == 0 {
		return 0
	}
	now := sched.CurTime()
	if now >= deadline {
		port[reg] = 0
		return 0
	}
	stall := deadline - now
	sched.SetCurTime(deadline)
	port[reg] = 0
	return stall
}

// applyRegInterlocks1 applies a single register operand's port-C
// hazard — the shape used by instructions whose only hazardous input
// feeds the shifter's register-specified shift amount.
func applyRegInterlocks1(sched *scheduler.Scheduler, il *Interlocks, rs int) {
	ApplyPortC(sched, il, rs)
}

// applyRegInterlocks2 applies two register operands' port-A/B hazards —
// the common case (an ALU op's Rn and Rm, or a multiply's Rm and Rs).
func applyRegInterlocks2(sched *scheduler.Scheduler, il *Interlocks, ra, rb int) {
	ApplyPortAB(sched, il, ra)
	ApplyPortAB(sched, il, rb)
}

// applyRegInterlocks3 is applyRegInterlocks2 plus a port-C operand,
// e.g. a data-processing instruction with a register-specified shift:
// Rn/Rm on A/B, Rs (the shift amount) on C.
func applyRegInterlocks3(sched *scheduler.Scheduler, il *Interlocks, rab1, rab2, rc int) {
	ApplyPortAB(sched, il, rab1)
	ApplyPortAB(sched, il, rab2)
	ApplyPortC(sched, il, rc)
}
