package cpu

// Registers is the banked 16-register ARM file of spec.md §3: User and
// System share one bank; Fiq, Irq, Supervisor, Abort and Undefined
// each have a private r13/r14 (+SPSR), and Fiq additionally banks
// r8-r12. Grounded on the teacher's small value-type Register8/16
// (jeebie/cpu/registers.go) generalized from two 16-bit accumulator
// pairs to a banked 32-bit general file — the teacher's get/set-pair
// idiom is kept, just widened.
type Registers struct {
	r [16]uint32

	bankFIQ [7]uint32 // r8..r14, private to FIQ mode
	bankUsr [7]uint32 // r8..r14, shared by User/System, saved while in FIQ
	bankIRQ [2]uint32 // r13..r14
	bankSVC [2]uint32
	bankABT [2]uint32
	bankUND [2]uint32

	cpsr CPSR
	spsrFIQ, spsrIRQ, spsrSVC, spsrABT, spsrUND CPSR
}

// NewRegisters returns a zeroed register file with CPSR at its
// documented reset value.
func NewRegisters() Registers {
	return Registers{cpsr: NewCPSR()}
}

// CPSR returns the current program status register.
func (r *Registers) CPSR() *CPSR { return &r.cpsr }

// Get reads general register n (0-15) as currently banked.
func (r *Registers) Get(n int) uint32 { return r.r[n] }

// Set writes general register n (0-15) as currently banked.
func (r *Registers) Set(n int, v uint32) { r.r[n] = v }

// SPSR returns the saved program status register for the current
// mode, or nil in User/System mode (which has none). Callers must
// check for nil: reading SPSR outside an exception mode is the
// "unpredictable case" noted in spec.md §7.
func (r *Registers) SPSR() *CPSR {
	switch r.cpsr.Mode() {
	case ModeFIQ:
		return &r.spsrFIQ
	case ModeIRQ:
		return &r.spsrIRQ
	case ModeSupervisor:
		return &r.spsrSVC
	case ModeAbort:
		return &r.spsrABT
	case ModeUndefined:
		return &r.spsrUND
	default:
		return nil
	}
}

// SwitchMode banks out r8-r14 (and SPSR) for the current mode and
// banks in the target mode's shadow registers, then updates CPSR.Mode.
// This is the only place register banking happens; every exception
// entry/return and MSR-to-CPSR-mode-bits write routes through it.
func (r *Registers) SwitchMode(target Mode) {
	old := r.cpsr.Mode()
	if old == target {
		return
	}

	// Save outgoing mode's r8-r14 into its bank.
	switch old {
	case ModeFIQ:
		copy(r.bankFIQ[:], r.r[8:15])
	default:
		copy(r.bankUsr[0:5], r.r[8:13]) // r8-r12 always live in the User/System bank outside FIQ
		r.saveLowBank(old)
	}

	// Load incoming mode's r8-r14 from its bank.
	switch target {
	case ModeFIQ:
		copy(r.r[8:15], r.bankFIQ[:])
	default:
		copy(r.r[8:13], r.bankUsr[0:5])
		r.loadLowBank(target)
	}

	r.cpsr.SetMode(target)
}

// saveLowBank stashes r13/r14 for non-FIQ mode m into its private bank.
func (r *Registers) saveLowBank(m Mode) {
	switch m {
	case ModeUser, ModeSystem:
		r.bankUsr[5], r.bankUsr[6] = r.r[13], r.r[14]
	case ModeIRQ:
		r.bankIRQ[0], r.bankIRQ[1] = r.r[13], r.r[14]
	case ModeSupervisor:
		r.bankSVC[0], r.bankSVC[1] = r.r[13], r.r[14]
	case ModeAbort:
		r.bankABT[0], r.bankABT[1] = r.r[13], r.r[14]
	case ModeUndefined:
		r.bankUND[0], r.bankUND[1] = r.r[13], r.r[14]
	}
}

func (r *Registers) loadLowBank(m Mode) {
	switch m {
	case ModeUser, ModeSystem:
		r.r[13], r.r[14] = r.bankUsr[5], r.bankUsr[6]
	case ModeIRQ:
		r.r[13], r.r[14] = r.bankIRQ[0], r.bankIRQ[1]
	case ModeSupervisor:
		r.r[13], r.r[14] = r.bankSVC[0], r.bankSVC[1]
	case ModeAbort:
		r.r[13], r.r[14] = r.bankABT[0], r.bankABT[1]
	case ModeUndefined:
		r.r[13], r.r[14] = r.bankUND[0], r.bankUND[1]
	}
}
