package cpu

// Mode is one of the six ARM processor modes named in spec.md §3.
// User and System share one register bank; the rest each bank r13/r14
// (Fiq additionally banks r8-r12) plus a private SPSR.
type Mode uint8

const (
	ModeUser       Mode = 0x10
	ModeFIQ        Mode = 0x11
	ModeIRQ        Mode = 0x12
	ModeSupervisor Mode = 0x13
	ModeAbort      Mode = 0x17
	ModeUndefined  Mode = 0x1B
	ModeSystem     Mode = 0x1F
)

// CPSR flag bit positions.
const (
	flagN uint32 = 1 << 31
	flagZ uint32 = 1 << 30
	flagC uint32 = 1 << 29
	flagV uint32 = 1 << 28
	flagI uint32 = 1 << 7
	flagF uint32 = 1 << 6
	flagT uint32 = 1 << 5
)

// CPSR is the current/saved program status register: mode, Thumb
// flag, IRQ/FIQ-disable, and the NZCV condition flags.
type CPSR struct {
	bits uint32
}

// NewCPSR returns a CPSR reset into Supervisor mode, ARM state, both
// interrupt lines masked — the documented ARM7/ARM9 reset state.
func NewCPSR() CPSR {
	return CPSR{bits: uint32(ModeSupervisor) | flagI | flagF}
}

func (c CPSR) Mode() Mode  { return Mode(c.bits & 0x1F) }
func (c *CPSR) SetMode(m Mode) { c.bits = c.bits&^0x1F | uint32(m) }

func (c CPSR) Thumb() bool      { return c.bits&flagT != 0 }
func (c *CPSR) SetThumb(on bool) { c.setFlag(flagT, on) }

func (c CPSR) IRQDisabled() bool      { return c.bits&flagI != 0 }
func (c *CPSR) SetIRQDisabled(on bool) { c.setFlag(flagI, on) }

func (c CPSR) FIQDisabled() bool      { return c.bits&flagF != 0 }
func (c *CPSR) SetFIQDisabled(on bool) { c.setFlag(flagF, on) }

func (c CPSR) N() bool { return c.bits&flagN != 0 }
func (c CPSR) Z() bool { return c.bits&flagZ != 0 }
func (c CPSR) C() bool { return c.bits&flagC != 0 }
func (c CPSR) V() bool { return c.bits&flagV != 0 }

func (c *CPSR) SetN(on bool) { c.setFlag(flagN, on) }
func (c *CPSR) SetZ(on bool) { c.setFlag(flagZ, on) }
func (c *CPSR) SetC(on bool) { c.setFlag(flagC, on) }
func (c *CPSR) SetV(on bool) { c.setFlag(flagV, on) }

func (c *CPSR) setFlag(bit uint32, on bool) {
	if on {
		c.bits |= bit
	} else {
		c.bits &^= bit
	}
}

// Bits returns the raw 32-bit register value, e.g. for MRS.
func (c CPSR) Bits() uint32 { return c.bits }

// SetBits loads the raw 32-bit register value, e.g. for MSR or an
// exception-return CPSR restore.
func (c *CPSR) SetBits(v uint32) { c.bits = v }

// ConditionPasses evaluates one of the 16 ARM/Thumb condition codes
// against this CPSR's NZCV flags.
func (c CPSR) ConditionPasses(cond uint8) bool {
	n, z, cc, v := c.N(), c.Z(), c.C(), c.V()
	switch cond {
	case 0x0:
		return z
	case 0x1:
		return !z
	case 0x2:
		return cc
	case 0x3:
		return !cc
	case 0x4:
		return n
	case 0x5:
		return !n
	case 0x6:
		return v
	case 0x7:
		return !v
	case 0x8:
		return cc && !z
	case 0x9:
		return !cc || z
	case 0xA:
		return n == v
	case 0xB:
		return n != v
	case 0xC:
		return !z && n == v
	case 0xD:
		return z || n != v
	case 0xE:
		return true
	default: // 0xF: unconditional on ARMv5+ (used for BLX); treat as always-execute
		return true
	}
}
