package cpu

import (
	"log/slog"

	"github.com/nds-core/emu/bit"
)

// thumbHandler executes one Thumb instruction.
type thumbHandler func(*Core, uint16)

// thumbTable is indexed by bits[15:6] (10 bits), enough to distinguish
// every one of the 19 Thumb instruction formats without needing the
// register fields in bits[5:0]. Same table-of-class-handlers idiom as
// armTable.
var thumbTable [1024]thumbHandler

func init() {
	for i := range thumbTable {
		thumbTable[i] = classifyThumb(uint16(i))
	}
}

func classifyThumb(hi10 uint16) thumbHandler {
	b15_8 := hi10 >> 2 // bits 15:8 of the full instruction
	switch {
	case b15_8&0xF8 == 0x18: // 000 11 xx: add/subtract (format 2)
		return thumbAddSub
	case b15_8&0xE0 == 0x00: // 000 xx: move shifted register (format 1)
		return thumbShifted
	case b15_8&0xE0 == 0x20: // 001 xx: move/compare/add/subtract immediate (format 3)
		return thumbImmediateOp
	case b15_8&0xFC == 0x40: // 0100 00: ALU operations (format 4)
		return thumbALU
	case b15_8&0xFC == 0x44: // 0100 01: hi register ops / BX (format 5)
		return thumbHiRegBX
	case b15_8&0xF8 == 0x48: // 0100 1: PC-relative load (format 6)
		return thumbPCRelLoad
	case b15_8&0xF2 == 0x50: // 0101 x x0: load/store with register offset (format 7)
		return thumbLoadStoreReg
	case b15_8&0xF2 == 0x52: // 0101 x x1: load/store sign-extended (format 8)
		return thumbLoadStoreSignExt
	case b15_8&0xE0 == 0x60: // 011 xx: load/store with immediate offset (format 9)
		return thumbLoadStoreImm
	case b15_8&0xF0 == 0x80: // 1000: load/store halfword (format 10)
		return thumbLoadStoreHalf
	case b15_8&0xF0 == 0x90: // 1001: SP-relative load/store (format 11)
		return thumbSPRelLoadStore
	case b15_8&0xF0 == 0xA0: // 1010: load address (format 12)
		return thumbLoadAddress
	case b15_8&0xFF == 0xB0: // 1011 0000: add offset to SP (format 13)
		return thumbAddSP
	case b15_8&0xF6 == 0xB4: // 1011 x10: push/pop (format 14)
		return thumbPushPop
	case b15_8&0xF0 == 0xC0: // 1100: multiple load/store (format 15)
		return thumbMultipleLoadStore
	case b15_8&0xF0 == 0xD0 && b15_8&0xFF != 0xDF: // 1101, not SWI: conditional branch (format 16)
		return thumbCondBranch
	case b15_8&0xFF == 0xDF: // 1101 1111: SWI (format 17)
		return thumbSWI
	case b15_8&0xF8 == 0xE0: // 11100: unconditional branch (format 18)
		return thumbBranch
	case b15_8&0xF0 == 0xF0: // 1111: long branch with link (format 19)
		return thumbBranchLink
	default:
		return thumbUndefined
	}
}

func (c *Core) execThumb(instr uint16) {
	thumbTable[instr>>6](c, instr)
}

func signExtend8(v uint32) uint32 {
	if v&0x80 != 0 {
		return v | 0xFFFF_FF00
	}
	return v
}

// thumbShifted: format 1, LSL/LSR/ASR Rd, Rs, #imm5.
func thumbShifted(c *Core, instr uint16) {
	op := (instr >> 11) & 0x3
	amount := uint32((instr >> 6) & 0x1F)
	rs := int((instr >> 3) & 0x7)
	rd := int(instr & 0x7)

	var st shiftType
	switch op {
	case 0:
		st = shiftLSL
	case 1:
		st = shiftLSR
	case 2:
		st = shiftASR
	}
	result, carry := barrelShift(c.regs.Get(rs), amount, st, false, c.regs.CPSR().C())
	c.regs.Set(rd, result)
	n, z := nzFromResult(result)
	c.regs.CPSR().SetN(n)
	c.regs.CPSR().SetZ(z)
	c.regs.CPSR().SetC(carry)
	c.tick(1)
}

// thumbAddSub: format 2, ADD/SUB Rd, Rs, Rn|#imm3.
func thumbAddSub(c *Core, instr uint16) {
	immediate := (instr>>10)&1 != 0
	sub := (instr>>9)&1 != 0
	rnOrImm := uint32((instr >> 6) & 0x7)
	rs := int((instr >> 3) & 0x7)
	rd := int(instr & 0x7)

	var operand uint32
	if immediate {
		operand = rnOrImm
	} else {
		operand = c.regs.Get(int(rnOrImm))
	}

	var result uint32
	var carry, overflow bool
	if sub {
		result, carry, overflow = subWithFlags(c.regs.Get(rs), operand, true)
	} else {
		result, carry, overflow = addWithFlags(c.regs.Get(rs), operand, false)
	}
	c.regs.Set(rd, result)
	n, z := nzFromResult(result)
	c.regs.CPSR().SetN(n)
	c.regs.CPSR().SetZ(z)
	c.regs.CPSR().SetC(carry)
	c.regs.CPSR().SetV(overflow)
	c.tick(1)
}

// thumbImmediateOp: format 3, MOV/CMP/ADD/SUB Rd, #imm8.
func thumbImmediateOp(c *Core, instr uint16) {
	op := (instr >> 11) & 0x3
	rd := int((instr >> 8) & 0x7)
	imm := uint32(instr & 0xFF)

	var result uint32
	var carry, overflow bool
	arith := true
	switch op {
	case 0: // MOV
		result = imm
		arith = false
	case 1: // CMP
		result, carry, overflow = subWithFlags(c.regs.Get(rd), imm, true)
	case 2: // ADD
		result, carry, overflow = addWithFlags(c.regs.Get(rd), imm, false)
	case 3: // SUB
		result, carry, overflow = subWithFlags(c.regs.Get(rd), imm, true)
	}
	if op != 1 {
		c.regs.Set(rd, result)
	}
	n, z := nzFromResult(result)
	c.regs.CPSR().SetN(n)
	c.regs.CPSR().SetZ(z)
	if arith {
		c.regs.CPSR().SetC(carry)
		c.regs.CPSR().SetV(overflow)
	}
	c.tick(1)
}

// thumbALU: format 4, two-register ALU operations.
func thumbALU(c *Core, instr uint16) {
	op := (instr >> 6) & 0xF
	rs := int((instr >> 3) & 0x7)
	rd := int(instr & 0x7)
	rdVal := c.regs.Get(rd)
	rsVal := c.regs.Get(rs)
	carryIn := c.regs.CPSR().C()

	var result uint32
	var carry, overflow bool
	write := true
	setC, setV := false, false

	switch op {
	case 0x0: // AND
		result = rdVal & rsVal
	case 0x1: // EOR
		result = rdVal ^ rsVal
	case 0x2: // LSL
		result, carry = barrelShift(rdVal, rsVal&0xFF, shiftLSL, true, carryIn)
		setC = true
		c.tick(1)
	case 0x3: // LSR
		result, carry = barrelShift(rdVal, rsVal&0xFF, shiftLSR, true, carryIn)
		setC = true
		c.tick(1)
	case 0x4: // ASR
		result, carry = barrelShift(rdVal, rsVal&0xFF, shiftASR, true, carryIn)
		setC = true
		c.tick(1)
	case 0x5: // ADC
		result, carry, overflow = addWithFlags(rdVal, rsVal, carryIn)
		setC, setV = true, true
	case 0x6: // SBC
		result, carry, overflow = subWithFlags(rdVal, rsVal, carryIn)
		setC, setV = true, true
	case 0x7: // ROR
		result, carry = barrelShift(rdVal, rsVal&0xFF, shiftROR, true, carryIn)
		setC = true
		c.tick(1)
	case 0x8: // TST
		result = rdVal & rsVal
		write = false
	case 0x9: // NEG
		result, carry, overflow = subWithFlags(0, rsVal, true)
		setC, setV = true, true
	case 0xA: // CMP
		result, carry, overflow = subWithFlags(rdVal, rsVal, true)
		write, setC, setV = false, true, true
	case 0xB: // CMN
		result, carry, overflow = addWithFlags(rdVal, rsVal, false)
		write, setC, setV = false, true, true
	case 0xC: // ORR
		result = rdVal | rsVal
	case 0xD: // MUL
		result = rdVal * rsVal
		c.tick(mulCycles(rsVal))
	case 0xE: // BIC
		result = rdVal &^ rsVal
	case 0xF: // MVN
		result = ^rsVal
	}

	if write {
		c.regs.Set(rd, result)
	}
	n, z := nzFromResult(result)
	c.regs.CPSR().SetN(n)
	c.regs.CPSR().SetZ(z)
	if setC {
		c.regs.CPSR().SetC(carry)
	}
	if setV {
		c.regs.CPSR().SetV(overflow)
	}
	c.tick(1)
}

func (c *Core) tickN(n int) { c.tick(uint32(n)) }

// thumbHiRegBX: format 5, hi-register operand ADD/CMP/MOV, and BX (op 3
// branches without linking; BLX is not decoded here).
func thumbHiRegBX(c *Core, instr uint16) {
	op := (instr >> 8) & 0x3
	hi1 := (instr>>7)&1 != 0
	hi2 := (instr>>6)&1 != 0
	rs := int((instr >> 3) & 0x7)
	if hi2 {
		rs += 8
	}
	rd := int(instr & 0x7)
	if hi1 {
		rd += 8
	}

	switch op {
	case 0: // ADD
		c.writeReg(rd, c.regs.Get(rd)+c.regs.Get(rs))
	case 1: // CMP
		result, carry, overflow := subWithFlags(c.regs.Get(rd), c.regs.Get(rs), true)
		n, z := nzFromResult(result)
		c.regs.CPSR().SetN(n)
		c.regs.CPSR().SetZ(z)
		c.regs.CPSR().SetC(carry)
		c.regs.CPSR().SetV(overflow)
	case 2: // MOV
		c.writeReg(rd, c.regs.Get(rs))
	case 3: // BX
		c.Branch(c.regs.Get(rs), StateR15Bit0)
	}
	c.tick(1)
}

// thumbPCRelLoad: format 6, LDR Rd, [PC, #imm8*4].
func thumbPCRelLoad(c *Core, instr uint16) {
	rd := int((instr >> 8) & 0x7)
	imm := uint32(instr&0xFF) * 4
	addr := (c.PC() &^ 3) + imm
	v, cyc := c.bus.Read32(addr)
	c.tick(cyc)
	c.regs.Set(rd, v)
	c.tick(1)
}

// thumbLoadStoreReg: format 7, LDR/STR(B) Rd, [Rb, Ro].
func thumbLoadStoreReg(c *Core, instr uint16) {
	load := (instr>>11)&1 != 0
	byteAccess := (instr>>10)&1 != 0
	ro := int((instr >> 6) & 0x7)
	rb := int((instr >> 3) & 0x7)
	rd := int(instr & 0x7)

	addr := c.regs.Get(rb) + c.regs.Get(ro)
	if load {
		if byteAccess {
			v, cyc := c.bus.Read8(addr)
			c.tick(cyc)
			c.regs.Set(rd, uint32(v))
		} else {
			v, cyc := c.bus.Read32(addr)
			c.tick(cyc)
			c.regs.Set(rd, rotateMisaligned(v, addr))
		}
		c.tick(1)
	} else {
		if byteAccess {
			cyc := c.bus.Write8(addr, uint8(c.regs.Get(rd)))
			c.tick(cyc)
		} else {
			cyc := c.bus.Write32(addr, c.regs.Get(rd))
			c.tick(cyc)
		}
	}
	c.tick(1)
}

// thumbLoadStoreSignExt: format 8, LDRH/LDSB/LDSH/STRH Rd, [Rb, Ro].
func thumbLoadStoreSignExt(c *Core, instr uint16) {
	hBit := (instr>>11)&1 != 0
	signExt := (instr>>10)&1 != 0
	ro := int((instr >> 6) & 0x7)
	rb := int((instr >> 3) & 0x7)
	rd := int(instr & 0x7)

	addr := c.regs.Get(rb) + c.regs.Get(ro)
	switch {
	case !signExt && !hBit: // STRH
		cyc := c.bus.Write16(addr, uint16(c.regs.Get(rd)))
		c.tick(cyc)
	case !signExt && hBit: // LDRH
		v, cyc := c.bus.Read16(addr)
		c.tick(cyc)
		c.regs.Set(rd, uint32(v))
		c.tick(1)
	case signExt && !hBit: // LDSB
		v, cyc := c.bus.Read8(addr)
		c.tick(cyc)
		c.regs.Set(rd, signExtend8(uint32(v)))
		c.tick(1)
	case signExt && hBit: // LDSH
		v, cyc := c.bus.Read16(addr)
		c.tick(cyc)
		c.regs.Set(rd, uint32(int32(int16(v))))
		c.tick(1)
	}
	c.tick(1)
}

// thumbLoadStoreImm: format 9, LDR/STR(B) Rd, [Rb, #imm5].
func thumbLoadStoreImm(c *Core, instr uint16) {
	byteAccess := (instr>>12)&1 != 0
	load := (instr>>11)&1 != 0
	imm := uint32((instr >> 6) & 0x1F)
	rb := int((instr >> 3) & 0x7)
	rd := int(instr & 0x7)
	if !byteAccess {
		imm *= 4
	}

	addr := c.regs.Get(rb) + imm
	if load {
		if byteAccess {
			v, cyc := c.bus.Read8(addr)
			c.tick(cyc)
			c.regs.Set(rd, uint32(v))
		} else {
			v, cyc := c.bus.Read32(addr)
			c.tick(cyc)
			c.regs.Set(rd, rotateMisaligned(v, addr))
		}
		c.tick(1)
	} else {
		if byteAccess {
			cyc := c.bus.Write8(addr, uint8(c.regs.Get(rd)))
			c.tick(cyc)
		} else {
			cyc := c.bus.Write32(addr, c.regs.Get(rd))
			c.tick(cyc)
		}
	}
	c.tick(1)
}

// thumbLoadStoreHalf: format 10, LDRH/STRH Rd, [Rb, #imm5*2].
func thumbLoadStoreHalf(c *Core, instr uint16) {
	load := (instr>>11)&1 != 0
	imm := uint32((instr>>6)&0x1F) * 2
	rb := int((instr >> 3) & 0x7)
	rd := int(instr & 0x7)

	addr := c.regs.Get(rb) + imm
	if load {
		v, cyc := c.bus.Read16(addr)
		c.tick(cyc)
		c.regs.Set(rd, uint32(v))
		c.tick(1)
	} else {
		cyc := c.bus.Write16(addr, uint16(c.regs.Get(rd)))
		c.tick(cyc)
	}
	c.tick(1)
}

// thumbSPRelLoadStore: format 11, LDR/STR Rd, [SP, #imm8*4].
func thumbSPRelLoadStore(c *Core, instr uint16) {
	load := (instr>>11)&1 != 0
	rd := int((instr >> 8) & 0x7)
	imm := uint32(instr&0xFF) * 4

	addr := c.regs.Get(13) + imm
	if load {
		v, cyc := c.bus.Read32(addr)
		c.tick(cyc)
		c.regs.Set(rd, rotateMisaligned(v, addr))
		c.tick(1)
	} else {
		cyc := c.bus.Write32(addr, c.regs.Get(rd))
		c.tick(cyc)
	}
	c.tick(1)
}

// thumbLoadAddress: format 12, ADD Rd, PC|SP, #imm8*4.
func thumbLoadAddress(c *Core, instr uint16) {
	usesSP := (instr>>11)&1 != 0
	rd := int((instr >> 8) & 0x7)
	imm := uint32(instr&0xFF) * 4

	var base uint32
	if usesSP {
		base = c.regs.Get(13)
	} else {
		base = c.PC() &^ 3
	}
	c.regs.Set(rd, base+imm)
	c.tick(1)
}

// thumbAddSP: format 13, ADD SP, #+/-imm7*4.
func thumbAddSP(c *Core, instr uint16) {
	negative := (instr>>7)&1 != 0
	imm := uint32(instr&0x7F) * 4
	if negative {
		c.regs.Set(13, c.regs.Get(13)-imm)
	} else {
		c.regs.Set(13, c.regs.Get(13)+imm)
	}
	c.tick(1)
}

// thumbPushPop: format 14, PUSH/POP {reglist}[,LR|PC].
func thumbPushPop(c *Core, instr uint16) {
	pop := (instr>>11)&1 != 0
	includeLRorPC := (instr>>8)&1 != 0
	regList := uint8(instr & 0xFF)

	count := popcount16(uint16(regList))
	if includeLRorPC {
		count++
	}

	sp := c.regs.Get(13)
	if pop {
		addr := sp
		for r := 0; r < 8; r++ {
			if regList&(1<<uint(r)) == 0 {
				continue
			}
			v, cyc := c.bus.Read32(addr)
			c.tick(cyc)
			c.regs.Set(r, v)
			addr += 4
		}
		if includeLRorPC {
			v, cyc := c.bus.Read32(addr)
			c.tick(cyc)
			c.writeReg(15, v&^1)
			addr += 4
		}
		c.regs.Set(13, addr)
		c.tick(1)
	} else {
		addr := sp - uint32(count)*4
		c.regs.Set(13, addr)
		for r := 0; r < 8; r++ {
			if regList&(1<<uint(r)) == 0 {
				continue
			}
			cyc := c.bus.Write32(addr, c.regs.Get(r))
			c.tick(cyc)
			addr += 4
		}
		if includeLRorPC {
			cyc := c.bus.Write32(addr, c.regs.Get(14))
			c.tick(cyc)
		}
	}
	c.tick(1)
}

// thumbMultipleLoadStore: format 15, LDMIA/STMIA Rb!, {reglist}.
func thumbMultipleLoadStore(c *Core, instr uint16) {
	load := (instr>>11)&1 != 0
	rb := int((instr >> 8) & 0x7)
	regList := uint8(instr & 0xFF)

	addr := c.regs.Get(rb)
	for r := 0; r < 8; r++ {
		if regList&(1<<uint(r)) == 0 {
			continue
		}
		if load {
			v, cyc := c.bus.Read32(addr)
			c.tick(cyc)
			c.regs.Set(r, v)
		} else {
			cyc := c.bus.Write32(addr, c.regs.Get(r))
			c.tick(cyc)
		}
		addr += 4
	}
	c.regs.Set(rb, addr)
	c.tick(1)
}

// thumbCondBranch: format 16, conditional branch with 8-bit offset.
func thumbCondBranch(c *Core, instr uint16) {
	cond := uint8((instr >> 8) & 0xF)
	if !c.regs.CPSR().ConditionPasses(cond) {
		c.tick(1)
		return
	}
	offset := int32(int8(instr & 0xFF)) * 2
	c.Branch(uint32(int32(c.PC())+offset), StateThumb)
}

// thumbSWI: format 17.
func thumbSWI(c *Core, instr uint16) {
	_ = instr
	c.TakeException(ExceptionSWI)
}

// thumbBranch: format 18, unconditional branch with 11-bit offset.
func thumbBranch(c *Core, instr uint16) {
	offset := bit.SignExtend(uint32(instr&0x7FF), 11) * 2
	c.Branch(uint32(int32(c.PC())+offset), StateThumb)
}

// thumbBranchLink: format 19, the two-halfword BL/BLX sequence. The
// first halfword (H=0) stashes PC+(offsetHi<<12) into LR; the second
// (H=1) computes the final target from LR and sets LR to the return
// address with bit 0 set.
func thumbBranchLink(c *Core, instr uint16) {
	low := (instr>>11)&1 != 0
	offset := uint32(instr & 0x7FF)

	if !low {
		hi := bit.SignExtend(offset, 11) << 12
		c.regs.Set(14, uint32(int32(c.PC())+hi))
		c.tick(1)
		return
	}

	target := c.regs.Get(14) + offset*2
	retAddr := (c.curInstrAddr() + 2) | 1
	c.regs.Set(14, retAddr)
	c.Branch(target, StateThumb)
}

func thumbUndefined(c *Core, instr uint16) {
	slog.Warn("cpu: undefined Thumb instruction", "instr", instr)
	c.TakeException(ExceptionUndefined)
}
