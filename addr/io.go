// Package addr names the I/O register addresses and top-byte region
// boundaries used by the bus dispatcher, vram mapper, timers, DMA and
// IPC units. Mirrors the style of the teacher's addr package: plain
// typed constants, grouped by subsystem, no behavior.
package addr

// Top byte of the 32-bit address space, used by bus region dispatch.
const (
	RegionMainRAM  = 0x02
	RegionSharedWRAM = 0x03
	RegionIO       = 0x04
	RegionPalette  = 0x05
	RegionVRAM     = 0x06
	RegionOAM      = 0x07
	RegionGBAROMLo = 0x08
	RegionGBAROMHi = 0x09
	RegionGBASRAM  = 0x0A
	RegionBIOSHigh = 0xFF
)

// Interrupt request bit positions, shared by ARM7 and ARM9 (the bit
// layout is identical; which bits are wired to real hardware differs,
// enforced by irq.Controller's enabled mask rather than here).
type Interrupt uint8

const (
	IRQVBlank Interrupt = iota
	IRQHBlank
	IRQVCount
	IRQTimer0
	IRQTimer1
	IRQTimer2
	IRQTimer3
	IRQSerial
	IRQDMA0
	IRQDMA1
	IRQDMA2
	IRQDMA3
	IRQKeypad
	IRQSlotGBA
	_reserved14
	_reserved15
	IRQIPCSync
	IRQIPCSendFIFO
	IRQIPCRecvFIFO
	IRQDSSlotComplete
	_reserved20
	IRQGXFIFO
)

// I/O register offsets within the 0x04000000 page, common to both CPUs
// unless noted. Values match the real hardware map; this module only
// needs the subset the core components touch.
const (
	DISPCNTA  uint32 = 0x0400_0000
	DISPCNTB  uint32 = 0x0400_1000
	VRAMCNT_A uint32 = 0x0400_0240
	VRAMCNT_B uint32 = 0x0400_0241
	VRAMCNT_C uint32 = 0x0400_0242
	VRAMCNT_D uint32 = 0x0400_0243
	VRAMCNT_E uint32 = 0x0400_0244
	VRAMCNT_F uint32 = 0x0400_0245
	VRAMCNT_G uint32 = 0x0400_0246
	WRAMCNT   uint32 = 0x0400_0247
	VRAMCNT_H uint32 = 0x0400_0248
	VRAMCNT_I uint32 = 0x0400_0249

	IPCSYNC    uint32 = 0x0400_0180
	IPCFIFOCNT uint32 = 0x0400_0184
	IPCFIFOSEND uint32 = 0x0400_0188
	IPCFIFORECV uint32 = 0x0410_0000

	ROMCTRL     uint32 = 0x0400_01A4
	AUXSPICNT   uint32 = 0x0400_01A0
	AUXSPIDATA  uint32 = 0x0400_01A2
	DSSlotCmd   uint32 = 0x0400_01A8
	DSSlotData  uint32 = 0x0410_0010

	IME uint32 = 0x0400_0208
	IE  uint32 = 0x0400_0210
	IF  uint32 = 0x0400_0214

	TM0CNT_L uint32 = 0x0400_0100
	TM0CNT_H uint32 = 0x0400_0102
	TM1CNT_L uint32 = 0x0400_0104
	TM1CNT_H uint32 = 0x0400_0106
	TM2CNT_L uint32 = 0x0400_0108
	TM2CNT_H uint32 = 0x0400_010A
	TM3CNT_L uint32 = 0x0400_010C
	TM3CNT_H uint32 = 0x0400_010E

	DMA0SAD uint32 = 0x0400_00B0
	DMA0DAD uint32 = 0x0400_00B4
	DMA0CNT uint32 = 0x0400_00B8
	DMAChannelStride uint32 = 0x0C
)

// VRAMBank enumerates the nine physical banks A..I.
type VRAMBank uint8

const (
	BankA VRAMBank = iota
	BankB
	BankC
	BankD
	BankE
	BankF
	BankG
	BankH
	BankI
	BankCount
)

// BankSizeKiB gives each bank's size.
var BankSizeKiB = [BankCount]int{128, 128, 128, 128, 64, 16, 16, 32, 16}

// Usage enumerates the seven+ usage windows a bank control register can route to.
type Usage uint8

const (
	UsageABG Usage = iota
	UsageAOBJ
	UsageBBG
	UsageBOBJ
	UsageABGExtPal
	UsageAOBJExtPal
	UsageBBGExtPal
	UsageBOBJExtPal
	UsageTexture
	UsageTexPal
	UsageARM7
	UsageLCDC
	UsageCount
)
