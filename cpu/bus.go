package cpu

// Bus is the narrow memory-access surface a CPU core needs: width-specific read/write, each reporting the
// wait-state count the caller adds to the scheduler. emu.Machine
// implements this by delegating to its real per-CPU region dispatch.
type Bus interface {
	Read8(address uint32) (value uint8, cycles uint32)
	Read16(address uint32) (value uint16, cycles uint32)
	Read32(address uint32) (value uint32, cycles uint32)
	Write8(address uint32, value uint8) (cycles uint32)
	Write16(address uint32, value uint16) (cycles uint32)
	Write32(address uint32, value uint32) (cycles uint32)

	// FetchCode32/FetchCode16 are code-side fetches, separated from
	// data accesses because the wait-state table and (on ARM9) the
	// TCM instruction scratchpad give code fetches a different timing
	// class.
	FetchCode32(address uint32) (value uint32, cycles uint32)
	FetchCode16(address uint32) (value uint16, cycles uint32)
}

// IRQSource is the minimal interrupt-controller surface the pipeline
// consults between instructions.
type IRQSource interface {
	Pending(cpsrIRQDisabled bool) bool
}
