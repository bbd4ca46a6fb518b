package bus

// Access distinguishes a CPU-pipeline bus access from a debug
// inspection, per the IS_DEBUG access type: a Debug read must not
// perturb emulator-visible state (no IRQ side effects, no FIFO pops,
// no scheduler advancement) and a Debug write is rejected outright.
// DESIGN NOTES §9 allows either a monomorphized generic or a plain
// runtime branch for this kind of flag; Go's generics can't
// parameterize over a bool value, so this is the plain-branch form —
// every dispatch call takes an Access and switches on it once.
type Access bool

const (
	Live  Access = false
	Debug Access = true
)
