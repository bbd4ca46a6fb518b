// Package ipc implements the inter-processor FIFO and SYNC register
// pair of spec.md §4.7: two independent 16-word circular buffers (one
// per direction) plus a 4-bit-nibble handshake register, with IRQs on
// empty/full transitions.
//
// Grounded on the teacher's jeebie/serial package for the shape of a
// small interrupt-raising peripheral with a functional-options
// constructor (serial.LogSink/serial.LogSinkOption), generalized from
// a single byte-at-a-time link port to a pair of word FIFOs.
package ipc

import (
	"log/slog"

	"github.com/nds-core/emu/irq"
)

const fifoDepth = 16

// fifo is a 16-word circular buffer shared by both directions' logic.
type fifo struct {
	buf   [fifoDepth]uint32
	head  int
	count int
}

func (f *fifo) full() bool  { return f.count == fifoDepth }
func (f *fifo) empty() bool { return f.count == 0 }

func (f *fifo) push(v uint32) bool {
	if f.full() {
		return false
	}
	f.buf[(f.head+f.count)%fifoDepth] = v
	f.count++
	return true
}

func (f *fifo) pop() (uint32, bool) {
	if f.empty() {
		return 0, false
	}
	v := f.buf[f.head]
	f.head = (f.head + 1) % fifoDepth
	f.count--
	return v, true
}

func (f *fifo) peek() uint32 {
	if f.empty() {
		return 0
	}
	return f.buf[f.head]
}

func (f *fifo) clear() { *f = fifo{} }

// Option configures a Link at construction time.
type Option func(*Link)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(link *Link) { link.logger = l }
}

// Link is one CPU's view of the IPC subsystem: its own send FIFO, the
// peer's FIFO read as its receive side, the SYNC nibble exchange, and
// the FIFOCNT control bits (enable, send-empty-irq, recv-not-empty-irq,
// error-on-empty-read).
type Link struct {
	logger *slog.Logger

	send *fifo // this CPU's outgoing FIFO
	recv *fifo // peer's outgoing FIFO, i.e. this CPU's incoming

	irqCtl      *irq.Controller
	sendIRQLine irq.Name
	recvIRQLine irq.Name

	enabled        bool
	sendEmptyIRQ   bool
	recvNotEmptyIRQ bool
	errorFlag      bool

	// SYNC register: this side's output nibble, the peer's visible
	// input nibble, and whether a remote-IRQ-on-sync is enabled.
	outputNibble uint8
	peer         *Link
	irqOnSync    bool
}

// NewPair builds the two directions of a link, cross-wiring each
// side's send FIFO as the other's recv FIFO.
func NewPair(ctl7, ctl9 *irq.Controller, opts ...Option) (arm7, arm9 *Link) {
	fifo7to9 := &fifo{}
	fifo9to7 := &fifo{}

	arm7 = &Link{logger: slog.Default(), send: fifo7to9, recv: fifo9to7, irqCtl: ctl7, sendIRQLine: irq.Name(17), recvIRQLine: irq.Name(18)}
	arm9 = &Link{logger: slog.Default(), send: fifo9to7, recv: fifo7to9, irqCtl: ctl9, sendIRQLine: irq.Name(17), recvIRQLine: irq.Name(18)}
	arm7.peer = arm9
	arm9.peer = arm7

	for _, o := range opts {
		o(arm7)
		o(arm9)
	}
	return arm7, arm9
}

// Send pushes a word onto this side's outgoing FIFO, raising the
// peer's recv-not-empty IRQ on the empty->non-empty transition.
func (l *Link) Send(value uint32) {
	if !l.enabled {
		return
	}
	wasEmpty := l.send.empty()
	if !l.send.push(value) {
		l.logger.Debug("ipc: send fifo full, write dropped")
		return
	}
	if wasEmpty && l.peer.recvNotEmptyIRQ {
		l.peer.irqCtl.Request(l.peer.recvIRQLine)
	}
}

// Recv pops a word from this side's incoming FIFO. Reading while empty
// sets the error flag and returns the last successfully read word
// (real hardware behavior, per spec.md E4), raising the peer's
// send-empty IRQ on the non-empty->empty transition.
func (l *Link) Recv() uint32 {
	if l.recv.empty() {
		l.errorFlag = true
		// pop leaves the slot just before head holding the most recently
		// popped word (zero if nothing was popped since the last clear).
		return l.recv.buf[(l.recv.head+fifoDepth-1)%fifoDepth]
	}
	v, _ := l.recv.pop()
	if l.recv.empty() && l.peer.sendEmptyIRQ {
		l.peer.irqCtl.Request(l.peer.sendIRQLine)
	}
	return v
}

// PeekRecv returns the front of the incoming FIFO without popping it,
// touching the error flag, or raising the peer's send-empty IRQ — the
// non-mutating read a Debug bus access requires.
func (l *Link) PeekRecv() uint32 {
	return l.recv.peek()
}

// WriteFIFOCNT applies the FIFOCNT control bits. Writing the clear bit
// (bit 3 on the send side in the real register) empties this side's
// send FIFO and clears the error flag, matching the documented
// hardware behavior.
func (l *Link) WriteFIFOCNT(enabled, sendEmptyIRQ, recvNotEmptyIRQ, clearSend bool) {
	l.enabled = enabled
	l.sendEmptyIRQ = sendEmptyIRQ
	l.recvNotEmptyIRQ = recvNotEmptyIRQ
	if clearSend {
		l.send.clear()
		l.errorFlag = false
	}
}

// ReadFIFOCNT reconstructs the status bits a real read of IPCFIFOCNT
// exposes: enable, both IRQ-enable bits, the error flag, and the
// send/recv full/empty bits.
func (l *Link) ReadFIFOCNT() (enabled, sendEmptyIRQ, recvNotEmptyIRQ, errorFlag, sendEmpty, sendFull, recvEmpty, recvFull bool) {
	return l.enabled, l.sendEmptyIRQ, l.recvNotEmptyIRQ, l.errorFlag,
		l.send.empty(), l.send.full(), l.recv.empty(), l.recv.full()
}

// WriteSync sets this side's 4-bit output nibble and optionally raises
// the peer's IPCSync IRQ immediately.
func (l *Link) WriteSync(outputNibble uint8, irqOnSync bool, triggerPeerIRQ bool) {
	l.outputNibble = outputNibble & 0xF
	l.irqOnSync = irqOnSync
	if triggerPeerIRQ && l.peer.irqOnSync {
		l.peer.irqCtl.Request(irq.Name(16))
	}
}

// ReadSync returns this side's own output nibble and the peer's
// visible input nibble, as IPCSYNC packs both.
func (l *Link) ReadSync() (myOutput, peerInput uint8) {
	return l.outputNibble, l.peer.outputNibble
}
