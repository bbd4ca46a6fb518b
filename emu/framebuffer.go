package emu

import "github.com/nds-core/emu/addr"

// BottomScreenWidth/Height match the real hardware's 256x192 LCD; the
// 2D composition engine that turns VRAM + OAM into real pixels is out
// of scope, so this module exposes only the raw bottom
// engine BG bank bytes as a grayscale raster — enough to exercise the
// render package's terminal output without inventing a compositor.
const (
	BottomScreenWidth  = 256
	BottomScreenHeight = 192
)

// BottomScreenByte returns the raw VRAM byte backing engine B's BG bank
// at (x, y), used by render.TerminalRenderer as a stand-in pixel value.
func (m *Machine) BottomScreenByte(x, y int) byte {
	offset := uint32(y*BottomScreenWidth + x)
	return m.vram.Read(addr.UsageBBG, offset)
}
