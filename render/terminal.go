// Package render implements the terminal-based host-loop exerciser:
// not a presentation-layer deliverable, just enough to drive RunFrame
// once per tick and show something on screen, mirroring the teacher's
// root-package TerminalRenderer idiom (main.go) rather than inventing
// a windowing layer that is out of scope here.
package render

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/nds-core/emu/addr"
	"github.com/nds-core/emu/emu"
)

const (
	width  = emu.BottomScreenWidth
	height = emu.BottomScreenHeight

	// Each framebuffer pixel maps to one terminal cell; no aspect-ratio
	// correction is applied (both scale factors are 1).
	scaleX = 1
	scaleY = 1

	frameTime = time.Second / 60
)

var shadeChars = []rune{'█', '▓', '▒', '░', ' '}

// TerminalRenderer drives one Host's frames and paints the bottom
// screen's raw VRAM bytes as shaded terminal cells; the top screen is
// summarized as a one-line status bar, since a half-block terminal
// can't usefully show two LCDs at once.
type TerminalRenderer struct {
	screen  tcell.Screen
	host    *emu.Host
	machine *emu.Machine
	running bool
}

// New builds a TerminalRenderer over host/machine, initializing the
// terminal screen.
func New(host *emu.Host, machine *emu.Machine) (*TerminalRenderer, error) {
	screen, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}
	if err := screen.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize terminal: %w", err)
	}

	return &TerminalRenderer{
		screen:  screen,
		host:    host,
		machine: machine,
		running: true,
	}, nil
}

// Run drives the render loop until Escape is pressed or the process
// receives SIGINT/SIGTERM.
func (t *TerminalRenderer) Run() error {
	defer func() {
		slog.Info("finishing terminal renderer")
		t.screen.Fini()
	}()

	t.screen.SetStyle(tcell.StyleDefault.
		Background(tcell.ColorBlack).
		Foreground(tcell.ColorWhite))
	t.screen.Clear()

	go t.handleInput()

	ticker := time.NewTicker(frameTime)
	defer ticker.Stop()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	for t.running {
		select {
		case <-ticker.C:
			t.host.RunFrame()
			t.render()
			t.screen.Show()
		case <-signals:
			t.running = false
			slog.Info("received signal to stop")
			return nil
		}
	}

	return nil
}

func (t *TerminalRenderer) handleInput() {
	for t.running {
		ev := t.screen.PollEvent()
		switch ev := ev.(type) {
		case *tcell.EventKey:
			if ev.Key() == tcell.KeyEscape {
				t.running = false
				return
			}
		case *tcell.EventResize:
			t.screen.Sync()
		}
	}
}

func (t *TerminalRenderer) render() {
	t.screen.Clear()

	statusStyle := tcell.StyleDefault.Foreground(tcell.ColorYellow)
	// ARM9's IME/IF, read through the Debug access path so the status
	// line never perturbs interrupt or FIFO state (a live read of
	// IPCFIFORECV would pop it).
	ime := t.machine.DebugRead32(true, addr.IME)
	ifReg := t.machine.DebugRead32(true, addr.IF)
	status := fmt.Sprintf("top screen: not rendered (3D rasterizer is an external sink, out of scope)  ARM9 IME=%d IF=%#08x", ime, ifReg)
	for i, r := range status {
		t.screen.SetContent(i, 0, r, nil, statusStyle)
	}

	style := tcell.StyleDefault.Foreground(tcell.ColorWhite)
	for y := 0; y < height; y += scaleY {
		for x := 0; x < width; x += scaleX {
			shade := int(t.machine.BottomScreenByte(x, y)) * len(shadeChars) / 256
			if shade >= len(shadeChars) {
				shade = len(shadeChars) - 1
			}
			char := shadeChars[shade]
			screenX := x / scaleX
			screenY := y/scaleY + 1
			t.screen.SetContent(screenX, screenY, char, nil, style)
		}
	}
}
