package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli"

	"github.com/nds-core/emu/emu"
	"github.com/nds-core/emu/render"
)

func main() {
	app := cli.NewApp()
	app.Name = "ndscore"
	app.Description = "a dual-ARM handheld console core"
	app.Usage = "ndscore [options] <cartridge image>"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rom",
			Usage: "path to the DS-slot cartridge image",
		},
		cli.StringFlag{
			Name:  "bios7",
			Usage: "path to the ARM7 BIOS image",
		},
		cli.StringFlag{
			Name:  "boot-mode",
			Value: "direct",
			Usage: "boot-mode: direct (skip firmware, start both CPUs at 0x02000000) or firmware",
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		slog.Error("ndscore exited with error", "error", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	romPath := c.String("rom")
	if romPath == "" {
		if c.NArg() > 0 {
			romPath = c.Args().Get(0)
		} else {
			cli.ShowAppHelp(c)
			return errors.New("no cartridge image provided")
		}
	}

	cart, err := os.ReadFile(romPath)
	if err != nil {
		return fmt.Errorf("reading cartridge image: %w", err)
	}

	var bios7 []byte
	if p := c.String("bios7"); p != "" {
		bios7, err = os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("reading ARM7 BIOS image: %w", err)
		}
	}

	directBoot := c.String("boot-mode") != "firmware"
	if !directBoot {
		slog.Warn("firmware boot mode requested but no firmware image model is implemented; falling back to direct boot")
		directBoot = true
	}

	machine, err := emu.New(emu.Config{DirectBoot: directBoot}, cart, bios7)
	if err != nil {
		return fmt.Errorf("constructing machine: %w", err)
	}

	host := emu.NewHost(machine)

	renderer, err := render.New(host, machine)
	if err != nil {
		return err
	}

	return renderer.Run()
}
