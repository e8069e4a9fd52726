// main.go - command-line entry point for the ASM2464PD firmware emulator

/*
ASM2464PD bridge-controller firmware emulator.

Loads an 8051 firmware image, runs it against the modeled MMIO
register surface, and reports the stop reason and final register
state. Adapted from the Intuition Engine's command-line entry point.
License: GPLv3 or later
*/

package main

import (
	"fmt"
	"os"

	"github.com/commaai/asm2464pd-firmware/internal/emulator"
)

func boilerPlate() {
	fmt.Println("ASM2464PD bridge-controller firmware emulator")
	fmt.Println("License: GPLv3 or later")
}

func main() {
	boilerPlate()

	if len(os.Args) < 2 {
		fmt.Println("Usage: asm2464pdemu <firmware-image> [max-cycles]")
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Printf("Error reading firmware image: %v\n", err)
		os.Exit(1)
	}

	var maxCycles uint64
	if len(os.Args) > 2 {
		fmt.Sscanf(os.Args[2], "%d", &maxCycles)
	}

	emu := emulator.NewEmulator(emulator.Config{Trace: true, TraceOut: os.Stdout})
	if err := emu.LoadFirmware(data); err != nil {
		fmt.Printf("Error loading firmware: %v\n", err)
		os.Exit(1)
	}
	if err := emu.Reset(); err != nil {
		fmt.Printf("Error resetting emulator: %v\n", err)
		os.Exit(1)
	}

	reason, err := emu.Run(maxCycles, 0)
	if err != nil {
		fmt.Printf("Execution fault: %v\n", err)
		state := emu.DumpState()
		fmt.Printf("PC=%#04x A=%#02x PSW=%#02x SP=%#02x cycles=%d\n",
			state.Registers.PC, state.Registers.A, state.Registers.PSW, state.Registers.SP, state.Registers.Cycles)
		os.Exit(1)
	}

	fmt.Printf("Stopped: %s\n", reason)
	state := emu.DumpState()
	fmt.Printf("PC=%#04x A=%#02x PSW=%#02x SP=%#02x cycles=%d\n",
		state.Registers.PC, state.Registers.A, state.Registers.PSW, state.Registers.SP, state.Registers.Cycles)
}
