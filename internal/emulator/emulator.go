// emulator.go - composition root and run loop for the bridge-controller emulator

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

Forked from the Intuition Engine's system-bus composition root and the
debug monitor's breakpoint/watchpoint bookkeeping.
License: GPLv3 or later
*/

/*
emulator.go wires Memory, CPU, Peripheral and Clock into the single
façade a host program drives: load_firmware, reset, step, run,
breakpoints and dump_state. It plays the composition-root role
main.go's NewMachine plays for the Intuition Engine's multi-chip
systems, scaled down to the one CPU and one peripheral block this
target has.

Breakpoint/conditional-breakpoint/watchpoint bookkeeping follows
debug_interface.go's DebuggableCPU vocabulary (ConditionalBreakpoint,
Watchpoint, BreakpointEvent) even though this package implements a
single concrete CPU rather than the adapter interface the original
multi-architecture monitor needs.
*/

package emulator

import (
	"fmt"
	"io"

	"golang.org/x/sync/singleflight"

	"github.com/commaai/asm2464pd-firmware/internal/clock"
	"github.com/commaai/asm2464pd-firmware/internal/cpu8051"
	"github.com/commaai/asm2464pd-firmware/internal/mem"
	"github.com/commaai/asm2464pd-firmware/internal/peripheral"
)

// StopReason explains why Run returned.
type StopReason int

const (
	// StopNone is Step's result when no stop condition has been hit;
	// it is never returned by Run, which only returns on a terminal reason.
	StopNone StopReason = iota
	StopMaxCycles
	StopMaxInstructions
	StopBreakpoint
	StopWatchpoint
	StopFault
	StopHalted
)

func (r StopReason) String() string {
	switch r {
	case StopNone:
		return "none"
	case StopMaxCycles:
		return "max_cycles"
	case StopMaxInstructions:
		return "max_instructions"
	case StopBreakpoint:
		return "breakpoint"
	case StopWatchpoint:
		return "watchpoint"
	case StopFault:
		return "fault"
	case StopHalted:
		return "halted"
	default:
		return "unknown"
	}
}

// ConditionOp mirrors the debug monitor's comparison operators for
// conditional breakpoints.
type ConditionOp int

const (
	CondEqual ConditionOp = iota
	CondNotEqual
	CondLess
	CondGreater
)

// BreakCondition gates a breakpoint on an XDATA byte's value.
type BreakCondition struct {
	Addr uint16
	Op   ConditionOp
	Value byte
}

func (c *BreakCondition) satisfied(m *mem.Memory) bool {
	v := m.PeekXDATA(c.Addr)
	switch c.Op {
	case CondEqual:
		return v == c.Value
	case CondNotEqual:
		return v != c.Value
	case CondLess:
		return v < c.Value
	case CondGreater:
		return v > c.Value
	default:
		return false
	}
}

// Watch tracks one watched XDATA byte for change detection between steps.
type Watch struct {
	Addr      uint16
	lastValue byte
}

// Config bundles construction-time options for NewEmulator. Every
// field has a documented default via peripheral.DefaultOptions;
// Config only needs to be non-zero-valued to override one.
type Config struct {
	PeripheralOptions peripheral.Options
	UARTSink          io.Writer
	TraceOut          io.Writer
	Trace             bool
}

// Emulator is the facade a host program drives. It owns Memory, CPU,
// Peripheral and Clock; it does no locking of its own and is not safe
// for concurrent use from multiple goroutines without external
// locking, matching the single-threaded core design.
type Emulator struct {
	mem        *mem.Memory
	cpu        *cpu8051.CPU
	peripheral *peripheral.Peripheral
	clock      *clock.Clock

	loaded bool

	conditionalBreaks map[uint16]*BreakCondition
	watches           map[uint16]*Watch
	lastStop          StopReason

	injectGroup singleflight.Group
}

// NewEmulator constructs an Emulator with no firmware loaded.
// LoadFirmware must be called before Step or Run, which return an error
// otherwise; Reset applies the power-on defaults, and Step and Run do
// not check that it has run.
func NewEmulator(cfg Config) *Emulator {
	m := mem.New()
	c := cpu8051.New(m)
	p := peripheral.New(m, c, cfg.PeripheralOptions)
	if cfg.UARTSink != nil {
		p.SetUARTSink(cfg.UARTSink)
	}
	if cfg.Trace {
		c.Trace = true
		c.TraceOut = cfg.TraceOut
	}
	return &Emulator{
		mem:               m,
		cpu:               c,
		peripheral:        p,
		clock:             clock.New(p),
		conditionalBreaks: make(map[uint16]*BreakCondition),
		watches:           make(map[uint16]*Watch),
	}
}

// LoadFirmware installs a firmware image. It may be called again to
// swap images; callers must Reset afterward.
func (e *Emulator) LoadFirmware(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("emulator: empty firmware image")
	}
	e.mem.LoadCode(data)
	e.loaded = true
	return nil
}

// Reset restores CPU and peripheral state to the documented power-on
// defaults and rearms the clock. Reset returns an error until
// LoadFirmware has run. Step, Run and the injection calls check only
// that firmware is loaded; they do not check that Reset has run.
func (e *Emulator) Reset() error {
	if !e.loaded {
		return fmt.Errorf("emulator: reset before load_firmware")
	}
	e.cpu.Reset()
	e.peripheral.ResetRegisters()
	e.clock.Reset()
	for addr := range e.watches {
		e.watches[addr].lastValue = e.mem.PeekXDATA(addr)
	}
	return nil
}

func (e *Emulator) ready() error {
	if !e.loaded {
		return fmt.Errorf("emulator: not ready: load_firmware has not been called")
	}
	return nil
}

// Step executes exactly one CPU step (one instruction, or one
// interrupt dispatch), advances the clock by the cycles consumed, and
// evaluates breakpoints/watchpoints against the resulting state.
func (e *Emulator) Step() (StopReason, error) {
	if err := e.ready(); err != nil {
		return StopFault, err
	}
	cycles, err := e.cpu.Step()
	if err != nil {
		e.lastStop = StopFault
		return StopFault, err
	}
	e.clock.Advance(uint64(cycles))

	if e.cpu.Halted {
		e.lastStop = StopHalted
		return StopHalted, nil
	}
	if reason, hit := e.checkBreak(); hit {
		e.lastStop = reason
		return reason, nil
	}
	e.lastStop = StopNone
	return StopNone, nil
}

func (e *Emulator) checkBreak() (StopReason, bool) {
	if e.cpu.Breakpoints[e.cpu.PC] {
		return StopBreakpoint, true
	}
	if cond, ok := e.conditionalBreaks[e.cpu.PC]; ok && cond.satisfied(e.mem) {
		return StopBreakpoint, true
	}
	for addr, w := range e.watches {
		v := e.mem.PeekXDATA(addr)
		if v != w.lastValue {
			w.lastValue = v
			return StopWatchpoint, true
		}
	}
	return 0, false
}

// Run steps the CPU until one of: maxCycles is reached, maxInstructions
// is reached, a breakpoint/watchpoint fires, a fault occurs, or the CPU
// halts. A zero limit means "no limit" for that dimension.
func (e *Emulator) Run(maxCycles, maxInstructions uint64) (StopReason, error) {
	if err := e.ready(); err != nil {
		return StopFault, err
	}
	var instructions uint64
	for {
		if maxCycles != 0 && e.clock.Cycles() >= maxCycles {
			return StopMaxCycles, nil
		}
		if maxInstructions != 0 && instructions >= maxInstructions {
			return StopMaxInstructions, nil
		}

		cycles, err := e.cpu.Step()
		if err != nil {
			return StopFault, err
		}
		instructions++
		e.clock.Advance(uint64(cycles))

		if e.cpu.Halted {
			return StopHalted, nil
		}
		if reason, hit := e.checkBreak(); hit {
			return reason, nil
		}
	}
}

// --- breakpoints / watchpoints ---------------------------------------------

// SetBreakpoint arms an unconditional breakpoint at addr.
func (e *Emulator) SetBreakpoint(addr uint16) { e.cpu.Breakpoints[addr] = true }

// ClearBreakpoint disarms a breakpoint at addr.
func (e *Emulator) ClearBreakpoint(addr uint16) { delete(e.cpu.Breakpoints, addr) }

// SetConditionalBreakpoint arms a breakpoint at addr that only stops
// execution when cond is satisfied at the time PC reaches addr.
func (e *Emulator) SetConditionalBreakpoint(addr uint16, cond BreakCondition) {
	e.conditionalBreaks[addr] = &cond
}

// ClearConditionalBreakpoint disarms a conditional breakpoint.
func (e *Emulator) ClearConditionalBreakpoint(addr uint16) {
	delete(e.conditionalBreaks, addr)
}

// SetWatchpoint arms a watchpoint over an XDATA byte: execution stops
// after a step in which the byte's value changed. A write that stores
// the same value is not detected.
func (e *Emulator) SetWatchpoint(addr uint16) {
	e.watches[addr] = &Watch{Addr: addr, lastValue: e.mem.PeekXDATA(addr)}
}

// ClearWatchpoint disarms a watchpoint.
func (e *Emulator) ClearWatchpoint(addr uint16) { delete(e.watches, addr) }

// ListBreakpoints returns the currently armed unconditional breakpoint
// addresses.
func (e *Emulator) ListBreakpoints() []uint16 {
	out := make([]uint16, 0, len(e.cpu.Breakpoints))
	for addr := range e.cpu.Breakpoints {
		out = append(out, addr)
	}
	return out
}

// --- inspection --------------------------------------------------------

// RegisterSnapshot is the register-state portion of dump_state.
type RegisterSnapshot struct {
	PC, DPTR   uint16
	A, B, PSW, SP byte
	Cycles     uint64
	Halted     bool
}

// RegisterSnapshot reports the CPU's current architectural state.
func (e *Emulator) RegisterSnapshot() RegisterSnapshot {
	return RegisterSnapshot{
		PC: e.cpu.PC, DPTR: e.cpu.DPTR(),
		A: e.cpu.A(), B: e.cpu.B(), PSW: e.cpu.PSW(), SP: e.cpu.SP(),
		Cycles: e.clock.Cycles(), Halted: e.cpu.Halted,
	}
}

// Disassemble returns count disassembled lines starting at addr,
// without executing anything.
func (e *Emulator) Disassemble(addr uint16, count int) []cpu8051.Line {
	return cpu8051.Disassemble(e.mem, addr, count)
}

// State is the full dump_state report: registers, last trace line,
// peripheral access log and quirk toggle states, per spec.md §7's
// fault-reporting requirements.
type State struct {
	Registers  RegisterSnapshot
	LastTrace  cpu8051.TraceEntry
	AccessLog  []peripheral.AccessLogEntry
	LinkState  peripheral.USBLinkState
	Quirks     map[string]bool
}

// DumpState assembles a full diagnostic snapshot.
func (e *Emulator) DumpState() State {
	return State{
		Registers: e.RegisterSnapshot(),
		LastTrace: e.cpu.LastTrace(),
		AccessLog: e.peripheral.AccessLog(),
		LinkState: e.peripheral.LinkState(),
		Quirks:    e.peripheral.Quirks(),
	}
}

// Memory exposes the underlying address-space router for host tools
// that need raw peek/poke access (a disassembler view, a memory dump).
func (e *Emulator) Memory() *mem.Memory { return e.mem }

// Peripheral exposes the peripheral block for host tools that need to
// attach a UART sink or register a custom quirk after construction.
func (e *Emulator) Peripheral() *peripheral.Peripheral { return e.peripheral }
