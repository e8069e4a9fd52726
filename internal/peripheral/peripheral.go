// peripheral.go - MMIO register store and polling-idiom state machines

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

Forked from the Intuition Engine's component reset/hardware-state idiom.
License: GPLv3 or later
*/

/*
peripheral.go owns the registers visible over MMIO and reproduces the
polling idioms the firmware relies on to escape its own wait loops:
trigger-then-poll-clear, status-becomes-ready, one-shot status,
open-drain UART TX, periodic timer events and delayed USB connect.

Every hook installed on Memory is a closure that captures p: Memory's
hook signature carries only the address, not a *Peripheral argument.
Memory never imports this package, and Peripheral never imports
Memory's hook tables back into itself beyond the handle passed at
construction.
*/

package peripheral

import (
	"io"

	"github.com/commaai/asm2464pd-firmware/internal/mem"
)

// InterruptRaiser is the subset of *cpu8051.CPU the peripheral layer
// needs to arm pending interrupt flags. Declaring it here instead of
// importing cpu8051 keeps Peripheral decoupled from the CPU's
// concrete type; cpu8051.CPU satisfies it structurally.
type InterruptRaiser interface {
	RaiseExt0()
	RaiseTimer0()
	RaiseExt1()
	RaiseTimer1()
	RaiseSerial()
	RaiseTimer2()
}

// USBSpeed enumerates the link speeds connect_usb accepts.
type USBSpeed int

const (
	FullSpeed USBSpeed = iota
	HighSpeed
	SuperSpeed
	SuperSpeedPlus
)

// USBLinkState is the enumeration driven by firmware writes to
// configuration SFR/MMIO, per spec.md §4.2.
type USBLinkState int

const (
	Disconnected USBLinkState = iota
	Attached
	Powered
	Default
	Addressed
	Configured
)

// AccessLogEntry is one recorded MMIO access, used to reconstruct the
// peripheral-access log a fault report dumps (spec.md §7).
type AccessLogEntry struct {
	Cycle uint64
	Addr  uint16
	Write bool
	Value byte
}

// Options configures threshold tables, deferred-event timing and
// quirk toggles; all fields default to the reference values when left
// zero, per SPEC_FULL.md §10's Config section.
type Options struct {
	Thresholds      map[uint16]int
	SyncFlags       map[uint16]int
	USBConnectDelay uint64
	PDSourceCapLag  uint64 // cycles after the USB connect delay; 0 selects the default, so Options cannot turn the event off
	AccessLogLength int
	DisabledQuirks  map[string]bool
}

// DefaultOptions returns the reference configuration: thresholds and
// sync-flag addresses matching the original source, a 10000-cycle USB
// connect delay, a 10000-cycle PD SOURCE_CAP lag after connect, and a
// 16-entry access log.
func DefaultOptions() Options {
	return Options{
		Thresholds:      defaultThresholds(),
		SyncFlags:       defaultSyncFlags(),
		USBConnectDelay: 10000,
		PDSourceCapLag:  10000,
		AccessLogLength: 16,
		DisabledQuirks:  map[string]bool{},
	}
}

// Peripheral is the MMIO register store and polling-idiom engine.
type Peripheral struct {
	mem *mem.Memory
	irq InterruptRaiser

	thresholds map[uint16]int
	polls      map[uint16]int

	uartSink io.Writer

	linkState       USBLinkState
	usbConnectDelay uint64
	usbConnected    bool
	pdSourceCapLag  uint64
	pdSourceCapFired bool

	cycles uint64

	accessLog    []AccessLogEntry
	accessLogCap int

	quirks []QuirkRule
}

// New constructs a Peripheral wired onto m, installing all MMIO hooks
// and reset-time register defaults. irq is consulted on every tick to
// arm CPU-visible pending flags.
func New(m *mem.Memory, irq InterruptRaiser, opts Options) *Peripheral {
	merged := DefaultOptions()
	if opts.Thresholds != nil {
		merged.Thresholds = opts.Thresholds
	}
	if opts.SyncFlags != nil {
		merged.SyncFlags = opts.SyncFlags
	}
	if opts.USBConnectDelay != 0 {
		merged.USBConnectDelay = opts.USBConnectDelay
	}
	if opts.PDSourceCapLag != 0 {
		merged.PDSourceCapLag = opts.PDSourceCapLag
	}
	if opts.AccessLogLength != 0 {
		merged.AccessLogLength = opts.AccessLogLength
	}
	if opts.DisabledQuirks != nil {
		merged.DisabledQuirks = opts.DisabledQuirks
	}

	p := &Peripheral{
		mem:             m,
		irq:             irq,
		thresholds:      merged.Thresholds,
		polls:           make(map[uint16]int),
		linkState:       Disconnected,
		usbConnectDelay: merged.USBConnectDelay,
		pdSourceCapLag:  merged.PDSourceCapLag,
		accessLogCap:    merged.AccessLogLength,
	}
	for addr, threshold := range merged.SyncFlags {
		m.SetSyncFlag(addr, threshold)
	}
	p.installHooks()
	p.installDefaultQuirks(merged.DisabledQuirks)
	p.ResetRegisters()
	return p
}

// SetUARTSink directs UART TX bytes to w instead of discarding them.
func (p *Peripheral) SetUARTSink(w io.Writer) { p.uartSink = w }

// Thresholds exposes the auto-ready/auto-clear threshold table for
// inspection, so firmware hangs can be diagnosed as table mismatches
// per spec.md §9.
func (p *Peripheral) Thresholds() map[uint16]int {
	out := make(map[uint16]int, len(p.thresholds))
	for k, v := range p.thresholds {
		out[k] = v
	}
	return out
}

// AccessLog returns the bounded ring buffer of the most recent MMIO
// accesses, oldest first.
func (p *Peripheral) AccessLog() []AccessLogEntry {
	out := make([]AccessLogEntry, len(p.accessLog))
	copy(out, p.accessLog)
	return out
}

func (p *Peripheral) logAccess(addr uint16, write bool, value byte) {
	if p.accessLogCap <= 0 {
		return
	}
	p.accessLog = append(p.accessLog, AccessLogEntry{Cycle: p.cycles, Addr: addr, Write: write, Value: value})
	if len(p.accessLog) > p.accessLogCap {
		p.accessLog = p.accessLog[len(p.accessLog)-p.accessLogCap:]
	}
}

// poll increments and returns the poll counter for addr.
func (p *Peripheral) poll(addr uint16) int {
	p.polls[addr]++
	return p.polls[addr]
}

func (p *Peripheral) resetPoll(addr uint16) { p.polls[addr] = 0 }

func (p *Peripheral) threshold(addr uint16, fallback int) int {
	if t, ok := p.thresholds[addr]; ok {
		return t
	}
	return fallback
}

// ResetRegisters restores the peripheral register defaults spec.md §6
// names, plus the supplemental registers SPEC_FULL.md adds. It does
// not reinstall hooks, which survive reset per spec.md §5.
func (p *Peripheral) ResetRegisters() {
	p.polls = make(map[uint16]int)
	p.linkState = Disconnected
	p.usbConnected = false
	p.pdSourceCapFired = false
	p.cycles = 0
	p.accessLog = nil

	p.mem.PokeXDATA(regUARTLSR, 0x60)
	p.mem.PokeXDATA(regUSBStatus, 0x00)
	p.mem.PokeXDATA(regPCIeStatus, 0x02)
	p.mem.PokeXDATA(regNVMeReady, 0x02)
	p.mem.PokeXDATA(regDMAStatus, 0x04)
	p.mem.PokeXDATA(regPHYStatus, 0x01)
	p.mem.PokeXDATA(regDebugEnable, 0xFF)
	p.mem.PokeXDATA(regSysIntLatch, 0x00)
	p.mem.PokeXDATA(regCmdEngineStatus, 0x00)
	for _, a := range []uint16{regTimerCSR0, regTimerCSR1, regTimerCSR2, regTimerCSR3} {
		p.mem.PokeXDATA(a, 0x00)
	}
}

// installHooks wires every named register to its idiom-specific
// read/write callback. Registration happens once, at construction.
func (p *Peripheral) installHooks() {
	m := p.mem

	// UART: open-drain TX + always-ready LSR.
	m.SetXDATAHooks(regUARTTX, nil, func(addr uint16, v byte) error {
		p.logAccess(addr, true, v)
		if p.uartSink != nil {
			_, _ = p.uartSink.Write([]byte{v})
		}
		return nil
	})
	m.SetXDATAHooks(regUARTLSR, func(addr uint16) (byte, bool, error) {
		p.logAccess(addr, false, 0x60)
		return 0x60, true, nil
	}, nil)

	// USB status: status-becomes-ready is driven entirely by the
	// clock's delayed-connect event; reads here are plain passthrough
	// but still logged.
	m.SetXDATAHooks(regUSBStatus, func(addr uint16) (byte, bool, error) {
		v := m.PeekXDATA(addr)
		p.logAccess(addr, false, v)
		return v, true, nil
	}, func(addr uint16, v byte) error {
		p.logAccess(addr, true, v)
		return nil
	})

	// PCIe: trigger-then-poll-clear on the trigger register, plain
	// status-becomes-ready on the status register.
	m.SetXDATAHooks(regPCIeTrigger, func(addr uint16) (byte, bool, error) {
		v := m.PeekXDATA(addr)
		n := p.poll(addr)
		if v&0x01 != 0 && n >= p.threshold(addr, 3) {
			v &^= 0x01
			m.PokeXDATA(addr, v)
		}
		p.logAccess(addr, false, v)
		return v, true, nil
	}, func(addr uint16, v byte) error {
		p.resetPoll(addr)
		p.logAccess(addr, true, v)
		return nil
	})
	m.SetXDATAHooks(regPCIeStatus, p.statusBecomesReady(regPCIeStatus, 0x02), nil)

	// NVMe ready/busy: status-becomes-ready, already ready at reset.
	m.SetXDATAHooks(regNVMeReady, p.statusBecomesReady(regNVMeReady, 0x02), nil)
	m.SetXDATAHooks(regNVMeBusy, p.statusBecomesReady(regNVMeBusy, 0x00), nil)

	// System interrupt latch: one-shot status, clear-on-read.
	m.SetXDATAHooks(regSysIntLatch, p.oneShotStatus(regSysIntLatch), nil)

	// Flash CSR / DMA status: DMA is already "done" at reset; flash CSR
	// follows trigger-then-poll-clear.
	m.SetXDATAHooks(regFlashCSR, func(addr uint16) (byte, bool, error) {
		v := m.PeekXDATA(addr)
		n := p.poll(addr)
		if v&0x01 != 0 && n >= p.threshold(addr, 3) {
			v &^= 0x01
			m.PokeXDATA(addr, v)
		}
		p.logAccess(addr, false, v)
		return v, true, nil
	}, func(addr uint16, v byte) error {
		p.resetPoll(addr)
		p.logAccess(addr, true, v)
		return nil
	})
	m.SetXDATAHooks(regDMAStatus, p.statusBecomesReady(regDMAStatus, 0x04), nil)

	// USB PD interrupt status: one-shot, like the system latch.
	m.SetXDATAHooks(regPDIntStatus, p.oneShotStatus(regPDIntStatus), nil)

	// Timer CSRs: auto-ready idiom where bit0 is the enable firmware
	// writes and bit1 is the "expired" bit ORed in after the configured
	// threshold of reads, per S5. Writing 0x04 clears both bits and the
	// poll counter.
	for _, addr := range []uint16{regTimerCSR0, regTimerCSR1, regTimerCSR2, regTimerCSR3} {
		addr := addr
		m.SetXDATAHooks(addr, func(a uint16) (byte, bool, error) {
			v := m.PeekXDATA(a)
			if v&0x01 != 0 {
				n := p.poll(a)
				if n >= p.threshold(a, 3) {
					v |= 0x02
					m.PokeXDATA(a, v)
				}
			}
			p.logAccess(a, false, v)
			return v, true, nil
		}, func(a uint16, v byte) error {
			if v&0x04 != 0 {
				m.PokeXDATA(a, 0x00)
				p.resetPoll(a)
			} else {
				m.PokeXDATA(a, v&0x01)
				p.resetPoll(a)
			}
			p.logAccess(a, true, v)
			return nil
		})
	}

	// PHY status: always (0|1), per the auto-ready convention; ignores
	// writes except for the access log.
	m.SetXDATAHooks(regPHYStatus, func(addr uint16) (byte, bool, error) {
		v := m.PeekXDATA(addr) & 0x01
		p.logAccess(addr, false, v)
		return v, true, nil
	}, func(addr uint16, v byte) error {
		p.logAccess(addr, true, v)
		return nil
	})

	// SCSI DMA ready / debug enable mask: plain passthrough, logged.
	m.SetXDATAHooks(regSCSIDMAReady, p.statusBecomesReady(regSCSIDMAReady, 0x01), nil)
	m.SetXDATAHooks(regDebugEnable, func(addr uint16) (byte, bool, error) {
		v := m.PeekXDATA(addr)
		p.logAccess(addr, false, v)
		return v, true, nil
	}, func(addr uint16, v byte) error {
		m.PokeXDATA(addr, v)
		p.logAccess(addr, true, v)
		return nil
	})

	// Command engine status: one-shot, vendor-command completion flag.
	m.SetXDATAHooks(regCmdEngineStatus, p.oneShotStatus(regCmdEngineStatus), nil)

	// System status: link/flash-ready bits, plain passthrough.
	m.SetXDATAHooks(regSysLinkStatus, func(addr uint16) (byte, bool, error) {
		v := m.PeekXDATA(addr)
		p.logAccess(addr, false, v)
		return v, true, nil
	}, nil)
	m.SetXDATAHooks(regSysFlashReady, func(addr uint16) (byte, bool, error) {
		v := m.PeekXDATA(addr)
		p.logAccess(addr, false, v)
		return v, true, nil
	}, nil)
}

// statusBecomesReady builds a read hook implementing "firmware waits
// for bit to become set": after threshold(addr) reads, readyBits is
// ORed permanently into the stored value.
func (p *Peripheral) statusBecomesReady(addr uint16, readyBits byte) mem.ReadHook {
	return func(a uint16) (byte, bool, error) {
		v := p.mem.PeekXDATA(a)
		n := p.poll(a)
		if n >= p.threshold(a, 1) {
			v |= readyBits
			p.mem.PokeXDATA(a, v)
		}
		p.logAccess(a, false, v)
		return v, true, nil
	}
}

// oneShotStatus builds a read hook implementing "read returns then
// clears": reading returns the current value, then clears bit 0.
func (p *Peripheral) oneShotStatus(addr uint16) mem.ReadHook {
	return func(a uint16) (byte, bool, error) {
		v := p.mem.PeekXDATA(a)
		p.logAccess(a, false, v)
		if v&0x01 != 0 {
			p.mem.PokeXDATA(a, v&^0x01)
		}
		return v, true, nil
	}
}

// Tick advances the peripheral's cycle counter, runs quirk rules, and
// fires deferred events (USB connect, and the supplemental PD
// SOURCE_CAP event). It is called synchronously once per CPU step by
// internal/clock, never concurrently.
func (p *Peripheral) Tick(delta uint64) {
	p.cycles += delta

	if !p.usbConnected && p.cycles >= p.usbConnectDelay {
		p.connectUSB(SuperSpeed)
	}
	if p.usbConnected && p.pdSourceCapLag > 0 && !p.pdSourceCapFired &&
		p.cycles >= p.usbConnectDelay+p.pdSourceCapLag {
		p.firePDSourceCap()
	}

	for _, q := range p.quirks {
		if q.Enabled() {
			q.Apply(p.mem, p)
		}
	}
}

// ArmTimerEvent ORs the periodic timer-event bit into the system
// interrupt latch and arms the CPU interrupt the firmware's ISR
// services, per the "periodic timer event" idiom. internal/clock calls
// this every 1000 cycles.
func (p *Peripheral) ArmTimerEvent() {
	v := p.mem.PeekXDATA(regSysIntLatch)
	p.mem.PokeXDATA(regSysIntLatch, v|0x01)
	p.irq.RaiseTimer0()
}

// connectUSB fires the full register cluster spec.md §4.2's delayed USB
// connect requires, atomically: every one of these bytes is set before
// EX0 is raised, so firmware polling any one of them (0x9105 PHY active
// and 0x9100 link active are the two its enumeration wait loop actually
// spins on) never observes a partial connect. Grounded on
// original_source/emulate/hardware.py's HardwareState.tick USB-plug-in
// branch.
func (p *Peripheral) connectUSB(speed USBSpeed) {
	p.usbConnected = true
	p.linkState = Attached

	status := byte(0x81) // connected (bit7) + active (bit0)
	speedClass := byte(0x00)
	switch speed {
	case FullSpeed:
		speedClass = 0x00
	case HighSpeed:
		speedClass = 0x01
	case SuperSpeed:
		speedClass = 0x02
	case SuperSpeedPlus:
		speedClass = 0x03
	}

	p.mem.PokeXDATA(regUSBStatus, status)
	p.mem.PokeXDATA(regUSB3Speed, speedClass)
	p.mem.PokeXDATA(regUSBLinkActive, 0x02)
	p.mem.PokeXDATA(regPHYActive, 0xFF)
	p.mem.PokeXDATA(regIntUSBStatus, 0x04)
	p.mem.PokeXDATA(regNVMeQueueBusy, 0x01)
	p.mem.PokeXDATA(regPDIntState1, 0x08)
	p.mem.PokeXDATA(regPDIntState2, 0x04)
	p.mem.PokeXDATA(regPDDebugTrig, 0x40)
	p.mem.PokeXDATA(regPDEventType, 0x01)
	p.mem.PokeXDATA(regPDSubEvent, 0x00)

	p.irq.RaiseExt0()
}

// firePDSourceCap restores the PD message-sequencing feature
// original_source/emulate/hardware.py's tick method fires 10000 cycles
// after connect: a simulated PD SOURCE_CAP message arrives, distinct
// from the connect event by its own register cluster (message type
// 0x61 is PD Source_Capabilities) written atomically.
func (p *Peripheral) firePDSourceCap() {
	p.pdSourceCapFired = true
	p.mem.PokeXDATA(regPDIntState1, 0x0C)
	p.mem.PokeXDATA(regPDIntState2, 0x04)
	p.mem.PokeXDATA(regPDMsgType, 0x61)
	p.mem.PokeXDATA(regPDEventType, 0x01)
	p.mem.PokeXDATA(regPDSubEvent, 0x00)
}

// LinkState reports the USB link state machine's current value.
func (p *Peripheral) LinkState() USBLinkState { return p.linkState }

// AdvanceLinkState sets the USB link state machine to next. The
// peripheral layer never advances it past Attached on its own, and no
// hook in this module or in the emulator facade calls this method; a
// host that observes enumeration triggers calls it directly.
func (p *Peripheral) AdvanceLinkState(next USBLinkState) { p.linkState = next }

// --- injection API, spec.md §4.2 / §6 --------------------------------------
//
// The not-ready guard for this API (host calls before load_firmware)
// lives one layer up, in internal/emulator's ready() check: by the time a
// call reaches Peripheral, mem and irq are always fully constructed, so
// there is no partial state for this package to reject on its own.

// ConnectUSB forces the connect event immediately, bypassing the
// configured delay.
func (p *Peripheral) ConnectUSB(speed USBSpeed) {
	p.connectUSB(speed)
}

// InjectControlTransfer writes the 8-byte USB setup packet to the
// setup-packet MMIO and arms EX0.
func (p *Peripheral) InjectControlTransfer(bmRequestType, bRequest byte, wValue, wIndex, wLength uint16, data []byte) {
	p.mem.PokeXDATA(regUSBSetupBase+0, bmRequestType)
	p.mem.PokeXDATA(regUSBSetupBase+1, bRequest)
	p.mem.PokeXDATA(regUSBSetupBase+2, byte(wValue))
	p.mem.PokeXDATA(regUSBSetupBase+3, byte(wValue>>8))
	p.mem.PokeXDATA(regUSBSetupBase+4, byte(wIndex))
	p.mem.PokeXDATA(regUSBSetupBase+5, byte(wIndex>>8))
	p.mem.PokeXDATA(regUSBSetupBase+6, byte(wLength))
	p.mem.PokeXDATA(regUSBSetupBase+7, byte(wLength>>8))
	for i, b := range data {
		p.mem.PokeXDATA(regSCSIBufBase+uint16(i), b)
	}
	p.irq.RaiseExt0()
}

// InjectVendorCommand writes the command descriptor block into the
// MMIO registers where firmware reads it and arms EX0.
func (p *Peripheral) InjectVendorCommand(opcode byte, xdataAddr uint32, sizeOrValue byte) {
	p.mem.PokeXDATA(regUSBCDBBase+0, opcode)
	p.mem.PokeXDATA(regUSBCDBBase+1, byte(xdataAddr))
	p.mem.PokeXDATA(regUSBCDBBase+2, byte(xdataAddr>>8))
	p.mem.PokeXDATA(regUSBCDBBase+3, byte(xdataAddr>>16))
	p.mem.PokeXDATA(regUSBCDBBase+4, sizeOrValue)
	p.irq.RaiseExt0()
}

// InjectSCSIWrite populates the bulk write buffer at 0x8000 and the
// CDB registers with an LBA/sector-count write command.
func (p *Peripheral) InjectSCSIWrite(lba uint64, sectors uint32, data []byte) {
	for i, b := range data {
		p.mem.PokeXDATA(regSCSIBufBase+uint16(i), b)
	}
	for i := 0; i < 8; i++ {
		p.mem.PokeXDATA(regUSBCDBBase+uint16(i), byte(lba>>(8*uint(i))))
	}
	for i := 0; i < 4; i++ {
		p.mem.PokeXDATA(regUSBCDBBase+8+uint16(i), byte(sectors>>(8*uint(i))))
	}
	p.irq.RaiseExt0()
}
