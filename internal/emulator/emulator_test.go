package emulator

import (
	"testing"

	"github.com/commaai/asm2464pd-firmware/internal/mem"
	"github.com/commaai/asm2464pd-firmware/internal/peripheral"
	"github.com/stretchr/testify/require"
)

func newTestEmulator(t *testing.T, code []byte) *Emulator {
	t.Helper()
	e := NewEmulator(Config{})
	require.NoError(t, e.LoadFirmware(code))
	require.NoError(t, e.Reset())
	return e
}

func TestReadyGuardsBeforeLoad(t *testing.T) {
	e := NewEmulator(Config{})
	_, err := e.Step()
	require.Error(t, err)
	require.Error(t, e.Reset())
}

func TestRunStopsAtMaxCycles(t *testing.T) {
	code := make([]byte, mem.CodeMinSize) // all NOPs (0x00 decodes to NOP per opcode table)
	e := newTestEmulator(t, code)
	reason, err := e.Run(10, 0)
	require.NoError(t, err)
	require.Equal(t, StopMaxCycles, reason)
}

func TestRunStopsAtMaxInstructions(t *testing.T) {
	code := make([]byte, mem.CodeMinSize)
	e := newTestEmulator(t, code)
	reason, err := e.Run(0, 5)
	require.NoError(t, err)
	require.Equal(t, StopMaxInstructions, reason)
}

func TestRunStopsAtBreakpoint(t *testing.T) {
	// MOV A,#1; MOV A,#2; MOV A,#3 ... breakpoint at offset 4
	code := make([]byte, mem.CodeMinSize)
	copy(code, []byte{0x74, 0x01, 0x74, 0x02, 0x74, 0x03})
	e := newTestEmulator(t, code)
	e.SetBreakpoint(4)
	reason, err := e.Run(0, 0)
	require.NoError(t, err)
	require.Equal(t, StopBreakpoint, reason)
	require.Equal(t, uint16(4), e.RegisterSnapshot().PC)
}

func TestRunStopsAtConditionalBreakpoint(t *testing.T) {
	code := make([]byte, mem.CodeMinSize)
	copy(code, []byte{0x74, 0x01, 0x00, 0x00}) // MOV A,#1; NOP; NOP
	e := newTestEmulator(t, code)
	e.SetConditionalBreakpoint(2, BreakCondition{Addr: 0x1000, Op: CondEqual, Value: 0x00})
	reason, err := e.Run(0, 0)
	require.NoError(t, err)
	require.Equal(t, StopBreakpoint, reason)
}

func TestStepStopsAtWatchpoint(t *testing.T) {
	// MOVX @DPTR,A pattern isn't wired in this fixture; drive the write
	// through Memory's XDATA directly and confirm Step notices it.
	code := make([]byte, mem.CodeMinSize)
	e := newTestEmulator(t, code)
	e.SetWatchpoint(0x1000)
	e.Memory().WriteXDATA(0x1000, 0x01)
	reason, err := e.Step()
	require.NoError(t, err)
	require.Equal(t, StopWatchpoint, reason)
}

func TestStepReportsHaltedCPU(t *testing.T) {
	code := make([]byte, mem.CodeMinSize)
	code[0] = 0xA5 // undefined opcode: treated as NOP by the table, so it cannot fault
	e := newTestEmulator(t, code)
	// Undefined opcode slot in this implementation is a harmless NOP, so
	// exercise the halted path via the CPU's own Halted flag instead.
	e.cpu.Halted = true
	reason, err := e.Step()
	require.NoError(t, err)
	require.Equal(t, StopHalted, reason)
}

// S3: CODE bank switching observed through the full facade.
func TestBankSwitchingThroughFacade(t *testing.T) {
	code := make([]byte, mem.CodeMinSize)
	code[0x9000] = 0xAA
	code[0x1076B] = 0xBB
	e := newTestEmulator(t, code)

	require.Equal(t, byte(0xAA), e.Memory().ReadCode(0x9000))
	require.NoError(t, e.Memory().WriteSFR(0x96, 0x01))
	require.Equal(t, byte(0xBB), e.Memory().ReadCode(0x9000))
}

// S4: sync-flag auto-clear observed through the full facade.
func TestSyncFlagThroughFacade(t *testing.T) {
	code := make([]byte, mem.CodeMinSize)
	e := newTestEmulator(t, code)
	require.NoError(t, e.Memory().WriteXDATA(0x1238, 0x01))
	for i := 0; i < 4; i++ {
		v, err := e.Memory().ReadXDATA(0x1238)
		require.NoError(t, err)
		require.Equal(t, byte(0x01), v)
	}
	v, err := e.Memory().ReadXDATA(0x1238)
	require.NoError(t, err)
	require.Equal(t, byte(0x00), v)
}

// S6: interrupt delivery observed through the full facade: a forced USB
// connect arms EX0 and the next Step vectors to 0x0003.
func TestInterruptDeliveryThroughFacade(t *testing.T) {
	code := make([]byte, mem.CodeMinSize)
	code[3] = 0x32 // RETI at ext0 vector
	e := newTestEmulator(t, code)
	require.NoError(t, e.Memory().WriteSFR(0xA8, 0x81)) // IE: EA+EX0
	require.NoError(t, e.ConnectUSB(peripheral.FullSpeed))

	reason, err := e.Step()
	require.NoError(t, err)
	require.Equal(t, StopNone, reason)
	require.Equal(t, uint16(0x0003), e.RegisterSnapshot().PC)
}

func TestDumpStateReportsAccessLogAndLinkState(t *testing.T) {
	code := make([]byte, mem.CodeMinSize)
	e := newTestEmulator(t, code)
	_, _ = e.Memory().ReadXDATA(0xC009) // UART LSR, logged by the peripheral hook
	state := e.DumpState()
	require.NotEmpty(t, state.AccessLog)
	require.Equal(t, peripheral.Disconnected, state.LinkState)
}

func TestInjectSCSIWriteThroughFacade(t *testing.T) {
	code := make([]byte, mem.CodeMinSize)
	e := newTestEmulator(t, code)
	require.NoError(t, e.InjectSCSIWrite(0, 1, []byte{0x11, 0x22}))
	v, err := e.Memory().ReadXDATA(0x8000)
	require.NoError(t, err)
	require.Equal(t, byte(0x11), v)
}

func TestInjectBeforeLoadErrors(t *testing.T) {
	e := NewEmulator(Config{})
	require.Error(t, e.ConnectUSB(peripheral.FullSpeed))
	require.Error(t, e.InjectSCSIWrite(0, 1, nil))
}

func TestDisassembleThroughFacade(t *testing.T) {
	code := make([]byte, mem.CodeMinSize)
	copy(code, []byte{0x74, 0x55})
	e := newTestEmulator(t, code)
	lines := e.Disassemble(0, 1)
	require.Equal(t, "MOV A,#0x55", lines[0].Mnemonic)
}
