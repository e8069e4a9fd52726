package cpu8051

import (
	"testing"

	"github.com/commaai/asm2464pd-firmware/internal/mem"
	"github.com/stretchr/testify/require"
)

func newTestCPU(t *testing.T, code []byte) *CPU {
	t.Helper()
	m := mem.New()
	m.LoadCode(code)
	c := New(m)
	c.Reset()
	return c
}

// S1: ADD + parity.
func TestAddParitySeedScenario(t *testing.T) {
	c := newTestCPU(t, []byte{0x74, 0x55, 0x24, 0x2A})

	_, err := c.Step()
	require.NoError(t, err)
	_, err = c.Step()
	require.NoError(t, err)

	require.Equal(t, byte(0x7F), c.A())
	require.False(t, c.getFlag(flagCY))
	require.False(t, c.getFlag(flagAC))
	require.False(t, c.getFlag(flagOV))
	require.True(t, c.getFlag(flagP))
	require.Equal(t, uint64(2), c.Cycles)
}

func TestCyclesAdvanceByOpcodeCost(t *testing.T) {
	c := newTestCPU(t, []byte{0x00, 0xA4}) // NOP, MUL AB
	before := c.Cycles
	_, err := c.Step()
	require.NoError(t, err)
	require.Equal(t, before+1, c.Cycles)

	before = c.Cycles
	_, err = c.Step()
	require.NoError(t, err)
	require.Equal(t, before+4, c.Cycles)
}

func TestPushPopRoundTrip(t *testing.T) {
	// MOV A,#0x42; PUSH ACC(0xE0); MOV A,#0x00; POP ACC
	c := newTestCPU(t, []byte{0x74, 0x42, 0xC0, 0xE0, 0x74, 0x00, 0xD0, 0xE0})
	spBefore := c.SP()
	for i := 0; i < 4; i++ {
		_, err := c.Step()
		require.NoError(t, err)
	}
	require.Equal(t, byte(0x42), c.A())
	require.Equal(t, spBefore, c.SP())
}

func TestLCALLThenRETReturnsToNextInstruction(t *testing.T) {
	// 0000: LCALL 0x0010; 0003: NOP
	// 0010: RET
	code := make([]byte, mem.CodeMinSize)
	code[0] = 0x12
	code[1] = 0x00
	code[2] = 0x10
	code[3] = 0x00 // NOP at return site
	code[0x10] = 0x22
	c := newTestCPU(t, code)

	_, err := c.Step() // LCALL
	require.NoError(t, err)
	require.Equal(t, uint16(0x0010), c.PC)

	_, err = c.Step() // RET
	require.NoError(t, err)
	require.Equal(t, uint16(0x0003), c.PC)
}

// S6: interrupt delivery.
func TestInterruptDeliveryAndReti(t *testing.T) {
	code := make([]byte, mem.CodeMinSize)
	code[0] = 0x00 // NOP at reset vector, never reached due to pending IRQ
	code[3] = 0x32 // RETI at the ext0 vector (0x0003)
	c := newTestCPU(t, code)

	c.Mem.PokeSFR(sfrIE, 0x81) // EA + EX0
	c.RaiseExt0()

	_, err := c.Step()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0003), c.PC)
	require.False(t, c.PendingExt0())
	require.True(t, c.InISR(0))

	_, err = c.Step() // RETI
	require.NoError(t, err)
	require.Equal(t, uint16(0x0000), c.PC)
	require.False(t, c.InISR(0))
}

func TestInterruptNotDispatchedWhenDisabled(t *testing.T) {
	code := make([]byte, mem.CodeMinSize)
	c := newTestCPU(t, code)
	c.RaiseExt0()
	_, err := c.Step()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0001), c.PC) // NOP executed normally
	require.True(t, c.PendingExt0())
}

func TestDecimalAdjust(t *testing.T) {
	// MOV A,#0x09; ADD A,#0x08 -> 0x11 with AC; DA A -> 0x17 BCD
	c := newTestCPU(t, []byte{0x74, 0x09, 0x24, 0x08, 0xD4})
	for i := 0; i < 3; i++ {
		_, err := c.Step()
		require.NoError(t, err)
	}
	require.Equal(t, byte(0x17), c.A())
}

func TestMulAndDiv(t *testing.T) {
	code := make([]byte, mem.CodeMinSize)
	c := newTestCPU(t, code)
	c.SetA(10)
	c.SetB(20)
	require.NoError(t, c.execute(0xA4, 0, nil))
	require.Equal(t, byte(200), c.A())
	require.Equal(t, byte(0), c.B())
	require.False(t, c.getFlag(flagOV))

	c.SetA(10)
	c.SetB(0)
	require.NoError(t, c.execute(0x84, 0, nil))
	require.Equal(t, byte(0), c.A())
	require.Equal(t, byte(0), c.B())
	require.True(t, c.getFlag(flagOV))
}

func TestResetDefaults(t *testing.T) {
	c := newTestCPU(t, make([]byte, mem.CodeMinSize))
	c.SetA(0xFF)
	c.PC = 0x1234
	c.Mem.PokeXDATA(0x10, 0x55)
	c.Reset()

	require.Equal(t, uint16(0), c.PC)
	require.Equal(t, byte(0x07), c.SP())
	require.Equal(t, byte(0), c.A())
	require.Equal(t, byte(0), c.B())
	require.Equal(t, byte(0), c.PSW())
	require.Equal(t, uint16(0), c.DPTR())
}
