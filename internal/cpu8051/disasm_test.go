package cpu8051

import (
	"testing"

	"github.com/commaai/asm2464pd-firmware/internal/mem"
	"github.com/stretchr/testify/require"
)

func TestDisassembleMatchesKnownSequence(t *testing.T) {
	code := make([]byte, mem.CodeMinSize)
	copy(code, []byte{0x74, 0x55, 0x24, 0x2A, 0x00})
	m := mem.New()
	m.LoadCode(code)

	lines := Disassemble(m, 0, 3)
	require.Len(t, lines, 3)
	require.Equal(t, "MOV A,#0x55", lines[0].Mnemonic)
	require.Equal(t, uint8(2), lines[0].Length)
	require.Equal(t, "ADD A,#0x2a", lines[1].Mnemonic)
	require.Equal(t, "NOP", lines[2].Mnemonic)
	require.Equal(t, uint16(4), lines[2].Address)
}

func TestDisassembleLengthAdvancesCorrectly(t *testing.T) {
	code := make([]byte, mem.CodeMinSize)
	copy(code, []byte{0x12, 0x12, 0x34, 0x00}) // LCALL 0x1234; NOP
	m := mem.New()
	m.LoadCode(code)

	lines := Disassemble(m, 0, 2)
	require.Equal(t, "LCALL 0x1234", lines[0].Mnemonic)
	require.Equal(t, uint16(3), lines[1].Address)
}

func TestDisassembleLengthMatchesInstructionBytes(t *testing.T) {
	// Each sequence holds exactly one instruction at offset 0; the length
	// Disassemble reports for it (from the opcode table) must equal the
	// sequence's byte count.
	seqs := [][]byte{
		{0x00},
		{0x74, 0x01},
		{0x75, 0x20, 0x02},
		{0x02, 0x00, 0x00},
		{0x12, 0x00, 0x00},
		{0x20, 0x20, 0x02},
	}
	for _, seq := range seqs {
		code := make([]byte, mem.CodeMinSize)
		copy(code, seq)
		m := mem.New()
		m.LoadCode(code)
		lines := Disassemble(m, 0, 1)
		require.Equal(t, len(seq), int(lines[0].Length))
	}
}
