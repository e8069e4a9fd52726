// disasm.go - pure, non-executing 8051 disassembler

/*
disasm.go formats instruction bytes into mnemonic text without
touching CPU state, the same separation the Intuition Engine keeps
between its CPU_Z80 interpreter and disassembleZ80 in debug_cpu_z80.go.
It backs both the trace stream (cpu.go's emitTrace) and the facade's
Disassemble debug entry point, and is exercised directly by
disasm_test.go. There is no assembler in this package.
*/

package cpu8051

import (
	"fmt"

	"github.com/commaai/asm2464pd-firmware/internal/mem"
)

// Line is one disassembled instruction, as returned by Disassemble.
type Line struct {
	Address  uint16
	Length   uint8
	Raw      []byte
	Mnemonic string
}

// FormatInstruction renders the mnemonic text for one instruction
// given its opcode byte and operand bytes. pcAfter is the value PC
// would hold immediately after fetching the whole instruction, needed
// to resolve AJMP/ACALL page bits and relative branch targets.
func FormatInstruction(pcAfter uint16, opcode byte, ops []byte) string {
	def := opcodeTable[opcode]
	relTarget := func(i int) uint16 { return uint16(int16(pcAfter) + int16(int8(ops[i]))) }

	switch opcode {
	case 0x00, 0xA5:
		return "NOP"
	case 0x01, 0x21, 0x41, 0x61, 0x81, 0xA1, 0xC1, 0xE1:
		addr11 := uint16(opcode&0xE0)<<3 | uint16(ops[0])
		return fmt.Sprintf("AJMP %#04x", (pcAfter&0xF800)|addr11)
	case 0x02:
		return fmt.Sprintf("LJMP %#04x", uint16(ops[0])<<8|uint16(ops[1]))
	case 0x11, 0x31, 0x51, 0x71, 0x91, 0xB1, 0xD1, 0xF1:
		addr11 := uint16(opcode&0xE0)<<3 | uint16(ops[0])
		return fmt.Sprintf("ACALL %#04x", (pcAfter&0xF800)|addr11)
	case 0x12:
		return fmt.Sprintf("LCALL %#04x", uint16(ops[0])<<8|uint16(ops[1]))
	case 0x22:
		return "RET"
	case 0x32:
		return "RETI"
	case 0x80:
		return fmt.Sprintf("SJMP %#04x", relTarget(0))
	case 0x73:
		return "JMP @A+DPTR"
	case 0x83:
		return "MOVC A,@A+PC"
	case 0x93:
		return "MOVC A,@A+DPTR"
	case 0xE0:
		return "MOVX A,@DPTR"
	case 0xE2, 0xE3:
		return fmt.Sprintf("MOVX A,@R%d", opcode-0xE2)
	case 0xF0:
		return "MOVX @DPTR,A"
	case 0xF2, 0xF3:
		return fmt.Sprintf("MOVX @R%d,A", opcode-0xF2)
	case 0xC0:
		return fmt.Sprintf("PUSH %#02x", ops[0])
	case 0xD0:
		return fmt.Sprintf("POP %#02x", ops[0])
	case 0xC5:
		return fmt.Sprintf("XCH A,%#02x", ops[0])
	case 0xC6, 0xC7:
		return fmt.Sprintf("XCH A,@R%d", opcode-0xC6)
	case 0xC8, 0xC9, 0xCA, 0xCB, 0xCC, 0xCD, 0xCE, 0xCF:
		return fmt.Sprintf("XCH A,R%d", opcode-0xC8)
	case 0xD6, 0xD7:
		return fmt.Sprintf("XCHD A,@R%d", opcode-0xD6)
	case 0x04:
		return "INC A"
	case 0x05:
		return fmt.Sprintf("INC %#02x", ops[0])
	case 0x06, 0x07:
		return fmt.Sprintf("INC @R%d", opcode-0x06)
	case 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F:
		return fmt.Sprintf("INC R%d", opcode-0x08)
	case 0xA3:
		return "INC DPTR"
	case 0x14:
		return "DEC A"
	case 0x15:
		return fmt.Sprintf("DEC %#02x", ops[0])
	case 0x16, 0x17:
		return fmt.Sprintf("DEC @R%d", opcode-0x16)
	case 0x18, 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E, 0x1F:
		return fmt.Sprintf("DEC R%d", opcode-0x18)
	case 0x24:
		return fmt.Sprintf("ADD A,#%#02x", ops[0])
	case 0x25:
		return fmt.Sprintf("ADD A,%#02x", ops[0])
	case 0x26, 0x27:
		return fmt.Sprintf("ADD A,@R%d", opcode-0x26)
	case 0x28, 0x29, 0x2A, 0x2B, 0x2C, 0x2D, 0x2E, 0x2F:
		return fmt.Sprintf("ADD A,R%d", opcode-0x28)
	case 0x34:
		return fmt.Sprintf("ADDC A,#%#02x", ops[0])
	case 0x35:
		return fmt.Sprintf("ADDC A,%#02x", ops[0])
	case 0x36, 0x37:
		return fmt.Sprintf("ADDC A,@R%d", opcode-0x36)
	case 0x38, 0x39, 0x3A, 0x3B, 0x3C, 0x3D, 0x3E, 0x3F:
		return fmt.Sprintf("ADDC A,R%d", opcode-0x38)
	case 0x94:
		return fmt.Sprintf("SUBB A,#%#02x", ops[0])
	case 0x95:
		return fmt.Sprintf("SUBB A,%#02x", ops[0])
	case 0x96, 0x97:
		return fmt.Sprintf("SUBB A,@R%d", opcode-0x96)
	case 0x98, 0x99, 0x9A, 0x9B, 0x9C, 0x9D, 0x9E, 0x9F:
		return fmt.Sprintf("SUBB A,R%d", opcode-0x98)
	case 0xA4:
		return "MUL AB"
	case 0x84:
		return "DIV AB"
	case 0xD4:
		return "DA A"
	case 0x42:
		return fmt.Sprintf("ORL %#02x,A", ops[0])
	case 0x43:
		return fmt.Sprintf("ORL %#02x,#%#02x", ops[0], ops[1])
	case 0x44:
		return fmt.Sprintf("ORL A,#%#02x", ops[0])
	case 0x45:
		return fmt.Sprintf("ORL A,%#02x", ops[0])
	case 0x46, 0x47:
		return fmt.Sprintf("ORL A,@R%d", opcode-0x46)
	case 0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F:
		return fmt.Sprintf("ORL A,R%d", opcode-0x48)
	case 0x52:
		return fmt.Sprintf("ANL %#02x,A", ops[0])
	case 0x53:
		return fmt.Sprintf("ANL %#02x,#%#02x", ops[0], ops[1])
	case 0x54:
		return fmt.Sprintf("ANL A,#%#02x", ops[0])
	case 0x55:
		return fmt.Sprintf("ANL A,%#02x", ops[0])
	case 0x56, 0x57:
		return fmt.Sprintf("ANL A,@R%d", opcode-0x56)
	case 0x58, 0x59, 0x5A, 0x5B, 0x5C, 0x5D, 0x5E, 0x5F:
		return fmt.Sprintf("ANL A,R%d", opcode-0x58)
	case 0x62:
		return fmt.Sprintf("XRL %#02x,A", ops[0])
	case 0x63:
		return fmt.Sprintf("XRL %#02x,#%#02x", ops[0], ops[1])
	case 0x64:
		return fmt.Sprintf("XRL A,#%#02x", ops[0])
	case 0x65:
		return fmt.Sprintf("XRL A,%#02x", ops[0])
	case 0x66, 0x67:
		return fmt.Sprintf("XRL A,@R%d", opcode-0x66)
	case 0x68, 0x69, 0x6A, 0x6B, 0x6C, 0x6D, 0x6E, 0x6F:
		return fmt.Sprintf("XRL A,R%d", opcode-0x68)
	case 0xE4:
		return "CLR A"
	case 0xF4:
		return "CPL A"
	case 0x23:
		return "RL A"
	case 0x33:
		return "RLC A"
	case 0x03:
		return "RR A"
	case 0x13:
		return "RRC A"
	case 0xC4:
		return "SWAP A"
	case 0xC3:
		return "CLR C"
	case 0xD3:
		return "SETB C"
	case 0xB3:
		return "CPL C"
	case 0xC2:
		return fmt.Sprintf("CLR %#02x.%d", ops[0]/8, ops[0]%8)
	case 0xD2:
		return fmt.Sprintf("SETB %#02x.%d", ops[0]/8, ops[0]%8)
	case 0xB2:
		return fmt.Sprintf("CPL %#02x.%d", ops[0]/8, ops[0]%8)
	case 0x72:
		return fmt.Sprintf("ORL C,%#02x.%d", ops[0]/8, ops[0]%8)
	case 0xA0:
		return fmt.Sprintf("ORL C,/%#02x.%d", ops[0]/8, ops[0]%8)
	case 0x82:
		return fmt.Sprintf("ANL C,%#02x.%d", ops[0]/8, ops[0]%8)
	case 0xB0:
		return fmt.Sprintf("ANL C,/%#02x.%d", ops[0]/8, ops[0]%8)
	case 0xA2:
		return fmt.Sprintf("MOV C,%#02x.%d", ops[0]/8, ops[0]%8)
	case 0x92:
		return fmt.Sprintf("MOV %#02x.%d,C", ops[0]/8, ops[0]%8)
	case 0x10:
		return fmt.Sprintf("JBC %#02x.%d,%#04x", ops[0]/8, ops[0]%8, relTarget(1))
	case 0x20:
		return fmt.Sprintf("JB %#02x.%d,%#04x", ops[0]/8, ops[0]%8, relTarget(1))
	case 0x30:
		return fmt.Sprintf("JNB %#02x.%d,%#04x", ops[0]/8, ops[0]%8, relTarget(1))
	case 0x40:
		return fmt.Sprintf("JC %#04x", relTarget(0))
	case 0x50:
		return fmt.Sprintf("JNC %#04x", relTarget(0))
	case 0x60:
		return fmt.Sprintf("JZ %#04x", relTarget(0))
	case 0x70:
		return fmt.Sprintf("JNZ %#04x", relTarget(0))
	case 0xB4:
		return fmt.Sprintf("CJNE A,#%#02x,%#04x", ops[0], relTarget(1))
	case 0xB5:
		return fmt.Sprintf("CJNE A,%#02x,%#04x", ops[0], relTarget(1))
	case 0xB6, 0xB7:
		return fmt.Sprintf("CJNE @R%d,#%#02x,%#04x", opcode-0xB6, ops[0], relTarget(1))
	case 0xB8, 0xB9, 0xBA, 0xBB, 0xBC, 0xBD, 0xBE, 0xBF:
		return fmt.Sprintf("CJNE R%d,#%#02x,%#04x", opcode-0xB8, ops[0], relTarget(1))
	case 0xD5:
		return fmt.Sprintf("DJNZ %#02x,%#04x", ops[0], relTarget(1))
	case 0xD8, 0xD9, 0xDA, 0xDB, 0xDC, 0xDD, 0xDE, 0xDF:
		return fmt.Sprintf("DJNZ R%d,%#04x", opcode-0xD8, relTarget(0))
	case 0x74:
		return fmt.Sprintf("MOV A,#%#02x", ops[0])
	case 0x75:
		return fmt.Sprintf("MOV %#02x,#%#02x", ops[0], ops[1])
	case 0x76, 0x77:
		return fmt.Sprintf("MOV @R%d,#%#02x", opcode-0x76, ops[0])
	case 0x78, 0x79, 0x7A, 0x7B, 0x7C, 0x7D, 0x7E, 0x7F:
		return fmt.Sprintf("MOV R%d,#%#02x", opcode-0x78, ops[0])
	case 0x85:
		return fmt.Sprintf("MOV %#02x,%#02x", ops[1], ops[0])
	case 0x86, 0x87:
		return fmt.Sprintf("MOV %#02x,@R%d", ops[0], opcode-0x86)
	case 0x88, 0x89, 0x8A, 0x8B, 0x8C, 0x8D, 0x8E, 0x8F:
		return fmt.Sprintf("MOV %#02x,R%d", ops[0], opcode-0x88)
	case 0x90:
		return fmt.Sprintf("MOV DPTR,#%#04x", uint16(ops[0])<<8|uint16(ops[1]))
	case 0xA6, 0xA7:
		return fmt.Sprintf("MOV @R%d,%#02x", opcode-0xA6, ops[0])
	case 0xA8, 0xA9, 0xAA, 0xAB, 0xAC, 0xAD, 0xAE, 0xAF:
		return fmt.Sprintf("MOV R%d,%#02x", opcode-0xA8, ops[0])
	case 0xE5:
		return fmt.Sprintf("MOV A,%#02x", ops[0])
	case 0xE6, 0xE7:
		return fmt.Sprintf("MOV A,@R%d", opcode-0xE6)
	case 0xE8, 0xE9, 0xEA, 0xEB, 0xEC, 0xED, 0xEE, 0xEF:
		return fmt.Sprintf("MOV A,R%d", opcode-0xE8)
	case 0xF5:
		return fmt.Sprintf("MOV %#02x,A", ops[0])
	case 0xF6, 0xF7:
		return fmt.Sprintf("MOV @R%d,A", opcode-0xF6)
	case 0xF8, 0xF9, 0xFA, 0xFB, 0xFC, 0xFD, 0xFE, 0xFF:
		return fmt.Sprintf("MOV R%d,A", opcode-0xF8)
	default:
		_ = def
		return fmt.Sprintf("DB %#02x", opcode)
	}
}

// Disassemble renders count instructions starting at addr, reading
// CODE through m (honouring the current bank). It does not execute
// anything and has no side effects on m.
func Disassemble(m *mem.Memory, addr uint16, count int) []Line {
	lines := make([]Line, 0, count)
	pc := addr
	for i := 0; i < count; i++ {
		opcode := m.ReadCode(pc)
		def := opcodeTable[opcode]
		length := def.Length
		if length == 0 {
			length = 1
		}
		raw := make([]byte, length)
		raw[0] = opcode
		for j := uint8(1); j < length; j++ {
			raw[j] = m.ReadCode(pc + uint16(j))
		}
		pcAfter := pc + uint16(length)
		lines = append(lines, Line{
			Address:  pc,
			Length:   length,
			Raw:      raw,
			Mnemonic: FormatInstruction(pcAfter, opcode, raw[1:]),
		})
		pc = pcAfter
	}
	return lines
}
