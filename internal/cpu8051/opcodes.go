// opcodes.go - 8051 opcode table and instruction execution

package cpu8051

import "fmt"

// OpcodeDef is the decode-table record spec.md §4.3 requires: every
// opcode maps to {mnemonic, length_in_bytes, operand_format_tag,
// cycles}. The mnemonic/operand-format pairing lives in disasm.go's
// FormatInstruction, shared between the trace stream and the facade's
// Disassemble API; this table holds only the bookkeeping execute()
// needs to advance PC and account cycles before dispatch.
type OpcodeDef struct {
	Mnemonic string
	Length   uint8
	Cycles   uint8
}

var opcodeTable [256]OpcodeDef

func init() {
	// Fixed single-entry opcodes.
	set := func(op byte, name string, length, cycles uint8) {
		opcodeTable[op] = OpcodeDef{Mnemonic: name, Length: length, Cycles: cycles}
	}
	// Eight-wide register-indexed families (Rn in the low 3 bits).
	setFamily := func(base byte, name string, length, cycles uint8) {
		for n := byte(0); n < 8; n++ {
			opcodeTable[base+n] = OpcodeDef{Mnemonic: name, Length: length, Cycles: cycles}
		}
	}

	set(0x00, "NOP", 1, 1)
	set(0x01, "AJMP", 2, 2)
	set(0x02, "LJMP", 3, 2)
	set(0x03, "RR A", 1, 1)
	set(0x04, "INC A", 1, 1)
	set(0x05, "INC direct", 2, 1)
	set(0x06, "INC @R0", 1, 1)
	set(0x07, "INC @R1", 1, 1)
	setFamily(0x08, "INC Rn", 1, 1)
	set(0x10, "JBC bit,rel", 3, 2)
	set(0x11, "ACALL", 2, 2)
	set(0x12, "LCALL", 3, 2)
	set(0x13, "RRC A", 1, 1)
	set(0x14, "DEC A", 1, 1)
	set(0x15, "DEC direct", 2, 1)
	set(0x16, "DEC @R0", 1, 1)
	set(0x17, "DEC @R1", 1, 1)
	setFamily(0x18, "DEC Rn", 1, 1)
	set(0x20, "JB bit,rel", 3, 2)
	set(0x21, "AJMP", 2, 2)
	set(0x22, "RET", 1, 2)
	set(0x23, "RL A", 1, 1)
	set(0x24, "ADD A,#imm", 2, 1)
	set(0x25, "ADD A,direct", 2, 1)
	set(0x26, "ADD A,@R0", 1, 1)
	set(0x27, "ADD A,@R1", 1, 1)
	setFamily(0x28, "ADD A,Rn", 1, 1)
	set(0x30, "JNB bit,rel", 3, 2)
	set(0x31, "ACALL", 2, 2)
	set(0x32, "RETI", 1, 2)
	set(0x33, "RLC A", 1, 1)
	set(0x34, "ADDC A,#imm", 2, 1)
	set(0x35, "ADDC A,direct", 2, 1)
	set(0x36, "ADDC A,@R0", 1, 1)
	set(0x37, "ADDC A,@R1", 1, 1)
	setFamily(0x38, "ADDC A,Rn", 1, 1)
	set(0x40, "JC rel", 2, 2)
	set(0x41, "AJMP", 2, 2)
	set(0x42, "ORL direct,A", 2, 1)
	set(0x43, "ORL direct,#imm", 3, 2)
	set(0x44, "ORL A,#imm", 2, 1)
	set(0x45, "ORL A,direct", 2, 1)
	set(0x46, "ORL A,@R0", 1, 1)
	set(0x47, "ORL A,@R1", 1, 1)
	setFamily(0x48, "ORL A,Rn", 1, 1)
	set(0x50, "JNC rel", 2, 2)
	set(0x51, "ACALL", 2, 2)
	set(0x52, "ANL direct,A", 2, 1)
	set(0x53, "ANL direct,#imm", 3, 2)
	set(0x54, "ANL A,#imm", 2, 1)
	set(0x55, "ANL A,direct", 2, 1)
	set(0x56, "ANL A,@R0", 1, 1)
	set(0x57, "ANL A,@R1", 1, 1)
	setFamily(0x58, "ANL A,Rn", 1, 1)
	set(0x60, "JZ rel", 2, 2)
	set(0x61, "AJMP", 2, 2)
	set(0x62, "XRL direct,A", 2, 1)
	set(0x63, "XRL direct,#imm", 3, 2)
	set(0x64, "XRL A,#imm", 2, 1)
	set(0x65, "XRL A,direct", 2, 1)
	set(0x66, "XRL A,@R0", 1, 1)
	set(0x67, "XRL A,@R1", 1, 1)
	setFamily(0x68, "XRL A,Rn", 1, 1)
	set(0x70, "JNZ rel", 2, 2)
	set(0x71, "ACALL", 2, 2)
	set(0x72, "ORL C,bit", 2, 2)
	set(0x73, "JMP @A+DPTR", 1, 2)
	set(0x74, "MOV A,#imm", 2, 1)
	set(0x75, "MOV direct,#imm", 3, 2)
	set(0x76, "MOV @R0,#imm", 2, 1)
	set(0x77, "MOV @R1,#imm", 2, 1)
	setFamily(0x78, "MOV Rn,#imm", 2, 1)
	set(0x80, "SJMP rel", 2, 2)
	set(0x81, "AJMP", 2, 2)
	set(0x82, "ANL C,bit", 2, 2)
	set(0x83, "MOVC A,@A+PC", 1, 2)
	set(0x84, "DIV AB", 1, 4)
	set(0x85, "MOV direct,direct", 3, 2)
	set(0x86, "MOV direct,@R0", 2, 2)
	set(0x87, "MOV direct,@R1", 2, 2)
	setFamily(0x88, "MOV direct,Rn", 2, 2)
	set(0x90, "MOV DPTR,#imm16", 3, 2)
	set(0x91, "ACALL", 2, 2)
	set(0x92, "MOV bit,C", 2, 2)
	set(0x93, "MOVC A,@A+DPTR", 1, 2)
	set(0x94, "SUBB A,#imm", 2, 1)
	set(0x95, "SUBB A,direct", 2, 1)
	set(0x96, "SUBB A,@R0", 1, 1)
	set(0x97, "SUBB A,@R1", 1, 1)
	setFamily(0x98, "SUBB A,Rn", 1, 1)
	set(0xA0, "ORL C,/bit", 2, 2)
	set(0xA1, "AJMP", 2, 2)
	set(0xA2, "MOV C,bit", 2, 1)
	set(0xA3, "INC DPTR", 1, 2)
	set(0xA4, "MUL AB", 1, 4)
	set(0xA5, "NOP", 1, 1) // undefined in the MCS-51 map; treated as a no-op
	set(0xA6, "MOV @R0,direct", 2, 2)
	set(0xA7, "MOV @R1,direct", 2, 2)
	setFamily(0xA8, "MOV Rn,direct", 2, 2)
	set(0xB0, "ANL C,/bit", 2, 2)
	set(0xB1, "ACALL", 2, 2)
	set(0xB2, "CPL bit", 2, 1)
	set(0xB3, "CPL C", 1, 1)
	set(0xB4, "CJNE A,#imm,rel", 3, 2)
	set(0xB5, "CJNE A,direct,rel", 3, 2)
	set(0xB6, "CJNE @R0,#imm,rel", 3, 2)
	set(0xB7, "CJNE @R1,#imm,rel", 3, 2)
	setFamily(0xB8, "CJNE Rn,#imm,rel", 3, 2)
	set(0xC0, "PUSH direct", 2, 2)
	set(0xC1, "AJMP", 2, 2)
	set(0xC2, "CLR bit", 2, 1)
	set(0xC3, "CLR C", 1, 1)
	set(0xC4, "SWAP A", 1, 1)
	set(0xC5, "XCH A,direct", 2, 1)
	set(0xC6, "XCH A,@R0", 1, 1)
	set(0xC7, "XCH A,@R1", 1, 1)
	setFamily(0xC8, "XCH A,Rn", 1, 1)
	set(0xD0, "POP direct", 2, 2)
	set(0xD1, "ACALL", 2, 2)
	set(0xD2, "SETB bit", 2, 1)
	set(0xD3, "SETB C", 1, 1)
	set(0xD4, "DA A", 1, 1)
	set(0xD5, "DJNZ direct,rel", 3, 2)
	set(0xD6, "XCHD A,@R0", 1, 1)
	set(0xD7, "XCHD A,@R1", 1, 1)
	setFamily(0xD8, "DJNZ Rn,rel", 2, 2)
	set(0xE0, "MOVX A,@DPTR", 1, 2)
	set(0xE1, "AJMP", 2, 2)
	set(0xE2, "MOVX A,@R0", 1, 2)
	set(0xE3, "MOVX A,@R1", 1, 2)
	set(0xE4, "CLR A", 1, 1)
	set(0xE5, "MOV A,direct", 2, 1)
	set(0xE6, "MOV A,@R0", 1, 1)
	set(0xE7, "MOV A,@R1", 1, 1)
	setFamily(0xE8, "MOV A,Rn", 1, 1)
	set(0xF0, "MOVX @DPTR,A", 1, 2)
	set(0xF1, "AJMP", 2, 2)
	set(0xF2, "MOVX @R0,A", 1, 2)
	set(0xF3, "MOVX @R1,A", 1, 2)
	set(0xF4, "CPL A", 1, 1)
	set(0xF5, "MOV direct,A", 2, 1)
	set(0xF6, "MOV @R0,A", 1, 1)
	set(0xF7, "MOV @R1,A", 1, 1)
	setFamily(0xF8, "MOV Rn,A", 1, 1)
}

// addFlags computes the 8051 ADD/ADDC result and CY/AC/OV flags.
func addFlags(a, b, carryIn byte) (result byte, cy, ac, ov bool) {
	sum := int(a) + int(b) + int(carryIn)
	result = byte(sum)
	cy = sum > 0xFF
	ac = (int(a&0x0F) + int(b&0x0F) + int(carryIn)) > 0x0F
	carryIntoBit7 := (int(a&0x7F) + int(b&0x7F) + int(carryIn)) > 0x7F
	ov = carryIntoBit7 != cy
	return
}

// subFlags computes the 8051 SUBB result and CY/AC/OV flags.
func subFlags(a, b, carryIn byte) (result byte, cy, ac, ov bool) {
	diff := int(a) - int(b) - int(carryIn)
	result = byte(diff)
	cy = diff < 0
	ac = (int(a&0x0F) - int(b&0x0F) - int(carryIn)) < 0
	borrowIntoBit7 := (int(a&0x7F) - int(b&0x7F) - int(carryIn)) < 0
	ov = borrowIntoBit7 != cy
	return
}

func (c *CPU) doAdd(operand byte, withCarry bool) {
	var carryIn byte
	if withCarry && c.getFlag(flagCY) {
		carryIn = 1
	}
	result, cy, ac, ov := addFlags(c.A(), operand, carryIn)
	c.setFlag(flagCY, cy)
	c.setFlag(flagAC, ac)
	c.setFlag(flagOV, ov)
	c.SetA(result)
}

func (c *CPU) doSub(operand byte, withCarry bool) {
	var carryIn byte
	if withCarry && c.getFlag(flagCY) {
		carryIn = 1
	}
	result, cy, ac, ov := subFlags(c.A(), operand, carryIn)
	c.setFlag(flagCY, cy)
	c.setFlag(flagAC, ac)
	c.setFlag(flagOV, ov)
	c.SetA(result)
}

// execute dispatches one decoded instruction. pc0 is the address the
// opcode byte was fetched from; c.PC has already been advanced past
// the whole instruction by the caller, so branch targets are computed
// relative to c.PC.
func (c *CPU) execute(opcode byte, pc0 uint16, ops []byte) error {
	rel := func(i int) uint16 { return uint16(int16(c.PC) + int16(int8(ops[i]))) }
	direct := func(i int) (byte, error) { return c.Mem.ReadDirect(ops[i]) }

	switch opcode {
	case 0x00: // NOP
	case 0xA5: // undefined opcode, treated as NOP

	case 0x01, 0x21, 0x41, 0x61, 0x81, 0xA1, 0xC1, 0xE1: // AJMP
		addr11 := uint16(opcode&0xE0)<<3 | uint16(ops[0])
		c.PC = (c.PC & 0xF800) | addr11
	case 0x02: // LJMP
		c.PC = uint16(ops[0])<<8 | uint16(ops[1])
	case 0x11, 0x31, 0x51, 0x71, 0x91, 0xB1, 0xD1, 0xF1: // ACALL
		addr11 := uint16(opcode&0xE0)<<3 | uint16(ops[0])
		c.pushPC()
		c.PC = (c.PC & 0xF800) | addr11
	case 0x12: // LCALL
		c.pushPC()
		c.PC = uint16(ops[0])<<8 | uint16(ops[1])
	case 0x22: // RET
		c.popPC()
	case 0x32: // RETI
		c.popPC()
		if c.inISR[1] {
			c.inISR[1] = false
		} else {
			c.inISR[0] = false
		}
	case 0x80: // SJMP
		c.PC = rel(0)
	case 0x73: // JMP @A+DPTR
		c.PC = c.DPTR() + uint16(c.A())

	case 0x83: // MOVC A,@A+PC
		c.SetA(c.readCodeOperand(c.PC + uint16(c.A())))
	case 0x93: // MOVC A,@A+DPTR
		c.SetA(c.readCodeOperand(c.DPTR() + uint16(c.A())))

	case 0xE0: // MOVX A,@DPTR
		v, err := c.Mem.ReadXDATA(c.DPTR())
		if err != nil {
			return err
		}
		c.SetA(v)
	case 0xE2, 0xE3: // MOVX A,@Ri
		v, err := c.Mem.ReadXDATA(uint16(c.readRn(opcode - 0xE2)))
		if err != nil {
			return err
		}
		c.SetA(v)
	case 0xF0: // MOVX @DPTR,A
		return c.Mem.WriteXDATA(c.DPTR(), c.A())
	case 0xF2, 0xF3: // MOVX @Ri,A
		return c.Mem.WriteXDATA(uint16(c.readRn(opcode-0xF2)), c.A())

	case 0xC0: // PUSH direct
		v, err := direct(0)
		if err != nil {
			return err
		}
		c.pushByte(v)
	case 0xD0: // POP direct
		return c.Mem.WriteDirect(ops[0], c.popByte())

	case 0xC5: // XCH A,direct
		v, err := direct(0)
		if err != nil {
			return err
		}
		a := c.A()
		c.SetA(v)
		return c.Mem.WriteDirect(ops[0], a)
	case 0xC6, 0xC7: // XCH A,@Ri
		ri := opcode - 0xC6
		v := c.readInd(ri)
		a := c.A()
		c.SetA(v)
		c.writeInd(ri, a)
	case 0xC8, 0xC9, 0xCA, 0xCB, 0xCC, 0xCD, 0xCE, 0xCF: // XCH A,Rn
		n := opcode - 0xC8
		v := c.readRn(n)
		a := c.A()
		c.SetA(v)
		c.writeRn(n, a)
	case 0xD6, 0xD7: // XCHD A,@Ri
		ri := opcode - 0xD6
		ind := c.readInd(ri)
		a := c.A()
		newA := (a & 0xF0) | (ind & 0x0F)
		newInd := (ind & 0xF0) | (a & 0x0F)
		c.SetA(newA)
		c.writeInd(ri, newInd)

	case 0x04: // INC A
		c.SetA(c.A() + 1)
	case 0x05: // INC direct
		v, err := direct(0)
		if err != nil {
			return err
		}
		return c.Mem.WriteDirect(ops[0], v+1)
	case 0x06, 0x07: // INC @Ri
		ri := opcode - 0x06
		c.writeInd(ri, c.readInd(ri)+1)
	case 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F: // INC Rn
		n := opcode - 0x08
		c.writeRn(n, c.readRn(n)+1)
	case 0xA3: // INC DPTR
		c.SetDPTR(c.DPTR() + 1)

	case 0x14: // DEC A
		c.SetA(c.A() - 1)
	case 0x15: // DEC direct
		v, err := direct(0)
		if err != nil {
			return err
		}
		return c.Mem.WriteDirect(ops[0], v-1)
	case 0x16, 0x17: // DEC @Ri
		ri := opcode - 0x16
		c.writeInd(ri, c.readInd(ri)-1)
	case 0x18, 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E, 0x1F: // DEC Rn
		n := opcode - 0x18
		c.writeRn(n, c.readRn(n)-1)

	case 0x24: // ADD A,#imm
		c.doAdd(ops[0], false)
	case 0x25: // ADD A,direct
		v, err := direct(0)
		if err != nil {
			return err
		}
		c.doAdd(v, false)
	case 0x26, 0x27: // ADD A,@Ri
		c.doAdd(c.readInd(opcode-0x26), false)
	case 0x28, 0x29, 0x2A, 0x2B, 0x2C, 0x2D, 0x2E, 0x2F: // ADD A,Rn
		c.doAdd(c.readRn(opcode-0x28), false)

	case 0x34: // ADDC A,#imm
		c.doAdd(ops[0], true)
	case 0x35: // ADDC A,direct
		v, err := direct(0)
		if err != nil {
			return err
		}
		c.doAdd(v, true)
	case 0x36, 0x37: // ADDC A,@Ri
		c.doAdd(c.readInd(opcode-0x36), true)
	case 0x38, 0x39, 0x3A, 0x3B, 0x3C, 0x3D, 0x3E, 0x3F: // ADDC A,Rn
		c.doAdd(c.readRn(opcode-0x38), true)

	case 0x94: // SUBB A,#imm
		c.doSub(ops[0], true)
	case 0x95: // SUBB A,direct
		v, err := direct(0)
		if err != nil {
			return err
		}
		c.doSub(v, true)
	case 0x96, 0x97: // SUBB A,@Ri
		c.doSub(c.readInd(opcode-0x96), true)
	case 0x98, 0x99, 0x9A, 0x9B, 0x9C, 0x9D, 0x9E, 0x9F: // SUBB A,Rn
		c.doSub(c.readRn(opcode-0x98), true)

	case 0xA4: // MUL AB
		a, b := c.A(), c.B()
		product := uint16(a) * uint16(b)
		c.SetA(byte(product))
		c.SetB(byte(product >> 8))
		c.setFlag(flagCY, false)
		c.setFlag(flagOV, product > 0xFF)
	case 0x84: // DIV AB
		a, b := c.A(), c.B()
		c.setFlag(flagCY, false)
		if b == 0 {
			c.SetA(0)
			c.SetB(0)
			c.setFlag(flagOV, true)
		} else {
			c.SetA(a / b)
			c.SetB(a % b)
			c.setFlag(flagOV, false)
		}
	case 0xD4: // DA A
		c.decimalAdjust()

	case 0x42: // ORL direct,A
		v, err := direct(0)
		if err != nil {
			return err
		}
		return c.Mem.WriteDirect(ops[0], v|c.A())
	case 0x43: // ORL direct,#imm
		v, err := direct(0)
		if err != nil {
			return err
		}
		return c.Mem.WriteDirect(ops[0], v|ops[1])
	case 0x44: // ORL A,#imm
		c.SetA(c.A() | ops[0])
	case 0x45: // ORL A,direct
		v, err := direct(0)
		if err != nil {
			return err
		}
		c.SetA(c.A() | v)
	case 0x46, 0x47: // ORL A,@Ri
		c.SetA(c.A() | c.readInd(opcode-0x46))
	case 0x48, 0x49, 0x4A, 0x4B, 0x4C, 0x4D, 0x4E, 0x4F: // ORL A,Rn
		c.SetA(c.A() | c.readRn(opcode-0x48))

	case 0x52: // ANL direct,A
		v, err := direct(0)
		if err != nil {
			return err
		}
		return c.Mem.WriteDirect(ops[0], v&c.A())
	case 0x53: // ANL direct,#imm
		v, err := direct(0)
		if err != nil {
			return err
		}
		return c.Mem.WriteDirect(ops[0], v&ops[1])
	case 0x54: // ANL A,#imm
		c.SetA(c.A() & ops[0])
	case 0x55: // ANL A,direct
		v, err := direct(0)
		if err != nil {
			return err
		}
		c.SetA(c.A() & v)
	case 0x56, 0x57: // ANL A,@Ri
		c.SetA(c.A() & c.readInd(opcode-0x56))
	case 0x58, 0x59, 0x5A, 0x5B, 0x5C, 0x5D, 0x5E, 0x5F: // ANL A,Rn
		c.SetA(c.A() & c.readRn(opcode-0x58))

	case 0x62: // XRL direct,A
		v, err := direct(0)
		if err != nil {
			return err
		}
		return c.Mem.WriteDirect(ops[0], v^c.A())
	case 0x63: // XRL direct,#imm
		v, err := direct(0)
		if err != nil {
			return err
		}
		return c.Mem.WriteDirect(ops[0], v^ops[1])
	case 0x64: // XRL A,#imm
		c.SetA(c.A() ^ ops[0])
	case 0x65: // XRL A,direct
		v, err := direct(0)
		if err != nil {
			return err
		}
		c.SetA(c.A() ^ v)
	case 0x66, 0x67: // XRL A,@Ri
		c.SetA(c.A() ^ c.readInd(opcode-0x66))
	case 0x68, 0x69, 0x6A, 0x6B, 0x6C, 0x6D, 0x6E, 0x6F: // XRL A,Rn
		c.SetA(c.A() ^ c.readRn(opcode-0x68))

	case 0xE4: // CLR A
		c.SetA(0)
	case 0xF4: // CPL A
		c.SetA(^c.A())
	case 0x23: // RL A
		a := c.A()
		c.SetA(a<<1 | a>>7)
	case 0x33: // RLC A
		a := c.A()
		var cy byte
		if c.getFlag(flagCY) {
			cy = 1
		}
		c.setFlag(flagCY, a&0x80 != 0)
		c.SetA(a<<1 | cy)
	case 0x03: // RR A
		a := c.A()
		c.SetA(a>>1 | a<<7)
	case 0x13: // RRC A
		a := c.A()
		var cy byte
		if c.getFlag(flagCY) {
			cy = 0x80
		}
		c.setFlag(flagCY, a&0x01 != 0)
		c.SetA(a>>1 | cy)
	case 0xC4: // SWAP A
		a := c.A()
		c.SetA(a<<4 | a>>4)

	case 0xC3: // CLR C
		c.setFlag(flagCY, false)
	case 0xD3: // SETB C
		c.setFlag(flagCY, true)
	case 0xB3: // CPL C
		c.setFlag(flagCY, !c.getFlag(flagCY))
	case 0xC2: // CLR bit
		return c.Mem.WriteBit(ops[0], false)
	case 0xD2: // SETB bit
		return c.Mem.WriteBit(ops[0], true)
	case 0xB2: // CPL bit
		v, err := c.Mem.ReadBit(ops[0])
		if err != nil {
			return err
		}
		return c.Mem.WriteBit(ops[0], !v)
	case 0x72: // ORL C,bit
		v, err := c.Mem.ReadBit(ops[0])
		if err != nil {
			return err
		}
		c.setFlag(flagCY, c.getFlag(flagCY) || v)
	case 0xA0: // ORL C,/bit
		v, err := c.Mem.ReadBit(ops[0])
		if err != nil {
			return err
		}
		c.setFlag(flagCY, c.getFlag(flagCY) || !v)
	case 0x82: // ANL C,bit
		v, err := c.Mem.ReadBit(ops[0])
		if err != nil {
			return err
		}
		c.setFlag(flagCY, c.getFlag(flagCY) && v)
	case 0xB0: // ANL C,/bit
		v, err := c.Mem.ReadBit(ops[0])
		if err != nil {
			return err
		}
		c.setFlag(flagCY, c.getFlag(flagCY) && !v)
	case 0xA2: // MOV C,bit
		v, err := c.Mem.ReadBit(ops[0])
		if err != nil {
			return err
		}
		c.setFlag(flagCY, v)
	case 0x92: // MOV bit,C
		return c.Mem.WriteBit(ops[0], c.getFlag(flagCY))

	case 0x10: // JBC bit,rel
		v, err := c.Mem.ReadBit(ops[0])
		if err != nil {
			return err
		}
		if v {
			if err := c.Mem.WriteBit(ops[0], false); err != nil {
				return err
			}
			c.PC = rel(1)
		}
	case 0x20: // JB bit,rel
		v, err := c.Mem.ReadBit(ops[0])
		if err != nil {
			return err
		}
		if v {
			c.PC = rel(1)
		}
	case 0x30: // JNB bit,rel
		v, err := c.Mem.ReadBit(ops[0])
		if err != nil {
			return err
		}
		if !v {
			c.PC = rel(1)
		}
	case 0x40: // JC rel
		if c.getFlag(flagCY) {
			c.PC = rel(0)
		}
	case 0x50: // JNC rel
		if !c.getFlag(flagCY) {
			c.PC = rel(0)
		}
	case 0x60: // JZ rel
		if c.A() == 0 {
			c.PC = rel(0)
		}
	case 0x70: // JNZ rel
		if c.A() != 0 {
			c.PC = rel(0)
		}

	case 0xB4: // CJNE A,#imm,rel
		a := c.A()
		c.setFlag(flagCY, a < ops[0])
		if a != ops[0] {
			c.PC = rel(1)
		}
	case 0xB5: // CJNE A,direct,rel
		v, err := direct(0)
		if err != nil {
			return err
		}
		a := c.A()
		c.setFlag(flagCY, a < v)
		if a != v {
			c.PC = rel(1)
		}
	case 0xB6, 0xB7: // CJNE @Ri,#imm,rel
		ri := opcode - 0xB6
		v := c.readInd(ri)
		c.setFlag(flagCY, v < ops[0])
		if v != ops[0] {
			c.PC = rel(1)
		}
	case 0xB8, 0xB9, 0xBA, 0xBB, 0xBC, 0xBD, 0xBE, 0xBF: // CJNE Rn,#imm,rel
		n := opcode - 0xB8
		v := c.readRn(n)
		c.setFlag(flagCY, v < ops[0])
		if v != ops[0] {
			c.PC = rel(1)
		}

	case 0xD5: // DJNZ direct,rel
		v, err := direct(0)
		if err != nil {
			return err
		}
		v--
		if err := c.Mem.WriteDirect(ops[0], v); err != nil {
			return err
		}
		if v != 0 {
			c.PC = rel(1)
		}
	case 0xD8, 0xD9, 0xDA, 0xDB, 0xDC, 0xDD, 0xDE, 0xDF: // DJNZ Rn,rel
		n := opcode - 0xD8
		v := c.readRn(n) - 1
		c.writeRn(n, v)
		if v != 0 {
			c.PC = rel(0)
		}

	case 0x74: // MOV A,#imm
		c.SetA(ops[0])
	case 0x75: // MOV direct,#imm
		return c.Mem.WriteDirect(ops[0], ops[1])
	case 0x76, 0x77: // MOV @Ri,#imm
		c.writeInd(opcode-0x76, ops[0])
	case 0x78, 0x79, 0x7A, 0x7B, 0x7C, 0x7D, 0x7E, 0x7F: // MOV Rn,#imm
		c.writeRn(opcode-0x78, ops[0])
	case 0x85: // MOV direct,direct (src, dst — 8051 encodes src first)
		v, err := direct(0)
		if err != nil {
			return err
		}
		return c.Mem.WriteDirect(ops[1], v)
	case 0x86, 0x87: // MOV direct,@Ri
		return c.Mem.WriteDirect(ops[0], c.readInd(opcode-0x86))
	case 0x88, 0x89, 0x8A, 0x8B, 0x8C, 0x8D, 0x8E, 0x8F: // MOV direct,Rn
		return c.Mem.WriteDirect(ops[0], c.readRn(opcode-0x88))
	case 0x90: // MOV DPTR,#imm16
		c.SetDPTR(uint16(ops[0])<<8 | uint16(ops[1]))
	case 0xA6, 0xA7: // MOV @Ri,direct
		v, err := direct(0)
		if err != nil {
			return err
		}
		c.writeInd(opcode-0xA6, v)
	case 0xA8, 0xA9, 0xAA, 0xAB, 0xAC, 0xAD, 0xAE, 0xAF: // MOV Rn,direct
		v, err := direct(0)
		if err != nil {
			return err
		}
		c.writeRn(opcode-0xA8, v)
	case 0xE5: // MOV A,direct
		v, err := direct(0)
		if err != nil {
			return err
		}
		c.SetA(v)
	case 0xE6, 0xE7: // MOV A,@Ri
		c.SetA(c.readInd(opcode - 0xE6))
	case 0xE8, 0xE9, 0xEA, 0xEB, 0xEC, 0xED, 0xEE, 0xEF: // MOV A,Rn
		c.SetA(c.readRn(opcode - 0xE8))
	case 0xF5: // MOV direct,A
		return c.Mem.WriteDirect(ops[0], c.A())
	case 0xF6, 0xF7: // MOV @Ri,A
		c.writeInd(opcode-0xF6, c.A())
	case 0xF8, 0xF9, 0xFA, 0xFB, 0xFC, 0xFD, 0xFE, 0xFF: // MOV Rn,A
		c.writeRn(opcode-0xF8, c.A())

	default:
		return fmt.Errorf("unimplemented opcode %#02x", opcode)
	}
	return nil
}

// decimalAdjust implements DA A, the BCD correction following an ADD.
func (c *CPU) decimalAdjust() {
	a := c.A()
	cy := c.getFlag(flagCY)
	if a&0x0F > 9 || c.getFlag(flagAC) {
		if int(a)+0x06 > 0xFF {
			cy = true
		}
		a += 0x06
	}
	if a&0xF0 > 0x90 || cy {
		a += 0x60
		cy = true
	}
	c.SetA(a)
	c.setFlag(flagCY, cy)
}
