package zmachine

// All Z-machine arithmetic is modulo 2^16; signed opcodes reinterpret the
// same bits as two's complement. Go's uint16 wraparound gives the defined
// semantics directly, but shifts of negative values are spelled out by hand
// per §15's art_shift/log_shift contracts.

func (z *ZMachine) storeResult(value uint16) {
	z.writeVariable(z.readIncPC(z.callStack.peek()), value, false)
}

func (z *ZMachine) opAdd(opcode *Opcode) {
	z.storeResult(opcode.operands[0].Value(z) + opcode.operands[1].Value(z))
}

func (z *ZMachine) opSub(opcode *Opcode) {
	z.storeResult(opcode.operands[0].Value(z) - opcode.operands[1].Value(z))
}

func (z *ZMachine) opMul(opcode *Opcode) {
	z.storeResult(opcode.operands[0].Value(z) * opcode.operands[1].Value(z))
}

// Quotients truncate toward zero and @mod takes the sign of the dividend,
// which is what Go's operators do for signed integers.
func (z *ZMachine) opDiv(opcode *Opcode) {
	numerator := int16(opcode.operands[0].Value(z))
	denominator := int16(opcode.operands[1].Value(z))
	if denominator == 0 {
		panic("divide by zero")
	}
	z.storeResult(uint16(numerator / denominator))
}

func (z *ZMachine) opMod(opcode *Opcode) {
	numerator := int16(opcode.operands[0].Value(z))
	denominator := int16(opcode.operands[1].Value(z))
	if denominator == 0 {
		panic("divide by zero")
	}
	z.storeResult(uint16(numerator % denominator))
}

func (z *ZMachine) opOr(opcode *Opcode) {
	z.storeResult(opcode.operands[0].Value(z) | opcode.operands[1].Value(z))
}

func (z *ZMachine) opAnd(opcode *Opcode) {
	z.storeResult(opcode.operands[0].Value(z) & opcode.operands[1].Value(z))
}

func (z *ZMachine) opNot(opcode *Opcode) {
	z.storeResult(^opcode.operands[0].Value(z))
}

func (z *ZMachine) opTest(opcode *Opcode) {
	bitmap := opcode.operands[0].Value(z)
	flags := opcode.operands[1].Value(z)
	z.handleBranch(z.callStack.peek(), bitmap&flags == flags)
}

func (z *ZMachine) opJz(opcode *Opcode) {
	z.handleBranch(z.callStack.peek(), opcode.operands[0].Value(z) == 0)
}

func (z *ZMachine) opJe(opcode *Opcode) {
	a := opcode.operands[0].Value(z)
	branch := false
	for ix := 1; ix < len(opcode.operands); ix++ {
		if a == opcode.operands[ix].Value(z) {
			branch = true
		}
	}
	z.handleBranch(z.callStack.peek(), branch)
}

func (z *ZMachine) opJl(opcode *Opcode) {
	z.handleBranch(z.callStack.peek(), int16(opcode.operands[0].Value(z)) < int16(opcode.operands[1].Value(z)))
}

func (z *ZMachine) opJg(opcode *Opcode) {
	z.handleBranch(z.callStack.peek(), int16(opcode.operands[0].Value(z)) > int16(opcode.operands[1].Value(z)))
}

func (z *ZMachine) opInc(opcode *Opcode) {
	variable := uint8(opcode.operands[0].Value(z))
	z.writeVariable(variable, z.readVariable(variable, true)+1, true)
}

func (z *ZMachine) opDec(opcode *Opcode) {
	variable := uint8(opcode.operands[0].Value(z))
	z.writeVariable(variable, z.readVariable(variable, true)-1, true)
}

func (z *ZMachine) opIncChk(opcode *Opcode) {
	variable := uint8(opcode.operands[0].Value(z))
	newValue := z.readVariable(variable, true) + 1
	z.writeVariable(variable, newValue, true)

	z.handleBranch(z.callStack.peek(), int16(newValue) > int16(opcode.operands[1].Value(z)))
}

func (z *ZMachine) opDecChk(opcode *Opcode) {
	variable := uint8(opcode.operands[0].Value(z))
	newValue := z.readVariable(variable, true) - 1
	z.writeVariable(variable, newValue, true)

	z.handleBranch(z.callStack.peek(), int16(newValue) < int16(opcode.operands[1].Value(z)))
}

// Shifting more than 15 places is undefined by the standard but must not be
// undefined here, so it clamps to the all-shifted-out result.
func (z *ZMachine) opLogShift(opcode *Opcode) {
	number := opcode.operands[0].Value(z)
	places := int16(opcode.operands[1].Value(z))

	switch {
	case places < -15 || places > 15:
		z.storeResult(0)
	case places < 0:
		z.storeResult(number >> -places)
	default:
		z.storeResult(number << places)
	}
}

// Arithmetic right shift must propagate the sign bit. A negative value is
// complemented, shifted with zero fill, and complemented back, which turns
// the shifted-in zeroes into ones without relying on implementation-defined
// native behaviour.
func (z *ZMachine) opArtShift(opcode *Opcode) {
	number := opcode.operands[0].Value(z)
	places := int16(opcode.operands[1].Value(z))
	negative := int16(number) < 0

	switch {
	case places < -15 || places > 15:
		if negative {
			z.storeResult(0xffff)
		} else {
			z.storeResult(0)
		}
	case places < 0:
		if negative {
			z.storeResult(^(^number >> -places))
		} else {
			z.storeResult(number >> -places)
		}
	default:
		z.storeResult(number << places)
	}
}
