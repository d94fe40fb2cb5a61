package zmachine

import (
	"fmt"
	"time"
)

func (z *ZMachine) opRTrue(*Opcode) {
	z.retValue(1)
}

func (z *ZMachine) opRFalse(*Opcode) {
	z.retValue(0)
}

func (z *ZMachine) opNop(*Opcode) {
}

func (z *ZMachine) opQuit(*Opcode) {
	z.running = false
}

func (z *ZMachine) opRet(opcode *Opcode) {
	z.retValue(opcode.operands[0].Value(z))
}

func (z *ZMachine) opRetPopped(*Opcode) {
	z.retValue(z.pop())
}

func (z *ZMachine) opPop(*Opcode) {
	z.pop()
}

func (z *ZMachine) opJump(opcode *Opcode) {
	frame := z.callStack.peek()
	offset := int16(opcode.operands[0].Value(z))

	destination := uint32(int32(frame.pc) + int32(offset) - 2)
	if destination >= z.Core.MemoryLength() {
		panic(fmt.Sprintf("@jump to invalid address 0x%x", destination))
	}
	frame.pc = destination
}

func (z *ZMachine) opLoad(opcode *Opcode) {
	value := z.readVariable(uint8(opcode.operands[0].Value(z)), true)
	z.writeVariable(z.readIncPC(z.callStack.peek()), value, false)
}

func (z *ZMachine) opStore(opcode *Opcode) {
	z.writeVariable(uint8(opcode.operands[0].Value(z)), opcode.operands[1].Value(z), true)
}

func (z *ZMachine) opPush(opcode *Opcode) {
	z.push(opcode.operands[0].Value(z))
}

func (z *ZMachine) opPull(opcode *Opcode) {
	if z.Core.Version != 6 {
		z.writeVariable(uint8(opcode.operands[0].Value(z)), z.pop(), true)
		return
	}

	// v6: with an operand, pull from a user stack in memory instead
	if len(opcode.operands) == 0 {
		z.writeVariable(z.readIncPC(z.callStack.peek()), z.pop(), false)
		return
	}

	table := uint32(opcode.operands[0].Value(z))
	slots := z.Core.ReadHalfWord(table) + 1
	value := z.Core.ReadHalfWord(table + 2*uint32(slots))
	z.Core.UserWriteHalfWord(table, slots)
	z.writeVariable(z.readIncPC(z.callStack.peek()), value, false)
}

func (z *ZMachine) opCall1S(opcode *Opcode) { z.call(opcode, function) }
func (z *ZMachine) opCall1N(opcode *Opcode) { z.call(opcode, procedure) }
func (z *ZMachine) opCall2S(opcode *Opcode) { z.call(opcode, function) }
func (z *ZMachine) opCall2N(opcode *Opcode) { z.call(opcode, procedure) }
func (z *ZMachine) opCallVS(opcode *Opcode) { z.call(opcode, function) }
func (z *ZMachine) opCallVS2(opcode *Opcode) { z.call(opcode, function) }
func (z *ZMachine) opCallVN(opcode *Opcode) { z.call(opcode, procedure) }
func (z *ZMachine) opCallVN2(opcode *Opcode) { z.call(opcode, procedure) }

// opCatch stores the current frame depth. The dummy frame of non-v6 stories
// is invisible to the program.
func (z *ZMachine) opCatch(*Opcode) {
	depth := z.callStack.depth()
	if z.Core.Version != 6 {
		depth--
	}
	z.writeVariable(z.readIncPC(z.callStack.peek()), uint16(depth), false)
}

// opThrow unwinds to the frame depth a previous @catch captured, then
// returns the value from there.
func (z *ZMachine) opThrow(opcode *Opcode) {
	value := opcode.operands[0].Value(z)
	target := int(opcode.operands[1].Value(z))
	if z.Core.Version != 6 {
		target++ // account for the dummy frame
	}

	if target < 1 || target > z.callStack.depth() {
		panic(fmt.Sprintf("@throw unwinding too far (to %d of %d frames)", target, z.callStack.depth()))
	}

	z.callStack.frames = z.callStack.frames[:target]
	z.retValue(value)
}

func (z *ZMachine) opCheckArgCount(opcode *Opcode) {
	frame := z.callStack.peek()
	z.handleBranch(frame, int(opcode.operands[0].Value(z)) <= frame.nargs)
}

func (z *ZMachine) opVerify(*Opcode) {
	z.handleBranch(z.callStack.peek(), z.Core.Checksum() == z.Core.FileChecksum)
}

// Interpreters are asked to be gullible and branch unconditionally.
func (z *ZMachine) opPiracy(*Opcode) {
	z.handleBranch(z.callStack.peek(), true)
}

func (z *ZMachine) opRandom(opcode *Opcode) {
	n := int16(opcode.operands[0].Value(z))
	result := uint16(0)

	switch {
	case n < 0:
		z.rng.Seed(int64(-n)) // predictable mode
	case n == 0:
		z.rng.Seed(time.Now().UnixNano())
	default:
		result = uint16(z.rng.Int31n(int32(n))) + 1
	}

	z.writeVariable(z.readIncPC(z.callStack.peek()), result, false)
}

// opPopStack throws away entries from the system stack, or shrinks a v6
// user stack when given one.
func (z *ZMachine) opPopStack(opcode *Opcode) {
	count := opcode.operands[0].Value(z)

	if len(opcode.operands) == 1 {
		for i := uint16(0); i < count; i++ {
			z.pop()
		}
		return
	}

	table := uint32(opcode.operands[1].Value(z))
	z.Core.UserWriteHalfWord(table, z.Core.ReadHalfWord(table)+count)
}

// opPushStack pushes onto a v6 user stack, branching on success.
func (z *ZMachine) opPushStack(opcode *Opcode) {
	value := opcode.operands[0].Value(z)
	table := uint32(opcode.operands[1].Value(z))
	frame := z.callStack.peek()

	slots := z.Core.ReadHalfWord(table)
	if slots == 0 {
		z.handleBranch(frame, false)
		return
	}

	z.Core.UserWriteHalfWord(table+2*uint32(slots), value)
	z.Core.UserWriteHalfWord(table, slots-1)
	z.handleBranch(frame, true)
}

// Stubs for the v6 graphics surface, which has no meaningful implementation
// without a picture-capable backend.
func (z *ZMachine) opStubNoOp(*Opcode) {
	z.warnOnce("v6_graphics", "Warning: v6 graphics opcode ignored (PC = 0x%x)", z.currentInstructionPC)
}

func (z *ZMachine) opStubBranch(*Opcode) {
	z.warnOnce("v6_graphics", "Warning: v6 graphics opcode ignored (PC = 0x%x)", z.currentInstructionPC)
	z.handleBranch(z.callStack.peek(), false)
}

func (z *ZMachine) opStubStoreZero(*Opcode) {
	z.warnOnce("v6_graphics", "Warning: v6 graphics opcode ignored (PC = 0x%x)", z.currentInstructionPC)
	z.writeVariable(z.readIncPC(z.callStack.peek()), 0, false)
}
