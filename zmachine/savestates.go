package zmachine

import (
	"fmt"

	"github.com/davetcode/zvm/quetzal"
)

// Save asks the embedding layer to write a save-game byte stream. For full
// saves Data holds a complete Quetzal file; auxiliary saves (v5 @save with a
// table) carry the raw table bytes and a suggested filename.
type Save struct {
	Data      []uint8
	Filename  string
	Auxiliary bool
}

// Restore asks the embedding layer for a previously saved byte stream.
type Restore struct {
	Filename  string
	Auxiliary bool
	MaxBytes  uint32
}

type SaveRestoreResponse interface {
	isSaveRestoreResponse()
}

type SaveResponse struct {
	Success bool
}

func (SaveResponse) isSaveRestoreResponse() {}

type RestoreResponse struct {
	Success bool
	Data    []uint8
}

func (RestoreResponse) isSaveRestoreResponse() {}

// saveState is one undo slot. Dynamic memory is held as a CMem-style diff
// against the initial image unless compression is disabled.
type saveState struct {
	compressed []uint8
	memory     []uint8
	stack      []uint16
	callStack  CallStack
}

type undoRing struct {
	states   []saveState
	maxSaves int
}

// captureQuetzalState maps the live machine onto the Quetzal wire model:
// each frame carries its own evaluation-stack segment, frame k's return PC
// is where frame k-1 paused, and the live PC travels in IFhd.
func (z *ZMachine) captureQuetzalState() *quetzal.State {
	frames := z.callStack.frames

	state := quetzal.State{
		Release:  z.Core.ReleaseNumber,
		Serial:   z.Core.Serial,
		Checksum: z.Core.FileChecksum,
		PC:       frames[len(frames)-1].pc,
		Memory:   make([]uint8, z.Core.StaticMemoryBase),
		Frames:   make([]quetzal.Frame, len(frames)),
	}
	copy(state.Memory, z.Core.DynamicMemory())

	for i, frame := range frames {
		qframe := quetzal.Frame{
			NArgs:  frame.nargs,
			Locals: make([]uint16, len(frame.locals)),
		}
		copy(qframe.Locals, frame.locals)

		if i > 0 {
			qframe.ReturnPC = frames[i-1].pc
		}

		if frame.where <= 0xff {
			qframe.StoreVariable = uint8(frame.where)
		} else {
			qframe.DiscardResult = true
		}

		stackEnd := len(z.stack)
		if i+1 < len(frames) {
			stackEnd = frames[i+1].stackBase
		}
		qframe.Stack = make([]uint16, stackEnd-frame.stackBase)
		copy(qframe.Stack, z.stack[frame.stackBase:stackEnd])

		state.Frames[i] = qframe
	}

	return &state
}

type restoreSnapshot struct {
	memory    []uint8
	stack     []uint16
	callStack CallStack
}

func (z *ZMachine) takeSnapshot() restoreSnapshot {
	snapshot := restoreSnapshot{
		memory:    make([]uint8, z.Core.StaticMemoryBase),
		stack:     make([]uint16, len(z.stack)),
		callStack: z.callStack.copy(),
	}
	copy(snapshot.memory, z.Core.DynamicMemory())
	copy(snapshot.stack, z.stack)
	return snapshot
}

func (z *ZMachine) applySnapshot(snapshot restoreSnapshot) {
	copy(z.Core.DynamicMemory(), snapshot.memory)
	z.stack = z.stack[:0]
	z.stack = append(z.stack, snapshot.stack...)
	z.callStack = snapshot.callStack
}

// applyQuetzalState validates a decoded save against the running story and
// installs it. Any failure after mutation begins rolls back to a snapshot,
// as the standard requires that a failed restore not leave the game in an
// inconsistent state.
func (z *ZMachine) applyQuetzalState(state *quetzal.State) (err error) {
	if state.Release != z.Core.ReleaseNumber || state.Serial != z.Core.Serial || state.Checksum != z.Core.FileChecksum {
		return fmt.Errorf("save file is for a different game or version")
	}
	if len(state.Memory) != int(z.Core.StaticMemoryBase) {
		return fmt.Errorf("save file dynamic memory size mismatch")
	}
	if len(state.Frames) == 0 {
		return fmt.Errorf("save file has no call frames")
	}
	if len(state.Frames) > z.callStack.maxDepth {
		return fmt.Errorf("save file call stack deeper than this interpreter allows")
	}
	if state.PC >= z.Core.MemoryLength() {
		return fmt.Errorf("save file program counter out of range")
	}

	snapshot := z.takeSnapshot()
	defer func() {
		if r := recover(); r != nil {
			z.applySnapshot(snapshot)
			err = fmt.Errorf("structural error applying save: %v", r)
		}
	}()

	frames := make([]CallStackFrame, len(state.Frames))
	var stack []uint16
	for i, qframe := range state.Frames {
		frame := CallStackFrame{
			stackBase: len(stack),
			nargs:     qframe.NArgs,
			locals:    make([]uint16, len(qframe.Locals)),
			where:     storeDiscard,
		}
		copy(frame.locals, qframe.Locals)
		if !qframe.DiscardResult {
			frame.where = uint16(qframe.StoreVariable)
		}

		stack = append(stack, qframe.Stack...)
		if i > 0 {
			frames[i-1].pc = qframe.ReturnPC
		}
		frames[i] = frame
	}
	frames[len(frames)-1].pc = state.PC

	if len(stack) > z.options.EvalStackSize {
		return fmt.Errorf("save file evaluation stack larger than this interpreter allows")
	}

	// Flags 2 is preserved across restore (§6.1.2)
	flags2 := z.Core.ReadHalfWord(0x10)

	copy(z.Core.DynamicMemory(), state.Memory)
	z.stack = stack
	z.callStack.frames = frames

	z.Core.WriteHeader()
	z.Core.WriteHalfWord(0x10, flags2)

	return nil
}

// readSaveFilename reads a length-prefixed ASCII string (not a Z-string),
// the form §7.6 uses for auxiliary-file names.
func (z *ZMachine) readSaveFilename(address uint32) string {
	if address == 0 {
		return ""
	}

	length := z.Core.ReadByte(address)
	name := make([]byte, length)
	for i := uint8(0); i < length; i++ {
		name[i] = z.Core.ReadByte(address + 1 + uint32(i))
	}
	return string(name)
}

// saveOutcome routes a save/restore result through the opcode's own
// store/branch channel: v1-3 branch, v4+ store.
func (z *ZMachine) saveOutcome(result uint16) {
	frame := z.callStack.peek()
	if z.Core.Version <= 3 {
		z.handleBranch(frame, result != 0)
	} else {
		z.writeVariable(z.readIncPC(frame), result, false)
	}
}

func (z *ZMachine) opSave(opcode *Opcode) {
	if z.interruptLevel != 0 {
		panic("@save called inside an interrupt routine")
	}

	// v5 auxiliary form: @save table bytes name
	if len(opcode.operands) > 0 {
		table := uint32(opcode.operands[0].Value(z))
		length := uint32(opcode.operands[1].Value(z))
		filename := ""
		if len(opcode.operands) > 2 {
			filename = z.readSaveFilename(uint32(opcode.operands[2].Value(z)))
		}

		z.flushOutput()
		z.outputChannel <- Save{
			Data:      z.Core.ReadSlice(table, table+length),
			Filename:  filename,
			Auxiliary: true,
		}
		response := <-z.saveRestoreChannel

		result := uint16(0)
		if r, ok := response.(SaveResponse); ok && r.Success {
			result = 1
		}
		z.writeVariable(z.readIncPC(z.callStack.peek()), result, false)
		return
	}

	// The captured PC points at this instruction's store/branch byte, so a
	// later restore lands there and reports success through it.
	state := z.captureQuetzalState()
	data := quetzal.Encode(state, z.Core.InitialDynamic(), z.StoryFilename)

	z.flushOutput()
	z.outputChannel <- Save{Data: data}
	response := <-z.saveRestoreChannel

	result := uint16(0)
	if r, ok := response.(SaveResponse); ok && r.Success {
		result = 1
	}
	z.saveOutcome(result)
}

func (z *ZMachine) opRestore(opcode *Opcode) {
	// v5 auxiliary form: @restore table bytes name
	if len(opcode.operands) > 0 {
		table := uint32(opcode.operands[0].Value(z))
		length := uint32(opcode.operands[1].Value(z))
		filename := ""
		if len(opcode.operands) > 2 {
			filename = z.readSaveFilename(uint32(opcode.operands[2].Value(z)))
		}

		z.flushOutput()
		z.outputChannel <- Restore{Filename: filename, Auxiliary: true, MaxBytes: length}
		response := <-z.saveRestoreChannel

		loaded := uint16(0)
		if r, ok := response.(RestoreResponse); ok && r.Success {
			data := r.Data
			if uint32(len(data)) > length {
				data = data[:length]
			}
			for i, b := range data {
				z.Core.UserWriteByte(table+uint32(i), b)
			}
			loaded = uint16(len(data))
		}
		z.writeVariable(z.readIncPC(z.callStack.peek()), loaded, false)
		return
	}

	z.flushOutput()
	z.outputChannel <- Restore{}
	response := <-z.saveRestoreChannel

	r, ok := response.(RestoreResponse)
	if !ok || !r.Success {
		z.saveOutcome(0)
		return
	}

	state, err := quetzal.Decode(r.Data, z.Core.InitialDynamic())
	if err == nil {
		err = z.applyQuetzalState(state)
	}
	if err != nil {
		z.warnOnce("restore_failed", "Warning: restore failed: %v", err)
		z.saveOutcome(0)
		return
	}

	// §8.6.1.3: v3 closes the upper window on restore
	if z.Core.Version == 3 {
		z.screenModel.UpperWindowHeight = 0
		z.outputChannel <- z.screenModel
		z.showStatus()
	}

	// The restored PC points at the original @save's store/branch byte;
	// report 2 ("restored") through it.
	z.saveOutcome(2)
}

func (z *ZMachine) opRestart(*Opcode) {
	z.restartRequested = true
}

func (z *ZMachine) opSaveUndo(*Opcode) {
	if z.interruptLevel != 0 {
		panic("@save_undo called inside an interrupt routine")
	}

	if z.undoStates.maxSaves == 0 {
		// Undo isn't provided; -1 tells the story so
		z.writeVariable(z.readIncPC(z.callStack.peek()), 0xffff, false)
		return
	}

	state := saveState{
		stack:     make([]uint16, len(z.stack)),
		callStack: z.callStack.copy(),
	}
	copy(state.stack, z.stack)

	if z.options.DisableUndoCompression {
		state.memory = make([]uint8, z.Core.StaticMemoryBase)
		copy(state.memory, z.Core.DynamicMemory())
	} else {
		state.compressed = quetzal.Compress(z.Core.DynamicMemory(), z.Core.InitialDynamic())
	}

	// Drop the oldest state when the ring fills; a negative max means
	// unbounded
	if z.undoStates.maxSaves > 0 && len(z.undoStates.states) >= z.undoStates.maxSaves {
		z.undoStates.states = z.undoStates.states[1:]
	}
	z.undoStates.states = append(z.undoStates.states, state)

	z.writeVariable(z.readIncPC(z.callStack.peek()), 1, false)
}

func (z *ZMachine) opRestoreUndo(*Opcode) {
	if len(z.undoStates.states) == 0 {
		z.writeVariable(z.readIncPC(z.callStack.peek()), 0, false)
		return
	}

	state := z.undoStates.states[len(z.undoStates.states)-1]
	z.undoStates.states = z.undoStates.states[:len(z.undoStates.states)-1]

	memory := state.memory
	if memory == nil {
		// Unlike a save file the diff is known to be good: it was built
		// by us with no chance for corruption, so failure here is a bug.
		uncompressed, err := quetzal.Uncompress(state.compressed, z.Core.InitialDynamic())
		if err != nil {
			panic(fmt.Sprintf("error uncompressing undo state: %v", err))
		}
		memory = uncompressed
	}

	// Flags 2 is preserved across undo like any other restore
	flags2 := z.Core.ReadHalfWord(0x10)
	copy(z.Core.DynamicMemory(), memory)
	z.Core.WriteHalfWord(0x10, flags2)

	z.stack = z.stack[:0]
	z.stack = append(z.stack, state.stack...)
	z.callStack = state.callStack

	// The restored top frame's PC sits at the matching @save_undo's store
	// byte; storing 2 there tells the story it came back via undo.
	z.writeVariable(z.readIncPC(z.callStack.peek()), 2, false)
}
