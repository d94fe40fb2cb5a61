package zmachine

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/davetcode/zvm/dictionary"
	"github.com/davetcode/zvm/zcore"
	"github.com/davetcode/zvm/zobject"
	"github.com/davetcode/zvm/zstring"
)

type StatusBar struct {
	PlaceName   string
	Score       int
	Moves       int
	IsTimeBased bool
}

type Quit bool

type RuntimeError string

type Warning string

type EraseWindowRequest int

type EraseLineRequest bool

// TranscriptUpdate and CommandScriptUpdate carry stream 2 and stream 4 text;
// the embedding layer owns the files they land in.
type TranscriptUpdate string

type CommandScriptUpdate string

// InputStreamRequest asks the embedding layer to switch between keyboard
// input (0) and replay-file input (1).
type InputStreamRequest int

type SoundEffectRequest struct {
	SoundNumber uint16
	Effect      uint16
	Volume      uint16
	Routine     uint16
}

// InputRequest solicits a line of input. Time/Routine carry the v4+ timed
// input contract: call Routine every Time tenths of a second until the line
// is done.
type InputRequest struct {
	ValidTerminators []uint8
	MaxChars         int
	Time             uint16
	Routine          uint16
}

// CharacterRequest solicits a single keypress, with the same optional timer.
type CharacterRequest struct {
	Time    uint16
	Routine uint16
}

type InputResponse struct {
	Text           string
	TerminatingKey uint8
	Timeout        bool // the timer fired before the line/key arrived
}

type RoutineType int

const (
	function RoutineType = iota
	procedure
	interrupt
)

type MemoryStreamData struct {
	baseAddress uint32
	ptr         uint32
}

type Streams struct {
	Screen           bool
	Transcript       bool
	Memory           bool
	MemoryStreamData []MemoryStreamData
	CommandScript    bool
}

type ZMachine struct {
	Core          zcore.Core
	Alphabets     *zstring.Alphabets
	StoryFilename string

	callStack CallStack
	stack     []uint16
	options   zcore.Options
	dispatch  *dispatchTable
	quirks    storyQuirks

	dictionary  *dictionary.Dictionary
	screenModel ScreenModel
	streams     Streams
	rng         *rand.Rand

	outputChannel      chan<- any
	inputChannel       <-chan InputResponse
	saveRestoreChannel <-chan SaveRestoreResponse

	undoStates undoRing

	pendingOutput     strings.Builder
	pendingTranscript strings.Builder

	running              bool
	restartRequested     bool
	interruptLevel       int
	currentInstructionPC uint32
	warned               map[string]bool
}

// LoadRom builds a machine around a story image (optionally Blorb-wrapped)
// and rewrites the interpreter-owned header fields.
func LoadRom(storyFile []uint8, options zcore.Options, inputChannel <-chan InputResponse, saveRestoreChannel <-chan SaveRestoreResponse, outputChannel chan<- any) (*ZMachine, error) {
	storyBytes, err := zcore.Unwrap(storyFile)
	if err != nil {
		return nil, err
	}

	core, err := zcore.LoadCore(storyBytes, options)
	if err != nil {
		return nil, err
	}

	seed := options.RandomSeed
	if seed < 0 {
		seed = time.Now().UnixNano()
	}

	machine := ZMachine{
		Core:               core,
		options:            options,
		callStack:          newCallStack(options.CallStackSize),
		stack:              make([]uint16, 0, options.EvalStackSize),
		inputChannel:       inputChannel,
		saveRestoreChannel: saveRestoreChannel,
		outputChannel:      outputChannel,
		streams: Streams{
			Screen: true,
		},
		rng:     rand.New(rand.NewSource(seed)),
		running: true,
		warned:  make(map[string]bool),
		undoStates: undoRing{
			maxSaves: options.MaxSaves,
		},
	}

	machine.Alphabets = zstring.LoadAlphabets(&machine.Core)
	machine.dispatch = setupOpcodes(core.Version)
	machine.quirks = lookupQuirks(machine.Core.StoryID())
	if machine.Core.DictionaryBase != 0 {
		machine.dictionary = dictionary.ParseDictionary(uint32(machine.Core.DictionaryBase), &machine.Core, machine.Alphabets)
	} else {
		machine.dictionary = &dictionary.Dictionary{}
	}
	machine.screenModel = newScreenModel(Black, White)
	machine.Core.TranscriptHook = machine.setTranscript

	machine.applyQuirks()
	machine.pushInitialFrame()

	if options.TranscriptOn {
		machine.Core.UserWriteByte(0x11, machine.Core.ReadByte(0x11)|uint8(zcore.Flags2Transcript))
	}
	if options.ScriptOn {
		machine.streams.CommandScript = true
	}

	return &machine, nil
}

func (z *ZMachine) pushInitialFrame() {
	if z.Core.Version == 6 {
		// v6 stories begin with a routine rather than a raw instruction
		address := z.Core.UnpackRoutine(z.Core.FirstInstruction)
		z.callStack.push(CallStackFrame{
			pc:     address + 1,
			locals: make([]uint16, z.Core.ReadByte(address)),
			where:  storeDiscard,
		})
	} else {
		// The bottom frame doubles as the dummy frame Quetzal requires
		z.callStack.push(CallStackFrame{
			pc:     uint32(z.Core.FirstInstruction),
			locals: make([]uint16, 0),
			where:  storeDiscard,
		})
	}
}

func (z *ZMachine) readIncPC(frame *CallStackFrame) uint8 {
	v := z.Core.ReadByte(frame.pc)
	frame.pc++
	return v
}

func (z *ZMachine) readHalfWordIncPC(frame *CallStackFrame) uint16 {
	v := z.Core.ReadHalfWord(frame.pc)
	frame.pc += 2
	return v
}

func (z *ZMachine) push(value uint16) {
	if len(z.stack) >= z.options.EvalStackSize {
		panic("stack overflow")
	}
	z.stack = append(z.stack, value)
}

func (z *ZMachine) pop() uint16 {
	if len(z.stack) <= z.callStack.peek().stackBase {
		panic("stack underflow")
	}
	v := z.stack[len(z.stack)-1]
	z.stack = z.stack[:len(z.stack)-1]
	return v
}

// stackTop gives in-place access for the §1.1 indirect-reference rules.
func (z *ZMachine) stackTop() *uint16 {
	if len(z.stack) <= z.callStack.peek().stackBase {
		panic("stack underflow")
	}
	return &z.stack[len(z.stack)-1]
}

// readVariable resolves a variable index: 0 is the stack, 1-15 the current
// frame's locals, 16-255 the globals. The seven opcodes that take indirect
// variable references read variable 0 in place rather than popping.
func (z *ZMachine) readVariable(variable uint8, indirect bool) uint16 {
	switch {
	case variable == 0:
		if indirect {
			return *z.stackTop()
		}
		return z.pop()
	case variable < 16:
		frame := z.callStack.peek()
		if int(variable) > len(frame.locals) {
			panic(fmt.Sprintf("attempt to read nonexistent local variable %d: routine has %d", variable, len(frame.locals)))
		}
		return frame.locals[variable-1]
	default:
		return z.Core.ReadHalfWord(uint32(z.Core.GlobalVariableBase) + 2*(uint32(variable)-16))
	}
}

func (z *ZMachine) writeVariable(variable uint8, value uint16, indirect bool) {
	switch {
	case variable == 0:
		if indirect {
			*z.stackTop() = value
		} else {
			z.push(value)
		}
	case variable < 16:
		frame := z.callStack.peek()
		if int(variable) > len(frame.locals) {
			panic(fmt.Sprintf("attempt to store to nonexistent local variable %d: routine has %d", variable, len(frame.locals)))
		}
		frame.locals[variable-1] = value
	default:
		z.Core.WriteHalfWord(uint32(z.Core.GlobalVariableBase)+2*(uint32(variable)-16), value)
	}
}

// call pushes a frame for the routine in operand 0, overlaying the remaining
// operands onto its locals. Calling address 0 stores 0 without a frame.
func (z *ZMachine) call(opcode *Opcode, routineType RoutineType) {
	packed := opcode.operands[0].Value(z)
	frame := z.callStack.peek()

	var where uint16
	switch routineType {
	case function:
		where = uint16(z.readIncPC(frame))
	case procedure:
		where = storeDiscard
	case interrupt:
		where = storePush
	}

	if packed == 0 {
		switch where {
		case storeDiscard:
		case storePush:
			z.push(0)
		default:
			z.writeVariable(uint8(where), 0, false)
		}
		return
	}

	routineAddress := z.Core.UnpackRoutine(packed)
	localVariableCount := z.Core.ReadByte(routineAddress)
	routineAddress++
	if localVariableCount > 15 {
		panic(fmt.Sprintf("too many (%d) locals at 0x%x", localVariableCount, routineAddress-1))
	}

	locals := make([]uint16, localVariableCount)
	for i := 0; i < int(localVariableCount); i++ {
		if z.Core.Version < 5 {
			locals[i] = z.Core.ReadHalfWord(routineAddress)
			routineAddress += 2
		}
		if i+1 < len(opcode.operands) {
			locals[i] = opcode.operands[i+1].Value(z)
		}
	}

	nargs := len(opcode.operands) - 1
	if nargs > 7 {
		nargs = 7
	}

	z.callStack.push(CallStackFrame{
		pc:        routineAddress,
		stackBase: len(z.stack),
		locals:    locals,
		nargs:     nargs,
		where:     where,
	})
}

// retValue pops the current frame, truncates its evaluation-stack segment
// and routes the return value per the frame's destination tag.
func (z *ZMachine) retValue(value uint16) {
	if z.callStack.depth() <= 1 {
		panic("return attempted outside of a function")
	}

	frame := z.callStack.pop()
	z.stack = z.stack[:frame.stackBase]

	switch frame.where {
	case storeDiscard:
	case storePush:
		z.push(value)
	default:
		z.writeVariable(uint8(frame.where), value, false)
	}
}

// directCall re-enters the dispatch loop to run a routine on behalf of the
// input layer (timed-input and sound callbacks), returning its result. The
// push-on-return tag lets the loop detect the matching return by depth.
func (z *ZMachine) directCall(routine uint16, args ...uint16) uint16 {
	operands := []Operand{{operandType: largeConstant, value: routine}}
	for _, arg := range args {
		operands = append(operands, Operand{operandType: largeConstant, value: arg})
	}

	depth := z.callStack.depth()
	z.interruptLevel++
	z.call(&Opcode{operands: operands}, interrupt)

	for z.running && z.callStack.depth() > depth {
		z.step()
	}
	z.interruptLevel--

	return z.pop()
}

func (z *ZMachine) handleBranch(frame *CallStackFrame, result bool) {
	branchArg1 := z.readIncPC(frame)

	branchReversed := (branchArg1>>7)&1 == 0
	singleByte := (branchArg1>>6)&1 == 1
	offset := int32(branchArg1 & 0b11_1111)

	if !singleByte {
		// 14-bit signed offset: sign extend from bit 13
		offset = int32(int16((uint16(branchArg1&0b11_1111)<<8|uint16(z.readIncPC(frame)))<<2) >> 2)
	}

	if result != branchReversed {
		switch offset {
		case 0:
			z.retValue(0)
		case 1:
			z.retValue(1)
		default:
			destination := uint32(int32(frame.pc) + offset - 2)
			if destination >= z.Core.MemoryLength() {
				panic(fmt.Sprintf("branch to invalid address 0x%x", destination))
			}
			frame.pc = destination
		}
	}
}

// warnOnce reports a non-fatal condition through the output channel, at most
// once per key so a warning in a loop doesn't flood the screen.
func (z *ZMachine) warnOnce(key string, format string, args ...any) {
	if z.warned[key] {
		return
	}
	z.warned[key] = true
	z.outputChannel <- Warning(fmt.Sprintf(format, args...))
}

// appendText routes interpreter output. While a memory stream is selected it
// captures everything and the other streams see nothing (§7.1.2.2).
func (z *ZMachine) appendText(s string) {
	if z.streams.Memory {
		currentMemoryStream := &z.streams.MemoryStreamData[len(z.streams.MemoryStreamData)-1]
		for _, r := range s {
			zscii, ok := z.Alphabets.UnicodeToZscii(r)
			if !ok {
				zscii = '?'
			}
			z.Core.WriteByte(currentMemoryStream.ptr, uint8(zscii))
			currentMemoryStream.ptr++
		}
		return
	}

	if z.streams.Screen {
		z.pendingOutput.WriteString(s)
	}
	if z.streams.Transcript {
		z.pendingTranscript.WriteString(s)
	}
}

// flushOutput pushes buffered text to the UI. Runs at each instruction
// boundary and always before input is solicited.
func (z *ZMachine) flushOutput() {
	if z.pendingOutput.Len() > 0 {
		s := z.pendingOutput.String()
		z.pendingOutput.Reset()

		z.outputChannel <- s

		// Writes to the upper window move its cursor
		if !z.screenModel.LowerWindowActive {
			lines := strings.Split(s, "\n")
			z.screenModel.UpperWindowCursorY += len(lines) - 1
			if len(lines) > 1 {
				z.screenModel.UpperWindowCursorX = 1
			}
			z.screenModel.UpperWindowCursorX += len(lines[len(lines)-1])
			z.outputChannel <- z.screenModel
		}
	}

	if z.pendingTranscript.Len() > 0 {
		z.outputChannel <- TranscriptUpdate(z.pendingTranscript.String())
		z.pendingTranscript.Reset()
	}
}

// setTranscript is the hook the memory layer calls when the story toggles
// the Flags 2 transcript bit, keeping stream 2 in sync.
func (z *ZMachine) setTranscript(enabled bool) {
	z.streams.Transcript = enabled
}

func (z *ZMachine) Run() {
	defer func() {
		if r := recover(); r != nil {
			z.flushOutput()
			z.outputChannel <- RuntimeError(fmt.Sprintf("%v (PC = 0x%x)", r, z.currentInstructionPC))
		}
	}()

	// Initialise whatever is listening with the first screen model
	z.outputChannel <- z.screenModel

	for z.running {
		z.step()

		if z.restartRequested {
			z.restartRequested = false
			z.restart()
		}
	}

	z.flushOutput()
	z.outputChannel <- Quit(true)
}

// step executes one instruction: fetch, decode, dispatch.
func (z *ZMachine) step() {
	frame := z.callStack.peek()
	if frame.pc >= z.Core.MemoryLength() {
		panic(fmt.Sprintf("program counter out of range (0x%x)", frame.pc))
	}
	z.currentInstructionPC = frame.pc

	opcode := ParseOpcode(z)
	handler := z.dispatch.lookup(&opcode)
	if handler == nil {
		panic(fmt.Sprintf("illegal opcode 0x%x (form %d) for version %d at 0x%x", opcode.opcodeByte, opcode.opcodeForm, z.Core.Version, z.currentInstructionPC))
	}

	handler(z, &opcode)
	z.flushOutput()
}

// StepMachine executes a single instruction and reports whether the machine
// is still running. Unlike Run it does not recover panics, so a fatal error
// reaches the caller; the tests drive the loop with it.
func (z *ZMachine) StepMachine() bool {
	z.step()
	return z.running
}

// restart rewinds to the load-time state in place: dynamic memory (modulo
// Flags 2), fresh stacks, empty undo ring.
func (z *ZMachine) restart() {
	z.Core.ResetDynamic()
	z.stack = z.stack[:0]
	z.callStack = newCallStack(z.options.CallStackSize)
	z.undoStates = undoRing{maxSaves: z.options.MaxSaves}
	z.pushInitialFrame()
	z.applyQuirks()

	z.screenModel = newScreenModel(Black, White)
	z.outputChannel <- EraseWindowRequest(-1)
	z.outputChannel <- z.screenModel
}

func (z *ZMachine) showStatus() {
	if z.Core.Version > 3 {
		return
	}

	placeName := ""
	if location := z.globalVariable(0); location != 0 {
		obj := zobject.GetObject(location, &z.Core)
		placeName = obj.Name(&z.Core, z.Alphabets)
	}

	z.outputChannel <- StatusBar{
		PlaceName:   placeName,
		Score:       int(int16(z.globalVariable(1))),
		Moves:       int(z.globalVariable(2)),
		IsTimeBased: z.Core.StatusBarTimeBased,
	}
}

func (z *ZMachine) globalVariable(n uint16) uint16 {
	return z.Core.ReadHalfWord(uint32(z.Core.GlobalVariableBase) + 2*uint32(n))
}

type inputWord struct {
	bytes             []uint8
	startingLocation  uint32
	dictionaryAddress uint16
}

func (z *ZMachine) tokeniseSingleWord(bytes []uint8, wordStartPtr uint32, dict *dictionary.Dictionary) inputWord {
	runes := []rune(string(bytes))
	encoded := zstring.Encode(runes, &z.Core, z.Alphabets)

	return inputWord{
		bytes:             bytes,
		startingLocation:  wordStartPtr,
		dictionaryAddress: dict.Find(encoded),
	}
}

// Tokenise splits the text buffer at textAddr into words, looks each up in
// the dictionary and fills the parse buffer at parseAddr. With skipUnknown
// set (@tokenise flag), entries for unrecognised words are left untouched.
func (z *ZMachine) Tokenise(textAddr uint32, parseAddr uint32, dict *dictionary.Dictionary, skipUnknown bool) {
	var text []uint8
	textStart := textAddr + 1

	if z.Core.Version >= 5 {
		length := uint32(z.Core.ReadByte(textAddr + 1))
		textStart = textAddr + 2
		text = z.Core.ReadSlice(textStart, textStart+length)
	} else {
		// v1-4 buffers are null terminated
		end := textStart
		for z.Core.ReadByte(end) != 0 {
			end++
		}
		text = z.Core.ReadSlice(textStart, end)
	}

	separators := z.dictionary.Header.InputCodes

	var words []inputWord
	wordStart := 0
	for ix := 0; ix <= len(text); ix++ {
		isSeparator := false
		atEnd := ix == len(text)
		if !atEnd {
			for _, sep := range separators {
				if text[ix] == sep {
					isSeparator = true
					break
				}
			}
		}

		if atEnd || isSeparator || text[ix] == ' ' {
			if ix > wordStart {
				words = append(words, z.tokeniseSingleWord(text[wordStart:ix], textStart+uint32(wordStart), dict))
			}
			if isSeparator { // separators tokenise as words in their own right
				words = append(words, z.tokeniseSingleWord(text[ix:ix+1], textStart+uint32(ix), dict))
			}
			wordStart = ix + 1
		}
	}

	maxWords := int(z.Core.ReadByte(parseAddr))
	if len(words) > maxWords {
		words = words[:maxWords]
	}

	z.Core.WriteByte(parseAddr+1, uint8(len(words)))
	entryPtr := parseAddr + 2
	for _, word := range words {
		if word.dictionaryAddress != 0 || !skipUnknown {
			z.Core.WriteHalfWord(entryPtr, word.dictionaryAddress)
			z.Core.WriteByte(entryPtr+2, uint8(len(word.bytes)))
			z.Core.WriteByte(entryPtr+3, uint8(word.startingLocation-textAddr))
		}
		entryPtr += 4
	}
}

// terminatorSet resolves the v5+ custom terminating-character table; earlier
// versions terminate on return alone.
func (z *ZMachine) terminatorSet() []uint8 {
	validTerminators := []uint8{13}
	if z.Core.Version < 5 || z.Core.TerminatingCharTableBase == 0 {
		return validTerminators
	}

	ptr := uint32(z.Core.TerminatingCharTableBase)
	for {
		b := z.Core.ReadByte(ptr)
		if b == 0 {
			break
		}
		if (b >= 129 && b <= 154) || (b >= 252 && b <= 254) {
			validTerminators = append(validTerminators, b)
		} else if b == 255 {
			// All function keys terminate
			for c := uint8(129); c <= 154; c++ {
				validTerminators = append(validTerminators, c)
			}
			validTerminators = append(validTerminators, 252, 253, 254)
			break
		}
		ptr++
	}

	return validTerminators
}

// readLine flushes output and blocks on the input port, re-entering the
// dispatch loop for the timed-input routine whenever the timer fires. A
// routine returning true aborts the read.
func (z *ZMachine) readLine(request InputRequest) (InputResponse, bool) {
	for {
		z.flushOutput()
		z.outputChannel <- request

		response := <-z.inputChannel
		if !response.Timeout {
			return response, false
		}

		if request.Routine != 0 && z.directCall(request.Routine) != 0 {
			return InputResponse{}, true
		}
	}
}

func (z *ZMachine) read(opcode *Opcode) {
	if z.Core.Version <= 3 {
		z.showStatus()
	}

	textBufferPtr := uint32(opcode.operands[0].Value(z))
	parseBufferPtr := uint32(0)
	if len(opcode.operands) > 1 {
		parseBufferPtr = uint32(opcode.operands[1].Value(z))
	}

	var timeout, routine uint16
	if z.Core.Version >= 4 && len(opcode.operands) > 3 {
		timeout = opcode.operands[2].Value(z)
		routine = opcode.operands[3].Value(z)
	}

	bufferSize := int(z.Core.ReadByte(textBufferPtr))

	response, aborted := z.readLine(InputRequest{
		ValidTerminators: z.terminatorSet(),
		MaxChars:         bufferSize,
		Time:             timeout,
		Routine:          routine,
	})

	frame := z.callStack.peek()
	if aborted {
		if z.Core.Version >= 5 {
			z.writeVariable(z.readIncPC(frame), 0, false)
		}
		return
	}

	rawTextBytes := []byte(strings.ToLower(response.Text))
	if len(rawTextBytes) > bufferSize {
		rawTextBytes = rawTextBytes[:bufferSize]
	}

	writePtr := textBufferPtr + 1
	existingBytes := uint8(0)
	if z.Core.Version >= 5 {
		// Leftover characters from an interrupted read stay in the buffer
		existingBytes = z.Core.ReadByte(textBufferPtr + 1)
		writePtr = textBufferPtr + 2 + uint32(existingBytes)
	}

	for ix, chr := range rawTextBytes {
		if (chr >= 32 && chr <= 126) || (chr >= 155 && chr <= 251) {
			z.Core.WriteByte(writePtr+uint32(ix), chr)
		} else {
			z.Core.WriteByte(writePtr+uint32(ix), ' ')
		}
	}

	if z.Core.Version >= 5 {
		z.Core.WriteByte(textBufferPtr+1, existingBytes+uint8(len(rawTextBytes)))
	} else {
		z.Core.WriteByte(writePtr+uint32(len(rawTextBytes)), 0)
	}

	if z.streams.CommandScript {
		z.outputChannel <- CommandScriptUpdate(response.Text + "\n")
	}

	if parseBufferPtr != 0 {
		z.Tokenise(textBufferPtr, parseBufferPtr, z.dictionary, false)
	}

	if z.Core.Version >= 5 {
		terminator := response.TerminatingKey
		if terminator == 0 {
			terminator = 13
		}
		z.writeVariable(z.readIncPC(frame), uint16(terminator), false)
	}
}

func (z *ZMachine) readChar(opcode *Opcode) {
	var timeout, routine uint16
	if len(opcode.operands) > 2 {
		timeout = opcode.operands[1].Value(z)
		routine = opcode.operands[2].Value(z)
	}

	for {
		z.flushOutput()
		z.outputChannel <- CharacterRequest{Time: timeout, Routine: routine}

		response := <-z.inputChannel
		frame := z.callStack.peek()

		if response.Timeout {
			if routine != 0 && z.directCall(routine) != 0 {
				z.writeVariable(z.readIncPC(frame), 0, false)
				return
			}
			continue
		}

		chr := response.TerminatingKey
		if len(response.Text) > 0 {
			chr = response.Text[0]
		}
		z.writeVariable(z.readIncPC(frame), uint16(chr), false)
		return
	}
}
