package zmachine

import (
	"strconv"

	"github.com/davetcode/zvm/dictionary"
	"github.com/davetcode/zvm/zstring"
	"github.com/davetcode/zvm/ztable"
)

// emitRune is the consumer the codec streams decoded scalars into.
func (z *ZMachine) emitRune(r rune) {
	z.appendText(string(r))
}

func (z *ZMachine) opPrint(*Opcode) {
	frame := z.callStack.peek()
	frame.pc += zstring.Decode(&z.Core, frame.pc, z.Alphabets, z.emitRune)
}

func (z *ZMachine) opPrintRet(*Opcode) {
	frame := z.callStack.peek()
	frame.pc += zstring.Decode(&z.Core, frame.pc, z.Alphabets, z.emitRune)
	z.appendText("\n")
	z.retValue(1)
}

func (z *ZMachine) opNewLine(*Opcode) {
	z.appendText("\n")
}

func (z *ZMachine) opPrintAddr(opcode *Opcode) {
	zstring.Decode(&z.Core, uint32(opcode.operands[0].Value(z)), z.Alphabets, z.emitRune)
}

func (z *ZMachine) opPrintPAddr(opcode *Opcode) {
	address := z.Core.UnpackString(opcode.operands[0].Value(z))
	zstring.Decode(&z.Core, address, z.Alphabets, z.emitRune)
}

func (z *ZMachine) opPrintChar(opcode *Opcode) {
	if r := z.Alphabets.ZsciiToUnicode(zstring.ZSCII(opcode.operands[0].Value(z))); r != 0 {
		z.emitRune(r)
	}
}

func (z *ZMachine) opPrintNum(opcode *Opcode) {
	z.appendText(strconv.Itoa(int(int16(opcode.operands[0].Value(z)))))
}

func (z *ZMachine) opPrintUnicode(opcode *Opcode) {
	z.emitRune(rune(opcode.operands[0].Value(z)))
}

// opCheckUnicode reports bit 0 for printable, bit 1 for receivable from the
// keyboard; our input layer hands back anything it can print.
func (z *ZMachine) opCheckUnicode(opcode *Opcode) {
	chr := opcode.operands[0].Value(z)

	result := uint16(0)
	if chr == 10 || chr == 13 || (chr >= 32 && chr <= 126) {
		result = 0b11
	} else if _, ok := z.Alphabets.UnicodeToZscii(rune(chr)); ok {
		result = 0b11
	}

	z.writeVariable(z.readIncPC(z.callStack.peek()), result, false)
}

func (z *ZMachine) opRead(opcode *Opcode) {
	z.read(opcode)
}

func (z *ZMachine) opReadChar(opcode *Opcode) {
	z.readChar(opcode)
}

func (z *ZMachine) opLoadW(opcode *Opcode) {
	address := uint32(opcode.operands[0].Value(z) + 2*opcode.operands[1].Value(z))
	z.writeVariable(z.readIncPC(z.callStack.peek()), z.Core.ReadHalfWord(address), false)
}

func (z *ZMachine) opLoadB(opcode *Opcode) {
	address := uint32(opcode.operands[0].Value(z) + opcode.operands[1].Value(z))
	z.writeVariable(z.readIncPC(z.callStack.peek()), uint16(z.Core.ReadByte(address)), false)
}

func (z *ZMachine) opStoreW(opcode *Opcode) {
	address := uint32(opcode.operands[0].Value(z) + 2*opcode.operands[1].Value(z))
	z.Core.UserWriteHalfWord(address, opcode.operands[2].Value(z))
}

func (z *ZMachine) opStoreB(opcode *Opcode) {
	address := uint32(opcode.operands[0].Value(z) + opcode.operands[1].Value(z))
	z.Core.UserWriteByte(address, uint8(opcode.operands[2].Value(z)))
}

func (z *ZMachine) opScanTable(opcode *Opcode) {
	test := opcode.operands[0].Value(z)
	tableAddress := uint32(opcode.operands[1].Value(z))
	length := opcode.operands[2].Value(z)
	form := uint16(0x82)
	if len(opcode.operands) == 4 {
		form = opcode.operands[3].Value(z)
	}

	result := ztable.ScanTable(&z.Core, test, tableAddress, length, form)

	frame := z.callStack.peek()
	z.writeVariable(z.readIncPC(frame), uint16(result), false)
	z.handleBranch(frame, result != 0)
}

func (z *ZMachine) opCopyTable(opcode *Opcode) {
	ztable.CopyTable(&z.Core, opcode.operands[0].Value(z), opcode.operands[1].Value(z), int16(opcode.operands[2].Value(z)))
}

func (z *ZMachine) opPrintTable(opcode *Opcode) {
	address := uint32(opcode.operands[0].Value(z))
	width := opcode.operands[1].Value(z)
	height := uint16(1)
	skip := uint16(0)

	if len(opcode.operands) > 2 {
		height = opcode.operands[2].Value(z)
		if len(opcode.operands) > 3 {
			skip = opcode.operands[3].Value(z)
		}
	}

	z.appendText(ztable.PrintTable(&z.Core, z.Alphabets, address, width, height, skip))
}

func (z *ZMachine) opTokenise(opcode *Opcode) {
	text := uint32(opcode.operands[0].Value(z))
	parseBuffer := uint32(opcode.operands[1].Value(z))

	dictionaryToUse := z.dictionary
	skipUnknown := false

	if len(opcode.operands) > 2 {
		if dictionaryAddress := opcode.operands[2].Value(z); dictionaryAddress != 0 {
			dictionaryToUse = dictionary.ParseDictionary(uint32(dictionaryAddress), &z.Core, z.Alphabets)
		}
		if len(opcode.operands) == 4 {
			skipUnknown = opcode.operands[3].Value(z) != 0
		}
	}

	z.Tokenise(text, parseBuffer, dictionaryToUse, skipUnknown)
}

// opEncodeText encodes length characters of plain ZSCII text into the
// dictionary's packed form.
func (z *ZMachine) opEncodeText(opcode *Opcode) {
	textAddress := uint32(opcode.operands[0].Value(z))
	length := uint32(opcode.operands[1].Value(z))
	from := uint32(opcode.operands[2].Value(z))
	destination := uint32(opcode.operands[3].Value(z))

	runes := make([]rune, 0, length)
	for i := uint32(0); i < length; i++ {
		if r := z.Alphabets.ZsciiToUnicode(zstring.ZSCII(z.Core.ReadByte(textAddress + from + i))); r != 0 {
			runes = append(runes, r)
		}
	}

	for i, b := range zstring.Encode(runes, &z.Core, z.Alphabets) {
		z.Core.UserWriteByte(destination+uint32(i), b)
	}
}
