package zmachine

import "fmt"

type TextStyle int

const (
	Roman        TextStyle = 0b0000_0000
	ReverseVideo TextStyle = 0b0000_0001
	Bold         TextStyle = 0b0000_0010
	Italic       TextStyle = 0b0000_0100
	FixedPitch   TextStyle = 0b0000_1000
)

type Color struct {
	r int
	g int
	b int
}

func (c Color) ToHex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.r, c.g, c.b)
}

var (
	Black = Color{0, 0, 0}
	White = Color{255, 255, 255}
)

// Font is a Z-machine font number. @set_font accepts the normal (1),
// character-graphics (3, unless DisableGraphicsFont is set) and fixed-pitch
// (4) fonts and refuses the picture font and any other number; font 0 reports
// the current font.
type Font uint16

const (
	FontNormal     Font = 1
	FontPicture    Font = 2
	FontCharGraphs Font = 3
	FontFixedPitch Font = 4
)

// ScreenModel is the non-v6 two-window model: a scrolling lower window and
// an upper grid the story addresses by cursor position. The UI receives a
// copy whenever anything changes.
type ScreenModel struct {
	LowerWindowActive bool
	CurrentFont       Font

	UpperWindowHeight    int
	UpperWindowCursorX   int
	UpperWindowCursorY   int
	UpperWindowTextStyle TextStyle

	LowerWindowTextStyle TextStyle

	Foreground        Color
	Background        Color
	DefaultForeground Color
	DefaultBackground Color
}

func newScreenModel(background Color, foreground Color) ScreenModel {
	return ScreenModel{
		LowerWindowActive:  true,
		CurrentFont:        FontNormal,
		UpperWindowCursorX: 1,
		UpperWindowCursorY: 1,
		Foreground:         foreground,
		Background:         background,
		DefaultForeground:  foreground,
		DefaultBackground:  background,
	}
}

// colorFromCode maps a standard colour number (§8.3.1) onto RGB.
func (m *ScreenModel) colorFromCode(code uint16, isForeground bool) Color {
	switch code {
	case 0: // current
		if isForeground {
			return m.Foreground
		}
		return m.Background
	case 1: // default
		if isForeground {
			return m.DefaultForeground
		}
		return m.DefaultBackground
	case 2:
		return Color{0, 0, 0}
	case 3:
		return Color{255, 0, 0}
	case 4:
		return Color{0, 255, 0}
	case 5:
		return Color{255, 255, 0}
	case 6:
		return Color{0, 0, 255}
	case 7:
		return Color{255, 0, 255}
	case 8:
		return Color{0, 255, 255}
	case 9:
		return Color{255, 255, 255}
	case 10:
		return Color{192, 192, 192}
	case 11:
		return Color{128, 128, 128}
	case 12:
		return Color{64, 64, 64}
	default:
		return Color{0, 0, 0}
	}
}

func (z *ZMachine) opShowStatus(*Opcode) {
	z.showStatus()
}

func (z *ZMachine) opSplitWindow(opcode *Opcode) {
	lines := opcode.operands[0].Value(z)
	z.screenModel.UpperWindowHeight = int(lines)

	// §8.6.1.1.2: v3 clears the new upper window on split
	if z.Core.Version == 3 && lines > 0 {
		z.outputChannel <- EraseWindowRequest(1)
	}

	z.outputChannel <- z.screenModel
}

func (z *ZMachine) opSetWindow(opcode *Opcode) {
	window := opcode.operands[0].Value(z)
	z.screenModel.LowerWindowActive = window == 0

	// The upper window's cursor homes whenever it is selected (§8.7.2)
	if window != 0 {
		z.screenModel.UpperWindowCursorX = 1
		z.screenModel.UpperWindowCursorY = 1
	}

	z.outputChannel <- z.screenModel
}

func (z *ZMachine) opEraseWindow(opcode *Opcode) {
	window := int16(opcode.operands[0].Value(z))

	if window == -1 {
		z.screenModel.LowerWindowActive = true
		z.screenModel.UpperWindowHeight = 0
		z.outputChannel <- z.screenModel
	}

	z.outputChannel <- EraseWindowRequest(window)
}

func (z *ZMachine) opEraseLine(opcode *Opcode) {
	if len(opcode.operands) > 0 && opcode.operands[0].Value(z) != 1 {
		return // only "erase to end of line" is defined outside v6
	}
	z.outputChannel <- EraseLineRequest(true)
}

func (z *ZMachine) opSetCursor(opcode *Opcode) {
	line := opcode.operands[0].Value(z)
	column := opcode.operands[1].Value(z)

	// Cursor positioning only applies to the upper window pre-v6 (§8.7.2.3)
	if !z.screenModel.LowerWindowActive {
		z.screenModel.UpperWindowCursorY = int(line)
		z.screenModel.UpperWindowCursorX = int(column)
		z.outputChannel <- z.screenModel
	}
}

func (z *ZMachine) opGetCursor(opcode *Opcode) {
	table := uint32(opcode.operands[0].Value(z))
	z.Core.UserWriteHalfWord(table, uint16(z.screenModel.UpperWindowCursorY))
	z.Core.UserWriteHalfWord(table+2, uint16(z.screenModel.UpperWindowCursorX))
}

func (z *ZMachine) opSetTextStyle(opcode *Opcode) {
	style := TextStyle(opcode.operands[0].Value(z))

	if z.screenModel.LowerWindowActive {
		if style == Roman {
			z.screenModel.LowerWindowTextStyle = Roman
		} else {
			z.screenModel.LowerWindowTextStyle |= style
		}
	} else {
		if style == Roman {
			z.screenModel.UpperWindowTextStyle = Roman
		} else {
			z.screenModel.UpperWindowTextStyle |= style
		}
	}

	z.outputChannel <- z.screenModel
}

func (z *ZMachine) opBufferMode(*Opcode) {
	// Word wrapping happens unconditionally in the rendering layer
}

func (z *ZMachine) opSetColour(opcode *Opcode) {
	if z.options.DisableColor {
		return
	}

	foreground := opcode.operands[0].Value(z)
	background := opcode.operands[1].Value(z)

	z.screenModel.Foreground = z.screenModel.colorFromCode(foreground, true)
	z.screenModel.Background = z.screenModel.colorFromCode(background, false)
	z.outputChannel <- z.screenModel
}

// opSetTrueColour takes 15-bit direct colours: 0bbbbbgggggrrrrr.
func (z *ZMachine) opSetTrueColour(opcode *Opcode) {
	if z.options.DisableColor {
		return
	}

	toColor := func(v uint16, current Color, isForeground bool) Color {
		switch int16(v) {
		case -1:
			if isForeground {
				return z.screenModel.DefaultForeground
			}
			return z.screenModel.DefaultBackground
		case -2:
			return current
		default:
			return Color{
				r: int(v&0x1f) * 255 / 31,
				g: int((v>>5)&0x1f) * 255 / 31,
				b: int((v>>10)&0x1f) * 255 / 31,
			}
		}
	}

	z.screenModel.Foreground = toColor(opcode.operands[0].Value(z), z.screenModel.Foreground, true)
	z.screenModel.Background = toColor(opcode.operands[1].Value(z), z.screenModel.Background, false)
	z.outputChannel <- z.screenModel
}

func (z *ZMachine) opSetFont(opcode *Opcode) {
	requested := Font(opcode.operands[0].Value(z))
	previous := z.screenModel.CurrentFont

	if requested == FontCharGraphs && z.options.DisableGraphicsFont {
		z.writeVariable(z.readIncPC(z.callStack.peek()), 0, false)
		return
	}

	switch requested {
	case 0:
		// Font 0 just reports the current font
		z.writeVariable(z.readIncPC(z.callStack.peek()), uint16(previous), false)
	case FontNormal, FontFixedPitch, FontCharGraphs:
		z.screenModel.CurrentFont = requested
		z.outputChannel <- z.screenModel
		z.writeVariable(z.readIncPC(z.callStack.peek()), uint16(previous), false)
	default:
		// Unavailable font: report failure, keep the current one
		z.writeVariable(z.readIncPC(z.callStack.peek()), 0, false)
	}
}

func (z *ZMachine) opOutputStream(opcode *Opcode) {
	stream := int16(opcode.operands[0].Value(z))

	switch stream {
	case 1, -1:
		z.streams.Screen = stream > 0

	case 2, -2:
		// Stream 2 state lives in the Flags 2 transcript bit (§7.1.1.2),
		// so route through the header write to keep them in sync
		flags := z.Core.ReadByte(0x11)
		if stream > 0 {
			flags |= 0x01
		} else {
			flags &^= 0x01
		}
		z.Core.UserWriteByte(0x11, flags)
		z.streams.Transcript = stream > 0

	case 3:
		if len(z.streams.MemoryStreamData) >= 16 {
			panic("too many nested memory output streams")
		}
		table := uint32(opcode.operands[1].Value(z))
		z.streams.Memory = true
		z.streams.MemoryStreamData = append(z.streams.MemoryStreamData, MemoryStreamData{
			baseAddress: table,
			ptr:         table + 2, // data goes after the size word
		})

	case -3:
		if z.streams.Memory {
			// Fill in the size word, then pop; memory streams stack (§7.1.2.1.1)
			currentActiveStream := z.streams.MemoryStreamData[len(z.streams.MemoryStreamData)-1]
			z.Core.WriteHalfWord(currentActiveStream.baseAddress, uint16(currentActiveStream.ptr-currentActiveStream.baseAddress-2))

			z.streams.MemoryStreamData = z.streams.MemoryStreamData[:len(z.streams.MemoryStreamData)-1]
			if len(z.streams.MemoryStreamData) == 0 {
				z.streams.Memory = false
			}
		}

	case 4, -4:
		z.streams.CommandScript = stream > 0
	}
}

func (z *ZMachine) opInputStream(opcode *Opcode) {
	z.flushOutput()
	z.outputChannel <- InputStreamRequest(opcode.operands[0].Value(z))
}

func (z *ZMachine) opSoundEffect(opcode *Opcode) {
	request := SoundEffectRequest{SoundNumber: 1}

	if len(opcode.operands) > 0 {
		request.SoundNumber = opcode.operands[0].Value(z)
	}
	if len(opcode.operands) > 1 {
		request.Effect = opcode.operands[1].Value(z)
	}
	if len(opcode.operands) > 2 {
		request.Volume = opcode.operands[2].Value(z)
	}
	if len(opcode.operands) > 3 {
		request.Routine = opcode.operands[3].Value(z)
	}

	z.outputChannel <- request
}
