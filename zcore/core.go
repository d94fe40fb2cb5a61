package zcore

import (
	"encoding/binary"
	"fmt"
)

// Flags 1 bits, v1-3
const (
	Flags1StatusTime  = 1 << 1
	Flags1StorySplit  = 1 << 2
	Flags1Censor      = 1 << 3
	Flags1NoStatus    = 1 << 4
	Flags1ScreenSplit = 1 << 5
	Flags1Variable    = 1 << 6
)

// Flags 1 bits, v4+
const (
	Flags1Colors   = 1 << 0
	Flags1Pictures = 1 << 1
	Flags1Bold     = 1 << 2
	Flags1Italic   = 1 << 3
	Flags1Fixed    = 1 << 4
	Flags1Sound    = 1 << 5
	Flags1Timed    = 1 << 7
)

// Flags 2 bits
const (
	Flags2Transcript uint16 = 1 << 0
	Flags2Fixed      uint16 = 1 << 1
	Flags2Status     uint16 = 1 << 2
	Flags2Pictures   uint16 = 1 << 3
	Flags2Undo       uint16 = 1 << 4
	Flags2Mouse      uint16 = 1 << 5
	Flags2Colors     uint16 = 1 << 6
	Flags2Sound      uint16 = 1 << 7
	Flags2Menus      uint16 = 1 << 8
)

const maxStorySize = 1 << 24

// Core owns the story image and the header fields the interpreter consumes.
// Dynamic memory is [0, StaticMemoryBase), static runs to min(len, 0x10000)
// and everything beyond is only reachable through the program counter.
type Core struct {
	bytes   []uint8
	dynamic []uint8 // snapshot of dynamic memory taken at load, never written again
	options Options

	Version                          uint8
	ReleaseNumber                    uint16
	Serial                           [6]uint8
	FirstInstruction                 uint16
	DictionaryBase                   uint16
	ObjectTableBase                  uint16
	GlobalVariableBase               uint16
	StaticMemoryBase                 uint16
	StaticMemoryEnd                  uint32
	AbbreviationTableBase            uint16
	FileChecksum                     uint16
	StatusBarTimeBased               bool
	RoutinesOffset                   uint16
	StringOffset                     uint16
	TerminatingCharTableBase         uint16
	AlternativeCharSetBaseAddress    uint16
	ExtensionTableBaseAddress        uint16
	UnicodeExtensionTableBaseAddress uint16

	// Called when the story toggles the Flags 2 transcript bit so the
	// stream layer can open/close the transcript file in step.
	TranscriptHook func(enabled bool)
}

// LoadCore validates the header invariants and takes the initial-dynamic
// snapshot used by restart, Quetzal diffing and undo compression.
func LoadCore(bytes []uint8, options Options) (Core, error) {
	if len(bytes) < 64 {
		return Core{}, fmt.Errorf("story file too small (%d bytes)", len(bytes))
	}
	if len(bytes) > maxStorySize {
		return Core{}, fmt.Errorf("story file too large (%d bytes)", len(bytes))
	}

	version := bytes[0x00]
	if version < 1 || version > 8 {
		return Core{}, fmt.Errorf("unsupported z-machine version %d", version)
	}

	staticBase := binary.BigEndian.Uint16(bytes[0x0e:0x10])
	if staticBase < 64 || uint32(staticBase) > uint32(len(bytes)) {
		return Core{}, fmt.Errorf("corrupted story: static memory base 0x%x out of range", staticBase)
	}

	firstInstruction := binary.BigEndian.Uint16(bytes[0x06:0x08])
	if uint32(firstInstruction) >= uint32(len(bytes)) {
		return Core{}, fmt.Errorf("corrupted story: initial pc 0x%x out of range", firstInstruction)
	}

	objectBase := binary.BigEndian.Uint16(bytes[0x0a:0x0c])
	if objectBase < 64 || objectBase >= staticBase {
		return Core{}, fmt.Errorf("corrupted story: object table is not in dynamic memory")
	}

	globalBase := binary.BigEndian.Uint16(bytes[0x0c:0x0e])
	if globalBase < 64 || globalBase >= staticBase {
		return Core{}, fmt.Errorf("corrupted story: global variables are not in dynamic memory")
	}

	abbrBase := binary.BigEndian.Uint16(bytes[0x18:0x1a])
	if uint32(abbrBase) >= uint32(len(bytes)) {
		return Core{}, fmt.Errorf("corrupted story: abbreviation table out of range")
	}

	staticEnd := uint32(len(bytes))
	if staticEnd > 0x10000 {
		staticEnd = 0x10000
	}

	core := Core{
		bytes:                         bytes,
		options:                       options,
		Version:                       version,
		ReleaseNumber:                 binary.BigEndian.Uint16(bytes[0x02:0x04]),
		FirstInstruction:              firstInstruction,
		DictionaryBase:                binary.BigEndian.Uint16(bytes[0x08:0x0a]),
		ObjectTableBase:               objectBase,
		GlobalVariableBase:            globalBase,
		StaticMemoryBase:              staticBase,
		StaticMemoryEnd:               staticEnd,
		AbbreviationTableBase:         abbrBase,
		FileChecksum:                  binary.BigEndian.Uint16(bytes[0x1c:0x1e]),
		StatusBarTimeBased:            version == 3 && bytes[0x01]&Flags1StatusTime != 0,
		AlternativeCharSetBaseAddress: binary.BigEndian.Uint16(bytes[0x34:0x36]),
	}
	copy(core.Serial[:], bytes[0x12:0x18])

	if core.FileLength() > uint32(len(bytes)) {
		return Core{}, fmt.Errorf("story's reported size (%d) greater than file size (%d)", core.FileLength(), len(bytes))
	}

	if version == 6 || version == 7 {
		core.RoutinesOffset = binary.BigEndian.Uint16(bytes[0x28:0x2a])
		core.StringOffset = binary.BigEndian.Uint16(bytes[0x2a:0x2c])
	}

	if version >= 5 {
		core.TerminatingCharTableBase = binary.BigEndian.Uint16(bytes[0x2e:0x30])
		core.ExtensionTableBaseAddress = binary.BigEndian.Uint16(bytes[0x36:0x38])
		if core.ExtensionTableBaseAddress != 0 {
			etable := uint32(core.ExtensionTableBaseAddress)
			nentries := binary.BigEndian.Uint16(bytes[etable : etable+2])
			if nentries >= 3 {
				core.UnicodeExtensionTableBaseAddress = binary.BigEndian.Uint16(bytes[etable+6 : etable+8])
			}
			// Flags 3 and the true default colours are Rst fields too
			if nentries >= 4 {
				binary.BigEndian.PutUint16(bytes[etable+8:etable+10], 0)
			}
			if nentries >= 5 {
				binary.BigEndian.PutUint16(bytes[etable+10:etable+12], 0x0000)
			}
			if nentries >= 6 {
				binary.BigEndian.PutUint16(bytes[etable+12:etable+14], 0x7fff)
			}
		}
	}

	core.WriteHeader()

	core.dynamic = make([]uint8, staticBase)
	copy(core.dynamic, bytes[:staticBase])

	return core, nil
}

// StoryID is the release-serial[-checksum] form used to key per-story quirks,
// roughly an IFID per the Treaty of Babel §2.2.2.1.
func (core *Core) StoryID() string {
	serial := []byte("------")
	for i, c := range core.Serial {
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			serial[i] = c
		}
	}

	if serial[0] >= '0' && serial[0] <= '9' && serial[0] != '8' && string(serial) != "000000" {
		return fmt.Sprintf("%d-%s-%04x", core.ReleaseNumber, serial, core.FileChecksum)
	}
	return fmt.Sprintf("%d-%s", core.ReleaseNumber, serial)
}

// WriteHeader rewrites every header field marked Rst in §11 of the standard.
// It runs at load and again after a successful restore, because the save may
// have come from an interpreter with different capabilities.
func (core *Core) WriteHeader() {
	bytes := core.bytes
	options := core.options

	flags1 := bytes[0x01]

	if core.Version <= 3 {
		flags1 &^= Flags1NoStatus | Flags1Variable
		flags1 |= Flags1ScreenSplit
		if options.EnableCensorship {
			flags1 |= Flags1Censor
		}
	} else {
		flags1 |= Flags1Bold | Flags1Italic | Flags1Fixed | Flags1Timed
		if core.Version >= 5 {
			flags1 |= Flags1Colors
		}
		if core.Version == 6 {
			flags1 &^= Flags1Pictures | Flags1Sound
		}
		if core.Version >= 5 && options.DisableColor {
			flags1 &^= Flags1Colors
		}
		if options.DisableTimed {
			flags1 &^= Flags1Timed
		}
		if options.DisableFixed {
			flags1 &^= Flags1Fixed
		}
	}

	bytes[0x01] = flags1

	if core.Version >= 5 {
		flags2 := binary.BigEndian.Uint16(bytes[0x10:0x12])
		flags2 &^= Flags2Pictures | Flags2Sound | Flags2Mouse
		if core.Version >= 6 {
			flags2 &^= Flags2Menus
		}
		if options.MaxSaves == 0 {
			flags2 &^= Flags2Undo
		}
		binary.BigEndian.PutUint16(bytes[0x10:0x12], flags2)
	}

	if core.Version >= 4 {
		intNumber := options.IntNumber
		if intNumber < 1 || intNumber > 11 {
			intNumber = 1 // DEC
		}
		bytes[0x1e] = intNumber
		bytes[0x1f] = options.IntVersion

		// Screen dimensions: a plain terminal model, one unit per character
		bytes[0x20] = 25
		bytes[0x21] = 80

		if core.Version >= 5 {
			binary.BigEndian.PutUint16(bytes[0x22:0x24], 80)
			binary.BigEndian.PutUint16(bytes[0x24:0x26], 25)
			bytes[0x26] = 1
			bytes[0x27] = 1
			bytes[0x2c] = 1
			bytes[0x2d] = 1
		}
	}

	// Standard revision implemented
	bytes[0x32] = 1
	bytes[0x33] = 1
}

func (core *Core) FileLength() uint32 {
	var multiplier uint32
	switch {
	case core.Version <= 3:
		multiplier = 2
	case core.Version <= 5:
		multiplier = 4
	default:
		multiplier = 8
	}
	return uint32(binary.BigEndian.Uint16(core.bytes[0x1a:0x1c])) * multiplier
}

// Checksum recomputes the story checksum over [0x40, file length), the value
// @verify compares against the header word at 0x1c. The sum covers the
// pristine dynamic image so in-play writes don't perturb it.
func (core *Core) Checksum() uint16 {
	length := core.FileLength()
	if length > uint32(len(core.bytes)) {
		length = uint32(len(core.bytes))
	}

	checksum := uint16(0)
	for ix := uint32(0x40); ix < length; ix++ {
		if ix < uint32(len(core.dynamic)) {
			checksum += uint16(core.dynamic[ix])
		} else {
			checksum += uint16(core.bytes[ix])
		}
	}
	return checksum
}

// UnpackRoutine converts a packed routine address to a byte address.
func (core *Core) UnpackRoutine(packed uint16) uint32 {
	return core.unpack(packed, false)
}

// UnpackString converts a packed string address to a byte address.
func (core *Core) UnpackString(packed uint16) uint32 {
	return core.unpack(packed, true)
}

func (core *Core) unpack(packed uint16, isString bool) uint32 {
	var address uint32
	switch {
	case core.Version <= 3:
		address = 2 * uint32(packed)
	case core.Version <= 5:
		address = 4 * uint32(packed)
	case core.Version <= 7:
		offset := core.RoutinesOffset
		if isString {
			offset = core.StringOffset
		}
		address = 4*uint32(packed) + 8*uint32(offset)
	default:
		address = 8 * uint32(packed)
	}

	if address >= uint32(len(core.bytes)) {
		panic(fmt.Sprintf("packed address 0x%x unpacks outside the story (0x%x)", packed, address))
	}

	return address
}

func (core *Core) ReadByte(address uint32) uint8 {
	if address >= uint32(len(core.bytes)) {
		panic(fmt.Sprintf("read past end of memory (0x%x)", address))
	}
	return core.bytes[address]
}

func (core *Core) ReadHalfWord(address uint32) uint16 {
	if address+2 > uint32(len(core.bytes)) {
		panic(fmt.Sprintf("read past end of memory (0x%x)", address))
	}
	return binary.BigEndian.Uint16(core.bytes[address : address+2])
}

func (core *Core) ReadSlice(startAddress uint32, endAddress uint32) []uint8 {
	return core.bytes[startAddress:endAddress]
}

// WriteByte is an interpreter write: globals, object fields, buffers the
// interpreter itself owns. Not limited to dynamic memory because the header
// rewrite and stream-3 tables go through here too, but never valid past the
// end of the image.
func (core *Core) WriteByte(address uint32, value uint8) {
	if address >= uint32(len(core.bytes)) {
		panic(fmt.Sprintf("write past end of memory (0x%x)", address))
	}
	core.bytes[address] = value
}

func (core *Core) WriteHalfWord(address uint32, value uint16) {
	if address+2 > uint32(len(core.bytes)) {
		panic(fmt.Sprintf("write past end of memory (0x%x)", address))
	}
	binary.BigEndian.PutUint16(core.bytes[address:address+2], value)
}

// UserWriteByte is a store initiated by the running program (@storeb and
// friends). Only dynamic memory above the header is writable, with two
// exceptions where the standard lets the program toggle specific flag bits;
// the remaining bits of those bytes are silently preserved.
func (core *Core) UserWriteByte(address uint32, value uint8) {
	switch {
	case address == 0x01:
		// Flags 1: only bit 3 (the Tandy/censorship bit) belongs to the program
		core.bytes[0x01] = (core.bytes[0x01] &^ Flags1Censor) | (value & Flags1Censor)

	case address == 0x10:
		// Flags 2 high byte holds nothing the program may change. Stories
		// use @storew at 0x10 to reach the bits in 0x11, so ignore rather
		// than fail.

	case address == 0x11:
		// Flags 2 low byte: transcripting, fixed-pitch and status-redraw
		old := core.bytes[0x11]
		mask := uint8(Flags2Transcript | Flags2Fixed | Flags2Status)
		core.bytes[0x11] = (old &^ mask) | (value & mask)

		if (old^value)&uint8(Flags2Transcript) != 0 && core.TranscriptHook != nil {
			core.TranscriptHook(value&uint8(Flags2Transcript) != 0)
		}

	case address >= 0x40 && address < uint32(core.StaticMemoryBase):
		core.bytes[address] = value

	default:
		panic(fmt.Sprintf("attempt to write to read-only address 0x%x", address))
	}
}

func (core *Core) UserWriteHalfWord(address uint32, value uint16) {
	core.UserWriteByte(address, uint8(value>>8))
	core.UserWriteByte(address+1, uint8(value))
}

// InitialDynamic is the dynamic-memory image as it was at load time. Callers
// must not modify it.
func (core *Core) InitialDynamic() []uint8 {
	return core.dynamic
}

// DynamicMemory is the live dynamic region.
func (core *Core) DynamicMemory() []uint8 {
	return core.bytes[:core.StaticMemoryBase]
}

func (core *Core) MemoryLength() uint32 {
	return uint32(len(core.bytes))
}

// ResetDynamic rewinds dynamic memory to the load-time image, preserving
// Flags 2 (§6.1.3). Used by @restart.
func (core *Core) ResetDynamic() {
	flags2 := binary.BigEndian.Uint16(core.bytes[0x10:0x12])
	copy(core.bytes[:core.StaticMemoryBase], core.dynamic)
	core.WriteHeader()
	binary.BigEndian.PutUint16(core.bytes[0x10:0x12], flags2)
}
