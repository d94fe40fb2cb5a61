package zstring

import (
	"fmt"
	"strings"

	"github.com/davetcode/zvm/zcore"
)

// Decode walks the packed string at address and pushes one Unicode scalar at
// a time into emit, stopping at the word with the end bit set. It returns
// the number of bytes consumed. Nothing is buffered; the consumer is
// usually the output port or a strings.Builder.
func Decode(core *zcore.Core, address uint32, alphabets *Alphabets, emit func(rune)) uint32 {
	return decode(core, address, alphabets, emit, false)
}

// DecodeString collects a decoded string in memory, for object short names
// and dictionary entries.
func DecodeString(core *zcore.Core, address uint32, alphabets *Alphabets) (string, uint32) {
	var s strings.Builder
	bytesRead := decode(core, address, alphabets, func(r rune) { s.WriteRune(r) }, false)
	return s.String(), bytesRead
}

func decode(core *zcore.Core, address uint32, alphabets *Alphabets, emit func(rune), inAbbreviation bool) uint32 {
	version := core.Version
	bytesRead := uint32(0)

	// First unpack the words into a stream of 5-bit z-characters,
	// terminating on the high bit of the final word.
	var zchars []uint8
	for {
		halfWord := core.ReadHalfWord(address + bytesRead)
		bytesRead += 2

		zchars = append(zchars, uint8((halfWord>>10)&0b11111), uint8((halfWord>>5)&0b11111), uint8(halfWord&0b11111))

		if halfWord>>15 == 1 || address+bytesRead+1 >= core.MemoryLength() {
			break
		}
	}

	lock := a0
	shift := a0

	for i := 0; i < len(zchars); i++ {
		zchr := zchars[i]
		current := shift
		shift = lock

		switch {
		case zchr == 0:
			emit(' ')

		case zchr == 1 && version == 1:
			emit('\n')

		case zchr == 1 || (zchr <= 3 && version >= 3):
			// Abbreviation: the next z-char completes the index
			if i+1 >= len(zchars) {
				return bytesRead // truncated string, nothing more to print
			}
			if inAbbreviation {
				panic("recursive abbreviation reference in packed string")
			}

			i++
			index := 32*uint16(zchr-1) + uint16(zchars[i])
			entry := uint32(core.AbbreviationTableBase) + 2*uint32(index)
			// Abbreviation pointers are word addresses regardless of version
			decode(core, 2*uint32(core.ReadHalfWord(entry)), alphabets, emit, true)

		case zchr == 2 || zchr == 3: // v1-2 only by this point
			shift = (lock + Alphabet(zchr) - 1) % 3

		case zchr == 4 || zchr == 5:
			if version <= 2 { // shift lock
				lock = (lock + Alphabet(zchr) - 3) % 3
				shift = lock
			} else { // single-character shift
				shift = (lock + Alphabet(zchr) - 3) % 3
			}

		case current == a2 && zchr == 6:
			// 10-bit ZSCII escape: the next two z-chars hold high then low bits
			if i+2 >= len(zchars) {
				return bytesRead
			}
			zscii := ZSCII(zchars[i+1])<<5 | ZSCII(zchars[i+2])
			i += 2
			if r := alphabets.ZsciiToUnicode(zscii); r != 0 {
				emit(r)
			}

		default:
			zscii := ZSCII(alphabets.table[int(current)*26+int(zchr)-6])
			if r := alphabets.ZsciiToUnicode(zscii); r != 0 {
				emit(r)
			}
		}
	}

	return bytesRead
}

// Encode converts input text to the fixed-width dictionary form: 6 z-chars
// in two words (v1-3) or 9 in three words (v4+), padded with z-char 5, end
// bit set on the final word.
func Encode(runes []rune, core *zcore.Core, alphabets *Alphabets) []uint8 {
	target := 6
	if core.Version >= 4 {
		target = 9
	}

	shiftA1, shiftA2 := uint8(4), uint8(5)
	if core.Version <= 2 {
		shiftA1, shiftA2 = 2, 3
	}

	var zchars []uint8
	for _, r := range runes {
		if len(zchars) >= target {
			break
		}

		zscii, ok := alphabets.UnicodeToZscii(r)
		if !ok {
			continue
		}
		if zscii == 32 {
			zchars = append(zchars, 0)
			continue
		}

		if alphabet, zchr, found := alphabets.lookup(zscii); found {
			switch alphabet {
			case a0:
				zchars = append(zchars, zchr)
			case a1:
				zchars = append(zchars, shiftA1, zchr)
			case a2:
				zchars = append(zchars, shiftA2, zchr)
			}
		} else {
			// Long-form ZSCII escape
			zchars = append(zchars, shiftA2, 6, uint8(zscii>>5)&0b11111, uint8(zscii)&0b11111)
		}
	}

	if len(zchars) > target {
		zchars = zchars[:target]
	}
	for len(zchars) < target {
		zchars = append(zchars, 5)
	}

	encoded := make([]uint8, 0, 2*target/3)
	for i := 0; i < target; i += 3 {
		halfWord := uint16(zchars[i])<<10 | uint16(zchars[i+1])<<5 | uint16(zchars[i+2])
		if i+3 >= target {
			halfWord |= 0x8000
		}
		encoded = append(encoded, uint8(halfWord>>8), uint8(halfWord))
	}

	return encoded
}

// FindAbbreviation decodes abbreviation entry 32*(bank-1)+index, used by
// debugging tooling and tests.
func FindAbbreviation(core *zcore.Core, alphabets *Alphabets, bank uint8, index uint8) string {
	if bank < 1 || bank > 3 || index > 31 {
		panic(fmt.Sprintf("invalid abbreviation reference %d/%d", bank, index))
	}

	entry := uint32(core.AbbreviationTableBase) + 2*(32*uint32(bank-1)+uint32(index))
	str, _ := DecodeString(core, 2*uint32(core.ReadHalfWord(entry)), alphabets)
	return str
}
