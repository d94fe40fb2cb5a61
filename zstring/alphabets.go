package zstring

import (
	"github.com/davetcode/zvm/zcore"
)

type Alphabet int

const (
	a0 Alphabet = 0
	a1 Alphabet = 1
	a2 Alphabet = 2
)

// Slot 0 of A2 is the 10-bit ZSCII escape marker and never prints, so a zero
// placeholder sits there. Slot 1 is newline (v2+).
var defaultTable = [78]uint8{
	// A0
	'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm',
	'n', 'o', 'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z',
	// A1
	'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M',
	'N', 'O', 'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z',
	// A2
	0x0, 0xd, '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '.',
	',', '!', '?', '_', '#', '\'', '"', '/', '\\', '-', ':', '(', ')',
}

// v1 has no newline slot in A2 (z-char 1 prints newline instead) and
// includes '<'.
var v1A2 = [26]uint8{
	0x0, '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', '.', ',',
	'!', '?', '_', '#', '\'', '"', '/', '\\', '<', '-', ':', '(', ')',
}

// Alphabets holds the three 26-character tables plus the ZSCII/Unicode
// translation tables resolved from the header extension.
type Alphabets struct {
	table          [78]uint8 // ZSCII codes for z-chars 6..31 of A0, A1, A2
	zsciiToUnicode map[ZSCII]rune
	unicodeToZscii map[rune]ZSCII
}

// LoadAlphabets resolves the alphabet tables and the Unicode translation
// table for the loaded story. The inverse Unicode table is built here, once.
func LoadAlphabets(core *zcore.Core) *Alphabets {
	alphabets := Alphabets{table: defaultTable}

	if core.Version == 1 {
		copy(alphabets.table[52:], v1A2[:])
	} else if core.Version >= 5 && core.AlternativeCharSetBaseAddress != 0 {
		base := uint32(core.AlternativeCharSetBaseAddress)
		copy(alphabets.table[:], core.ReadSlice(base, base+78))

		// Even with a custom table, A2 characters 6 and 7 stay fixed (§3.5.5.1)
		alphabets.table[52] = 0x00
		alphabets.table[53] = 0x0d
	}

	alphabets.zsciiToUnicode = make(map[ZSCII]rune)
	if core.UnicodeExtensionTableBaseAddress != 0 {
		base := uint32(core.UnicodeExtensionTableBaseAddress)
		count := uint32(core.ReadByte(base))
		for i := uint32(0); i < count && i <= 96; i++ {
			alphabets.zsciiToUnicode[ZSCII(155+i)] = rune(core.ReadHalfWord(base + 1 + 2*i))
		}
	} else {
		for i, r := range defaultUnicodeTranslations {
			alphabets.zsciiToUnicode[ZSCII(155+i)] = r
		}
	}

	alphabets.unicodeToZscii = make(map[rune]ZSCII, len(alphabets.zsciiToUnicode))
	for zchr, r := range alphabets.zsciiToUnicode {
		alphabets.unicodeToZscii[r] = zchr
	}

	return &alphabets
}

// lookup finds the z-char encoding a ZSCII character, searching A0 first the
// way the encoder wants it.
func (a *Alphabets) lookup(zchr ZSCII) (Alphabet, uint8, bool) {
	for alphabet := a0; alphabet <= a2; alphabet++ {
		for i := 0; i < 26; i++ {
			if alphabet == a2 && i < 2 {
				continue // escape marker and newline slots
			}
			if ZSCII(a.table[int(alphabet)*26+i]) == zchr {
				return alphabet, uint8(i + 6), true
			}
		}
	}
	return a0, 0, false
}
