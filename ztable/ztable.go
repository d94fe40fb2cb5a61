// Package ztable implements the table opcodes: @scan_table, @copy_table and
// @print_table all operate on byte/word arrays in the program's memory, so
// stores go through the user-write path and respect the read-only regions.
package ztable

import (
	"strings"

	"github.com/davetcode/zvm/zcore"
	"github.com/davetcode/zvm/zstring"
)

// ScanTable searches length fields of the table at baseAddress for test.
// The form byte's top bit selects word (set) or byte entries, the low seven
// bits give the field stride. Returns the address of the match or 0.
func ScanTable(core *zcore.Core, test uint16, baseAddress uint32, length uint16, form uint16) uint32 {
	fieldSize := uint32(form & 0b0111_1111)
	checkWord := form&0b1000_0000 != 0
	if fieldSize == 0 {
		return 0 // zero stride would never advance
	}

	ptr := baseAddress
	for i := uint16(0); i < length; i++ {
		if checkWord {
			if core.ReadHalfWord(ptr) == test {
				return ptr
			}
		} else {
			// Byte entries widen to u16: a test value over 255 rightly never matches
			if uint16(core.ReadByte(ptr)) == test {
				return ptr
			}
		}

		ptr += fieldSize
	}

	return 0
}

// CopyTable implements @copy_table's three behaviours: zero the source when
// the destination is 0, copy corruption-safe for positive sizes, and copy
// forwards (allowing deliberate overlap corruption) for negative sizes.
func CopyTable(core *zcore.Core, first uint16, second uint16, size int16) {
	sizeAbs := uint32(size)
	if size < 0 {
		sizeAbs = uint32(-int32(size))
	}

	switch {
	case second == 0:
		for i := uint32(0); i < sizeAbs; i++ {
			core.UserWriteByte(uint32(first)+i, 0)
		}

	case size < 0 || first > second:
		for i := uint32(0); i < sizeAbs; i++ {
			core.UserWriteByte(uint32(second)+i, core.ReadByte(uint32(first)+i))
		}

	default:
		// Copy backwards so an overlapping destination doesn't clobber
		// source bytes before they move
		for i := sizeAbs; i > 0; i-- {
			core.UserWriteByte(uint32(second)+i-1, core.ReadByte(uint32(first)+i-1))
		}
	}
}

// PrintTable renders a height×width block of ZSCII text starting at
// baseAddress, skipping skip bytes between rows.
func PrintTable(core *zcore.Core, alphabets *zstring.Alphabets, baseAddress uint32, width uint16, height uint16, skip uint16) string {
	var s strings.Builder
	ptr := baseAddress

	for row := uint16(0); row < height; row++ {
		if row != 0 {
			s.WriteByte('\n')
		}

		for col := uint16(0); col < width; col++ {
			if r := alphabets.ZsciiToUnicode(zstring.ZSCII(core.ReadByte(ptr))); r != 0 {
				s.WriteRune(r)
			}
			ptr++
		}

		ptr += uint32(skip)
	}

	return s.String()
}
