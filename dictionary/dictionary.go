package dictionary

import (
	"bytes"

	"github.com/davetcode/zvm/zcore"
	"github.com/davetcode/zvm/zstring"
)

type DictionaryHeader struct {
	InputCodes  []uint8 // word-separator ZSCII codes
	entryLength uint8
	count       int16
}

type DictionaryEntry struct {
	address     uint16
	encodedWord []uint8
	data        []uint8
}

// Dictionary is a parsed word table: fixed-width encoded-text entries, each
// followed by entryLength-n user bytes. The core only ever locates entries
// by encoded form when tokenising input.
type Dictionary struct {
	Header  DictionaryHeader
	entries []DictionaryEntry
}

// ParseDictionary reads the table at baseAddress. A negative entry count
// marks an unsorted user dictionary (@tokenise with a custom table); lookup
// here is linear either way so only the magnitude matters.
func ParseDictionary(baseAddress uint32, core *zcore.Core, alphabets *zstring.Alphabets) *Dictionary {
	numInputCodes := core.ReadByte(baseAddress)

	header := DictionaryHeader{
		InputCodes:  core.ReadSlice(baseAddress+1, baseAddress+1+uint32(numInputCodes)),
		entryLength: core.ReadByte(baseAddress + 1 + uint32(numInputCodes)),
		count:       int16(core.ReadHalfWord(baseAddress + 2 + uint32(numInputCodes))),
	}

	count := int(header.count)
	if count < 0 {
		count = -count
	}

	encodedWordLength := 4
	if core.Version > 3 {
		encodedWordLength = 6
	}

	entryPtr := baseAddress + 4 + uint32(numInputCodes)
	entries := make([]DictionaryEntry, count)

	for ix := 0; ix < count; ix++ {
		entries[ix] = DictionaryEntry{
			address:     uint16(entryPtr),
			encodedWord: core.ReadSlice(entryPtr, entryPtr+uint32(encodedWordLength)),
			data:        core.ReadSlice(entryPtr+uint32(encodedWordLength), entryPtr+uint32(header.entryLength)),
		}

		entryPtr += uint32(header.entryLength)
	}

	return &Dictionary{
		Header:  header,
		entries: entries,
	}
}

// Find returns the byte address of the entry matching the encoded word, or 0.
func (d *Dictionary) Find(encoded []uint8) uint16 {
	for _, entry := range d.entries {
		if bytes.Equal(entry.encodedWord, encoded) {
			return entry.address
		}
	}

	return 0
}
