package dictionary_test

import (
	"encoding/binary"
	"testing"

	"github.com/davetcode/zvm/dictionary"
	"github.com/davetcode/zvm/zcore"
	"github.com/davetcode/zvm/zstring"
)

const dictionaryBase = 0x0180

func buildCoreWithDictionary(t *testing.T, dictWords []string) (*zcore.Core, *zstring.Alphabets) {
	t.Helper()

	b := make([]uint8, 1024)
	b[0x00] = 3
	binary.BigEndian.PutUint16(b[0x06:], 0x0040)
	binary.BigEndian.PutUint16(b[0x08:], dictionaryBase)
	binary.BigEndian.PutUint16(b[0x0a:], 0x0100)
	binary.BigEndian.PutUint16(b[0x0c:], 0x02c0)
	binary.BigEndian.PutUint16(b[0x0e:], 0x0400)
	binary.BigEndian.PutUint16(b[0x18:], 0x0080)
	binary.BigEndian.PutUint16(b[0x1a:], 0x0200)

	core, err := zcore.LoadCore(b, zcore.DefaultOptions())
	if err != nil {
		t.Fatalf("LoadCore: %v", err)
	}
	alphabets := zstring.LoadAlphabets(&core)

	// Header: 2 separators, 7-byte entries (4 encoded + 3 user bytes)
	ptr := uint32(dictionaryBase)
	core.WriteByte(ptr, 2)
	core.WriteByte(ptr+1, ',')
	core.WriteByte(ptr+2, '.')
	core.WriteByte(ptr+3, 7)
	core.WriteHalfWord(ptr+4, uint16(len(dictWords)))

	entryPtr := ptr + 6
	for _, word := range dictWords {
		for i, b := range zstring.Encode([]rune(word), &core, alphabets) {
			core.WriteByte(entryPtr+uint32(i), b)
		}
		entryPtr += 7
	}

	return &core, alphabets
}

func TestFindWord(t *testing.T) {
	core, alphabets := buildCoreWithDictionary(t, []string{"look", "take", "drop"})
	dict := dictionary.ParseDictionary(dictionaryBase, core, alphabets)

	takeAddr := dict.Find(zstring.Encode([]rune("take"), core, alphabets))
	if takeAddr != dictionaryBase+6+7 {
		t.Errorf("found take at 0x%x, want 0x%x", takeAddr, dictionaryBase+6+7)
	}

	if got := dict.Find(zstring.Encode([]rune("xyzzy"), core, alphabets)); got != 0 {
		t.Errorf("missing word found at 0x%x", got)
	}
}

func TestSeparators(t *testing.T) {
	core, alphabets := buildCoreWithDictionary(t, []string{"look"})
	dict := dictionary.ParseDictionary(dictionaryBase, core, alphabets)

	if len(dict.Header.InputCodes) != 2 || dict.Header.InputCodes[0] != ',' || dict.Header.InputCodes[1] != '.' {
		t.Errorf("wrong separators %v", dict.Header.InputCodes)
	}
}

func TestTruncatedWordsCollide(t *testing.T) {
	// v3 entries keep 6 z-characters, so long words share an entry
	core, alphabets := buildCoreWithDictionary(t, []string{"northeast"})
	dict := dictionary.ParseDictionary(dictionaryBase, core, alphabets)

	a := dict.Find(zstring.Encode([]rune("northeast"), core, alphabets))
	b := dict.Find(zstring.Encode([]rune("northea"), core, alphabets))
	if a == 0 || a != b {
		t.Errorf("truncated lookups differ: 0x%x vs 0x%x", a, b)
	}
}
