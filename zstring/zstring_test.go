package zstring_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/davetcode/zvm/zcore"
	"github.com/davetcode/zvm/zstring"
)

const stringBase = 0x0200

// buildStory assembles a minimal story with room for packed strings in
// dynamic memory at stringBase.
func buildStory(version uint8) []uint8 {
	b := make([]uint8, 1024)
	b[0x00] = version
	binary.BigEndian.PutUint16(b[0x06:], 0x0040) // initial pc
	binary.BigEndian.PutUint16(b[0x0a:], 0x0100) // object table
	binary.BigEndian.PutUint16(b[0x0c:], 0x02c0) // globals
	binary.BigEndian.PutUint16(b[0x0e:], 0x0400) // static base
	binary.BigEndian.PutUint16(b[0x18:], 0x0080) // abbreviations
	switch {
	case version <= 3:
		binary.BigEndian.PutUint16(b[0x1a:], 0x0200)
	case version <= 5:
		binary.BigEndian.PutUint16(b[0x1a:], 0x0100)
	default:
		binary.BigEndian.PutUint16(b[0x1a:], 0x0080)
	}
	return b
}

func loadWithString(t *testing.T, version uint8, packed []uint8) (*zcore.Core, *zstring.Alphabets) {
	t.Helper()
	story := buildStory(version)
	copy(story[stringBase:], packed)

	core, err := zcore.LoadCore(story, zcore.DefaultOptions())
	if err != nil {
		t.Fatalf("LoadCore: %v", err)
	}
	return &core, zstring.LoadAlphabets(&core)
}

func words(ws ...uint16) []uint8 {
	var out []uint8
	for _, w := range ws {
		out = binary.BigEndian.AppendUint16(out, w)
	}
	return out
}

var decodingTests = []struct {
	name      string
	version   uint8
	packed    []uint8
	want      string
	bytesRead uint32
}{
	// z-chars {13,10,17} {17,20,5}: plain A0 text padded with a shift
	{"plain text", 3, words(0x3551, 0xc685), "hello", 4},
	// {4,13,14} {5,5,5}: single-char shift to A1
	{"upper case shift", 3, words(0x11ae, 0x94a5), "Hi", 4},
	// {5,6,1,30,5,5}: A2 escape assembling ZSCII 62
	{"zscii escape", 3, words(0x14c1, 0xf8a5), ">", 4},
	// {5,7,5}: newline lives at A2 slot 7
	{"newline", 3, words(0x94e5), "\n", 2},
	// {0,0,0}: z-char 0 is space everywhere
	{"spaces", 3, words(0x8000), "   ", 2},
	// v1: z-char 1 prints newline instead of an abbreviation
	{"v1 newline", 1, words(0x8400), "\n  ", 2},
	// v2: z-char 4 is a shift lock, so both letters read from A1
	{"v2 shift lock", 2, words(0x91ae), "HI", 2},
}

func TestDecoding(t *testing.T) {
	for _, tt := range decodingTests {
		t.Run(tt.name, func(t *testing.T) {
			core, alphabets := loadWithString(t, tt.version, tt.packed)

			got, bytesRead := zstring.DecodeString(core, stringBase, alphabets)
			if got != tt.want {
				t.Errorf("decoded %q, want %q", got, tt.want)
			}
			if bytesRead != tt.bytesRead {
				t.Errorf("read %d bytes, want %d", bytesRead, tt.bytesRead)
			}
		})
	}
}

func TestAbbreviationExpansion(t *testing.T) {
	story := buildStory(3)

	// Abbreviation 0 points (as a word address) at "hello" stored at 0x0300
	binary.BigEndian.PutUint16(story[0x0080:], 0x0300/2)
	copy(story[0x0300:], words(0x3551, 0xc685))

	// Main string: z-chars {1,0,0} = abbreviation 0, then a space
	copy(story[stringBase:], words(0x8400))

	core, err := zcore.LoadCore(story, zcore.DefaultOptions())
	if err != nil {
		t.Fatalf("LoadCore: %v", err)
	}
	alphabets := zstring.LoadAlphabets(&core)

	got, _ := zstring.DecodeString(&core, stringBase, alphabets)
	if got != "hello " {
		t.Errorf("decoded %q, want %q", got, "hello ")
	}

	if s := zstring.FindAbbreviation(&core, alphabets, 1, 0); s != "hello" {
		t.Errorf("FindAbbreviation = %q", s)
	}
}

func TestNestedAbbreviationsAreFatal(t *testing.T) {
	story := buildStory(3)

	// Abbreviation 0 expands to a string that itself references abbreviation 0
	binary.BigEndian.PutUint16(story[0x0080:], 0x0300/2)
	copy(story[0x0300:], words(0x8400))
	copy(story[stringBase:], words(0x8400))

	core, _ := zcore.LoadCore(story, zcore.DefaultOptions())
	alphabets := zstring.LoadAlphabets(&core)

	defer func() {
		if recover() == nil {
			t.Error("recursive abbreviation should be fatal")
		}
	}()
	zstring.DecodeString(&core, stringBase, alphabets)
}

func TestEncodeWidths(t *testing.T) {
	core3, alphabets3 := loadWithString(t, 3, nil)
	if got := zstring.Encode([]rune("hello"), core3, alphabets3); len(got) != 4 {
		t.Errorf("v3 encoding is %d bytes, want 4", len(got))
	}

	core5, alphabets5 := loadWithString(t, 5, nil)
	if got := zstring.Encode([]rune("hello"), core5, alphabets5); len(got) != 6 {
		t.Errorf("v5 encoding is %d bytes, want 6", len(got))
	}
}

func TestEncodeMatchesKnownForm(t *testing.T) {
	core, alphabets := loadWithString(t, 3, nil)

	// "hello" = z-chars {13,10,17} {17,20,5-pad}
	want := words(0x3551, 0xc685)
	if got := zstring.Encode([]rune("hello"), core, alphabets); !bytes.Equal(got, want) {
		t.Errorf("encoded % x, want % x", got, want)
	}
}

func TestRoundTrip(t *testing.T) {
	for _, text := range []string{"x", "hello", "zork", "it", ">", "a1", "é"} {
		t.Run(text, func(t *testing.T) {
			story := buildStory(5)
			core, err := zcore.LoadCore(story, zcore.DefaultOptions())
			if err != nil {
				t.Fatalf("LoadCore: %v", err)
			}
			alphabets := zstring.LoadAlphabets(&core)

			encoded := zstring.Encode([]rune(text), &core, alphabets)
			for i, b := range encoded {
				core.WriteByte(stringBase+uint32(i), b)
			}

			got, _ := zstring.DecodeString(&core, stringBase, alphabets)
			if got != text {
				t.Errorf("round trip gave %q, want %q", got, text)
			}
		})
	}
}

func TestCustomAlphabetTable(t *testing.T) {
	story := buildStory(5)

	// Custom table at 0x0140: A0 all 'q', A1/A2 default-ish
	tableBase := 0x0140
	binary.BigEndian.PutUint16(story[0x34:], uint16(tableBase))
	for i := 0; i < 26; i++ {
		story[tableBase+i] = 'q'
		story[tableBase+26+i] = 'Q'
		story[tableBase+52+i] = '*'
	}

	// z-chars {6,7,5}: two A0 characters
	copy(story[stringBase:], words(0x98e5))

	core, _ := zcore.LoadCore(story, zcore.DefaultOptions())
	alphabets := zstring.LoadAlphabets(&core)

	got, _ := zstring.DecodeString(&core, stringBase, alphabets)
	if got != "qq" {
		t.Errorf("decoded %q with custom alphabet, want %q", got, "qq")
	}

	// A2 slots 6 and 7 stay pinned to escape/newline even when overridden:
	// z-chars {5,7,5} must still give a newline, not '*'
	copy(story[stringBase:], words(0x94e5))
	got, _ = zstring.DecodeString(&core, stringBase, alphabets)
	if got != "\n" {
		t.Errorf("A2 newline slot was overridden: got %q", got)
	}
}

func TestDefaultUnicodeTable(t *testing.T) {
	_, alphabets := loadWithString(t, 5, nil)

	if r := alphabets.ZsciiToUnicode(155); r != 'ä' {
		t.Errorf("zscii 155 = %q, want ä", r)
	}
	if zchr, ok := alphabets.UnicodeToZscii('ä'); !ok || zchr != 155 {
		t.Errorf("ä maps to %d (%v), want 155", zchr, ok)
	}
	if r := alphabets.ZsciiToUnicode(13); r != '\n' {
		t.Error("zscii 13 should map to newline")
	}
	if r := alphabets.ZsciiToUnicode(65); r != 'A' {
		t.Error("ascii range should pass through")
	}
}

func TestUnicodeTableOverride(t *testing.T) {
	story := buildStory(5)

	// Header extension at 0x0120 with 3 entries; entry 3 points at a
	// 1-entry unicode table mapping ZSCII 155 to Ω
	binary.BigEndian.PutUint16(story[0x36:], 0x0120)
	binary.BigEndian.PutUint16(story[0x0120:], 3)
	binary.BigEndian.PutUint16(story[0x0126:], 0x0130)
	story[0x0130] = 1
	binary.BigEndian.PutUint16(story[0x0131:], 0x03a9)

	core, err := zcore.LoadCore(story, zcore.DefaultOptions())
	if err != nil {
		t.Fatalf("LoadCore: %v", err)
	}
	alphabets := zstring.LoadAlphabets(&core)

	if r := alphabets.ZsciiToUnicode(155); r != 'Ω' {
		t.Errorf("zscii 155 = %q, want Ω", r)
	}
	if r := alphabets.ZsciiToUnicode(156); r != '?' {
		t.Errorf("unmapped zscii should render as ?, got %q", r)
	}
}
