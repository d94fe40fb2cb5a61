package quetzal

import (
	"bytes"
	"testing"
)

func TestCompressSparseDiff(t *testing.T) {
	initial := make([]uint8, 0x0400)
	current := make([]uint8, 0x0400)
	copy(current, initial)
	current[0x0050] = 0x11
	current[0x00a0] = 0xff

	// 0x50 zeroes, the literal, 0x4f zeroes, the literal; trailing zeroes
	// are never written
	want := []uint8{0x00, 0x4f, 0x11, 0x00, 0x4e, 0xff}
	got := Compress(current, initial)
	if !bytes.Equal(got, want) {
		t.Errorf("compressed to % x, want % x", got, want)
	}
}

func TestCompressIdenticalMemory(t *testing.T) {
	initial := []uint8{1, 2, 3, 4}
	if got := Compress(initial, initial); len(got) != 0 {
		t.Errorf("identical memory compressed to % x, want nothing", got)
	}
}

func TestCompressLongRun(t *testing.T) {
	initial := make([]uint8, 600+1)
	current := make([]uint8, 600+1)
	copy(current, initial)
	current[600] = 0xaa

	// 600 zeroes split into 256+256+88 runs
	want := []uint8{0x00, 0xff, 0x00, 0xff, 0x00, 87, 0xaa}
	got := Compress(current, initial)
	if !bytes.Equal(got, want) {
		t.Errorf("compressed to % x, want % x", got, want)
	}
}

func TestCompressXorAgainstNonzeroInitial(t *testing.T) {
	initial := []uint8{0x10, 0x20, 0x30}
	current := []uint8{0x10, 0x21, 0x30}

	want := []uint8{0x00, 0x00, 0x01}
	got := Compress(current, initial)
	if !bytes.Equal(got, want) {
		t.Errorf("compressed to % x, want % x", got, want)
	}
}

func TestUncompressRoundTrip(t *testing.T) {
	initial := make([]uint8, 0x0400)
	for i := range initial {
		initial[i] = uint8(i * 7)
	}

	current := make([]uint8, len(initial))
	copy(current, initial)
	current[0] ^= 0x01
	current[0x123] = 0x55
	current[0x3ff] = 0xee

	restored, err := Uncompress(Compress(current, initial), initial)
	if err != nil {
		t.Fatalf("Uncompress: %v", err)
	}
	if !bytes.Equal(restored, current) {
		t.Error("round trip lost data")
	}
}

func TestUncompressStructuralErrors(t *testing.T) {
	initial := make([]uint8, 16)

	tests := []struct {
		name string
		body []uint8
	}{
		{"diff overruns memory", bytes.Repeat([]uint8{0x01}, 17)},
		{"run overruns memory", []uint8{0x00, 0xff}},
		{"run pair cut short", []uint8{0x01, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Uncompress(tt.body, initial); err == nil {
				t.Error("expected a structural error")
			}
		})
	}
}

func testState(initial []uint8) *State {
	memory := make([]uint8, len(initial))
	copy(memory, initial)
	memory[0x10] = 0x11

	return &State{
		Release:  42,
		Serial:   [6]uint8{'8', '8', '0', '1', '0', '1'},
		Checksum: 0xbeef,
		PC:       0x123456,
		Memory:   memory,
		Frames: []Frame{
			// The dummy frame of a non-v6 story
			{DiscardResult: true, Stack: []uint16{0x0001}},
			{
				ReturnPC:      0x00abcd,
				StoreVariable: 0x10,
				NArgs:         2,
				Locals:        []uint16{0x1111, 0x2222, 0x3333},
				Stack:         []uint16{0xaaaa, 0xbbbb},
			},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	initial := make([]uint8, 0x0400)
	state := testState(initial)

	data := Encode(state, initial, "zork1.z3")
	decoded, err := Decode(data, initial)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Release != state.Release || decoded.Serial != state.Serial || decoded.Checksum != state.Checksum {
		t.Error("story identity mangled")
	}
	if decoded.PC != state.PC {
		t.Errorf("pc = 0x%x, want 0x%x", decoded.PC, state.PC)
	}
	if !bytes.Equal(decoded.Memory, state.Memory) {
		t.Error("memory mangled")
	}
	if len(decoded.Frames) != 2 {
		t.Fatalf("got %d frames", len(decoded.Frames))
	}

	dummy := decoded.Frames[0]
	if !dummy.DiscardResult || len(dummy.Locals) != 0 || len(dummy.Stack) != 1 || dummy.Stack[0] != 0x0001 {
		t.Errorf("dummy frame mangled: %+v", dummy)
	}

	frame := decoded.Frames[1]
	if frame.ReturnPC != 0x00abcd || frame.DiscardResult || frame.StoreVariable != 0x10 || frame.NArgs != 2 {
		t.Errorf("frame header mangled: %+v", frame)
	}
	if len(frame.Locals) != 3 || frame.Locals[2] != 0x3333 {
		t.Errorf("locals mangled: %v", frame.Locals)
	}
	if len(frame.Stack) != 2 || frame.Stack[1] != 0xbbbb {
		t.Errorf("stack mangled: %v", frame.Stack)
	}
}

func TestEncodeUsesUMemWhenCompressionLoses(t *testing.T) {
	// Tiny memory where every byte differs: the diff is as large as the
	// memory, so the raw form wins
	initial := []uint8{0x01, 0x02}
	state := &State{
		Release: 1,
		Memory:  []uint8{0xfe, 0xfd},
		Frames:  []Frame{{DiscardResult: true}},
	}

	data := Encode(state, initial, "")
	if !bytes.Contains(data, []byte("UMem")) {
		t.Error("expected a UMem chunk")
	}
	if bytes.Contains(data, []byte("CMem")) {
		t.Error("unexpected CMem chunk")
	}

	decoded, err := Decode(data, initial)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded.Memory, state.Memory) {
		t.Error("memory mangled")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	initial := make([]uint8, 64)
	good := Encode(testState(initial), initial, "")

	tests := []struct {
		name string
		data []uint8
	}{
		{"not iff", []uint8("hello world, this is not a save")},
		{"wrong form type", append([]uint8("FORM\x00\x00\x00\x04AIFF"), good[12:]...)},
		{"truncated", good[:20]},
		{"missing stks", good[:len(good)-20]},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data, initial); err == nil {
				t.Error("expected a decode error")
			}
		})
	}
}

func TestDecodeRejectsWrongMemorySize(t *testing.T) {
	initial := make([]uint8, 0x0400)
	state := testState(initial)
	state.Memory[0x03ff] = 0x99 // diff beyond the smaller image
	data := Encode(state, initial, "")

	if _, err := Decode(data, make([]uint8, 0x0200)); err == nil {
		t.Error("memory size mismatch should be rejected")
	}
}
