package ztable_test

import (
	"encoding/binary"
	"testing"

	"github.com/davetcode/zvm/zcore"
	"github.com/davetcode/zvm/zstring"
	"github.com/davetcode/zvm/ztable"
)

const tableBase = 0x0200

func loadCore(t *testing.T, setup func([]uint8)) *zcore.Core {
	t.Helper()

	b := make([]uint8, 1024)
	b[0x00] = 3
	binary.BigEndian.PutUint16(b[0x06:], 0x0040)
	binary.BigEndian.PutUint16(b[0x0a:], 0x0100)
	binary.BigEndian.PutUint16(b[0x0c:], 0x02c0)
	binary.BigEndian.PutUint16(b[0x0e:], 0x0400)
	binary.BigEndian.PutUint16(b[0x18:], 0x0080)
	binary.BigEndian.PutUint16(b[0x1a:], 0x0200)
	if setup != nil {
		setup(b)
	}

	core, err := zcore.LoadCore(b, zcore.DefaultOptions())
	if err != nil {
		t.Fatalf("LoadCore: %v", err)
	}
	return &core
}

func TestScanTableWords(t *testing.T) {
	core := loadCore(t, func(b []uint8) {
		binary.BigEndian.PutUint16(b[tableBase:], 0x1111)
		binary.BigEndian.PutUint16(b[tableBase+2:], 0x2222)
		binary.BigEndian.PutUint16(b[tableBase+4:], 0x3333)
	})

	if got := ztable.ScanTable(core, 0x2222, tableBase, 3, 0x82); got != tableBase+2 {
		t.Errorf("found at 0x%x, want 0x%x", got, tableBase+2)
	}
	if got := ztable.ScanTable(core, 0x4444, tableBase, 3, 0x82); got != 0 {
		t.Errorf("missing value found at 0x%x", got)
	}
}

func TestScanTableBytesWithStride(t *testing.T) {
	core := loadCore(t, func(b []uint8) {
		b[tableBase] = 0x0a
		b[tableBase+3] = 0x0b
		b[tableBase+6] = 0x0c
	})

	// Byte entries, stride 3
	if got := ztable.ScanTable(core, 0x0c, tableBase, 3, 0x03); got != tableBase+6 {
		t.Errorf("found at 0x%x, want 0x%x", got, tableBase+6)
	}

	// A test value over 255 never matches byte entries
	if got := ztable.ScanTable(core, 0x010c, tableBase, 3, 0x03); got != 0 {
		t.Errorf("wide value matched a byte entry at 0x%x", got)
	}

	// A zero stride must not loop
	if got := ztable.ScanTable(core, 0x0a, tableBase, 3, 0x80); got != 0 {
		t.Errorf("zero stride returned 0x%x", got)
	}
}

func TestCopyTableZeroes(t *testing.T) {
	core := loadCore(t, func(b []uint8) {
		copy(b[tableBase:], []uint8{1, 2, 3, 4})
	})

	ztable.CopyTable(core, tableBase, 0, 4)
	for i := uint32(0); i < 4; i++ {
		if core.ReadByte(tableBase+i) != 0 {
			t.Errorf("byte %d not zeroed", i)
		}
	}
}

func TestCopyTableOverlapSafe(t *testing.T) {
	core := loadCore(t, func(b []uint8) {
		copy(b[tableBase:], []uint8{1, 2, 3, 4, 0, 0})
	})

	// Forward overlap with a positive size must not corrupt the source
	ztable.CopyTable(core, tableBase, tableBase+2, 4)
	want := []uint8{1, 2, 1, 2, 3, 4}
	for i, w := range want {
		if core.ReadByte(tableBase+uint32(i)) != w {
			t.Errorf("byte %d = %d, want %d", i, core.ReadByte(tableBase+uint32(i)), w)
		}
	}
}

func TestCopyTableNegativeSizeCopiesForwards(t *testing.T) {
	core := loadCore(t, func(b []uint8) {
		copy(b[tableBase:], []uint8{1, 2, 3, 4, 0, 0})
	})

	// A negative size asks for the corrupting forward copy
	ztable.CopyTable(core, tableBase, tableBase+2, -4)
	want := []uint8{1, 2, 1, 2, 1, 2}
	for i, w := range want {
		if core.ReadByte(tableBase+uint32(i)) != w {
			t.Errorf("byte %d = %d, want %d", i, core.ReadByte(tableBase+uint32(i)), w)
		}
	}
}

func TestCopyTableRejectsReadOnlyDestination(t *testing.T) {
	core := loadCore(t, nil)

	defer func() {
		if recover() == nil {
			t.Error("copying into static memory should fail")
		}
	}()
	ztable.CopyTable(core, tableBase, 0x0400, 4)
}

func TestPrintTable(t *testing.T) {
	core := loadCore(t, func(b []uint8) {
		copy(b[tableBase:], "abcXdefY")
	})

	// 2 rows of 3 characters, skipping 1 byte between rows
	got := ztable.PrintTable(core, zstring.LoadAlphabets(core), tableBase, 3, 2, 1)
	if got != "abc\ndef" {
		t.Errorf("printed %q, want %q", got, "abc\ndef")
	}
}
