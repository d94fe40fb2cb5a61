package zobject_test

import (
	"encoding/binary"
	"testing"

	"github.com/davetcode/zvm/zcore"
	"github.com/davetcode/zvm/zobject"
	"github.com/davetcode/zvm/zstring"
)

const objectTableBase = 0x0100

func buildStory(version uint8) []uint8 {
	b := make([]uint8, 1024)
	b[0x00] = version
	binary.BigEndian.PutUint16(b[0x06:], 0x0040)
	binary.BigEndian.PutUint16(b[0x0a:], objectTableBase)
	binary.BigEndian.PutUint16(b[0x0c:], 0x02c0)
	binary.BigEndian.PutUint16(b[0x0e:], 0x0400)
	binary.BigEndian.PutUint16(b[0x18:], 0x0080)
	if version <= 3 {
		binary.BigEndian.PutUint16(b[0x1a:], 0x0200)
	} else {
		binary.BigEndian.PutUint16(b[0x1a:], 0x0100)
	}
	return b
}

// objectRecord writes a v3 object record. Records start after the 31
// property-defaults words.
func objectRecord(story []uint8, id int, parent, sibling, child uint8, propPtr uint16) {
	base := objectTableBase + 31*2 + (id-1)*9
	story[base+4] = parent
	story[base+5] = sibling
	story[base+6] = child
	binary.BigEndian.PutUint16(story[base+7:], propPtr)
}

// propertyTable writes a short-name header ("a") followed by property 10
// (2 bytes) and property 5 (1 byte).
func propertyTable(story []uint8, addr uint16) {
	story[addr] = 1 // name is one word
	binary.BigEndian.PutUint16(story[addr+1:], 0x98a5) // z-chars {6,5,5} = "a"
	story[addr+3] = 0x2a                               // property 10, length 2
	binary.BigEndian.PutUint16(story[addr+4:], 0xbeef)
	story[addr+6] = 0x05 // property 5, length 1
	story[addr+7] = 0x42
	story[addr+8] = 0 // terminator
}

// testTree builds objects 1..5: object 1 is the parent of 2, 3 and 4 (in
// that sibling order); object 5 starts detached.
func testTree(t *testing.T) *zcore.Core {
	t.Helper()
	story := buildStory(3)

	binary.BigEndian.PutUint16(story[objectTableBase+2*4:], 0x1234) // default for property 5

	for id := 1; id <= 5; id++ {
		propAddr := uint16(0x0280 + (id-1)*0x20)
		propertyTable(story, propAddr)
		objectRecord(story, id, 0, 0, 0, propAddr)
	}
	objectRecord(story, 1, 0, 0, 2, 0x0280)
	objectRecord(story, 2, 1, 3, 0, 0x02a0)
	objectRecord(story, 3, 1, 4, 0, 0x02c0)
	objectRecord(story, 4, 1, 0, 0, 0x02e0)

	core, err := zcore.LoadCore(story, zcore.DefaultOptions())
	if err != nil {
		t.Fatalf("LoadCore: %v", err)
	}
	return &core
}

// children walks the sibling chain from an object's first child.
func children(core *zcore.Core, id uint16) []uint16 {
	var out []uint16
	for curr := zobject.GetObject(id, core).Child; curr != 0; {
		out = append(out, curr)
		curr = zobject.GetObject(curr, core).Sibling
	}
	return out
}

func equalIds(a []uint16, b ...uint16) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestGetObjectZeroPanics(t *testing.T) {
	core := testTree(t)

	defer func() {
		if recover() == nil {
			t.Error("object 0 has no record and must not be readable")
		}
	}()
	zobject.GetObject(0, core)
}

func TestObjectFields(t *testing.T) {
	core := testTree(t)

	obj := zobject.GetObject(2, core)
	if obj.Parent != 1 || obj.Sibling != 3 || obj.Child != 0 {
		t.Errorf("wrong links: parent=%d sibling=%d child=%d", obj.Parent, obj.Sibling, obj.Child)
	}
	if obj.Name(core, zstring.LoadAlphabets(core)) != "a" {
		t.Error("wrong short name")
	}
}

func TestInsertMakesFirstChild(t *testing.T) {
	core := testTree(t)

	zobject.Insert(5, 1, core)

	five := zobject.GetObject(5, core)
	if five.Parent != 1 {
		t.Errorf("parent(5) = %d, want 1", five.Parent)
	}
	if !equalIds(children(core, 1), 5, 2, 3, 4) {
		t.Errorf("children of 1 = %v", children(core, 1))
	}
}

func TestInsertReparents(t *testing.T) {
	core := testTree(t)

	// Move 3 out of the middle of 1's chain and under 2
	zobject.Insert(3, 2, core)

	if !equalIds(children(core, 1), 2, 4) {
		t.Errorf("children of 1 = %v", children(core, 1))
	}
	if !equalIds(children(core, 2), 3) {
		t.Errorf("children of 2 = %v", children(core, 2))
	}
	if zobject.GetObject(3, core).Parent != 2 {
		t.Error("parent(3) should be 2")
	}
}

func TestRemoveUnlinks(t *testing.T) {
	core := testTree(t)

	zobject.Remove(3, core)

	three := zobject.GetObject(3, core)
	if three.Parent != 0 || three.Sibling != 0 {
		t.Errorf("removed object keeps links: parent=%d sibling=%d", three.Parent, three.Sibling)
	}
	if !equalIds(children(core, 1), 2, 4) {
		t.Errorf("children of 1 = %v", children(core, 1))
	}

	// Removing the first child promotes its sibling
	zobject.Remove(2, core)
	if !equalIds(children(core, 1), 4) {
		t.Errorf("children of 1 = %v", children(core, 1))
	}
}

func TestRemoveDetectsCorruptChain(t *testing.T) {
	core := testTree(t)

	// Claim object 5 is a child of 1 without linking it into the chain
	five := zobject.GetObject(5, core)
	five.SetParent(1, core)

	defer func() {
		if recover() == nil {
			t.Error("removing an object missing from its parent's chain should fail")
		}
	}()
	zobject.Remove(5, core)
}

func TestRemoveDetectsSiblingCycle(t *testing.T) {
	core := testTree(t)

	// 2 -> 3 -> 2 cycle; object 4 claims parent 1 but is unreachable
	obj3 := zobject.GetObject(3, core)
	obj3.SetSibling(2, core)

	defer func() {
		if recover() == nil {
			t.Error("a sibling cycle should be detected, not spun on")
		}
	}()
	zobject.Remove(4, core)
}

func TestAttributes(t *testing.T) {
	core := testTree(t)
	obj := zobject.GetObject(2, core)

	reload := func() zobject.Object { return zobject.GetObject(2, core) }

	if obj.TestAttribute(7, core) {
		t.Error("attribute 7 should start clear")
	}

	obj.SetAttribute(7, core)
	if fresh := reload(); !fresh.TestAttribute(7, core) {
		t.Error("attribute 7 should be set")
	}

	obj.ClearAttribute(7, core)
	if fresh := reload(); fresh.TestAttribute(7, core) {
		t.Error("attribute 7 should be clear again")
	}

	// Neighbouring attributes must be untouched
	obj.SetAttribute(8, core)
	obj.SetAttribute(7, core)
	obj.ClearAttribute(7, core)
	if fresh := reload(); !fresh.TestAttribute(8, core) {
		t.Error("attribute 8 was clobbered")
	}
}

func TestAttributeRangeByVersion(t *testing.T) {
	core := testTree(t)
	obj := zobject.GetObject(1, core)

	defer func() {
		if recover() == nil {
			t.Error("attribute 32 is out of range in v3")
		}
	}()
	obj.TestAttribute(32, core)
}

func TestProperties(t *testing.T) {
	core := testTree(t)
	obj := zobject.GetObject(1, core)

	prop10 := obj.GetProperty(10, core)
	if prop10.Length != 2 || binary.BigEndian.Uint16(prop10.Data) != 0xbeef {
		t.Errorf("property 10 = %v", prop10)
	}

	prop5 := obj.GetProperty(5, core)
	if prop5.Length != 1 || prop5.Data[0] != 0x42 {
		t.Errorf("property 5 = %v", prop5)
	}

	if prop7 := obj.GetProperty(7, core); prop7.DataAddress != 0 {
		t.Error("property 7 should be absent")
	}
}

func TestPropertyDefaults(t *testing.T) {
	core := testTree(t)
	obj := zobject.GetObject(1, core)

	prop := obj.GetProperty(5, core)
	if prop.DataAddress == 0 {
		t.Fatal("property 5 should exist on the object")
	}

	// Property 3 is absent everywhere: the default (0 here) comes back.
	// Property 5's default of 0x1234 is shadowed by the object's own value.
	absent := obj.GetProperty(3, core)
	if absent.DataAddress != 0 || binary.BigEndian.Uint16(absent.Data) != 0 {
		t.Errorf("absent property gave %v", absent)
	}

	story := buildStory(3)
	binary.BigEndian.PutUint16(story[objectTableBase+2*2:], 0x5678) // default for property 3
	propertyTable(story, 0x0280)
	objectRecord(story, 1, 0, 0, 0, 0x0280)
	core2, _ := zcore.LoadCore(story, zcore.DefaultOptions())

	obj2 := zobject.GetObject(1, &core2)
	fromDefaults := obj2.GetProperty(3, &core2)
	if binary.BigEndian.Uint16(fromDefaults.Data) != 0x5678 {
		t.Errorf("default value = %x, want 0x5678", fromDefaults.Data)
	}
}

func TestGetPropertyLength(t *testing.T) {
	core := testTree(t)
	obj := zobject.GetObject(1, core)

	prop10 := obj.GetProperty(10, core)
	if zobject.GetPropertyLength(core, prop10.DataAddress) != 2 {
		t.Error("property 10 length should be 2")
	}

	prop5 := obj.GetProperty(5, core)
	if zobject.GetPropertyLength(core, prop5.DataAddress) != 1 {
		t.Error("property 5 length should be 1")
	}

	// @get_prop_len 0 must yield 0
	if zobject.GetPropertyLength(core, 0) != 0 {
		t.Error("length at address 0 should be 0")
	}
}

func TestGetNextProperty(t *testing.T) {
	core := testTree(t)
	obj := zobject.GetObject(1, core)

	if first := obj.GetNextProperty(0, core); first != 10 {
		t.Errorf("first property = %d, want 10", first)
	}
	if next := obj.GetNextProperty(10, core); next != 5 {
		t.Errorf("after 10 = %d, want 5", next)
	}
	if last := obj.GetNextProperty(5, core); last != 0 {
		t.Errorf("after 5 = %d, want 0", last)
	}
}

func TestSetProperty(t *testing.T) {
	core := testTree(t)
	obj := zobject.GetObject(1, core)

	obj.SetProperty(10, 0x1122, core)
	if binary.BigEndian.Uint16(obj.GetProperty(10, core).Data) != 0x1122 {
		t.Error("word property not updated")
	}

	obj.SetProperty(5, 0x3344, core)
	if obj.GetProperty(5, core).Data[0] != 0x44 {
		t.Error("byte property should take the low byte")
	}

	defer func() {
		if recover() == nil {
			t.Error("setting a missing property should fail")
		}
	}()
	obj.SetProperty(7, 1, core)
}

func TestV4ObjectLayout(t *testing.T) {
	story := buildStory(4)

	// v4 records: 63 default words, 14-byte records, word-wide links
	base := objectTableBase + 63*2
	binary.BigEndian.PutUint16(story[base+6:], 0x0123)  // parent
	binary.BigEndian.PutUint16(story[base+8:], 0x0045)  // sibling
	binary.BigEndian.PutUint16(story[base+10:], 0x0300) // child
	binary.BigEndian.PutUint16(story[base+12:], 0x0380) // property pointer
	story[0x0380] = 0                                   // empty short name
	story[0x0381] = 0                                   // property terminator

	core, err := zcore.LoadCore(story, zcore.DefaultOptions())
	if err != nil {
		t.Fatalf("LoadCore: %v", err)
	}

	obj := zobject.GetObject(1, &core)
	if obj.Parent != 0x0123 || obj.Sibling != 0x0045 || obj.Child != 0x0300 {
		t.Errorf("wrong v4 links: %d %d %d", obj.Parent, obj.Sibling, obj.Child)
	}

	// Attribute 40 lives in the v4-only attribute bytes
	obj.SetAttribute(40, &core)
	fresh := zobject.GetObject(1, &core)
	if !fresh.TestAttribute(40, &core) {
		t.Error("attribute 40 not set")
	}
	if fresh.TestAttribute(41, &core) {
		t.Error("attribute 41 should be clear")
	}
}
