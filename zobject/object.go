package zobject

import (
	"encoding/binary"
	"fmt"

	"github.com/davetcode/zvm/zcore"
	"github.com/davetcode/zvm/zstring"
)

// Object is a decoded view of one object-table record. v1-3 records are 9
// bytes with 32 attribute bits and byte-wide tree links; v4+ records are 14
// bytes with 48 attribute bits and word-wide links.
type Object struct {
	BaseAddress     uint32
	Id              uint16
	Attributes      uint64 // left-aligned: attribute 0 is bit 63
	Parent          uint16
	Sibling         uint16
	Child           uint16
	PropertyPointer uint16
}

func maxAttribute(version uint8) uint16 {
	if version <= 3 {
		return 31
	}
	return 47
}

func recordAddress(objId uint16, core *zcore.Core) uint32 {
	if objId == 0 {
		panic("can't get 0th object, it doesn't exist")
	}

	var address uint32
	var recordSize uint32
	if core.Version >= 4 {
		address = uint32(core.ObjectTableBase) + 63*2 + uint32(objId-1)*14
		recordSize = 14
	} else {
		if objId > 255 {
			panic(fmt.Sprintf("illegal object %d referenced", objId))
		}
		address = uint32(core.ObjectTableBase) + 31*2 + uint32(objId-1)*9
		recordSize = 9
	}

	if address+recordSize >= uint32(core.StaticMemoryBase) {
		panic(fmt.Sprintf("object %d out of range", objId))
	}

	return address
}

// GetObject reads the object record. The caller handles object 0, which is
// "no object" and has no record.
func GetObject(objId uint16, core *zcore.Core) Object {
	objectBase := recordAddress(objId, core)

	if core.Version >= 4 {
		return Object{
			Id: objId,
			Attributes: uint64(core.ReadHalfWord(objectBase))<<48 |
				uint64(core.ReadHalfWord(objectBase+2))<<32 |
				uint64(core.ReadHalfWord(objectBase+4))<<16,
			Parent:          core.ReadHalfWord(objectBase + 6),
			Sibling:         core.ReadHalfWord(objectBase + 8),
			Child:           core.ReadHalfWord(objectBase + 10),
			PropertyPointer: core.ReadHalfWord(objectBase + 12),
			BaseAddress:     objectBase,
		}
	}

	return Object{
		Id: objId,
		Attributes: uint64(core.ReadHalfWord(objectBase))<<48 |
			uint64(core.ReadHalfWord(objectBase+2))<<32,
		Parent:          uint16(core.ReadByte(objectBase + 4)),
		Sibling:         uint16(core.ReadByte(objectBase + 5)),
		Child:           uint16(core.ReadByte(objectBase + 6)),
		PropertyPointer: core.ReadHalfWord(objectBase + 7),
		BaseAddress:     objectBase,
	}
}

// Name decodes the object's short name from its property table header.
func (o *Object) Name(core *zcore.Core, alphabets *zstring.Alphabets) string {
	if core.ReadByte(uint32(o.PropertyPointer)) == 0 {
		return ""
	}
	name, _ := zstring.DecodeString(core, uint32(o.PropertyPointer)+1, alphabets)
	return name
}

func (o *Object) TestAttribute(attribute uint16, core *zcore.Core) bool {
	checkAttribute(attribute, core)
	mask := uint64(1) << (63 - attribute)
	return o.Attributes&mask == mask
}

func (o *Object) SetAttribute(attribute uint16, core *zcore.Core) {
	checkAttribute(attribute, core)
	o.Attributes |= uint64(1) << (63 - attribute)
	o.writeAttributes(core)
}

func (o *Object) ClearAttribute(attribute uint16, core *zcore.Core) {
	checkAttribute(attribute, core)
	o.Attributes &^= uint64(1) << (63 - attribute)
	o.writeAttributes(core)
}

func checkAttribute(attribute uint16, core *zcore.Core) {
	if attribute > maxAttribute(core.Version) {
		panic(fmt.Sprintf("invalid attribute %d", attribute))
	}
}

func (o *Object) writeAttributes(core *zcore.Core) {
	var packed [8]uint8
	binary.BigEndian.PutUint64(packed[:], o.Attributes)

	core.WriteByte(o.BaseAddress, packed[0])
	core.WriteByte(o.BaseAddress+1, packed[1])
	core.WriteByte(o.BaseAddress+2, packed[2])
	core.WriteByte(o.BaseAddress+3, packed[3])
	if core.Version >= 4 {
		core.WriteByte(o.BaseAddress+4, packed[4])
		core.WriteByte(o.BaseAddress+5, packed[5])
	}
}

func (o *Object) SetParent(parent uint16, core *zcore.Core) {
	if core.Version >= 4 {
		core.WriteHalfWord(o.BaseAddress+6, parent)
	} else {
		core.WriteByte(o.BaseAddress+4, uint8(parent))
	}
	o.Parent = parent
}

func (o *Object) SetSibling(sibling uint16, core *zcore.Core) {
	if core.Version >= 4 {
		core.WriteHalfWord(o.BaseAddress+8, sibling)
	} else {
		core.WriteByte(o.BaseAddress+5, uint8(sibling))
	}
	o.Sibling = sibling
}

func (o *Object) SetChild(child uint16, core *zcore.Core) {
	if core.Version >= 4 {
		core.WriteHalfWord(o.BaseAddress+10, child)
	} else {
		core.WriteByte(o.BaseAddress+6, uint8(child))
	}
	o.Child = child
}

// Remove unlinks the object from its parent's child chain, then zeroes its
// parent and sibling fields. The chain walk is bounded so a corrupted
// sibling cycle fails instead of spinning.
func Remove(objId uint16, core *zcore.Core) {
	object := GetObject(objId, core)
	if object.Parent != 0 {
		oldParent := GetObject(object.Parent, core)

		if oldParent.Child == object.Id {
			oldParent.SetChild(object.Sibling, core)
		} else {
			currObjId := oldParent.Child
			steps := 0
			for {
				if currObjId == 0 {
					panic(fmt.Sprintf("object %d not found in parent %d's child chain", objId, object.Parent))
				}
				if steps++; steps > 0xffff {
					panic(fmt.Sprintf("corrupt sibling chain walking children of object %d", object.Parent))
				}

				currObj := GetObject(currObjId, core)
				if currObj.Sibling == object.Id {
					currObj.SetSibling(object.Sibling, core)
					break
				}
				currObjId = currObj.Sibling
			}
		}

		object.SetParent(0, core)
	}

	object.SetSibling(0, core)
}

// Insert unlinks the object from wherever it is, then makes it the first
// child of the destination.
func Insert(objId uint16, destId uint16, core *zcore.Core) {
	Remove(objId, core)

	object := GetObject(objId, core)
	destination := GetObject(destId, core)

	object.SetSibling(destination.Child, core)
	object.SetParent(destination.Id, core)
	destination.SetChild(object.Id, core)
}
