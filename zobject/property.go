package zobject

import (
	"fmt"

	"github.com/davetcode/zvm/zcore"
)

// Property is one entry of an object's property table. DataAddress points at
// the data bytes, after the one- or two-byte size header; a zero DataAddress
// marks a property the object does not carry (the Data then holds the
// defaults-table word).
type Property struct {
	Id                   uint8
	Length               uint8
	PropertyHeaderLength uint8
	Address              uint32
	DataAddress          uint32
	Data                 []uint8
}

// GetPropertyLength works back from a property-data address to the length
// encoded in the size byte(s) before it. @get_prop_len 0 must yield 0.
func GetPropertyLength(core *zcore.Core, dataAddress uint32) uint16 {
	if dataAddress == 0 {
		return 0
	}

	sizeByte := core.ReadByte(dataAddress - 1)
	if core.Version <= 3 {
		return uint16(sizeByte>>5) + 1
	}
	if sizeByte&0b1000_0000 != 0 {
		length := uint16(sizeByte & 0b11_1111)
		if length == 0 {
			return 64 // §12.4.2.1.1: length 0 in the second size byte means 64
		}
		return length
	}
	return uint16((sizeByte>>6)&1) + 1
}

func checkPropertyNumber(propertyId uint8, core *zcore.Core) {
	limit := uint8(32)
	if core.Version >= 4 {
		limit = 64
	}
	if propertyId == 0 || propertyId >= limit {
		panic(fmt.Sprintf("invalid property %d", propertyId))
	}
}

func (o *Object) firstPropertyAddress(core *zcore.Core) uint32 {
	nameLength := core.ReadByte(uint32(o.PropertyPointer))
	return uint32(o.PropertyPointer) + 1 + 2*uint32(nameLength)
}

func (o *Object) getPropertyByAddress(propertyAddr uint32, core *zcore.Core) Property {
	sizeByte := core.ReadByte(propertyAddr)
	length := (sizeByte >> 5) + 1
	id := sizeByte & 0b1_1111
	headerLength := uint8(1)

	if core.Version >= 4 {
		id = sizeByte & 0b11_1111
		if sizeByte>>7 == 1 {
			length = core.ReadByte(propertyAddr+1) & 0b11_1111
			if length == 0 {
				length = 64
			}
			headerLength = 2
		} else {
			length = ((sizeByte >> 6) & 1) + 1
		}
	}

	dataAddress := propertyAddr + uint32(headerLength)

	return Property{
		Id:                   id,
		Length:               length,
		PropertyHeaderLength: headerLength,
		Address:              propertyAddr,
		DataAddress:          dataAddress,
		Data:                 core.ReadSlice(dataAddress, dataAddress+uint32(length)),
	}
}

// GetProperty finds a property on the object; a property the object lacks
// comes back with DataAddress 0 and the defaults-table word as data.
func (o *Object) GetProperty(propertyId uint8, core *zcore.Core) Property {
	checkPropertyNumber(propertyId, core)

	currentPtr := o.firstPropertyAddress(core)
	for core.ReadByte(currentPtr) != 0 {
		property := o.getPropertyByAddress(currentPtr, core)

		if property.Id == propertyId {
			return property
		}

		currentPtr = property.DataAddress + uint32(property.Length)
	}

	defaultAddress := uint32(core.ObjectTableBase) + 2*uint32(propertyId-1)
	return Property{
		Id:   propertyId,
		Data: core.ReadSlice(defaultAddress, defaultAddress+2),
	}
}

// SetProperty overwrites a property value in place. The property must exist
// on the object. Lengths over 2 get a word store anyway; at least one
// released story (Photograph) relies on that misbehaviour, so the caller is
// expected to warn rather than fail.
func (o *Object) SetProperty(propertyId uint8, value uint16, core *zcore.Core) {
	checkPropertyNumber(propertyId, core)

	property := o.GetProperty(propertyId, core)
	if property.DataAddress == 0 {
		panic(fmt.Sprintf("invalid property (%d) set on object (%d)", propertyId, o.Id))
	}

	if property.Length == 1 {
		core.WriteByte(property.DataAddress, uint8(value))
	} else {
		core.WriteHalfWord(property.DataAddress, value)
	}
}

// GetNextProperty returns the number of the property after propertyId in
// table order, 0 at the end; propertyId 0 asks for the first.
func (o *Object) GetNextProperty(propertyId uint8, core *zcore.Core) uint8 {
	if propertyId == 0 {
		currentPtr := o.firstPropertyAddress(core)
		if core.ReadByte(currentPtr) == 0 {
			return 0
		}
		return o.getPropertyByAddress(currentPtr, core).Id
	}

	property := o.GetProperty(propertyId, core)
	if property.DataAddress == 0 {
		panic(fmt.Sprintf("get_next_prop on property %d missing from object %d", propertyId, o.Id))
	}

	nextPtr := property.DataAddress + uint32(property.Length)
	if core.ReadByte(nextPtr) == 0 {
		return 0
	}
	return o.getPropertyByAddress(nextPtr, core).Id
}
