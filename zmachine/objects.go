package zmachine

import (
	"encoding/binary"

	"github.com/davetcode/zvm/zobject"
)

// Object 0 is "no object": reads of its fields yield 0, conditional
// branches fail, tree surgery and printing do nothing. Each handler deals
// with it up front so the database layer can treat 0 as corruption.

func (z *ZMachine) opTestAttr(opcode *Opcode) {
	objId := opcode.operands[0].Value(z)
	attribute := opcode.operands[1].Value(z)
	frame := z.callStack.peek()

	if objId == 0 {
		z.handleBranch(frame, false)
		return
	}

	obj := zobject.GetObject(objId, &z.Core)
	z.handleBranch(frame, obj.TestAttribute(attribute, &z.Core))
}

func (z *ZMachine) opSetAttr(opcode *Opcode) {
	objId := opcode.operands[0].Value(z)
	attribute := opcode.operands[1].Value(z)
	if objId == 0 || z.sherlockAttribute(attribute) {
		return
	}

	obj := zobject.GetObject(objId, &z.Core)
	obj.SetAttribute(attribute, &z.Core)
}

func (z *ZMachine) opClearAttr(opcode *Opcode) {
	objId := opcode.operands[0].Value(z)
	attribute := opcode.operands[1].Value(z)
	if objId == 0 || z.sherlockAttribute(attribute) {
		return
	}

	obj := zobject.GetObject(objId, &z.Core)
	obj.ClearAttribute(attribute, &z.Core)
}

// Sherlock clears (and sometimes sets) attribute 48 in a version-3 story
// that only has 32 attributes; see the remarks in §12 of the standard. The
// quirk table keys this on the story ID rather than hardcoding a branch.
func (z *ZMachine) sherlockAttribute(attribute uint16) bool {
	if attribute == 48 && z.quirks.sherlockAttr48 {
		z.warnOnce("sherlock_attr48", "Warning: ignoring buggy reference to attribute 48")
		return true
	}
	return false
}

func (z *ZMachine) opGetParent(opcode *Opcode) {
	objId := opcode.operands[0].Value(z)

	parent := uint16(0)
	if objId != 0 {
		parent = zobject.GetObject(objId, &z.Core).Parent
	}
	z.writeVariable(z.readIncPC(z.callStack.peek()), parent, false)
}

func (z *ZMachine) opGetSibling(opcode *Opcode) {
	objId := opcode.operands[0].Value(z)
	frame := z.callStack.peek()

	sibling := uint16(0)
	if objId != 0 {
		sibling = zobject.GetObject(objId, &z.Core).Sibling
	}
	z.writeVariable(z.readIncPC(frame), sibling, false)
	z.handleBranch(frame, sibling != 0)
}

func (z *ZMachine) opGetChild(opcode *Opcode) {
	objId := opcode.operands[0].Value(z)
	frame := z.callStack.peek()

	child := uint16(0)
	if objId != 0 {
		child = zobject.GetObject(objId, &z.Core).Child
	}
	z.writeVariable(z.readIncPC(frame), child, false)
	z.handleBranch(frame, child != 0)
}

func (z *ZMachine) opJin(opcode *Opcode) {
	objId := opcode.operands[0].Value(z)
	destId := opcode.operands[1].Value(z)
	frame := z.callStack.peek()

	parent := uint16(0)
	if objId != 0 {
		parent = zobject.GetObject(objId, &z.Core).Parent
	}
	z.handleBranch(frame, parent == destId)
}

func (z *ZMachine) opInsertObj(opcode *Opcode) {
	objId := opcode.operands[0].Value(z)
	destId := opcode.operands[1].Value(z)
	if objId == 0 {
		return
	}

	if destId == 0 {
		// Moving into "no object" is a plain removal; some broken stories do it
		z.warnOnce("insert_into_zero", "Warning: @insert_obj into object 0 treated as @remove_obj")
		zobject.Remove(objId, &z.Core)
		return
	}

	zobject.Insert(objId, destId, &z.Core)
}

func (z *ZMachine) opRemoveObj(opcode *Opcode) {
	objId := opcode.operands[0].Value(z)
	if objId == 0 {
		return
	}

	zobject.Remove(objId, &z.Core)
}

func (z *ZMachine) opPrintObj(opcode *Opcode) {
	objId := opcode.operands[0].Value(z)
	if objId == 0 {
		return
	}

	obj := zobject.GetObject(objId, &z.Core)
	z.appendText(obj.Name(&z.Core, z.Alphabets))
}

func (z *ZMachine) opGetProp(opcode *Opcode) {
	objId := opcode.operands[0].Value(z)
	propertyId := uint8(opcode.operands[1].Value(z))

	if objId == 0 {
		z.writeVariable(z.readIncPC(z.callStack.peek()), 0, false)
		return
	}

	obj := zobject.GetObject(objId, &z.Core)
	prop := obj.GetProperty(propertyId, &z.Core)

	value := uint16(prop.Data[0])
	if len(prop.Data) >= 2 {
		// Properties longer than 2 bytes are misbehaviour, but historical
		// interpreters read the first word and stories depend on it
		value = binary.BigEndian.Uint16(prop.Data)
	}

	z.writeVariable(z.readIncPC(z.callStack.peek()), value, false)
}

func (z *ZMachine) opGetPropAddr(opcode *Opcode) {
	objId := opcode.operands[0].Value(z)
	propertyId := uint8(opcode.operands[1].Value(z))

	address := uint16(0)
	if objId != 0 {
		obj := zobject.GetObject(objId, &z.Core)
		address = uint16(obj.GetProperty(propertyId, &z.Core).DataAddress)
	}
	z.writeVariable(z.readIncPC(z.callStack.peek()), address, false)
}

func (z *ZMachine) opGetPropLen(opcode *Opcode) {
	address := opcode.operands[0].Value(z)
	z.writeVariable(z.readIncPC(z.callStack.peek()), zobject.GetPropertyLength(&z.Core, uint32(address)), false)
}

func (z *ZMachine) opGetNextProp(opcode *Opcode) {
	objId := opcode.operands[0].Value(z)
	propertyId := uint8(opcode.operands[1].Value(z))

	next := uint8(0)
	if objId != 0 {
		obj := zobject.GetObject(objId, &z.Core)
		next = obj.GetNextProperty(propertyId, &z.Core)
	}
	z.writeVariable(z.readIncPC(z.callStack.peek()), uint16(next), false)
}

func (z *ZMachine) opPutProp(opcode *Opcode) {
	objId := opcode.operands[0].Value(z)
	propertyId := uint8(opcode.operands[1].Value(z))
	value := opcode.operands[2].Value(z)
	if objId == 0 {
		return
	}

	obj := zobject.GetObject(objId, &z.Core)
	if prop := obj.GetProperty(propertyId, &z.Core); prop.DataAddress != 0 && prop.Length > 2 {
		// Photograph writes a word into a longer property; tolerate it
		z.warnOnce("put_prop_long", "Warning: @put_prop on property %d with length %d", propertyId, prop.Length)
	}
	obj.SetProperty(propertyId, value, &z.Core)
}
