package zmachine

type opcodeHandler = func(*ZMachine, *Opcode)

// dispatchTable maps (operand count, opcode number) to a handler. It is
// filled once at load for the story's version; a nil entry is an illegal
// opcode for that version and fails in the instruction loop.
type dispatchTable struct {
	zeroOp [16]opcodeHandler
	oneOp  [16]opcodeHandler
	twoOp  [32]opcodeHandler
	varOp  [32]opcodeHandler
	ext    [256]opcodeHandler
}

func (t *dispatchTable) lookup(op *Opcode) opcodeHandler {
	switch op.operandCount {
	case OP0:
		return t.zeroOp[op.opcodeNumber&0xf]
	case OP1:
		return t.oneOp[op.opcodeNumber&0xf]
	case OP2:
		return t.twoOp[op.opcodeNumber&0x1f]
	case VAR:
		return t.varOp[op.opcodeNumber&0x1f]
	case EXT:
		return t.ext[op.opcodeNumber]
	}
	return nil
}

// setupOpcodes builds the dispatch table for one story version. Version
// differences resolve here, once, rather than per instruction.
func setupOpcodes(version uint8) *dispatchTable {
	t := &dispatchTable{}

	install := func(table []opcodeHandler, n uint8, minVersion uint8, maxVersion uint8, handler opcodeHandler) {
		if version >= minVersion && version <= maxVersion {
			table[n] = handler
		}
	}

	// 0OP
	install(t.zeroOp[:], 0, 1, 8, (*ZMachine).opRTrue)
	install(t.zeroOp[:], 1, 1, 8, (*ZMachine).opRFalse)
	install(t.zeroOp[:], 2, 1, 8, (*ZMachine).opPrint)
	install(t.zeroOp[:], 3, 1, 8, (*ZMachine).opPrintRet)
	install(t.zeroOp[:], 4, 1, 8, (*ZMachine).opNop)
	install(t.zeroOp[:], 5, 1, 4, (*ZMachine).opSave)
	install(t.zeroOp[:], 6, 1, 4, (*ZMachine).opRestore)
	install(t.zeroOp[:], 7, 1, 8, (*ZMachine).opRestart)
	install(t.zeroOp[:], 8, 1, 8, (*ZMachine).opRetPopped)
	install(t.zeroOp[:], 9, 1, 4, (*ZMachine).opPop)
	install(t.zeroOp[:], 9, 5, 8, (*ZMachine).opCatch)
	install(t.zeroOp[:], 10, 1, 8, (*ZMachine).opQuit)
	install(t.zeroOp[:], 11, 1, 8, (*ZMachine).opNewLine)
	install(t.zeroOp[:], 12, 3, 3, (*ZMachine).opShowStatus)
	install(t.zeroOp[:], 13, 3, 8, (*ZMachine).opVerify)
	install(t.zeroOp[:], 15, 5, 8, (*ZMachine).opPiracy)

	// 1OP
	install(t.oneOp[:], 0, 1, 8, (*ZMachine).opJz)
	install(t.oneOp[:], 1, 1, 8, (*ZMachine).opGetSibling)
	install(t.oneOp[:], 2, 1, 8, (*ZMachine).opGetChild)
	install(t.oneOp[:], 3, 1, 8, (*ZMachine).opGetParent)
	install(t.oneOp[:], 4, 1, 8, (*ZMachine).opGetPropLen)
	install(t.oneOp[:], 5, 1, 8, (*ZMachine).opInc)
	install(t.oneOp[:], 6, 1, 8, (*ZMachine).opDec)
	install(t.oneOp[:], 7, 1, 8, (*ZMachine).opPrintAddr)
	install(t.oneOp[:], 8, 4, 8, (*ZMachine).opCall1S)
	install(t.oneOp[:], 9, 1, 8, (*ZMachine).opRemoveObj)
	install(t.oneOp[:], 10, 1, 8, (*ZMachine).opPrintObj)
	install(t.oneOp[:], 11, 1, 8, (*ZMachine).opRet)
	install(t.oneOp[:], 12, 1, 8, (*ZMachine).opJump)
	install(t.oneOp[:], 13, 1, 8, (*ZMachine).opPrintPAddr)
	install(t.oneOp[:], 14, 1, 8, (*ZMachine).opLoad)
	install(t.oneOp[:], 15, 1, 4, (*ZMachine).opNot)
	install(t.oneOp[:], 15, 5, 8, (*ZMachine).opCall1N)

	// 2OP
	install(t.twoOp[:], 1, 1, 8, (*ZMachine).opJe)
	install(t.twoOp[:], 2, 1, 8, (*ZMachine).opJl)
	install(t.twoOp[:], 3, 1, 8, (*ZMachine).opJg)
	install(t.twoOp[:], 4, 1, 8, (*ZMachine).opDecChk)
	install(t.twoOp[:], 5, 1, 8, (*ZMachine).opIncChk)
	install(t.twoOp[:], 6, 1, 8, (*ZMachine).opJin)
	install(t.twoOp[:], 7, 1, 8, (*ZMachine).opTest)
	install(t.twoOp[:], 8, 1, 8, (*ZMachine).opOr)
	install(t.twoOp[:], 9, 1, 8, (*ZMachine).opAnd)
	install(t.twoOp[:], 10, 1, 8, (*ZMachine).opTestAttr)
	install(t.twoOp[:], 11, 1, 8, (*ZMachine).opSetAttr)
	install(t.twoOp[:], 12, 1, 8, (*ZMachine).opClearAttr)
	install(t.twoOp[:], 13, 1, 8, (*ZMachine).opStore)
	install(t.twoOp[:], 14, 1, 8, (*ZMachine).opInsertObj)
	install(t.twoOp[:], 15, 1, 8, (*ZMachine).opLoadW)
	install(t.twoOp[:], 16, 1, 8, (*ZMachine).opLoadB)
	install(t.twoOp[:], 17, 1, 8, (*ZMachine).opGetProp)
	install(t.twoOp[:], 18, 1, 8, (*ZMachine).opGetPropAddr)
	install(t.twoOp[:], 19, 1, 8, (*ZMachine).opGetNextProp)
	install(t.twoOp[:], 20, 1, 8, (*ZMachine).opAdd)
	install(t.twoOp[:], 21, 1, 8, (*ZMachine).opSub)
	install(t.twoOp[:], 22, 1, 8, (*ZMachine).opMul)
	install(t.twoOp[:], 23, 1, 8, (*ZMachine).opDiv)
	install(t.twoOp[:], 24, 1, 8, (*ZMachine).opMod)
	install(t.twoOp[:], 25, 4, 8, (*ZMachine).opCall2S)
	install(t.twoOp[:], 26, 5, 8, (*ZMachine).opCall2N)
	install(t.twoOp[:], 27, 5, 8, (*ZMachine).opSetColour)
	install(t.twoOp[:], 28, 5, 8, (*ZMachine).opThrow)

	// VAR
	install(t.varOp[:], 0, 1, 8, (*ZMachine).opCallVS)
	install(t.varOp[:], 1, 1, 8, (*ZMachine).opStoreW)
	install(t.varOp[:], 2, 1, 8, (*ZMachine).opStoreB)
	install(t.varOp[:], 3, 1, 8, (*ZMachine).opPutProp)
	install(t.varOp[:], 4, 1, 8, (*ZMachine).opRead)
	install(t.varOp[:], 5, 1, 8, (*ZMachine).opPrintChar)
	install(t.varOp[:], 6, 1, 8, (*ZMachine).opPrintNum)
	install(t.varOp[:], 7, 1, 8, (*ZMachine).opRandom)
	install(t.varOp[:], 8, 1, 8, (*ZMachine).opPush)
	install(t.varOp[:], 9, 1, 8, (*ZMachine).opPull)
	install(t.varOp[:], 10, 3, 8, (*ZMachine).opSplitWindow)
	install(t.varOp[:], 11, 3, 8, (*ZMachine).opSetWindow)
	install(t.varOp[:], 12, 4, 8, (*ZMachine).opCallVS2)
	install(t.varOp[:], 13, 4, 8, (*ZMachine).opEraseWindow)
	install(t.varOp[:], 14, 4, 8, (*ZMachine).opEraseLine)
	install(t.varOp[:], 15, 4, 8, (*ZMachine).opSetCursor)
	install(t.varOp[:], 16, 4, 8, (*ZMachine).opGetCursor)
	install(t.varOp[:], 17, 4, 8, (*ZMachine).opSetTextStyle)
	install(t.varOp[:], 18, 4, 8, (*ZMachine).opBufferMode)
	install(t.varOp[:], 19, 3, 8, (*ZMachine).opOutputStream)
	install(t.varOp[:], 20, 3, 8, (*ZMachine).opInputStream)
	install(t.varOp[:], 21, 3, 8, (*ZMachine).opSoundEffect)
	install(t.varOp[:], 22, 4, 8, (*ZMachine).opReadChar)
	install(t.varOp[:], 23, 4, 8, (*ZMachine).opScanTable)
	install(t.varOp[:], 24, 5, 8, (*ZMachine).opNot)
	install(t.varOp[:], 25, 5, 8, (*ZMachine).opCallVN)
	install(t.varOp[:], 26, 5, 8, (*ZMachine).opCallVN2)
	install(t.varOp[:], 27, 5, 8, (*ZMachine).opTokenise)
	install(t.varOp[:], 28, 5, 8, (*ZMachine).opEncodeText)
	install(t.varOp[:], 29, 5, 8, (*ZMachine).opCopyTable)
	install(t.varOp[:], 30, 5, 8, (*ZMachine).opPrintTable)
	install(t.varOp[:], 31, 5, 8, (*ZMachine).opCheckArgCount)

	// EXT
	install(t.ext[:], 0, 5, 8, (*ZMachine).opSave)
	install(t.ext[:], 1, 5, 8, (*ZMachine).opRestore)
	install(t.ext[:], 2, 5, 8, (*ZMachine).opLogShift)
	install(t.ext[:], 3, 5, 8, (*ZMachine).opArtShift)
	install(t.ext[:], 4, 5, 8, (*ZMachine).opSetFont)
	install(t.ext[:], 5, 6, 6, (*ZMachine).opStubNoOp)       // draw_picture
	install(t.ext[:], 6, 6, 6, (*ZMachine).opStubBranch)     // picture_data
	install(t.ext[:], 7, 6, 6, (*ZMachine).opStubNoOp)       // erase_picture
	install(t.ext[:], 8, 6, 6, (*ZMachine).opStubNoOp)       // set_margins
	install(t.ext[:], 9, 5, 8, (*ZMachine).opSaveUndo)
	install(t.ext[:], 10, 5, 8, (*ZMachine).opRestoreUndo)
	install(t.ext[:], 11, 5, 8, (*ZMachine).opPrintUnicode)
	install(t.ext[:], 12, 5, 8, (*ZMachine).opCheckUnicode)
	install(t.ext[:], 13, 5, 8, (*ZMachine).opSetTrueColour)
	install(t.ext[:], 16, 6, 6, (*ZMachine).opStubNoOp)      // move_window
	install(t.ext[:], 17, 6, 6, (*ZMachine).opStubNoOp)      // window_size
	install(t.ext[:], 18, 6, 6, (*ZMachine).opStubNoOp)      // window_style
	install(t.ext[:], 19, 6, 6, (*ZMachine).opStubStoreZero) // get_wind_prop
	install(t.ext[:], 20, 6, 6, (*ZMachine).opStubNoOp)      // scroll_window
	install(t.ext[:], 21, 6, 6, (*ZMachine).opPopStack)
	install(t.ext[:], 22, 6, 6, (*ZMachine).opStubNoOp) // read_mouse
	install(t.ext[:], 23, 6, 6, (*ZMachine).opStubNoOp) // mouse_window
	install(t.ext[:], 24, 6, 6, (*ZMachine).opPushStack)
	install(t.ext[:], 25, 6, 6, (*ZMachine).opStubNoOp)   // put_wind_prop
	install(t.ext[:], 26, 6, 6, (*ZMachine).opStubNoOp)   // print_form
	install(t.ext[:], 27, 6, 6, (*ZMachine).opStubBranch) // make_menu
	install(t.ext[:], 28, 6, 6, (*ZMachine).opStubNoOp)   // picture_table

	return t
}
