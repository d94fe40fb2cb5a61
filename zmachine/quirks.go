package zmachine

import "github.com/davetcode/zvm/zcore"

// storyQuirks are per-story workarounds for bugs in released games, keyed by
// story ID so they stay data rather than scattered branches.
type storyQuirks struct {
	// Sherlock clears attribute 48 in a v3 story (only 32 exist)
	sherlockAttr48 bool
	// Beyond Zork assumes IBM PC character graphics unless the pictures
	// bit tells it to use the picture font
	beyondZorkPictures bool
}

var quirkTable = map[string]storyQuirks{
	// Sherlock: The Riddle of the Crown Jewels
	"21-871214": {sherlockAttr48: true},
	"26-880127": {sherlockAttr48: true},

	// Beyond Zork
	"47-870915": {beyondZorkPictures: true},
	"49-870917": {beyondZorkPictures: true},
	"51-870923": {beyondZorkPictures: true},
	"57-871221": {beyondZorkPictures: true},
}

func lookupQuirks(storyID string) storyQuirks {
	return quirkTable[storyID]
}

// applyQuirks makes the load-time header adjustments a quirk asks for. Runs
// again after restart, which rewinds the header.
func (z *ZMachine) applyQuirks() {
	if z.quirks.beyondZorkPictures && z.options.IntNumber == 6 {
		z.Core.WriteHalfWord(0x10, z.Core.ReadHalfWord(0x10)|zcore.Flags2Pictures)
	}
}
