package zcore

// Options are consumed once at startup. Most of them end up as header bits
// rewritten during load; the rest bound the stacks and the undo ring.
type Options struct {
	EvalStackSize           int
	CallStackSize           int
	MaxSaves                int
	DisableUndoCompression  bool
	IntNumber               uint8 // 1-11, see standard §11.1.3
	IntVersion              uint8
	RandomSeed              int64 // -1 means seed from the clock
	DisableColor            bool
	DisableTimed            bool
	DisableFixed            bool
	DisableGraphicsFont     bool
	EnableCensorship        bool
	TranscriptName          string
	ScriptName              string
	ReplayName              string
	TranscriptOn            bool
	ScriptOn                bool
	ReplayOn                bool
}

const (
	DefaultStackSize = 1024
	DefaultCallDepth = 256
	DefaultMaxSaves  = 10
)

func DefaultOptions() Options {
	return Options{
		EvalStackSize: DefaultStackSize,
		CallStackSize: DefaultCallDepth,
		MaxSaves:      DefaultMaxSaves,
		IntNumber:     1, // DEC
		IntVersion:    'C',
		RandomSeed:    -1,
	}
}
