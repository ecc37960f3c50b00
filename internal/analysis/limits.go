package analysis

// Limits for analysis work
const (
	// MaxStringLength bounds the bytes read for one string annotation.
	MaxStringLength = 256

	// MinStringLength is the shortest run of printable bytes annotated as a
	// string.
	MinStringLength = 4

	// DefaultMaxFrames bounds both Drain and the branch-target rebuilds of
	// one function definition.
	DefaultMaxFrames = 64

	// DefaultMaxDecodeInstructions bounds one MarkInstruction.
	DefaultMaxDecodeInstructions = 100000
)

// DefaultParamRegisters are the registers scanned for pointer constants.
var DefaultParamRegisters = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
