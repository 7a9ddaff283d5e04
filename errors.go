package midisampler

// Version is the library version string.
const Version = "1.0.0-rt"

// Code is a sampler result code. Every non-zero Code is also an error, so
// callers can match wrapped failures with errors.Is.
type Code int

// Result codes
const (
	Success           Code = 0
	ErrInvalidParam   Code = -1
	ErrOutOfMemory    Code = -2
	ErrFileNotFound   Code = -3
	ErrInvalidFormat  Code = -4
	ErrBufferOverflow Code = -5
	ErrNotInitialized Code = -6
	ErrVoiceLimit     Code = -7
	ErrUnknown        Code = -99
)

var codeStrings = map[Code]string{
	Success:           "Success",
	ErrInvalidParam:   "Invalid parameter",
	ErrOutOfMemory:    "Out of memory",
	ErrFileNotFound:   "File not found",
	ErrInvalidFormat:  "Invalid format",
	ErrBufferOverflow: "Buffer overflow",
	ErrNotInitialized: "Not initialized",
	ErrVoiceLimit:     "Voice limit reached",
}

// ErrorString returns the human readable message for a result code.
func ErrorString(c Code) string {
	if s, ok := codeStrings[c]; ok {
		return s
	}
	return "Unknown error"
}

func (c Code) Error() string {
	return ErrorString(c)
}

// String implements fmt.Stringer
func (c Code) String() string {
	return ErrorString(c)
}
