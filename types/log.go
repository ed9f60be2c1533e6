// Package types defines the device link data model shared by the codec,
// the log decoder and the command channel.
//
//nolint:revive // types is a common Go package naming convention
package types

import (
	"fmt"
	"strconv"
)

// LogLevel is the severity a device attaches to a log record.
type LogLevel int32

// Log levels as numbered on the wire.
const (
	LogLevelTrace   LogLevel = 0
	LogLevelDebug   LogLevel = 1
	LogLevelInfo    LogLevel = 2
	LogLevelWarning LogLevel = 3
	LogLevelError   LogLevel = 4
)

// String returns the upper-case level name, or LEVEL(n) for values this
// build does not know.
func (l LogLevel) String() string {
	switch l {
	case LogLevelTrace:
		return "TRACE"
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarning:
		return "WARNING"
	case LogLevelError:
		return "ERROR"
	default:
		return "LEVEL(" + strconv.Itoa(int(l)) + ")"
	}
}

// ArgKind discriminates LogArg.
type ArgKind uint8

const (
	// ArgUnset marks an argument slot the device sent without a value.
	ArgUnset ArgKind = iota
	// ArgU32 carries an unsigned 32-bit value.
	ArgU32
	// ArgF32 carries a float32 value.
	ArgF32
	// ArgI32 carries a signed 32-bit value.
	ArgI32
)

func (k ArgKind) String() string {
	switch k {
	case ArgUnset:
		return "unset"
	case ArgU32:
		return "u32"
	case ArgF32:
		return "f32"
	case ArgI32:
		return "i32"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// LogArg is one typed log argument. Only the field selected by Kind is
// meaningful.
type LogArg struct {
	Kind ArgKind
	U32  uint32
	F32  float32
	I32  int32
}

// U32Arg returns an unsigned argument.
func U32Arg(v uint32) LogArg { return LogArg{Kind: ArgU32, U32: v} }

// F32Arg returns a float argument.
func F32Arg(v float32) LogArg { return LogArg{Kind: ArgF32, F32: v} }

// I32Arg returns a signed argument.
func I32Arg(v int32) LogArg { return LogArg{Kind: ArgI32, I32: v} }

// UnsetArg returns an argument slot with no value.
func UnsetArg() LogArg { return LogArg{Kind: ArgUnset} }

// Value returns the argument as its native Go type and false for ArgUnset.
// Kinds are never converted into one another.
func (a LogArg) Value() (any, bool) {
	switch a.Kind {
	case ArgU32:
		return a.U32, true
	case ArgF32:
		return a.F32, true
	case ArgI32:
		return a.I32, true
	default:
		return nil, false
	}
}

// LogRecord is a hashed log statement emitted by the device.
type LogRecord struct {
	Level LogLevel
	Hash  uint64
	Args  []LogArg
}

func (*LogRecord) isMessage() {}

// Values returns the argument values in order, skipping unset slots.
func (r *LogRecord) Values() []any {
	values := make([]any, 0, len(r.Args))
	for _, arg := range r.Args {
		if v, ok := arg.Value(); ok {
			values = append(values, v)
		}
	}
	return values
}
