package types

// Message is an inbound device message decoded from one frame.
// The concrete type is either *LogRecord or *CommandResponse.
type Message interface {
	isMessage()
}

var (
	_ Message = (*LogRecord)(nil)
	_ Message = (*CommandResponse)(nil)
)
