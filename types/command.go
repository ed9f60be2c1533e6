package types

import "strconv"

// CommandStatus is the device's verdict on a command.
type CommandStatus int32

// Command statuses as numbered on the wire.
const (
	CommandStatusSuccess            CommandStatus = 0
	CommandStatusErrInternal        CommandStatus = 1
	CommandStatusErrInvalidArgument CommandStatus = 2
	CommandStatusErrUnsupported     CommandStatus = 3
)

func (s CommandStatus) String() string {
	switch s {
	case CommandStatusSuccess:
		return "SUCCESS"
	case CommandStatusErrInternal:
		return "ERR_INTERNAL"
	case CommandStatusErrInvalidArgument:
		return "ERR_INVALID_ARGUMENT"
	case CommandStatusErrUnsupported:
		return "ERR_UNSUPPORTED"
	default:
		return "STATUS(" + strconv.Itoa(int(s)) + ")"
	}
}

// OK reports whether the status is SUCCESS.
func (s CommandStatus) OK() bool {
	return s == CommandStatusSuccess
}

// CommandResponse is the device's reply to a Command, correlated by ID.
type CommandResponse struct {
	ID     uint32
	Status CommandStatus
}

func (*CommandResponse) isMessage() {}

// Request is the payload of a Command. Exactly one of the concrete request
// types below implements it.
type Request interface {
	// Name is a short label used in logs ("configure_recording", ...).
	Name() string
	isRequest()
}

// ConfigureRecording turns audio recording on or off. A nil Enable leaves
// the device setting untouched.
type ConfigureRecording struct {
	Enable *bool
}

// ConfigurePlayback changes playback state and volume. Nil fields are not
// sent. Volume is in [0.0, 1.0].
type ConfigurePlayback struct {
	Enable *bool
	Volume *float32
}

// Reset asks the device to perform a soft reset.
type Reset struct{}

func (ConfigureRecording) Name() string { return "configure_recording" }
func (ConfigurePlayback) Name() string  { return "configure_playback" }
func (Reset) Name() string              { return "reset" }

func (ConfigureRecording) isRequest() {}
func (ConfigurePlayback) isRequest()  {}
func (Reset) isRequest()              {}

// Command is an outbound request tagged with its correlation ID.
type Command struct {
	ID      uint32
	Request Request
}
