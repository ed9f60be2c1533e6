package wire

import (
	"errors"
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/justapithecus/mk0link/types"
)

// Field numbers of the device schema.
const (
	// StreamPacket
	fieldPacketLog         protowire.Number = 1
	fieldPacketCmdResponse protowire.Number = 2

	// LogRecord
	fieldLogLevel protowire.Number = 1
	fieldLogHash  protowire.Number = 2
	fieldLogArgs  protowire.Number = 3

	// LogRecord.Arg
	fieldArgU32 protowire.Number = 1
	fieldArgF32 protowire.Number = 2
	fieldArgI32 protowire.Number = 3

	// CommandResponse
	fieldResponseID     protowire.Number = 1
	fieldResponseStatus protowire.Number = 2

	// Command
	fieldCommandID        protowire.Number = 1
	fieldCommandReset     protowire.Number = 2
	fieldCommandRecording protowire.Number = 3
	fieldCommandPlayback  protowire.Number = 4

	// ConfigureRecordingCommand / ConfigurePlaybackCommand
	fieldConfigEnable protowire.Number = 1
	fieldConfigVolume protowire.Number = 2
)

// ErrNoRequest is returned when encoding a Command without a request.
var ErrNoRequest = errors.New("wire: command has no request")

// DecodePacket decodes a frame payload into a device message.
// Returns (nil, nil) for a packet with no message set; callers treat that
// as a no-op. Malformed payloads return a *FrameError with Kind=FrameErrorDecode.
func DecodePacket(payload []byte) (types.Message, error) {
	var msg types.Message
	err := consumeFields(payload, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ != protowire.BytesType || (num != fieldPacketLog && num != fieldPacketCmdResponse) {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return n, nil
		}
		var err error
		if num == fieldPacketLog {
			msg, err = decodeLogRecord(v)
		} else {
			msg, err = decodeCommandResponse(v)
		}
		return n, err
	})
	if err != nil {
		return nil, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode stream packet",
			Err:  err,
		}
	}
	return msg, nil
}

func decodeLogRecord(b []byte) (*types.LogRecord, error) {
	rec := &types.LogRecord{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldLogLevel && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			rec.Level = types.LogLevel(int32(v))
			return n, nil
		case num == fieldLogHash && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			rec.Hash = v
			return n, nil
		case num == fieldLogArgs && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			arg, err := decodeLogArg(v)
			if err != nil {
				return n, fmt.Errorf("log arg %d: %w", len(rec.Args), err)
			}
			rec.Args = append(rec.Args, arg)
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("log record: %w", err)
	}
	return rec, nil
}

// decodeLogArg decodes the Arg oneof. The last value field present wins; an
// Arg without any value decodes to types.ArgUnset.
func decodeLogArg(b []byte) (types.LogArg, error) {
	arg := types.UnsetArg()
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldArgU32 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			arg = types.U32Arg(uint32(v))
			return n, nil
		case num == fieldArgF32 && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			arg = types.F32Arg(math.Float32frombits(v))
			return n, nil
		case num == fieldArgI32 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			arg = types.I32Arg(int32(v))
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	return arg, err
}

func decodeCommandResponse(b []byte) (*types.CommandResponse, error) {
	resp := &types.CommandResponse{}
	err := consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldResponseID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			resp.ID = uint32(v)
			return n, nil
		case num == fieldResponseStatus && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			resp.Status = types.CommandStatus(int32(v))
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return nil, fmt.Errorf("command response: %w", err)
	}
	return resp, nil
}

// EncodeCommand serializes an outbound command payload (without framing).
func EncodeCommand(cmd types.Command) ([]byte, error) {
	b := protowire.AppendTag(nil, fieldCommandID, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(cmd.ID))

	switch req := cmd.Request.(type) {
	case nil:
		return nil, ErrNoRequest
	case types.Reset:
		b = appendMessage(b, fieldCommandReset, nil)
	case types.ConfigureRecording:
		var inner []byte
		inner = appendOptionalBool(inner, fieldConfigEnable, req.Enable)
		b = appendMessage(b, fieldCommandRecording, inner)
	case types.ConfigurePlayback:
		var inner []byte
		inner = appendOptionalBool(inner, fieldConfigEnable, req.Enable)
		if req.Volume != nil {
			inner = protowire.AppendTag(inner, fieldConfigVolume, protowire.Fixed32Type)
			inner = protowire.AppendFixed32(inner, math.Float32bits(*req.Volume))
		}
		b = appendMessage(b, fieldCommandPlayback, inner)
	default:
		return nil, fmt.Errorf("wire: unsupported request type %T", cmd.Request)
	}
	return b, nil
}

// DecodeCommand parses a command payload. It is the device-side inverse of
// EncodeCommand and is used by simulators and tests.
func DecodeCommand(payload []byte) (types.Command, error) {
	var cmd types.Command
	err := consumeFields(payload, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == fieldCommandID && typ == protowire.VarintType {
			v, n := protowire.ConsumeVarint(b)
			cmd.ID = uint32(v)
			return n, nil
		}
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
		switch num {
		case fieldCommandReset:
			_, n := protowire.ConsumeBytes(b)
			cmd.Request = types.Reset{}
			return n, nil
		case fieldCommandRecording, fieldCommandPlayback:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			enable, volume, err := decodeConfig(v)
			if num == fieldCommandRecording {
				cmd.Request = types.ConfigureRecording{Enable: enable}
			} else {
				cmd.Request = types.ConfigurePlayback{Enable: enable, Volume: volume}
			}
			return n, err
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	if err != nil {
		return types.Command{}, &FrameError{
			Kind: FrameErrorDecode,
			Msg:  "failed to decode command",
			Err:  err,
		}
	}
	return cmd, nil
}

func decodeConfig(b []byte) (enable *bool, volume *float32, err error) {
	err = consumeFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == fieldConfigEnable && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			e := protowire.DecodeBool(v)
			enable = &e
			return n, nil
		case num == fieldConfigVolume && typ == protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(b)
			f := math.Float32frombits(v)
			volume = &f
			return n, nil
		default:
			return protowire.ConsumeFieldValue(num, typ, b), nil
		}
	})
	return enable, volume, err
}

// EncodeLogRecord serializes a StreamPacket carrying rec. Device side.
func EncodeLogRecord(rec *types.LogRecord) []byte {
	var inner []byte
	if rec.Level != 0 {
		inner = protowire.AppendTag(inner, fieldLogLevel, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(int64(rec.Level)))
	}
	if rec.Hash != 0 {
		inner = protowire.AppendTag(inner, fieldLogHash, protowire.VarintType)
		inner = protowire.AppendVarint(inner, rec.Hash)
	}
	for _, arg := range rec.Args {
		var a []byte
		switch arg.Kind {
		case types.ArgU32:
			a = protowire.AppendTag(a, fieldArgU32, protowire.VarintType)
			a = protowire.AppendVarint(a, uint64(arg.U32))
		case types.ArgF32:
			a = protowire.AppendTag(a, fieldArgF32, protowire.Fixed32Type)
			a = protowire.AppendFixed32(a, math.Float32bits(arg.F32))
		case types.ArgI32:
			a = protowire.AppendTag(a, fieldArgI32, protowire.VarintType)
			a = protowire.AppendVarint(a, uint64(int64(arg.I32)))
		}
		inner = appendMessage(inner, fieldLogArgs, a)
	}
	return appendMessage(nil, fieldPacketLog, inner)
}

// EncodeCommandResponse serializes a StreamPacket carrying resp. Device side.
func EncodeCommandResponse(resp *types.CommandResponse) []byte {
	var inner []byte
	if resp.ID != 0 {
		inner = protowire.AppendTag(inner, fieldResponseID, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(resp.ID))
	}
	if resp.Status != 0 {
		inner = protowire.AppendTag(inner, fieldResponseStatus, protowire.VarintType)
		inner = protowire.AppendVarint(inner, uint64(int64(resp.Status)))
	}
	return appendMessage(nil, fieldPacketCmdResponse, inner)
}

func appendMessage(b []byte, num protowire.Number, msg []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, msg)
}

func appendOptionalBool(b []byte, num protowire.Number, v *bool) []byte {
	if v == nil {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(*v))
}

// consumeFields walks the fields of one message. fn receives the bytes after
// the tag and returns how many it consumed, or a negative protowire code.
func consumeFields(b []byte, fn func(num protowire.Number, typ protowire.Type, b []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return protowire.ParseError(m)
		}
		b = b[m:]
	}
	return nil
}
