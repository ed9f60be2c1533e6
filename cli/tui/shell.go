package tui

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/justapithecus/mk0link/command"
)

// Prompt is the default shell prompt.
const Prompt = "Mk0> "

// ResetPrompt asks for confirmation before a device reset.
const ResetPrompt = "Are you sure you want to reset the device? (y/n) "

// Device is the command surface the shell drives. *device.Client
// satisfies it.
type Device interface {
	ConfigureRecording(enable *bool) (*command.Pending, error)
	ConfigurePlayback(enable *bool, volume *float32) (*command.Pending, error)
	SetVolume(volume float32) (*command.Pending, error)
	Reset() (*command.Pending, error)
}

type outputKind int

const (
	outputPlain outputKind = iota
	outputHelp
	outputWarning
	outputError
)

// Output is one line the shell prints in response to a command.
type Output struct {
	Text string
	kind outputKind
}

// Result is what a single input line produced.
type Result struct {
	Output []Output
	Quit   bool
}

type shellCommand struct {
	help string
	run  func(s *Shell, arg string) Result
}

var commands map[string]shellCommand

func init() {
	commands = map[string]shellCommand{
		"enable_logs": {"Enable printing of logs from the device.", func(s *Shell, _ string) Result {
			if s.logs {
				return say("Logs are already enabled.")
			}
			s.logs = true
			return Result{}
		}},
		"disable_logs": {"Disable printing of logs from the device.", func(s *Shell, _ string) Result {
			if !s.logs {
				return say("Logs are already disabled.")
			}
			s.logs = false
			return Result{}
		}},
		"enable_recording": {"Enable recording of audio on the device.", func(s *Shell, _ string) Result {
			return s.send(s.dev.ConfigureRecording(command.Bool(true)))
		}},
		"disable_recording": {"Disable recording of audio on the device.", func(s *Shell, _ string) Result {
			return s.send(s.dev.ConfigureRecording(command.Bool(false)))
		}},
		"enable_playback": {"Enable audio playback on the device.", func(s *Shell, _ string) Result {
			return s.send(s.dev.ConfigurePlayback(command.Bool(true), nil))
		}},
		"disable_playback": {"Disable audio playback on the device.", func(s *Shell, _ string) Result {
			return s.send(s.dev.ConfigurePlayback(command.Bool(false), nil))
		}},
		"set_volume": {"Set the audio volume (0.0 to 1.0). Usage: set_volume 0.5", (*Shell).setVolume},
		"reset": {"Reset the device (performs a soft reset).", func(s *Shell, _ string) Result {
			s.confirming = true
			return Result{}
		}},
		"help": {"List available commands.", func(_ *Shell, _ string) Result {
			return help()
		}},
		"quit": {"Exit the shell.", func(_ *Shell, _ string) Result {
			return Result{Quit: true}
		}},
	}
}

// Shell interprets command lines. It is not safe for concurrent use; the
// Bubble Tea model owns it.
type Shell struct {
	dev        Device
	logs       bool
	confirming bool
}

// NewShell creates a shell with device logs enabled.
func NewShell(dev Device) *Shell {
	return &Shell{dev: dev, logs: true}
}

// LogsEnabled reports whether device logs should be displayed.
func (s *Shell) LogsEnabled() bool { return s.logs }

// Prompt returns the prompt for the next input line.
func (s *Shell) Prompt() string {
	if s.confirming {
		return ResetPrompt
	}
	return Prompt
}

// Exec runs one input line.
func (s *Shell) Exec(line string) Result {
	line = strings.TrimSpace(line)

	if s.confirming {
		s.confirming = false
		switch strings.ToLower(line) {
		case "y", "yes":
			return s.send(s.dev.Reset())
		default:
			return say("Reset cancelled.")
		}
	}

	if line == "" {
		return Result{}
	}
	name, arg, _ := strings.Cut(line, " ")
	if name == "exit" || name == "EOF" {
		name = "quit"
	}
	cmd, ok := commands[name]
	if !ok {
		return Result{Output: []Output{
			{Text: fmt.Sprintf("%s is not a recognized command. Type help for a list.", name), kind: outputError},
		}}
	}
	return cmd.run(s, strings.TrimSpace(arg))
}

func (s *Shell) setVolume(arg string) Result {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return Result{Output: []Output{{Text: "Error: Volume must be a number between 0.0 and 1.0", kind: outputError}}}
	}
	if math.IsNaN(v) {
		v = 0
	}
	v = math.Max(0, math.Min(1, v))
	if r := s.send(s.dev.SetVolume(float32(v))); len(r.Output) > 0 {
		return r
	}
	return say(fmt.Sprintf("Volume set to %d%%", int(v*100)))
}

// send reports a synchronous send failure. Device responses arrive later
// through the log.
func (s *Shell) send(_ *command.Pending, err error) Result {
	if err != nil {
		return Result{Output: []Output{{Text: "Error: " + err.Error(), kind: outputError}}}
	}
	return Result{}
}

func say(text string) Result {
	return Result{Output: []Output{{Text: text}}}
}

func help() Result {
	names := make([]string, 0, len(commands))
	width := 0
	for name := range commands {
		names = append(names, name)
		width = max(width, len(name))
	}
	sort.Strings(names)

	out := []Output{{Text: "Documented commands:", kind: outputHelp}}
	for _, name := range names {
		out = append(out, Output{
			Text: fmt.Sprintf("  %-*s  %s", width, name, commands[name].help),
			kind: outputHelp,
		})
	}
	return Result{Output: out}
}
