package tui

import (
	"bytes"
	"context"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Sender delivers messages to a running program. *tea.Program satisfies it.
type Sender interface {
	Send(msg tea.Msg)
}

// LogWriter turns logger output into LogMsg lines for the shell.
// Partial lines are held until their newline arrives.
//
// Lines are delivered from a separate goroutine: a Program's Send blocks
// until its event loop receives, and the event loop itself logs while
// executing shell commands.
type LogWriter struct {
	mu      sync.Mutex
	partial []byte
	queue   []string

	wake chan struct{}
	done chan struct{}
	once sync.Once
}

// NewLogWriter creates a writer sending to s. Close stops delivery.
func NewLogWriter(s Sender) *LogWriter {
	w := &LogWriter{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go w.pump(s)
	return w
}

// Write implements io.Writer.
func (w *LogWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	data := append(w.partial, p...)
	queued := false
	for {
		i := bytes.IndexByte(data, '\n')
		if i < 0 {
			break
		}
		w.queue = appendBounded(w.queue, string(bytes.TrimRight(data[:i], "\r")))
		data = data[i+1:]
		queued = true
	}
	w.partial = append(w.partial[:0:0], data...)
	w.mu.Unlock()

	if queued {
		select {
		case w.wake <- struct{}{}:
		default:
		}
	}
	return len(p), nil
}

func (w *LogWriter) pump(s Sender) {
	for {
		select {
		case <-w.done:
			return
		case <-w.wake:
		}
		w.mu.Lock()
		lines := w.queue
		w.queue = nil
		w.mu.Unlock()

		for _, l := range lines {
			s.Send(LogMsg(l))
		}
	}
}

// Sync implements zapcore.WriteSyncer.
func (w *LogWriter) Sync() error { return nil }

// Close stops delivery. Queued lines not yet sent are dropped.
func (w *LogWriter) Close() error {
	w.once.Do(func() { close(w.done) })
	return nil
}

// Run runs the shell until the user quits or ctx is done.
func Run(ctx context.Context, p *tea.Program) error {
	_, err := p.Run()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// NewProgram creates a full-screen shell program bound to ctx.
func NewProgram(ctx context.Context, m Model, opts ...tea.ProgramOption) *tea.Program {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithAltScreen()}, opts...)
	return tea.NewProgram(m, opts...)
}
