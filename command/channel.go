// Package command correlates outbound device commands with their responses.
//
// A Channel assigns each command an id, frames and writes it, and keeps the
// command outstanding until the device answers with the same id. Every
// command reaches exactly one terminal state: matched, send failure,
// abandoned, expired, or closed.
package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/justapithecus/mk0link/log"
	"github.com/justapithecus/mk0link/metrics"
	"github.com/justapithecus/mk0link/types"
	"github.com/justapithecus/mk0link/wire"
)

// MaxID is the largest id issued before wrapping back to 1. Ids stay within
// 16 bits so older firmware that truncates them still correlates.
const MaxID = 0xFFFF

var (
	// ErrSendFailed indicates the command frame was not fully written.
	ErrSendFailed = errors.New("command: send failed")
	// ErrAbandoned indicates the caller stopped waiting for the response.
	ErrAbandoned = errors.New("command: abandoned")
	// ErrExpired indicates no response arrived within the response timeout.
	ErrExpired = errors.New("command: response timeout")
	// ErrClosed indicates the channel was closed before a response arrived.
	ErrClosed = errors.New("command: channel closed")
	// ErrTooManyOutstanding indicates every id is in use.
	ErrTooManyOutstanding = errors.New("command: too many outstanding commands")
)

// Options configures a Channel.
type Options struct {
	// ResponseTimeout expires commands that get no response. Zero disables
	// expiry; commands then stay outstanding until matched, abandoned or
	// the channel is closed.
	ResponseTimeout time.Duration
	Logger          *log.Logger
	Collector       *metrics.Collector
}

// Channel is safe for concurrent use. Submit may be called from any
// goroutine while the reader goroutine calls OnResponse.
type Channel struct {
	mu          sync.Mutex
	lastID      uint32
	outstanding map[uint32]*Pending
	closed      bool

	writeMu sync.Mutex
	w       io.Writer

	timeout   time.Duration
	logger    *log.Logger
	collector *metrics.Collector
	now       func() time.Time
}

// NewChannel creates a channel writing frames to w.
func NewChannel(w io.Writer, opts Options) *Channel {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewNop()
	}
	return &Channel{
		outstanding: make(map[uint32]*Pending),
		w:           w,
		timeout:     opts.ResponseTimeout,
		logger:      logger,
		collector:   opts.Collector,
		now:         time.Now,
	}
}

// Submit registers req, writes its frame and returns the future.
//
// If the write is short or fails, the registration is removed, the future
// resolves with ErrSendFailed, and the same error is returned here; the
// completion callback is not invoked in that case. onComplete may be nil.
// It runs on the goroutine that resolves the command, usually the reader,
// and must not block.
func (c *Channel) Submit(req types.Request, onComplete CompletionFunc) (*Pending, error) {
	if req == nil {
		return nil, wire.ErrNoRequest
	}
	req = normalize(req)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	id, ok := c.allocateLocked()
	if !ok {
		c.mu.Unlock()
		return nil, ErrTooManyOutstanding
	}
	p := newPending(c, id, req, onComplete)
	if c.timeout > 0 {
		p.deadline = c.now().Add(c.timeout)
	}
	c.outstanding[id] = p
	c.mu.Unlock()

	frame, err := encode(types.Command{ID: id, Request: req})
	if err != nil {
		c.remove(id)
		p.resolve(types.CommandResponse{}, err, false)
		return p, err
	}

	c.collector.IncCommandSubmitted()

	c.writeMu.Lock()
	n, werr := c.w.Write(frame)
	c.writeMu.Unlock()

	if werr != nil || n != len(frame) {
		c.remove(id)
		c.collector.IncSendFailure()

		fields := map[string]any{
			"cmd_id":  id,
			"request": req.Name(),
			"written": n,
			"size":    len(frame),
		}
		if werr != nil {
			fields["error"] = werr.Error()
		}
		c.logger.Error("Failed to write command to device.", fields)

		err := fmt.Errorf("%w: wrote %d of %d bytes", ErrSendFailed, n, len(frame))
		if werr != nil {
			err = fmt.Errorf("%w: %w", ErrSendFailed, werr)
		}
		p.resolve(types.CommandResponse{}, err, false)
		return p, err
	}

	c.logger.Debug("command sent", map[string]any{
		"cmd_id":  id,
		"request": req.Name(),
	})
	return p, nil
}

// allocateLocked returns the next id not currently outstanding.
func (c *Channel) allocateLocked() (uint32, bool) {
	for range MaxID {
		c.lastID++
		if c.lastID > MaxID {
			c.lastID = 1
		}
		if _, busy := c.outstanding[c.lastID]; !busy {
			return c.lastID, true
		}
	}
	return 0, false
}

func encode(cmd types.Command) ([]byte, error) {
	payload, err := wire.EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	return wire.EncodeFrame(payload)
}

// OnResponse matches resp to its outstanding command and completes it.
// Responses for ids that are not outstanding are logged and ignored.
// Reports whether a command was matched.
func (c *Channel) OnResponse(resp *types.CommandResponse) bool {
	p := c.remove(resp.ID)
	if p == nil {
		c.collector.IncUnknownResponse()
		c.logger.Warn(fmt.Sprintf("Unknown command ID: %d", resp.ID), map[string]any{
			"cmd_id": resp.ID,
			"status": resp.Status.String(),
		})
		return false
	}

	c.collector.IncResponseMatched()
	p.resolve(*resp, nil, true)
	return true
}

// Abandon drops the command with id, resolving it with ErrAbandoned.
// Reports whether the command was still outstanding.
func (c *Channel) Abandon(id uint32) bool {
	return c.abandon(c.remove(id), nil)
}

// abandon resolves p, already removed from the table, with ErrAbandoned.
func (c *Channel) abandon(p *Pending, cause error) bool {
	if p == nil {
		return false
	}
	c.collector.IncCommandAbandoned()

	err := ErrAbandoned
	if cause != nil {
		err = fmt.Errorf("%w: %w", ErrAbandoned, cause)
	}
	p.resolve(types.CommandResponse{}, err, true)
	return true
}

// Expire resolves every command whose deadline is before now with
// ErrExpired and returns how many expired. It is a no-op without a
// response timeout.
func (c *Channel) Expire(now time.Time) int {
	if c.timeout <= 0 {
		return 0
	}

	c.mu.Lock()
	var expired []*Pending
	for id, p := range c.outstanding {
		if now.After(p.deadline) {
			delete(c.outstanding, id)
			expired = append(expired, p)
		}
	}
	c.mu.Unlock()

	for _, p := range expired {
		c.collector.IncCommandExpired()
		c.logger.Warn("command response timed out", map[string]any{
			"cmd_id":  p.id,
			"request": p.request.Name(),
			"timeout": c.timeout.String(),
		})
		p.resolve(types.CommandResponse{}, ErrExpired, true)
	}
	return len(expired)
}

// RunSweeper calls Expire every interval until ctx is done. interval <= 0
// uses half the response timeout. Returns immediately without a timeout.
func (c *Channel) RunSweeper(ctx context.Context, interval time.Duration) {
	if c.timeout <= 0 {
		return
	}
	if interval <= 0 {
		interval = c.timeout / 2
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			c.Expire(now)
		}
	}
}

// Close rejects further submissions and resolves all outstanding commands
// with ErrClosed. Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pending := make([]*Pending, 0, len(c.outstanding))
	for _, p := range c.outstanding {
		pending = append(pending, p)
	}
	c.outstanding = make(map[uint32]*Pending)
	c.mu.Unlock()

	c.collector.AddCommandsClosed(int64(len(pending)))
	for _, p := range pending {
		p.resolve(types.CommandResponse{}, ErrClosed, true)
	}
}

// Outstanding returns the number of commands awaiting a response.
func (c *Channel) Outstanding() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.outstanding)
}

func (c *Channel) remove(id uint32) *Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.outstanding[id]
	if !ok {
		return nil
	}
	delete(c.outstanding, id)
	return p
}

// removePending drops p only if it still owns its id. After a wrap the id
// may belong to a newer command.
func (c *Channel) removePending(p *Pending) *Pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.outstanding[p.id] != p {
		return nil
	}
	delete(c.outstanding, p.id)
	return p
}
