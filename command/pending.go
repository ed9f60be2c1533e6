package command

import (
	"context"
	"sync"
	"time"

	"github.com/justapithecus/mk0link/types"
)

// CompletionFunc receives the outcome of a command. err is nil when the
// device answered, whatever the status; otherwise it is ErrAbandoned,
// ErrExpired or ErrClosed. It must not wait on its own Pending.
type CompletionFunc func(resp types.CommandResponse, err error)

// Pending is the future for one submitted command. It resolves exactly once.
type Pending struct {
	id       uint32
	request  types.Request
	deadline time.Time

	channel    *Channel
	onComplete CompletionFunc

	once sync.Once
	done chan struct{}
	resp types.CommandResponse
	err  error
}

func newPending(ch *Channel, id uint32, req types.Request, onComplete CompletionFunc) *Pending {
	return &Pending{
		id:         id,
		request:    req,
		channel:    ch,
		onComplete: onComplete,
		done:       make(chan struct{}),
	}
}

// ID returns the correlation id.
func (p *Pending) ID() uint32 {
	return p.id
}

// Request returns the submitted request after normalization.
func (p *Pending) Request() types.Request {
	return p.request
}

// Done is closed once the command is resolved.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Result returns the outcome. Only meaningful after Done is closed.
func (p *Pending) Result() (types.CommandResponse, error) {
	return p.resp, p.err
}

// Wait blocks until the command resolves or ctx is done. On ctx expiry the
// registration is abandoned so it cannot leak; if the response won the race
// it is returned instead.
func (p *Pending) Wait(ctx context.Context) (types.CommandResponse, error) {
	select {
	case <-p.done:
		return p.Result()
	default:
	}
	select {
	case <-p.done:
	case <-ctx.Done():
		p.channel.abandon(p.channel.removePending(p), ctx.Err())
		<-p.done
	}
	return p.Result()
}

// resolve settles the future. notify controls whether the completion
// callback runs; it runs before Done is closed, so a waiter observes its
// effects. Returns false if already resolved.
func (p *Pending) resolve(resp types.CommandResponse, err error, notify bool) bool {
	resolved := false
	p.once.Do(func() {
		p.resp = resp
		p.err = err
		if notify && p.onComplete != nil {
			p.onComplete(resp, err)
		}
		close(p.done)
		resolved = true
	})
	return resolved
}
