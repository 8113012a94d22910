package runner

import (
	"context"
	"errors"
	"sync"
)

// ErrCancelled is the default cause recorded by Cancel.
var ErrCancelled = errors.New("execution canceled")

// ExecutionControl provides cooperative execution control for interpreters.
type ExecutionControl interface {
	WaitIfPaused(ctx context.Context) error
	Done() <-chan struct{}
	CancelCause() error
	IsPaused() bool
	IsCancelled() bool
}

// Control is a cooperative pause/resume/cancel switch. A control created
// with a parent also observes the parent's pause and cancel state, which
// is how called scripts follow their caller.
type Control struct {
	mu sync.RWMutex

	parent   *Control
	paused   bool
	resumeCh chan struct{}
	doneCh   chan struct{}
	cause    error
}

// NewControl creates a control that can be paused/resumed/canceled manually.
// With a parent, the control is canceled when the parent is; callers must
// Cancel the child once it is no longer needed to release the watcher.
func NewControl(parent *Control) *Control {
	c := &Control{
		parent:   parent,
		resumeCh: make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if parent != nil {
		go func() {
			select {
			case <-parent.Done():
				c.Cancel(parent.CancelCause())
			case <-c.doneCh:
			}
		}()
	}
	return c
}

// WaitIfPaused blocks while this control or any ancestor is paused. It
// returns the cancel cause when canceled and ctx.Err() when ctx ends.
func (c *Control) WaitIfPaused(ctx context.Context) error {
	if c == nil {
		return ctx.Err()
	}
	for {
		if err := c.cancelErr(); err != nil {
			return err
		}
		owner, resume := c.pausedOwner()
		if owner == nil {
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.Done():
		case <-owner.Done():
		case <-resume:
		}
	}
}

// pausedOwner returns the nearest paused control in the chain and the
// channel closed when it resumes.
func (c *Control) pausedOwner() (*Control, chan struct{}) {
	for cur := c; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		paused, resume := cur.paused, cur.resumeCh
		cur.mu.RUnlock()
		if paused {
			return cur, resume
		}
	}
	return nil, nil
}

func (c *Control) cancelErr() error {
	for cur := c; cur != nil; cur = cur.parent {
		select {
		case <-cur.doneCh:
			cur.mu.RLock()
			cause := cur.cause
			cur.mu.RUnlock()
			if cause == nil {
				cause = ErrCancelled
			}
			return cause
		default:
		}
	}
	return nil
}

// Done is closed when this control or an ancestor is canceled.
func (c *Control) Done() <-chan struct{} {
	if c == nil {
		return nil
	}
	return c.doneCh
}

func (c *Control) CancelCause() error {
	if c == nil {
		return nil
	}
	return c.cancelErr()
}

func (c *Control) IsCancelled() bool {
	return c != nil && c.cancelErr() != nil
}

func (c *Control) IsPaused() bool {
	if c == nil {
		return false
	}
	owner, _ := c.pausedOwner()
	return owner != nil
}

// Pause blocks future WaitIfPaused calls until Resume is called.
func (c *Control) Pause() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused || c.isDoneLocked() {
		return
	}
	c.paused = true
	c.resumeCh = make(chan struct{})
}

// Resume unblocks waiters created by Pause.
func (c *Control) Resume() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	close(c.resumeCh)
}

// Cancel marks control as done and optionally records a cause. Paused
// waiters are released.
func (c *Control) Cancel(cause error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isDoneLocked() {
		return
	}
	if cause == nil {
		cause = ErrCancelled
	}
	c.cause = cause
	if c.paused {
		c.paused = false
		close(c.resumeCh)
	}
	close(c.doneCh)
}

func (c *Control) isDoneLocked() bool {
	select {
	case <-c.doneCh:
		return true
	default:
		return false
	}
}
