package fetch

import (
	"context"
	"errors"
	"sync"
)

// ErrAborted is the default reason of an aborted signal.
var ErrAborted = errors.New("fetch: request aborted")

// AbortSignal reports cancellation of one request. It fires at most once.
type AbortSignal struct {
	mu        sync.Mutex
	aborted   bool
	reason    error
	done      chan struct{}
	listeners []*listener
}

type listener struct {
	fn func(reason error)
}

// Aborted returns true once the signal fired.
func (s *AbortSignal) Aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aborted
}

// Reason returns the abort reason, or nil if the signal didn't fire.
func (s *AbortSignal) Reason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Done returns a channel closed when the signal fires.
func (s *AbortSignal) Done() <-chan struct{} {
	return s.done
}

// AddListener registers fn to run once when the signal fires. Listeners
// added after the signal fired are never called. The returned function
// removes the listener.
func (s *AbortSignal) AddListener(fn func(reason error)) (remove func()) {
	l := &listener{fn: fn}

	s.mu.Lock()
	if !s.aborted {
		s.listeners = append(s.listeners, l)
	}
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, have := range s.listeners {
			if have == l {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Context returns a child of parent cancelled when the signal fires.
func (s *AbortSignal) Context(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(parent)
	go func() {
		select {
		case <-s.done:
			cancel(s.Reason())
		case <-ctx.Done():
		}
	}()
	return ctx, func() { cancel(context.Canceled) }
}

// AbortController owns an AbortSignal.
type AbortController struct {
	mu        sync.Mutex
	signal    *AbortSignal
	completed bool
	complete  chan struct{}
}

// NewAbortController returns a controller whose signal hasn't fired.
func NewAbortController() *AbortController {
	return &AbortController{
		signal:   &AbortSignal{done: make(chan struct{})},
		complete: make(chan struct{}),
	}
}

// Signal returns the signal controlled by c.
func (c *AbortController) Signal() *AbortSignal {
	return c.signal
}

// Abort fires the signal with reason, or ErrAborted when reason is nil. It
// returns false when the signal already fired or the request completed.
func (c *AbortController) Abort(reason error) bool {
	if reason == nil {
		reason = ErrAborted
	}

	c.mu.Lock()
	if c.completed {
		c.mu.Unlock()
		return false
	}
	s := c.signal
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		c.mu.Unlock()
		return false
	}
	s.aborted = true
	s.reason = reason
	listeners := s.listeners
	s.listeners = nil
	close(s.done)
	s.mu.Unlock()
	c.mu.Unlock()

	for _, l := range listeners {
		l.fn(reason)
	}
	return true
}

// Complete marks the request as finished. The signal never fires afterwards.
func (c *AbortController) Complete() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.completed {
		c.completed = true
		close(c.complete)
	}
}

// Follow aborts the signal when done is closed, unless the request completes
// first. reason is called at abort time and may be nil.
func (c *AbortController) Follow(done <-chan struct{}, reason func() error) {
	if done == nil {
		return
	}
	go func() {
		select {
		case <-done:
			var err error
			if reason != nil {
				err = reason()
			}
			c.Abort(err)
		case <-c.complete:
		}
	}()
}
