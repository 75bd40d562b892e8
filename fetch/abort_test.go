package fetch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAbortController_firesOnce(t *testing.T) {
	ctl := NewAbortController()
	signal := ctl.Signal()

	calls := 0
	signal.AddListener(func(error) { calls++ })

	if !ctl.Abort(nil) {
		t.Fatal("expected first abort to fire")
	}
	if ctl.Abort(errors.New("again")) {
		t.Error("expected second abort to be ignored")
	}

	if want, have := 1, calls; want != have {
		t.Errorf("unexpected listener calls, want: %d, have: %d", want, have)
	}
	if !signal.Aborted() {
		t.Error("expected signal to be aborted")
	}
	if want, have := ErrAborted, signal.Reason(); !errors.Is(have, want) {
		t.Errorf("unexpected reason, want: %v, have: %v", want, have)
	}
	select {
	case <-signal.Done():
	default:
		t.Error("expected Done to be closed")
	}
}

func TestAbortController_notAfterComplete(t *testing.T) {
	ctl := NewAbortController()

	calls := 0
	ctl.Signal().AddListener(func(error) { calls++ })

	ctl.Complete()
	if ctl.Abort(nil) {
		t.Error("expected abort after completion to be ignored")
	}
	if calls != 0 || ctl.Signal().Aborted() {
		t.Errorf("signal fired after completion, calls: %d", calls)
	}
}

func TestAbortController_listenerRemoved(t *testing.T) {
	ctl := NewAbortController()

	calls := 0
	remove := ctl.Signal().AddListener(func(error) { calls++ })
	remove()
	ctl.Abort(nil)

	if calls != 0 {
		t.Errorf("removed listener called %d times", calls)
	}
}

func TestAbortController_lateListenerNotCalled(t *testing.T) {
	ctl := NewAbortController()
	ctl.Abort(nil)

	calls := 0
	ctl.Signal().AddListener(func(error) { calls++ })

	if calls != 0 {
		t.Errorf("late listener called %d times", calls)
	}
}

func TestAbortController_Follow(t *testing.T) {
	ctl := NewAbortController()
	ctx, cancel := context.WithCancelCause(context.Background())
	reason := errors.New("client gone")

	fired := make(chan error, 1)
	ctl.Signal().AddListener(func(err error) { fired <- err })
	ctl.Follow(ctx.Done(), func() error { return context.Cause(ctx) })

	cancel(reason)

	select {
	case err := <-fired:
		if !errors.Is(err, reason) {
			t.Errorf("unexpected reason, want: %v, have: %v", reason, err)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for abort")
	}
}

func TestAbortController_FollowAfterComplete(t *testing.T) {
	ctl := NewAbortController()
	done := make(chan struct{})
	ctl.Follow(done, nil)

	ctl.Complete()
	close(done)
	time.Sleep(10 * time.Millisecond)

	if ctl.Signal().Aborted() {
		t.Error("signal fired after completion")
	}
}

func TestAbortSignal_Context(t *testing.T) {
	ctl := NewAbortController()
	ctx, cancel := ctl.Signal().Context(context.Background())
	defer cancel()

	ctl.Abort(nil)

	select {
	case <-ctx.Done():
		if !errors.Is(context.Cause(ctx), ErrAborted) {
			t.Errorf("unexpected cause: %v", context.Cause(ctx))
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for context")
	}
}
