package worker

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/unihttp/unihttp-go/fasturl"
	"github.com/unihttp/unihttp-go/fetch"
	"github.com/unihttp/unihttp-go/headers"
)

// FetchEvent is the single input of a worker: one standard request, the
// address of the client and a way to register deferred work.
type FetchEvent struct {
	Request    *http.Request
	RemoteAddr string

	waitUntil func(func(context.Context) error)
}

// WaitUntil registers fn to run after the response was produced. The worker
// doesn't finish until fn returns, see Worker.Wait.
func (e *FetchEvent) WaitUntil(fn func(context.Context) error) {
	if e.waitUntil != nil {
		e.waitUntil(fn)
		return
	}
	go func() { _ = fn(context.Background()) }()
}

// request adapts a FetchEvent.
//
// Headers of a native request are read-only. Requests decoded from an
// envelope keep their raw header pairs and only copy them when enumerated.
type request struct {
	*fetch.BodyState
	*fetch.Delegate

	ev      *FetchEvent
	raw     []string // envelope header pairs, nil for native requests
	runtime *fetch.Runtime

	url     *fasturl.URL
	headers headers.Headers
	state   *signalState
}

// signalState is shared by a request and its clones.
type signalState struct {
	ctl       *fetch.AbortController
	completed bool
}

var _ fetch.Request = (*request)(nil)

func newRequest(ev *FetchEvent, raw []string) *request {
	r := ev.Request
	req := &request{ev: ev, raw: raw, state: &signalState{}}
	req.runtime = &fetch.Runtime{Name: fetch.RuntimeWorker, Native: ev}
	req.BodyState = fetch.NewBody(r.Method, func() string { return req.Headers().Get("content-type") }, func() io.ReadCloser {
		return r.Body
	})
	req.Delegate = &fetch.Delegate{New: req.newStandard}
	return req
}

func (r *request) newStandard() (*http.Request, error) {
	if r.raw == nil {
		return r.ev.Request, nil
	}
	std := r.ev.Request.Clone(r.ev.Request.Context())
	std.Header = make(http.Header, len(r.raw)/2)
	for i := 0; i+1 < len(r.raw); i += 2 {
		if strings.EqualFold(r.raw[i], "host") {
			std.Host = r.raw[i+1]
			continue
		}
		std.Header.Add(r.raw[i], r.raw[i+1])
	}
	return std, nil
}

// complete stops the signal from firing.
func (r *request) complete() {
	s := r.state
	s.completed = true
	if s.ctl != nil {
		s.ctl.Complete()
	}
}

// Method implements the same method as documented on fetch.Request.
func (r *request) Method() string {
	return r.ev.Request.Method
}

// URL implements the same method as documented on fetch.Request.
func (r *request) URL() string {
	return r.ParsedURL().Href()
}

// ParsedURL implements the same method as documented on fetch.Request.
func (r *request) ParsedURL() *fasturl.URL {
	if r.url == nil {
		r.url = fetch.URLOf(r.ev.Request)
	}
	return r.url
}

// Headers implements the same method as documented on fetch.Request.
func (r *request) Headers() headers.Headers {
	if r.headers == nil {
		if r.raw != nil {
			r.headers = headers.Pairs(r.raw)
		} else {
			h := r.ev.Request.Header
			r.headers = headers.Accessor(h.Values, func(fn func(name, value string)) {
				for k, vs := range h {
					for _, v := range vs {
						fn(k, v)
					}
				}
			})
		}
	}
	return r.headers
}

// Context implements the same method as documented on fetch.Request.
func (r *request) Context() context.Context {
	return r.ev.Request.Context()
}

// Signal implements the same method as documented on fetch.Request.
func (r *request) Signal() *fetch.AbortSignal {
	s := r.state
	if s.ctl == nil {
		s.ctl = fetch.NewAbortController()
		if s.completed {
			s.ctl.Complete()
		} else {
			ctx := r.ev.Request.Context()
			s.ctl.Follow(ctx.Done(), func() error { return context.Cause(ctx) })
		}
	}
	return s.ctl.Signal()
}

// IP implements the same method as documented on fetch.Request.
func (r *request) IP() string {
	if r.ev.RemoteAddr != "" {
		return fetch.IPOf(r.ev.RemoteAddr)
	}
	return fetch.IPOf(r.ev.Request.RemoteAddr)
}

// Clone implements the same method as documented on fetch.Request.
func (r *request) Clone() fetch.Request {
	c := *r
	c.url, c.headers = nil, nil
	return &c
}

// Runtime implements the same method as documented on fetch.Request.
func (r *request) Runtime() *fetch.Runtime {
	return r.runtime
}

// WaitUntil implements the same method as documented on fetch.Request.
func (r *request) WaitUntil(fn func(context.Context) error) {
	r.ev.WaitUntil(fn)
}
