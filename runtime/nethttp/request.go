// Package nethttp serves fetch handlers with net/http.
package nethttp

import (
	"context"
	"io"
	"net/http"

	"github.com/unihttp/unihttp-go/fasturl"
	"github.com/unihttp/unihttp-go/fetch"
	"github.com/unihttp/unihttp-go/headers"
)

// requestKey is a context.Context Value associated with the *Request that
// adapts a native request.
type requestKey struct{}

// RequestFrom returns the fetch request attached to ctx by Handler, if any.
func RequestFrom(ctx context.Context) (*Request, bool) {
	req, ok := ctx.Value(requestKey{}).(*Request)
	return req, ok
}

// Request adapts a native request and response writer pair.
//
// Fields are computed on first use. Headers are a read-write view over the
// native header map, so changes are visible to native handlers that run
// later on the same pair.
type Request struct {
	*fetch.BodyState
	*fetch.Delegate

	pair    *fetch.NetHTTPPair
	runtime *fetch.Runtime

	url     *fasturl.URL
	headers headers.Headers

	state *signalState

	waitUntil func(func(context.Context) error)
}

// signalState is shared by a request and its clones.
type signalState struct {
	ctl       *fetch.AbortController
	completed bool
}

var _ fetch.Request = (*Request)(nil)

// NewRequest adapts w and r. The returned request is attached to the context
// of its native request, see RequestFrom.
func NewRequest(w http.ResponseWriter, r *http.Request) *Request {
	req := &Request{state: &signalState{}}
	r = r.WithContext(context.WithValue(r.Context(), requestKey{}, req))

	req.pair = &fetch.NetHTTPPair{W: w, R: r}
	req.runtime = &fetch.Runtime{Name: fetch.RuntimeNetHTTP, Native: req.pair}
	req.BodyState = fetch.NewBody(r.Method, func() string { return r.Header.Get("Content-Type") }, func() io.ReadCloser {
		return r.Body
	})
	req.Delegate = &fetch.Delegate{New: func() (*http.Request, error) { return r, nil }}
	return req
}

// Pair returns the native request and response writer.
func (r *Request) Pair() *fetch.NetHTTPPair {
	return r.pair
}

// ResponseHeaders returns a read-write view over the native response
// headers.
func (r *Request) ResponseHeaders() headers.Headers {
	return headers.Native(r.pair.W.Header())
}

// Method implements the same method as documented on fetch.Request.
func (r *Request) Method() string {
	return r.pair.R.Method
}

// URL implements the same method as documented on fetch.Request.
func (r *Request) URL() string {
	return r.ParsedURL().Href()
}

// ParsedURL implements the same method as documented on fetch.Request.
func (r *Request) ParsedURL() *fasturl.URL {
	if r.url == nil {
		r.url = fetch.URLOf(r.pair.R)
	}
	return r.url
}

// Headers implements the same method as documented on fetch.Request.
func (r *Request) Headers() headers.Headers {
	if r.headers == nil {
		r.headers = headers.Native(r.pair.R.Header)
	}
	return r.headers
}

// Context implements the same method as documented on fetch.Request.
func (r *Request) Context() context.Context {
	return r.pair.R.Context()
}

// Signal implements the same method as documented on fetch.Request.
//
// The signal follows the native request context, which net/http cancels when
// the client connection closes.
func (r *Request) Signal() *fetch.AbortSignal {
	s := r.state
	if s.ctl == nil {
		s.ctl = fetch.NewAbortController()
		if s.completed {
			s.ctl.Complete()
		} else {
			ctx := r.pair.R.Context()
			s.ctl.Follow(ctx.Done(), func() error { return context.Cause(ctx) })
		}
	}
	return s.ctl.Signal()
}

// complete stops the signal from firing.
func (r *Request) complete() {
	s := r.state
	s.completed = true
	if s.ctl != nil {
		s.ctl.Complete()
	}
}

// IP implements the same method as documented on fetch.Request.
func (r *Request) IP() string {
	return fetch.IPOf(r.pair.R.RemoteAddr)
}

// Clone implements the same method as documented on fetch.Request.
func (r *Request) Clone() fetch.Request {
	c := *r
	c.url, c.headers = nil, nil
	return &c
}

// Runtime implements the same method as documented on fetch.Request.
func (r *Request) Runtime() *fetch.Runtime {
	return r.runtime
}

// WaitUntil implements the same method as documented on fetch.Request.
func (r *Request) WaitUntil(fn func(context.Context) error) {
	if r.waitUntil != nil {
		r.waitUntil(fn)
		return
	}
	ctx := context.WithoutCancel(r.pair.R.Context())
	go func() { _ = fn(ctx) }()
}
