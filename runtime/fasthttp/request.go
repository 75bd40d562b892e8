// Package fasthttp serves fetch handlers with github.com/valyala/fasthttp.
//
// fasthttp recycles its RequestCtx once a handler returns, so a Request is
// only usable during the handler. Body consumers copy what they read, and
// Standard fails with fetch.ErrContextReleased afterwards.
package fasthttp

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"sync/atomic"

	fh "github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"github.com/valyala/bytebufferpool"

	"github.com/unihttp/unihttp-go/fasturl"
	"github.com/unihttp/unihttp-go/fetch"
	"github.com/unihttp/unihttp-go/headers"
)

// Request adapts a *fasthttp.RequestCtx.
//
// Request headers are an immutable view that peeks into the native header
// per lookup.
type Request struct {
	*fetch.BodyState
	*fetch.Delegate

	ctx     *fh.RequestCtx
	runtime *fetch.Runtime

	method  string
	url     *fasturl.URL
	headers headers.Headers

	state *requestState

	waitUntil func(func(context.Context) error)
}

// requestState is shared by a request and its clones.
type requestState struct {
	released atomic.Bool
	ctl      *fetch.AbortController
}

var _ fetch.Request = (*Request)(nil)

// NewRequest adapts ctx.
func NewRequest(ctx *fh.RequestCtx) *Request {
	req := &Request{ctx: ctx, state: &requestState{}}
	req.runtime = &fetch.Runtime{Name: fetch.RuntimeFastHTTP, Native: ctx}
	req.BodyState = fetch.NewBody(req.Method(), func() string { return string(ctx.Request.Header.ContentType()) }, req.openBody)
	req.Delegate = &fetch.Delegate{New: req.newStandard}
	return req
}

// openBody copies the native body into a pooled buffer, which is returned
// to the pool when the stream is closed.
func (r *Request) openBody() io.ReadCloser {
	if r.state.released.Load() {
		return io.NopCloser(errReader{fetch.ErrContextReleased})
	}
	buf := bytebufferpool.Get()
	_, _ = buf.Write(r.ctx.PostBody())
	return &pooledBody{Reader: bytes.NewReader(buf.B), buf: buf}
}

type pooledBody struct {
	*bytes.Reader
	buf *bytebufferpool.ByteBuffer
}

// Close returns the buffer to the pool.
func (p *pooledBody) Close() error {
	if p.buf != nil {
		p.Reader.Reset(nil)
		bytebufferpool.Put(p.buf)
		p.buf = nil
	}
	return nil
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

func (r *Request) newStandard() (*http.Request, error) {
	if r.state.released.Load() {
		return nil, fetch.ErrContextReleased
	}
	std := &http.Request{}
	if err := fasthttpadaptor.ConvertRequest(r.ctx, std, true); err != nil {
		return nil, err
	}
	return std, nil
}

// release marks the native context as recycled and stops the signal.
func (r *Request) release() {
	r.state.released.Store(true)
	if r.state.ctl != nil {
		r.state.ctl.Complete()
	}
}

// Native returns the native context. It must not be used after the handler
// returned.
func (r *Request) Native() *fh.RequestCtx {
	return r.ctx
}

// ResponseHeaders returns a buffered view of the native response headers.
// Every mutation replaces the full native header set.
func (r *Request) ResponseHeaders() *headers.Eager {
	initial := headers.New()
	r.ctx.Response.Header.VisitAll(func(k, v []byte) {
		_ = initial.Append(string(k), string(v))
	})
	applied := initial.Keys()
	return headers.NewEager(initial, func(s *headers.Store) {
		for _, name := range applied {
			r.ctx.Response.Header.Del(name)
		}
		applied = applied[:0]
		s.Range(func(name, value string) bool {
			r.ctx.Response.Header.Add(name, value)
			applied = append(applied, name)
			return true
		})
	})
}

// Method implements the same method as documented on fetch.Request.
func (r *Request) Method() string {
	if r.method == "" {
		r.method = string(r.ctx.Method())
	}
	return r.method
}

// URL implements the same method as documented on fetch.Request.
func (r *Request) URL() string {
	return r.ParsedURL().Href()
}

// ParsedURL implements the same method as documented on fetch.Request.
func (r *Request) ParsedURL() *fasturl.URL {
	if r.url == nil {
		scheme := "http"
		if r.ctx.IsTLS() {
			scheme = "https"
		}
		uri := r.ctx.URI()
		search := ""
		if q := uri.QueryString(); len(q) > 0 {
			search = "?" + string(q)
		}
		path := string(uri.PathOriginal())
		if i := bytes.IndexByte(uri.PathOriginal(), '?'); i >= 0 {
			path = path[:i]
		}
		if path == "" {
			path = "/"
		}
		r.url = fasturl.FromParts(scheme, string(r.ctx.Host()), path, search)
	}
	return r.url
}

// Headers implements the same method as documented on fetch.Request.
func (r *Request) Headers() headers.Headers {
	if r.headers == nil {
		h := &r.ctx.Request.Header
		r.headers = headers.Accessor(func(name string) []string {
			all := h.PeekAll(name)
			if len(all) == 0 {
				return nil
			}
			values := make([]string, len(all))
			for i, v := range all {
				values[i] = string(v)
			}
			return values
		}, func(fn func(name, value string)) {
			h.VisitAll(func(k, v []byte) {
				fn(string(k), string(v))
			})
		})
	}
	return r.headers
}

// Context implements the same method as documented on fetch.Request.
//
// The native context is a context.Context whose values are its user values.
func (r *Request) Context() context.Context {
	return r.ctx
}

// Signal implements the same method as documented on fetch.Request.
//
// fasthttp has no per-connection close notification for a running handler.
// The signal follows RequestCtx.Done, which closes when the server shuts
// down.
func (r *Request) Signal() *fetch.AbortSignal {
	s := r.state
	if s.ctl == nil {
		s.ctl = fetch.NewAbortController()
		if s.released.Load() {
			s.ctl.Complete()
		} else {
			s.ctl.Follow(r.ctx.Done(), nil)
		}
	}
	return s.ctl.Signal()
}

// IP implements the same method as documented on fetch.Request.
func (r *Request) IP() string {
	if ip := r.ctx.RemoteIP(); ip != nil && !ip.IsUnspecified() {
		return ip.String()
	}
	return ""
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
	go func() { _ = fn(context.Background()) }()
}
