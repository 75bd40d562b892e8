// Package fetch defines the fetch-style request and response contract that
// handlers are written against, independent of the native HTTP runtime that
// serves them.
//
// Each runtime package (runtime/nethttp, runtime/fasthttp, runtime/worker)
// adapts its native request into a Request and emits a *Response using
// Response.Extract. Adapters compute fields lazily and only build a full
// *http.Request when a member outside the hot subset is used.
package fetch

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/unihttp/unihttp-go/fasturl"
	"github.com/unihttp/unihttp-go/headers"
)

// Request is the fetch Request contract.
//
// Body consumers (Bytes, Text, JSON, FormData, Blob) memoize their result.
// Consuming the body with two different consumers fails with ErrBodyUsed,
// except Bytes and Blob which share one read.
//
// Request is not safe for concurrent use.
type Request interface {
	// Method returns the upper-case request method.
	Method() string

	// URL returns the absolute request URL.
	URL() string

	// ParsedURL returns the lazily parsed URL.
	ParsedURL() *fasturl.URL

	// Headers returns the request headers. Some runtimes return an immutable
	// view.
	Headers() headers.Headers

	// Context returns the context of the request.
	Context() context.Context

	// Signal returns a signal that fires once when the client goes away
	// before the response completed.
	Signal() *AbortSignal

	// IP returns the best-effort client address, or "" when unknown.
	IP() string

	// Body returns the body stream, or nil for GET and HEAD requests.
	Body() io.ReadCloser

	// BodyUsed returns true once the body was read.
	BodyUsed() bool

	Bytes() ([]byte, error)
	Text() (string, error)
	JSON(v any) error
	FormData() (*multipart.Form, error)
	Blob() (*Blob, error)

	// Clone returns a request over the same native objects. The body isn't
	// copied.
	Clone() Request

	// Runtime identifies the native runtime and exposes its raw objects.
	Runtime() *Runtime

	// WaitUntil registers work that must finish before the runtime tears
	// down the request. Runtimes without deferred work run fn in the
	// background.
	WaitUntil(fn func(ctx context.Context) error)

	// Standard returns the request as a fully realized *http.Request, built
	// once and memoized.
	Standard() (*http.Request, error)

	// The following members are served by Standard.

	Proto() string
	Cookies() []*http.Cookie
	Referer() string
	UserAgent() string
	BasicAuth() (username, password string, ok bool)
}

// RuntimeName identifies a native runtime.
type RuntimeName string

const (
	RuntimeNetHTTP    RuntimeName = "nethttp"
	RuntimeFastHTTP   RuntimeName = "fasthttp"
	RuntimeWorker     RuntimeName = "worker"
	RuntimeStandalone RuntimeName = "standalone"
)

// Runtime is set once when an adapter is constructed.
//
// Native is *NetHTTPPair for RuntimeNetHTTP, *fasthttp.RequestCtx for
// RuntimeFastHTTP, *worker.FetchEvent for RuntimeWorker and *http.Request for
// RuntimeStandalone.
type Runtime struct {
	Name   RuntimeName
	Native any
}

// NetHTTPPair is the native request and response of a net/http handler.
type NetHTTPPair struct {
	W http.ResponseWriter
	R *http.Request

	claimed atomic.Bool
}

// Claim returns true the first time it is called. The caller then owns W and
// must write the whole response to it.
func (p *NetHTTPPair) Claim() bool {
	return p.claimed.CompareAndSwap(false, true)
}

// Claimed returns true once Claim succeeded.
func (p *NetHTTPPair) Claimed() bool {
	return p.claimed.Load()
}

// Handler responds to a fetch request.
type Handler interface {
	ServeFetch(Request) (*Response, error)
}

// HandlerFunc adapts a function to a Handler.
type HandlerFunc func(Request) (*Response, error)

// ServeFetch calls f(req).
func (f HandlerFunc) ServeFetch(req Request) (*Response, error) {
	return f(req)
}

// IsStandard reports whether v is a standard request or response: a Request,
// *Response, *http.Request or *http.Response.
func IsStandard(v any) bool {
	switch v.(type) {
	case Request, *Response, *http.Request, *http.Response:
		return true
	}
	return false
}

// Delegate implements the members of Request served by a fully realized
// *http.Request. New is called at most once.
type Delegate struct {
	New func() (*http.Request, error)

	once sync.Once
	req  *http.Request
	err  error
}

// Standard implements the same method as documented on Request.
func (d *Delegate) Standard() (*http.Request, error) {
	d.once.Do(func() {
		if d.New == nil {
			d.err = ErrNoNativeContext
			return
		}
		d.req, d.err = d.New()
	})
	return d.req, d.err
}

// Proto implements the same method as documented on Request.
func (d *Delegate) Proto() string {
	if r, err := d.Standard(); err == nil {
		return r.Proto
	}
	return ""
}

// Cookies implements the same method as documented on Request.
func (d *Delegate) Cookies() []*http.Cookie {
	if r, err := d.Standard(); err == nil {
		return r.Cookies()
	}
	return nil
}

// Referer implements the same method as documented on Request.
func (d *Delegate) Referer() string {
	if r, err := d.Standard(); err == nil {
		return r.Referer()
	}
	return ""
}

// UserAgent implements the same method as documented on Request.
func (d *Delegate) UserAgent() string {
	if r, err := d.Standard(); err == nil {
		return r.UserAgent()
	}
	return ""
}

// BasicAuth implements the same method as documented on Request.
func (d *Delegate) BasicAuth() (username, password string, ok bool) {
	if r, err := d.Standard(); err == nil {
		return r.BasicAuth()
	}
	return
}
