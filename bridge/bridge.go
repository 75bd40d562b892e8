// Package bridge converts between native net/http handlers and fetch
// handlers, in both directions.
//
// Converting back and forth returns the original handler:
//
//	ToStandard(ToNative(h)) == h
//	ToNative(ToStandard(g)) == g
//
// Wrapping the same pointer handler twice returns the same wrapper.
package bridge

import (
	"bytes"
	"io"
	"net/http"
	"reflect"
	"sync"

	"github.com/unihttp/unihttp-go/fetch"
	"github.com/unihttp/unihttp-go/runtime/nethttp"
)

var (
	standardCache sync.Map // http.Handler -> *standardHandler
	nativeCache   sync.Map // fetch.Handler -> http.Handler
)

// cacheable returns true when h can be used as a map key without panicking.
func cacheable(h any) bool {
	return h != nil && reflect.TypeOf(h).Kind() == reflect.Pointer
}

// ToStandard returns a fetch handler that runs the native handler h.
//
// On net/http, when nothing wrote to the native response yet, h runs
// directly on the native pair and the returned response is
// fetch.Handled. On other runtimes a native request is synthesized from the
// fetch request and the output of h is streamed into the returned response.
//
// A panic in h before anything was written is returned as a
// *fetch.PanicError. After that it aborts the response body.
func ToStandard(h http.Handler) fetch.Handler {
	if fh := nethttp.Unwrap(h); fh != nil {
		return fh
	}
	if !cacheable(h) {
		return &standardHandler{h: h}
	}
	if v, ok := standardCache.Load(h); ok {
		return v.(*standardHandler)
	}
	v, _ := standardCache.LoadOrStore(h, &standardHandler{h: h})
	return v.(*standardHandler)
}

// ToNative returns a native handler that serves the fetch handler h. See
// nethttp.Handler.
func ToNative(h fetch.Handler, opts ...nethttp.Option) http.Handler {
	if sh, ok := h.(*standardHandler); ok {
		return sh.h
	}
	if !cacheable(h) || len(opts) > 0 {
		return nethttp.Handler(h, opts...)
	}
	if v, ok := nativeCache.Load(h); ok {
		return v.(http.Handler)
	}
	v, _ := nativeCache.LoadOrStore(h, nethttp.Handler(h))
	return v.(http.Handler)
}

// standardHandler runs a native handler as a fetch handler.
type standardHandler struct {
	h http.Handler
}

// ServeFetch implements fetch.Handler
func (s *standardHandler) ServeFetch(req fetch.Request) (*fetch.Response, error) {
	if pair, ok := req.Runtime().Native.(*fetch.NetHTTPPair); ok && pair.Claim() {
		return s.serveNative(req, pair)
	}
	return s.serveSynthesized(req)
}

// serveNative runs the handler on the native pair.
func (s *standardHandler) serveNative(req fetch.Request, pair *fetch.NetHTTPPair) (resp *fetch.Response, err error) {
	std, err := nativeRequest(req)
	if err != nil {
		return nil, err
	}

	w := &statusWriter{ResponseWriter: pair.W}
	defer func() {
		if p := recover(); p != nil {
			if w.status != 0 {
				panic(http.ErrAbortHandler)
			}
			resp, err = nil, &fetch.PanicError{Value: p}
		}
	}()

	s.h.ServeHTTP(w, std)
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	return fetch.Handled(status), nil
}

// serveSynthesized runs the handler on a synthesized native request and
// captures what it writes.
func (s *standardHandler) serveSynthesized(req fetch.Request) (*fetch.Response, error) {
	std, err := nativeRequest(req)
	if err != nil {
		return fetch.Text(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)), nil
	}
	if !req.BodyUsed() {
		if body := req.Body(); body != nil {
			std = std.Clone(std.Context())
			std.Body = body
		}
	}

	w := newCaptureWriter(std.Context())
	go func() {
		defer func() {
			if p := recover(); p != nil {
				w.fail(&fetch.PanicError{Value: p})
				return
			}
			w.finish()
		}()
		s.h.ServeHTTP(w, std)
	}()

	select {
	case resp := <-w.ready:
		return resp, nil
	case err := <-w.failed:
		return nil, err
	}
}

// nativeRequest returns a native request for req. A body already consumed
// as bytes is replayed.
func nativeRequest(req fetch.Request) (*http.Request, error) {
	std, err := req.Standard()
	if err != nil {
		return nil, err
	}
	if req.BodyUsed() {
		if data, err := req.Bytes(); err == nil {
			std = std.Clone(std.Context())
			std.Body = io.NopCloser(bytes.NewReader(data))
			std.ContentLength = int64(len(data))
		}
	}
	return std, nil
}
