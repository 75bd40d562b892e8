// Package plugins contains unihttp.Plugin implementations for concerns most
// servers share, such as error rendering, metrics, rate limiting and access
// logs, plus running http-wasm guests.
package plugins

import (
	"errors"
	"net/http"

	"github.com/unihttp/unihttp-go"
	"github.com/unihttp/unihttp-go/fetch"
)

// ErrorFunc renders err, returned or panicked by a later middleware or the
// handler, as a response. An error it returns propagates to the runtime.
type ErrorFunc func(req fetch.Request, err error) (*fetch.Response, error)

// DefaultError renders every error as a plain 500.
func DefaultError(fetch.Request, error) (*fetch.Response, error) {
	return fetch.Text(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)), nil
}

// ErrorHandler inserts Recover(fn) as the outermost middleware, regardless
// of the order plugins run in. A nil fn is DefaultError.
func ErrorHandler(fn ErrorFunc) unihttp.Plugin {
	return func(s *unihttp.Server) {
		s.Middleware = append([]fetch.Middleware{fetch.Named("error-handler", Recover(fn))}, s.Middleware...)
	}
}

// Recover returns middleware that converts errors and panics from next into
// a response rendered by fn. Panics are passed as *fetch.PanicError.
//
// http.ErrAbortHandler is re-panicked: it signals a native response that
// was already partially written and must be aborted.
func Recover(fn ErrorFunc) fetch.Middleware {
	if fn == nil {
		fn = DefaultError
	}
	return func(req fetch.Request, next fetch.Next) (resp *fetch.Response, err error) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if e, ok := p.(error); ok && errors.Is(e, http.ErrAbortHandler) {
				panic(p)
			}
			resp, err = fn(req, &fetch.PanicError{Value: p})
		}()

		if resp, err = next(req); err != nil {
			return fn(req, err)
		}
		return resp, nil
	}
}
