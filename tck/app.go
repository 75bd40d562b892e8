// Package tck is a conformance kit for runtimes: New returns a server running
// a reference application, and Run checks it over real HTTP.
//
// For example, here's how to run the checks against the net/http runtime.
//
//	srv := tck.New(unihttp.Runtime(fetch.RuntimeNetHTTP))
//	ln, _ := net.Listen("tcp", "127.0.0.1:0")
//	go srv.Serve(ctx, ln)
//	tck.Run(t, http.DefaultClient, "http://"+ln.Addr().String())
package tck

import (
	"errors"
	"net/http"

	"github.com/unihttp/unihttp-go"
	"github.com/unihttp/unihttp-go/bridge"
	"github.com/unihttp/unihttp-go/fetch"
	"github.com/unihttp/unihttp-go/plugins"
)

// ErrTest is returned by the application for "/error".
var ErrTest = errors.New("test error")

// New returns a server running Handler, with errors rendered as
// "error: <message>". opts are applied first, so they can pick the runtime
// and add middleware.
func New(opts ...unihttp.Option) *unihttp.Server {
	opts = append(opts, unihttp.Plugins(plugins.ErrorHandler(RenderError)))
	return unihttp.New(Handler(), opts...)
}

// RenderError is the plugins.ErrorFunc expected by Run.
func RenderError(_ fetch.Request, err error) (*fetch.Response, error) {
	return fetch.Text(http.StatusInternalServerError, "error: "+err.Error()), nil
}

// Handler is the reference application. Each path exercises one part of the
// request or response contract.
func Handler() fetch.Handler {
	native := bridge.ToStandard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Native", "1")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("native " + r.Method + " " + r.URL.Path))
	}))

	return fetch.HandlerFunc(func(req fetch.Request) (*fetch.Response, error) {
		switch req.ParsedURL().Pathname() {
		case "/headers":
			h := http.Header{}
			req.Headers().Range(func(name, value string) bool {
				h.Add("x-req-"+name, value)
				return true
			})
			return fetch.JSONResponse(req.Headers(), &fetch.ResponseInit{Header: h})
		case "/body/binary":
			data, err := req.Bytes()
			if err != nil {
				return nil, err
			}
			return fetch.NewResponse(data, &fetch.ResponseInit{
				Header: http.Header{"Content-Type": {"application/octet-stream"}},
			}), nil
		case "/error":
			return nil, ErrTest
		case "/text":
			return fetch.Text(http.StatusOK, "hello"), nil
		case "/json":
			return fetch.JSONResponse(map[string]any{"ok": true, "method": req.Method()}, nil)
		case "/stream":
			return fetch.NewResponse(fetch.StreamFunc(func(w fetch.StreamWriter) error {
				for _, chunk := range []string{"a", "b", "c"} {
					if _, err := w.Write([]byte(chunk)); err != nil {
						return err
					}
					if err := w.Flush(); err != nil {
						return err
					}
				}
				return nil
			}), &fetch.ResponseInit{Header: http.Header{"Content-Type": {"text/plain"}}}), nil
		case "/set-cookie":
			return fetch.NewResponse(nil, &fetch.ResponseInit{
				Status: http.StatusNoContent,
				Header: http.Header{"Set-Cookie": {"a=1", "b=2"}},
			}), nil
		case "/native":
			return native.ServeFetch(req)
		case "/runtime":
			return fetch.Text(http.StatusOK, string(req.Runtime().Name)), nil
		case "/ip":
			return fetch.Text(http.StatusOK, req.IP()), nil
		}
		return fetch.Text(http.StatusNotFound, http.StatusText(http.StatusNotFound)), nil
	})
}
