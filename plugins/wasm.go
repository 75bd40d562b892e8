package plugins

import (
	"github.com/unihttp/unihttp-go"
	"github.com/unihttp/unihttp-go/fetch"
	"github.com/unihttp/unihttp-go/handler"
)

// Wasm appends the http-wasm guest run by mw. The server doesn't own mw:
// close it after the server stops.
func Wasm(mw *handler.Middleware) unihttp.Plugin {
	return func(s *unihttp.Server) {
		s.Middleware = append(s.Middleware, fetch.Named("wasm", mw.Handle))
	}
}
