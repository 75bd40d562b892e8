package plugins

import (
	"net/http"
	"strconv"

	"github.com/unihttp/unihttp-go"
	"github.com/unihttp/unihttp-go/fetch"
)

// MaxBodySize appends middleware that answers 413 when the declared
// content-length exceeds n. Use unihttp.MaxBodySize to also bound bodies of
// unknown length.
func MaxBodySize(n int64) unihttp.Plugin {
	mw := func(req fetch.Request, next fetch.Next) (*fetch.Response, error) {
		if cl := req.Headers().Get("content-length"); cl != "" {
			if size, err := strconv.ParseInt(cl, 10, 64); err == nil && size > n {
				return fetch.Text(http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge)), nil
			}
		}
		return next(req)
	}
	return func(s *unihttp.Server) {
		s.Middleware = append(s.Middleware, fetch.Named("max-body-size", mw))
	}
}
