package fasthttp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"net/http"

	fh "github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/unihttp/unihttp-go/fetch"
)

var errNoResponse = errors.New("fasthttp: handler returned no response")

// Option configures Handler.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	waitUntil func(func(context.Context) error)
}

// WithLogger logs handler errors and aborted streams. Defaults to
// zap.NewNop.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithWaitUntil overrides how fetch.Request.WaitUntil runs deferred work.
// Defaults to a detached goroutine.
func WithWaitUntil(fn func(func(context.Context) error)) Option {
	return func(o *options) {
		o.waitUntil = fn
	}
}

// Handler returns a fasthttp.RequestHandler that serves h. An error from h
// results in a 500 response and is logged.
func Handler(h fetch.Handler, opts ...Option) fh.RequestHandler {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	return func(ctx *fh.RequestCtx) {
		req := NewRequest(ctx)
		req.waitUntil = o.waitUntil
		defer req.release()

		resp, err := h.ServeFetch(req)
		if err == nil && resp == nil {
			err = errNoResponse
		}
		if err != nil {
			o.logger.Error("handler failed",
				zap.String("method", req.Method()),
				zap.String("url", req.URL()),
				zap.Error(err))
			ctx.Error(http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		if resp.IsHandled() {
			return
		}
		if err = WriteResponse(ctx, resp, o.logger); err != nil {
			o.logger.Error("response failed", zap.String("url", req.URL()), zap.Error(err))
			ctx.Error(http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
	}
}

// WriteResponse sets resp on the native response. Headers of resp replace
// native headers of the same name.
//
// fasthttp writes the body after the handler returns. Reader bodies use
// SetBodyStream, which closes them when done. StreamFunc bodies run in
// SetBodyStreamWriter; their errors, typically a gone client, are logged.
func WriteResponse(ctx *fh.RequestCtx, resp *fetch.Response, logger *zap.Logger) error {
	x, err := resp.Extract()
	if err != nil {
		return err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	status := x.Status
	if status == 0 {
		status = http.StatusOK
	}
	ctx.SetStatusCode(status)

	h := &ctx.Response.Header
	seen := make(map[string]struct{}, len(x.Headers))
	for _, kv := range x.Headers {
		if _, ok := seen[kv[0]]; !ok {
			seen[kv[0]] = struct{}{}
			h.Del(kv[0])
		}
		h.Add(kv[0], kv[1])
	}

	switch b := x.Body.(type) {
	case nil:
		ctx.Response.ResetBody()
	case string:
		ctx.Response.SetBodyString(b)
	case []byte:
		ctx.Response.SetBody(b)
	case fetch.StreamFunc:
		url := ctx.URI().String()
		ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
			if err := b(w); err != nil {
				logger.Debug("response stream aborted", zap.String("url", url), zap.Error(err))
			}
		})
	case io.Reader:
		ctx.SetBodyStream(b, int(x.ContentLength))
	}
	return nil
}
