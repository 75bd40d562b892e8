package nethttp

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/unihttp/unihttp-go/fetch"
)

var errNoResponse = errors.New("nethttp: handler returned no response")

// Option configures Handler.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	waitUntil func(func(context.Context) error)
}

// WithLogger logs handler errors and aborted writes. Defaults to zap.NewNop.
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

type handler struct {
	h fetch.Handler
	options
}

// Handler returns an http.Handler that serves h.
//
// When the native request already carries a fetch request, because a fetch
// handler bridged into a native router, that request is reused instead of
// adapting the native one again. The response is always written to the
// writer passed to ServeHTTP.
//
// An error from h results in a 500 response and is logged.
func Handler(h fetch.Handler, opts ...Option) http.Handler {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return &handler{h: h, options: o}
}

// Unwrap returns the fetch handler served by h, or nil.
func Unwrap(h http.Handler) fetch.Handler {
	if hh, ok := h.(*handler); ok {
		return hh.h
	}
	return nil
}

// ServeHTTP implements http.Handler
func (s *handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, reused := RequestFrom(r.Context())
	if !reused {
		req = NewRequest(w, r)
		req.waitUntil = s.waitUntil
		defer req.complete()
	}

	// The chain may still hand the pair to a native handler, so the pair is
	// claimed only once the response is known.
	resp, err := s.h.ServeFetch(req)
	if err == nil && resp == nil {
		err = errNoResponse
	}
	if err != nil {
		s.logger.Error("handler failed",
			zap.String("method", r.Method),
			zap.String("url", req.URL()),
			zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if resp.IsHandled() {
		return
	}
	if !reused && !req.pair.Claim() {
		s.logger.Warn("response dropped: native writer already used", zap.String("url", req.URL()))
		return
	}
	if err = WriteResponse(r.Context(), w, resp); err != nil {
		// The client is usually gone, so there is nobody to report to.
		s.logger.Debug("response write aborted", zap.String("url", req.URL()), zap.Error(err))
	}
}
