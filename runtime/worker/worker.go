// Package worker serves fetch handlers with an edge-worker model: each call
// receives one FetchEvent and produces one response.
//
// Events arrive in-process through Dispatch, over HTTP through ServeHTTP for
// local development, or as JSON envelopes through HandleEnvelope, the shape
// edge hosts use to pass requests into a sandbox.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unihttp/unihttp-go/fetch"
	"github.com/unihttp/unihttp-go/runtime/nethttp"
)

var errNoResponse = errors.New("worker: handler returned no response")

// Option configures New.
type Option func(*options)

type options struct {
	logger *zap.Logger
	ctx    context.Context
}

// WithLogger logs handler errors and failed deferred work. Defaults to
// zap.NewNop.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithContext sets the context given to deferred work. Defaults to
// context.Background.
func WithContext(ctx context.Context) Option {
	return func(o *options) {
		o.ctx = ctx
	}
}

// Worker dispatches fetch events to a handler.
type Worker struct {
	h      fetch.Handler
	logger *zap.Logger
	ctx    context.Context
	group  errgroup.Group
}

// New returns a worker serving h.
func New(h fetch.Handler, opts ...Option) *Worker {
	o := options{logger: zap.NewNop(), ctx: context.Background()}
	for _, opt := range opts {
		opt(&o)
	}
	return &Worker{h: h, logger: o.logger, ctx: o.ctx}
}

// Dispatch runs the handler for ev. The request signal stops following the
// event once the handler returned.
func (w *Worker) Dispatch(ev *FetchEvent) (*fetch.Response, error) {
	req, resp, err := w.dispatch(ev, nil)
	if req != nil {
		req.complete()
	}
	return resp, err
}

// dispatch runs the handler. The caller completes the returned request once
// the response was delivered.
func (w *Worker) dispatch(ev *FetchEvent, raw []string) (*request, *fetch.Response, error) {
	if ev == nil || ev.Request == nil {
		return nil, nil, fmt.Errorf("worker: %w", fetch.ErrNoNativeContext)
	}
	if ev.waitUntil == nil {
		ev.waitUntil = w.waitUntil
	}

	req := newRequest(ev, raw)
	resp, err := w.h.ServeFetch(req)
	if err == nil && resp == nil {
		err = errNoResponse
	}
	return req, resp, err
}

func (w *Worker) waitUntil(fn func(context.Context) error) {
	w.group.Go(func() error {
		if err := fn(w.ctx); err != nil {
			w.logger.Warn("deferred work failed", zap.Error(err))
			return err
		}
		return nil
	})
}

// Wait blocks until all deferred work registered so far finished and returns
// the first error.
func (w *Worker) Wait() error {
	return w.group.Wait()
}

// ServeHTTP implements http.Handler, turning each native request into a
// FetchEvent. The request signal follows the client until the body was
// written.
func (w *Worker) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	req, resp, err := w.dispatch(&FetchEvent{Request: r, RemoteAddr: r.RemoteAddr}, nil)
	if req != nil {
		defer req.complete()
	}
	if err != nil {
		w.logger.Error("handler failed", zap.String("url", r.URL.String()), zap.Error(err))
		http.Error(rw, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if resp.IsHandled() {
		return
	}
	if err = nethttp.WriteResponse(r.Context(), rw, resp); err != nil {
		w.logger.Debug("response write aborted", zap.String("url", r.URL.String()), zap.Error(err))
	}
}

// Envelope is a request serialized by an edge host. RawHeaders alternates
// names and values in wire order.
type Envelope struct {
	Method     string   `json:"method"`
	URL        string   `json:"url"`
	RawHeaders []string `json:"rawHeaders"`
	Body       []byte   `json:"body,omitempty"`
	RemoteAddr string   `json:"remoteAddr,omitempty"`
}

// ResponseEnvelope is the serialized response of HandleEnvelope.
type ResponseEnvelope struct {
	Status     int         `json:"status"`
	StatusText string      `json:"statusText"`
	Headers    [][2]string `json:"headers"`
	Body       []byte      `json:"body,omitempty"`
}

// HandleEnvelope decodes an Envelope from data, dispatches it and encodes
// the response as a ResponseEnvelope. Bodies are base64 in JSON.
func (w *Worker) HandleEnvelope(ctx context.Context, data []byte) ([]byte, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("worker: invalid envelope: %w", err)
	}
	if env.Method == "" {
		env.Method = http.MethodGet
	}

	var body io.Reader
	if len(env.Body) > 0 {
		body = bytes.NewReader(env.Body)
	}
	r, err := http.NewRequestWithContext(ctx, env.Method, env.URL, body)
	if err != nil {
		return nil, fmt.Errorf("worker: invalid envelope: %w", err)
	}
	r.RemoteAddr = env.RemoteAddr

	req, resp, err := w.dispatch(&FetchEvent{Request: r, RemoteAddr: env.RemoteAddr}, env.RawHeaders)
	if req != nil {
		defer req.complete()
	}
	if err != nil {
		return nil, err
	}

	out, err := encodeResponse(resp)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

// encodeResponse buffers the extracted body of resp.
func encodeResponse(resp *fetch.Response) (*ResponseEnvelope, error) {
	x, err := resp.Extract()
	if err != nil {
		return nil, err
	}
	out := &ResponseEnvelope{Status: x.Status, StatusText: x.StatusText, Headers: x.Headers}

	switch b := x.Body.(type) {
	case string:
		out.Body = []byte(b)
	case []byte:
		out.Body = b
	case fetch.StreamFunc:
		var buf bufferWriter
		if err = b(&buf); err != nil {
			return nil, err
		}
		out.Body = buf.Bytes()
	case io.Reader:
		if out.Body, err = io.ReadAll(b); err != nil {
			return nil, err
		}
		if c, ok := b.(io.Closer); ok {
			_ = c.Close()
		}
	}
	return out, nil
}

type bufferWriter struct {
	bytes.Buffer
}

func (*bufferWriter) Flush() error { return nil }
