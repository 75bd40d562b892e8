package fetch

import (
	"context"
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names and attribute keys recorded by Compose.
const (
	SpanMiddleware = "unihttp.middleware"
	SpanFetch      = "unihttp.fetch"

	AttrMethod         = attribute.Key("http.request.method")
	AttrURL            = attribute.Key("url.full")
	AttrServer         = attribute.Key("unihttp.server")
	AttrMiddlewareIdx  = attribute.Key("unihttp.middleware.index")
	AttrMiddlewareName = attribute.Key("unihttp.middleware.name")
)

// Next continues the chain with req. Middleware usually passes the request
// it was given, or a Rewrite of it.
type Next func(req Request) (*Response, error)

// Middleware observes, short-circuits or rewrites a request and the eventual
// response. It runs before later middleware on the way in and after them on
// the way out.
type Middleware func(req Request, next Next) (*Response, error)

// ComposeOption configures Compose.
type ComposeOption func(*composeOptions)

type composeOptions struct {
	tracer trace.Tracer
	server string
}

// WithTracer records a span around each middleware and the final handler.
func WithTracer(tracer trace.Tracer) ComposeOption {
	return func(o *composeOptions) {
		o.tracer = tracer
	}
}

// WithServerName sets the AttrServer attribute of spans.
func WithServerName(name string) ComposeOption {
	return func(o *composeOptions) {
		o.server = name
	}
}

// Compose returns a handler that runs mws in order around final. The chain is
// built per request, so the result is safe for concurrent use when each
// middleware is.
//
// Without middleware and without a tracer, Compose returns final.
func Compose(final Handler, mws []Middleware, opts ...ComposeOption) Handler {
	var o composeOptions
	for _, opt := range opts {
		opt(&o)
	}
	if len(mws) == 0 && o.tracer == nil {
		return final
	}

	c := &chain{
		final:  final,
		mws:    append([]Middleware(nil), mws...),
		names:  make([]string, len(mws)),
		tracer: o.tracer,
		server: o.server,
	}
	for i, mw := range mws {
		c.names[i] = funcName(mw)
	}
	return c
}

// Named sets the span name attribute of mw, which otherwise is the Go
// function name.
func Named(name string, mw Middleware) Middleware {
	return func(req Request, next Next) (*Response, error) {
		trace.SpanFromContext(req.Context()).SetAttributes(AttrMiddlewareName.String(name))
		return mw(req, next)
	}
}

type chain struct {
	final  Handler
	mws    []Middleware
	names  []string
	tracer trace.Tracer
	server string
}

// ServeFetch implements Handler.
func (c *chain) ServeFetch(req Request) (*Response, error) {
	return c.dispatch(req.Context(), req, 0)
}

// dispatch runs the chain from index i. ctx carries the span of the
// enclosing stage.
func (c *chain) dispatch(ctx context.Context, req Request, i int) (*Response, error) {
	if i == len(c.mws) {
		if c.tracer == nil {
			return c.final.ServeFetch(req)
		}
		return c.traced(ctx, req, SpanFetch, c.requestAttrs(req), func(ctx context.Context, req Request) (*Response, error) {
			return c.final.ServeFetch(req)
		})
	}

	mw := c.mws[i]
	run := func(ctx context.Context, req Request) (*Response, error) {
		return mw(req, func(next Request) (*Response, error) {
			return c.dispatch(ctx, next, i+1)
		})
	}
	if c.tracer == nil {
		return run(ctx, req)
	}
	attrs := append(c.requestAttrs(req), AttrMiddlewareIdx.Int(i), AttrMiddlewareName.String(c.names[i]))
	return c.traced(ctx, req, SpanMiddleware, attrs, run)
}

func (c *chain) requestAttrs(req Request) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrMethod.String(req.Method()),
		AttrURL.String(req.URL()),
		AttrServer.String(c.server),
	}
}

// traced runs fn inside a span. The span context reaches fn through the
// request context. Errors and panics are recorded and passed on unchanged.
func (c *chain) traced(ctx context.Context, req Request, name string, attrs []attribute.KeyValue, fn func(context.Context, Request) (*Response, error)) (resp *Response, err error) {
	ctx, span := c.tracer.Start(ctx, name, trace.WithAttributes(attrs...))

	defer func() {
		if p := recover(); p != nil {
			span.RecordError(fmt.Errorf("panic: %v", p))
			span.SetStatus(codes.Error, "panic")
			span.End()
			panic(p)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return fn(ctx, Rewrite(req, RewriteOptions{Context: ctx}))
}

func funcName(fn any) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return "anonymous"
	}
	name := f.Name()
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}
