// Package unihttp serves one fetch handler, wrapped in middleware, on any of
// the supported runtimes.
//
// The runtime is chosen once with the Runtime option and every request is
// adapted by that runtime only:
//
//	srv := unihttp.New(app,
//		unihttp.Runtime(fetch.RuntimeFastHTTP),
//		unihttp.Plugins(plugins.ErrorHandler(nil)),
//	)
//	err := srv.ListenAndServe(ctx)
package unihttp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	fh "github.com/valyala/fasthttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/unihttp/unihttp-go/fetch"
	"github.com/unihttp/unihttp-go/runtime/fasthttp"
	"github.com/unihttp/unihttp-go/runtime/nethttp"
	"github.com/unihttp/unihttp-go/runtime/worker"
)

// TracerName is the instrumentation name of spans started by a Server.
const TracerName = "github.com/unihttp/unihttp-go"

// ErrUnsupportedRuntime is returned by Serve for a runtime that can't listen.
var ErrUnsupportedRuntime = errors.New("unihttp: unsupported runtime")

// Server composes middleware around a fetch handler and serves it.
type Server struct {
	// Name identifies the server in spans and logs.
	Name string

	// Middleware is the chain, outermost first. Plugins may change it; it is
	// composed once when New returns.
	Middleware []fetch.Middleware

	Logger *zap.Logger

	composed fetch.Handler
	plugins  []Plugin

	runtime         fetch.RuntimeName
	tracerProvider  trace.TracerProvider
	addr            string
	tls             *tls.Config
	shutdownTimeout time.Duration
	maxBodySize     int64

	deferred errgroup.Group
}

var _ fetch.Handler = (*Server)(nil)

// New returns a server for h.
func New(h fetch.Handler, opts ...Option) *Server {
	s := &Server{
		Name:            "unihttp",
		Logger:          zap.NewNop(),
		runtime:         fetch.RuntimeNetHTTP,
		addr:            ":8080",
		shutdownTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, plugin := range s.plugins {
		plugin(s)
	}

	copts := []fetch.ComposeOption{fetch.WithServerName(s.Name)}
	if s.tracerProvider != nil {
		copts = append(copts, fetch.WithTracer(s.tracerProvider.Tracer(TracerName)))
	}
	s.composed = fetch.Compose(h, s.Middleware, copts...)
	return s
}

// RuntimeName returns the runtime the server was configured with.
func (s *Server) RuntimeName() fetch.RuntimeName {
	return s.runtime
}

// Fetch runs req through the middleware chain and the handler.
func (s *Server) Fetch(req fetch.Request) (*fetch.Response, error) {
	return s.composed.ServeFetch(req)
}

// ServeFetch implements fetch.Handler
func (s *Server) ServeFetch(req fetch.Request) (*fetch.Response, error) {
	return s.composed.ServeFetch(req)
}

// waitUntil tracks deferred work, so Serve returns after it finished.
func (s *Server) waitUntil(fn func(context.Context) error) {
	s.deferred.Go(func() error {
		if err := fn(context.Background()); err != nil {
			s.Logger.Warn("deferred work failed", zap.Error(err))
		}
		return nil
	})
}

// nativeServer is the part of a runtime's server Serve drives.
type nativeServer struct {
	serve    func(net.Listener) error
	shutdown func(context.Context) error
}

func (s *Server) native() (*nativeServer, error) {
	switch s.runtime {
	case fetch.RuntimeNetHTTP:
		h := nethttp.Handler(s, nethttp.WithLogger(s.Logger), nethttp.WithWaitUntil(s.waitUntil))
		return s.stdServer(s.limitBody(h)), nil
	case fetch.RuntimeWorker:
		w := worker.New(s, worker.WithLogger(s.Logger))
		ns := s.stdServer(s.limitBody(w))
		shutdown := ns.shutdown
		ns.shutdown = func(ctx context.Context) error {
			err := shutdown(ctx)
			if werr := w.Wait(); werr != nil {
				s.Logger.Debug("worker deferred work failed", zap.Error(werr))
			}
			return err
		}
		return ns, nil
	case fetch.RuntimeFastHTTP:
		srv := &fh.Server{
			Handler: fasthttp.Handler(s,
				fasthttp.WithLogger(s.Logger),
				fasthttp.WithWaitUntil(s.waitUntil)),
			Name:               s.Name,
			MaxRequestBodySize: int(s.maxBodySize),
			Logger:             fasthttpLogger{s.Logger.Sugar()},
		}
		return &nativeServer{serve: srv.Serve, shutdown: srv.ShutdownWithContext}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedRuntime, s.runtime)
}

func (s *Server) stdServer(h http.Handler) *nativeServer {
	srv := &http.Server{
		Handler:  h,
		ErrorLog: zap.NewStdLog(s.Logger),
	}
	serve := func(ln net.Listener) error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
	return &nativeServer{serve: serve, shutdown: srv.Shutdown}
}

func (s *Server) limitBody(h http.Handler) http.Handler {
	if s.maxBodySize <= 0 {
		return h
	}
	return http.MaxBytesHandler(h, s.maxBodySize)
}

// fasthttpLogger adapts zap to fasthttp.Logger.
type fasthttpLogger struct {
	*zap.SugaredLogger
}

// Printf implements fasthttp.Logger
func (l fasthttpLogger) Printf(format string, args ...any) {
	l.Debugf(format, args...)
}

// Serve serves on ln until ctx is done, then shuts down gracefully within
// the shutdown timeout and waits for deferred work.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ns, err := s.native()
	if err != nil {
		return err
	}
	if s.tls != nil {
		ln = tls.NewListener(ln, s.tls)
	}

	s.Logger.Info("serving",
		zap.String("name", s.Name),
		zap.String("runtime", string(s.runtime)),
		zap.String("addr", ln.Addr().String()))

	// Shutdown also runs when serving stops on its own.
	sctx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(sctx)
	g.Go(func() error {
		defer stop()
		return ns.serve(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
		defer cancel()
		return ns.shutdown(tctx)
	})

	err = g.Wait()
	_ = s.deferred.Wait()
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}
