package unihttp

import (
	"crypto/tls"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/unihttp/unihttp-go/fetch"
)

// Option is configuration for New.
type Option func(*Server)

// Plugin runs once while New builds the server, after all options applied.
// It may read and change Server.Middleware before the chain is composed.
type Plugin func(*Server)

// Runtime selects the native server. Defaults to fetch.RuntimeNetHTTP.
// fetch.RuntimeStandalone isn't servable and is rejected by Serve.
func Runtime(name fetch.RuntimeName) Option {
	return func(s *Server) {
		s.runtime = name
	}
}

// Middleware appends middleware to the chain, outermost first.
func Middleware(mws ...fetch.Middleware) Option {
	return func(s *Server) {
		s.Middleware = append(s.Middleware, mws...)
	}
}

// Plugins appends plugins, which run in order.
func Plugins(plugins ...Plugin) Option {
	return func(s *Server) {
		s.plugins = append(s.plugins, plugins...)
	}
}

// Logger sets the logger of the server and its runtime. Defaults to
// zap.NewNop.
func Logger(logger *zap.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// TracerProvider enables a span per middleware and one for the handler.
// Defaults to no tracing.
func TracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) {
		s.tracerProvider = tp
	}
}

// Name is reported in spans and as the fasthttp server name. Defaults to
// "unihttp".
func Name(name string) Option {
	return func(s *Server) {
		s.Name = name
	}
}

// Addr is the address ListenAndServe binds. Defaults to ":8080".
func Addr(addr string) Option {
	return func(s *Server) {
		s.addr = addr
	}
}

// TLS serves HTTPS with cfg, which must carry certificates.
func TLS(cfg *tls.Config) Option {
	return func(s *Server) {
		s.tls = cfg
	}
}

// ShutdownTimeout bounds graceful shutdown. Defaults to 10 seconds.
func ShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// MaxBodySize limits how many request body bytes the native server reads.
// Zero means the runtime default.
func MaxBodySize(n int64) Option {
	return func(s *Server) {
		s.maxBodySize = n
	}
}
