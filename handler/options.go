package handler

import (
	"context"

	"github.com/tetratelabs/wazero"

	"github.com/unihttp/unihttp-go/api"
)

// Option configures NewMiddleware.
type Option func(*options)

// NewRuntime creates the wazero runtime of a middleware. The middleware owns
// the runtime and closes it in Close.
type NewRuntime func(context.Context) (wazero.Runtime, error)

type options struct {
	newRuntime   NewRuntime
	guestConfig  []byte
	moduleConfig wazero.ModuleConfig
	logger       api.Logger
}

func defaultOptions() *options {
	return &options{
		newRuntime:   DefaultRuntime,
		moduleConfig: wazero.NewModuleConfig(),
		logger:       api.NoopLogger{},
	}
}

// Runtime replaces DefaultRuntime, for example to share a compilation cache
// between middlewares.
func Runtime(newRuntime NewRuntime) Option {
	return func(o *options) { o.newRuntime = newRuntime }
}

// GuestConfig is returned to guests calling "get_config", usually the raw
// plugin configuration from the server config file.
func GuestConfig(config []byte) Option {
	return func(o *options) { o.guestConfig = config }
}

// ModuleConfig is used for every pooled guest instance. Its name is replaced
// per instance.
func ModuleConfig(config wazero.ModuleConfig) Option {
	return func(o *options) { o.moduleConfig = config }
}

// Logger receives guest "log" calls, see ZapLogger. Guests log nothing by
// default.
func Logger(logger api.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// DefaultRuntime returns a wazero runtime with the default configuration.
func DefaultRuntime(ctx context.Context) (wazero.Runtime, error) {
	return wazero.NewRuntime(ctx), nil
}
