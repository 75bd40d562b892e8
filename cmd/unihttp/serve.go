package main

import (
	"context"
	"errors"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/unihttp/unihttp-go"
	"github.com/unihttp/unihttp-go/fetch"
	"github.com/unihttp/unihttp-go/handler"
	"github.com/unihttp/unihttp-go/internal/config"
	"github.com/unihttp/unihttp-go/plugins"
)

func serve(ctx context.Context, v *viper.Viper, configPath, envFile string) (err error) {
	cfg, err := config.Load(v, configPath, envFile)
	if err != nil {
		return err
	}

	logger, err := cfg.Logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	opts := []unihttp.Option{
		unihttp.Name(cfg.Name),
		unihttp.Addr(cfg.Addr),
		unihttp.Runtime(fetch.RuntimeName(cfg.Runtime)),
		unihttp.Logger(logger),
		unihttp.ShutdownTimeout(cfg.ShutdownTimeout),
		unihttp.MaxBodySize(cfg.MaxBodyBytes),
	}

	tlsCfg, err := cfg.TLSConfig()
	if err != nil {
		return err
	}
	if tlsCfg != nil {
		opts = append(opts, unihttp.TLS(tlsCfg))
	}

	if cfg.Tracing.Enabled {
		tp, tpErr := newTracerProvider(cfg.Tracing.Pretty)
		if tpErr != nil {
			return tpErr
		}
		defer func() {
			// The serve context is done by now.
			err = errors.Join(err, tp.Shutdown(context.WithoutCancel(ctx)))
		}()
		opts = append(opts, unihttp.TracerProvider(tp))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ps := []unihttp.Plugin{
		plugins.ErrorHandler(nil),
		plugins.AccessLog(logger),
	}
	if cfg.Metrics.Enabled {
		ps = append(ps, plugins.Metrics(reg))
	}
	if cfg.RateLimit.RPS > 0 {
		burst := cfg.RateLimit.Burst
		if burst <= 0 {
			burst = 1
		}
		ps = append(ps, plugins.ClientRateLimit(rate.Limit(cfg.RateLimit.RPS), burst))
	}
	if cfg.MaxBodyBytes > 0 {
		ps = append(ps, plugins.MaxBodySize(cfg.MaxBodyBytes))
	}

	guest, err := cfg.WasmGuest()
	if err != nil {
		return err
	}
	if guest != nil {
		mw, err := handler.NewMiddleware(ctx, guest,
			handler.GuestConfig([]byte(cfg.Wasm.Config)),
			handler.Logger(handler.ZapLogger(logger.Named("wasm"))))
		if err != nil {
			return err
		}
		defer mw.Close(context.WithoutCancel(ctx))
		logger.Info("wasm guest loaded", zap.String("path", cfg.Wasm.Guest), zap.Stringer("features", mw.Features()))
		ps = append(ps, plugins.Wasm(mw))
	}
	opts = append(opts, unihttp.Plugins(ps...))

	app := newApp(appConfig{
		metricsPath: cfg.Metrics.Path,
		metrics:     cfg.Metrics.Enabled,
		gatherer:    reg,
	})
	srv := unihttp.New(app, opts...)

	logger.Info("starting",
		zap.String("name", cfg.Name),
		zap.String("runtime", cfg.Runtime),
		zap.String("addr", cfg.Addr),
		zap.Int("pid", os.Getpid()))
	return srv.ListenAndServe(ctx)
}

func newTracerProvider(pretty bool) (*sdktrace.TracerProvider, error) {
	var opts []stdouttrace.Option
	if pretty {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	exp, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, err
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)), nil
}
