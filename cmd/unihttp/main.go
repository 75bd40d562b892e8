// Command unihttp serves a demo application on any supported runtime.
//
//	unihttp serve --runtime fasthttp --addr :8080
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "unihttp",
		Short:         "Run fetch-style HTTP handlers on net/http, fasthttp or the worker runtime",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(viper.New()))
	return root
}

func newServeCmd(v *viper.Viper) *cobra.Command {
	var configPath, envFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the demo application until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), v, configPath, envFile)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "config file (yaml, json or toml)")
	flags.StringVar(&envFile, "env-file", ".env", "dotenv file loaded into the environment")
	flags.String("addr", ":8080", "listen address")
	flags.String("runtime", "nethttp", "runtime: nethttp, fasthttp or worker")
	flags.String("name", "unihttp", "server name reported in traces")
	flags.String("max-body-size", "", "maximum request body size, such as 10MB")
	flags.String("log-level", "info", "log level")
	flags.Bool("tracing", false, "export spans to stdout")
	flags.String("wasm-guest", "", "http-wasm guest run before the application")

	for key, flag := range map[string]string{
		"addr":            "addr",
		"runtime":         "runtime",
		"name":            "name",
		"max_body_size":   "max-body-size",
		"log.level":       "log-level",
		"tracing.enabled": "tracing",
		"wasm.guest":      "wasm-guest",
	} {
		_ = v.BindPFlag(key, flags.Lookup(flag))
	}
	return cmd
}
