// Package config loads the configuration of the unihttp command from a file,
// a .env file, UNIHTTP_* environment variables and flags, in increasing order
// of precedence.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/unihttp/unihttp-go/fetch"
)

// EnvPrefix prefixes environment variables, such as UNIHTTP_ADDR or
// UNIHTTP_LOG_LEVEL.
const EnvPrefix = "UNIHTTP"

type Config struct {
	Name            string        `mapstructure:"name"`
	Addr            string        `mapstructure:"addr"`
	Runtime         string        `mapstructure:"runtime"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// MaxBodySize is a human readable size such as "10MB". Empty or "0"
	// means unlimited. See MaxBodyBytes.
	MaxBodySize string `mapstructure:"max_body_size"`

	Log struct {
		Level       string `mapstructure:"level"`
		Development bool   `mapstructure:"development"`
	} `mapstructure:"log"`

	Tracing struct {
		Enabled bool `mapstructure:"enabled"`
		Pretty  bool `mapstructure:"pretty"`
	} `mapstructure:"tracing"`

	Metrics struct {
		Enabled bool   `mapstructure:"enabled"`
		Path    string `mapstructure:"path"`
	} `mapstructure:"metrics"`

	RateLimit struct {
		RPS   float64 `mapstructure:"rps"`
		Burst int     `mapstructure:"burst"`
	} `mapstructure:"rate_limit"`

	TLS struct {
		Cert string `mapstructure:"cert"`
		Key  string `mapstructure:"key"`
	} `mapstructure:"tls"`

	// Wasm configures an optional http-wasm guest run before the handler.
	Wasm struct {
		Guest  string `mapstructure:"guest"`
		Config string `mapstructure:"config"`
	} `mapstructure:"wasm"`

	MaxBodyBytes int64 `mapstructure:"-"`
}

// SetDefaults registers every key, which also lets AutomaticEnv find them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("name", "unihttp")
	v.SetDefault("addr", ":8080")
	v.SetDefault("runtime", string(fetch.RuntimeNetHTTP))
	v.SetDefault("shutdown_timeout", 10*time.Second)
	v.SetDefault("max_body_size", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.pretty", false)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("rate_limit.rps", 0)
	v.SetDefault("rate_limit.burst", 0)
	v.SetDefault("tls.cert", "")
	v.SetDefault("tls.key", "")
	v.SetDefault("wasm.guest", "")
	v.SetDefault("wasm.config", "")
}

// Load reads configuration into a Config. path is an optional config file of
// any format viper supports, and envFile an optional .env file; a missing
// envFile is ignored. Flags should be bound to v before calling Load.
func Load(v *viper.Viper, path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: error loading %s: %w", envFile, err)
		}
	}

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: error reading %s: %w", path, err)
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	switch fetch.RuntimeName(c.Runtime) {
	case fetch.RuntimeNetHTTP, fetch.RuntimeFastHTTP, fetch.RuntimeWorker:
	default:
		return fmt.Errorf("config: unknown runtime %q", c.Runtime)
	}

	if s := strings.TrimSpace(c.MaxBodySize); s != "" {
		n, err := humanize.ParseBytes(s)
		if err != nil {
			return fmt.Errorf("config: invalid max_body_size: %w", err)
		}
		c.MaxBodyBytes = int64(n)
	}

	if (c.TLS.Cert == "") != (c.TLS.Key == "") {
		return errors.New("config: tls.cert and tls.key must be set together")
	}
	if c.RateLimit.RPS < 0 {
		return errors.New("config: rate_limit.rps must not be negative")
	}
	return nil
}

// Logger builds the process logger.
func (c *Config) Logger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("config: invalid log.level: %w", err)
	}
	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

// TLSConfig returns nil when TLS isn't configured.
func (c *Config) TLSConfig() (*tls.Config, error) {
	if c.TLS.Cert == "" {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.TLS.Cert, c.TLS.Key)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil
}

// WasmGuest reads the configured guest binary, or returns nil.
func (c *Config) WasmGuest() ([]byte, error) {
	if c.Wasm.Guest == "" {
		return nil, nil
	}
	b, err := os.ReadFile(c.Wasm.Guest)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return b, nil
}
