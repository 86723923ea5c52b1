// Package config loads the service settings from an optional .env file and
// the process environment. The environment wins over the file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Host       string `mapstructure:"NOTEBOOK_HOST"`
	Port       int    `mapstructure:"NOTEBOOK_PORT"`
	ServerAddr string `mapstructure:"NOTEBOOK_ADDR"`
	Store      string `mapstructure:"NOTEBOOK_STORE"`

	PostgresHost     string `mapstructure:"POSTGRES_HOST"`
	PostgresPort     string `mapstructure:"POSTGRES_PORT"`
	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PASSWORD"`
	PostgresName     string `mapstructure:"POSTGRES_NAME"`

	// RedisAddr selects the Redis event bus; empty keeps events in process.
	RedisAddr string `mapstructure:"REDIS_ADDR"`

	ConsulEnabled bool   `mapstructure:"CONSUL_ENABLED"`
	ServiceID     string `mapstructure:"SERVICE_ID"`
	ServiceName   string `mapstructure:"SERVICE_NAME"`

	KernelCommand  string        `mapstructure:"KERNEL_COMMAND"`
	KernelTimeout  time.Duration `mapstructure:"KERNEL_TIMEOUT"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	UserCacheSize  int           `mapstructure:"USER_CACHE_SIZE"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	LogJSON  bool   `mapstructure:"LOG_JSON"`
}

func defaults() map[string]any {
	return map[string]any{
		"NOTEBOOK_HOST":     "localhost",
		"NOTEBOOK_PORT":     9096,
		"NOTEBOOK_ADDR":     "localhost:9096",
		"NOTEBOOK_STORE":    StorePostgres,
		"POSTGRES_HOST":     "localhost",
		"POSTGRES_PORT":     "5432",
		"POSTGRES_USER":     "postgres",
		"POSTGRES_PASSWORD": "",
		"POSTGRES_NAME":     "notebooks",
		"REDIS_ADDR":        "",
		"CONSUL_ENABLED":    false,
		"SERVICE_ID":        "notebook-grpc",
		"SERVICE_NAME":      "notebook-grpc-service",
		"KERNEL_COMMAND":    "python3 -",
		"KERNEL_TIMEOUT":    "10s",
		"REQUEST_TIMEOUT":   "30s",
		"USER_CACHE_SIZE":   256,
		"LOG_LEVEL":         "info",
		"LOG_JSON":          false,
	}
}

// Load reads envFile when it exists (a leading ~ is expanded), then the
// process environment. An empty envFile skips the file.
func Load(envFile string) (*Config, error) {
	raw := defaults()

	if envFile != "" {
		path, err := homedir.Expand(envFile)
		if err != nil {
			return nil, fmt.Errorf("expand %s: %w", envFile, err)
		}
		fileVals, err := godotenv.Read(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		for k, v := range fileVals {
			if _, known := raw[k]; known {
				raw[k] = v
			}
		}
	}
	for k := range raw {
		if v, ok := os.LookupEnv(k); ok {
			raw[k] = v
		}
	}

	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		Result:           &cfg,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var result *multierror.Error
	if c.Port <= 0 || c.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("NOTEBOOK_PORT %d out of range", c.Port))
	}
	if c.Store != StoreMemory && c.Store != StorePostgres {
		result = multierror.Append(result, fmt.Errorf("NOTEBOOK_STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store))
	}
	if c.KernelTimeout <= 0 {
		result = multierror.Append(result, errors.New("KERNEL_TIMEOUT must be positive"))
	}
	if c.RequestTimeout <= 0 {
		result = multierror.Append(result, errors.New("REQUEST_TIMEOUT must be positive"))
	}
	if c.UserCacheSize <= 0 {
		result = multierror.Append(result, errors.New("USER_CACHE_SIZE must be positive"))
	}
	return result.ErrorOrNil()
}

func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Logger builds the root logger of a binary.
func (c *Config) Logger(name string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       name,
		Level:      hclog.LevelFromString(c.LogLevel),
		JSONFormat: c.LogJSON,
	})
}
