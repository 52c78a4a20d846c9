package fluxflow

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/viant/fluxflow/policy"
	"github.com/viant/fluxflow/service/messaging"
	"go.uber.org/multierr"
)

// Repository vendors
const (
	RepositoryMemory = "memory"
	RepositorySQLite = "sqlite"
	RepositoryRedis  = "redis"
)

// Config is a serialisable representation of the engine configuration. It can
// be populated from JSON, YAML or environment variables; zero values inherit DefaultConfig.
type Config struct {
	Driver     DriverConfig     `json:"driver" yaml:"driver" mapstructure:"driver"`
	Pools      PoolsConfig      `json:"pools" yaml:"pools" mapstructure:"pools"`
	Queue      QueueConfig      `json:"queue" yaml:"queue" mapstructure:"queue"`
	Repository RepositoryConfig `json:"repository" yaml:"repository" mapstructure:"repository"`
	Server     ServerConfig     `json:"server" yaml:"server" mapstructure:"server"`
	Log        LogConfig        `json:"log" yaml:"log" mapstructure:"log"`
	Tracing    TracingConfig    `json:"tracing" yaml:"tracing" mapstructure:"tracing"`
	Policy     *policy.Config   `json:"policy,omitempty" yaml:"policy,omitempty" mapstructure:"policy"`
}

// DriverConfig controls retries, pending eviction and exception routing
type DriverConfig struct {
	RetryMaxRetries      int           `json:"retryMaxRetries" yaml:"retryMaxRetries" mapstructure:"retryMaxRetries"`
	RetryInitialInterval time.Duration `json:"retryInitialInterval" yaml:"retryInitialInterval" mapstructure:"retryInitialInterval"`
	RetryMaxInterval     time.Duration `json:"retryMaxInterval" yaml:"retryMaxInterval" mapstructure:"retryMaxInterval"`
	RetryMultiplier      float64       `json:"retryMultiplier" yaml:"retryMultiplier" mapstructure:"retryMultiplier"`
	// PendingTimeout evicts rows held by a filter for longer; zero keeps them forever
	PendingTimeout time.Duration `json:"pendingTimeout" yaml:"pendingTimeout" mapstructure:"pendingTimeout"`
	SweepInterval  time.Duration `json:"sweepInterval" yaml:"sweepInterval" mapstructure:"sweepInterval"`
	NotifyTimeout  time.Duration `json:"notifyTimeout" yaml:"notifyTimeout" mapstructure:"notifyTimeout"`
}

// PoolsConfig sets worker counts per event pool
type PoolsConfig struct {
	TaskCreatedWorkers int `json:"taskCreatedWorkers" yaml:"taskCreatedWorkers" mapstructure:"taskCreatedWorkers"`
	CallbackWorkers    int `json:"callbackWorkers" yaml:"callbackWorkers" mapstructure:"callbackWorkers"`
}

// QueueConfig selects the event queue implementation
type QueueConfig struct {
	Vendor     messaging.Vendor `json:"vendor" yaml:"vendor" mapstructure:"vendor"`
	BasePath   string           `json:"basePath,omitempty" yaml:"basePath,omitempty" mapstructure:"basePath"`
	MaxRetries int              `json:"maxRetries" yaml:"maxRetries" mapstructure:"maxRetries"`
	RetryDelay time.Duration    `json:"retryDelay" yaml:"retryDelay" mapstructure:"retryDelay"`
}

// RepositoryConfig selects context and definition storage
type RepositoryConfig struct {
	Vendor    string `json:"vendor" yaml:"vendor" mapstructure:"vendor"`
	DSN       string `json:"dsn,omitempty" yaml:"dsn,omitempty" mapstructure:"dsn"`
	RedisAddr string `json:"redisAddr,omitempty" yaml:"redisAddr,omitempty" mapstructure:"redisAddr"`
	// RedisPrefix namespaces redis keys
	RedisPrefix string `json:"redisPrefix,omitempty" yaml:"redisPrefix,omitempty" mapstructure:"redisPrefix"`
	// DefinitionURL stores graph documents under an afs location; empty keeps definitions in memory
	DefinitionURL string `json:"definitionURL,omitempty" yaml:"definitionURL,omitempty" mapstructure:"definitionURL"`
}

type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr" mapstructure:"addr"`
}

type LogConfig struct {
	Level       string `json:"level" yaml:"level" mapstructure:"level"`
	Development bool   `json:"development" yaml:"development" mapstructure:"development"`
}

type TracingConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled" mapstructure:"enabled"`
	// Output is a file path; empty writes spans to stdout
	Output string `json:"output,omitempty" yaml:"output,omitempty" mapstructure:"output"`
}

// DefaultConfig returns a Config populated with the engine defaults. Callers may
// modify the returned struct before passing it to WithConfig.
func DefaultConfig() *Config {
	return &Config{
		Driver: DriverConfig{
			RetryMaxRetries:      3,
			RetryInitialInterval: 500 * time.Millisecond,
			RetryMaxInterval:     30 * time.Second,
			RetryMultiplier:      2,
			SweepInterval:        time.Second,
			NotifyTimeout:        10 * time.Second,
		},
		Pools:      PoolsConfig{TaskCreatedWorkers: 8, CallbackWorkers: 4},
		Queue:      QueueConfig{Vendor: messaging.VendorMemory, MaxRetries: 3, RetryDelay: 100 * time.Millisecond},
		Repository: RepositoryConfig{Vendor: RepositoryMemory, RedisPrefix: "fluxflow:"},
		Server:     ServerConfig{Addr: ":8080"},
		Log:        LogConfig{Level: "info"},
	}
}

// Validate returns aggregated error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	var errs error
	if c.Driver.RetryMaxRetries < 0 {
		errs = multierr.Append(errs, errors.New("driver.retryMaxRetries must be >= 0"))
	}
	if c.Driver.RetryMultiplier < 1 {
		errs = multierr.Append(errs, errors.New("driver.retryMultiplier must be >= 1"))
	}
	if c.Driver.SweepInterval <= 0 {
		errs = multierr.Append(errs, errors.New("driver.sweepInterval must be > 0"))
	}
	if c.Pools.TaskCreatedWorkers <= 0 {
		errs = multierr.Append(errs, errors.New("pools.taskCreatedWorkers must be > 0"))
	}
	if c.Pools.CallbackWorkers <= 0 {
		errs = multierr.Append(errs, errors.New("pools.callbackWorkers must be > 0"))
	}
	switch c.Queue.Vendor {
	case messaging.VendorMemory:
	case messaging.VendorFS:
		if c.Queue.BasePath == "" {
			errs = multierr.Append(errs, errors.New("queue.basePath is required for fs queues"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("unsupported queue.vendor: %q", c.Queue.Vendor))
	}
	switch c.Repository.Vendor {
	case RepositoryMemory:
	case RepositorySQLite:
		if c.Repository.DSN == "" {
			errs = multierr.Append(errs, errors.New("repository.dsn is required for sqlite"))
		}
	case RepositoryRedis:
		if c.Repository.RedisAddr == "" {
			errs = multierr.Append(errs, errors.New("repository.redisAddr is required for redis"))
		}
	default:
		errs = multierr.Append(errs, fmt.Errorf("unsupported repository.vendor: %q", c.Repository.Vendor))
	}
	return errs
}

// LoadConfig reads a config file over DefaultConfig; FLUXFLOW_ prefixed environment
// variables override file values (FLUXFLOW_REPOSITORY_VENDOR=sqlite). An empty path reads the environment only.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("FLUXFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	defaults := DefaultConfig()
	for key, value := range map[string]interface{}{
		"driver.retryMaxRetries":      defaults.Driver.RetryMaxRetries,
		"driver.retryInitialInterval": defaults.Driver.RetryInitialInterval,
		"driver.retryMaxInterval":     defaults.Driver.RetryMaxInterval,
		"driver.retryMultiplier":      defaults.Driver.RetryMultiplier,
		"driver.pendingTimeout":       defaults.Driver.PendingTimeout,
		"driver.sweepInterval":        defaults.Driver.SweepInterval,
		"driver.notifyTimeout":        defaults.Driver.NotifyTimeout,
		"pools.taskCreatedWorkers":    defaults.Pools.TaskCreatedWorkers,
		"pools.callbackWorkers":       defaults.Pools.CallbackWorkers,
		"queue.vendor":                string(defaults.Queue.Vendor),
		"queue.basePath":              defaults.Queue.BasePath,
		"queue.maxRetries":            defaults.Queue.MaxRetries,
		"queue.retryDelay":            defaults.Queue.RetryDelay,
		"repository.vendor":           defaults.Repository.Vendor,
		"repository.dsn":              defaults.Repository.DSN,
		"repository.redisAddr":        defaults.Repository.RedisAddr,
		"repository.redisPrefix":      defaults.Repository.RedisPrefix,
		"repository.definitionURL":    defaults.Repository.DefinitionURL,
		"server.addr":                 defaults.Server.Addr,
		"log.level":                   defaults.Log.Level,
		"log.development":             defaults.Log.Development,
		"tracing.enabled":             defaults.Tracing.Enabled,
		"tracing.output":              defaults.Tracing.Output,
	} {
		v.SetDefault(key, value)
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %v: %w", path, err)
		}
	}
	ret := &Config{}
	if err := v.Unmarshal(ret); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return ret, ret.Validate()
}
