package client

import (
	"flag"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is a client process's fully-resolved configuration: endpoint
// address, keep-alive initial interval, CA cert path, client cert+key
// paths, and backoff strategy kind/max_attempts. Layered
// flags-over-YAML-over-defaults, exactly like broker.Config
// (broker/config.go).
type Config struct {
	EndpointAddr string `yaml:"endpoint_addr"`

	CAFile   string `yaml:"ca"`
	CertFile string `yaml:"cert"`
	KeyFile  string `yaml:"key"`

	KeepAliveInitialInterval time.Duration `yaml:"keep_alive_initial_interval"`

	BackoffKind        string `yaml:"backoff_kind"`
	BackoffMaxAttempts int    `yaml:"backoff_max_attempts"`
}

// DefaultConfig returns the client's built-in defaults.
func DefaultConfig() Config {
	return Config{
		EndpointAddr:             "127.0.0.1:4433",
		KeepAliveInitialInterval: 100 * time.Millisecond,
		BackoffKind:              "exponential",
		BackoffMaxAttempts:       8,
	}
}

// ConfigFromFile loads a YAML config file and merges it over
// DefaultConfig.
func ConfigFromFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "client: read config file")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrap(err, "client: parse config file")
	}
	return cfg, nil
}

// RegisterFlags binds every client-configuration flag onto flset,
// defaulting each to cfg's current value so a caller can load a YAML
// file first, then parse flags over it.
func (cfg *Config) RegisterFlags(flset *flag.FlagSet) {
	flset.StringVar(&cfg.EndpointAddr, "endpoint-addr", cfg.EndpointAddr, "broker address to connect to")
	flset.StringVar(&cfg.CAFile, "ca", cfg.CAFile, "path to the CA certificate the broker is verified against (PEM)")
	flset.StringVar(&cfg.CertFile, "cert", cfg.CertFile, "path to this client's TLS certificate (PEM)")
	flset.StringVar(&cfg.KeyFile, "key", cfg.KeyFile, "path to this client's TLS private key (PEM)")
	flset.DurationVar(&cfg.KeepAliveInitialInterval, "keep-alive-initial-interval", cfg.KeepAliveInitialInterval, "base delay before the first reconnect attempt")
	flset.StringVar(&cfg.BackoffKind, "backoff-kind", cfg.BackoffKind, "reconnect backoff strategy: exponential, constant, or fibonacci")
	flset.IntVar(&cfg.BackoffMaxAttempts, "backoff-max-attempts", cfg.BackoffMaxAttempts, "reconnect attempts before giving up (0 disables retry entirely)")
}

// Backoff builds the BackoffStrategy cfg describes.
func (cfg Config) Backoff() BackoffStrategy {
	return NewBackoff(ParseBackoffKind(cfg.BackoffKind), cfg.KeepAliveInitialInterval, cfg.BackoffMaxAttempts)
}
