package broker

import (
	"flag"
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/selium-io/selium/msglog"
)

// Config is the broker's fully-resolved configuration: CLI flags layered
// over an optional YAML file, layered over the defaults below (flags win,
// then file, then built-in default), parsed with the standard `flag`
// package.
type Config struct {
	BindAddr string `yaml:"bind_addr"`

	CertFile string `yaml:"cert"`
	KeyFile  string `yaml:"key"`
	CAFile   string `yaml:"ca"`

	MaxIdleTimeout time.Duration `yaml:"max_idle_timeout"`
	KeyLogFile     string        `yaml:"keylog"`
	StatelessRetry bool          `yaml:"stateless_retry"`

	LogSegmentsDirectory string        `yaml:"log_segments_directory"`
	LogMaximumEntries    int           `yaml:"log_maximum_entries"`
	LogCleanerInterval   time.Duration `yaml:"log_cleaner_interval"`

	FlushPolicyInterval  time.Duration `yaml:"flush_policy_interval"`
	FlushPolicyNumWrites int           `yaml:"flush_policy_num_writes"`

	SubscriberPollingInterval time.Duration `yaml:"subscriber_polling_interval"`

	// AdminAddr binds the admin/observability HTTP surface. Empty
	// disables it.
	AdminAddr string `yaml:"admin_addr"`

	// ArchiveBucket enables the S3 tiered archiver when non-empty;
	// ArchivePrefix namespaces objects within it (e.g. this broker's
	// hostname, to share one bucket across brokers).
	ArchiveBucket string `yaml:"archive_bucket"`
	ArchivePrefix string `yaml:"archive_prefix"`

	// CloudAuthProxyPubKeyFile enables the cloud-auth step when
	// non-empty: the PEM-encoded public key identifying the
	// trusted proxy connection that every other connecting client's
	// namespace is authorized against.
	CloudAuthProxyPubKeyFile string        `yaml:"cloud_auth_proxy_pubkey_file"`
	CloudAuthTimeout         time.Duration `yaml:"cloud_auth_timeout"`
}

// DefaultConfig returns the broker's built-in defaults, the bottom layer
// of the flags > file > defaults stack.
func DefaultConfig() Config {
	return Config{
		BindAddr:                  ":4433",
		MaxIdleTimeout:            30 * time.Second,
		LogSegmentsDirectory:      "./selium-data",
		LogMaximumEntries:         4096,
		LogCleanerInterval:        time.Minute,
		FlushPolicyInterval:       time.Second,
		FlushPolicyNumWrites:      100,
		SubscriberPollingInterval: 50 * time.Millisecond,
		AdminAddr:                 ":9321",
		CloudAuthTimeout:          5 * time.Second,
	}
}

// ConfigFromFile loads a YAML config file and merges it over
// DefaultConfig: a defaulted struct overwritten field-by-field by the
// parsed file.
func ConfigFromFile(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "broker: read config file")
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, errors.Wrap(err, "broker: parse config file")
	}
	return cfg, nil
}

// RegisterFlags binds every broker CLI flag onto flset, defaulting each
// to cfg's current value so a caller can load a YAML file first, then
// parse flags over it (flags win).
func (cfg *Config) RegisterFlags(flset *flag.FlagSet) {
	flset.StringVar(&cfg.BindAddr, "bind-addr", cfg.BindAddr, "address to listen on for client connections")
	flset.StringVar(&cfg.CertFile, "cert", cfg.CertFile, "path to the broker's TLS certificate (PEM)")
	flset.StringVar(&cfg.KeyFile, "key", cfg.KeyFile, "path to the broker's TLS private key (PEM)")
	flset.StringVar(&cfg.CAFile, "ca", cfg.CAFile, "path to the CA certificate clients are verified against (PEM)")
	flset.DurationVar(&cfg.MaxIdleTimeout, "max-idle-timeout", cfg.MaxIdleTimeout, "QUIC connection idle timeout")
	flset.StringVar(&cfg.KeyLogFile, "keylog", cfg.KeyLogFile, "write TLS session keys to this file, for packet-capture debugging")
	flset.BoolVar(&cfg.StatelessRetry, "stateless-retry", cfg.StatelessRetry, "require QUIC address validation before committing connection state")
	flset.StringVar(&cfg.LogSegmentsDirectory, "log-segments-directory", cfg.LogSegmentsDirectory, "root directory for every topic's segment files")
	flset.IntVar(&cfg.LogMaximumEntries, "log-maximum-entries", cfg.LogMaximumEntries, "fixed index capacity per segment")
	flset.DurationVar(&cfg.LogCleanerInterval, "log-cleaner-interval", cfg.LogCleanerInterval, "how often the retention cleaner sweeps each topic's segments")
	flset.DurationVar(&cfg.FlushPolicyInterval, "flush-policy-interval", cfg.FlushPolicyInterval, "maximum wall time between segment flushes")
	flset.IntVar(&cfg.FlushPolicyNumWrites, "flush-policy-num-writes", cfg.FlushPolicyNumWrites, "maximum writes between segment flushes")
	flset.DurationVar(&cfg.SubscriberPollingInterval, "subscriber-polling-interval", cfg.SubscriberPollingInterval, "sleep interval after an empty read_slice before a subscriber polls again")
	flset.StringVar(&cfg.AdminAddr, "admin-addr", cfg.AdminAddr, "address for the admin/observability HTTP surface; empty disables it")
	flset.StringVar(&cfg.ArchiveBucket, "archive-bucket", cfg.ArchiveBucket, "S3 bucket for tiered segment archiving before retention deletes them; empty disables archiving")
	flset.StringVar(&cfg.ArchivePrefix, "archive-prefix", cfg.ArchivePrefix, "key prefix within archive-bucket, e.g. this broker's hostname")
	flset.StringVar(&cfg.CloudAuthProxyPubKeyFile, "cloud-auth-proxy-pubkey-file", cfg.CloudAuthProxyPubKeyFile, "PEM public key of the trusted cloud-auth proxy; empty disables cloud auth")
	flset.DurationVar(&cfg.CloudAuthTimeout, "cloud-auth-timeout", cfg.CloudAuthTimeout, "timeout for a cloud-auth proxy round trip")
}

// LogConfig projects the subset of Config the msglog package needs into
// an msglog.Config, keeping msglog itself free of any CLI/YAML concern.
func (cfg Config) LogConfig() msglog.Config {
	return msglog.Config{
		Dir:                       cfg.LogSegmentsDirectory,
		MaxIndexEntries:           cfg.LogMaximumEntries,
		FlushIntervalWrites:       cfg.FlushPolicyNumWrites,
		FlushInterval:             cfg.FlushPolicyInterval,
		RetentionPeriod:           msglog.DefaultConfig("").RetentionPeriod,
		CleanerInterval:           cfg.LogCleanerInterval,
		SubscriberPollingInterval: cfg.SubscriberPollingInterval,
	}
}
