// Package config holds the settings of the inhouse-aws binary.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

// Storage backends.
const (
	StorageMemory = "memory"
	StoragePebble = "pebble"
	StorageFDB    = "fdb"
)

// Defaults.
const (
	DefaultListen               = ":8080"
	DefaultAccountID            = "123456123456"
	DefaultRegion               = "us-east-1"
	DefaultStorage              = StorageMemory
	DefaultDataDir              = "./data"
	DefaultPebbleFsync          = "interval"
	DefaultFDBAPIVersion        = 730
	DefaultFDBDirectory         = "inhouse-aws"
	DefaultPollInterval         = 2 * time.Second
	DefaultMissingQueueDelayMin = 5 * time.Second
	DefaultMissingQueueDelayMax = 10 * time.Second
	DefaultReconcileInterval    = 10 * time.Second
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "json"
	DefaultShutdownGracePeriod  = 30 * time.Second
	DefaultMaxBodyBytes         = 2 << 20
)

var (
	accountIDRegex = regexp.MustCompile(`^\d{12}$`)
	regionRegex    = regexp.MustCompile(`^[a-z]{2}(-[a-z]+)+-\d+$`)
)

// Config is the complete runtime configuration.
type Config struct {
	Listen        string
	AccountID     string
	DefaultRegion string
	MaxBodyBytes  int64

	Storage        string
	DataDir        string
	PebbleFsync    string
	FDBClusterFile string
	FDBAPIVersion  int
	FDBDirectory   string

	PollInterval         time.Duration
	MissingQueueDelayMin time.Duration
	MissingQueueDelayMax time.Duration
	// ReconcileInterval of zero disables the reconciler.
	ReconcileInterval time.Duration

	// SSEKey is the base64 AES key sealing message bodies of SSE queues.
	// Empty means a random key is generated at start-up.
	SSEKey string

	LogLevel            string
	LogFormat           string
	ShutdownGracePeriod time.Duration
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Listen:               DefaultListen,
		AccountID:            DefaultAccountID,
		DefaultRegion:        DefaultRegion,
		MaxBodyBytes:         DefaultMaxBodyBytes,
		Storage:              DefaultStorage,
		DataDir:              DefaultDataDir,
		PebbleFsync:          DefaultPebbleFsync,
		FDBAPIVersion:        DefaultFDBAPIVersion,
		FDBDirectory:         DefaultFDBDirectory,
		PollInterval:         DefaultPollInterval,
		MissingQueueDelayMin: DefaultMissingQueueDelayMin,
		MissingQueueDelayMax: DefaultMissingQueueDelayMax,
		ReconcileInterval:    DefaultReconcileInterval,
		LogLevel:             DefaultLogLevel,
		LogFormat:            DefaultLogFormat,
		ShutdownGracePeriod:  DefaultShutdownGracePeriod,
	}
}

// Validate reports every problem with c at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Listen) == "" {
		errs = append(errs, errors.New("listen address is required"))
	}
	if !accountIDRegex.MatchString(c.AccountID) {
		errs = append(errs, fmt.Errorf("account-id %q must be 12 digits", c.AccountID))
	}
	if !regionRegex.MatchString(c.DefaultRegion) {
		errs = append(errs, fmt.Errorf("default-region %q is not a region name", c.DefaultRegion))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("max-body-bytes must be positive"))
	}
	switch c.Storage {
	case StorageMemory:
	case StoragePebble:
		if c.DataDir == "" {
			errs = append(errs, errors.New("data-dir is required for pebble storage"))
		}
		switch c.PebbleFsync {
		case "interval", "always", "never":
		default:
			errs = append(errs, fmt.Errorf("pebble-fsync %q must be interval, always or never", c.PebbleFsync))
		}
	case StorageFDB:
		if c.FDBAPIVersion <= 0 {
			errs = append(errs, errors.New("fdb-api-version must be positive"))
		}
		if c.FDBDirectory == "" {
			errs = append(errs, errors.New("fdb-directory is required for fdb storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage %q must be one of %s, %s, %s", c.Storage, StorageMemory, StoragePebble, StorageFDB))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll-interval must be positive"))
	}
	if c.MissingQueueDelayMin < 0 || c.MissingQueueDelayMax < c.MissingQueueDelayMin {
		errs = append(errs, errors.New("missing-queue-delay-min must be non-negative and not above missing-queue-delay-max"))
	}
	if c.ReconcileInterval < 0 {
		errs = append(errs, errors.New("reconcile-interval must not be negative"))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("log-format %q must be json or text", c.LogFormat))
	}
	if c.ShutdownGracePeriod < 0 {
		errs = append(errs, errors.New("shutdown-grace-period must not be negative"))
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log-level %q: %w", c.LogLevel, err)
	}
	return level, nil
}
