// Command inhouse-aws serves an SQS compatible queue API and an STS web
// identity endpoint backed by a pluggable document store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tabeth/inhouseaws/config"
	"github.com/tabeth/inhouseaws/kms"
	"github.com/tabeth/inhouseaws/metrics"
	"github.com/tabeth/inhouseaws/server"
	"github.com/tabeth/inhouseaws/service"
	"github.com/tabeth/inhouseaws/store"
	"github.com/tabeth/inhouseaws/store/pebblestore"
)

const envPrefix = "INHOUSEAWS"

func main() {
	os.Exit(run(context.Background(), os.Args[1:]))
}

func run(ctx context.Context, args []string) int {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand(os.Stderr)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "inhouse-aws: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(logOutput io.Writer) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "inhouse-aws",
		Short:         "inhouse-aws serves the SQS and STS web identity APIs on top of memory, Pebble or FoundationDB storage",
		SilenceErrors: true,
		Example: `
  # In-memory storage (tests/dev only)
  inhouse-aws

  # Durable single node storage
  inhouse-aws --storage pebble --data-dir /var/lib/inhouse-aws

  # FoundationDB (binary built with -tags fdb)
  INHOUSEAWS_STORAGE=fdb INHOUSEAWS_FDB_CLUSTER_FILE=/etc/foundationdb/fdb.cluster inhouse-aws
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if err := loadConfigFile(v); err != nil {
				return err
			}
			cfg := bindConfig(v)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger, err := newLogger(cfg, logOutput)
			if err != nil {
				return err
			}
			logger.Info("welcome to inhouse-aws",
				slog.Int("pid", os.Getpid()),
				slog.String("storage", cfg.Storage),
				slog.String("account_id", cfg.AccountID),
				slog.String("region", cfg.DefaultRegion))
			return serve(cmd.Context(), cfg, logger)
		},
	}
	addFlags(cmd.Flags())
	_ = v.BindPFlags(cmd.Flags())
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return cmd
}

func addFlags(flags *pflag.FlagSet) {
	flags.StringP("config", "c", "", "path to a YAML config file")
	flags.String("listen", config.DefaultListen, "listen address")
	flags.String("account-id", config.DefaultAccountID, "account id for requests whose signature does not carry one")
	flags.String("default-region", config.DefaultRegion, "region for requests whose signature does not carry one")
	flags.Int64("max-body-bytes", config.DefaultMaxBodyBytes, "maximum request body size")
	flags.String("storage", config.DefaultStorage, "storage backend (memory, pebble, fdb)")
	flags.String("data-dir", config.DefaultDataDir, "pebble data directory")
	flags.String("pebble-fsync", config.DefaultPebbleFsync, "pebble WAL sync mode (interval, always, never)")
	flags.String("fdb-cluster-file", "", "FoundationDB cluster file (empty uses the default)")
	flags.Int("fdb-api-version", config.DefaultFDBAPIVersion, "FoundationDB API version")
	flags.String("fdb-directory", config.DefaultFDBDirectory, "FoundationDB directory path, slash separated")
	flags.Duration("poll-interval", config.DefaultPollInterval, "how often long polls re-check their queue")
	flags.Duration("missing-queue-delay-min", config.DefaultMissingQueueDelayMin, "minimum delay before a receive on an unknown queue fails")
	flags.Duration("missing-queue-delay-max", config.DefaultMissingQueueDelayMax, "maximum delay before a receive on an unknown queue fails")
	flags.Duration("reconcile-interval", config.DefaultReconcileInterval, "reconciler period (0 disables)")
	flags.String("sse-key", "", "base64 AES key for SSE queues (empty generates an ephemeral key)")
	flags.String("log-level", config.DefaultLogLevel, "log level (debug, info, warn, error)")
	flags.String("log-format", config.DefaultLogFormat, "log format (json, text)")
	flags.Duration("shutdown-grace-period", config.DefaultShutdownGracePeriod, "time allowed for in-flight requests on shutdown")
}

func loadConfigFile(v *viper.Viper) error {
	path := strings.TrimSpace(v.GetString("config"))
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	return nil
}

func bindConfig(v *viper.Viper) config.Config {
	return config.Config{
		Listen:               v.GetString("listen"),
		AccountID:            v.GetString("account-id"),
		DefaultRegion:        v.GetString("default-region"),
		MaxBodyBytes:         v.GetInt64("max-body-bytes"),
		Storage:              strings.ToLower(strings.TrimSpace(v.GetString("storage"))),
		DataDir:              v.GetString("data-dir"),
		PebbleFsync:          v.GetString("pebble-fsync"),
		FDBClusterFile:       v.GetString("fdb-cluster-file"),
		FDBAPIVersion:        v.GetInt("fdb-api-version"),
		FDBDirectory:         v.GetString("fdb-directory"),
		PollInterval:         v.GetDuration("poll-interval"),
		MissingQueueDelayMin: v.GetDuration("missing-queue-delay-min"),
		MissingQueueDelayMax: v.GetDuration("missing-queue-delay-max"),
		ReconcileInterval:    v.GetDuration("reconcile-interval"),
		SSEKey:               v.GetString("sse-key"),
		LogLevel:             v.GetString("log-level"),
		LogFormat:            v.GetString("log-format"),
		ShutdownGracePeriod:  v.GetDuration("shutdown-grace-period"),
	}
}

func newLogger(cfg config.Config, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if cfg.LogFormat == "text" {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With(slog.String("app", "inhouse-aws")), nil
}

func openBackend(cfg config.Config) (store.Backend, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return store.NewMemoryBackend(), nil
	case config.StoragePebble:
		mode := pebblestore.FsyncModeInterval
		switch cfg.PebbleFsync {
		case "always":
			mode = pebblestore.FsyncModeAlways
		case "never":
			mode = pebblestore.FsyncModeNever
		}
		b, err := pebblestore.Open(pebblestore.Options{DataDir: cfg.DataDir, Fsync: mode})
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.StorageFDB:
		return openFDB(cfg)
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}

func newSealer(cfg config.Config, logger *slog.Logger) (*kms.Sealer, error) {
	var (
		key []byte
		err error
	)
	if cfg.SSEKey != "" {
		key, err = kms.ParseKey(cfg.SSEKey)
		if err != nil {
			return nil, fmt.Errorf("sse-key: %w", err)
		}
	} else {
		key, err = kms.GenerateKey()
		if err != nil {
			return nil, err
		}
		logger.Warn("no sse-key configured, generated an ephemeral key: sealed message bodies will be unreadable after a restart")
	}
	return kms.NewSealer(key)
}

// serve runs the HTTP server and the reconciler until ctx is cancelled or
// one of them fails.
func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	backend, err := openBackend(cfg)
	if err != nil {
		return fmt.Errorf("open %s storage: %w", cfg.Storage, err)
	}
	s := store.New(backend)
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error("closing storage failed", slog.Any("error", err))
		}
	}()

	sealer, err := newSealer(cfg, logger)
	if err != nil {
		return err
	}
	m := metrics.New()
	services := service.New(s, service.Options{
		Logger:               logger,
		Metrics:              m,
		Sealer:               sealer,
		PollInterval:         cfg.PollInterval,
		MissingQueueDelayMin: cfg.MissingQueueDelayMin,
		MissingQueueDelayMax: cfg.MissingQueueDelayMax,
	})
	app := server.New(s, services, server.Options{
		AccountID:    cfg.AccountID,
		Region:       cfg.DefaultRegion,
		Logger:       logger,
		Metrics:      m,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", slog.String("addr", cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
		defer cancel()
		logger.Info("shutting down", slog.Duration("grace_period", cfg.ShutdownGracePeriod))
		return srv.Shutdown(shutdownCtx)
	})
	if cfg.ReconcileInterval > 0 {
		g.Go(func() error {
			return services.Reconciler.Run(gctx, cfg.ReconcileInterval)
		})
	}
	return g.Wait()
}
