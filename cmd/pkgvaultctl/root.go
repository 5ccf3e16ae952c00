package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/cordum/pkgvault/core/configsvc"
	"github.com/cordum/pkgvault/core/entries"
	"github.com/cordum/pkgvault/core/infra/buildinfo"
	"github.com/cordum/pkgvault/core/infra/config"
	"github.com/cordum/pkgvault/core/infra/logging"
	"github.com/cordum/pkgvault/core/infra/metrics"
	"github.com/cordum/pkgvault/core/layout"
	"github.com/cordum/pkgvault/core/validation"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	keyStorageConfig = "storage-config"
	keyVaultDir      = "vault-dir"
	keyRedisURL      = "redis-url"
	keyEntryStore    = "entry-store"
	keySQLitePath    = "sqlite-path"
	keyMetrics       = "metrics"
)

// app carries the per-invocation state shared by subcommands.
type app struct {
	v       *viper.Viper
	metrics metrics.Metrics

	manager   *config.Manager
	registry  *layout.Registry
	validator *validation.Validator
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), metrics: metrics.Noop{}}
	defaults := config.Load()

	root := &cobra.Command{
		Use:           "pkgvaultctl",
		Short:         "Inspect and maintain pkgvault artifact repositories",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.initConfig(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if !a.v.GetBool(keyMetrics) {
				return nil
			}
			return metrics.WriteText(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "storages config file (env PKGVAULT_STORAGE_CONFIG)")
	flags.String(keyVaultDir, "", "vault directory for storages without a basedir")
	flags.String("redis", "", "redis url; when set, live policy overrides are synced first")
	flags.String(keyEntryStore, "", "entry store backend: memory, redis or sqlite")
	flags.String(keySQLitePath, "", "sqlite database for the sqlite entry store")
	flags.Bool(keyMetrics, false, "dump prometheus metrics to stderr after the command")

	_ = a.v.BindPFlag(keyStorageConfig, flags.Lookup("config"))
	_ = a.v.BindPFlag(keyVaultDir, flags.Lookup(keyVaultDir))
	_ = a.v.BindPFlag(keyRedisURL, flags.Lookup("redis"))
	_ = a.v.BindPFlag(keyEntryStore, flags.Lookup(keyEntryStore))
	_ = a.v.BindPFlag(keySQLitePath, flags.Lookup(keySQLitePath))
	_ = a.v.BindPFlag(keyMetrics, flags.Lookup(keyMetrics))

	a.v.SetDefault(keyStorageConfig, defaults.StorageConfigPath)
	a.v.SetDefault(keyVaultDir, defaults.VaultDir)
	a.v.SetDefault(keyEntryStore, defaults.EntryStore)
	a.v.SetDefault(keySQLitePath, defaults.SQLitePath)

	root.AddCommand(
		newLayoutsCmd(),
		newParseCmd(),
		newResolveCmd(a),
		newDeleteCmd(a),
		newCheckSizeCmd(a),
		newRegisterCmd(a),
		newPolicyCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) initConfig(cmd *cobra.Command) error {
	a.v.SetEnvPrefix("PKGVAULT")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	logging.Configure()
	buildinfo.Resolve()
	if a.v.GetBool(keyMetrics) {
		a.metrics = metrics.NewProm("pkgvault")
	}
	return nil
}

// load reads the storages config and wires the registry and validator. Live
// policy overrides are folded in when a redis url is configured.
func (a *app) load(ctx context.Context) error {
	if a.manager != nil {
		return nil
	}
	cfg, err := config.LoadStorageConfig(a.v.GetString(keyStorageConfig), a.v.GetString(keyVaultDir))
	if err != nil {
		return err
	}
	manager, err := config.NewManager(cfg)
	if err != nil {
		return err
	}
	if url := a.v.GetString(keyRedisURL); url != "" {
		svc, err := configsvc.New(url)
		if err != nil {
			return fmt.Errorf("policy service: %w", err)
		}
		defer svc.Close()
		if _, err := svc.Sync(ctx, manager); err != nil {
			return fmt.Errorf("sync policies: %w", err)
		}
	}
	a.manager = manager
	a.registry = layout.NewRegistry(manager, layout.WithMetrics(a.metrics))
	a.validator = validation.New(manager, validation.WithMetrics(a.metrics))
	return nil
}

func (a *app) openEntries() (entries.Store, error) {
	var (
		store entries.Store
		err   error
	)
	opts := []entries.Option{entries.WithMetrics(a.metrics)}
	switch backend := a.v.GetString(keyEntryStore); backend {
	case config.EntryStoreRedis:
		url := a.v.GetString(keyRedisURL)
		if url == "" {
			url = config.Load().RedisURL
		}
		store, err = entries.NewRedisStore(url, opts...)
	case config.EntryStoreSQLite:
		db, openErr := entries.OpenSQLite(a.v.GetString(keySQLitePath))
		if openErr != nil {
			return nil, openErr
		}
		store, err = entries.NewSQLiteStore(db, opts...)
		if err != nil {
			_ = db.Close()
		}
	case config.EntryStoreMemory, "":
		store = entries.NewMemoryStore(opts...)
	default:
		return nil, fmt.Errorf("unknown entry store %q", backend)
	}
	if err != nil {
		return nil, err
	}
	store.Use(entries.NewInvariantHook(entries.DefaultHierarchy()))
	return store, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
