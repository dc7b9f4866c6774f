package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/veildb/veildb/internal/cohort"
	"github.com/veildb/veildb/internal/config"
	"github.com/veildb/veildb/internal/engine"
	"github.com/veildb/veildb/internal/logging"
	"github.com/veildb/veildb/internal/state"
)

var (
	cfgFile  string
	logLevel string
	version  = "dev"
	commit   = "none"
	date     = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "veildb",
	Short: "VeilDB — anonymized query views over relational databases",
	Long: `VeilDB exposes a controlled, anonymized view of user data living in
relational databases (PostgreSQL, MySQL, SQLite, Oracle). Configure a
connection, pick the properties to expose, and query them through the
command language, the HTTP API or the interactive console.`,
}

func Execute() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.veildb/veildb.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist yet.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		var pathErr *fs.PathError
		if cfgFile == "" && (errors.As(err, &pathErr) || os.IsNotExist(err)) {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// bootstrap loads config, logging, state and the cohort store, and wires the
// engine.
func bootstrap(ctx context.Context) (*engine.Engine, *config.Config, *slog.Logger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger, err := logging.Setup(level, cfg.Logging.Directory)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("setting up logging: %w", err)
	}

	store, err := state.Load(cfg.Store.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading state: %w", err)
	}

	var cohortStore cohort.Store
	if cfg.Cohorts.ConnectionString != "" {
		cohortStore, err = cohort.NewMongoStore(ctx, cfg.Cohorts.ConnectionString, cfg.Cohorts.Database)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connecting cohort store: %w", err)
		}
	} else {
		cohortStore = cohort.NewMemoryStore()
	}
	cohorts := cohort.NewService(cohortStore, nil, cfg.Production, logger)

	return engine.New(cfg, store, cohorts, logger), cfg, logger, nil
}
