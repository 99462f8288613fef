package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nhle/task-reminders/internal/credential"
	"github.com/nhle/task-reminders/internal/i18n"
	"github.com/nhle/task-reminders/internal/inbox"
	"github.com/nhle/task-reminders/internal/lifecycle"
	"github.com/nhle/task-reminders/internal/logging"
	"github.com/nhle/task-reminders/internal/model"
	"github.com/nhle/task-reminders/internal/reconcile"
	"github.com/nhle/task-reminders/internal/store"
	"github.com/nhle/task-reminders/internal/tasks"
	"github.com/nhle/task-reminders/internal/urgency"
)

var Version = "dev"

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:           "taskreminders",
		Short:         "Due-date reminder engine for tasks",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", model.DefaultConfigPath(), "config file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(dedupCmd())
	rootCmd.AddCommand(classifyCmd())
	rootCmd.AddCommand(inboxCmd())
	rootCmd.AddCommand(credentialsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// engine is the wired set of services every store-backed command uses.
type engine struct {
	cfg     *model.AppConfig
	logger  *slog.Logger
	store   store.Store
	manager *lifecycle.Manager
	sweeper *reconcile.Sweeper
	inbox   *inbox.Service

	// todos is nil when the store does not own a todo table.
	todos *tasks.Service

	// intake is nil when the store cannot record external tasks.
	intake *tasks.Intake
}

func (e *engine) Close() error { return e.store.Close() }

// openEngine loads config, builds the logger, opens the store and wires
// the services on top of it.
func openEngine(ctx context.Context) (*engine, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, _, err := logging.New(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	s, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	var renderer i18n.Renderer
	if cfg.Engine.CatalogPath != "" {
		catalog, err := i18n.LoadFile(cfg.Engine.CatalogPath)
		if err != nil {
			s.Close()
			return nil, err
		}
		renderer = catalog
	}

	classifier := urgency.Classifier{UpcomingDays: cfg.Engine.UpcomingDays}
	manager := lifecycle.New(s,
		lifecycle.WithClassifier(classifier),
		lifecycle.WithLogger(logger.With("component", "lifecycle")),
		lifecycle.WithStoreTimeout(cfg.Engine.StoreTimeout()),
	)

	e := &engine{
		cfg:     cfg,
		logger:  logger,
		store:   s,
		manager: manager,
		sweeper: reconcile.NewSweeper(s, manager, logger.With("component", "sweep")),
		inbox:   inbox.New(s, renderer, logger.With("component", "inbox"), cfg.Engine.StoreTimeout()),
	}
	if ts, ok := s.(tasks.Store); ok {
		e.todos = tasks.New(ts, manager)
	}
	if is, ok := s.(tasks.IntakeStore); ok {
		e.intake = tasks.NewIntake(is, manager)
	}
	return e, nil
}

func openStore(ctx context.Context, cfg *model.AppConfig, logger *slog.Logger) (store.Store, error) {
	switch cfg.Database.Driver {
	case model.DriverPostgres:
		vault, err := credential.Open(filepath.Dir(configPath))
		if err != nil {
			logger.Warn("keyring unavailable, using configured dsn only", "error", err)
			vault = nil
		}
		dsn, err := credential.PostgresDSN(cfg.Database.DSN, vault)
		if err != nil {
			return nil, err
		}
		return store.NewPgStore(ctx, dsn)

	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
		return store.NewSQLiteStore(cfg.Database.Path)
	}
}
