// Command scribe inspects and syncs books kept by the authoring workspace.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dotcommander/scribe/internal/client"
	"github.com/dotcommander/scribe/internal/config"
	"github.com/dotcommander/scribe/internal/core"
	"github.com/dotcommander/scribe/internal/domain"
	"github.com/dotcommander/scribe/internal/events"
	"github.com/dotcommander/scribe/internal/history"
	"github.com/dotcommander/scribe/internal/storage"
)

var (
	configPath string
	verbose    bool
	offline    bool

	version = "dev"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Inspect, check and sync books",
	Long: `scribe works on the books of the authoring workspace.

Books are read from the backend configured under api.base_url, or from the
local data directory when no backend is configured or --offline is given.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default $XDG_CONFIG_HOME/scribe/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "use the local data directory even if a backend is configured")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(depsCmd)
	rootCmd.AddCommand(renameCharacterCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(impactCmd)
	rootCmd.AddCommand(chapterCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(watchCmd)
}

// app is what every command needs, built from the loaded config
type app struct {
	cfg    *config.Config
	fs     *storage.FileSystem
	store  *storage.LocalStore
	logger *slog.Logger
}

func setup() (*app, error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	fs := storage.NewFileSystem(cfg.Paths.DataDir)

	logger.Debug("configuration loaded",
		"data_dir", cfg.Paths.DataDir,
		"offline", cfg.Offline() || offline)

	return &app{
		cfg:    cfg,
		fs:     fs,
		store:  storage.NewLocalStore(fs),
		logger: logger,
	}, nil
}

// remote returns the backend client, or an error in offline mode
func (a *app) remote() (*client.Client, error) {
	if a.cfg.Offline() {
		return nil, errors.New("no backend configured: set api.base_url or SCRIBE_API_URL")
	}
	return client.NewClient(a.cfg.API.BaseURL,
		client.WithToken(a.cfg.API.Token),
		client.WithTimeout(a.cfg.API.Timeout),
		client.WithRetry(a.cfg.API.Retries),
		client.WithRateLimit(a.cfg.API.RateLimit.RequestsPerMinute, a.cfg.API.RateLimit.BurstSize),
		client.WithLogger(a.logger.With("component", "storage_client")),
	), nil
}

// gateway picks the backend or the local store
func (a *app) gateway() (domain.Gateway, error) {
	if offline || a.cfg.Offline() {
		return storage.NewLocalGateway(a.store), nil
	}
	return a.remote()
}

// openWorkspace loads bookID with its saved history
func (a *app) openWorkspace(ctx context.Context, bookID string, bus *events.Bus) (*core.Workspace, error) {
	gw, err := a.gateway()
	if err != nil {
		return nil, err
	}
	return a.open(ctx, gw, bookID, bus)
}

func (a *app) open(ctx context.Context, gw domain.Gateway, bookID string, bus *events.Bus) (*core.Workspace, error) {
	opts := []core.WorkspaceOption{
		core.WithLogger(a.logger.With("component", "workspace")),
		core.WithHistoryOptions(
			history.WithMaxEntries(a.cfg.Limits.MaxSnapshots),
			history.WithLogger(a.logger.With("component", "history")),
		),
	}
	if bus != nil {
		opts = append(opts, core.WithBus(bus))
	}
	ws, err := core.Open(ctx, gw, bookID, opts...)
	if err != nil {
		return nil, err
	}
	if err := a.checkpointer().Restore(ctx, ws.History()); err != nil {
		a.logger.Warn("history not restored", "book_id", bookID, "error", err)
	}
	return ws, nil
}

func (a *app) checkpointer() *history.Checkpointer {
	return history.NewCheckpointer(a.fs)
}

func (a *app) saveHistory(ctx context.Context, ws *core.Workspace) error {
	ws.History().Cleanup()
	if err := a.checkpointer().Save(ctx, ws.History()); err != nil {
		return fmt.Errorf("saving history of %s: %w", ws.ID(), err)
	}
	return nil
}
