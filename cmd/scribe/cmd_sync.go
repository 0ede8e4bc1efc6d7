package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotcommander/scribe/internal/events"
	"github.com/dotcommander/scribe/internal/storage"
	"github.com/dotcommander/scribe/internal/transfer"
)

var prune bool

var pullCmd = &cobra.Command{
	Use:   "pull <book-id>",
	Short: "Copy a book from the backend into the local data directory",
	Long: `Copy a book from the backend into the local data directory.

An existing local copy is backed up under backups/<book-id>/ first.`,
	Args: cobra.ExactArgs(1),
	RunE: runPull,
}

var pushCmd = &cobra.Command{
	Use:   "push <book-id>",
	Short: "Write the local copy of a book to the backend",
	Long: `Write the local copy of a book to the backend.

The project is created when the backend does not know it. Characters and
chapters are created or updated; with --prune, the ones the local copy no
longer has are deleted from the backend.`,
	Args: cobra.ExactArgs(1),
	RunE: runPush,
}

var watchCmd = &cobra.Command{
	Use:   "watch <book-id>",
	Short: "Follow edits other programs make to a local book",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	pushCmd.Flags().BoolVar(&prune, "prune", false, "delete remote characters and chapters missing locally")
}

func runPull(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	remote, err := a.remote()
	if err != nil {
		return err
	}

	res, err := transfer.Pull(cmd.Context(), remote, a.store, args[0],
		transfer.WithLogger(a.logger.With("component", "transfer")))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pulled %q: %d characters, %d chapters\n",
		res.Book.Metadata.Title, len(res.Book.Characters), len(res.Book.Chapters))
	if res.BackupKey != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "previous copy saved as %s\n", res.BackupKey)
	}
	return nil
}

func runPush(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	remote, err := a.remote()
	if err != nil {
		return err
	}

	res, err := transfer.Push(cmd.Context(), a.store, remote, args[0],
		transfer.WithConcurrency(a.cfg.Limits.MaxConcurrentPushes),
		transfer.WithPrune(prune),
		transfer.WithLogger(a.logger.With("component", "transfer")))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pushed %s: %d created, %d updated, %d deleted\n",
		res.BookID, res.Created, res.Updated, res.Deleted)
	return nil
}

// runWatch keeps a local workspace in step with the file on disk and prints
// what changed until interrupted
func runWatch(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	bookID := args[0]

	bus := events.NewBus(a.logger.With("component", "events"))
	defer bus.Stop()

	ws, err := a.open(ctx, storage.NewLocalGateway(a.store), bookID, bus)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if _, err := bus.Subscribe(`^book\.replaced$`, func(_ context.Context, e events.Event) error {
		b := ws.Book()
		fmt.Fprintf(out, "%s  %q reloaded: %d characters, %d chapters, %d words\n",
			e.Timestamp.Local().Format("15:04:05"), b.Metadata.Title,
			len(b.Characters), len(b.Chapters), b.TotalWordCount())
		for _, p := range referenceProblems(b) {
			fmt.Fprintf(out, "  warning: %s\n", p)
		}
		return nil
	}); err != nil {
		return err
	}

	watcher, err := storage.NewWatcher(a.fs, func(change storage.BookChange) {
		if change.BookID != bookID {
			return
		}
		if change.Removed {
			fmt.Fprintf(out, "%s  book removed\n", change.At.Local().Format("15:04:05"))
			return
		}
		if err := ws.Reload(ctx); err != nil {
			a.logger.Warn("reload failed", "book_id", bookID, "error", err)
		}
	}, storage.WithWatcherLogger(a.logger.With("component", "watcher")))
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	fmt.Fprintf(out, "watching %s, press Ctrl-C to stop\n", bookID)
	<-ctx.Done()
	return nil
}
