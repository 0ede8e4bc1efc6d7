package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dotcommander/scribe/internal/core"
	"github.com/dotcommander/scribe/internal/domain/book"
	"github.com/dotcommander/scribe/internal/events"
	"github.com/dotcommander/scribe/internal/history"
)

var renameCharacterCmd = &cobra.Command{
	Use:   "rename-character <book-id> <character-id> <new-name>",
	Short: "Rename a character and report what the rename affects",
	Args:  cobra.ExactArgs(3),
	RunE:  runRenameCharacter,
}

var historyCmd = &cobra.Command{
	Use:   "history <book-id> [entity-id]",
	Short: "Show recorded changes, newest first",
	Long: `Show the change snapshots recorded for a book.

With an entity id, shows the changes of that entity followed by the changes of
other entities it depended on at the time.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runHistory,
}

var impactCmd = &cobra.Command{
	Use:   "impact <book-id> <snapshot-id>",
	Short: "Show the impacts recorded for one change",
	Args:  cobra.ExactArgs(2),
	RunE:  runImpact,
}

var chapterCmd = &cobra.Command{
	Use:   "chapter",
	Short: "Chapter commands",
}

var chapterVersionsCmd = &cobra.Command{
	Use:   "versions <book-id> <chapter-id>",
	Short: "List the retained prior versions of a chapter",
	Args:  cobra.ExactArgs(2),
	RunE:  runChapterVersions,
}

func init() {
	chapterCmd.AddCommand(chapterVersionsCmd)
}

func runRenameCharacter(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}

	bus := events.NewBus(a.logger.With("component", "events"))
	defer bus.Stop()
	out := cmd.OutOrStdout()
	if _, err := bus.Subscribe(events.PatternImpacts, func(_ context.Context, e events.Event) error {
		if report, ok := e.Data.(core.ImpactReport); ok {
			printImpacts(out, impactLines(report))
		}
		return nil
	}); err != nil {
		return err
	}

	ws, err := a.openWorkspace(cmd.Context(), args[0], bus)
	if err != nil {
		return err
	}
	c, err := ws.Character(args[1])
	if err != nil {
		return err
	}
	old := c.Name
	c.Name = args[2]
	if _, err := ws.UpdateCharacter(cmd.Context(), c); err != nil {
		return err
	}
	fmt.Fprintf(out, "renamed %q to %q\n", old, c.Name)

	return a.saveHistory(cmd.Context(), ws)
}

func impactLines(r core.ImpactReport) []impactLine {
	lines := make([]impactLine, 0, len(r.Impacts))
	for _, im := range r.Impacts {
		lines = append(lines, impactLine{
			severity:    string(im.Severity),
			target:      fmt.Sprintf("%s %s", im.TargetType, strings.Join(im.TargetIDs, ",")),
			description: im.Description,
			actions:     im.SuggestedActions,
		})
	}
	return lines
}

type impactLine struct {
	severity    string
	target      string
	description string
	actions     []string
}

func printImpacts(w io.Writer, lines []impactLine) {
	if len(lines) == 0 {
		fmt.Fprintln(w, "no impacts")
		return
	}
	for _, l := range lines {
		fmt.Fprintf(w, "[%s] %s: %s\n", l.severity, l.target, l.description)
		for _, a := range l.actions {
			fmt.Fprintf(w, "    - %s\n", a)
		}
	}
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	ws, err := a.openWorkspace(cmd.Context(), args[0], nil)
	if err != nil {
		return err
	}
	log := ws.History()

	out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer out.Flush()

	if len(args) == 1 {
		printSnapshots(out, log.All())
		return nil
	}
	printSnapshots(out, log.EntityHistory(args[1]))
	if related := log.RelevantChanges(args[1]); len(related) > 0 {
		fmt.Fprintln(out, "\naffecting changes:")
		printSnapshots(out, related)
	}
	return nil
}

func printSnapshots(w io.Writer, snaps []history.Snapshot) {
	if len(snaps) == 0 {
		fmt.Fprintln(w, "no changes recorded")
		return
	}
	for _, s := range snaps {
		state := "pending"
		if s.Analyzed {
			state = fmt.Sprintf("%d impacts", len(s.Impact))
		}
		fmt.Fprintf(w, "%s\t%s\t%s %s\t%s\n",
			s.ID, s.Timestamp.Local().Format("2006-01-02 15:04:05"), s.EntityType, s.EntityID, state)
	}
}

func runImpact(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	ws, err := a.openWorkspace(cmd.Context(), args[0], nil)
	if err != nil {
		return err
	}
	snap, ok := ws.History().Get(args[1])
	if !ok {
		return core.NewNotFoundError("snapshot", args[1])
	}
	if !snap.Analyzed {
		fmt.Fprintln(cmd.OutOrStdout(), "change was never committed")
		return nil
	}
	printImpacts(cmd.OutOrStdout(), impactLines(core.ImpactReport{SnapshotID: snap.ID, EntityID: snap.EntityID, Impacts: snap.Impact}))
	return nil
}

func runChapterVersions(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	ws, err := a.openWorkspace(cmd.Context(), args[0], nil)
	if err != nil {
		return err
	}
	ch, err := ws.Chapter(args[1])
	if err != nil {
		return err
	}

	out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer out.Flush()
	fmt.Fprintf(out, "current\t%s\t%d words\n", ch.Title, ch.WordCount)
	for i := len(ch.Versions) - 1; i >= 0; i-- {
		v := ch.Versions[i]
		fmt.Fprintf(out, "%s\t%s\t%d words\n",
			v.Timestamp.Local().Format("2006-01-02 15:04:05"), v.Title, book.CountWords(v.Content))
	}
	return nil
}
