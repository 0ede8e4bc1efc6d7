package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dotcommander/scribe/internal/domain/book"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the books available",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

var validateCmd = &cobra.Command{
	Use:   "validate <book-id>",
	Short: "Load a book and report structural problems",
	Long: `Load a book and check it.

A book that fails to decode is reported as malformed. A book that loads is
checked for relationship edges pointing at missing characters and for plot
points or timeline events referencing missing chapters.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

var depsCmd = &cobra.Command{
	Use:   "deps <book-id> <character|chapter|plotpoint> <entity-id>",
	Short: "List the entities that reference an entity",
	Args:  cobra.ExactArgs(3),
	RunE:  runDeps,
}

func runList(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer out.Flush()

	if offline || a.cfg.Offline() {
		ids, err := a.store.ListBooks(cmd.Context())
		if err != nil {
			return err
		}
		for _, id := range ids {
			b, err := a.store.LoadBook(cmd.Context(), id)
			if err != nil {
				fmt.Fprintf(out, "%s\t(unreadable: %v)\n", id, err)
				continue
			}
			fmt.Fprintf(out, "%s\t%s\t%s\n", id, b.Metadata.Title, b.Metadata.Author)
		}
		return nil
	}

	remote, err := a.remote()
	if err != nil {
		return err
	}
	projects, err := remote.ListProjects(cmd.Context())
	if err != nil {
		return err
	}
	for _, p := range projects {
		fmt.Fprintf(out, "%s\t%s\t%s\n", p.ID, p.Title, p.Author)
	}
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	gw, err := a.gateway()
	if err != nil {
		return err
	}
	b, err := gw.GetBook(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s by %s\n", b.Metadata.Title, b.Metadata.Author)
	fmt.Fprintf(out, "  %d characters, %d chapters, %d plot points\n",
		len(b.Characters), len(b.Chapters), len(b.PlotPoints))
	if b.Metadata.TargetWordCount > 0 {
		fmt.Fprintf(out, "  %d of %d words (%.0f%%)\n",
			b.TotalWordCount(), b.Metadata.TargetWordCount, b.Progress()*100)
	} else {
		fmt.Fprintf(out, "  %d words\n", b.TotalWordCount())
	}

	problems := referenceProblems(b)
	for _, p := range problems {
		fmt.Fprintf(out, "  warning: %s\n", p)
	}
	if len(problems) == 0 {
		fmt.Fprintln(out, "  ok")
	}
	return nil
}

// referenceProblems lists references to entities the book does not contain
func referenceProblems(b *book.Book) []string {
	var problems []string
	for _, c := range b.Characters {
		if len(b.ResolvedRelationships(c)) == len(c.Relationships) {
			continue
		}
		for _, rel := range c.Relationships {
			if _, ok := b.Character(rel.TargetCharacterID); !ok {
				problems = append(problems, fmt.Sprintf("character %s: relationship to missing character %q", c.ID, rel.TargetCharacterID))
			}
		}
	}
	for _, p := range b.PlotPoints {
		if p.ChapterID != "" && b.ChapterIndex(p.ChapterID) < 0 {
			problems = append(problems, fmt.Sprintf("plot point %s: missing chapter %q", p.ID, p.ChapterID))
		}
		for _, id := range p.CharacterIDs {
			if b.CharacterIndex(id) < 0 {
				problems = append(problems, fmt.Sprintf("plot point %s: missing character %q", p.ID, id))
			}
		}
	}
	for _, ev := range b.Timeline.Events {
		if ev.ChapterID != "" && b.ChapterIndex(ev.ChapterID) < 0 {
			problems = append(problems, fmt.Sprintf("timeline event %s: missing chapter %q", ev.ID, ev.ChapterID))
		}
	}
	return problems
}

func runDeps(cmd *cobra.Command, args []string) error {
	kind, err := parseKind(args[1])
	if err != nil {
		return err
	}
	a, err := setup()
	if err != nil {
		return err
	}
	ws, err := a.openWorkspace(cmd.Context(), args[0], nil)
	if err != nil {
		return err
	}

	b := ws.Book()
	out := cmd.OutOrStdout()
	deps := ws.Dependencies(kind, args[2])
	if len(deps) == 0 {
		fmt.Fprintln(out, "no dependents")
		return nil
	}
	for _, id := range deps {
		fmt.Fprintf(out, "%s\t%s\n", id, describe(b, id))
	}
	return nil
}

func parseKind(s string) (book.EntityType, error) {
	switch kind := book.EntityType(strings.ToLower(s)); kind {
	case book.EntityCharacter, book.EntityChapter, book.EntityPlotPoint:
		return kind, nil
	}
	return "", fmt.Errorf("unknown entity type %q: want character, chapter or plotpoint", s)
}

// describe names an entity of the book for display
func describe(b *book.Book, id string) string {
	if c, ok := b.Character(id); ok {
		return "character " + c.Name
	}
	if ch, ok := b.Chapter(id); ok {
		return "chapter " + ch.Title
	}
	if p, ok := b.PlotPoint(id); ok {
		return "plot point " + p.Title
	}
	return "unknown"
}
