package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/export"
)

type exportFlags struct {
	project string
	out     string
	f       domain.NoteFilter
}

func (c *cli) exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export approved notes",
	}

	cmd.AddCommand(
		c.exportSubcmd("csv", "Export approved notes as CSV", "csv",
			func(w io.Writer, notes []domain.Note, _ domain.NoteFilter, _ time.Time) error {
				return export.CSV(w, notes)
			}),
		c.exportSubcmd("daily", "Export approved notes grouped by date as markdown", "daily markdown",
			func(w io.Writer, notes []domain.Note, f domain.NoteFilter, now time.Time) error {
				_, err := io.WriteString(w, export.DailyMarkdown(notes, f.DateFrom, f.DateTo, now))
				return err
			}),
		c.exportSubcmd("categories", "Export approved notes grouped by category as markdown", "category markdown",
			func(w io.Writer, notes []domain.Note, f domain.NoteFilter, now time.Time) error {
				_, err := io.WriteString(w, export.CategoryMarkdown(notes, f.Category, now))
				return err
			}),
	)
	return cmd
}

type renderFunc func(w io.Writer, notes []domain.Note, f domain.NoteFilter, now time.Time) error

func (c *cli) exportSubcmd(use, short, format string, render renderFunc) *cobra.Command {
	var ef exportFlags

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				pid, err := a.projectFilter(ctx, ef.project)
				if err != nil {
					return err
				}
				f := ef.f
				f.Status = domain.StatusApproved
				f.ProjectID = pid

				notes, _, err := a.store.ListNotes(ctx, f)
				if err != nil {
					return err
				}
				a.svc.RecordExport(ctx, a.cfg.UI.User, format, len(notes))

				now := time.Now()
				return writeOutput(cmd, ef.out, func(w io.Writer) error {
					return render(w, notes, f, now)
				})
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&ef.project, "project", "p", "", "project name (all projects when empty)")
	flags.StringVarP(&ef.out, "out", "o", "", "output file (stdout when empty)")
	flags.StringVar(&ef.f.DateFrom, "from", "", "first date (YYYY-MM-DD)")
	flags.StringVar(&ef.f.DateTo, "to", "", "last date (YYYY-MM-DD)")
	flags.StringVar(&ef.f.Category, "category", "", "category filter")
	return cmd
}
