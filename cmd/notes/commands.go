package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pbaille/notes/internal/api"
	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/session"
	"github.com/pbaille/notes/internal/validate"
	"github.com/pbaille/notes/internal/workflow"
)

func (c *cli) serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web UI and JSON API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := c.open(ctx, true)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.store.EnsureDefaultProject(ctx); err != nil {
				return err
			}
			if addr == "" {
				addr = a.cfg.UI.Addr
			}

			srv, err := api.New(a.store, a.svc,
				session.NewManager(a.cfg.Session.TTL, false),
				api.Config{
					PageSize:    a.cfg.UI.PageSize,
					BackupDir:   a.cfg.DB.BackupDir,
					DefaultUser: a.cfg.UI.User,
				},
				api.WithMetrics(a.metrics),
				api.WithLogger(a.log),
			)
			if err != nil {
				return err
			}
			return srv.Run(ctx, addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default from ui.addr)")
	return cmd
}

func (c *cli) submitCmd() *cobra.Command {
	var (
		projectName string
		manual      bool
		fetchLinks  bool
	)

	cmd := &cobra.Command{
		Use:   "submit [text]",
		Short: "Clean and classify raw notes into pending notes",
		Long:  "Submit raw notes for processing. Without arguments the text is read from stdin.",
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			if text == "" {
				b, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				text = string(b)
			}

			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				p, err := a.project(ctx, projectName)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()

				if manual {
					n, err := a.svc.SaveManual(ctx, p.ID, text, a.cfg.UI.User)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Saved manual note #%d for review.\n", n.ID)
					return nil
				}

				res, err := a.svc.Submit(ctx, workflow.SubmitRequest{
					ProjectID:  p.ID,
					RawText:    text,
					User:       a.cfg.UI.User,
					FetchLinks: fetchLinks,
				})
				if err != nil {
					return fmt.Errorf("%w (rerun with --manual to save the text as is)", err)
				}
				if res.Manual {
					fmt.Fprintln(out, "(automatic processing unavailable, saved as entered)")
				}
				fmt.Fprintf(out, "Created %d note(s) for review:\n", len(res.Notes))
				for _, n := range res.Notes {
					printNote(out, n)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&projectName, "project", "p", "", "project name (default project when empty)")
	cmd.Flags().BoolVar(&manual, "manual", false, "store the text without calling the classifier")
	cmd.Flags().BoolVar(&fetchLinks, "fetch-links", true, "fetch the page when the text is a single link")
	return cmd
}

func (c *cli) pendingCmd() *cobra.Command {
	var (
		projectName string
		page        int
	)

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List notes waiting for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				pid, err := a.projectFilter(ctx, projectName)
				if err != nil {
					return err
				}
				notes, total, err := a.store.ListPending(ctx, pid, page, a.cfg.UI.PageSize)
				if err != nil {
					return err
				}
				printPage(cmd.OutOrStdout(), notes, total, page, a.cfg.UI.PageSize, "No notes waiting for review.")
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&projectName, "project", "p", "", "project name (all projects when empty)")
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	return cmd
}

func (c *cli) listCmd() *cobra.Command {
	var (
		projectName string
		status      string
		query       string
		f           domain.NoteFilter
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, newest date first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				pid, err := a.projectFilter(ctx, projectName)
				if err != nil {
					return err
				}
				if err := validate.Status(status); err != nil {
					return err
				}
				f.ProjectID = pid
				f.Status = domain.ApprovalStatus(status)
				if f.PerPage == 0 {
					f.PerPage = a.cfg.UI.PageSize
				}

				var (
					notes []domain.Note
					total int
				)
				if query != "" {
					notes, total, err = a.store.SearchNotes(ctx, query, f)
				} else {
					notes, total, err = a.store.ListNotes(ctx, f)
				}
				if err != nil {
					return err
				}
				printPage(cmd.OutOrStdout(), notes, total, f.Page, f.PerPage, "No matching notes.")
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&projectName, "project", "p", "", "project name (all projects when empty)")
	flags.StringVar(&status, "status", string(domain.StatusApproved), "approval status")
	flags.StringVarP(&query, "search", "s", "", "substring to search for")
	flags.StringVar(&f.DateFrom, "from", "", "first date (YYYY-MM-DD)")
	flags.StringVar(&f.DateTo, "to", "", "last date (YYYY-MM-DD)")
	flags.StringVar(&f.Category, "category", "", "category filter")
	flags.IntVar(&f.Page, "page", 1, "page number")
	flags.IntVarP(&f.PerPage, "limit", "n", 0, "notes per page (default ui.page_size)")
	return cmd
}

func (c *cli) reviewCmd(action workflow.Action, short string) *cobra.Command {
	var text, cat string

	cmd := &cobra.Command{
		Use:   string(action) + " [id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid note id %q", args[0])
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				user := a.cfg.UI.User
				out := cmd.OutOrStdout()

				var n *domain.Note
				switch action {
				case workflow.ActionApprove:
					var e workflow.Edits
					if text != "" {
						e.CleanedText = &text
					}
					if cat != "" {
						e.Category = &cat
					}
					n, err = a.svc.Approve(ctx, id, user, e)
				case workflow.ActionReject:
					n, err = a.svc.Reject(ctx, id, user)
				case workflow.ActionRestore:
					n, err = a.svc.Restore(ctx, id, user)
				case workflow.ActionDelete:
					if err := a.svc.Delete(ctx, id, user); err != nil {
						return err
					}
					fmt.Fprintf(out, "Deleted note #%d.\n", id)
					return nil
				}
				if err != nil {
					return err
				}
				printNote(out, *n)
				return nil
			})
		},
	}

	if action == workflow.ActionApprove {
		cmd.Flags().StringVar(&text, "text", "", "replace the cleaned text")
		cmd.Flags().StringVar(&cat, "category", "", "replace the category")
	}
	return cmd
}

func (c *cli) projectsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "Manage projects",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List projects in creation order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				projects, err := a.store.ListProjects(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(projects) == 0 {
					fmt.Fprintln(out, "No projects yet. Use 'notes projects create' to add one.")
					return nil
				}
				for _, p := range projects {
					fmt.Fprintf(out, "%4d  %s  %s\n", p.ID, p.CreatedAt.Format("2006-01-02"), p.Name)
				}
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "create [name]",
		Short: "Create a project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				p, err := a.svc.CreateProject(ctx, strings.Join(args, " "), a.cfg.UI.User)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created project #%d %q.\n", p.ID, p.Name)
				return nil
			})
		},
	}, &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete a project and all of its notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid project id %q", args[0])
			}
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.svc.DeleteProject(ctx, id, a.cfg.UI.User); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted project #%d.\n", id)
				return nil
			})
		},
	})
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	var projectName string

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show note counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				pid, err := a.projectFilter(ctx, projectName)
				if err != nil {
					return err
				}
				st, err := a.store.Stats(ctx, pid)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, "By status:")
				for _, s := range domain.Statuses {
					fmt.Fprintf(out, "  %-10s %d\n", api.Title(string(s)), st.ByStatus[s])
				}
				printCounts(out, "Approved by category:", st.ByCategory, false)
				printCounts(out, "Approved per day (last 30 days):", st.NotesPerDay, true)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&projectName, "project", "p", "", "project name (all projects when empty)")
	return cmd
}

func (c *cli) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the note-processing API answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.svc.PingClassifier(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Classifier reachable at %s\n", a.cfg.LLM.URL)
				return nil
			})
		},
	}
}

func (c *cli) backupCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Write a timestamped copy of the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd, func(ctx context.Context, a *app) error {
				if dir == "" {
					dir = a.cfg.DB.BackupDir
				}
				path, err := a.svc.Backup(ctx, dir, a.cfg.UI.User)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Backup written to %s\n", path)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "backup directory (default db.backup_dir)")
	return cmd
}

func printNote(w io.Writer, n domain.Note) {
	cat := n.CategoryName()
	if cat == "" {
		cat = "Uncategorized"
	}
	fmt.Fprintf(w, "#%-5d %s %s  [%s] %s\n", n.ID, n.Date, n.Timestamp, cat, api.Title(string(n.ApprovalStatus)))
	fmt.Fprintf(w, "       %s\n", truncate(n.DisplayText(), 100))
	if n.ConfidenceScore != nil {
		fmt.Fprintf(w, "       confidence %.0f%%\n", *n.ConfidenceScore*100)
	}
	if n.ClarifyingQuestion != nil {
		fmt.Fprintf(w, "       question: %s\n", *n.ClarifyingQuestion)
	}
}

func printPage(w io.Writer, notes []domain.Note, total, page, perPage int, empty string) {
	if total == 0 {
		fmt.Fprintln(w, empty)
		return
	}
	for _, n := range notes {
		printNote(w, n)
	}
	fmt.Fprintf(w, "Page %d of %d (%d notes)\n", page, domain.TotalPages(total, perPage), total)
}

// printCounts prints a count table sorted by key, descending when desc is set.
func printCounts(w io.Writer, title string, counts map[string]int, desc bool) {
	fmt.Fprintln(w, title)
	if len(counts) == 0 {
		fmt.Fprintln(w, "  none")
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	if desc {
		slices.Reverse(keys)
	}
	for _, k := range keys {
		fmt.Fprintf(w, "  %-25s %d\n", k, counts[k])
	}
}

func truncate(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func writeOutput(cmd *cobra.Command, path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(cmd.OutOrStdout())
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", path)
	return nil
}
