package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/pbaille/notes/internal/audit"
	"github.com/pbaille/notes/internal/classifier"
	"github.com/pbaille/notes/internal/config"
	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/fetcher"
	"github.com/pbaille/notes/internal/logger"
	"github.com/pbaille/notes/internal/metrics"
	"github.com/pbaille/notes/internal/retry"
	"github.com/pbaille/notes/internal/store"
	"github.com/pbaille/notes/internal/workflow"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// cli holds the configuration shared by every subcommand.
type cli struct {
	v          *viper.Viper
	configFile string
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:          "notes",
		Short:        "Capture, classify and review project notes",
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file (default ./notes.yaml or ~/.notes/notes.yaml)")
	flags.String("db", "", "database path")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("user", "", "user name recorded in the audit log")
	for key, flag := range map[string]string{"db.path": "db", "log.level": "log-level", "ui.user": "user"} {
		_ = c.v.BindPFlag(key, flags.Lookup(flag))
	}

	rootCmd.AddCommand(
		c.serveCmd(),
		c.submitCmd(),
		c.pendingCmd(),
		c.listCmd(),
		c.reviewCmd(workflow.ActionApprove, "Approve a pending note"),
		c.reviewCmd(workflow.ActionReject, "Reject a pending note"),
		c.reviewCmd(workflow.ActionRestore, "Move a rejected note back to review"),
		c.reviewCmd(workflow.ActionDelete, "Permanently delete a note"),
		c.projectsCmd(),
		c.statsCmd(),
		c.pingCmd(),
		c.backupCmd(),
		c.exportCmd(),
	)
	return rootCmd
}

// app is the wired application for one command run.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	store   *store.Store
	svc     *workflow.Service
	metrics *metrics.Metrics
}

func (c *cli) open(ctx context.Context, withMetrics bool) (*app, error) {
	cfg, err := config.Load(c.v, c.configFile)
	if err != nil {
		return nil, err
	}

	var outputs []string
	if cfg.Log.File != "" {
		outputs = append(outputs, cfg.Log.File)
	}
	log, err := logger.NewLogger(logger.Environment(cfg.Log.Mode), cfg.Log.Level, outputs...)
	if err != nil {
		return nil, err
	}
	logger.SetGlobal(log)

	st, err := store.Open(ctx, cfg.DB.Path)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log, store: st}
	if withMetrics {
		if a.metrics, err = metrics.New(); err != nil {
			st.Close()
			return nil, err
		}
	}

	opts := []workflow.Option{
		workflow.WithAudit(audit.New(st)),
		workflow.WithLinkFetcher(fetcher.New(nil)),
		workflow.WithMetrics(a.metrics),
	}

	client, err := classifier.New(classifier.Config{
		APIKey:      cfg.LLM.APIKey,
		URL:         cfg.LLM.URL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	}, classifier.WithRetryPolicy(retry.Policy{
		MaxAttempts: cfg.LLM.MaxAttempts,
		Delays:      cfg.LLM.Delays,
	}))
	switch {
	case errors.Is(err, classifier.ErrNotConfigured):
		log.Warn(ctx, "llm api key not configured, notes will be saved for manual review")
	case err != nil:
		st.Close()
		return nil, err
	default:
		opts = append(opts, workflow.WithClassifier(client, cfg.LLM.URL))
		log.Debug(ctx, "classifier configured", zap.String("model", client.Model()))
	}

	a.svc = workflow.New(st, opts...)
	return a, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// withApp runs fn with an opened app and closes it afterwards.
func (c *cli) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := c.open(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// project resolves a project name, or the default project when name is empty.
func (a *app) project(ctx context.Context, name string) (*domain.Project, error) {
	if name == "" {
		return a.store.EnsureDefaultProject(ctx)
	}
	p, err := a.store.GetProjectByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("project %q: %w", name, err)
	}
	return p, nil
}

// projectFilter resolves name to an id, where an empty name means every project.
func (a *app) projectFilter(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, nil
	}
	p, err := a.project(ctx, name)
	if err != nil {
		return 0, err
	}
	return p.ID, nil
}
