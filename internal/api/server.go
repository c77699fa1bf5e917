// Package api serves the web UI and the JSON API over echo.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/logger"
	"github.com/pbaille/notes/internal/metrics"
	"github.com/pbaille/notes/internal/session"
	"github.com/pbaille/notes/internal/workflow"
)

// Reader is the read side of the store used by the handlers.
type Reader interface {
	GetNote(ctx context.Context, id int64) (*domain.Note, error)
	ListNotes(ctx context.Context, f domain.NoteFilter) ([]domain.Note, int, error)
	SearchNotes(ctx context.Context, query string, f domain.NoteFilter) ([]domain.Note, int, error)
	ListPending(ctx context.Context, projectID int64, page, perPage int) ([]domain.Note, int, error)
	ListByCategory(ctx context.Context, category string, status domain.ApprovalStatus, projectID int64) ([]domain.Note, error)
	GetProject(ctx context.Context, id int64) (*domain.Project, error)
	ListProjects(ctx context.Context) ([]domain.Project, error)
	EnsureDefaultProject(ctx context.Context) (*domain.Project, error)
	Stats(ctx context.Context, projectID int64) (*domain.Stats, error)
	ListLogs(ctx context.Context, level string, limit int) ([]domain.LogEntry, error)
}

// Config holds the server settings taken from the application config.
type Config struct {
	PageSize    int
	BackupDir   string
	DefaultUser string
}

// Server wires the workflow and store to HTTP routes.
type Server struct {
	echo     *echo.Echo
	store    Reader
	svc      *workflow.Service
	sessions *session.Manager
	metrics  *metrics.Metrics
	log      *logger.Logger
	cfg      Config
	now      func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the logger attached to every request context.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// New builds the echo instance and registers every route.
func New(st Reader, svc *workflow.Service, sessions *session.Manager, cfg Config, opts ...Option) (*Server, error) {
	if cfg.PageSize < 1 {
		cfg.PageSize = 50
	}
	if cfg.DefaultUser == "" {
		cfg.DefaultUser = "default_user"
	}
	s := &Server{
		echo:     echo.New(),
		store:    st,
		svc:      svc,
		sessions: sessions,
		cfg:      cfg,
		log:      logger.Log(context.Background()),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	renderer, err := newRenderer()
	if err != nil {
		return nil, err
	}
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Renderer = renderer

	s.echo.Use(middleware.Recover())
	s.echo.Use(s.requestContext)
	s.echo.Use(s.observe)

	s.routes()
	return s, nil
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "starting server", zap.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serve %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info(ctx, "shutting down server")
	return s.echo.Shutdown(shutdownCtx)
}

func (s *Server) routes() {
	e := s.echo

	e.GET("/health", s.health)
	if s.metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
	}

	// Pages
	e.GET("/", s.submitPage)
	e.POST("/notes", s.submitForm)
	e.POST("/notes/manual", s.manualForm)
	e.GET("/review", s.reviewPage)
	e.POST("/notes/:id/:action", s.noteAction)
	e.GET("/rejected", s.rejectedPage)
	e.POST("/rejected/restore-all", s.restoreAllForm)
	e.POST("/rejected/purge", s.purgeForm)
	e.GET("/daily", s.dailyPage)
	e.GET("/categories", s.categoriesPage)
	e.GET("/projects", s.projectsPage)
	e.POST("/projects", s.createProjectForm)
	e.POST("/projects/:id/select", s.selectProjectForm)
	e.POST("/projects/:id/delete", s.deleteProjectForm)
	e.POST("/backup", s.backupForm)

	// Downloads
	e.GET("/export/notes.csv", s.exportCSV)
	e.GET("/export/daily.md", s.exportDaily)
	e.GET("/export/categories.md", s.exportCategories)

	// JSON
	g := e.Group("/api")
	g.GET("/projects", s.apiListProjects)
	g.POST("/projects", s.apiCreateProject)
	g.DELETE("/projects/:id", s.apiDeleteProject)
	g.GET("/notes", s.apiListNotes)
	g.POST("/notes", s.apiSubmit)
	g.GET("/notes/:id", s.apiGetNote)
	g.PATCH("/notes/:id", s.apiEditNote)
	g.DELETE("/notes/:id", s.apiDeleteNote)
	g.POST("/notes/:id/approve", s.apiApprove)
	g.POST("/notes/:id/reject", s.apiReject)
	g.POST("/notes/:id/restore", s.apiRestore)
	g.GET("/pending", s.apiPending)
	g.GET("/search", s.apiSearch)
	g.GET("/stats", s.apiStats)
	g.GET("/categories", s.apiCategories)
	g.GET("/logs", s.apiLogs)
}

// requestContext attaches the logger and a request id to the request context.
func (s *Server) requestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := logger.NewContext(req.Context(), s.log)
		ctx = logger.NewRequestIDContext(ctx, req.Header.Get(echo.HeaderXRequestID))
		if id, ok := logger.GetRequestID(ctx); ok {
			c.Response().Header().Set(echo.HeaderXRequestID, id)
		}
		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

// observe logs and counts every request after the handler has written its response.
func (s *Server) observe(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		if err := next(c); err != nil {
			c.Error(err)
		}
		elapsed := time.Since(start)

		req := c.Request()
		status := c.Response().Status
		s.metrics.RecordHTTPRequest(req.Method, c.Path(), status, elapsed)
		logger.Log(req.Context()).Debug(req.Context(), "http request",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Int("status", status),
			zap.Duration("duration", elapsed))
		return nil
	}
}

// health reports liveness. With check=classifier it also sends a test
// request to the classifier.
func (s *Server) health(c echo.Context) error {
	body := map[string]any{
		"status":     "ok",
		"classifier": s.svc.ClassifierAvailable(),
	}
	if c.QueryParam("check") == "classifier" {
		err := s.svc.PingClassifier(c.Request().Context())
		body["classifier_reachable"] = err == nil
		if err != nil {
			body["classifier_error"] = err.Error()
		}
	}
	return c.JSON(http.StatusOK, body)
}
