package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/pbaille/notes/internal/category"
	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/validate"
	"github.com/pbaille/notes/internal/workflow"
)

// HeaderUser names the acting user for audit entries on API calls.
const HeaderUser = "X-Notes-User"

const maxPerPage = 500

// NotesPage is a page of notes with paging metadata.
type NotesPage struct {
	Items      []domain.Note `json:"items"`
	Total      int           `json:"total"`
	Page       int           `json:"page"`
	PerPage    int           `json:"per_page"`
	TotalPages int           `json:"total_pages"`
}

// SubmitRequest is the body of POST /api/notes.
type SubmitRequest struct {
	ProjectID  int64  `json:"project_id"`
	RawText    string `json:"raw_text"`
	User       string `json:"user,omitempty"`
	FetchLinks bool   `json:"fetch_links,omitempty"`
	// Manual stores the text without calling the classifier.
	Manual bool `json:"manual,omitempty"`
}

// SubmitResponse lists the notes created by a submission.
type SubmitResponse struct {
	Notes  []domain.Note `json:"notes"`
	Manual bool          `json:"manual"`
}

// EditRequest carries optional content changes.
type EditRequest struct {
	CleanedText *string `json:"cleaned_text,omitempty"`
	Category    *string `json:"category,omitempty"`
}

func (r EditRequest) edits() workflow.Edits {
	return workflow.Edits{CleanedText: r.CleanedText, Category: r.Category}
}

type createProjectRequest struct {
	Name string `json:"name"`
}

func (s *Server) apiUser(c echo.Context) string {
	if u := strings.TrimSpace(c.Request().Header.Get(HeaderUser)); u != "" {
		return u
	}
	return s.cfg.DefaultUser
}

func newNotesPage(items []domain.Note, total, page, perPage int) NotesPage {
	if items == nil {
		items = []domain.Note{}
	}
	return NotesPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PerPage:    perPage,
		TotalPages: domain.TotalPages(total, perPage),
	}
}

// filterFromQuery reads status, project_id, date_from, date_to, category,
// page and per_page.
func (s *Server) filterFromQuery(c echo.Context) (domain.NoteFilter, error) {
	f := domain.NoteFilter{
		ProjectID: queryInt64(c, "project_id"),
		DateFrom:  c.QueryParam("date_from"),
		DateTo:    c.QueryParam("date_to"),
		Category:  c.QueryParam("category"),
		Page:      queryInt(c, "page", 1),
		PerPage:   min(queryInt(c, "per_page", s.cfg.PageSize), maxPerPage),
	}
	if st := c.QueryParam("status"); st != "" {
		if err := validate.Status(st); err != nil {
			return f, err
		}
		f.Status = domain.ApprovalStatus(st)
	}
	if f.DateFrom != "" {
		if err := validate.Date(f.DateFrom); err != nil {
			return f, err
		}
	}
	if f.DateTo != "" {
		if err := validate.Date(f.DateTo); err != nil {
			return f, err
		}
	}
	if f.Category != "" {
		if err := validate.Category(f.Category); err != nil {
			return f, err
		}
	}
	return f, nil
}

// resolveProject returns the project with id, or the default project when id is zero.
func (s *Server) resolveProject(ctx context.Context, id int64) (*domain.Project, error) {
	if id == 0 {
		return s.store.EnsureDefaultProject(ctx)
	}
	return s.store.GetProject(ctx, id)
}

func (s *Server) apiListProjects(c echo.Context) error {
	projects, err := s.store.ListProjects(c.Request().Context())
	if err != nil {
		return s.handleError(c, err, "failed to list projects")
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	return c.JSON(http.StatusOK, projects)
}

func (s *Server) apiCreateProject(c echo.Context) error {
	var req createProjectRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, err, "invalid request body")
	}
	p, err := s.svc.CreateProject(c.Request().Context(), req.Name, s.apiUser(c))
	if err != nil {
		return s.handleError(c, err, "failed to create project")
	}
	return c.JSON(http.StatusCreated, p)
}

func (s *Server) apiDeleteProject(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return s.handleError(c, err, "invalid project id")
	}
	if err := s.svc.DeleteProject(c.Request().Context(), id, s.apiUser(c)); err != nil {
		return s.handleError(c, err, "failed to delete project")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) apiListNotes(c echo.Context) error {
	f, err := s.filterFromQuery(c)
	if err != nil {
		return s.handleError(c, err, "invalid filter")
	}
	items, total, err := s.store.ListNotes(c.Request().Context(), f)
	if err != nil {
		return s.handleError(c, err, "failed to list notes")
	}
	return c.JSON(http.StatusOK, newNotesPage(items, total, f.Page, f.PerPage))
}

func (s *Server) apiSubmit(c echo.Context) error {
	var req SubmitRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, err, "invalid request body")
	}
	ctx := c.Request().Context()

	project, err := s.resolveProject(ctx, req.ProjectID)
	if err != nil {
		return s.handleError(c, err, "unknown project")
	}
	user := req.User
	if user == "" {
		user = s.apiUser(c)
	}

	if req.Manual {
		n, err := s.svc.SaveManual(ctx, project.ID, req.RawText, user)
		if err != nil {
			return s.handleError(c, err, "failed to save note")
		}
		return c.JSON(http.StatusCreated, SubmitResponse{Notes: []domain.Note{*n}, Manual: true})
	}

	res, err := s.svc.Submit(ctx, workflow.SubmitRequest{
		ProjectID:  project.ID,
		RawText:    req.RawText,
		User:       user,
		FetchLinks: req.FetchLinks,
	})
	if err != nil {
		return s.handleError(c, err, "note processing failed; resubmit with manual=true to save the text as is")
	}
	if res.Notes == nil {
		res.Notes = []domain.Note{}
	}
	return c.JSON(http.StatusCreated, SubmitResponse{Notes: res.Notes, Manual: res.Manual})
}

func (s *Server) apiGetNote(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return s.handleError(c, err, "invalid note id")
	}
	n, err := s.store.GetNote(c.Request().Context(), id)
	if err != nil {
		return s.handleError(c, err, "note not found")
	}
	return c.JSON(http.StatusOK, n)
}

func (s *Server) apiEditNote(c echo.Context) error {
	return s.apiReview(c, func(ctx context.Context, id int64, user string, req EditRequest) (*domain.Note, error) {
		return s.svc.Edit(ctx, id, user, req.edits())
	})
}

func (s *Server) apiApprove(c echo.Context) error {
	return s.apiReview(c, func(ctx context.Context, id int64, user string, req EditRequest) (*domain.Note, error) {
		return s.svc.Approve(ctx, id, user, req.edits())
	})
}

func (s *Server) apiReject(c echo.Context) error {
	return s.apiReview(c, func(ctx context.Context, id int64, user string, _ EditRequest) (*domain.Note, error) {
		return s.svc.Reject(ctx, id, user)
	})
}

func (s *Server) apiRestore(c echo.Context) error {
	return s.apiReview(c, func(ctx context.Context, id int64, user string, _ EditRequest) (*domain.Note, error) {
		return s.svc.Restore(ctx, id, user)
	})
}

type reviewFunc func(ctx context.Context, id int64, user string, req EditRequest) (*domain.Note, error)

func (s *Server) apiReview(c echo.Context, apply reviewFunc) error {
	id, err := paramID(c)
	if err != nil {
		return s.handleError(c, err, "invalid note id")
	}
	var req EditRequest
	if err := c.Bind(&req); err != nil {
		return s.handleError(c, err, "invalid request body")
	}
	n, err := apply(c.Request().Context(), id, s.apiUser(c), req)
	if err != nil {
		return s.handleError(c, err, "review action failed")
	}
	return c.JSON(http.StatusOK, n)
}

func (s *Server) apiDeleteNote(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return s.handleError(c, err, "invalid note id")
	}
	if err := s.svc.Delete(c.Request().Context(), id, s.apiUser(c)); err != nil {
		return s.handleError(c, err, "failed to delete note")
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) apiPending(c echo.Context) error {
	page := queryInt(c, "page", 1)
	perPage := min(queryInt(c, "per_page", s.cfg.PageSize), maxPerPage)
	items, total, err := s.store.ListPending(c.Request().Context(), queryInt64(c, "project_id"), page, perPage)
	if err != nil {
		return s.handleError(c, err, "failed to list pending notes")
	}
	return c.JSON(http.StatusOK, newNotesPage(items, total, page, perPage))
}

func (s *Server) apiSearch(c echo.Context) error {
	q := strings.TrimSpace(c.QueryParam("q"))
	if q == "" {
		return s.handleError(c, echo.NewHTTPError(http.StatusBadRequest, "q is required"), "missing query")
	}
	f, err := s.filterFromQuery(c)
	if err != nil {
		return s.handleError(c, err, "invalid filter")
	}
	items, total, err := s.store.SearchNotes(c.Request().Context(), q, f)
	if err != nil {
		return s.handleError(c, err, "search failed")
	}
	return c.JSON(http.StatusOK, newNotesPage(items, total, f.Page, f.PerPage))
}

func (s *Server) apiStats(c echo.Context) error {
	st, err := s.store.Stats(c.Request().Context(), queryInt64(c, "project_id"))
	if err != nil {
		return s.handleError(c, err, "failed to compute statistics")
	}
	return c.JSON(http.StatusOK, st)
}

func (s *Server) apiCategories(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string][]string{"categories": category.List()})
}

func (s *Server) apiLogs(c echo.Context) error {
	level := strings.ToUpper(c.QueryParam("level"))
	logs, err := s.store.ListLogs(c.Request().Context(), level, min(queryInt(c, "limit", 100), 1000))
	if err != nil {
		return s.handleError(c, err, "failed to list logs")
	}
	if logs == nil {
		logs = []domain.LogEntry{}
	}
	return c.JSON(http.StatusOK, logs)
}
