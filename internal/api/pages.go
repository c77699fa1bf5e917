package api

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/pbaille/notes/internal/category"
	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/export"
	"github.com/pbaille/notes/internal/logger"
	"github.com/pbaille/notes/internal/session"
	"github.com/pbaille/notes/internal/store"
	"github.com/pbaille/notes/internal/validate"
	"github.com/pbaille/notes/internal/workflow"
)

const (
	flashSuccess = "success"
	flashError   = "error"
	flashInfo    = "info"
)

type submitView struct {
	RawText     string
	Failure     string
	OfferManual bool
}

type listView struct {
	Notes      []domain.Note
	Pagination Pagination
}

type dailyView struct {
	Groups     []export.Group
	From       string
	To         string
	Category   string
	Search     string
	Pagination Pagination
}

type categoriesView struct {
	Category     string
	Search       string
	Query        template.URL
	Actions      bool
	Groups       []export.Group
	ActionGroups []export.ActionGroup
}

// state is the per-request view of the browser session.
type state struct {
	sess    *session.Session
	project *domain.Project
	user    string
}

// loadState resolves the session and its current project, falling back to
// the default project when none is selected or the selection was deleted.
func (s *Server) loadState(c echo.Context) (*state, error) {
	ctx := c.Request().Context()
	sess := s.sessions.Load(c.Response(), c.Request())

	var project *domain.Project
	if sess.ProjectID != 0 {
		p, err := s.store.GetProject(ctx, sess.ProjectID)
		switch {
		case err == nil:
			project = p
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	if project == nil {
		p, err := s.store.EnsureDefaultProject(ctx)
		if err != nil {
			return nil, err
		}
		project = p
		s.sessions.SetProject(sess, p.ID)
	}

	user := sess.User
	if user == "" {
		user = s.cfg.DefaultUser
	}
	return &state{sess: sess, project: project, user: user}, nil
}

func (s *Server) render(c echo.Context, code int, st *state, name, title string, data any) error {
	projects, err := s.store.ListProjects(c.Request().Context())
	if err != nil {
		return err
	}
	return c.Render(code, name, PageData{
		Title:      title,
		Page:       c.Request().URL.Path,
		Project:    st.project,
		Projects:   projects,
		User:       st.user,
		Flash:      s.sessions.PopFlash(st.sess),
		Classifier: s.svc.ClassifierAvailable(),
		Data:       data,
	})
}

// redirectBack sends the browser to the form's next field when it is a
// local path, else to fallback.
func redirectBack(c echo.Context, fallback string) error {
	next := c.FormValue("next")
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") {
		next = fallback
	}
	return c.Redirect(http.StatusSeeOther, next)
}

func (s *Server) flashError(c echo.Context, st *state, err error) {
	ctx := c.Request().Context()
	if statusFor(err) >= http.StatusInternalServerError {
		logger.Log(ctx).Error(ctx, "request failed", zap.Error(err), zap.String("path", c.Request().URL.Path))
	}
	s.sessions.AddFlash(st.sess, flashError, userMessage(err))
}

// userMessage renders err for display, dropping wrapping prefixes for known classes.
func userMessage(err error) string {
	switch {
	case errors.Is(err, store.ErrDuplicateName):
		return "A project with that name already exists."
	case errors.Is(err, store.ErrNotFound):
		return "That item no longer exists."
	case errors.Is(err, workflow.ErrInvalidTransition):
		return "That action is not allowed for the note's current status."
	}
	return err.Error()
}

func pagination(page, perPage, total int, q url.Values) Pagination {
	p := Pagination{
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: domain.TotalPages(total, perPage),
	}
	if enc := q.Encode(); enc != "" {
		p.Query = template.URL(enc + "&")
	}
	return p
}

func (s *Server) submitPage(c echo.Context) error {
	st, err := s.loadState(c)
	if err != nil {
		return err
	}
	return s.render(c, http.StatusOK, st, "submit", "Submit Notes", submitView{})
}

func (s *Server) submitForm(c echo.Context) error {
	st, err := s.loadState(c)
	if err != nil {
		return err
	}
	if u := strings.TrimSpace(c.FormValue("user")); u != "" {
		s.sessions.SetUser(st.sess, u)
		st.user = u
	}
	raw := c.FormValue("raw_text")

	res, err := s.svc.Submit(c.Request().Context(), workflow.SubmitRequest{
		ProjectID:  st.project.ID,
		RawText:    raw,
		User:       st.user,
		FetchLinks: c.FormValue("fetch_links") != "",
	})
	if err != nil {
		view := submitView{RawText: raw, Failure: userMessage(err)}
		if !errors.Is(err, validate.ErrInvalid) {
			view.Failure = "Automatic processing failed: " + err.Error()
			view.OfferManual = true
		}
		return s.render(c, statusFor(err), st, "submit", "Submit Notes", view)
	}

	if res.Manual {
		s.sessions.AddFlash(st.sess, flashInfo, "Automatic processing is unavailable; your note was saved as entered.")
	} else {
		s.sessions.AddFlash(st.sess, flashSuccess, fmt.Sprintf("Created %d note(s) for review.", len(res.Notes)))
	}
	return c.Redirect(http.StatusSeeOther, "/review")
}

func (s *Server) manualForm(c echo.Context) error {
	st, err := s.loadState(c)
	if err != nil {
		return err
	}
	raw := c.FormValue("raw_text")
	if _, err := s.svc.SaveManual(c.Request().Context(), st.project.ID, raw, st.user); err != nil {
		view := submitView{RawText: raw, Failure: userMessage(err)}
		return s.render(c, statusFor(err), st, "submit", "Submit Notes", view)
	}
	s.sessions.AddFlash(st.sess, flashSuccess, "Note saved for review.")
	return c.Redirect(http.StatusSeeOther, "/review")
}

func (s *Server) reviewPage(c echo.Context) error {
	st, err := s.loadState(c)
	if err != nil {
		return err
	}
	page := queryInt(c, "page", 1)
	notes, total, err := s.store.ListPending(c.Request().Context(), st.project.ID, page, s.cfg.PageSize)
	if err != nil {
		return err
	}
	return s.render(c, http.StatusOK, st, "review", "Review Notes", listView{
		Notes:      notes,
		Pagination: pagination(page, s.cfg.PageSize, total, nil),
	})
}

var actionResults = map[workflow.Action]string{
	workflow.ActionApprove: "approved",
	workflow.ActionReject:  "rejected",
	workflow.ActionRestore: "restored",
	workflow.ActionEdit:    "updated",
	workflow.ActionDelete:  "deleted",
}

func formEdits(c echo.Context) workflow.Edits {
	var e workflow.Edits
	if text := strings.TrimSpace(c.FormValue("cleaned_text")); text != "" {
		e.CleanedText = &text
	}
	if cat := c.FormValue("category"); cat != "" {
		e.Category = &cat
	}
	return e
}

func (s *Server) noteAction(c echo.Context) error {
	action := workflow.Action(c.Param("action"))
	result, ok := actionResults[action]
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown action")
	}
	id, err := paramID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := s.loadState(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	switch action {
	case workflow.ActionApprove:
		_, err = s.svc.Approve(ctx, id, st.user, formEdits(c))
	case workflow.ActionReject:
		_, err = s.svc.Reject(ctx, id, st.user)
	case workflow.ActionRestore:
		_, err = s.svc.Restore(ctx, id, st.user)
	case workflow.ActionEdit:
		_, err = s.svc.Edit(ctx, id, st.user, formEdits(c))
	case workflow.ActionDelete:
		err = s.svc.Delete(ctx, id, st.user)
	}
	if err != nil {
		s.flashError(c, st, err)
	} else {
		s.sessions.AddFlash(st.sess, flashSuccess, fmt.Sprintf("Note #%d %s.", id, result))
	}
	return redirectBack(c, "/review")
}

func (s *Server) rejectedPage(c echo.Context) error {
	st, err := s.loadState(c)
	if err != nil {
		return err
	}
	f := domain.NoteFilter{
		Status:    domain.StatusRejected,
		ProjectID: st.project.ID,
		Page:      queryInt(c, "page", 1),
		PerPage:   s.cfg.PageSize,
	}
	notes, total, err := s.store.ListNotes(c.Request().Context(), f)
	if err != nil {
		return err
	}
	return s.render(c, http.StatusOK, st, "rejected", "Rejected Notes", listView{
		Notes:      notes,
		Pagination: pagination(f.Page, f.PerPage, total, nil),
	})
}

func (s *Server) restoreAllForm(c echo.Context) error {
	st, err := s.loadState(c)
	if err != nil {
		return err
	}
	n, err := s.svc.RestoreAll(c.Request().Context(), st.project.ID, st.user)
	if err != nil {
		s.flashError(c, st, err)
	} else {
		s.sessions.AddFlash(st.sess, flashSuccess, fmt.Sprintf("Restored %d note(s) to review.", n))
	}
	return c.Redirect(http.StatusSeeOther, "/rejected")
}

func (s *Server) purgeForm(c echo.Context) error {
	st, err := s.loadState(c)
	if err != nil {
		return err
	}
	n, err := s.svc.PurgeRejected(c.Request().Context(), st.project.ID, st.user)
	if err != nil {
		s.flashError(c, st, err)
	} else {
		s.sessions.AddFlash(st.sess, flashSuccess, fmt.Sprintf("Permanently deleted %d note(s).", n))
	}
	return c.Redirect(http.StatusSeeOther, "/rejected")
}

// browse is the listing request of the browse pages and downloads: approved
// notes of the current project, optionally narrowed by a search term.
type browse struct {
	filter domain.NoteFilter
	search string
	query  url.Values
}

func (s *Server) approvedFilter(c echo.Context, st *state) (browse, error) {
	f, err := s.filterFromQuery(c)
	if err != nil {
		return browse{}, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f.Status = domain.StatusApproved
	f.ProjectID = st.project.ID
	b := browse{filter: f, search: strings.TrimSpace(c.QueryParam("q")), query: url.Values{}}

	for key, v := range map[string]string{"date_from": f.DateFrom, "date_to": f.DateTo, "category": f.Category, "q": b.search} {
		if v != "" {
			b.query.Set(key, v)
		}
	}
	return b, nil
}

func (s *Server) browseNotes(ctx context.Context, b browse) ([]domain.Note, int, error) {
	if b.search != "" {
		return s.store.SearchNotes(ctx, b.search, b.filter)
	}
	return s.store.ListNotes(ctx, b.filter)
}

func (s *Server) dailyPage(c echo.Context) error {
	st, err := s.loadState(c)
	if err != nil {
		return err
	}
	b, err := s.approvedFilter(c, st)
	if err != nil {
		return err
	}
	notes, total, err := s.browseNotes(c.Request().Context(), b)
	if err != nil {
		return err
	}
	f := b.filter
	return s.render(c, http.StatusOK, st, "daily", "Daily Notes", dailyView{
		Groups:     export.ByDate(notes),
		From:       f.DateFrom,
		To:         f.DateTo,
		Category:   f.Category,
		Search:     b.search,
		Pagination: pagination(f.Page, f.PerPage, total, b.query),
	})
}

func (s *Server) categoriesPage(c echo.Context) error {
	st, err := s.loadState(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if c.QueryParam("view") == "actions" {
		notes, err := s.store.ListByCategory(ctx, category.ActionItems, domain.StatusApproved, st.project.ID)
		if err != nil {
			return err
		}
		return s.render(c, http.StatusOK, st, "categories", "Action Items", categoriesView{
			Category:     category.ActionItems,
			Actions:      true,
			ActionGroups: export.ActionItems(notes),
		})
	}

	b, err := s.approvedFilter(c, st)
	if err != nil {
		return err
	}
	b.filter.Page, b.filter.PerPage = 0, 0
	notes, _, err := s.browseNotes(ctx, b)
	if err != nil {
		return err
	}
	return s.render(c, http.StatusOK, st, "categories", "Notes by Category", categoriesView{
		Category: b.filter.Category,
		Search:   b.search,
		Query:    template.URL(b.query.Encode()),
		Groups:   export.ByCategory(notes),
	})
}

func (s *Server) projectsPage(c echo.Context) error {
	st, err := s.loadState(c)
	if err != nil {
		return err
	}
	stats, err := s.store.Stats(c.Request().Context(), st.project.ID)
	if err != nil {
		return err
	}
	return s.render(c, http.StatusOK, st, "projects", "Projects", stats)
}

func (s *Server) createProjectForm(c echo.Context) error {
	st, err := s.loadState(c)
	if err != nil {
		return err
	}
	p, err := s.svc.CreateProject(c.Request().Context(), c.FormValue("name"), st.user)
	if err != nil {
		s.flashError(c, st, err)
		return c.Redirect(http.StatusSeeOther, "/projects")
	}
	s.sessions.SetProject(st.sess, p.ID)
	s.sessions.AddFlash(st.sess, flashSuccess, fmt.Sprintf("Created project %q.", p.Name))
	return c.Redirect(http.StatusSeeOther, "/projects")
}

func (s *Server) selectProjectForm(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := s.loadState(c)
	if err != nil {
		return err
	}
	p, err := s.store.GetProject(c.Request().Context(), id)
	if err != nil {
		s.flashError(c, st, err)
		return c.Redirect(http.StatusSeeOther, "/projects")
	}
	s.sessions.SetProject(st.sess, p.ID)
	s.sessions.AddFlash(st.sess, flashInfo, fmt.Sprintf("Switched to %q.", p.Name))
	return c.Redirect(http.StatusSeeOther, "/")
}

func (s *Server) deleteProjectForm(c echo.Context) error {
	id, err := paramID(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	st, err := s.loadState(c)
	if err != nil {
		return err
	}
	if err := s.svc.DeleteProject(c.Request().Context(), id, st.user); err != nil {
		s.flashError(c, st, err)
		return c.Redirect(http.StatusSeeOther, "/projects")
	}
	if st.sess.ProjectID == id {
		s.sessions.SetProject(st.sess, 0)
	}
	s.sessions.AddFlash(st.sess, flashSuccess, "Project and its notes deleted.")
	return c.Redirect(http.StatusSeeOther, "/projects")
}

func (s *Server) backupForm(c echo.Context) error {
	st, err := s.loadState(c)
	if err != nil {
		return err
	}
	path, err := s.svc.Backup(c.Request().Context(), s.cfg.BackupDir, st.user)
	if err != nil {
		s.flashError(c, st, err)
	} else {
		s.sessions.AddFlash(st.sess, flashSuccess, "Backup written to "+path)
	}
	return c.Redirect(http.StatusSeeOther, "/projects")
}
