package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/export"
)

const (
	mimeCSV      = "text/csv; charset=utf-8"
	mimeMarkdown = "text/markdown; charset=utf-8"
)

// exportNotes loads every approved note of the current project matching the
// query filters and search term.
func (s *Server) exportNotes(c echo.Context) (*state, domain.NoteFilter, []domain.Note, error) {
	st, err := s.loadState(c)
	if err != nil {
		return nil, domain.NoteFilter{}, nil, err
	}
	b, err := s.approvedFilter(c, st)
	if err != nil {
		return nil, b.filter, nil, err
	}
	b.filter.Page, b.filter.PerPage = 0, 0
	notes, _, err := s.browseNotes(c.Request().Context(), b)
	if err != nil {
		return nil, b.filter, nil, err
	}
	return st, b.filter, notes, nil
}

func attachment(c echo.Context, name string) {
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
}

func (s *Server) exportCSV(c echo.Context) error {
	st, _, notes, err := s.exportNotes(c)
	if err != nil {
		return err
	}
	s.svc.RecordExport(c.Request().Context(), st.user, "csv", len(notes))

	attachment(c, export.FileName("notes_export", "csv", s.now()))
	c.Response().Header().Set(echo.HeaderContentType, mimeCSV)
	c.Response().WriteHeader(http.StatusOK)
	return export.CSV(c.Response(), notes)
}

func (s *Server) exportDaily(c echo.Context) error {
	st, f, notes, err := s.exportNotes(c)
	if err != nil {
		return err
	}
	s.svc.RecordExport(c.Request().Context(), st.user, "daily markdown", len(notes))

	now := s.now()
	attachment(c, export.FileName("daily_notes_export", "md", now))
	return c.Blob(http.StatusOK, mimeMarkdown, []byte(export.DailyMarkdown(notes, f.DateFrom, f.DateTo, now)))
}

func (s *Server) exportCategories(c echo.Context) error {
	st, f, notes, err := s.exportNotes(c)
	if err != nil {
		return err
	}
	s.svc.RecordExport(c.Request().Context(), st.user, "category markdown", len(notes))

	now := s.now()
	attachment(c, export.FileName("category_notes_export", "md", now))
	return c.Blob(http.StatusOK, mimeMarkdown, []byte(export.CategoryMarkdown(notes, f.Category, now)))
}
