package api

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/labstack/echo/v4"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/pbaille/notes/internal/category"
	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/session"
	"github.com/pbaille/notes/internal/workflow"
)

//go:embed templates/*.html
var templatesFS embed.FS

// TemplateRenderer renders the embedded HTML templates for echo.
type TemplateRenderer struct {
	templates *template.Template
}

// Render executes the named template.
func (t *TemplateRenderer) Render(w io.Writer, name string, data any, _ echo.Context) error {
	return t.templates.ExecuteTemplate(w, name, data)
}

func newRenderer() (*TemplateRenderer, error) {
	tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return &TemplateRenderer{templates: tmpl}, nil
}

var titleCaser = cases.Title(language.English)

// Title capitalizes an identifier such as an approval status for display.
func Title(s string) string {
	return titleCaser.String(strings.ReplaceAll(s, "_", " "))
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"title":      Title,
		"categories": category.List,
		"actions": func(s domain.ApprovalStatus) []string {
			var out []string
			for _, a := range workflow.Actions(s) {
				out = append(out, string(a))
			}
			return out
		},
		"deref": func(p *string) string {
			if p == nil {
				return ""
			}
			return *p
		},
		"confidence": func(p *float64) string {
			if p == nil {
				return "n/a"
			}
			return fmt.Sprintf("%.0f%%", *p*100)
		},
		"lowConfidence": func(p *float64) bool {
			return p != nil && *p < 0.7
		},
		"join": strings.Join,
		"card": func(n domain.Note, next string, review bool) noteCard {
			return noteCard{Note: n, Next: next, Review: review}
		},
	}
}

// PageData is passed to every page template.
type PageData struct {
	Title      string
	Page       string
	Project    *domain.Project
	Projects   []domain.Project
	User       string
	Flash      *session.Flash
	Classifier bool
	Data       any
}

type noteCard struct {
	Note   domain.Note
	Next   string
	Review bool
}

// Pagination describes the page links of a listing.
type Pagination struct {
	Page       int
	PerPage    int
	Total      int
	TotalPages int
	// Query is the encoded filter prefix of page links, ending in "&" when non-empty.
	Query template.URL
}

func (p Pagination) HasPrev() bool { return p.Page > 1 }
func (p Pagination) HasNext() bool { return p.Page < p.TotalPages }
func (p Pagination) Prev() int     { return p.Page - 1 }
func (p Pagination) Next() int     { return p.Page + 1 }
