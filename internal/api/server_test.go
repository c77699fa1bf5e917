package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbaille/notes/internal/audit"
	"github.com/pbaille/notes/internal/classifier"
	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/metrics"
	"github.com/pbaille/notes/internal/session"
	"github.com/pbaille/notes/internal/store"
	"github.com/pbaille/notes/internal/workflow"
)

var testNow = time.Date(2025, 8, 6, 10, 15, 0, 0, time.UTC)

type stubClassifier struct {
	candidates []domain.NoteCandidate
	err        error
}

func (c *stubClassifier) ProcessNotes(context.Context, string) ([]domain.NoteCandidate, error) {
	return c.candidates, c.err
}

type harness struct {
	t       *testing.T
	store   *store.Store
	clf     *stubClassifier
	handler http.Handler
	cookie  *http.Cookie
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, filepath.Join(t.TempDir(), "notes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	m, err := metrics.New()
	require.NoError(t, err)

	clf := &stubClassifier{candidates: []domain.NoteCandidate{{
		CleanedText:     "Reviewed Primoris bid. Cost at 61.2 cents/W.",
		Category:        "Pricing",
		ConfidenceScore: 0.92,
		Date:            "2025-08-06",
		Timestamp:       "10:15:00",
	}}}
	svc := workflow.New(st,
		workflow.WithClassifier(clf, "test"),
		workflow.WithAudit(audit.New(st)),
		workflow.WithMetrics(m),
		workflow.WithClock(func() time.Time { return testNow }),
	)

	srv, err := New(st, svc, session.NewManager(time.Hour, false),
		Config{PageSize: 10, BackupDir: filepath.Join(t.TempDir(), "backups")},
		WithMetrics(m),
		WithClock(func() time.Time { return testNow }),
	)
	require.NoError(t, err)

	return &harness{t: t, store: st, clf: clf, handler: srv.Handler()}
}

func (h *harness) serve(req *http.Request) *httptest.ResponseRecorder {
	if h.cookie != nil {
		req.AddCookie(h.cookie)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			h.cookie = c
		}
	}
	return rec
}

func (h *harness) json(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderUser, "api-tester")
	return h.serve(req)
}

func (h *harness) form(path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return h.serve(req)
}

func (h *harness) get(path string) *httptest.ResponseRecorder {
	return h.serve(httptest.NewRequest(http.MethodGet, path, nil))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	h := newHarness(t)
	rec := h.get("/health")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, true, body["classifier"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
	assert.NotContains(t, body, "classifier_reachable")

	body = decode[map[string]any](t, h.get("/health?check=classifier"))
	assert.Equal(t, true, body["classifier_reachable"])

	h.clf.err = fmt.Errorf("%w: connection refused", classifier.ErrTransport)
	rec = h.get("/health?check=classifier")
	require.Equal(t, http.StatusOK, rec.Code)
	body = decode[map[string]any](t, rec)
	assert.Equal(t, false, body["classifier_reachable"])
	assert.Contains(t, body["classifier_error"], "connection refused")
}

func TestAPIProjects(t *testing.T) {
	h := newHarness(t)

	rec := h.json(http.MethodPost, "/api/projects", map[string]string{"name": "Solar Farm"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	p := decode[domain.Project](t, rec)
	assert.Equal(t, "Solar Farm", p.Name)

	rec = h.json(http.MethodPost, "/api/projects", map[string]string{"name": "Solar Farm"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	errResp := decode[ErrorResponse](t, rec)
	assert.Equal(t, http.StatusConflict, errResp.Code)
	assert.NotEmpty(t, errResp.RequestID)

	rec = h.json(http.MethodPost, "/api/projects", map[string]string{"name": "  "})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.get("/api/projects")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Project](t, rec), 1)

	rec = h.json(http.MethodDelete, fmt.Sprintf("/api/projects/%d", p.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.json(http.MethodDelete, fmt.Sprintf("/api/projects/%d", p.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = h.json(http.MethodDelete, "/api/projects/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPISubmitAndReview(t *testing.T) {
	h := newHarness(t)

	rec := h.json(http.MethodPost, "/api/notes", SubmitRequest{RawText: "Reviewed Primoris bid. Cost at 61.2 cents/W."})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sub := decode[SubmitResponse](t, rec)
	require.Len(t, sub.Notes, 1)
	assert.False(t, sub.Manual)
	n := sub.Notes[0]
	assert.Equal(t, domain.StatusPending, n.ApprovalStatus)
	assert.Equal(t, "Pricing", n.CategoryName())

	rec = h.get("/api/pending")
	require.Equal(t, http.StatusOK, rec.Code)
	pending := decode[NotesPage](t, rec)
	assert.Equal(t, 1, pending.Total)
	assert.Equal(t, 1, pending.TotalPages)

	rec = h.json(http.MethodPatch, fmt.Sprintf("/api/notes/%d", n.ID), EditRequest{Category: ptr("Nope")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.json(http.MethodPost, fmt.Sprintf("/api/notes/%d/approve", n.ID), EditRequest{Category: ptr("Land")})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decode[domain.Note](t, rec)
	assert.Equal(t, domain.StatusApproved, approved.ApprovalStatus)
	assert.Equal(t, "Land", approved.CategoryName())

	rec = h.json(http.MethodPost, fmt.Sprintf("/api/notes/%d/approve", n.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = h.json(http.MethodPost, fmt.Sprintf("/api/notes/%d/restore", n.ID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = h.get("/api/notes")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[NotesPage](t, rec).Total)

	rec = h.get("/api/search?q=primoris")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[NotesPage](t, rec).Total)

	rec = h.get("/api/stats")
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[domain.Stats](t, rec)
	assert.Equal(t, 1, stats.ByStatus[domain.StatusApproved])
	assert.Equal(t, 1, stats.ByCategory["Land"])

	rec = h.get(fmt.Sprintf("/api/notes/%d", n.ID))
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = h.json(http.MethodDelete, fmt.Sprintf("/api/notes/%d", n.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = h.get(fmt.Sprintf("/api/notes/%d", n.ID))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.get("/api/logs?level=info")
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decode[[]domain.LogEntry](t, rec)
	require.NotEmpty(t, logs)
	require.NotNil(t, logs[0].UserID)
	assert.Equal(t, "api-tester", *logs[0].UserID)
}

func TestAPISubmitFailureStoresNothing(t *testing.T) {
	h := newHarness(t)
	h.clf.err = fmt.Errorf("%w: %w", classifier.ErrTransport, errors.New("connection refused"))

	rec := h.json(http.MethodPost, "/api/notes", SubmitRequest{RawText: "Some raw meeting notes"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, decode[ErrorResponse](t, rec).Message, "manual=true")

	rec = h.get("/api/pending")
	assert.Zero(t, decode[NotesPage](t, rec).Total)

	rec = h.json(http.MethodPost, "/api/notes", SubmitRequest{RawText: "Some raw meeting notes", Manual: true})
	require.Equal(t, http.StatusCreated, rec.Code)
	sub := decode[SubmitResponse](t, rec)
	assert.True(t, sub.Manual)
	require.Len(t, sub.Notes, 1)
	assert.Equal(t, "General", sub.Notes[0].CategoryName())
}

func TestAPIValidation(t *testing.T) {
	h := newHarness(t)

	rec := h.json(http.MethodPost, "/api/notes", SubmitRequest{RawText: "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.json(http.MethodPost, "/api/notes", SubmitRequest{ProjectID: 99, RawText: "valid text here"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Equal(t, http.StatusBadRequest, h.get("/api/notes?status=archived").Code)
	assert.Equal(t, http.StatusBadRequest, h.get("/api/notes?date_from=yesterday").Code)
	assert.Equal(t, http.StatusBadRequest, h.get("/api/notes?category=Nope").Code)
	assert.Equal(t, http.StatusBadRequest, h.get("/api/search").Code)
}

func TestAPICategories(t *testing.T) {
	h := newHarness(t)
	rec := h.get("/api/categories")
	require.Equal(t, http.StatusOK, rec.Code)
	cats := decode[map[string][]string](t, rec)["categories"]
	require.Len(t, cats, 28)
	assert.Equal(t, "General", cats[0])
}

func TestPagesSubmitAndReview(t *testing.T) {
	h := newHarness(t)

	rec := h.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Submit Notes")
	assert.Contains(t, rec.Body.String(), "Default Project")
	require.NotNil(t, h.cookie)

	rec = h.form("/notes", url.Values{"raw_text": {"Reviewed Primoris bid. Cost at 61.2 cents/W."}, "user": {"alice"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/review", rec.Header().Get("Location"))

	rec = h.get("/review")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Created 1 note(s) for review.")
	assert.Contains(t, body, "Reviewed Primoris bid.")
	assert.Contains(t, body, "confidence 92%")
	assert.Contains(t, body, "alice")

	notes, _, err := h.store.ListPending(context.Background(), 0, 1, 10)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	id := notes[0].ID

	rec = h.form(fmt.Sprintf("/notes/%d/reject", id), url.Values{"next": {"/review"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = h.get("/rejected")
	assert.Contains(t, rec.Body.String(), fmt.Sprintf("Note #%d rejected.", id))

	rec = h.form("/rejected/restore-all", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = h.form(fmt.Sprintf("/notes/%d/approve", id), url.Values{"next": {"//evil.test"}, "category": {"Schedule"}})
	assert.Equal(t, "/review", rec.Header().Get("Location"))

	n, err := h.store.GetNote(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, n.ApprovalStatus)
	assert.Equal(t, "Schedule", n.CategoryName())

	rec = h.get("/daily")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "2025-08-06")

	rec = h.get("/categories")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h2>Schedule</h2>")

	rec = h.form(fmt.Sprintf("/notes/%d/approve", id), nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = h.get("/review")
	assert.Contains(t, rec.Body.String(), "not allowed")
}

func TestPagesSubmitFailureOffersManual(t *testing.T) {
	h := newHarness(t)
	h.clf.err = fmt.Errorf("process: %w", classifier.ErrInvalidResponse)

	rec := h.form("/notes", url.Values{"raw_text": {"Some raw meeting notes"}})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Save as manual note")

	rec = h.form("/notes/manual", url.Values{"raw_text": {"Some raw meeting notes"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	_, total, err := h.store.ListPending(context.Background(), 0, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	rec = h.form("/notes", url.Values{"raw_text": {"hi"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Save as manual note")
}

func TestPagesProjects(t *testing.T) {
	h := newHarness(t)

	rec := h.form("/projects", url.Values{"name": {"Wind"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	rec = h.get("/projects")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Wind (current)")
	assert.Contains(t, rec.Body.String(), `Created project &#34;Wind&#34;.`)

	rec = h.form("/projects", url.Values{"name": {"Wind"}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, h.get("/projects").Body.String(), "already exists")

	p, err := h.store.GetProjectByName(context.Background(), "Wind")
	require.NoError(t, err)
	rec = h.form(fmt.Sprintf("/projects/%d/delete", p.ID), nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	body := h.get("/projects").Body.String()
	assert.NotContains(t, body, "Wind")
	assert.Contains(t, body, "Default Project (current)")

	rec = h.form("/backup", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Contains(t, h.get("/projects").Body.String(), "notes_backup_")
}

func TestExports(t *testing.T) {
	h := newHarness(t)
	rec := h.json(http.MethodPost, "/api/notes", SubmitRequest{RawText: "Reviewed Primoris bid."})
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode[SubmitResponse](t, rec).Notes[0].ID
	require.Equal(t, http.StatusOK, h.json(http.MethodPost, fmt.Sprintf("/api/notes/%d/approve", id), nil).Code)

	rec = h.get("/export/notes.csv")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, mimeCSV, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "notes_export_20250806_101500.csv")
	assert.True(t, strings.HasPrefix(rec.Body.String(), "ID,Date,Time,Category,Note\n"))
	assert.Contains(t, rec.Body.String(), "Pricing")

	rec = h.get("/export/daily.md?date_from=2025-08-01")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "**Date Range:** 2025-08-01 to all")
	assert.Contains(t, rec.Body.String(), "## 2025-08-06")

	rec = h.get("/export/categories.md?category=Pricing")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "**Category Filter:** Pricing")
	assert.Contains(t, rec.Body.String(), "## Pricing")

	assert.Equal(t, http.StatusBadRequest, h.get("/export/notes.csv?date_to=bad").Code)
}

func TestBrowseSearch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p, err := h.store.EnsureDefaultProject(ctx)
	require.NoError(t, err)

	approved := func(text, cat, date string) {
		_, err := h.store.InsertNote(ctx, domain.Note{
			ProjectID:      p.ID,
			RawText:        text,
			Category:       &cat,
			Date:           date,
			Timestamp:      "09:00:00",
			ApprovalStatus: domain.StatusApproved,
		})
		require.NoError(t, err)
	}
	for i := 1; i <= 11; i++ {
		approved(fmt.Sprintf("Wetland survey section %d complete", i), "Environmental", fmt.Sprintf("2025-07-%02d", i))
	}
	approved("Transformer delivery slipped two weeks", "Schedule", "2025-07-20")

	rec := h.get("/daily?q=wetland")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Wetland survey section 11")
	assert.NotContains(t, body, "Transformer delivery")
	assert.Contains(t, body, "Page 1 of 2 (11 notes)")
	assert.Contains(t, body, `href="?q=wetland&amp;page=2"`)
	assert.Contains(t, body, `value="wetland"`)

	rec = h.get("/daily?q=wetland&page=2")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Wetland survey section 1 complete")

	rec = h.get("/categories?q=transformer")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Transformer delivery")
	assert.NotContains(t, rec.Body.String(), "Wetland survey")
	assert.Contains(t, rec.Body.String(), `/export/categories.md?q=transformer`)

	rec = h.get("/export/notes.csv?q=transformer")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Transformer delivery")
	assert.NotContains(t, rec.Body.String(), "Wetland")

	rec = h.get("/export/daily.md?q=wetland&category=Environmental")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "**Total Notes:** 11")
	assert.NotContains(t, rec.Body.String(), "Transformer")
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t)
	h.get("/health")

	rec := h.get("/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `notes_http_requests_total{method="GET",route="/health",status_code="200"} 1`)
}

func TestTitle(t *testing.T) {
	assert.Equal(t, "Pending", Title("pending"))
	assert.Equal(t, "Manual Entry", Title("manual_entry"))
}

func ptr[T any](v T) *T { return &v }
