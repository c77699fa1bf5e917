package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesAndReusesSession(t *testing.T) {
	m := NewManager(time.Hour, false)

	rec := httptest.NewRecorder()
	s := m.Load(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, s.ID)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Equal(t, s.ID, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)

	m.SetProject(s, 7)
	m.SetUser(s, "alice")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	again := m.Load(rec, req)

	assert.Same(t, s, again)
	assert.Equal(t, int64(7), again.ProjectID)
	assert.Equal(t, "alice", again.User)
	assert.Empty(t, rec.Result().Cookies(), "existing session keeps its cookie")
	assert.Equal(t, 1, m.Count())
}

func TestLoadUnknownCookieStartsFresh(t *testing.T) {
	m := NewManager(time.Hour, true)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "stale"})
	rec := httptest.NewRecorder()
	s := m.Load(rec, req)

	assert.NotEqual(t, "stale", s.ID)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.True(t, cookies[0].Secure)
}

func TestFlashIsShownOnce(t *testing.T) {
	m := NewManager(0, false)
	s := m.Load(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Nil(t, m.PopFlash(s))
	m.AddFlash(s, "error", "first")
	m.AddFlash(s, "success", "Saved 2 notes")

	f := m.PopFlash(s)
	require.NotNil(t, f)
	assert.Equal(t, Flash{Kind: "success", Message: "Saved 2 notes"}, *f)
	assert.Nil(t, m.PopFlash(s))
}
