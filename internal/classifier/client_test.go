package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/pbaille/notes/internal/category"
	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/logger"
	"github.com/pbaille/notes/internal/retry"
)

const testURL = "https://llm.test/v1/chat/completions"

var testNow = time.Date(2025, 8, 6, 10, 15, 0, 0, time.UTC)

type testClient struct {
	*Client
	transport *httpmock.MockTransport
	waits     []time.Duration
}

func newTestClient(t *testing.T) *testClient {
	t.Helper()
	tc := &testClient{transport: httpmock.NewMockTransport()}

	policy := retry.DefaultPolicy()
	policy.Sleep = func(_ context.Context, d time.Duration) error {
		tc.waits = append(tc.waits, d)
		return nil
	}

	c, err := New(Config{
		APIKey:      "test-key",
		URL:         testURL,
		Model:       "grok-test",
		Temperature: 0.3,
		Timeout:     time.Second,
	},
		WithHTTPClient(&http.Client{Transport: tc.transport}),
		WithRetryPolicy(policy),
		WithClock(func() time.Time { return testNow }),
	)
	require.NoError(t, err)
	tc.Client = c
	return tc
}

func completion(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return string(b)
}

func observedContext() (context.Context, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.WarnLevel)
	return logger.NewContext(context.Background(), logger.New(zap.New(core))), logs
}

func TestNewRequiresAPIKey(t *testing.T) {
	_, err := New(Config{URL: testURL})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = New(Config{APIKey: "k"})
	assert.Error(t, err)
}

func TestProcessNotesPricingScenario(t *testing.T) {
	tc := newTestClient(t)

	var got chatRequest
	var auth string
	tc.transport.RegisterResponder(http.MethodPost, testURL, func(req *http.Request) (*http.Response, error) {
		auth = req.Header.Get("Authorization")
		body, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(body, &got)
		return httpmock.NewStringResponse(http.StatusOK, completion(`[{
			"cleaned_text": "Reviewed Primoris bid. Cost at 61.2 cents/W.",
			"category": "Pricing",
			"confidence_score": 0.92,
			"clarifying_question": null,
			"date": "2025-08-06",
			"timestamp": "10:15:00"
		}]`)), nil
	})

	notes, err := tc.ProcessNotes(context.Background(), "Reviewed Primoris bid. Cost at 61.2 cents/W.")
	require.NoError(t, err)
	require.Len(t, notes, 1)

	assert.Equal(t, "Pricing", notes[0].Category)
	assert.InDelta(t, 0.92, notes[0].ConfidenceScore, 1e-9)
	assert.Nil(t, notes[0].ClarifyingQuestion)
	assert.Equal(t, "2025-08-06", notes[0].Date)

	assert.Equal(t, "Bearer test-key", auth)
	assert.Equal(t, "grok-test", got.Model)
	assert.InDelta(t, 0.3, got.Temperature, 1e-9)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Contains(t, got.Messages[0].Content, strings.Join(category.List(), ", "))
	assert.Contains(t, got.Messages[0].Content, `"date": "2025-08-06"`)
	assert.Equal(t, "Raw Notes:\nReviewed Primoris bid. Cost at 61.2 cents/W.", got.Messages[1].Content)
}

func TestProcessNotesCoercesUnknownCategory(t *testing.T) {
	tc := newTestClient(t)
	tc.transport.RegisterResponder(http.MethodPost, testURL, httpmock.NewStringResponder(http.StatusOK,
		completion(`{"cleaned_text": "x", "category": "NotARealCategory", "date": "2025-01-01", "timestamp": "12:00:00"}`)))

	ctx, logs := observedContext()
	notes, err := tc.ProcessNotes(ctx, "some raw note")
	require.NoError(t, err)
	require.Len(t, notes, 1)

	assert.Equal(t, category.General, notes[0].Category)
	warnings := logs.FilterMessageSnippet("invalid category").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "NotARealCategory", warnings[0].ContextMap()["category"])
}

func TestProcessNotesNotJSON(t *testing.T) {
	tc := newTestClient(t)
	tc.transport.RegisterResponder(http.MethodPost, testURL,
		httpmock.NewStringResponder(http.StatusOK, completion("not json")))

	_, err := tc.ProcessNotes(context.Background(), "some raw note")
	assert.ErrorIs(t, err, ErrInvalidResponse)
	assert.NotErrorIs(t, err, ErrTransport)
	assert.Equal(t, 1, tc.transport.GetTotalCallCount(), "malformed replies are not retried")
}

func TestProcessNotesMalformedEnvelope(t *testing.T) {
	tc := newTestClient(t)
	tc.transport.RegisterResponder(http.MethodPost, testURL,
		httpmock.NewStringResponder(http.StatusOK, "<html>oops</html>"))

	_, err := tc.ProcessNotes(context.Background(), "some raw note")
	assert.ErrorIs(t, err, ErrInvalidResponse)

	tc.transport.RegisterResponder(http.MethodPost, testURL,
		httpmock.NewStringResponder(http.StatusOK, `{"choices": []}`))
	_, err = tc.ProcessNotes(context.Background(), "some raw note")
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestProcessNotesTransportFailures(t *testing.T) {
	tc := newTestClient(t)
	errRefused := errors.New("connection refused")
	tc.transport.RegisterResponder(http.MethodPost, testURL, httpmock.NewErrorResponder(errRefused))

	_, err := tc.ProcessNotes(context.Background(), "some raw note")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, errRefused)
	assert.Equal(t, 3, tc.transport.GetTotalCallCount())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, tc.waits)
}

func TestProcessNotesRetriesServerErrors(t *testing.T) {
	tc := newTestClient(t)
	calls := 0
	tc.transport.RegisterResponder(http.MethodPost, testURL, func(*http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return httpmock.NewStringResponse(http.StatusServiceUnavailable, "busy"), nil
		}
		return httpmock.NewStringResponse(http.StatusOK,
			completion(`[{"cleaned_text": "ok", "category": "Schedule", "date": "2025-01-01", "timestamp": "12:00:00"}]`)), nil
	})

	notes, err := tc.ProcessNotes(context.Background(), "some raw note")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{time.Second}, tc.waits)
}

func TestProcessNotesCanceled(t *testing.T) {
	tc := newTestClient(t)
	tc.policy.Sleep = func(ctx context.Context, _ time.Duration) error { return context.Canceled }
	tc.transport.RegisterResponder(http.MethodPost, testURL, httpmock.NewErrorResponder(errors.New("reset")))

	_, err := tc.ProcessNotes(context.Background(), "some raw note")
	assert.ErrorIs(t, err, retry.ErrCanceled)
	assert.Equal(t, 1, tc.transport.GetTotalCallCount())
}

func TestProcessNotesEmptyInput(t *testing.T) {
	tc := newTestClient(t)

	_, err := tc.ProcessNotes(context.Background(), "   ")
	assert.Error(t, err)
	assert.Zero(t, tc.transport.GetTotalCallCount())
}

func TestPing(t *testing.T) {
	tc := newTestClient(t)
	tc.transport.RegisterResponder(http.MethodPost, testURL, httpmock.NewStringResponder(http.StatusOK, completion("[]")))

	assert.NoError(t, tc.Ping(context.Background()))
	assert.Equal(t, "grok-test", tc.Model())
}

func TestParseCandidates(t *testing.T) {
	ctx := context.Background()

	t.Run("fenced with language tag", func(t *testing.T) {
		notes, err := parseCandidates(ctx, "```json\n[{\"cleaned_text\": \"Test note\", \"category\": \"General\", \"date\": \"2025-01-01\", \"timestamp\": \"12:00:00\"}]\n```")
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "Test note", notes[0].CleanedText)
	})

	t.Run("language tag on the same line", func(t *testing.T) {
		notes, err := parseCandidates(ctx, "```json{\"cleaned_text\": \"Inline\", \"category\": \"General\", \"date\": \"2025-01-01\", \"timestamp\": \"12:00:00\"}```")
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "Inline", notes[0].CleanedText)

		notes, err = parseCandidates(ctx, "```json [{\"cleaned_text\": \"Spaced\", \"category\": \"Schedule\", \"date\": \"2025-01-01\", \"timestamp\": \"12:00:00\"}]\n```")
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "Schedule", notes[0].Category)
	})

	t.Run("fenced without tag inside prose", func(t *testing.T) {
		notes, err := parseCandidates(ctx, "Here you go:\n```\n{\"cleaned_text\": \"a\", \"category\": \"Land\", \"date\": \"2025-01-01\", \"timestamp\": \"12:00:00\"}\n```\nThanks")
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, "Land", notes[0].Category)
	})

	t.Run("single object promoted", func(t *testing.T) {
		notes, err := parseCandidates(ctx, `{"cleaned_text": "Single note", "category": "General", "date": "2025-01-01", "timestamp": "12:00:00"}`)
		require.NoError(t, err)
		require.Len(t, notes, 1)
		assert.Equal(t, domain.DefaultConfidence, notes[0].ConfidenceScore)
		assert.Nil(t, notes[0].ClarifyingQuestion)
	})

	t.Run("empty array", func(t *testing.T) {
		notes, err := parseCandidates(ctx, "[]")
		require.NoError(t, err)
		assert.Empty(t, notes)
	})

	t.Run("missing required field", func(t *testing.T) {
		_, err := parseCandidates(ctx, `[{"cleaned_text": "x", "category": "General", "date": "2025-01-01"}]`)
		assert.ErrorIs(t, err, ErrInvalidResponse)
		assert.Contains(t, err.Error(), "timestamp")
	})

	t.Run("clarifying question kept", func(t *testing.T) {
		notes, err := parseCandidates(ctx, `[{"cleaned_text": "x", "category": "General", "date": "d", "timestamp": "t", "confidence_score": 0.5, "clarifying_question": "A) or B)?"}]`)
		require.NoError(t, err)
		require.NotNil(t, notes[0].ClarifyingQuestion)
		assert.Equal(t, "A) or B)?", *notes[0].ClarifyingQuestion)
	})
}

func TestParseConfidence(t *testing.T) {
	tests := []struct {
		raw    string
		want   float64
		wantOK bool
	}{
		{"", 0.75, true},
		{"null", 0.75, true},
		{"0.92", 0.92, true},
		{"1.5", 1.0, true},
		{"-3", 0.0, true},
		{`"0.6"`, 0.6, true},
		{`"high"`, 0.75, false},
		{"true", 0.75, false},
		{`{"v": 1}`, 0.75, false},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := parseConfidence(json.RawMessage(tt.raw))
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestStripFence(t *testing.T) {
	assert.Equal(t, `[1]`, stripFence("```json\n[1]\n```"))
	assert.Equal(t, `[1]`, stripFence("```\n[1]\n```"))
	assert.Equal(t, `[1]`, stripFence("```[1]```"))
	assert.Equal(t, `{"a": 1}`, stripFence("```json{\"a\": 1}```"))
	assert.Equal(t, `[1]`, stripFence("```json [1]\n```"))
	assert.Equal(t, `[1]`, stripFence("```JSON5\r\n[1]\r\n```"))
	assert.Equal(t, `{"a": 1}`, stripFence(`  {"a": 1}  `))
}
