package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/pbaille/notes/internal/category"
	"github.com/pbaille/notes/internal/domain"
	"github.com/pbaille/notes/internal/logger"
)

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func extractContent(body []byte) (string, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: decode envelope: %w", ErrInvalidResponse, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	return resp.Choices[0].Message.Content, nil
}

// stripFence returns the body of the first fenced code block in s, or s
// itself when there is none. A language tag on the opening fence is dropped
// whether or not a newline follows it.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := strings.TrimLeftFunc(s[start+3:], isTagRune)
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

func isTagRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

type rawCandidate struct {
	CleanedText        *string         `json:"cleaned_text"`
	Category           *string         `json:"category"`
	Date               *string         `json:"date"`
	Timestamp          *string         `json:"timestamp"`
	ConfidenceScore    json.RawMessage `json:"confidence_score"`
	ClarifyingQuestion json.RawMessage `json:"clarifying_question"`
}

// parseCandidates decodes the model's content into validated candidates.
// Unknown categories become General and bad confidence scores become the
// default; both are logged, never returned as errors.
func parseCandidates(ctx context.Context, content string) ([]domain.NoteCandidate, error) {
	data := []byte(stripFence(content))

	var raws []rawCandidate
	switch trimmed := bytes.TrimSpace(data); {
	case len(trimmed) > 0 && trimmed[0] == '{':
		var one rawCandidate
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
		}
		raws = []rawCandidate{one}
	case len(trimmed) > 0 && trimmed[0] == '[':
		if err := json.Unmarshal(trimmed, &raws); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
		}
	default:
		return nil, fmt.Errorf("%w: content is not a json object or array", ErrInvalidResponse)
	}

	log := logger.Log(ctx).Named("classifier")
	candidates := make([]domain.NoteCandidate, 0, len(raws))
	for i, r := range raws {
		if missing := r.missingFields(); len(missing) > 0 {
			return nil, fmt.Errorf("%w: note %d missing %s", ErrInvalidResponse, i, strings.Join(missing, ", "))
		}

		cand := domain.NoteCandidate{
			CleanedText:        *r.CleanedText,
			Category:           *r.Category,
			Date:               *r.Date,
			Timestamp:          *r.Timestamp,
			ClarifyingQuestion: optionalString(r.ClarifyingQuestion),
		}

		score, ok := parseConfidence(r.ConfidenceScore)
		if !ok {
			log.Warn(ctx, "invalid confidence score, using default",
				zap.ByteString("confidence_score", r.ConfidenceScore),
				zap.Float64("default", domain.DefaultConfidence))
		}
		cand.ConfidenceScore = score

		if !category.IsValid(cand.Category) {
			log.Warn(ctx, "invalid category returned by api, using General",
				zap.String("category", cand.Category))
			cand.Category = category.General
		}

		candidates = append(candidates, cand)
	}
	return candidates, nil
}

func (r rawCandidate) missingFields() []string {
	var missing []string
	if r.CleanedText == nil {
		missing = append(missing, "cleaned_text")
	}
	if r.Category == nil {
		missing = append(missing, "category")
	}
	if r.Date == nil {
		missing = append(missing, "date")
	}
	if r.Timestamp == nil {
		missing = append(missing, "timestamp")
	}
	return missing
}

// parseConfidence returns the clamped score. Absent or null values yield the
// default with ok true; values that are not numbers yield the default with
// ok false.
func parseConfidence(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return domain.DefaultConfidence, true
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return domain.DefaultConfidence, false
		}
		if f, err = strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
			return domain.DefaultConfidence, false
		}
	}
	if math.IsNaN(f) {
		return domain.DefaultConfidence, false
	}
	return domain.ClampConfidence(f), true
}

func optionalString(raw json.RawMessage) *string {
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil || s == nil || *s == "" {
		return nil
	}
	return s
}
