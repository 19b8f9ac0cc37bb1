package aijson

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestExtractDirectJSON(t *testing.T) {
	raw := `{"survey":{"title":"NPS check"}}`
	data, ok := Extract(raw)
	if !ok {
		t.Fatal("expected extraction")
	}
	if string(data) != raw {
		t.Fatalf("expected identity for valid JSON, got %s", data)
	}
}

func TestExtractMarkdownFence(t *testing.T) {
	raw := "```json\n{\"title\": \"Churn drivers\"}\n```"
	var out map[string]any
	if !ExtractInto(raw, &out) {
		t.Fatal("expected extraction from fenced block")
	}
	if out["title"] != "Churn drivers" {
		t.Fatalf("unexpected payload: %v", out)
	}
}

func TestExtractSurroundingProse(t *testing.T) {
	raw := `Sure! Here is the survey you asked for:

{"survey": {"title": "Onboarding", "questions": [{"question_type": "nps"}]}}

Let me know if you want changes.`
	var out struct {
		Survey struct {
			Title string `json:"title"`
		} `json:"survey"`
	}
	if !ExtractInto(raw, &out) {
		t.Fatal("expected extraction from prose")
	}
	if out.Survey.Title != "Onboarding" {
		t.Fatalf("unexpected title %q", out.Survey.Title)
	}
}

func TestExtractPrefersObjectOverArray(t *testing.T) {
	raw := `ids: [1,2,3] and the result {"a": [4,5,6,7,8,9,10,11]}`
	data, ok := Extract(raw)
	if !ok {
		t.Fatal("expected extraction")
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		t.Fatalf("expected an object, got %s: %v", data, err)
	}
}

func TestExtractBracesInsideStrings(t *testing.T) {
	raw := `prefix {"note": "uses } inside", "n": 1} suffix`
	var out map[string]any
	if !ExtractInto(raw, &out) {
		t.Fatal("expected extraction")
	}
	if out["note"] != "uses } inside" {
		t.Fatalf("string-aware scan failed: %v", out)
	}
}

func TestExtractNothing(t *testing.T) {
	if _, ok := Extract("the model refused to answer"); ok {
		t.Fatal("expected failure on prose-only input")
	}
	if _, ok := Extract(""); ok {
		t.Fatal("expected failure on empty input")
	}
	if _, ok := Extract(`"just a string"`); ok {
		t.Fatal("scalars are not a recoverable payload")
	}
}

func TestProse(t *testing.T) {
	if got := Prose("short", 200); got != "short" {
		t.Fatalf("unexpected excerpt %q", got)
	}
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	if got := Prose(string(long), 200); len(got) != 200 {
		t.Fatalf("expected 200-char excerpt, got %d", len(got))
	}
}

func TestProseBacksOffToRuneBoundary(t *testing.T) {
	// The two-byte rune straddles the 200-byte cut.
	text := strings.Repeat("a", 199) + "é and more prose after"
	got := Prose(text, 200)
	if !utf8.ValidString(got) {
		t.Fatalf("excerpt is not valid UTF-8: %q", got)
	}
	if len(got) != 199 {
		t.Fatalf("expected cut at the rune boundary (199 bytes), got %d", len(got))
	}

	if got := Prose("héllo wörld", 6); !utf8.ValidString(got) {
		t.Fatalf("excerpt is not valid UTF-8: %q", got)
	}
}
