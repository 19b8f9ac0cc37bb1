package prompt

import (
	"encoding/json"
	"strings"
	"testing"

	analyticsdomain "github.com/pulseform/pulseform/internal/analytics/domain"
	surveydomain "github.com/pulseform/pulseform/internal/survey/domain"
)

func TestCountRangeForTone(t *testing.T) {
	cases := []struct {
		tone string
		want CountRange
	}{
		{"short", CountRange{3, 5}},
		{"balanced", CountRange{6, 9}},
		{"deep dive", CountRange{8, 12}},
		{"deep_dive", CountRange{8, 12}},
		{"Deep Dive", CountRange{8, 12}},
		{"", CountRange{6, 9}},
		{"verbose", CountRange{6, 9}},
	}
	for _, tc := range cases {
		if got := CountRangeForTone(tc.tone); got != tc.want {
			t.Fatalf("tone %q: got %+v, want %+v", tc.tone, got, tc.want)
		}
	}
}

func TestQuickGenerateCarriesRulesAndJSONInstruction(t *testing.T) {
	p := QuickGenerate("Customer satisfaction after a checkout redesign")
	if !strings.Contains(p, "Customer satisfaction after a checkout redesign") {
		t.Fatalf("user prompt missing")
	}
	if !strings.Contains(p, GenerationRules) {
		t.Fatalf("generation rules missing")
	}
	if !strings.Contains(p, "Return ONLY a JSON object") {
		t.Fatalf("JSON-only instruction missing")
	}
}

func TestGuidedGenerateRewritesRules8And10(t *testing.T) {
	p := GuidedGenerate("SaaS", "Churn drivers", "Why users cancel", "deep dive")

	if !strings.Contains(p, "8. Tailor every question to the SaaS industry") {
		t.Fatalf("rule 8 not tailored:\n%s", p)
	}
	if !strings.Contains(p, "10. Generate between 8 and 12 questions.") {
		t.Fatalf("rule 10 not rewritten:\n%s", p)
	}
	if strings.Contains(p, "10. Generate between 3 and 10 questions.") {
		t.Fatalf("base rule 10 leaked into guided prompt")
	}
	// Untouched rules survive the rewrite.
	if !strings.Contains(p, "11. Return ONLY a JSON object.") {
		t.Fatalf("rule 11 lost")
	}
}

func TestEditQuestionEmbedsOriginal(t *testing.T) {
	original := json.RawMessage(`{"question_type":"single-choice","question_text":"Pick one","options":["a","b","c"]}`)
	p := EditQuestion(original, "turn into a 5-point agreement scale")
	if !strings.Contains(p, string(original)) {
		t.Fatalf("original question missing")
	}
	if !strings.Contains(p, "turn into a 5-point agreement scale") {
		t.Fatalf("instructions missing")
	}
	if !strings.Contains(p, "complete updated question") {
		t.Fatalf("full-object instruction missing")
	}
}

func TestConversationDemandsResponseTextShape(t *testing.T) {
	p := Conversation("add an NPS question", json.RawMessage(`{"title":"CSAT"}`))
	if !strings.Contains(p, `"response_text"`) {
		t.Fatalf("response_text shape missing")
	}
	if !strings.Contains(p, `"survey_updates"`) {
		t.Fatalf("survey_updates shape missing")
	}
	if !strings.Contains(p, `"question_updates"`) {
		t.Fatalf("bounded update shape missing")
	}
}

func TestInsightsEmbedsPayloadVerbatim(t *testing.T) {
	payload := analyticsdomain.Result{
		SurveyTitle:    "CSAT",
		TotalResponses: 250,
		Questions: []analyticsdomain.QuestionPayload{{
			QuestionText: "How satisfied are you?",
			QuestionType: surveydomain.TypeRating,
			Status:       analyticsdomain.StatusSuccess,
			SampleSize:   250,
		}},
	}
	p, err := Insights(payload)
	if err != nil {
		t.Fatalf("Insights: %v", err)
	}
	encoded, _ := json.Marshal(payload)
	if !strings.Contains(p, string(encoded)) {
		t.Fatalf("payload not embedded verbatim")
	}
	for _, key := range []string{"executive_summary", "question_insights", "data_quality_score", "chart_data"} {
		if !strings.Contains(p, key) {
			t.Fatalf("schema key %q missing", key)
		}
	}
}

func TestSyntheticAnswerPerType(t *testing.T) {
	start, end := 1, 7
	cases := []struct {
		def  surveydomain.QuestionDef
		want []string
	}{
		{
			surveydomain.QuestionDef{QuestionType: surveydomain.TypeSingleChoice, QuestionText: "Pick one", Options: []string{"red", "blue"}},
			[]string{"red | blue", `{"value": "<chosen option, verbatim>"}`},
		},
		{
			surveydomain.QuestionDef{QuestionType: surveydomain.TypeRating, QuestionText: "Rate us", RatingStart: &start, RatingEnd: &end},
			[]string{"from 1", "to 7", "integer between 1 and 7"},
		},
		{
			surveydomain.QuestionDef{QuestionType: surveydomain.TypeNPS, QuestionText: "Recommend?"},
			[]string{"integer between 0 and 10"},
		},
		{
			surveydomain.QuestionDef{QuestionType: surveydomain.TypeRanking, QuestionText: "Rank these", RankingItems: []string{"speed", "price", "support"}},
			[]string{"speed | price | support", "every item exactly once"},
		},
		{
			surveydomain.QuestionDef{QuestionType: surveydomain.TypeOpenEnded, QuestionText: "Anything else?"},
			[]string{"one or two natural sentences"},
		},
	}
	for _, tc := range cases {
		p := SyntheticAnswer(tc.def, "a 34 year old designer")
		for _, want := range tc.want {
			if !strings.Contains(p, want) {
				t.Fatalf("type %s: %q missing in:\n%s", tc.def.QuestionType, want, p)
			}
		}
	}
}
