// Package prompt assembles every instruction string sent to the assistant.
// The generation rules below are the contract with the model; change them
// only together with the parsers that consume the replies.
package prompt

import (
	"fmt"
	"strings"
)

// GenerationRules is the single source of truth for survey generation.
// Rules 8 and 10 are rewritten for guided generation.
const GenerationRules = `1. Use only these question types, spelled exactly: single-choice, multiple-choice, dropdown, open-ended, rating, nps, scale, star-rating-grid, radio-grid, interactive-ranking, content-block.
2. Every question object carries "question_type" and "question_text". Set "required": true only when an answer is essential.
3. Provide "options" only for single-choice, multiple-choice, and dropdown questions, with 2 to 8 distinct entries. No other type may carry "options".
4. Provide "scale_points" only for scale questions, ordered from the most negative label to the most positive. No other type may carry "scale_points".
5. Provide "ranking_items" only for interactive-ranking questions, with 3 to 8 items. No other type may carry "ranking_items".
6. Rating questions use "rating_start", "rating_end", and "rating_step" with rating_start < rating_end; default to 1-5 with "left_label" and "right_label" when the request gives no bounds. nps questions are always 0 to 10 and take no options, bounds, or labels.
7. Grid questions (star-rating-grid, radio-grid) require "grid_rows" and "grid_columns". When a not-applicable column is offered it must be the last column.
8. Tailor every question to the subject of the request; stay neutral and avoid leading phrasing.
9. Use content-block entries sparingly, only to introduce a section, and give them no answer fields.
10. Generate between 3 and 10 questions.
11. Return ONLY a JSON object. No prose, no markdown, no code fences.`

// CountRange bounds the number of questions the model may generate.
type CountRange struct {
	Min int
	Max int
}

// Tone/length presets for guided generation.
const (
	ToneShort    = "short"
	ToneBalanced = "balanced"
	ToneDeepDive = "deep dive"
)

// CountRangeForTone maps a tone/length preset to its question count range.
// Unrecognized values fall back to the balanced preset.
func CountRangeForTone(toneLength string) CountRange {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(toneLength), "_", " ")) {
	case ToneShort:
		return CountRange{Min: 3, Max: 5}
	case ToneDeepDive:
		return CountRange{Min: 8, Max: 12}
	default:
		return CountRange{Min: 6, Max: 9}
	}
}

// QuickCountRange bounds quick generation.
var QuickCountRange = CountRange{Min: 3, Max: 10}

// tailoredRules returns GenerationRules with rules 8 and 10 pinned to the
// guided context and count range.
func tailoredRules(industry, goal, focus, tone string, count CountRange) string {
	rules := strings.Split(GenerationRules, "\n")
	for i, rule := range rules {
		switch {
		case strings.HasPrefix(rule, "8. "):
			rules[i] = fmt.Sprintf(
				"8. Tailor every question to the %s industry and the goal %q. Focus: %s. Match a %s tone; stay neutral and avoid leading phrasing.",
				industry, goal, focus, tone)
		case strings.HasPrefix(rule, "10. "):
			rules[i] = fmt.Sprintf("10. Generate between %d and %d questions.", count.Min, count.Max)
		}
	}
	return strings.Join(rules, "\n")
}
