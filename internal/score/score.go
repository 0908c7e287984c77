// Package score computes the similarity between a lost report and a found
// report. The score is a weighted sum of four cheap lexical sub-scores —
// matching is advisory (both owners must confirm), so an explainable
// heuristic beats an opaque model here.
package score

import (
	"strings"
	"unicode"

	"github.com/reuniteapp/reunite/internal/model"
)

// Sub-score weights. They sum to 1.0, so the clamp below only matters
// against float rounding.
const (
	weightCategory = 0.3
	weightText     = 0.4
	weightTags     = 0.2
	weightLocation = 0.1
)

// Threshold is the fixed acceptance threshold: the orchestrator creates a
// match iff Score(a, b) >= Threshold.
const Threshold = 0.6

// Score returns the similarity of two reports in [0, 1]. Pure and
// deterministic; symmetric up to which report is "new".
func Score(a, b model.Report) float64 {
	category := 0.0
	if a.Category != "" && b.Category != "" && a.Category == b.Category {
		category = 1.0
	}

	text := TextSimilarity(a.Title+" "+a.Description, b.Title+" "+b.Description)
	tags := Jaccard(a.Tags, b.Tags)
	location := locationScore(a.LocationText, b.LocationText)

	s := weightCategory*category + weightText*text + weightTags*tags + weightLocation*location
	return clamp01(s)
}

// TextSimilarity tokenizes both strings (lowercase, strip non-word runes,
// split on whitespace) into sets and returns |intersection| divided by the
// mean set size. Returns 0 if either token set is empty.
func TextSimilarity(a, b string) float64 {
	as := tokenize(a)
	bs := tokenize(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for tok := range as {
		if _, ok := bs[tok]; ok {
			inter++
		}
	}
	avg := float64(len(as)+len(bs)) / 2
	return float64(inter) / avg
}

// Jaccard returns the Jaccard index over lowercased tag sets:
// |intersection| / |union|, or 0 when the union is empty.
func Jaccard(a, b []string) float64 {
	as := lowerSet(a)
	bs := lowerSet(b)

	inter := 0
	for t := range as {
		if _, ok := bs[t]; ok {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

// locationScore is 1 when both locations are non-empty and one lowercased
// string contains the other, else 0.
func locationScore(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	a = strings.ToLower(a)
	b = strings.ToLower(b)
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 1
	}
	return 0
}

// tokenize lowercases s, drops every rune that is not a letter, digit,
// underscore, or whitespace, and splits on whitespace into a set.
func tokenize(s string) map[string]struct{} {
	s = strings.ToLower(s)
	var sb strings.Builder
	sb.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			sb.WriteRune(r)
		}
	}
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(sb.String()) {
		set[tok] = struct{}{}
	}
	return set
}

func lowerSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[strings.ToLower(it)] = struct{}{}
	}
	return set
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
