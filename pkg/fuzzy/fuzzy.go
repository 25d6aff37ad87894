package fuzzy

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// bodyWindow bounds how much of a long body is scanned per item.
const bodyWindow = 2000

// LevenshteinDistance returns the edit distance between two normalized strings.
func LevenshteinDistance(s1, s2 string) int {
	r1 := []rune(normalizeString(s1))
	r2 := []rune(normalizeString(s2))

	if len(r1) == 0 {
		return len(r2)
	}
	if len(r2) == 0 {
		return len(r1)
	}

	// Two rolling rows are enough.
	prev := make([]int, len(r2)+1)
	curr := make([]int, len(r2)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(r1); i++ {
		curr[0] = i
		for j := 1; j <= len(r2); j++ {
			cost := 1
			if r1[i-1] == r2[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}

	return prev[len(r2)]
}

// FuzzyMatch checks if query fuzzy-matches text within a given edit threshold
func FuzzyMatch(query, text string, threshold int) bool {
	query = normalizeString(query)
	text = normalizeString(text)
	if query == "" {
		return true
	}

	if strings.Contains(text, query) {
		return true
	}

	for _, word := range strings.Fields(text) {
		if strings.HasPrefix(word, query) {
			return true
		}
		if LevenshteinDistance(query, word) <= threshold {
			return true
		}
	}

	return false
}

// Threshold is the typo tolerance for a query of this length.
func Threshold(query string) int {
	n := len([]rune(query))
	switch {
	case n <= 3:
		return 0
	case n >= 8:
		return 2
	default:
		return 1
	}
}

// MatchAny reports whether query fuzzy-matches any of the fields.
func MatchAny(query string, fields ...string) bool {
	threshold := Threshold(query)
	for _, field := range fields {
		if len(field) > bodyWindow {
			field = field[:bodyWindow]
		}
		if FuzzyMatch(query, field, threshold) {
			return true
		}
	}
	return false
}

// RelevanceScore scores an item against a query. Title hits outweigh author hits,
// which outweigh body hits. Zero means no match.
func RelevanceScore(query, title, author, body string) float64 {
	query = normalizeString(query)
	if query == "" {
		return 0
	}
	if len(body) > bodyWindow {
		body = body[:bodyWindow]
	}

	score := fieldScore(query, title, 100, 50)
	score += fieldScore(query, author, 80, 40)
	score += fieldScore(query, body, 40, 20)
	return score
}

func fieldScore(query, field string, exactWeight, fuzzyWeight float64) float64 {
	field = normalizeString(field)
	if field == "" {
		return 0
	}

	if strings.Contains(field, query) {
		score := exactWeight
		if containsWord(field, query) {
			score += exactWeight / 2
		}
		return score
	}

	best := 0.0
	threshold := Threshold(query)
	for _, word := range strings.Fields(field) {
		if strings.HasPrefix(word, query) {
			best = max(best, fuzzyWeight*0.8)
			continue
		}
		if dist := LevenshteinDistance(query, word); dist <= threshold {
			best = max(best, fuzzyWeight-float64(dist)*fuzzyWeight/4)
		}
	}
	return best
}

// normalizeString lowercases, strips accents and collapses whitespace
func normalizeString(s string) string {
	s = removeAccents(strings.ToLower(s))
	return strings.Join(strings.Fields(s), " ")
}

func containsWord(text, query string) bool {
	for _, word := range strings.Fields(text) {
		if strings.Trim(word, ".,;:!?\"'()[]") == query {
			return true
		}
	}
	return false
}

// removeAccents drops combining marks after canonical decomposition ("café" matches "cafe").
func removeAccents(s string) string {
	var result strings.Builder
	result.Grow(len(s))
	for _, r := range norm.NFD.String(s) {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		if r == 'đ' {
			r = 'd'
		}
		result.WriteRune(r)
	}
	return result.String()
}
