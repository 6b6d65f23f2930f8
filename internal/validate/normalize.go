package validate

import (
	"strings"
	"unicode"
)

// leadingArticles are stripped once from the front of place answers so that
// "The Netherlands" and "netherlands" normalize identically.
var leadingArticles = []string{"the ", "a ", "an "}

// Normalize canonicalizes a string for rule-based comparison: lowercase,
// punctuation stripped, internal whitespace collapsed to single spaces, and
// for place answers a single leading article removed.
func Normalize(s string, answerType AnswerType) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-' || r == '/':
			// Hyphenated and slashed compounds split into words.
			b.WriteRune(' ')
		}
		// Remaining punctuation and symbols are dropped.
	}
	out := strings.Join(strings.Fields(b.String()), " ")

	if answerType == AnswerPlace {
		for _, art := range leadingArticles {
			if strings.HasPrefix(out, art) {
				out = out[len(art):]
				break
			}
		}
	}
	return out
}

// Tokens splits a normalized string into its words.
func Tokens(s string) []string {
	return strings.Fields(s)
}

// Levenshtein returns the edit distance between a and b, counted in runes.
// It keeps two rows of the DP table and always iterates the shorter string
// as the inner dimension, so auxiliary space is O(min(m, n)).
func Levenshtein(a, b string) int {
	ra := []rune(a)
	rb := []rune(b)
	if len(ra) < len(rb) {
		ra, rb = rb, ra
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// LevenshteinSimilarity maps edit distance onto [0, 1]: 1 for identical
// strings, 0 when every position differs.
func LevenshteinSimilarity(a, b string) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(Levenshtein(a, b))/float64(longest)
}
