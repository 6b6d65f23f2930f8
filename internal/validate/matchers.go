package validate

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	fuzzyThreshold    = 0.80
	phoneticThreshold = 0.70
	ngramThreshold    = 0.60
	tokenThreshold    = 0.75
)

// matchInput carries pre-normalized strings into the tier-1 chain.
type matchInput struct {
	transcript   string
	expected     string
	alternatives []string
	answerType   AnswerType
}

// candidates returns the expected answer followed by all alternatives.
func (in matchInput) candidates() []string {
	return append([]string{in.expected}, in.alternatives...)
}

// matcher is one link in the tier-1 chain. A nil return means "no opinion";
// the chain moves on to the next matcher. The first matcher to return an
// Outcome wins.
type matcher interface {
	kind() MatchType
	attempt(in matchInput) *Outcome
}

// strictMatchers is the tier-1 chain for strict validation.
func strictMatchers() []matcher {
	return []matcher{exactMatcher{}, acceptableMatcher{}}
}

// ruleMatchers is the full tier-1 chain, ordered cheapest first.
func ruleMatchers() []matcher {
	return []matcher{
		exactMatcher{},
		acceptableMatcher{},
		fuzzyMatcher{},
		phoneticMatcher{},
		ngramMatcher{},
		tokenMatcher{},
		linguisticMatcher{},
	}
}

// exactMatcher accepts a transcript whose normalized form equals the
// normalized expected answer.
type exactMatcher struct{}

func (exactMatcher) kind() MatchType { return MatchExact }

func (exactMatcher) attempt(in matchInput) *Outcome {
	if in.transcript == in.expected && in.transcript != "" {
		return &Outcome{IsPass: true, Confidence: 1.0, MatchType: MatchExact}
	}
	return nil
}

// acceptableMatcher accepts a transcript that equals one of the explicitly
// listed alternative phrasings.
type acceptableMatcher struct{}

func (acceptableMatcher) kind() MatchType { return MatchAcceptable }

func (acceptableMatcher) attempt(in matchInput) *Outcome {
	for _, alt := range in.alternatives {
		if in.transcript == alt && alt != "" {
			return &Outcome{
				IsPass:        true,
				Confidence:    1.0,
				MatchType:     MatchAcceptable,
				MatchedAnswer: alt,
			}
		}
	}
	return nil
}

// fuzzyMatcher accepts small edit-distance deviations, scored by normalized
// Levenshtein similarity against the expected answer and every alternative.
type fuzzyMatcher struct{}

func (fuzzyMatcher) kind() MatchType { return MatchFuzzy }

func (fuzzyMatcher) attempt(in matchInput) *Outcome {
	var best float64
	var matched string
	for _, cand := range in.candidates() {
		if cand == "" {
			continue
		}
		if sim := LevenshteinSimilarity(in.transcript, cand); sim > best {
			best = sim
			matched = cand
		}
	}
	if best < fuzzyThreshold {
		return nil
	}
	out := &Outcome{IsPass: true, Confidence: best, MatchType: MatchFuzzy}
	if matched != in.expected {
		out.MatchedAnswer = matched
	}
	return out
}

// phoneticMatcher accepts homophone-style STT errors: the transcript and a
// candidate must share at least one Double Metaphone code, then the pair is
// scored by the best Jaro-Winkler similarity across full-string, concatenated,
// and pairwise-token comparisons.
type phoneticMatcher struct{}

func (phoneticMatcher) kind() MatchType { return MatchPhonetic }

func (phoneticMatcher) attempt(in matchInput) *Outcome {
	inputTokens := Tokens(in.transcript)
	inputCodes := metaphoneCodes(inputTokens)
	if len(inputCodes) == 0 {
		return nil
	}

	var best float64
	var matched string
	for _, cand := range in.candidates() {
		candTokens := Tokens(cand)
		if !codesOverlap(inputCodes, metaphoneCodes(candTokens)) {
			continue
		}
		if score := bestJWScore(inputTokens, candTokens, in.transcript, cand); score > best {
			best = score
			matched = cand
		}
	}
	if best < phoneticThreshold {
		return nil
	}
	out := &Outcome{IsPass: true, Confidence: best, MatchType: MatchPhonetic}
	if matched != in.expected {
		out.MatchedAnswer = matched
	}
	return out
}

// metaphoneCodes returns the union of Double Metaphone codes for the tokens.
// Empty codes are excluded.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// bestJWScore computes the highest Jaro-Winkler similarity between the
// transcript and a candidate using three strategies: full strings,
// space-stripped strings, and best pairwise token comparison.
func bestJWScore(inputTokens, candTokens []string, inputFull, candFull string) float64 {
	score := matchr.JaroWinkler(inputFull, candFull, false)

	if len(inputTokens) > 1 || len(candTokens) > 1 {
		concat1 := strings.Join(inputTokens, "")
		concat2 := strings.Join(candTokens, "")
		if s := matchr.JaroWinkler(concat1, concat2, false); s > score {
			score = s
		}
	}

	for _, it := range inputTokens {
		for _, ct := range candTokens {
			if s := matchr.JaroWinkler(it, ct, false); s > score {
				score = s
			}
		}
	}
	return score
}

// ngramMatcher scores character-trigram overlap with the Dice coefficient.
// It catches word-boundary STT artifacts that edit distance over-penalizes.
type ngramMatcher struct{}

func (ngramMatcher) kind() MatchType { return MatchNGram }

func (ngramMatcher) attempt(in matchInput) *Outcome {
	inputGrams := trigrams(in.transcript)
	if len(inputGrams) == 0 {
		return nil
	}

	var best float64
	var matched string
	for _, cand := range in.candidates() {
		if sim := diceCoefficient(inputGrams, trigrams(cand)); sim > best {
			best = sim
			matched = cand
		}
	}
	if best < ngramThreshold {
		return nil
	}
	out := &Outcome{IsPass: true, Confidence: best, MatchType: MatchNGram}
	if matched != in.expected {
		out.MatchedAnswer = matched
	}
	return out
}

// trigrams returns the multiset of character trigrams of s, with word
// boundaries padded so short words still produce grams.
func trigrams(s string) map[string]int {
	grams := make(map[string]int)
	for _, word := range Tokens(s) {
		padded := []rune(" " + word + " ")
		for i := 0; i+3 <= len(padded); i++ {
			grams[string(padded[i:i+3])]++
		}
	}
	return grams
}

// diceCoefficient is 2·|A∩B| / (|A|+|B|) over trigram multisets.
func diceCoefficient(a, b map[string]int) float64 {
	sizeA, sizeB := 0, 0
	for _, n := range a {
		sizeA += n
	}
	for _, n := range b {
		sizeB += n
	}
	if sizeA+sizeB == 0 {
		return 0
	}
	shared := 0
	for g, n := range a {
		if m, ok := b[g]; ok {
			shared += min(n, m)
		}
	}
	return 2 * float64(shared) / float64(sizeA+sizeB)
}

// tokenMatcher accepts a transcript that contains the expected answer's words
// inside a longer sentence ("the capital is paris" for expected "paris").
// Confidence is the fraction of candidate tokens found in the transcript.
type tokenMatcher struct{}

func (tokenMatcher) kind() MatchType { return MatchToken }

func (tokenMatcher) attempt(in matchInput) *Outcome {
	transcriptTokens := make(map[string]struct{})
	for _, t := range Tokens(in.transcript) {
		transcriptTokens[t] = struct{}{}
	}
	if len(transcriptTokens) == 0 {
		return nil
	}

	var best float64
	var matched string
	for _, cand := range in.candidates() {
		candTokens := Tokens(cand)
		if len(candTokens) == 0 {
			continue
		}
		found := 0
		for _, t := range candTokens {
			if _, ok := transcriptTokens[t]; ok {
				found++
			}
		}
		if cov := float64(found) / float64(len(candTokens)); cov > best {
			best = cov
			matched = cand
		}
	}
	if best < tokenThreshold {
		return nil
	}
	out := &Outcome{IsPass: true, Confidence: best, MatchType: MatchToken}
	if matched != in.expected {
		out.MatchedAnswer = matched
	}
	return out
}

// linguisticMatcher bridges surface-form gaps rules cannot see letter-by-
// letter: spoken numbers versus numerals ("nineteen forty five" vs "1945")
// and ordinal suffixes ("3rd" vs "third").
type linguisticMatcher struct{}

func (linguisticMatcher) kind() MatchType { return MatchLinguistic }

func (linguisticMatcher) attempt(in matchInput) *Outcome {
	transcriptVals := numericValues(in.transcript)
	if len(transcriptVals) == 0 {
		return nil
	}
	for _, cand := range in.candidates() {
		for cv := range numericValues(cand) {
			if _, ok := transcriptVals[cv]; !ok {
				continue
			}
			out := &Outcome{
				IsPass:     true,
				Confidence: 0.9,
				MatchType:  MatchLinguistic,
				Reasoning:  fmt.Sprintf("numeric equivalence: both sides denote %d", cv),
			}
			if cand != in.expected {
				out.MatchedAnswer = cand
			}
			return out
		}
	}
	return nil
}

var numberWords = map[string]int64{
	"zero": 0, "one": 1, "two": 2, "three": 3, "four": 4,
	"five": 5, "six": 6, "seven": 7, "eight": 8, "nine": 9,
	"ten": 10, "eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14,
	"fifteen": 15, "sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
}

var ordinalWords = map[string]int64{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
}

var numberScales = map[string]int64{
	"hundred": 100, "thousand": 1000, "million": 1_000_000, "billion": 1_000_000_000,
}

// numericValues interprets a normalized string as a number and returns every
// plausible reading. A spoken phrase can be ambiguous: "nineteen forty five"
// reads both as a run-on cardinal and as the year 1945, so the matcher
// compares interpretation sets rather than single values.
func numericValues(s string) map[int64]struct{} {
	tokens := Tokens(s)
	if len(tokens) == 0 {
		return nil
	}
	vals := make(map[int64]struct{})

	if len(tokens) == 1 {
		digits := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(
			tokens[0], "st"), "nd"), "rd"), "th")
		if v, err := strconv.ParseInt(digits, 10, 64); err == nil {
			vals[v] = struct{}{}
		}
		if v, ok := ordinalWords[tokens[0]]; ok {
			vals[v] = struct{}{}
		}
	}

	if v, ok := wordsToNumber(tokens); ok {
		vals[v] = struct{}{}
	}

	// Spoken year form: two groups of tens read back to back.
	for split := 1; split < len(tokens); split++ {
		hi, okHi := wordsToNumber(tokens[:split])
		lo, okLo := wordsToNumber(tokens[split:])
		if okHi && okLo && hi >= 10 && hi <= 99 && lo >= 1 && lo <= 99 {
			vals[hi*100+lo] = struct{}{}
		}
	}
	if len(vals) == 0 {
		return nil
	}
	return vals
}

// wordsToNumber parses a conventional spoken cardinal ("two hundred and
// forty five"). The word "and" is ignored.
func wordsToNumber(tokens []string) (int64, bool) {
	var total, current int64
	seen := false
	for _, t := range tokens {
		if t == "and" {
			continue
		}
		if v, ok := numberWords[t]; ok {
			current += v
			seen = true
			continue
		}
		if scale, ok := numberScales[t]; ok {
			if !seen {
				return 0, false
			}
			if current == 0 {
				current = 1
			}
			if scale == 100 {
				current *= scale
			} else {
				total += current * scale
				current = 0
			}
			continue
		}
		return 0, false
	}
	if !seen {
		return 0, false
	}
	return total + current, true
}
