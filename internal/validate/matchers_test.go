package validate

import "testing"

func input(transcript, expected string, alts ...string) matchInput {
	in := matchInput{
		transcript: Normalize(transcript, AnswerFreeText),
		expected:   Normalize(expected, AnswerFreeText),
		answerType: AnswerFreeText,
	}
	for _, a := range alts {
		in.alternatives = append(in.alternatives, Normalize(a, AnswerFreeText))
	}
	return in
}

func TestExactMatcher(t *testing.T) {
	m := exactMatcher{}
	if out := m.attempt(input("Paris.", "paris")); out == nil || !out.IsPass || out.Confidence != 1.0 {
		t.Errorf("normalized-equal strings: got %+v, want pass with confidence 1", out)
	}
	if out := m.attempt(input("london", "paris")); out != nil {
		t.Errorf("different strings matched: %+v", out)
	}
	if out := m.attempt(input("", "")); out != nil {
		t.Errorf("empty strings matched: %+v", out)
	}
}

func TestAcceptableMatcher(t *testing.T) {
	m := acceptableMatcher{}
	out := m.attempt(input("Myanmar", "Burma", "Myanmar", "Republic of the Union of Myanmar"))
	if out == nil || !out.IsPass {
		t.Fatalf("listed alternative rejected: %+v", out)
	}
	if out.MatchType != MatchAcceptable || out.MatchedAnswer != "myanmar" {
		t.Errorf("got %+v, want acceptable match recording the alternative", out)
	}
	if out := m.attempt(input("Siam", "Burma", "Myanmar")); out != nil {
		t.Errorf("unlisted phrasing matched: %+v", out)
	}
}

func TestFuzzyMatcher(t *testing.T) {
	m := fuzzyMatcher{}
	out := m.attempt(input("mitochondira", "mitochondria"))
	if out == nil || !out.IsPass || out.MatchType != MatchFuzzy {
		t.Fatalf("transposition rejected: %+v", out)
	}
	if out.Confidence < fuzzyThreshold || out.Confidence >= 1 {
		t.Errorf("confidence = %v, want in [%v, 1)", out.Confidence, fuzzyThreshold)
	}
	if out := m.attempt(input("jupiter", "mitochondria")); out != nil {
		t.Errorf("unrelated strings matched: %+v", out)
	}
}

func TestFuzzyMatcherAlternative(t *testing.T) {
	out := fuzzyMatcher{}.attempt(input("myanmmar", "Burma", "Myanmar"))
	if out == nil || out.MatchedAnswer != "myanmar" {
		t.Errorf("got %+v, want match against the alternative", out)
	}
}

func TestPhoneticMatcher(t *testing.T) {
	m := phoneticMatcher{}
	// Classic STT homophone confusion.
	out := m.attempt(input("marie curry", "Marie Curie"))
	if out == nil || !out.IsPass || out.MatchType != MatchPhonetic {
		t.Fatalf("homophone rejected: %+v", out)
	}
	if out.Confidence < phoneticThreshold {
		t.Errorf("confidence = %v, want >= %v", out.Confidence, phoneticThreshold)
	}
	if out := m.attempt(input("oxygen", "potassium")); out != nil {
		t.Errorf("phonetically unrelated strings matched: %+v", out)
	}
}

func TestNGramMatcher(t *testing.T) {
	m := ngramMatcher{}
	// Word-boundary artifact: one word split in two.
	out := m.attempt(input("new found land", "newfoundland"))
	if out == nil || !out.IsPass || out.MatchType != MatchNGram {
		t.Fatalf("split compound rejected: %+v", out)
	}
	if out := m.attempt(input("entirely unrelated", "newfoundland")); out != nil {
		t.Errorf("unrelated strings matched: %+v", out)
	}
}

func TestTokenMatcher(t *testing.T) {
	m := tokenMatcher{}
	// Digits carry no phonetic codes, so containment of a numeric answer is
	// this matcher's job.
	out := m.attempt(input("the answer is 42", "42"))
	if out == nil || !out.IsPass || out.MatchType != MatchToken {
		t.Fatalf("contained answer rejected: %+v", out)
	}
	if out.Confidence != 1.0 {
		t.Errorf("full coverage confidence = %v, want 1", out.Confidence)
	}
	if out := m.attempt(input("the answer is 42", "42 degrees north latitude")); out != nil {
		t.Errorf("quarter coverage matched: %+v", out)
	}
}

func TestLinguisticMatcher(t *testing.T) {
	m := linguisticMatcher{}
	tests := []struct {
		name       string
		transcript string
		expected   string
		wantMatch  bool
	}{
		{"year words vs digits", "nineteen forty five", "1945", true},
		{"digits vs year words", "1945", "nineteen forty five", true},
		{"cardinal words", "two hundred and fifty six", "256", true},
		{"ordinal suffix", "3rd", "third", true},
		{"single word number", "seven", "7", true},
		{"different numbers", "nineteen forty four", "1945", false},
		{"not numbers", "paris", "1945", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := m.attempt(input(tt.transcript, tt.expected))
			if got := out != nil; got != tt.wantMatch {
				t.Errorf("attempt(%q, %q) matched=%v, want %v", tt.transcript, tt.expected, got, tt.wantMatch)
			}
			if out != nil && out.MatchType != MatchLinguistic {
				t.Errorf("MatchType = %s", out.MatchType)
			}
		})
	}
}

func TestNumericValues(t *testing.T) {
	vals := numericValues("nineteen forty five")
	if _, ok := vals[1945]; !ok {
		t.Errorf("year reading missing from %v", vals)
	}
	if vals := numericValues("hundred"); vals != nil {
		t.Errorf("bare scale word parsed: %v", vals)
	}
	if vals := numericValues(""); vals != nil {
		t.Errorf("empty string parsed: %v", vals)
	}
}

func TestMatcherChainOrder(t *testing.T) {
	chain := ruleMatchers()
	want := []MatchType{
		MatchExact, MatchAcceptable, MatchFuzzy, MatchPhonetic,
		MatchNGram, MatchToken, MatchLinguistic,
	}
	if len(chain) != len(want) {
		t.Fatalf("chain length = %d, want %d", len(chain), len(want))
	}
	for i, m := range chain {
		if m.kind() != want[i] {
			t.Errorf("chain[%d] = %s, want %s", i, m.kind(), want[i])
		}
	}
	strict := strictMatchers()
	if len(strict) != 2 || strict[0].kind() != MatchExact || strict[1].kind() != MatchAcceptable {
		t.Errorf("strict chain = %v", strict)
	}
}
