// Package guardrail decides whether a refined transcript may replace the raw
// one. Refinement models occasionally rewrite facts while polishing prose;
// the policy rejects any refinement that loses numbers, URLs or identifiers
// present in the raw text, or that introduces commitments the speaker never
// made. Rejection always falls back to the raw transcript upstream.
package guardrail

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Reason identifies the first rule a refinement failed.
type Reason string

const (
	ReasonEmptyText          Reason = "empty-text"
	ReasonNumericMismatch    Reason = "numeric-token-mismatch"
	ReasonURLMismatch        Reason = "url-token-mismatch"
	ReasonIdentifierMismatch Reason = "identifier-token-mismatch"
	ReasonCommitmentShift    Reason = "commitment-shift"
)

// Result is the outcome of validating a (raw, refined) pair.
type Result struct {
	Accepted bool
	Reason   Reason // empty when accepted
	Detail   string // human-readable, e.g. the missing token
}

// commitmentPhrases are obligations a refinement must not introduce.
// Matched on lowercased text with punctuation stripped.
var commitmentPhrases = []string{
	"i will",
	"i'll",
	"we will",
	"we'll",
	"must",
	"guarantee",
	"guaranteed",
	"i promise",
	"we promise",
	"commit to",
	"committed to",
}

// Validate checks refined against raw. Rules run in a fixed order
// (empty, numeric, URL, identifier, commitment) and the first failure
// determines the reason.
func Validate(raw, refined string) Result {
	rawNorm := normalize(raw)
	refinedNorm := normalize(refined)

	if strings.TrimSpace(rawNorm) == "" || strings.TrimSpace(refinedNorm) == "" {
		return Result{Reason: ReasonEmptyText, Detail: "raw or refined text is empty"}
	}

	rawTokens := tokenize(rawNorm)
	refinedTokens := tokenize(refinedNorm)

	if missing := firstMissing(rawTokens, refinedTokens, isNumericToken); missing != "" {
		return Result{Reason: ReasonNumericMismatch, Detail: "refined text lost number " + missing}
	}
	if missing := firstMissing(rawTokens, refinedTokens, isURLToken); missing != "" {
		return Result{Reason: ReasonURLMismatch, Detail: "refined text lost URL " + missing}
	}
	if missing := firstMissing(rawTokens, refinedTokens, isIdentifierToken); missing != "" {
		return Result{Reason: ReasonIdentifierMismatch, Detail: "refined text lost identifier " + missing}
	}

	if phrase := introducedCommitment(rawNorm, refinedNorm); phrase != "" {
		return Result{Reason: ReasonCommitmentShift, Detail: "refined text introduced " + strconv.Quote(phrase)}
	}

	return Result{Accepted: true}
}

// normalize applies NFKC so that width and compatibility variants of the same
// token (full-width digits, ligatures) compare equal.
func normalize(s string) string {
	return norm.NFKC.String(s)
}

func tokenize(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
}

// firstMissing returns the first raw token matched by pred that is absent
// from the refined token set, or "" when refined is a superset.
func firstMissing(raw, refined []string, pred func(string) bool) string {
	refinedSet := make(map[string]struct{}, len(refined))
	for _, tok := range refined {
		if t := trimEdges(tok); pred(t) {
			refinedSet[t] = struct{}{}
		}
	}
	for _, tok := range raw {
		t := trimEdges(tok)
		if !pred(t) {
			continue
		}
		if _, ok := refinedSet[t]; !ok {
			return t
		}
	}
	return ""
}

// trimEdges strips sentence punctuation from token boundaries while keeping
// interior punctuation, so "api_v2," matches "api_v2" but "1.5" stays "1.5".
func trimEdges(tok string) string {
	return strings.TrimFunc(tok, func(r rune) bool {
		switch r {
		case '.', ',', ';', '!', '?', '(', ')', '"', '\'', '“', '”', '‘', '’':
			return true
		}
		return false
	})
}

func isNumericToken(tok string) bool {
	if tok == "" {
		return false
	}
	digits := 0
	for _, r := range tok {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '.' || r == ',' || r == ':' || r == '%' || r == '-' || r == '+':
		default:
			return false
		}
	}
	return digits > 0
}

func isURLToken(tok string) bool {
	lower := strings.ToLower(tok)
	return strings.Contains(lower, "://") ||
		strings.HasPrefix(lower, "www.") ||
		strings.HasPrefix(lower, "mailto:")
}

// isIdentifierToken matches code-ish tokens: mixed digits and letters, or
// tokens glued together with identifier punctuation. Short tokens are ignored
// so ordinary contractions do not trip the rule.
func isIdentifierToken(tok string) bool {
	if len(tok) < 3 || isNumericToken(tok) || isURLToken(tok) {
		return false
	}
	var letters, digits, punct int
	for _, r := range tok {
		switch {
		case unicode.IsLetter(r):
			letters++
		case unicode.IsDigit(r):
			digits++
		case r == '_' || r == '/' || r == ':' || r == '.' || r == '-':
			punct++
		default:
			return false
		}
	}
	if letters > 0 && digits > 0 {
		return true
	}
	return letters > 0 && punct > 0
}

// introducedCommitment returns the first commitment phrase present in refined
// but not in raw, or "".
func introducedCommitment(raw, refined string) string {
	rawFlat := flatten(raw)
	refinedFlat := flatten(refined)
	for _, phrase := range commitmentPhrases {
		if containsPhrase(refinedFlat, phrase) && !containsPhrase(rawFlat, phrase) {
			return phrase
		}
	}
	return ""
}

// flatten lowercases and collapses everything except letters, digits and
// apostrophes to single spaces, padding the ends for phrase matching.
func flatten(s string) string {
	var b strings.Builder
	b.WriteByte(' ')
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	if !lastSpace {
		b.WriteByte(' ')
	}
	return b.String()
}

func containsPhrase(flat, phrase string) bool {
	return strings.Contains(flat, " "+phrase+" ")
}
