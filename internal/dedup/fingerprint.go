package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/newsfuse-hq/newsfuse-ingest/internal/domain"
)

// Normalize lower-cases the input and collapses all whitespace runs to a
// single space. Fingerprints, cache keys, and similarity tokens all share
// this normal form.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Fingerprint computes the exact-duplicate digest: sha256 over the normalized
// title and body. A deterministic function of article content only.
func Fingerprint(a domain.CandidateArticle) string {
	norm := Normalize(a.Title) + "\n" + Normalize(a.Body)
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// significantTokens extracts the normalized tokens used for similarity
// scoring and candidate bucketing: alphanumeric runs of at least minTokenLen
// characters, stopwords removed, deduplicated.
func significantTokens(a domain.CandidateArticle) map[string]struct{} {
	text := Normalize(a.Title) + " " + Normalize(a.Body)

	tokens := make(map[string]struct{})
	var b strings.Builder
	flush := func() {
		if b.Len() >= minTokenLen {
			tok := b.String()
			if _, stop := stopwords[tok]; !stop {
				tokens[tok] = struct{}{}
			}
		}
		b.Reset()
	}

	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return tokens
}

const minTokenLen = 4

// stopwords are high-frequency tokens that carry no story identity. The list
// only needs the >=4 character words the tokenizer would otherwise keep.
var stopwords = map[string]struct{}{
	"about": {}, "after": {}, "also": {}, "been": {}, "before": {},
	"between": {}, "both": {}, "could": {}, "does": {}, "during": {},
	"each": {}, "from": {}, "have": {}, "having": {}, "here": {},
	"into": {}, "just": {}, "more": {}, "most": {}, "other": {},
	"over": {}, "said": {}, "says": {}, "some": {}, "such": {},
	"than": {}, "that": {}, "their": {}, "them": {}, "then": {},
	"there": {}, "these": {}, "they": {}, "this": {}, "those": {},
	"through": {}, "under": {}, "until": {}, "very": {}, "were": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "while": {},
	"will": {}, "with": {}, "would": {}, "your": {},
}
