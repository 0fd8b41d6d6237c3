package usecase

import (
	"fmt"
	"log"
	"strings"

	"github.com/pricewatch/backend/internal/domain"
)

// Fixed confidence bands per match type. Bands are data, not behavior: the
// rule ladder below assigns them in strict priority order and never blends
// between bands.
const (
	confidenceSKU        = 1.00
	confidenceExact      = 0.95
	confidenceURL        = 0.90
	confidenceAllParts   = 0.85
	confidenceFuzzyFloor = 0.60
	confidenceFuzzySpan  = 0.15 // fuzzy band is [0.60, 0.75]
	confidencePartial    = 0.30 // plus 0.10 per matched part, capped below fuzzy floor

	// minPartLength guards composite part matching against false positives
	// from very short segments
	minPartLength = 3

	// minFuzzyCodeLength is the shortest body-text code considered for
	// similarity scoring
	minFuzzyCodeLength = 5
)

// DefaultAcceptThreshold is the confidence at or above which a verdict is
// considered a valid match.
const DefaultAcceptThreshold = 0.65

// ValidatorConfig holds configuration for the match validator
type ValidatorConfig struct {
	AcceptThreshold    float64
	EnableDebugLogging bool
}

// Validator scores how confidently a scraped page corresponds to a queried
// reference. Pure and stateless: no network, no I/O, safe for concurrent use.
type Validator struct {
	acceptThreshold    float64
	enableDebugLogging bool
}

// NewValidator creates a validator with the given configuration
func NewValidator(config ValidatorConfig) *Validator {
	threshold := config.AcceptThreshold
	if threshold <= 0 {
		threshold = DefaultAcceptThreshold
	}

	return &Validator{
		acceptThreshold:    threshold,
		enableDebugLogging: config.EnableDebugLogging,
	}
}

// Score evaluates one reference against one candidate page's signals.
// Rules are tried strictly in priority order and the first matching rule
// wins, so a weak textual match can never mask a strong SKU match:
//
//	1. SKU equals the canonical reference            -> SKU_MATCH    1.00
//	2. canonical in meta codes or title              -> EXACT_MATCH  0.95
//	3. canonical in the URL                          -> STRONG_MATCH 0.90
//	4. composite: all individual parts found         -> STRONG_MATCH 0.85
//	5. composite: only some parts found              -> PARTIAL_MATCH, invalid
//	6. simple: canonical or similar code in body     -> FUZZY_MATCH  0.60-0.75
//	7. nothing matched                               -> NO_MATCH     0.00
//
// Fuzzy matching is never applied to composite references: accepting the
// concatenated form on similarity alone produced false positives whenever a
// page carried just one of the joined codes.
func (v *Validator) Score(ref domain.Reference, signals domain.PageSignals) domain.MatchVerdict {
	if ref.IsEmpty() {
		return v.verdict(domain.NoMatch, 0, nil, "empty reference")
	}

	sku := NormalizeToken(signals.SKU)
	title := NormalizeToken(signals.Title)
	pageURL := NormalizeToken(signals.URL)
	metaCodes := make([]string, 0, len(signals.MetaCodes))
	for _, code := range signals.MetaCodes {
		if norm := NormalizeToken(code); norm != "" {
			metaCodes = append(metaCodes, norm)
		}
	}

	// Rule 1: exact SKU match
	if sku != "" && sku == ref.Canonical {
		return v.verdict(domain.SKUMatch, confidenceSKU, []string{ref.Canonical},
			fmt.Sprintf("exact SKU: %s", ref.Canonical))
	}

	// Rule 2: canonical form inside meta codes or title
	for _, code := range metaCodes {
		if strings.Contains(code, ref.Canonical) {
			return v.verdict(domain.ExactMatch, confidenceExact, []string{ref.Canonical},
				fmt.Sprintf("exact code: %s", ref.Canonical))
		}
	}
	if title != "" && strings.Contains(title, ref.Canonical) {
		return v.verdict(domain.ExactMatch, confidenceExact, []string{ref.Canonical},
			"reference in title")
	}

	// Rule 3: canonical form inside the URL path
	if pageURL != "" && strings.Contains(pageURL, ref.Canonical) {
		return v.verdict(domain.StrongMatch, confidenceURL, []string{ref.Canonical},
			"reference in URL")
	}

	// Rules 4-5: composite references require every individual part
	if ref.IsComposite() {
		return v.scoreComposite(ref, sku, title, pageURL, metaCodes)
	}

	// Rule 6: fuzzy match against page body, simple references only
	return v.scoreFuzzy(ref, signals.BodyText)
}

// scoreComposite handles rules 4 and 5: a composite reference validates only
// when every joined part is present somewhere across the page identifiers.
// A partial hit is reported with low confidence and never validates, which
// keeps "ABC123" pages from satisfying a query for "ABC123+DEF456".
func (v *Validator) scoreComposite(ref domain.Reference, sku, title, pageURL string, metaCodes []string) domain.MatchVerdict {
	segments := ref.Segments()
	var matched []string

	for _, part := range segments {
		if len(part) < minPartLength {
			continue
		}
		if partInSignals(part, sku, title, pageURL, metaCodes) {
			matched = append(matched, part)
		}
	}

	switch {
	case len(matched) == len(segments):
		return v.verdict(domain.StrongMatch, confidenceAllParts, matched,
			fmt.Sprintf("composite complete: all %d parts found", len(matched)))
	case len(matched) > 0:
		confidence := confidencePartial + float64(len(matched))*0.10
		if confidence >= confidenceFuzzyFloor {
			confidence = confidenceFuzzyFloor - 0.01
		}
		return v.verdict(domain.PartialMatch, confidence, matched,
			fmt.Sprintf("composite incomplete: %d/%d parts found", len(matched), len(segments)))
	default:
		return v.verdict(domain.NoMatch, 0, nil,
			"composite reference not found (fuzzy disabled for composites)")
	}
}

// scoreFuzzy handles rule 6 for simple references: a verbatim hit in the
// body text scores the top of the fuzzy band; otherwise the closest
// extracted code is scored by character overlap with a length guard against
// matching a fragment of a longer code.
func (v *Validator) scoreFuzzy(ref domain.Reference, bodyText string) domain.MatchVerdict {
	body := NormalizeToken(bodyText)
	if body == "" {
		return v.verdict(domain.NoMatch, 0, nil, "no match")
	}

	if strings.Contains(body, ref.Canonical) {
		// All of one part matched: top of the fuzzy band
		return v.verdict(domain.FuzzyMatch, confidenceFuzzyFloor+confidenceFuzzySpan,
			[]string{ref.Canonical}, "reference in body text")
	}

	bestScore := 0.0
	bestCode := ""
	for _, code := range ExtractCodes(bodyText, minFuzzyCodeLength) {
		score := charOverlap(ref.Canonical, code)
		if score <= bestScore {
			continue
		}
		lenDiff := len(ref.Canonical) - len(code)
		if lenDiff < 0 {
			lenDiff = -lenDiff
		}
		if lenDiff <= 3 {
			bestScore = score
			bestCode = code
		} else if score >= 0.85 {
			// Very similar but different length: accept with a penalty
			bestScore = score * 0.9
			bestCode = code
		}
	}

	if bestScore >= 0.75 {
		// Map similarity [0.75, 1.0] into the lower fuzzy band [0.60, 0.70];
		// the top of the band is reserved for verbatim body hits
		confidence := confidenceFuzzyFloor + (bestScore-0.75)*0.4
		return v.verdict(domain.FuzzyMatch, confidence, []string{bestCode},
			fmt.Sprintf("fuzzy: %s (score %.2f)", bestCode, bestScore))
	}

	return v.verdict(domain.NoMatch, 0, nil, "no match")
}

// verdict builds the final MatchVerdict, enforcing the validity invariant in
// exactly one place: valid iff confidence meets the threshold and some rule
// matched.
func (v *Validator) verdict(matchType domain.MatchType, confidence float64, matched []string, reason string) domain.MatchVerdict {
	result := domain.MatchVerdict{
		IsValid:      confidence >= v.acceptThreshold && matchType != domain.NoMatch,
		Confidence:   confidence,
		MatchType:    matchType,
		MatchedParts: matched,
		Reason:       reason,
	}

	if v.enableDebugLogging {
		log.Printf("[MATCH] %s confidence=%.2f valid=%v reason=%s",
			result.MatchType, result.Confidence, result.IsValid, result.Reason)
	}

	return result
}

// partInSignals reports whether one composite part appears in any page
// identifier
func partInSignals(part, sku, title, pageURL string, metaCodes []string) bool {
	if sku != "" && strings.Contains(sku, part) {
		return true
	}
	if title != "" && strings.Contains(title, part) {
		return true
	}
	if pageURL != "" && strings.Contains(pageURL, part) {
		return true
	}
	for _, code := range metaCodes {
		if strings.Contains(code, part) {
			return true
		}
	}
	return false
}

// charOverlap is the fraction of a's characters that also appear in b,
// relative to the longer string. Cheap similarity for short alphanumeric codes.
func charOverlap(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}

	common := 0
	for _, c := range a {
		if strings.ContainsRune(b, c) {
			common++
		}
	}

	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	return float64(common) / float64(longest)
}
