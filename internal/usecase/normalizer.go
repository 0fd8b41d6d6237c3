package usecase

import (
	"regexp"
	"strings"

	"github.com/pricewatch/backend/internal/domain"
)

// Compiled regex patterns for reference normalization
var (
	// Matches candidate alphanumeric codes inside free text (min length
	// enforced after normalization)
	codeCandidatePattern = regexp.MustCompile(`\b[A-Za-z0-9][\w\-.]{2,}\b`)
)

// NormalizeToken canonicalizes a single token: separators (hyphens, dots,
// spaces, underscores, plus signs) removed, everything outside A-Z0-9
// dropped, case folded to upper. Deterministic and locale-independent so
// the result is usable as a cache key across restarts.
func NormalizeToken(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize converts a raw manufacturer reference into its canonical form.
// Total: unrecognized input degrades to a best-effort canonical string, an
// empty or whitespace-only input yields an empty canonical form that
// callers must reject upstream.
//
// Composite references joined with "+" keep the concatenated canonical form
// as Parts[0] and append each normalized segment in original order:
//
//	"H.085.LR1X" -> {Canonical: "H085LR1X", Parts: ["H085LR1X"]}
//	"ABC+DEF"    -> {Canonical: "ABCDEF", Parts: ["ABCDEF", "ABC", "DEF"]}
func Normalize(raw string) domain.Reference {
	ref := domain.Reference{Raw: raw}

	if strings.Contains(raw, "+") {
		var segments []string
		for _, seg := range strings.Split(raw, "+") {
			if norm := NormalizeToken(strings.TrimSpace(seg)); norm != "" {
				segments = append(segments, norm)
			}
		}
		ref.Canonical = strings.Join(segments, "")
		if ref.Canonical == "" {
			return ref
		}
		ref.Parts = append([]string{ref.Canonical}, segments...)
		// A single surviving segment is not composite after all
		if len(segments) == 1 {
			ref.Parts = ref.Parts[:1]
		}
		return ref
	}

	ref.Canonical = NormalizeToken(raw)
	if ref.Canonical != "" {
		ref.Parts = []string{ref.Canonical}
	}
	return ref
}

// ExtractCodes pulls normalized alphanumeric codes out of free page text,
// deduplicated in first-seen order. Used by the fuzzy matching rule and by
// scrapers building MetaCodes.
func ExtractCodes(text string, minLength int) []string {
	if text == "" {
		return nil
	}

	var codes []string
	seen := make(map[string]bool)
	for _, match := range codeCandidatePattern.FindAllString(text, -1) {
		code := NormalizeToken(match)
		if len(code) < minLength || seen[code] {
			continue
		}
		seen[code] = true
		codes = append(codes, code)
	}
	return codes
}
