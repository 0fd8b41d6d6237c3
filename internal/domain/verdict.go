package domain

// MatchType classifies how a candidate page matched the queried reference.
// Each type maps to a fixed confidence band; the validator never emits a
// type/confidence pair outside its band.
type MatchType string

const (
	SKUMatch     MatchType = "SKU_MATCH"     // page SKU equals the reference, 1.00
	ExactMatch   MatchType = "EXACT_MATCH"   // reference in meta codes or title, 0.95
	StrongMatch  MatchType = "STRONG_MATCH"  // reference in URL, or all composite parts found, 0.85-0.90
	PartialMatch MatchType = "PARTIAL_MATCH" // only some composite parts found, never valid
	FuzzyMatch   MatchType = "FUZZY_MATCH"   // textual similarity only, 0.60-0.75
	NoMatch      MatchType = "NO_MATCH"      // nothing matched, 0.00
)

// MatchVerdict is the scored outcome of comparing one reference against one
// candidate page. Verdicts are immutable: a fresh lookup replaces the whole
// verdict, it never edits a prior one.
type MatchVerdict struct {
	IsValid      bool      `json:"isValid"`
	Confidence   float64   `json:"confidence"`
	MatchType    MatchType `json:"matchType"`
	MatchedParts []string  `json:"matchedParts,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Price        *float64  `json:"price,omitempty"`
	PriceText    string    `json:"priceText,omitempty"`
	URL          string    `json:"url,omitempty"`
}

// PageSignals are the identifiers a scraper extracted from a candidate
// product page. Missing fields are treated as empty, never as errors.
type PageSignals struct {
	SKU       string   `json:"sku,omitempty"`
	Title     string   `json:"title"`
	URL       string   `json:"url"`
	MetaCodes []string `json:"metaCodes,omitempty"`
	BodyText  string   `json:"bodyText,omitempty"`
}

// ScrapeResult is what a store scraper returns for a single reference
// lookup: the extracted page signals plus the price found on that page.
type ScrapeResult struct {
	Signals   PageSignals `json:"signals"`
	PriceText string      `json:"priceText,omitempty"`
	PriceNum  *float64    `json:"priceNum,omitempty"`
}
