package domain

// FeedProduct is one entry read from the merchant product feed. The engine
// consumes the normalized reference; the feed price is carried through for
// the reporting layer's percentage-difference computation.
type FeedProduct struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Link      string    `json:"link,omitempty"`
	PriceText string    `json:"priceText,omitempty"`
	PriceNum  *float64  `json:"priceNum,omitempty"`
	RefRaw    string    `json:"refRaw"`
	Ref       Reference `json:"ref"`
}

// ComparisonRow pairs one feed product with the outcome at one store.
// The reporting layer computes (storePrice - feedPrice) / feedPrice from it;
// that formula and its sign convention are a downstream contract.
type ComparisonRow struct {
	Product FeedProduct  `json:"product"`
	StoreID string       `json:"storeId"`
	Verdict MatchVerdict `json:"verdict"`
	Cached  bool         `json:"cached"`
}
