package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/pricewatch/backend/internal/domain"
	"github.com/pricewatch/backend/internal/usecase"
)

// Compiled patterns for signal extraction from raw HTML. Site-specific DOM
// logic belongs in dedicated scrapers; this generic one only reads signals
// any product page exposes.
var (
	titlePattern = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	skuPattern   = regexp.MustCompile(`(?is)itemprop=["']sku["'][^>]*content=["']([^"']+)["']`)
	metaPattern  = regexp.MustCompile(`(?is)<meta[^>]+content=["']([^"']{3,64})["'][^>]*>`)
	tagPattern   = regexp.MustCompile(`(?s)<[^>]*>`)
)

// maxBodyBytes caps how much of a page is read for signal extraction
const maxBodyBytes = 2 << 20

// Generic is a store scraper that queries a search URL template and
// extracts page signals from the first result page without any
// site-specific selectors. Callers must route requests through the pacer;
// the scraper itself performs exactly one fetch per Search.
type Generic struct {
	name       string
	searchURL  string // template with %s for the url-escaped reference
	httpClient *http.Client
}

// NewGeneric creates a generic scraper for one store.
// searchURL must contain a single %s placeholder for the query, e.g.
// "https://www.wrs.it/search?q=%s".
func NewGeneric(name, searchURL string) *Generic {
	return &Generic{
		name:      name,
		searchURL: searchURL,
		httpClient: &http.Client{
			Timeout: 35 * time.Second,
		},
	}
}

// Name returns the store id this scraper serves
func (g *Generic) Name() string {
	return g.name
}

// Search fetches the store's search page for the reference and extracts
// page signals from the response body.
func (g *Generic) Search(ctx context.Context, ref domain.Reference) (*domain.ScrapeResult, error) {
	reqURL := fmt.Sprintf(g.searchURL, url.QueryEscape(ref.Raw))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", "pricewatch/1.0")
	req.Header.Set("Accept-Language", "en,it,pt")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrScrapeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", domain.ErrScrapeFailed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", domain.ErrScrapeFailed, err)
	}

	finalURL := reqURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &domain.ScrapeResult{Signals: ExtractSignals(string(body), finalURL)}, nil
}

// ExtractSignals derives PageSignals from raw HTML: the document title, a
// schema.org SKU when present, candidate codes from meta tags, and the
// tag-stripped body text.
func ExtractSignals(html, pageURL string) domain.PageSignals {
	signals := domain.PageSignals{URL: pageURL}

	if m := titlePattern.FindStringSubmatch(html); m != nil {
		signals.Title = strings.TrimSpace(m[1])
	}
	if m := skuPattern.FindStringSubmatch(html); m != nil {
		signals.SKU = strings.TrimSpace(m[1])
	}

	seen := make(map[string]bool)
	for _, m := range metaPattern.FindAllStringSubmatch(html, -1) {
		content := strings.TrimSpace(m[1])
		// Only short single-token values are plausible product codes
		if content == "" || strings.ContainsAny(content, " \t") {
			continue
		}
		if norm := usecase.NormalizeToken(content); norm != "" && !seen[norm] {
			seen[norm] = true
			signals.MetaCodes = append(signals.MetaCodes, content)
		}
	}

	signals.BodyText = strings.TrimSpace(tagPattern.ReplaceAllString(html, " "))
	return signals
}
