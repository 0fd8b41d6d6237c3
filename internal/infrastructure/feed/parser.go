package feed

import (
	"encoding/xml"
	"fmt"
	"io"
	"log"
	"os"
	"regexp"
	"strings"

	"github.com/pricewatch/backend/internal/domain"
	"github.com/pricewatch/backend/internal/usecase"
)

// Compiled patterns for reference and price extraction
var (
	// "Ref Fabricante:", "Ref. Fabricante:" and "Ref do Fabricante:" inside
	// the feed description carry the manufacturer reference
	refPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\bref\.\s*fabricante\s*:\s*([^\r\n<]+)`),
		regexp.MustCompile(`(?i)\bref\s+fabricante\s*:\s*([^\r\n<]+)`),
		regexp.MustCompile(`(?i)\bref\s+do\s+fabricante\s*:\s*([^\r\n<]+)`),
	}

	innerSpacesPattern = regexp.MustCompile(`\s+`)

	// Numbers with optional thousands separators and decimals, e.g.
	// "331.50", "125,99", "1.234,56"
	priceNumberPattern = regexp.MustCompile(`\d{1,3}(?:[.,]\d{3})*(?:[.,]\d{1,2})?`)
)

// promoMarkers indicate a promotional price string where only the last
// number is the current price
var promoMarkers = []string{"~~", "Agora", "agora", "Por:", "por:", "→"}

// feedDocument maps the Google-Shopping-style XML feed
type feedDocument struct {
	XMLName xml.Name   `xml:"rss"`
	Items   []feedItem `xml:"channel>item"`
}

type feedItem struct {
	ID          string `xml:"id"`
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Price       string `xml:"price"`
	SalePrice   string `xml:"sale_price"`
	Description string `xml:"description"`
}

// ParseFile reads the merchant product feed from disk.
func ParseFile(path string) ([]domain.FeedProduct, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening feed: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes a product feed. Items without an extractable reference are
// skipped with a warning; they cannot be searched on competitor stores.
func Parse(r io.Reader) ([]domain.FeedProduct, error) {
	var doc feedDocument
	decoder := xml.NewDecoder(r)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding feed: %w", err)
	}

	products := make([]domain.FeedProduct, 0, len(doc.Items))
	skipped := 0
	for _, item := range doc.Items {
		refRaw := ExtractReference(item.Description)
		if refRaw == "" {
			skipped++
			continue
		}

		ref := usecase.Normalize(refRaw)
		if ref.IsEmpty() {
			skipped++
			continue
		}

		priceText := item.Price
		if item.SalePrice != "" {
			priceText = item.SalePrice
		}

		products = append(products, domain.FeedProduct{
			ID:        strings.TrimSpace(item.ID),
			Title:     strings.TrimSpace(item.Title),
			Link:      strings.TrimSpace(item.Link),
			PriceText: strings.TrimSpace(priceText),
			PriceNum:  ParsePrice(priceText),
			RefRaw:    refRaw,
			Ref:       ref,
		})
	}

	if skipped > 0 {
		log.Printf("[FEED] skipped %d items without a manufacturer reference", skipped)
	}
	return products, nil
}

// ExtractReference pulls the manufacturer reference out of a feed item
// description. Runs of whitespace inside the matched reference are joined
// with "+" since multi-code references appear space-separated in feeds.
func ExtractReference(description string) string {
	if description == "" {
		return ""
	}

	for _, pattern := range refPatterns {
		if m := pattern.FindStringSubmatch(description); m != nil {
			ref := strings.TrimSpace(m[1])
			return innerSpacesPattern.ReplaceAllString(ref, "+")
		}
	}
	return ""
}

// ParsePrice extracts a numeric value from a feed price string.
//
//	"331.50 EUR"            -> 331.50
//	"€ 125,99"              -> 125.99
//	"1.234,56 EUR"          -> 1234.56
//	"~~200,00€~~ 150,00€"   -> 150.00 (promotional: last price wins)
//
// Returns nil when no number can be extracted.
func ParsePrice(priceText string) *float64 {
	if priceText == "" {
		return nil
	}

	matches := priceNumberPattern.FindAllString(priceText, -1)
	if len(matches) == 0 {
		return nil
	}

	candidate := matches[0]
	for _, marker := range promoMarkers {
		if strings.Contains(priceText, marker) {
			candidate = matches[len(matches)-1]
			break
		}
	}

	value, ok := parseSinglePrice(candidate)
	if !ok {
		return nil
	}
	return &value
}

// parseSinglePrice handles European and anglophone decimal conventions for
// one numeric token.
func parseSinglePrice(s string) (float64, bool) {
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		// Both present: the later one is the decimal separator
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		// Comma only: decimal if followed by 1-2 digits, thousands otherwise
		if len(s)-lastComma-1 <= 2 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastDot >= 0:
		if len(s)-lastDot-1 == 3 && strings.Count(s, ".") >= 1 && len(s) > 4 {
			// "1.234" style thousands
			s = strings.ReplaceAll(s, ".", "")
		}
	}

	var value float64
	if _, err := fmt.Sscanf(s, "%f", &value); err != nil {
		return 0, false
	}
	return value, true
}
