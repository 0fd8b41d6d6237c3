package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pricewatch/backend/internal/domain"
)

// PriceDelta computes the relative difference between the competitor price
// and the feed price: (storePrice - feedPrice) / feedPrice. Positive means
// the competitor is more expensive. The formula and its sign convention are
// a contract with downstream consumers.
func PriceDelta(feedPrice, storePrice float64) float64 {
	return (storePrice - feedPrice) / feedPrice
}

// Writer produces the comparison report as CSV, one row per
// (product, store) pair.
type Writer struct {
	path string
}

// NewWriter creates a report writer targeting the given file path
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Write renders all comparison rows to the configured path.
func (w *Writer) Write(rows []domain.ComparisonRow) error {
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("creating report: %w", err)
	}
	defer f.Close()

	if err := Render(f, rows); err != nil {
		return err
	}
	return f.Close()
}

// Render writes the CSV report to any destination.
func Render(dst io.Writer, rows []domain.ComparisonRow) error {
	cw := csv.NewWriter(dst)

	header := []string{
		"product_id", "title", "reference", "feed_price",
		"store", "store_price", "delta_pct",
		"match_type", "confidence", "valid", "url",
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("writing report header: %w", err)
	}

	for _, row := range rows {
		record := []string{
			row.Product.ID,
			row.Product.Title,
			row.Product.RefRaw,
			formatPrice(row.Product.PriceNum),
			row.StoreID,
			formatPrice(row.Verdict.Price),
			formatDelta(row),
			string(row.Verdict.MatchType),
			strconv.FormatFloat(row.Verdict.Confidence, 'f', 2, 64),
			strconv.FormatBool(row.Verdict.IsValid),
			row.Verdict.URL,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing report row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// formatDelta renders the percentage difference, empty when either price is
// missing.
func formatDelta(row domain.ComparisonRow) string {
	if row.Product.PriceNum == nil || row.Verdict.Price == nil || *row.Product.PriceNum == 0 {
		return ""
	}
	delta := PriceDelta(*row.Product.PriceNum, *row.Verdict.Price) * 100
	return strconv.FormatFloat(delta, 'f', 1, 64) + "%"
}

func formatPrice(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', 2, 64)
}
