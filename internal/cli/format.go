package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/hession/dealscout/internal/aggregator"
	"github.com/hession/dealscout/internal/product"
	"github.com/olekukonko/tablewriter"
)

const titleWidth = 60

// PrintResults renders results as a table.
func PrintResults(w io.Writer, results []product.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintf(w, "%sNo results found%s\n", colorYellow, colorReset)
		return
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Platform", "Title", "Price", "URL"})
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	for i, r := range results {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			string(r.Platform),
			truncateForDisplay(r.Title, titleWidth),
			FormatPrice(r.Price, r.Currency),
			r.URL,
		})
	}
	table.Render()
}

// PrintProviderNotes lists providers that did not contribute normally.
func PrintProviderNotes(w io.Writer, statuses []aggregator.ProviderStatus) {
	for _, s := range statuses {
		switch s.Status {
		case aggregator.StatusFailed, aggregator.StatusTimeout:
			fmt.Fprintf(w, "%s⚠️  %s %s: %s%s\n", colorYellow, s.Name, s.Status, s.Error, colorReset)
		case aggregator.StatusDisabled:
			fmt.Fprintf(w, "%s   %s skipped (no credentials)%s\n", colorGray, s.Name, colorReset)
		}
	}
}

// FormatPrice renders a price with its currency; zero means unknown.
func FormatPrice(price float64, currency string) string {
	if price == 0 {
		return "n/a"
	}
	if currency == "" {
		currency = product.DefaultCurrency
	}
	return fmt.Sprintf("%.2f %s", price, currency)
}

func truncateForDisplay(text string, maxLen int) string {
	text = strings.ReplaceAll(text, "\n", " ")
	text = strings.ReplaceAll(text, "\r", "")
	text = strings.TrimSpace(text)

	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	return string(runes[:maxLen]) + "..."
}
