package extract

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/garden-stock/internal/stock"
)

var (
	gridClass      = regexp.MustCompile(`grid.*grid-cols`)
	countdownClass = regexp.MustCompile(`text-yellow`)
)

// Extract builds a snapshot from a parsed stock page. It fails with
// stock.ErrGridNotFound, stock.ErrNoSections or stock.ErrAllSectionsEmpty.
func Extract(doc Node) (stock.Snapshot, error) {
	grid, ok := doc.FindClass("div", gridClass)
	if !ok {
		return stock.Snapshot{}, stock.NewFetchError(stock.ReasonGridNotFound, nil)
	}
	sections := grid.Children()
	if len(sections) == 0 {
		return stock.Snapshot{}, stock.NewFetchError(stock.ReasonNoSections, nil)
	}

	snapshot := stock.NewSnapshot()
	for _, section := range sections {
		category, parsed, ok := extractSection(section)
		if !ok {
			continue
		}
		snapshot = snapshot.WithSection(category, parsed)
	}

	if snapshot.Empty() {
		return stock.Snapshot{}, stock.NewFetchError(stock.ReasonAllSectionsEmpty, nil)
	}
	return snapshot, nil
}

// extractSection reports ok=false for sections without a recognised heading
// or without an item list; those leave their category untouched.
func extractSection(section Node) (stock.Category, stock.StockSection, bool) {
	heading, ok := section.FindTag("h2")
	if !ok {
		return "", stock.StockSection{}, false
	}
	category, ok := stock.ClassifyHeading(heading.Text())
	if !ok {
		return "", stock.StockSection{}, false
	}
	list, ok := section.FindTag("ul")
	if !ok {
		return "", stock.StockSection{}, false
	}

	parsed := stock.NewSection()
	for _, entry := range list.FindAllTag("li") {
		if item, ok := stock.ParseItem(entry.Text()); ok {
			parsed.Items = append(parsed.Items, item)
		}
	}
	parsed.UpdatesIn = countdown(section)
	return category, parsed, true
}

func countdown(section Node) string {
	p, ok := section.FindClass("p", countdownClass)
	if !ok {
		return stock.DefaultUpdatesIn
	}
	span, ok := p.FindTag("span")
	if !ok {
		return stock.DefaultUpdatesIn
	}
	if text := strings.TrimSpace(span.Text()); text != "" {
		return text
	}
	return stock.DefaultUpdatesIn
}
