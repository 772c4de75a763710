// Package stock defines the snapshot model and failure taxonomy shared across subsystems.
package stock

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultUpdatesIn is reported when a section carries no restock countdown.
const DefaultUpdatesIn = "Unknown"

// Category identifies one of the three fixed stock slots.
type Category string

// Categories recognised by the extractor, in classification order.
const (
	CategoryGear  Category = "gear"
	CategoryEgg   Category = "egg"
	CategorySeeds Category = "seeds"
)

// Categories lists every category in the order headings are matched.
var Categories = []Category{CategoryGear, CategoryEgg, CategorySeeds}

// StockItem is a single entry of a stock list.
type StockItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// StockSection holds one category's items and restock countdown.
type StockSection struct {
	Items     []StockItem `json:"items"`
	UpdatesIn string      `json:"updates_in"`
}

// Snapshot is one complete parse of the stock page. It is treated as immutable
// once returned by the extractor.
type Snapshot struct {
	Gear  StockSection `json:"gear_stock"`
	Egg   StockSection `json:"egg_stock"`
	Seeds StockSection `json:"seeds_stock"`
}

// Published is a Snapshot as held by the store, stamped with when and by which
// refresh it was accepted.
type Published struct {
	Snapshot
	FetchedAt time.Time `json:"fetched_at"`
	RefreshID string    `json:"-"`
	// Digest identifies the stock content; equal digests mean nothing changed.
	Digest string `json:"-"`
}

// Ready reports whether anything has been published.
func (p Published) Ready() bool {
	return !p.FetchedAt.IsZero()
}

// NewSection returns an empty section with the default countdown.
func NewSection() StockSection {
	return StockSection{Items: []StockItem{}, UpdatesIn: DefaultUpdatesIn}
}

// NewSnapshot returns a snapshot with all three sections empty.
func NewSnapshot() Snapshot {
	return Snapshot{Gear: NewSection(), Egg: NewSection(), Seeds: NewSection()}
}

// Section returns the section for the category.
func (s Snapshot) Section(c Category) (StockSection, bool) {
	switch c {
	case CategoryGear:
		return s.Gear, true
	case CategoryEgg:
		return s.Egg, true
	case CategorySeeds:
		return s.Seeds, true
	default:
		return StockSection{}, false
	}
}

// WithSection returns a copy of s with the category's section replaced.
func (s Snapshot) WithSection(c Category, section StockSection) Snapshot {
	switch c {
	case CategoryGear:
		s.Gear = section
	case CategoryEgg:
		s.Egg = section
	case CategorySeeds:
		s.Seeds = section
	}
	return s
}

// Empty reports whether every section has no items.
func (s Snapshot) Empty() bool {
	return len(s.Gear.Items) == 0 && len(s.Egg.Items) == 0 && len(s.Seeds.Items) == 0
}

// ItemCount returns the total number of items across sections.
func (s Snapshot) ItemCount() int {
	return len(s.Gear.Items) + len(s.Egg.Items) + len(s.Seeds.Items)
}

var digitRun = regexp.MustCompile(`\d+`)

// ParseItem derives an item from the visible text of a list entry. The
// quantity is the first run of digits (0 when there is none); the name is the
// text with every digit run removed and trimmed. ok is false when no name
// remains.
func ParseItem(text string) (item StockItem, ok bool) {
	if run := digitRun.FindString(text); run != "" {
		if n, err := strconv.Atoi(run); err == nil {
			item.Quantity = n
		}
	}
	item.Name = strings.TrimSpace(digitRun.ReplaceAllString(text, ""))
	return item, item.Name != ""
}

// ClassifyHeading maps a section heading to its category by keyword.
func ClassifyHeading(heading string) (Category, bool) {
	title := strings.ToUpper(strings.TrimSpace(heading))
	switch {
	case strings.Contains(title, "GEAR"):
		return CategoryGear, true
	case strings.Contains(title, "EGG"):
		return CategoryEgg, true
	case strings.Contains(title, "SEEDS"):
		return CategorySeeds, true
	default:
		return "", false
	}
}
