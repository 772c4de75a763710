package refresh

import (
	"bytes"

	"github.com/JakeFAU/garden-stock/internal/extract"
	"github.com/JakeFAU/garden-stock/internal/stock"
)

// Decoder turns a fetched page body into a snapshot.
type Decoder func(body []byte) (stock.Snapshot, error)

// DecodeHTML parses body with goquery and runs the extractor over it.
func DecodeHTML(body []byte) (stock.Snapshot, error) {
	doc, err := extract.Parse(bytes.NewReader(body))
	if err != nil {
		return stock.Snapshot{}, err
	}
	return extract.Extract(doc)
}
