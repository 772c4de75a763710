package sha256

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/garden-stock/internal/stock"
)

func TestHasherHashDeterministic(t *testing.T) {
	t.Parallel()

	h := New()
	got, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9", got)

	again, err := h.Hash([]byte("hello world"))
	require.NoError(t, err)
	require.Equal(t, got, again)
}

func TestHasherSnapshot(t *testing.T) {
	t.Parallel()

	h := New()
	base := stock.NewSnapshot().WithSection(stock.CategorySeeds, stock.StockSection{
		Items:     []stock.StockItem{{Name: "Carrot", Quantity: 10}},
		UpdatesIn: "2m",
	})
	same := stock.NewSnapshot().WithSection(stock.CategorySeeds, stock.StockSection{
		Items:     []stock.StockItem{{Name: "Carrot", Quantity: 10}},
		UpdatesIn: "2m",
	})
	sold := base.WithSection(stock.CategorySeeds, stock.StockSection{
		Items:     []stock.StockItem{{Name: "Carrot", Quantity: 9}},
		UpdatesIn: "2m",
	})

	a, err := h.Snapshot(base)
	require.NoError(t, err)
	b, err := h.Snapshot(same)
	require.NoError(t, err)
	c, err := h.Snapshot(sold)
	require.NoError(t, err)

	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.Len(t, a, 64)
}
