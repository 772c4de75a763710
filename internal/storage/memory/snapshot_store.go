// Package memory holds the process-wide snapshot in memory.
package memory

import (
	"slices"
	"sync/atomic"

	"github.com/JakeFAU/garden-stock/internal/stock"
)

// SnapshotStore keeps the latest accepted snapshot behind an atomic pointer.
// Publish is the only mutation and replaces the whole value, so a Get racing
// with a Publish observes either the old or the new snapshot in full. Callers
// must treat returned item slices as read-only.
type SnapshotStore struct {
	current atomic.Pointer[stock.Published]
}

// NewSnapshotStore returns a store holding the default, unpublished snapshot.
func NewSnapshotStore() *SnapshotStore {
	s := &SnapshotStore{}
	s.current.Store(&stock.Published{Snapshot: stock.NewSnapshot()})
	return s
}

// Get returns the current snapshot. It never blocks.
func (s *SnapshotStore) Get() stock.Published {
	return *s.current.Load()
}

// Publish swaps in a new snapshot. Item slices are copied so later changes to
// the caller's value cannot reach readers.
func (s *SnapshotStore) Publish(published stock.Published) {
	published.Gear = cloneSection(published.Gear)
	published.Egg = cloneSection(published.Egg)
	published.Seeds = cloneSection(published.Seeds)
	s.current.Store(&published)
}

func cloneSection(section stock.StockSection) stock.StockSection {
	items := slices.Clone(section.Items)
	if items == nil {
		items = []stock.StockItem{}
	}
	if section.UpdatesIn == "" {
		section.UpdatesIn = stock.DefaultUpdatesIn
	}
	section.Items = items
	return section
}
