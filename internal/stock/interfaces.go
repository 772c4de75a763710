package stock

import (
	"context"
	"time"
)

// Fetcher performs one network attempt and returns the raw page body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Store holds the latest accepted snapshot.
type Store interface {
	Get() Published
	Publish(published Published)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces refresh IDs.
type IDGenerator interface {
	NewID() (string, error)
}
