package repository

import (
	"context"

	"github.com/shubham-shewale/quote-stream/pkg/models"
)

// SnapshotStore serves the last published quote per symbol.
type SnapshotStore interface {
	GetSnapshots(ctx context.Context, symbols []string) ([]models.Quote, error)
	Close() error
}

// RateLimiter caps how often a remote address may open a stream.
type RateLimiter interface {
	Allow(ctx context.Context, ip string) (bool, error)
}
