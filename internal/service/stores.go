// Package service implements the core operations of the latency monitor:
// probe ingestion, summary aggregation and endpoint detail lookups.
package service

import (
	"context"
	"time"

	"github.com/latency-monitor/internal/models"
	"github.com/latency-monitor/internal/types"
)

// EndpointRegistry is the endpoint identity store consumed by the services.
// Implemented by storage.EndpointRepository (Postgres) and storage.MemoryStore.
type EndpointRegistry interface {
	Resolve(ctx context.Context, chain string, kind types.EndpointKind, url string) (*models.Endpoint, error)
	MarkArchival(ctx context.Context, endpointID int64, block1Status string) error
	GetByURL(ctx context.Context, url string) (*models.Endpoint, error)
	ListByIDs(ctx context.Context, ids []int64) ([]*models.Endpoint, error)
	Delete(ctx context.Context, endpointID int64) error
}

// ProbeStore is the append-only probe store consumed by the services.
// Implemented by storage.ProbeRepository (ClickHouse) and storage.MemoryStore.
type ProbeStore interface {
	Insert(ctx context.Context, probe *models.Probe) error
	BatchInsert(ctx context.Context, probes []*models.Probe) error
	SnapshotProbes(ctx context.Context, window time.Duration) ([]*models.Probe, error)
	MaxObservedHeight(ctx context.Context, window time.Duration) (*int64, error)
	History(ctx context.Context, endpointID int64, window time.Duration) ([]*models.Probe, error)
	Prune(ctx context.Context, olderThan time.Time) (int64, error)
	DeleteByEndpoint(ctx context.Context, endpointID int64) error
}

// SummaryCache caches assembled summaries. Implemented by
// storage.CacheService; a nil cache disables caching.
type SummaryCache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, value any) error
}
