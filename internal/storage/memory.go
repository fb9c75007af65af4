package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/latency-monitor/internal/models"
	"github.com/latency-monitor/internal/types"
)

// MemoryStore is a thread-safe in-memory implementation of the endpoint
// registry and probe store interfaces, used by unit tests in place of
// Postgres and ClickHouse. The clock is injectable for deterministic
// window tests.
type MemoryStore struct {
	mu          sync.RWMutex
	endpoints   map[string]*models.Endpoint // keyed by chain|kind|url
	byID        map[int64]*models.Endpoint
	probes      []*models.Probe
	nextEndID   int64
	nextProbeID int64
	now         func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		endpoints: make(map[string]*models.Endpoint),
		byID:      make(map[int64]*models.Endpoint),
		now:       time.Now,
	}
}

// SetClock overrides the store's clock, for deterministic tests
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func endpointKey(chain string, kind types.EndpointKind, url string) string {
	return chain + "|" + string(kind) + "|" + url
}

// Resolve finds or creates the endpoint for (chain, kind, url)
func (s *MemoryStore) Resolve(ctx context.Context, chain string, kind types.EndpointKind, url string) (*models.Endpoint, error) {
	url = NormalizeURL(url)
	if url == "" {
		return nil, &types.ServiceError{
			Code:    "VALIDATION_ERROR",
			Message: "endpoint URL must not be empty",
		}
	}
	if !kind.Valid() {
		return nil, &types.ServiceError{
			Code:    "VALIDATION_ERROR",
			Message: fmt.Sprintf("unknown endpoint kind: %q", kind),
		}
	}
	if chain == "" {
		chain = types.DefaultChain
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := endpointKey(chain, kind, url)
	if e, ok := s.endpoints[key]; ok {
		cp := *e
		return &cp, nil
	}

	s.nextEndID++
	now := s.now().UTC()
	e := &models.Endpoint{
		ID:        s.nextEndID,
		Chain:     chain,
		Kind:      kind,
		URL:       url,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.endpoints[key] = e
	s.byID[e.ID] = e

	cp := *e
	return &cp, nil
}

// MarkArchival updates the advisory archival flag
func (s *MemoryStore) MarkArchival(ctx context.Context, endpointID int64, block1Status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[endpointID]
	if !ok {
		return fmt.Errorf("endpoint not found: %d", endpointID)
	}
	e.IsArchival = block1Status == types.Block1Archival
	e.UpdatedAt = s.now().UTC()
	return nil
}

// GetByURL returns the endpoint with the given normalized URL, or nil
func (s *MemoryStore) GetByURL(ctx context.Context, url string) (*models.Endpoint, error) {
	url = NormalizeURL(url)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *models.Endpoint
	for _, e := range s.endpoints {
		if e.URL == url && (found == nil || e.ID < found.ID) {
			found = e
		}
	}
	if found == nil {
		return nil, nil
	}
	cp := *found
	return &cp, nil
}

// ListByIDs returns endpoints for the given IDs
func (s *MemoryStore) ListByIDs(ctx context.Context, ids []int64) ([]*models.Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Endpoint
	for _, id := range ids {
		if e, ok := s.byID[id]; ok {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Delete removes an endpoint and cascades to its probes
func (s *MemoryStore) Delete(ctx context.Context, endpointID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.byID[endpointID]
	if !ok {
		return fmt.Errorf("endpoint not found: %d", endpointID)
	}
	delete(s.endpoints, endpointKey(e.Chain, e.Kind, e.URL))
	delete(s.byID, endpointID)

	kept := s.probes[:0]
	for _, p := range s.probes {
		if p.EndpointID != endpointID {
			kept = append(kept, p)
		}
	}
	s.probes = kept
	return nil
}

// Insert appends a probe row
func (s *MemoryStore) Insert(ctx context.Context, probe *models.Probe) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[probe.EndpointID]; !ok {
		return fmt.Errorf("endpoint not found: %d", probe.EndpointID)
	}

	s.nextProbeID++
	if probe.ID == 0 {
		probe.ID = s.nextProbeID
	}
	if probe.Timestamp.IsZero() {
		probe.Timestamp = s.now().UTC()
	}

	cp := *probe
	s.probes = append(s.probes, &cp)
	return nil
}

// BatchInsert appends multiple probe rows
func (s *MemoryStore) BatchInsert(ctx context.Context, probes []*models.Probe) error {
	for _, p := range probes {
		if err := s.Insert(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// SnapshotProbes returns the latest in-window probe per (endpoint, region)
func (s *MemoryStore) SnapshotProbes(ctx context.Context, window time.Duration) ([]*models.Probe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().UTC().Add(-window)

	type pairKey struct {
		endpointID int64
		region     string
	}
	latest := make(map[pairKey]*models.Probe)
	for _, p := range s.probes {
		if p.Timestamp.Before(cutoff) {
			continue
		}
		key := pairKey{p.EndpointID, p.Region}
		cur, ok := latest[key]
		if !ok || p.Timestamp.After(cur.Timestamp) ||
			(p.Timestamp.Equal(cur.Timestamp) && p.ID > cur.ID) {
			latest[key] = p
		}
	}

	out := make([]*models.Probe, 0, len(latest))
	for _, p := range latest {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MaxObservedHeight returns the max height over reachable in-window probes
func (s *MemoryStore) MaxObservedHeight(ctx context.Context, window time.Duration) (*int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().UTC().Add(-window)

	var max *int64
	for _, p := range s.probes {
		if p.Timestamp.Before(cutoff) || !p.Reachable || p.LatestHeight == nil {
			continue
		}
		if max == nil || *p.LatestHeight > *max {
			v := *p.LatestHeight
			max = &v
		}
	}
	return max, nil
}

// History returns an endpoint's in-window probes, newest first
func (s *MemoryStore) History(ctx context.Context, endpointID int64, window time.Duration) ([]*models.Probe, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.now().UTC().Add(-window)

	var out []*models.Probe
	for _, p := range s.probes {
		if p.EndpointID != endpointID || p.Timestamp.Before(cutoff) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

// Prune deletes probes older than the cutoff
func (s *MemoryStore) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.probes[:0]
	var removed int64
	for _, p := range s.probes {
		if p.Timestamp.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, p)
	}
	s.probes = kept
	return removed, nil
}

// DeleteByEndpoint removes all probes of an endpoint
func (s *MemoryStore) DeleteByEndpoint(ctx context.Context, endpointID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.probes[:0]
	for _, p := range s.probes {
		if p.EndpointID != endpointID {
			kept = append(kept, p)
		}
	}
	s.probes = kept
	return nil
}

// ProbeCount returns the number of stored probes, for tests
func (s *MemoryStore) ProbeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.probes)
}
