package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latency-monitor/internal/models"
	"github.com/latency-monitor/internal/types"
)

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare host", "rpc.example.com", "rpc.example.com"},
		{"https prefix", "https://rpc.example.com", "rpc.example.com"},
		{"http prefix", "http://rpc.example.com", "rpc.example.com"},
		{"grpc prefix", "grpc://grpc.example.com:9090", "grpc.example.com:9090"},
		{"trailing slash", "rpc.example.com/", "rpc.example.com"},
		{"multiple trailing slashes", "https://rpc.example.com///", "rpc.example.com"},
		{"surrounding whitespace", "  rpc.example.com  ", "rpc.example.com"},
		{"path preserved", "rpc.example.com/api/v1", "rpc.example.com/api/v1"},
		{"empty", "   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeURL(tt.input))
		})
	}
}

func TestMemoryResolveIdempotent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first, err := store.Resolve(ctx, "", types.KindRPC, "https://rpc.example.com/")
	require.NoError(t, err)
	assert.Equal(t, types.DefaultChain, first.Chain)
	assert.Equal(t, "rpc.example.com", first.URL)

	// Different spellings of the same target resolve to the same endpoint.
	second, err := store.Resolve(ctx, "celestia", types.KindRPC, "rpc.example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// The same URL under a different kind is a distinct endpoint.
	third, err := store.Resolve(ctx, "celestia", types.KindGRPC, "rpc.example.com")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)
}

func TestMemoryResolveValidation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Resolve(ctx, "", types.KindRPC, "   ")
	var svcErr *types.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "VALIDATION_ERROR", svcErr.Code)

	_, err = store.Resolve(ctx, "", "websocket", "ws.example.com")
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, "VALIDATION_ERROR", svcErr.Code)
}

func TestMemorySnapshotLatestPerPair(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()
	store.SetClock(func() time.Time { return base })

	e, err := store.Resolve(ctx, "", types.KindRPC, "rpc.example.com")
	require.NoError(t, err)

	insert := func(ts time.Time, region string, latency int64) {
		require.NoError(t, store.Insert(ctx, &models.Probe{
			EndpointID: e.ID,
			Region:     region,
			Timestamp:  ts,
			Reachable:  true,
			LatencyMS:  latency,
		}))
	}

	insert(base.Add(-30*time.Minute), "eu", 100)
	insert(base.Add(-10*time.Minute), "eu", 50)
	insert(base.Add(-20*time.Minute), "us", 70)
	insert(base.Add(-2*time.Hour), "ap", 10) // outside the window

	probes, err := store.SnapshotProbes(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, probes, 2)

	byRegion := make(map[string]*models.Probe)
	for _, p := range probes {
		byRegion[p.Region] = p
	}
	assert.Equal(t, int64(50), byRegion["eu"].LatencyMS)
	assert.Equal(t, int64(70), byRegion["us"].LatencyMS)
}

func TestMemorySnapshotTieBreaksOnInsertionOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()
	store.SetClock(func() time.Time { return base })

	e, err := store.Resolve(ctx, "", types.KindRPC, "rpc.example.com")
	require.NoError(t, err)

	ts := base.Add(-time.Minute)
	for _, latency := range []int64{10, 20, 30} {
		require.NoError(t, store.Insert(ctx, &models.Probe{
			EndpointID: e.ID,
			Region:     "eu",
			Timestamp:  ts,
			Reachable:  true,
			LatencyMS:  latency,
		}))
	}

	probes, err := store.SnapshotProbes(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, probes, 1)
	// Equal timestamps resolve to the last-inserted row.
	assert.Equal(t, int64(30), probes[0].LatencyMS)
}

func TestMemoryMaxObservedHeight(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()
	store.SetClock(func() time.Time { return base })

	e, err := store.Resolve(ctx, "", types.KindRPC, "rpc.example.com")
	require.NoError(t, err)

	h1, h2, h3 := int64(100), int64(120), int64(999)
	probes := []*models.Probe{
		{EndpointID: e.ID, Region: "eu", Timestamp: base.Add(-time.Minute), Reachable: true, LatestHeight: &h1},
		{EndpointID: e.ID, Region: "us", Timestamp: base.Add(-time.Minute), Reachable: true, LatestHeight: &h2},
		// Unreachable probes never contribute a height.
		{EndpointID: e.ID, Region: "ap", Timestamp: base.Add(-time.Minute), Reachable: false, LatestHeight: &h3},
		// Neither do probes outside the window.
		{EndpointID: e.ID, Region: "sa", Timestamp: base.Add(-2 * time.Hour), Reachable: true, LatestHeight: &h3},
	}
	require.NoError(t, store.BatchInsert(ctx, probes))

	max, err := store.MaxObservedHeight(ctx, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, max)
	assert.Equal(t, int64(120), *max)
}

func TestMemoryPrune(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()
	store.SetClock(func() time.Time { return base })

	e, err := store.Resolve(ctx, "", types.KindRPC, "rpc.example.com")
	require.NoError(t, err)

	for _, age := range []time.Duration{time.Hour, 24 * time.Hour, 40 * 24 * time.Hour} {
		require.NoError(t, store.Insert(ctx, &models.Probe{
			EndpointID: e.ID,
			Region:     "eu",
			Timestamp:  base.Add(-age),
			Reachable:  true,
			LatencyMS:  10,
		}))
	}

	removed, err := store.Prune(ctx, base.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.Equal(t, 2, store.ProbeCount())
}

func TestMemoryDeleteCascades(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	e, err := store.Resolve(ctx, "", types.KindRPC, "rpc.example.com")
	require.NoError(t, err)
	require.NoError(t, store.Insert(ctx, &models.Probe{EndpointID: e.ID, Region: "eu", Reachable: true, LatencyMS: 10}))

	require.NoError(t, store.Delete(ctx, e.ID))

	got, err := store.GetByURL(ctx, "rpc.example.com")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, store.ProbeCount())
}

func TestMemoryHistoryNewestFirst(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	base := time.Now().UTC()
	store.SetClock(func() time.Time { return base })

	e, err := store.Resolve(ctx, "", types.KindRPC, "rpc.example.com")
	require.NoError(t, err)

	for i, age := range []time.Duration{30 * time.Minute, 10 * time.Minute, 20 * time.Minute} {
		require.NoError(t, store.Insert(ctx, &models.Probe{
			EndpointID: e.ID,
			Region:     "eu",
			Timestamp:  base.Add(-age),
			Reachable:  true,
			LatencyMS:  int64(i),
		}))
	}

	history, err := store.History(ctx, e.ID, time.Hour)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.True(t, history[0].Timestamp.After(history[1].Timestamp))
	assert.True(t, history[1].Timestamp.After(history[2].Timestamp))
}
