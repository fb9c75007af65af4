package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latency-monitor/internal/types"
)

// twoRegionSnapshot models two RPC endpoints probed from two regions:
// a: eu=40ms, us=60ms; b: eu=20ms, us=80ms; every probe at height 100.
func twoRegionSnapshot() *Snapshot {
	return &Snapshot{
		Rows: []Row{
			testRow(1, 1, "a", "eu", types.KindRPC, true, 40, i64(100)),
			testRow(2, 1, "a", "us", types.KindRPC, true, 60, i64(100)),
			testRow(3, 2, "b", "eu", types.KindRPC, true, 20, i64(100)),
			testRow(4, 2, "b", "us", types.KindRPC, true, 80, i64(100)),
		},
		MaxHeight:     i64(100),
		WindowMinutes: 60,
	}
}

func TestTopFastestRanksByAverage(t *testing.T) {
	entries := TopFastest(twoRegionSnapshot(), 15, 2)

	require.Len(t, entries, 2)
	// Both average 50ms; the tie breaks on URL.
	assert.Equal(t, "a", entries[0].Endpoint)
	assert.Equal(t, "b", entries[1].Endpoint)
	assert.Equal(t, int64(50), entries[0].AvgLatencyGlobal)
	assert.Equal(t, int64(40), entries[0].MinLatencyMS)
	assert.Equal(t, int64(60), entries[0].MaxLatencyMS)
	assert.Equal(t, 2, entries[0].RegionsTested)
	assert.Equal(t, 2, entries[0].TimesReachable)
	assert.InDelta(t, 1.0, entries[0].SuccessRate, 1e-9)
	assert.Equal(t, []string{"eu", "us"}, entries[0].Regions)
}

func TestTopFastestMinRegionsFilter(t *testing.T) {
	snap := twoRegionSnapshot()
	// c is fast but only measured from one region.
	snap.Rows = append(snap.Rows, testRow(5, 3, "c", "eu", types.KindRPC, true, 1, nil))

	entries := TopFastest(snap, 15, 2)

	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.NotEqual(t, "c", e.Endpoint)
	}

	entries = TopFastest(snap, 15, 1)
	require.Len(t, entries, 3)
	assert.Equal(t, "c", entries[0].Endpoint)
}

func TestTopFastestTruncatesToK(t *testing.T) {
	entries := TopFastest(twoRegionSnapshot(), 1, 2)

	require.Len(t, entries, 1)
	assert.Equal(t, "a", entries[0].Endpoint)
}

func TestTopFastestUnreachableRegionsDoNotQualify(t *testing.T) {
	snap := &Snapshot{Rows: []Row{
		testRow(1, 1, "a", "eu", types.KindRPC, true, 30, nil),
		testRow(2, 1, "a", "us", types.KindRPC, false, -1, nil),
	}}

	// The failed us probe counts toward success rate but not regions tested.
	entries := TopFastest(snap, 15, 2)
	assert.Empty(t, entries)

	entries = TopFastest(snap, 15, 1)
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].RegionsTested)
	assert.Equal(t, 1, entries[0].TimesReachable)
	assert.InDelta(t, 0.5, entries[0].SuccessRate, 1e-9)
}

func TestBestPerRegion(t *testing.T) {
	best := BestPerRegion(twoRegionSnapshot())

	require.Len(t, best, 2)
	assert.Equal(t, BestRPC{URL: "b", LatencyMS: 20}, best["eu"])
	assert.Equal(t, BestRPC{URL: "a", LatencyMS: 60}, best["us"])
}

func TestBestPerRegionIgnoresGrpcAndUnmeasured(t *testing.T) {
	snap := &Snapshot{Rows: []Row{
		testRow(1, 1, "grpc-fast", "eu", types.KindGRPC, true, 1, nil),
		testRow(2, 2, "rpc-down", "eu", types.KindRPC, false, -1, nil),
		testRow(3, 3, "rpc-up", "eu", types.KindRPC, true, 70, nil),
	}}

	best := BestPerRegion(snap)

	require.Len(t, best, 1)
	assert.Equal(t, BestRPC{URL: "rpc-up", LatencyMS: 70}, best["eu"])
}

func TestBestPerRegionTieBreaksOnURL(t *testing.T) {
	snap := &Snapshot{Rows: []Row{
		testRow(1, 1, "z.example", "eu", types.KindRPC, true, 25, nil),
		testRow(2, 2, "a.example", "eu", types.KindRPC, true, 25, nil),
	}}

	best := BestPerRegion(snap)
	assert.Equal(t, "a.example", best["eu"].URL)
}

func TestNearTipPerRegionGranularity(t *testing.T) {
	entries := NearTip(twoRegionSnapshot(), 5, 3)

	require.Len(t, entries, 3)
	assert.Equal(t, NearTipEntry{Endpoint: "b", Region: "eu", LatencyMS: 20, LatestHeight: 100}, entries[0])
	assert.Equal(t, NearTipEntry{Endpoint: "a", Region: "eu", LatencyMS: 40, LatestHeight: 100}, entries[1])
	assert.Equal(t, NearTipEntry{Endpoint: "a", Region: "us", LatencyMS: 60, LatestHeight: 100}, entries[2])
}

func TestNearTipToleranceFloor(t *testing.T) {
	snap := &Snapshot{
		Rows: []Row{
			testRow(1, 1, "tip", "eu", types.KindRPC, true, 10, i64(100)),
			testRow(2, 2, "close", "eu", types.KindRPC, true, 5, i64(95)),
			testRow(3, 3, "lagging", "eu", types.KindRPC, true, 1, i64(94)),
			testRow(4, 4, "no-height", "eu", types.KindRPC, true, 2, nil),
		},
		MaxHeight: i64(100),
	}

	entries := NearTip(snap, 5, 10)

	require.Len(t, entries, 2)
	assert.Equal(t, "close", entries[0].Endpoint)
	assert.Equal(t, "tip", entries[1].Endpoint)
}

func TestNearTipExcludesUnmeasuredRows(t *testing.T) {
	// A reachable row with the -1 sentinel carries no latency to rank by;
	// left in, it would sort ahead of every real measurement.
	snap := &Snapshot{
		Rows: []Row{
			testRow(1, 1, "measured", "eu", types.KindRPC, true, 30, i64(100)),
			testRow(2, 2, "unmeasured", "eu", types.KindRPC, true, -1, i64(100)),
		},
		MaxHeight: i64(100),
	}

	entries := NearTip(snap, 5, 10)

	require.Len(t, entries, 1)
	assert.Equal(t, "measured", entries[0].Endpoint)
}

func TestNearTipEmptyWithoutObservedHeight(t *testing.T) {
	snap := &Snapshot{Rows: []Row{
		testRow(1, 1, "a", "eu", types.KindRPC, true, 10, nil),
	}}

	assert.Empty(t, NearTip(snap, 5, 3))
}
