package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latency-monitor/internal/models"
	"github.com/latency-monitor/internal/types"
)

func i64(v int64) *int64 { return &v }

func testRow(id, endpointID int64, url, region string, kind types.EndpointKind, reachable bool, latency int64, height *int64) Row {
	return Row{
		Probe: models.Probe{
			ID:           id,
			EndpointID:   endpointID,
			Region:       region,
			Timestamp:    time.Now().UTC(),
			Reachable:    reachable,
			LatencyMS:    latency,
			LatestHeight: height,
		},
		URL:   url,
		Chain: types.DefaultChain,
		Kind:  kind,
	}
}

func TestBuildJoinsEndpoints(t *testing.T) {
	endpoints := []*models.Endpoint{
		{ID: 1, Chain: "celestia", Kind: types.KindRPC, URL: "rpc.a.example"},
		{ID: 2, Chain: "celestia", Kind: types.KindGRPC, URL: "grpc.a.example", IsArchival: true},
	}
	probes := []*models.Probe{
		{ID: 10, EndpointID: 1, Region: "eu", Reachable: true, LatencyMS: 30},
		{ID: 11, EndpointID: 2, Region: "eu", Reachable: true, LatencyMS: 50},
		{ID: 12, EndpointID: 99, Region: "eu", Reachable: true, LatencyMS: 5}, // unknown endpoint
	}

	snap := Build(probes, endpoints, i64(100), 60)

	require.Len(t, snap.Rows, 2)
	assert.Equal(t, "rpc.a.example", snap.Rows[0].URL)
	assert.Equal(t, types.KindGRPC, snap.Rows[1].Kind)
	assert.True(t, snap.Rows[1].IsArchival)
	assert.Equal(t, 60, snap.WindowMinutes)
	require.NotNil(t, snap.MaxHeight)
	assert.Equal(t, int64(100), *snap.MaxHeight)
}

func TestEndpointIDsDistinctFirstSeen(t *testing.T) {
	probes := []*models.Probe{
		{ID: 1, EndpointID: 7},
		{ID: 2, EndpointID: 3},
		{ID: 3, EndpointID: 7},
		{ID: 4, EndpointID: 5},
	}
	assert.Equal(t, []int64{7, 3, 5}, EndpointIDs(probes))
}

func TestGlobalStats(t *testing.T) {
	snap := &Snapshot{Rows: []Row{
		testRow(1, 1, "a", "eu", types.KindRPC, true, 40, nil),
		testRow(2, 1, "a", "us", types.KindRPC, true, 60, nil),
		testRow(3, 2, "b", "eu", types.KindRPC, true, 21, nil),
		testRow(4, 3, "c", "eu", types.KindGRPC, false, -1, nil),
	}}

	stats := Global(snap)

	assert.Equal(t, 3, stats.TotalEndpoints)
	assert.Equal(t, 2, stats.Online)
	assert.Equal(t, 1, stats.Offline)
	// (40+60+21)/3 = 40.33 rounds to 40
	assert.Equal(t, int64(40), stats.AvgLatencyMS)
	require.NotNil(t, stats.MinLatencyMS)
	require.NotNil(t, stats.MaxLatencyMS)
	assert.Equal(t, int64(21), *stats.MinLatencyMS)
	assert.Equal(t, int64(60), *stats.MaxLatencyMS)
	assert.Equal(t, 4, stats.TotalTests)
	assert.Equal(t, 3, stats.SuccessfulTests)
	assert.InDelta(t, 0.75, stats.SuccessRate, 1e-9)
}

func TestGlobalStatsEmptySnapshot(t *testing.T) {
	stats := Global(&Snapshot{})

	assert.Zero(t, stats.TotalEndpoints)
	assert.Zero(t, stats.AvgLatencyMS)
	assert.Nil(t, stats.MinLatencyMS)
	assert.Nil(t, stats.MaxLatencyMS)
	assert.Zero(t, stats.SuccessRate)
}

func TestGlobalStatsUnmeasuredLatencyExcluded(t *testing.T) {
	// Reachable but unmeasured rows count toward success rate, not latency.
	snap := &Snapshot{Rows: []Row{
		testRow(1, 1, "a", "eu", types.KindRPC, true, -1, nil),
		testRow(2, 2, "b", "eu", types.KindRPC, true, 80, nil),
	}}

	stats := Global(snap)

	assert.Equal(t, int64(80), stats.AvgLatencyMS)
	assert.Equal(t, 2, stats.SuccessfulTests)
	assert.InDelta(t, 1.0, stats.SuccessRate, 1e-9)
}

func TestSuccessRateRoundedToFourDecimals(t *testing.T) {
	rows := make([]Row, 0, 3)
	rows = append(rows, testRow(1, 1, "a", "eu", types.KindRPC, true, 10, nil))
	rows = append(rows, testRow(2, 2, "b", "eu", types.KindRPC, true, 10, nil))
	rows = append(rows, testRow(3, 3, "c", "eu", types.KindRPC, false, -1, nil))

	stats := Global(&Snapshot{Rows: rows})

	// 2/3 = 0.666666... rounds to 0.6667
	assert.Equal(t, 0.6667, stats.SuccessRate)
}

func TestRegionsSortedAndIndependent(t *testing.T) {
	snap := &Snapshot{Rows: []Row{
		testRow(1, 1, "a", "us", types.KindRPC, true, 60, nil),
		testRow(2, 1, "a", "eu", types.KindRPC, true, 40, nil),
		testRow(3, 2, "b", "eu", types.KindRPC, false, -1, nil),
	}}

	regions := Regions(snap)

	require.Len(t, regions, 2)
	assert.Equal(t, "eu", regions[0].Region)
	assert.Equal(t, "us", regions[1].Region)

	assert.Equal(t, 2, regions[0].TotalEndpoints)
	assert.Equal(t, 1, regions[0].Online)
	assert.Equal(t, int64(40), regions[0].AvgLatencyMS)

	assert.Equal(t, 1, regions[1].TotalEndpoints)
	assert.Equal(t, int64(60), regions[1].AvgLatencyMS)
}

func TestKindsCountsDistinctEndpoints(t *testing.T) {
	snap := &Snapshot{Rows: []Row{
		testRow(1, 1, "a", "eu", types.KindRPC, false, -1, nil),
		testRow(2, 1, "a", "us", types.KindRPC, true, 30, nil),
		testRow(3, 2, "b", "eu", types.KindRPC, false, -1, nil),
		testRow(4, 3, "c", "eu", types.KindGRPC, true, 90, nil),
	}}

	kinds := Kinds(snap)

	assert.Equal(t, KindStats{Total: 2, Online: 1}, kinds[types.KindRPC])
	assert.Equal(t, KindStats{Total: 1, Online: 1}, kinds[types.KindGRPC])
}

func TestArchivalGrpcRequiresArchivalFlag(t *testing.T) {
	archival := testRow(1, 1, "a", "eu", types.KindGRPC, true, 50, nil)
	archival.IsArchival = true
	offlineArchival := testRow(2, 2, "b", "eu", types.KindGRPC, false, -1, nil)
	offlineArchival.IsArchival = true

	snap := &Snapshot{Rows: []Row{
		archival,
		offlineArchival,
		testRow(3, 3, "c", "eu", types.KindGRPC, true, 50, nil),  // not archival
		testRow(4, 4, "d", "eu", types.KindRPC, true, 10, nil),   // wrong kind
	}}

	stats := ArchivalGrpc(snap)

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Online)
}
