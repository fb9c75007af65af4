package aggregate

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/latency-monitor/internal/types"
)

var regionNames = []string{"eu-west", "us-east", "ap-south", "sa-east"}

// snapshotFromSeed derives a snapshot with up to 8 endpoints probed from
// up to 4 regions, mixing reachable, unmeasured and failed rows.
func snapshotFromSeed(seed []int) *Snapshot {
	snap := &Snapshot{WindowMinutes: 60}
	var id int64
	var maxHeight *int64
	for i, v := range seed {
		if v < 0 {
			v = -v
		}
		endpointID := int64(v%8) + 1
		region := regionNames[v%len(regionNames)]
		reachable := v%5 != 0
		latency := int64(-1)
		if reachable && v%7 != 0 {
			latency = int64(v % 500)
		}
		var height *int64
		if reachable && v%3 != 0 {
			h := int64(1000 + v%50)
			height = &h
			if maxHeight == nil || h > *maxHeight {
				maxHeight = &h
			}
		}
		id++
		kind := types.KindRPC
		if endpointID%3 == 0 {
			kind = types.KindGRPC
		}
		row := testRow(id, endpointID, fmt.Sprintf("ep-%d.example", endpointID), region, kind, reachable, latency, height)
		if i%2 == 0 {
			row.IsArchival = endpointID%2 == 0
		}
		snap.Rows = append(snap.Rows, row)
	}
	snap.MaxHeight = maxHeight
	return snap
}

func TestAggregateProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	seeds := gen.SliceOf(gen.IntRange(0, 10000))

	properties.Property("success rate stays within [0, 1]", prop.ForAll(
		func(seed []int) bool {
			snap := snapshotFromSeed(seed)
			stats := Global(snap)
			if stats.SuccessRate < 0 || stats.SuccessRate > 1 {
				return false
			}
			for _, rs := range Regions(snap) {
				if rs.SuccessRate < 0 || rs.SuccessRate > 1 {
					return false
				}
			}
			return true
		},
		seeds,
	))

	properties.Property("region totals sum to global test count", prop.ForAll(
		func(seed []int) bool {
			snap := snapshotFromSeed(seed)
			total := 0
			for _, rs := range Regions(snap) {
				total += rs.TotalTests
			}
			return total == Global(snap).TotalTests
		},
		seeds,
	))

	properties.Property("top fastest is bounded, sorted and region-qualified", prop.ForAll(
		func(seed []int, k int, minRegions int) bool {
			snap := snapshotFromSeed(seed)
			entries := TopFastest(snap, k, minRegions)
			if len(entries) > k {
				return false
			}
			for i, e := range entries {
				if e.RegionsTested < minRegions {
					return false
				}
				if i > 0 && entries[i-1].AvgLatencyGlobal > e.AvgLatencyGlobal {
					return false
				}
			}
			return true
		},
		seeds,
		gen.IntRange(0, 20),
		gen.IntRange(1, 4),
	))

	properties.Property("best per region picks a minimal measured RPC row", prop.ForAll(
		func(seed []int) bool {
			snap := snapshotFromSeed(seed)
			best := BestPerRegion(snap)
			for _, r := range snap.Rows {
				if r.Kind != types.KindRPC || !r.Measured() {
					continue
				}
				b, ok := best[r.Region]
				if !ok || b.LatencyMS > r.LatencyMS {
					return false
				}
			}
			return true
		},
		seeds,
	))

	properties.Property("near-tip entries respect the tolerance floor", prop.ForAll(
		func(seed []int, tolerance int64) bool {
			snap := snapshotFromSeed(seed)
			entries := NearTip(snap, tolerance, 10)
			if snap.MaxHeight == nil {
				return len(entries) == 0
			}
			for _, e := range entries {
				if e.LatestHeight < *snap.MaxHeight-tolerance {
					return false
				}
			}
			return true
		},
		seeds,
		gen.Int64Range(0, 100),
	))

	properties.TestingRun(t)
}
