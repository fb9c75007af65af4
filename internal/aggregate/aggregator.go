package aggregate

import (
	"math"
	"sort"

	"github.com/latency-monitor/internal/types"
)

// Stats is the reduction shared by the global and per-region views.
// total_endpoints counts distinct endpoints present; online counts distinct
// endpoints with at least one reachable row; latency figures only consider
// reachable rows with a measured (>= 0) latency; success_rate is reachable
// rows over all rows. Empty inputs reduce to zeroes, never errors.
type Stats struct {
	TotalEndpoints  int     `json:"total_endpoints"`
	Online          int     `json:"online"`
	Offline         int     `json:"offline"`
	AvgLatencyMS    int64   `json:"avg_latency_ms"`
	MinLatencyMS    *int64  `json:"min_latency_ms"`
	MaxLatencyMS    *int64  `json:"max_latency_ms"`
	SuccessRate     float64 `json:"success_rate"`
	TotalTests      int     `json:"total_tests"`
	SuccessfulTests int     `json:"successful_tests"`
}

// RegionStats is the Stats reduction restricted to one region's rows
type RegionStats struct {
	Region string `json:"region"`
	Stats
}

// KindStats counts endpoints of one protocol kind in the snapshot
type KindStats struct {
	Total  int `json:"total"`
	Online int `json:"online"`
}

// ArchivalStats counts archival gRPC endpoints active inside the window
type ArchivalStats struct {
	Total  int `json:"total"`
	Online int `json:"online"`
}

// reduce computes Stats over a set of snapshot rows
func reduce(rows []Row) Stats {
	var s Stats
	s.TotalTests = len(rows)

	endpoints := make(map[int64]struct{})
	online := make(map[int64]struct{})

	var latencySum, latencyCount int64
	for _, r := range rows {
		endpoints[r.EndpointID] = struct{}{}
		if r.Reachable {
			s.SuccessfulTests++
			online[r.EndpointID] = struct{}{}
		}
		if r.Measured() {
			latencySum += r.LatencyMS
			latencyCount++
			if s.MinLatencyMS == nil || r.LatencyMS < *s.MinLatencyMS {
				v := r.LatencyMS
				s.MinLatencyMS = &v
			}
			if s.MaxLatencyMS == nil || r.LatencyMS > *s.MaxLatencyMS {
				v := r.LatencyMS
				s.MaxLatencyMS = &v
			}
		}
	}

	s.TotalEndpoints = len(endpoints)
	s.Online = len(online)
	s.Offline = s.TotalEndpoints - s.Online

	if latencyCount > 0 {
		s.AvgLatencyMS = roundToInt(float64(latencySum) / float64(latencyCount))
	}
	if s.TotalTests > 0 {
		s.SuccessRate = roundRate(float64(s.SuccessfulTests) / float64(s.TotalTests))
	}

	return s
}

// Global computes the snapshot-wide statistics
func Global(snap *Snapshot) Stats {
	return reduce(snap.Rows)
}

// Regions computes per-region statistics, sorted by region name
func Regions(snap *Snapshot) []RegionStats {
	byRegion := make(map[string][]Row)
	for _, r := range snap.Rows {
		byRegion[r.Region] = append(byRegion[r.Region], r)
	}

	out := make([]RegionStats, 0, len(byRegion))
	for region, rows := range byRegion {
		out = append(out, RegionStats{
			Region: region,
			Stats:  reduce(rows),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Region < out[j].Region })
	return out
}

// Kinds computes distinct endpoint totals per protocol kind
func Kinds(snap *Snapshot) map[types.EndpointKind]KindStats {
	type endpointState struct {
		kind   types.EndpointKind
		online bool
	}
	states := make(map[int64]*endpointState)
	for _, r := range snap.Rows {
		st, ok := states[r.EndpointID]
		if !ok {
			st = &endpointState{kind: r.Kind}
			states[r.EndpointID] = st
		}
		if r.Reachable {
			st.online = true
		}
	}

	out := map[types.EndpointKind]KindStats{
		types.KindRPC:  {},
		types.KindGRPC: {},
	}
	for _, st := range states {
		ks := out[st.kind]
		ks.Total++
		if st.online {
			ks.Online++
		}
		out[st.kind] = ks
	}
	return out
}

// ArchivalGrpc counts distinct archival gRPC endpoints with at least one
// in-window probe. Presence in the snapshot is exactly "has at least one
// probe, of any outcome, inside the window" - archival status itself is a
// registry property, not a liveness measurement.
func ArchivalGrpc(snap *Snapshot) ArchivalStats {
	total := make(map[int64]struct{})
	online := make(map[int64]struct{})
	for _, r := range snap.Rows {
		if r.Kind != types.KindGRPC || !r.IsArchival {
			continue
		}
		total[r.EndpointID] = struct{}{}
		if r.Reachable {
			online[r.EndpointID] = struct{}{}
		}
	}
	return ArchivalStats{Total: len(total), Online: len(online)}
}

// roundToInt rounds to the nearest integer, half away from zero
func roundToInt(v float64) int64 {
	return int64(math.Round(v))
}

// roundRate rounds a ratio to four decimal places
func roundRate(v float64) float64 {
	return math.Round(v*10000) / 10000
}
