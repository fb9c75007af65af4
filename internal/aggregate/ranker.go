package aggregate

import (
	"sort"

	"github.com/latency-monitor/internal/types"
)

// FastEntry is one endpoint's cross-region ranking record.
type FastEntry struct {
	Endpoint         string             `json:"endpoint"`
	Chain            string             `json:"chain"`
	Kind             types.EndpointKind `json:"kind"`
	IsArchival       bool               `json:"is_archival"`
	AvgLatencyGlobal int64              `json:"avg_latency_global"`
	MinLatencyMS     int64              `json:"min_latency"`
	MaxLatencyMS     int64              `json:"max_latency"`
	RegionsTested    int                `json:"regions_tested"`
	TimesReachable   int                `json:"times_reachable"`
	SuccessRate      float64            `json:"success_rate"`
	Regions          []string           `json:"regions"`
}

// BestRPC identifies the lowest-latency RPC endpoint of one region.
type BestRPC struct {
	URL       string `json:"url"`
	LatencyMS int64  `json:"latency_ms"`
}

// NearTipEntry is one snapshot row whose reported height is within
// tolerance of the highest observed chain height.
type NearTipEntry struct {
	Endpoint     string `json:"endpoint"`
	Region       string `json:"region"`
	LatencyMS    int64  `json:"latency_ms"`
	LatestHeight int64  `json:"latest_height"`
}

// TopFastest ranks endpoints by average measured latency across regions.
// Only endpoints measured in at least minRegions distinct regions qualify;
// ties break lexicographically on URL so repeated summaries over the same
// snapshot rank identically.
func TopFastest(snap *Snapshot, k, minRegions int) []FastEntry {
	type acc struct {
		chain      string
		kind       types.EndpointKind
		isArchival bool
		sum        int64
		count      int64
		min        int64
		max        int64
		reachable  int
		total      int
		regions    map[string]struct{}
	}

	byURL := make(map[string]*acc)
	for _, r := range snap.Rows {
		a, ok := byURL[r.URL]
		if !ok {
			a = &acc{
				chain:      r.Chain,
				kind:       r.Kind,
				isArchival: r.IsArchival,
				regions:    make(map[string]struct{}),
			}
			byURL[r.URL] = a
		}
		a.total++
		if r.Reachable {
			a.reachable++
		}
		if !r.Measured() {
			continue
		}
		if a.count == 0 || r.LatencyMS < a.min {
			a.min = r.LatencyMS
		}
		if a.count == 0 || r.LatencyMS > a.max {
			a.max = r.LatencyMS
		}
		a.sum += r.LatencyMS
		a.count++
		a.regions[r.Region] = struct{}{}
	}

	entries := make([]FastEntry, 0, len(byURL))
	for url, a := range byURL {
		if a.count == 0 || len(a.regions) < minRegions {
			continue
		}
		regions := make([]string, 0, len(a.regions))
		for region := range a.regions {
			regions = append(regions, region)
		}
		sort.Strings(regions)
		entries = append(entries, FastEntry{
			Endpoint:         url,
			Chain:            a.chain,
			Kind:             a.kind,
			IsArchival:       a.isArchival,
			AvgLatencyGlobal: roundToInt(float64(a.sum) / float64(a.count)),
			MinLatencyMS:     a.min,
			MaxLatencyMS:     a.max,
			RegionsTested:    len(a.regions),
			TimesReachable:   a.reachable,
			SuccessRate:      roundRate(float64(a.reachable) / float64(a.total)),
			Regions:          regions,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AvgLatencyGlobal != entries[j].AvgLatencyGlobal {
			return entries[i].AvgLatencyGlobal < entries[j].AvgLatencyGlobal
		}
		return entries[i].Endpoint < entries[j].Endpoint
	})

	if len(entries) > k {
		entries = entries[:k]
	}
	return entries
}

// BestPerRegion selects, for every region, the measured RPC row with the
// lowest latency. Ties break lexicographically on URL. Regions with no
// measured RPC row are absent from the result.
func BestPerRegion(snap *Snapshot) map[string]BestRPC {
	out := make(map[string]BestRPC)
	for _, r := range snap.Rows {
		if r.Kind != types.KindRPC || !r.Measured() {
			continue
		}
		best, ok := out[r.Region]
		if !ok || r.LatencyMS < best.LatencyMS ||
			(r.LatencyMS == best.LatencyMS && r.URL < best.URL) {
			out[r.Region] = BestRPC{URL: r.URL, LatencyMS: r.LatencyMS}
		}
	}
	return out
}

// NearTip ranks the fastest measured RPC rows whose reported height is
// within tolerance blocks of the snapshot's highest observed height. Rows
// keep per-region granularity: the same endpoint can appear once per region.
// When no in-window probe reported a height, the result is empty.
func NearTip(snap *Snapshot, tolerance int64, n int) []NearTipEntry {
	if snap.MaxHeight == nil {
		return []NearTipEntry{}
	}
	floor := *snap.MaxHeight - tolerance

	entries := make([]NearTipEntry, 0, n)
	for _, r := range snap.Rows {
		if r.Kind != types.KindRPC || !r.Measured() {
			continue
		}
		if r.LatestHeight == nil || *r.LatestHeight < floor {
			continue
		}
		entries = append(entries, NearTipEntry{
			Endpoint:     r.URL,
			Region:       r.Region,
			LatencyMS:    r.LatencyMS,
			LatestHeight: *r.LatestHeight,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].LatencyMS != entries[j].LatencyMS {
			return entries[i].LatencyMS < entries[j].LatencyMS
		}
		if entries[i].Endpoint != entries[j].Endpoint {
			return entries[i].Endpoint < entries[j].Endpoint
		}
		return entries[i].Region < entries[j].Region
	})

	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}
