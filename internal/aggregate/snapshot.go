// Package aggregate implements the aggregation core of the latency monitor:
// the Snapshot derived from raw probes and the pure reductions (statistics
// and rankings) computed over it.
//
// Every statistic in a summary is a reduction over one Snapshot value,
// never over raw probe history. That is what keeps the global, per-region
// and per-kind numbers consistent with each other and keeps endpoints
// probed at a high cadence from skewing averages.
package aggregate

import (
	"time"

	"github.com/latency-monitor/internal/models"
	"github.com/latency-monitor/internal/types"
)

// Row is one snapshot entry: the most recent in-window probe of one
// (endpoint, region) pair, joined with the endpoint's registry identity.
type Row struct {
	models.Probe

	URL        string
	Chain      string
	Kind       types.EndpointKind
	IsArchival bool
}

// Snapshot is the consistent point-in-time view all aggregates are
// computed from. It holds at most one Row per (endpoint, region) pair, plus
// MaxHeight, the highest chain height any reachable in-window probe
// reported (nil when no probe reported one).
type Snapshot struct {
	Rows          []Row
	MaxHeight     *int64
	WindowMinutes int
	GeneratedAt   time.Time
}

// Build joins the latest-per-pair probes with their endpoints into a
// Snapshot. Probes referencing an unknown endpoint are dropped; they can
// only appear mid-deletion of an endpoint.
func Build(probes []*models.Probe, endpoints []*models.Endpoint, maxHeight *int64, windowMinutes int) *Snapshot {
	byID := make(map[int64]*models.Endpoint, len(endpoints))
	for _, e := range endpoints {
		byID[e.ID] = e
	}

	rows := make([]Row, 0, len(probes))
	for _, p := range probes {
		e, ok := byID[p.EndpointID]
		if !ok {
			continue
		}
		rows = append(rows, Row{
			Probe:      *p,
			URL:        e.URL,
			Chain:      e.Chain,
			Kind:       e.Kind,
			IsArchival: e.IsArchival,
		})
	}

	return &Snapshot{
		Rows:          rows,
		MaxHeight:     maxHeight,
		WindowMinutes: windowMinutes,
		GeneratedAt:   time.Now().UTC(),
	}
}

// EndpointIDs returns the distinct endpoint IDs referenced by probes,
// in first-seen order.
func EndpointIDs(probes []*models.Probe) []int64 {
	seen := make(map[int64]struct{}, len(probes))
	var ids []int64
	for _, p := range probes {
		if _, ok := seen[p.EndpointID]; ok {
			continue
		}
		seen[p.EndpointID] = struct{}{}
		ids = append(ids, p.EndpointID)
	}
	return ids
}
