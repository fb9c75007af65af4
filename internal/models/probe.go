package models

import "time"

// Probe is a single latency/reachability measurement of one endpoint from
// one region at one time. Probes are append-only and never updated in place.
//
// ID is an insertion-order identifier assigned by the store at insert time;
// within an (endpoint, region) pair a greater ID means a later insert, which
// is the tie-break for "latest probe" when timestamps collide.
type Probe struct {
	ID           int64     `json:"id"`
	EndpointID   int64     `json:"endpoint_id"`
	Region       string    `json:"region"`
	Timestamp    time.Time `json:"ts"`
	Reachable    bool      `json:"reachable"`
	TimedOut     bool      `json:"timeout"`
	LatencyMS    int64     `json:"latency_ms"` // -1 means not measured
	LatestHeight *int64    `json:"latest_height,omitempty"`
	Block1Status *string   `json:"block1_status,omitempty"`
	Error        *string   `json:"error,omitempty"`
	HTTPStatus   *string   `json:"http_status,omitempty"`
}

// Measured reports whether the probe carries a usable latency sample.
func (p *Probe) Measured() bool {
	return p.Reachable && p.LatencyMS >= 0
}
