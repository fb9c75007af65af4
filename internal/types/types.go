// Package types defines shared types used across the latency monitor service.
package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// EndpointKind identifies the protocol a monitored endpoint speaks.
type EndpointKind string

const (
	KindRPC  EndpointKind = "rpc"
	KindGRPC EndpointKind = "grpc"
)

// Valid reports whether the kind is one of the supported protocol kinds.
func (k EndpointKind) Valid() bool {
	return k == KindRPC || k == KindGRPC
}

// DefaultChain is assumed when an incoming probe carries no chain label.
const DefaultChain = "celestia"

// Block1Archival is the block1_status value that marks a gRPC endpoint
// as archival (it retains genesis-era data).
const Block1Archival = "Has block 1"

// FlexLatency is a latency value coerced from loosely typed agent payloads.
// Missing, null or non-numeric values decode to -1 ("not measured");
// anything below -1 is clamped to -1.
type FlexLatency int64

// LatencyNotMeasured is the sentinel for an absent latency measurement.
const LatencyNotMeasured FlexLatency = -1

// UnmarshalJSON accepts numbers, numeric strings, null and garbage.
func (l *FlexLatency) UnmarshalJSON(data []byte) error {
	*l = LatencyNotMeasured

	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var s string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
	} else {
		s = string(data)
	}

	// Agents occasionally send fractional milliseconds.
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	v := int64(f)
	if v < -1 {
		v = -1
	}
	*l = FlexLatency(v)
	return nil
}

// Int64 returns the coerced latency value.
func (l FlexLatency) Int64() int64 { return int64(l) }

// FlexHeight is a chain height coerced from loosely typed agent payloads.
// Agents report heights as numbers, numeric strings, "-" or "" placeholders.
// Anything unparsable decodes to an absent height.
type FlexHeight struct {
	Value int64
	Set   bool
}

// UnmarshalJSON accepts numbers, numeric strings, placeholders and null.
func (h *FlexHeight) UnmarshalJSON(data []byte) error {
	h.Value, h.Set = 0, false

	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var s string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
	} else {
		s = string(data)
	}

	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return nil
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil
	}
	h.Value, h.Set = v, true
	return nil
}

// Ptr returns the height as a nullable pointer.
func (h FlexHeight) Ptr() *int64 {
	if !h.Set {
		return nil
	}
	v := h.Value
	return &v
}

// ProbeItem is one raw probe payload as submitted by a monitoring agent.
type ProbeItem struct {
	Type         string      `json:"type"`
	Kind         string      `json:"kind,omitempty"` // legacy alias for Type
	Endpoint     string      `json:"endpoint"`
	URL          string      `json:"url,omitempty"` // legacy alias for Endpoint
	Chain        string      `json:"chain,omitempty"`
	Reachable    bool        `json:"reachable"`
	Timeout      bool        `json:"timeout"`
	Error        string      `json:"error,omitempty"`
	HTTPStatus   string      `json:"http_status,omitempty"`
	LatestHeight FlexHeight  `json:"latest_height,omitempty"`
	Block1Status string      `json:"block1_status,omitempty"`
	LatencyMS    FlexLatency `json:"latency_ms"`
}

// UnmarshalJSON decodes a probe item. An absent latency_ms key never
// reaches FlexLatency's decoder, so the field is pre-set to the
// not-measured sentinel; a reachable probe without a latency must not
// turn into a 0 ms measurement.
func (p *ProbeItem) UnmarshalJSON(data []byte) error {
	type alias ProbeItem
	item := alias{LatencyMS: LatencyNotMeasured}
	if err := json.Unmarshal(data, &item); err != nil {
		return err
	}
	*p = ProbeItem(item)
	return nil
}

// Target returns the item's target string as originally submitted,
// used to key per-item ingestion errors.
func (p *ProbeItem) Target() string {
	if p.Endpoint != "" {
		return p.Endpoint
	}
	return p.URL
}

// ProtocolKind resolves the item's kind, honoring the legacy alias.
func (p *ProbeItem) ProtocolKind() EndpointKind {
	if p.Type != "" {
		return EndpointKind(p.Type)
	}
	return EndpointKind(p.Kind)
}

// ServiceError represents a structured error returned by service operations.
type ServiceError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
