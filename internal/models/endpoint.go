// Package models defines the persisted entities of the latency monitor.
package models

import (
	"time"

	"github.com/latency-monitor/internal/types"
)

// Endpoint is a monitored RPC or gRPC target, identified by its
// (chain, kind, url) key. URLs are stored normalized: trimmed, protocol
// prefix stripped, no trailing slashes.
type Endpoint struct {
	ID         int64              `json:"id"`
	Chain      string             `json:"chain"`
	Kind       types.EndpointKind `json:"kind"`
	URL        string             `json:"url"`
	IsArchival bool               `json:"is_archival"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}
