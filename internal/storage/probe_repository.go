package storage

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/latency-monitor/internal/models"
)

// lastProbeID backs the insertion-order identifier sequence. IDs are
// nanosecond-clock based and forced strictly increasing within a process,
// which is all the latest-per-pair tie-break needs.
var lastProbeID atomic.Int64

func nextProbeID() int64 {
	for {
		now := time.Now().UnixNano()
		last := lastProbeID.Load()
		if now <= last {
			now = last + 1
		}
		if lastProbeID.CompareAndSwap(last, now) {
			return now
		}
	}
}

// ProbeRepository handles probe persistence in ClickHouse. Probes are
// append-only; the only delete paths are retention pruning and endpoint
// removal.
type ProbeRepository struct {
	db *ClickHouseDB
}

// NewProbeRepository creates a new probe repository
func NewProbeRepository(db *ClickHouseDB) *ProbeRepository {
	return &ProbeRepository{db: db}
}

const probeColumns = `id, endpoint_id, region, ts, reachable, timed_out, latency_ms, latest_height, block1_status, error, http_status`

// Insert appends a single probe row. The insertion-order ID and, when
// unset, the timestamp are assigned here.
func (r *ProbeRepository) Insert(ctx context.Context, probe *models.Probe) error {
	if probe.ID == 0 {
		probe.ID = nextProbeID()
	}
	if probe.Timestamp.IsZero() {
		probe.Timestamp = time.Now().UTC()
	}

	query := `INSERT INTO probes (` + probeColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	err := r.db.Conn().Exec(ctx, query,
		probe.ID,
		probe.EndpointID,
		probe.Region,
		probe.Timestamp,
		probe.Reachable,
		probe.TimedOut,
		probe.LatencyMS,
		probe.LatestHeight,
		probe.Block1Status,
		probe.Error,
		probe.HTTPStatus,
	)
	if err != nil {
		return fmt.Errorf("failed to insert probe: %w", err)
	}
	return nil
}

// BatchInsert appends multiple probe rows in one batch
func (r *ProbeRepository) BatchInsert(ctx context.Context, probes []*models.Probe) error {
	if len(probes) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `INSERT INTO probes (`+probeColumns+`)`)
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, probe := range probes {
		if probe.ID == 0 {
			probe.ID = nextProbeID()
		}
		if probe.Timestamp.IsZero() {
			probe.Timestamp = time.Now().UTC()
		}

		err := batch.Append(
			probe.ID,
			probe.EndpointID,
			probe.Region,
			probe.Timestamp,
			probe.Reachable,
			probe.TimedOut,
			probe.LatencyMS,
			probe.LatestHeight,
			probe.Block1Status,
			probe.Error,
			probe.HTTPStatus,
		)
		if err != nil {
			return fmt.Errorf("failed to append probe to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send probe batch: %w", err)
	}
	return nil
}

// SnapshotProbes returns, for every (endpoint, region) pair with at least
// one probe inside the window, the single most recent probe (ties broken by
// insertion-order ID). The reduction is pushed down to ClickHouse.
func (r *ProbeRepository) SnapshotProbes(ctx context.Context, window time.Duration) ([]*models.Probe, error) {
	cutoff := time.Now().UTC().Add(-window)

	query := `
		SELECT ` + probeColumns + `
		FROM probes
		WHERE ts >= ?
		ORDER BY ts DESC, id DESC
		LIMIT 1 BY endpoint_id, region
	`

	rows, err := r.db.Conn().Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot probes: %w", err)
	}
	defer rows.Close()

	var probes []*models.Probe
	for rows.Next() {
		var p models.Probe
		err := rows.Scan(
			&p.ID,
			&p.EndpointID,
			&p.Region,
			&p.Timestamp,
			&p.Reachable,
			&p.TimedOut,
			&p.LatencyMS,
			&p.LatestHeight,
			&p.Block1Status,
			&p.Error,
			&p.HTTPStatus,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan probe: %w", err)
		}
		probes = append(probes, &p)
	}
	return probes, rows.Err()
}

// MaxObservedHeight returns the maximum chain height reported by any
// reachable probe inside the window, over raw probes rather than the
// latest-per-pair snapshot. Nil when no in-window probe carries a height.
func (r *ProbeRepository) MaxObservedHeight(ctx context.Context, window time.Duration) (*int64, error) {
	cutoff := time.Now().UTC().Add(-window)

	query := `
		SELECT max(latest_height)
		FROM probes
		WHERE ts >= ? AND reachable AND latest_height IS NOT NULL
	`

	var height *int64
	if err := r.db.Conn().QueryRow(ctx, query, cutoff).Scan(&height); err != nil {
		return nil, fmt.Errorf("failed to query max observed height: %w", err)
	}
	return height, nil
}

// History returns an endpoint's in-window probes, newest first
func (r *ProbeRepository) History(ctx context.Context, endpointID int64, window time.Duration) ([]*models.Probe, error) {
	cutoff := time.Now().UTC().Add(-window)

	query := `
		SELECT ` + probeColumns + `
		FROM probes
		WHERE endpoint_id = ? AND ts >= ?
		ORDER BY ts DESC, id DESC
	`

	rows, err := r.db.Conn().Query(ctx, query, endpointID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query probe history: %w", err)
	}
	defer rows.Close()

	var probes []*models.Probe
	for rows.Next() {
		var p models.Probe
		err := rows.Scan(
			&p.ID,
			&p.EndpointID,
			&p.Region,
			&p.Timestamp,
			&p.Reachable,
			&p.TimedOut,
			&p.LatencyMS,
			&p.LatestHeight,
			&p.Block1Status,
			&p.Error,
			&p.HTTPStatus,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan probe: %w", err)
		}
		probes = append(probes, &p)
	}
	return probes, rows.Err()
}

// Prune deletes probes older than the cutoff and returns how many rows the
// delete covered. The count is read before the mutation is issued since
// ClickHouse mutations do not report affected rows.
func (r *ProbeRepository) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	var count uint64
	countQuery := `SELECT count() FROM probes WHERE ts < ?`
	if err := r.db.Conn().QueryRow(ctx, countQuery, olderThan).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count prunable probes: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	if err := r.db.Exec(ctx, `ALTER TABLE probes DELETE WHERE ts < ?`, olderThan); err != nil {
		return 0, fmt.Errorf("failed to prune probes: %w", err)
	}
	return int64(count), nil // #nosec G115 - row counts fit in int64
}

// DeleteByEndpoint removes all probes of an endpoint, the cascade half of
// explicit endpoint removal.
func (r *ProbeRepository) DeleteByEndpoint(ctx context.Context, endpointID int64) error {
	if err := r.db.Exec(ctx, `ALTER TABLE probes DELETE WHERE endpoint_id = ?`, endpointID); err != nil {
		return fmt.Errorf("failed to delete probes for endpoint %d: %w", endpointID, err)
	}
	return nil
}
