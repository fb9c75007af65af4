package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/latency-monitor/internal/models"
	"github.com/latency-monitor/internal/types"
)

// NormalizeURL canonicalizes an endpoint URL: whitespace trimmed, protocol
// prefix stripped, no trailing slashes. All registry lookups and inserts
// operate on the normalized form so agents reporting the same target with
// different spellings resolve to one endpoint.
func NormalizeURL(raw string) string {
	url := strings.TrimSpace(raw)
	for _, prefix := range []string{"https://", "http://", "grpc://"} {
		if strings.HasPrefix(url, prefix) {
			url = strings.TrimPrefix(url, prefix)
			break
		}
	}
	return strings.TrimRight(url, "/")
}

// EndpointRepository handles endpoint identity persistence in Postgres
type EndpointRepository struct {
	db *PostgresDB
}

// NewEndpointRepository creates a new endpoint repository
func NewEndpointRepository(db *PostgresDB) *EndpointRepository {
	return &EndpointRepository{db: db}
}

const endpointColumns = `id, chain, kind, url, is_archival, created_at, updated_at`

func scanEndpoint(row pgx.Row) (*models.Endpoint, error) {
	var e models.Endpoint
	err := row.Scan(
		&e.ID,
		&e.Chain,
		&e.Kind,
		&e.URL,
		&e.IsArchival,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Resolve finds the endpoint for (chain, kind, url) or creates it. The URL
// is normalized first. Creation races are absorbed: on a uniqueness
// conflict the insert is a no-op and the row is re-selected, so two
// concurrent callers always converge on the same endpoint.
func (r *EndpointRepository) Resolve(ctx context.Context, chain string, kind types.EndpointKind, url string) (*models.Endpoint, error) {
	url = NormalizeURL(url)
	if url == "" {
		return nil, &types.ServiceError{
			Code:    "VALIDATION_ERROR",
			Message: "endpoint URL must not be empty",
		}
	}
	if !kind.Valid() {
		return nil, &types.ServiceError{
			Code:    "VALIDATION_ERROR",
			Message: fmt.Sprintf("unknown endpoint kind: %q", kind),
		}
	}
	if chain == "" {
		chain = types.DefaultChain
	}

	find := `SELECT ` + endpointColumns + ` FROM endpoints WHERE chain = $1 AND kind = $2 AND url = $3`

	endpoint, err := scanEndpoint(r.db.Pool().QueryRow(ctx, find, chain, kind, url))
	if err == nil {
		return endpoint, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to find endpoint: %w", err)
	}

	insert := `
		INSERT INTO endpoints (chain, kind, url)
		VALUES ($1, $2, $3)
		ON CONFLICT (chain, kind, url) DO NOTHING
		RETURNING ` + endpointColumns

	endpoint, err = scanEndpoint(r.db.Pool().QueryRow(ctx, insert, chain, kind, url))
	if err == nil {
		return endpoint, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to create endpoint: %w", err)
	}

	// Lost the creation race: another writer inserted the key between our
	// find and insert. Re-resolve instead of erroring.
	endpoint, err = scanEndpoint(r.db.Pool().QueryRow(ctx, find, chain, kind, url))
	if err != nil {
		return nil, fmt.Errorf("failed to re-resolve endpoint after conflict: %w", err)
	}
	return endpoint, nil
}

// MarkArchival updates the advisory archival classification. Last writer
// wins; the flag is registry metadata, not a liveness measurement.
func (r *EndpointRepository) MarkArchival(ctx context.Context, endpointID int64, block1Status string) error {
	isArchival := block1Status == types.Block1Archival

	query := `UPDATE endpoints SET is_archival = $2, updated_at = now() WHERE id = $1`
	if _, err := r.db.Pool().Exec(ctx, query, endpointID, isArchival); err != nil {
		return fmt.Errorf("failed to update archival status: %w", err)
	}
	return nil
}

// GetByURL retrieves an endpoint by its normalized URL, for detail lookups.
// Returns nil without error when no endpoint matches.
func (r *EndpointRepository) GetByURL(ctx context.Context, url string) (*models.Endpoint, error) {
	url = NormalizeURL(url)

	query := `SELECT ` + endpointColumns + ` FROM endpoints WHERE url = $1 ORDER BY id LIMIT 1`

	endpoint, err := scanEndpoint(r.db.Pool().QueryRow(ctx, query, url))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get endpoint by url: %w", err)
	}
	return endpoint, nil
}

// ListByIDs retrieves endpoints for the given IDs
func (r *EndpointRepository) ListByIDs(ctx context.Context, ids []int64) ([]*models.Endpoint, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + endpointColumns + ` FROM endpoints WHERE id = ANY($1) ORDER BY id`

	rows, err := r.db.Pool().Query(ctx, query, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*models.Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan endpoint: %w", err)
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

// Delete removes an endpoint. Only retention pruning calls this; probes for
// the endpoint must be removed alongside via the probe store.
func (r *EndpointRepository) Delete(ctx context.Context, endpointID int64) error {
	result, err := r.db.Pool().Exec(ctx, `DELETE FROM endpoints WHERE id = $1`, endpointID)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("endpoint not found: %d", endpointID)
	}
	return nil
}
