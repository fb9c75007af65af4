package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/latency-monitor/internal/errors"
	"github.com/latency-monitor/internal/models"
	"github.com/latency-monitor/internal/types"
)

// ItemError reports why one submitted probe item was rejected, keyed by the
// target string the agent originally sent.
type ItemError struct {
	Endpoint string `json:"endpoint"`
	Error    string `json:"error"`
}

// IngestResult summarizes one ingested batch
type IngestResult struct {
	BatchID  string      `json:"batch_id"`
	Region   string      `json:"region"`
	Inserted int         `json:"inserted"`
	Errors   []ItemError `json:"errors,omitempty"`
}

// IngestService normalizes raw agent payloads into probe rows. Item failures
// are isolated: a malformed item is reported in the result and never aborts
// the rest of the batch. Only a storage failure fails the whole request.
type IngestService struct {
	registry EndpointRegistry
	probes   ProbeStore
	logger   *zap.Logger
}

// NewIngestService creates a new ingestion service
func NewIngestService(registry EndpointRegistry, probes ProbeStore, logger *zap.Logger) *IngestService {
	return &IngestService{
		registry: registry,
		probes:   probes,
		logger:   logger,
	}
}

// Ingest processes one batch of probe items submitted from one region.
// Duplicate submissions are not deduplicated; every accepted item becomes
// its own probe row.
func (s *IngestService) Ingest(ctx context.Context, region string, items []types.ProbeItem) (*IngestResult, error) {
	result := &IngestResult{
		BatchID: uuid.New().String(),
		Region:  region,
	}

	rows := make([]*models.Probe, 0, len(items))
	for i := range items {
		probe, err := s.ingestItem(ctx, region, &items[i])
		if err != nil {
			catErr := errors.Categorize(err)
			switch catErr.Category {
			case errors.CategoryValidation, errors.CategoryNotFound, errors.CategoryInvariant:
				result.Errors = append(result.Errors, ItemError{
					Endpoint: items[i].Target(),
					Error:    err.Error(),
				})
				continue
			default:
				// Registry unavailability is batch-fatal; the agent retries.
				return nil, errors.NewStorageError("endpoint resolve", catErr)
			}
		}
		rows = append(rows, probe)
	}

	if err := s.probes.BatchInsert(ctx, rows); err != nil {
		return nil, errors.NewStorageError("probe batch insert", err)
	}
	result.Inserted = len(rows)

	s.logger.Info("ingested probe batch",
		zap.String("batch_id", result.BatchID),
		zap.String("region", region),
		zap.Int("inserted", result.Inserted),
		zap.Int("rejected", len(result.Errors)),
	)
	return result, nil
}

// ingestItem resolves one item against the registry and converts it into a
// probe row. A panic while handling the item is contained and reported as
// that item's error.
func (s *IngestService) ingestItem(ctx context.Context, region string, item *types.ProbeItem) (probe *models.Probe, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recovered while ingesting probe item",
				zap.String("endpoint", item.Target()),
				zap.Any("panic", r),
			)
			probe, err = nil, errors.NewInvariantError(fmt.Sprintf("panic while ingesting item: %v", r), nil)
		}
	}()

	kind := item.ProtocolKind()
	endpoint, err := s.registry.Resolve(ctx, item.Chain, kind, item.Target())
	if err != nil {
		return nil, err
	}

	if kind == types.KindGRPC && item.Block1Status != "" {
		// Advisory metadata; a failed update must not reject the measurement.
		if err := s.registry.MarkArchival(ctx, endpoint.ID, item.Block1Status); err != nil {
			s.logger.Warn("failed to update archival status",
				zap.Int64("endpoint_id", endpoint.ID),
				zap.Error(err),
			)
		}
	}

	probe = &models.Probe{
		EndpointID:   endpoint.ID,
		Region:       region,
		Reachable:    item.Reachable,
		TimedOut:     item.Timeout,
		LatencyMS:    item.LatencyMS.Int64(),
		LatestHeight: item.LatestHeight.Ptr(),
	}
	if item.Block1Status != "" {
		v := item.Block1Status
		probe.Block1Status = &v
	}
	if item.Error != "" {
		v := item.Error
		probe.Error = &v
	}
	if item.HTTPStatus != "" {
		v := item.HTTPStatus
		probe.HTTPStatus = &v
	}
	return probe, nil
}
