package service

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/latency-monitor/internal/config"
	"github.com/latency-monitor/internal/errors"
	"github.com/latency-monitor/internal/models"
	"github.com/latency-monitor/internal/types"
)

// RegionPerformance summarizes one region's in-window probes of a single
// endpoint. Latency figures only cover measured probes; the last_* fields
// come from the region's most recent probe regardless of outcome.
type RegionPerformance struct {
	Region          string    `json:"region"`
	TotalTests      int       `json:"total_tests"`
	SuccessfulTests int       `json:"successful_tests"`
	SuccessRate     float64   `json:"success_rate"`
	AvgLatencyMS    int64     `json:"avg_latency_ms"`
	MinLatencyMS    *int64    `json:"min_latency_ms"`
	MaxLatencyMS    *int64    `json:"max_latency_ms"`
	LastLatencyMS   int64     `json:"last_latency_ms"`
	LastReachable   bool      `json:"last_reachable"`
	LastChecked     time.Time `json:"last_checked"`
	LatestHeight    *int64    `json:"latest_height"`
}

// EndpointDetails is the per-endpoint detail view
type EndpointDetails struct {
	Endpoint             string              `json:"endpoint"`
	Chain                string              `json:"chain"`
	Kind                 types.EndpointKind  `json:"kind"`
	IsArchival           bool                `json:"is_archival"`
	DataFreshnessMinutes int                 `json:"data_freshness_minutes"`
	RegionalPerformance  []RegionPerformance `json:"regional_performance"`
}

// DetailService serves per-endpoint drill-downs over raw in-window history
type DetailService struct {
	registry EndpointRegistry
	probes   ProbeStore
	cfg      config.AggregationConfig
	logger   *zap.Logger
}

// NewDetailService creates a new detail service
func NewDetailService(registry EndpointRegistry, probes ProbeStore, cfg config.AggregationConfig, logger *zap.Logger) *DetailService {
	return &DetailService{
		registry: registry,
		probes:   probes,
		cfg:      cfg,
		logger:   logger,
	}
}

// GetEndpoint returns the detail view for the endpoint with the given URL.
// The URL is normalized before lookup, so any spelling an agent could have
// submitted resolves to the same endpoint.
func (s *DetailService) GetEndpoint(ctx context.Context, url string) (*EndpointDetails, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	endpoint, err := s.registry.GetByURL(ctx, url)
	if err != nil {
		return nil, errors.NewStorageError("endpoint lookup", err)
	}
	if endpoint == nil {
		return nil, &types.ServiceError{
			Code:    "ENDPOINT_NOT_FOUND",
			Message: "no endpoint matches the given URL",
			Details: map[string]any{"url": url},
		}
	}

	window := time.Duration(s.cfg.FreshnessMinutes) * time.Minute
	history, err := s.probes.History(ctx, endpoint.ID, window)
	if err != nil {
		return nil, errors.NewStorageError("probe history query", err)
	}

	return &EndpointDetails{
		Endpoint:             endpoint.URL,
		Chain:                endpoint.Chain,
		Kind:                 endpoint.Kind,
		IsArchival:           endpoint.IsArchival,
		DataFreshnessMinutes: s.cfg.FreshnessMinutes,
		RegionalPerformance:  regionalPerformance(history),
	}, nil
}

// regionalPerformance reduces an endpoint's history (newest first) into
// per-region statistics, sorted by region name.
func regionalPerformance(history []*models.Probe) []RegionPerformance {
	byRegion := make(map[string][]*models.Probe)
	for _, p := range history {
		byRegion[p.Region] = append(byRegion[p.Region], p)
	}

	out := make([]RegionPerformance, 0, len(byRegion))
	for region, probes := range byRegion {
		perf := RegionPerformance{Region: region, TotalTests: len(probes)}

		// History is newest first, so the first row is the latest state.
		latest := probes[0]
		perf.LastLatencyMS = latest.LatencyMS
		perf.LastReachable = latest.Reachable
		perf.LastChecked = latest.Timestamp
		perf.LatestHeight = latest.LatestHeight

		var sum, count int64
		for _, p := range probes {
			if p.Reachable {
				perf.SuccessfulTests++
			}
			if !p.Measured() {
				continue
			}
			sum += p.LatencyMS
			count++
			if perf.MinLatencyMS == nil || p.LatencyMS < *perf.MinLatencyMS {
				v := p.LatencyMS
				perf.MinLatencyMS = &v
			}
			if perf.MaxLatencyMS == nil || p.LatencyMS > *perf.MaxLatencyMS {
				v := p.LatencyMS
				perf.MaxLatencyMS = &v
			}
		}
		if count > 0 {
			perf.AvgLatencyMS = int64(math.Round(float64(sum) / float64(count)))
		}
		perf.SuccessRate = math.Round(float64(perf.SuccessfulTests)/float64(perf.TotalTests)*10000) / 10000

		out = append(out, perf)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Region < out[j].Region })
	return out
}
