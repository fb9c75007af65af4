package service

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/latency-monitor/internal/aggregate"
	"github.com/latency-monitor/internal/config"
	"github.com/latency-monitor/internal/errors"
	"github.com/latency-monitor/internal/storage"
	"github.com/latency-monitor/internal/types"
)

// GlobalStats is the network-wide section of a summary: the shared Stats
// reduction plus per-kind and archival breakdowns.
type GlobalStats struct {
	aggregate.Stats
	RPCTotal           int `json:"rpc_total"`
	RPCOnline          int `json:"rpc_online"`
	GRPCTotal          int `json:"grpc_total"`
	GRPCOnline         int `json:"grpc_online"`
	ArchivalGrpcTotal  int `json:"archival_grpc_total"`
	ArchivalGrpcOnline int `json:"archival_grpc_online"`
}

// RegionSummary is one region's statistics plus its best RPC endpoint.
// bestRpc is absent when the region has no measured RPC probe.
type RegionSummary struct {
	aggregate.RegionStats
	BestRPC *aggregate.BestRPC `json:"bestRpc,omitempty"`
}

// SummaryResponse is the assembled network summary
type SummaryResponse struct {
	GeneratedAt          time.Time                `json:"generated_at"`
	DataFreshnessMinutes int                      `json:"data_freshness_minutes"`
	Global               GlobalStats              `json:"global"`
	Regions              []RegionSummary          `json:"regions"`
	TopFastest           []aggregate.FastEntry    `json:"top_15_fastest"`
	NearTip              []aggregate.NearTipEntry `json:"top_3_latest"`
	// Degraded marks a summary whose sections were partially zeroed after a
	// contained computation failure. Storage failures are never degraded;
	// they fail the request.
	Degraded bool `json:"degraded,omitempty"`
}

// SummaryService assembles network summaries from a consistent snapshot.
// The independent sections (global stats, regions, rankings) are computed in
// parallel on a shared worker pool; a panic in one section zeroes that
// section and flags the summary as degraded instead of failing the request.
type SummaryService struct {
	registry EndpointRegistry
	probes   ProbeStore
	cache    SummaryCache
	pool     pond.Pool
	cfg      config.AggregationConfig
	logger   *zap.Logger
}

// NewSummaryService creates a new summary service
func NewSummaryService(registry EndpointRegistry, probes ProbeStore, cache SummaryCache, cfg config.AggregationConfig, logger *zap.Logger) *SummaryService {
	return &SummaryService{
		registry: registry,
		probes:   probes,
		cache:    cache,
		pool:     pond.NewPool(4),
		cfg:      cfg,
		logger:   logger,
	}
}

// GetSummary returns the current network summary, served from cache when a
// fresh copy exists.
func (s *SummaryService) GetSummary(ctx context.Context) (*SummaryResponse, error) {
	key := storage.SummaryKey(s.cfg.FreshnessMinutes)

	if s.cache != nil {
		var cached SummaryResponse
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			// A broken cache degrades to recomputation, never to failure.
			s.logger.Warn("summary cache read failed", zap.Error(err))
		} else if hit {
			return &cached, nil
		}
	}

	summary, err := s.computeSummary(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summary); err != nil {
			s.logger.Warn("summary cache write failed", zap.Error(err))
		}
	}
	return summary, nil
}

// computeSummary builds the snapshot and reduces it into a summary
func (s *SummaryService) computeSummary(ctx context.Context) (*SummaryResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.QueryTimeout)
	defer cancel()

	window := time.Duration(s.cfg.FreshnessMinutes) * time.Minute

	probes, err := s.probes.SnapshotProbes(ctx, window)
	if err != nil {
		return nil, errors.NewStorageError("snapshot query", err)
	}
	maxHeight, err := s.probes.MaxObservedHeight(ctx, window)
	if err != nil {
		return nil, errors.NewStorageError("max height query", err)
	}
	endpoints, err := s.registry.ListByIDs(ctx, aggregate.EndpointIDs(probes))
	if err != nil {
		return nil, errors.NewStorageError("endpoint lookup", err)
	}

	snap := aggregate.Build(probes, endpoints, maxHeight, s.cfg.FreshnessMinutes)

	var (
		global     GlobalStats
		regions    []RegionSummary
		topFastest []aggregate.FastEntry
		nearTip    []aggregate.NearTipEntry
		degraded   atomic.Bool
	)

	group := s.pool.NewGroupContext(ctx)
	group.Submit(func() {
		defer s.recoverSection("global", &degraded)
		kinds := aggregate.Kinds(snap)
		archival := aggregate.ArchivalGrpc(snap)
		global = GlobalStats{
			Stats:              aggregate.Global(snap),
			RPCTotal:           kinds[types.KindRPC].Total,
			RPCOnline:          kinds[types.KindRPC].Online,
			GRPCTotal:          kinds[types.KindGRPC].Total,
			GRPCOnline:         kinds[types.KindGRPC].Online,
			ArchivalGrpcTotal:  archival.Total,
			ArchivalGrpcOnline: archival.Online,
		}
	})
	group.Submit(func() {
		defer s.recoverSection("regions", &degraded)
		best := aggregate.BestPerRegion(snap)
		for _, rs := range aggregate.Regions(snap) {
			summary := RegionSummary{RegionStats: rs}
			if b, ok := best[rs.Region]; ok {
				summary.BestRPC = &b
			}
			regions = append(regions, summary)
		}
	})
	group.Submit(func() {
		defer s.recoverSection("top_fastest", &degraded)
		topFastest = aggregate.TopFastest(snap, s.cfg.TopK, s.cfg.MinRegions)
	})
	group.Submit(func() {
		defer s.recoverSection("near_tip", &degraded)
		nearTip = aggregate.NearTip(snap, int64(s.cfg.NearTipTolerance), s.cfg.NearTipCount)
	})
	if err := group.Wait(); err != nil {
		return nil, errors.NewInternalError("summary computation failed", err)
	}

	if regions == nil {
		regions = []RegionSummary{}
	}
	if topFastest == nil {
		topFastest = []aggregate.FastEntry{}
	}
	if nearTip == nil {
		nearTip = []aggregate.NearTipEntry{}
	}

	return &SummaryResponse{
		GeneratedAt:          snap.GeneratedAt,
		DataFreshnessMinutes: snap.WindowMinutes,
		Global:               global,
		Regions:              regions,
		TopFastest:           topFastest,
		NearTip:              nearTip,
		Degraded:             degraded.Load(),
	}, nil
}

// recoverSection contains a panic in one summary section, leaving the
// section zeroed and the summary flagged as degraded.
func (s *SummaryService) recoverSection(section string, degraded *atomic.Bool) {
	if r := recover(); r != nil {
		degraded.Store(true)
		s.logger.Error("summary section panicked",
			zap.String("section", section),
			zap.Any("panic", r),
		)
	}
}
